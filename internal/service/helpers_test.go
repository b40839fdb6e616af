package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/cache"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/model"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/storage"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/tiered"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

type env struct {
	svc  *Services
	repo *storage.Repository
	mr   *miniredis.Miniredis // nil when the tier is disabled

	games   *faultyStore[model.Game]
	lineups *faultyStore[model.Lineup]
	users   *faultyStore[model.User]
}

var testOptions = tiered.Options{StoreTimeout: 5 * time.Second, CacheTimeout: time.Second}

func newEnv(t *testing.T, withTier bool) *env {
	t.Helper()

	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	e := &env{
		repo:    repo,
		games:   &faultyStore[model.Game]{Store: repo.Games()},
		lineups: &faultyStore[model.Lineup]{Store: repo.Lineups()},
		users:   &faultyStore[model.User]{Store: repo.Users()},
	}

	var tier cache.Tier
	if withTier {
		e.mr = miniredis.RunT(t)
		rt, err := cache.NewRedisTier(context.Background(), "redis://"+e.mr.Addr(), "")
		require.NoError(t, err)
		t.Cleanup(func() { _ = rt.Close() })
		tier = rt
	}

	e.svc = New(Stores{Games: e.games, Lineups: e.lineups, Users: e.users}, tier, testOptions)
	return e
}

func (e *env) addGame(t *testing.T, name string, limit int) {
	t.Helper()
	_, _, err := e.svc.Games.AddGame(context.Background(), name, "<@&1>", limit)
	require.NoError(t, err)
}

// faultyStore fails selected writes with the configured error
type faultyStore[E any] struct {
	tiered.Store[E]
	createErr error
	updateErr error
	deleteErr error
}

func (f *faultyStore[E]) Create(ctx context.Context, e *E) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.Store.Create(ctx, e)
}

func (f *faultyStore[E]) Update(ctx context.Context, e *E) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	return f.Store.Update(ctx, e)
}

func (f *faultyStore[E]) Delete(ctx context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Store.Delete(ctx, key)
}
