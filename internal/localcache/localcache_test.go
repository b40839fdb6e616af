package localcache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/cache"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/model"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/service"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/storage"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/tiered"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOffline = errors.New("offline")

// findFailingStore fails Find while fail is set
type findFailingStore[E any] struct {
	tiered.Store[E]
	fail bool
}

func (s *findFailingStore[E]) Find(ctx context.Context) ([]*E, error) {
	if s.fail {
		return nil, errOffline
	}
	return s.Store.Find(ctx)
}

type fixture struct {
	repo  *storage.Repository
	games *findFailingStore[model.Game]
	mr    *miniredis.Miniredis
	tier  cache.Tier
	cache *LocalCache
}

func newFixture(t *testing.T, withTier bool) *fixture {
	t.Helper()

	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	f := &fixture{repo: repo, games: &findFailingStore[model.Game]{Store: repo.Games()}}

	if withTier {
		f.mr = miniredis.RunT(t)
		rt, err := cache.NewRedisTier(context.Background(), "redis://"+f.mr.Addr(), "")
		require.NoError(t, err)
		t.Cleanup(func() { _ = rt.Close() })
		f.tier = rt
	}

	f.cache = f.newCache()
	return f
}

// newCache builds a cache over the fixture's store and tier, as a restarted
// process would
func (f *fixture) newCache() *LocalCache {
	svc := service.New(service.Stores{
		Games:   f.games,
		Lineups: f.repo.Lineups(),
		Users:   f.repo.Users(),
	}, f.tier, tiered.Options{StoreTimeout: 5 * time.Second, CacheTimeout: time.Second})
	return New(svc)
}

func (f *fixture) ready(t *testing.T) *LocalCache {
	t.Helper()
	require.NoError(t, f.cache.Init(context.Background()))
	return f.cache
}

func TestRejectsCommandsBeforeReady(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	c := f.cache
	assert.Equal(t, Uninitialized, c.State())

	_, err := c.Game("chess")
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = c.JoinLineup(ctx, "chess", []string{"A"})
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = c.ResetLineups(ctx, nil)
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = c.AddGame(ctx, "chess", "", 2)
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = c.FilteredLineups(nil, false)
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, c.Init(ctx))
	assert.Equal(t, Ready, c.State())
	assert.ErrorIs(t, c.Init(ctx), ErrAlreadyInitialized)
}

func TestInitFailureCanBeRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.games.fail = true

	err := f.cache.Init(ctx)
	assert.ErrorIs(t, err, errOffline)
	assert.Equal(t, Failed, f.cache.State())
	_, err = f.cache.AllGames()
	assert.ErrorIs(t, err, ErrNotReady)

	f.games.fail = false
	require.NoError(t, f.cache.Init(ctx))
	assert.Equal(t, Ready, f.cache.State())
}

func TestInitRepairsPairing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	require.NoError(t, f.repo.Games().Create(ctx, &model.Game{Name: "chess", Limit: 2}))
	orphan := model.NewLineup("ghost")
	orphan.AddUser("A")
	require.NoError(t, f.repo.Lineups().Create(ctx, orphan))

	c := f.ready(t)

	l, err := c.Lineup("chess")
	require.NoError(t, err)
	assert.Empty(t, l.Users)
	_, err = f.repo.Lineups().FindOne(ctx, "chess")
	assert.NoError(t, err, "missing lineup is created in the store")

	_, err = c.Lineup("ghost")
	assert.ErrorIs(t, err, service.ErrNotFound)
	_, err = f.repo.Lineups().FindOne(ctx, "ghost")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.False(t, f.mr.Exists("lineup:ghost"))
}

func TestInitLoadsExistingState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	require.NoError(t, f.repo.Games().Create(ctx, &model.Game{Name: "chess", Limit: 2}))
	l := model.NewLineup("chess")
	l.AddUsers([]string{"A", "B"})
	require.NoError(t, f.repo.Lineups().Create(ctx, l))
	require.NoError(t, f.repo.Users().Create(ctx, &model.User{ID: "A", SavedGameNames: []string{"chess"}}))

	c := f.ready(t)

	full, err := c.IsLineupFull("chess")
	require.NoError(t, err)
	assert.True(t, full)
	saved, err := c.UserSavedGames("A")
	require.NoError(t, err)
	assert.Equal(t, []string{"chess"}, saved)
}

func TestRestartAfterTierOutageKeepsLineups(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	c := f.ready(t)

	f.mr.SetError("ERR tier down")
	_, err := c.AddGame(ctx, "chess", "", 4)
	require.NoError(t, err)
	f.mr.SetError("")

	_, err = c.JoinLineup(ctx, "chess", []string{"111", "222"})
	require.NoError(t, err)

	restarted := f.newCache()
	require.NoError(t, restarted.Init(ctx))

	_, err = restarted.Game("chess")
	require.NoError(t, err)
	l, err := restarted.Lineup("chess")
	require.NoError(t, err)
	assert.Equal(t, []string{"111", "222"}, l.Users)

	stored, err := f.repo.Lineups().FindOne(ctx, "chess")
	require.NoError(t, err)
	assert.Equal(t, []string{"111", "222"}, stored.Users)
}

func TestInitIgnoresStaleTierAggregates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	require.NoError(t, f.repo.Games().Create(ctx, &model.Game{Name: "chess", Limit: 4}))
	l := model.NewLineup("chess")
	l.AddUsers([]string{"111"})
	require.NoError(t, f.repo.Lineups().Create(ctx, l))

	require.NoError(t, f.mr.Set("game:all", "[]"))
	require.NoError(t, f.mr.Set("lineup:all", "[]"))
	require.NoError(t, f.mr.Set("lineup:chess", `{"gameName":"chess","users":[]}`))

	c := f.ready(t)

	got, err := c.Lineup("chess")
	require.NoError(t, err)
	assert.Equal(t, []string{"111"}, got.Users)
	stored, err := f.repo.Lineups().FindOne(ctx, "chess")
	require.NoError(t, err)
	assert.Equal(t, []string{"111"}, stored.Users)
}

func TestGameLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	c := f.ready(t)

	g, err := c.AddGame(ctx, "Chess", "<@&1>", 4)
	require.NoError(t, err)
	assert.Equal(t, "chess", g.Name)

	got, err := c.Game("chess")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Limit)
	l, err := c.Lineup("chess")
	require.NoError(t, err)
	assert.Zero(t, l.UserCount())

	limit := 2
	_, err = c.EditGame(ctx, "chess", service.GameEdit{Limit: &limit})
	require.NoError(t, err)
	openings, err := c.LineupOpenings("chess")
	require.NoError(t, err)
	assert.Equal(t, 2, openings)

	require.NoError(t, c.RemoveGame(ctx, "chess"))
	_, err = c.Game("chess")
	assert.ErrorIs(t, err, service.ErrNotFound)
	_, err = c.Lineup("chess")
	assert.ErrorIs(t, err, service.ErrNotFound)
	_, err = f.repo.Lineups().FindOne(ctx, "chess")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.False(t, f.mr.Exists("game:chess"))
	assert.False(t, f.mr.Exists("lineup:chess"))
}

func TestLineupQueries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	c := f.ready(t)

	_, err := c.AddGame(ctx, "chess", "", 2)
	require.NoError(t, err)
	_, err = c.AddGame(ctx, "among", "", 0)
	require.NoError(t, err)
	_, err = c.AddGame(ctx, "apex", "", 3)
	require.NoError(t, err)

	res, err := c.JoinLineup(ctx, "chess", []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, res.ExcludedUsers)
	_, err = c.JoinLineup(ctx, "among", []string{"A"})
	require.NoError(t, err)

	full, err := c.IsLineupFull("chess")
	require.NoError(t, err)
	assert.True(t, full)
	full, err = c.IsLineupFull("among")
	require.NoError(t, err)
	assert.False(t, full)

	openings, err := c.LineupOpenings("among")
	require.NoError(t, err)
	assert.Equal(t, Unbounded, openings)
	openings, err = c.LineupOpenings("chess")
	require.NoError(t, err)
	assert.Zero(t, openings)

	onlyFull, err := c.FilteredLineups(nil, true)
	require.NoError(t, err)
	require.Len(t, onlyFull, 1)
	assert.Equal(t, "chess", onlyFull[0].GameName)

	named, err := c.FilteredLineups([]string{"apex", "ghost", "among"}, false)
	require.NoError(t, err)
	require.Len(t, named, 2)
	assert.Equal(t, "apex", named[0].GameName)

	mine, err := c.UserLineups("A")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "among", mine[0].GameName)
	assert.Equal(t, "chess", mine[1].GameName)

	_, err = c.JoinLineup(ctx, "chess", []string{"D"})
	assert.ErrorIs(t, err, service.ErrCapacityExceeded)
}

func TestLeaveAndReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	c := f.ready(t)

	for _, name := range []string{"chess", "apex"} {
		_, err := c.AddGame(ctx, name, "", 3)
		require.NoError(t, err)
		_, err = c.JoinLineup(ctx, name, []string{"A", "B"})
		require.NoError(t, err)
	}

	kicked, err := c.LeaveLineup(ctx, "chess", []string{"B", "Z"})
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, kicked.Removed)
	assert.Equal(t, []string{"Z"}, kicked.NotMembers)

	left, err := c.LeaveAllLineups(ctx, []string{"A"})
	require.NoError(t, err)
	assert.Len(t, left, 2)

	mine, err := c.UserLineups("A")
	require.NoError(t, err)
	assert.Empty(t, mine)

	_, err = c.ResetLineups(ctx, []string{"ghost"})
	assert.ErrorIs(t, err, service.ErrNotFound)

	reset, err := c.ResetLineups(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, reset, 2)
	for _, name := range []string{"chess", "apex"} {
		l, err := c.Lineup(name)
		require.NoError(t, err)
		assert.Zero(t, l.UserCount())
		g, err := c.Game(name)
		require.NoError(t, err)
		assert.Equal(t, 3, g.Limit)
	}
}

func TestSavedGames(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	c := f.ready(t)

	_, err := c.AddGame(ctx, "chess", "", 1)
	require.NoError(t, err)
	_, err = c.AddGame(ctx, "apex", "", 3)
	require.NoError(t, err)
	_, err = c.AddGame(ctx, "val", "", 5)
	require.NoError(t, err)

	u, err := c.ConfirmUserInit(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, u.SavedGameNames)

	saved, err := c.SaveGames(ctx, "A", []string{"chess", "apex", "val", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ghost"}, saved.UnknownGames)

	removed, err := c.RemoveSavedGames(ctx, "A", []string{"val"})
	require.NoError(t, err)
	assert.Equal(t, []string{"val"}, removed.Removed)

	_, err = c.JoinLineup(ctx, "chess", []string{"B"})
	require.NoError(t, err)
	require.NoError(t, c.RemoveGame(ctx, "apex"))

	// apex is gone and skipped, chess is full and reported
	joins, err := c.JoinSavedLineups(ctx, "A")
	require.NoError(t, err)
	require.Len(t, joins, 1)
	assert.Equal(t, "chess", joins[0].Game)
	assert.ErrorIs(t, joins[0].Err, service.ErrCapacityExceeded)

	names, err := c.UserSavedGames("A")
	require.NoError(t, err)
	assert.Equal(t, []string{"chess"}, names)

	cleared, err := c.ClearSavedGames(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, cleared.SavedGameNames)
}
