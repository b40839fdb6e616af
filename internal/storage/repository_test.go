package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTempRepository(t *testing.T) *Repository {
	t.Helper()

	repo, err := NewRepository(filepath.Join(t.TempDir(), "data", "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestNewRepositoryRequiresPath(t *testing.T) {
	_, err := NewRepository(" ")
	assert.Error(t, err)
}

func TestGameStoreCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	games := openTempRepository(t).Games()

	require.NoError(t, games.Create(ctx, &model.Game{Name: "chess", RoleID: "<@&1>", Limit: 4}))
	assert.ErrorIs(t, games.Create(ctx, &model.Game{Name: "chess"}), ErrAlreadyExists)

	got, err := games.FindOne(ctx, "chess")
	require.NoError(t, err)
	assert.Equal(t, &model.Game{Name: "chess", RoleID: "<@&1>", Limit: 4}, got)

	require.NoError(t, games.Update(ctx, &model.Game{Name: "chess", RoleID: "<@&2>", Limit: 0}))
	got, err = games.FindOne(ctx, "chess")
	require.NoError(t, err)
	assert.True(t, got.IsInfinite())
	assert.Equal(t, "<@&2>", got.RoleID)

	assert.ErrorIs(t, games.Update(ctx, &model.Game{Name: "nope"}), ErrNotFound)

	require.NoError(t, games.Create(ctx, &model.Game{Name: "apex", Limit: 3}))
	all, err := games.Find(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "apex", all[0].Name)

	require.NoError(t, games.Delete(ctx, "chess"))
	assert.ErrorIs(t, games.Delete(ctx, "chess"), ErrNotFound)
	_, err = games.FindOne(ctx, "chess")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, games.DeleteMany(ctx, []string{"apex", "gone"}))
	all, err = games.Find(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestLineupStoreKeepsJoinOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	lineups := openTempRepository(t).Lineups()

	require.NoError(t, lineups.Create(ctx, model.NewLineup("chess")))
	assert.ErrorIs(t, lineups.Create(ctx, model.NewLineup("chess")), ErrAlreadyExists)

	got, err := lineups.FindOne(ctx, "chess")
	require.NoError(t, err)
	assert.Equal(t, []string{}, got.Users)

	got.AddUsers([]string{"3", "1", "2"})
	require.NoError(t, lineups.Update(ctx, got))

	got, err = lineups.FindOne(ctx, "chess")
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "1", "2"}, got.Users)

	assert.ErrorIs(t, lineups.Update(ctx, model.NewLineup("ghost")), ErrNotFound)

	require.NoError(t, lineups.Create(ctx, &model.Lineup{GameName: "apex"}))
	require.NoError(t, lineups.DeleteMany(ctx, []string{"chess"}))
	all, err := lineups.Find(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "apex", all[0].GameName)
	assert.NotNil(t, all[0].Users)
}

func TestUserStoreCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	users := openTempRepository(t).Users()

	_, err := users.FindOne(ctx, "42")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, users.Create(ctx, model.NewUser("42")))
	u, err := users.FindOne(ctx, "42")
	require.NoError(t, err)
	assert.Empty(t, u.SavedGameNames)

	u.AddGameNames([]string{"chess", "apex"})
	require.NoError(t, users.Update(ctx, u))

	all, err := users.Find(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, []string{"chess", "apex"}, all[0].SavedGameNames)

	require.NoError(t, users.Delete(ctx, "42"))
	assert.ErrorIs(t, users.Delete(ctx, "42"), ErrNotFound)
}

func TestRepositoryPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bot.db")

	repo, err := NewRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Games().Create(ctx, &model.Game{Name: "chess", Limit: 2}))
	require.NoError(t, repo.Close())

	repo, err = NewRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	g, err := repo.Games().FindOne(ctx, "chess")
	require.NoError(t, err)
	assert.Equal(t, 2, g.Limit)
}
