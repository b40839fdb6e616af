// Package localcache keeps a full in-process mirror of games, lineups and
// users for the command path. Reads are served from memory; every mutation is
// routed through the services (store first, then cache tier) and the returned
// snapshot is applied to the local maps.
package localcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/model"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/service"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/tiered"
)

var (
	ErrNotReady           = errors.New("lineup cache is still starting")
	ErrAlreadyInitialized = errors.New("lineup cache already initialized")
)

// Unbounded is returned by LineupOpenings for lineups without a limit
const Unbounded = -1

// State is the startup phase of the cache
type State int32

const (
	Uninitialized State = iota
	FetchingGames
	InitializingLineups
	FetchingLineupsAndUsers
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case FetchingGames:
		return "fetching games"
	case InitializingLineups:
		return "initializing lineups"
	case FetchingLineupsAndUsers:
		return "fetching lineups and users"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// SavedJoin is the outcome of joining one saved game
type SavedJoin struct {
	Game   string
	Result *service.JoinResult
	Err    error
}

// LocalCache is the facade used by command handlers
type LocalCache struct {
	svc   *service.Services
	state atomic.Int32
	locks *tiered.KeyedMutex

	Games   *GamesCache
	Lineups *LineupsCache
	Users   *UsersCache
}

// New returns an uninitialized cache; call Init before serving commands
func New(svc *service.Services) *LocalCache {
	return &LocalCache{
		svc:     svc,
		locks:   tiered.NewKeyedMutex(),
		Games:   newGamesCache(),
		Lineups: newLineupsCache(),
		Users:   newUsersCache(),
	}
}

func (c *LocalCache) State() State {
	return State(c.state.Load())
}

func (c *LocalCache) setState(s State) {
	c.state.Store(int32(s))
	slog.Debug("Local cache state", "state", s.String())
}

func (c *LocalCache) ready() error {
	if c.State() != Ready {
		return ErrNotReady
	}
	return nil
}

// Init loads every entity and repairs game/lineup pairing. It may be retried
// after a failure.
func (c *LocalCache) Init(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(Uninitialized), int32(FetchingGames)) &&
		!c.state.CompareAndSwap(int32(Failed), int32(FetchingGames)) {
		return ErrAlreadyInitialized
	}

	if err := c.load(ctx); err != nil {
		c.setState(Failed)
		return err
	}

	c.setState(Ready)
	slog.Info("Local cache ready",
		"games", c.Games.size(),
		"lineups", c.Lineups.size(),
		"users", c.Users.size(),
	)
	return nil
}

func (c *LocalCache) load(ctx context.Context) error {
	// a retry after Failed starts from empty maps
	c.Games.reset()
	c.Lineups.reset()
	c.Users.reset()

	// startup reads the store directly; the cache tier may hold entries
	// written by a process that lost contact with it
	games, err := c.svc.Games.ReloadGames(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch games: %w", err)
	}
	for _, g := range games {
		c.Games.set(g)
	}

	c.setState(InitializingLineups)
	lineups, err := c.svc.Lineups.ReloadLineups(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch lineups: %w", err)
	}
	known := make(map[string]bool, len(lineups))
	for _, l := range lineups {
		known[l.GameName] = true
	}
	for _, g := range games {
		if known[g.Name] {
			continue
		}
		l, err := c.svc.Lineups.EnsureLineup(ctx, g.Name)
		if err != nil {
			return fmt.Errorf("failed to create lineup for %s: %w", g.Name, err)
		}
		slog.Info("Created missing lineup", "game", g.Name)
		lineups = append(lineups, l)
	}

	c.setState(FetchingLineupsAndUsers)
	var orphans []string
	for _, l := range lineups {
		if _, ok := c.Games.get(l.GameName); !ok {
			orphans = append(orphans, l.GameName)
			continue
		}
		c.Lineups.set(l)
	}
	if len(orphans) > 0 {
		slog.Warn("Removing orphaned lineups", "games", orphans)
		if err := c.svc.Lineups.RemoveLineups(ctx, orphans); err != nil {
			return fmt.Errorf("failed to remove orphaned lineups: %w", err)
		}
	}

	users, err := c.svc.Users.ReloadUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch users: %w", err)
	}
	for _, u := range users {
		c.Users.set(u)
	}
	return nil
}

// Queries

func (c *LocalCache) Game(name string) (*model.Game, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	g, ok := c.Games.get(name)
	if !ok {
		return nil, fmt.Errorf("%w: game %q", service.ErrNotFound, name)
	}
	return g, nil
}

func (c *LocalCache) AllGames() ([]*model.Game, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.Games.all(), nil
}

func (c *LocalCache) Lineup(name string) (*model.Lineup, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	l, ok := c.Lineups.get(name)
	if !ok {
		return nil, fmt.Errorf("%w: lineup %q", service.ErrNotFound, name)
	}
	return l, nil
}

// IsLineupFull reports whether a bounded lineup has no free slot
func (c *LocalCache) IsLineupFull(name string) (bool, error) {
	openings, err := c.LineupOpenings(name)
	if err != nil {
		return false, err
	}
	return openings == 0, nil
}

// LineupOpenings returns the number of free slots, or Unbounded
func (c *LocalCache) LineupOpenings(name string) (int, error) {
	g, err := c.Game(name)
	if err != nil {
		return 0, err
	}
	if g.IsInfinite() {
		return Unbounded, nil
	}
	l, err := c.Lineup(name)
	if err != nil {
		return 0, err
	}
	return max(g.Limit-l.UserCount(), 0), nil
}

// FilteredLineups returns the named lineups (all when names is empty), keeping
// only full ones when fullOnly is set. Unknown names are skipped.
func (c *LocalCache) FilteredLineups(names []string, fullOnly bool) ([]*model.Lineup, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	var candidates []*model.Lineup
	if len(names) == 0 {
		candidates = c.Lineups.all()
	} else {
		for _, n := range names {
			if l, ok := c.Lineups.get(n); ok {
				candidates = append(candidates, l)
			}
		}
	}

	if !fullOnly {
		return candidates, nil
	}
	out := candidates[:0]
	for _, l := range candidates {
		if full, err := c.IsLineupFull(l.GameName); err == nil && full {
			out = append(out, l)
		}
	}
	return out, nil
}

// UserLineups returns every lineup the user is in
func (c *LocalCache) UserLineups(userID string) ([]*model.Lineup, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var out []*model.Lineup
	for _, l := range c.Lineups.all() {
		if l.HasUser(userID) {
			out = append(out, l)
		}
	}
	return out, nil
}

// UserSavedGames returns the user's saved games that still exist
func (c *LocalCache) UserSavedGames(userID string) ([]string, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	u, ok := c.Users.get(userID)
	if !ok {
		return []string{}, nil
	}
	out := make([]string, 0, len(u.SavedGameNames))
	for _, n := range u.SavedGameNames {
		if _, ok := c.Games.get(n); ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// Game mutations

// AddGame creates a game and its lineup
func (c *LocalCache) AddGame(ctx context.Context, name, roleID string, limit int) (*model.Game, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	name = model.NormalizeGameName(name)
	unlock := c.locks.Lock(name)
	defer unlock()

	g, l, err := c.svc.Games.AddGame(ctx, name, roleID, limit)
	if g != nil {
		c.Games.set(g)
	}
	if l != nil {
		c.Lineups.set(l)
	}
	return g, err
}

func (c *LocalCache) EditGame(ctx context.Context, name string, edit service.GameEdit) (*model.Game, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	unlock := c.locks.Lock(name)
	defer unlock()

	g, err := c.svc.Games.EditGame(ctx, name, edit)
	if err != nil {
		return nil, err
	}
	c.Games.set(g)
	return g, nil
}

// RemoveGame deletes a game and its lineup. On a partial failure the game is
// already gone, so both are dropped locally; the leftover lineup is deleted
// by a retry or swept on the next startup.
func (c *LocalCache) RemoveGame(ctx context.Context, name string) error {
	if err := c.ready(); err != nil {
		return err
	}
	unlock := c.locks.Lock(name)
	defer unlock()

	err := c.svc.Games.RemoveGame(ctx, name)
	var partial *service.PartiallyAppliedError
	if err == nil || errors.As(err, &partial) {
		c.Games.remove(name)
		c.Lineups.remove(name)
	}
	return err
}

// Lineup mutations

// JoinLineup adds users to a game's lineup
func (c *LocalCache) JoinLineup(ctx context.Context, game string, users []string) (*service.JoinResult, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	unlock := c.locks.Lock(game)
	defer unlock()

	res, err := c.svc.Lineups.AddUsers(ctx, game, users)
	if err != nil {
		return nil, err
	}
	c.Lineups.set(res.Lineup)
	return res, nil
}

// JoinSavedLineups joins the user to each of their saved games that still
// exists. A full lineup is reported per game and does not stop the others.
func (c *LocalCache) JoinSavedLineups(ctx context.Context, userID string) ([]SavedJoin, error) {
	games, err := c.UserSavedGames(userID)
	if err != nil {
		return nil, err
	}

	out := make([]SavedJoin, 0, len(games))
	for _, g := range games {
		res, err := c.JoinLineup(ctx, g, []string{userID})
		if err != nil && !errors.Is(err, service.ErrCapacityExceeded) && !errors.Is(err, service.ErrNotFound) {
			return out, err
		}
		out = append(out, SavedJoin{Game: g, Result: res, Err: err})
	}
	return out, nil
}

// LeaveLineup removes users from a game's lineup (leave or kick)
func (c *LocalCache) LeaveLineup(ctx context.Context, game string, users []string) (*service.LeaveResult, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	unlock := c.locks.Lock(game)
	defer unlock()

	res, err := c.svc.Lineups.RemoveUsers(ctx, game, users)
	if err != nil {
		return nil, err
	}
	c.Lineups.set(res.Lineup)
	return res, nil
}

// LeaveAllLineups removes users from every lineup they are in, one lineup at
// a time
func (c *LocalCache) LeaveAllLineups(ctx context.Context, users []string) ([]*service.LeaveResult, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	var results []*service.LeaveResult
	for _, l := range c.Lineups.all() {
		if !slices.ContainsFunc(users, l.HasUser) {
			continue
		}
		res, err := c.LeaveLineup(ctx, l.GameName, users)
		if errors.Is(err, service.ErrNotFound) {
			continue
		}
		if err != nil {
			return results, err
		}
		if len(res.Removed) > 0 {
			results = append(results, res)
		}
	}
	return results, nil
}

// ResetLineups empties the named lineups, or all lineups when names is empty.
// This is what the daily scheduler calls.
func (c *LocalCache) ResetLineups(ctx context.Context, names []string) ([]*model.Lineup, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	all := len(names) == 0
	if all {
		names = c.Lineups.keys()
	} else {
		for _, n := range names {
			if _, ok := c.Lineups.get(n); !ok {
				return nil, fmt.Errorf("%w: lineup %q", service.ErrNotFound, n)
			}
		}
	}

	reset := make([]*model.Lineup, 0, len(names))
	for _, n := range names {
		l, err := c.resetOne(ctx, n)
		if all && errors.Is(err, service.ErrNotFound) {
			continue
		}
		if err != nil {
			return reset, err
		}
		reset = append(reset, l)
	}
	return reset, nil
}

func (c *LocalCache) resetOne(ctx context.Context, name string) (*model.Lineup, error) {
	unlock := c.locks.Lock(name)
	defer unlock()

	lineups, err := c.svc.Lineups.ResetLineups(ctx, []string{name})
	if err != nil {
		return nil, err
	}
	for _, l := range lineups {
		c.Lineups.set(l)
	}
	if len(lineups) == 0 {
		return nil, fmt.Errorf("%w: lineup %q", service.ErrNotFound, name)
	}
	return lineups[0], nil
}

// User mutations

// ConfirmUserInit registers the user if needed and returns it
func (c *LocalCache) ConfirmUserInit(ctx context.Context, userID string) (*model.User, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if u, ok := c.Users.get(userID); ok {
		return u, nil
	}
	unlock := c.locks.Lock("user:" + userID)
	defer unlock()

	u, err := c.svc.Users.ConfirmUserInit(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.Users.set(u)
	return u, nil
}

func (c *LocalCache) SaveGames(ctx context.Context, userID string, names []string) (*service.SaveResult, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	unlock := c.locks.Lock("user:" + userID)
	defer unlock()

	res, err := c.svc.Users.SaveGames(ctx, userID, names)
	if err != nil {
		return nil, err
	}
	c.Users.set(res.User)
	return res, nil
}

func (c *LocalCache) RemoveSavedGames(ctx context.Context, userID string, names []string) (*service.RemoveGamesResult, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	unlock := c.locks.Lock("user:" + userID)
	defer unlock()

	res, err := c.svc.Users.RemoveGames(ctx, userID, names)
	if err != nil {
		return nil, err
	}
	c.Users.set(res.User)
	return res, nil
}

func (c *LocalCache) ClearSavedGames(ctx context.Context, userID string) (*model.User, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	unlock := c.locks.Lock("user:" + userID)
	defer unlock()

	u, err := c.svc.Users.ClearGames(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.Users.set(u)
	return u, nil
}
