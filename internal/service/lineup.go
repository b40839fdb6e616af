package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/model"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/storage"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/tiered"
)

// JoinResult classifies every requested user into exactly one bucket
type JoinResult struct {
	Game   *model.Game
	Lineup *model.Lineup

	// ValidUsers joined with this call
	ValidUsers []string
	// InvalidUsers were already in the lineup
	InvalidUsers []string
	// ExcludedUsers did not fit in the remaining slots
	ExcludedUsers []string

	// BecameFull is set when this call filled a bounded lineup
	BecameFull bool
}

// LeaveResult reports which users were removed from a lineup
type LeaveResult struct {
	Lineup     *model.Lineup
	Removed    []string
	NotMembers []string
}

// LineupService owns lineup membership
type LineupService struct {
	repo  *tiered.Repository[model.Lineup]
	games *tiered.Repository[model.Game]
	locks *tiered.KeyedMutex
}

// GetLineup resolves the lineup of a game
func (s *LineupService) GetLineup(ctx context.Context, gameName string) (*model.Lineup, error) {
	l, err := s.repo.Get(ctx, gameName)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFound("lineup", gameName)
	}
	return l, err
}

// GetLineups resolves every lineup
func (s *LineupService) GetLineups(ctx context.Context) ([]*model.Lineup, error) {
	return s.repo.All(ctx)
}

// ReloadLineups reads every lineup from the store and refreshes the cache tier
func (s *LineupService) ReloadLineups(ctx context.Context) ([]*model.Lineup, error) {
	return s.repo.Reload(ctx)
}

// EnsureLineup returns the lineup of a game, creating an empty one if it is
// missing. An existing lineup is never cleared.
func (s *LineupService) EnsureLineup(ctx context.Context, gameName string) (*model.Lineup, error) {
	unlock := s.locks.Lock(lineupLock(gameName))
	defer unlock()

	l := model.NewLineup(gameName)
	err := s.repo.Create(ctx, l)
	if errors.Is(err, storage.ErrAlreadyExists) {
		return s.GetLineup(ctx, gameName)
	}
	if err != nil {
		return nil, lineupWriteErr(err, gameName)
	}
	return l, nil
}

// AddLineup creates an empty lineup. If one already exists it is cleared and
// reused, which repairs lineups left behind by a partial game removal.
func (s *LineupService) AddLineup(ctx context.Context, gameName string) (*model.Lineup, error) {
	unlock := s.locks.Lock(lineupLock(gameName))
	defer unlock()

	return s.addLineupLocked(ctx, gameName)
}

func (s *LineupService) addLineupLocked(ctx context.Context, gameName string) (*model.Lineup, error) {
	l := model.NewLineup(gameName)
	err := s.repo.Create(ctx, l)
	if errors.Is(err, storage.ErrAlreadyExists) {
		slog.Warn("Reusing existing lineup", "game", gameName)
		err = s.repo.Update(ctx, l)
	}
	if err != nil {
		return nil, lineupWriteErr(err, gameName)
	}
	return l, nil
}

// RemoveLineup deletes the lineup of a game
func (s *LineupService) RemoveLineup(ctx context.Context, gameName string) error {
	unlock := s.locks.Lock(lineupLock(gameName))
	defer unlock()

	return s.removeLineupLocked(ctx, gameName)
}

func (s *LineupService) removeLineupLocked(ctx context.Context, gameName string) error {
	err := s.repo.Delete(ctx, gameName)
	if errors.Is(err, storage.ErrNotFound) {
		return notFound("lineup", gameName)
	}
	return err
}

// RemoveLineups deletes several lineups in one store call. Used to sweep
// lineups whose game no longer exists.
func (s *LineupService) RemoveLineups(ctx context.Context, gameNames []string) error {
	return s.repo.DeleteMany(ctx, gameNames)
}

// AddUsers joins users to a game's lineup.
//
// Users already in the lineup are classified first and never count against
// capacity, so a request made only of existing members succeeds even on a
// full lineup. Otherwise a bounded lineup with no free slot rejects the whole
// request with ErrCapacityExceeded, and new users beyond the free slots are
// returned as ExcludedUsers.
func (s *LineupService) AddUsers(ctx context.Context, gameName string, users []string) (*JoinResult, error) {
	users = dedupe(users)
	if len(users) == 0 {
		return nil, ErrNoUsers
	}

	unlock := s.locks.Lock(lineupLock(gameName))
	defer unlock()

	game, err := s.games.Get(ctx, gameName)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFound("game", gameName)
	}
	if err != nil {
		return nil, err
	}

	current, err := s.GetLineup(ctx, gameName)
	if err != nil {
		return nil, err
	}

	res := &JoinResult{Game: game, Lineup: current}
	for _, u := range users {
		if current.HasUser(u) {
			res.InvalidUsers = append(res.InvalidUsers, u)
		} else {
			res.ValidUsers = append(res.ValidUsers, u)
		}
	}
	if len(res.ValidUsers) == 0 {
		return res, nil
	}

	if !game.IsInfinite() {
		remaining := game.Limit - current.UserCount()
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: %s (%d/%d)", ErrCapacityExceeded, gameName, current.UserCount(), game.Limit)
		}
		if len(res.ValidUsers) > remaining {
			res.ExcludedUsers = slices.Clone(res.ValidUsers[remaining:])
			res.ValidUsers = res.ValidUsers[:remaining]
		}
	}

	next := current.Clone()
	next.AddUsers(res.ValidUsers)
	if err := s.repo.Update(ctx, next); err != nil {
		return nil, lineupWriteErr(err, gameName)
	}

	res.Lineup = next
	res.BecameFull = !game.IsInfinite() && next.UserCount() >= game.Limit
	slog.Debug("Users joined lineup", "game", gameName, "joined", len(res.ValidUsers), "size", next.UserCount())
	return res, nil
}

// RemoveUsers removes users from a game's lineup. Removal never fails on
// capacity; users that were not in the lineup are reported in NotMembers.
func (s *LineupService) RemoveUsers(ctx context.Context, gameName string, users []string) (*LeaveResult, error) {
	users = dedupe(users)
	if len(users) == 0 {
		return nil, ErrNoUsers
	}

	unlock := s.locks.Lock(lineupLock(gameName))
	defer unlock()

	return s.removeUsersLocked(ctx, gameName, users)
}

func (s *LineupService) removeUsersLocked(ctx context.Context, gameName string, users []string) (*LeaveResult, error) {
	current, err := s.GetLineup(ctx, gameName)
	if err != nil {
		return nil, err
	}

	res := &LeaveResult{Lineup: current}
	for _, u := range users {
		if current.HasUser(u) {
			res.Removed = append(res.Removed, u)
		} else {
			res.NotMembers = append(res.NotMembers, u)
		}
	}
	if len(res.Removed) == 0 {
		return res, nil
	}

	next := current.Clone()
	next.DeleteUsers(res.Removed)
	if err := s.repo.Update(ctx, next); err != nil {
		return nil, lineupWriteErr(err, gameName)
	}
	res.Lineup = next
	return res, nil
}

// ResetLineups empties the named lineups, or every lineup when names is
// empty. Game records are not touched. Unknown names fail before any lineup
// is reset.
func (s *LineupService) ResetLineups(ctx context.Context, gameNames []string) ([]*model.Lineup, error) {
	targets := dedupe(gameNames)
	if len(targets) == 0 {
		all, err := s.GetLineups(ctx)
		if err != nil {
			return nil, err
		}
		for _, l := range all {
			targets = append(targets, l.GameName)
		}
	} else {
		for _, name := range targets {
			if _, err := s.GetLineup(ctx, name); err != nil {
				return nil, err
			}
		}
	}

	reset := make([]*model.Lineup, 0, len(targets))
	for _, name := range targets {
		l, err := s.resetOne(ctx, name)
		if errors.Is(err, ErrNotFound) && len(gameNames) == 0 {
			continue
		}
		if err != nil {
			return reset, fmt.Errorf("reset %s: %w", name, err)
		}
		reset = append(reset, l)
	}

	slog.Info("Lineups reset", "count", len(reset))
	return reset, nil
}

func (s *LineupService) resetOne(ctx context.Context, gameName string) (*model.Lineup, error) {
	unlock := s.locks.Lock(lineupLock(gameName))
	defer unlock()

	current, err := s.GetLineup(ctx, gameName)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	next.Clear()
	if err := s.repo.Update(ctx, next); err != nil {
		return nil, lineupWriteErr(err, gameName)
	}
	return next, nil
}

// lineupWriteErr maps a store miss during a write (the lineup was deleted
// under us) to ErrNotFound
func lineupWriteErr(err error, gameName string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return notFound("lineup", gameName)
	}
	return err
}
