package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/model"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/storage"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/tiered"
)

// GameService manages games and cascades to their lineups
type GameService struct {
	repo    *tiered.Repository[model.Game]
	lineups *LineupService
	locks   *tiered.KeyedMutex
}

// GameEdit lists the fields to change; nil fields are kept
type GameEdit struct {
	RoleID *string
	Limit  *int
}

func (s *GameService) GetGame(ctx context.Context, name string) (*model.Game, error) {
	g, err := s.repo.Get(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFound("game", name)
	}
	return g, err
}

func (s *GameService) GetGames(ctx context.Context) ([]*model.Game, error) {
	return s.repo.All(ctx)
}

// ReloadGames reads every game from the store and refreshes the cache tier
func (s *GameService) ReloadGames(ctx context.Context) ([]*model.Game, error) {
	return s.repo.Reload(ctx)
}

// AddGame creates a game and its empty lineup. Adding a game that exists
// without a lineup, as left by a partial add, only creates the lineup.
func (s *GameService) AddGame(ctx context.Context, name, roleID string, limit int) (*model.Game, *model.Lineup, error) {
	game, err := model.NewGame(name, roleID, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidGame, err)
	}

	unlockGame := s.locks.Lock(gameLock(game.Name))
	defer unlockGame()
	unlockLineup := s.locks.Lock(lineupLock(game.Name))
	defer unlockLineup()

	if err := s.repo.Create(ctx, game); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return s.completeAdd(ctx, game.Name)
		}
		return nil, nil, err
	}

	lineup, err := s.lineups.addLineupLocked(ctx, game.Name)
	if err != nil {
		slog.Error("Game created without lineup", "game", game.Name, "error", err)
		return game, nil, &PartiallyAppliedError{Op: "add game", Completed: "game created", Err: err}
	}

	slog.Info("Game added", "game", game.Name, "limit", game.Limit)
	return game, lineup, nil
}

// completeAdd creates the lineup of an existing game if it is missing.
// Callers hold both locks.
func (s *GameService) completeAdd(ctx context.Context, name string) (*model.Game, *model.Lineup, error) {
	_, err := s.lineups.GetLineup(ctx, name)
	if err == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrGameExists, name)
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, nil, err
	}

	game, err := s.GetGame(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	lineup, err := s.lineups.addLineupLocked(ctx, name)
	if err != nil {
		return game, nil, &PartiallyAppliedError{Op: "add game", Completed: "game created", Err: err}
	}
	slog.Info("Completed partial game add", "game", name)
	return game, lineup, nil
}

// EditGame updates the role and/or limit of a game. Lowering the limit below
// the current lineup size keeps existing members; the lineup stays full until
// it drains.
func (s *GameService) EditGame(ctx context.Context, name string, edit GameEdit) (*model.Game, error) {
	if edit.Limit != nil && *edit.Limit < 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGame, model.ErrInvalidLimit)
	}

	unlock := s.locks.Lock(gameLock(name))
	defer unlock()

	current, err := s.GetGame(ctx, name)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	if edit.RoleID != nil {
		next.RoleID = *edit.RoleID
	}
	if edit.Limit != nil {
		next.Limit = *edit.Limit
	}

	if err := s.repo.Update(ctx, next); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, notFound("game", name)
		}
		return nil, err
	}
	return next, nil
}

// RemoveGame deletes a game and then its lineup. A lineup that is already
// gone is not an error, and removing a game whose lineup was left behind by a
// partial removal deletes that lineup.
func (s *GameService) RemoveGame(ctx context.Context, name string) error {
	unlockGame := s.locks.Lock(gameLock(name))
	defer unlockGame()
	unlockLineup := s.locks.Lock(lineupLock(name))
	defer unlockLineup()

	if err := s.repo.Delete(ctx, name); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if lerr := s.lineups.removeLineupLocked(ctx, name); lerr != nil {
			if errors.Is(lerr, ErrNotFound) {
				return notFound("game", name)
			}
			return lerr
		}
		slog.Info("Removed leftover lineup", "game", name)
		return nil
	}

	if err := s.lineups.removeLineupLocked(ctx, name); err != nil && !errors.Is(err, ErrNotFound) {
		slog.Error("Game removed but lineup remains", "game", name, "error", err)
		return &PartiallyAppliedError{Op: "remove game", Completed: "game deleted", Err: err}
	}

	slog.Info("Game removed", "game", name)
	return nil
}
