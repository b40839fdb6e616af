package service

import (
	"context"
	"errors"

	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/model"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/storage"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/tiered"
)

// SaveResult classifies the game names given to SaveGames
type SaveResult struct {
	User         *model.User
	Saved        []string
	AlreadySaved []string
	UnknownGames []string
}

// RemoveGamesResult classifies the game names given to RemoveGames
type RemoveGamesResult struct {
	User     *model.User
	Removed  []string
	NotSaved []string
}

// UserService manages users and their saved games. Users are registered
// lazily: any lookup of an unknown id creates it.
type UserService struct {
	repo  *tiered.Repository[model.User]
	games *tiered.Repository[model.Game]
	locks *tiered.KeyedMutex
}

// ConfirmUserInit returns the user, creating an empty record first if needed
func (s *UserService) ConfirmUserInit(ctx context.Context, id string) (*model.User, error) {
	unlock := s.locks.Lock(userLock(id))
	defer unlock()

	return s.confirmLocked(ctx, id)
}

func (s *UserService) confirmLocked(ctx context.Context, id string) (*model.User, error) {
	u, err := s.repo.Get(ctx, id)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	u = model.NewUser(id)
	err = s.repo.Create(ctx, u)
	if errors.Is(err, storage.ErrAlreadyExists) {
		// created by another process between our read and write
		return s.repo.Get(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser is ConfirmUserInit under the name used by read paths
func (s *UserService) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.ConfirmUserInit(ctx, id)
}

func (s *UserService) GetUsers(ctx context.Context) ([]*model.User, error) {
	return s.repo.All(ctx)
}

func (s *UserService) ReloadUsers(ctx context.Context) ([]*model.User, error) {
	return s.repo.Reload(ctx)
}

// SaveGames adds existing games to the user's saved list
func (s *UserService) SaveGames(ctx context.Context, id string, names []string) (*SaveResult, error) {
	names = dedupe(names)

	unlock := s.locks.Lock(userLock(id))
	defer unlock()

	current, err := s.confirmLocked(ctx, id)
	if err != nil {
		return nil, err
	}

	res := &SaveResult{User: current}
	for _, n := range names {
		if current.HasGame(n) {
			res.AlreadySaved = append(res.AlreadySaved, n)
			continue
		}
		exists, err := s.gameExists(ctx, n)
		if err != nil {
			return nil, err
		}
		if exists {
			res.Saved = append(res.Saved, n)
		} else {
			res.UnknownGames = append(res.UnknownGames, n)
		}
	}
	if len(res.Saved) == 0 {
		return res, nil
	}

	next := current.Clone()
	next.AddGameNames(res.Saved)
	if err := s.repo.Update(ctx, next); err != nil {
		return nil, err
	}
	res.User = next
	return res, nil
}

// RemoveGames drops names from the user's saved list
func (s *UserService) RemoveGames(ctx context.Context, id string, names []string) (*RemoveGamesResult, error) {
	names = dedupe(names)

	unlock := s.locks.Lock(userLock(id))
	defer unlock()

	current, err := s.confirmLocked(ctx, id)
	if err != nil {
		return nil, err
	}

	res := &RemoveGamesResult{User: current}
	for _, n := range names {
		if current.HasGame(n) {
			res.Removed = append(res.Removed, n)
		} else {
			res.NotSaved = append(res.NotSaved, n)
		}
	}
	if len(res.Removed) == 0 {
		return res, nil
	}

	next := current.Clone()
	next.DeleteGameNames(res.Removed)
	if err := s.repo.Update(ctx, next); err != nil {
		return nil, err
	}
	res.User = next
	return res, nil
}

// ClearGames empties the user's saved list
func (s *UserService) ClearGames(ctx context.Context, id string) (*model.User, error) {
	unlock := s.locks.Lock(userLock(id))
	defer unlock()

	current, err := s.confirmLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(current.SavedGameNames) == 0 {
		return current, nil
	}

	next := current.Clone()
	next.ClearGameNames()
	if err := s.repo.Update(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *UserService) gameExists(ctx context.Context, name string) (bool, error) {
	_, err := s.games.Get(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
