package service

import (
	"errors"
	"fmt"

	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/tiered"
)

// Service layer errors. Per-user outcomes such as "already in the lineup" are
// reported inside results, never as errors.
var (
	ErrNotFound         = errors.New("not found")
	ErrGameExists       = errors.New("game already exists")
	ErrInvalidGame      = errors.New("invalid game")
	ErrCapacityExceeded = errors.New("lineup full")
	ErrNoUsers          = errors.New("no users given")

	// ErrStoreUnavailable means the durable store rejected or timed out a
	// call; nothing was committed.
	ErrStoreUnavailable = tiered.ErrStoreUnavailable
)

// PartiallyAppliedError is returned when the first step of a game/lineup
// cascade committed but the second did not. The caller may retry or repair.
type PartiallyAppliedError struct {
	Op        string // "add game", "remove game"
	Completed string // what did commit
	Err       error
}

func (e *PartiallyAppliedError) Error() string {
	return fmt.Sprintf("%s partially applied (%s): %v", e.Op, e.Completed, e.Err)
}

func (e *PartiallyAppliedError) Unwrap() error {
	return e.Err
}

func notFound(kind, key string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, key)
}
