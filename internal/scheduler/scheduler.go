package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/model"
)

// Resetter empties lineups; nil names means every lineup
type Resetter interface {
	ResetLineups(ctx context.Context, names []string) ([]*model.Lineup, error)
}

// Clock is a time of day
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" in 24 hour format
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Scheduler resets every lineup once a day
type Scheduler struct {
	resetter Resetter
	at       Clock
	loc      *time.Location

	// OnReset is called after a successful reset, if set
	OnReset func(lineups []*model.Lineup)

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Scheduler firing daily at the given time in loc
func New(resetter Resetter, at Clock, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		resetter: resetter,
		at:       at,
		loc:      loc,
		stopChan: make(chan struct{}),
	}
}

// NextRun returns the first reset time strictly after now
func (s *Scheduler) NextRun(now time.Time) time.Time {
	local := now.In(s.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.at.Hour, s.at.Minute, 0, 0, s.loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.at.Hour, s.at.Minute, 0, 0, s.loc)
	}
	return next
}

// Start launches the reset loop. It runs until ctx is cancelled or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		next := s.NextRun(time.Now())
		slog.Info("Next lineup reset scheduled", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("Scheduler stopped (context cancelled)")
			return
		case <-s.stopChan:
			timer.Stop()
			slog.Info("Scheduler stopped")
			return
		case <-timer.C:
			s.reset(ctx)
		}
	}
}

// Stop signals the loop to exit and waits for it
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

func (s *Scheduler) reset(ctx context.Context) {
	lineups, err := s.resetter.ResetLineups(ctx, nil)
	if err != nil {
		slog.Error("Daily lineup reset failed", "reset", len(lineups), "error", err)
		return
	}
	slog.Info("Daily lineup reset complete", "lineups", len(lineups))
	if s.OnReset != nil {
		s.OnReset(lineups)
	}
}
