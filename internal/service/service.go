// Package service holds the entity services. Each one resolves entities
// through a tiered repository and applies mutations as
// lock -> resolve -> mutate copy -> persist -> propagate.
package service

import (
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/cache"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/model"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/tiered"
)

// Stores bundles the durable adapters for every entity
type Stores struct {
	Games   tiered.Store[model.Game]
	Lineups tiered.Store[model.Lineup]
	Users   tiered.Store[model.User]
}

// Services wires the three entity services over shared repositories and locks
type Services struct {
	Games   *GameService
	Lineups *LineupService
	Users   *UserService
}

// New builds the services. tier may be nil to run against the store only.
func New(stores Stores, tier cache.Tier, opts tiered.Options) *Services {
	locks := tiered.NewKeyedMutex()

	games := tiered.New("game", stores.Games, tier, func(g *model.Game) string { return g.Name }, opts)
	lineups := tiered.New("lineup", stores.Lineups, tier, func(l *model.Lineup) string { return l.GameName }, opts)
	users := tiered.New("user", stores.Users, tier, func(u *model.User) string { return u.ID }, opts)

	lineupSvc := &LineupService{repo: lineups, games: games, locks: locks}
	return &Services{
		Games:   &GameService{repo: games, lineups: lineupSvc, locks: locks},
		Lineups: lineupSvc,
		Users:   &UserService{repo: users, games: games, locks: locks},
	}
}

func lineupLock(name string) string { return "lineup:" + name }
func gameLock(name string) string   { return "game:" + name }
func userLock(id string) string     { return "user:" + id }

// dedupe drops repeated and empty ids, keeping first occurrences in order
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
