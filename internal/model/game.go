package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidGameName = errors.New("game name must be lowercase alphanumeric")
	ErrInvalidLimit    = errors.New("limit must not be negative")
)

var gameNamePattern = regexp.MustCompile(`^[a-z0-9]+$`)

// Game is a playable game with a lineup attached to it.
// A zero Limit means the lineup is unbounded.
type Game struct {
	Name   string `json:"name"`
	RoleID string `json:"roleId"`
	Limit  int    `json:"limit"`
}

// NewGame validates the fields and returns a Game
func NewGame(name, roleID string, limit int) (*Game, error) {
	name = NormalizeGameName(name)
	if err := ValidateGameName(name); err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	return &Game{Name: name, RoleID: roleID, Limit: limit}, nil
}

// NormalizeGameName trims and lowercases user input
func NormalizeGameName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateGameName checks the key format
func ValidateGameName(name string) error {
	if !gameNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidGameName, name)
	}
	return nil
}

// IsInfinite reports whether the lineup for this game has no capacity limit
func (g *Game) IsInfinite() bool {
	return g.Limit == 0
}

// Clone returns a copy of the game
func (g *Game) Clone() *Game {
	c := *g
	return &c
}
