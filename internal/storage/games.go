package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/model"
)

// GameStore persists game records
type GameStore struct {
	db *sql.DB
}

// FindOne finds a game by name
func (s *GameStore) FindOne(ctx context.Context, name string) (*model.Game, error) {
	g := &model.Game{}
	err := s.db.QueryRowContext(ctx,
		`SELECT name, role_id, user_limit FROM games WHERE name = ?`,
		name,
	).Scan(&g.Name, &g.RoleID, &g.Limit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Find returns all games ordered by name
func (s *GameStore) Find(ctx context.Context) ([]*model.Game, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, role_id, user_limit FROM games ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []*model.Game
	for rows.Next() {
		g := &model.Game{}
		if err := rows.Scan(&g.Name, &g.RoleID, &g.Limit); err != nil {
			return nil, err
		}
		games = append(games, g)
	}

	return games, rows.Err()
}

// Create inserts a new game
func (s *GameStore) Create(ctx context.Context, g *model.Game) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO games (name, role_id, user_limit) VALUES (?, ?, ?)`,
		g.Name, g.RoleID, g.Limit,
	)
	if err != nil && isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

// Update overwrites the mutable fields of a game
func (s *GameStore) Update(ctx context.Context, g *model.Game) error {
	return expectOne(s.db.ExecContext(ctx,
		`UPDATE games SET role_id = ?, user_limit = ?, updated_at = ? WHERE name = ?`,
		g.RoleID, g.Limit, time.Now(), g.Name,
	))
}

func (s *GameStore) Delete(ctx context.Context, name string) error {
	return expectOne(s.db.ExecContext(ctx, `DELETE FROM games WHERE name = ?`, name))
}

func (s *GameStore) DeleteMany(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM games WHERE name IN (`+placeholders(len(names))+`)`,
		toArgs(names)...,
	)
	return err
}
