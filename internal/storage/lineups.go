package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/model"
)

// LineupStore persists lineups. Members are stored as a JSON array to keep
// join order.
type LineupStore struct {
	db *sql.DB
}

func scanLineup(scan func(dest ...any) error) (*model.Lineup, error) {
	var (
		l   model.Lineup
		raw string
	)
	if err := scan(&l.GameName, &raw); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &l.Users); err != nil {
		return nil, fmt.Errorf("corrupt lineup %s: %w", l.GameName, err)
	}
	if l.Users == nil {
		l.Users = []string{}
	}
	return &l, nil
}

// FindOne finds the lineup of a game
func (s *LineupStore) FindOne(ctx context.Context, gameName string) (*model.Lineup, error) {
	row := s.db.QueryRowContext(ctx, `SELECT game_name, users FROM lineups WHERE game_name = ?`, gameName)
	l, err := scanLineup(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return l, err
}

// Find returns all lineups ordered by game name
func (s *LineupStore) Find(ctx context.Context) ([]*model.Lineup, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT game_name, users FROM lineups ORDER BY game_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lineups []*model.Lineup
	for rows.Next() {
		l, err := scanLineup(rows.Scan)
		if err != nil {
			return nil, err
		}
		lineups = append(lineups, l)
	}

	return lineups, rows.Err()
}

// Create inserts a new lineup
func (s *LineupStore) Create(ctx context.Context, l *model.Lineup) error {
	users, err := marshalSet(l.Users)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO lineups (game_name, users) VALUES (?, ?)`, l.GameName, users)
	if err != nil && isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

// Update replaces the member list of a lineup
func (s *LineupStore) Update(ctx context.Context, l *model.Lineup) error {
	users, err := marshalSet(l.Users)
	if err != nil {
		return err
	}
	return expectOne(s.db.ExecContext(ctx,
		`UPDATE lineups SET users = ?, updated_at = ? WHERE game_name = ?`,
		users, time.Now(), l.GameName,
	))
}

func (s *LineupStore) Delete(ctx context.Context, gameName string) error {
	return expectOne(s.db.ExecContext(ctx, `DELETE FROM lineups WHERE game_name = ?`, gameName))
}

func (s *LineupStore) DeleteMany(ctx context.Context, gameNames []string) error {
	if len(gameNames) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM lineups WHERE game_name IN (`+placeholders(len(gameNames))+`)`,
		toArgs(gameNames)...,
	)
	return err
}

func marshalSet(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
