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

// UserStore persists users and their saved games
type UserStore struct {
	db *sql.DB
}

func scanUser(scan func(dest ...any) error) (*model.User, error) {
	var (
		u   model.User
		raw string
	)
	if err := scan(&u.ID, &raw); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &u.SavedGameNames); err != nil {
		return nil, fmt.Errorf("corrupt user %s: %w", u.ID, err)
	}
	if u.SavedGameNames == nil {
		u.SavedGameNames = []string{}
	}
	return &u, nil
}

func (s *UserStore) FindOne(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, saved_game_names FROM users WHERE id = ?`, id)
	u, err := scanUser(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

func (s *UserStore) Find(ctx context.Context) ([]*model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, saved_game_names FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (s *UserStore) Create(ctx context.Context, u *model.User) error {
	names, err := marshalSet(u.SavedGameNames)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO users (id, saved_game_names) VALUES (?, ?)`, u.ID, names)
	if err != nil && isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *UserStore) Update(ctx context.Context, u *model.User) error {
	names, err := marshalSet(u.SavedGameNames)
	if err != nil {
		return err
	}
	return expectOne(s.db.ExecContext(ctx,
		`UPDATE users SET saved_game_names = ?, updated_at = ? WHERE id = ?`,
		names, time.Now(), u.ID,
	))
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	return expectOne(s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id))
}

func (s *UserStore) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM users WHERE id IN (`+placeholders(len(ids))+`)`,
		toArgs(ids)...,
	)
	return err
}
