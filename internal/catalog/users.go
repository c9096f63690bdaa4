package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"document-processing-platform/models"
)

func (s *Store) CreateUser(ctx context.Context, email, apiKey string) (*models.User, error) {
	user := &models.User{Email: email, APIKey: apiKey}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (email, api_key) VALUES ($1, $2) RETURNING id, created_at`,
		email, apiKey,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}

	err := s.pool.QueryRow(ctx,
		`SELECT id, email, api_key, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Email, &user.APIKey, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}

	return user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}

	err := s.pool.QueryRow(ctx,
		`SELECT id, email, api_key, created_at FROM users WHERE email = $1`,
		email,
	).Scan(&user.ID, &user.Email, &user.APIKey, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	return user, nil
}

// UserExists is the cheap ownership precheck used by admission and chat.
func (s *Store) UserExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("user exists %d: %w", id, err)
	}
	return exists, nil
}
