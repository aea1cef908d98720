package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bizmatters/calculator-studio/internal/models"
)

const userColumns = `id::text, name, email, hashed_password, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.HashedPassword, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

// GetUserByEmail looks a user up by email, case-insensitively
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, span := s.startSpan(ctx, "get_user_by_email")
	defer span.End()

	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`,
		strings.TrimSpace(email),
	))
}

// GetUser looks a user up by id
func (s *Store) GetUser(ctx context.Context, userID string) (*models.User, error) {
	id, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// CreateUser inserts a user and its profile in one transaction
func (s *Store) CreateUser(ctx context.Context, name, email, hashedPassword string) (*models.User, error) {
	ctx, span := s.startSpan(ctx, "create_user")
	defer span.End()

	var user *models.User
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		u, err := scanUser(tx.QueryRow(ctx,
			`INSERT INTO users (name, email, hashed_password)
			 VALUES ($1, $2, $3)
			 RETURNING `+userColumns,
			name, strings.TrimSpace(email), hashedPassword,
		))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("user %s: %w", email, ErrAlreadyExists)
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		if err := ensureProfile(ctx, tx, u.ID); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return user, nil
}

// EnsureProfile creates the public profile for a user if it does not exist yet
func (s *Store) EnsureProfile(ctx context.Context, userID string) error {
	return ensureProfile(ctx, s.pool, userID)
}

func ensureProfile(ctx context.Context, q querier, userID string) error {
	id, err := parseID(userID)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx,
		`INSERT INTO profiles (id, username, full_name)
		 SELECT id, email, name FROM users WHERE id = $1
		 ON CONFLICT (id) DO NOTHING`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure profile: %w", err)
	}
	return nil
}

// GetProfile returns the public profile for a user
func (s *Store) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	id, err := parseID(userID)
	if err != nil {
		return nil, err
	}

	var (
		p                             models.Profile
		username, fullName, avatarURL *string
	)
	err = s.pool.QueryRow(ctx,
		`SELECT id::text, username, full_name, avatar_url FROM profiles WHERE id = $1`, id,
	).Scan(&p.ID, &username, &fullName, &avatarURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	p.Username, p.FullName, p.AvatarURL = deref(username), deref(fullName), deref(avatarURL)
	return &p, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
