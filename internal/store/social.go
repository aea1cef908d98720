package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bizmatters/calculator-studio/internal/models"
)

// ForkSuffix is appended to the title of a forked calculator
const ForkSuffix = " (Fork)"

// lockVisible locks a calculator the user may see: public ones and their own
func lockVisible(ctx context.Context, tx pgx.Tx, id uuid.UUID, userID string) error {
	var visible bool
	err := tx.QueryRow(ctx,
		`SELECT is_public OR user_id::text = $2 FROM calculators WHERE id = $1 FOR UPDATE`,
		id, userID,
	).Scan(&visible)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to lock calculator: %w", err)
	}
	if !visible {
		return ErrNotFound
	}
	return nil
}

// LikeCalculator records a like. Liking twice returns ErrAlreadyExists.
func (s *Store) LikeCalculator(ctx context.Context, userID, calculatorID string) error {
	ctx, span := s.startSpan(ctx, "like_calculator",
		attribute.String("calculator.id", calculatorID),
		attribute.String("user.id", userID))
	defer span.End()

	id, err := parseID(calculatorID)
	if err != nil {
		return err
	}
	uid, err := parseID(userID)
	if err != nil {
		return err
	}

	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockVisible(ctx, tx, id, userID); err != nil {
			return err
		}
		if err := ensureProfile(ctx, tx, userID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO calculator_likes (user_id, calculator_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			uid, id,
		)
		if err != nil {
			return fmt.Errorf("failed to like calculator: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrAlreadyExists
		}

		if _, err := tx.Exec(ctx,
			`UPDATE calculators SET likes_count = likes_count + 1 WHERE id = $1`, id,
		); err != nil {
			return fmt.Errorf("failed to update likes count: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.metrics.RecordSocialAction(ctx, "like")
	return nil
}

// UnlikeCalculator removes a like. Returns ErrNotFound when there was none.
func (s *Store) UnlikeCalculator(ctx context.Context, userID, calculatorID string) error {
	ctx, span := s.startSpan(ctx, "unlike_calculator",
		attribute.String("calculator.id", calculatorID),
		attribute.String("user.id", userID))
	defer span.End()

	id, err := parseID(calculatorID)
	if err != nil {
		return err
	}
	uid, err := parseID(userID)
	if err != nil {
		return err
	}

	err = s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM calculator_likes WHERE user_id = $1 AND calculator_id = $2`,
			uid, id,
		)
		if err != nil {
			return fmt.Errorf("failed to unlike calculator: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		if _, err := tx.Exec(ctx,
			`UPDATE calculators SET likes_count = GREATEST(likes_count - 1, 0) WHERE id = $1`, id,
		); err != nil {
			return fmt.Errorf("failed to update likes count: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.metrics.RecordSocialAction(ctx, "unlike")
	return nil
}

// ForkCalculator copies a visible calculator into userID's private collection
// and records the fork against the original.
func (s *Store) ForkCalculator(ctx context.Context, userID, calculatorID string) (*models.Calculator, error) {
	ctx, span := s.startSpan(ctx, "fork_calculator",
		attribute.String("calculator.id", calculatorID),
		attribute.String("user.id", userID))
	defer span.End()

	id, err := parseID(calculatorID)
	if err != nil {
		return nil, err
	}
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}

	var fork *models.Calculator
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockVisible(ctx, tx, id, userID); err != nil {
			return err
		}
		if err := ensureProfile(ctx, tx, userID); err != nil {
			return err
		}

		var forkID uuid.UUID
		err := tx.QueryRow(ctx,
			`INSERT INTO calculators (user_id, title, description, prompt, spec, is_public, is_template, category, tags)
			 SELECT $1, title || $3, description, prompt, spec, FALSE, FALSE, category, tags
			 FROM calculators WHERE id = $2
			 RETURNING id`,
			uid, id, ForkSuffix,
		).Scan(&forkID)
		if err != nil {
			return fmt.Errorf("failed to copy calculator: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO calculator_forks (original_calculator_id, forked_calculator_id, user_id)
			 VALUES ($1, $2, $3)`,
			id, forkID, uid,
		); err != nil {
			return fmt.Errorf("failed to record fork: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE calculators SET forks_count = forks_count + 1 WHERE id = $1`, id,
		); err != nil {
			return fmt.Errorf("failed to update forks count: %w", err)
		}

		fork, err = getCalculator(ctx, tx, forkID, userID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.metrics.RecordSocialAction(ctx, "fork")
	span.SetAttributes(attribute.String("fork.id", fork.ID))
	return fork, nil
}
