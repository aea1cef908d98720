package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bizmatters/calculator-studio/internal/models"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// calculatorSelect reads a calculator with its author profile and viewer flags.
// $1 is always the viewer id as text; an empty viewer matches nothing.
const calculatorSelect = `
	SELECT c.id::text, c.user_id::text, c.title, c.description, c.prompt, c.spec,
	       c.is_public, c.is_template, c.category, c.tags,
	       c.views_count, c.likes_count, c.forks_count, c.created_at, c.updated_at,
	       p.id::text, p.username, p.full_name, p.avatar_url,
	       EXISTS (SELECT 1 FROM calculator_likes l
	               WHERE l.calculator_id = c.id AND l.user_id::text = $1) AS is_liked,
	       EXISTS (SELECT 1 FROM calculator_forks f
	               WHERE f.original_calculator_id = c.id AND f.user_id::text = $1) AS is_forked
	FROM calculators c
	LEFT JOIN profiles p ON p.id = c.user_id`

func scanCalculator(row pgx.Row) (*models.Calculator, error) {
	var (
		c                                        models.Calculator
		profileID, username, fullName, avatarURL *string
	)
	err := row.Scan(
		&c.ID, &c.UserID, &c.Title, &c.Description, &c.Prompt, &c.Spec,
		&c.IsPublic, &c.IsTemplate, &c.Category, &c.Tags,
		&c.ViewsCount, &c.LikesCount, &c.ForksCount, &c.CreatedAt, &c.UpdatedAt,
		&profileID, &username, &fullName, &avatarURL,
		&c.IsLiked, &c.IsForked,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan calculator: %w", err)
	}

	if profileID != nil {
		c.Profile = &models.Profile{
			ID:        *profileID,
			Username:  deref(username),
			FullName:  deref(fullName),
			AvatarURL: deref(avatarURL),
		}
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	c.Spec = c.Spec.Normalized()
	return &c, nil
}

func getCalculator(ctx context.Context, q querier, id uuid.UUID, viewerID string) (*models.Calculator, error) {
	return scanCalculator(q.QueryRow(ctx, calculatorSelect+` WHERE c.id = $2`, viewerID, id))
}

// CreateCalculator saves a calculator owned by userID
func (s *Store) CreateCalculator(ctx context.Context, userID string, in models.CreateCalculatorInput) (*models.Calculator, error) {
	ctx, span := s.startSpan(ctx, "create_calculator", attribute.String("user.id", userID))
	defer span.End()

	owner, err := parseID(userID)
	if err != nil {
		return nil, err
	}

	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	spec := in.Spec.Normalized()

	var calc *models.Calculator
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if err := ensureProfile(ctx, tx, userID); err != nil {
			return err
		}

		var id uuid.UUID
		err := tx.QueryRow(ctx,
			`INSERT INTO calculators (user_id, title, description, prompt, spec, is_public, is_template, category, tags)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING id`,
			owner, in.Title, in.Description, in.Prompt, spec, in.IsPublic, in.IsTemplate, in.Category, tags,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to create calculator: %w", err)
		}

		calc, err = getCalculator(ctx, tx, id, userID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("calculator.id", calc.ID))
	return calc, nil
}

// GetCalculator returns a calculator and counts the view. Private calculators
// are only visible to their owner.
func (s *Store) GetCalculator(ctx context.Context, calculatorID, viewerID string) (*models.Calculator, error) {
	ctx, span := s.startSpan(ctx, "get_calculator", attribute.String("calculator.id", calculatorID))
	defer span.End()

	id, err := parseID(calculatorID)
	if err != nil {
		return nil, err
	}

	var calc *models.Calculator
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE calculators SET views_count = views_count + 1
			 WHERE id = $1 AND (is_public OR user_id::text = $2)`,
			id, viewerID,
		)
		if err != nil {
			return fmt.Errorf("failed to count view: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		calc, err = getCalculator(ctx, tx, id, viewerID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordSocialAction(ctx, "view")
	return calc, nil
}

// LoadCalculator returns a calculator without counting a view. The same
// visibility rule as GetCalculator applies.
func (s *Store) LoadCalculator(ctx context.Context, calculatorID, viewerID string) (*models.Calculator, error) {
	ctx, span := s.startSpan(ctx, "load_calculator", attribute.String("calculator.id", calculatorID))
	defer span.End()

	id, err := parseID(calculatorID)
	if err != nil {
		return nil, err
	}
	return scanCalculator(s.pool.QueryRow(ctx,
		calculatorSelect+` WHERE c.id = $2 AND (c.is_public OR c.user_id::text = $1)`,
		viewerID, id,
	))
}

// lockOwner locks the calculator row and checks that userID owns it
func lockOwner(ctx context.Context, tx pgx.Tx, id uuid.UUID, userID string) error {
	var owner string
	err := tx.QueryRow(ctx,
		`SELECT user_id::text FROM calculators WHERE id = $1 FOR UPDATE`, id,
	).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to lock calculator: %w", err)
	}
	if owner != userID {
		return ErrForbidden
	}
	return nil
}

// UpdateCalculator applies a partial update. Only the owner may update.
func (s *Store) UpdateCalculator(ctx context.Context, userID, calculatorID string, in models.UpdateCalculatorInput) (*models.Calculator, error) {
	ctx, span := s.startSpan(ctx, "update_calculator", attribute.String("calculator.id", calculatorID))
	defer span.End()

	id, err := parseID(calculatorID)
	if err != nil {
		return nil, err
	}

	var spec *models.CalculatorSpec
	if in.Spec != nil {
		normalized := in.Spec.Normalized()
		spec = &normalized
	}

	var calc *models.Calculator
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockOwner(ctx, tx, id, userID); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
			UPDATE calculators SET
				title       = COALESCE($2, title),
				description = COALESCE($3, description),
				prompt      = COALESCE($4, prompt),
				spec        = COALESCE($5, spec),
				is_public   = COALESCE($6, is_public),
				is_template = COALESCE($7, is_template),
				category    = COALESCE($8, category),
				tags        = COALESCE($9, tags),
				updated_at  = NOW()
			WHERE id = $1`,
			id, in.Title, in.Description, in.Prompt, spec, in.IsPublic, in.IsTemplate, in.Category, in.Tags,
		)
		if err != nil {
			return fmt.Errorf("failed to update calculator: %w", err)
		}

		calc, err = getCalculator(ctx, tx, id, userID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return calc, nil
}

// DeleteCalculator removes a calculator. Only the owner may delete.
func (s *Store) DeleteCalculator(ctx context.Context, userID, calculatorID string) error {
	ctx, span := s.startSpan(ctx, "delete_calculator", attribute.String("calculator.id", calculatorID))
	defer span.End()

	id, err := parseID(calculatorID)
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockOwner(ctx, tx, id, userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM calculators WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete calculator: %w", err)
		}
		return nil
	})
}

// buildListQuery renders the listing query for f. Arguments start with the viewer id.
func buildListQuery(f models.ListFilter, viewerID string) (string, []any) {
	args := []any{viewerID}
	var where []string

	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if f.UserID != "" {
		add("c.user_id::text = $%d", f.UserID)
	}
	if f.IsPublic != nil {
		add("c.is_public = $%d", *f.IsPublic)
	}
	if f.IsTemplate != nil {
		add("c.is_template = $%d", *f.IsTemplate)
	}
	if f.Category != "" {
		add("c.category = $%d", f.Category)
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		add("(c.title ILIKE $%[1]d OR c.description ILIKE $%[1]d)", "%"+escapeLike(q)+"%")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	query := calculatorSelect
	if len(where) > 0 {
		query += "\n\tWHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf("\n\tORDER BY c.created_at DESC\n\tLIMIT $%d OFFSET $%d", len(args)-1, len(args))

	return query, args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ListCalculators returns calculators matching f, newest first
func (s *Store) ListCalculators(ctx context.Context, f models.ListFilter, viewerID string) ([]*models.Calculator, error) {
	ctx, span := s.startSpan(ctx, "list_calculators")
	defer span.End()

	query, args := buildListQuery(f, viewerID)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query calculators: %w", err)
	}
	defer rows.Close()

	calcs := []*models.Calculator{}
	for rows.Next() {
		calc, err := scanCalculator(rows)
		if err != nil {
			return nil, err
		}
		calcs = append(calcs, calc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating calculators: %w", err)
	}

	span.SetAttributes(attribute.Int("calculators.count", len(calcs)))
	return calcs, nil
}
