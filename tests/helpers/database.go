package helpers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizmatters/calculator-studio/internal/store"
)

// DatabaseURL returns the test database URL. CALC_DATABASE_URL and
// DATABASE_URL win over the individual POSTGRES_* variables.
func DatabaseURL() string {
	for _, key := range []string{"CALC_DATABASE_URL", "DATABASE_URL"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		envOr("POSTGRES_USER", "postgres"),
		envOr("POSTGRES_PASSWORD", "postgres"),
		envOr("POSTGRES_HOST", "localhost"),
		envOr("POSTGRES_PORT", "5432"),
		envOr("POSTGRES_DB", "calculator_studio_test"))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetTestDatabasePool creates a database connection pool for testing
func GetTestDatabasePool(ctx context.Context) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// TestDatabase provides database utilities for testing
type TestDatabase struct {
	Pool  *pgxpool.Pool
	Store *store.Store
	ctx   context.Context
}

// NewTestDatabase connects to the test database and applies the schema.
// The test is skipped when no database is reachable.
func NewTestDatabase(t *testing.T) *TestDatabase {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := GetTestDatabasePool(ctx)
	if err != nil {
		t.Skipf("Skipping: test database unavailable: %v", err)
	}

	if err := ApplyMigrations(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	db := &TestDatabase{Pool: pool, Store: store.New(pool, nil), ctx: context.Background()}
	t.Cleanup(db.Close)
	return db
}

// ApplyMigrations runs the up migrations. They are idempotent.
func ApplyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	files, err := filepath.Glob(filepath.Join(repoRoot(), "migrations", "*.up.sql"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no migrations found under %s", repoRoot())
	}

	for _, f := range files {
		sql, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", f, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("failed to apply %s: %w", filepath.Base(f), err)
		}
	}
	return nil
}

func repoRoot() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..")
}

// Close closes the database connection
func (db *TestDatabase) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.Pool = nil
	}
}

// DeleteUser removes a user; profiles, calculators, likes and forks cascade
func (db *TestDatabase) DeleteUser(t *testing.T, userID string) {
	if _, err := db.Pool.Exec(db.ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
		t.Logf("Warning: Failed to delete test user %s: %v", userID, err)
	}
}

// GetCalculatorCount returns the number of calculators owned by userID
func (db *TestDatabase) GetCalculatorCount(t *testing.T, userID string) int {
	var count int
	err := db.Pool.QueryRow(db.ctx, `SELECT COUNT(*) FROM calculators WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to get calculator count: %v", err)
	}
	return count
}

// GetCounters returns the views, likes and forks counters of a calculator
func (db *TestDatabase) GetCounters(t *testing.T, calculatorID string) (views, likes, forks int) {
	err := db.Pool.QueryRow(db.ctx,
		`SELECT views_count, likes_count, forks_count FROM calculators WHERE id = $1`,
		calculatorID,
	).Scan(&views, &likes, &forks)
	if err != nil {
		t.Fatalf("Failed to get counters: %v", err)
	}
	return views, likes, forks
}
