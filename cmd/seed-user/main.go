package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/calculator-studio/internal/auth"
	"github.com/bizmatters/calculator-studio/internal/config"
	"github.com/bizmatters/calculator-studio/internal/logging"
	"github.com/bizmatters/calculator-studio/internal/store"
)

// MinPasswordLength is the minimum password length requirement
const MinPasswordLength = 8

var (
	validate  = validator.New()
	hasLetter = regexp.MustCompile(`[a-zA-Z]`)
	hasNumber = regexp.MustCompile(`[0-9]`)
)

type seedOptions struct {
	name       string
	email      string
	password   string
	configFile string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &seedOptions{}
	cmd := &cobra.Command{
		Use:   "seed-user",
		Short: "Create a user account and its profile",
		Long: `Create a user that can log in to the Calculator Studio API.

The password is bcrypt-hashed before it is stored. The database URL comes
from CALC_DATABASE_URL or DATABASE_URL.

Example:
  seed-user --name "Ada Lovelace" --email ada@example.com --password engine42`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "", "Full name of the user (required)")
	cmd.Flags().StringVar(&opts.email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&opts.password, "password", "", "Password (required, min 8 chars)")
	cmd.Flags().StringVar(&opts.configFile, "config", "", "Optional config file")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func runSeed(ctx context.Context, opts *seedOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateInputs(opts.name, opts.email, opts.password); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	tp, err := initTracer()
	if err != nil {
		return err
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := otel.Tracer("seed-user").Start(ctx, "seed_user")
	defer span.End()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	st := store.New(pool, nil)
	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Connected to PostgreSQL database")

	hashed, err := auth.HashPassword(opts.password)
	if err != nil {
		return err
	}

	email := strings.ToLower(strings.TrimSpace(opts.email))
	user, err := st.CreateUser(ctx, strings.TrimSpace(opts.name), email, hashed)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, store.ErrAlreadyExists) {
			return fmt.Errorf("user with email %s already exists", email)
		}
		return err
	}

	logger.Info("Successfully created user",
		zap.String("id", user.ID),
		zap.String("name", user.Name),
		zap.String("email", user.Email))
	return nil
}

// validateInputs validates user input according to security requirements
func validateInputs(name, email, password string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name is required and cannot be empty")
	}

	if err := validate.Var(strings.TrimSpace(email), "required,email"); err != nil {
		return fmt.Errorf("invalid email format: %s", email)
	}

	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLength)
	}

	// at least one letter and one number
	if !hasLetter.MatchString(password) || !hasNumber.MatchString(password) {
		return fmt.Errorf("password must contain at least one letter and one number")
	}

	return nil
}

// initTracer initializes OpenTelemetry tracing
func initTracer() (*trace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := trace.NewTracerProvider(trace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp, nil
}
