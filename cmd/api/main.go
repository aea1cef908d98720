package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/calculator-studio/internal/auth"
	"github.com/bizmatters/calculator-studio/internal/config"
	"github.com/bizmatters/calculator-studio/internal/gateway"
	"github.com/bizmatters/calculator-studio/internal/logging"
	"github.com/bizmatters/calculator-studio/internal/metrics"
	"github.com/bizmatters/calculator-studio/internal/session"
	"github.com/bizmatters/calculator-studio/internal/specgen"
	"github.com/bizmatters/calculator-studio/internal/store"

	_ "github.com/bizmatters/calculator-studio/docs" // swagger docs
)

// @title Calculator Studio API
// @version 1.0
// @description Generates calculator specs from natural-language prompts, evaluates them and stores a shareable gallery.

// @contact.name API Support
// @contact.email support@bizmatters.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the JWT token.

const (
	sessionPruneInterval = 10 * time.Minute
	sessionMaxIdle       = time.Hour
)

func main() {
	cfg, err := config.Load(os.Getenv("CALC_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := initTracer()
	if err != nil {
		return err
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	pool, err := connectDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	calcMetrics, err := metrics.NewCalculatorMetrics()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	generator, err := specgen.New(ctx, cfg.Generator, logger, calcMetrics)
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}
	logger.Info("Spec generator ready",
		zap.String("provider", generator.ProviderName()),
		zap.Bool("configured", generator.HasProvider()))

	jwtManager, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT manager: %w", err)
	}

	sessions := session.NewManager()
	sessions.StartPruning(ctx, sessionPruneInterval, sessionMaxIdle)

	handler := gateway.NewHandler(store.New(pool, calcMetrics), generator, sessions, jwtManager, calcMetrics, logger)

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinMiddleware(logger))
	gateway.RegisterRoutes(router, handler, auth.NewMiddleware(jwtManager, logger))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting Calculator Studio API server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited")
	return nil
}

// connectDatabase opens the pool, retrying while the database starts up
func connectDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	logger.Info("Connecting to PostgreSQL database...")

	var lastErr error
	for i := 0; i < cfg.ConnectAttempts; i++ {
		pool, err := pgxpool.New(ctx, cfg.URL)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				logger.Info("Connected to PostgreSQL database")
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err
		logger.Warn("Waiting for database...",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", cfg.ConnectAttempts),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.RetryDelay):
		}
	}
	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", cfg.ConnectAttempts, lastErr)
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
