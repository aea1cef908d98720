// Package specgen turns a natural-language prompt into a CalculatorSpec using a
// remote language model, degrading to a static keyword table whenever the model
// is unavailable or its answer cannot be used.
package specgen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/calculator-studio/internal/config"
	"github.com/bizmatters/calculator-studio/internal/metrics"
	"github.com/bizmatters/calculator-studio/internal/models"
)

// Fallback reasons reported in GenerationResult.Reason
const (
	ReasonNoCredential  = "no credential configured"
	ReasonCircuitOpen   = "provider circuit open"
	ReasonProviderError = "provider request failed"
	ReasonInvalidOutput = "invalid model output"
	ReasonInternalError = "internal error"
)

const noProvider = "none"

// Generator produces calculator specs. Generate never fails.
type Generator struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
	fallback *FallbackTable
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *metrics.CalculatorMetrics
	tracer   trace.Tracer
}

// Option configures a Generator
type Option func(*Generator)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(g *Generator) { g.logger = logger }
}

// WithMetrics sets the metric instruments
func WithMetrics(m *metrics.CalculatorMetrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// WithFallbackTable replaces the built-in fallback table
func WithFallbackTable(t *FallbackTable) Option {
	return func(g *Generator) { g.fallback = t }
}

// WithTimeout bounds each provider call
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) { g.timeout = d }
}

// WithBreaker replaces the default circuit breaker settings
func WithBreaker(cfg config.BreakerConfig) Option {
	return func(g *Generator) { g.breaker = newBreaker(cfg, g.logger) }
}

// NewGenerator creates a generator around provider. A nil provider means every
// request is served from the fallback table.
func NewGenerator(provider Provider, opts ...Option) *Generator {
	g := &Generator{
		provider: provider,
		fallback: NewFallbackTable(),
		timeout:  30 * time.Second,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer("spec-generator"),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.breaker == nil {
		g.breaker = newBreaker(config.BreakerConfig{
			MaxRequests:         3,
			Interval:            60 * time.Second,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 5,
		}, g.logger)
	}
	return g
}

// New builds a generator from configuration
func New(ctx context.Context, cfg config.GeneratorConfig, logger *zap.Logger, m *metrics.CalculatorMetrics) (*Generator, error) {
	provider, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		logger.Warn("No generator API key configured, every request will use the fallback table",
			zap.String("provider", cfg.Provider))
	}

	var extra []Family
	if cfg.FallbackFile != "" {
		extra, err = LoadFallbackFile(cfg.FallbackFile)
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded extra fallback families",
			zap.String("file", cfg.FallbackFile),
			zap.Int("count", len(extra)))
	}

	return NewGenerator(provider,
		WithLogger(logger),
		WithMetrics(m),
		WithTimeout(cfg.Timeout),
		WithFallbackTable(NewFallbackTable(extra...)),
		WithBreaker(cfg.Breaker),
	), nil
}

func newBreaker(cfg config.BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := gobreaker.Settings{
		Name:        "spec-generator",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return gobreaker.NewCircuitBreaker(settings)
}

// ProviderName returns the configured provider name, or "none"
func (g *Generator) ProviderName() string {
	if g.provider == nil {
		return noProvider
	}
	return g.provider.Name()
}

// HasProvider reports whether a remote provider is configured
func (g *Generator) HasProvider() bool {
	return g.provider != nil
}

// BreakerState returns the circuit breaker state name
func (g *Generator) BreakerState() string {
	return g.breaker.State().String()
}

// Generate returns a spec for prompt, from the model when possible and from
// the fallback table otherwise
func (g *Generator) Generate(ctx context.Context, prompt string) (result models.GenerationResult) {
	ctx, span := g.tracer.Start(ctx, "spec_generator.generate")
	defer span.End()

	start := time.Now()
	provider := g.ProviderName()
	g.metrics.RecordGenerationStarted(ctx, provider)

	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Spec generation panicked", zap.Any("panic", r))
			result = g.fallbackResult(prompt, ReasonInternalError)
		}
		span.SetAttributes(
			attribute.String("provider", provider),
			attribute.String("source", string(result.Source)),
			attribute.String("title", result.Spec.Title),
		)
		g.metrics.RecordGenerationFinished(ctx, provider, string(result.Source), result.Reason, time.Since(start))
	}()

	if g.provider == nil {
		return g.fallbackResult(prompt, ReasonNoCredential)
	}

	text, err := g.complete(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		reason := ReasonProviderError
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			reason = ReasonCircuitOpen
		}
		g.logger.Warn("Spec generation request failed, using fallback",
			zap.String("provider", provider),
			zap.String("reason", reason),
			zap.Error(err))
		return g.fallbackResult(prompt, reason)
	}

	spec, err := ParseSpec(text)
	if err != nil {
		span.RecordError(err)
		g.logger.Warn("Model returned an unusable spec, using fallback",
			zap.String("provider", provider),
			zap.Error(err))
		return g.fallbackResult(prompt, ReasonInvalidOutput)
	}

	g.logger.Info("Generated calculator spec",
		zap.String("provider", provider),
		zap.String("title", spec.Title),
		zap.String("kind", string(spec.Kind)),
		zap.Int("fields", len(spec.Fields)))

	return models.GenerationResult{
		Spec:     spec,
		Source:   models.SourceModel,
		Provider: provider,
	}
}

func (g *Generator) complete(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.provider.Complete(ctx, SystemPrompt, UserPrompt(prompt))
	})
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", g.provider.Name(), err)
	}
	return out.(string), nil
}

func (g *Generator) fallbackResult(prompt, reason string) models.GenerationResult {
	spec, family := g.fallback.Lookup(prompt)
	g.logger.Debug("Serving fallback spec",
		zap.String("family", family),
		zap.String("reason", reason))
	return models.GenerationResult{
		Spec:     spec,
		Source:   models.SourceFallback,
		Provider: g.ProviderName(),
		Reason:   reason,
	}
}

// TestConnection reports whether the provider is configured and reachable
func (g *Generator) TestConnection(ctx context.Context) bool {
	if g.provider == nil {
		return false
	}

	ctx, span := g.tracer.Start(ctx, "spec_generator.test_connection")
	defer span.End()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if err := g.provider.Ping(ctx); err != nil {
		span.RecordError(err)
		g.logger.Warn("Generator connection test failed",
			zap.String("provider", g.provider.Name()),
			zap.Error(err))
		return false
	}
	return true
}
