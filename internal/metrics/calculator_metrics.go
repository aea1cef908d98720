package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("calculator-studio")

// CalculatorMetrics provides metrics collection for the generation and evaluation pipeline
type CalculatorMetrics struct {
	generationsCounter          metric.Int64Counter
	generationDurationHistogram metric.Float64Histogram
	generationsActiveGauge      metric.Int64UpDownCounter
	evaluationsCounter          metric.Int64Counter
	socialActionsCounter        metric.Int64Counter
}

// NewCalculatorMetrics creates the metric instruments on the global meter provider
func NewCalculatorMetrics() (*CalculatorMetrics, error) {
	return NewCalculatorMetricsWithMeter(meter)
}

// NewCalculatorMetricsWithMeter creates the metric instruments on m
func NewCalculatorMetricsWithMeter(m metric.Meter) (*CalculatorMetrics, error) {
	generationsCounter, err := m.Int64Counter(
		"calculator_studio.generations",
		metric.WithDescription("Total number of spec generations by source"),
		metric.WithUnit("{generation}"),
	)
	if err != nil {
		return nil, err
	}

	generationDurationHistogram, err := m.Float64Histogram(
		"calculator_studio.generation.duration",
		metric.WithDescription("Duration of spec generation in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	generationsActiveGauge, err := m.Int64UpDownCounter(
		"calculator_studio.generations.active",
		metric.WithDescription("Number of generations currently in flight"),
		metric.WithUnit("{generation}"),
	)
	if err != nil {
		return nil, err
	}

	evaluationsCounter, err := m.Int64Counter(
		"calculator_studio.evaluations",
		metric.WithDescription("Total number of calculator evaluations by kind and outcome"),
		metric.WithUnit("{evaluation}"),
	)
	if err != nil {
		return nil, err
	}

	socialActionsCounter, err := m.Int64Counter(
		"calculator_studio.social_actions",
		metric.WithDescription("Total number of views, likes, unlikes and forks"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		return nil, err
	}

	return &CalculatorMetrics{
		generationsCounter:          generationsCounter,
		generationDurationHistogram: generationDurationHistogram,
		generationsActiveGauge:      generationsActiveGauge,
		evaluationsCounter:          evaluationsCounter,
		socialActionsCounter:        socialActionsCounter,
	}, nil
}

// RecordGenerationStarted marks a generation as in flight
func (cm *CalculatorMetrics) RecordGenerationStarted(ctx context.Context, provider string) {
	if cm == nil {
		return
	}
	cm.generationsActiveGauge.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordGenerationFinished records the outcome of a generation.
// source is "model" or "fallback"; reason is empty for model results.
func (cm *CalculatorMetrics) RecordGenerationFinished(ctx context.Context, provider, source, reason string, duration time.Duration) {
	if cm == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("provider", provider),
		attribute.String("source", source),
	}
	if reason != "" {
		attrs = append(attrs, attribute.String("fallback.reason", reason))
	}

	cm.generationsCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	cm.generationDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("source", source),
		),
	)
	cm.generationsActiveGauge.Add(ctx, -1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordEvaluation records one evaluation with its calculator kind and status
func (cm *CalculatorMetrics) RecordEvaluation(ctx context.Context, kind, status string) {
	if cm == nil {
		return
	}
	cm.evaluationsCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("calculator.kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordSocialAction records a view, like, unlike or fork
func (cm *CalculatorMetrics) RecordSocialAction(ctx context.Context, action string) {
	if cm == nil {
		return
	}
	cm.socialActionsCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("action", action)),
	)
}
