// Package telemetry exposes request, token and cost counters for the AI
// pipeline. Counters are registered against the global meter provider, so a
// process without one configured gets no-op instruments.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

// Metrics holds the pipeline's instruments.
type Metrics struct {
	requests     metric.Int64Counter
	failures     metric.Int64Counter
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	costUSD      metric.Float64Counter
}

// New registers the pipeline instruments.
func New() (*Metrics, error) {
	meter := otel.Meter("eaplan/ai")
	m := &Metrics{}
	var err error
	if m.requests, err = meter.Int64Counter("ai.requests",
		metric.WithDescription("Completed provider calls")); err != nil {
		return nil, err
	}
	if m.failures, err = meter.Int64Counter("ai.failures",
		metric.WithDescription("Failed provider calls")); err != nil {
		return nil, err
	}
	if m.inputTokens, err = meter.Int64Counter("ai.tokens.input",
		metric.WithDescription("Input tokens across provider calls")); err != nil {
		return nil, err
	}
	if m.outputTokens, err = meter.Int64Counter("ai.tokens.output",
		metric.WithDescription("Output tokens across provider calls")); err != nil {
		return nil, err
	}
	if m.costUSD, err = meter.Float64Counter("ai.cost.usd",
		metric.WithDescription("Estimated spend in USD")); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordCall counts one successful provider call with its usage and cost.
func (m *Metrics) RecordCall(ctx context.Context, provider models.Provider, model string, usage models.Usage, cost float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", string(provider)),
		attribute.String("model", model),
	)
	m.requests.Add(ctx, 1, attrs)
	m.inputTokens.Add(ctx, int64(usage.InputTokens), attrs)
	m.outputTokens.Add(ctx, int64(usage.OutputTokens), attrs)
	m.costUSD.Add(ctx, cost, attrs)
}

// RecordFailure counts one failed provider call.
func (m *Metrics) RecordFailure(ctx context.Context, provider models.Provider, model string) {
	if m == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", string(provider)),
		attribute.String("model", model),
	))
}
