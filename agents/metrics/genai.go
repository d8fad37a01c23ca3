/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Anomaly names a protocol irregularity observed while reducing a trace stream.
type Anomaly string

const (
	// AnomalyForcedClose is a model input that arrived while a generation was still open.
	AnomalyForcedClose Anomaly = "forced_close"
	// AnomalyOrphanOutput is a model output that arrived with no generation open.
	AnomalyOrphanOutput Anomaly = "orphan_output"
	// AnomalyUnterminated is a generation still open when the stream ended.
	AnomalyUnterminated Anomaly = "unterminated"
)

// GenAI provides OpenTelemetry metrics for generative AI operations.
// It includes counters for token usage (prompt and completion) and generation
// anomalies, with support for graceful degradation if metric creation fails.
type GenAI struct {
	meter            metric.Meter
	promptTokens     metric.Int64Counter
	completionTokens metric.Int64Counter
	anomalies        metric.Int64Counter
	attrEnricher     AttributeEnricher
}

// NewGenAI creates a new GenAI metrics instance with the specified meter name,
// using the global meter provider.
func NewGenAI(meterName string) *GenAI {
	return NewGenAIWithProvider(otel.GetMeterProvider(), meterName)
}

// NewGenAIWithProvider creates a new GenAI metrics instance from the given provider.
// Uses graceful degradation: if any metric counter fails to initialize, logs a warning
// and uses a no-op counter instead of failing entirely.
func NewGenAIWithProvider(mp metric.MeterProvider, meterName string) *GenAI {
	meter := mp.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))

	// Create prompt tokens counter with graceful degradation
	promptTokens, err := meter.Int64Counter("genai.token.prompt",
		metric.WithDescription("The number of prompt tokens used"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create prompt tokens counter, metrics will be disabled", "error", err, "meter", meterName)
		promptTokens = noop.Int64Counter{}
	}

	// Create completion tokens counter with graceful degradation
	completionTokens, err := meter.Int64Counter("genai.token.completion",
		metric.WithDescription("The number of completion tokens used"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create completion tokens counter, metrics will be disabled", "error", err, "meter", meterName)
		completionTokens = noop.Int64Counter{}
	}

	anomalies, err := meter.Int64Counter("genai.generation.anomalies",
		metric.WithDescription("The number of generation protocol anomalies observed"),
		metric.WithUnit("{anomalies}"))
	if err != nil {
		slog.Warn("Failed to create anomaly counter, metrics will be disabled", "error", err, "meter", meterName)
		anomalies = noop.Int64Counter{}
	}

	return &GenAI{
		meter:            meter,
		promptTokens:     promptTokens,
		completionTokens: completionTokens,
		anomalies:        anomalies,
	}
}

// SetAttributeEnricher sets the attribute enricher for this metrics instance.
// The enricher is called before recording each metric to add contextual attributes
// (e.g., agent_id, session_id).
func (m *GenAI) SetAttributeEnricher(enricher AttributeEnricher) {
	m.attrEnricher = enricher
}

// RecordTokens records prompt and completion token usage with optional enrichment.
func (m *GenAI) RecordTokens(ctx context.Context, model string, promptTokens, completionTokens int64, attrs ...attribute.KeyValue) {
	if m == nil {
		return
	}
	baseAttrs := m.attributes(ctx, []attribute.KeyValue{
		attribute.String("model", model),
	}, attrs)

	m.promptTokens.Add(ctx, promptTokens, metric.WithAttributes(baseAttrs...))
	m.completionTokens.Add(ctx, completionTokens, metric.WithAttributes(baseAttrs...))
}

// RecordAnomaly counts a generation anomaly with optional enrichment.
func (m *GenAI) RecordAnomaly(ctx context.Context, model string, anomaly Anomaly, attrs ...attribute.KeyValue) {
	if m == nil {
		return
	}
	baseAttrs := m.attributes(ctx, []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("anomaly", string(anomaly)),
	}, attrs)

	m.anomalies.Add(ctx, 1, metric.WithAttributes(baseAttrs...))
}

func (m *GenAI) attributes(ctx context.Context, base, extra []attribute.KeyValue) []attribute.KeyValue {
	// Enrich with application-specific attributes
	if m.attrEnricher != nil {
		base = m.attrEnricher(ctx, base)
	}
	return append(base, extra...)
}
