/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string][]metricdata.DataPoint[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() = %v", err)
	}
	out := make(map[string][]metricdata.DataPoint[int64])
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				out[m.Name] = append(out[m.Name], sum.DataPoints...)
			}
		}
	}
	return out
}

func newTestGenAI() (*GenAI, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return NewGenAIWithProvider(mp, "test"), reader
}

func TestRecordTokens(t *testing.T) {
	m, reader := newTestGenAI()
	ctx := context.Background()

	m.RecordTokens(ctx, "bedrock-agent", 10, 5)
	m.RecordTokens(ctx, "bedrock-agent", 3, 2)

	got := collect(t, reader)
	for name, want := range map[string]int64{
		"genai.token.prompt":     13,
		"genai.token.completion": 7,
	} {
		points := got[name]
		if len(points) != 1 {
			t.Fatalf("%s points: got = %d, wanted = 1", name, len(points))
		}
		if points[0].Value != want {
			t.Errorf("%s: got = %d, wanted = %d", name, points[0].Value, want)
		}
		if v, ok := points[0].Attributes.Value("model"); !ok || v.AsString() != "bedrock-agent" {
			t.Errorf("%s model: got = %v, wanted = bedrock-agent", name, v.AsString())
		}
	}
}

func TestRecordAnomaly(t *testing.T) {
	m, reader := newTestGenAI()
	ctx := context.Background()

	m.RecordAnomaly(ctx, "bedrock-agent", AnomalyForcedClose)
	m.RecordAnomaly(ctx, "bedrock-agent", AnomalyForcedClose)
	m.RecordAnomaly(ctx, "bedrock-agent", AnomalyOrphanOutput)

	counts := map[string]int64{}
	for _, p := range collect(t, reader)["genai.generation.anomalies"] {
		v, _ := p.Attributes.Value("anomaly")
		counts[v.AsString()] = p.Value
	}
	if counts["forced_close"] != 2 {
		t.Errorf("forced_close: got = %d, wanted = 2", counts["forced_close"])
	}
	if counts["orphan_output"] != 1 {
		t.Errorf("orphan_output: got = %d, wanted = 1", counts["orphan_output"])
	}
}

func TestAgentEnricher(t *testing.T) {
	m, reader := newTestGenAI()
	m.SetAttributeEnricher(AgentEnricher)

	ctx := WithAgent(context.Background(), "AGENT", "ALIAS")
	m.RecordTokens(ctx, "bedrock-agent", 1, 1, attribute.String("session_id", "s-1"))

	points := collect(t, reader)["genai.token.prompt"]
	if len(points) != 1 {
		t.Fatalf("points: got = %d, wanted = 1", len(points))
	}
	for key, want := range map[attribute.Key]string{
		"agent_id":       "AGENT",
		"agent_alias_id": "ALIAS",
		"session_id":     "s-1",
	} {
		if v, ok := points[0].Attributes.Value(key); !ok || v.AsString() != want {
			t.Errorf("%s: got = %q, wanted = %q", key, v.AsString(), want)
		}
	}
}

func TestAgentEnricherWithoutAgent(t *testing.T) {
	base := []attribute.KeyValue{attribute.String("model", "m")}
	if got := AgentEnricher(context.Background(), base); len(got) != 1 {
		t.Errorf("len: got = %d, wanted = 1", len(got))
	}
}

func TestNilGenAI(t *testing.T) {
	var m *GenAI
	// Should not panic
	m.RecordTokens(context.Background(), "m", 1, 1)
	m.RecordAnomaly(context.Background(), "m", AnomalyUnterminated)
}
