/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package otelsink

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"chainguard.dev/bedrocktrace/agents/sink"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setup(t *testing.T) (*Sink, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return New(WithTracerProvider(tp)), sr
}

func attr(kvs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range kvs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func byName(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, s := range spans {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

func TestTree(t *testing.T) {
	s, sr := setup(t)

	tr, err := s.CreateTrace(context.Background(), sink.TraceParams{
		ID:       "session-1",
		Name:     "Bedrock Agent Invocation",
		Input:    "hello",
		Metadata: map[string]any{"agent_id": "AGENT"},
	})
	if err != nil {
		t.Fatalf("CreateTrace() = %v", err)
	}
	if got := tr.ID(); got != "session-1" {
		t.Errorf("ID(): got = %q, wanted = %q", got, "session-1")
	}

	root, err := tr.Span("orchestration", "hello")
	if err != nil {
		t.Fatalf("Span() = %v", err)
	}
	gen, err := root.Generation(sink.GenerationParams{
		Name:            "model_invocation",
		Model:           "bedrock-agent",
		ModelParameters: map[string]any{"temperature": 0.5},
		Input:           "prompt",
		Metadata:        map[string]any{"trace_id": "t-0"},
	})
	if err != nil {
		t.Fatalf("Generation() = %v", err)
	}
	if err := gen.End(map[string]any{"content": "ok"}, sink.Usage{Input: 10, Output: 5, Unit: sink.UnitTokens}); err != nil {
		t.Fatalf("Generation.End() = %v", err)
	}
	if err := root.Event(sink.EventParams{Name: "rationale", Input: "because", Metadata: map[string]any{"trace_id": "t-0"}}); err != nil {
		t.Fatalf("Event() = %v", err)
	}
	child, err := root.Span(sink.SpanParams{Name: "collaborator_billing", Input: map[string]any{"a": 1.0}})
	if err != nil {
		t.Fatalf("Span() = %v", err)
	}
	if err := child.End(nil); err != nil {
		t.Fatalf("child End() = %v", err)
	}
	if err := root.End(nil); err != nil {
		t.Fatalf("root End() = %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 3 {
		t.Fatalf("ended spans: got = %d, wanted = 3", len(spans))
	}

	rootSpan := byName(spans, "orchestration")
	genSpan := byName(spans, "model_invocation")
	childSpan := byName(spans, "collaborator_billing")
	if rootSpan == nil || genSpan == nil || childSpan == nil {
		t.Fatalf("missing spans: %v", spans)
	}

	for _, s := range []sdktrace.ReadOnlySpan{genSpan, childSpan} {
		if got, want := s.Parent().SpanID(), rootSpan.SpanContext().SpanID(); got != want {
			t.Errorf("%s parent: got = %v, wanted = %v", s.Name(), got, want)
		}
	}

	if v, ok := attr(rootSpan.Attributes(), "session.id"); !ok || v.AsString() != "session-1" {
		t.Errorf("session.id: got = %v, wanted = session-1", v.AsString())
	}
	if v, ok := attr(rootSpan.Attributes(), "trace.metadata.agent_id"); !ok || v.AsString() != "AGENT" {
		t.Errorf("trace.metadata.agent_id: got = %v, wanted = AGENT", v.AsString())
	}
	if v, ok := attr(genSpan.Attributes(), "gen_ai.usage.input_tokens"); !ok || v.AsInt64() != 10 {
		t.Errorf("input_tokens: got = %v, wanted = 10", v.AsInt64())
	}
	if v, ok := attr(genSpan.Attributes(), "gen_ai.request.temperature"); !ok || v.AsFloat64() != 0.5 {
		t.Errorf("temperature: got = %v, wanted = 0.5", v.AsFloat64())
	}
	if v, ok := attr(genSpan.Attributes(), "output"); !ok || v.AsString() != `{"content":"ok"}` {
		t.Errorf("output: got = %q, wanted = %q", v.AsString(), `{"content":"ok"}`)
	}
	if v, ok := attr(childSpan.Attributes(), "input"); !ok || v.AsString() != `{"a":1}` {
		t.Errorf("child input: got = %q, wanted = %q", v.AsString(), `{"a":1}`)
	}

	events := rootSpan.Events()
	if len(events) != 1 || events[0].Name != "rationale" {
		t.Fatalf("events: got = %v, wanted = [rationale]", events)
	}
	if v, ok := attr(events[0].Attributes, "metadata.trace_id"); !ok || v.AsString() != "t-0" {
		t.Errorf("event trace_id: got = %v, wanted = t-0", v.AsString())
	}
	if got := rootSpan.Status().Code; got != codes.Ok {
		t.Errorf("root status: got = %v, wanted = %v", got, codes.Ok)
	}
}

func TestEmptyUsageIsOmitted(t *testing.T) {
	s, sr := setup(t)
	tr, _ := s.CreateTrace(context.Background(), sink.TraceParams{ID: "session-1"})
	root, _ := tr.Span("orchestration", "")
	gen, _ := root.Generation(sink.GenerationParams{Name: "model_invocation"})
	_ = gen.End("", sink.Usage{})

	span := byName(sr.Ended(), "model_invocation")
	if span == nil {
		t.Fatal("model_invocation was not ended")
	}
	if _, ok := attr(span.Attributes(), "gen_ai.usage.input_tokens"); ok {
		t.Error("input_tokens: got = present, wanted = absent")
	}
}

func TestEndWithError(t *testing.T) {
	s, sr := setup(t)
	tr, _ := s.CreateTrace(context.Background(), sink.TraceParams{ID: "session-1"})
	root, _ := tr.Span("orchestration", "")

	if err := root.End(errors.New("stream reset")); err != nil {
		t.Fatalf("End() = %v", err)
	}
	if err := root.End(nil); !errors.Is(err, ErrEnded) {
		t.Errorf("second End(): got = %v, wanted = %v", err, ErrEnded)
	}
	if err := root.Event(sink.EventParams{Name: "late"}); !errors.Is(err, ErrEnded) {
		t.Errorf("Event() after End: got = %v, wanted = %v", err, ErrEnded)
	}
	if _, err := root.Span(sink.SpanParams{Name: "late"}); !errors.Is(err, ErrEnded) {
		t.Errorf("Span() after End: got = %v, wanted = %v", err, ErrEnded)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans: got = %d, wanted = 1", len(spans))
	}
	status := spans[0].Status()
	if status.Code != codes.Error || status.Description != "stream reset" {
		t.Errorf("status: got = %+v, wanted = Error(stream reset)", status)
	}
	if len(spans[0].Events()) != 1 || spans[0].Events()[0].Name != "exception" {
		t.Errorf("events: got = %v, wanted = [exception]", spans[0].Events())
	}
}

func TestUpdate(t *testing.T) {
	s, sr := setup(t)
	tr, _ := s.CreateTrace(context.Background(), sink.TraceParams{ID: "session-1"})
	root, _ := tr.Span("orchestration", "")

	if err := tr.Update(map[string]any{"error": "denied"}); err != nil {
		t.Fatalf("Update() = %v", err)
	}
	_ = root.End(nil)

	// Updates after every span ended are kept but have nowhere to go.
	if err := tr.Update(map[string]any{"late": true}); err != nil {
		t.Fatalf("Update() = %v", err)
	}

	span := sr.Ended()[0]
	if v, ok := attr(span.Attributes(), "trace.metadata.error"); !ok || v.AsString() != "denied" {
		t.Errorf("trace.metadata.error: got = %v, wanted = denied", v.AsString())
	}
	if _, ok := attr(span.Attributes(), "trace.metadata.late"); ok {
		t.Error("trace.metadata.late: got = present, wanted = absent")
	}
}

func TestCreateTraceRequiresID(t *testing.T) {
	s, _ := setup(t)
	if _, err := s.CreateTrace(context.Background(), sink.TraceParams{}); err == nil {
		t.Error("CreateTrace(): got = nil, wanted = error")
	}
}

func TestRenderTruncates(t *testing.T) {
	got := render(strings.Repeat("x", maxAttributeLen+10))
	if len(got) != maxAttributeLen {
		t.Errorf("len(render()): got = %d, wanted = %d", len(got), maxAttributeLen)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("render(): got suffix %q, wanted %q", got[len(got)-3:], "...")
	}
	if got := render(nil); got != "" {
		t.Errorf("render(nil): got = %q, wanted = empty", got)
	}
}

func TestMultibyteInputStaysValid(t *testing.T) {
	s, sr := setup(t)
	tr, _ := s.CreateTrace(context.Background(), sink.TraceParams{ID: "session-1"})
	root, _ := tr.Span("orchestration", "")
	gen, err := root.Generation(sink.GenerationParams{
		Name:  "model_invocation",
		Input: "ab" + strings.Repeat("エ", 2000),
	})
	if err != nil {
		t.Fatalf("Generation() = %v", err)
	}
	_ = gen.End("", sink.Usage{})

	span := byName(sr.Ended(), "model_invocation")
	if span == nil {
		t.Fatal("model_invocation was not ended")
	}
	v, ok := attr(span.Attributes(), "input")
	if !ok {
		t.Fatal("input: got = absent, wanted = present")
	}
	got := v.AsString()
	if !utf8.ValidString(got) {
		t.Errorf("input: got invalid UTF-8 (len %d)", len(got))
	}
	if len(got) > maxAttributeLen {
		t.Errorf("len(input): got = %d, wanted <= %d", len(got), maxAttributeLen)
	}
	if !strings.HasSuffix(got, "エ...") {
		t.Errorf("input: got suffix %q, wanted %q", got[len(got)-6:], "エ...")
	}
}

func TestToAttributes(t *testing.T) {
	attrs := toAttributes("p.", map[string]any{
		"s": "v",
		"b": true,
		"i": 3,
		"f": 1.5,
		"m": map[string]any{"k": "v"},
	})
	if len(attrs) != 5 {
		t.Fatalf("len: got = %d, wanted = 5", len(attrs))
	}
	if v, _ := attr(attrs, "p.b"); v.Type() != attribute.BOOL {
		t.Errorf("p.b type: got = %v, wanted = BOOL", v.Type())
	}
	if v, _ := attr(attrs, "p.i"); v.AsInt64() != 3 {
		t.Errorf("p.i: got = %v, wanted = 3", v.AsInt64())
	}
	if v, _ := attr(attrs, "p.m"); v.AsString() != `{"k":"v"}` {
		t.Errorf("p.m: got = %q, wanted = %q", v.AsString(), `{"k":"v"}`)
	}
}
