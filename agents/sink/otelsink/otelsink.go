/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package otelsink

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"chainguard.dev/bedrocktrace/agents/payload"
	"chainguard.dev/bedrocktrace/agents/sink"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "chainguard.dev/bedrocktrace/agents/sink/otelsink"

// maxAttributeLen bounds rendered inputs and outputs attached as attributes.
const maxAttributeLen = 4096

// ErrEnded is returned when an operation targets a span that was already ended.
var ErrEnded = errors.New("span already ended")

// Option configures the sink.
type Option func(*Sink)

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp oteltrace.TracerProvider) Option {
	return func(s *Sink) {
		s.tracer = tp.Tracer(instrumentationName, oteltrace.WithInstrumentationVersion("1.0.0"))
	}
}

// Sink maps trace trees onto OpenTelemetry spans.
// Top-level spans become root spans of an otel trace; the sink's trace identity
// is carried as the session.id attribute.
type Sink struct {
	tracer oteltrace.Tracer
}

var _ sink.Sink = (*Sink)(nil)

// New creates a sink that uses the global tracer provider unless overridden.
func New(opts ...Option) *Sink {
	s := &Sink{
		tracer: otel.Tracer(instrumentationName, oteltrace.WithInstrumentationVersion("1.0.0")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTrace implements sink.Sink
func (s *Sink) CreateTrace(ctx context.Context, params sink.TraceParams) (sink.Trace, error) {
	if params.ID == "" {
		return nil, errors.New("trace id is required")
	}
	return &traceHandle{
		ctx:      ctx,
		tracer:   s.tracer,
		params:   params,
		metadata: maps.Clone(params.Metadata),
	}, nil
}

type traceHandle struct {
	ctx    context.Context
	tracer oteltrace.Tracer
	params sink.TraceParams

	mu       sync.Mutex
	metadata map[string]any
	spans    []*spanHandle
}

// ID implements sink.Trace
func (t *traceHandle) ID() string { return t.params.ID }

// Span implements sink.Trace
func (t *traceHandle) Span(name string, input any) (sink.Span, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	attrs := []attribute.KeyValue{
		attribute.String("session.id", t.params.ID),
		attribute.String("trace.name", t.params.Name),
		attribute.String("input", render(input)),
	}
	attrs = append(attrs, toAttributes("trace.metadata.", t.metadata)...)

	opts := []oteltrace.SpanStartOption{oteltrace.WithAttributes(attrs...)}
	if !t.params.Timestamp.IsZero() {
		opts = append(opts, oteltrace.WithTimestamp(t.params.Timestamp))
	}

	ctx, span := t.tracer.Start(t.ctx, name, opts...)
	h := &spanHandle{ctx: ctx, tracer: t.tracer, span: span}
	t.spans = append(t.spans, h)
	return h, nil
}

// Update implements sink.Trace
func (t *traceHandle) Update(metadata map[string]any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.metadata == nil {
		t.metadata = make(map[string]any, len(metadata))
	}
	maps.Copy(t.metadata, metadata)

	attrs := toAttributes("trace.metadata.", metadata)
	for _, s := range t.spans {
		s.setAttributes(attrs...)
	}
	return nil
}

type spanHandle struct {
	ctx    context.Context
	tracer oteltrace.Tracer

	mu    sync.Mutex // Protects ended
	span  oteltrace.Span
	ended bool
}

// Generation implements sink.Span
func (s *spanHandle) Generation(params sink.GenerationParams) (sink.Generation, error) {
	attrs := []attribute.KeyValue{
		attribute.String("gen_ai.system", "aws.bedrock"),
		attribute.String("gen_ai.request.model", params.Model),
		attribute.String("input", render(params.Input)),
	}
	attrs = append(attrs, toAttributes("gen_ai.request.", params.ModelParameters)...)
	attrs = append(attrs, toAttributes("metadata.", params.Metadata)...)

	_, span, err := s.start(params.Name, attrs)
	if err != nil {
		return nil, err
	}
	return &generationHandle{span: span}, nil
}

// Event implements sink.Span
func (s *spanHandle) Event(params sink.EventParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return fmt.Errorf("adding event %q: %w", params.Name, ErrEnded)
	}

	attrs := []attribute.KeyValue{attribute.String("input", render(params.Input))}
	attrs = append(attrs, toAttributes("metadata.", params.Metadata)...)
	s.span.AddEvent(params.Name, oteltrace.WithAttributes(attrs...))
	return nil
}

// Span implements sink.Span
func (s *spanHandle) Span(params sink.SpanParams) (sink.Span, error) {
	attrs := []attribute.KeyValue{attribute.String("input", render(params.Input))}
	attrs = append(attrs, toAttributes("metadata.", params.Metadata)...)

	ctx, span, err := s.start(params.Name, attrs)
	if err != nil {
		return nil, err
	}
	return &spanHandle{ctx: ctx, tracer: s.tracer, span: span}, nil
}

// End implements sink.Span
func (s *spanHandle) End(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrEnded
	}
	s.ended = true

	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
	return nil
}

func (s *spanHandle) start(name string, attrs []attribute.KeyValue) (context.Context, oteltrace.Span, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return nil, nil, fmt.Errorf("starting %q: %w", name, ErrEnded)
	}
	ctx, span := s.tracer.Start(s.ctx, name, oteltrace.WithAttributes(attrs...))
	return ctx, span, nil
}

func (s *spanHandle) setAttributes(attrs ...attribute.KeyValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.span.SetAttributes(attrs...)
	}
}

type generationHandle struct {
	mu    sync.Mutex
	span  oteltrace.Span
	ended bool
}

// End implements sink.Generation
func (g *generationHandle) End(output any, usage sink.Usage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ended {
		return ErrEnded
	}
	g.ended = true

	g.span.SetAttributes(attribute.String("output", render(output)))
	if !usage.IsZero() {
		// Token usage on the span itself allows viewing consumption without
		// cross-referencing metrics.
		g.span.SetAttributes(
			attribute.Int64("gen_ai.usage.input_tokens", usage.Input),
			attribute.Int64("gen_ai.usage.output_tokens", usage.Output),
			attribute.Int64("gen_ai.usage.total_tokens", usage.Input+usage.Output),
			attribute.String("gen_ai.usage.unit", usage.Unit),
		)
	}
	g.span.SetStatus(codes.Ok, "")
	g.span.End()
	return nil
}

func render(v any) string {
	var s string
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		s = v
	default:
		s = payload.Render(v)
	}
	return payload.Truncate(s, maxAttributeLen)
}

func toAttributes(prefix string, m map[string]any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(m))
	for k, v := range m {
		key := prefix + k
		switch v := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(key, v))
		case bool:
			attrs = append(attrs, attribute.Bool(key, v))
		case int:
			attrs = append(attrs, attribute.Int(key, v))
		case int64:
			attrs = append(attrs, attribute.Int64(key, v))
		case float64:
			attrs = append(attrs, attribute.Float64(key, v))
		case []string:
			attrs = append(attrs, attribute.StringSlice(key, v))
		default:
			attrs = append(attrs, attribute.String(key, render(v)))
		}
	}
	return attrs
}
