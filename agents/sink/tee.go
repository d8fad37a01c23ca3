/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package sink

import (
	"context"
	"errors"
)

// Tee returns a Sink that forwards every operation to all of sinks.
// The trace ID of the first sink is reported. An operation fails if any of the
// sinks fails. When opening a span or generation fails, the ones already
// opened on earlier sinks are ended before the error is returned.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

type tee []Sink

// CreateTrace implements Sink
func (t tee) CreateTrace(ctx context.Context, params TraceParams) (Trace, error) {
	traces := make(teeTrace, 0, len(t))
	for _, s := range t {
		tr, err := s.CreateTrace(ctx, params)
		if err != nil {
			return nil, err
		}
		traces = append(traces, tr)
	}
	return traces, nil
}

type teeTrace []Trace

// ID implements Trace
func (t teeTrace) ID() string {
	if len(t) == 0 {
		return ""
	}
	return t[0].ID()
}

// Span implements Trace
func (t teeTrace) Span(name string, input any) (Span, error) {
	spans := make(teeSpan, 0, len(t))
	for _, tr := range t {
		s, err := tr.Span(name, input)
		if err != nil {
			return nil, spans.abandon(err)
		}
		spans = append(spans, s)
	}
	return spans, nil
}

// Update implements Trace
func (t teeTrace) Update(metadata map[string]any) error {
	var errs []error
	for _, tr := range t {
		errs = append(errs, tr.Update(metadata))
	}
	return errors.Join(errs...)
}

type teeSpan []Span

// Generation implements Span
func (t teeSpan) Generation(params GenerationParams) (Generation, error) {
	gens := make(teeGeneration, 0, len(t))
	for _, s := range t {
		g, err := s.Generation(params)
		if err != nil {
			return nil, gens.abandon(err)
		}
		gens = append(gens, g)
	}
	return gens, nil
}

// Event implements Span
func (t teeSpan) Event(params EventParams) error {
	var errs []error
	for _, s := range t {
		errs = append(errs, s.Event(params))
	}
	return errors.Join(errs...)
}

// Span implements Span
func (t teeSpan) Span(params SpanParams) (Span, error) {
	spans := make(teeSpan, 0, len(t))
	for _, s := range t {
		child, err := s.Span(params)
		if err != nil {
			return nil, spans.abandon(err)
		}
		spans = append(spans, child)
	}
	return spans, nil
}

// End implements Span
func (t teeSpan) End(err error) error {
	var errs []error
	for _, s := range t {
		errs = append(errs, s.End(err))
	}
	return errors.Join(errs...)
}

// abandon ends the spans opened so far with cause and returns cause joined
// with any errors from ending them.
func (t teeSpan) abandon(cause error) error {
	return errors.Join(cause, t.End(cause))
}

type teeGeneration []Generation

// End implements Generation
func (t teeGeneration) End(output any, usage Usage) error {
	var errs []error
	for _, g := range t {
		errs = append(errs, g.End(output, usage))
	}
	return errors.Join(errs...)
}

func (t teeGeneration) abandon(cause error) error {
	return errors.Join(cause, t.End("", Usage{}))
}
