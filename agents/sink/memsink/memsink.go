/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package memsink

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"chainguard.dev/bedrocktrace/agents/sink"
	"golang.org/x/sync/errgroup"
)

// ErrEnded is returned when an operation targets a span or generation that was already closed.
var ErrEnded = errors.New("observation already ended")

// ObservationType distinguishes the kinds of nodes in a recorded tree.
type ObservationType string

const (
	TypeSpan       ObservationType = "SPAN"
	TypeGeneration ObservationType = "GENERATION"
	TypeEvent      ObservationType = "EVENT"
)

// Observation is a recorded span, generation or point event.
type Observation struct {
	Type            ObservationType `json:"type"`
	Name            string          `json:"name"`
	Input           any             `json:"input,omitempty"`
	Output          any             `json:"output,omitempty"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
	Model           string          `json:"model,omitempty"`
	ModelParameters map[string]any  `json:"modelParameters,omitempty"`
	Usage           *sink.Usage     `json:"usage,omitempty"`
	Error           string          `json:"error,omitempty"`
	StartTime       time.Time       `json:"startTime"`
	EndTime         time.Time       `json:"endTime"`
	Children        []*Observation  `json:"children,omitempty"`
}

// Ended reports whether the observation was closed.
func (o *Observation) Ended() bool { return !o.EndTime.IsZero() }

// Trace is a recorded trace.
type Trace struct {
	TraceID   string         `json:"id"`
	Name      string         `json:"name"`
	Input     any            `json:"input,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Spans     []*Observation `json:"spans"`

	sink *Sink
	mu   sync.Mutex // Protects the whole tree below this trace
}

// Callback receives a trace when one of its top-level spans ends.
type Callback func(*Trace)

// Sink records traces in memory.
type Sink struct {
	callbacks []Callback

	mu     sync.Mutex
	traces []*Trace
}

var _ sink.Sink = (*Sink)(nil)

// New creates an in-memory sink that invokes callbacks whenever a top-level
// span of a trace ends.
func New(callbacks ...Callback) *Sink {
	return &Sink{callbacks: callbacks}
}

// CreateTrace implements sink.Sink
func (s *Sink) CreateTrace(_ context.Context, params sink.TraceParams) (sink.Trace, error) {
	if params.ID == "" {
		return nil, errors.New("trace id is required")
	}
	ts := params.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	t := &Trace{
		TraceID:   params.ID,
		Name:      params.Name,
		Input:     params.Input,
		Metadata:  clone(params.Metadata),
		Timestamp: ts,
		Spans:     []*Observation{},
		sink:      s,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces = append(s.traces, t)
	return &traceHandle{trace: t}, nil
}

// Traces returns the recorded traces in creation order.
func (s *Sink) Traces() []*Trace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Trace(nil), s.traces...)
}

// Trace returns the recorded trace with the given id, or nil.
func (s *Sink) Trace(id string) *Trace {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.traces {
		if t.TraceID == id {
			return t
		}
	}
	return nil
}

// record invokes all callbacks with the trace in parallel
func (s *Sink) record(t *Trace) {
	g := new(errgroup.Group)
	for _, callback := range s.callbacks {
		if callback != nil {
			g.Go(func() error {
				callback(t)
				return nil
			})
		}
	}
	// Callbacks always return nil.
	_ = g.Wait()
}

type traceHandle struct {
	trace *Trace
}

// ID implements sink.Trace
func (h *traceHandle) ID() string { return h.trace.TraceID }

// Span implements sink.Trace
func (h *traceHandle) Span(name string, input any) (sink.Span, error) {
	o := &Observation{
		Type:      TypeSpan,
		Name:      name,
		Input:     input,
		StartTime: time.Now(),
	}

	h.trace.mu.Lock()
	defer h.trace.mu.Unlock()
	h.trace.Spans = append(h.trace.Spans, o)
	return &spanHandle{trace: h.trace, obs: o, topLevel: true}, nil
}

// Update implements sink.Trace
func (h *traceHandle) Update(metadata map[string]any) error {
	h.trace.mu.Lock()
	defer h.trace.mu.Unlock()
	if h.trace.Metadata == nil {
		h.trace.Metadata = make(map[string]any, len(metadata))
	}
	maps.Copy(h.trace.Metadata, metadata)
	return nil
}

type spanHandle struct {
	trace    *Trace
	obs      *Observation
	topLevel bool
}

// Generation implements sink.Span
func (h *spanHandle) Generation(params sink.GenerationParams) (sink.Generation, error) {
	o := &Observation{
		Type:            TypeGeneration,
		Name:            params.Name,
		Input:           params.Input,
		Metadata:        clone(params.Metadata),
		Model:           params.Model,
		ModelParameters: clone(params.ModelParameters),
		StartTime:       time.Now(),
	}
	if err := h.appendChild(o); err != nil {
		return nil, err
	}
	return &generationHandle{trace: h.trace, obs: o}, nil
}

// Event implements sink.Span
func (h *spanHandle) Event(params sink.EventParams) error {
	now := time.Now()
	return h.appendChild(&Observation{
		Type:      TypeEvent,
		Name:      params.Name,
		Input:     params.Input,
		Metadata:  clone(params.Metadata),
		StartTime: now,
		EndTime:   now,
	})
}

// Span implements sink.Span
func (h *spanHandle) Span(params sink.SpanParams) (sink.Span, error) {
	o := &Observation{
		Type:      TypeSpan,
		Name:      params.Name,
		Input:     params.Input,
		Metadata:  clone(params.Metadata),
		StartTime: time.Now(),
	}
	if err := h.appendChild(o); err != nil {
		return nil, err
	}
	return &spanHandle{trace: h.trace, obs: o}, nil
}

// End implements sink.Span
func (h *spanHandle) End(err error) error {
	h.trace.mu.Lock()
	if h.obs.Ended() {
		h.trace.mu.Unlock()
		return fmt.Errorf("ending span %q: %w", h.obs.Name, ErrEnded)
	}
	h.obs.EndTime = time.Now()
	if err != nil {
		h.obs.Error = err.Error()
	}
	h.trace.mu.Unlock()

	if h.topLevel {
		h.trace.sink.record(h.trace)
	}
	return nil
}

func (h *spanHandle) appendChild(o *Observation) error {
	h.trace.mu.Lock()
	defer h.trace.mu.Unlock()
	if h.obs.Ended() {
		return fmt.Errorf("adding %q to span %q: %w", o.Name, h.obs.Name, ErrEnded)
	}
	h.obs.Children = append(h.obs.Children, o)
	return nil
}

type generationHandle struct {
	trace *Trace
	obs   *Observation
}

// End implements sink.Generation
func (h *generationHandle) End(output any, usage sink.Usage) error {
	h.trace.mu.Lock()
	defer h.trace.mu.Unlock()
	if h.obs.Ended() {
		return fmt.Errorf("ending generation %q: %w", h.obs.Name, ErrEnded)
	}
	h.obs.EndTime = time.Now()
	h.obs.Output = output
	if !usage.IsZero() {
		h.obs.Usage = &usage
	}
	return nil
}

func clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}
