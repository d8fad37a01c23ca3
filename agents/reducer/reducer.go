/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package reducer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"chainguard.dev/bedrocktrace/agents/bedrock"
	"chainguard.dev/bedrocktrace/agents/classify"
	"chainguard.dev/bedrocktrace/agents/metrics"
	"chainguard.dev/bedrocktrace/agents/payload"
	"chainguard.dev/bedrocktrace/agents/sink"
	"github.com/chainguard-dev/clog"
)

const (
	// GenerationName names every model invocation.
	GenerationName = "model_invocation"
	// Model is the model identifier reported for agent generations.
	Model = "bedrock-agent"
	// EventRationale names rationale point events.
	EventRationale = "rationale"
	// EventFinalResponse names final response point events.
	EventFinalResponse = "final_response"
	// CollaboratorPrefix prefixes collaborator span names.
	CollaboratorPrefix = "collaborator_"
)

// State is the generation state of a reducer.
type State int

const (
	NoOpenGeneration State = iota
	GenerationOpen
)

// String implements fmt.Stringer
func (s State) String() string {
	if s == GenerationOpen {
		return "GenerationOpen"
	}
	return "NoOpenGeneration"
}

// Stats counts what a reducer did.
type Stats struct {
	Opened    int
	Closed    int
	Anomalies map[metrics.Anomaly]int
}

// Option configures a Reducer.
type Option func(*Reducer)

// WithMetrics records token usage and anomalies on m.
func WithMetrics(m *metrics.GenAI) Option {
	return func(r *Reducer) { r.metrics = m }
}

// Reducer folds classified events into a span tree below a parent span.
// It holds at most one open generation. A Reducer is not safe for concurrent use.
type Reducer struct {
	parent  sink.Span
	metrics *metrics.GenAI

	open  sink.Generation
	stats Stats
}

// New creates a reducer that attaches everything it builds to parent.
func New(parent sink.Span, opts ...Option) *Reducer {
	r := &Reducer{
		parent: parent,
		stats:  Stats{Anomalies: make(map[metrics.Anomaly]int)},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current generation state.
func (r *Reducer) State() State {
	if r.open != nil {
		return GenerationOpen
	}
	return NoOpenGeneration
}

// Stats returns a snapshot of the reducer counters.
func (r *Reducer) Stats() Stats {
	s := r.stats
	s.Anomalies = maps.Clone(r.stats.Anomalies)
	return s
}

// ApplyAll applies events in order and stops at the first error.
func (r *Reducer) ApplyAll(ctx context.Context, events []classify.Event) error {
	for _, ev := range events {
		if err := r.Apply(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// Apply performs the transition for one classified event.
func (r *Reducer) Apply(ctx context.Context, ev classify.Event) error {
	switch ev.Kind {
	case classify.KindModelInvocationInput:
		return r.modelInput(ctx, ev.Input)
	case classify.KindModelInvocationOutput:
		return r.modelOutput(ctx, ev.Output)
	case classify.KindRationale:
		return r.rationale(ev.Rationale)
	case classify.KindFinalResponse:
		return r.finalResponse(ev)
	case classify.KindCollaboratorOutput:
		return r.collaborator(ev)
	default:
		return fmt.Errorf("unsupported event kind %v", ev.Kind)
	}
}

// Finish closes a generation left open at the end of the stream with empty
// output and empty usage. It reports whether one was open.
func (r *Reducer) Finish(ctx context.Context) (bool, error) {
	if r.open == nil {
		return false, nil
	}
	clog.FromContext(ctx).Warn("Closing generation left open at end of stream")
	r.anomaly(ctx, metrics.AnomalyUnterminated)
	return true, r.closeOpen("", sink.Usage{})
}

func (r *Reducer) modelInput(ctx context.Context, in *bedrock.ModelInvocationInput) error {
	if in == nil {
		return errors.New("model invocation input event without payload")
	}

	var errs []error
	if r.open != nil {
		clog.FromContext(ctx).With("trace_id", in.TraceID).Warn("Model input while a generation is open, closing the previous one")
		r.anomaly(ctx, metrics.AnomalyForcedClose)
		if err := r.closeOpen("", sink.Usage{}); err != nil {
			errs = append(errs, err)
		}
	}

	params := in.InferenceConfiguration
	if params == nil {
		params = map[string]any{}
	}
	gen, err := r.parent.Generation(sink.GenerationParams{
		Name:            GenerationName,
		Model:           Model,
		ModelParameters: params,
		Input:           in.Text,
		Metadata: map[string]any{
			"type":     in.Type,
			"trace_id": in.TraceID,
		},
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("opening generation: %w", err))
		return errors.Join(errs...)
	}
	r.open = gen
	r.stats.Opened++
	return errors.Join(errs...)
}

func (r *Reducer) modelOutput(ctx context.Context, out *bedrock.ModelInvocationOutput) error {
	if out == nil {
		return errors.New("model invocation output event without payload")
	}
	if r.open == nil {
		clog.FromContext(ctx).With("trace_id", out.TraceID).Debug("Discarding model output with no open generation")
		r.anomaly(ctx, metrics.AnomalyOrphanOutput)
		return nil
	}

	var content json.RawMessage
	if out.RawResponse != nil {
		content = out.RawResponse.Content
	}
	output := payload.Normalize(payload.FromJSON(content))

	var usage sink.Usage
	if out.Metadata != nil && out.Metadata.Usage != nil {
		usage = sink.Usage{
			Input:  out.Metadata.Usage.InputTokens,
			Output: out.Metadata.Usage.OutputTokens,
			Unit:   sink.UnitTokens,
		}
		r.metrics.RecordTokens(ctx, Model, usage.Input, usage.Output)
	}
	return r.closeOpen(output, usage)
}

func (r *Reducer) rationale(rat *bedrock.Rationale) error {
	if rat == nil {
		return errors.New("rationale event without payload")
	}
	if err := r.parent.Event(sink.EventParams{
		Name:     EventRationale,
		Input:    rat.Text,
		Metadata: map[string]any{"trace_id": rat.TraceID},
	}); err != nil {
		return fmt.Errorf("recording rationale: %w", err)
	}
	return nil
}

func (r *Reducer) finalResponse(ev classify.Event) error {
	if ev.FinalResponse == nil {
		return errors.New("final response event without payload")
	}
	if err := r.parent.Event(sink.EventParams{
		Name:  EventFinalResponse,
		Input: ev.FinalResponse.Text,
		Metadata: map[string]any{
			"trace_id": ev.ObservationTraceID,
			"type":     ev.ObservationType,
		},
	}); err != nil {
		return fmt.Errorf("recording final response: %w", err)
	}
	return nil
}

func (r *Reducer) collaborator(ev classify.Event) error {
	c := ev.Collaborator
	if c == nil {
		return errors.New("collaborator output event without payload")
	}

	name := c.AgentCollaboratorName
	if name == "" {
		name = "unknown"
	}

	// An absent output is an empty object.
	var input any = map[string]any{}
	if len(c.Output) > 0 {
		input = payload.Normalize(payload.FromJSON(c.Output))
	}

	span, err := r.parent.Span(sink.SpanParams{
		Name:  CollaboratorPrefix + name,
		Input: input,
		Metadata: map[string]any{
			"collaborator_arn": c.AgentCollaboratorAliasArn,
			"trace_id":         ev.ObservationTraceID,
		},
	})
	if err != nil {
		return fmt.Errorf("opening collaborator span %q: %w", name, err)
	}
	if err := span.End(nil); err != nil {
		return fmt.Errorf("closing collaborator span %q: %w", name, err)
	}
	return nil
}

// closeOpen ends the open generation. The handle is released even when the
// sink fails.
func (r *Reducer) closeOpen(output any, usage sink.Usage) error {
	gen := r.open
	r.open = nil
	r.stats.Closed++
	if err := gen.End(output, usage); err != nil {
		return fmt.Errorf("closing generation: %w", err)
	}
	return nil
}

func (r *Reducer) anomaly(ctx context.Context, a metrics.Anomaly) {
	r.stats.Anomalies[a]++
	r.metrics.RecordAnomaly(ctx, Model, a)
}
