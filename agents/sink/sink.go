/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package sink

import (
	"context"
	"time"
)

// UnitTokens is the usage unit reported for model invocations.
const UnitTokens = "TOKENS"

// Usage holds token accounting for a generation. The zero value is empty usage.
type Usage struct {
	Input  int64  `json:"input"`
	Output int64  `json:"output"`
	Unit   string `json:"unit,omitempty"`
}

// IsZero reports whether no usage was recorded.
func (u Usage) IsZero() bool { return u == Usage{} }

// TraceParams describes a new trace.
type TraceParams struct {
	ID        string
	Name      string
	Input     any
	Metadata  map[string]any
	Timestamp time.Time
}

// GenerationParams describes a model invocation span.
type GenerationParams struct {
	Name            string
	Model           string
	ModelParameters map[string]any
	Input           any
	Metadata        map[string]any
}

// EventParams describes an instantaneous point event.
type EventParams struct {
	Name     string
	Input    any
	Metadata map[string]any
}

// SpanParams describes a child span.
type SpanParams struct {
	Name     string
	Input    any
	Metadata map[string]any
}

// Sink accepts traces built from an agent invocation.
type Sink interface {
	// CreateTrace starts a new trace.
	CreateTrace(ctx context.Context, params TraceParams) (Trace, error)
}

// Trace is the root of a span tree.
type Trace interface {
	// ID returns the trace identity.
	ID() string
	// Span opens a top-level span.
	Span(name string, input any) (Span, error)
	// Update merges metadata into the trace.
	Update(metadata map[string]any) error
}

// Span is an open interval within a trace.
type Span interface {
	// Generation opens a model invocation under this span.
	Generation(params GenerationParams) (Generation, error)
	// Event records a point event under this span.
	Event(params EventParams) error
	// Span opens a child span.
	Span(params SpanParams) (Span, error)
	// End closes the span, recording err if non-nil.
	End(err error) error
}

// Generation is an open model invocation.
type Generation interface {
	// End closes the generation with its output and usage.
	End(output any, usage Usage) error
}
