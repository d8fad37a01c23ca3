/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package memsink

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"chainguard.dev/bedrocktrace/agents/payload"
	"github.com/chainguard-dev/clog"
)

// ID returns the trace identity.
func (t *Trace) ID() string { return t.TraceID }

// Find returns all observations with the given name, in depth-first order.
func (t *Trace) Find(name string) []*Observation {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*Observation
	walk(t.Spans, func(o *Observation) {
		if o.Name == name {
			out = append(out, o)
		}
	})
	return out
}

// Count returns the number of observations of the given type.
func (t *Trace) Count(typ ObservationType) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	walk(t.Spans, func(o *Observation) {
		if o.Type == typ {
			n++
		}
	})
	return n
}

// Duration returns the time from trace creation to the last top-level span end.
func (t *Trace) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	var end time.Time
	for _, s := range t.Spans {
		if s.EndTime.After(end) {
			end = s.EndTime
		}
	}
	if end.IsZero() {
		return time.Since(t.Timestamp)
	}
	return end.Sub(t.Timestamp)
}

func walk(obs []*Observation, fn func(*Observation)) {
	for _, o := range obs {
		fn(o)
		walk(o.Children, fn)
	}
}

// String returns a structured representation of the trace
func (t *Trace) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("=== Trace %s ===\n", t.TraceID))
	sb.WriteString(fmt.Sprintf("Name: %s\n", t.Name))
	sb.WriteString(fmt.Sprintf("Input: %q\n", payload.Truncate(fmt.Sprint(t.Input), 200)))

	if len(t.Spans) == 0 {
		sb.WriteString("\nNo spans\n")
	}
	for _, s := range t.Spans {
		sb.WriteString("\n")
		writeObservation(&sb, s, 0)
	}

	// Metadata if present
	if len(t.Metadata) > 0 {
		sb.WriteString("\nMetadata:\n")
		for _, k := range slices.Sorted(maps.Keys(t.Metadata)) {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, t.Metadata[k]))
		}
	}

	return sb.String()
}

func writeObservation(sb *strings.Builder, o *Observation, depth int) {
	indent := strings.Repeat("  ", depth)

	sb.WriteString(fmt.Sprintf("%s- [%s] %s", indent, o.Type, o.Name))
	switch {
	case o.Type == TypeEvent:
	case !o.Ended():
		sb.WriteString(" (open)")
	default:
		sb.WriteString(fmt.Sprintf(" (%v)", o.EndTime.Sub(o.StartTime)))
	}
	sb.WriteString("\n")

	if o.Model != "" {
		sb.WriteString(fmt.Sprintf("%s    Model: %s\n", indent, o.Model))
	}
	if o.Usage != nil {
		sb.WriteString(fmt.Sprintf("%s    Usage: input=%d output=%d unit=%s\n", indent, o.Usage.Input, o.Usage.Output, o.Usage.Unit))
	}
	if o.Output != nil {
		// Limit output to avoid huge logs
		sb.WriteString(fmt.Sprintf("%s    Output: %s\n", indent, payload.Truncate(payload.Render(o.Output), 200)))
	}
	if o.Error != "" {
		sb.WriteString(fmt.Sprintf("%s    Error: %s\n", indent, o.Error))
	}

	for _, c := range o.Children {
		writeObservation(sb, c, depth+1)
	}
}

// LogSummary returns a callback that logs each recorded trace to clog.
func LogSummary(ctx context.Context) Callback {
	logger := clog.FromContext(ctx)

	return func(t *Trace) {
		logger.With(
			"trace_id", t.TraceID,
			"duration_ms", t.Duration().Milliseconds(),
			"generations", t.Count(TypeGeneration),
			"events", t.Count(TypeEvent),
		).Info("Agent trace recorded", "trace", t.String())
	}
}
