/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chainguard.dev/bedrocktrace/agents/bedrock"
	"chainguard.dev/bedrocktrace/agents/classify"
	"chainguard.dev/bedrocktrace/agents/metrics"
	"chainguard.dev/bedrocktrace/agents/reducer"
	"chainguard.dev/bedrocktrace/agents/retry"
	"chainguard.dev/bedrocktrace/agents/sink"
	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// TraceName names every trace created by the controller.
	TraceName = "Bedrock Agent Invocation"
	// RootSpanName names the span that parents everything in a session.
	RootSpanName = "orchestration"
	// EventChunkError names the point event recorded for a record that failed to process.
	EventChunkError = "chunk_processing_error"
	// EventUnterminated names the point event recorded when a generation was left open.
	EventUnterminated = "unterminated_generation"
)

// Status is the outcome of a session.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the structured outcome of one session. Only Status, TraceID and
// Message are part of the serialized form.
type Result struct {
	Status  Status `json:"status"`
	TraceID string `json:"trace_id,omitempty"`
	Message string `json:"message,omitempty"`

	SessionID   string                  `json:"-"`
	Input       string                  `json:"-"`
	Records     int                     `json:"-"`
	ChunkErrors int                     `json:"-"`
	Generations int                     `json:"-"`
	Anomalies   map[metrics.Anomaly]int `json:"-"`
	Duration    time.Duration           `json:"-"`
}

// OK reports whether the session succeeded.
func (r Result) OK() bool { return r.Status == StatusSuccess }

// Controller runs agent sessions and reduces their trace streams into a sink.
// A Controller is safe for concurrent use; each Run owns its own trace.
type Controller struct {
	backend bedrock.Backend
	sink    sink.Sink

	agentID  string
	aliasID  string
	retry    retry.Config
	timeout  time.Duration
	newID    func() string
	now      func() time.Time
	genai    *metrics.GenAI
	sessions *metrics.Sessions
}

// New creates a controller for the given backend and sink.
func New(backend bedrock.Backend, s sink.Sink, opts ...Option) (*Controller, error) {
	if backend == nil {
		return nil, errors.New("backend cannot be nil")
	}
	if s == nil {
		return nil, errors.New("sink cannot be nil")
	}

	c := &Controller{
		backend: backend,
		sink:    s,
		retry:   retry.Default(),
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}
	return c, nil
}

// RunAll runs one independent session per input, at most concurrency at a
// time (unbounded when concurrency <= 0). Results are in input order.
func (c *Controller) RunAll(ctx context.Context, inputs []string, concurrency int) []Result {
	results := make([]Result, len(inputs))

	g := new(errgroup.Group)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, input := range inputs {
		g.Go(func() error {
			results[i] = c.Run(ctx, input)
			return nil
		})
	}
	// Sessions report failures through their Result.
	_ = g.Wait()

	return results
}

// Run executes one session for inputText. It never panics and never leaves
// the root span open; every failure is reported in the Result.
func (c *Controller) Run(ctx context.Context, inputText string) (res Result) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	s := &session{
		c:     c,
		id:    c.newID(),
		input: inputText,
		start: c.now(),
	}
	ctx = metrics.WithAgent(ctx, c.agentID, c.aliasID)
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("session_id", s.id).With("agent_id", c.agentID))

	defer func() {
		if p := recover(); p != nil {
			res = s.fail(ctx, fmt.Errorf("session panicked: %v", p))
		}
	}()

	if err := s.begin(ctx); err != nil {
		return s.fail(ctx, err)
	}
	if err := s.run(ctx); err != nil {
		return s.fail(ctx, err)
	}
	return s.complete(ctx)
}

type session struct {
	c     *Controller
	id    string
	input string
	start time.Time

	trace   sink.Trace
	root    root
	reducer *reducer.Reducer

	records     int
	chunkErrors int
}

func (s *session) begin(ctx context.Context) error {
	now := s.c.now()
	trace, err := s.c.sink.CreateTrace(ctx, sink.TraceParams{
		ID:    s.id,
		Name:  TraceName,
		Input: s.input,
		Metadata: map[string]any{
			"timestamp":      now.Format(time.RFC3339Nano),
			"agent_id":       s.c.agentID,
			"agent_alias_id": s.c.aliasID,
		},
		Timestamp: now,
	})
	if err != nil {
		return &stepError{step: "creating trace", err: err}
	}
	s.trace = trace

	span, err := trace.Span(RootSpanName, s.input)
	if err != nil {
		return &stepError{step: "opening root span", err: err}
	}
	s.root.open(span)
	s.reducer = reducer.New(span, reducer.WithMetrics(s.c.genai))
	return nil
}

func (s *session) run(ctx context.Context) error {
	log := clog.FromContext(ctx)

	stream, err := retry.Do(ctx, s.c.retry, "InvokeAgent", bedrock.IsRetryable, func() (bedrock.Stream, error) {
		return s.c.backend.InvokeAgent(ctx, bedrock.InvokeInput{
			AgentID:      s.c.agentID,
			AgentAliasID: s.c.aliasID,
			SessionID:    s.id,
			EnableTrace:  true,
			InputText:    s.input,
		})
	})
	if err != nil {
		return &stepError{step: "invoking agent", err: err}
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.With("error", err).Warn("Failed to close agent stream")
		}
	}()

	for stream.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.records++
		s.c.sessions.Record()

		if err := s.process(ctx, stream.Current()); err != nil {
			s.chunkErrors++
			s.c.sessions.ChunkError()
			log.With("record", s.records).With("error", err).Warn("Failed to process trace record")
			if err := s.root.span.Event(sink.EventParams{Name: EventChunkError, Input: err.Error()}); err != nil {
				log.With("error", err).Warn("Failed to record chunk processing error")
			}
		}
	}
	if err := stream.Err(); err != nil {
		return &stepError{step: "reading agent stream", err: err}
	}
	return ctx.Err()
}

// process reduces one record. Panics are reported as errors for that record.
func (s *session) process(ctx context.Context, record json.RawMessage) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic processing trace record: %v", p)
		}
	}()

	events, err := classify.Classify(record)
	if err != nil {
		return err
	}
	clog.FromContext(ctx).With("events", len(events)).Debug("Processing trace record")
	return s.reducer.ApplyAll(ctx, events)
}

func (s *session) complete(ctx context.Context) Result {
	s.finishReducer(ctx)
	if err := s.root.close(nil); err != nil {
		return s.fail(ctx, &stepError{step: "closing root span", err: err})
	}
	s.c.sessions.Done(nil)

	res := s.result(StatusSuccess)
	res.TraceID = s.trace.ID()
	clog.FromContext(ctx).With("trace_id", res.TraceID).
		With("records", res.Records).
		With("chunk_errors", res.ChunkErrors).
		Info("Agent session completed")
	return res
}

// fail closes the session with an error result. The step that failed is
// logged while the result, root span and trace carry the bare cause.
func (s *session) fail(ctx context.Context, err error) Result {
	log := clog.FromContext(ctx).With("error", err.Error())
	cause := err
	var se *stepError
	if errors.As(err, &se) {
		cause = se.err
		log = log.With("step", se.step)
	}

	s.finishReducer(ctx)
	if err := s.root.close(cause); err != nil {
		log.With("error", err).Warn("Failed to close root span")
	}
	if s.trace != nil {
		if err := s.trace.Update(map[string]any{"error": cause.Error()}); err != nil {
			log.With("error", err).Warn("Failed to record error on trace")
		}
	}
	s.c.sessions.Done(cause)

	res := s.result(StatusError)
	res.Message = cause.Error()
	log.Error("Agent session failed")
	return res
}

// stepError names the session step that failed.
type stepError struct {
	step string
	err  error
}

func (e *stepError) Error() string { return e.step + ": " + e.err.Error() }

func (e *stepError) Unwrap() error { return e.err }

// finishReducer closes a generation left open and surfaces it on the root span.
func (s *session) finishReducer(ctx context.Context) {
	if s.reducer == nil {
		return
	}
	log := clog.FromContext(ctx)
	leaked, err := s.reducer.Finish(ctx)
	if err != nil {
		log.With("error", err).Warn("Failed to close open generation")
	}
	if leaked && s.root.state == rootOpen {
		if err := s.root.span.Event(sink.EventParams{
			Name:  EventUnterminated,
			Input: "generation still open when the stream ended",
		}); err != nil {
			log.With("error", err).Warn("Failed to record unterminated generation")
		}
	}
}

func (s *session) result(status Status) Result {
	res := Result{
		Status:      status,
		SessionID:   s.id,
		Input:       s.input,
		Records:     s.records,
		ChunkErrors: s.chunkErrors,
		Duration:    s.c.now().Sub(s.start),
	}
	if s.reducer != nil {
		stats := s.reducer.Stats()
		res.Generations = stats.Opened
		res.Anomalies = stats.Anomalies
	}
	return res
}

type rootState int

const (
	rootUnopened rootState = iota
	rootOpen
	rootClosed
)

// root tracks the session's root span. It is ended at most once.
type root struct {
	span  sink.Span
	state rootState
}

func (r *root) open(span sink.Span) {
	r.span = span
	r.state = rootOpen
}

func (r *root) close(err error) error {
	if r.state != rootOpen {
		return nil
	}
	r.state = rootClosed
	return r.span.End(err)
}
