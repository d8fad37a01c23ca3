/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// InvokeInput is the request for a single agent invocation.
type InvokeInput struct {
	AgentID      string
	AgentAliasID string
	SessionID    string
	EnableTrace  bool
	InputText    string
}

// Backend invokes an agent and returns its completion stream.
type Backend interface {
	// InvokeAgent starts an invocation. Errors returned here mean no event was produced.
	InvokeAgent(ctx context.Context, input InvokeInput) (Stream, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, input InvokeInput) (Stream, error)

// InvokeAgent implements Backend.
func (f BackendFunc) InvokeAgent(ctx context.Context, input InvokeInput) (Stream, error) {
	return f(ctx, input)
}

// Stream is a pull iterator over raw completion records.
//
//	for stream.Next() {
//		record := stream.Current()
//		...
//	}
//	if err := stream.Err(); err != nil { ... }
type Stream interface {
	// Next advances to the next record, returning false at the end of the
	// stream or on error.
	Next() bool
	// Current returns the record Next advanced to.
	Current() json.RawMessage
	// Err returns the error that stopped iteration, if any.
	Err() error
	// Close releases the underlying resources.
	Close() error
}

// ServiceError is an error reported by the agent service.
type ServiceError struct {
	// Code is the service error code, e.g. "ThrottlingException".
	Code    string
	Message string
	// StatusCode is the HTTP status of the response, if known.
	StatusCode int
}

// Error implements error
func (e *ServiceError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Retryable reports whether the request may succeed if sent again.
func (e *ServiceError) Retryable() bool {
	switch e.Code {
	case "ThrottlingException", "ServiceQuotaExceededException", "InternalServerException",
		"DependencyFailedException", "BadGatewayException":
		return true
	}
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// IsRetryable reports whether err wraps a retryable ServiceError.
func IsRetryable(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return false
}

// records is an in-memory Stream.
type records struct {
	items []json.RawMessage
	pos   int
	err   error
}

// Records returns a Stream over the given records. If err is non-nil it is
// reported by Err once the records are exhausted.
func Records(err error, items ...json.RawMessage) Stream {
	return &records{items: items, pos: -1, err: err}
}

// Next implements Stream
func (r *records) Next() bool {
	if r.pos+1 >= len(r.items) {
		r.pos = len(r.items)
		return false
	}
	r.pos++
	return true
}

// Current implements Stream
func (r *records) Current() json.RawMessage {
	if r.pos < 0 || r.pos >= len(r.items) {
		return nil
	}
	return r.items[r.pos]
}

// Err implements Stream
func (r *records) Err() error {
	if r.pos >= len(r.items) {
		return r.err
	}
	return nil
}

// Close implements Stream
func (r *records) Close() error { return nil }

// Static returns a Backend that serves the same records for every invocation.
func Static(items ...json.RawMessage) Backend {
	return BackendFunc(func(context.Context, InvokeInput) (Stream, error) {
		return Records(nil, items...), nil
	})
}
