/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package classify

import (
	"encoding/json"
	"fmt"

	"chainguard.dev/bedrocktrace/agents/bedrock"
)

// Kind enumerates the trace events the reducer understands.
type Kind int

const (
	// KindUnknown is the zero value and is never emitted.
	KindUnknown Kind = iota
	KindModelInvocationInput
	KindModelInvocationOutput
	KindRationale
	KindFinalResponse
	KindCollaboratorOutput
)

// String implements fmt.Stringer
func (k Kind) String() string {
	switch k {
	case KindModelInvocationInput:
		return "model_invocation_input"
	case KindModelInvocationOutput:
		return "model_invocation_output"
	case KindRationale:
		return "rationale"
	case KindFinalResponse:
		return "final_response"
	case KindCollaboratorOutput:
		return "collaborator_output"
	default:
		return "unknown"
	}
}

// Event is one classified sub-event of a raw record.
// Exactly the field matching Kind is set.
type Event struct {
	Kind Kind

	// ObservationTraceID and ObservationType are set for observation kinds.
	ObservationTraceID string
	ObservationType    string

	Input         *bedrock.ModelInvocationInput
	Output        *bedrock.ModelInvocationOutput
	Rationale     *bedrock.Rationale
	FinalResponse *bedrock.FinalResponse
	Collaborator  *bedrock.CollaboratorInvocationOutput
}

// Classify decodes a raw record and returns its sub-events in reduction order:
// model input, model output, rationale, final response, collaborator output.
// Records without an orchestration trace yield no events and no error. A record
// that does not decode as an event envelope is an error.
func Classify(record json.RawMessage) ([]Event, error) {
	var ev bedrock.Event
	if err := json.Unmarshal(record, &ev); err != nil {
		return nil, fmt.Errorf("decoding trace event: %w", err)
	}
	return Orchestration(ev.Orchestration()), nil
}

// Orchestration splits an orchestration trace into its sub-events.
func Orchestration(ot *bedrock.OrchestrationTrace) []Event {
	if ot == nil {
		return nil
	}

	// An input and its output commonly share a record; fixed order guarantees
	// the generation is opened before it is closed.
	events := make([]Event, 0, 2)
	if ot.ModelInvocationInput != nil {
		events = append(events, Event{Kind: KindModelInvocationInput, Input: ot.ModelInvocationInput})
	}
	if ot.ModelInvocationOutput != nil {
		events = append(events, Event{Kind: KindModelInvocationOutput, Output: ot.ModelInvocationOutput})
	}
	if ot.Rationale != nil {
		events = append(events, Event{Kind: KindRationale, Rationale: ot.Rationale})
	}
	if obs := ot.Observation; obs != nil {
		if obs.FinalResponse != nil {
			events = append(events, Event{
				Kind:               KindFinalResponse,
				ObservationTraceID: obs.TraceID,
				ObservationType:    obs.Type,
				FinalResponse:      obs.FinalResponse,
			})
		}
		if obs.AgentCollaboratorInvocationOutput != nil {
			events = append(events, Event{
				Kind:               KindCollaboratorOutput,
				ObservationTraceID: obs.TraceID,
				ObservationType:    obs.Type,
				Collaborator:       obs.AgentCollaboratorInvocationOutput,
			})
		}
	}
	return events
}
