/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package bedrock

import "encoding/json"

// Event is one record of an InvokeAgent completion stream.
// Only one of Chunk or Trace is normally set.
type Event struct {
	Chunk *Chunk     `json:"chunk,omitempty"`
	Trace *TracePart `json:"trace,omitempty"`
}

// Chunk carries a piece of the agent's final answer.
type Chunk struct {
	Bytes json.RawMessage `json:"bytes,omitempty"`
}

// TracePart wraps a trace along with the agent that produced it.
type TracePart struct {
	AgentID      string `json:"agentId,omitempty"`
	AgentAliasID string `json:"agentAliasId,omitempty"`
	AgentVersion string `json:"agentVersion,omitempty"`
	SessionID    string `json:"sessionId,omitempty"`
	Trace        *Trace `json:"trace,omitempty"`
}

// Trace holds the step-specific trace payload. Pre- and post-processing traces
// and guardrail traces are accepted but not interpreted.
type Trace struct {
	OrchestrationTrace     *OrchestrationTrace `json:"orchestrationTrace,omitempty"`
	PreProcessingTrace     json.RawMessage     `json:"preProcessingTrace,omitempty"`
	PostProcessingTrace    json.RawMessage     `json:"postProcessingTrace,omitempty"`
	GuardrailTrace         json.RawMessage     `json:"guardrailTrace,omitempty"`
	RoutingClassifierTrace json.RawMessage     `json:"routingClassifierTrace,omitempty"`
}

// OrchestrationTrace describes one step of the agent's orchestration loop.
// Several fields may be present in the same record.
type OrchestrationTrace struct {
	ModelInvocationInput  *ModelInvocationInput  `json:"modelInvocationInput,omitempty"`
	ModelInvocationOutput *ModelInvocationOutput `json:"modelInvocationOutput,omitempty"`
	Rationale             *Rationale             `json:"rationale,omitempty"`
	Observation           *Observation           `json:"observation,omitempty"`
}

// ModelInvocationInput is the prompt sent to the foundation model.
type ModelInvocationInput struct {
	TraceID                string         `json:"traceId,omitempty"`
	Text                   string         `json:"text,omitempty"`
	Type                   string         `json:"type,omitempty"`
	FoundationModel        string         `json:"foundationModel,omitempty"`
	InferenceConfiguration map[string]any `json:"inferenceConfiguration,omitempty"`
}

// ModelInvocationOutput is the raw foundation model response.
type ModelInvocationOutput struct {
	TraceID     string          `json:"traceId,omitempty"`
	RawResponse *RawResponse    `json:"rawResponse,omitempty"`
	Metadata    *OutputMetadata `json:"metadata,omitempty"`
}

// RawResponse holds the undecoded model response content.
// Content is usually a JSON string whose text is itself JSON.
type RawResponse struct {
	Content json.RawMessage `json:"content,omitempty"`
}

// OutputMetadata carries accounting information for a model invocation.
type OutputMetadata struct {
	Usage *Usage `json:"usage,omitempty"`
}

// Usage is the token accounting reported by the backend.
type Usage struct {
	InputTokens  int64 `json:"inputTokens,omitempty"`
	OutputTokens int64 `json:"outputTokens,omitempty"`
}

// Rationale is the agent's reasoning for its next step.
type Rationale struct {
	TraceID string `json:"traceId,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Observation is the result of an action, knowledge base lookup, collaborator
// call, or the final response.
type Observation struct {
	TraceID                           string                        `json:"traceId,omitempty"`
	Type                              string                        `json:"type,omitempty"`
	FinalResponse                     *FinalResponse                `json:"finalResponse,omitempty"`
	AgentCollaboratorInvocationOutput *CollaboratorInvocationOutput `json:"agentCollaboratorInvocationOutput,omitempty"`
}

// FinalResponse is the answer returned to the user.
type FinalResponse struct {
	Text string `json:"text,omitempty"`
}

// CollaboratorInvocationOutput is the result of delegating to a collaborator agent.
type CollaboratorInvocationOutput struct {
	AgentCollaboratorName     string          `json:"agentCollaboratorName,omitempty"`
	AgentCollaboratorAliasArn string          `json:"agentCollaboratorAliasArn,omitempty"`
	Output                    json.RawMessage `json:"output,omitempty"`
}

// Orchestration returns the orchestration trace of the event, or nil if any
// level of the envelope is missing.
func (e *Event) Orchestration() *OrchestrationTrace {
	if e == nil || e.Trace == nil || e.Trace.Trace == nil {
		return nil
	}
	return e.Trace.Trace.OrchestrationTrace
}
