/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package bedrock models the completion stream of a Bedrock agent invocation.

# Envelope

Each record of an InvokeAgent stream with tracing enabled is either a chunk of
the final answer or a trace part. Event mirrors the JSON shape of those records;
every level is optional so that navigation is plain nil checks:

	var ev bedrock.Event
	if err := json.Unmarshal(record, &ev); err != nil {
		return err
	}
	if ot := ev.Orchestration(); ot != nil {
		// ot.ModelInvocationInput, ot.Rationale, ...
	}

# Backends

Backend is the seam to the agent service. Streams are pull iterators in the
style of SDK event streams (Next, Current, Err, Close). ReplayFile serves captured
newline-delimited JSON streams, and Static/Records serve in-memory records.

Service failures are reported as *ServiceError; IsRetryable classifies them for
retry with backoff.
*/
package bedrock
