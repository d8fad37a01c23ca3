/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package session drives agent invocations and turns their trace streams into
span trees.

# Overview

A Controller owns the lifecycle of one session per Run call:

  - a fresh session identity is minted and a trace named "Bedrock Agent
    Invocation" is created with the agent identity and a timestamp as metadata
  - a root span named "orchestration" is opened with the input text
  - the backend is invoked with tracing enabled, retrying transient service errors
  - every record of the stream is classified and reduced under the root span
  - the root span is closed, with the error recorded when the session failed

Records that fail to classify or reduce do not end the session. Each one is
recorded as a "chunk_processing_error" point event on the root span and the
stream keeps advancing. Failing to invoke the agent, failing to read the
stream, and context cancellation end the session with an error Result, and
the trace is annotated with the error message.

A generation still open when the stream ends is closed and reported as an
"unterminated_generation" point event.

# Usage

	c, err := session.New(bedrock.ReplayFile("events.jsonl"), memsink.New(),
		session.WithAgent("AGENT123", "ALIAS456"),
		session.WithTimeout(5*time.Minute),
	)
	if err != nil {
		return err
	}
	res := c.Run(ctx, "What is my account balance?")
	if !res.OK() {
		log.Printf("session failed: %s", res.Message)
	}

RunAll runs many independent sessions with bounded concurrency and returns
their results in input order.
*/
package session
