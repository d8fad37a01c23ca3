/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package payload coerces loosely typed agent payloads into structured values.
//
// Bedrock agents report model responses and collaborator outputs as text that
// usually, but not always, holds JSON. Raw captures the shapes a payload can take
// and Normalize turns any of them into a value that is safe to attach to a span:
//
//	v := payload.Normalize(payload.FromText(`{"stop_reason":"end_turn"}`))
//	// map[string]any{"stop_reason": "end_turn"}
//
//	v = payload.Normalize(payload.FromText("not json"))
//	// map[string]any{"content": "not json"}
package payload
