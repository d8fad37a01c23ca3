/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package sink defines the handles a trace backend exposes to the reducer:
// traces, spans, generations and point events.
//
// Implementations live in the memsink and otelsink subpackages. Tee fans
// operations out to several sinks at once.
package sink
