/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package classify splits raw agent trace records into typed sub-events.
package classify
