/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package reducer folds classified trace events into a span tree.

A Reducer is either idle (NoOpenGeneration) or holds one open model
invocation (GenerationOpen):

  - a model input opens a "model_invocation" generation, force-closing a stale one first
  - a model output closes the open generation with the normalized response and
    token usage, and is discarded when nothing is open
  - rationales and final responses become point events
  - collaborator outputs become "collaborator_<name>" child spans that are closed immediately

Protocol irregularities are counted in Stats and, when configured, on the
GenAI anomaly counter.
*/
package reducer
