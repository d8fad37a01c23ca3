/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// AttributeEnricher enriches metric attributes with additional context.
// This allows callers to add their own contextual attributes (agent, session)
// without coupling the reducer to specific deployments.
// The enricher receives base attributes (model, anomaly) and returns an enriched set.
type AttributeEnricher func(ctx context.Context, baseAttrs []attribute.KeyValue) []attribute.KeyValue

type agentKey struct{}

// WithAgent returns a context carrying the agent identity used by AgentEnricher.
func WithAgent(ctx context.Context, agentID, aliasID string) context.Context {
	return context.WithValue(ctx, agentKey{}, [2]string{agentID, aliasID})
}

// AgentEnricher adds agent_id and agent_alias_id attributes from the context.
func AgentEnricher(ctx context.Context, baseAttrs []attribute.KeyValue) []attribute.KeyValue {
	agent, ok := ctx.Value(agentKey{}).([2]string)
	if !ok {
		return baseAttrs
	}
	return append(baseAttrs,
		attribute.String("agent_id", agent[0]),
		attribute.String("agent_alias_id", agent[1]),
	)
}
