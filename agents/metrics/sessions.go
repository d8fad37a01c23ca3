/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bedrock_trace_sessions_total",
			Help: "Total number of agent trace sessions by outcome",
		},
		[]string{"agent_id", "status"},
	)

	chunkErrorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bedrock_trace_chunk_errors_total",
			Help: "Total number of trace records that failed to process",
		},
		[]string{"agent_id"},
	)

	recordCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bedrock_trace_records_total",
			Help: "Total number of trace records consumed from agent streams",
		},
		[]string{"agent_id"},
	)
)

// Sessions records session outcomes for one agent in Prometheus.
type Sessions struct {
	success     prometheus.Counter
	failure     prometheus.Counter
	chunkErrors prometheus.Counter
	records     prometheus.Counter
}

// NewSessions creates session counters labeled with the given agent id.
func NewSessions(agentID string) *Sessions {
	return &Sessions{
		success:     sessionCounter.With(prometheus.Labels{"agent_id": agentID, "status": "success"}),
		failure:     sessionCounter.With(prometheus.Labels{"agent_id": agentID, "status": "error"}),
		chunkErrors: chunkErrorCounter.With(prometheus.Labels{"agent_id": agentID}),
		records:     recordCounter.With(prometheus.Labels{"agent_id": agentID}),
	}
}

// Record counts a consumed trace record.
func (s *Sessions) Record() {
	if s != nil {
		s.records.Inc()
	}
}

// ChunkError counts a record that failed to process.
func (s *Sessions) ChunkError() {
	if s != nil {
		s.chunkErrors.Inc()
	}
}

// Done counts a finished session.
func (s *Sessions) Done(err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.failure.Inc()
		return
	}
	s.success.Inc()
}
