/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package session

import (
	"errors"
	"fmt"
	"time"

	"chainguard.dev/bedrocktrace/agents/metrics"
	"chainguard.dev/bedrocktrace/agents/retry"
)

// Option is a functional option for configuring the controller
type Option func(*Controller) error

// WithAgent sets the agent and alias identities passed to the backend
func WithAgent(agentID, aliasID string) Option {
	return func(c *Controller) error {
		if agentID == "" {
			return errors.New("agent id cannot be empty")
		}
		c.agentID = agentID
		c.aliasID = aliasID
		return nil
	}
}

// WithRetryConfig sets the retry configuration for transient backend errors
func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Controller) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid retry config: %w", err)
		}
		c.retry = cfg
		return nil
	}
}

// WithIDGenerator overrides how session identities are minted
func WithIDGenerator(gen func() string) Option {
	return func(c *Controller) error {
		if gen == nil {
			return errors.New("id generator cannot be nil")
		}
		c.newID = gen
		return nil
	}
}

// WithClock overrides the clock used for trace timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Controller) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		c.now = now
		return nil
	}
}

// WithTimeout bounds each session. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) error {
		if d < 0 {
			return fmt.Errorf("timeout must not be negative, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithMetrics records token usage, anomalies and session outcomes.
// Either argument may be nil.
func WithMetrics(genai *metrics.GenAI, sessions *metrics.Sessions) Option {
	return func(c *Controller) error {
		c.genai = genai
		c.sessions = sessions
		return nil
	}
}
