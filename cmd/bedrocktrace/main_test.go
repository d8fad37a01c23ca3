/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sethvargo/go-envconfig"
)

func TestParseBatch(t *testing.T) {
	got, err := parseBatch(strings.NewReader(`
prompts:
  - what is my balance?
  - "  "
  - |
    transfer 10 dollars
`))
	if err != nil {
		t.Fatalf("parseBatch() = %v", err)
	}
	want := []string{"what is my balance?", "transfer 10 dollars"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("prompts mismatch (-want +got):\n%s", diff)
	}
}

func TestParseBatchErrors(t *testing.T) {
	for name, in := range map[string]string{
		"empty":      "prompts: []\n",
		"blank only": "prompts: ['', ' ']\n",
		"not yaml":   "prompts: [unterminated\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := parseBatch(strings.NewReader(in)); err == nil {
				t.Error("parseBatch(): got = nil, wanted = error")
			}
		})
	}
}

func TestLoadInputs(t *testing.T) {
	got, err := loadInputs("", []string{"hello", "there"})
	if err != nil {
		t.Fatalf("loadInputs() = %v", err)
	}
	if diff := cmp.Diff([]string{"hello there"}, got); diff != "" {
		t.Errorf("inputs mismatch (-want +got):\n%s", diff)
	}

	if _, err := loadInputs("", nil); err == nil {
		t.Error("loadInputs(no args): got = nil, wanted = error")
	}

	path := filepath.Join(t.TempDir(), "batch.yaml")
	if err := os.WriteFile(path, []byte("prompts:\n  - a\n  - b\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err = loadInputs(path, []string{"ignored"})
	if err != nil {
		t.Fatalf("loadInputs(batch) = %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, got); diff != "" {
		t.Errorf("inputs mismatch (-want +got):\n%s", diff)
	}

	if _, err := loadInputs(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("loadInputs(missing): got = nil, wanted = error")
	}
}

func TestNewSink(t *testing.T) {
	ctx := context.Background()
	for _, kind := range []string{"memory", "otel", "both"} {
		if _, err := newSink(ctx, kind); err != nil {
			t.Errorf("newSink(%q) = %v", kind, err)
		}
	}
	if _, err := newSink(ctx, "langfuse"); err == nil {
		t.Error("newSink(langfuse): got = nil, wanted = error")
	}
}

func TestConfigDefaults(t *testing.T) {
	var got config
	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target: &got,
		Lookuper: envconfig.MapLookuper(map[string]string{
			"AGENT_ID":       "AGENT",
			"AGENT_ALIAS_ID": "ALIAS",
			"EVENTS_FILE":    "events.jsonl",
			// Read by httpmetrics.ServeMetrics, not by config.
			"METRICS_PORT": "9090",
		}),
	}); err != nil {
		t.Fatalf("ProcessWith() = %v", err)
	}

	want := config{
		AgentID:      "AGENT",
		AgentAliasID: "ALIAS",
		EventsFile:   "events.jsonl",
		Concurrency:  4,
		Timeout:      5 * time.Minute,
		Sink:         "both",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config (-want, +got): %s", diff)
	}
}

func TestConfigRequiresAgent(t *testing.T) {
	var got config
	err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   &got,
		Lookuper: envconfig.MapLookuper(map[string]string{"EVENTS_FILE": "events.jsonl"}),
	})
	if err == nil {
		t.Error("ProcessWith(): got = nil, wanted = error for missing AGENT_ID")
	}
}
