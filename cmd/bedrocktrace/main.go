/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main runs Bedrock agent sessions and reduces their trace streams
// into trace sinks, printing one JSON result per session.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chainguard.dev/bedrocktrace/agents/bedrock"
	"chainguard.dev/bedrocktrace/agents/metrics"
	"chainguard.dev/bedrocktrace/agents/report"
	"chainguard.dev/bedrocktrace/agents/session"
	"chainguard.dev/bedrocktrace/agents/sink"
	"chainguard.dev/bedrocktrace/agents/sink/memsink"
	"chainguard.dev/bedrocktrace/agents/sink/otelsink"
	"github.com/chainguard-dev/clog"
	_ "github.com/chainguard-dev/clog/gcp/init"
	"github.com/chainguard-dev/terraform-infra-common/pkg/httpmetrics"
	"github.com/chainguard-dev/terraform-infra-common/pkg/profiler"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

type config struct {
	AgentID      string `env:"AGENT_ID,required"`
	AgentAliasID string `env:"AGENT_ALIAS_ID,required"`

	// EventsFile is a newline-delimited JSON capture of an agent event stream.
	EventsFile string `env:"EVENTS_FILE,required"`
	// BatchFile is a YAML file listing prompts to run as independent sessions.
	BatchFile string `env:"BATCH_FILE"`

	Concurrency int           `env:"CONCURRENCY,default=4"`
	Timeout     time.Duration `env:"TIMEOUT,default=5m"`
	Sink        string        `env:"SINK,default=both"`
	Report      bool          `env:"REPORT,default=false"`
}

// batch is the BATCH_FILE format.
type batch struct {
	Prompts []string `yaml:"prompts"`
}

func main() {
	if !run() {
		os.Exit(1)
	}
}

func run() bool {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	profiler.SetupProfiler()
	defer httpmetrics.SetupTracer(ctx)()
	// Serves /metrics on METRICS_PORT.
	go httpmetrics.ServeMetrics()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		clog.FatalContextf(ctx, "processing config: %v", err)
	}

	inputs, err := loadInputs(cfg.BatchFile, os.Args[1:])
	if err != nil {
		clog.FatalContextf(ctx, "loading inputs: %v", err)
	}

	s, err := newSink(ctx, cfg.Sink)
	if err != nil {
		clog.FatalContextf(ctx, "creating sink: %v", err)
	}

	genai := metrics.NewGenAI("chainguard.ai.agents")
	genai.SetAttributeEnricher(metrics.AgentEnricher)

	c, err := session.New(bedrock.ReplayFile(cfg.EventsFile), s,
		session.WithAgent(cfg.AgentID, cfg.AgentAliasID),
		session.WithTimeout(cfg.Timeout),
		session.WithMetrics(genai, metrics.NewSessions(cfg.AgentID)),
	)
	if err != nil {
		clog.FatalContextf(ctx, "creating session controller: %v", err)
	}

	clog.InfoContextf(ctx, "Running %d session(s) for agent %s", len(inputs), cfg.AgentID)
	results := c.RunAll(ctx, inputs, cfg.Concurrency)

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	ok := true
	for _, res := range results {
		if err := enc.Encode(res); err != nil {
			clog.FatalContextf(ctx, "writing result: %v", err)
		}
		ok = ok && res.OK()
	}

	if cfg.Report {
		summary, _ := report.Sessions(results)
		fmt.Fprint(os.Stderr, summary)
	}
	return ok
}

// loadInputs returns the prompts from the batch file, or the command line
// arguments joined as a single prompt.
func loadInputs(batchFile string, args []string) ([]string, error) {
	if batchFile == "" {
		text := strings.TrimSpace(strings.Join(args, " "))
		if text == "" {
			return nil, errors.New("no input text: pass it as arguments or set BATCH_FILE")
		}
		return []string{text}, nil
	}

	f, err := os.Open(batchFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseBatch(f)
}

func parseBatch(r io.Reader) ([]string, error) {
	var b batch
	if err := yaml.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("decoding batch file: %w", err)
	}
	prompts := make([]string, 0, len(b.Prompts))
	for _, p := range b.Prompts {
		if p = strings.TrimSpace(p); p != "" {
			prompts = append(prompts, p)
		}
	}
	if len(prompts) == 0 {
		return nil, errors.New("batch file lists no prompts")
	}
	return prompts, nil
}

func newSink(ctx context.Context, kind string) (sink.Sink, error) {
	switch kind {
	case "memory":
		return memsink.New(memsink.LogSummary(ctx)), nil
	case "otel":
		return otelsink.New(), nil
	case "both":
		return sink.Tee(memsink.New(memsink.LogSummary(ctx)), otelsink.New()), nil
	default:
		return nil, fmt.Errorf("unknown sink %q (want memory, otel or both)", kind)
	}
}
