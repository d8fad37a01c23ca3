/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package bedrock

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/chainguard-dev/clog"
)

// maxRecordSize bounds a single captured record. Orchestration traces embed
// full prompts, which regularly exceed bufio's 64KiB default.
const maxRecordSize = 16 << 20

// replayStream reads newline-delimited JSON records.
type replayStream struct {
	ctx     context.Context
	scanner *bufio.Scanner
	closer  io.Closer
	current json.RawMessage
	line    int
	err     error
}

// NewReplay returns a Stream over newline-delimited JSON records read from r.
// Blank lines are skipped. Lines are not validated here; a malformed line is
// surfaced as a record so that the consumer can treat it as a per-record failure.
// Iteration stops with ctx.Err() once ctx is done.
func NewReplay(ctx context.Context, r io.Reader) Stream {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)

	s := &replayStream{ctx: ctx, scanner: scanner}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Next implements Stream
func (s *replayStream) Next() bool {
	if s.err != nil {
		return false
	}
	for {
		if err := s.ctx.Err(); err != nil {
			s.err = err
			return false
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				s.err = fmt.Errorf("reading record after line %d: %w", s.line, err)
			}
			s.current = nil
			return false
		}
		s.line++

		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		// The scanner reuses its buffer.
		s.current = append(json.RawMessage(nil), line...)
		return true
	}
}

// Current implements Stream
func (s *replayStream) Current() json.RawMessage { return s.current }

// Err implements Stream
func (s *replayStream) Err() error { return s.err }

// Close implements Stream
func (s *replayStream) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// ReplayFile returns a Backend that replays the records captured in path.
// Every invocation reopens the file, so the backend can serve concurrent sessions.
func ReplayFile(path string) Backend {
	return BackendFunc(func(ctx context.Context, input InvokeInput) (Stream, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening replay file: %w", err)
		}

		clog.FromContext(ctx).With("path", path).
			With("session_id", input.SessionID).
			Debug("Replaying captured agent stream")

		return NewReplay(ctx, f), nil
	})
}
