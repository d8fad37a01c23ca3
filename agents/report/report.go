/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package report renders session results as a markdown summary table.
package report

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"chainguard.dev/bedrocktrace/agents/payload"
	"chainguard.dev/bedrocktrace/agents/session"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

const maxInputLen = 40

var headers = []string{"Input", "Status", "Trace", "Records", "Chunk errors", "Generations", "Anomalies", "Duration"}

// Sessions renders one row per result followed by a totals line.
// It reports whether any session failed.
func Sessions(results []session.Result) (string, bool) {
	var buf bytes.Buffer
	table := newSummaryTable(&buf)

	var failed, records, chunkErrors int
	for _, r := range results {
		status := string(r.Status)
		trace := r.TraceID
		if !r.OK() {
			failed++
			status = fmt.Sprintf("❌ %s", r.Status)
			trace = truncate(r.Message, maxInputLen)
		}
		records += r.Records
		chunkErrors += r.ChunkErrors

		_ = table.Append([]string{
			truncate(r.Input, maxInputLen),
			status,
			trace,
			fmt.Sprint(r.Records),
			fmt.Sprint(r.ChunkErrors),
			fmt.Sprint(r.Generations),
			anomalies(r),
			r.Duration.Round(time.Millisecond).String(),
		})
	}
	_ = table.Render()

	fmt.Fprintf(&buf, "\n%d sessions, %d failed, %d records, %d chunk errors\n",
		len(results), failed, records, chunkErrors)
	return buf.String(), failed > 0
}

func anomalies(r session.Result) string {
	if len(r.Anomalies) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(r.Anomalies))
	for _, k := range slices.Sorted(maps.Keys(r.Anomalies)) {
		if n := r.Anomalies[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", k, n))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

// newSummaryTable writes a left-aligned markdown table without top or bottom rules.
func newSummaryTable(w io.Writer) *tablewriter.Table {
	cell := tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignLeft}}
	header := cell
	header.Formatting = tw.CellFormatting{AutoFormat: tw.Off}

	return tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Header:   header,
			Row:      cell,
			Behavior: tw.Behavior{TrimSpace: tw.Off},
		}),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{Left: tw.On, Top: tw.Off, Right: tw.On, Bottom: tw.Off},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

// truncate flattens s onto one line so it fits a table cell.
func truncate(s string, max int) string {
	return payload.Truncate(strings.ReplaceAll(s, "\n", " "), max)
}
