/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Kind identifies which variant of Raw is populated.
type Kind int

const (
	// KindOther is any value that is not text, bytes or a JSON object.
	KindOther Kind = iota
	// KindText is a textual payload that may contain JSON.
	KindText
	// KindBytes is a binary payload that may contain UTF-8 encoded JSON.
	KindBytes
	// KindStructured is an already decoded JSON object.
	KindStructured
)

// String implements fmt.Stringer
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBytes:
		return "bytes"
	case KindStructured:
		return "structured"
	default:
		return "other"
	}
}

// Raw is a payload as it arrives from the agent backend, before normalization.
// Exactly one of the variant fields is meaningful, selected by Kind.
type Raw struct {
	kind       Kind
	text       string
	bytes      []byte
	structured map[string]any
	other      any
}

// FromText wraps a textual payload.
func FromText(s string) Raw { return Raw{kind: KindText, text: s} }

// FromBytes wraps a binary payload.
func FromBytes(b []byte) Raw { return Raw{kind: KindBytes, bytes: b} }

// FromMap wraps an already structured payload.
func FromMap(m map[string]any) Raw { return Raw{kind: KindStructured, structured: m} }

// FromValue wraps an arbitrary value, picking the most specific variant.
func FromValue(v any) Raw {
	switch v := v.(type) {
	case string:
		return FromText(v)
	case []byte:
		return FromBytes(v)
	case map[string]any:
		return FromMap(v)
	default:
		return Raw{kind: KindOther, other: v}
	}
}

// FromJSON maps an undecoded JSON field onto a Raw payload.
// A JSON string becomes Text, a JSON object becomes Structured, an absent or null
// field becomes empty Text, and anything else (numbers, arrays, booleans) becomes
// Other holding the decoded value. Input that is not valid JSON is kept as Bytes.
func FromJSON(msg json.RawMessage) Raw {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return FromText("")
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return FromBytes(msg)
	}
	return FromValue(v)
}

// Kind returns the populated variant.
func (r Raw) Kind() Kind { return r.kind }

// Normalize coerces a raw payload into a structured value.
// It never panics and never returns nil: anything that cannot be decoded as JSON
// is wrapped as {"content": <text>}.
func Normalize(r Raw) any {
	switch r.kind {
	case KindText:
		if v, ok := parse([]byte(r.text)); ok {
			return v
		}
		return wrap(r.text)

	case KindBytes:
		if utf8.Valid(r.bytes) {
			if v, ok := parse(r.bytes); ok {
				return v
			}
		}
		return wrap(fmt.Sprintf("%q", r.bytes))

	case KindStructured:
		if r.structured == nil {
			return map[string]any{}
		}
		return r.structured

	default:
		return wrap(fmt.Sprint(r.other))
	}
}

// Render serializes a normalized value as JSON text.
// Non-ASCII and HTML characters are written as-is.
func Render(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// Truncate shortens s to at most max bytes, ending in "..." when cut.
// The cut never splits a multibyte character.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return "..."[:max]
	}
	i := max - 3
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i] + "..."
}

func parse(b []byte) (any, bool) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, false
	}
	if v == nil {
		// JSON null carries no structure.
		return map[string]any{}, true
	}
	return v, true
}

func wrap(content string) map[string]any {
	return map[string]any{"content": content}
}
