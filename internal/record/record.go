// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package record defines the unified log record shape shared by the MCP
// tool server, the hook filter, and the HTTPS interception proxy. It is
// pure data with a serializer; deserialization is only used by the
// read-back helper in readback.go.
package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// Level is the severity/category of a unified log record.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
	LevelHook  Level = "HOOK"
	LevelProxy Level = "PROXY"
)

// SourceType discriminates the tagged union in Source.
type SourceType string

const (
	SourceMcp   SourceType = "Mcp"
	SourceHook  SourceType = "Hook"
	SourceProxy SourceType = "Proxy"
)

// Direction distinguishes the two halves of a proxy exchange.
type Direction string

const (
	DirectionRequest  Direction = "request"
	DirectionResponse Direction = "response"
)

// Source is the tagged union describing which surface emitted a record.
// Exactly one of the three shapes applies, selected by Type.
type Source struct {
	Type SourceType `json:"type"`

	// EventType is populated only when Type == SourceHook.
	EventType string `json:"event_type,omitempty"`

	// SessionID and Direction are populated only when Type == SourceProxy.
	SessionID string    `json:"session_id,omitempty"`
	Direction Direction `json:"direction,omitempty"`
}

// Record is the single shape written one per line as NDJSON.
type Record struct {
	Timestamp time.Time       `json:"timestamp"`
	Date      string          `json:"date"`
	Level     Level           `json:"level"`
	Message   *string         `json:"message"`
	SessionID *string         `json:"session_id"`
	ToolName  *string         `json:"tool_name"`
	HookEvent json.RawMessage `json:"hook_event"`
	ProxyEvent *ProxyEvent    `json:"proxy_event"`
	Source    Source          `json:"source"`
}

// ProxyEvent is the structured payload attached to Proxy-sourced records.
// Request-only and response-only fields are left zero/nil on the other side.
type ProxyEvent struct {
	Method     string              `json:"method,omitempty"`
	URI        string              `json:"uri,omitempty"`
	Status     int                 `json:"status,omitempty"`
	Headers    map[string][]string `json:"headers,omitempty"`
	Body       *string             `json:"body"`
	Encoding   string              `json:"encoding,omitempty"`
	Truncated  bool                `json:"truncated"`
	Error      *string             `json:"error"`
}

// New constructs a Record with Date derived from Timestamp (UTC) and the
// given Level/Source, leaving all optional fields nil.
func New(ts time.Time, level Level, source Source) *Record {
	utc := ts.UTC()
	return &Record{
		Timestamp: utc,
		Date:      utc.Format("2006-01-02"),
		Level:     level,
		Source:    source,
	}
}

// WithMessage sets the human message field and returns the record for chaining.
func (r *Record) WithMessage(msg string) *Record {
	r.Message = &msg
	return r
}

// WithSessionID sets the top-level session_id field (mirroring Source.SessionID
// for Proxy records, or standing alone for MCP/Hook records that want correlation).
func (r *Record) WithSessionID(id string) *Record {
	r.SessionID = &id
	return r
}

// WithToolName sets the hook tool_name field.
func (r *Record) WithToolName(name string) *Record {
	r.ToolName = &name
	return r
}

// WithHookEvent attaches the raw hook payload verbatim.
func (r *Record) WithHookEvent(raw json.RawMessage) *Record {
	r.HookEvent = raw
	return r
}

// WithProxyEvent attaches the structured proxy event payload.
func (r *Record) WithProxyEvent(ev *ProxyEvent) *Record {
	r.ProxyEvent = ev
	return r
}

// Line marshals the record to a single NDJSON line, including the
// terminating newline, and validates that no embedded newline survived
// into the encoded bytes (the append-only invariant in spec.md §3/§4.1).
func (r *Record) Line() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("record: marshal: %w", err)
	}
	for _, b := range data {
		if b == '\n' {
			return nil, fmt.Errorf("record: marshaled record contains an embedded newline")
		}
	}
	data = append(data, '\n')
	return data, nil
}

// Validate checks the source-type/optional-field invariants described in
// spec.md §3: "source.type determines which optional fields are populated".
func (r *Record) Validate() error {
	if r.Date == "" {
		return fmt.Errorf("record: date is required")
	}
	wantDate := r.Timestamp.UTC().Format("2006-01-02")
	if r.Date != wantDate {
		return fmt.Errorf("record: date %q does not match timestamp %q", r.Date, wantDate)
	}

	switch r.Source.Type {
	case SourceMcp:
		if r.ToolName != nil || r.HookEvent != nil {
			return fmt.Errorf("record: Mcp source must not populate hook fields")
		}
		if r.ProxyEvent != nil {
			return fmt.Errorf("record: Mcp source must not populate proxy_event")
		}
	case SourceHook:
		if r.ProxyEvent != nil {
			return fmt.Errorf("record: Hook source must not populate proxy_event")
		}
		if r.Source.EventType == "" {
			return fmt.Errorf("record: Hook source requires event_type")
		}
	case SourceProxy:
		if r.ToolName != nil || r.HookEvent != nil {
			return fmt.Errorf("record: Proxy source must not populate hook fields")
		}
		if r.Source.SessionID == "" {
			return fmt.Errorf("record: Proxy source requires session_id")
		}
		if r.Source.Direction != DirectionRequest && r.Source.Direction != DirectionResponse {
			return fmt.Errorf("record: Proxy source requires a request/response direction")
		}
	default:
		return fmt.Errorf("record: unknown source type %q", r.Source.Type)
	}
	return nil
}
