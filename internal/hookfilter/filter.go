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

// Package hookfilter reads newline-delimited JSON hook events from a pipe
// (normally the agent's stdout, piped into this process's stdin) and
// records each one as a Hook-sourced unified log record. It is the
// thinnest of the three surfaces: every line becomes one record, verbatim,
// or is skipped and logged if it doesn't parse.
package hookfilter

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/datawizz/local-logger/internal/logsink"
	"github.com/datawizz/local-logger/internal/record"
)

// hookEnvelope is the shape a hook event line is expected to carry. Only
// event_type and tool_name are interpreted; the rest of the payload is
// preserved verbatim in hook_event.
type hookEnvelope struct {
	EventType string `json:"event_type"`
	ToolName  string `json:"tool_name"`
}

// Filter reads hook events from a reader and records them through sink.
type Filter struct {
	sink   *logsink.Sink
	logger *slog.Logger
}

// New builds a Filter. logger is the ambient diagnostics logger; it may be
// nil, in which case slog.Default() is used.
func New(sink *logsink.Sink, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{sink: sink, logger: logger}
}

// Run reads newline-delimited JSON from r until EOF, recording one Hook
// record per well-formed line. Malformed lines are logged and skipped; a
// parse failure on one line never aborts the stream, matching the data
// path's "never fatal" posture.
func (f *Filter) Run(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := f.handleLine(line); err != nil {
			f.logger.Warn("hookfilter: skipping malformed line", "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("hookfilter: read: %w", err)
	}
	return nil
}

func (f *Filter) handleLine(line []byte) error {
	var env hookEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if env.EventType == "" {
		return fmt.Errorf("missing event_type")
	}

	raw := make(json.RawMessage, len(line))
	copy(raw, line)

	rec := record.New(time.Now(), record.LevelHook, record.Source{
		Type:      record.SourceHook,
		EventType: env.EventType,
	}).WithHookEvent(raw)

	if env.ToolName != "" {
		rec = rec.WithToolName(env.ToolName)
	}

	if err := f.sink.Append(rec); err != nil {
		f.logger.Error("hookfilter: failed to append record", "error", err)
		return nil // logging failure never fails the data path
	}
	return nil
}
