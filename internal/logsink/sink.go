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

// Package logsink is the single append-only NDJSON writer shared by the MCP
// tool server, the hook filter, and the interception proxy. Every record
// any of those three surfaces emits passes through a Sink before it becomes
// a line on disk.
package logsink

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/datawizz/local-logger/internal/record"
)

// Sink appends records to daily-rotated NDJSON files under a log directory.
// A single process-wide mutex serializes writes so two goroutines racing to
// append never interleave partial lines; callers never see torn records.
type Sink struct {
	logDir string
	logger *slog.Logger

	mu      sync.Mutex
	openErr bool // not set or read by Append, which attempts MkdirAll on every call
}

// New returns a Sink rooted at logDir. The directory is created lazily on
// first Append, not here, so constructing a Sink never fails.
func New(logDir string, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{logDir: logDir, logger: logger}
}

// Append writes rec as one NDJSON line to <logDir>/<rec.Date>.jsonl. Failures
// are reported to the process logger and returned to the caller; the record
// is not retried. The proxy and hook-filter callers log the returned error
// and carry on, so a failing log write never stalls their data path.
func (s *Sink) Append(rec *record.Record) error {
	if err := rec.Validate(); err != nil {
		s.logger.Warn("logsink: dropping invalid record", "error", err)
		return err
	}

	line, err := rec.Line()
	if err != nil {
		s.logger.Warn("logsink: dropping unmarshalable record", "error", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.logDir, 0o755); err != nil {
		s.logger.Error("logsink: cannot create log directory", "dir", s.logDir, "error", err)
		return fmt.Errorf("logsink: mkdir %s: %w", s.logDir, err)
	}

	path := filepath.Join(s.logDir, rec.Date+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.Error("logsink: cannot open log file", "path", path, "error", err)
		return fmt.Errorf("logsink: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		s.logger.Error("logsink: write failed", "path", path, "error", err)
		return fmt.Errorf("logsink: write %s: %w", path, err)
	}
	return nil
}

// LogDir returns the directory this Sink writes into.
func (s *Sink) LogDir() string {
	return s.logDir
}
