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

package record

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ReadFile parses one day's NDJSON log file, returning every successfully
// decoded record. Malformed lines are skipped rather than aborting the
// read — this mirrors the data path's own best-effort posture and keeps a
// single corrupt line from hiding the rest of the day's records from the
// MCP server's read_logs tool.
func ReadFile(path string) ([]*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("record: open %s: %w", path, err)
	}
	defer f.Close()

	var records []*Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, &rec)
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return records, fmt.Errorf("record: scan %s: %w", path, err)
	}
	return records, nil
}

// ReadDate parses "<logDir>/<date>.jsonl" for date in YYYY-MM-DD form.
func ReadDate(logDir, date string) ([]*Record, error) {
	return ReadFile(filepath.Join(logDir, date+".jsonl"))
}
