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

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/datawizz/local-logger/internal/record"
)

const defaultReadLogsLimit = 100

// handleReadLogs implements the read_logs tool: the JSON-RPC-exposed
// read-back helper spec.md §4.2 calls for. It parses one day's NDJSON file
// and returns the most recent records, most recent first.
func (s *Server) handleReadLogs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.rateLimiter.AllowCall() {
		return errorResponse("rate limit exceeded, try again later"), nil
	}

	date := request.GetString("date", "")
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}

	limit := defaultReadLogsLimit
	if args := request.GetArguments(); args != nil {
		if raw, ok := args["limit"]; ok {
			if f, ok := raw.(float64); ok && f > 0 {
				limit = int(f)
			}
		}
	}

	records, err := record.ReadDate(s.logDir, date)
	if err != nil {
		return errorResponse(fmt.Sprintf("failed to read logs for %s: %v", date, err)), nil
	}

	if len(records) > limit {
		records = records[len(records)-limit:]
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errorResponse(fmt.Sprintf("failed to encode records: %v", err)), nil
	}

	return textResponse(string(out)), nil
}
