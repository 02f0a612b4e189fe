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
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/datawizz/local-logger/internal/record"
)

// handleLogEvent implements the log_event tool: it appends a single
// Mcp-sourced record to the unified log.
func (s *Server) handleLogEvent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.rateLimiter.AllowCall() {
		return errorResponse("rate limit exceeded, try again later"), nil
	}

	message, err := request.RequireString("message")
	if err != nil {
		return errorResponse("missing or invalid 'message' argument"), nil
	}

	level := record.LevelInfo
	if lvl := strings.ToUpper(strings.TrimSpace(request.GetString("level", ""))); lvl != "" {
		switch record.Level(lvl) {
		case record.LevelInfo, record.LevelWarn, record.LevelError:
			level = record.Level(lvl)
		default:
			return errorResponse("invalid 'level': must be INFO, WARN, or ERROR"), nil
		}
	}

	rec := record.New(time.Now(), level, record.Source{Type: record.SourceMcp}).WithMessage(message)
	if err := s.sink.Append(rec); err != nil {
		return errorResponse("failed to append log record: " + err.Error()), nil
	}

	return textResponse("logged"), nil
}
