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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawizz/local-logger/internal/logsink"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	sink := logsink.New(dir, nil)
	s, err := NewServer(Config{Sink: sink, LogDir: dir, CertDir: filepath.Join(dir, "certs")})
	require.NoError(t, err)
	return s, dir
}

func callTool(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func TestHandleLogEvent_AppendsMcpRecord(t *testing.T) {
	s, dir := newTestServer(t)

	result, err := s.handleLogEvent(context.Background(), callTool(map[string]interface{}{
		"message": "hello from the agent",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	records, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Name(), time.Now().UTC().Format("2006-01-02"))
}

func TestHandleLogEvent_RejectsInvalidLevel(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleLogEvent(context.Background(), callTool(map[string]interface{}{
		"message": "x",
		"level":   "SUPER",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleLogEvent_RejectsMissingMessage(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleLogEvent(context.Background(), callTool(map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleReadLogs_ReturnsAppendedRecords(t *testing.T) {
	s, _ := newTestServer(t)

	_, err := s.handleLogEvent(context.Background(), callTool(map[string]interface{}{"message": "one"}))
	require.NoError(t, err)
	_, err = s.handleLogEvent(context.Background(), callTool(map[string]interface{}{"message": "two"}))
	require.NoError(t, err)

	result, err := s.handleReadLogs(context.Background(), callTool(map[string]interface{}{}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	assert.Contains(t, text.Text, "one")
	assert.Contains(t, text.Text, "two")
}

func TestHandleReadLogs_RespectsLimit(t *testing.T) {
	s, _ := newTestServer(t)

	for i := 0; i < 5; i++ {
		_, err := s.handleLogEvent(context.Background(), callTool(map[string]interface{}{"message": "msg"}))
		require.NoError(t, err)
	}

	result, err := s.handleReadLogs(context.Background(), callTool(map[string]interface{}{
		"limit": float64(2),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	var got []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &got))
	assert.Len(t, got, 2)
}

func TestHandleHealth_ReportsWarnWhenCAUninitialized(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleHealth(context.Background(), callTool(map[string]interface{}{}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	assert.Contains(t, text.Text, "CA directory")
	assert.Contains(t, text.Text, "CA not yet initialized")
}

func TestRateLimiter_BlocksAfterBudgetExhausted(t *testing.T) {
	rl := NewRateLimiter(0, 2)
	assert.True(t, rl.AllowCall())
	assert.True(t, rl.AllowCall())
	assert.False(t, rl.AllowCall())
}
