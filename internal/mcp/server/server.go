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

// Package server implements the in-session JSON-RPC tool surface the agent
// talks to over stdio: writing log_event records into the unified log,
// reading them back out, and reporting on-disk health of the CA and log
// directory. It is deliberately thin — the interesting engineering lives in
// internal/proxy, and this package is described only through the log
// records it emits and reads back.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/datawizz/local-logger/internal/logsink"
)

// Server wraps the MCP server and exposes the local-logger tools.
type Server struct {
	mcpServer   *server.MCPServer
	name        string
	version     string
	rateLimiter *RateLimiter
	logger      *slog.Logger

	sink    *logsink.Sink
	logDir  string
	certDir string
}

// Config configures the MCP tool server.
type Config struct {
	// Name is the server name (default: "local-logger").
	Name string

	// Version is the local-logger version string.
	Version string

	// Sink is the unified log sink that log_event writes through.
	Sink *logsink.Sink

	// LogDir is the directory read_logs reads from. Usually Sink.LogDir().
	LogDir string

	// CertDir is the CA directory the health tool inspects.
	CertDir string

	// Logger is the ambient diagnostics logger; writes to stderr so it
	// never collides with the stdio JSON-RPC transport.
	Logger *slog.Logger
}

// createLogger builds a stderr-only logger when the caller didn't supply
// one, matching the stdio-transport constraint: stdout is reserved for
// JSON-RPC frames.
func createLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// NewServer creates a new MCP server instance and registers its tools.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		cfg.Name = "local-logger"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("mcp server: Sink is required")
	}

	logger := createLogger(cfg.Logger)
	mcpServer := server.NewMCPServer(cfg.Name, cfg.Version)

	s := &Server{
		mcpServer:   mcpServer,
		name:        cfg.Name,
		version:     cfg.Version,
		rateLimiter: NewRateLimiter(60, 300),
		logger:      logger,
		sink:        cfg.Sink,
		logDir:      cfg.LogDir,
		certDir:     cfg.CertDir,
	}
	if s.logDir == "" {
		s.logDir = cfg.Sink.LogDir()
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("mcp server: register tools: %w", err)
	}

	return s, nil
}

// registerTools registers log_event, read_logs, and health with the MCP
// server.
func (s *Server) registerTools() error {
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "log_event",
		Description: "Append a message to the unified local-logger log as an Mcp-sourced record.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"message": map[string]interface{}{
					"type":        "string",
					"description": "Human-readable message to record",
				},
				"level": map[string]interface{}{
					"type":        "string",
					"description": "Record level: INFO, WARN, or ERROR (default INFO)",
				},
			},
			Required: []string{"message"},
		},
	}, s.handleLogEvent)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "read_logs",
		Description: "Read back unified log records for a given UTC date (YYYY-MM-DD, default today).",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"date": map[string]interface{}{
					"type":        "string",
					"description": "UTC date to read, YYYY-MM-DD (default: today)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of records to return, most recent first (default 100)",
				},
			},
		},
	}, s.handleReadLogs)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "health",
		Description: "Report on-disk health of the CA directory and the log sink.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleHealth)

	return nil
}

// Run starts the MCP server using stdio transport and blocks until the
// transport closes or the process receives SIGINT or SIGTERM, which
// server.ServeStdio handles itself. ctx is not consulted.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting local-logger MCP server", "version", s.version)
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// errorResponse builds a tool-error result.
func errorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

// textResponse builds a plain-text tool result.
func textResponse(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(text)},
	}
}
