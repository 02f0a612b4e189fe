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

// Package mcpcmd implements the `mcp` subcommand: the stdio JSON-RPC tool
// server (spec.md §4.2).
package mcpcmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/datawizz/local-logger/internal/cli"
	"github.com/datawizz/local-logger/internal/config"
	locallog "github.com/datawizz/local-logger/internal/log"
	"github.com/datawizz/local-logger/internal/logsink"
	mcpserver "github.com/datawizz/local-logger/internal/mcp/server"
)

// NewCommand builds the `mcp` subcommand.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP tool server over stdio",
		Long: `mcp serves the log_event, read_logs, and health tools over the
stdio JSON-RPC transport, so an agent launched with this binary configured
as an MCP server can write directly into the unified log.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd)
		},
	}

	return cmd
}

func run(cmd *cobra.Command) error {
	logger := locallog.New(locallog.FromEnv())

	cfg, err := config.Load(cli.ConfigPathFlag, nil)
	if err != nil {
		return cli.NewConfigError("failed to load configuration", err)
	}

	sink := logsink.New(cfg.Recording.OutputDir, logger)
	version, _, _ := cli.GetVersion()

	srv, err := mcpserver.NewServer(mcpserver.Config{
		Name:    "local-logger",
		Version: version,
		Sink:    sink,
		CertDir: cfg.TLS.CertDir,
		Logger:  logger,
	})
	if err != nil {
		return cli.NewConfigError("failed to start MCP server", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		return err
	}

	if ctx.Err() != nil {
		return &cli.ExitError{Code: cli.ExitInterrupted, Message: "interrupted"}
	}
	return nil
}
