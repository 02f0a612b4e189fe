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

// Package hookcmd implements the `hook-filter` subcommand: the stdin NDJSON
// hook-event reader (spec.md §4.4).
package hookcmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/datawizz/local-logger/internal/cli"
	"github.com/datawizz/local-logger/internal/config"
	"github.com/datawizz/local-logger/internal/hookfilter"
	locallog "github.com/datawizz/local-logger/internal/log"
	"github.com/datawizz/local-logger/internal/logsink"
)

// NewCommand builds the `hook-filter` subcommand.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook-filter",
		Short: "Record newline-delimited JSON hook events from stdin",
		Long: `hook-filter reads newline-delimited JSON hook events from standard
input, one JSON object per line, and records each as a Hook-sourced record
in the unified log. Malformed lines are logged and skipped rather than
aborting the stream; configure the agent's hook command to pipe into this
subcommand.`,
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
	filter := hookfilter.New(sink, logger)

	if err := filter.Run(os.Stdin); err != nil {
		return cli.NewConfigError("hook filter failed", err)
	}
	return nil
}
