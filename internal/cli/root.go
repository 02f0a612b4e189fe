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

// Package cli builds the root Cobra command. The CLI surface itself is an
// external contract (spec.md §6): the subcommands and flags here are fixed
// points the core components are wired behind, not reinvented per command.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// SetVersion sets the version information reported by the version command
// and in startup logs. Called from main before Execute.
func SetVersion(v, c, b string) {
	version, commit, buildDate = v, c, b
}

// GetVersion returns the version information set by SetVersion.
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// ConfigPathFlag is bound by every subcommand that reads configuration; it
// holds the value of the persistent --config flag.
var ConfigPathFlag string

// NewRootCommand creates the root Cobra command. Subcommands are added by
// main, which owns the wiring between the CLI surface and the concrete
// proxy/CA/MCP/hook-filter implementations.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "local-logger",
		Short: "Record traffic between a CLI coding agent and its API",
		Long: `local-logger observes and records traffic between a command-line AI
coding agent and its remote API through three surfaces that share one
append-only log: an MCP tool server, a stdin hook-event filter, and an
HTTPS interception proxy.

Run 'local-logger init' once to generate the local certificate authority,
then 'local-logger proxy' to start intercepting.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&ConfigPathFlag, "config", "", "path to config file (YAML)")

	return cmd
}
