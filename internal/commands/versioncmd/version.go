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

// Package versioncmd implements the `version` subcommand.
package versioncmd

import (
	"github.com/spf13/cobra"

	"github.com/datawizz/local-logger/internal/cli"
)

// NewCommand builds the `version` subcommand.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date for local-logger.`,
		RunE:  run,
	}

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	v, c, b := cli.GetVersion()
	cmd.Printf("local-logger version %s\n", v)
	cmd.Printf("  commit:     %s\n", c)
	cmd.Printf("  build date: %s\n", b)
	return nil
}
