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

// Package initcmd implements the `init` subcommand: load-or-generate the
// process-local certificate authority (spec.md §4.3).
package initcmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/datawizz/local-logger/internal/ca"
	"github.com/datawizz/local-logger/internal/cli"
	"github.com/datawizz/local-logger/internal/config"
	locallog "github.com/datawizz/local-logger/internal/log"
)

// NewCommand builds the `init` subcommand.
func NewCommand() *cobra.Command {
	var (
		force       bool
		certDir     string
		quiet       bool
		writeConfig string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate or load the local certificate authority",
		Long: `init loads the process-local CA from --cert-dir, generating a new
self-signed root if none exists. Use --force to delete and regenerate the
CA, which invalidates trust in every previously minted leaf certificate.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, force, certDir, quiet, writeConfig)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "delete and regenerate the CA if one already exists")
	cmd.Flags().StringVar(&certDir, "cert-dir", "", "CA directory (default: <recording.output_dir>/certs)")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "suppress non-error output")
	cmd.Flags().StringVar(&writeConfig, "write-config", "", "write a fully-resolved config YAML to this path and exit")

	return cmd
}

func run(cmd *cobra.Command, force bool, certDir string, quiet bool, writeConfig string) error {
	logger := locallog.New(locallog.FromEnv())

	cfg, err := config.Load(cli.ConfigPathFlag, nil)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if writeConfig != "" {
		if err := config.WriteExample(writeConfig, cfg); err != nil {
			return err
		}
		if !quiet {
			cmd.Printf("wrote config to %s\n", writeConfig)
		}
		return nil
	}

	dir := certDir
	if dir == "" {
		dir = cfg.TLS.CertDir
	}

	store, err := ca.LoadOrInit(dir, force, true, logger)
	if err != nil {
		return err
	}

	if !quiet {
		cmd.Printf("CA ready at %s\n", dir)
		cmd.Printf("  certificate: %s\n", store.CertPath())
		cmd.Printf("  private key: %s\n", store.KeyPath())
	}
	logger.Info("init: CA ready", slog.String("cert_dir", dir))
	return nil
}
