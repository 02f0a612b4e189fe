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

// Package proxycmd implements the `proxy` subcommand: the front door and
// MITM tunnel (spec.md §4.5-4.6).
package proxycmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/datawizz/local-logger/internal/ca"
	"github.com/datawizz/local-logger/internal/cli"
	"github.com/datawizz/local-logger/internal/config"
	"github.com/datawizz/local-logger/internal/leafcert"
	locallog "github.com/datawizz/local-logger/internal/log"
	"github.com/datawizz/local-logger/internal/logsink"
	"github.com/datawizz/local-logger/internal/proxy"
)

// NewCommand builds the `proxy` subcommand.
func NewCommand() *cobra.Command {
	var (
		port    int
		address string
	)

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run the HTTPS interception proxy",
		Long: `proxy binds a CONNECT-capable forward proxy. For each allow-listed
target host it terminates TLS with a locally minted leaf certificate,
re-originates the connection to the real origin, and records every
intercepted exchange into the unified log.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, port, address)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "bind port (default from config, normally 6969)")
	cmd.Flags().StringVar(&address, "address", "", "bind address (default from config, normally 127.0.0.1)")

	return cmd
}

func run(cmd *cobra.Command, port int, address string) error {
	logger := locallog.New(locallog.FromEnv())

	cfg, err := config.Load(cli.ConfigPathFlag, nil)
	if err != nil {
		return cli.NewConfigError("failed to load configuration", err)
	}
	if port != 0 {
		cfg.Proxy.ListenPort = port
	}
	if address != "" {
		cfg.Proxy.ListenAddr = address
	}
	if err := cfg.Validate(); err != nil {
		return cli.NewConfigError("invalid configuration", err)
	}

	store, err := ca.LoadOrInit(cfg.TLS.CertDir, false, cfg.TLS.GenerateCA, logger)
	if err != nil {
		if errors.Is(err, ca.ErrCAMissing) {
			return cli.NewConfigError("no CA found in "+cfg.TLS.CertDir+" and tls.generate_ca is false", err)
		}
		return err // propagated as-is so errors.Is(err, ca.ErrCAInconsistent) classifies it
	}

	minter := leafcert.New(store)
	sink := logsink.New(cfg.Recording.OutputDir, logger)

	srv := proxy.NewServer(proxy.Config{
		ListenAddr:    cfg.Proxy.ListenAddr,
		ListenPort:    cfg.Proxy.ListenPort,
		TargetHosts:   cfg.Filtering.TargetHosts,
		IncludeBodies: cfg.Recording.IncludeBodies,
		MaxBodySize:   cfg.Recording.MaxBodySize,
		EnableH2:      cfg.Proxy.EnableH2,
		IdleTimeout:   time.Duration(cfg.Proxy.IdleTimeoutSeconds) * time.Second,
	}, minter, sink, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := ca.WatchDir(ctx, cfg.TLS.CertDir, 500*time.Millisecond, logger, func(reloaded *ca.Store, err error) {
		if err != nil {
			logger.Warn("proxy: CA reload failed, keeping existing leaves", "error", err)
			return
		}
		minter.Reload(reloaded)
		logger.Info("proxy: reloaded CA from disk, leaf cache invalidated")
	})
	if err != nil {
		logger.Warn("proxy: CA directory watch unavailable, continuing without hot-reload", "error", err)
	} else {
		defer watcher.Close()
	}

	if cfg.Observability.MetricsAddr != "" {
		metricsSrv := &http.Server{Addr: cfg.Observability.MetricsAddr, Handler: proxy.MetricsHandler()}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("proxy: metrics listener stopped", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			_ = metricsSrv.Close()
		}()
	}

	if err := srv.Serve(ctx); err != nil {
		return err // may wrap proxy.ErrBindFailed, classified to exit code 3
	}

	if ctx.Err() != nil {
		return &cli.ExitError{Code: cli.ExitInterrupted, Message: "interrupted"}
	}
	return nil
}
