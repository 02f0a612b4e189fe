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

// Package config merges file-based configuration, environment overrides,
// and CLI flags into the settings the proxy, MCP server, and hook filter
// are started with.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when validation fails after the file/env/flag
// layers have all been merged.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the complete resolved configuration for all three surfaces.
type Config struct {
	Proxy         ProxyConfig         `mapstructure:"proxy" yaml:"proxy"`
	TLS           TLSConfig           `mapstructure:"tls" yaml:"tls"`
	Recording     RecordingConfig     `mapstructure:"recording" yaml:"recording"`
	Filtering     FilteringConfig     `mapstructure:"filtering" yaml:"filtering"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
}

// ProxyConfig configures the front door's listener.
type ProxyConfig struct {
	// ListenAddr is the bind address. Environment: CLAUDE_LOGGER_PROXY_ADDR.
	// Default: 127.0.0.1
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`

	// ListenPort is the bind port. Environment: CLAUDE_LOGGER_PROXY_PORT.
	// Default: 6969
	ListenPort int `mapstructure:"listen_port" yaml:"listen_port"`

	// EnableH2 gates optional HTTP/2 support on the MITM tunnel. When false
	// the proxy advertises only http/1.1 in ALPN.
	EnableH2 bool `mapstructure:"enable_h2" yaml:"enable_h2"`

	// IdleTimeoutSeconds is applied by the HTTP/1.1 engine as a read deadline
	// on the client side of an intercepted connection, set before each
	// request is read; when it expires the connection is closed. Reads from
	// the upstream side and HTTP/2 connections are not bounded by it.
	// Default: 300
	IdleTimeoutSeconds int `mapstructure:"idle_timeout_seconds" yaml:"idle_timeout_seconds"`
}

// TLSConfig configures the process-local certificate authority.
type TLSConfig struct {
	// CertDir is the CA directory. Environment: CLAUDE_LOGGER_PROXY_CERT_DIR.
	// Default: <recording.output_dir>/certs
	CertDir string `mapstructure:"cert_dir" yaml:"cert_dir"`

	// GenerateCA auto-initializes the CA if missing. Default: true.
	GenerateCA bool `mapstructure:"generate_ca" yaml:"generate_ca"`
}

// RecordingConfig configures what the exchange recorder captures.
type RecordingConfig struct {
	// OutputDir is the log directory. Environment: CLAUDE_MCP_LOCAL_LOGGER_DIR.
	// Default: ~/.local-logger
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`

	// IncludeBodies captures request/response bodies when true. Default: true.
	IncludeBodies bool `mapstructure:"include_bodies" yaml:"include_bodies"`

	// MaxBodySize caps captured body bytes. Default: 10485760 (10 MiB).
	MaxBodySize int `mapstructure:"max_body_size" yaml:"max_body_size"`

	// PrettyPrint is ignored by the engine; reserved, kept for config
	// compatibility since NDJSON precludes pretty-printing per line.
	PrettyPrint bool `mapstructure:"pretty_print" yaml:"pretty_print"`
}

// FilteringConfig configures which upstream hosts are intercepted.
type FilteringConfig struct {
	// TargetHosts is the allow-list. Exact, case-insensitive hostname match.
	// Default: ["api.anthropic.com"]
	TargetHosts []string `mapstructure:"target_hosts" yaml:"target_hosts"`

	// CapturePatterns is reserved for future body-matching filters; unused
	// by the core engine.
	CapturePatterns []string `mapstructure:"capture_patterns" yaml:"capture_patterns"`
}

// ObservabilityConfig configures ambient metrics, outside the distilled
// recording path.
type ObservabilityConfig struct {
	// MetricsAddr, if non-empty, serves Prometheus metrics on this address.
	// Empty disables the metrics endpoint entirely.
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// Load merges defaults, an optional YAML file at configPath, environment
// variables, and already-parsed CLI flags, in that precedence order
// (flags last, so they win).
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	cfg.applyComputedDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("proxy.listen_addr", "127.0.0.1")
	v.SetDefault("proxy.listen_port", 6969)
	v.SetDefault("proxy.enable_h2", false)
	v.SetDefault("proxy.idle_timeout_seconds", 300)

	v.SetDefault("tls.generate_ca", true)

	v.SetDefault("recording.include_bodies", true)
	v.SetDefault("recording.max_body_size", 10*1024*1024)
	v.SetDefault("recording.pretty_print", true)

	v.SetDefault("filtering.target_hosts", []string{"api.anthropic.com"})
	v.SetDefault("filtering.capture_patterns", []string{})

	v.SetDefault("observability.metrics_addr", "")
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("proxy.listen_addr", "CLAUDE_LOGGER_PROXY_ADDR")
	_ = v.BindEnv("proxy.listen_port", "CLAUDE_LOGGER_PROXY_PORT")
	_ = v.BindEnv("tls.cert_dir", "CLAUDE_LOGGER_PROXY_CERT_DIR")
	_ = v.BindEnv("recording.output_dir", "CLAUDE_MCP_LOCAL_LOGGER_DIR")
}

// applyComputedDefaults fills in defaults that depend on another resolved
// field rather than a static literal (recording.output_dir, tls.cert_dir).
func (c *Config) applyComputedDefaults() {
	if c.Recording.OutputDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.Recording.OutputDir = filepath.Join(home, ".local-logger")
	}
	if c.TLS.CertDir == "" {
		c.TLS.CertDir = filepath.Join(c.Recording.OutputDir, "certs")
	}
}

// WriteExample renders a fully-resolved Config as YAML and writes it to
// path, creating parent directories as needed. Used by `init --write-config`
// to hand operators a starting file with every key spelled out, rather than
// leaving the defaults implicit.
func WriteExample(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create %s: %w", filepath.Dir(path), err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal example: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Validate checks the constraints from the config table: port range,
// non-negative body cap, a non-empty allow-list, and a creatable cert dir.
func (c *Config) Validate() error {
	if c.Proxy.ListenPort < 1 || c.Proxy.ListenPort > 65535 {
		return fmt.Errorf("%w: proxy.listen_port %d out of range [1, 65535]", ErrInvalidConfig, c.Proxy.ListenPort)
	}
	if c.Recording.MaxBodySize < 0 {
		return fmt.Errorf("%w: recording.max_body_size must be >= 0", ErrInvalidConfig)
	}
	if len(c.Filtering.TargetHosts) == 0 {
		return fmt.Errorf("%w: filtering.target_hosts must be non-empty", ErrInvalidConfig)
	}
	for _, h := range c.Filtering.TargetHosts {
		if strings.TrimSpace(h) == "" {
			return fmt.Errorf("%w: filtering.target_hosts contains an empty entry", ErrInvalidConfig)
		}
	}
	if err := os.MkdirAll(c.TLS.CertDir, 0o755); err != nil {
		return fmt.Errorf("%w: tls.cert_dir %q is not creatable: %v", ErrInvalidConfig, c.TLS.CertDir, err)
	}
	return nil
}
