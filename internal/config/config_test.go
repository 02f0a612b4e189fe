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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CLAUDE_LOGGER_PROXY_ADDR", "")
	t.Setenv("CLAUDE_LOGGER_PROXY_PORT", "")
	t.Setenv("CLAUDE_LOGGER_PROXY_CERT_DIR", "")
	t.Setenv("CLAUDE_MCP_LOCAL_LOGGER_DIR", "")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Proxy.ListenAddr)
	assert.Equal(t, 6969, cfg.Proxy.ListenPort)
	assert.False(t, cfg.Proxy.EnableH2)
	assert.Equal(t, 300, cfg.Proxy.IdleTimeoutSeconds)
	assert.True(t, cfg.TLS.GenerateCA)
	assert.True(t, cfg.Recording.IncludeBodies)
	assert.Equal(t, 10*1024*1024, cfg.Recording.MaxBodySize)
	assert.Equal(t, []string{"api.anthropic.com"}, cfg.Filtering.TargetHosts)
	assert.Empty(t, cfg.Observability.MetricsAddr)
}

func TestLoad_ComputedDefaults(t *testing.T) {
	t.Setenv("CLAUDE_MCP_LOCAL_LOGGER_DIR", "")
	t.Setenv("CLAUDE_LOGGER_PROXY_CERT_DIR", "")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".local-logger"), cfg.Recording.OutputDir)
	assert.Equal(t, filepath.Join(cfg.Recording.OutputDir, "certs"), cfg.TLS.CertDir)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("CLAUDE_LOGGER_PROXY_ADDR", "0.0.0.0")
	t.Setenv("CLAUDE_LOGGER_PROXY_PORT", "9999")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Proxy.ListenAddr)
	assert.Equal(t, 9999, cfg.Proxy.ListenPort)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
proxy:
  listen_port: 7000
filtering:
  target_hosts:
    - api.example.com
    - api.other.com
`), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Proxy.ListenPort)
	assert.Equal(t, []string{"api.example.com", "api.other.com"}, cfg.Filtering.TargetHosts)
}

func TestLoad_InvalidFilePath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid default config",
			modify: func(c *Config) {},
		},
		{
			name: "port too low",
			modify: func(c *Config) {
				c.Proxy.ListenPort = 0
			},
			wantErr: "listen_port",
		},
		{
			name: "port too high",
			modify: func(c *Config) {
				c.Proxy.ListenPort = 70000
			},
			wantErr: "listen_port",
		},
		{
			name: "negative max body size",
			modify: func(c *Config) {
				c.Recording.MaxBodySize = -1
			},
			wantErr: "max_body_size",
		},
		{
			name: "empty target hosts",
			modify: func(c *Config) {
				c.Filtering.TargetHosts = nil
			},
			wantErr: "target_hosts",
		},
		{
			name: "blank target host entry",
			modify: func(c *Config) {
				c.Filtering.TargetHosts = []string{"api.anthropic.com", "  "}
			},
			wantErr: "target_hosts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("", nil)
			require.NoError(t, err)
			tt.modify(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWriteExample_RoundTrips(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	require.NoError(t, WriteExample(path, cfg))
	require.FileExists(t, path)

	reloaded, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.Proxy.ListenPort, reloaded.Proxy.ListenPort)
	assert.Equal(t, cfg.Filtering.TargetHosts, reloaded.Filtering.TargetHosts)
}

func TestValidate_CertDirNotCreatable(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	// A regular file can't be mkdir'd into, so pointing cert_dir through one
	// forces the creatability check to fail.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	cfg.TLS.CertDir = filepath.Join(blocker, "certs")

	err = cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
