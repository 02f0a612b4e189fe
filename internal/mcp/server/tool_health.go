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
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
)

// HealthResult reports the on-disk health of the CA directory and the log
// sink, the two pieces of process state the proxy depends on at startup.
type HealthResult struct {
	Healthy bool          `json:"healthy"`
	Version string        `json:"version"`
	Checks  []HealthCheck `json:"checks"`
}

// HealthCheck is a single pass/warn/fail diagnostic.
type HealthCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "pass", "warn", "fail"
	Message string `json:"message"`
}

// handleHealth implements the health tool.
func (s *Server) handleHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.rateLimiter.AllowCall() {
		return errorResponse("rate limit exceeded, try again later"), nil
	}

	result := HealthResult{Healthy: true, Version: s.version}

	caCheck := s.checkCA()
	result.Checks = append(result.Checks, caCheck)
	if caCheck.Status == "fail" {
		result.Healthy = false
	}

	logCheck := s.checkLogDir()
	result.Checks = append(result.Checks, logCheck)
	if logCheck.Status == "fail" {
		result.Healthy = false
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errorResponse(fmt.Sprintf("failed to encode health result: %v", err)), nil
	}
	return textResponse(string(out)), nil
}

func (s *Server) checkCA() HealthCheck {
	if s.certDir == "" {
		return HealthCheck{Name: "CA directory", Status: "warn", Message: "no cert_dir configured"}
	}
	certPath := filepath.Join(s.certDir, "ca.pem")
	keyPath := filepath.Join(s.certDir, "ca.key")
	_, certErr := os.Stat(certPath)
	info, keyErr := os.Stat(keyPath)
	switch {
	case certErr == nil && keyErr == nil:
		if info.Mode().Perm() != 0o600 {
			return HealthCheck{
				Name:    "CA directory",
				Status:  "warn",
				Message: fmt.Sprintf("ca.key permissions are %v, expected 0600", info.Mode().Perm()),
			}
		}
		return HealthCheck{Name: "CA directory", Status: "pass", Message: fmt.Sprintf("CA present at %s", s.certDir)}
	case os.IsNotExist(certErr) && os.IsNotExist(keyErr):
		return HealthCheck{Name: "CA directory", Status: "warn", Message: "CA not yet initialized; run init or start the proxy"}
	default:
		return HealthCheck{Name: "CA directory", Status: "fail", Message: "CA cert/key pair is inconsistent: exactly one file present"}
	}
}

func (s *Server) checkLogDir() HealthCheck {
	if s.logDir == "" {
		return HealthCheck{Name: "Log directory", Status: "fail", Message: "no log directory configured"}
	}
	if info, err := os.Stat(s.logDir); err != nil || !info.IsDir() {
		return HealthCheck{Name: "Log directory", Status: "warn", Message: fmt.Sprintf("%s does not exist yet", s.logDir)}
	}
	return HealthCheck{Name: "Log directory", Status: "pass", Message: fmt.Sprintf("present at %s", s.logDir)}
}
