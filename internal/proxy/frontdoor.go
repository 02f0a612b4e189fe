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

// Package proxy implements the CONNECT-capable forward proxy that performs
// MITM TLS termination for a configured set of target hosts and streams a
// correlated transcript of every intercepted exchange into the unified log.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/datawizz/local-logger/internal/leafcert"
	"github.com/datawizz/local-logger/internal/logsink"
	"github.com/datawizz/local-logger/internal/record"
)

// ErrBindFailed is wrapped into the error Serve returns when the listener
// cannot be bound, so callers can map it to the CLI's exit code 3.
var ErrBindFailed = errors.New("proxy: bind failed")

// Config is the proxy's runtime configuration, resolved from the layered
// config system before the front door starts listening.
type Config struct {
	ListenAddr    string
	ListenPort    int
	TargetHosts   []string
	IncludeBodies bool
	MaxBodySize   int
	EnableH2      bool
	IdleTimeout   time.Duration
}

// Server is the proxy front door: it owns the listener, the CA-backed leaf
// minter, and the recorder every exchange is written through.
type Server struct {
	cfg    Config
	minter *leafcert.Minter
	sink   *logsink.Sink

	recorder   *Recorder
	logger     *slog.Logger
	httpServer *http.Server

	allowSet map[string]bool

	httpClient *http.Client
}

// NewServer wires a Server ready to Serve. logger is the process-diagnostics
// logger; it is distinct from the unified record sink.
func NewServer(cfg Config, minter *leafcert.Minter, sink *logsink.Sink, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	allowSet := make(map[string]bool, len(cfg.TargetHosts))
	for _, h := range cfg.TargetHosts {
		allowSet[strings.ToLower(h)] = true
	}

	s := &Server{
		cfg:      cfg,
		minter:   minter,
		sink:     sink,
		recorder: NewRecorder(sink, logger),
		logger:   logger,
		allowSet: allowSet,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy: nil,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.ListenAddr, fmt.Sprintf("%d", cfg.ListenPort)),
		Handler:      s,
		ReadTimeout:  0,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) engineConfig() EngineConfig {
	return EngineConfig{
		IncludeBodies: s.cfg.IncludeBodies,
		MaxBodySize:   s.cfg.MaxBodySize,
		IdleTimeout:   s.cfg.IdleTimeout,
	}
}

func (s *Server) allowed(host string) bool {
	return s.allowSet[strings.ToLower(host)]
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Serve binds the front door's listener and runs until ctx is canceled.
// Binding to a non-loopback address is permitted but discouraged: each
// accepted connection emits a WARN record documenting the exposure.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("%w: listen on %s: %v", ErrBindFailed, s.httpServer.Addr, err)
	}

	if isRemoteAddr(s.httpServer.Addr) {
		s.logger.Warn("proxy: listening on a non-loopback address", "addr", s.httpServer.Addr)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info("proxy: listening", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("proxy: serve: %w", err)
	}
	return nil
}

// ServeHTTP dispatches CONNECT (tunnel) versus absolute-form (plain forward)
// requests per the front door contract.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if isRemoteAddr(s.httpServer.Addr) {
		s.emitBindWarning(r)
	}

	if r.Method == http.MethodConnect {
		s.handleConnect(w, r)
		return
	}
	s.handleAbsoluteForm(w, r)
}

// emitBindWarning writes a WARN unified record documenting that this
// connection arrived on a non-loopback bind, per the front door's
// bind-address invariant. Binding off-loopback is permitted, not an error,
// so this goes to the log, not to stderr only.
func (s *Server) emitBindWarning(r *http.Request) {
	msg := fmt.Sprintf("proxy accepted connection on non-loopback bind %s from %s", s.httpServer.Addr, r.RemoteAddr)
	rec := record.New(time.Now(), record.LevelWarn, record.Source{Type: record.SourceMcp}).WithMessage(msg)
	if err := s.sink.Append(rec); err != nil {
		s.logger.Error("proxy: failed to record bind warning", "error", err)
	}
}

// handleAbsoluteForm proxies a classic forward-proxy plain-HTTP request: the
// host is allow-list checked, hop-by-hop headers are stripped, and the
// request/response pair is recorded exactly as the MITM path would.
func (s *Server) handleAbsoluteForm(w http.ResponseWriter, r *http.Request) {
	host, _ := splitHostPort(r.Host, "80")
	if !s.allowed(host) {
		http.Error(w, "host not allowed", http.StatusForbidden)
		return
	}

	ex := NewExchange(r.Method, r.URL.String(), r.Header)
	stripHopByHopHeaders(r.Header)

	limit := s.captureLimitFor()
	reqCap := newCappedBuffer(limit)

	var reqBody io.Reader = http.NoBody
	if r.Body != nil {
		reqBody = io.TeeReader(r.Body, captureWriter{reqCap, s.cfg.IncludeBodies})
	}

	outReq, err := http.NewRequest(r.Method, r.URL.String(), reqBody)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	outReq.Header = r.Header.Clone()

	resp, err := s.httpClient.Do(outReq)
	ex.RequestBody = reqCap.Bytes()
	ex.RequestTrunc = reqCap.Truncated()
	s.recorder.RecordRequest(ex)

	if err != nil {
		s.logger.Error("proxy: absolute-form forward failed", "host", host, "error", err)
		ex.FinishedAt = time.Now()
		s.recorder.RecordResponse(ex, ErrUpstreamClosed)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	stripHopByHopHeaders(resp.Header)
	for k, v := range resp.Header {
		w.Header()[k] = v
	}
	w.WriteHeader(resp.StatusCode)

	respCap := newCappedBuffer(limit)
	_, _ = io.Copy(io.MultiWriter(w, captureWriter{respCap, s.cfg.IncludeBodies}), resp.Body)

	ex.Status = resp.StatusCode
	ex.ResponseHeaders = cloneHeader(resp.Header)
	ex.ResponseBody = respCap.Bytes()
	ex.ResponseTrunc = respCap.Truncated()
	ex.FinishedAt = time.Now()
	s.recorder.RecordResponse(ex, "")
}

// isRemoteAddr reports whether addr binds to a non-loopback interface.
func isRemoteAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
		if strings.HasPrefix(addr, ":") {
			host = ""
		}
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		return true
	}
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return false
	}
	return true
}
