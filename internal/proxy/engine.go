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

package proxy

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// engine runs the per-connection HTTP/1.1 protocol over an already
// terminated pair of streams (TLS or plain): client is the decrypted
// inbound side, upstream is the connection to the real origin. One engine
// instance handles every exchange on that connection until either side
// closes or the idle timeout fires.
type engine struct {
	client   net.Conn
	upstream net.Conn
	host     string

	cfg      EngineConfig
	recorder *Recorder
	logger   *slog.Logger
}

// EngineConfig carries the recording policy the engine applies to every
// exchange it handles.
type EngineConfig struct {
	IncludeBodies bool
	MaxBodySize   int
	IdleTimeout   time.Duration
}

func newEngine(client, upstream net.Conn, host string, cfg EngineConfig, recorder *Recorder, logger *slog.Logger) *engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &engine{client: client, upstream: upstream, host: host, cfg: cfg, recorder: recorder, logger: logger}
}

// run loops reading requests from the client and proxying each to upstream
// until the connection ends. It never returns an error the caller must act
// on: every failure is terminal for this connection and already recorded.
func (e *engine) run() {
	clientReader := bufio.NewReader(e.client)
	upstreamReader := bufio.NewReader(e.upstream)

	for {
		if e.cfg.IdleTimeout > 0 {
			_ = e.client.SetReadDeadline(time.Now().Add(e.cfg.IdleTimeout))
		}

		req, err := http.ReadRequest(clientReader)
		if err != nil {
			return // EOF, timeout, or malformed request: connection is done.
		}
		req.URL.Scheme = "https"
		if req.URL.Host == "" {
			req.URL.Host = e.host
		}

		if isUpgrade(req.Header) {
			e.handleUpgrade(req, clientReader)
			return
		}

		if !e.handleExchange(req, clientReader, upstreamReader) {
			return
		}
	}
}

// handleExchange proxies one request/response pair and records it. Returns
// false if the connection should be torn down afterward (non-keep-alive or
// a terminal error).
func (e *engine) handleExchange(req *http.Request, clientReader *bufio.Reader, upstreamReader *bufio.Reader) bool {
	ex := NewExchange(req.Method, req.URL.String(), req.Header)
	stripHopByHopHeaders(req.Header)

	reqCap := newCappedBuffer(e.captureLimit())
	if req.Body != nil {
		req.Body = io.NopCloser(io.TeeReader(req.Body, captureWriter{reqCap, e.cfg.IncludeBodies}))
	}

	if err := req.Write(e.upstream); err != nil {
		e.logger.Error("proxy: failed to forward request upstream", "host", e.host, "error", err)
		ex.FinishedAt = time.Now()
		e.recorder.RecordRequest(finishRequest(ex, reqCap))
		e.recorder.RecordResponse(ex, ErrUpstreamClosed)
		return false
	}

	finished := finishRequest(ex, reqCap)
	e.recorder.RecordRequest(finished)

	resp, err := readFinalResponse(upstreamReader, req)
	if err != nil {
		ex.FinishedAt = time.Now()
		e.recorder.RecordResponse(ex, ErrUpstreamClosed)
		return false
	}
	defer resp.Body.Close()

	stripHopByHopHeaders(resp.Header)

	respCap := newCappedBuffer(e.captureLimit())
	if resp.Body != nil && resp.Body != http.NoBody {
		resp.Body = io.NopCloser(io.TeeReader(resp.Body, captureWriter{respCap, e.cfg.IncludeBodies}))
	}

	if err := resp.Write(e.client); err != nil {
		e.logger.Debug("proxy: failed to forward response to client", "host", e.host, "error", err)
		ex.Status = resp.StatusCode
		ex.ResponseHeaders = cloneHeader(resp.Header)
		ex.FinishedAt = time.Now()
		e.recorder.RecordResponse(ex, ErrClientClosed)
		return false
	}

	ex.Status = resp.StatusCode
	ex.ResponseHeaders = cloneHeader(resp.Header)
	if e.cfg.IncludeBodies {
		ex.ResponseBody = respCap.Bytes()
		ex.ResponseTrunc = respCap.Truncated()
	}
	ex.FinishedAt = time.Now()
	e.recorder.RecordResponse(ex, "")

	return !req.Close && resp.Close == false
}

func (e *engine) captureLimit() int {
	if !e.cfg.IncludeBodies {
		return 0
	}
	return e.cfg.MaxBodySize
}

func finishRequest(ex *Exchange, cap *cappedBuffer) *Exchange {
	ex.RequestBody = cap.Bytes()
	ex.RequestTrunc = cap.Truncated()
	return ex
}

// readFinalResponse reads upstream's response, skipping any interim 1xx
// replies other than 101 (e.g. 100 Continue). Skipped interim replies are
// read and discarded; they are not relayed to the client, which by this
// point has already sent its full request body.
func readFinalResponse(r *bufio.Reader, req *http.Request) (*http.Response, error) {
	for {
		resp, err := http.ReadResponse(r, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 100 && resp.StatusCode < 200 && resp.StatusCode != http.StatusSwitchingProtocols {
			continue
		}
		return resp, nil
	}
}

// captureWriter forwards bytes into a cappedBuffer only when recording is
// enabled; when disabled it discards everything and reports zero capture,
// matching the include_bodies=false contract (body null, truncated false).
type captureWriter struct {
	cap     *cappedBuffer
	enabled bool
}

func (c captureWriter) Write(p []byte) (int, error) {
	if !c.enabled {
		return len(p), nil
	}
	return c.cap.Write(p)
}

// isUpgrade reports whether the request asks to switch protocols (e.g.
// WebSocket). Upgrade requests are forwarded blindly after this point, with
// no body capture, matching the wire-behavior contract.
func isUpgrade(h http.Header) bool {
	for _, v := range h.Values("Connection") {
		for _, tok := range strings.Split(v, ",") {
			if strings.ToLower(strings.TrimSpace(tok)) == "upgrade" {
				return true
			}
		}
	}
	return h.Get("Upgrade") != ""
}

// handleUpgrade forwards the upgrade request and switches to a blind
// bidirectional relay: no further recording happens on this connection.
func (e *engine) handleUpgrade(req *http.Request, clientReader *bufio.Reader) {
	upgradeVal := req.Header.Get("Upgrade")
	stripHopByHopHeaders(req.Header)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", upgradeVal)

	if err := req.Write(e.upstream); err != nil {
		e.logger.Debug("proxy: upgrade forward failed", "host", e.host, "error", err)
		return
	}

	// Flush whatever the client already sent past the request line/headers
	// (bufio read-ahead) before handing the raw sockets to the blind relay.
	if n := clientReader.Buffered(); n > 0 {
		buffered, _ := clientReader.Peek(n)
		if _, err := e.upstream.Write(buffered); err != nil {
			e.logger.Debug("proxy: upgrade buffered flush failed", "host", e.host, "error", err)
			return
		}
	}

	relay(e.client, e.upstream, e.logger)
}
