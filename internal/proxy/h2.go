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
	"crypto/tls"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// runH2 bridges an HTTP/2 client connection to the already-negotiated h2
// upstream connection. Each HTTP/2 stream on the client side becomes one
// Exchange with its own session_id, mirroring the HTTP/1.1 engine's
// request/response recording but driven by http2.Server's stream model
// instead of a manual read loop.
func (s *Server) runH2(client *tls.Conn, upstream *tls.Conn, host string) {
	var t http2.Transport
	cc, err := t.NewClientConn(upstream)
	if err != nil {
		s.logger.Error("proxy: h2 upstream client conn failed", "host", host, "error", err)
		return
	}
	h2Transport := &fixedConnTransport{cc: cc, host: host}

	srv := &http2.Server{}
	srv.ServeConn(client, &http2.ServeConnOpts{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.serveH2Stream(w, r, h2Transport, host)
		}),
	})
}

// serveH2Stream handles a single HTTP/2 stream as one recorded exchange.
func (s *Server) serveH2Stream(w http.ResponseWriter, r *http.Request, transport http.RoundTripper, host string) {
	r.URL.Scheme = "https"
	r.URL.Host = host

	ex := NewExchange(r.Method, r.URL.String(), r.Header)
	stripHopByHopHeaders(r.Header)

	limit := s.captureLimitFor()
	reqCap := newCappedBuffer(limit)
	if r.Body != nil {
		r.Body = io.NopCloser(io.TeeReader(r.Body, captureWriter{reqCap, s.cfg.IncludeBodies}))
	}

	outReq, err := http.NewRequest(r.Method, r.URL.String(), r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	outReq.Header = r.Header.Clone()

	resp, err := transport.RoundTrip(outReq)
	ex.RequestBody = reqCap.Bytes()
	ex.RequestTrunc = reqCap.Truncated()
	s.recorder.RecordRequest(ex)

	if err != nil {
		s.logger.Error("proxy: h2 upstream round trip failed", "host", host, "error", err)
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

func (s *Server) captureLimitFor() int {
	if !s.cfg.IncludeBodies {
		return 0
	}
	return s.cfg.MaxBodySize
}

// fixedConnTransport round-trips every request over one already-established
// http2.ClientConn, matching the single outbound tunnel already opened for
// this CONNECT. The ClientConn is shared across every stream on the client
// connection, since http2.ClientConn already multiplexes concurrent streams
// over its one underlying socket.
type fixedConnTransport struct {
	cc   *http2.ClientConn
	host string
}

func (f *fixedConnTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return f.cc.RoundTrip(req)
}
