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
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/datawizz/local-logger/internal/logsink"
	"github.com/datawizz/local-logger/internal/record"
)

// Terminal error reasons attached to a response record's proxy_event.error
// when an exchange could not complete normally.
const (
	ErrClientClosed   = "client_closed"
	ErrUpstreamClosed = "upstream_closed"
	ErrPeerClosed     = "peer_closed"
	ErrUpstreamTLS    = "upstream_tls"
)

// Recorder is pure glue: it formats an Exchange into unified log records and
// hands them to the sink. It guarantees the request record reaches the sink
// strictly before the response record for the same exchange.
type Recorder struct {
	sink   *logsink.Sink
	logger *slog.Logger
}

// NewRecorder returns a Recorder writing through sink.
func NewRecorder(sink *logsink.Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{sink: sink, logger: logger}
}

// RecordRequest emits the request-half record for ex. Called as soon as the
// request headers and body (or body truncation) are fully known, regardless
// of whether the upstream has answered yet.
func (r *Recorder) RecordRequest(ex *Exchange) {
	body, encoding := encodeBody(ex.RequestBody)
	ev := &record.ProxyEvent{
		Method:    ex.Method,
		URI:       ex.URI,
		Headers:   headerMap(ex.RequestHeaders),
		Body:      body,
		Encoding:  encoding,
		Truncated: ex.RequestTrunc,
	}
	rec := record.New(ex.StartedAt, record.LevelProxy, record.Source{
		Type:      record.SourceProxy,
		SessionID: ex.SessionID,
		Direction: record.DirectionRequest,
	}).WithSessionID(ex.SessionID).WithProxyEvent(ev)

	if err := r.sink.Append(rec); err != nil {
		r.logger.Error("proxy: failed to record request", "session_id", ex.SessionID, "error", err)
	}

	exchangesRecorded.WithLabelValues("request").Inc()
	if ex.RequestTrunc {
		bodyTruncations.WithLabelValues("request").Inc()
	}
}

// RecordResponse emits the response-half record for ex. If errReason is
// non-empty, it is attached to the proxy_event as a terminal failure.
func (r *Recorder) RecordResponse(ex *Exchange, errReason string) {
	ts := ex.FinishedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	body, encoding := encodeBody(ex.ResponseBody)
	ev := &record.ProxyEvent{
		Status:    ex.Status,
		Headers:   headerMap(ex.ResponseHeaders),
		Body:      body,
		Encoding:  encoding,
		Truncated: ex.ResponseTrunc,
	}
	if errReason != "" {
		ev.Error = &errReason
	}

	rec := record.New(ts, record.LevelProxy, record.Source{
		Type:      record.SourceProxy,
		SessionID: ex.SessionID,
		Direction: record.DirectionResponse,
	}).WithSessionID(ex.SessionID).WithProxyEvent(ev)

	if err := r.sink.Append(rec); err != nil {
		r.logger.Error("proxy: failed to record response", "session_id", ex.SessionID, "error", err)
	}

	exchangesRecorded.WithLabelValues("response").Inc()
	if ex.ResponseTrunc {
		bodyTruncations.WithLabelValues("response").Inc()
	}
}

func headerMap(h http.Header) map[string][]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string][]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// encodeBody returns the body as UTF-8 text when valid, otherwise base64,
// matching the wire shape in proxy_event. A nil/empty body (include_bodies
// disabled, or nothing captured) returns a nil string and empty encoding.
func encodeBody(b []byte) (*string, string) {
	if b == nil {
		return nil, ""
	}
	if utf8.Valid(b) {
		s := string(b)
		return &s, "utf-8"
	}
	s := base64.StdEncoding.EncodeToString(b)
	return &s, "base64"
}
