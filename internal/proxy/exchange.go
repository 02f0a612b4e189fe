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
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Exchange is the in-memory record of one request/response pair, alive only
// for the lifetime of that pair. It is owned by the connection engine that
// created it and only borrowed by the recorder at emission time.
type Exchange struct {
	SessionID string
	StartedAt time.Time

	Method string
	URI    string

	RequestHeaders http.Header
	RequestBody    []byte
	RequestTrunc   bool

	Status          int
	ResponseHeaders http.Header
	ResponseBody    []byte
	ResponseTrunc   bool

	FinishedAt time.Time
}

// NewExchange starts a fresh exchange with a new session id.
func NewExchange(method, uri string, headers http.Header) *Exchange {
	return &Exchange{
		SessionID:      uuid.NewString(),
		StartedAt:      time.Now(),
		Method:         method,
		URI:            uri,
		RequestHeaders: cloneHeader(headers),
	}
}

// cappedBuffer captures a prefix of a stream, up to max bytes, while letting
// every byte continue to flow through Write. Once the cap is hit the tee
// branch is severed: Write keeps reporting success for the full length so
// the caller's forward copy never stalls, but no further bytes are copied
// into buf. This is what keeps the recorder from ever buffering a full body
// that exceeds max_body_size.
type cappedBuffer struct {
	buf       []byte
	max       int
	truncated bool
}

func newCappedBuffer(max int) *cappedBuffer {
	return &cappedBuffer{max: max}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if len(c.buf) >= c.max {
		if len(p) > 0 {
			c.truncated = true
		}
		return len(p), nil
	}
	remaining := c.max - len(c.buf)
	if len(p) > remaining {
		c.buf = append(c.buf, p[:remaining]...)
		c.truncated = true
		return len(p), nil
	}
	c.buf = append(c.buf, p...)
	return len(p), nil
}

func (c *cappedBuffer) Bytes() []byte { return c.buf }
func (c *cappedBuffer) Truncated() bool { return c.truncated }
