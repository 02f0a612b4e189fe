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
	"io"
	"log/slog"
	"net"
	"sync"
)

// relay runs a blind bidirectional byte copy between a and b until either
// side closes, with no recording. Used for non-allow-listed CONNECT targets
// and for Upgrade/WebSocket passthrough, where interception would either be
// pointless (no host match) or unsupported (no body capture over upgraded
// protocols).
func relay(a, b net.Conn, logger *slog.Logger) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		_, _ = io.Copy(b, a)
		closeWrite(b)
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(a, b)
		closeWrite(a)
	}()

	wg.Wait()
	a.Close()
	b.Close()
}

// closeWrite half-closes the write side if the connection supports it, so
// the peer observes EOF without tearing down the whole socket immediately.
func closeWrite(c net.Conn) {
	type writeCloser interface {
		CloseWrite() error
	}
	if wc, ok := c.(writeCloser); ok {
		_ = wc.CloseWrite()
	}
}
