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
	"net"
	"net/http"
	"strings"
	"time"
)

const connectEstablished = "HTTP/1.1 200 Connection Established\r\n\r\n"

// handleConnect services a CONNECT request already read off the client
// socket. If host is not allow-listed it runs a blind relay with no
// recording; otherwise it performs the MITM handshake and hands the
// decrypted connection to the engine.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	host, port := splitHostPort(r.Host, "443")

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijacking not supported", http.StatusInternalServerError)
		return
	}
	clientConn, _, err := hijacker.Hijack()
	if err != nil {
		s.logger.Error("proxy: hijack failed", "error", err)
		return
	}

	if !s.allowed(host) {
		s.tunnelBlind(clientConn, host, port)
		return
	}

	if _, err := clientConn.Write([]byte(connectEstablished)); err != nil {
		clientConn.Close()
		return
	}

	s.tunnelMITM(clientConn, host, port)
}

// tunnelBlind relays raw bytes to host:port without interception: used for
// CONNECT targets that are not in the allow-list.
func (s *Server) tunnelBlind(clientConn net.Conn, host, port string) {
	upstream, err := net.DialTimeout("tcp", net.JoinHostPort(host, port), 10*time.Second)
	if err != nil {
		s.logger.Debug("proxy: blind relay dial failed", "host", host, "error", err)
		_, _ = clientConn.Write([]byte("HTTP/1.1 502 Bad Gateway\r\n\r\n"))
		clientConn.Close()
		return
	}

	if _, err := clientConn.Write([]byte(connectEstablished)); err != nil {
		clientConn.Close()
		upstream.Close()
		return
	}

	relay(clientConn, upstream, s.logger)
}

// tunnelMITM terminates TLS on the client side with a minted leaf, opens a
// verified TLS connection to the real origin, and runs the HTTP engine
// between them until the connection closes.
func (s *Server) tunnelMITM(clientConn net.Conn, host, port string) {
	defer clientConn.Close()

	alpn := []string{"http/1.1"}
	if s.cfg.EnableH2 {
		alpn = []string{"h2", "http/1.1"}
	}

	tlsConfig := &tls.Config{
		GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			name := hello.ServerName
			if name == "" {
				name = host
			}
			return s.minter.LeafFor(hello.Context(), name)
		},
		NextProtos: alpn,
	}

	tlsClientConn := tls.Server(clientConn, tlsConfig)
	if err := tlsClientConn.Handshake(); err != nil {
		leafMintFailures.Inc()
		s.logger.Debug("proxy: inbound TLS handshake failed", "host", host, "error", err)
		return
	}

	negotiated := tlsClientConn.ConnectionState().NegotiatedProtocol

	outboundALPN := []string{"http/1.1"}
	if negotiated == "h2" {
		outboundALPN = []string{"h2", "http/1.1"}
	}

	upstream, err := tls.Dial("tcp", net.JoinHostPort(host, port), &tls.Config{
		ServerName: host,
		NextProtos: outboundALPN,
	})
	if err != nil {
		s.logger.Error("proxy: outbound TLS dial failed", "host", host, "error", err)
		return
	}
	defer upstream.Close()

	if s.cfg.EnableH2 && upstream.ConnectionState().NegotiatedProtocol == "h2" {
		s.runH2(tlsClientConn, upstream, host)
		return
	}

	eng := newEngine(tlsClientConn, upstream, host, s.engineConfig(), s.recorder, s.logger)
	eng.run()
}

func splitHostPort(hostport, defaultPort string) (string, string) {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return strings.ToLower(hostport), defaultPort
	}
	return strings.ToLower(host), port
}
