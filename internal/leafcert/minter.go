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

// Package leafcert mints per-hostname TLS leaf certificates signed by the
// process CA, on demand, for the interception proxy's MITM handshake.
package leafcert

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/datawizz/local-logger/internal/ca"
)

const (
	leafValidBefore = 5 * time.Minute
	leafValidAfter  = 365 * 24 * time.Hour
)

// Minter mints and memoizes leaf certificates for the lifetime of the
// process. singleflight alone only dedupes calls that are concurrently
// in flight; the cache map below is what makes a *second*, non-overlapping
// request for the same hostname reuse the earlier result instead of minting
// again.
type Minter struct {
	store *ca.Store

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]*tls.Certificate
}

// New returns a Minter that signs leaves with store's CA key.
func New(store *ca.Store) *Minter {
	return &Minter{
		store: store,
		cache: make(map[string]*tls.Certificate),
	}
}

// LeafFor returns a TLS certificate for hostname, minting and caching one if
// none exists yet. Concurrent callers for the same hostname share a single
// mint via singleflight. The cache is keyed by lowercased hostname, so SNI
// values that differ only in case (e.g. "API.example.com" vs
// "api.example.com") share one cached leaf.
func (m *Minter) LeafFor(ctx context.Context, hostname string) (*tls.Certificate, error) {
	hostname = strings.ToLower(hostname)

	m.mu.RLock()
	if cert, ok := m.cache[hostname]; ok {
		m.mu.RUnlock()
		return cert, nil
	}
	m.mu.RUnlock()

	v, err, _ := m.group.Do(hostname, func() (interface{}, error) {
		m.mu.RLock()
		if cert, ok := m.cache[hostname]; ok {
			m.mu.RUnlock()
			return cert, nil
		}
		m.mu.RUnlock()

		cert, err := m.mint(hostname)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.cache[hostname] = cert
		m.mu.Unlock()
		return cert, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*tls.Certificate), nil
}

// Reload swaps the CA store used to sign future leaves and drops every
// cached certificate, so a CA regenerated by `init --force` while this
// process is running invalidates the stale leaves it had already minted.
func (m *Minter) Reload(store *ca.Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = store
	m.cache = make(map[string]*tls.Certificate)
}

func (m *Minter) mint(hostname string) (*tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("leafcert: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("leafcert: generate serial: %w", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: hostname},
		NotBefore:    time.Now().Add(-leafValidBefore),
		NotAfter:     time.Now().Add(leafValidAfter),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	if ip := net.ParseIP(hostname); ip != nil {
		tmpl.IPAddresses = []net.IP{ip}
	} else {
		tmpl.DNSNames = []string{hostname}
	}

	m.mu.RLock()
	store := m.store
	m.mu.RUnlock()

	certDER, err := x509.CreateCertificate(rand.Reader, tmpl, store.Cert, &key.PublicKey, store.Key)
	if err != nil {
		return nil, fmt.Errorf("leafcert: sign certificate for %s: %w", hostname, err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{certDER, store.Cert.Raw},
		PrivateKey:  key,
	}, nil
}
