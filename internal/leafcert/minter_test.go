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

package leafcert

import (
	"context"
	"crypto/x509"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawizz/local-logger/internal/ca"
)

func newTestStore(t *testing.T) *ca.Store {
	t.Helper()
	store, err := ca.LoadOrInit(t.TempDir(), false, true, nil)
	require.NoError(t, err)
	return store
}

func TestLeafFor_MintsValidLeaf(t *testing.T) {
	m := New(newTestStore(t))

	cert, err := m.LeafFor(context.Background(), "api.anthropic.com")
	require.NoError(t, err)
	require.Len(t, cert.Certificate, 2)

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Contains(t, leaf.DNSNames, "api.anthropic.com")
	assert.False(t, leaf.IsCA)
}

func TestLeafFor_CachesByHostname(t *testing.T) {
	m := New(newTestStore(t))

	first, err := m.LeafFor(context.Background(), "api.anthropic.com")
	require.NoError(t, err)
	second, err := m.LeafFor(context.Background(), "api.anthropic.com")
	require.NoError(t, err)

	assert.Same(t, first, second)
}

func TestLeafFor_DifferentHostnamesMintDifferentLeaves(t *testing.T) {
	m := New(newTestStore(t))

	a, err := m.LeafFor(context.Background(), "api.anthropic.com")
	require.NoError(t, err)
	b, err := m.LeafFor(context.Background(), "statsig.anthropic.com")
	require.NoError(t, err)

	assert.NotEqual(t, a.Certificate[0], b.Certificate[0])
}

func TestLeafFor_ConcurrentCallsShareOneMint(t *testing.T) {
	m := New(newTestStore(t))

	const n = 20
	results := make([]*x509.Certificate, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			cert, err := m.LeafFor(context.Background(), "concurrent.example.com")
			require.NoError(t, err)
			leaf, err := x509.ParseCertificate(cert.Certificate[0])
			require.NoError(t, err)
			results[i] = leaf
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, results[0].SerialNumber, results[i].SerialNumber)
	}
}

func TestReload_InvalidatesCacheAndSignsWithNewStore(t *testing.T) {
	m := New(newTestStore(t))

	before, err := m.LeafFor(context.Background(), "api.anthropic.com")
	require.NoError(t, err)

	m.Reload(newTestStore(t))

	after, err := m.LeafFor(context.Background(), "api.anthropic.com")
	require.NoError(t, err)

	assert.NotEqual(t, before.Certificate[0], after.Certificate[0])
}

func TestLeafFor_CacheIsCaseInsensitive(t *testing.T) {
	m := New(newTestStore(t))

	mixedCase, err := m.LeafFor(context.Background(), "API.Example.com")
	require.NoError(t, err)
	lowerCase, err := m.LeafFor(context.Background(), "api.example.com")
	require.NoError(t, err)

	assert.Same(t, mixedCase, lowerCase)
}

func TestLeafFor_IPLiteralSetsIPAddresses(t *testing.T) {
	m := New(newTestStore(t))

	cert, err := m.LeafFor(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Len(t, leaf.IPAddresses, 1)
}
