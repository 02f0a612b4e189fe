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

package ca

import (
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrInit_GeneratesNewCA(t *testing.T) {
	dir := t.TempDir()
	store, err := LoadOrInit(dir, false, true, nil)
	require.NoError(t, err)
	assert.True(t, store.Cert.IsCA)
	assert.FileExists(t, filepath.Join(dir, certFileName))
	assert.FileExists(t, filepath.Join(dir, keyFileName))

	info, err := os.Stat(filepath.Join(dir, keyFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	keyPEM, err := os.ReadFile(filepath.Join(dir, keyFileName))
	require.NoError(t, err)
	block, _ := pem.Decode(keyPEM)
	require.NotNil(t, block)
	assert.Equal(t, "PRIVATE KEY", block.Type, "ca.key must be PEM PKCS#8, not SEC1 EC PRIVATE KEY")
}

func TestLoadOrInit_ReloadsExistingCA(t *testing.T) {
	dir := t.TempDir()
	first, err := LoadOrInit(dir, false, true, nil)
	require.NoError(t, err)

	second, err := LoadOrInit(dir, false, true, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Cert.SerialNumber, second.Cert.SerialNumber)
}

func TestLoadOrInit_ForceRegenerates(t *testing.T) {
	dir := t.TempDir()
	first, err := LoadOrInit(dir, false, true, nil)
	require.NoError(t, err)

	second, err := LoadOrInit(dir, true, true, nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.Cert.SerialNumber, second.Cert.SerialNumber)
}

func TestLoadOrInit_InconsistentPairReturnsError(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadOrInit(dir, false, true, nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, keyFileName)))

	_, err = LoadOrInit(dir, false, true, nil)
	assert.ErrorIs(t, err, ErrCAInconsistent)
}

func TestLoadOrInit_NoGenerateReturnsErrCAMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadOrInit(dir, false, false, nil)
	assert.ErrorIs(t, err, ErrCAMissing)
	assert.NoFileExists(t, filepath.Join(dir, certFileName))
}
