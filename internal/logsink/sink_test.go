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

package logsink

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawizz/local-logger/internal/record"
)

func TestSink_Append_WritesOneLinePerCall(t *testing.T) {
	dir := t.TempDir()
	sink := New(dir, nil)

	r1 := record.New(time.Now(), record.LevelInfo, record.Source{Type: record.SourceMcp}).WithMessage("first")
	r2 := record.New(time.Now(), record.LevelInfo, record.Source{Type: record.SourceMcp}).WithMessage("second")

	require.NoError(t, sink.Append(r1))
	require.NoError(t, sink.Append(r2))

	path := filepath.Join(dir, time.Now().UTC().Format("2006-01-02")+".jsonl")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	records, err := record.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, byte('\n'), data[len(data)-1])
}

func TestSink_Append_CreatesLogDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	sink := New(dir, nil)

	r := record.New(time.Now(), record.LevelInfo, record.Source{Type: record.SourceMcp}).WithMessage("hi")
	require.NoError(t, sink.Append(r))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSink_Append_RejectsInvalidRecord(t *testing.T) {
	dir := t.TempDir()
	sink := New(dir, nil)

	r := record.New(time.Now(), record.LevelHook, record.Source{Type: record.SourceHook}) // missing EventType
	err := sink.Append(r)
	assert.Error(t, err)
}

func TestSink_Append_ConcurrentWritesNeverInterleave(t *testing.T) {
	dir := t.TempDir()
	sink := New(dir, nil)

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			r := record.New(time.Now(), record.LevelInfo, record.Source{Type: record.SourceMcp}).WithMessage("concurrent")
			_ = sink.Append(r)
		}(i)
	}
	wg.Wait()

	path := filepath.Join(dir, time.Now().UTC().Format("2006-01-02")+".jsonl")
	records, err := record.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, records, n)
}
