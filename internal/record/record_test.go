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

package record

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DateDerivedFromTimestampUTC(t *testing.T) {
	ts := time.Date(2026, 7, 30, 23, 59, 0, 0, time.FixedZone("PDT", -7*3600))
	r := New(ts, LevelProxy, Source{Type: SourceProxy, SessionID: "s1", Direction: DirectionRequest})
	assert.Equal(t, "2026-07-31", r.Date)
}

func TestRecord_Line_SingleLineNoEmbeddedNewline(t *testing.T) {
	r := New(time.Now(), LevelInfo, Source{Type: SourceMcp}).WithMessage("hello\nworld is fine, only raw bytes matter")
	line, err := r.Line()
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), line[len(line)-1])

	// exactly one literal newline byte: the trailing terminator.
	assert.Equal(t, 1, bytes.Count(line, []byte{'\n'}))

	var decoded Record
	require.NoError(t, json.Unmarshal(line[:len(line)-1], &decoded))
	require.NotNil(t, decoded.Message)
}

func TestRecord_Validate_McpRejectsHookFields(t *testing.T) {
	r := New(time.Now(), LevelInfo, Source{Type: SourceMcp}).WithToolName("bash")
	assert.Error(t, r.Validate())
}

func TestRecord_Validate_HookRequiresEventType(t *testing.T) {
	r := New(time.Now(), LevelHook, Source{Type: SourceHook})
	assert.Error(t, r.Validate())

	r2 := New(time.Now(), LevelHook, Source{Type: SourceHook, EventType: "PreToolUse"})
	assert.NoError(t, r2.Validate())
}

func TestRecord_Validate_ProxyRequiresSessionAndDirection(t *testing.T) {
	r := New(time.Now(), LevelProxy, Source{Type: SourceProxy})
	assert.Error(t, r.Validate())

	r2 := New(time.Now(), LevelProxy, Source{Type: SourceProxy, SessionID: "abc", Direction: DirectionResponse})
	assert.NoError(t, r2.Validate())
}

func TestRecord_Validate_DateMismatch(t *testing.T) {
	r := New(time.Now(), LevelInfo, Source{Type: SourceMcp})
	r.Date = "1999-01-01"
	assert.Error(t, r.Validate())
}

func TestReadFile_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2026-07-30.jsonl")

	good := New(time.Now(), LevelInfo, Source{Type: SourceMcp}).WithMessage("ok")
	goodLine, err := good.Line()
	require.NoError(t, err)

	content := append([]byte{}, goodLine...)
	content = append(content, []byte("not json at all\n")...)
	content = append(content, goodLine...)

	require.NoError(t, os.WriteFile(path, content, 0644))

	records, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestReadDate_JoinsLogDirAndDate(t *testing.T) {
	dir := t.TempDir()
	r := New(time.Now(), LevelInfo, Source{Type: SourceMcp})
	line, err := r.Line()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2026-07-30.jsonl"), line, 0644))

	records, err := ReadDate(dir, "2026-07-30")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
