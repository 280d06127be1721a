// Copyright 2025 Patrick J. Scruggs
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

package tracelog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

var errWriteFailed = errors.New("write failed")

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errWriteFailed }

// TestWriterSinkAppendsNewline verifies each emission ends in a newline and
// empty emissions are dropped.
func TestWriterSinkAppendsNewline(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := WriterSink(&buf)
	sink("first")
	sink("")
	sink("second\n")

	if got, want := buf.String(), "first\nsecond\n"; got != want {
		t.Fatalf("sink output = %q, want %q", got, want)
	}
}

// TestWriterSinkDoesNotInterleave writes multi-line blocks concurrently and
// checks every block survives intact.
func TestWriterSinkDoesNotInterleave(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := WriterSink(&buf)

	const workers = 32
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink(fmt.Sprintf("===== %02d =====\nline a %02d\nline b %02d\n", i, i, i))
		}()
	}
	wg.Wait()

	out := buf.String()
	for i := range workers {
		block := fmt.Sprintf("===== %02d =====\nline a %02d\nline b %02d\n", i, i, i)
		if !strings.Contains(out, block) {
			t.Fatalf("block %d interleaved or missing in %q", i, out)
		}
	}
}

// TestWriterSinkDropsErrors ensures a failing writer never panics the sink.
func TestWriterSinkDropsErrors(t *testing.T) {
	t.Parallel()

	WriterSink(failingWriter{})("trace")
	WriterSink(nil)("trace")

	sw := &syncWriter{w: failingWriter{}}
	if _, err := sw.WriteString("x"); !errors.Is(err, errWriteFailed) {
		t.Fatalf("WriteString error = %v, want %v", err, errWriteFailed)
	}
}

// TestSlogSinkEmitsRecord verifies the rendered trace rides on one record.
func TestSlogSinkEmitsRecord(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := SlogSink(logger, slog.LevelDebug)
	sink("===== GET u =====\n")
	sink("")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d records, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("json.Unmarshal returned %v", err)
	}
	if rec["msg"] != "http exchange" || rec["level"] != "DEBUG" {
		t.Fatalf("record = %v", rec)
	}
	if rec["trace"] != "===== GET u =====\n" {
		t.Fatalf("trace attr = %q", rec["trace"])
	}
}
