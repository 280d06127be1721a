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
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// Sink receives one fully rendered trace per call. Implementations must not
// split a single call across multiple writes so concurrent traces do not
// interleave.
type Sink func(rendered string)

// syncWriter serializes writes to an underlying io.Writer.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// WriteString writes s with a single call to the underlying writer.
func (sw *syncWriter) WriteString(s string) (int, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	n, err := io.WriteString(sw.w, s)
	if err != nil {
		return n, fmt.Errorf("write trace: %w", err)
	}
	return n, nil
}

// WriterSink returns a Sink that writes each rendered trace to w in one
// write, appending a newline when the text lacks one. Writes are serialized.
// Write errors are dropped: emission is fire-and-forget. A nil writer
// discards everything.
func WriterSink(w io.Writer) Sink {
	if w == nil {
		w = io.Discard
	}
	sw := &syncWriter{w: w}
	return func(rendered string) {
		if rendered == "" {
			return
		}
		if !strings.HasSuffix(rendered, "\n") {
			rendered += "\n"
		}
		_, _ = sw.WriteString(rendered)
	}
}

var stdoutSink = sync.OnceValue(func() Sink { return WriterSink(os.Stdout) })

// StdoutSink returns the process-wide Sink writing to standard output. All
// callers share one lock.
func StdoutSink() Sink {
	return stdoutSink()
}

// SlogSink returns a Sink that emits each rendered trace as a single slog
// record at level, carrying the text in the "trace" attribute. A nil logger
// uses slog.Default().
func SlogSink(logger *slog.Logger, level slog.Level) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return func(rendered string) {
		if rendered == "" {
			return
		}
		logger.LogAttrs(context.Background(), level, "http exchange", slog.String("trace", rendered))
	}
}

// StdoutIsTerminal reports whether standard output is attached to a
// terminal, which is when color output is enabled by default.
func StdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
