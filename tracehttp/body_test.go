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

package tracehttp

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("gzip write returned %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close returned %v", err)
	}
	return buf.Bytes()
}

func zlibBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("zlib write returned %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zlib close returned %v", err)
	}
	return buf.Bytes()
}

func zstdBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd.NewWriter returned %v", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

func brotliBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	if _, err := bw.Write(data); err != nil {
		t.Fatalf("brotli write returned %v", err)
	}
	if err := bw.Close(); err != nil {
		t.Fatalf("brotli close returned %v", err)
	}
	return buf.Bytes()
}

// TestDecodeContent covers every supported coding and a stacked pair.
func TestDecodeContent(t *testing.T) {
	t.Parallel()

	plain := []byte(`{"ok":true}`)
	tests := []struct {
		name     string
		encoding string
		data     []byte
	}{
		{name: "identity", encoding: "identity", data: plain},
		{name: "gzip", encoding: "gzip", data: gzipBytes(t, plain)},
		{name: "x-gzip", encoding: "X-Gzip", data: gzipBytes(t, plain)},
		{name: "deflate", encoding: "deflate", data: zlibBytes(t, plain)},
		{name: "zstd", encoding: "zstd", data: zstdBytes(t, plain)},
		{name: "br", encoding: "br", data: brotliBytes(t, plain)},
		{name: "stacked", encoding: "gzip, br", data: brotliBytes(t, gzipBytes(t, plain))},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, truncated, err := decodeContent(tc.encoding, tc.data, 0)
			if err != nil {
				t.Fatalf("decodeContent returned %v", err)
			}
			if truncated {
				t.Fatalf("decodeContent reported truncation")
			}
			if !bytes.Equal(got, plain) {
				t.Fatalf("decodeContent = %q, want %q", got, plain)
			}
		})
	}
}

// TestDecodeContentLimitsOutput verifies decoded output is capped.
func TestDecodeContentLimitsOutput(t *testing.T) {
	t.Parallel()

	got, truncated, err := decodeContent("gzip", gzipBytes(t, []byte("hello world")), 5)
	if err != nil {
		t.Fatalf("decodeContent returned %v", err)
	}
	if !truncated || string(got) != "hello" {
		t.Fatalf("decodeContent = %q, %v; want hello, true", got, truncated)
	}
}

// TestDecodeContentRejectsUnknownCoding covers unsupported and corrupt input.
func TestDecodeContentRejectsUnknownCoding(t *testing.T) {
	t.Parallel()

	if _, _, err := decodeContent("compress", []byte("x"), 0); err == nil {
		t.Fatalf("decodeContent(compress) returned nil error")
	}
	if _, _, err := decodeContent("gzip", []byte("not gzip"), 0); err == nil {
		t.Fatalf("decodeContent(corrupt gzip) returned nil error")
	}
}

// TestFormatBody covers JSON, text, binary and truncation rendering.
func TestFormatBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		data      []byte
		truncated bool
		want      string
	}{
		{name: "empty", data: nil, want: ""},
		{name: "json object", data: []byte(`{"b":2,"a":[1,2.50]}`), want: "{\n  \"a\": [\n    1,\n    2.50\n  ],\n  \"b\": 2\n}"},
		{name: "json scalar", data: []byte(`"quoted"`), want: `"quoted"`},
		{name: "text", data: []byte("plain <text> & more"), want: "plain <text> & more"},
		{name: "binary", data: []byte{0xff, 0xfe, 0x00}, want: "<3 bytes of binary data>"},
		{name: "truncated text", data: []byte("abcd"), truncated: true, want: "abcd" + truncatedSuffix},
		{name: "truncated mid rune", data: []byte("h\xc3"), truncated: true, want: "h" + truncatedSuffix},
		{name: "truncated binary", data: []byte{0xff, 0xfe, 0x00, 0xff, 0xfe}, truncated: true, want: "<5 bytes of binary data>" + truncatedSuffix},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := formatBody(tc.data, tc.truncated); got != tc.want {
				t.Fatalf("formatBody() = %q, want %q", got, tc.want)
			}
		})
	}
}

// TestBodyTextDecodesContentEncoding verifies encoded bodies are rendered
// decoded, and undecodable ones are summarized.
func TestBodyTextDecodesContentEncoding(t *testing.T) {
	t.Parallel()

	rt := Transport(nil, WithSink(func(string) {})).(roundTripper)
	scope := &exchangeScope{method: "GET", url: "https://api.test/"}

	header := http.Header{"Content-Encoding": {"gzip"}}
	if got, want := rt.bodyText(gzipBytes(t, []byte(`{"id":1}`)), false, header, 0, scope), "{\n  \"id\": 1\n}"; got != want {
		t.Fatalf("bodyText(gzip) = %q, want %q", got, want)
	}

	header = http.Header{"Content-Encoding": {"compress"}}
	if got := rt.bodyText([]byte("abc"), false, header, 0, scope); got != "<3 bytes of compress-encoded data>" {
		t.Fatalf("bodyText(unsupported) = %q", got)
	}
}

// TestBodyTextMarksPartialCapture verifies a body cut short renders with
// the truncation marker instead of as complete JSON.
func TestBodyTextMarksPartialCapture(t *testing.T) {
	t.Parallel()

	rt := Transport(nil, WithSink(func(string) {})).(roundTripper)
	scope := &exchangeScope{method: "GET", url: "https://api.test/"}
	if got, want := rt.bodyText([]byte(`{"a":`), true, http.Header{}, 0, scope), `{"a":`+truncatedSuffix; got != want {
		t.Fatalf("bodyText(partial) = %q, want %q", got, want)
	}
}

// doneRecorder counts onDone calls made by a bodyCapture.
type doneRecorder struct {
	calls   int
	data    string
	partial bool
	err     error
}

func (r *doneRecorder) onDone(data []byte, partial bool, err error) {
	r.calls++
	r.data = string(data)
	r.partial = partial
	r.err = err
}

// TestBodyCaptureReportsOnceAtEOF verifies the caller sees every byte and the
// capture is reported once, at EOF.
func TestBodyCaptureReportsOnceAtEOF(t *testing.T) {
	t.Parallel()

	rec := &doneRecorder{}
	body := newBodyCapture(io.NopCloser(strings.NewReader("hello")), 0, -1, rec.onDone)

	got, err := io.ReadAll(body)
	if err != nil || string(got) != "hello" {
		t.Fatalf("io.ReadAll = %q, %v", got, err)
	}
	if rec.calls != 1 || rec.data != "hello" || rec.partial {
		t.Fatalf("onDone = %+v, want one complete hello", rec)
	}
	if err := body.Close(); err != nil {
		t.Fatalf("Close returned %v", err)
	}
	if rec.calls != 1 {
		t.Fatalf("onDone called %d times, want 1", rec.calls)
	}
}

// TestBodyCaptureReportsAtLimit verifies reporting does not wait for the rest
// of a body larger than the limit.
func TestBodyCaptureReportsAtLimit(t *testing.T) {
	t.Parallel()

	rec := &doneRecorder{}
	body := newBodyCapture(io.NopCloser(strings.NewReader("abcdefgh")), 3, -1, rec.onDone)

	buf := make([]byte, 5)
	n, err := body.Read(buf)
	if err != nil || string(buf[:n]) != "abcde" {
		t.Fatalf("Read = %q, %v", buf[:n], err)
	}
	if rec.calls != 1 || rec.data != "abcd" {
		t.Fatalf("onDone = %+v, want abcd after the first read", rec)
	}
	rest, err := io.ReadAll(body)
	if err != nil || string(rest) != "fgh" {
		t.Fatalf("remaining body = %q, %v", rest, err)
	}
	if rec.calls != 1 {
		t.Fatalf("onDone called %d times, want 1", rec.calls)
	}
}

// TestBodyCaptureReportsOnClose verifies a body closed early is reported as
// partial.
func TestBodyCaptureReportsOnClose(t *testing.T) {
	t.Parallel()

	rec := &doneRecorder{}
	body := newBodyCapture(io.NopCloser(strings.NewReader("abcdef")), 0, -1, rec.onDone)

	buf := make([]byte, 2)
	if _, err := body.Read(buf); err != nil {
		t.Fatalf("Read returned %v", err)
	}
	if rec.calls != 0 {
		t.Fatalf("onDone called before the body was finished")
	}
	if err := body.Close(); err != nil {
		t.Fatalf("Close returned %v", err)
	}
	if rec.calls != 1 || rec.data != "ab" || !rec.partial {
		t.Fatalf("onDone = %+v, want partial ab", rec)
	}
}

// TestBodyCaptureDeclaredLengthIsComplete verifies a body read to its
// Content-Length counts as complete without an EOF.
func TestBodyCaptureDeclaredLengthIsComplete(t *testing.T) {
	t.Parallel()

	rec := &doneRecorder{}
	body := newBodyCapture(io.NopCloser(strings.NewReader("abc")), 0, 3, rec.onDone)

	buf := make([]byte, 3)
	if _, err := io.ReadFull(body, buf); err != nil {
		t.Fatalf("io.ReadFull returned %v", err)
	}
	_ = body.Close()
	if rec.calls != 1 || rec.data != "abc" || rec.partial {
		t.Fatalf("onDone = %+v, want complete abc", rec)
	}
}

// TestBodyCaptureForwardsReadError verifies a read failure reaches the caller
// and is reported with the bytes read before it.
func TestBodyCaptureForwardsReadError(t *testing.T) {
	t.Parallel()

	readErr := errors.New("connection dropped")
	rec := &doneRecorder{}
	src := io.MultiReader(strings.NewReader("ab"), iotest.ErrReader(readErr))
	body := newBodyCapture(io.NopCloser(src), 0, -1, rec.onDone)

	if _, err := io.ReadAll(body); !errors.Is(err, readErr) {
		t.Fatalf("io.ReadAll error = %v, want %v", err, readErr)
	}
	if rec.calls != 1 || rec.data != "ab" || !rec.partial || !errors.Is(rec.err, readErr) {
		t.Fatalf("onDone = %+v, want partial ab with the read error", rec)
	}
}
