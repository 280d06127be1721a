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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"github.com/pjscruggs/tracelog"
)

const (
	truncatedSuffix = "... (truncated)"
	streamingBody   = "<streaming body not captured>"
)

// readCapped reads up to limit+1 bytes from r so the caller can tell whether
// the body exceeded limit. A limit of zero reads everything.
func readCapped(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	return io.ReadAll(io.LimitReader(r, limit+1))
}

// bodyCapture passes a body through to its reader and keeps a copy of the
// first limit+1 bytes. onDone runs once: at EOF, on a read error, when the
// copy exceeds limit, or on Close, whichever comes first.
type bodyCapture struct {
	body   io.ReadCloser
	limit  int64
	size   int64
	onDone func(data []byte, partial bool, err error)

	mu   sync.Mutex
	buf  []byte
	eof  bool
	err  error
	once sync.Once
}

func newBodyCapture(body io.ReadCloser, limit, size int64, onDone func([]byte, bool, error)) *bodyCapture {
	return &bodyCapture{body: body, limit: limit, size: size, onDone: onDone}
}

// Read forwards to the wrapped body and records the bytes it returns.
func (c *bodyCapture) Read(p []byte) (int, error) {
	n, err := c.body.Read(p)

	c.mu.Lock()
	c.record(p[:n])
	switch {
	case errors.Is(err, io.EOF):
		c.eof = true
	case err != nil:
		c.err = err
	}
	full := c.limit > 0 && int64(len(c.buf)) > c.limit
	c.mu.Unlock()

	if full || err != nil {
		c.finish()
	}
	return n, err
}

// Close closes the wrapped body and reports whatever was read.
func (c *bodyCapture) Close() error {
	err := c.body.Close()
	c.finish()
	return err
}

func (c *bodyCapture) record(p []byte) {
	if c.limit > 0 {
		room := c.limit + 1 - int64(len(c.buf))
		if room <= 0 {
			return
		}
		if int64(len(p)) > room {
			p = p[:room]
		}
	}
	c.buf = append(c.buf, p...)
}

// snapshot returns a copy of the bytes read so far. partial is set until the
// body has been read to its end or to its declared length.
func (c *bodyCapture) snapshot() ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	complete := c.eof || (c.size > 0 && int64(len(c.buf)) >= c.size)
	return bytes.Clone(c.buf), !complete, c.err
}

func (c *bodyCapture) finish() {
	if c.onDone == nil {
		return
	}
	c.once.Do(func() {
		data, partial, err := c.snapshot()
		c.onDone(data, partial, err)
	})
}

// captureRequestBody records the outgoing body. GetBody is preferred since it
// leaves req.Body untouched. Otherwise req.Body is wrapped and recorded as the
// base transport sends it.
func (t roundTripper) captureRequestBody(req *http.Request, scope *exchangeScope) {
	if req.Body == nil || req.Body == http.NoBody {
		return
	}
	limit := t.cfg.requestBodyLimit
	if req.GetBody == nil {
		scope.requestCapture = newBodyCapture(req.Body, limit, req.ContentLength, nil)
		req.Body = scope.requestCapture
		return
	}

	rc, err := req.GetBody()
	var data []byte
	if err == nil {
		data, err = readCapped(rc, limit)
		_ = rc.Close()
	}
	if err != nil {
		scope.debug(t.cfg.logger, "capture request body", err)
	}
	if len(data) > 0 {
		text := t.bodyText(data, false, req.Header, limit, scope)
		scope.requestBody = &text
	}
}

// requestBodyText renders the request body as far as the base transport has
// read it. It returns nil when nothing was sent.
func (t roundTripper) requestBodyText(scope *exchangeScope) *string {
	if scope.requestCapture == nil {
		return scope.requestBody
	}
	data, partial, err := scope.requestCapture.snapshot()
	if err != nil {
		scope.debug(t.cfg.logger, "capture request body", err)
	}
	if len(data) == 0 {
		return nil
	}
	text := t.bodyText(data, partial, scope.requestHeader, t.cfg.requestBodyLimit, scope)
	return &text
}

// captureResponseBody hands report the rendered response body. Declared
// empty and streamed bodies are reported at once. Any other body is wrapped
// so the caller reads it as it arrives, and report runs when the caller
// reaches the end, passes the capture limit, or closes the body.
func (t roundTripper) captureResponseBody(resp *http.Response, scope *exchangeScope, report func(body string)) {
	switch {
	case resp.Body == nil || resp.Body == http.NoBody || resp.ContentLength == 0:
		report("")
		return
	case resp.StatusCode == http.StatusSwitchingProtocols || isStreaming(resp.Header):
		report(streamingBody)
		return
	}

	limit := t.cfg.responseBodyLimit
	header := resp.Header
	resp.Body = newBodyCapture(resp.Body, limit, resp.ContentLength, func(data []byte, partial bool, err error) {
		if err != nil {
			scope.debug(t.cfg.logger, "capture response body", err)
		}
		report(t.bodyText(data, partial, header, limit, scope))
	})
}

// bodyText decodes any Content-Encoding and renders the captured bytes. A
// partial capture is marked as truncated.
func (t roundTripper) bodyText(data []byte, partial bool, header http.Header, limit int64, scope *exchangeScope) string {
	truncated := partial || (limit > 0 && int64(len(data)) > limit)
	if limit > 0 && int64(len(data)) > limit {
		data = data[:limit]
	}
	if enc := header.Get("Content-Encoding"); enc != "" && len(data) > 0 {
		decoded, decodedTruncated, err := decodeContent(enc, data, limit)
		if err != nil {
			if len(decoded) == 0 {
				scope.debug(t.cfg.logger, "decode body", err)
				return fmt.Sprintf("<%d bytes of %s-encoded data>", len(data), enc)
			}
			decodedTruncated = true
		}
		data = decoded
		truncated = truncated || decodedTruncated
	}
	return formatBody(data, truncated)
}

// formatBody renders body bytes for a trace. JSON is re-indented through
// tracelog.Serialize, other UTF-8 text is kept verbatim, and binary data is
// summarized.
func formatBody(data []byte, truncated bool) string {
	if len(data) == 0 {
		return ""
	}
	if truncated {
		if text := trimPartialRune(data); utf8.Valid(text) {
			return string(text) + truncatedSuffix
		}
		return fmt.Sprintf("<%d bytes of binary data>%s", len(data), truncatedSuffix)
	}
	if json.Valid(data) {
		var decoded any
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&decoded); err == nil {
			return tracelog.Serialize(decoded)
		}
	}
	if utf8.Valid(data) {
		return string(data)
	}
	return fmt.Sprintf("<%d bytes of binary data>", len(data))
}

// trimPartialRune drops an incomplete UTF-8 sequence left at the end of a
// truncated body.
func trimPartialRune(data []byte) []byte {
	for i := 0; i < utf8.UTFMax-1 && len(data) > 0 && !utf8.Valid(data); i++ {
		data = data[:len(data)-1]
	}
	return data
}

// isStreaming reports whether the response is an event stream, whose body is
// passed through without a copy.
func isStreaming(header http.Header) bool {
	mediaType, _, err := mime.ParseMediaType(header.Get("Content-Type"))
	return err == nil && mediaType == "text/event-stream"
}

// decodeContent reverses the listed content codings, last applied first. It
// returns whatever was decoded before a failure along with the error.
func decodeContent(encodings string, data []byte, limit int64) ([]byte, bool, error) {
	var (
		r       io.Reader = bytes.NewReader(data)
		closers []func()
	)
	defer func() {
		for _, c := range closers {
			c()
		}
	}()

	codings := strings.Split(encodings, ",")
	for i := len(codings) - 1; i >= 0; i-- {
		next, closeFn, err := decoder(strings.ToLower(strings.TrimSpace(codings[i])), r)
		if err != nil {
			return nil, false, err
		}
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
		r = next
	}

	out, err := readCapped(r, limit)
	truncated := limit > 0 && int64(len(out)) > limit
	if truncated {
		out = out[:limit]
	}
	if err != nil {
		return out, truncated, fmt.Errorf("decode %s body: %w", encodings, err)
	}
	return out, truncated, nil
}

// decoder wraps r with the reader for one content coding.
func decoder(coding string, r io.Reader) (io.Reader, func(), error) {
	switch coding {
	case "", "identity":
		return r, nil, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("decode gzip body: %w", err)
		}
		return zr, func() { _ = zr.Close() }, nil
	case "deflate":
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("decode deflate body: %w", err)
		}
		return zr, func() { _ = zr.Close() }, nil
	case "zstd":
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, fmt.Errorf("decode zstd body: %w", err)
		}
		return zr, zr.Close, nil
	case "br":
		return brotli.NewReader(r), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported content encoding %q", coding)
	}
}
