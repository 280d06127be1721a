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
	"context"
	"log/slog"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/pjscruggs/tracelog"
)

// RedactedValue replaces the values of redacted headers in traces.
const RedactedValue = "[REDACTED]"

// Transport returns an http.RoundTripper that records every exchange made
// through base and emits it to the configured sink. Responses and errors from
// base are returned to the caller unchanged.
func Transport(base http.RoundTripper, opts ...Option) http.RoundTripper {
	cfg := applyOptions(opts)
	if base == nil {
		base = http.DefaultTransport
	}
	return roundTripper{
		base: base,
		cfg:  cfg,
		formatter: tracelog.Formatter{
			Format:  cfg.format,
			Palette: tracelog.PaletteFor(cfg.color),
		},
	}
}

// Attach installs a tracing transport on c, wrapping its current transport,
// and returns c. A nil client is replaced with a new one.
func Attach(c *http.Client, opts ...Option) *http.Client {
	if c == nil {
		c = &http.Client{}
	}
	c.Transport = Transport(c.Transport, opts...)
	return c
}

type roundTripper struct {
	base      http.RoundTripper
	cfg       *config
	formatter tracelog.Formatter
}

// exchangeScope is the request snapshot taken before the request leaves.
type exchangeScope struct {
	method         string
	url            string
	requestHeaders string
	requestHeader  http.Header
	requestBody    *string
	requestCapture *bodyCapture
	correlationID  string
}

// debug reports a capture problem on the transport's own logger.
func (s *exchangeScope) debug(logger *slog.Logger, msg string, err error) {
	logger.LogAttrs(context.Background(), slog.LevelDebug, msg,
		slog.String("http.method", s.method),
		slog.String("http.url", s.url),
		slog.Any("error", err),
	)
}

type correlationKey struct{}

// CorrelationID returns the correlation marker attached to a request context
// by the transport, if any.
func CorrelationID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(correlationKey{}).(string)
	return id, ok && id != ""
}

// RoundTrip records the exchange and forwards the request to the base
// transport.
func (t roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return t.base.RoundTrip(req)
	}

	req, scope := t.onRequest(req)
	resp, err := t.base.RoundTrip(req)

	switch ex := ResolveExchange(req, resp, err).(type) {
	case Success:
		t.onResponse(scope, ex.Response)
	case FailureWithResponse:
		t.onResponse(scope, ex.Response)
	case FailureNoResponse:
		t.onNetworkFailure(scope, ex.Err)
	}
	return resp, err
}

// onRequest clones req, stamps the correlation marker on the clone, and
// records what the trace needs from it. A body without GetBody is captured
// as the base transport reads it.
func (t roundTripper) onRequest(req *http.Request) (*http.Request, *exchangeScope) {
	ctx := req.Context()
	out := req.Clone(ctx)

	scope := &exchangeScope{
		method: requestMethod(out),
		url:    requestURL(out),
	}
	scope.correlationID = applyCorrelation(out, t.cfg.correlationHeader)
	if scope.correlationID != "" {
		out = out.WithContext(context.WithValue(ctx, correlationKey{}, scope.correlationID))
	}
	scope.requestHeader = out.Header
	scope.requestHeaders = tracelog.NormalizeHeaders(t.redact(out.Header))
	t.captureRequestBody(out, scope)
	return out, scope
}

// onResponse arranges a trace for resp when the policy selects its status.
// The body is only captured for exchanges that will be logged, and the trace
// is emitted once the caller has consumed or closed a non-empty body.
func (t roundTripper) onResponse(scope *exchangeScope, resp *http.Response) {
	if !t.cfg.policy.ShouldLog(resp.StatusCode) {
		return
	}

	status := resp.StatusCode
	input := tracelog.ReportInput{
		Method:          scope.method,
		URL:             scope.url,
		RequestHeaders:  scope.requestHeaders,
		ResponseStatus:  &status,
		StatusText:      resp.Status,
		ResponseHeaders: tracelog.NormalizeHeaders(t.redact(resp.Header)),
	}
	t.captureResponseBody(resp, scope, func(body string) {
		input.RequestBody = t.requestBodyText(scope)
		input.ResponseBody = body

		trace := tracelog.NewTrace(scope.method, scope.url)
		trace.CorrelationID = scope.correlationID
		trace.Report = tracelog.NewTraceReport(input)
		t.emit(t.formatter.FormatTrace(trace))
	})
}

// onNetworkFailure emits the exchange regardless of policy.
func (t roundTripper) onNetworkFailure(scope *exchangeScope, err error) {
	t.emit(t.formatter.FormatFailure(&tracelog.NetworkFailure{
		Method:         scope.method,
		URL:            scope.url,
		RequestHeaders: scope.requestHeaders,
		RequestBody:    t.requestBodyText(scope),
		Message:        err.Error(),
		Code:           ErrorCode(err),
		CorrelationID:  scope.correlationID,
	}))
}

func (t roundTripper) emit(rendered string) {
	if rendered == "" || t.cfg.sink == nil {
		return
	}
	t.cfg.sink(rendered)
}

// redact returns h with the configured headers masked. h itself is never
// modified.
func (t roundTripper) redact(h http.Header) http.Header {
	if len(t.cfg.redactedHeaders) == 0 || len(h) == 0 {
		return h
	}
	out := make(http.Header, len(h))
	for key, values := range h {
		if _, ok := t.cfg.redactedHeaders[textproto.CanonicalMIMEHeaderKey(key)]; ok && len(values) > 0 {
			out[key] = []string{RedactedValue}
			continue
		}
		out[key] = values
	}
	return out
}

func requestMethod(req *http.Request) string {
	if req.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(req.Method)
}

// requestURL returns the request URL with any password masked.
func requestURL(req *http.Request) string {
	if req.URL == nil {
		return ""
	}
	return req.URL.Redacted()
}
