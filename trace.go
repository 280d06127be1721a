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
	"strconv"
	"strings"
)

// absentStatus is rendered in place of a missing response status.
const absentStatus = "undefined"

// Trace is the named record of a single exchange. It is built once per
// completed exchange, handed to a sink, and then discarded.
type Trace struct {
	// Name is "<METHOD> <URL>" with the method upper-cased.
	Name string
	// CorrelationID is the marker value sent with the request, if any.
	CorrelationID string
	// Report is nil until the exchange completes.
	Report *TraceReport
}

// NewTrace returns a Trace named after method and url. The report is
// attached by the caller once the exchange completes.
func NewTrace(method, url string) *Trace {
	return &Trace{Name: TraceName(method, url)}
}

// TraceName derives the trace label for an exchange.
func TraceName(method, url string) string {
	return strings.ToUpper(method) + " " + url
}

// ReportInput carries the extracted fields of an exchange into
// NewTraceReport.
type ReportInput struct {
	Method          string
	URL             string
	RequestHeaders  string
	RequestBody     *string
	ResponseStatus  *int
	StatusText      string
	ResponseHeaders string
	ResponseBody    string
}

// TraceReport is an immutable snapshot of one exchange. A nil response
// status means no response was received.
type TraceReport struct {
	method          string
	url             string
	requestHeaders  string
	requestBody     *string
	responseStatus  *int
	statusText      string
	responseHeaders string
	responseBody    string
}

// NewTraceReport copies in into a new report. Optional fields are copied so
// later changes by the caller cannot reach the report.
func NewTraceReport(in ReportInput) *TraceReport {
	r := &TraceReport{
		method:          in.Method,
		url:             in.URL,
		requestHeaders:  in.RequestHeaders,
		statusText:      in.StatusText,
		responseHeaders: in.ResponseHeaders,
		responseBody:    in.ResponseBody,
	}
	if in.RequestBody != nil {
		body := *in.RequestBody
		r.requestBody = &body
	}
	if in.ResponseStatus != nil {
		status := *in.ResponseStatus
		r.responseStatus = &status
	}
	return r
}

// Method returns the request method as supplied by the client.
func (r *TraceReport) Method() string { return r.method }

// URL returns the request URL.
func (r *TraceReport) URL() string { return r.url }

// RequestHeaders returns the normalized request headers.
func (r *TraceReport) RequestHeaders() string { return r.requestHeaders }

// RequestBody returns the serialized request body and whether one was sent.
func (r *TraceReport) RequestBody() (string, bool) {
	if r.requestBody == nil {
		return "", false
	}
	return *r.requestBody, true
}

// ResponseStatus returns the status code and whether a response existed.
func (r *TraceReport) ResponseStatus() (int, bool) {
	if r.responseStatus == nil {
		return 0, false
	}
	return *r.responseStatus, true
}

// StatusText returns the response status line text, such as "404 Not Found".
func (r *TraceReport) StatusText() string { return r.statusText }

// ResponseHeaders returns the normalized response headers.
func (r *TraceReport) ResponseHeaders() string { return r.responseHeaders }

// ResponseBody returns the serialized response body.
func (r *TraceReport) ResponseBody() string { return r.responseBody }

func (r *TraceReport) statusString() string {
	if r.responseStatus == nil {
		return absentStatus
	}
	return strconv.Itoa(*r.responseStatus)
}

// Render returns the report block. The request header and body lines are
// present only when non-empty; the response lines are always present. The
// block ends with a blank line.
func (r *TraceReport) Render(p Palette) string {
	var b strings.Builder
	p.writeLine(&b, "URL", r.url)
	p.writeLine(&b, "Request Method", strings.ToUpper(r.method))
	if r.requestHeaders != "" {
		p.writeLine(&b, "Request Header(s)", r.requestHeaders)
	}
	if r.requestBody != nil && *r.requestBody != "" {
		p.writeLine(&b, "Request Body(s)", *r.requestBody)
	}
	p.writeLine(&b, "Response Status", r.statusString())
	p.writeLine(&b, "Response Header(s)", r.responseHeaders)
	p.writeLine(&b, "Response Body", r.responseBody)
	b.WriteByte('\n')
	return b.String()
}

// Render returns the delimiter line followed by the report block, or "" when
// the exchange has not completed.
func (t *Trace) Render(p Palette) string {
	if t == nil || t.Report == nil {
		return ""
	}
	return p.delimiter("", t.Report.method, t.Report.url) + t.Report.Render(p)
}

// NetworkFailure describes an exchange that ended without a response, such
// as a refused connection or a timeout. It has no TraceReport because there
// is no response to report against.
type NetworkFailure struct {
	Method         string
	URL            string
	RequestHeaders string
	RequestBody    *string
	Message        string
	Code           string
	CorrelationID  string
}

// Render returns the delimited network error block.
func (f *NetworkFailure) Render(p Palette) string {
	if f == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(p.delimiter("NETWORK ERROR ", f.Method, f.URL))
	p.writeLine(&b, "URL", f.URL)
	p.writeLine(&b, "Request Method", strings.ToUpper(f.Method))
	if f.RequestHeaders != "" {
		p.writeLine(&b, "Request Header(s)", f.RequestHeaders)
	}
	if f.RequestBody != nil && *f.RequestBody != "" {
		p.writeLine(&b, "Request Body(s)", *f.RequestBody)
	}
	p.writeLine(&b, "Error Message", f.Message)
	p.writeLine(&b, "Error Code", f.Code)
	b.WriteByte('\n')
	return b.String()
}
