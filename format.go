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
	"fmt"
	"strings"
)

// Palette holds the escape sequences wrapped around labels and values.
type Palette struct {
	Label string
	Value string
	Reset string
}

var (
	// ColorPalette renders labels in bright yellow and values in red.
	ColorPalette = Palette{Label: "\x1b[93m", Value: "\x1b[31m", Reset: "\x1b[0m"}
	// PlainPalette renders without escape sequences.
	PlainPalette = Palette{}
)

// PaletteFor returns ColorPalette when color is true and PlainPalette
// otherwise.
func PaletteFor(color bool) Palette {
	if color {
		return ColorPalette
	}
	return PlainPalette
}

func (p Palette) writeLine(b *strings.Builder, label, value string) {
	b.WriteString(p.Label)
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(p.Value)
	b.WriteString(value)
	b.WriteString(p.Reset)
	b.WriteByte('\n')
}

func (p Palette) delimiter(prefix, method, url string) string {
	return "===== " + prefix + p.Label + strings.ToUpper(method) + " " + p.Value + url + p.Reset + " =====\n\n"
}

// Format selects how traces are written to a sink.
type Format int

const (
	// FormatText is the colorized, delimited block layout.
	FormatText Format = iota
	// FormatJSON writes an indented JSON record per exchange.
	FormatJSON
	// FormatYAML writes one YAML document per exchange.
	FormatYAML
)

// String returns the configuration name of the format.
func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat converts a configuration string into a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return FormatText, fmt.Errorf("unknown trace format %q", s)
	}
}

// Formatter renders traces and network failures for a sink. The zero value
// renders plain text.
type Formatter struct {
	Format  Format
	Palette Palette
}

// FormatTrace renders a completed trace. It returns "" for a trace without
// a report.
func (f Formatter) FormatTrace(t *Trace) string {
	if t == nil || t.Report == nil {
		return ""
	}
	switch f.Format {
	case FormatJSON:
		return Serialize(traceRecord(t)) + "\n"
	case FormatYAML:
		return "---\n" + SerializeYAML(traceRecord(t)) + "\n"
	default:
		return t.Render(f.Palette)
	}
}

// FormatFailure renders an exchange that ended without a response.
func (f Formatter) FormatFailure(nf *NetworkFailure) string {
	if nf == nil {
		return ""
	}
	switch f.Format {
	case FormatJSON:
		return Serialize(failureRecord(nf)) + "\n"
	case FormatYAML:
		return "---\n" + SerializeYAML(failureRecord(nf)) + "\n"
	default:
		return nf.Render(f.Palette)
	}
}

type exchangeRecord struct {
	Name          string          `json:"name"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Request       requestRecord   `json:"request"`
	Response      *responseRecord `json:"response"`
	Error         *errorRecord    `json:"error,omitempty"`
}

type requestRecord struct {
	Method  string   `json:"method"`
	URL     string   `json:"url"`
	Headers []string `json:"headers,omitempty"`
	Body    any      `json:"body,omitempty"`
}

type responseRecord struct {
	Status     int      `json:"status"`
	StatusText string   `json:"statusText,omitempty"`
	Headers    []string `json:"headers,omitempty"`
	Body       any      `json:"body,omitempty"`
}

type errorRecord struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func traceRecord(t *Trace) exchangeRecord {
	r := t.Report
	rec := exchangeRecord{
		Name:          t.Name,
		CorrelationID: t.CorrelationID,
		Request: requestRecord{
			Method:  strings.ToUpper(r.method),
			URL:     r.url,
			Headers: headerLines(r.requestHeaders),
		},
	}
	if rec.Name == "" {
		rec.Name = TraceName(r.method, r.url)
	}
	if r.requestBody != nil {
		rec.Request.Body = bodyValue(*r.requestBody)
	}
	if status, ok := r.ResponseStatus(); ok {
		rec.Response = &responseRecord{
			Status:     status,
			StatusText: r.statusText,
			Headers:    headerLines(r.responseHeaders),
			Body:       bodyValue(r.responseBody),
		}
	}
	return rec
}

func failureRecord(nf *NetworkFailure) exchangeRecord {
	rec := exchangeRecord{
		Name:          TraceName(nf.Method, nf.URL),
		CorrelationID: nf.CorrelationID,
		Request: requestRecord{
			Method:  strings.ToUpper(nf.Method),
			URL:     nf.URL,
			Headers: headerLines(nf.RequestHeaders),
		},
		Error: &errorRecord{Message: nf.Message, Code: nf.Code},
	}
	if nf.RequestBody != nil {
		rec.Request.Body = bodyValue(*nf.RequestBody)
	}
	return rec
}

func headerLines(normalized string) []string {
	if normalized == "" {
		return nil
	}
	return strings.Split(normalized, "\n")
}

// bodyValue embeds JSON bodies as structured values so the record does not
// carry them as escaped strings.
func bodyValue(body string) any {
	if body == "" {
		return nil
	}
	if !json.Valid([]byte(body)) {
		return body
	}
	var decoded any
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return body
	}
	return decoded
}
