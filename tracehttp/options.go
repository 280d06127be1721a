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
	"log/slog"
	"net/textproto"
	"os"
	"strconv"
	"strings"

	"github.com/pjscruggs/tracelog"
)

const (
	// DefaultCorrelationHeader is the request header carrying the
	// correlation marker.
	DefaultCorrelationHeader = "X-Correlation-Id"

	// DefaultBodyLimit is the number of body bytes captured for a trace.
	DefaultBodyLimit int64 = 1 << 20
)

// Environment variables read when a Transport is built. Functional options
// override them.
const (
	envPolicy            = "TRACELOG_POLICY"
	envLogOnlyOnError    = "TRACELOG_LOG_ONLY_ON_ERROR"
	envExpectError       = "TRACELOG_EXPECT_ERROR"
	envFormat            = "TRACELOG_FORMAT"
	envColor             = "TRACELOG_COLOR"
	envCorrelationHeader = "TRACELOG_CORRELATION_HEADER"
	envRequestBodyLimit  = "TRACELOG_REQUEST_BODY_LIMIT"
	envResponseBodyLimit = "TRACELOG_RESPONSE_BODY_LIMIT"
	envRedactHeaders     = "TRACELOG_REDACT_HEADERS"
)

// Option configures a Transport.
type Option func(*config)

type config struct {
	logger            *slog.Logger
	sink              tracelog.Sink
	policy            tracelog.Policy
	format            tracelog.Format
	color             bool
	colorSet          bool
	correlationHeader string
	requestBodyLimit  int64
	responseBodyLimit int64
	redactedHeaders   map[string]struct{}
}

// defaultConfig returns the baseline configuration before environment
// variables and functional options are applied.
func defaultConfig() *config {
	return &config{
		logger:            slog.Default(),
		policy:            tracelog.PolicyAlways,
		format:            tracelog.FormatText,
		correlationHeader: DefaultCorrelationHeader,
		requestBodyLimit:  DefaultBodyLimit,
		responseBodyLimit: DefaultBodyLimit,
	}
}

// applyOptions layers the environment and then opts on top of
// defaultConfig, and resolves the sink and color defaults.
func applyOptions(opts []Option) *config {
	cfg := defaultConfig()
	loadConfigFromEnv(cfg)
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.sink == nil {
		cfg.sink = tracelog.StdoutSink()
		if !cfg.colorSet {
			cfg.color = tracelog.StdoutIsTerminal()
		}
	}
	return cfg
}

// loadConfigFromEnv applies TRACELOG_* variables to cfg. Invalid values are
// ignored so functional options can supply overrides without additional
// error handling.
func loadConfigFromEnv(cfg *config) {
	var logOnlyOnError, expectError bool
	if raw, ok := os.LookupEnv(envLogOnlyOnError); ok {
		if v, err := strconv.ParseBool(strings.TrimSpace(raw)); err == nil {
			logOnlyOnError = v
		}
	}
	if raw, ok := os.LookupEnv(envExpectError); ok {
		if v, err := strconv.ParseBool(strings.TrimSpace(raw)); err == nil {
			expectError = v
		}
	}
	cfg.policy = tracelog.PolicyFromFlags(logOnlyOnError, expectError)

	if raw, ok := os.LookupEnv(envPolicy); ok {
		if p, err := tracelog.ParsePolicy(raw); err == nil {
			cfg.policy = p
		}
	}
	if raw, ok := os.LookupEnv(envFormat); ok {
		if f, err := tracelog.ParseFormat(raw); err == nil {
			cfg.format = f
		}
	}
	if raw, ok := os.LookupEnv(envColor); ok {
		if v, err := strconv.ParseBool(strings.TrimSpace(raw)); err == nil {
			cfg.color = v
			cfg.colorSet = true
		}
	}
	if raw, ok := os.LookupEnv(envCorrelationHeader); ok {
		cfg.correlationHeader = strings.TrimSpace(raw)
	}
	if raw, ok := os.LookupEnv(envRequestBodyLimit); ok {
		if v, err := parseNonNegativeInt64(raw); err == nil {
			cfg.requestBodyLimit = v
		}
	}
	if raw, ok := os.LookupEnv(envResponseBodyLimit); ok {
		if v, err := parseNonNegativeInt64(raw); err == nil {
			cfg.responseBodyLimit = v
		}
	}
	if raw, ok := os.LookupEnv(envRedactHeaders); ok {
		cfg.redactedHeaders = headerSet(strings.Split(raw, ","))
	}
}

// WithLogger sets the logger used for the transport's own diagnostics, such
// as body capture failures. When nil, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger == nil {
			cfg.logger = slog.Default()
			return
		}
		cfg.logger = logger
	}
}

// WithSink sets the destination of rendered traces. When nil, traces go to
// tracelog.StdoutSink and color follows terminal detection.
func WithSink(sink tracelog.Sink) Option {
	return func(cfg *config) {
		cfg.sink = sink
	}
}

// WithPolicy sets the logging policy applied to exchanges that received a
// response.
func WithPolicy(policy tracelog.Policy) Option {
	return func(cfg *config) {
		cfg.policy = policy
	}
}

// WithPolicyFlags sets the policy from the logOnlyOnError and expectError
// switches. See tracelog.PolicyFromFlags.
func WithPolicyFlags(logOnlyOnError, expectError bool) Option {
	return WithPolicy(tracelog.PolicyFromFlags(logOnlyOnError, expectError))
}

// WithFormat selects the rendering of each trace.
func WithFormat(format tracelog.Format) Option {
	return func(cfg *config) {
		cfg.format = format
	}
}

// WithColor forces ANSI colors on or off. By default colors are enabled only
// when writing to the default stdout sink attached to a terminal.
func WithColor(enabled bool) Option {
	return func(cfg *config) {
		cfg.color = enabled
		cfg.colorSet = true
	}
}

// WithCorrelationHeader sets the header carrying the correlation marker. An
// empty key disables the marker.
func WithCorrelationHeader(key string) Option {
	return func(cfg *config) {
		cfg.correlationHeader = strings.TrimSpace(key)
	}
}

// WithRequestBodyLimit caps the number of request body bytes captured. Zero
// captures the whole body; negative values are ignored.
func WithRequestBodyLimit(limit int64) Option {
	return func(cfg *config) {
		if limit >= 0 {
			cfg.requestBodyLimit = limit
		}
	}
}

// WithResponseBodyLimit caps the number of response body bytes captured.
// Zero captures the whole body; negative values are ignored.
func WithResponseBodyLimit(limit int64) Option {
	return func(cfg *config) {
		if limit >= 0 {
			cfg.responseBodyLimit = limit
		}
	}
}

// WithRedactedHeaders replaces the values of the named request and response
// headers with a placeholder in traces. Matching is case-insensitive. Calls
// are cumulative.
func WithRedactedHeaders(keys ...string) Option {
	set := headerSet(keys)
	return func(cfg *config) {
		if len(set) == 0 {
			return
		}
		if cfg.redactedHeaders == nil {
			cfg.redactedHeaders = make(map[string]struct{}, len(set))
		}
		for k := range set {
			cfg.redactedHeaders[k] = struct{}{}
		}
	}
}

// headerSet canonicalizes header keys, dropping blanks.
func headerSet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		set[textproto.CanonicalMIMEHeaderKey(key)] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

// parseNonNegativeInt64 parses a byte limit.
func parseNonNegativeInt64(raw string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, strconv.ErrRange
	}
	return v, nil
}
