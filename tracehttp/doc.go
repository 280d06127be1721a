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

// Package tracehttp records outbound net/http exchanges as tracelog traces.
//
// The package offers:
//
//  1. [Transport]: wraps an [http.RoundTripper] so every request and its
//     outcome is rendered and handed to a [tracelog.Sink].
//
//  2. [Attach]: installs the transport on an existing [http.Client].
//
//  3. [ResolveExchange]: classifies a round trip as [Success],
//     [FailureWithResponse], or [FailureNoResponse].
//
// Exchanges that received a response are filtered through the configured
// [tracelog.Policy]. Exchanges that never produced a response are always
// emitted with an error message and code from [ErrorCode]. Responses and
// errors from the wrapped transport reach the caller unchanged. Bodies are
// never read ahead of the caller: they are copied up to a limit as they are
// read, and a response trace is emitted once its body reaches EOF, passes the
// limit, or is closed.
//
// Each request carries a correlation marker in the X-Correlation-Id header
// unless one is already present. [CorrelationID] reads it back from the
// request context seen by the wrapped transport.
//
// # Basic Usage
//
//	client := tracehttp.Attach(&http.Client{Timeout: 10 * time.Second},
//	    tracehttp.WithPolicyFlags(true, false),
//	    tracehttp.WithRedactedHeaders("Authorization"),
//	)
//	resp, err := client.Get("https://api.example.com/users/1")
//
// # Configuration
//
// Options such as [WithPolicy], [WithFormat], [WithSink], and
// [WithRedactedHeaders] override the TRACELOG_* environment variables read
// when the transport is built.
package tracehttp
