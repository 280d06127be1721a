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

// Package tracelog renders HTTP client traffic as readable trace blocks.
//
// A [Trace] pairs a name derived from the request method and URL with a
// [TraceReport] snapshot of the request and its response. [NetworkFailure]
// describes requests that never received a response. Both render through a
// [Formatter] as colored text, JSON, or YAML and are handed to a [Sink].
//
// Values are rendered with [Serialize], which never fails. A reference that
// closes a cycle is dropped from its struct or map, or left as null inside an
// array, and values that cannot be encoded are replaced with a placeholder.
// [NormalizeHeaders] turns header maps into stable "key: value" lines, and a
// [Policy] decides which exchanges are worth logging.
//
// The net/http integration lives in [github.com/pjscruggs/tracelog/tracehttp].
package tracelog
