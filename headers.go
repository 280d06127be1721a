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
	"net/http"
	"slices"
	"strings"
)

// NormalizeHeaders flattens h into newline-separated "Key: value" lines in
// key order. Headers without any value are skipped and repeated values are
// joined with ", ". An empty or nil header set yields "".
func NormalizeHeaders(h http.Header) string {
	if len(h) == 0 {
		return ""
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	return NormalizeFields(keys, func(key string) (string, bool) {
		values := h[key]
		if len(values) == 0 {
			return "", false
		}
		return strings.Join(values, ", "), true
	})
}

// NormalizeFields renders one "key: value" line per key, in the order given,
// for every key whose lookup reports a value. The result is trimmed so an
// empty set yields "".
func NormalizeFields(keys []string, lookup func(string) (string, bool)) string {
	if lookup == nil {
		return ""
	}
	var b strings.Builder
	for _, key := range keys {
		value, ok := lookup(key)
		if !ok {
			continue
		}
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}
