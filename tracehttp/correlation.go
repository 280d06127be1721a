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
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// newCorrelationID returns a time-ordered identifier. UUIDv7 embeds the Unix
// millisecond clock in its leading bits.
func newCorrelationID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return id.String()
}

// applyCorrelation sets the marker header on req and returns its value. A
// value already present on the request is kept and returned. An empty key
// disables the marker.
func applyCorrelation(req *http.Request, key string) string {
	if key == "" {
		return ""
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if existing := req.Header.Get(key); existing != "" {
		return existing
	}
	id := newCorrelationID()
	req.Header.Set(key, id)
	return id
}
