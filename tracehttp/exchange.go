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
	"errors"
	"net/http"

	"github.com/pjscruggs/tracelog"
)

// ErrNoResponse describes a base transport that returned neither a response
// nor an error.
var ErrNoResponse = errors.New("round trip returned no response and no error")

// Exchange is the terminal outcome of one round trip. It is one of Success,
// FailureWithResponse, or FailureNoResponse.
type Exchange interface {
	exchange()
}

// Success is an exchange whose response status is in [200,400).
type Success struct {
	Request  *http.Request
	Response *http.Response
}

// FailureWithResponse is an exchange where the server answered with a
// failing status. Err is set only if the base transport returned an error
// alongside the response.
type FailureWithResponse struct {
	Request  *http.Request
	Response *http.Response
	Err      error
}

// FailureNoResponse is an exchange that produced no response at all, such as
// a refused connection, DNS failure, timeout, or cancellation.
type FailureNoResponse struct {
	Request *http.Request
	Err     error
}

func (Success) exchange()             {}
func (FailureWithResponse) exchange() {}
func (FailureNoResponse) exchange()   {}

// ResolveExchange classifies the result of a round trip. A response that
// arrives together with an error is a FailureWithResponse regardless of its
// status.
func ResolveExchange(req *http.Request, resp *http.Response, err error) Exchange {
	if resp == nil {
		if err == nil {
			err = ErrNoResponse
		}
		return FailureNoResponse{Request: req, Err: err}
	}
	if err == nil && tracelog.IsSuccessStatus(resp.StatusCode) {
		return Success{Request: req, Response: resp}
	}
	return FailureWithResponse{Request: req, Response: resp, Err: err}
}
