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
	"fmt"
	"strings"
)

// Policy decides which completed exchanges are emitted. Exchanges that end
// without any response are always emitted and never consult the policy.
type Policy int

const (
	// PolicyAlways emits every exchange. It is the default.
	PolicyAlways Policy = iota
	// PolicyOnErrorOnly suppresses exchanges whose status is in the success
	// range [200,400).
	PolicyOnErrorOnly
	// PolicyOnUnexpectedOnly is used when callers expect a request to fail:
	// a success status is the noteworthy outcome and is emitted. Failing
	// statuses are emitted as well.
	PolicyOnUnexpectedOnly
)

// PolicyFromFlags maps the logOnlyOnError and expectError switches onto a
// Policy. expectError has no effect unless logOnlyOnError is set.
func PolicyFromFlags(logOnlyOnError, expectError bool) Policy {
	switch {
	case !logOnlyOnError:
		return PolicyAlways
	case expectError:
		return PolicyOnUnexpectedOnly
	default:
		return PolicyOnErrorOnly
	}
}

// ShouldLog reports whether an exchange that received status should be
// emitted. Only the success range is ever suppressed.
func (p Policy) ShouldLog(status int) bool {
	if !IsSuccessStatus(status) {
		return true
	}
	switch p {
	case PolicyOnErrorOnly:
		return false
	default:
		return true
	}
}

// IsSuccessStatus reports whether status falls in [200,400).
func IsSuccessStatus(status int) bool {
	return status >= 200 && status < 400
}

// String returns the configuration name of the policy.
func (p Policy) String() string {
	switch p {
	case PolicyAlways:
		return "always"
	case PolicyOnErrorOnly:
		return "on-error"
	case PolicyOnUnexpectedOnly:
		return "on-unexpected"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy converts a configuration string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "always", "":
		return PolicyAlways, nil
	case "on-error", "on_error", "error", "errors":
		return PolicyOnErrorOnly, nil
	case "on-unexpected", "on_unexpected", "unexpected":
		return PolicyOnUnexpectedOnly, nil
	default:
		return PolicyAlways, fmt.Errorf("unknown trace policy %q", s)
	}
}
