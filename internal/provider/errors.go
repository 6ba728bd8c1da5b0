// Copyright (c) 2026 Nexsentia
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

package provider

import (
	"errors"
	"fmt"
)

// APIError is a non-ok response from the provider API. Code carries the
// provider's error string (e.g. "not_in_channel"), Status the HTTP status.
type APIError struct {
	Code   string
	Status int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider API error %q (HTTP %d)", e.Code, e.Status)
}

// permissionCodes are the provider error codes that mean the credential
// cannot read the requested resource. Callers may recover from these at
// channel granularity (join + retry).
var permissionCodes = map[string]bool{
	"not_in_channel":    true,
	"channel_not_found": true,
	"access_denied":     true,
	"missing_scope":     true,
}

// IsPermissionDenied reports whether err is a resource-level permission
// failure, as opposed to a transport or rate-limit failure.
func IsPermissionDenied(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && permissionCodes[ae.Code]
}

// IsRateLimited reports whether err is a provider throttling response.
func IsRateLimited(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && (ae.Status == 429 || ae.Code == "ratelimited")
}
