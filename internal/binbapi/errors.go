// Copyright 2024 The Tessera authors. All Rights Reserved.
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

// Package binbapi implements the BinB Reader BIB/SBC HTTP API client.
package binbapi

import "fmt"

// ApiError reports a JSON envelope whose top-level "result" field is not 1.
type ApiError struct {
	Result int
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("binbapi: server returned result=%d", e.Result)
}

// HTTPError reports a transport-level failure: a non-200 status, or a
// status other than 200/404 where 404 is meaningful to the caller.
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("binbapi: unexpected HTTP status %d fetching %s", e.Status, e.URL)
}
