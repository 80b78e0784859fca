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

// Package binbreader reconstructs the page images of a BinB-hosted book or
// document, undoing the server's grid/tile pixel scrambling.
package binbreader

import "fmt"

// ConfigError reports a bad caller-supplied option: missing identifiers,
// a page range that does not fit the book, and similar fatal
// misconfigurations.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("binbreader: configuration error: %s", e.Reason)
}
