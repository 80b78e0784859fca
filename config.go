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

package binbreader

import (
	"time"

	"github.com/binbreader/binbreader/internal/binbapi"
	"github.com/binbreader/binbreader/internal/descramble"
)

// PageEnd selects the final page of a fetch range.
type PageEnd struct {
	// All, when true, means "through the last page of the book" and
	// overrides Index.
	All bool
	// Index is the 1-based final page when All is false.
	Index int
}

// ToLastPage is the PageEnd value for "fetch through the end of the book",
// equivalent to the caller-facing "end" sentinel in the external interface.
var ToLastPage = PageEnd{All: true}

// Config is the embedder-facing equivalent of the caller configuration
// enumerated for the command-line front end: page range, output format,
// concurrency, and packaging options. Fields left at their zero value take
// the defaults documented below.
type Config struct {
	// PageStart is the 1-based index of the first page to fetch. Zero
	// defaults to 1.
	PageStart int
	// PageEnd selects the last page to fetch. The zero value (PageEnd{})
	// defaults to ToLastPage.
	PageEnd PageEnd
	// Lossless selects PNG output instead of JPEG.
	Lossless bool
	// Threads is the WorkerPool concurrency. Zero defaults to 10.
	Threads int
	// Username and Password are forwarded to a LoginHook, when set; the
	// session never inspects them itself.
	Username, Password string
	// HTTP is forwarded to the underlying ApiClient.
	HTTP binbapi.Config
}

func (c Config) pageStart() int {
	if c.PageStart <= 0 {
		return 1
	}
	return c.PageStart
}

// pageRange resolves Config's 1-based, inclusive [start, end] page range
// against the book's actual page count, validating it against a ConfigError.
func (c Config) pageRange(pageCount int) (start, end int, err error) {
	start = c.pageStart()
	if start > pageCount {
		return 0, 0, &ConfigError{Reason: "page_start is beyond the last page of the book"}
	}
	end = pageCount
	if !c.PageEnd.All && c.PageEnd.Index > 0 {
		end = c.PageEnd.Index
	}
	if end > pageCount {
		end = pageCount
	}
	if end < start {
		return 0, 0, &ConfigError{Reason: "page_end precedes page_start"}
	}
	return start, end, nil
}

// OutputFormat returns the descrambler output format Lossless selects.
func (c Config) OutputFormat() descramble.OutputFormat {
	if c.Lossless {
		return descramble.FormatPNG
	}
	return descramble.FormatJPEG
}

// Extension returns the file extension matching OutputFormat.
func (c Config) Extension() string {
	if c.Lossless {
		return "png"
	}
	return "jpg"
}

// now is the clock NewBookSession uses to seed the client nonce; it is a
// package variable so the clock can be replaced.
var now = time.Now
