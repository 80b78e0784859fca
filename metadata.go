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

// Metadata is the subset of a book's content_info fields that describe the
// book itself, rather than how to fetch its pages. Fields are passed
// through verbatim from the server's JSON (e.g. Authors is typically a
// list of {Name: ...} objects, not a scalar), matching the original
// plugin's untyped metadata dictionary.
type Metadata struct {
	Authors       any
	Publisher     any
	PublisherRuby any
	Title         any
	TitleRuby     any
	Categories    any
	Abstract      any
}

// Title returning a string is by far the common case; TitleString is a
// convenience accessor for callers (e.g. a directory-naming scheme) that
// just want the plain string when the server provided one.
func (m Metadata) TitleString() string {
	s, _ := m.Title.(string)
	return s
}

func newMetadata(fields map[string]any) Metadata {
	return Metadata{
		Authors:       fields["Authors"],
		Publisher:     fields["Publisher"],
		PublisherRuby: fields["PublisherRuby"],
		Title:         fields["Title"],
		TitleRuby:     fields["TitleRuby"],
		Categories:    fields["Categories"],
		Abstract:      fields["Abstract"],
	}
}
