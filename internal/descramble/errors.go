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

package descramble

import "fmt"

// KeyDecodeError reports a failure to recover a key table's plaintext JSON
// from its ciphertext, or a failure of that plaintext to parse as the
// expected array of 8 strings.
type KeyDecodeError struct {
	Reason string
}

func (e *KeyDecodeError) Error() string {
	return fmt.Sprintf("descramble: key decode failed: %s", e.Reason)
}

// KeyParseError reports a key table slot whose raw string does not match
// either the Grid or Tile grammar, or whose contents fail an invariant of
// the variant it otherwise matches.
type KeyParseError struct {
	Slot   int
	Reason string
}

func (e *KeyParseError) Error() string {
	return fmt.Sprintf("descramble: slot %d: %s", e.Slot, e.Reason)
}

// ImageTooSmallError reports a source image below the minimum dimensions
// the Tile variant requires to compute piece rectangles.
type ImageTooSmallError struct {
	Width, Height int
}

func (e *ImageTooSmallError) Error() string {
	return fmt.Sprintf("descramble: image %dx%d is too small to descramble", e.Width, e.Height)
}
