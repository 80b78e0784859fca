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

import "path"

// SelectSlot derives the (c, p) pair of indices into a KeyTable for a given
// page path, from the bare filename alone (any directory components are
// ignored). Characters at even positions accumulate into p, characters at
// odd positions accumulate into c; each sum is then reduced mod 8.
func SelectSlot(pagePath string) (c, p int) {
	name := path.Base(pagePath)

	var csum, psum int
	for i := 0; i < len(name); i++ {
		if i%2 == 0 {
			psum += int(name[i])
		} else {
			csum += int(name[i])
		}
	}
	return csum % 8, psum % 8
}
