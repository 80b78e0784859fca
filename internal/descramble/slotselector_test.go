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

import "testing"

func TestSelectSlotIsInRange(t *testing.T) {
	names := []string{
		"0001.jpg", "page-1.png", "a", "", "some/path/to/0042.jpg",
		"x", "xx", "xxx", "ZZZZZZZZZZZZZZZZZZZZ",
	}
	for _, n := range names {
		c, p := SelectSlot(n)
		if c < 0 || c >= 8 || p < 0 || p >= 8 {
			t.Errorf("SelectSlot(%q) = (%d, %d), want both in [0,8)", n, c, p)
		}
	}
}

func TestSelectSlotIgnoresDirectoryComponents(t *testing.T) {
	c1, p1 := SelectSlot("0042.jpg")
	c2, p2 := SelectSlot("some/nested/path/0042.jpg")
	if c1 != c2 || p1 != p2 {
		t.Fatalf("directory-qualified path gave (%d,%d), bare name gave (%d,%d)", c2, p2, c1, p1)
	}
}

func TestSelectSlotParitySplit(t *testing.T) {
	// "AB": 'A' at even index 0 -> p_sum, 'B' at odd index 1 -> c_sum.
	c, p := SelectSlot("AB")
	wantC := int('B') % 8
	wantP := int('A') % 8
	if c != wantC || p != wantP {
		t.Fatalf("SelectSlot(\"AB\") = (%d,%d), want (%d,%d)", c, p, wantC, wantP)
	}
}

func TestSelectSlotDeterministic(t *testing.T) {
	c1, p1 := SelectSlot("0099.jpg")
	c2, p2 := SelectSlot("0099.jpg")
	if c1 != c2 || p1 != p2 {
		t.Fatal("SelectSlot is not deterministic for the same input")
	}
}
