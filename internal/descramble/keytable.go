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

// Package descramble implements the KeyTableCodec, KeyParser, SlotSelector
// and Descrambler components that undo BinB Reader's page-tile scrambling.
package descramble

import (
	"encoding/json"
	"strings"
)

// keyStreamTap is the LFSR feedback mask XORed in whenever the bit shifted
// out is 1.
// This is not a cryptographic cipher; it exists purely to make raw content
// responses opaque to casual inspection, and the tap value is load-bearing
// for interop with the server's own generator. It must never be replaced
// with a library primitive.
const keyStreamTap = 0x48200004

// generateStreamKey derives the 31-bit LFSR seed from a content ID and the
// nonce ("k") used for a single request.
func generateStreamKey(cid, k string) uint32 {
	s := cid + ":" + k
	var res uint32
	for i := 0; i < len(s); i++ {
		res += uint32(s[i]) << uint(i%16)
	}
	res &= 0x7FFFFFFF
	if res == 0 {
		res = 0x12345678
	}
	return res
}

// DecryptKeyTable reverses the LFSR stream cipher over ciphertext (a
// printable-ASCII string returned by the content-info endpoint) using the
// seed derived from cid and k, and parses the recovered plaintext as a JSON
// array of exactly 8 strings.
func DecryptKeyTable(ciphertext, cid, k string) ([8]string, error) {
	var out [8]string

	key := generateStreamKey(cid, k)
	var sb strings.Builder
	sb.Grow(len(ciphertext))
	for i := 0; i < len(ciphertext); i++ {
		b := ciphertext[i]
		if b < 0x20 || b > 0x7D {
			return out, &KeyDecodeError{Reason: "ciphertext byte out of printable-ASCII range"}
		}

		var tap uint32
		if key&1 == 1 {
			tap = keyStreamTap
		}
		key = (key >> 1) ^ tap

		c := int64(b) - 0x20
		n := ((c + int64(key)) % 0x5E) + 0x20
		sb.WriteByte(byte(n))
	}

	var arr []string
	if err := json.Unmarshal([]byte(sb.String()), &arr); err != nil {
		return out, &KeyDecodeError{Reason: "recovered plaintext is not a JSON array: " + err.Error()}
	}
	if len(arr) != 8 {
		return out, &KeyDecodeError{Reason: "recovered array does not have exactly 8 elements"}
	}
	copy(out[:], arr)
	return out, nil
}
