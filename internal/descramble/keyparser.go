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

import (
	"regexp"
	"strconv"
)

// SlotKind distinguishes the two scrambling schemes a table slot can use.
type SlotKind int

const (
	// SlotGrid is the fixed-grid scheme: a slot string starting with "=".
	SlotGrid SlotKind = iota + 1
	// SlotTile is the variable-tile scheme: a slot string starting with a digit.
	SlotTile
)

// Piece is one rectangular region of a Tile-variant slot, addressed by its
// column/row ordinal (X, Y) and measured in the scheme's own piece units
// (2x2, 2x1, 1x2 or 1x1, resolved against the image's real dimensions at
// descramble time).
type Piece struct {
	X, Y          int
	Width, Height int
}

// GridSlot holds a parsed pair of Grid-variant strings: the source ("s",
// from the c-half, sign '+') and destination ("d", from the p-half, sign
// '-') permutation maps, already cross-validated for a consistent h, v and
// padding.
type GridSlot struct {
	H, V    int
	Padding int
	SStr    string
	DStr    string
}

// TileSlot holds a parsed pair of Tile-variant piece lists, one per half of
// the table (c and p), sharing the same grid dimensions ndx x ndy.
type TileSlot struct {
	Ndx, Ndy int
	CPieces  []Piece
	PPieces  []Piece
}

// SlotKey is one entry of a KeyTable: a tagged union of the two scrambling
// schemes, already merged from its c-half and p-half raw strings.
type SlotKey struct {
	Kind SlotKind
	Grid GridSlot
	Tile TileSlot
}

// KeyTable is the fully parsed, 8-entry scrambling key recovered from a
// pair of decrypted key tables (ctbl and ptbl).
type KeyTable [8]SlotKey

var gridSlotPattern = regexp.MustCompile(`^=([0-9]+)-([0-9]+)([-+])([0-9]+)-([-_0-9A-Za-z]+)$`)

// ParseKeyTable merges a pair of 8-entry decrypted key tables (ctbl, the
// source/content half; ptbl, the destination/page half) into a KeyTable,
// resolving each of the 8 slots independently as Grid or Tile.
func ParseKeyTable(ctbl, ptbl [8]string) (KeyTable, error) {
	var table KeyTable
	for i := 0; i < 8; i++ {
		c, p := ctbl[i], ptbl[i]
		if len(c) == 0 || len(p) == 0 {
			return table, &KeyParseError{Slot: i, Reason: "empty slot string"}
		}

		switch {
		case c[0] == '=' && p[0] == '=':
			grid, err := parseGridSlot(c, p)
			if err != nil {
				return table, &KeyParseError{Slot: i, Reason: err.Error()}
			}
			table[i] = SlotKey{Kind: SlotGrid, Grid: grid}
		case isASCIIDigit(c[0]) && isASCIIDigit(p[0]):
			tile, err := parseTileSlot(c, p)
			if err != nil {
				return table, &KeyParseError{Slot: i, Reason: err.Error()}
			}
			table[i] = SlotKey{Kind: SlotTile, Tile: tile}
		default:
			return table, &KeyParseError{Slot: i, Reason: "c-half and p-half do not agree on a scheme, or match neither"}
		}
	}
	return table, nil
}

func isASCIIDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func parseGridSlot(c, p string) (GridSlot, error) {
	cm := gridSlotPattern.FindStringSubmatch(c)
	pm := gridSlotPattern.FindStringSubmatch(p)
	if cm == nil || pm == nil {
		return GridSlot{}, errParse("grid slot string does not match the expected grammar")
	}
	if cm[1] != pm[1] || cm[2] != pm[2] || cm[4] != pm[4] {
		return GridSlot{}, errParse("c-half and p-half disagree on h, v or padding")
	}
	if cm[3] != "+" || pm[3] != "-" {
		return GridSlot{}, errParse("c-half must carry '+' and p-half must carry '-'")
	}

	h, err := strconv.Atoi(cm[1])
	if err != nil {
		return GridSlot{}, errParse("h is not a valid integer")
	}
	v, err := strconv.Atoi(cm[2])
	if err != nil {
		return GridSlot{}, errParse("v is not a valid integer")
	}
	padding, err := strconv.Atoi(cm[4])
	if err != nil {
		return GridSlot{}, errParse("padding is not a valid integer")
	}
	if h < 1 || v < 1 || h > 8 || v > 8 || h*v > 64 {
		return GridSlot{}, errParse("h and v out of range")
	}

	sStr, dStr := cm[5], pm[5]
	want := h + v + h*v
	if len(sStr) != want || len(dStr) != want {
		return GridSlot{}, errParse("s/d strings do not have the expected length h+v+h*v")
	}
	for _, ch := range sStr + dStr {
		n := tnpValue(byte(ch))
		if n < 0 || n >= h*v {
			return GridSlot{}, errParse("s/d string contains a character outside [0, h*v)")
		}
	}

	return GridSlot{H: h, V: v, Padding: padding, SStr: sStr, DStr: dStr}, nil
}

func parseTileSlot(c, p string) (TileSlot, error) {
	cNdx, cNdy, cData, err := splitTileKey(c)
	if err != nil {
		return TileSlot{}, err
	}
	pNdx, pNdy, pData, err := splitTileKey(p)
	if err != nil {
		return TileSlot{}, err
	}
	if cNdx != pNdx || cNdy != pNdy {
		return TileSlot{}, errParse("c-half and p-half disagree on ndx or ndy")
	}

	cPieces, err := decodeTilePieces(cNdx, cNdy, cData)
	if err != nil {
		return TileSlot{}, err
	}
	pPieces, err := decodeTilePieces(pNdx, pNdy, pData)
	if err != nil {
		return TileSlot{}, err
	}

	return TileSlot{Ndx: cNdx, Ndy: cNdy, CPieces: cPieces, PPieces: pPieces}, nil
}

// splitTileKey splits a Tile slot string of the form "NDX-NDY-DATA".
func splitTileKey(s string) (ndx, ndy int, data string, err error) {
	first := indexByte(s, '-')
	if first < 0 {
		return 0, 0, "", errParse("tile slot string missing ndx separator")
	}
	second := indexByte(s[first+1:], '-')
	if second < 0 {
		return 0, 0, "", errParse("tile slot string missing ndy separator")
	}
	second += first + 1

	ndx, errX := strconv.Atoi(s[:first])
	ndy, errY := strconv.Atoi(s[first+1 : second])
	if errX != nil || errY != nil || ndx < 1 || ndy < 1 {
		return 0, 0, "", errParse("tile slot ndx/ndy are not valid positive integers")
	}
	return ndx, ndy, s[second+1:], nil
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

const tileAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// decodeTileChar maps one Tile data character to a value in [0, 51]:
// uppercase letters give an odd value (2*index+1), lowercase an even value
// (2*index), matching the server's own encode/decode pairing.
func decodeTileChar(ch byte) (int, bool) {
	switch {
	case ch >= 'A' && ch <= 'Z':
		return int(ch-'A')*2 + 1, true
	case ch >= 'a' && ch <= 'z':
		return int(ch-'a') * 2, true
	default:
		return 0, false
	}
}

// decodeTilePieces decodes a Tile slot's data string into its ndx*ndy
// piece list, assigning each piece a width and height (in piece units, 1 or
// 2) by its ordinal position relative to the F/G/H/J quadrant thresholds.
func decodeTilePieces(ndx, ndy int, data string) ([]Piece, error) {
	count := ndx * ndy
	if len(data) != 2*count {
		return nil, errParse("tile data length does not match 2*ndx*ndy")
	}

	maxVal := 2 * maxInt(ndx, ndy)
	coords := make([]int, count*2)
	for i := 0; i < count*2; i++ {
		n, ok := decodeTileChar(data[i])
		if !ok || n >= maxVal {
			return nil, errParse("tile data contains an invalid character")
		}
		coords[i] = n
	}

	f := (ndx-1)*(ndy-1) - 1
	g := f + (ndx - 1)
	h := g + (ndy - 1)

	pieces := make([]Piece, count)
	for i := 0; i < count; i++ {
		x, y := coords[2*i], coords[2*i+1]
		var w, hgt int
		switch {
		case i <= f:
			w, hgt = 2, 2
		case i <= g:
			w, hgt = 2, 1
		case i <= h:
			w, hgt = 1, 2
		default:
			w, hgt = 1, 1
		}
		pieces[i] = Piece{X: x, Y: y, Width: w, Height: hgt}
	}
	return pieces, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

type parseError string

func (e parseError) Error() string { return string(e) }

func errParse(reason string) error { return parseError(reason) }
