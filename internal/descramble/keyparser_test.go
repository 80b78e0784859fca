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
	"testing"

	"github.com/google/go-cmp/cmp"
)

func eightTables(gridIdx int, cGrid, pGrid string, cTile, pTile string) ([8]string, [8]string) {
	var ctbl, ptbl [8]string
	for i := 0; i < 8; i++ {
		if i == gridIdx {
			ctbl[i] = cGrid
			ptbl[i] = pGrid
		} else {
			ctbl[i] = cTile
			ptbl[i] = pTile
		}
	}
	return ctbl, ptbl
}

func TestParseKeyTableGridSlot(t *testing.T) {
	ctbl, ptbl := eightTables(0, "=2-1+0-ABAAB", "=2-1-0-BAABA", "2-2-aaaaaaaa", "2-2-aaaaaaaa")

	table, err := ParseKeyTable(ctbl, ptbl)
	if err != nil {
		t.Fatalf("ParseKeyTable: %v", err)
	}

	got := table[0]
	if got.Kind != SlotGrid {
		t.Fatalf("slot 0 kind = %v, want SlotGrid", got.Kind)
	}
	want := GridSlot{H: 2, V: 1, Padding: 0, SStr: "ABAAB", DStr: "BAABA"}
	if diff := cmp.Diff(want, got.Grid); diff != "" {
		t.Fatalf("slot 0 grid mismatch (-want +got):\n%s", diff)
	}
}

func TestParseKeyTableTileSlot(t *testing.T) {
	ctbl, ptbl := eightTables(0, "=2-1+0-ABAAB", "=2-1-0-BAABA", "2-2-aaaaaaaa", "2-2-aaaaaaaa")

	table, err := ParseKeyTable(ctbl, ptbl)
	if err != nil {
		t.Fatalf("ParseKeyTable: %v", err)
	}

	got := table[1]
	if got.Kind != SlotTile {
		t.Fatalf("slot 1 kind = %v, want SlotTile", got.Kind)
	}
	if got.Tile.Ndx != 2 || got.Tile.Ndy != 2 {
		t.Fatalf("slot 1 ndx/ndy = %d/%d, want 2/2", got.Tile.Ndx, got.Tile.Ndy)
	}
	wantSizes := []Piece{
		{X: 0, Y: 0, Width: 2, Height: 2},
		{X: 0, Y: 0, Width: 2, Height: 1},
		{X: 0, Y: 0, Width: 1, Height: 2},
		{X: 0, Y: 0, Width: 1, Height: 1},
	}
	for i, want := range wantSizes {
		if got.Tile.CPieces[i] != want {
			t.Errorf("CPieces[%d] = %+v, want %+v", i, got.Tile.CPieces[i], want)
		}
	}
}

func TestParseKeyTableMixedVariants(t *testing.T) {
	// Slot 3 uses Grid, every other slot uses Tile: mixed variants across
	// slots of the same table are allowed.
	ctbl, ptbl := eightTables(3, "=2-1+0-ABAAB", "=2-1-0-BAABA", "2-2-aaaaaaaa", "2-2-aaaaaaaa")

	table, err := ParseKeyTable(ctbl, ptbl)
	if err != nil {
		t.Fatalf("ParseKeyTable: %v", err)
	}
	for i, slot := range table {
		want := SlotTile
		if i == 3 {
			want = SlotGrid
		}
		if slot.Kind != want {
			t.Errorf("slot %d kind = %v, want %v", i, slot.Kind, want)
		}
	}
}

func TestParseKeyTableRejectsMismatchedSign(t *testing.T) {
	ctbl, ptbl := eightTables(0, "=2-1+0-ABAAB", "=2-1+0-BAABA", "2-2-aaaaaaaa", "2-2-aaaaaaaa")
	if _, err := ParseKeyTable(ctbl, ptbl); err == nil {
		t.Fatal("expected an error when both halves carry sign '+'")
	}
}

func TestParseKeyTableRejectsDisagreeingDimensions(t *testing.T) {
	ctbl, ptbl := eightTables(0, "=2-1+0-ABAAB", "=3-1-0-BAABAB", "2-2-aaaaaaaa", "2-2-aaaaaaaa")
	if _, err := ParseKeyTable(ctbl, ptbl); err == nil {
		t.Fatal("expected an error when h disagrees between c and p halves")
	}
}

func TestParseKeyTableRejectsWrongBodyLength(t *testing.T) {
	ctbl, ptbl := eightTables(0, "=2-1+0-AB", "=2-1-0-BAABA", "2-2-aaaaaaaa", "2-2-aaaaaaaa")
	if _, err := ParseKeyTable(ctbl, ptbl); err == nil {
		t.Fatal("expected an error for a body shorter than h+v+h*v")
	}
}

func TestParseKeyTableRejectsUnknownVariant(t *testing.T) {
	var ctbl, ptbl [8]string
	for i := range ctbl {
		ctbl[i] = "!!!not-a-slot"
		ptbl[i] = "!!!not-a-slot"
	}
	if _, err := ParseKeyTable(ctbl, ptbl); err == nil {
		t.Fatal("expected an error for a slot string matching neither grammar")
	}
}

func TestParseKeyTableRejectsTileDimensionMismatch(t *testing.T) {
	ctbl, ptbl := eightTables(0, "=2-1+0-ABAAB", "=2-1-0-BAABA", "2-2-aaaaaaaa", "2-3-aaaaaaaaaaaa")
	if _, err := ParseKeyTable(ctbl, ptbl); err == nil {
		t.Fatal("expected an error when tile ndy disagrees between c and p halves")
	}
}
