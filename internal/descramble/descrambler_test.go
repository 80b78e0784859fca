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
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func trivialIdentityGridSlot() GridSlot {
	return GridSlot{H: 1, V: 1, Padding: 0, SStr: "AAA", DStr: "AAA"}
}

func TestGridRectanglesIdentityOnTinyImage(t *testing.T) {
	slot := trivialIdentityGridSlot()
	rects, w, h, err := gridRectangles(slot, slot, 10, 10)
	if err != nil {
		t.Fatalf("gridRectangles: %v", err)
	}
	if w != 10 || h != 10 {
		t.Fatalf("output size = %dx%d, want 10x10", w, h)
	}
	if len(rects) != 1 {
		t.Fatalf("len(rects) = %d, want 1", len(rects))
	}
	r := rects[0]
	if r.srcX != 0 || r.srcY != 0 || r.dstX != 0 || r.dstY != 0 || r.width != 10 || r.height != 10 {
		t.Fatalf("rect = %+v, want a full-image identity copy", r)
	}
}

func TestGridRectanglesUnpaddedAtExactBoundary(t *testing.T) {
	// h=1, v=1, padding=2: x=4, y=4. A 324x324 image clears both side
	// bounds (> 68) but its product is exactly (324*324), so it sits on the
	// area boundary; the strict comparison means it takes the unpadded
	// branch.
	slot := GridSlot{H: 1, V: 1, Padding: 2, SStr: "AAA", DStr: "AAA"}
	w, h := 324, 324
	if w*h != (320+4)*(320+4) {
		t.Fatalf("test fixture invalid: %d != %d", w*h, (320+4)*(320+4))
	}

	_, outW, outH, err := gridRectangles(slot, slot, w, h)
	if err != nil {
		t.Fatalf("gridRectangles: %v", err)
	}
	if outW != w || outH != h {
		t.Fatalf("output size = %dx%d, want unpadded %dx%d", outW, outH, w, h)
	}
}

func TestGridRectanglesRejectsDisagreement(t *testing.T) {
	c := GridSlot{H: 1, V: 1, Padding: 0, SStr: "AAA", DStr: "AAA"}
	p := GridSlot{H: 2, V: 1, Padding: 0, SStr: "AAAAA", DStr: "AAAAA"}
	if _, _, _, err := gridRectangles(c, p, 100, 100); err == nil {
		t.Fatal("expected an error when c and p grid slots disagree on h")
	}
}

func trivialTileSlot(ndx, ndy int) TileSlot {
	count := ndx * ndy
	pieces := make([]Piece, count)
	for i := range pieces {
		pieces[i] = Piece{X: 0, Y: 0, Width: 1, Height: 1}
	}
	return TileSlot{Ndx: ndx, Ndy: ndy, CPieces: pieces, PPieces: pieces}
}

func TestTileRectanglesFailsAtExactThreshold(t *testing.T) {
	slot := trivialTileSlot(1, 1)
	if _, _, _, err := tileRectangles(slot, slot, 320, 320); err == nil {
		t.Fatal("expected ImageTooSmallError at exactly 320x320")
	}
}

func TestTileRectanglesSucceedsJustAboveThreshold(t *testing.T) {
	slot := trivialTileSlot(1, 1)
	if _, _, _, err := tileRectangles(slot, slot, 321, 321); err != nil {
		t.Fatalf("tileRectangles at 321x321: %v", err)
	}
}

func TestTileRectanglesRejectsDimensionMismatch(t *testing.T) {
	c := trivialTileSlot(2, 2)
	p := trivialTileSlot(2, 3)
	if _, _, _, err := tileRectangles(c, p, 400, 400); err == nil {
		t.Fatal("expected an error when c and p tile slots disagree on ndy")
	}
}

func TestDescrambleIdentityGridRoundTrips(t *testing.T) {
	const w, h = 12, 8
	src := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 11), B: 42, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	slot := trivialIdentityGridSlot()
	var table KeyTable
	for i := range table {
		table[i] = SlotKey{Kind: SlotGrid, Grid: slot}
	}

	out, err := Descramble(table, "0001.png", buf.Bytes(), FormatPNG)
	if err != nil {
		t.Fatalf("Descramble: %v", err)
	}

	got, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if got.Bounds().Dx() != w || got.Bounds().Dy() != h {
		t.Fatalf("output bounds = %v, want %dx%d", got.Bounds(), w, h)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			wantR, wantG, wantB, _ := src.At(x, y).RGBA()
			gotR, gotG, gotB, _ := got.At(x, y).RGBA()
			if wantR != gotR || wantG != gotG || wantB != gotB {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got.At(x, y), src.At(x, y))
			}
		}
	}
}
