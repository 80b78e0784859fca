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
	"image/draw"
	"image/jpeg"
	"image/png"
)

// tnpValue decodes one character of a Grid slot's s/d string into its
// base64-alphabet position: A-Z -> 0..25, a-z -> 26..51, 0-9 -> 52..61,
// '+' -> 62, '/' -> 63, anything else -> -1.
func tnpValue(ch byte) int {
	switch {
	case ch >= 'A' && ch <= 'Z':
		return int(ch - 'A')
	case ch >= 'a' && ch <= 'z':
		return int(ch-'a') + 26
	case ch >= '0' && ch <= '9':
		return int(ch-'0') + 52
	case ch == '+':
		return 62
	case ch == '/':
		return 63
	default:
		return -1
	}
}

// rect is one pixel-block copy: width x height pixels move from (srcX,
// srcY) in the scrambled source image to (dstX, dstY) in the reassembled
// output.
type rect struct {
	dstX, dstY int
	srcX, srcY int
	width      int
	height     int
}

// OutputFormat selects the encoding of a descrambled page.
type OutputFormat int

const (
	// FormatJPEG encodes the descrambled page as a quality-95 JPEG.
	FormatJPEG OutputFormat = iota
	// FormatPNG encodes the descrambled page losslessly.
	FormatPNG
)

// Descramble reassembles the scrambled image in raw (an encoded JPEG or
// PNG) using the slot selected for pagePath out of table, and re-encodes
// the result in format.
func Descramble(table KeyTable, pagePath string, raw []byte, format OutputFormat) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	cIdx, pIdx := SelectSlot(pagePath)
	cSlot, pSlot := table[cIdx], table[pIdx]
	if cSlot.Kind != pSlot.Kind {
		return nil, &KeyParseError{Slot: cIdx, Reason: "c-index and p-index slots resolve to different variants"}
	}

	var rects []rect
	var outW, outH int
	switch cSlot.Kind {
	case SlotGrid:
		rects, outW, outH, err = gridRectangles(cSlot.Grid, pSlot.Grid, src.Bounds().Dx(), src.Bounds().Dy())
	case SlotTile:
		rects, outW, outH, err = tileRectangles(cSlot.Tile, pSlot.Tile, src.Bounds().Dx(), src.Bounds().Dy())
	default:
		err = &KeyParseError{Slot: cIdx, Reason: "unresolved slot kind"}
	}
	if err != nil {
		return nil, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, outW, outH))
	b := src.Bounds()
	for _, r := range rects {
		srcRect := image.Rect(b.Min.X+r.srcX, b.Min.Y+r.srcY, b.Min.X+r.srcX+r.width, b.Min.Y+r.srcY+r.height)
		dp := image.Point{X: r.dstX, Y: r.dstY}
		draw.Draw(dst, image.Rect(dp.X, dp.Y, dp.X+r.width, dp.Y+r.height), src, srcRect.Min, draw.Src)
	}

	var buf bytes.Buffer
	switch format {
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, dst); err != nil {
			return nil, err
		}
	default:
		if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 95}); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// gridRectangles computes the Grid variant's rectangle-transfer list for a
// source image of the given dimensions. cSlot is the entry selected by
// SlotSelector's c-index (its SStr supplies the source permutation), pSlot
// the entry selected by the p-index (its DStr supplies the destination
// permutation); both must agree on h, v and padding.
//
// The guard below decides whether the original page included padding
// between tiles: at exact equality on all three bounds the image is
// treated as unpadded, so the comparisons are strict.
func gridRectangles(cSlot, pSlot GridSlot, imgW, imgH int) ([]rect, int, int, error) {
	if cSlot.H != pSlot.H || cSlot.V != pSlot.V || cSlot.Padding != pSlot.Padding {
		return nil, 0, 0, &KeyParseError{Reason: "c-index and p-index grid slots disagree on h, v or padding"}
	}
	h, v, padding := cSlot.H, cSlot.V, cSlot.Padding

	x := h * 2 * padding
	y := v * 2 * padding
	padded := imgW > 64+x && imgH > 64+y && imgH*imgW > (320+x)*(320+y)

	width, height := imgW, imgH
	if padded {
		width = imgW - x
		height = imgH - y
	}

	srcT, srcN, srcP, err := gridTNP(cSlot.SStr, h, v)
	if err != nil {
		return nil, 0, 0, err
	}
	dstT, dstN, dstP, err := gridTNP(pSlot.DStr, h, v)
	if err != nil {
		return nil, 0, 0, err
	}

	perm := make([]int, h*v)
	for i := range perm {
		perm[i] = srcP[dstP[i]]
	}

	sliceWidth := (width + h - 1) / h
	sliceHeight := (height + v - 1) / v
	lastSliceWidth := width - (h-1)*sliceWidth
	lastSliceHeight := height - (v-1)*sliceHeight

	rects := make([]rect, 0, h*v)
	for i := 0; i < h*v; i++ {
		dstColumn := i % h
		dstRow := i / h

		dstX := padding + dstColumn*(sliceWidth+2*padding)
		if dstN[dstRow] < dstColumn {
			dstX += lastSliceWidth - sliceWidth
		}
		dstY := padding + dstRow*(sliceHeight+2*padding)
		if dstT[dstColumn] < dstRow {
			dstY += lastSliceHeight - sliceHeight
		}

		srcColumn := perm[i] % h
		srcRow := perm[i] / h
		srcX := srcColumn * sliceWidth
		if srcN[srcRow] < srcColumn {
			srcX += lastSliceWidth - sliceWidth
		}
		srcY := srcRow * sliceHeight
		if srcT[srcColumn] < srcRow {
			srcY += lastSliceHeight - sliceHeight
		}

		pWidth := sliceWidth
		if dstN[dstRow] == dstColumn {
			pWidth = lastSliceWidth
		}
		pHeight := sliceHeight
		if dstT[dstColumn] == dstRow {
			pHeight = lastSliceHeight
		}

		// dst and src are swapped here relative to their names above:
		// this mirrors the reference client's own swap at this exact
		// point and is preserved rather than "fixed".
		rects = append(rects, rect{
			dstX: srcX, dstY: srcY,
			srcX: dstX, srcY: dstY,
			width: pWidth, height: pHeight,
		})
	}
	return rects, width, height, nil
}

// gridTNP decodes a Grid slot string into its t, n and p arrays: the first
// h characters give t (per-column row thresholds), the next v give n
// (per-row column thresholds), and the final h*v give p (the permutation).
func gridTNP(data string, h, v int) (t, n, p []int, err error) {
	t = make([]int, h)
	n = make([]int, v)
	p = make([]int, h*v)

	off := 0
	for i := 0; i < h; i++ {
		t[i] = tnpValue(data[off+i])
	}
	off += h
	for i := 0; i < v; i++ {
		n[i] = tnpValue(data[off+i])
	}
	off += v
	for i := 0; i < h*v; i++ {
		p[i] = tnpValue(data[off+i])
	}
	return t, n, p, nil
}

// tileRectangles computes the Tile variant's rectangle-transfer list for a
// source image of the given dimensions. cSlot is the entry selected by the
// c-index (its CPieces supply source rectangles), pSlot the entry selected
// by the p-index (its PPieces supply destination rectangles); both must
// agree on ndx and ndy.
func tileRectangles(cSlot, pSlot TileSlot, imgW, imgH int) ([]rect, int, int, error) {
	if imgW < 64 || imgH < 64 || imgW*imgH <= 320*320 {
		return nil, 0, 0, &ImageTooSmallError{Width: imgW, Height: imgH}
	}
	if cSlot.Ndx != pSlot.Ndx || cSlot.Ndy != pSlot.Ndy {
		return nil, 0, 0, &KeyParseError{Reason: "c-index and p-index tile slots disagree on ndx or ndy"}
	}
	ndx, ndy := cSlot.Ndx, cSlot.Ndy
	cPieces, pPieces := cSlot.CPieces, pSlot.PPieces
	if len(cPieces) != len(pPieces) || len(cPieces) != ndx*ndy {
		return nil, 0, 0, &KeyParseError{Reason: "tile piece counts do not match ndx*ndy"}
	}

	e := imgW - imgW%8
	f := (e-1)/7 - ((e-1)/7)%8
	g := e - f*7

	hh := imgH - imgH%8
	j := (hh-1)/7 - ((hh-1)/7)%8
	k := hh - j*7

	rects := make([]rect, 0, len(cPieces)+2)
	for i := range cPieces {
		cp, pp := cPieces[i], pPieces[i]

		srcX := (cp.X/2)*f + (cp.X%2)*g
		srcY := (cp.Y/2)*j + (cp.Y%2)*k
		dstX := (pp.X/2)*f + (pp.X%2)*g
		dstY := (pp.Y/2)*j + (pp.Y%2)*k
		width := (cp.Width/2)*f + (cp.Width%2)*g
		height := (cp.Height/2)*j + (cp.Height%2)*k

		rects = append(rects, rect{dstX: dstX, dstY: dstY, srcX: srcX, srcY: srcY, width: width, height: height})
	}

	eRight := f*(ndx-1) + g
	hBottom := j*(ndy-1) + k
	if eRight < imgW {
		rects = append(rects, rect{dstX: eRight, dstY: 0, srcX: eRight, srcY: 0, width: imgW - eRight, height: hBottom})
	}
	if hBottom < imgH {
		rects = append(rects, rect{dstX: 0, dstY: hBottom, srcX: 0, srcY: hBottom, width: imgW, height: imgH - hBottom})
	}

	return rects, imgW, imgH, nil
}
