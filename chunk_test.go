package sealbase

import (
	"bytes"
	"testing"
)

func TestGridCounts(t *testing.T) {
	g := &Grid{Shape: []int{5, 6}, ChunkShape: []int{2, 4}, ElemSize: 2}
	tassert(t, g.Validate() == nil, "validate")
	counts := g.Counts()
	tassert(t, len(counts) == 2 && counts[0] == 3 && counts[1] == 2,
		"expected [3 2] got %v", counts)
	tassert(t, g.NumChunks() == 6, "expected 6 chunks got %d", g.NumChunks())
	tassert(t, g.ByteSize() == 60, "expected 60 bytes got %d", g.ByteSize())

	// ordinal <-> coords round trip, row-major
	for ordinal := 0; ordinal < g.NumChunks(); ordinal++ {
		coords, err := g.Coords(ordinal)
		tassert(t, err == nil, "%v", err)
		back := g.Ordinal(coords)
		tassert(t, back == ordinal, "ordinal %d -> %v -> %d", ordinal, coords, back)
	}
	_, err := g.Coords(6)
	tassert(t, err != nil, "expected error, received none")
	_, err = g.Coords(-1)
	tassert(t, err != nil, "expected error, received none")
}

func TestGridBounds(t *testing.T) {
	g := &Grid{Shape: []int{5, 6}, ChunkShape: []int{2, 4}, ElemSize: 2}

	// interior cell: full extent
	starts, extent, err := g.Bounds(0)
	tassert(t, err == nil, "%v", err)
	tassert(t, starts[0] == 0 && starts[1] == 0, "starts %v", starts)
	tassert(t, extent[0] == 2 && extent[1] == 4, "extent %v", extent)

	// corner cell: clipped in both dimensions
	starts, extent, err = g.Bounds(5)
	tassert(t, err == nil, "%v", err)
	tassert(t, starts[0] == 4 && starts[1] == 4, "starts %v", starts)
	tassert(t, extent[0] == 1 && extent[1] == 2, "extent %v", extent)
	n, err := g.ChunkByteSize(5)
	tassert(t, err == nil, "%v", err)
	tassert(t, n == 4, "expected 4 bytes got %d", n)
}

func TestGridValidate(t *testing.T) {
	bad := []*Grid{
		{Shape: []int{}, ChunkShape: []int{}, ElemSize: 1},
		{Shape: []int{4}, ChunkShape: []int{2, 2}, ElemSize: 1},
		{Shape: []int{4, 0}, ChunkShape: []int{2, 2}, ElemSize: 1},
		{Shape: []int{4}, ChunkShape: []int{0}, ElemSize: 1},
		{Shape: []int{4}, ChunkShape: []int{2}, ElemSize: 0},
	}
	for i, g := range bad {
		tassert(t, g.Validate() != nil, "case %d: expected error, received none", i)
	}
}

func TestGather(t *testing.T) {
	// 3x3 array, 2x2 chunks:
	//   0 1 2
	//   3 4 5
	//   6 7 8
	g := &Grid{Shape: []int{3, 3}, ChunkShape: []int{2, 2}, ElemSize: 1}
	data := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8}
	expect := [][]byte{
		{0, 1, 3, 4},
		{2, 5},
		{6, 7},
		{8},
	}
	tassert(t, g.NumChunks() == len(expect), "expected %d chunks", len(expect))
	for ordinal, want := range expect {
		chunk, err := g.Gather(data, ordinal)
		tassert(t, err == nil, "chunk %d: %v", ordinal, err)
		tassert(t, bytes.Equal(chunk, want), "chunk %d: expected %v got %v", ordinal, want, chunk)
	}

	_, err := g.Gather(data[:5], 0)
	tassert(t, err != nil, "expected error, received none")
}

func TestGatherElemSize(t *testing.T) {
	// elements are 2 bytes wide and must never be split
	g := &Grid{Shape: []int{2, 2}, ChunkShape: []int{1, 2}, ElemSize: 2}
	data := []byte{0xa, 0xb, 0xc, 0xd, 0xe, 0xf, 0x1, 0x2}
	chunk, err := g.Gather(data, 0)
	tassert(t, err == nil, "%v", err)
	tassert(t, bytes.Equal(chunk, data[:4]), "expected %v got %v", data[:4], chunk)
	chunk, err = g.Gather(data, 1)
	tassert(t, err == nil, "%v", err)
	tassert(t, bytes.Equal(chunk, data[4:]), "expected %v got %v", data[4:], chunk)
}

// An edge chunk's hash covers the real extent only: appending padding
// to the underlying buffer can never leak into the digest, because the
// digest is computed over the gathered bytes.
func TestEdgeChunkNoPadding(t *testing.T) {
	g := &Grid{Shape: []int{7}, ChunkShape: []int{2}, ElemSize: 1}
	data := seqbuf(7)
	tassert(t, g.NumChunks() == 4, "expected 4 chunks got %d", g.NumChunks())

	chunk, err := g.Gather(data, 3)
	tassert(t, err == nil, "%v", err)
	tassert(t, bytes.Equal(chunk, data[6:]), "expected %v got %v", data[6:], chunk)

	got, err := HashChunk("sha256", chunk)
	tassert(t, err == nil, "%v", err)
	expect, err := Hash("sha256", data[6:7])
	tassert(t, err == nil, "%v", err)
	tassert(t, bytes.Equal(got, expect), "edge chunk digest covers padding")

	padded, err := Hash("sha256", append(append([]byte{}, data[6:]...), 0))
	tassert(t, err == nil, "%v", err)
	tassert(t, !bytes.Equal(got, padded), "digest should differ from padded form")
}
