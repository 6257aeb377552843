package sealbase

import (
	"fmt"
)

// Grid describes the logical chunk layout of a dataset: the array
// shape, the chunk shape, and the element size, all of which are
// dataset metadata independent of on-disk storage.  Chunks are
// addressed by their position in the chunk grid, row-major, flattened
// to a single ordinal.
type Grid struct {
	Shape      []int // array shape, elements per dimension
	ChunkShape []int // chunk shape, elements per dimension
	ElemSize   int   // bytes per element
}

func (g *Grid) Validate() (err error) {
	if len(g.Shape) == 0 || len(g.Shape) != len(g.ChunkShape) {
		return fmt.Errorf("grid shape %v / chunk shape %v mismatch", g.Shape, g.ChunkShape)
	}
	for d := range g.Shape {
		if g.Shape[d] < 1 || g.ChunkShape[d] < 1 {
			return fmt.Errorf("grid has empty dimension: shape %v chunks %v", g.Shape, g.ChunkShape)
		}
	}
	if g.ElemSize < 1 {
		return fmt.Errorf("grid element size %d", g.ElemSize)
	}
	return
}

// Counts returns the number of grid cells per dimension.
func (g *Grid) Counts() (counts []int) {
	counts = make([]int, len(g.Shape))
	for d := range g.Shape {
		counts[d] = (g.Shape[d] + g.ChunkShape[d] - 1) / g.ChunkShape[d]
	}
	return
}

// NumChunks returns the total number of grid cells.
func (g *Grid) NumChunks() (n int) {
	n = 1
	for _, c := range g.Counts() {
		n *= c
	}
	return
}

// Coords converts a row-major chunk ordinal to grid coordinates.
func (g *Grid) Coords(ordinal int) (coords []int, err error) {
	if ordinal < 0 || ordinal >= g.NumChunks() {
		err = fmt.Errorf("chunk ordinal %d out of range (%d chunks)", ordinal, g.NumChunks())
		return
	}
	counts := g.Counts()
	coords = make([]int, len(counts))
	for d := len(counts) - 1; d >= 0; d-- {
		coords[d] = ordinal % counts[d]
		ordinal /= counts[d]
	}
	return
}

// Ordinal converts grid coordinates to a row-major chunk ordinal.
func (g *Grid) Ordinal(coords []int) (ordinal int) {
	counts := g.Counts()
	for d := 0; d < len(counts); d++ {
		ordinal = ordinal*counts[d] + coords[d]
	}
	return
}

// Bounds returns the element start position and the real extent of a
// grid cell.  Edge cells are clipped to the array shape: the extent
// covers actual data only, never padding.
func (g *Grid) Bounds(ordinal int) (starts, extent []int, err error) {
	coords, err := g.Coords(ordinal)
	if err != nil {
		return
	}
	starts = make([]int, len(coords))
	extent = make([]int, len(coords))
	for d := range coords {
		starts[d] = coords[d] * g.ChunkShape[d]
		extent[d] = g.ChunkShape[d]
		if starts[d]+extent[d] > g.Shape[d] {
			extent[d] = g.Shape[d] - starts[d]
		}
	}
	return
}

// ChunkByteSize returns the byte length of the real data in a cell.
func (g *Grid) ChunkByteSize(ordinal int) (n int, err error) {
	_, extent, err := g.Bounds(ordinal)
	if err != nil {
		return
	}
	n = g.ElemSize
	for _, e := range extent {
		n *= e
	}
	return
}

// ByteSize returns the byte length of the whole array.
func (g *Grid) ByteSize() (n int) {
	n = g.ElemSize
	for _, s := range g.Shape {
		n *= s
	}
	return
}

// Gather copies one cell's elements out of the dataset's full
// row-major byte image, producing the chunk's canonical byte content:
// row-major, real extent only.
func (g *Grid) Gather(data []byte, ordinal int) (chunk []byte, err error) {
	if len(data) != g.ByteSize() {
		err = fmt.Errorf("dataset is %d bytes, grid wants %d", len(data), g.ByteSize())
		return
	}
	starts, extent, err := g.Bounds(ordinal)
	if err != nil {
		return
	}
	size, err := g.ChunkByteSize(ordinal)
	if err != nil {
		return
	}
	chunk = make([]byte, 0, size)

	// element strides of the full array
	ndim := len(g.Shape)
	stride := make([]int, ndim)
	stride[ndim-1] = 1
	for d := ndim - 2; d >= 0; d-- {
		stride[d] = stride[d+1] * g.Shape[d+1]
	}
	runBytes := extent[ndim-1] * g.ElemSize

	// iterate over all rows of the cell (all dims but the last)
	idx := make([]int, ndim-1)
	for {
		base := starts[ndim-1]
		for d := 0; d < ndim-1; d++ {
			base += (starts[d] + idx[d]) * stride[d]
		}
		off := base * g.ElemSize
		chunk = append(chunk, data[off:off+runBytes]...)

		// advance the row index, odometer style
		d := ndim - 2
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < extent[d] {
				break
			}
			idx[d] = 0
		}
		if d < 0 {
			break
		}
	}
	return
}

// HashChunk hashes the raw content of one chunk: decompressed,
// row-major, actual extent only.  Identical logical content always
// yields an identical digest regardless of the codec used on disk.
func HashChunk(algo string, raw []byte) (digest []byte, err error) {
	return Hash(algo, raw)
}
