package prodfile

import (
	"io"

	"github.com/restic/chunker"
)

const (
	kiB = 1024
	miB = 1024 * kiB

	defMinSize = 512 * kiB
	defMaxSize = 8 * miB
)

// DefaultPoly is the rabin polynomial used for blob-dataset boundaries
// when a file's config doesn't pin one.  It is a fixed constant, never
// random: boundaries must be reproducible so that re-running the seal
// pass over the same bytes yields the same segments.
const DefaultPoly = chunker.Pol(0x3DA3358B4DC173)

// rabin lightly wraps restic's chunker on the slight chance that we
// might need to replace it someday.
type rabin struct {
	Poly    chunker.Pol
	MinSize uint
	MaxSize uint
	c       *chunker.Chunker
}

func (r rabin) Init() (res *rabin, err error) {
	if r.MinSize == 0 {
		r.MinSize = defMinSize
	}
	if r.MaxSize == 0 {
		r.MaxSize = defMaxSize
	}
	if r.Poly == 0 {
		r.Poly = DefaultPoly
	}
	return &r, nil
}

func (r *rabin) Start(rd io.Reader) {
	r.c = chunker.NewWithBoundaries(rd, r.Poly, r.MinSize, r.MaxSize)
}

// Next fills buf with the next segment; the segment bytes come back in
// Chunk.Data.  Yields io.EOF after the last segment.
func (r *rabin) Next(buf []byte) (chunk chunker.Chunk, err error) {
	return r.c.Next(buf)
}
