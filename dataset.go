package sealbase

import (
	"fmt"
	"runtime"
	"sync"

	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
)

// Hasher computes chunk, dataset, and group digests under one
// algorithm.  Zero value is not usable; call Hasher{}.New() to fill
// defaults.
type Hasher struct {
	Algo    string // digest algorithm; default DefaultAlgo
	Workers int    // parallel chunk hashers; default NumCPU
}

func (h Hasher) New() *Hasher {
	if h.Algo == "" {
		h.Algo = DefaultAlgo
	}
	if h.Workers < 1 {
		h.Workers = runtime.NumCPU()
	}
	return &h
}

// MissingChunkTableError reports a fast or targeted verification that
// needed a stored chunk table which isn't there.  Not a corruption:
// the store simply cannot be fast-verified.
type MissingChunkTableError struct {
	Path string
}

func (e *MissingChunkTableError) Error() string {
	return fmt.Sprintf("no stored chunk table for %s", e.Path)
}

// ChunkTable hashes every chunk of a chunked dataset and returns the
// digests in ordinal order.  Chunks are independent, so they fan out
// to h.Workers goroutines; memory stays proportional to Workers
// chunks, never the whole dataset.
func (h *Hasher) ChunkTable(st Store, id NodeID) (table [][]byte, err error) {
	defer Return(&err)

	grid, err := st.Grid(id)
	Ck(err)
	Assert(grid != nil, "ChunkTable on unchunked dataset %d", id)

	n := grid.NumChunks()
	table = make([][]byte, n)
	sem := make(chan struct{}, h.Workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(ordinal int) {
			defer wg.Done()
			defer func() { <-sem }()
			raw, cerr := st.ReadChunk(id, ordinal)
			var digest []byte
			if cerr == nil {
				digest, cerr = HashChunk(h.Algo, raw)
			}
			if cerr != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = cerr
				}
				mu.Unlock()
				return
			}
			table[ordinal] = digest
		}(i)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	log.Debugf("chunk table for node %d: %d chunks", id, n)
	return
}

// DatasetFromTable folds an ordered chunk-hash table into the dataset
// digest.  This is the whole point of the table: the dataset hash can
// be recomputed from it alone, without touching raw data.
func (h *Hasher) DatasetFromTable(table [][]byte) (digest []byte, err error) {
	defer Return(&err)
	eng, err := newHash(h.Algo)
	Ck(err)
	for _, d := range table {
		eng.Write(d)
	}
	digest = eng.Sum(nil)
	return
}

// Dataset computes a dataset's digest from raw data: chunked datasets
// go through a freshly computed chunk table, unchunked datasets hash
// their whole byte image.
func (h *Hasher) Dataset(st Store, id NodeID) (digest []byte, err error) {
	defer Return(&err)
	grid, err := st.Grid(id)
	Ck(err)
	if grid == nil {
		raw, err := st.ReadChunk(id, 0)
		Ck(err)
		return Hash(h.Algo, raw)
	}
	table, err := h.ChunkTable(st, id)
	Ck(err)
	return h.DatasetFromTable(table)
}

// StoredChunkTable loads the companion "<name>_chunk_hashes" dataset
// for a dataset child of parent and splits it into per-chunk digests.
func StoredChunkTable(st Store, parent NodeID, name string) (table [][]byte, algo string, err error) {
	defer Return(&err)

	companion, ok, err := findChild(st, parent, name+ChunkTableSuffix)
	Ck(err)
	if !ok {
		err = &MissingChunkTableError{Path: name}
		return
	}
	algoVal, err := st.Attr(companion.ID, "algo")
	Ck(err)
	algo = algoVal.Str
	size, err := DigestSize(algo)
	Ck(err)
	raw, err := st.ReadChunk(companion.ID, 0)
	Ck(err)
	if len(raw)%size != 0 {
		err = fmt.Errorf("chunk table %s: %d bytes is not a multiple of digest size %d",
			name+ChunkTableSuffix, len(raw), size)
		return
	}
	for off := 0; off < len(raw); off += size {
		table = append(table, raw[off:off+size])
	}
	return
}

// writeChunkTable persists a dataset's chunk table as its companion
// dataset, replacing any previous one, with attributes documenting the
// grid and algorithm.
func writeChunkTable(st Store, parent NodeID, name string, grid *Grid, table [][]byte, algo string) (err error) {
	defer Return(&err)

	var raw []byte
	for _, d := range table {
		raw = append(raw, d...)
	}
	id, err := st.CreateDataset(parent, name+ChunkTableSuffix, nil, raw)
	Ck(err)
	err = st.SetAttr(id, "algo", Str(algo))
	Ck(err)
	err = st.SetAttr(id, "grid_shape", Int64s(ints2int64s(grid.Shape)...))
	Ck(err)
	err = st.SetAttr(id, "chunk_shape", Int64s(ints2int64s(grid.ChunkShape)...))
	Ck(err)
	err = st.SetAttr(id, "elem_size", Int64(int64(grid.ElemSize)))
	Ck(err)
	return
}

func ints2int64s(ns []int) (out []int64) {
	out = make([]int64, len(ns))
	for i, n := range ns {
		out[i] = int64(n)
	}
	return
}
