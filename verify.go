package sealbase

import (
	"bytes"
	"fmt"
	"path"
	"sort"

	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
)

// Level selects how much of the file a verification re-reads.
type Level int

const (
	// Full recomputes every chunk hash from raw data and rebuilds the
	// whole Merkle tree.  Detects any corruption, including bit-rot
	// not yet reflected in any stored table.  Cost: total file size.
	Full Level = iota
	// Fast rebuilds dataset and group hashes from the stored chunk
	// tables without re-reading chunk data.  Detects table/root
	// inconsistency but trusts the tables themselves; a strictly
	// weaker guarantee than Full, by design.  Cost: metadata size.
	Fast
)

func (l Level) String() string {
	if l == Full {
		return "full"
	}
	return "fast"
}

// MismatchError reports a digest divergence, with the exact path
// (group/child, plus chunk ordinal where applicable) so the corruption
// can be diagnosed locally.  Findings are surfaced, never auto-fixed.
type MismatchError struct {
	Path string
	Want string // stored
	Got  string // recomputed
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("hash mismatch at %s: stored %s, computed %s", e.Path, e.Want, e.Got)
}

// NotSealedError reports verification of a store that carries no
// content hash yet: state Building, detectable, not a corruption.
type NotSealedError struct{}

func (e *NotSealedError) Error() string {
	return "store has no content hash; still building"
}

// Verify re-derives the content hash at the chosen level and compares
// it to the stored seal.  It short-circuits on the first mismatch and
// returns a MismatchError naming the divergent path.
func Verify(st Store, level Level) (err error) {
	defer Return(&err)

	sealVal, err := rootAttr(st, AttrContentHash)
	if err != nil {
		if _, ok := err.(*NotFoundError); ok {
			err = &NotSealedError{}
		}
		return
	}
	algo, _, err := ParseSeal(sealVal.Str)
	Ck(err)
	h := Hasher{Algo: algo}.New()

	var digest []byte
	if level == Full {
		digest, err = fullGroup(st, h, st.Root(), "/")
	} else {
		digest, err = fastGroup(st, h, st.Root(), "/")
	}
	if err != nil {
		return
	}

	got := FormatSeal(algo, digest)
	if got != sealVal.Str {
		err = &MismatchError{Path: "/", Want: sealVal.Str, Got: got}
		return
	}
	log.Debugf("verified (%s): %s", level, got)
	return
}

// fullGroup recomputes a group digest from raw data.  Where a dataset
// has a stored chunk table, each recomputed chunk hash is compared to
// its stored entry so a single rotten chunk is reported by ordinal
// rather than as an opaque root mismatch.
func fullGroup(st Store, h *Hasher, id NodeID, where string) (digest []byte, err error) {
	defer Return(&err)

	attrs, err := h.attrsDigest(st, id)
	Ck(err)

	children, err := st.Children(id)
	Ck(err)
	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })

	eng, err := newHash(h.Algo)
	Ck(err)
	for _, child := range children {
		if IsChunkTable(child.Name) {
			continue
		}
		childWhere := path.Join(where, child.Name)
		var d []byte
		if child.Kind == Group {
			eng.Write([]byte{tagGroup})
			d, err = fullGroup(st, h, child.ID, childWhere)
		} else {
			eng.Write([]byte{tagDataset})
			d, err = fullDataset(st, h, id, child, childWhere)
		}
		if err != nil {
			return nil, err
		}
		eng.Write(d)
	}
	digest, err = Hash(h.Algo, append(attrs, eng.Sum(nil)...))
	Ck(err)
	return
}

func fullDataset(st Store, h *Hasher, parent NodeID, child Child, where string) (digest []byte, err error) {
	defer Return(&err)

	grid, err := st.Grid(child.ID)
	Ck(err)
	if grid == nil {
		raw, err := st.ReadChunk(child.ID, 0)
		Ck(err)
		return Hash(h.Algo, raw)
	}

	table, err := h.ChunkTable(st, child.ID)
	Ck(err)

	stored, _, terr := StoredChunkTable(st, parent, child.Name)
	if terr == nil {
		if len(stored) != len(table) {
			return nil, &MismatchError{
				Path: where,
				Want: fmt.Sprintf("%d chunk hashes", len(stored)),
				Got:  fmt.Sprintf("%d chunk hashes", len(table)),
			}
		}
		for i := range table {
			if !bytes.Equal(table[i], stored[i]) {
				return nil, &MismatchError{
					Path: fmt.Sprintf("%s[%d]", where, i),
					Want: bin2hex(stored[i]),
					Got:  bin2hex(table[i]),
				}
			}
		}
	} else if _, ok := terr.(*MissingChunkTableError); !ok {
		return nil, terr
	}

	return h.DatasetFromTable(table)
}

// fastGroup rebuilds a group digest from stored chunk tables alone.
// Chunked dataset data is never read; unchunked datasets (including
// the small derived ones) are hashed directly.
func fastGroup(st Store, h *Hasher, id NodeID, where string) (digest []byte, err error) {
	defer Return(&err)

	attrs, err := h.attrsDigest(st, id)
	Ck(err)

	children, err := st.Children(id)
	Ck(err)
	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })

	eng, err := newHash(h.Algo)
	Ck(err)
	for _, child := range children {
		if IsChunkTable(child.Name) {
			continue
		}
		childWhere := path.Join(where, child.Name)
		var d []byte
		if child.Kind == Group {
			eng.Write([]byte{tagGroup})
			d, err = fastGroup(st, h, child.ID, childWhere)
			if err != nil {
				return nil, err
			}
		} else {
			eng.Write([]byte{tagDataset})
			var grid *Grid
			grid, err = st.Grid(child.ID)
			Ck(err)
			if grid == nil {
				var raw []byte
				raw, err = st.ReadChunk(child.ID, 0)
				Ck(err)
				d, err = Hash(h.Algo, raw)
				Ck(err)
			} else {
				var table [][]byte
				table, _, err = StoredChunkTable(st, id, child.Name)
				if err != nil {
					if _, ok := err.(*MissingChunkTableError); ok {
						err = &MissingChunkTableError{Path: childWhere}
					}
					return nil, err
				}
				d, err = h.DatasetFromTable(table)
				Ck(err)
			}
		}
		eng.Write(d)
	}
	digest, err = Hash(h.Algo, append(attrs, eng.Sum(nil)...))
	Ck(err)
	return
}

// VerifyDataset recomputes every chunk hash of one dataset from raw
// data and compares each against its stored table entry.  Diagnoses a
// suspected dataset without paying for whole-file verification.
func VerifyDataset(st Store, dspath string) (err error) {
	defer Return(&err)

	parent, child, err := locate(st, dspath)
	if err != nil {
		return
	}
	grid, err := st.Grid(child.ID)
	Ck(err)
	if grid == nil {
		err = &MissingChunkTableError{Path: dspath}
		return
	}
	stored, algo, err := StoredChunkTable(st, parent, child.Name)
	if err != nil {
		if _, ok := err.(*MissingChunkTableError); ok {
			err = &MissingChunkTableError{Path: dspath}
		}
		return
	}
	h := Hasher{Algo: algo}.New()
	table, err := h.ChunkTable(st, child.ID)
	Ck(err)
	if len(table) != len(stored) {
		return &MismatchError{
			Path: dspath,
			Want: fmt.Sprintf("%d chunk hashes", len(stored)),
			Got:  fmt.Sprintf("%d chunk hashes", len(table)),
		}
	}
	for i := range table {
		if !bytes.Equal(table[i], stored[i]) {
			return &MismatchError{
				Path: fmt.Sprintf("%s[%d]", dspath, i),
				Want: bin2hex(stored[i]),
				Got:  bin2hex(table[i]),
			}
		}
	}
	return
}

// VerifyChunk recomputes a single chunk's hash and compares it against
// the stored table entry.
func VerifyChunk(st Store, dspath string, ordinal int) (err error) {
	defer Return(&err)

	parent, child, err := locate(st, dspath)
	if err != nil {
		return
	}
	stored, algo, err := StoredChunkTable(st, parent, child.Name)
	if err != nil {
		if _, ok := err.(*MissingChunkTableError); ok {
			err = &MissingChunkTableError{Path: dspath}
		}
		return
	}
	if ordinal < 0 || ordinal >= len(stored) {
		err = fmt.Errorf("chunk ordinal %d out of range (%d chunks)", ordinal, len(stored))
		return
	}
	raw, err := st.ReadChunk(child.ID, ordinal)
	Ck(err)
	digest, err := HashChunk(algo, raw)
	Ck(err)
	if !bytes.Equal(digest, stored[ordinal]) {
		err = &MismatchError{
			Path: fmt.Sprintf("%s[%d]", dspath, ordinal),
			Want: bin2hex(stored[ordinal]),
			Got:  bin2hex(digest),
		}
	}
	return
}

// locate resolves a dataset path to its parent group and child entry.
func locate(st Store, dspath string) (parent NodeID, child Child, err error) {
	dir, base := path.Split(path.Clean("/" + dspath))
	parent, kind, err := Lookup(st, dir)
	if err != nil {
		return
	}
	if kind != Group {
		err = fmt.Errorf("%s is not a group", dir)
		return
	}
	child, ok, err := findChild(st, parent, base)
	if err != nil {
		return
	}
	if !ok {
		err = &NotFoundError{Path: dspath}
		return
	}
	if child.Kind != Dataset {
		err = fmt.Errorf("%s is not a dataset", dspath)
	}
	return
}
