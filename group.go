package sealbase

import (
	"sort"

	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
)

// reservedAttr reports whether an attribute key is a derived or
// self-referential artifact of the seal pass.  Reserved keys never
// participate in digests -- content_hash cannot contain itself, and
// id/id_inputs are derived from fields that already participate.
func reservedAttr(key string) bool {
	switch key {
	case AttrContentHash, AttrID, AttrIDInputs:
		return true
	}
	return IsChunkTable(key)
}

// attrsDigest folds a node's attributes over sorted keys, so the
// result is independent of insertion order.  Each entry is the hash of
// the canonical key encoding followed by the canonical value encoding.
func (h *Hasher) attrsDigest(st Store, id NodeID) (digest []byte, err error) {
	defer Return(&err)

	keys, err := st.AttrKeys(id)
	Ck(err)
	sorted := make([]string, 0, len(keys))
	for _, k := range keys {
		if reservedAttr(k) {
			continue
		}
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	eng, err := newHash(h.Algo)
	Ck(err)
	for _, key := range sorted {
		val, err := st.Attr(id, key)
		Ck(err)
		enc, err := val.Encode()
		if err != nil {
			// UnsupportedKindError: a producer bug, surfaced as-is
			return nil, err
		}
		entry, err := Hash(h.Algo, append(encodeKey(key), enc...))
		Ck(err)
		eng.Write(entry)
	}
	digest = eng.Sum(nil)
	return
}

// childrenDigest folds a group's children over sorted names.  Each
// entry is a kind tag byte followed by the child's digest, so a
// dataset named "x" can never collide with a group named "x".
// Chunk-table companions are bookkeeping, not content, and are
// skipped.
func (h *Hasher) childrenDigest(st Store, id NodeID) (digest []byte, err error) {
	defer Return(&err)

	children, err := st.Children(id)
	Ck(err)
	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })

	eng, err := newHash(h.Algo)
	Ck(err)
	for _, child := range children {
		if IsChunkTable(child.Name) {
			continue
		}
		var d []byte
		if child.Kind == Dataset {
			eng.Write([]byte{tagDataset})
			d, err = h.Dataset(st, child.ID)
		} else {
			eng.Write([]byte{tagGroup})
			d, err = h.Group(st, child.ID)
		}
		if err != nil {
			return nil, err
		}
		eng.Write(d)
	}
	digest = eng.Sum(nil)
	return
}

// Group computes the Merkle digest of a group: the hash of its
// attribute digest concatenated with its children digest.  Recursion
// depth is bounded by the tree.  The result depends on logical
// content, structure, and element order only -- never on physical
// layout, compression, or attribute insertion order.
func (h *Hasher) Group(st Store, id NodeID) (digest []byte, err error) {
	defer Return(&err)

	attrs, err := h.attrsDigest(st, id)
	if err != nil {
		return
	}
	children, err := h.childrenDigest(st, id)
	if err != nil {
		return
	}
	digest, err = Hash(h.Algo, append(attrs, children...))
	Ck(err)
	log.Debugf("group %d digest %s", id, bin2hex(digest))
	return
}

// Content computes the file's content hash: the root group digest
// wrapped with the algorithm prefix for self-description.
func (h *Hasher) Content(st Store) (seal string, err error) {
	digest, err := h.Group(st, st.Root())
	if err != nil {
		return
	}
	seal = FormatSeal(h.Algo, digest)
	return
}
