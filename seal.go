package sealbase

import (
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
)

// Seal runs the write-time hashing pass over a store whose domain data
// is already durable: chunk tables for every chunked dataset, then the
// identity attributes, then the root content hash.  After Seal the
// store is in state Sealed and its derived artifacts are treated as
// immutable.
//
// Seal is idempotent -- it depends only on already-written data, so
// re-running it after a crash between data flush and seal is safe and
// produces identical artifacts.
func Seal(st Store, schemes SchemeTable, h *Hasher) (seal string, err error) {
	defer Return(&err)

	if h == nil {
		h = Hasher{}.New()
	}

	err = sealTables(st, h, st.Root())
	if err != nil {
		return
	}

	id, inputs, err := IdentityFromStore(st, schemes, h.Algo)
	if err != nil {
		return
	}
	err = st.SetAttr(st.Root(), AttrID, Str(id))
	Ck(err)
	err = st.SetAttr(st.Root(), AttrIDInputs, Strs(inputs...))
	Ck(err)

	seal, err = h.Content(st)
	if err != nil {
		return
	}
	err = st.SetAttr(st.Root(), AttrContentHash, Str(seal))
	Ck(err)
	log.Debugf("sealed: id %s content %s", id, seal)
	return
}

// sealTables recursively computes and persists the chunk-hash table of
// every chunked dataset under id.
func sealTables(st Store, h *Hasher, id NodeID) (err error) {
	defer Return(&err)

	children, err := st.Children(id)
	Ck(err)
	for _, child := range children {
		if IsChunkTable(child.Name) {
			continue
		}
		if child.Kind == Group {
			err = sealTables(st, h, child.ID)
			Ck(err)
			continue
		}
		grid, err := st.Grid(child.ID)
		Ck(err)
		if grid == nil {
			continue
		}
		table, err := h.ChunkTable(st, child.ID)
		Ck(err)
		err = writeChunkTable(st, id, child.Name, grid, table, h.Algo)
		Ck(err)
	}
	return
}
