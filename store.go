package sealbase

import (
	"fmt"
	"strings"
)

// NodeID is a stable handle into a store's node arena.  Handles, not
// pointers, keep the tree free of ownership cycles between groups and
// their children.
type NodeID int

// Kind distinguishes groups from datasets.
type Kind int

const (
	Group Kind = iota
	Dataset
)

func (k Kind) String() string {
	if k == Group {
		return "group"
	}
	return "dataset"
}

// Child is one entry in a group's child listing.
type Child struct {
	Name string
	ID   NodeID
	Kind Kind
}

// Reserved attribute and dataset names written by the seal pass.  They
// are derived artifacts and never participate in the Merkle digest.
const (
	AttrContentHash = "content_hash"
	AttrID          = "id"
	AttrIDInputs    = "id_inputs"
	AttrProductType = "product_type"

	// companion dataset suffix: "<dataset>_chunk_hashes"
	ChunkTableSuffix = "_chunk_hashes"
)

// IsChunkTable reports whether a child name follows the chunk-table
// naming convention.
func IsChunkTable(name string) bool {
	return strings.HasSuffix(name, ChunkTableSuffix)
}

// Store is the narrow interface sealbase consumes from a hierarchical
// store.  The store owns the node tree; sealbase reads it, and the
// seal pass additionally writes the three derived artifacts (chunk
// tables, content_hash, identity attributes) through SetAttr and
// CreateDataset.
//
// ReadChunk returns the chunk's raw element data, decompressed, in
// row-major order, covering the actual extent only -- edge chunks are
// never padded.  For an unchunked dataset (Grid returns nil) ordinal 0
// returns the whole dataset's bytes.
type Store interface {
	Root() NodeID
	Children(id NodeID) ([]Child, error)
	AttrKeys(id NodeID) ([]string, error)
	Attr(id NodeID, key string) (*AttrValue, error)

	Grid(id NodeID) (*Grid, error)
	ReadChunk(id NodeID, ordinal int) ([]byte, error)

	SetAttr(id NodeID, key string, val *AttrValue) error
	CreateDataset(parent NodeID, name string, grid *Grid, data []byte) (NodeID, error)
}

// NotFoundError reports a path or attribute that doesn't exist in the
// store.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Path)
}

// Lookup resolves a slash-separated path ("/" or "" is the root) to a
// node handle.
func Lookup(st Store, path string) (id NodeID, kind Kind, err error) {
	id = st.Root()
	kind = Group
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return
	}
	for _, name := range strings.Split(trimmed, "/") {
		var children []Child
		children, err = st.Children(id)
		if err != nil {
			return
		}
		found := false
		for _, c := range children {
			if c.Name == name {
				id = c.ID
				kind = c.Kind
				found = true
				break
			}
		}
		if !found {
			err = &NotFoundError{Path: path}
			return
		}
	}
	return
}

// findChild returns the child of parent with the given name, if any.
func findChild(st Store, parent NodeID, name string) (c Child, ok bool, err error) {
	children, err := st.Children(parent)
	if err != nil {
		return
	}
	for _, child := range children {
		if child.Name == name {
			return child, true, nil
		}
	}
	return
}

// attr fetches a root attribute, mapping absence to NotFoundError with
// a readable path.
func rootAttr(st Store, key string) (v *AttrValue, err error) {
	keys, err := st.AttrKeys(st.Root())
	if err != nil {
		return
	}
	for _, k := range keys {
		if k == key {
			return st.Attr(st.Root(), key)
		}
	}
	err = &NotFoundError{Path: "/@" + key}
	return
}

// State of a product store with respect to the two-phase write
// discipline: a store without a content_hash is still Building -- a
// valid, detectable condition, not a corruption.
type State int

const (
	Building State = iota
	Sealed
)

func (s State) String() string {
	if s == Building {
		return "building"
	}
	return "sealed"
}

// StoreState reports whether the store carries a content hash seal.
func StoreState(st Store) (state State, err error) {
	_, err = rootAttr(st, AttrContentHash)
	if err != nil {
		if _, ok := err.(*NotFoundError); ok {
			return Building, nil
		}
		return
	}
	return Sealed, nil
}
