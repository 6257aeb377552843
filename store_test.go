package sealbase

import (
	"testing"
)

func TestLookup(t *testing.T) {
	g := mkgranule(t)

	id, kind, err := Lookup(g.m, "/")
	tassert(t, err == nil, "%v", err)
	tassert(t, id == g.m.Root() && kind == Group, "root lookup")

	id, kind, err = Lookup(g.m, "")
	tassert(t, err == nil, "%v", err)
	tassert(t, id == g.m.Root(), "empty path is the root")

	id, kind, err = Lookup(g.m, "/observation")
	tassert(t, err == nil, "%v", err)
	tassert(t, id == g.obs && kind == Group, "group lookup")

	_, kind, err = Lookup(g.m, "observation/radiance")
	tassert(t, err == nil, "%v", err)
	tassert(t, kind == Dataset, "dataset lookup")

	_, _, err = Lookup(g.m, "/observation/nope")
	_, ok := err.(*NotFoundError)
	tassert(t, ok, "expected NotFoundError, got %T: %v", err, err)
}

func TestIsChunkTable(t *testing.T) {
	tassert(t, IsChunkTable("radiance_chunk_hashes"), "companion name not recognized")
	tassert(t, !IsChunkTable("radiance"), "plain name recognized as companion")
	tassert(t, !IsChunkTable("chunk_hashes_index"), "suffix match only")
}

func TestMemStoreReplace(t *testing.T) {
	m := NewMemStore()
	_, err := m.AddDataset(m.Root(), "d", nil, mkbuf("one"))
	tassert(t, err == nil, "%v", err)
	id2, err := m.AddDataset(m.Root(), "d", nil, mkbuf("two"))
	tassert(t, err == nil, "%v", err)

	children, err := m.Children(m.Root())
	tassert(t, err == nil, "%v", err)
	tassert(t, len(children) == 1, "expected 1 child got %d", len(children))
	tassert(t, children[0].ID == id2, "replacement did not take")

	raw, err := m.ReadChunk(id2, 0)
	tassert(t, err == nil, "%v", err)
	tassert(t, string(raw) == "two", "expected %q got %q", "two", raw)
}

func TestMemStoreBadNames(t *testing.T) {
	m := NewMemStore()
	_, err := m.AddGroup(m.Root(), "")
	tassert(t, err != nil, "expected error, received none")
	_, err = m.AddGroup(m.Root(), "a/b")
	tassert(t, err != nil, "expected error, received none")
}
