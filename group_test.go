package sealbase

import (
	"bytes"
	"testing"
)

func rootDigest(t *testing.T, m *MemStore) []byte {
	t.Helper()
	h := Hasher{Algo: "sha256"}.New()
	digest, err := h.Group(m, m.Root())
	tassert(t, err == nil, "Group: %v", err)
	return digest
}

// {"a": 1, "b": "x"} and {"b": "x", "a": 1} must digest identically
func TestAttrOrderInvariance(t *testing.T) {
	a := NewMemStore()
	tassert(t, a.SetAttr(a.Root(), "a", Int64(1)) == nil, "SetAttr")
	tassert(t, a.SetAttr(a.Root(), "b", Str("x")) == nil, "SetAttr")

	b := NewMemStore()
	tassert(t, b.SetAttr(b.Root(), "b", Str("x")) == nil, "SetAttr")
	tassert(t, b.SetAttr(b.Root(), "a", Int64(1)) == nil, "SetAttr")

	tassert(t, bytes.Equal(rootDigest(t, a), rootDigest(t, b)),
		"insertion order leaked into the digest")
}

func TestAttrTypeDistinct(t *testing.T) {
	i := NewMemStore()
	tassert(t, i.SetAttr(i.Root(), "a", Int64(1)) == nil, "SetAttr")
	f := NewMemStore()
	tassert(t, f.SetAttr(f.Root(), "a", Float64(1.0)) == nil, "SetAttr")

	tassert(t, !bytes.Equal(rootDigest(t, i), rootDigest(t, f)),
		"int 1 and float 1.0 digest equal")
}

// a dataset named "x" must never collide with a group named "x"
func TestChildKindDistinct(t *testing.T) {
	g := NewMemStore()
	_, err := g.AddGroup(g.Root(), "x")
	tassert(t, err == nil, "%v", err)

	d := NewMemStore()
	_, err = d.AddDataset(d.Root(), "x", nil, nil)
	tassert(t, err == nil, "%v", err)

	tassert(t, !bytes.Equal(rootDigest(t, g), rootDigest(t, d)),
		"group and dataset of the same name digest equal")
}

// derived artifacts never participate: content_hash cannot contain
// itself, and chunk tables are bookkeeping
func TestReservedExcluded(t *testing.T) {
	g := mkgranule(t)
	before := rootDigest(t, g.m)

	tassert(t, g.m.SetAttr(g.m.Root(), AttrContentHash, Str("sha256:00")) == nil, "SetAttr")
	tassert(t, g.m.SetAttr(g.m.Root(), AttrID, Str("sha256:01")) == nil, "SetAttr")
	tassert(t, g.m.SetAttr(g.m.Root(), AttrIDInputs, Strs("platform")) == nil, "SetAttr")
	tassert(t, bytes.Equal(before, rootDigest(t, g.m)),
		"reserved attributes leaked into the digest")

	_, err := g.m.CreateDataset(g.obs, "radiance"+ChunkTableSuffix, nil, seqbuf(64))
	tassert(t, err == nil, "%v", err)
	tassert(t, bytes.Equal(before, rootDigest(t, g.m)),
		"chunk table child leaked into the digest")

	// a plain attribute does participate
	tassert(t, g.m.SetAttr(g.m.Root(), "note", Str("reprocessed")) == nil, "SetAttr")
	tassert(t, !bytes.Equal(before, rootDigest(t, g.m)),
		"plain attribute change did not move the digest")
}

// a single changed chunk changes the dataset, its ancestors, and the
// root, while sibling branches keep their digests
func TestTamperPropagation(t *testing.T) {
	g := mkgranule(t)
	h := Hasher{Algo: "sha256"}.New()

	rootBefore := rootDigest(t, g.m)
	obsBefore, err := h.Group(g.m, g.obs)
	tassert(t, err == nil, "%v", err)
	geoBefore, err := h.Group(g.m, g.geo)
	tassert(t, err == nil, "%v", err)

	tampered := append([]byte{}, g.radData...)
	tampered[0] ^= 0xff
	_, err = g.m.AddDataset(g.obs, "radiance", g.radGrid, tampered)
	tassert(t, err == nil, "%v", err)

	obsAfter, err := h.Group(g.m, g.obs)
	tassert(t, err == nil, "%v", err)
	geoAfter, err := h.Group(g.m, g.geo)
	tassert(t, err == nil, "%v", err)

	tassert(t, !bytes.Equal(obsBefore, obsAfter), "ancestor digest did not change")
	tassert(t, !bytes.Equal(rootBefore, rootDigest(t, g.m)), "root digest did not change")
	tassert(t, bytes.Equal(geoBefore, geoAfter), "sibling branch digest changed")
}

func TestContent(t *testing.T) {
	g := mkgranule(t)
	h := Hasher{Algo: "sha256"}.New()

	seal, err := h.Content(g.m)
	tassert(t, err == nil, "%v", err)
	expect := FormatSeal("sha256", rootDigest(t, g.m))
	tassert(t, seal == expect, "expected %q got %q", expect, seal)

	// deterministic: an identical tree yields an identical seal
	g2 := mkgranule(t)
	seal2, err := h.Content(g2.m)
	tassert(t, err == nil, "%v", err)
	tassert(t, seal == seal2, "identical trees sealed differently")
}

func TestGroupUnsupportedAttr(t *testing.T) {
	m := NewMemStore()
	tassert(t, m.SetAttr(m.Root(), "bad", &AttrValue{Kind: AttrKind(99)}) == nil, "SetAttr")
	h := Hasher{Algo: "sha256"}.New()
	_, err := h.Group(m, m.Root())
	_, ok := err.(*UnsupportedKindError)
	tassert(t, ok, "expected UnsupportedKindError, got %T: %v", err, err)
}
