package sealbase

import (
	"testing"
)

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

func mkbuf(s string) []byte {
	tmp := []byte(s)
	return tmp
}

// seqbuf returns n bytes of a fixed repeatable pattern.
func seqbuf(n int) (buf []byte) {
	buf = make([]byte, n)
	for i := range buf {
		buf[i] = byte(i*7 + 3)
	}
	return
}

// granule is the small two-group product tree most tests run against:
//
//	/
//	  @product_type, @platform, ... identity fields
//	  observation/
//	    radiance        chunked [5,6] by [2,4], 2-byte elements
//	    quality_flags   unchunked
//	  geolocation/
//	    latitude        chunked [7] by [2], edge chunk of 1 element
type granule struct {
	m       *MemStore
	obs     NodeID
	geo     NodeID
	rad     NodeID
	radGrid *Grid
	radData []byte
	latGrid *Grid
	latData []byte
}

func mkgranule(t *testing.T) (g *granule) {
	t.Helper()
	m := NewMemStore()
	root := m.Root()
	attrs := []struct {
		key string
		val *AttrValue
	}{
		{AttrProductType, Str("granule")},
		{"platform", Str("noaa-20")},
		{"sensor", Str("viirs")},
		{"start_time", Str("2026-01-01T00:00:00Z")},
		{"end_time", Str("2026-01-01T00:06:00Z")},
		{"processing_level", Str("l1b")},
		{"orbit", Int64(4217)},
		{"scale", Float64(0.01)},
	}
	for _, a := range attrs {
		err := m.SetAttr(root, a.key, a.val)
		tassert(t, err == nil, "SetAttr %s: %v", a.key, err)
	}

	g = &granule{m: m}
	var err error
	g.obs, err = m.AddGroup(root, "observation")
	tassert(t, err == nil, "AddGroup: %v", err)
	g.geo, err = m.AddGroup(root, "geolocation")
	tassert(t, err == nil, "AddGroup: %v", err)

	g.radGrid = &Grid{Shape: []int{5, 6}, ChunkShape: []int{2, 4}, ElemSize: 2}
	g.radData = seqbuf(g.radGrid.ByteSize())
	g.rad, err = m.AddDataset(g.obs, "radiance", g.radGrid, g.radData)
	tassert(t, err == nil, "AddDataset: %v", err)
	err = m.SetAttr(g.rad, "units", Str("W m-2 sr-1"))
	tassert(t, err == nil, "SetAttr: %v", err)

	_, err = m.AddDataset(g.obs, "quality_flags", nil, mkbuf("\x00\x00\x01\x00\x02"))
	tassert(t, err == nil, "AddDataset: %v", err)

	g.latGrid = &Grid{Shape: []int{7}, ChunkShape: []int{2}, ElemSize: 1}
	g.latData = seqbuf(7)
	_, err = m.AddDataset(g.geo, "latitude", g.latGrid, g.latData)
	tassert(t, err == nil, "AddDataset: %v", err)
	return
}

func sealgranule(t *testing.T) (g *granule, seal string) {
	t.Helper()
	g = mkgranule(t)
	seal, err := Seal(g.m, DefaultSchemes(), nil)
	tassert(t, err == nil, "Seal: %v", err)
	return
}
