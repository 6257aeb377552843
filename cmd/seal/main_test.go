package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/t7a/sealbase"
	"github.com/t7a/sealbase/prodfile"
)

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

var testGrid = &sealbase.Grid{Shape: []int{5, 6}, ChunkShape: []int{2, 4}, ElemSize: 2}

func testData() (buf []byte) {
	buf = make([]byte, testGrid.ByteSize())
	for i := range buf {
		buf[i] = byte(i*7 + 3)
	}
	return
}

// mkprod writes an unsealed granule product file and returns its path.
func mkprod(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	p, err := prodfile.Create(path, prodfile.Config{Algo: "sha256"})
	tassert(t, err == nil, "Create: %v", err)
	for _, kv := range []struct{ k, v string }{
		{sealbase.AttrProductType, "granule"},
		{"platform", "noaa-20"},
		{"sensor", "viirs"},
		{"start_time", "2026-01-01T00:00:00Z"},
		{"end_time", "2026-01-01T00:06:00Z"},
		{"processing_level", "l1b"},
	} {
		err = p.SetAttr(p.Root(), kv.k, sealbase.Str(kv.v))
		tassert(t, err == nil, "SetAttr: %v", err)
	}
	obs, err := p.AddGroup(p.Root(), "observation")
	tassert(t, err == nil, "AddGroup: %v", err)
	_, err = p.AddDataset(obs, "radiance", testGrid, testData())
	tassert(t, err == nil, "AddDataset: %v", err)
	err = p.Flush()
	tassert(t, err == nil, "Flush: %v", err)
	return path
}

func TestRunLifecycle(t *testing.T) {
	dir, err := ioutil.TempDir("", "seal")
	tassert(t, err == nil, "%v", err)
	defer os.RemoveAll(dir)
	path := mkprod(t, dir, "granule.prod")

	// verifying an unsealed file is a missing-data condition
	rc := run([]string{"verify", path})
	tassert(t, rc == 2, "verify unsealed: expected 2 got %d", rc)
	rc = run([]string{"state", path})
	tassert(t, rc == 0, "state: expected 0 got %d", rc)

	rc = run([]string{"seal", path})
	tassert(t, rc == 0, "seal: expected 0 got %d", rc)

	for _, level := range []string{"full", "fast"} {
		rc = run([]string{"verify", "--level=" + level, path})
		tassert(t, rc == 0, "verify %s: expected 0 got %d", level, rc)
	}
	rc = run([]string{"verify", "--level=dataset:/observation/radiance", path})
	tassert(t, rc == 0, "verify dataset: expected 0 got %d", rc)
	rc = run([]string{"verify", "--level=chunk:/observation/radiance@0", path})
	tassert(t, rc == 0, "verify chunk: expected 0 got %d", rc)
	rc = run([]string{"id", path})
	tassert(t, rc == 0, "id: expected 0 got %d", rc)
	rc = run([]string{"links", "--dir", dir, path})
	tassert(t, rc == 0, "links: expected 0 got %d", rc)
}

func TestRunMismatch(t *testing.T) {
	dir, err := ioutil.TempDir("", "seal")
	tassert(t, err == nil, "%v", err)
	defer os.RemoveAll(dir)
	path := mkprod(t, dir, "granule.prod")
	rc := run([]string{"seal", path})
	tassert(t, rc == 0, "seal: expected 0 got %d", rc)

	// flip a chunk behind the seal's back
	p, err := prodfile.Open(path)
	tassert(t, err == nil, "%v", err)
	obs, _, err := sealbase.Lookup(p, "/observation")
	tassert(t, err == nil, "%v", err)
	data := testData()
	data[0] ^= 0xff
	_, err = p.AddDataset(obs, "radiance", testGrid, data)
	tassert(t, err == nil, "%v", err)
	err = p.Flush()
	tassert(t, err == nil, "%v", err)

	rc = run([]string{"verify", path})
	tassert(t, rc == 1, "verify tampered: expected 1 got %d", rc)
	rc = run([]string{"verify", "--level=chunk:/observation/radiance@0", path})
	tassert(t, rc == 1, "verify chunk: expected 1 got %d", rc)
	rc = run([]string{"verify", "--level=chunk:/observation/radiance@1", path})
	tassert(t, rc == 0, "verify clean chunk: expected 0 got %d", rc)

	// fast verification trusts the untouched tables
	rc = run([]string{"verify", "--level=fast", path})
	tassert(t, rc == 0, "verify fast: expected 0 got %d", rc)
}

func TestRunMissing(t *testing.T) {
	dir, err := ioutil.TempDir("", "seal")
	tassert(t, err == nil, "%v", err)
	defer os.RemoveAll(dir)

	rc := run([]string{"verify", filepath.Join(dir, "nope.prod")})
	tassert(t, rc == 2, "verify missing: expected 2 got %d", rc)
	rc = run([]string{"verify", "--level=bogus", mkprod(t, dir, "g.prod")})
	tassert(t, rc == 22, "verify bad level: expected 22 got %d", rc)
}
