package prodfile

import (
	"fmt"
	"io/ioutil"
	"os"

	"github.com/google/renameio"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/sealbase"
	"github.com/vmihailenco/msgpack"
)

const (
	magic   = "sealbase-product"
	version = 1
)

// On-disk container records.  msgpack frames the container only; the
// digest layer never sees these, so codec and container details stay
// out of every hash.
type fileRecord struct {
	Magic   string
	Version int
	Config  Config
	Nodes   []nodeRecord
}

type nodeRecord struct {
	Kind     int8
	Children []childRecord
	Attrs    []attrRecord
	Grid     *gridRecord
	Blob     bool
	RawLens  []int
	Chunks   [][]byte
}

type childRecord struct {
	Name string
	ID   int32
	Kind int8
}

type gridRecord struct {
	Shape      []int
	ChunkShape []int
	ElemSize   int
}

// attrRecord flattens the AttrValue variant; Kind selects the live
// field, mirroring the in-memory representation.
type attrRecord struct {
	Key    string
	Kind   int8
	Str    string
	Int    int64
	Float  float64
	Bool   bool
	Ints   []int64
	Floats []float64
	Strs   []string
	Bytes  []byte
}

func attr2rec(key string, v *sealbase.AttrValue) attrRecord {
	return attrRecord{
		Key:    key,
		Kind:   int8(v.Kind),
		Str:    v.Str,
		Int:    v.Int,
		Float:  v.Float,
		Bool:   v.Bool,
		Ints:   v.Ints,
		Floats: v.Floats,
		Strs:   v.Strs,
		Bytes:  v.Bytes,
	}
}

func rec2attr(r attrRecord) *sealbase.AttrValue {
	return &sealbase.AttrValue{
		Kind:   sealbase.AttrKind(r.Kind),
		Str:    r.Str,
		Int:    r.Int,
		Float:  r.Float,
		Bool:   r.Bool,
		Ints:   r.Ints,
		Floats: r.Floats,
		Strs:   r.Strs,
		Bytes:  r.Bytes,
	}
}

func (p *ProdFile) record() (rec *fileRecord) {
	rec = &fileRecord{Magic: magic, Version: version, Config: p.Config}
	for _, n := range p.nodes {
		nr := nodeRecord{
			Kind:    int8(n.kind),
			Blob:    n.blob,
			RawLens: n.RawLensCopy(),
			Chunks:  n.chunks,
		}
		for _, c := range n.children {
			nr.Children = append(nr.Children, childRecord{
				Name: c.Name, ID: int32(c.ID), Kind: int8(c.Kind),
			})
		}
		for _, key := range n.order {
			nr.Attrs = append(nr.Attrs, attr2rec(key, n.attrs[key]))
		}
		if n.grid != nil {
			nr.Grid = &gridRecord{
				Shape:      n.grid.Shape,
				ChunkShape: n.grid.ChunkShape,
				ElemSize:   n.grid.ElemSize,
			}
		}
		rec.Nodes = append(rec.Nodes, nr)
	}
	return
}

func (n *pnode) RawLensCopy() []int {
	out := make([]int, len(n.rawLens))
	copy(out, n.rawLens)
	return out
}

// Flush serializes the whole container and publishes it atomically: a
// reader sees either the previous complete file or the new one, never
// a torn write.
func (p *ProdFile) Flush() (err error) {
	defer Return(&err)

	buf, err := msgpack.Marshal(p.record())
	Ck(err)
	err = renameio.WriteFile(p.Path, buf, 0644)
	Ck(err)
	return
}

// Open loads an existing product file.
func Open(path string) (p *ProdFile, err error) {
	defer Return(&err)

	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return
	}
	rec := &fileRecord{}
	err = msgpack.Unmarshal(buf, rec)
	if err != nil || rec.Magic != magic {
		err = &NotProductError{Path: path}
		return
	}
	if rec.Version != version {
		err = fmt.Errorf("%s: unsupported product file version %d", path, rec.Version)
		return
	}
	c, err := newCodec(rec.Config.Codec)
	Ck(err)

	p = &ProdFile{Path: path, Config: rec.Config, codec: c}
	for _, nr := range rec.Nodes {
		n := &pnode{
			kind:    sealbase.Kind(nr.Kind),
			blob:    nr.Blob,
			rawLens: nr.RawLens,
			chunks:  nr.Chunks,
			attrs:   make(map[string]*sealbase.AttrValue),
		}
		for _, c := range nr.Children {
			n.children = append(n.children, sealbase.Child{
				Name: c.Name, ID: sealbase.NodeID(c.ID), Kind: sealbase.Kind(c.Kind),
			})
		}
		for _, ar := range nr.Attrs {
			n.order = append(n.order, ar.Key)
			n.attrs[ar.Key] = rec2attr(ar)
		}
		if nr.Grid != nil {
			n.grid = &sealbase.Grid{
				Shape:      nr.Grid.Shape,
				ChunkShape: nr.Grid.ChunkShape,
				ElemSize:   nr.Grid.ElemSize,
			}
		}
		p.nodes = append(p.nodes, n)
	}
	if len(p.nodes) == 0 {
		err = &NotProductError{Path: path}
	}
	return
}

func canstat(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
