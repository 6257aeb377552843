// Package prodfile is a file-backed hierarchical product store: a
// single-file container holding a group/attribute/dataset tree with
// per-chunk compression.  It implements sealbase.Store, so a product
// file can be sealed and verified in place.  Writes follow the
// two-phase discipline: domain data first (state Building), then the
// seal pass computes chunk tables, content hash, and identity, and the
// file is atomically republished (state Sealed).
package prodfile

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/restic/chunker"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/sealbase"
)

// Config is written into the file so a reader needs nothing else to
// re-derive every digest.
type Config struct {
	Algo  string // digest algorithm for the seal pass
	Codec string // chunk codec: zstd, lz4, raw
	Poly  uint64 // rabin polynomial for blob-dataset boundaries
}

func (c Config) withDefaults() Config {
	if c.Algo == "" {
		c.Algo = sealbase.DefaultAlgo
	}
	if c.Codec == "" {
		c.Codec = "zstd"
	}
	if c.Poly == 0 {
		c.Poly = uint64(DefaultPoly)
	}
	return c
}

// ProdFile is an open product file.  Node metadata lives in memory;
// chunk payloads stay compressed until read.
type ProdFile struct {
	Path   string
	Config Config
	nodes  []*pnode
	codec  codec
}

type pnode struct {
	kind     sealbase.Kind
	children []sealbase.Child
	attrs    map[string]*sealbase.AttrValue
	order    []string
	grid     *sealbase.Grid
	blob     bool     // rabin-segmented byte blob (logically unchunked)
	rawLens  []int    // unpacked length per stored payload
	chunks   [][]byte // packed payloads
}

// ExistsError reports a Create over an existing file.
type ExistsError struct {
	Path string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("file exists: %s", e.Path)
}

// NotProductError reports an Open of something that isn't a product
// file.
type NotProductError struct {
	Path string
}

func (e *NotProductError) Error() string {
	return fmt.Sprintf("not a product file: %s", e.Path)
}

// Create starts a new product file in state Building.  Nothing touches
// disk until Flush.
func Create(path string, config Config) (p *ProdFile, err error) {
	defer Return(&err)

	if canstat(path) {
		err = &ExistsError{Path: path}
		return
	}
	config = config.withDefaults()
	c, err := newCodec(config.Codec)
	Ck(err)
	p = &ProdFile{Path: path, Config: config, codec: c}
	p.nodes = append(p.nodes, &pnode{
		kind:  sealbase.Group,
		attrs: make(map[string]*sealbase.AttrValue),
	})
	return
}

// Root implements sealbase.Store.
func (p *ProdFile) Root() sealbase.NodeID { return 0 }

func (p *ProdFile) node(id sealbase.NodeID) (n *pnode, err error) {
	if int(id) < 0 || int(id) >= len(p.nodes) {
		err = fmt.Errorf("no such node: %d", id)
		return
	}
	n = p.nodes[id]
	return
}

func (p *ProdFile) add(parent sealbase.NodeID, name string, node *pnode) (id sealbase.NodeID, err error) {
	pn, err := p.node(parent)
	if err != nil {
		return
	}
	if pn.kind != sealbase.Group {
		err = fmt.Errorf("node %d is not a group", parent)
		return
	}
	if name == "" || strings.ContainsRune(name, '/') {
		err = fmt.Errorf("bad node name: %q", name)
		return
	}
	id = sealbase.NodeID(len(p.nodes))
	p.nodes = append(p.nodes, node)
	entry := sealbase.Child{Name: name, ID: id, Kind: node.kind}
	for i, c := range pn.children {
		if c.Name == name {
			pn.children[i] = entry
			return
		}
	}
	pn.children = append(pn.children, entry)
	return
}

// AddGroup creates a child group.
func (p *ProdFile) AddGroup(parent sealbase.NodeID, name string) (id sealbase.NodeID, err error) {
	return p.add(parent, name, &pnode{
		kind:  sealbase.Group,
		attrs: make(map[string]*sealbase.AttrValue),
	})
}

// AddDataset creates a child dataset from its full row-major byte
// image.  A non-nil grid chunks the data logically; each cell is
// packed separately so chunks can be read back one at a time.
func (p *ProdFile) AddDataset(parent sealbase.NodeID, name string, grid *sealbase.Grid, data []byte) (id sealbase.NodeID, err error) {
	defer Return(&err)

	node := &pnode{
		kind:  sealbase.Dataset,
		attrs: make(map[string]*sealbase.AttrValue),
		grid:  grid,
	}
	if grid == nil {
		packed, err := p.codec.pack(data)
		Ck(err)
		node.chunks = [][]byte{packed}
		node.rawLens = []int{len(data)}
		return p.add(parent, name, node)
	}

	err = grid.Validate()
	if err != nil {
		return
	}
	if grid.ByteSize() != len(data) {
		err = fmt.Errorf("dataset %s: %d bytes, grid wants %d", name, len(data), grid.ByteSize())
		return
	}
	n := grid.NumChunks()
	for ordinal := 0; ordinal < n; ordinal++ {
		raw, err := grid.Gather(data, ordinal)
		Ck(err)
		packed, err := p.codec.pack(raw)
		Ck(err)
		node.chunks = append(node.chunks, packed)
		node.rawLens = append(node.rawLens, len(raw))
	}
	return p.add(parent, name, node)
}

// PutBlob creates an unchunked byte-blob dataset from a stream,
// segmenting it at rabin boundaries so identical runs of bytes pack
// into identical segments.  Logically the dataset is one flat byte
// array; the segmentation is physical layout only and never shows up
// in any digest.
func (p *ProdFile) PutBlob(parent sealbase.NodeID, name string, rd io.Reader) (id sealbase.NodeID, err error) {
	defer Return(&err)

	r, err := rabin{Poly: chunker.Pol(p.Config.Poly)}.Init()
	Ck(err)
	r.Start(rd)

	node := &pnode{
		kind:  sealbase.Dataset,
		attrs: make(map[string]*sealbase.AttrValue),
		blob:  true,
	}
	buf := make([]byte, r.MaxSize+1)
	for {
		chunk, err := r.Next(buf)
		if errors.Cause(err) == io.EOF {
			break
		}
		Ck(err)
		packed, err := p.codec.pack(chunk.Data)
		Ck(err)
		node.chunks = append(node.chunks, packed)
		node.rawLens = append(node.rawLens, len(chunk.Data))
	}
	log.Debugf("blob %s: %d segments", name, len(node.chunks))
	return p.add(parent, name, node)
}

// Children implements sealbase.Store.
func (p *ProdFile) Children(id sealbase.NodeID) (children []sealbase.Child, err error) {
	n, err := p.node(id)
	if err != nil {
		return
	}
	if n.kind != sealbase.Group {
		err = fmt.Errorf("node %d is not a group", id)
		return
	}
	children = append(children, n.children...)
	return
}

// AttrKeys implements sealbase.Store; keys come back in insertion
// order, which the digest layer is free to ignore.
func (p *ProdFile) AttrKeys(id sealbase.NodeID) (keys []string, err error) {
	n, err := p.node(id)
	if err != nil {
		return
	}
	keys = append(keys, n.order...)
	return
}

// Attr implements sealbase.Store.
func (p *ProdFile) Attr(id sealbase.NodeID, key string) (val *sealbase.AttrValue, err error) {
	n, err := p.node(id)
	if err != nil {
		return
	}
	val, ok := n.attrs[key]
	if !ok {
		err = &sealbase.NotFoundError{Path: "@" + key}
	}
	return
}

// SetAttr implements sealbase.Store.
func (p *ProdFile) SetAttr(id sealbase.NodeID, key string, val *sealbase.AttrValue) (err error) {
	n, err := p.node(id)
	if err != nil {
		return
	}
	if _, ok := n.attrs[key]; !ok {
		n.order = append(n.order, key)
	}
	n.attrs[key] = val
	return
}

// Grid implements sealbase.Store.  Blob datasets report nil: their
// rabin segmentation is physical, not logical.
func (p *ProdFile) Grid(id sealbase.NodeID) (grid *sealbase.Grid, err error) {
	n, err := p.node(id)
	if err != nil {
		return
	}
	if n.kind != sealbase.Dataset {
		err = fmt.Errorf("node %d is not a dataset", id)
		return
	}
	grid = n.grid
	return
}

// ReadChunk implements sealbase.Store: unpacked bytes, actual extent
// only.  For unchunked datasets ordinal 0 yields the whole image; blob
// segments are concatenated transparently.
func (p *ProdFile) ReadChunk(id sealbase.NodeID, ordinal int) (raw []byte, err error) {
	defer Return(&err)

	n, err := p.node(id)
	if err != nil {
		return
	}
	if n.kind != sealbase.Dataset {
		err = fmt.Errorf("node %d is not a dataset", id)
		return
	}
	if n.grid == nil {
		if ordinal != 0 {
			err = fmt.Errorf("unchunked dataset has no chunk %d", ordinal)
			return
		}
		for i, packed := range n.chunks {
			seg, err := p.codec.unpack(packed, n.rawLens[i])
			Ck(err)
			raw = append(raw, seg...)
		}
		return
	}
	if ordinal < 0 || ordinal >= len(n.chunks) {
		err = fmt.Errorf("chunk ordinal %d out of range (%d chunks)", ordinal, len(n.chunks))
		return
	}
	return p.codec.unpack(n.chunks[ordinal], n.rawLens[ordinal])
}

// CreateDataset implements sealbase.Store, replacing any same-named
// child; the seal pass uses it to persist chunk tables.
func (p *ProdFile) CreateDataset(parent sealbase.NodeID, name string, grid *sealbase.Grid, data []byte) (id sealbase.NodeID, err error) {
	return p.AddDataset(parent, name, grid, data)
}

// Seal runs the write-time hashing pass and republishes the file
// atomically.  Idempotent: re-sealing an unchanged file writes the
// same artifacts.
func (p *ProdFile) Seal(schemes sealbase.SchemeTable) (seal string, err error) {
	defer Return(&err)

	h := sealbase.Hasher{Algo: p.Config.Algo}.New()
	seal, err = sealbase.Seal(p, schemes, h)
	if err != nil {
		return
	}
	err = p.Flush()
	Ck(err)
	return
}

// State reports Building or Sealed.
func (p *ProdFile) State() (state sealbase.State, err error) {
	return sealbase.StoreState(p)
}
