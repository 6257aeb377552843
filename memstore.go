package sealbase

import (
	"fmt"
	"strings"
)

// MemStore is an arena-backed in-memory Store: nodes live in a slice
// and refer to each other by NodeID only.  It backs tests and serves
// as the in-memory half of file-backed stores.
type MemStore struct {
	nodes []*memNode
}

type memNode struct {
	kind     Kind
	children []Child
	attrs    map[string]*AttrValue
	order    []string // attribute insertion order, preserved as-is
	grid     *Grid
	data     []byte
}

// NewMemStore returns a store holding a single empty root group.
func NewMemStore() *MemStore {
	m := &MemStore{}
	m.nodes = append(m.nodes, &memNode{kind: Group, attrs: make(map[string]*AttrValue)})
	return m
}

func (m *MemStore) Root() NodeID { return 0 }

func (m *MemStore) node(id NodeID) (n *memNode, err error) {
	if int(id) < 0 || int(id) >= len(m.nodes) {
		err = fmt.Errorf("no such node: %d", id)
		return
	}
	n = m.nodes[id]
	return
}

func checkName(name string) error {
	if name == "" || strings.ContainsRune(name, '/') {
		return fmt.Errorf("bad node name: %q", name)
	}
	return nil
}

func (m *MemStore) add(parent NodeID, name string, node *memNode) (id NodeID, err error) {
	p, err := m.node(parent)
	if err != nil {
		return
	}
	if p.kind != Group {
		err = fmt.Errorf("node %d is not a group", parent)
		return
	}
	if err = checkName(name); err != nil {
		return
	}
	id = NodeID(len(m.nodes))
	m.nodes = append(m.nodes, node)
	for i, c := range p.children {
		if c.Name == name {
			// replace in place; the old node becomes garbage
			p.children[i] = Child{Name: name, ID: id, Kind: node.kind}
			return
		}
	}
	p.children = append(p.children, Child{Name: name, ID: id, Kind: node.kind})
	return
}

// AddGroup creates a child group, replacing any same-named child.
func (m *MemStore) AddGroup(parent NodeID, name string) (id NodeID, err error) {
	return m.add(parent, name, &memNode{kind: Group, attrs: make(map[string]*AttrValue)})
}

// AddDataset creates a child dataset, replacing any same-named child.
// A nil grid means unchunked; data is the full row-major byte image
// either way.
func (m *MemStore) AddDataset(parent NodeID, name string, grid *Grid, data []byte) (id NodeID, err error) {
	if grid != nil {
		if err = grid.Validate(); err != nil {
			return
		}
		if grid.ByteSize() != len(data) {
			err = fmt.Errorf("dataset %s: %d bytes, grid wants %d", name, len(data), grid.ByteSize())
			return
		}
	}
	return m.add(parent, name, &memNode{
		kind:  Dataset,
		attrs: make(map[string]*AttrValue),
		grid:  grid,
		data:  data,
	})
}

func (m *MemStore) Children(id NodeID) (children []Child, err error) {
	n, err := m.node(id)
	if err != nil {
		return
	}
	if n.kind != Group {
		err = fmt.Errorf("node %d is not a group", id)
		return
	}
	children = append(children, n.children...)
	return
}

func (m *MemStore) AttrKeys(id NodeID) (keys []string, err error) {
	n, err := m.node(id)
	if err != nil {
		return
	}
	keys = append(keys, n.order...)
	return
}

func (m *MemStore) Attr(id NodeID, key string) (val *AttrValue, err error) {
	n, err := m.node(id)
	if err != nil {
		return
	}
	val, ok := n.attrs[key]
	if !ok {
		err = &NotFoundError{Path: "@" + key}
	}
	return
}

func (m *MemStore) SetAttr(id NodeID, key string, val *AttrValue) (err error) {
	n, err := m.node(id)
	if err != nil {
		return
	}
	if _, ok := n.attrs[key]; !ok {
		n.order = append(n.order, key)
	}
	n.attrs[key] = val
	return
}

func (m *MemStore) Grid(id NodeID) (grid *Grid, err error) {
	n, err := m.node(id)
	if err != nil {
		return
	}
	if n.kind != Dataset {
		err = fmt.Errorf("node %d is not a dataset", id)
		return
	}
	grid = n.grid
	return
}

func (m *MemStore) ReadChunk(id NodeID, ordinal int) (raw []byte, err error) {
	n, err := m.node(id)
	if err != nil {
		return
	}
	if n.kind != Dataset {
		err = fmt.Errorf("node %d is not a dataset", id)
		return
	}
	if n.grid == nil {
		if ordinal != 0 {
			err = fmt.Errorf("unchunked dataset has no chunk %d", ordinal)
			return
		}
		raw = n.data
		return
	}
	return n.grid.Gather(n.data, ordinal)
}

func (m *MemStore) CreateDataset(parent NodeID, name string, grid *Grid, data []byte) (id NodeID, err error) {
	return m.AddDataset(parent, name, grid, data)
}
