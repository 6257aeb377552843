package sealbase

import (
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
)

// SourceLink is a reference to an upstream product, carrying the
// snapshot of its content hash at the time the link was recorded.  The
// business meaning of the link is the producer's concern; sealbase
// only checks its integrity.
type SourceLink struct {
	Role        string // e.g. "l1b", "geolocation"
	Identity    string // upstream product id
	ContentHash string // upstream content hash at link time
}

// LinkStatus is the outcome of checking one source link.
type LinkStatus int

const (
	// LinkOK: the referenced product's current content hash matches
	// the recorded snapshot.
	LinkOK LinkStatus = iota
	// LinkStale: the referenced product has changed since the link
	// was recorded.
	LinkStale
	// LinkUnresolved: the referenced product cannot currently be
	// reached.  Not a corruption -- the file may simply be offline.
	LinkUnresolved
)

func (s LinkStatus) String() string {
	switch s {
	case LinkOK:
		return "ok"
	case LinkStale:
		return "stale"
	}
	return "unresolved"
}

// UnresolvedError is returned by resolvers that cannot reach a
// referenced product.  Recoverable: it never implies corruption.
type UnresolvedError struct {
	Identity string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("cannot resolve product %s", e.Identity)
}

// CycleError reports a provenance traversal that revisited an identity
// on its current path.  The relationship is expected to be acyclic by
// construction, so a cycle is fatal rather than looped over.
type CycleError struct {
	Identity string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("provenance cycle through product %s", e.Identity)
}

// Resolver fetches the current content hash of the product with the
// given identity.  External collaborator: the referenced file may be
// remote or offline, in which case it returns UnresolvedError.
type Resolver func(identity string) (contentHash string, err error)

// LinkLister fetches the outgoing source links of the product with the
// given identity.
type LinkLister func(identity string) (links []SourceLink, err error)

// CheckLink compares a link's recorded content-hash snapshot with the
// referenced product's current content hash.
func CheckLink(link SourceLink, resolve Resolver) (status LinkStatus) {
	current, err := resolve(link.Identity)
	if err != nil {
		log.Debugf("link %s (%s): %v", link.Identity, link.Role, err)
		return LinkUnresolved
	}
	if current == link.ContentHash {
		return LinkOK
	}
	return LinkStale
}

// LinkReport is one edge of a provenance traversal.
type LinkReport struct {
	Identity string
	Role     string
	Status   LinkStatus
	Depth    int
}

// Traverse walks the provenance graph from a product identity,
// checking every reachable link.  Visited identities are checked once
// (diamonds are fine); an identity revisited on the current path is a
// cycle and fails with CycleError.
func Traverse(identity string, list LinkLister, resolve Resolver) (reports []LinkReport, err error) {
	visited := make(map[string]bool)
	onPath := make(map[string]bool)

	var walk func(id string, depth int) error
	walk = func(id string, depth int) (err error) {
		if onPath[id] {
			return &CycleError{Identity: id}
		}
		if visited[id] {
			return
		}
		visited[id] = true
		onPath[id] = true
		defer delete(onPath, id)

		links, err := list(id)
		if err != nil {
			return
		}
		for _, link := range links {
			status := CheckLink(link, resolve)
			reports = append(reports, LinkReport{
				Identity: link.Identity,
				Role:     link.Role,
				Status:   status,
				Depth:    depth,
			})
			if status == LinkUnresolved {
				// can't descend into a product we can't reach
				continue
			}
			err = walk(link.Identity, depth+1)
			if err != nil {
				return
			}
		}
		return
	}
	err = walk(identity, 0)
	return
}

// Source link attribute convention: "source_<role>_id" paired with
// "source_<role>_hash" on the root group.
const (
	sourcePrefix  = "source_"
	sourceIDSuf   = "_id"
	sourceHashSuf = "_hash"
)

// SourceAttrs returns the attribute keys recording a link with the
// given role, for producers writing links.
func SourceAttrs(role string) (idKey, hashKey string) {
	return sourcePrefix + role + sourceIDSuf, sourcePrefix + role + sourceHashSuf
}

// LinksFromStore collects the source links recorded on a store's root
// group.
func LinksFromStore(st Store) (links []SourceLink, err error) {
	defer Return(&err)

	keys, err := st.AttrKeys(st.Root())
	Ck(err)
	sort.Strings(keys)
	for _, key := range keys {
		if !strings.HasPrefix(key, sourcePrefix) || !strings.HasSuffix(key, sourceIDSuf) {
			continue
		}
		role := key[len(sourcePrefix) : len(key)-len(sourceIDSuf)]
		if role == "" {
			continue
		}
		idVal, err := st.Attr(st.Root(), key)
		Ck(err)
		_, hashKey := SourceAttrs(role)
		hashVal, err := rootAttr(st, hashKey)
		if err != nil {
			return nil, fmt.Errorf("link %q has no recorded content hash (%s)", role, hashKey)
		}
		links = append(links, SourceLink{
			Role:        role,
			Identity:    idVal.Str,
			ContentHash: hashVal.Str,
		})
	}
	return
}
