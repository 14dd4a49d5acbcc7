package esedb

import (
	"bytes"
	"fmt"

	"github.com/edbkit/esedb/internal/format"
)

// PageTreeValue is the logical payload of one leaf or branch tag: its
// fully-resolved key (common prefix + local key) and its value bytes.
type PageTreeValue struct {
	Key   []byte
	Value []byte
}

// rootPageHeader is parsed from tag 0 of a page carrying PageFlagIsRoot.
type rootPageHeader struct {
	InitialNumberOfPages  uint32
	ParentFDPObjectNumber uint32
	ExtentSpace           uint32
	SpaceTreePageNumber   uint32
}

func parseRootPageHeader(data []byte) (rootPageHeader, error) {
	if len(data) < format.RootHeaderSize {
		return rootPageHeader{}, fmt.Errorf("root header too short: %d bytes", len(data))
	}
	return rootPageHeader{
		InitialNumberOfPages:  format.ReadU32(data, format.RootHeaderInitialPagesOffset),
		ParentFDPObjectNumber: format.ReadU32(data, format.RootHeaderParentFDPOffset),
		ExtentSpace:           format.ReadU32(data, format.RootHeaderExtentSpaceOffset),
		SpaceTreePageNumber:   format.ReadU32(data, format.RootHeaderSpaceTreePageOffset),
	}, nil
}

// pageTree is a handle for walking every page belonging to one B+-tree
// (one object_id, rooted at one page number). It owns a small LRU scoped
// to the walk, per the cache-discipline design: enumerating a child
// subtree must never evict the ancestor pages still on the caller's call
// stack.
type pageTree struct {
	eng      *Engine
	objectID uint32
	rootPage uint32
	maxDepth int
	cache    *pageCache
}

func newPageTree(eng *Engine, objectID, rootPage uint32) *pageTree {
	return &pageTree{
		eng:      eng,
		objectID: objectID,
		rootPage: rootPage,
		maxDepth: eng.opts.maxTreeDepth(),
		cache:    newPageCache(eng.opts.pageCacheSize()),
	}
}

func (t *pageTree) loadPage(n uint32) (*Page, error) {
	if p, ok := t.cache.get(n); ok {
		return p, nil
	}
	p, err := t.eng.loadPage(n)
	if err != nil {
		return nil, err
	}
	if p.FDPObjectID != t.objectID {
		return nil, pageErr(ErrKindTreeInvariant, n,
			fmt.Sprintf("father object id %d, want %d", p.FDPObjectID, t.objectID), nil)
	}
	t.cache.put(n, p)
	return p, nil
}

// resolveValues walks a page's tags into fully keyed PageTreeValues,
// applying the common-key-prefix rule: tag 0 holds the page's common-key
// blob, and every later tag either borrows a prefix of it (when
// HAS_COMMON_KEY_SIZE is set) or stands alone.
func resolveValues(p *Page) ([]PageTreeValue, error) {
	if len(p.Values) == 0 {
		return nil, nil
	}
	commonKey := p.Values[0].Data

	out := make([]PageTreeValue, 0, len(p.Values)-1)
	for i := 1; i < len(p.Values); i++ {
		v := p.Values[i]
		if v.IsDefunct() {
			continue
		}
		local := v.Data
		var key []byte
		if v.HasCommonKeySize() {
			if len(local) < 2 {
				return nil, fmt.Errorf("tag %d: common-key-size flag but value too short", i)
			}
			commonSize := int(format.ReadU16(local, 0))
			if commonSize > len(commonKey) {
				return nil, fmt.Errorf("tag %d: common key size %d exceeds common key %d", i, commonSize, len(commonKey))
			}
			local = local[2:]
			if len(local) < 2 {
				return nil, fmt.Errorf("tag %d: missing local key size", i)
			}
			localSize := int(format.ReadU16(local, 0))
			local = local[2:]
			if localSize > len(local) {
				return nil, fmt.Errorf("tag %d: local key size %d exceeds value", i, localSize)
			}
			key = make([]byte, 0, commonSize+localSize)
			key = append(key, commonKey[:commonSize]...)
			key = append(key, local[:localSize]...)
			out = append(out, PageTreeValue{Key: key, Value: local[localSize:]})
		} else {
			if len(local) < 2 {
				return nil, fmt.Errorf("tag %d: missing local key size", i)
			}
			localSize := int(format.ReadU16(local, 0))
			local = local[2:]
			if localSize > len(local) {
				return nil, fmt.Errorf("tag %d: local key size %d exceeds value", i, localSize)
			}
			out = append(out, PageTreeValue{Key: local[:localSize], Value: local[localSize:]})
		}
	}
	return out, nil
}

// childPageNumber extracts the leading 4-byte little-endian child page
// number a branch tag's value starts with. The separator key carries no
// pointer; the pointer lives in the value, right after the local key.
func childPageNumber(value []byte) (uint32, error) {
	if len(value) < 4 {
		return 0, fmt.Errorf("branch value too short to carry a child page number")
	}
	return format.ReadU32(value, 0), nil
}

// find descends the tree searching for the first leaf key >= query
// (respecting reversed-key index ordering when reversed is true), and
// returns the leaf PageTreeValue whose key equals query, or nil if absent.
func (t *pageTree) find(query []byte, reversed bool) (*PageTreeValue, error) {
	page, err := t.loadPage(t.rootPage)
	if err != nil {
		return nil, err
	}
	depth := 0
	for {
		depth++
		if depth > t.maxDepth {
			return nil, newErr(ErrKindTreeInvariant, "max tree depth exceeded", nil)
		}
		values, err := resolveValues(page)
		if err != nil {
			return nil, pageErr(ErrKindPageMalformed, page.Number, "resolve values", err)
		}
		if page.IsLeaf() {
			for _, v := range values {
				if compareKeys(v.Key, query, reversed) == 0 {
					return &v, nil
				}
			}
			return nil, nil
		}
		// Branch page: find first child whose key >= query.
		var next uint32
		found := false
		for _, v := range values {
			if compareKeys(v.Key, query, reversed) >= 0 {
				next, err = childPageNumber(v.Value)
				if err != nil {
					return nil, pageErr(ErrKindPageMalformed, page.Number, "branch child", err)
				}
				found = true
				break
			}
		}
		if !found {
			return nil, nil
		}
		page, err = t.loadPage(next)
		if err != nil {
			return nil, err
		}
	}
}

// compareKeys compares a and b lexicographically, or back-to-front when
// reversed is set (used by REVERSED_KEY index trees).
func compareKeys(a, b []byte, reversed bool) int {
	if !reversed {
		return bytes.Compare(a, b)
	}
	la, lb := len(a), len(b)
	for i := 1; i <= la && i <= lb; i++ {
		ca, cb := a[la-i], b[lb-i]
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
	}
	switch {
	case la < lb:
		return -1
	case la > lb:
		return 1
	default:
		return 0
	}
}

// leafCursor enumerates every leaf PageTreeValue of the tree in physical
// (ascending key) order by descending to the leftmost leaf once and then
// following next-page sibling links, per invariant I2.
type leafCursor struct {
	t        *pageTree
	page     *Page
	values   []PageTreeValue
	idx      int
	done     bool
}

func (t *pageTree) newLeafCursor() (*leafCursor, error) {
	page, err := t.loadPage(t.rootPage)
	if err != nil {
		return nil, err
	}
	depth := 0
	for !page.IsLeaf() {
		depth++
		if depth > t.maxDepth {
			return nil, newErr(ErrKindTreeInvariant, "max tree depth exceeded", nil)
		}
		values, err := resolveValues(page)
		if err != nil {
			return nil, pageErr(ErrKindPageMalformed, page.Number, "resolve values", err)
		}
		if len(values) == 0 {
			return &leafCursor{t: t, done: true}, nil
		}
		child, err := childPageNumber(values[0].Value)
		if err != nil {
			return nil, pageErr(ErrKindPageMalformed, page.Number, "branch child", err)
		}
		page, err = t.loadPage(child)
		if err != nil {
			return nil, err
		}
	}
	values, err := resolveValues(page)
	if err != nil {
		return nil, pageErr(ErrKindPageMalformed, page.Number, "resolve values", err)
	}
	return &leafCursor{t: t, page: page, values: values}, nil
}

// Next returns the next leaf value in order, or (nil, nil) at end of tree.
func (c *leafCursor) Next() (*PageTreeValue, error) {
	for {
		if c.done {
			return nil, nil
		}
		if c.idx < len(c.values) {
			v := c.values[c.idx]
			c.idx++
			return &v, nil
		}
		if c.page.Next == 0 {
			c.done = true
			return nil, nil
		}
		next, err := c.t.loadPage(c.page.Next)
		if err != nil {
			return nil, err
		}
		values, err := resolveValues(next)
		if err != nil {
			return nil, pageErr(ErrKindPageMalformed, next.Number, "resolve values", err)
		}
		c.page = next
		c.values = values
		c.idx = 0
	}
}
