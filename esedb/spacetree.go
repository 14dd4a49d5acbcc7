package esedb

import (
	"github.com/edbkit/esedb/internal/format"
)

// SpaceTreeExtent is one leaf of a space tree: the last page number of a
// contiguous extent and how many pages it spans.
type SpaceTreeExtent struct {
	LastPageNumber uint32
	NumberOfPages  uint32
}

// readSpaceTree interprets the tree rooted at rootPage (an object's
// "owned extent" or "available extent" tree, found via the root page
// header's SpaceTreePageNumber) purely for validation diagnostics: the
// engine never needs space trees to answer a table/record query.
func readSpaceTree(eng *Engine, objectID, rootPage uint32) ([]SpaceTreeExtent, error) {
	tree := newPageTree(eng, objectID, rootPage)
	root, err := tree.loadPage(rootPage)
	if err != nil {
		return nil, err
	}
	if !root.IsSpaceTree() {
		return nil, newErr(ErrKindTreeInvariant, "page is not a space tree page", nil)
	}

	cursor, err := tree.newLeafCursor()
	if err != nil {
		return nil, err
	}

	var extents []SpaceTreeExtent
	for {
		v, err := cursor.Next()
		if err != nil {
			return nil, err
		}
		if v == nil {
			break
		}
		if len(v.Key) != format.SpaceTreeKeySize {
			continue // diagnostics-only reader: skip malformed entries
		}
		if len(v.Value) < format.SpaceTreeValueSize {
			continue
		}
		extents = append(extents, SpaceTreeExtent{
			LastPageNumber: format.ReadU32BE(v.Key, 0),
			NumberOfPages:  format.ReadU32(v.Value, 0),
		})
	}
	return extents, nil
}

// spaceTreePageNumber loads an object's root page and parses its root
// header to find the associated space tree's page number, or 0 if the
// object has none.
func spaceTreePageNumber(eng *Engine, objectID, objectRootPage uint32) (uint32, error) {
	tree := newPageTree(eng, objectID, objectRootPage)
	root, err := tree.loadPage(objectRootPage)
	if err != nil {
		return 0, err
	}
	if !root.IsRoot() || len(root.Values) == 0 {
		return 0, nil
	}
	header, err := parseRootPageHeader(root.Values[0].Data)
	if err != nil {
		return 0, pageErr(ErrKindPageMalformed, objectRootPage, "root header", err)
	}
	return header.SpaceTreePageNumber, nil
}

// TotalPages sums the pages owned across a set of extents, for the
// sum(number_of_pages) diagnostic named in the invariant list.
func TotalPages(extents []SpaceTreeExtent) uint64 {
	var total uint64
	for _, e := range extents {
		total += uint64(e.NumberOfPages)
	}
	return total
}
