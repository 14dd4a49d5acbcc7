package esedb

// IndexHandle is a bound, ready-to-query view of one secondary index: its
// catalog definition (key-column sequence, REVERSED_KEY collation) and the
// engine it reads pages through. An index tree is walked with exactly the
// same leafCursor machinery as a table's data tree, just rooted at a
// different (object_id, page) pair.
type IndexHandle struct {
	eng *Engine
	def *CatalogDefinition
}

// Indexes returns a handle for every index declared on the table.
func (h *TableHandle) Indexes() []*IndexHandle {
	out := make([]*IndexHandle, 0, len(h.def.Indexes))
	for _, idx := range h.def.Indexes {
		out = append(out, &IndexHandle{eng: h.eng, def: idx})
	}
	return out
}

// IndexByName returns the named index, or nil if the table declares none
// with that name.
func (h *TableHandle) IndexByName(name string) *IndexHandle {
	for _, idx := range h.def.Indexes {
		if string(idx.Name) == name {
			return &IndexHandle{eng: h.eng, def: idx}
		}
	}
	return nil
}

// Name returns the index's decoded name.
func (ih *IndexHandle) Name() string { return string(ih.def.Name) }

// KeyColumns returns the index's ordered sort-key column sequence.
func (ih *IndexHandle) KeyColumns() []IndexKeyColumn { return ih.def.KeyColumns() }

// Reversed reports whether this index sorts under REVERSED_KEY collation.
func (ih *IndexHandle) Reversed() bool { return ih.def.IsReversedKey() }

// IndexEntry is one decoded leaf value of an index tree: the index's own
// key bytes (already LCID-collated by whatever process built the file) and
// the referenced primary-key bytes the value carries.
type IndexEntry struct {
	Key   []byte
	Value []byte
}

// IndexEntryIterator walks an index's leaf pages in physical (ascending,
// already-collated) key order, the same guarantee RecordIterator makes for
// a table's data tree.
type IndexEntryIterator struct {
	cursor *leafCursor
}

// Entries opens an iterator over ih's leaf entries.
func (ih *IndexHandle) Entries() (*IndexEntryIterator, error) {
	tree := newPageTree(ih.eng, ih.def.FDPObjectID, ih.def.FDPPageNumber())
	cursor, err := tree.newLeafCursor()
	if err != nil {
		return nil, err
	}
	return &IndexEntryIterator{cursor: cursor}, nil
}

// Next returns the next index entry, or (nil, nil) at end of index.
func (it *IndexEntryIterator) Next() (*IndexEntry, error) {
	v, err := it.cursor.Next()
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return &IndexEntry{Key: v.Key, Value: v.Value}, nil
}
