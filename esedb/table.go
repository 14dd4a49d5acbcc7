package esedb

import (
	"fmt"

	"github.com/edbkit/esedb/internal/format"
)

// TableHandle is a bound, ready-to-query view of one table: its catalog
// definition (including inherited template columns) and the engine it
// reads pages through.
type TableHandle struct {
	eng *Engine
	def *TableDefinition

	longValues *longValueTree // nil if the table declares no LONG_VALUE row
}

func newTableHandle(eng *Engine, def *TableDefinition) *TableHandle {
	h := &TableHandle{eng: eng, def: def}
	if def.LongValue != nil {
		h.longValues = newLongValueTree(eng, def.LongValue.FDPObjectID, def.LongValue.FDPPageNumber())
	}
	return h
}

// Name returns the table's decoded name.
func (h *TableHandle) Name() string { return string(h.def.Table.Name) }

// Columns returns every column available on this table, template columns
// first, in catalog declaration order.
func (h *TableHandle) Columns() []*CatalogDefinition { return h.def.AllColumns() }

// ColumnByName returns the named column's definition, or nil.
func (h *TableHandle) ColumnByName(name string) *CatalogDefinition {
	for _, c := range h.def.AllColumns() {
		if string(c.Name) == name {
			return c
		}
	}
	return nil
}

// Records returns an iterator over every record in the table's data page
// tree, in physical key order.
func (h *TableHandle) Records() (*RecordIterator, error) {
	tree := newPageTree(h.eng, h.def.Table.FDPObjectID, h.def.Table.FDPPageNumber())
	cursor, err := tree.newLeafCursor()
	if err != nil {
		return nil, err
	}
	return &RecordIterator{table: h, cursor: cursor}, nil
}

// RecordIterator walks a table's records lazily, one leaf page at a time.
type RecordIterator struct {
	table  *TableHandle
	cursor *leafCursor
}

// Next decodes and returns the next record, or (nil, nil) at end of
// table.
func (it *RecordIterator) Next() (*Record, error) {
	v, err := it.cursor.Next()
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return decodeRecord(v.Value, v.Key, it.table.def.AllColumns())
}

// Value decodes column id's value out of rec, dereferencing a long-value
// column (LongBinary, LongText, or SLV) through the table's long-value
// tree when the stored bytes are a long-value id rather than inline
// data. codepage and columnID come from the column's own catalog
// definition so callers never have to pass them by hand.
func (h *TableHandle) Value(rec *Record, columnID uint32) (TypedValue, error) {
	col := h.columnByID(columnID)
	if col == nil {
		return TypedValue{}, newErr(ErrKindCatalogMissing, fmt.Sprintf("column %d not declared", columnID), nil)
	}
	raw, ok := rec.rawColumn(columnID)
	if !ok {
		return TypedValue{Kind: ValueNull}, nil
	}

	if isLongValueType(col.ColumnType()) {
		// A multi-value long-value column is itself stored as a single
		// long-value reference; dereference before splitting into entries
		// (see the multi-value note in SPEC_FULL.md §7).
		if tf, ok := rec.tagged[columnID]; ok && tf.multi {
			full, err := h.longValueBytesOrInline(raw, col)
			if err != nil {
				return TypedValue{}, err
			}
			return decodeMultiValue(full, col, columnID)
		}
		return h.decodeLongValue(raw, col)
	}
	if tf, ok := rec.tagged[columnID]; ok && tf.multi {
		return decodeMultiValue(raw, col, columnID)
	}
	return decodeValue(raw, col.ColumnType(), col.CodepageOrLCID, columnID)
}

// decodeMultiValue splits raw into its per-entry byte slices and decodes
// each against col's scalar type, per §4.8 step 5: "the decoder exposes
// each multi-value entry as an independent value".
func decodeMultiValue(raw []byte, col *CatalogDefinition, columnID uint32) (TypedValue, error) {
	entries := multiValueEntries(raw)
	out := make([]TypedValue, 0, len(entries))
	for _, e := range entries {
		v, err := decodeValue(e, col.ColumnType(), col.CodepageOrLCID, columnID)
		if err != nil {
			return TypedValue{}, err
		}
		out = append(out, v)
	}
	return TypedValue{Kind: ValueMultiValue, Multi: out}, nil
}

// longValueBytesOrInline dereferences raw as a long-value id when it looks
// like one (isLongValueType already gates this to long-value-typed
// columns), else returns raw unchanged.
func (h *TableHandle) longValueBytesOrInline(raw []byte, col *CatalogDefinition) ([]byte, error) {
	id, isRef := h.longValueID(raw)
	if !isRef {
		return raw, nil
	}
	if h.longValues == nil {
		return nil, newErr(ErrKindLongValueMissing, "table declares no long_value tree", nil)
	}
	return h.longValues.Read(id)
}

// LongValueBytes returns the raw assembled bytes of a long-value column
// without type conversion, for callers that want to stream binary data
// (e.g. an embedded SLV blob) without the TypedValue wrapper.
func (h *TableHandle) LongValueBytes(rec *Record, columnID uint32) ([]byte, error) {
	col := h.columnByID(columnID)
	if col == nil {
		return nil, newErr(ErrKindCatalogMissing, fmt.Sprintf("column %d not declared", columnID), nil)
	}
	raw, ok := rec.rawColumn(columnID)
	if !ok {
		return nil, nil
	}
	id, isRef := h.longValueID(raw)
	if !isRef {
		return raw, nil
	}
	if h.longValues == nil {
		return nil, newErr(ErrKindLongValueMissing, "table declares no long_value tree", nil)
	}
	return h.longValues.Read(id)
}

func (h *TableHandle) decodeLongValue(raw []byte, col *CatalogDefinition) (TypedValue, error) {
	id, isRef := h.longValueID(raw)
	if !isRef {
		return decodeValue(raw, col.ColumnType(), col.CodepageOrLCID, col.Identifier)
	}
	if h.longValues == nil {
		return TypedValue{}, newErr(ErrKindLongValueMissing, "table declares no long_value tree", nil)
	}
	full, err := h.longValues.Read(id)
	if err != nil {
		return TypedValue{}, err
	}
	return decodeValue(full, col.ColumnType(), col.CodepageOrLCID, col.Identifier)
}

// longValueID reports whether raw is a 4-byte long-value id (as opposed
// to inline data stored directly in the record) and, if so, decodes it.
// A record field references a long value by a plain 4-byte little-endian
// id; descriptorKey re-encodes it big-endian to match the on-disk
// descriptor key. Shorter or longer payloads are inline data that never
// went through the long-value tree.
func (h *TableHandle) longValueID(raw []byte) (uint32, bool) {
	if len(raw) != format.LongValueKeyIDSize {
		return 0, false
	}
	return format.ReadU32(raw, 0), true
}

func (h *TableHandle) columnByID(id uint32) *CatalogDefinition {
	for _, c := range h.def.AllColumns() {
		if c.Identifier == id {
			return c
		}
	}
	return nil
}

func isLongValueType(t format.ColumnType) bool {
	return t == format.ColumnTypeLongBinary || t == format.ColumnTypeLongText || t == format.ColumnTypeSLV
}
