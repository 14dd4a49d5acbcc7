package esedb

import (
	"fmt"
	"sort"

	"github.com/edbkit/esedb/internal/buf"
	"github.com/edbkit/esedb/internal/format"
)

// Record is a decoded leaf value from a table's data page: the raw bytes
// of every present column, keyed by column identifier, ready for typed
// conversion via TableHandle.Value.
type Record struct {
	Key []byte

	fixed    map[uint32][]byte
	variable map[uint32][]byte
	tagged   map[uint32]taggedField
}

type taggedField struct {
	value []byte
	flags uint8
	multi bool
}

// HasColumn reports whether a column (by identifier) has a present value
// in this record, in any of the three regions.
func (r *Record) HasColumn(id uint32) bool {
	if _, ok := r.fixed[id]; ok {
		return true
	}
	if _, ok := r.variable[id]; ok {
		return true
	}
	_, ok := r.tagged[id]
	return ok
}

func (r *Record) rawColumn(id uint32) ([]byte, bool) {
	if v, ok := r.fixed[id]; ok {
		return v, true
	}
	if v, ok := r.variable[id]; ok {
		return v, true
	}
	if v, ok := r.tagged[id]; ok {
		return v.value, true
	}
	return nil, false
}

// decodeRecord projects a leaf value onto its table's declared columns, per
// §4.8. columns must be in catalog append order (ascending by the order
// they were encountered, which AllColumns already provides); fixed/variable
// region positions are derived from each column's own Identifier rather
// than re-deriving a position, mirroring how the on-disk format assigns
// identifiers 1..N to fixed columns and 128..N to variable columns in
// declaration order.
func decodeRecord(value []byte, key []byte, columns []*CatalogDefinition) (*Record, error) {
	if len(value) < format.CatalogHeaderSize {
		return nil, fmt.Errorf("record shorter than header")
	}
	lastFixed := int(format.ReadU8(value, 0))
	lastVariable := int(format.ReadU8(value, 1))
	varDataOff := int(format.ReadU16(value, 2))

	fixedCols, variableCols, _ := classifyColumns(columns)

	rec := &Record{
		Key:      key,
		fixed:    make(map[uint32][]byte),
		variable: make(map[uint32][]byte),
		tagged:   make(map[uint32]taggedField),
	}

	nullBitmapBytes := (lastFixed + 7) / 8
	nullBitmap, ok := buf.Slice(value, format.CatalogHeaderSize, nullBitmapBytes)
	if !ok {
		return nil, fmt.Errorf("record: null bitmap exceeds record bounds")
	}

	off := format.CatalogHeaderSize + nullBitmapBytes
	for _, col := range sortedByIdentifier(fixedCols) {
		k := int(col.Identifier)
		if k < 1 || k > lastFixed {
			continue
		}
		isNull := nullBitmap[(k-1)/8]&(1<<uint((k-1)%8)) != 0
		size := fixedColumnSize(col.ColumnType())
		if isNull {
			continue
		}
		field, ok := buf.Slice(value, off, size)
		if !ok {
			return nil, columnErr(ErrKindRecordMalformed, col.Identifier, "fixed column exceeds record bounds", nil)
		}
		rec.fixed[col.Identifier] = field
		off += size
	}

	valuesStart := varDataOff
	if lastVariable >= format.CatalogVariableFieldBase {
		count := lastVariable - format.CatalogVariableFieldBase + 1
		if !buf.Has(value, varDataOff, count*2) {
			return nil, fmt.Errorf("record: variable-size array out of bounds")
		}
		valuesStart = varDataOff + count*2
		prevCum := 0
		for i := 0; i < count; i++ {
			raw := format.ReadU16(value, varDataOff+i*2)
			isNull := raw&0x8000 != 0
			cum := int(raw &^ 0x8000)
			fieldID := uint32(format.CatalogVariableFieldBase + i)

			if !isNull {
				start := valuesStart + prevCum
				end := valuesStart + cum
				if end < start || end > len(value) {
					return nil, columnErr(ErrKindRecordMalformed, fieldID, "variable column bounds", nil)
				}
				if col, ok := variableCols[fieldID]; ok {
					rec.variable[col.Identifier] = value[start:end]
				}
				prevCum = cum
			}
		}
		valuesStart += prevCum
	}

	if valuesStart < len(value) {
		if err := decodeTaggedRegion(value[valuesStart:], rec); err != nil {
			return nil, err
		}
	}

	return rec, nil
}

func classifyColumns(columns []*CatalogDefinition) (fixed, variable map[uint32]*CatalogDefinition, tagged map[uint32]*CatalogDefinition) {
	fixed = make(map[uint32]*CatalogDefinition)
	variable = make(map[uint32]*CatalogDefinition)
	tagged = make(map[uint32]*CatalogDefinition)
	for _, c := range columns {
		switch {
		case c.Flags&format.ColumnFlagFixed != 0:
			fixed[c.Identifier] = c
		case c.Flags&format.ColumnFlagTagged != 0:
			tagged[c.Identifier] = c
		default:
			variable[c.Identifier] = c
		}
	}
	return fixed, variable, tagged
}

// fixedColumnsSorted isn't needed separately: decodeRecord iterates
// classifyColumns' fixed map values in identifier order via this helper,
// since Go map iteration order is unspecified.
func sortedByIdentifier(cols map[uint32]*CatalogDefinition) []*CatalogDefinition {
	out := make([]*CatalogDefinition, 0, len(cols))
	for _, c := range cols {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

func fixedColumnSize(t format.ColumnType) int {
	switch t {
	case format.ColumnTypeBit, format.ColumnTypeUnsignedByte:
		return 1
	case format.ColumnTypeShort, format.ColumnTypeUnsignedShort:
		return 2
	case format.ColumnTypeLong, format.ColumnTypeUnsignedLong, format.ColumnTypeIEEESingle:
		return 4
	case format.ColumnTypeCurrency, format.ColumnTypeIEEEDouble, format.ColumnTypeDateTime, format.ColumnTypeLongLong:
		return 8
	case format.ColumnTypeGUID:
		return 16
	default:
		return 0
	}
}

// decodeTaggedRegion parses the tagged-data-types table and fills
// rec.tagged. Entries are 4 bytes: a u16 identifier followed by a u16
// whose top 3 bits carry per-value flags (TaggedFlagVariable,
// TaggedFlagCompressed, TaggedFlagMultiValue) and whose low 13 bits are
// the value's offset within the tagged-value area immediately following
// the entry table. A zero identifier or running off the end of the
// record terminates the table. Unknown identifiers (columns dropped since
// the record was written) are kept in rec.tagged rather than rejected;
// only Value() consults the column catalog.
func decodeTaggedRegion(region []byte, rec *Record) error {
	type entry struct {
		id     uint16
		offset int
		flags  uint8
	}
	var entries []entry
	i := 0
	for i+4 <= len(region) {
		id := format.ReadU16(region, i)
		if id == 0 {
			break
		}
		offsetWord := format.ReadU16(region, i+2)
		flags := uint8(offsetWord >> 13)
		offset := int(offsetWord & 0x1FFF)
		entries = append(entries, entry{id: id, offset: offset, flags: flags})
		i += 4
	}
	if len(entries) == 0 {
		return nil
	}
	tagValuesStart := i

	for n, e := range entries {
		start := tagValuesStart + e.offset
		end := len(region)
		if n+1 < len(entries) {
			end = tagValuesStart + entries[n+1].offset
		}
		if start < 0 || end < start || end > len(region) {
			return columnErr(ErrKindRecordMalformed, uint32(e.id), "tagged column offset out of range", nil)
		}
		rec.tagged[uint32(e.id)] = taggedField{
			value: region[start:end],
			flags: e.flags,
			multi: e.flags&format.TaggedFlagMultiValue != 0,
		}
	}
	return nil
}

// multiValueEntries splits a tagged column's bytes into its individual
// entries per §4.8 step 5: a multi-valued column stores a leading table of
// u16 cumulative offsets (the first entry's offset, divided by 2, gives the
// entry count) followed by the concatenated entry bytes. Unlike the outer
// tagged-data-types table (see decodeTaggedRegion), the offsets here are
// relative to the start of raw.
// Bytes that do not look like a valid offset table (e.g. a record written
// before the column ever held more than one value) are returned as a
// single entry rather than rejected, since a scalar value is always a
// legal (degenerate) multi-value.
func multiValueEntries(raw []byte) [][]byte {
	if len(raw) < 2 {
		return [][]byte{raw}
	}
	first := int(format.ReadU16(raw, 0))
	if first == 0 || first%2 != 0 || first > len(raw) {
		return [][]byte{raw}
	}
	count := first / 2
	if count < 1 || count*2 > len(raw) {
		return [][]byte{raw}
	}
	offsets := make([]int, count)
	for i := 0; i < count; i++ {
		offsets[i] = int(format.ReadU16(raw, i*2))
	}
	out := make([][]byte, 0, count)
	for i, start := range offsets {
		end := len(raw)
		if i+1 < count {
			end = offsets[i+1]
		}
		if start < 0 || end < start || end > len(raw) {
			return [][]byte{raw}
		}
		out = append(out, raw[start:end])
	}
	return out
}
