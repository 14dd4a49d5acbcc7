package esedb

import (
	"fmt"

	"github.com/edbkit/esedb/internal/buf"
	"github.com/edbkit/esedb/internal/format"
	"golang.org/x/text/encoding/charmap"
)

// CatalogDefinition is one decoded row of the catalog page tree: a table,
// column, index, long-value, or callback descriptor.
type CatalogDefinition struct {
	FDPObjectID uint32
	Type        format.CatalogType
	Identifier  uint32

	// ColumnTypeOrFDPPage holds column_type for COLUMN rows and
	// fdp_page_number for every other row type (field 4 is a union).
	ColumnTypeOrFDPPage uint32

	SpaceUsage    uint32
	Flags         uint32
	CodepageOrLCID uint32
	RootFlag      bool
	RecordOffset  uint16
	LCMapFlags    uint32
	KeyMost       uint16

	Name []byte

	// VariableFields holds the raw bytes of every present variable-size
	// field this entry carries, keyed by its numeric field id (128 =
	// name, already broken out into Name above; everything else —
	// 129=Stats, 130=TemplateTable, 131=DefaultValue, 132=KeyFldIDs, and
	// any higher id a newer format revision introduces — is kept raw and
	// exposed by id rather than given invented semantics.
	VariableFields map[int][]byte
}

// IndexKeyColumn is one column of an index's declared sort key, decoded
// from the index catalog entry's KeyFldIDs variable field.
type IndexKeyColumn struct {
	Flags      uint8
	ColumnID   uint32
}

// CatalogIndexKeyFldIDsFieldID is the variable data type holding an index's
// ordered (flags, column_identifier) key-column sequence.
const CatalogIndexKeyFldIDsFieldID = 132

// KeyColumns decodes this entry's KeyFldIDs field into an ordered sequence
// of sort-key columns. Only meaningful when Type == CatalogTypeIndex; nil
// for every other row, or for an index with a raw field that doesn't
// divide evenly into 5-byte (flags, column_id) entries.
func (d *CatalogDefinition) KeyColumns() []IndexKeyColumn {
	raw, ok := d.VariableFields[CatalogIndexKeyFldIDsFieldID]
	if !ok || len(raw) == 0 || len(raw)%5 != 0 {
		return nil
	}
	cols := make([]IndexKeyColumn, 0, len(raw)/5)
	for off := 0; off < len(raw); off += 5 {
		cols = append(cols, IndexKeyColumn{
			Flags:    raw[off],
			ColumnID: format.ReadU32(raw, off+1),
		})
	}
	return cols
}

// IsReversedKey reports whether this index sorts under REVERSED_KEY
// collation: the whole logical key compared back-to-front rather than
// front-to-back.
func (d *CatalogDefinition) IsReversedKey() bool {
	return d.Flags&format.IndexFlagReversedKey != 0
}

// CallbackDefinition surfaces a table's CALLBACK catalog row: an
// identifier plus whatever opaque variable-field bytes it carries. ESE
// never documents the blob's contents beyond the identifier, so this
// engine does not interpret it further.
type CallbackDefinition struct {
	Identifier uint32
	Data       []byte
}

// CallbackInfo returns t's callback definition, or nil if the table declares
// none.
func (t *TableDefinition) CallbackInfo() *CallbackDefinition {
	if t.Callback == nil {
		return nil
	}
	cb := &CallbackDefinition{Identifier: t.Callback.Identifier}
	for _, raw := range t.Callback.VariableFields {
		cb.Data = raw
		break
	}
	return cb
}

// ColumnType returns field 4 interpreted as a column type; only valid for
// Type == CatalogTypeColumn.
func (d *CatalogDefinition) ColumnType() format.ColumnType {
	return format.ColumnType(d.ColumnTypeOrFDPPage)
}

// FDPPageNumber returns field 4 interpreted as an FDP page number; valid
// for every Type except CatalogTypeColumn.
func (d *CatalogDefinition) FDPPageNumber() uint32 {
	return d.ColumnTypeOrFDPPage
}

// parseCatalogDefinition decodes one catalog leaf value per §4.7: a fixed
// header, a fixed-field block whose extent is named by
// last_fixed_size_data_type, and a variable-size region holding the
// object's name and auxiliary blobs.
func parseCatalogDefinition(value []byte) (*CatalogDefinition, error) {
	if len(value) < format.CatalogHeaderSize {
		return nil, fmt.Errorf("catalog entry shorter than header")
	}
	lastFixed := int(format.ReadU8(value, format.CatalogHeaderLastFixedOffset))
	lastVariable := int(format.ReadU8(value, format.CatalogHeaderLastVariableOffset))
	varOff := int(format.ReadU16(value, format.CatalogHeaderVarDataOffOffset))

	if lastFixed < format.CatalogFixedFieldMin || lastFixed > format.CatalogFixedFieldMax {
		return nil, fmt.Errorf("last_fixed_size_data_type %d out of range [%d,%d]",
			lastFixed, format.CatalogFixedFieldMin, format.CatalogFixedFieldMax)
	}

	d := &CatalogDefinition{}
	off := format.CatalogHeaderSize
	for k := 1; k <= lastFixed; k++ {
		size := format.CatalogFixedFieldSizes[k]
		field, ok := buf.Slice(value, off, size)
		if !ok {
			return nil, fmt.Errorf("fixed field %d exceeds entry bounds", k)
		}
		switch k {
		case 1:
			d.FDPObjectID = format.ReadU32(field, 0)
		case 2:
			d.Type = format.CatalogType(format.ReadU16(field, 0))
		case 3:
			d.Identifier = format.ReadU32(field, 0)
		case 4:
			d.ColumnTypeOrFDPPage = format.ReadU32(field, 0)
		case 5:
			d.SpaceUsage = format.ReadU32(field, 0)
		case 6:
			d.Flags = format.ReadU32(field, 0)
		case 7:
			d.CodepageOrLCID = format.ReadU32(field, 0)
		case 8:
			d.RootFlag = field[0] != 0
		case 9:
			d.RecordOffset = format.ReadU16(field, 0)
		case 10:
			d.LCMapFlags = format.ReadU32(field, 0)
		case 11:
			d.KeyMost = format.ReadU16(field, 0)
		}
		off += size
	}

	if lastVariable >= format.CatalogVariableFieldBase {
		fields, err := parseCatalogVariableRegion(value, varOff, lastVariable)
		if err != nil {
			return nil, err
		}
		d.VariableFields = fields
		if raw, ok := fields[format.CatalogNameFieldID]; ok {
			name, err := decodeCatalogName(raw, d.CodepageOrLCID)
			if err != nil {
				return nil, err
			}
			d.Name = name
		}
	}

	return d, nil
}

// parseCatalogVariableRegion reads the cumulative-size array starting at
// varOff and returns every present variable field's raw bytes keyed by
// numeric field id (128 = name, 129+ are auxiliary blobs kept raw rather
// than interpreted).
func parseCatalogVariableRegion(value []byte, varOff, lastVariable int) (map[int][]byte, error) {
	count := lastVariable - format.CatalogVariableFieldBase + 1
	if count <= 0 {
		return nil, nil
	}
	if !buf.Has(value, varOff, count*2) {
		return nil, fmt.Errorf("variable-size array out of bounds")
	}
	valuesStart := varOff + count*2
	prevCum := 0
	fields := make(map[int][]byte, count)
	for i := 0; i < count; i++ {
		raw := format.ReadU16(value, varOff+i*2)
		isNull := raw&0x8000 != 0
		cum := int(raw &^ 0x8000)
		fieldID := format.CatalogVariableFieldBase + i

		if isNull {
			continue
		}
		start := valuesStart + prevCum
		end := valuesStart + cum
		if end < start || end > len(value) {
			return nil, fmt.Errorf("variable field %d bounds out of range", fieldID)
		}
		fields[fieldID] = value[start:end]
		prevCum = cum
	}
	return fields, nil
}

// decodeCatalogName decodes a catalog object's name (field 128, or a
// TemplateTable reference in field 130). Names are always Windows-1252
// regardless of the entry's own codepage field — unlike column text
// values, which honor per-column codepage/LCID. The codepage parameter is
// unused here but kept so the call sites that know a codepage (table and
// column rows alike) don't need a name/value special case.
func decodeCatalogName(raw []byte, _ uint32) ([]byte, error) {
	out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("decode name: %w", err)
	}
	return out, nil
}

// TableDefinition groups one TABLE catalog row with every catalog row
// attached to it: its columns (in catalog append order, which the record
// decoder relies on), indexes, and optional long-value/callback rows.
type TableDefinition struct {
	Table      *CatalogDefinition
	Columns    []*CatalogDefinition
	Indexes    []*CatalogDefinition
	LongValue  *CatalogDefinition
	Callback   *CatalogDefinition

	// Template, if non-nil, is the template table this table inherits
	// columns from; see Catalog.resolveTemplates.
	Template *TableDefinition
}

// AllColumns returns this table's own columns preceded by its template
// table's columns, if any, matching the inheritance order column lookups
// expect.
func (t *TableDefinition) AllColumns() []*CatalogDefinition {
	if t.Template == nil {
		return t.Columns
	}
	out := make([]*CatalogDefinition, 0, len(t.Template.Columns)+len(t.Columns))
	out = append(out, t.Template.AllColumns()...)
	out = append(out, t.Columns...)
	return out
}

// Catalog is the fully materialized result of walking the catalog page
// tree (object id 2, root page 4): every table definition, indexed both by
// name and by FDP page number.
type Catalog struct {
	tables   []*TableDefinition
	byName   map[string]*TableDefinition
	byFDPObj map[uint32]*TableDefinition
}

// readCatalog walks the catalog tree and assembles TableDefinitions per
// §4.7 steps 4-5: entries are visited in ascending key order, the stream
// must open with a TABLE row, and each subsequent row attaches to the most
// recently seen TABLE whose father_data_page_object_id matches.
func readCatalog(eng *Engine) (*Catalog, error) {
	tree := newPageTree(eng, format.ObjectIDCatalog, format.CatalogRootPage)
	cursor, err := tree.newLeafCursor()
	if err != nil {
		return nil, err
	}

	cat := &Catalog{
		byName:   make(map[string]*TableDefinition),
		byFDPObj: make(map[uint32]*TableDefinition),
	}
	var current *TableDefinition

	for {
		v, err := cursor.Next()
		if err != nil {
			return nil, err
		}
		if v == nil {
			break
		}
		def, err := parseCatalogDefinition(v.Value)
		if err != nil {
			// A malformed catalog row is fatal: the whole object graph
			// depends on this stream decoding cleanly.
			return nil, newErr(ErrKindCatalogMissing, "malformed catalog entry", err)
		}

		switch def.Type {
		case format.CatalogTypeTable:
			current = &TableDefinition{Table: def}
			cat.tables = append(cat.tables, current)
			cat.byFDPObj[def.FDPPageNumber()] = current
			if def.Name != nil {
				cat.byName[string(def.Name)] = current
			}
		case format.CatalogTypeColumn:
			if t := cat.findParent(def.FDPObjectID, current); t != nil {
				t.Columns = append(t.Columns, def)
			}
		case format.CatalogTypeIndex:
			if t := cat.findParent(def.FDPObjectID, current); t != nil {
				t.Indexes = append(t.Indexes, def)
			}
		case format.CatalogTypeLongValue:
			if t := cat.findParent(def.FDPObjectID, current); t != nil {
				t.LongValue = def
			}
		case format.CatalogTypeCallback:
			if t := cat.findParent(def.FDPObjectID, current); t != nil {
				t.Callback = def
			}
		}
	}

	cat.resolveTemplates()
	return cat, nil
}

// findParent returns the table whose FDP object id matches fdpObjectID,
// preferring the most recently seen table (the common case) before
// falling back to a full scan for out-of-order catalogs.
func (c *Catalog) findParent(fdpObjectID uint32, mostRecent *TableDefinition) *TableDefinition {
	if mostRecent != nil && mostRecent.Table.FDPObjectID == fdpObjectID {
		return mostRecent
	}
	for _, t := range c.tables {
		if t.Table.FDPObjectID == fdpObjectID {
			return t
		}
	}
	return nil
}

// resolveTemplates wires each table's Template pointer from its
// TemplateTable variable field (catalog field 130), which names another
// table in this same catalog whose columns this table inherits (ESE's
// template-table column-inheritance mechanism).
func (c *Catalog) resolveTemplates() {
	for _, t := range c.tables {
		raw, ok := t.Table.VariableFields[format.CatalogTemplateTableFieldID]
		if !ok || len(raw) == 0 {
			continue
		}
		name, err := decodeCatalogName(raw, t.Table.CodepageOrLCID)
		if err != nil {
			continue
		}
		if tmpl, ok := c.byName[string(name)]; ok && tmpl != t {
			t.Template = tmpl
		}
	}
}

// TableByName returns the table definition whose decoded name equals name,
// or nil. Lookup is a single map access on the exact decoded name.
func (c *Catalog) TableByName(name string) *TableDefinition {
	return c.byName[name]
}

// Tables returns every table definition in catalog order.
func (c *Catalog) Tables() []*TableDefinition {
	return c.tables
}
