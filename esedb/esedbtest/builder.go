// Package esedbtest builds minimal, well-formed EDB files in memory so the
// esedb package's tests can exercise Open/Tables/Records/Value end to end
// without a real database fixture on disk. It only emits the shapes the
// decoders are expected to handle: a two-tag-or-more catalog leaf page (one
// TABLE row followed by its COLUMN rows) and a single data leaf page.
package esedbtest

import (
	"encoding/binary"

	"github.com/edbkit/esedb/internal/checksum"
	"github.com/edbkit/esedb/internal/format"
)

const (
	pageSize = 4096

	slotCatalog = format.CatalogRootPage
	slotData    = 5
	totalSlots  = 10

	tableObjectID = 10
)

// Column describes one fixed-size column in a built table. Only the fixed
// data region is supported: variable and tagged columns have their own
// dedicated unit tests (record_test.go, value_test.go) at the decoder level.
type Column struct {
	Name string
	Type format.ColumnType
}

// Builder assembles a single-table EDB file. The zero value is not usable;
// construct one with New.
type Builder struct {
	tableName string
	columns   []Column
	records   [][][]byte
}

// New starts a builder for a table named tableName with the given columns,
// in catalog declaration order (column identifiers are assigned 1..N in
// that order, matching how the engine's record decoder derives a fixed
// column's position from its identifier).
func New(tableName string, columns []Column) *Builder {
	return &Builder{tableName: tableName, columns: columns}
}

// AddRecord appends one record. fields must have the same length as the
// builder's columns; a nil entry encodes SQL-style NULL (the column's null
// bitmap bit is set and no bytes are stored), and a non-nil entry must be
// exactly fixedColumnSize(column.Type) bytes, already in the column's
// on-disk encoding (e.g. 4-byte little-endian for a Long).
func (b *Builder) AddRecord(fields [][]byte) {
	b.records = append(b.records, fields)
}

// Build returns the complete file bytes, ready for iosrc.NewMemory.
func (b *Builder) Build() []byte {
	file := make([]byte, totalSlots*pageSize)
	copy(file[:pageSize], buildHeader())
	copy(file[slotCatalog*pageSize:], buildCatalogPage(b.tableName, b.columns))
	copy(file[slotData*pageSize:], buildDataPage(b.columns, b.records))
	return file
}

func buildHeader() []byte {
	buf := make([]byte, pageSize)
	binary.LittleEndian.PutUint32(buf[format.FileHeaderSignatureOffset:], format.FileHeaderSignature)
	binary.LittleEndian.PutUint32(buf[format.FileHeaderDatabaseStateOffset:], uint32(format.DatabaseStateCleanShutdown))
	binary.LittleEndian.PutUint32(buf[format.FileHeaderFormatRevisionOffset:], format.MinSupportedFormatRevision)
	binary.LittleEndian.PutUint32(buf[format.FileHeaderPageSizeOffset:], pageSize)
	binary.LittleEndian.PutUint32(buf[format.FileHeaderCreationVerOffset:], 0x620)
	binary.LittleEndian.PutUint32(buf[format.FileHeaderCreationRevOffset:], format.MinSupportedFormatRevision)

	sum := checksum.XOR32(buf[4:pageSize], format.FileHeaderChecksumSeed)
	binary.LittleEndian.PutUint32(buf[format.FileHeaderChecksumOffset:], sum)
	return buf
}

func buildCatalogPage(tableName string, columns []Column) []byte {
	pb := newPageBuilder()
	pb.addTag(nil) // tag 0: empty common key, no compression in this fixture
	pb.addTag(buildLeafTagValue([]byte{1}, buildCatalogTableEntry(tableName)))
	for i, col := range columns {
		key := []byte{byte(i + 2)}
		pb.addTag(buildLeafTagValue(key, buildCatalogColumnEntry(uint32(i+1), col)))
	}
	pb.finalize(format.ObjectIDCatalog, 0, 0, format.PageFlagIsRoot|format.PageFlagIsLeaf)
	return pb.buf
}

func buildCatalogTableEntry(name string) []byte {
	var fixed []byte
	fixed = appendU32(fixed, tableObjectID)                     // 1 father_data_page_object_id
	fixed = appendU16(fixed, uint16(format.CatalogTypeTable))   // 2 type
	fixed = appendU32(fixed, 1)                                 // 3 identifier
	fixed = appendU32(fixed, slotData)                          // 4 fdp_page_number
	fixed = appendU32(fixed, 0)                                 // 5 space_usage
	fixed = appendU32(fixed, 0)                                 // 6 flags
	fixed = appendU32(fixed, format.CodepageWindows1252)        // 7 codepage
	return buildCatalogEntry(fixed, name)
}

func buildCatalogColumnEntry(columnID uint32, col Column) []byte {
	var fixed []byte
	fixed = appendU32(fixed, tableObjectID)                       // 1 father_data_page_object_id
	fixed = appendU16(fixed, uint16(format.CatalogTypeColumn))    // 2 type
	fixed = appendU32(fixed, columnID)                            // 3 identifier
	fixed = appendU32(fixed, uint32(col.Type))                    // 4 column_type
	fixed = appendU32(fixed, uint32(fixedColumnSize(col.Type)))   // 5 space_usage
	fixed = appendU32(fixed, format.ColumnFlagFixed)              // 6 flags
	fixed = appendU32(fixed, 0)                                   // 7 codepage/lcid
	return buildCatalogEntry(fixed, col.Name)
}

// buildCatalogEntry wraps a fixed-field block and a name into one catalog
// leaf value, per the same layout parseCatalogDefinition decodes: a 4-byte
// header, the fixed fields, then a one-entry variable-size region (field
// 128, the name).
func buildCatalogEntry(fixed []byte, name string) []byte {
	nameBytes := []byte(name)
	varDataOff := format.CatalogHeaderSize + len(fixed)

	out := make([]byte, format.CatalogHeaderSize, varDataOff+2+len(nameBytes))
	out[format.CatalogHeaderLastFixedOffset] = 7
	out[format.CatalogHeaderLastVariableOffset] = byte(format.CatalogVariableFieldBase)
	binary.LittleEndian.PutUint16(out[format.CatalogHeaderVarDataOffOffset:], uint16(varDataOff))
	out = append(out, fixed...)

	cum := make([]byte, 2)
	binary.LittleEndian.PutUint16(cum, uint16(len(nameBytes)))
	out = append(out, cum...)
	out = append(out, nameBytes...)
	return out
}

func buildDataPage(columns []Column, records [][][]byte) []byte {
	pb := newPageBuilder()
	pb.addTag(nil) // tag 0: empty common key
	for i, fields := range records {
		key := []byte{byte(i + 1)}
		pb.addTag(buildLeafTagValue(key, buildRecordValue(columns, fields)))
	}
	pb.finalize(tableObjectID, 0, 0, format.PageFlagIsRoot|format.PageFlagIsLeaf)
	return pb.buf
}

// buildLeafTagValue wraps key/value into the non-common-key leaf tag shape
// resolveValues expects: a u16 local-key size, the key bytes, then the
// value bytes.
func buildLeafTagValue(key, value []byte) []byte {
	out := make([]byte, 2, 2+len(key)+len(value))
	binary.LittleEndian.PutUint16(out, uint16(len(key)))
	out = append(out, key...)
	out = append(out, value...)
	return out
}

// buildRecordValue encodes fields (one per column, in order) into the
// decodeRecord layout: a 4-byte header, a null bitmap, then the present
// fixed columns' bytes back to back. This builder never emits variable or
// tagged regions, so last_variable_size_data_type is always 0 and
// var_data_off always points past the end of the record.
func buildRecordValue(columns []Column, fields [][]byte) []byte {
	lastFixed := len(columns)
	nullBitmapBytes := (lastFixed + 7) / 8
	nullBitmap := make([]byte, nullBitmapBytes)
	var body []byte
	for i, f := range fields {
		if f == nil {
			nullBitmap[i/8] |= 1 << uint(i%8)
			continue
		}
		body = append(body, f...)
	}

	varDataOff := format.CatalogHeaderSize + nullBitmapBytes + len(body)
	header := make([]byte, format.CatalogHeaderSize)
	header[0] = byte(lastFixed)
	header[1] = 0
	binary.LittleEndian.PutUint16(header[2:], uint16(varDataOff))

	out := make([]byte, 0, varDataOff)
	out = append(out, header...)
	out = append(out, nullBitmap...)
	out = append(out, body...)
	return out
}

// fixedColumnSize mirrors the esedb package's unexported sizing table: kept
// as a separate copy here since this package builds fixtures for esedb
// rather than importing its internals.
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

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

// pageBuilder lays out one page's tag values sequentially from the end of
// the header, then writes the back-to-front tag array and checksum.
type pageBuilder struct {
	buf  []byte
	tags []tagPos
}

type tagPos struct{ off, size int }

func newPageBuilder() *pageBuilder {
	return &pageBuilder{buf: make([]byte, pageSize)}
}

func (b *pageBuilder) addTag(data []byte) {
	off := format.PageHeaderSize
	if n := len(b.tags); n > 0 {
		last := b.tags[n-1]
		off = last.off + last.size
	}
	copy(b.buf[off:], data)
	b.tags = append(b.tags, tagPos{off: off, size: len(data)})
}

func (b *pageBuilder) finalize(fdpObjectID, previous, next, flags uint32) {
	binary.LittleEndian.PutUint32(b.buf[format.PageHeaderPreviousOffset:], previous)
	binary.LittleEndian.PutUint32(b.buf[format.PageHeaderNextOffset:], next)
	binary.LittleEndian.PutUint32(b.buf[format.PageHeaderFDPObjIDOffset:], fdpObjectID)
	binary.LittleEndian.PutUint16(b.buf[format.PageHeaderAvailTagOffset:], uint16(len(b.tags)))
	binary.LittleEndian.PutUint32(b.buf[format.PageHeaderFlagsOffset:], flags)

	for i, t := range b.tags {
		entryOff := pageSize - format.PageTagEntrySize*(i+1)
		offsetWord := uint16(t.off - format.PageHeaderSize) // legacy layout, flags = 0
		sizeWord := uint16(t.size)
		binary.LittleEndian.PutUint16(b.buf[entryOff:], offsetWord)
		binary.LittleEndian.PutUint16(b.buf[entryOff+2:], sizeWord)
	}

	sum := checksum.XOR32(b.buf[4:], format.FileHeaderChecksumSeed)
	binary.LittleEndian.PutUint32(b.buf[format.PageHeaderChecksumOffset:], sum)
}
