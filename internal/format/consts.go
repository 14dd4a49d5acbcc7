// Package format houses low-level decoders for the Extensible Storage
// Engine (ESE/EDB) database file format. The goal is to keep the parsing
// focused, allocation-free where possible, and independent from the public
// API so higher-level packages can orchestrate the data in a more
// ergonomic form.
package format

const (
	// FileHeaderSignature is the magic value stored at offset 4 of every
	// EDB file, little-endian on disk as 0xEF 0xCD 0xAB 0x89.
	FileHeaderSignature uint32 = 0x89ABCDEF

	// FileHeaderChecksumSeed seeds the XOR-32 checksum computed over the
	// header, starting at byte 4 (past the checksum field itself).
	FileHeaderChecksumSeed uint32 = 0x89abcdef
)

// File-header field offsets (fixed layout at file offset 0).
const (
	FileHeaderChecksumOffset        = 0x000 // u32, stored XOR-32
	FileHeaderSignatureOffset       = 0x004 // u32
	FileHeaderFormatVersionOffset   = 0x008 // u32
	FileHeaderFileTypeOffset        = 0x00C // u32, 0=database 1=streaming log
	FileHeaderDatabaseTimeOffset    = 0x010 // 8 bytes
	FileHeaderDatabaseSigOffset     = 0x018 // 28 bytes
	FileHeaderDatabaseStateOffset   = 0x034 // u32
	FileHeaderConsistentPosOffset   = 0x038 // 8 bytes
	FileHeaderConsistentTimeOffset  = 0x040 // 8 bytes
	FileHeaderAttachTimeOffset      = 0x048 // 8 bytes
	FileHeaderAttachPosOffset       = 0x050 // 8 bytes
	FileHeaderDetachTimeOffset      = 0x058 // 8 bytes
	FileHeaderDetachPosOffset       = 0x060 // 8 bytes
	FileHeaderFormatRevisionOffset  = 0x0EC // u32 (236)
	FileHeaderPageSizeOffset        = 0x0F0 // u32 (240)
	FileHeaderCreationVerOffset     = 0x0F4 // u32 (244)
	FileHeaderCreationRevOffset     = 0x0F8 // u32 (248)

	// FileHeaderMinSize is the minimum number of header bytes the core
	// decoder reads; the remainder of the header page is vendor scratch
	// space the engine never interprets.
	FileHeaderMinSize = FileHeaderCreationRevOffset + 4
)

// DatabaseState enumerates the legal values of the database_state field.
type DatabaseState uint32

const (
	DatabaseStateJustCreated  DatabaseState = 1
	DatabaseStateDirtyShutdown DatabaseState = 2
	DatabaseStateCleanShutdown DatabaseState = 3
	DatabaseStateBeingConverted DatabaseState = 4
	DatabaseStateForceDetach  DatabaseState = 5
)

// String names the database_state value for diagnostic reporting; unknown
// values pass through numerically rather than panicking.
func (s DatabaseState) String() string {
	switch s {
	case DatabaseStateJustCreated:
		return "just created"
	case DatabaseStateDirtyShutdown:
		return "dirty shutdown"
	case DatabaseStateCleanShutdown:
		return "clean shutdown"
	case DatabaseStateBeingConverted:
		return "being converted"
	case DatabaseStateForceDetach:
		return "forced detach"
	default:
		return "unknown"
	}
}

// SupportedPageSizes lists the page sizes the engine can load.
var SupportedPageSizes = map[uint32]bool{
	2048:  true,
	4096:  true,
	8192:  true,
	16384: true,
	32768: true,
}

// ExtendedHeaderMinRevision and ExtendedHeaderMinPageSize gate the 40-byte
// extended page header: it is present only for pages this new and this
// large.
const (
	ExtendedHeaderMinRevision = 17
	ExtendedHeaderMinPageSize = 16384
)

// Page header field offsets (40-byte common header, present on every page).
const (
	PageHeaderChecksumOffset   = 0x00 // u32, XOR-32 (legacy) seed 0x89abcdef
	PageHeaderPageNumberOffset = 0x04 // u32, or ECC-32 checksum in new-record-format
	PageHeaderModTimeOffset    = 0x08 // 8 bytes, database time
	PageHeaderPreviousOffset   = 0x10 // u32
	PageHeaderNextOffset       = 0x14 // u32
	PageHeaderFDPObjIDOffset   = 0x18 // u32
	PageHeaderAvailDataOffset  = 0x1C // u16
	PageHeaderAvailUncOffset   = 0x1E // u16
	PageHeaderAvailDataOffOffset = 0x20 // u16
	PageHeaderAvailTagOffset   = 0x22 // u16
	PageHeaderFlagsOffset      = 0x24 // u32

	// PageHeaderSize is the size of the common (legacy) header.
	PageHeaderSize = 0x28 // 40 bytes
)

// Extended page header (revision >= 17, page size >= 16KiB), immediately
// following the 40-byte common header.
const (
	PageExtChecksum1Offset  = 0x00 // 8 bytes
	PageExtChecksum2Offset  = 0x08 // 8 bytes
	PageExtChecksum3Offset  = 0x10 // 8 bytes
	PageExtPageNumberOffset = 0x18 // 8 bytes
	PageExtUnknownOffset    = 0x20 // 8 bytes

	PageExtHeaderSize = 0x28 // 40 bytes

	// PageHeaderSizeExtended is the total header size when the extended
	// header is present.
	PageHeaderSizeExtended = PageHeaderSize + PageExtHeaderSize // 80 bytes
)

// Page flag bits (32-bit bitfield at PageHeaderFlagsOffset).
const (
	PageFlagIsRoot             uint32 = 0x00000001
	PageFlagIsLeaf             uint32 = 0x00000002
	PageFlagIsParent           uint32 = 0x00000004
	PageFlagIsEmpty            uint32 = 0x00000008
	PageFlagIsSpaceTree        uint32 = 0x00000020
	PageFlagIsIndex            uint32 = 0x00000040
	PageFlagIsLongValue        uint32 = 0x00000080
	PageFlagIsNewRecordFormat  uint32 = 0x00002000
	// Vendor/reserved bits observed in the wild; never interpreted.
	PageFlagVendor0400 uint32 = 0x00000400
	PageFlagVendor0800 uint32 = 0x00000800
)

// Page tag array: available_page_tag entries of 2 u16 words each, stored
// back-to-front starting at the last 4 bytes of the page.
const (
	PageTagEntrySize = 4 // offset word + size word, both u16

	// Legacy layout: flags occupy the top 3 bits of the offset word, the
	// low 13 bits are the offset.
	PageTagLegacyOffsetMask = 0x1FFF
	PageTagLegacyFlagsShift = 13

	// Extended layout: offset/size are 15-bit values; true per-value
	// flags are read from the high 3 bits of the value's second byte.
	PageTagExtendedOffsetMask = 0x7FFF
	PageTagExtendedSizeMask   = 0x7FFF
)

// Tag (page value) flags, whichever layout they were read from.
const (
	TagFlagUnknown0x01      uint8 = 0x01
	TagFlagHasCommonKeySize uint8 = 0x02
	TagFlagDefunct          uint8 = 0x04
)

// Root-page header, parsed from tag 0 of a page with PageFlagIsRoot set.
const (
	RootHeaderInitialPagesOffset  = 0x00 // u32
	RootHeaderParentFDPOffset     = 0x04 // u32
	RootHeaderExtentSpaceOffset   = 0x08 // u32
	RootHeaderSpaceTreePageOffset = 0x0C // u32

	// RootHeaderSize is the minimum root-page header size; extended
	// variants carry additional trailing bytes the engine ignores.
	RootHeaderSize = 0x10
)

// Space-tree leaf value: {last_page_number: u32 BE, number_of_pages: u32}.
const (
	SpaceTreeKeySize           = 4
	SpaceTreeValueSize         = 4
	SpaceTreeLastPageKeyLength = SpaceTreeKeySize
)

// Catalog definition header and fixed-field table (§4.7).
const (
	CatalogHeaderLastFixedOffset    = 0x00 // u8
	CatalogHeaderLastVariableOffset = 0x01 // u8
	CatalogHeaderVarDataOffOffset   = 0x02 // u16 LE
	CatalogHeaderSize               = 0x04

	// CatalogFixedFieldMin and CatalogFixedFieldMax bound
	// last_fixed_size_data_type; values outside this range are malformed.
	CatalogFixedFieldMin = 5
	CatalogFixedFieldMax = 11

	// CatalogVariableFieldBase is the first variable data type number.
	CatalogVariableFieldBase = 128

	// CatalogNameFieldID is the variable data type holding the object's
	// display name.
	CatalogNameFieldID = 128

	// CatalogTemplateTableFieldID is the variable data type holding a
	// table's template-table name, when the table inherits columns from
	// one.
	CatalogTemplateTableFieldID = 130
)

// CatalogType enumerates the type field of a catalog definition.
type CatalogType uint16

const (
	CatalogTypeTable     CatalogType = 1
	CatalogTypeColumn    CatalogType = 2
	CatalogTypeIndex     CatalogType = 3
	CatalogTypeLongValue CatalogType = 4
	CatalogTypeCallback  CatalogType = 5
)

// CatalogFixedFieldSizes gives the byte size of each fixed field, indexed
// by its 1-based position (field k occupies CatalogFixedFieldSizes[k];
// index 0 is unused).
var CatalogFixedFieldSizes = [...]int{
	1: 4, // father_data_page_object_id
	2: 2, // type
	3: 4, // identifier
	4: 4, // column_type | fdp_page_number
	5: 4, // space_usage
	6: 4, // flags
	7: 4, // codepage | lcid | number_of_pages
	8: 1, // root_flag
	9: 2, // record_offset
	10: 4, // lc_map_flags
	11: 2, // key_most
}

// ColumnType enumerates ESE column data types.
type ColumnType uint32

const (
	ColumnTypeNil          ColumnType = 0
	ColumnTypeBit          ColumnType = 1
	ColumnTypeUnsignedByte ColumnType = 2
	ColumnTypeShort        ColumnType = 3
	ColumnTypeLong         ColumnType = 4
	ColumnTypeCurrency     ColumnType = 5
	ColumnTypeIEEESingle   ColumnType = 6
	ColumnTypeIEEEDouble   ColumnType = 7
	ColumnTypeDateTime     ColumnType = 8
	ColumnTypeBinary       ColumnType = 9
	ColumnTypeText         ColumnType = 10
	ColumnTypeLongBinary   ColumnType = 11
	ColumnTypeLongText     ColumnType = 12
	ColumnTypeSLV          ColumnType = 13 // super-long value
	ColumnTypeUnsignedLong ColumnType = 14
	ColumnTypeLongLong     ColumnType = 15
	ColumnTypeGUID         ColumnType = 16
	ColumnTypeUnsignedShort ColumnType = 17
)

// Index catalog entry flags (field 6, interpreted for Type == CatalogTypeIndex).
const (
	IndexFlagUnique       uint32 = 0x00000001
	IndexFlagPrimary      uint32 = 0x00000002
	IndexFlagReversedKey  uint32 = 0x00000080
)

// Column flags (subset meaningful to the record decoder).
const (
	ColumnFlagFixed      uint32 = 0x00000001
	ColumnFlagTagged     uint32 = 0x00000002
	ColumnFlagNotNull    uint32 = 0x00000004
	ColumnFlagVersion    uint32 = 0x00000008
	ColumnFlagAutoincrement uint32 = 0x00000010
	ColumnFlagMultiValued uint32 = 0x00000400
)

// Tagged-column value flags: the top 3 bits of a tagged entry's offset
// word (§4.8), decoded into a 0..7 flag byte.
const (
	TaggedFlagVariable   uint8 = 0x01
	TaggedFlagCompressed uint8 = 0x02
	TaggedFlagMultiValue uint8 = 0x04
)

// Object identifiers with fixed meaning.
const (
	ObjectIDRoot    uint32 = 1
	ObjectIDCatalog uint32 = 2

	// CatalogRootPage is the fixed root page number of the catalog tree.
	CatalogRootPage uint32 = 4
)

// Long-value key layout. A 4-byte key names the descriptor; an 8-byte key
// names a data segment. Both halves are big-endian on disk.
const (
	LongValueKeyIDSize         = 4
	LongValueDescriptorKeyLen  = LongValueKeyIDSize
	LongValueSegmentKeyLen     = LongValueKeyIDSize + 4
	LongValueDescriptorMinSize = 8 // total_size u32 + reference_count u32
)

// Codepages relevant to text decoding. 1200/1201 are UTF-16; everything
// else is routed through an 8-bit code page table (Windows-1252 by
// default).
const (
	CodepageUnicodeLE  uint32 = 1200
	CodepageUnicodeBE  uint32 = 1201
	CodepageWindows1252 uint32 = 1252
	CodepageASCII       uint32 = 20127
	CodepageDefault     uint32 = CodepageWindows1252
)

// Recursion guard for page-tree descent.
const DefaultMaxTreeDepth = 256

// MinSupportedFormatRevision and the isolated 11 (new-record-format) and
// 6 (pre-Exchange-2003-SP1) revisions below it are the format revisions the
// engine recognises. 12 and every revision above it (17+ additionally
// switching on the extended page header, gated separately by
// ExtendedHeaderMinRevision) are all supported: the format has been
// revision-stable from 12 onward, so the engine treats "12 or newer" as one
// supported band rather than enumerating every point revision Microsoft has
// shipped.
const MinSupportedFormatRevision = 12

// IsSupportedFormatRevision reports whether rev is a format revision this
// engine can parse.
func IsSupportedFormatRevision(rev uint32) bool {
	return rev == 6 || rev == 11 || rev >= MinSupportedFormatRevision
}

const (
	// SignatureSize is the size in bytes of a two-character cell/record
	// signature field, retained for symmetry with sibling formats; ESE
	// pages do not carry per-value signatures, and nothing in this module
	// references it.
	SignatureSize = 2

	// OffsetFieldSize is the width of a little-endian page/cell offset
	// field as it commonly appears in on-disk structures (branch child
	// pointers, blocklist entries).
	OffsetFieldSize = 4

	// DWORDSize and QWORDSize describe fixed-width integer encodings used
	// throughout fixed-column decoding.
	DWORDSize = 4
	QWORDSize = 8
)
