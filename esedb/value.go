package esedb

import (
	"fmt"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/charmap"

	"github.com/edbkit/esedb/internal/format"
)

// ValueKind discriminates the variants of TypedValue.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueBool
	ValueI8
	ValueI16
	ValueI32
	ValueI64
	ValueU8
	ValueU16
	ValueU32
	ValueF32
	ValueF64
	ValueCurrency
	ValueFiletime
	ValueGUID
	ValueText
	ValueBinary
	ValueMultiValue
)

// TypedValue is a decoded column value. Exactly one accessor matching Kind
// is meaningful; the rest hold zero values.
type TypedValue struct {
	Kind  ValueKind
	Bool  bool
	I64   int64
	U64   uint64
	F64   float64
	Time  time.Time
	GUID  uuid.UUID
	Text  string
	Bytes []byte
	Multi []TypedValue
}

// decodeValue interprets raw according to colType and codepage (codepage
// is only consulted for text columns). It never consults the long-value
// engine; callers dereference long-value columns separately through C9
// before calling this, or pass the already-dereferenced bytes here.
func decodeValue(raw []byte, colType format.ColumnType, codepage uint32, columnID uint32) (TypedValue, error) {
	switch colType {
	case format.ColumnTypeBit:
		if len(raw) < 1 {
			return TypedValue{}, columnErr(ErrKindValueDecode, columnID, "bit: empty value", nil)
		}
		return TypedValue{Kind: ValueBool, Bool: raw[0] != 0}, nil

	case format.ColumnTypeUnsignedByte:
		if len(raw) < 1 {
			return TypedValue{}, columnErr(ErrKindValueDecode, columnID, "byte: empty value", nil)
		}
		return TypedValue{Kind: ValueU8, U64: uint64(raw[0])}, nil

	case format.ColumnTypeShort:
		if len(raw) < 2 {
			return TypedValue{}, columnErr(ErrKindValueDecode, columnID, "short: too small", nil)
		}
		return TypedValue{Kind: ValueI16, I64: int64(format.ReadI16(raw, 0))}, nil

	case format.ColumnTypeUnsignedShort:
		if len(raw) < 2 {
			return TypedValue{}, columnErr(ErrKindValueDecode, columnID, "unsigned short: too small", nil)
		}
		return TypedValue{Kind: ValueU16, U64: uint64(format.ReadU16(raw, 0))}, nil

	case format.ColumnTypeLong:
		if len(raw) < 4 {
			return TypedValue{}, columnErr(ErrKindValueDecode, columnID, "long: too small", nil)
		}
		return TypedValue{Kind: ValueI32, I64: int64(format.ReadI32(raw, 0))}, nil

	case format.ColumnTypeUnsignedLong:
		if len(raw) < 4 {
			return TypedValue{}, columnErr(ErrKindValueDecode, columnID, "unsigned long: too small", nil)
		}
		return TypedValue{Kind: ValueU32, U64: uint64(format.ReadU32(raw, 0))}, nil

	case format.ColumnTypeLongLong:
		if len(raw) < 8 {
			return TypedValue{}, columnErr(ErrKindValueDecode, columnID, "longlong: too small", nil)
		}
		return TypedValue{Kind: ValueI64, I64: format.ReadI64(raw, 0)}, nil

	case format.ColumnTypeCurrency:
		if len(raw) < 8 {
			return TypedValue{}, columnErr(ErrKindValueDecode, columnID, "currency: too small", nil)
		}
		return TypedValue{Kind: ValueCurrency, I64: format.ReadI64(raw, 0), F64: float64(format.ReadI64(raw, 0)) / 1e4}, nil

	case format.ColumnTypeIEEESingle:
		if len(raw) < 4 {
			return TypedValue{}, columnErr(ErrKindValueDecode, columnID, "float: too small", nil)
		}
		return TypedValue{Kind: ValueF32, F64: float64(format.ReadF32(raw, 0))}, nil

	case format.ColumnTypeIEEEDouble:
		if len(raw) < 8 {
			return TypedValue{}, columnErr(ErrKindValueDecode, columnID, "double: too small", nil)
		}
		return TypedValue{Kind: ValueF64, F64: format.ReadF64(raw, 0)}, nil

	case format.ColumnTypeDateTime:
		if len(raw) < 8 {
			return TypedValue{}, columnErr(ErrKindValueDecode, columnID, "datetime: too small", nil)
		}
		return TypedValue{Kind: ValueFiletime, Time: format.FiletimeToTime(format.ReadU64(raw, 0))}, nil

	case format.ColumnTypeGUID:
		if len(raw) < 16 {
			return TypedValue{}, columnErr(ErrKindValueDecode, columnID, "guid: too small", nil)
		}
		g, err := decodeMixedEndianGUID(raw)
		if err != nil {
			return TypedValue{}, columnErr(ErrKindValueDecode, columnID, "guid", err)
		}
		return TypedValue{Kind: ValueGUID, GUID: g}, nil

	case format.ColumnTypeText, format.ColumnTypeLongText:
		s, err := decodeCodepageText(raw, codepage)
		if err != nil {
			return TypedValue{}, columnErr(ErrKindValueDecode, columnID, "text", err)
		}
		return TypedValue{Kind: ValueText, Text: s}, nil

	case format.ColumnTypeBinary, format.ColumnTypeLongBinary, format.ColumnTypeSLV:
		return TypedValue{Kind: ValueBinary, Bytes: raw}, nil

	case format.ColumnTypeNil:
		return TypedValue{Kind: ValueNull}, nil

	default:
		return TypedValue{}, columnErr(ErrKindValueDecode, columnID,
			fmt.Sprintf("unsupported column type %d", colType), nil)
	}
}

// decodeMixedEndianGUID reads a 16-byte GUID in Microsoft's mixed-endian
// encoding: the first three fields are little-endian, the remaining eight
// bytes are big-endian (opaque).
func decodeMixedEndianGUID(raw []byte) (uuid.UUID, error) {
	var be [16]byte
	be[0], be[1], be[2], be[3] = raw[3], raw[2], raw[1], raw[0]
	be[4], be[5] = raw[5], raw[4]
	be[6], be[7] = raw[7], raw[6]
	copy(be[8:], raw[8:16])
	return uuid.FromBytes(be[:])
}

// decodeCodepageText decodes raw per column.codepage: UTF-16 for 1200
// (LE) / 1201 (BE), else an 8-bit code page (Windows-1252 stands in for
// the code-page table family; ESE's other ANSI code pages are out of
// scope for this engine). codepage 0 (unset) is treated the same as the
// default 8-bit case rather than being mistaken for Unicode.
func decodeCodepageText(raw []byte, codepage uint32) (string, error) {
	switch codepage {
	case format.CodepageUnicodeLE:
		out, err := decodeUTF16LE(raw)
		return string(out), err
	case format.CodepageUnicodeBE:
		out, err := decodeUTF16BE(raw)
		return string(out), err
	default:
		out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
}

func decodeUTF16LE(raw []byte) ([]byte, error) {
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("utf-16: odd byte length %d", len(raw))
	}
	u16 := make([]uint16, len(raw)/2)
	for i := range u16 {
		u16[i] = format.ReadU16(raw, i*2)
	}
	return []byte(string(utf16.Decode(u16))), nil
}

func decodeUTF16BE(raw []byte) ([]byte, error) {
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("utf-16: odd byte length %d", len(raw))
	}
	u16 := make([]uint16, len(raw)/2)
	for i := range u16 {
		u16[i] = uint16(raw[i*2])<<8 | uint16(raw[i*2+1])
	}
	return []byte(string(utf16.Decode(u16))), nil
}
