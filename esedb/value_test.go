package esedb

import (
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edbkit/esedb/internal/format"
)

func TestDecodeValueFixedWidthTypes(t *testing.T) {
	t.Run("bit", func(t *testing.T) {
		v, err := decodeValue([]byte{1}, format.ColumnTypeBit, 0, 1)
		require.NoError(t, err)
		assert.Equal(t, ValueBool, v.Kind)
		assert.True(t, v.Bool)
	})

	t.Run("long", func(t *testing.T) {
		raw := make([]byte, 4)
		binary.LittleEndian.PutUint32(raw, uint32(int32(-42)))
		v, err := decodeValue(raw, format.ColumnTypeLong, 0, 1)
		require.NoError(t, err)
		assert.Equal(t, ValueI32, v.Kind)
		assert.EqualValues(t, -42, v.I64)
	})

	t.Run("unsigned long too small", func(t *testing.T) {
		_, err := decodeValue([]byte{1, 2}, format.ColumnTypeUnsignedLong, 0, 7)
		require.Error(t, err)
		var esErr *Error
		require.ErrorAs(t, err, &esErr)
		assert.Equal(t, ErrKindValueDecode, esErr.Kind)
		assert.EqualValues(t, 7, esErr.Column)
	})

	t.Run("double", func(t *testing.T) {
		raw := make([]byte, 8)
		binary.LittleEndian.PutUint64(raw, 0x3FF0000000000000) // 1.0
		v, err := decodeValue(raw, format.ColumnTypeIEEEDouble, 0, 1)
		require.NoError(t, err)
		assert.Equal(t, 1.0, v.F64)
	})

	t.Run("currency scales by 1e4", func(t *testing.T) {
		raw := make([]byte, 8)
		binary.LittleEndian.PutUint64(raw, 123456)
		v, err := decodeValue(raw, format.ColumnTypeCurrency, 0, 1)
		require.NoError(t, err)
		assert.InDelta(t, 12.3456, v.F64, 1e-9)
	})

	t.Run("datetime", func(t *testing.T) {
		raw := make([]byte, 8)
		binary.LittleEndian.PutUint64(raw, 116444736000000000) // unix epoch
		v, err := decodeValue(raw, format.ColumnTypeDateTime, 0, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(0), v.Time.Unix())
	})
}

func TestDecodeMixedEndianGUID(t *testing.T) {
	want := uuid.MustParse("12345678-1234-5678-1234-567812345678")
	wb := want[:]

	// Build the mixed-endian on-disk form: first 3 fields little-endian,
	// remaining 8 bytes untouched.
	disk := make([]byte, 16)
	disk[0], disk[1], disk[2], disk[3] = wb[3], wb[2], wb[1], wb[0]
	disk[4], disk[5] = wb[5], wb[4]
	disk[6], disk[7] = wb[7], wb[6]
	copy(disk[8:], wb[8:])

	v, err := decodeValue(disk, format.ColumnTypeGUID, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, ValueGUID, v.Kind)
	assert.Equal(t, want, v.GUID)
}

func TestDecodeCodepageText(t *testing.T) {
	t.Run("utf16le", func(t *testing.T) {
		raw := []byte{'h', 0, 'i', 0}
		v, err := decodeValue(raw, format.ColumnTypeText, format.CodepageUnicodeLE, 1)
		require.NoError(t, err)
		assert.Equal(t, "hi", v.Text)
	})

	t.Run("utf16be", func(t *testing.T) {
		raw := []byte{0, 'h', 0, 'i'}
		v, err := decodeValue(raw, format.ColumnTypeText, format.CodepageUnicodeBE, 1)
		require.NoError(t, err)
		assert.Equal(t, "hi", v.Text)
	})

	t.Run("windows-1252 fallback", func(t *testing.T) {
		raw := []byte("plain")
		v, err := decodeValue(raw, format.ColumnTypeLongText, format.CodepageWindows1252, 1)
		require.NoError(t, err)
		assert.Equal(t, "plain", v.Text)
	})
}

func TestDecodeValueUnsupportedType(t *testing.T) {
	_, err := decodeValue([]byte{0}, format.ColumnType(99), 0, 3)
	require.Error(t, err)
}
