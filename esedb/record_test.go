package esedb

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edbkit/esedb/internal/format"
)

// buildRecord assembles a minimal on-disk record value: a two-column fixed
// region (one Long, one Bit), a single variable Text column, and
// a single tagged Long column. Byte layout follows §4.8 exactly so the
// test doubles as a literal documentation of the format.
func buildRecord(t *testing.T) []byte {
	t.Helper()

	var b []byte
	b = append(b, 2, 128) // last_fixed_size_data_type=2, last_variable_data_type=128
	varDataOff := uint16(10)
	b = append(b, byte(varDataOff), byte(varDataOff>>8))

	b = append(b, 0x00) // null bitmap, 1 byte, no nulls

	fixedLong := make([]byte, 4)
	binary.LittleEndian.PutUint32(fixedLong, 7)
	b = append(b, fixedLong...) // column 1 (Long)
	b = append(b, 1)            // column 2 (Bit) = true

	require.EqualValues(t, varDataOff, len(b))

	cumSize := uint16(2)
	b = append(b, byte(cumSize), byte(cumSize>>8))
	b = append(b, 'h', 'i') // variable column 128 (Text, Windows-1252)

	offsetWord := uint16(0) // flags=0, offset=0
	b = append(b, byte(256), byte(256>>8))
	b = append(b, byte(offsetWord), byte(offsetWord>>8))
	taggedLong := make([]byte, 4)
	binary.LittleEndian.PutUint32(taggedLong, 99)
	b = append(b, taggedLong...)

	return b
}

func testColumns() []*CatalogDefinition {
	mk := func(id uint32, flags uint32, colType format.ColumnType) *CatalogDefinition {
		return &CatalogDefinition{Identifier: id, Flags: flags, ColumnTypeOrFDPPage: uint32(colType)}
	}
	return []*CatalogDefinition{
		mk(1, format.ColumnFlagFixed, format.ColumnTypeLong),
		mk(2, format.ColumnFlagFixed, format.ColumnTypeBit),
		mk(128, 0, format.ColumnTypeText),
		mk(256, format.ColumnFlagTagged, format.ColumnTypeLong),
	}
}

func TestDecodeRecordAllRegions(t *testing.T) {
	value := buildRecord(t)
	rec, err := decodeRecord(value, []byte("key"), testColumns())
	require.NoError(t, err)

	assert.True(t, rec.HasColumn(1))
	assert.True(t, rec.HasColumn(2))
	assert.True(t, rec.HasColumn(128))
	assert.True(t, rec.HasColumn(256))
	assert.False(t, rec.HasColumn(999))

	fixedLong, ok := rec.rawColumn(1)
	require.True(t, ok)
	assert.EqualValues(t, 7, int32(binary.LittleEndian.Uint32(fixedLong)))

	fixedBit, ok := rec.rawColumn(2)
	require.True(t, ok)
	assert.Equal(t, []byte{1}, fixedBit)

	varText, ok := rec.rawColumn(128)
	require.True(t, ok)
	assert.Equal(t, "hi", string(varText))

	tagged, ok := rec.tagged[256]
	require.True(t, ok)
	assert.EqualValues(t, 99, int32(binary.LittleEndian.Uint32(tagged.value)))
	assert.False(t, tagged.multi)
}

func TestDecodeRecordNullFixedColumnSkipsBytes(t *testing.T) {
	value := buildRecord(t)
	value[4] = 0x01 // set bit 0: column 1 is null

	rec, err := decodeRecord(value, nil, testColumns())
	require.NoError(t, err)
	assert.False(t, rec.HasColumn(1))
	// Column 2 still decodes even though column 1's bytes were skipped.
	assert.True(t, rec.HasColumn(2))
}

func TestDecodeRecordTruncatedHeaderFails(t *testing.T) {
	_, err := decodeRecord([]byte{1, 2}, nil, testColumns())
	require.Error(t, err)
}

func TestDecodeRecordFixedColumnOutOfBoundsFails(t *testing.T) {
	value := buildRecord(t)
	truncated := value[:6] // cuts the Long column's 4 bytes short
	_, err := decodeRecord(truncated, nil, testColumns())
	require.Error(t, err)
	var esErr *Error
	require.ErrorAs(t, err, &esErr)
	assert.Equal(t, ErrKindRecordMalformed, esErr.Kind)
}

func TestDecodeTaggedRegionMultiValueFlag(t *testing.T) {
	var region []byte
	offsetWord := uint16(format.TaggedFlagMultiValue) << 13
	region = append(region, byte(300), byte(300>>8))
	region = append(region, byte(offsetWord), byte(offsetWord>>8))
	region = append(region, 'a', 'b', 'c')

	rec := &Record{tagged: make(map[uint32]taggedField)}
	require.NoError(t, decodeTaggedRegion(region, rec))

	f, ok := rec.tagged[300]
	require.True(t, ok)
	assert.True(t, f.multi)
	assert.Equal(t, "abc", string(f.value))
}
