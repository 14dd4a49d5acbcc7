package checksum

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestXOR32Empty(t *testing.T) {
	require.Equal(t, uint32(0x89abcdef), XOR32(nil, 0x89abcdef))
}

func TestXOR32SingleWord(t *testing.T) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, 0x11223344)

	got := XOR32(buf, 0)
	require.Equal(t, uint32(0x11223344), got)
}

func TestXOR32SelfCancelling(t *testing.T) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], 0xdeadbeef)
	binary.LittleEndian.PutUint32(buf[4:8], 0xdeadbeef)

	require.Equal(t, uint32(0x89abcdef), XOR32(buf, 0x89abcdef))
}

func TestXOR32OddTail(t *testing.T) {
	buf := []byte{0x01, 0x00, 0x00, 0x00, 0xff}
	got := XOR32(buf, 0)
	require.Equal(t, uint32(0x01)^uint32(0xff), got)
}

func TestECC32Deterministic(t *testing.T) {
	page := make([]byte, 4096)
	for i := range page {
		page[i] = byte(i * 7)
	}

	ecc1, xor1 := ECC32(page, 8, 42)
	ecc2, xor2 := ECC32(page, 8, 42)

	require.Equal(t, ecc1, ecc2)
	require.Equal(t, xor1, xor2)
}

func TestECC32SensitiveToMutation(t *testing.T) {
	page := make([]byte, 4096)
	for i := range page {
		page[i] = byte(i)
	}
	ecc1, xor1 := ECC32(page, 8, 1)

	page[100] ^= 0xff
	ecc2, xor2 := ECC32(page, 8, 1)

	require.False(t, ecc1 == ecc2 && xor1 == xor2, "flipping a byte must change at least one checksum")
}

func TestECC32SmallBufferMask(t *testing.T) {
	small := make([]byte, 2048)
	large := make([]byte, 8192)
	for i := range small {
		small[i] = byte(i)
	}
	for i := range large {
		large[i] = byte(i)
	}

	eccSmall, _ := ECC32(small, 0, 0)
	eccLarge, _ := ECC32(large, 0, 0)

	// The size<8192 branch clears high bits proportional to size; the two
	// buffers share a content prefix but must not collide on the masked
	// high word purely by coincidence of this test's fixture.
	require.NotEqual(t, eccSmall, eccLarge)
}
