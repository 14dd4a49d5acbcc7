package esedb

import (
	"fmt"

	"github.com/edbkit/esedb/internal/format"
)

// longValueDescriptor is the 4-byte-key leaf of a long-value tree: the
// logical size and reference count of one long-value id.
type longValueDescriptor struct {
	TotalSize      uint32
	ReferenceCount uint32
}

// longValueTree resolves long-value ids against the page tree rooted at a
// table's long_value catalog row.
type longValueTree struct {
	tree *pageTree
}

func newLongValueTree(eng *Engine, fdpObjectID, rootPage uint32) *longValueTree {
	return &longValueTree{tree: newPageTree(eng, fdpObjectID, rootPage)}
}

// descriptorKey and segmentKey build the big-endian lookup keys described
// in §3 ("Long-value key"): the id is stored big-endian for lexicographic
// (and therefore numeric) leaf ordering.
func descriptorKey(id uint32) []byte {
	return []byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}
}

func segmentKeyPrefix(id uint32) []byte {
	return descriptorKey(id)
}

// Read assembles the full value for long-value id by locating its
// descriptor, then walking every segment leaf whose id matches, copying
// each into its declared offset. Per (P6)/(I7), every byte of the result
// must be covered exactly once.
func (lt *longValueTree) Read(id uint32) ([]byte, error) {
	descBytes, err := lt.tree.find(descriptorKey(id), false)
	if err != nil {
		return nil, err
	}
	if descBytes == nil {
		return nil, newErr(ErrKindLongValueMissing, fmt.Sprintf("long value %d: no descriptor", id), nil)
	}
	if len(descBytes.Value) < format.LongValueDescriptorMinSize {
		return nil, newErr(ErrKindLongValueMissing, fmt.Sprintf("long value %d: descriptor too short", id), nil)
	}
	desc := longValueDescriptor{
		TotalSize:      format.ReadU32(descBytes.Value, 0),
		ReferenceCount: format.ReadU32(descBytes.Value, 4),
	}

	buf := make([]byte, desc.TotalSize)
	covered := make([]bool, desc.TotalSize)

	cursor, err := lt.tree.newLeafCursor()
	if err != nil {
		return nil, err
	}
	prefix := segmentKeyPrefix(id)
	started := false
	for {
		v, err := cursor.Next()
		if err != nil {
			return nil, err
		}
		if v == nil {
			break
		}
		if len(v.Key) != format.LongValueSegmentKeyLen {
			continue
		}
		if !bytesHasPrefix(v.Key, prefix) {
			if started {
				break // ids are big-endian and sorted; once we pass id, stop
			}
			continue
		}
		started = true
		segOff := format.ReadU32BE(v.Key, format.LongValueKeyIDSize)
		end := uint64(segOff) + uint64(len(v.Value))
		if end > uint64(desc.TotalSize) {
			return nil, newErr(ErrKindLongValueMissing,
				fmt.Sprintf("long value %d: segment at %d+%d exceeds declared size %d", id, segOff, len(v.Value), desc.TotalSize), nil)
		}
		copy(buf[segOff:end], v.Value)
		for i := segOff; uint64(i) < end; i++ {
			if covered[i] {
				return nil, newErr(ErrKindLongValueMissing, fmt.Sprintf("long value %d: overlapping segment at byte %d", id, i), nil)
			}
			covered[i] = true
		}
	}

	for i, ok := range covered {
		if !ok {
			return nil, newErr(ErrKindLongValueMissing, fmt.Sprintf("long value %d: byte %d never written", id, i), nil)
		}
	}
	return buf, nil
}

// ReadRange returns buf[offset:offset+length] without materializing bytes
// outside that window, by clipping each segment to the requested range
// before copying.
func (lt *longValueTree) ReadRange(id uint32, offset, length uint64) ([]byte, error) {
	descBytes, err := lt.tree.find(descriptorKey(id), false)
	if err != nil {
		return nil, err
	}
	if descBytes == nil {
		return nil, newErr(ErrKindLongValueMissing, fmt.Sprintf("long value %d: no descriptor", id), nil)
	}
	totalSize := format.ReadU32(descBytes.Value, 0)
	if offset+length > uint64(totalSize) {
		return nil, newErr(ErrKindLongValueMissing, fmt.Sprintf("long value %d: range exceeds size %d", id, totalSize), nil)
	}

	out := make([]byte, length)
	cursor, err := lt.tree.newLeafCursor()
	if err != nil {
		return nil, err
	}
	prefix := segmentKeyPrefix(id)
	for {
		v, err := cursor.Next()
		if err != nil {
			return nil, err
		}
		if v == nil {
			break
		}
		if len(v.Key) != format.LongValueSegmentKeyLen || !bytesHasPrefix(v.Key, prefix) {
			continue
		}
		segOff := uint64(format.ReadU32BE(v.Key, format.LongValueKeyIDSize))
		segEnd := segOff + uint64(len(v.Value))
		lo, hi := max64(segOff, offset), min64(segEnd, offset+length)
		if lo >= hi {
			continue
		}
		copy(out[lo-offset:hi-offset], v.Value[lo-segOff:hi-segOff])
	}
	return out, nil
}

func bytesHasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
