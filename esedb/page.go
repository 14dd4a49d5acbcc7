package esedb

import (
	"fmt"

	"github.com/edbkit/esedb/internal/buf"
	"github.com/edbkit/esedb/internal/checksum"
	"github.com/edbkit/esedb/internal/format"
	"github.com/edbkit/esedb/internal/iosrc"
)

// PageValue is one resolved tag entry: a data slice relative to the page
// body, plus the per-value flags drawn from whichever layout (legacy or
// extended) the page uses.
type PageValue struct {
	Data  []byte
	Flags uint8
}

func (v PageValue) HasCommonKeySize() bool { return v.Flags&format.TagFlagHasCommonKeySize != 0 }
func (v PageValue) IsDefunct() bool        { return v.Flags&format.TagFlagDefunct != 0 }

// Page is a fully decoded, immutable page. Once constructed its fields
// never change; it is safe to share across goroutines and to cache.
type Page struct {
	Number       uint32
	Previous     uint32
	Next         uint32
	FDPObjectID  uint32
	Flags        uint32
	Extended     bool
	Values       []PageValue
	checksumWarn error // non-nil if a checksum mismatch was tolerated
}

func (p *Page) IsRoot() bool        { return p.Flags&format.PageFlagIsRoot != 0 }
func (p *Page) IsLeaf() bool        { return p.Flags&format.PageFlagIsLeaf != 0 }
func (p *Page) IsParent() bool      { return p.Flags&format.PageFlagIsParent != 0 }
func (p *Page) IsEmpty() bool       { return p.Flags&format.PageFlagIsEmpty != 0 }
func (p *Page) IsSpaceTree() bool   { return p.Flags&format.PageFlagIsSpaceTree != 0 }
func (p *Page) IsIndex() bool       { return p.Flags&format.PageFlagIsIndex != 0 }
func (p *Page) IsLongValue() bool   { return p.Flags&format.PageFlagIsLongValue != 0 }
func (p *Page) IsNewRecordFormat() bool {
	return p.Flags&format.PageFlagIsNewRecordFormat != 0
}

// ChecksumWarning returns a non-nil error describing a tolerated checksum
// mismatch, or nil if the page's checksum(s) validated cleanly.
func (p *Page) ChecksumWarning() error { return p.checksumWarn }

// loadPage reads and decodes page number n (1-based) from src. The page's
// raw bytes are read into a freshly allocated buffer owned exclusively by
// the returned Page, so every PageValue slice derived from it stays valid
// for the Page's lifetime without aliasing any other page or the source
// itself. pageSize and extended come from the file header.
func loadPage(src iosrc.Source, n uint32, pageSize uint32, extended bool) (*Page, error) {
	raw := make([]byte, pageSize)
	off := uint64(n) * uint64(pageSize)
	if err := src.ReadExactAt(off, raw); err != nil {
		return nil, pageErr(ErrKindIO, n, "read page", err)
	}

	headerSize := format.PageHeaderSize
	if extended {
		headerSize = format.PageHeaderSizeExtended
	}
	if len(raw) < headerSize {
		return nil, pageErr(ErrKindPageMalformed, n, "page shorter than header", format.ErrTruncated)
	}

	p := &Page{
		// Number is the page slot the caller requested, not re-derived
		// from header bytes: that slot holds an ECC-32 checksum rather
		// than a page number on new-record-format pages, and the
		// extended header's own page-number field is only present when
		// Extended is true. The caller always knows which page it asked
		// for, so there is nothing to recover here.
		Number:      n,
		Previous:    format.ReadU32(raw, format.PageHeaderPreviousOffset),
		Next:        format.ReadU32(raw, format.PageHeaderNextOffset),
		FDPObjectID: format.ReadU32(raw, format.PageHeaderFDPObjIDOffset),
		Flags:       format.ReadU32(raw, format.PageHeaderFlagsOffset),
		Extended:    extended,
	}

	uninitialized := raw[0] == 0 && raw[1] == 0 && raw[2] == 0 && raw[3] == 0
	if !uninitialized {
		p.checksumWarn = validatePageChecksum(raw, n, pageSize, extended, p.IsNewRecordFormat())
	}

	availTag := format.ReadU16(raw, format.PageHeaderAvailTagOffset)
	values, err := parseTagArray(raw, headerSize, int(availTag), extended)
	if err != nil {
		return nil, pageErr(ErrKindPageMalformed, n, "tag array", err)
	}
	if p.IsEmpty() && len(values) != 0 {
		return nil, pageErr(ErrKindPageMalformed, n, "IS_EMPTY page with non-zero tags", nil)
	}
	p.Values = values

	return p, nil
}

func validatePageChecksum(raw []byte, pageNumber, pageSize uint32, extended, newRecordFormat bool) error {
	if newRecordFormat {
		gotECC, _ := checksum.ECC32(raw, 8, pageNumber)
		storedECC := format.ReadU32(raw, format.PageHeaderPageNumberOffset)
		if gotECC != storedECC {
			return pageErr(ErrKindChecksumMismatch, pageNumber,
				fmt.Sprintf("ecc32 mismatch: stored=0x%08x computed=0x%08x", storedECC, gotECC), nil)
		}
		return nil
	}
	gotXOR := checksum.XOR32(raw[4:], format.FileHeaderChecksumSeed)
	storedXOR := format.ReadU32(raw, format.PageHeaderChecksumOffset)
	if gotXOR != storedXOR {
		return pageErr(ErrKindChecksumMismatch, pageNumber,
			fmt.Sprintf("xor32 mismatch: stored=0x%08x computed=0x%08x", storedXOR, gotXOR), nil)
	}
	return nil
}

func parseTagArray(raw []byte, headerSize, count int, extended bool) ([]PageValue, error) {
	if count == 0 {
		return nil, nil
	}
	values := make([]PageValue, count)
	for i := 0; i < count; i++ {
		entryOff := len(raw) - format.PageTagEntrySize*(i+1)
		if entryOff < headerSize {
			return nil, fmt.Errorf("tag %d entry out of bounds", i)
		}
		offsetWord := format.ReadU16(raw, entryOff)
		sizeWord := format.ReadU16(raw, entryOff+2)

		var bodyOff, size int
		var flags uint8
		if extended {
			bodyOff = int(offsetWord) & format.PageTagExtendedOffsetMask
			size = int(sizeWord) & format.PageTagExtendedSizeMask
		} else {
			flags = uint8(offsetWord >> format.PageTagLegacyFlagsShift)
			bodyOff = int(offsetWord) & format.PageTagLegacyOffsetMask
			size = int(sizeWord)
		}

		absOff := headerSize + bodyOff
		data, ok := buf.Slice(raw, absOff, size)
		if !ok || absOff > entryOff {
			return nil, fmt.Errorf("tag %d offset/size out of range (off=%d size=%d)", i, bodyOff, size)
		}

		if extended && size > 0 {
			// The true per-value flags live in the top 3 bits of the
			// value's second byte in the extended layout. They are copied
			// out here; Data still holds those bits, since the page buffer
			// is never modified.
			flags = data[1] >> 5
		}

		values[i] = PageValue{Data: data, Flags: flags}
	}
	return values, nil
}
