package esedb

import (
	"fmt"

	"github.com/edbkit/esedb/internal/checksum"
	"github.com/edbkit/esedb/internal/format"
)

// FileHeader is a zero-copy view over the fixed-layout header occupying
// the first page-size block of an EDB file. Accessors read fixed offsets
// directly out of raw; nothing is copied until a caller asks for it.
type FileHeader struct {
	raw []byte
}

// ParseFileHeader validates and wraps the header bytes. raw must contain at
// least FileHeaderMinSize bytes; callers typically pass the entire first
// page.
func ParseFileHeader(raw []byte) (*FileHeader, error) {
	if len(raw) < format.FileHeaderMinSize {
		return nil, newErr(ErrKindPageMalformed, "header buffer too short", format.ErrTruncated)
	}
	h := &FileHeader{raw: raw}
	if h.Signature() != format.FileHeaderSignature {
		return nil, newErr(ErrKindSignatureMismatch,
			fmt.Sprintf("signature 0x%08x, want 0x%08x", h.Signature(), format.FileHeaderSignature), nil)
	}
	if !format.SupportedPageSizes[h.PageSize()] {
		return nil, newErr(ErrKindIO, fmt.Sprintf("unsupported page size %d", h.PageSize()), format.ErrUnsupported)
	}
	return h, nil
}

// Validate re-checks the header checksum. A dirty-shutdown database state
// tolerates a checksum mismatch (the header may have been mid-write at
// crash time); every other state requires an exact match.
func (h *FileHeader) Validate() error {
	computed := checksum.XOR32(h.raw[4:h.PageSize()], format.FileHeaderChecksumSeed)
	if computed == h.StoredChecksum() {
		return nil
	}
	if h.DatabaseState() == format.DatabaseStateDirtyShutdown {
		return nil
	}
	return newErr(ErrKindChecksumMismatch,
		fmt.Sprintf("header checksum 0x%08x, computed 0x%08x", h.StoredChecksum(), computed), nil)
}

func (h *FileHeader) StoredChecksum() uint32 {
	return format.ReadU32(h.raw, format.FileHeaderChecksumOffset)
}

func (h *FileHeader) Signature() uint32 {
	return format.ReadU32(h.raw, format.FileHeaderSignatureOffset)
}

func (h *FileHeader) FormatVersion() uint32 {
	return format.ReadU32(h.raw, format.FileHeaderFormatVersionOffset)
}

func (h *FileHeader) FileType() uint32 {
	return format.ReadU32(h.raw, format.FileHeaderFileTypeOffset)
}

func (h *FileHeader) DatabaseState() format.DatabaseState {
	return format.DatabaseState(format.ReadU32(h.raw, format.FileHeaderDatabaseStateOffset))
}

func (h *FileHeader) FormatRevision() uint32 {
	return format.ReadU32(h.raw, format.FileHeaderFormatRevisionOffset)
}

func (h *FileHeader) PageSize() uint32 {
	v := format.ReadU32(h.raw, format.FileHeaderPageSizeOffset)
	if v == 0 {
		// Format revisions predating the explicit page-size field always
		// used 4 KiB pages.
		return 4096
	}
	return v
}

func (h *FileHeader) CreationFormatVersion() uint32 {
	return format.ReadU32(h.raw, format.FileHeaderCreationVerOffset)
}

func (h *FileHeader) CreationFormatRevision() uint32 {
	return format.ReadU32(h.raw, format.FileHeaderCreationRevOffset)
}

// UsesExtendedPageHeader reports whether pages in this database carry the
// 40-byte extended header in addition to the common header.
func (h *FileHeader) UsesExtendedPageHeader() bool {
	return h.FormatRevision() >= format.ExtendedHeaderMinRevision && h.PageSize() >= format.ExtendedHeaderMinPageSize
}

// LastPageNumber derives the highest valid 1-based page number for a file
// of the given size: the header and page 1 both occupy reserved space, so
// usable pages start at file offset PageSize() (page number 1 by the
// engine's numbering) and run through fileSize/PageSize() - 2.
func (h *FileHeader) LastPageNumber(fileSize uint64) uint32 {
	pages := fileSize / uint64(h.PageSize())
	if pages < 2 {
		return 0
	}
	return uint32(pages - 2)
}
