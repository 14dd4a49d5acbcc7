package esedb

import (
	"fmt"

	"github.com/edbkit/esedb/internal/format"
	"github.com/edbkit/esedb/internal/iosrc"
)

// Options configures how an Engine opens and validates a database file.
// The zero value is the engine's default behavior: reads through
// iosrc.OpenFile, requires a clean header checksum outside of dirty
// shutdown, and caps traversal depth at format.DefaultMaxTreeDepth.
type Options struct {
	// UseMmap maps the file into memory via iosrc.OpenMapped instead of
	// reading through os.File.ReadAt. Only meaningful with Open; ignored
	// by OpenSource, which already owns its Source.
	UseMmap bool

	// SkipHeaderValidation bypasses FileHeader.Validate, surfacing a
	// parsed header even when its checksum disagrees and the database was
	// not cleanly dirty-shutdown. Diagnostic tooling that wants to inspect
	// a badly damaged file sets this.
	SkipHeaderValidation bool

	// MaxTreeDepth overrides format.DefaultMaxTreeDepth for every page
	// tree the engine opens. Zero keeps the default.
	MaxTreeDepth int

	// PageCacheSize overrides the default per-tree LRU capacity (32
	// pages). Zero keeps the default.
	PageCacheSize int

	// TolerantChecksums downgrades a page-level XOR-32/ECC-32 mismatch
	// from fatal to a recorded Diagnostic. The zero value keeps checksum
	// mismatches fatal: false is strict, true is tolerant.
	TolerantChecksums bool

	// CollectDiagnostics enables Engine.Diagnostics(): without it, the
	// engine still tolerates what TolerantChecksums asks it to tolerate,
	// but does not pay the bookkeeping cost of remembering each instance.
	CollectDiagnostics bool
}

func (o Options) maxTreeDepth() int {
	if o.MaxTreeDepth > 0 {
		return o.MaxTreeDepth
	}
	return format.DefaultMaxTreeDepth
}

func (o Options) pageCacheSize() int {
	if o.PageCacheSize > 0 {
		return o.PageCacheSize
	}
	return 32
}

// Engine is the entry point for reading one EDB database file: it owns
// the byte source, the validated file header, and the catalog of tables
// the file declares. An Engine is safe for concurrent read-only use by
// multiple goroutines once Open/OpenSource returns, since every Page it
// hands out is immutable and every pageTree owns its own scoped cache.
type Engine struct {
	src      iosrc.Source
	header   *FileHeader
	opts     Options
	catalog  *Catalog
	lastPage uint32
	diag     *diagnosticCollector
}

// Open opens path and returns a ready Engine: the header is parsed and
// validated, and the catalog (every table/column/index definition) is
// read eagerly so TableByName and Tables never fail once Open succeeds.
func Open(path string, opts Options) (*Engine, error) {
	var (
		src iosrc.Source
		err error
	)
	if opts.UseMmap {
		src, err = iosrc.OpenMapped(path)
	} else {
		src, err = iosrc.OpenFile(path)
	}
	if err != nil {
		return nil, newErr(ErrKindIO, "open database file", err)
	}
	eng, err := OpenSource(src, opts)
	if err != nil {
		src.Close()
		return nil, err
	}
	return eng, nil
}

// OpenSource builds an Engine over an already-open Source (e.g. an
// in-memory buffer via iosrc.NewMemory, for tests or embedded callers).
// The Engine takes ownership of src: Close closes it.
func OpenSource(src iosrc.Source, opts Options) (*Engine, error) {
	size, err := src.Size()
	if err != nil {
		return nil, newErr(ErrKindIO, "stat database source", err)
	}
	if size < uint64(format.FileHeaderMinSize) {
		return nil, newErr(ErrKindPageMalformed, "file shorter than header", format.ErrTruncated)
	}

	headerBuf := make([]byte, format.FileHeaderMinSize)
	if err := src.ReadExactAt(0, headerBuf); err != nil {
		return nil, newErr(ErrKindIO, "read file header", err)
	}
	header, err := ParseFileHeader(headerBuf)
	if err != nil {
		return nil, err
	}
	if !opts.SkipHeaderValidation {
		// Re-read the full header page: the checksum covers the whole
		// page-sized block, not just the fixed fields we keep around.
		full := make([]byte, header.PageSize())
		if err := src.ReadExactAt(0, full); err != nil {
			return nil, newErr(ErrKindIO, "read header page", err)
		}
		fullHeader, err := ParseFileHeader(full)
		if err != nil {
			return nil, err
		}
		if err := fullHeader.Validate(); err != nil {
			return nil, err
		}
		header = fullHeader
	}
	if !format.IsSupportedFormatRevision(header.FormatRevision()) {
		return nil, newErr(ErrKindIO,
			fmt.Sprintf("unsupported format revision %d", header.FormatRevision()), format.ErrUnsupported)
	}

	eng := &Engine{src: src, header: header, opts: opts, lastPage: header.LastPageNumber(size)}
	if opts.CollectDiagnostics {
		eng.diag = newDiagnosticCollector()
	}

	cat, err := readCatalog(eng)
	if err != nil {
		return nil, err
	}
	eng.catalog = cat
	return eng, nil
}

// Close releases the underlying Source.
func (e *Engine) Close() error {
	return e.src.Close()
}

// Header returns the parsed file header.
func (e *Engine) Header() *FileHeader { return e.header }

// loadPage reads and decodes page n. Callers needing repeated access
// within one tree walk should go through a pageTree's own cache instead;
// this method always hits the Source. A page number beyond the file's
// last valid page is rejected as a TreeInvariant violation (B3): it can
// only arise from a corrupt child pointer, never a legitimate traversal.
func (e *Engine) loadPage(n uint32) (*Page, error) {
	if n == 0 || n > e.lastPage {
		return nil, pageErr(ErrKindTreeInvariant, n,
			fmt.Sprintf("page number exceeds last valid page %d", e.lastPage), nil)
	}
	p, err := loadPage(e.src, n, e.header.PageSize(), e.header.UsesExtendedPageHeader())
	if err != nil {
		return nil, err
	}
	if p.checksumWarn != nil {
		if !e.opts.TolerantChecksums {
			return nil, p.checksumWarn
		}
		e.diag.record(Diagnostic{
			Kind: ErrKindChecksumMismatch, Severity: DiagWarning, Page: n,
			Msg: p.checksumWarn.Error(),
		})
	}
	return p, nil
}

// Tables returns every table definition in catalog order.
func (e *Engine) Tables() []*TableDefinition {
	return e.catalog.Tables()
}

// TableByName returns a handle to the named table, or an *Error of kind
// ErrKindCatalogMissing if the catalog declares no such table.
func (e *Engine) TableByName(name string) (*TableHandle, error) {
	def := e.catalog.TableByName(name)
	if def == nil {
		return nil, newErr(ErrKindCatalogMissing, fmt.Sprintf("table %q not found", name), nil)
	}
	return newTableHandle(e, def), nil
}

// SpaceUsage reads the space tree of objectID's tree rooted at
// objectRootPage, for diagnostic reporting (P1/P2 in the
// invariant list): the engine never consults this for ordinary queries.
func (e *Engine) SpaceUsage(objectID, objectRootPage uint32) ([]SpaceTreeExtent, error) {
	stPage, err := spaceTreePageNumber(e, objectID, objectRootPage)
	if err != nil {
		return nil, err
	}
	if stPage == 0 {
		return nil, nil
	}
	return readSpaceTree(e, objectID, stPage)
}
