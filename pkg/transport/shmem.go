package transport

import (
	"os"
	"sync/atomic"

	"github.com/edsrzf/mmap-go"

	"github.com/cuemby/fuzzmux/pkg/evmerr"
)

// Page is a producer-owned, memory-mapped scratch region standing in for
// one slot of the shared-memory ring buffer the real transport would use.
// A client writes its most recently sent payload into its own page and
// bumps a sequence counter; the page may not be unmapped until every
// consumer has advanced past that sequence number (enforced by the
// broker's safe-to-unmap signal, not by this type).
type Page struct {
	file *os.File
	data mmap.MMap
	seq  uint64
}

// defaultPageSize is generous enough to hold a compressed observer
// snapshot without the client needing to resize mid-run.
const defaultPageSize = 4 << 20 // 4 MiB

// NewPage creates and maps a new scratch page backed by a temp file under
// dir. Passing "" uses the OS default temp directory.
func NewPage(dir string) (*Page, error) {
	f, err := os.CreateTemp(dir, "fuzzmux-page-*")
	if err != nil {
		return nil, evmerr.Wrap(evmerr.Transport, "create shared page file", err)
	}
	if err := f.Truncate(defaultPageSize); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, evmerr.Wrap(evmerr.Transport, "size shared page file", err)
	}

	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, evmerr.Wrap(evmerr.Transport, "mmap shared page", err)
	}

	return &Page{file: f, data: m}, nil
}

// Write copies payload into the page and bumps the sequence number. It
// fails if payload does not fit the page, mirroring the real transport's
// "page full" backpressure condition; the error is returned to the caller
// and nothing is written.
func (p *Page) Write(payload []byte) error {
	if len(payload) > len(p.data) {
		return evmerr.New(evmerr.Transport, "payload exceeds shared page size")
	}
	copy(p.data, payload)
	atomic.AddUint64(&p.seq, 1)
	return nil
}

// Seq returns the number of writes so far, used by consumers to detect
// whether they have caught up to the producer's latest write.
func (p *Page) Seq() uint64 {
	return atomic.LoadUint64(&p.seq)
}

// Unmap releases the mapping and removes the backing file. Callers must
// only do this after confirming via the broker that no consumer still
// needs the page (shared-resource policy).
func (p *Page) Unmap() error {
	if err := p.data.Unmap(); err != nil {
		return evmerr.Wrap(evmerr.Transport, "unmap shared page", err)
	}
	name := p.file.Name()
	if err := p.file.Close(); err != nil {
		return evmerr.Wrap(evmerr.Transport, "close shared page file", err)
	}
	return os.Remove(name)
}
