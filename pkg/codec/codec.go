// Package codec provides the interchangeable compression codec referenced
// by the wire format's COMPRESSED flag.
package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/cuemby/fuzzmux/pkg/evmerr"
)

// Codec compresses and decompresses payload bytes. Implementations must
// round-trip exactly: Decompress(Compress(p)) == p.
type Codec interface {
	Compress(payload []byte) ([]byte, error)
	Decompress(payload []byte) ([]byte, error)
}

// Gzip is a Codec backed by klauspost/compress's gzip implementation.
type Gzip struct {
	Level int
}

// NewGzip returns a Gzip codec at the given compression level. A level of
// 0 uses gzip.DefaultCompression.
func NewGzip(level int) *Gzip {
	if level == 0 {
		level = gzip.DefaultCompression
	}
	return &Gzip{Level: level}
}

func (g *Gzip) Compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, g.Level)
	if err != nil {
		return nil, evmerr.Wrap(evmerr.Serialize, "create gzip writer", err)
	}
	if _, err := w.Write(payload); err != nil {
		return nil, evmerr.Wrap(evmerr.Serialize, "write gzip payload", err)
	}
	if err := w.Close(); err != nil {
		return nil, evmerr.Wrap(evmerr.Serialize, "close gzip writer", err)
	}
	return buf.Bytes(), nil
}

func (g *Gzip) Decompress(payload []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, evmerr.Wrap(evmerr.Serialize, "create gzip reader", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, evmerr.Wrap(evmerr.Serialize, "read gzip payload", err)
	}
	return out, nil
}

// CompressThreshold is the minimum payload size, in bytes, below which
// MaybeCompress declines to compress. Small payloads rarely shrink enough
// under gzip to be worth the COMPRESSED flag and the inflate cost.
const CompressThreshold = 512

// MaybeCompress compresses payload with c if it is at least
// CompressThreshold bytes long, returning the compressed bytes and true.
// Below threshold it returns the original payload and false, meaning the
// caller must not set the COMPRESSED flag.
func MaybeCompress(c Codec, payload []byte) ([]byte, bool, error) {
	if len(payload) < CompressThreshold {
		return payload, false, nil
	}
	compressed, err := c.Compress(payload)
	if err != nil {
		return nil, false, err
	}
	return compressed, true, nil
}
