package retrieval

import (
	"errors"
	"io"

	"github.com/dharsanguruparan/ReelDrop/internal/fault"
)

// ChunkSize is the read granularity of ReadBounded and the size of every
// Payload segment except possibly the last.
const ChunkSize = 32 * 1024

// Payload is a materialized body held as fixed-size segments. The segments
// are never joined into one buffer.
type Payload struct {
	segments [][]byte
	size     int64
}

// NewPayload wraps b as a single-segment payload. Intended for small bodies.
func NewPayload(b []byte) *Payload {
	if len(b) == 0 {
		return &Payload{}
	}
	return &Payload{segments: [][]byte{b}, size: int64(len(b))}
}

// Len is the number of bytes held.
func (p *Payload) Len() int64 { return p.size }

// Head returns the first segment, enough to sniff the content type.
func (p *Payload) Head() []byte {
	if len(p.segments) == 0 {
		return nil
	}
	return p.segments[0]
}

// ReadAt implements io.ReaderAt across segment boundaries.
func (p *Payload) ReadAt(b []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("payload: negative offset")
	}
	n := 0
	for n < len(b) && off < p.size {
		seg, start := p.locate(off)
		c := copy(b[n:], seg[start:])
		n += c
		off += int64(c)
	}
	if n < len(b) {
		return n, io.EOF
	}
	return n, nil
}

// locate returns the segment holding off and the offset within it.
func (p *Payload) locate(off int64) ([]byte, int64) {
	if len(p.segments) == 1 {
		return p.segments[0], off
	}
	return p.segments[off/ChunkSize], off % ChunkSize
}

// Reader returns a fresh seekable reader over the payload.
func (p *Payload) Reader() *io.SectionReader {
	return io.NewSectionReader(p, 0, p.size)
}

// ReadBounded reads r to EOF, failing with TooLarge as soon as the stream
// yields more than limit bytes. Segments are allocated on demand and their
// combined capacity never exceeds limit; detecting overflow costs one extra
// chunk-sized scratch buffer.
func ReadBounded(r io.Reader, limit int64) (*Payload, error) {
	const op = "read variant"
	p := &Payload{}
	if limit > 0 {
		p.segments = make([][]byte, 0, (limit+ChunkSize-1)/ChunkSize)
	}
	var (
		allocated int64
		scratch   []byte
	)
	for {
		var (
			n       int
			readErr error
		)
		last := len(p.segments) - 1
		switch {
		case last >= 0 && len(p.segments[last]) < cap(p.segments[last]):
			seg := p.segments[last]
			n, readErr = r.Read(seg[len(seg):cap(seg)])
			p.segments[last] = seg[:len(seg)+n]
			p.size += int64(n)
		case allocated < limit:
			size := min(int64(ChunkSize), limit-allocated)
			p.segments = append(p.segments, make([]byte, 0, size))
			allocated += size
			continue
		default:
			if scratch == nil {
				scratch = make([]byte, ChunkSize)
			}
			n, readErr = r.Read(scratch)
			if n > 0 {
				return nil, fault.Errorf(fault.TooLarge, op, "payload exceeds %d bytes", limit)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return p, nil
			}
			if fault.IsTimeout(readErr) {
				return nil, fault.New(fault.Timeout, op, readErr)
			}
			return nil, fault.New(fault.UpstreamUnavailable, op, readErr)
		}
	}
}
