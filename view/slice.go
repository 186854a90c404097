package view

import (
	"io"

	"github.com/anirudhraja/zenwire/mempool"
)

// Slice is a view over a borrowed, immutable byte slice. Reads are zero-copy.
type Slice struct {
	buf  []byte
	pos  int
	base int64
}

// NewSlice returns a view over b. b must not change while the view is in use.
func NewSlice(b []byte) *Slice {
	return &Slice{buf: b}
}

// ReadBytes returns up to n unread bytes without consuming them.
func (s *Slice) ReadBytes(n int) []byte {
	if n <= 0 {
		return nil
	}
	end := s.pos + n
	if end > len(s.buf) || end < s.pos {
		end = len(s.buf)
	}
	return s.buf[s.pos:end:end]
}

// ReadBytesOwned copies, since the caller may reuse the borrowed slice.
func (s *Slice) ReadBytesOwned(n int) []byte {
	b := s.ReadBytes(n)
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Advance consumes n bytes.
func (s *Slice) Advance(n int) { s.pos += n }

// Offset returns the number of bytes consumed, counted from the start of the
// outermost view.
func (s *Slice) Offset() int64 { return s.base + int64(s.pos) }

// Err always returns nil; a slice cannot fail.
func (s *Slice) Err() error { return nil }

// Len returns the number of unread bytes.
func (s *Slice) Len() int { return len(s.buf) - s.pos }

// Reset points the view at b and rewinds it.
func (s *Slice) Reset(b []byte) {
	s.buf, s.pos, s.base = b, 0, 0
}

// Owned is a view that owns its region. Owned reads alias the region
// directly, so decoded bytes fields share memory with the input.
type Owned struct {
	Slice
	alloc mempool.Allocator
}

// NewOwned takes ownership of b. The caller must not modify b afterwards.
func NewOwned(b []byte) *Owned {
	return &Owned{Slice: Slice{buf: b}}
}

// ReadOwned reads exactly size bytes from r into memory obtained from alloc
// and returns an owned view over them.
func ReadOwned(r io.Reader, size int, alloc mempool.Allocator) (*Owned, error) {
	if alloc == nil {
		alloc = &mempool.HeapAllocator{}
	}
	buf, err := alloc.Get(size)
	if err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, buf); err != nil {
		alloc.Put(buf)
		return nil, err
	}
	return &Owned{Slice: Slice{buf: buf}, alloc: alloc}, nil
}

// ReadBytesOwned aliases the region.
func (o *Owned) ReadBytesOwned(n int) []byte {
	return o.ReadBytes(n)
}

// Release returns the region to the allocator it came from. Values decoded
// from the view must not be used afterwards.
func (o *Owned) Release() {
	if o.alloc != nil {
		o.alloc.Put(o.buf)
		o.alloc = nil
	}
	o.buf = nil
	o.pos = 0
}
