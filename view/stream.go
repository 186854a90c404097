package view

import (
	"bytes"
	"errors"
	"io"

	"github.com/anirudhraja/zenwire/wire"
)

// Stream is a view over an io.Reader. Unread bytes live in a fixed window
// buf[nr:nw]. A read larger than the window is served from a one-off region
// (big) filled straight from the reader; while big holds unread bytes the
// window is empty.
type Stream struct {
	buf    []byte
	nr     int
	nw     int
	big    []byte
	bigPos int
	offset int64
	eof    bool
	err    error
	reader io.Reader
}

// NewStream returns a stream view with the default 4096 byte window.
func NewStream(r io.Reader) *Stream {
	return NewStreamSize(r, wire.DefaultStreamBufferSize)
}

// NewStreamSize returns a stream view with a window of size bytes.
func NewStreamSize(r io.Reader, size int) *Stream {
	if size <= 0 {
		size = wire.DefaultStreamBufferSize
	}
	return &Stream{
		buf:    make([]byte, size),
		reader: r,
	}
}

// Size returns the window capacity.
func (s *Stream) Size() int { return len(s.buf) }

// Reset discards buffered data and switches to r, keeping the window.
func (s *Stream) Reset(r io.Reader) {
	s.nr, s.nw = 0, 0
	s.big, s.bigPos = nil, 0
	s.offset = 0
	s.eof, s.err = false, nil
	s.reader = r
}

func (s *Stream) unread() []byte {
	if s.big != nil {
		return s.big[s.bigPos:]
	}
	return s.buf[s.nr:s.nw]
}

// ReadBytes returns up to n unread bytes without consuming them, filling the
// window from the reader as needed. Fewer than n bytes means the reader is
// exhausted or failed; see Err.
func (s *Stream) ReadBytes(n int) []byte {
	if n <= 0 {
		return nil
	}
	if have := s.unread(); len(have) < n && !s.eof {
		if n <= len(s.buf) {
			s.fillAtLeast(n)
		} else {
			s.fillBig(n)
		}
	}
	b := s.unread()
	if len(b) > n {
		b = b[:n]
	}
	return b[:len(b):len(b)]
}

// ReadBytesOwned copies: the window is overwritten by the next fill.
func (s *Stream) ReadBytesOwned(n int) []byte {
	b := s.ReadBytes(n)
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Advance consumes n bytes previously returned by ReadBytes.
func (s *Stream) Advance(n int) {
	s.offset += int64(n)
	if s.big != nil {
		s.bigPos += n
		if s.bigPos >= len(s.big) {
			s.big, s.bigPos = nil, 0
		}
		return
	}
	s.nr += n
	if s.nr == s.nw {
		s.nr, s.nw = 0, 0
	}
}

// Offset returns the number of bytes consumed from the reader.
func (s *Stream) Offset() int64 { return s.offset }

// Err returns the first read error other than EOF.
func (s *Stream) Err() error { return s.err }

// fillAtLeast tops the window up until min bytes are unread or the reader is
// exhausted. REQUIRES: min <= Size().
func (s *Stream) fillAtLeast(min int) {
	if s.big != nil {
		// Fold the tail of an oversized read back into the window.
		s.nw = copy(s.buf, s.big[s.bigPos:])
		s.nr = 0
		s.big, s.bigPos = nil, 0
	}
	if len(s.buf)-s.nr < min {
		// Move existing data forward, only if there isn't enough contiguous
		// space left for min.
		copy(s.buf, s.buf[s.nr:s.nw])
		s.nw -= s.nr
		s.nr = 0
	}
	// Need to loop; Read may return success with less bytes than requested.
	for s.nw-s.nr < min {
		n, err := s.reader.Read(s.buf[s.nw:])
		s.nw += n
		if err != nil {
			s.stop(err)
			return
		}
		if n == 0 {
			s.stop(io.ErrNoProgress)
			return
		}
	}
}

// fillBig reads n bytes into a fresh region, bypassing the window. The
// region grows as data arrives, so a large declared length costs nothing
// until the reader delivers it.
func (s *Stream) fillBig(n int) {
	region := bytes.NewBuffer(make([]byte, 0, min(n, 2*len(s.buf))))
	region.Write(s.unread())
	s.nr, s.nw = 0, 0
	_, err := region.ReadFrom(io.LimitReader(s.reader, int64(n-region.Len())))
	s.big, s.bigPos = region.Bytes(), 0
	switch {
	case err != nil:
		s.stop(err)
	case len(s.big) < n:
		s.stop(io.EOF)
	}
}

func (s *Stream) stop(err error) {
	s.eof = true
	if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		s.err = err
	}
}
