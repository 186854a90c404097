package view

import (
	"math"

	"github.com/anirudhraja/zenwire/wire"
)

// The helpers below never advance a view on failure: each peeks the bytes it
// needs, validates them, then consumes them with a single Advance.

// short picks the error for a read that came back with too few bytes.
func short(v View) error {
	if err := v.Err(); err != nil {
		return err
	}
	return wire.ErrTruncated
}

// AtEOF reports whether the view has no unread bytes.
func AtEOF(v View) bool {
	return len(v.ReadBytes(1)) == 0
}

// ReadTag reads a field tag.
func ReadTag(v View) (wire.FieldNumber, wire.WireType, error) {
	b := v.ReadBytes(wire.MaxVarintLen32)
	x, n := wire.DecodeVarint32(b)
	if n <= 0 {
		if n == 0 {
			return 0, 0, short(v)
		}
		return 0, 0, wire.VarintError(n)
	}
	// Tags are 32 bits; a fifth byte may only carry the top four.
	if n == wire.MaxVarintLen32 && b[n-1] > 0x0F {
		return 0, 0, wire.ErrVarintOverlong
	}
	v.Advance(n)
	num, wt := wire.ParseTag(wire.Tag(x))
	return num, wt, nil
}

// ReadVarint32 reads a varint of at most 5 bytes.
func ReadVarint32(v View) (uint32, error) {
	b := v.ReadBytes(wire.MaxVarintLen32)
	x, n := wire.DecodeVarint32(b)
	if n <= 0 {
		if n == 0 {
			return 0, short(v)
		}
		return 0, wire.VarintError(n)
	}
	v.Advance(n)
	return x, nil
}

// ReadVarint64 reads a varint of at most 10 bytes.
func ReadVarint64(v View) (uint64, error) {
	b := v.ReadBytes(wire.MaxVarintLen64)
	x, n := wire.DecodeVarint64(b)
	if n <= 0 {
		if n == 0 {
			return 0, short(v)
		}
		return 0, wire.VarintError(n)
	}
	v.Advance(n)
	return x, nil
}

// ReadFixed32 reads 4 little-endian bytes.
func ReadFixed32(v View) (uint32, error) {
	x, n := wire.DecodeFixed32(v.ReadBytes(4))
	if n == 0 {
		return 0, short(v)
	}
	v.Advance(n)
	return x, nil
}

// ReadFixed64 reads 8 little-endian bytes.
func ReadFixed64(v View) (uint64, error) {
	x, n := wire.DecodeFixed64(v.ReadBytes(8))
	if n == 0 {
		return 0, short(v)
	}
	v.Advance(n)
	return x, nil
}

// ReadLengthDelimited reads a varint length followed by that many bytes and
// returns the payload. Lengths above limit fail before the payload is read.
// When owned is set the payload may be retained by the caller; otherwise it
// is only valid until the next call on v.
func ReadLengthDelimited(v View, limit int, owned bool) ([]byte, error) {
	head := v.ReadBytes(wire.MaxVarintLen64)
	length, n := wire.DecodeVarint64(head)
	if n <= 0 {
		if n == 0 {
			return nil, short(v)
		}
		return nil, wire.VarintError(n)
	}
	if length > uint64(limit) || length > uint64(math.MaxInt-n) {
		return nil, wire.ErrLengthTooLarge
	}
	total := n + int(length)
	var span []byte
	if owned {
		span = v.ReadBytesOwned(total)
	} else {
		span = v.ReadBytes(total)
	}
	if len(span) < total {
		return nil, short(v)
	}
	v.Advance(total)
	return span[n:], nil
}

// Skip consumes one value of the given wire type without decoding it.
func Skip(v View, wt wire.WireType, limit int) error {
	var err error
	switch wt {
	case wire.WireVarint:
		_, err = ReadVarint64(v)
	case wire.WireFixed64:
		_, err = ReadFixed64(v)
	case wire.WireBytes:
		_, err = ReadLengthDelimited(v, limit, false)
	case wire.WireFixed32:
		_, err = ReadFixed32(v)
	default:
		err = wire.ErrInvalidWireType
	}
	return err
}
