package wire

const (
	// MaxVarintLen32 is the longest accepted encoding of a 32-bit varint.
	MaxVarintLen32 = 5
	// MaxVarintLen64 is the longest accepted encoding of a 64-bit varint.
	MaxVarintLen64 = 10
)

// VarintEncoder handles varint encoding operations
type VarintEncoder struct {
	encoder *Encoder
}

// NewVarintEncoder creates a new varint encoder
func NewVarintEncoder(e *Encoder) *VarintEncoder {
	return &VarintEncoder{encoder: e}
}

// DECODER FUNCTIONS
//
// Decoders follow the binary.Uvarint result convention: n > 0 is the number
// of bytes consumed, n == 0 means b ended before a terminating byte and n < 0
// means the continuation bit was still set on the last permitted byte.

// decodeGroups accumulates up to max 7-bit groups from b.
func decodeGroups(b []byte, max int) (uint64, int) {
	var v uint64
	for i := 0; i < max; i++ {
		if i >= len(b) {
			return 0, 0
		}
		c := b[i]
		v |= uint64(c&0x7F) << (7 * uint(i))
		if c < 0x80 {
			return v, i + 1
		}
	}
	return v, -max
}

// DecodeVarint32 decodes a varint of at most 5 bytes. Bits above 32 in a
// 5-byte encoding are dropped.
func DecodeVarint32(b []byte) (uint32, int) {
	v, n := decodeGroups(b, MaxVarintLen32)
	if n <= 0 {
		return 0, n
	}
	return uint32(v), n
}

// DecodeVarint64 decodes a varint of at most 10 bytes. The first five groups
// are read exactly as DecodeVarint32 reads them; the continuation is shifted
// past the 35 bits already consumed.
func DecodeVarint64(b []byte) (uint64, int) {
	low, n := decodeGroups(b, MaxVarintLen32)
	if n >= 0 {
		return low, n
	}
	high, m := decodeGroups(b[MaxVarintLen32:], MaxVarintLen64-MaxVarintLen32)
	if m == 0 {
		return 0, 0
	}
	if m < 0 {
		return 0, -MaxVarintLen64
	}
	return low | high<<(7*MaxVarintLen32), MaxVarintLen32 + m
}

// VarintError converts a failed decode result into its error.
func VarintError(n int) error {
	if n < 0 {
		return ErrVarintOverlong
	}
	return ErrTruncated
}

// ENCODER FUNCTIONS

// AppendVarint appends the minimal varint encoding of v to b.
func AppendVarint(b []byte, v uint64) []byte {
	for v >= 0x80 {
		b = append(b, byte(v)|0x80)
		v >>= 7
	}
	return append(b, byte(v))
}

// AppendVarint32 appends the minimal varint encoding of v to b.
func AppendVarint32(b []byte, v uint32) []byte {
	return AppendVarint(b, uint64(v))
}

// PutVarint writes v into dst and returns the number of bytes written.
// It panics if dst is too small.
func PutVarint(dst []byte, v uint64) int {
	i := 0
	for v >= 0x80 {
		dst[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	dst[i] = byte(v)
	return i + 1
}

// ENCODER METHODS

// EncodeVarint encodes a uint64 as varint
func (ve *VarintEncoder) EncodeVarint(v uint64) {
	ve.encoder.buf = AppendVarint(ve.encoder.buf, v)
}

// EncodeInt32 encodes an int32 as varint. Negative values are sign extended
// to ten bytes.
func (ve *VarintEncoder) EncodeInt32(v int32) {
	ve.EncodeVarint(uint64(int64(v)))
}

// EncodeInt64 encodes an int64 as varint
func (ve *VarintEncoder) EncodeInt64(v int64) {
	ve.EncodeVarint(uint64(v))
}

// EncodeUint32 encodes a uint32 as varint
func (ve *VarintEncoder) EncodeUint32(v uint32) {
	ve.EncodeVarint(uint64(v))
}

// EncodeUint64 encodes a uint64 as varint
func (ve *VarintEncoder) EncodeUint64(v uint64) {
	ve.EncodeVarint(v)
}

// EncodeSint32 encodes a signed int32 with zigzag encoding
func (ve *VarintEncoder) EncodeSint32(v int32) {
	ve.EncodeVarint(uint64(EncodeZigZag32(v)))
}

// EncodeSint64 encodes a signed int64 with zigzag encoding
func (ve *VarintEncoder) EncodeSint64(v int64) {
	ve.EncodeVarint(EncodeZigZag64(v))
}

// EncodeBool encodes a bool as varint
func (ve *VarintEncoder) EncodeBool(v bool) {
	if v {
		ve.EncodeVarint(1)
	} else {
		ve.EncodeVarint(0)
	}
}

// UTILITY FUNCTIONS

// DecodeZigZag32 decodes a zigzag-encoded 32-bit integer
func DecodeZigZag32(u uint32) int32 {
	return int32(u>>1) ^ -int32(u&1)
}

// DecodeZigZag64 decodes a zigzag-encoded 64-bit integer
func DecodeZigZag64(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// EncodeZigZag32 encodes a signed 32-bit integer using zigzag encoding
func EncodeZigZag32(v int32) uint32 {
	return uint32(v<<1) ^ uint32(v>>31)
}

// EncodeZigZag64 encodes a signed 64-bit integer using zigzag encoding
func EncodeZigZag64(v int64) uint64 {
	return uint64(v<<1) ^ uint64(v>>63)
}

// VarintSize returns the number of bytes needed to encode the given varint
func VarintSize(v uint64) int {
	switch {
	case v < 1<<7:
		return 1
	case v < 1<<14:
		return 2
	case v < 1<<21:
		return 3
	case v < 1<<28:
		return 4
	case v < 1<<35:
		return 5
	case v < 1<<42:
		return 6
	case v < 1<<49:
		return 7
	case v < 1<<56:
		return 8
	case v < 1<<63:
		return 9
	default:
		return 10
	}
}

// VarintSize32 returns the number of bytes needed to encode v.
func VarintSize32(v uint32) int {
	switch {
	case v < 1<<7:
		return 1
	case v < 1<<14:
		return 2
	case v < 1<<21:
		return 3
	case v < 1<<28:
		return 4
	default:
		return 5
	}
}

// Convenience methods for direct access

// EncodeVarint - convenience method for main encoder
func (e *Encoder) EncodeVarint(v uint64) {
	e.buf = AppendVarint(e.buf, v)
}
