package wire

import "strconv"

// ===== PROTOBUF WIRE FORMAT TYPES =====

// WireType represents protobuf wire format types
type WireType int32

const (
	WireVarint     WireType = 0 // int32, int64, uint32, uint64, sint32, sint64, bool, enum
	WireFixed64    WireType = 1 // fixed64, sfixed64, double
	WireBytes      WireType = 2 // string, bytes, embedded messages
	WireStartGroup WireType = 3 // deprecated, rejected on decode
	WireEndGroup   WireType = 4 // deprecated, rejected on decode
	WireFixed32    WireType = 5 // fixed32, sfixed32, float
)

// Supported reports whether the wire type can be decoded.
func (wt WireType) Supported() bool {
	switch wt {
	case WireVarint, WireFixed64, WireBytes, WireFixed32:
		return true
	}
	return false
}

func (wt WireType) String() string {
	switch wt {
	case WireVarint:
		return "varint"
	case WireFixed64:
		return "fixed64"
	case WireBytes:
		return "bytes"
	case WireStartGroup:
		return "start_group"
	case WireEndGroup:
		return "end_group"
	case WireFixed32:
		return "fixed32"
	}
	return "wiretype(" + strconv.Itoa(int(wt)) + ")"
}

// FieldNumber represents a protobuf field number
type FieldNumber int32

const (
	MinFieldNumber FieldNumber = 1
	MaxFieldNumber FieldNumber = 1<<29 - 1

	// MaxSingleByteField is the largest field number whose tag fits in one byte.
	MaxSingleByteField FieldNumber = 15
)

// Valid reports whether n is inside the legal field number range.
func (n FieldNumber) Valid() bool {
	return n >= MinFieldNumber && n <= MaxFieldNumber
}

// Tag represents a protobuf field tag (field number + wire type)
type Tag uint64

// MakeTag creates a tag from field number and wire type
func MakeTag(fieldNumber FieldNumber, wireType WireType) Tag {
	return Tag(uint64(fieldNumber)<<3 | uint64(wireType&0x7))
}

// ParseTag parses a tag into field number and wire type
func ParseTag(tag Tag) (FieldNumber, WireType) {
	return FieldNumber(tag >> 3), WireType(tag & 0x7)
}

// AppendTag appends the varint form of the tag to b.
func AppendTag(b []byte, fieldNumber FieldNumber, wireType WireType) []byte {
	return AppendVarint(b, uint64(MakeTag(fieldNumber, wireType)))
}

// TagSize returns the encoded size of a tag for the field number.
func TagSize(fieldNumber FieldNumber) int {
	return VarintSize(uint64(fieldNumber) << 3)
}

func (wt WireType) MarshalText() ([]byte, error) { return []byte(wt.String()), nil }
