package wire

import (
	"errors"
	"fmt"
	"strings"
)

// Decode and encode failures. Callers match them with errors.Is; they are
// usually carried inside a *FieldError.
var (
	ErrTruncated          = errors.New("unexpected end of data")
	ErrVarintOverlong     = errors.New("varint exceeds maximum length")
	ErrLengthTooLarge     = errors.New("length-delimited field exceeds maximum size")
	ErrInvalidWireType    = errors.New("invalid wire type")
	ErrWireTypeMismatch   = errors.New("wire type does not match field")
	ErrInvalidFieldNumber = errors.New("invalid field number")
	ErrMaxDepth           = errors.New("message nesting exceeds maximum depth")
)

// FieldError represents an encoding/decoding error with a field path.
type FieldError struct {
	FieldPath  []string // e.g., ["order", "customer", "name"]
	Offset     int64    // input offset of the failing read, -1 when unknown
	IsDecoding bool
	Err        error // underlying error
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	kind := "encoding error"
	if e.IsDecoding {
		kind = "decoding error"
	}
	var sb strings.Builder
	sb.WriteString(kind)
	if len(e.FieldPath) > 0 {
		sb.WriteString(" at field path ")
		sb.WriteString(strings.Join(e.FieldPath, "."))
	}
	if e.Offset >= 0 {
		fmt.Fprintf(&sb, " (offset %d)", e.Offset)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Err.Error())
	return sb.String()
}

// Unwrap returns the underlying error.
func (e *FieldError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for compatibility.
func (e *FieldError) Is(target error) bool {
	_, ok := target.(*FieldError)
	return ok
}

// NewFieldError creates an encoding error from a format string.
func NewFieldError(format string, args ...interface{}) error {
	return &FieldError{Offset: -1, Err: fmt.Errorf(format, args...)}
}

// NewDecodeError creates a decoding error for a failure at offset.
func NewDecodeError(err error, offset int64) error {
	if fe, ok := err.(*FieldError); ok {
		return fe
	}
	return &FieldError{Offset: offset, IsDecoding: true, Err: err}
}

// WrapEncodingField prefixes an encoding error path with a field name.
func WrapEncodingField(err error, fieldName string) error {
	return wrapWithField(err, fieldName, false)
}

// WrapDecodingField prefixes a decoding error path with a field name.
func WrapDecodingField(err error, fieldName string) error {
	return wrapWithField(err, fieldName, true)
}

// wrapWithField wraps an error with a field name
func wrapWithField(err error, fieldName string, decoding bool) error {
	if err == nil {
		return nil
	}

	if fe, ok := err.(*FieldError); ok {
		return &FieldError{
			FieldPath:  append([]string{fieldName}, fe.FieldPath...),
			Offset:     fe.Offset,
			IsDecoding: fe.IsDecoding,
			Err:        fe.Err,
		}
	}

	return &FieldError{
		FieldPath:  []string{fieldName},
		Offset:     -1,
		IsDecoding: decoding,
		Err:        err,
	}
}
