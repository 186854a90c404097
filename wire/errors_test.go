package wire

import (
	"errors"
	"strings"
	"testing"
)

func TestFieldError(t *testing.T) {
	tests := []struct {
		name          string
		buildError    func() error
		expectedPath  string
		expectedMsg   string
		containsWords []string
	}{
		{
			name: "single field error",
			buildError: func() error {
				baseErr := NewFieldError("expected number, got %T", map[string]interface{}{})
				return WrapEncodingField(baseErr, "latitude")
			},
			expectedPath: "latitude",
			expectedMsg:  "expected number, got map[string]interface {}",
		},
		{
			name: "nested field error",
			buildError: func() error {
				baseErr := NewFieldError("expected number, got string")
				err := WrapEncodingField(baseErr, "latitude")
				err = WrapEncodingField(err, "target_location")
				err = WrapEncodingField(err, "input")
				return err
			},
			expectedPath: "input.target_location.latitude",
			expectedMsg:  "expected number, got string",
			containsWords: []string{
				"encoding error at field path input.target_location.latitude",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.buildError()

			var fieldErr *FieldError
			if !errors.As(err, &fieldErr) {
				t.Fatalf("expected FieldError, got %T", err)
			}

			actualPath := strings.Join(fieldErr.FieldPath, ".")
			if actualPath != tt.expectedPath {
				t.Errorf("expected path %q, got %q", tt.expectedPath, actualPath)
			}

			errMsg := err.Error()
			if !strings.Contains(errMsg, tt.expectedMsg) {
				t.Errorf("error message should contain %q, got: %s", tt.expectedMsg, errMsg)
			}
			if strings.Count(errMsg, "encoding error") != 1 {
				t.Errorf("error kind should appear once: %s", errMsg)
			}
			for _, word := range tt.containsWords {
				if !strings.Contains(errMsg, word) {
					t.Errorf("error message should contain %q, got: %s", word, errMsg)
				}
			}
			if errors.Unwrap(err) == nil {
				t.Error("Unwrap should return the underlying error")
			}
		})
	}
}

func TestDecodingFieldError(t *testing.T) {
	err := NewDecodeError(ErrTruncated, 42)
	err = WrapDecodingField(err, "id")
	err = WrapDecodingField(err, "author")

	var fieldErr *FieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("expected FieldError, got %T", err)
	}
	if !fieldErr.IsDecoding {
		t.Error("expected IsDecoding to be true for decoding errors")
	}
	if fieldErr.Offset != 42 {
		t.Errorf("expected offset 42, got %d", fieldErr.Offset)
	}
	if !errors.Is(err, ErrTruncated) {
		t.Error("errors.Is should reach the sentinel")
	}
	want := "decoding error at field path author.id (offset 42): unexpected end of data"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestVarintError(t *testing.T) {
	if !errors.Is(VarintError(0), ErrTruncated) {
		t.Error("n == 0 should map to ErrTruncated")
	}
	if !errors.Is(VarintError(-5), ErrVarintOverlong) {
		t.Error("n < 0 should map to ErrVarintOverlong")
	}
}
