package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// LowerCamel converts snake_case to lowerCamelCase
func LowerCamel(s string) string {
	if s == "" {
		return s
	}
	// Fast path: no underscore
	if !strings.Contains(s, "_") {
		if s[0] >= 'A' && s[0] <= 'Z' {
			return string(s[0]-'A'+'a') + s[1:]
		}
		return s
	}
	out := make([]byte, 0, len(s))
	upperNext := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' {
			upperNext = true
			continue
		}
		if len(out) == 0 {
			// first rune lowercased
			if c >= 'A' && c <= 'Z' {
				c = c - 'A' + 'a'
			}
			out = append(out, c)
			upperNext = false
			continue
		}
		if upperNext {
			if c >= 'a' && c <= 'z' {
				c = c - 'a' + 'A'
			}
			upperNext = false
		}
		out = append(out, c)
	}
	return string(out)
}

var errNonInteger = fmt.Errorf("non-integer numeric for integer field")

// CoerceInt64 accepts Go integers and JSON-style numbers (exponent or float
// forms are allowed when integral).
func CoerceInt64(v interface{}) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int32:
		return int64(t), nil
	case int:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", t)
		}
		return int64(t), nil
	case uint:
		return int64(t), nil
	case json.Number:
		// Try integer first
		if iv, err := t.Int64(); err == nil {
			return iv, nil
		}
		return parseIntegralFloat(t.String())
	case float64:
		return floatToInt64(t)
	case float32:
		return CoerceInt64(float64(t))
	case string:
		// allow explicit integer strings
		if strings.ContainsAny(t, ".eE") {
			return parseIntegralFloat(t)
		}
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, fmt.Errorf("expected integer-like, got %T", v)
	}
}

func parseIntegralFloat(s string) (int64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return floatToInt64(f)
}

// floatToInt64 converts an integral float. -2^63 is exact in float64, 2^63
// is the first value past the range.
func floatToInt64(f float64) (int64, error) {
	if f != math.Trunc(f) {
		return 0, errNonInteger
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("value %g overflows int64", f)
	}
	return int64(f), nil
}

// CoerceUint64 is CoerceInt64 for unsigned fields; negative input fails.
func CoerceUint64(v interface{}) (uint64, error) {
	switch t := v.(type) {
	case uint64:
		return t, nil
	case uint32:
		return uint64(t), nil
	case uint:
		return uint64(t), nil
	case uint16:
		return uint64(t), nil
	case uint8:
		return uint64(t), nil
	case int, int8, int16, int32, int64:
		iv, _ := CoerceInt64(t)
		if iv < 0 {
			return 0, fmt.Errorf("negative value %d for unsigned field", iv)
		}
		return uint64(iv), nil
	case json.Number:
		if uv, err := strconv.ParseUint(t.String(), 10, 64); err == nil {
			return uv, nil
		}
		return parseUnsignedFloat(t.String())
	case float64:
		return floatToUint64(t)
	case float32:
		return CoerceUint64(float64(t))
	case string:
		if strings.ContainsAny(t, ".eE") {
			return parseUnsignedFloat(t)
		}
		return strconv.ParseUint(t, 10, 64)
	default:
		return 0, fmt.Errorf("expected unsigned-integer-like, got %T", v)
	}
}

func parseUnsignedFloat(s string) (uint64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return floatToUint64(f)
}

// floatToUint64 converts a non-negative integral float below 2^64.
func floatToUint64(f float64) (uint64, error) {
	if f < 0 || f != math.Trunc(f) {
		return 0, fmt.Errorf("non-integer numeric for unsigned field")
	}
	if f >= math.MaxUint64 {
		return 0, fmt.Errorf("value %g overflows uint64", f)
	}
	return uint64(f), nil
}

// CoerceFloat64 accepts any numeric input plus the JSON spellings of the
// special float values.
func CoerceFloat64(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case json.Number:
		return strconv.ParseFloat(t.String(), 64)
	case string:
		switch t {
		case "NaN":
			return math.NaN(), nil
		case "Infinity":
			return math.Inf(1), nil
		case "-Infinity":
			return math.Inf(-1), nil
		}
		return strconv.ParseFloat(t, 64)
	case int, int8, int16, int32, int64:
		iv, _ := CoerceInt64(t)
		return float64(iv), nil
	case uint, uint8, uint16, uint32, uint64:
		uv, _ := CoerceUint64(t)
		return float64(uv), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

// CoerceBool accepts bools and their string forms.
func CoerceBool(v interface{}) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		return strconv.ParseBool(t)
	default:
		return false, fmt.Errorf("expected bool, got %T", v)
	}
}

// CoerceString accepts strings and byte slices.
func CoerceString(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

// CoerceBytes accepts byte slices and base64 strings.
func CoerceBytes(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case string:
		b, err := base64.StdEncoding.DecodeString(t)
		if err != nil {
			return nil, fmt.Errorf("bytes value is not base64: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("expected bytes, got %T", v)
	}
}
