package wire

import (
	"encoding/json"
	"math"
	"testing"
)

func TestCoerceInt64(t *testing.T) {
	tests := []struct {
		name    string
		input   interface{}
		want    int64
		wantErr bool
	}{
		{"int", 42, 42, false},
		{"json number", json.Number("-7"), -7, false},
		{"integral float", float64(3), 3, false},
		{"exponent string", "1e3", 1000, false},
		{"min int64 float", float64(math.MinInt64), math.MinInt64, false},
		{"fraction", 1.5, 0, true},
		{"float above range", 1e30, 0, true},
		{"float at 2^63", math.Ldexp(1, 63), 0, true},
		{"float below range", -1e30, 0, true},
		{"exponent string above range", "1e30", 0, true},
		{"json number above range", json.Number("1e30"), 0, true},
		{"uint64 above range", uint64(math.MaxUint64), 0, true},
		{"wrong type", true, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CoerceInt64(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CoerceInt64(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("CoerceInt64(%v) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestCoerceUint64(t *testing.T) {
	tests := []struct {
		name    string
		input   interface{}
		want    uint64
		wantErr bool
	}{
		{"uint32", uint32(9), 9, false},
		{"integral float", float64(1 << 40), 1 << 40, false},
		{"float at 2^63", math.Ldexp(1, 63), 1 << 63, false},
		{"negative int", -1, 0, true},
		{"negative float", -2.0, 0, true},
		{"float above range", 1e30, 0, true},
		{"float at 2^64", math.Ldexp(1, 64), 0, true},
		{"exponent string above range", "1e20", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CoerceUint64(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CoerceUint64(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("CoerceUint64(%v) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}
