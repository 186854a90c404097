package wire

import (
	"os"
	"strconv"
)

const (
	// DefaultMaxLengthDelimited bounds the declared size of any single
	// length-delimited field.
	DefaultMaxLengthDelimited = 32_000_000
	// DefaultStreamBufferSize is the window size of stream-backed views.
	DefaultStreamBufferSize = 4096
	// DefaultMaxDepth bounds embedded message recursion.
	DefaultMaxDepth = 100
)

// Config controls decoder limits and strictness.
type Config struct {
	// MaxLengthDelimited is the largest length prefix accepted on decode.
	// Larger prefixes fail before anything is read or allocated.
	MaxLengthDelimited int `yaml:"max_length_delimited"`

	// StrictWireType: when true, a known field arriving with a wire type other
	// than the one its kind implies fails the decode. When false (default) the
	// field is skipped like an unknown field.
	StrictWireType bool `yaml:"strict_wire_type"`

	// MaxDepth limits how deeply embedded messages may nest.
	MaxDepth int `yaml:"max_depth"`

	// StreamBufferSize is the window of stream-backed views.
	StreamBufferSize int `yaml:"stream_buffer_size"`
}

// DefaultConfig returns the configuration used when none is supplied,
// including any ZENWIRE_* environment overrides.
func DefaultConfig() Config {
	c := Config{
		MaxLengthDelimited: DefaultMaxLengthDelimited,
		MaxDepth:           DefaultMaxDepth,
		StreamBufferSize:   DefaultStreamBufferSize,
	}
	applyEnv(&c)
	return c
}

// WithDefaults fills zero-valued limits from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.MaxLengthDelimited <= 0 {
		c.MaxLengthDelimited = d.MaxLengthDelimited
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = d.MaxDepth
	}
	if c.StreamBufferSize <= 0 {
		c.StreamBufferSize = d.StreamBufferSize
	}
	return c
}

func applyEnv(c *Config) {
	// Optional env toggles for test harnesses; defaults remain unchanged if unset.
	if v := os.Getenv("ZENWIRE_STRICT_WIRE"); v == "1" || v == "true" {
		c.StrictWireType = true
	}
	if n, ok := envInt("ZENWIRE_MAX_LENGTH_DELIMITED"); ok {
		c.MaxLengthDelimited = n
	}
	if n, ok := envInt("ZENWIRE_MAX_DEPTH"); ok {
		c.MaxDepth = n
	}
	if n, ok := envInt("ZENWIRE_STREAM_BUFFER"); ok {
		c.StreamBufferSize = n
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
