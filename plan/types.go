// Package plan describes how every field of a message type is framed on the
// wire. Plans are built once from a schema and never change afterwards.
package plan

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/anirudhraja/zenwire/wire"
)

// Build errors. Both are fatal for the schema and are reported before any
// message is decoded.
var (
	ErrUnsupportedKind = errors.New("unsupported field kind")
	ErrSchema          = errors.New("invalid schema")
)

// Kind is the declared type of a field.
type Kind int

const (
	KindBool Kind = iota + 1
	KindInt32
	KindUint32
	KindSint32
	KindInt64
	KindUint64
	KindSint64
	KindFixed32
	KindSfixed32
	KindFixed64
	KindSfixed64
	KindFloat
	KindDouble
	KindString
	KindBytes
	KindMessage
	KindEnum
	KindGroup
)

var kindNames = map[Kind]string{
	KindBool:     "bool",
	KindInt32:    "int32",
	KindUint32:   "uint32",
	KindSint32:   "sint32",
	KindInt64:    "int64",
	KindUint64:   "uint64",
	KindSint64:   "sint64",
	KindFixed32:  "fixed32",
	KindSfixed32: "sfixed32",
	KindFixed64:  "fixed64",
	KindSfixed64: "sfixed64",
	KindFloat:    "float",
	KindDouble:   "double",
	KindString:   "string",
	KindBytes:    "bytes",
	KindMessage:  "message",
	KindEnum:     "enum",
	KindGroup:    "group",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Strategy is the serialization routine a field is encoded and decoded with.
type Strategy int

const (
	Varint32 Strategy = iota + 1
	Zigzag32
	Fixed32
	Varint64
	Zigzag64
	Fixed64
	Bytes
)

var strategyNames = map[Strategy]string{
	Varint32: "varint32",
	Zigzag32: "zigzag32",
	Fixed32:  "fixed32",
	Varint64: "varint64",
	Zigzag64: "zigzag64",
	Fixed64:  "fixed64",
	Bytes:    "bytes",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s Strategy) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// WireType returns the wire type every value of the strategy is framed with.
func (s Strategy) WireType() wire.WireType {
	switch s {
	case Fixed32:
		return wire.WireFixed32
	case Fixed64:
		return wire.WireFixed64
	case Bytes:
		return wire.WireBytes
	}
	return wire.WireVarint
}

var strategies = map[Kind]Strategy{
	KindBool:     Varint32,
	KindEnum:     Varint32,
	KindInt32:    Varint32,
	KindUint32:   Varint32,
	KindSint32:   Zigzag32,
	KindInt64:    Varint64,
	KindUint64:   Varint64,
	KindSint64:   Zigzag64,
	KindString:   Bytes,
	KindBytes:    Bytes,
	KindMessage:  Bytes,
	KindFloat:    Fixed32,
	KindFixed32:  Fixed32,
	KindSfixed32: Fixed32,
	KindDouble:   Fixed64,
	KindFixed64:  Fixed64,
	KindSfixed64: Fixed64,
}

// Classify returns the wire type and strategy for a kind. Groups, and any
// kind outside the table, fail with ErrUnsupportedKind.
func Classify(k Kind) (wire.WireType, Strategy, error) {
	s, ok := strategies[k]
	if !ok {
		return 0, 0, errors.Wrapf(ErrUnsupportedKind, "%s", k)
	}
	return s.WireType(), s, nil
}

// Field is the plan of one field.
type Field struct {
	Name       string           `yaml:"name"`
	JSONName   string           `yaml:"json_name,omitempty"`
	Number     wire.FieldNumber `yaml:"number"`
	Kind       Kind             `yaml:"kind"`
	WireType   wire.WireType    `yaml:"wire_type"`
	Strategy   Strategy         `yaml:"strategy"`
	Deprecated bool             `yaml:"deprecated,omitempty"`
	Repeated   bool             `yaml:"repeated,omitempty"`
	TypeName   string           `yaml:"type_name,omitempty"`

	Message *Message `yaml:"-"` // set for KindMessage
	Enum    *Enum    `yaml:"-"` // set for KindEnum when the enum is known
}

// Tag returns the field's tag value.
func (f *Field) Tag() wire.Tag {
	return wire.MakeTag(f.Number, f.WireType)
}

// Message is the plan of one message type. Fields are ordered by number.
type Message struct {
	Name        string     `yaml:"name"`
	FullName    string     `yaml:"full_name"`
	Deprecated  bool       `yaml:"deprecated,omitempty"`
	MapEntry    bool       `yaml:"map_entry,omitempty"` // synthesized key/value pair of a map field
	Wrapper     bool       `yaml:"wrapper,omitempty"`   // google.protobuf wrapper, carries its scalar in field 1
	Fields      []*Field   `yaml:"fields"`
	Messages    []*Message `yaml:"messages,omitempty"`
	Enums       []*Enum    `yaml:"enums,omitempty"`
	Fingerprint uint64     `yaml:"fingerprint"`

	byNumber map[wire.FieldNumber]*Field
}

// FieldByNumber returns the field with the given number, or nil.
func (m *Message) FieldByNumber(n wire.FieldNumber) *Field {
	return m.byNumber[n]
}

// FieldByName returns the field with the given name or JSON name, or nil.
func (m *Message) FieldByName(name string) *Field {
	for _, f := range m.Fields {
		if f.Name == name || (f.JSONName != "" && f.JSONName == name) {
			return f
		}
	}
	return nil
}

// Enum is the plan of an enum type. Values are carried as their numbers; names
// are only used to accept symbolic input on encode.
type Enum struct {
	Name     string      `yaml:"name"`
	FullName string      `yaml:"full_name"`
	Values   []EnumValue `yaml:"values"`
}

// EnumValue is a single enum constant.
type EnumValue struct {
	Name   string `yaml:"name"`
	Number int32  `yaml:"number"`
}

// Number returns the value of the named constant.
func (e *Enum) Number(name string) (int32, bool) {
	for _, v := range e.Values {
		if v.Name == name {
			return v.Number, true
		}
	}
	return 0, false
}

// File groups the top-level plans of one schema file.
type File struct {
	Name     string     `yaml:"name"`
	Package  string     `yaml:"package,omitempty"`
	Messages []*Message `yaml:"messages"`
	Enums    []*Enum    `yaml:"enums,omitempty"`
}

// Set holds every plan produced by one build, keyed by fully qualified name.
type Set struct {
	Files []*File

	messages map[string]*Message
	enums    map[string]*Enum
}

func newSet() *Set {
	return &Set{
		messages: make(map[string]*Message),
		enums:    make(map[string]*Enum),
	}
}

// Message looks a plan up by fully qualified name, falling back to a unique
// suffix match.
func (s *Set) Message(name string) (*Message, error) {
	name = strings.TrimPrefix(name, ".")
	if m, ok := s.messages[name]; ok {
		return m, nil
	}
	var found *Message
	for _, full := range s.MessageNames() {
		if strings.HasSuffix(full, "."+name) {
			if found != nil {
				return nil, errors.Errorf("message name %s is ambiguous", name)
			}
			found = s.messages[full]
		}
	}
	if found == nil {
		return nil, errors.Errorf("message not found: %s", name)
	}
	return found, nil
}

// Enum looks an enum plan up by fully qualified name.
func (s *Set) Enum(name string) (*Enum, bool) {
	e, ok := s.enums[strings.TrimPrefix(name, ".")]
	return e, ok
}

// MessageNames returns the fully qualified names of all message plans.
func (s *Set) MessageNames() []string {
	names := make([]string, 0, len(s.messages))
	for name := range s.messages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
