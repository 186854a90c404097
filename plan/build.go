package plan

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/anirudhraja/zenwire/registry"
	"github.com/anirudhraja/zenwire/schema"
	"github.com/anirudhraja/zenwire/wire"
)

// Option configures a build.
type Option func(*builder)

// WithLogger logs every built message plan at debug level.
func WithLogger(logger log.Logger) Option {
	return func(b *builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

type builder struct {
	set    *Set
	logger log.Logger
}

func newBuilder(opts []Option) *builder {
	b := &builder{set: newSet(), logger: log.NewNopLogger()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var primitiveKinds = map[schema.PrimitiveType]Kind{
	schema.TypeDouble:   KindDouble,
	schema.TypeFloat:    KindFloat,
	schema.TypeInt64:    KindInt64,
	schema.TypeUint64:   KindUint64,
	schema.TypeInt32:    KindInt32,
	schema.TypeFixed64:  KindFixed64,
	schema.TypeFixed32:  KindFixed32,
	schema.TypeBool:     KindBool,
	schema.TypeString:   KindString,
	schema.TypeBytes:    KindBytes,
	schema.TypeUint32:   KindUint32,
	schema.TypeSfixed32: KindSfixed32,
	schema.TypeSfixed64: KindSfixed64,
	schema.TypeSint32:   KindSint32,
	schema.TypeSint64:   KindSint64,
}

// Build derives plans for every message loaded into reg.
//
// Message fields link to the plan of their type, so recursive types share
// plan pointers. Oneof members are planned as ordinary optional fields; map
// fields become repeated fields of a synthesized key/value entry message;
// wrapper types become a message with a single "value" field.
func Build(reg *registry.Registry, opts ...Option) (*Set, error) {
	b := newBuilder(opts)

	files := reg.Files()
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		pf := files[path]
		file := &File{Name: pf.Name, Package: pf.Package}
		for _, e := range pf.Enums {
			file.Enums = append(file.Enums, b.schemaEnum(e, joinName(pf.Package, e.Name)))
		}
		for _, m := range pf.Messages {
			msg, err := b.schemaMessage(m, joinName(pf.Package, m.Name))
			if err != nil {
				return nil, errors.Wrapf(err, "file %s", path)
			}
			file.Messages = append(file.Messages, msg)
		}
		b.set.Files = append(b.set.Files, file)
	}
	if err := b.link(); err != nil {
		return nil, err
	}
	return b.set, nil
}

func (b *builder) schemaEnum(e *schema.Enum, fullName string) *Enum {
	enum := &Enum{Name: e.Name, FullName: fullName}
	for _, v := range e.Values {
		enum.Values = append(enum.Values, EnumValue{Name: v.Name, Number: v.Number})
	}
	b.set.enums[fullName] = enum
	return enum
}

func (b *builder) schemaMessage(m *schema.Message, fullName string) (*Message, error) {
	msg := &Message{Name: m.Name, FullName: fullName, Deprecated: m.Deprecated, MapEntry: m.MapEntry}

	for _, e := range m.NestedEnums {
		msg.Enums = append(msg.Enums, b.schemaEnum(e, fullName+"."+e.Name))
	}
	for _, nested := range m.NestedTypes {
		sub, err := b.schemaMessage(nested, fullName+"."+nested.Name)
		if err != nil {
			return nil, err
		}
		msg.Messages = append(msg.Messages, sub)
	}

	fields := append([]*schema.Field{}, m.Fields...)
	for _, oneof := range m.OneofGroups {
		fields = append(fields, oneof.Fields...)
	}
	for _, sf := range fields {
		f, err := b.schemaField(msg, sf)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s.%s", fullName, sf.Name)
		}
		msg.Fields = append(msg.Fields, f)
	}
	if err := b.add(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (b *builder) schemaField(parent *Message, sf *schema.Field) (*Field, error) {
	f := &Field{
		Name:       sf.Name,
		JSONName:   sf.JsonName,
		Number:     wire.FieldNumber(sf.Number),
		Deprecated: sf.Deprecated,
		Repeated:   sf.Label == schema.LabelRepeated,
	}
	if f.JSONName == "" {
		f.JSONName = wire.LowerCamel(sf.Name)
	}

	switch sf.Type.Kind {
	case schema.KindPrimitive:
		k, ok := primitiveKinds[sf.Type.PrimitiveType]
		if !ok {
			return nil, errors.Wrapf(ErrSchema, "unknown primitive type %q", sf.Type.PrimitiveType)
		}
		f.Kind = k
	case schema.KindEnum:
		f.Kind = KindEnum
		f.TypeName = sf.Type.EnumType
	case schema.KindMessage:
		f.Kind = KindMessage
		f.TypeName = sf.Type.MessageType
	case schema.KindWrapper:
		wrapped, err := b.wrapperMessage(sf.Type.WrapperType)
		if err != nil {
			return nil, err
		}
		f.Kind = KindMessage
		f.TypeName = wrapped.FullName
	case schema.KindMap:
		entry, err := b.mapEntry(parent, sf)
		if err != nil {
			return nil, err
		}
		f.Kind = KindMessage
		f.Repeated = true
		f.TypeName = entry.FullName
	case schema.KindGroup:
		f.Kind = KindGroup
		f.TypeName = sf.Type.MessageType
	default:
		return nil, errors.Wrapf(ErrSchema, "unknown type kind %q", sf.Type.Kind)
	}
	return f, classify(f)
}

// wrapperMessage returns the plan of a google.protobuf wrapper type.
func (b *builder) wrapperMessage(w schema.WrapperType) (*Message, error) {
	fullName := string(w)
	if msg, ok := b.set.messages[fullName]; ok {
		return msg, nil
	}
	p, ok := schema.WrappedPrimitive(w)
	if !ok {
		return nil, errors.Wrapf(ErrSchema, "unknown wrapper type %q", w)
	}
	value := &Field{Name: "value", JSONName: "value", Number: 1, Kind: primitiveKinds[p]}
	if err := classify(value); err != nil {
		return nil, err
	}
	msg := &Message{
		Name:     fullName[strings.LastIndex(fullName, ".")+1:],
		FullName: fullName,
		Wrapper:  true,
		Fields:   []*Field{value},
	}
	return msg, b.add(msg)
}

// mapEntry synthesizes the key/value message a map field is carried as.
func (b *builder) mapEntry(parent *Message, sf *schema.Field) (*Message, error) {
	if sf.Type.MapKey == nil || sf.Type.MapValue == nil {
		return nil, errors.Wrap(ErrSchema, "map field without key or value type")
	}
	name := exportedName(sf.Name) + "Entry"
	entry := &Message{Name: name, FullName: parent.FullName + "." + name, MapEntry: true}
	for i, ft := range []*schema.FieldType{sf.Type.MapKey, sf.Type.MapValue} {
		fieldName := [...]string{"key", "value"}[i]
		f, err := b.schemaField(entry, &schema.Field{Name: fieldName, Number: int32(i + 1), Type: *ft})
		if err != nil {
			return nil, err
		}
		entry.Fields = append(entry.Fields, f)
	}
	parent.Messages = append(parent.Messages, entry)
	return entry, b.add(entry)
}

func classify(f *Field) error {
	wt, s, err := Classify(f.Kind)
	if err != nil {
		return err
	}
	f.WireType, f.Strategy = wt, s
	return nil
}

// add validates a message's field numbers, orders its fields and registers it.
func (b *builder) add(msg *Message) error {
	if _, dup := b.set.messages[msg.FullName]; dup {
		return errors.Wrapf(ErrSchema, "duplicate message %s", msg.FullName)
	}
	sort.SliceStable(msg.Fields, func(i, j int) bool { return msg.Fields[i].Number < msg.Fields[j].Number })
	msg.byNumber = make(map[wire.FieldNumber]*Field, len(msg.Fields))
	for _, f := range msg.Fields {
		if !f.Number.Valid() {
			return errors.Wrapf(ErrSchema, "%s.%s: field number %d out of range", msg.FullName, f.Name, f.Number)
		}
		if prev, dup := msg.byNumber[f.Number]; dup {
			return errors.Wrapf(ErrSchema, "%s: fields %s and %s share number %d", msg.FullName, prev.Name, f.Name, f.Number)
		}
		msg.byNumber[f.Number] = f
	}
	b.set.messages[msg.FullName] = msg
	return nil
}

// link resolves message and enum references once every plan exists.
func (b *builder) link() error {
	for _, name := range b.set.MessageNames() {
		msg := b.set.messages[name]
		for _, f := range msg.Fields {
			switch f.Kind {
			case KindMessage:
				sub, ok := b.set.messages[f.TypeName]
				if !ok {
					return errors.Wrapf(ErrSchema, "%s.%s: unknown message type %s", msg.FullName, f.Name, f.TypeName)
				}
				f.Message = sub
			case KindEnum:
				f.Enum = b.set.enums[f.TypeName]
			}
		}
	}
	for _, name := range b.set.MessageNames() {
		msg := b.set.messages[name]
		msg.Fingerprint = fingerprint(msg)
		level.Debug(b.logger).Log("msg", "built codec plan", "message", msg.FullName, "fields", len(msg.Fields), "fingerprint", fmt.Sprintf("%016x", msg.Fingerprint))
	}
	return nil
}

// fingerprint hashes the wire-relevant shape of a message. Equal schemas give
// equal fingerprints across builds and builders.
func fingerprint(msg *Message) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(msg.FullName)
	for _, f := range msg.Fields {
		_, _ = d.WriteString("|")
		_, _ = d.WriteString(strconv.Itoa(int(f.Number)))
		_, _ = d.WriteString(":" + f.Name + ":" + f.Kind.String() + ":" + f.Strategy.String() + ":" + f.TypeName)
		if f.Repeated {
			_, _ = d.WriteString(":repeated")
		}
	}
	return d.Sum64()
}

func joinName(pkg, name string) string {
	if pkg == "" {
		return name
	}
	return pkg + "." + name
}

// exportedName converts snake_case to CamelCase, the way protoc names map
// entry messages.
func exportedName(s string) string {
	camel := wire.LowerCamel(s)
	if camel == "" {
		return camel
	}
	return strings.ToUpper(camel[:1]) + camel[1:]
}
