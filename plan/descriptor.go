package plan

import (
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/anirudhraja/zenwire/schema"
	"github.com/anirudhraja/zenwire/wire"
)

var descriptorKinds = map[descriptorpb.FieldDescriptorProto_Type]Kind{
	descriptorpb.FieldDescriptorProto_TYPE_DOUBLE:   KindDouble,
	descriptorpb.FieldDescriptorProto_TYPE_FLOAT:    KindFloat,
	descriptorpb.FieldDescriptorProto_TYPE_INT64:    KindInt64,
	descriptorpb.FieldDescriptorProto_TYPE_UINT64:   KindUint64,
	descriptorpb.FieldDescriptorProto_TYPE_INT32:    KindInt32,
	descriptorpb.FieldDescriptorProto_TYPE_FIXED64:  KindFixed64,
	descriptorpb.FieldDescriptorProto_TYPE_FIXED32:  KindFixed32,
	descriptorpb.FieldDescriptorProto_TYPE_BOOL:     KindBool,
	descriptorpb.FieldDescriptorProto_TYPE_STRING:   KindString,
	descriptorpb.FieldDescriptorProto_TYPE_GROUP:    KindGroup,
	descriptorpb.FieldDescriptorProto_TYPE_MESSAGE:  KindMessage,
	descriptorpb.FieldDescriptorProto_TYPE_BYTES:    KindBytes,
	descriptorpb.FieldDescriptorProto_TYPE_UINT32:   KindUint32,
	descriptorpb.FieldDescriptorProto_TYPE_ENUM:     KindEnum,
	descriptorpb.FieldDescriptorProto_TYPE_SFIXED32: KindSfixed32,
	descriptorpb.FieldDescriptorProto_TYPE_SFIXED64: KindSfixed64,
	descriptorpb.FieldDescriptorProto_TYPE_SINT32:   KindSint32,
	descriptorpb.FieldDescriptorProto_TYPE_SINT64:   KindSint64,
}

// FromDescriptor builds plans from compiled file descriptors, such as those
// returned by registry.CompileDescriptors or embedded in generated code.
// Files may be given in any order; references to wrapper types that are not
// among them are satisfied with synthesized wrapper plans.
func FromDescriptor(fds []*descriptorpb.FileDescriptorProto, opts ...Option) (*Set, error) {
	b := newBuilder(opts)
	for _, fd := range fds {
		file := &File{Name: fd.GetName(), Package: fd.GetPackage()}
		for _, ed := range fd.GetEnumType() {
			file.Enums = append(file.Enums, b.descriptorEnum(ed, joinName(fd.GetPackage(), ed.GetName())))
		}
		for _, md := range fd.GetMessageType() {
			msg, err := b.descriptorMessage(md, joinName(fd.GetPackage(), md.GetName()))
			if err != nil {
				return nil, errors.Wrapf(err, "file %s", fd.GetName())
			}
			file.Messages = append(file.Messages, msg)
		}
		b.set.Files = append(b.set.Files, file)
	}
	if err := b.linkWrappers(); err != nil {
		return nil, err
	}
	if err := b.link(); err != nil {
		return nil, err
	}
	return b.set, nil
}

func (b *builder) descriptorEnum(ed *descriptorpb.EnumDescriptorProto, fullName string) *Enum {
	enum := &Enum{Name: ed.GetName(), FullName: fullName}
	for _, v := range ed.GetValue() {
		enum.Values = append(enum.Values, EnumValue{Name: v.GetName(), Number: v.GetNumber()})
	}
	b.set.enums[fullName] = enum
	return enum
}

func (b *builder) descriptorMessage(md *descriptorpb.DescriptorProto, fullName string) (*Message, error) {
	msg := &Message{
		Name:       md.GetName(),
		FullName:   fullName,
		Deprecated: md.GetOptions().GetDeprecated(),
		MapEntry:   md.GetOptions().GetMapEntry(),
	}
	if _, ok := schema.WrappedPrimitive(schema.WrapperType(fullName)); ok {
		msg.Wrapper = true
	}
	for _, ed := range md.GetEnumType() {
		msg.Enums = append(msg.Enums, b.descriptorEnum(ed, fullName+"."+ed.GetName()))
	}
	for _, nested := range md.GetNestedType() {
		sub, err := b.descriptorMessage(nested, fullName+"."+nested.GetName())
		if err != nil {
			return nil, err
		}
		msg.Messages = append(msg.Messages, sub)
	}
	for _, fd := range md.GetField() {
		kind, ok := descriptorKinds[fd.GetType()]
		if !ok {
			return nil, errors.Wrapf(ErrSchema, "field %s.%s: unknown type %v", fullName, fd.GetName(), fd.GetType())
		}
		f := &Field{
			Name:       fd.GetName(),
			JSONName:   fd.GetJsonName(),
			Number:     wire.FieldNumber(fd.GetNumber()),
			Kind:       kind,
			Deprecated: fd.GetOptions().GetDeprecated(),
			Repeated:   fd.GetLabel() == descriptorpb.FieldDescriptorProto_LABEL_REPEATED,
			TypeName:   strings.TrimPrefix(fd.GetTypeName(), "."),
		}
		if f.JSONName == "" {
			f.JSONName = wire.LowerCamel(f.Name)
		}
		if err := classify(f); err != nil {
			return nil, errors.Wrapf(err, "field %s.%s", fullName, f.Name)
		}
		msg.Fields = append(msg.Fields, f)
	}
	if err := b.add(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// linkWrappers synthesizes plans for referenced wrapper types whose
// descriptor was not supplied.
func (b *builder) linkWrappers() error {
	for _, name := range b.set.MessageNames() {
		for _, f := range b.set.messages[name].Fields {
			if f.Kind != KindMessage {
				continue
			}
			if _, ok := b.set.messages[f.TypeName]; ok {
				continue
			}
			if _, ok := schema.WrappedPrimitive(schema.WrapperType(f.TypeName)); !ok {
				continue
			}
			if _, err := b.wrapperMessage(schema.WrapperType(f.TypeName)); err != nil {
				return err
			}
		}
	}
	return nil
}
