package registry

import (
	"path/filepath"
	"strconv"
	"strings"

	protoparserparser "github.com/yoheimuta/go-protoparser/v4/parser"

	"github.com/anirudhraja/zenwire/schema"
)

// convertProto turns a parsed .proto file into the schema tree. Type names
// are left as written; buildDefinitions resolves them once every file of the
// load is registered.
func convertProto(parsed *protoparserparser.Proto, filePath string) *schema.ProtoFile {
	protoFile := &schema.ProtoFile{
		Name:     filepath.Base(filePath),
		Syntax:   "proto2",
		Imports:  []*schema.Import{},
		Messages: []*schema.Message{},
		Enums:    []*schema.Enum{},
		Services: []*schema.Service{},
	}
	if parsed == nil {
		return protoFile
	}
	if parsed.Syntax != nil && parsed.Syntax.ProtobufVersion != "" {
		protoFile.Syntax = parsed.Syntax.ProtobufVersion
	}

	for _, body := range parsed.ProtoBody {
		switch b := body.(type) {
		case *protoparserparser.Package:
			protoFile.Package = b.Name
		case *protoparserparser.Import:
			protoFile.Imports = append(protoFile.Imports, &schema.Import{
				Path:   strings.Trim(b.Location, `"`),
				Public: b.Modifier == protoparserparser.ImportModifierPublic,
				Weak:   b.Modifier == protoparserparser.ImportModifierWeak,
			})
		case *protoparserparser.Message:
			protoFile.Messages = append(protoFile.Messages, convertMessage(b.MessageName, b.MessageBody))
		case *protoparserparser.Enum:
			protoFile.Enums = append(protoFile.Enums, convertEnum(b))
		case *protoparserparser.Service:
			protoFile.Services = append(protoFile.Services, convertService(b))
		}
	}
	return protoFile
}

func convertMessage(name string, body []protoparserparser.Visitee) *schema.Message {
	msg := &schema.Message{Name: name}
	for _, element := range body {
		switch e := element.(type) {
		case *protoparserparser.Field:
			field := &schema.Field{
				Name:       e.FieldName,
				Number:     parseNumber(e.FieldNumber),
				Label:      labelOf(e.IsRepeated, e.IsRequired),
				Type:       convertProtoType(e.Type),
				OneofIndex: -1,
			}
			applyFieldOptions(field, e.FieldOptions)
			msg.Fields = append(msg.Fields, field)
		case *protoparserparser.MapField:
			keyType := convertProtoType(e.KeyType)
			valueType := convertProtoType(e.Type)
			field := &schema.Field{
				Name:       e.MapName,
				Number:     parseNumber(e.FieldNumber),
				Label:      schema.LabelRepeated,
				Type:       schema.FieldType{Kind: schema.KindMap, MapKey: &keyType, MapValue: &valueType},
				OneofIndex: -1,
			}
			applyFieldOptions(field, e.FieldOptions)
			msg.Fields = append(msg.Fields, field)
		case *protoparserparser.Oneof:
			oneof := &schema.Oneof{Name: e.OneofName}
			for _, of := range e.OneofFields {
				field := &schema.Field{
					Name:       of.FieldName,
					Number:     parseNumber(of.FieldNumber),
					Label:      schema.LabelOptional,
					Type:       convertProtoType(of.Type),
					OneofIndex: int32(len(msg.OneofGroups)),
				}
				applyFieldOptions(field, of.FieldOptions)
				oneof.Fields = append(oneof.Fields, field)
			}
			msg.OneofGroups = append(msg.OneofGroups, oneof)
		case *protoparserparser.GroupField:
			msg.Fields = append(msg.Fields, &schema.Field{
				Name:       strings.ToLower(e.GroupName),
				Number:     parseNumber(e.FieldNumber),
				Label:      labelOf(e.IsRepeated, e.IsRequired),
				Type:       schema.FieldType{Kind: schema.KindGroup, MessageType: e.GroupName},
				OneofIndex: -1,
			})
			msg.NestedTypes = append(msg.NestedTypes, convertMessage(e.GroupName, e.MessageBody))
		case *protoparserparser.Message:
			msg.NestedTypes = append(msg.NestedTypes, convertMessage(e.MessageName, e.MessageBody))
		case *protoparserparser.Enum:
			msg.NestedEnums = append(msg.NestedEnums, convertEnum(e))
		case *protoparserparser.Option:
			if e.OptionName == "deprecated" && e.Constant == "true" {
				msg.Deprecated = true
			}
			if e.OptionName == "map_entry" && e.Constant == "true" {
				msg.MapEntry = true
			}
		}
	}
	return msg
}

func convertEnum(e *protoparserparser.Enum) *schema.Enum {
	enum := &schema.Enum{Name: e.EnumName}
	for _, element := range e.EnumBody {
		switch v := element.(type) {
		case *protoparserparser.EnumField:
			enum.Values = append(enum.Values, &schema.EnumValue{
				Name:   v.Ident,
				Number: parseNumber(v.Number),
			})
		case *protoparserparser.Option:
			if v.OptionName == "allow_alias" && v.Constant == "true" {
				enum.AllowAlias = true
			}
		}
	}
	return enum
}

func convertService(s *protoparserparser.Service) *schema.Service {
	service := &schema.Service{Name: s.ServiceName}
	for _, element := range s.ServiceBody {
		rpc, ok := element.(*protoparserparser.RPC)
		if !ok {
			continue
		}
		method := &schema.Method{Name: rpc.RPCName}
		if rpc.RPCRequest != nil {
			method.InputType = rpc.RPCRequest.MessageType
			method.ClientStreaming = rpc.RPCRequest.IsStream
		}
		if rpc.RPCResponse != nil {
			method.OutputType = rpc.RPCResponse.MessageType
			method.ServerStreaming = rpc.RPCResponse.IsStream
		}
		service.Methods = append(service.Methods, method)
	}
	return service
}

// convertProtoType maps a type as written in the .proto source. Names that
// are not scalar keywords are recorded as message references until resolved.
func convertProtoType(protoType string) schema.FieldType {
	if p, ok := schema.LookupPrimitive(protoType); ok {
		return schema.FieldType{Kind: schema.KindPrimitive, PrimitiveType: p}
	}
	return schema.FieldType{Kind: schema.KindMessage, MessageType: protoType}
}

func applyFieldOptions(field *schema.Field, options []*protoparserparser.FieldOption) {
	for _, opt := range options {
		switch opt.OptionName {
		case "deprecated":
			field.Deprecated = opt.Constant == "true"
		case "json_name":
			field.JsonName = strings.Trim(opt.Constant, `"'`)
		case "default":
			field.DefaultValue = strings.Trim(opt.Constant, `"'`)
		}
	}
}

func labelOf(repeated, required bool) schema.FieldLabel {
	switch {
	case repeated:
		return schema.LabelRepeated
	case required:
		return schema.LabelRequired
	}
	return schema.LabelOptional
}

// parseNumber accepts decimal, hex and octal literals. Malformed numbers
// become 0, which plan building rejects.
func parseNumber(s string) int32 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0
	}
	return int32(n)
}
