package registry

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/anirudhraja/zenwire/schema"
)

func writeProto(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const commonProto = `syntax = "proto3";
package shop.common;

enum Currency {
  CURRENCY_UNSPECIFIED = 0;
  EUR = 1;
  USD = 2;
}

message Money {
  Currency currency = 1;
  sint64 units = 2;
}
`

const orderProto = `syntax = "proto3";
package shop.orders;

import "common/money.proto";
import "google/protobuf/wrappers.proto";

message Order {
  message Line {
    string sku = 1;
    uint32 quantity = 2;
    shop.common.Money price = 3;
  }
  enum State {
    NEW = 0;
    PAID = 1;
  }

  uint64 id = 1;
  repeated Line lines = 2;
  State state = 3;
  string legacy_ref = 4 [deprecated = true, json_name = "legacyRef"];
  google.protobuf.StringValue note = 5;
  map<string, int32> labels = 6;
  oneof payer {
    string email = 7;
    int64 account = 8;
  }
  Order parent = 16;
}

service OrderService {
  rpc Get(Order) returns (stream Order.Line);
}
`

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry()

	if registry == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if registry.messages != nil {
		t.Error("Expected messages map to be nil initially")
	}
	if len(registry.ListMessages()) != 0 {
		t.Error("Expected no messages initially")
	}
}

func TestLoadSchema_NonExistentPath(t *testing.T) {
	registry := NewRegistry()

	err := registry.LoadSchema("/nonexistent/path")
	if err == nil || !strings.Contains(err.Error(), "path does not exist") {
		t.Errorf("Expected 'path does not exist' error, got: %v", err)
	}
}

func TestLoadSchema_NonProtoFile(t *testing.T) {
	path := writeProto(t, t.TempDir(), "test.txt", "hello")

	err := NewRegistry().LoadSchema(path)
	if err == nil || !strings.Contains(err.Error(), "is not a .proto file") {
		t.Errorf("Expected 'is not a .proto file' error, got: %v", err)
	}
}

func TestLoadSchemaFromFile(t *testing.T) {
	dir := t.TempDir()
	writeProto(t, dir, "common/money.proto", commonProto)
	writeProto(t, dir, "orders/order.proto", orderProto)

	registry := NewRegistry(dir)
	if err := registry.LoadSchemaFromFile("orders/order.proto"); err != nil {
		t.Fatalf("LoadSchemaFromFile failed: %v", err)
	}

	wantMessages := []string{"shop.common.Money", "shop.orders.Order", "shop.orders.Order.Line"}
	if got := registry.ListMessages(); !reflect.DeepEqual(got, wantMessages) {
		t.Errorf("ListMessages() = %v, want %v", got, wantMessages)
	}
	wantEnums := []string{"shop.common.Currency", "shop.orders.Order.State"}
	if got := registry.ListEnums(); !reflect.DeepEqual(got, wantEnums) {
		t.Errorf("ListEnums() = %v, want %v", got, wantEnums)
	}

	order, err := registry.GetMessage("shop.orders.Order")
	if err != nil {
		t.Fatal(err)
	}
	byName := map[string]*schema.Field{}
	for _, f := range order.Fields {
		byName[f.Name] = f
	}

	tests := []struct {
		field string
		want  schema.FieldType
	}{
		{"id", schema.FieldType{Kind: schema.KindPrimitive, PrimitiveType: schema.TypeUint64}},
		{"lines", schema.FieldType{Kind: schema.KindMessage, MessageType: "shop.orders.Order.Line"}},
		{"state", schema.FieldType{Kind: schema.KindEnum, EnumType: "shop.orders.Order.State"}},
		{"note", schema.FieldType{Kind: schema.KindWrapper, WrapperType: schema.WrapperStringValue}},
		{"parent", schema.FieldType{Kind: schema.KindMessage, MessageType: "shop.orders.Order"}},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			f, ok := byName[tt.field]
			if !ok {
				t.Fatalf("field %s missing", tt.field)
			}
			if !reflect.DeepEqual(f.Type, tt.want) {
				t.Errorf("type = %+v, want %+v", f.Type, tt.want)
			}
		})
	}

	if f := byName["lines"]; f.Label != schema.LabelRepeated {
		t.Errorf("lines label = %s", f.Label)
	}
	if f := byName["legacy_ref"]; !f.Deprecated || f.JsonName != "legacyRef" {
		t.Errorf("legacy_ref options not applied: %+v", f)
	}
	if f := byName["labels"]; f.Type.Kind != schema.KindMap || f.Type.MapValue.PrimitiveType != schema.TypeInt32 {
		t.Errorf("labels should be a map<string,int32>: %+v", f.Type)
	}
	if len(order.OneofGroups) != 1 || len(order.OneofGroups[0].Fields) != 2 {
		t.Fatalf("expected one oneof with two fields, got %+v", order.OneofGroups)
	}

	line, err := registry.GetMessage("Order.Line")
	if err != nil {
		t.Fatal(err)
	}
	if line.Fields[2].Type.MessageType != "shop.common.Money" {
		t.Errorf("cross-package reference resolved to %q", line.Fields[2].Type.MessageType)
	}

	svc, err := registry.GetService("OrderService")
	if err != nil {
		t.Fatal(err)
	}
	m := svc.Methods[0]
	if m.InputType != "shop.orders.Order" || m.OutputType != "shop.orders.Order.Line" || !m.ServerStreaming || m.ClientStreaming {
		t.Errorf("unexpected method %+v", m)
	}
}

func TestLoadSchema_Directory(t *testing.T) {
	dir := t.TempDir()
	writeProto(t, dir, "common/money.proto", commonProto)
	writeProto(t, dir, "README.md", "not a proto")

	registry := NewRegistry()
	if err := registry.LoadSchema(dir); err != nil {
		t.Fatalf("LoadSchema failed: %v", err)
	}
	if _, err := registry.GetEnum("Currency"); err != nil {
		t.Errorf("GetEnum: %v", err)
	}
	if len(registry.Files()) != 1 {
		t.Errorf("expected one file, got %d", len(registry.Files()))
	}
}

func TestLoadSchema_UnresolvedType(t *testing.T) {
	path := writeProto(t, t.TempDir(), "bad.proto", `syntax = "proto3";
message A { Missing m = 1; }
`)
	err := NewRegistry().LoadSchema(path)
	if err == nil || !strings.Contains(err.Error(), "unable to resolve type name: Missing") {
		t.Errorf("expected resolution error, got %v", err)
	}
}

func TestLoadSchema_Groups(t *testing.T) {
	path := writeProto(t, t.TempDir(), "legacy.proto", `syntax = "proto2";
package legacy;
message Search {
  repeated group Result = 1 {
    required string url = 2;
  }
}
`)
	registry := NewRegistry()
	if err := registry.LoadSchema(path); err != nil {
		t.Fatal(err)
	}
	msg, err := registry.GetMessage("legacy.Search")
	if err != nil {
		t.Fatal(err)
	}
	f := msg.Fields[0]
	if f.Type.Kind != schema.KindGroup || f.Type.MessageType != "legacy.Search.Result" || f.Name != "result" {
		t.Errorf("unexpected group field %+v", f)
	}
	if _, err := registry.GetMessage("legacy.Search.Result"); err != nil {
		t.Errorf("group body should be registered: %v", err)
	}
}

func TestLoadRepo(t *testing.T) {
	repo := &schema.ProtoRepo{ProtoFiles: map[string]*schema.ProtoFile{
		"a.proto": {
			Name:    "a.proto",
			Package: "pkg",
			Messages: []*schema.Message{{
				Name: "Node",
				Fields: []*schema.Field{
					{Name: "next", Number: 1, Type: schema.FieldType{Kind: schema.KindMessage, MessageType: "Node"}},
				},
			}},
		},
	}}
	registry := NewRegistry()
	if err := registry.LoadRepo(repo); err != nil {
		t.Fatal(err)
	}
	msg, _ := registry.GetMessage("pkg.Node")
	if msg.Fields[0].Type.MessageType != "pkg.Node" {
		t.Errorf("self reference resolved to %q", msg.Fields[0].Type.MessageType)
	}
	if registry.FullName(msg) != "pkg.Node" {
		t.Errorf("FullName = %q", registry.FullName(msg))
	}
	if err := registry.LoadRepo(nil); err == nil {
		t.Error("expected error for nil repo")
	}
}

func TestGetReferencedType(t *testing.T) {
	entities := map[string]struct{}{
		"a.b.Outer":       {},
		"a.b.Outer.Inner": {},
		"a.Inner":         {},
		"c.Other":         {},
	}
	tests := []struct {
		typeName, prefix, want string
		wantErr                bool
	}{
		{"Inner", "a.b.Outer", "a.b.Outer.Inner", false},
		{"Inner", "a.b", "a.Inner", false},
		{"Outer.Inner", "a.b", "a.b.Outer.Inner", false},
		{".a.Inner", "a.b.Outer", "a.Inner", false},
		{"c.Other", "a.b", "c.Other", false},
		{".Missing", "a", "", true},
		{"Missing", "a", "", true},
	}
	for _, tt := range tests {
		got, err := getReferencedType(tt.typeName, tt.prefix, entities)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("getReferencedType(%q, %q) = (%q, %v), want %q", tt.typeName, tt.prefix, got, err, tt.want)
		}
	}
}

func TestCompileDescriptors(t *testing.T) {
	dir := t.TempDir()
	writeProto(t, dir, "common/money.proto", commonProto)
	writeProto(t, dir, "orders/order.proto", orderProto)

	fds, err := CompileDescriptors(context.Background(), []string{dir}, "orders/order.proto")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, fd := range fds {
		names = append(names, fd.GetName())
	}
	want := []string{"common/money.proto", "google/protobuf/wrappers.proto", "orders/order.proto"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("files = %v, want %v", names, want)
	}
}
