package codec

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/anirudhraja/zenwire/plan"
	"github.com/anirudhraja/zenwire/registry"
	"github.com/anirudhraja/zenwire/wire"
)

const fixtureProto = `syntax = "proto3";
package fixture;

import "google/protobuf/wrappers.proto";

enum Color {
  COLOR_UNSPECIFIED = 0;
  RED = 1;
  GREEN = 2;
}

message Scalars {
  int32 i32 = 1;
  int64 i64 = 2;
  uint32 u32 = 3;
  uint64 u64 = 4;
  sint32 s32 = 5;
  sint64 s64 = 6;
  bool flag = 7;
  fixed32 f32 = 8;
  fixed64 f64 = 9;
  sfixed32 sf32 = 10;
  sfixed64 sf64 = 11;
  float fl = 12;
  double db = 13;
  string str = 14;
  bytes raw = 15;
  Color color = 16;
}

message Node {
  string name = 1;
  repeated Node children = 2;
  map<string, int64> counts = 3;
  google.protobuf.Int32Value limit = 4;
  Scalars scalars = 5;
  repeated string tags = 17;
  bytes blob = 20;
  repeated sint32 deltas = 21 [packed = false];
  repeated uint32 packed = 22;
  string display_name = 23;
}
`

type fixture struct {
	set   *plan.Set
	files *protoregistry.Files
}

func loadFixture(t testing.TB) *fixture {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fixture.proto"), []byte(fixtureProto), 0o644))

	fds, err := registry.CompileDescriptors(context.Background(), []string{dir}, "fixture.proto")
	require.NoError(t, err)
	set, err := plan.FromDescriptor(fds)
	require.NoError(t, err)
	files, err := protodesc.NewFiles(&descriptorpb.FileDescriptorSet{File: fds})
	require.NoError(t, err)
	return &fixture{set: set, files: files}
}

func (f *fixture) dispatcher(t testing.TB, name string, opts ...Option) *Dispatcher {
	t.Helper()
	msg, err := f.set.Message(name)
	require.NoError(t, err)
	d, err := Compile(msg, opts...)
	require.NoError(t, err)
	return d
}

func (f *fixture) descriptor(t testing.TB, name string) protoreflect.MessageDescriptor {
	t.Helper()
	desc, err := f.files.FindDescriptorByName(protoreflect.FullName(name))
	require.NoError(t, err)
	md, ok := desc.(protoreflect.MessageDescriptor)
	require.True(t, ok)
	return md
}

func strict() Option {
	cfg := wire.DefaultConfig()
	cfg.StrictWireType = true
	return WithConfig(cfg)
}
