package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/richardartoul/molecule"
	moleculecodec "github.com/richardartoul/molecule/src/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/anirudhraja/zenwire/mempool"
	"github.com/anirudhraja/zenwire/wire"
)

func sampleNode() Record {
	return Record{
		"name": "root",
		"children": []interface{}{
			Record{"name": "a", "tags": []string{"x"}},
			Record{"name": "b", "limit": 0},
		},
		"counts": map[string]int64{"b": 2, "a": -1},
		"limit":  int32(42),
		"scalars": Record{
			"i32":   -7,
			"i64":   json.Number("-9000000000"),
			"u32":   uint32(math.MaxUint32),
			"u64":   "18446744073709551615",
			"s32":   int32(math.MinInt32),
			"s64":   int64(math.MaxInt64),
			"flag":  true,
			"f32":   3.0,
			"f64":   uint64(1 << 60),
			"sf32":  -2,
			"sf64":  "-3",
			"fl":    1.5,
			"db":    "-Infinity",
			"str":   "héllo",
			"raw":   "AAEC",
			"color": "GREEN",
		},
		"tags":    []interface{}{"t1", "t2"},
		"blob":    []byte{9, 8, 7},
		"deltas":  []int32{-1, 0, 1},
		"ignored": "not a field",
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	d := loadFixture(t).dispatcher(t, "fixture.Node")

	out, err := d.Marshal(sampleNode())
	require.NoError(t, err)

	size, err := d.Size(sampleNode())
	require.NoError(t, err)
	assert.Equal(t, len(out), size)
	assert.Equal(t, size, cap(out))

	rec, err := d.DecodeBytes(out)
	require.NoError(t, err)

	want := Record{
		"name": "root",
		"children": []interface{}{
			Record{"name": "a", "tags": []interface{}{"x"}},
			Record{"name": "b", "limit": int32(0)},
		},
		"counts": map[interface{}]interface{}{"a": int64(-1), "b": int64(2)},
		"limit":  int32(42),
		"scalars": Record{
			"i32":   int32(-7),
			"i64":   int64(-9000000000),
			"u32":   uint32(math.MaxUint32),
			"u64":   uint64(math.MaxUint64),
			"s32":   int32(math.MinInt32),
			"s64":   int64(math.MaxInt64),
			"flag":  true,
			"f32":   uint32(3),
			"f64":   uint64(1 << 60),
			"sf32":  int32(-2),
			"sf64":  int64(-3),
			"fl":    float32(1.5),
			"db":    math.Inf(-1),
			"str":   "héllo",
			"raw":   []byte{0, 1, 2},
			"color": int32(2),
		},
		"tags":   []interface{}{"t1", "t2"},
		"blob":   []byte{9, 8, 7},
		"deltas": []interface{}{int32(-1), int32(0), int32(1)},
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeFieldOrder(t *testing.T) {
	d := loadFixture(t).dispatcher(t, "fixture.Scalars")

	out, err := d.Marshal(Record{"color": 1, "str": "s", "i32": 1})
	require.NoError(t, err)

	var numbers []protowire.Number
	for len(out) > 0 {
		num, typ, n := protowire.ConsumeTag(out)
		require.Positive(t, n)
		numbers = append(numbers, num)
		out = out[n:]
		n = protowire.ConsumeFieldValue(num, typ, out)
		require.Positive(t, n)
		out = out[n:]
	}
	assert.Equal(t, []protowire.Number{1, 14, 16}, numbers)
}

func TestEncodeZeroValuesPresent(t *testing.T) {
	d := loadFixture(t).dispatcher(t, "fixture.Scalars")

	out, err := d.Marshal(Record{"i32": 0, "str": "", "flag": false})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x08, 0x00, 0x38, 0x00, 0x72, 0x00}, out)

	out, err = d.Marshal(Record{"i32": nil})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestEncodeNegativeInt32IsSignExtended(t *testing.T) {
	d := loadFixture(t).dispatcher(t, "fixture.Scalars")

	out, err := d.Marshal(Record{"i32": -1})
	require.NoError(t, err)
	want := append(append([]byte{0x08}, bytes.Repeat([]byte{0xFF}, 9)...), 0x01)
	assert.Equal(t, want, out)
}

func TestEncodeInteropDynamicpb(t *testing.T) {
	f := loadFixture(t)
	d := f.dispatcher(t, "fixture.Node")
	md := f.descriptor(t, "fixture.Node")

	out, err := d.Marshal(sampleNode())
	require.NoError(t, err)

	got := dynamicpb.NewMessage(md)
	require.NoError(t, proto.Unmarshal(out, got))

	fields := md.Fields()
	assert.Equal(t, "root", got.Get(fields.ByName("name")).String())
	assert.Equal(t, 2, got.Get(fields.ByName("children")).List().Len())
	assert.Equal(t, int64(-1), got.Get(fields.ByName("counts")).Map().Get(protoreflect.ValueOfString("a").MapKey()).Int())
	limit := got.Get(fields.ByName("limit")).Message()
	assert.Equal(t, int64(42), limit.Get(limit.Descriptor().Fields().ByName("value")).Int())

	scalars := got.Get(fields.ByName("scalars")).Message()
	sf := scalars.Descriptor().Fields()
	assert.Equal(t, int64(-7), scalars.Get(sf.ByName("i32")).Int())
	assert.Equal(t, uint64(math.MaxUint64), scalars.Get(sf.ByName("u64")).Uint())
	assert.Equal(t, int64(math.MinInt32), scalars.Get(sf.ByName("s32")).Int())
	assert.Equal(t, protoreflect.EnumNumber(2), scalars.Get(sf.ByName("color")).Enum())
	assert.True(t, math.IsInf(scalars.Get(sf.ByName("db")).Float(), -1))
	assert.Equal(t, []byte{0, 1, 2}, scalars.Get(sf.ByName("raw")).Bytes())

	// And back: what the reference implementation writes decodes to the same record.
	ref, err := proto.MarshalOptions{Deterministic: true}.Marshal(got)
	require.NoError(t, err)
	fromRef, err := d.DecodeBytes(ref)
	require.NoError(t, err)
	fromOurs, err := d.DecodeBytes(out)
	require.NoError(t, err)

	if diff := cmp.Diff(fromOurs, fromRef); diff != "" {
		t.Errorf("reference encoding decodes differently (-ours +ref):\n%s", diff)
	}
}

func TestEncodeMoleculeOracle(t *testing.T) {
	d := loadFixture(t).dispatcher(t, "fixture.Scalars")

	out, err := d.Marshal(Record{"i32": -3, "s64": -2, "fl": 0.25, "str": "mol"})
	require.NoError(t, err)

	seen := map[int32]interface{}{}
	err = molecule.MessageEach(moleculecodec.NewBuffer(out), func(num int32, v molecule.Value) (bool, error) {
		var (
			x   interface{}
			err error
		)
		switch num {
		case 1:
			x, err = v.AsInt32()
		case 6:
			x, err = v.AsSint64()
		case 12:
			x, err = v.AsFloat()
		case 14:
			x, err = v.AsStringSafe()
		}
		seen[num] = x
		return true, err
	})
	require.NoError(t, err)
	assert.Equal(t, map[int32]interface{}{1: int32(-3), 6: int64(-2), 12: float32(0.25), 14: "mol"}, seen)
}

func TestEncodeTo(t *testing.T) {
	d := loadFixture(t).dispatcher(t, "fixture.Node")

	for name, rec := range map[string]Record{
		"sample": sampleNode(),
		"zeros": {
			"name":    "",
			"limit":   0,
			"scalars": Record{"i32": 0, "fl": math.Copysign(0, -1), "db": 0.0, "flag": false, "raw": []byte{}},
			"counts":  map[string]int64{"": 0},
		},
		"empty": {},
	} {
		t.Run(name, func(t *testing.T) {
			want, err := d.Marshal(rec)
			require.NoError(t, err)

			var buf bytes.Buffer
			n, err := d.EncodeTo(&buf, rec)
			require.NoError(t, err)
			assert.Equal(t, len(want), n)
			assert.True(t, bytes.Equal(want, buf.Bytes()), "stream %x, marshal %x", buf.Bytes(), want)
		})
	}
}

func TestAppend(t *testing.T) {
	d := loadFixture(t).dispatcher(t, "fixture.Scalars")

	prefix := []byte{0xCA, 0xFE}
	out, err := d.Append(prefix, Record{"i32": 300})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCA, 0xFE, 0x08, 0xAC, 0x02}, out)
}

func TestMarshalWith(t *testing.T) {
	d := loadFixture(t).dispatcher(t, "fixture.Node")
	pool := mempool.NewBytePool(16, 1<<16, 2)

	want, err := d.Marshal(sampleNode())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		out, err := d.MarshalWith(sampleNode(), pool)
		require.NoError(t, err)
		assert.Equal(t, want, out)
		assert.True(t, pool.Put(out))
	}

	out, err := d.MarshalWith(sampleNode(), &mempool.HeapAllocator{})
	require.NoError(t, err)
	assert.Equal(t, want, out)
}

func TestEncodeErrors(t *testing.T) {
	d := loadFixture(t).dispatcher(t, "fixture.Node")

	for _, tc := range []struct {
		name string
		rec  Record
		path []string
	}{
		{"bad integer", Record{"scalars": Record{"i32": "abc"}}, []string{"scalars", "i32"}},
		{"int32 overflow", Record{"scalars": Record{"i32": int64(math.MaxInt32) + 1}}, []string{"scalars", "i32"}},
		{"negative unsigned", Record{"scalars": Record{"u32": -1}}, []string{"scalars", "u32"}},
		{"fractional", Record{"scalars": Record{"i64": 1.5}}, []string{"scalars", "i64"}},
		{"unknown enum", Record{"scalars": Record{"color": "PURPLE"}}, []string{"scalars", "color"}},
		{"not a message", Record{"scalars": 5}, []string{"scalars"}},
		{"not a list", Record{"tags": "t"}, []string{"tags"}},
		{"nested child", Record{"children": []interface{}{Record{}, Record{"limit": "x"}}}, []string{"children", "limit", "value"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Marshal(tc.rec)
			require.Error(t, err)
			var fe *wire.FieldError
			require.True(t, errors.As(err, &fe))
			assert.False(t, fe.IsDecoding)
			assert.Equal(t, tc.path, fe.FieldPath)

			_, err = d.EncodeTo(&bytes.Buffer{}, tc.rec)
			require.Error(t, err)
		})
	}
}

func TestEncodeJSONNames(t *testing.T) {
	d := loadFixture(t).dispatcher(t, "fixture.Node")

	byJSON, err := d.Marshal(Record{"displayName": "n"})
	require.NoError(t, err)
	byName, err := d.Marshal(Record{"display_name": "n"})
	require.NoError(t, err)
	assert.Equal(t, byName, byJSON)
	assert.NotEmpty(t, byName)
}
