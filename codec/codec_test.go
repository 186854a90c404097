package codec

import (
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anirudhraja/zenwire/plan"
	"github.com/anirudhraja/zenwire/wire"
)

func TestCompileDispatchTable(t *testing.T) {
	d := loadFixture(t).dispatcher(t, "fixture.Node", WithLogger(log.NewNopLogger()))
	root := d.root

	// name(1, bytes) and scalars(5, bytes) fit in one tag byte.
	require.NotNil(t, root.table[0x0A])
	assert.Equal(t, "name", root.table[0x0A].field.Name)
	require.NotNil(t, root.table[0x2A])
	assert.Equal(t, "scalars", root.table[0x2A].field.Name)

	// The same fields under another wire type take the fallback path.
	assert.Nil(t, root.table[0x08])
	assert.Nil(t, root.table[0x2D])

	// Fields above 15 are only reachable by number.
	for i, fc := range root.table {
		if fc != nil {
			assert.LessOrEqual(t, int(fc.field.Number), int(wire.MaxSingleByteField), "table[%#x]", i)
		}
	}
	require.NotNil(t, root.byNumber[17])
	assert.Equal(t, []byte{0x8A, 0x01}, root.byNumber[17].tag)

	children := root.byNumber[2]
	assert.Same(t, root, children.sub, "recursive message compiles once")
	assert.True(t, root.byNumber[3].sub.msg.MapEntry)
	assert.True(t, root.byNumber[4].sub.msg.Wrapper)

	for i := 1; i < len(root.fields); i++ {
		assert.Less(t, root.fields[i-1].field.Number, root.fields[i].field.Number)
	}
}

func TestCompileConfig(t *testing.T) {
	f := loadFixture(t)
	d := f.dispatcher(t, "fixture.Scalars", WithConfig(wire.Config{StrictWireType: true}))

	cfg := d.Config()
	assert.True(t, cfg.StrictWireType)
	assert.Equal(t, wire.DefaultMaxLengthDelimited, cfg.MaxLengthDelimited)
	assert.Equal(t, wire.DefaultMaxDepth, cfg.MaxDepth)
	assert.Equal(t, "fixture.Scalars", d.Message().FullName)
}

func TestCompileErrors(t *testing.T) {
	_, err := Compile(nil)
	assert.Error(t, err)

	unlinked := &plan.Message{
		Name:     "Broken",
		FullName: "Broken",
		Fields: []*plan.Field{{
			Name: "ref", Number: 1, Kind: plan.KindMessage,
			WireType: wire.WireBytes, Strategy: plan.Bytes, TypeName: "Missing",
		}},
	}
	_, err = Compile(unlinked)
	assert.Error(t, err)
}
