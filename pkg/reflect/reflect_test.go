package reflect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sourceFile struct {
	Path string
	Tags []string
}

type target struct {
	Name    string
	Version int64
	Sources []sourceFile
	Parent  *target
}

func TestRegisterNativeRoundTripsThroughAny(t *testing.T) {
	reg := NewRegistry()
	tt, err := reg.RegisterNative("Target", target{})
	require.NoError(t, err)

	src := target{
		Name:    "mylib",
		Version: 3,
		Sources: []sourceFile{{Path: "a.cpp", Tags: []string{"cpp"}}},
	}
	a, err := FromNative(tt, &src)
	require.NoError(t, err)

	inst, ok := a.Struct()
	require.True(t, ok)
	name, _ := inst.Fields["Name"].String()
	assert.Equal(t, "mylib", name)

	var out target
	require.NoError(t, ToNative(a, &out))
	assert.Equal(t, src.Name, out.Name)
	assert.Equal(t, src.Version, out.Version)
	require.Len(t, out.Sources, 1)
	assert.Equal(t, "a.cpp", out.Sources[0].Path)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	reg := NewRegistry()
	tt, err := reg.RegisterNative("Target2", target{})
	require.NoError(t, err)

	src := target{Name: "app", Version: 7, Sources: []sourceFile{{Path: "main.cpp"}}}
	a, err := FromNative(tt, &src)
	require.NoError(t, err)

	blob, err := Encode(a)
	require.NoError(t, err)
	assert.True(t, len(blob) > 0)

	decoded, err := Decode(blob, reg)
	require.NoError(t, err)

	var out target
	require.NoError(t, ToNative(decoded, &out))
	assert.Equal(t, src.Name, out.Name)
	assert.Equal(t, src.Version, out.Version)
	assert.Equal(t, src.Sources[0].Path, out.Sources[0].Path)
}

func TestDecodeWithoutRegistryProducesSynthesizedAny(t *testing.T) {
	reg := NewRegistry()
	tt, err := reg.RegisterNative("Target3", target{})
	require.NoError(t, err)

	src := target{Name: "lib", Version: 1}
	a, err := FromNative(tt, &src)
	require.NoError(t, err)

	blob, err := Encode(a)
	require.NoError(t, err)

	decoded, err := Decode(blob, nil)
	require.NoError(t, err)
	inst, ok := decoded.Struct()
	require.True(t, ok)
	name, _ := inst.Fields["Name"].String()
	assert.Equal(t, "lib", name)
}

func TestSwitchTypeZeroAndSetState(t *testing.T) {
	reg := NewRegistry()
	a, _ := reg.RegisterStruct(StructType{TypeName: "A", Members: []Member{{Name: "X", Type: IntType{TypeName: "int", BitWidth: 64}}}})
	b, _ := reg.RegisterStruct(StructType{TypeName: "B", Members: []Member{{Name: "Y", Type: StringType{}}}})
	sw, err := reg.RegisterSwitch(SwitchType{
		TypeName: "Choice",
		States:   []State{{Name: "A", Payload: a}, {Name: "B", Payload: b}},
	})
	require.NoError(t, err)

	zero := sw.Zero()
	inst, ok := zero.Switch()
	require.True(t, ok)
	assert.Equal(t, 0, inst.StateIndex)

	inst.SetState(sw, 1)
	assert.Equal(t, 1, inst.StateIndex)
	payloadInst, _ := inst.Payload.Struct()
	_, hasY := payloadInst.Fields["Y"]
	assert.True(t, hasY)

	assert.Panics(t, func() { inst.SetState(sw, 2) })
	assert.Panics(t, func() { inst.SetState(sw, -1) })
}

type vec3 struct {
	Coords [3]float64
}

func TestFixedArrayRoundTripsThroughEncode(t *testing.T) {
	reg := NewRegistry()
	tt, err := reg.RegisterNative("Vec3", vec3{})
	require.NoError(t, err)

	var found bool
	for _, m := range tt.Members {
		if m.Name == "Coords" {
			assert.Equal(t, KindFixedArray, m.Type.Kind())
			fa := m.Type.(FixedArrayType)
			assert.Equal(t, 3, fa.Count)
			found = true
		}
	}
	require.True(t, found)

	src := vec3{Coords: [3]float64{1, 2, 3}}
	a, err := FromNative(tt, &src)
	require.NoError(t, err)

	blob, err := Encode(a)
	require.NoError(t, err)
	decoded, err := Decode(blob, reg)
	require.NoError(t, err)

	var out vec3
	require.NoError(t, ToNative(decoded, &out))
	assert.Equal(t, src.Coords, out.Coords)
}

// node is self-referential (Parent is a weak back-pointer, never the
// owner) so registering it exercises the forward-reference path in
// goFieldType's Struct case as well as RawPtrType.
type node struct {
	Name   string
	Parent *node `ply:"parent,weak"`
}

type nodeTree struct {
	Root  *node
	Other *node `ply:"other,weak"`
}

func TestRawPtrPreservesSharedIdentityAcrossEncodeDecode(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.RegisterNative("Node", node{})
	require.NoError(t, err)
	tt, err := reg.RegisterNative("NodeTree", nodeTree{})
	require.NoError(t, err)

	shared := &node{Name: "root"}
	src := nodeTree{Root: shared, Other: shared}
	a, err := FromNative(tt, &src)
	require.NoError(t, err)

	blob, err := Encode(a)
	require.NoError(t, err)

	decoded, err := Decode(blob, reg)
	require.NoError(t, err)

	var out nodeTree
	require.NoError(t, ToNative(decoded, &out))
	require.NotNil(t, out.Root)
	require.NotNil(t, out.Other)
	assert.Equal(t, "root", out.Root.Name)
	assert.Same(t, out.Root, out.Other, "Root and Other pointed at the same node before encoding and must again after decoding")
}

func TestCopyIsDeep(t *testing.T) {
	reg := NewRegistry()
	tt, _ := reg.RegisterNative("Target4", target{})
	src := target{Name: "one", Sources: []sourceFile{{Path: "a.cpp"}}}
	a, err := FromNative(tt, &src)
	require.NoError(t, err)

	c := Copy(a)
	origInst, _ := a.Struct()
	copyInst, _ := c.Struct()
	origSources, _ := origInst.Fields["Sources"].Array()
	copySources, _ := copyInst.Fields["Sources"].Array()
	(*copySources)[0].Struct()
	assert.NotSame(t, &(*origSources)[0], &(*copySources)[0])
}
