package intern_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"arccore/pkg/intern"
)

func TestTypeInterner_BuiltinsArePreregistered(t *testing.T) {
	ti := intern.NewTypeInterner()

	require.Equal(t, "int", ti.Info(intern.Int).Name)
	require.Equal(t, "bool", ti.Info(intern.Bool).Name)
	require.Equal(t, "never", ti.Info(intern.Never).Name)
	require.True(t, ti.IsNever(intern.Never))
	require.False(t, ti.IsNever(intern.Int))
}

// Two calls interning the same shape must canonicalize to one handle —
// the whole point of structural interning (spec.md §2).
func TestTypeInterner_StructuralSharingCanonicalizes(t *testing.T) {
	ti := intern.NewTypeInterner()

	a := ti.Tuple(intern.Int, intern.Bool)
	b := ti.Tuple(intern.Int, intern.Bool)
	c := ti.Tuple(intern.Bool, intern.Int)

	require.Equal(t, a, b)
	require.NotEqual(t, a, c, "field order is part of a tuple's shape")

	l1 := ti.List(intern.Int)
	l2 := ti.List(intern.Int)
	require.Equal(t, l1, l2)
}

func TestTypeInterner_OptionAndResultShapes(t *testing.T) {
	ti := intern.NewTypeInterner()

	opt := ti.Option(intern.Int)
	info := ti.Info(opt)
	require.Equal(t, intern.KindEnum, info.Kind)
	require.Len(t, info.Variants, 2)
	require.Equal(t, "None", info.Variants[0].Name)
	require.Empty(t, info.Variants[0].Fields)
	require.Equal(t, "Some", info.Variants[1].Name)
	require.Equal(t, []intern.TypeIdx{intern.Int}, info.Variants[1].Fields)

	res := ti.Result(intern.Int, intern.Str)
	resInfo := ti.Info(res)
	require.Equal(t, "Ok", resInfo.Variants[0].Name)
	require.Equal(t, "Err", resInfo.Variants[1].Name)

	// Option<int> interned twice is the same handle; Option<str> is not.
	require.Equal(t, opt, ti.Option(intern.Int))
	require.NotEqual(t, opt, ti.Option(intern.Str))
}

func TestTypeInterner_InfoPanicsOnDanglingHandle(t *testing.T) {
	ti := intern.NewTypeInterner()
	defer func() {
		require.NotNil(t, recover())
	}()
	ti.Info(intern.TypeIdx(9999))
}

func TestIsUninhabitedVariant(t *testing.T) {
	ti := intern.NewTypeInterner()

	require.False(t, intern.IsUninhabitedVariant(intern.EnumVariant{Name: "None"}, ti),
		"a nullary variant is never uninhabited")
	require.False(t, intern.IsUninhabitedVariant(intern.EnumVariant{Name: "Some", Fields: []intern.TypeIdx{intern.Int}}, ti))
	require.True(t, intern.IsUninhabitedVariant(intern.EnumVariant{Name: "Impossible", Fields: []intern.TypeIdx{intern.Never}}, ti))
	require.False(t, intern.IsUninhabitedVariant(intern.EnumVariant{Name: "Mixed", Fields: []intern.TypeIdx{intern.Never, intern.Int}}, ti),
		"every field must be never, not just one")
}
