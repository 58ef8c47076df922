package reuse

import (
	"testing"

	"github.com/stretchr/testify/require"

	"arccore/pkg/arcir"
	"arccore/pkg/intern"
	"arccore/pkg/typedast"
)

type rcAlways struct{}

func (rcAlways) NeedsRC(intern.TypeIdx) bool { return true }

// RcDec(v) immediately followed by a same-shape Construct collapses into a
// single Reuse instruction.
func TestExpand_RewritesDecThenConstruct(t *testing.T) {
	types := intern.NewTypeInterner()
	pairTy := types.Tuple(intern.Int, intern.Int)

	f := arcir.NewFunction(intern.Name(1), nil)
	b := f.AddBlock()
	b.PushInstr(&arcir.RcDec{Var: 0}, nil)
	b.PushInstr(&arcir.Construct{Dst: 1, Type: pairTy, Ctor: "tuple", Args: []typedast.VarId{2, 3}}, nil)
	b.Terminator = &arcir.Return{Value: 1, HasValue: true}
	f.Entry = b.ID

	varTypes := map[typedast.VarId]intern.TypeIdx{0: pairTy}
	stats := Expand(f, DefaultSizer{Types: types}, rcAlways{}, varTypes)

	require.Equal(t, 1, stats.ReuseRewrites)
	require.Len(t, b.Body, 1)
	reused, ok := b.Body[0].(*arcir.Reuse)
	require.True(t, ok)
	require.Equal(t, typedast.VarId(0), reused.Src)
	require.Equal(t, typedast.VarId(1), reused.Dst)
}

// A Construct of a differently-shaped type is left alone: reusing the
// freed cell's storage for a larger object would corrupt memory.
func TestExpand_DifferentShapeNotRewritten(t *testing.T) {
	types := intern.NewTypeInterner()
	pairTy := types.Tuple(intern.Int, intern.Int)
	tripleTy := types.Tuple(intern.Int, intern.Int, intern.Int)

	f := arcir.NewFunction(intern.Name(1), nil)
	b := f.AddBlock()
	b.PushInstr(&arcir.RcDec{Var: 0}, nil)
	b.PushInstr(&arcir.Construct{Dst: 1, Type: tripleTy, Ctor: "tuple", Args: []typedast.VarId{2, 3, 4}}, nil)
	b.Terminator = &arcir.Return{Value: 1, HasValue: true}
	f.Entry = b.ID

	varTypes := map[typedast.VarId]intern.TypeIdx{0: pairTy}
	stats := Expand(f, DefaultSizer{Types: types}, rcAlways{}, varTypes)

	require.Equal(t, 0, stats.ReuseRewrites)
	require.Len(t, b.Body, 2)
}
