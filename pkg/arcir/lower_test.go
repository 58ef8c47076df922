package arcir_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"arccore/pkg/arcir"
	"arccore/pkg/intern"
	"arccore/pkg/pattern"
	"arccore/pkg/typedast"
)

type noResolver struct{}

func (noResolver) Resolve(typedast.PatternKey) (typedast.PatternResolution, bool) {
	return typedast.PatternResolution{}, false
}

// fn f(a: Int) -> Int { a + a } lowers to a single block that reads the
// param twice and returns an Apply result.
func TestLower_BinOpProducesSingleBlock(t *testing.T) {
	names := intern.NewStringInterner()
	arena := typedast.NewArena()

	aVar := typedast.VarId(0)
	aExpr := arena.Add(typedast.Expr{Kind: typedast.ExprVar, Var: aVar}, typedast.Span{}, intern.Int)
	addExpr := arena.Add(typedast.Expr{Kind: typedast.ExprBinOp, Op: "+", Lhs: aExpr, Rhs: aExpr}, typedast.Span{}, intern.Int)

	tf := &typedast.TypedFunction{
		Name:       names.Intern("f"),
		Params:     []typedast.Param{{Var: aVar, Type: intern.Int, Ownership: typedast.Owned}},
		ReturnType: intern.Int,
		EntryExpr:  addExpr,
		Arena:      arena,
	}

	f, err := arcir.Lower(tf, nil, names, noResolver{})
	require.NoError(t, err)
	require.NoError(t, arcir.CheckInvariants(f))

	require.Len(t, f.Blocks, 1)
	ret, ok := f.Block(f.Entry).Terminator.(*arcir.Return)
	require.True(t, ok)
	require.True(t, ret.HasValue)

	copiesOfA := map[typedast.VarId]bool{}
	for _, instr := range f.Block(f.Entry).Body {
		if let, ok := instr.(*arcir.Let); ok && let.Value.Kind == arcir.ValueVar && let.Value.Var == aVar {
			copiesOfA[let.Dst] = true
		}
	}
	require.Len(t, copiesOfA, 2, "each occurrence of `a` lowers through its own fresh Let, not a shared var")

	var sawApply bool
	for _, instr := range f.Block(f.Entry).Body {
		if apply, ok := instr.(*arcir.Apply); ok {
			sawApply = true
			require.Len(t, apply.Args, 2)
			for _, arg := range apply.Args {
				require.True(t, copiesOfA[arg], "Apply must read the two fresh copies of `a`, not the raw param")
			}
		}
	}
	require.True(t, sawApply, "binop lowers to an Apply over the interned operator name")
}

// fn f(flag: Bool) -> Int { match flag { true -> 1, false -> 2 } } lowers
// to a Bool Switch joining into a shared block param, and running Lower
// twice on the same inputs must produce byte-for-byte identical IR (no
// hidden nondeterminism from map iteration order).
func TestLower_MatchIsDeterministic(t *testing.T) {
	build := func() *arcir.ArcFunction {
		names := intern.NewStringInterner()
		arena := typedast.NewArena()

		flagVar := typedast.VarId(0)
		flagExpr := arena.Add(typedast.Expr{Kind: typedast.ExprVar, Var: flagVar}, typedast.Span{}, intern.Bool)
		arm0Body := arena.Add(typedast.Expr{Kind: typedast.ExprIntLit, IntVal: 1}, typedast.Span{}, intern.Int)
		arm1Body := arena.Add(typedast.Expr{Kind: typedast.ExprIntLit, IntVal: 2}, typedast.Span{}, intern.Int)
		matchExpr := arena.Add(typedast.Expr{Kind: typedast.ExprMatch, MatchScrut: flagExpr}, typedast.Span{}, intern.Int)

		arms := []pattern.MatchArm{
			{Pattern: pattern.Pattern{Kind: pattern.LiteralBool, BoolVal: true}, Guard: typedast.InvalidExprId, Body: arm0Body},
			{Pattern: pattern.Pattern{Kind: pattern.LiteralBool, BoolVal: false}, Guard: typedast.InvalidExprId, Body: arm1Body},
		}
		matches := arcir.MatchTable{
			matchExpr: arcir.MatchArms{Arms: arms, BindVars: map[intern.Name]typedast.VarId{}},
		}

		tf := &typedast.TypedFunction{
			Name:       names.Intern("f"),
			Params:     []typedast.Param{{Var: flagVar, Type: intern.Bool, Ownership: typedast.Owned}},
			ReturnType: intern.Int,
			EntryExpr:  matchExpr,
			Arena:      arena,
		}

		f, err := arcir.Lower(tf, matches, names, noResolver{})
		require.NoError(t, err)
		require.NoError(t, arcir.CheckInvariants(f))
		return f
	}

	first := build()
	second := build()

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("Lower is not deterministic across identical inputs (-first +second):\n%s", diff)
	}
	require.Greater(t, len(first.Blocks), 1, "a two-arm match must join through more than one block")
}
