package exhaust_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"arccore/pkg/exhaust"
	"arccore/pkg/intern"
	"arccore/pkg/pattern"
	"arccore/pkg/typedast"
)

type noResolutions struct{}

func (noResolutions) Resolve(typedast.PatternKey) (typedast.PatternResolution, bool) {
	return typedast.PatternResolution{}, false
}

// S7: match x { Some(v) -> .., None -> .. } against Option<int> covers
// every variant and is exhaustive.
func TestCheck_OptionExhaustive(t *testing.T) {
	names := intern.NewStringInterner()
	ti := intern.NewTypeInterner()
	optTy := ti.Option(intern.Int)

	arms := []pattern.MatchArm{
		{Pattern: pattern.Pattern{Kind: pattern.EnumCtor, Variant: "Some", Args: []pattern.Pattern{{Kind: pattern.Binding, Name: "v"}}}, Guard: typedast.InvalidExprId, Body: 0},
		{Pattern: pattern.Pattern{Kind: pattern.EnumCtor, Variant: "None"}, Guard: typedast.InvalidExprId, Body: 1},
	}

	tree, err := pattern.Compile(arms, 0, names, noResolutions{})
	require.NoError(t, err)

	result := exhaust.Check(tree, optTy, arms, 0, ti)
	require.Empty(t, result.Problems)
}

// S8: match x { Some(v) -> .. } against Option<int> is missing the None
// variant; Check must report exactly one NonExhaustive naming "None".
func TestCheck_OptionMissingNone(t *testing.T) {
	names := intern.NewStringInterner()
	ti := intern.NewTypeInterner()
	optTy := ti.Option(intern.Int)

	arms := []pattern.MatchArm{
		{Pattern: pattern.Pattern{Kind: pattern.EnumCtor, Variant: "Some", Args: []pattern.Pattern{{Kind: pattern.Binding, Name: "v"}}}, Guard: typedast.InvalidExprId, Body: 0},
	}

	tree, err := pattern.Compile(arms, 0, names, noResolutions{})
	require.NoError(t, err)

	result := exhaust.Check(tree, optTy, arms, 0, ti)
	require.Len(t, result.Problems, 1)
	ne, ok := result.Problems[0].(exhaust.NonExhaustive)
	require.True(t, ok)
	require.Equal(t, []string{"None"}, ne.Missing)
}

// S9: enum Value(int) | Impossible(never); a match covering only Value(v)
// is exhaustive since Impossible can never be constructed.
func TestCheck_UninhabitedVariantVacuouslyExhaustive(t *testing.T) {
	names := intern.NewStringInterner()
	ti := intern.NewTypeInterner()
	enumTy := ti.Enum("Value", []intern.EnumVariant{
		{Name: "Value", Fields: []intern.TypeIdx{intern.Int}},
		{Name: "Impossible", Fields: []intern.TypeIdx{intern.Never}},
	})

	arms := []pattern.MatchArm{
		{Pattern: pattern.Pattern{Kind: pattern.EnumCtor, Variant: "Value", Args: []pattern.Pattern{{Kind: pattern.Binding, Name: "v"}}}, Guard: typedast.InvalidExprId, Body: 0},
	}

	tree, err := pattern.Compile(arms, 0, names, noResolutions{})
	require.NoError(t, err)

	result := exhaust.Check(tree, enumTy, arms, 0, ti)
	require.Empty(t, result.Problems)
}

// S9 negative: dropping the uninhabited carve-out and requiring the
// Impossible edge too would make a real exhaustive match still miss a
// genuinely reachable variant; confirm an actually-inhabited second
// variant IS reported when omitted.
func TestCheck_InhabitedVariantMissingIsReported(t *testing.T) {
	names := intern.NewStringInterner()
	ti := intern.NewTypeInterner()
	enumTy := ti.Enum("Value", []intern.EnumVariant{
		{Name: "Value", Fields: []intern.TypeIdx{intern.Int}},
		{Name: "Other", Fields: []intern.TypeIdx{intern.Int}},
	})

	arms := []pattern.MatchArm{
		{Pattern: pattern.Pattern{Kind: pattern.EnumCtor, Variant: "Value", Args: []pattern.Pattern{{Kind: pattern.Binding, Name: "v"}}}, Guard: typedast.InvalidExprId, Body: 0},
	}

	tree, err := pattern.Compile(arms, 0, names, noResolutions{})
	require.NoError(t, err)

	result := exhaust.Check(tree, enumTy, arms, 0, ti)
	require.Len(t, result.Problems, 1)
	ne, ok := result.Problems[0].(exhaust.NonExhaustive)
	require.True(t, ok)
	require.Equal(t, []string{"Other(_)"}, ne.Missing)
}

// S10: arms [] -> .., [x] -> .., [a, b, ..rest] -> .. against List<int>
// cover every length (0, 1, and 2-or-more), so the match is exhaustive.
func TestCheck_ListRestAndExactsExhaustive(t *testing.T) {
	names := intern.NewStringInterner()
	ti := intern.NewTypeInterner()
	listTy := ti.List(intern.Int)

	arms := []pattern.MatchArm{
		{Pattern: pattern.Pattern{Kind: pattern.List}, Guard: typedast.InvalidExprId, Body: 0},
		{Pattern: pattern.Pattern{Kind: pattern.List, ListElems: []pattern.Pattern{{Kind: pattern.Binding, Name: "x"}}}, Guard: typedast.InvalidExprId, Body: 1},
		{Pattern: pattern.Pattern{
			Kind:      pattern.List,
			ListElems: []pattern.Pattern{{Kind: pattern.Binding, Name: "a"}, {Kind: pattern.Binding, Name: "b"}},
			HasRest:   true,
			RestName:  "rest",
		}, Guard: typedast.InvalidExprId, Body: 2},
	}

	tree, err := pattern.Compile(arms, 0, names, noResolutions{})
	require.NoError(t, err)

	result := exhaust.Check(tree, listTy, arms, 0, ti)
	require.Empty(t, result.Problems)
}

// Dropping the [x] arm leaves exactly the singleton list uncovered.
func TestCheck_ListMissingSingletonReported(t *testing.T) {
	names := intern.NewStringInterner()
	ti := intern.NewTypeInterner()
	listTy := ti.List(intern.Int)

	arms := []pattern.MatchArm{
		{Pattern: pattern.Pattern{Kind: pattern.List}, Guard: typedast.InvalidExprId, Body: 0},
		{Pattern: pattern.Pattern{
			Kind:      pattern.List,
			ListElems: []pattern.Pattern{{Kind: pattern.Binding, Name: "a"}, {Kind: pattern.Binding, Name: "b"}},
			HasRest:   true,
			RestName:  "rest",
		}, Guard: typedast.InvalidExprId, Body: 1},
	}

	tree, err := pattern.Compile(arms, 0, names, noResolutions{})
	require.NoError(t, err)

	result := exhaust.Check(tree, listTy, arms, 0, ti)
	require.Len(t, result.Problems, 1)
	ne, ok := result.Problems[0].(exhaust.NonExhaustive)
	require.True(t, ok)
	require.Equal(t, []string{"[_]"}, ne.Missing)
}
