package typedast_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"arccore/pkg/intern"
	"arccore/pkg/typedast"
)

func TestArena_AddRoundTrips(t *testing.T) {
	a := typedast.NewArena()

	id := a.Add(typedast.Expr{Kind: typedast.ExprIntLit, IntVal: 42}, typedast.Span{Start: 3, End: 5}, intern.Int)

	require.Equal(t, typedast.ExprId(0), id)
	require.Equal(t, 1, a.Len())
	require.Equal(t, int64(42), a.Get(id).IntVal)
	require.Equal(t, typedast.Span{Start: 3, End: 5}, a.Span(id))
	require.Equal(t, intern.Int, a.Type(id))

	second := a.Add(typedast.Expr{Kind: typedast.ExprBoolLit, BoolVal: true}, typedast.Span{}, intern.Bool)
	require.Equal(t, typedast.ExprId(1), second)
	require.Equal(t, 2, a.Len())
}

func TestArena_GetPanicsOnDanglingId(t *testing.T) {
	a := typedast.NewArena()
	defer func() {
		require.NotNil(t, recover())
	}()
	a.Get(typedast.ExprId(0))
}

func TestArena_SpanPanicsOnDanglingId(t *testing.T) {
	a := typedast.NewArena()
	defer func() {
		require.NotNil(t, recover())
	}()
	a.Span(typedast.ExprId(0))
}

func TestArena_TypePanicsOnDanglingId(t *testing.T) {
	a := typedast.NewArena()
	defer func() {
		require.NotNil(t, recover())
	}()
	a.Type(typedast.ExprId(0))
}
