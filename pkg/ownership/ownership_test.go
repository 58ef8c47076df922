package ownership

import (
	"testing"

	"github.com/stretchr/testify/require"

	"arccore/pkg/arcir"
	"arccore/pkg/intern"
	"arccore/pkg/typedast"
)

// fn f(x: borrowed T): y = Project(x, 0); return y -- y is derived from a
// borrowed parameter by a non-owning accessor, so it should itself be
// recorded as BorrowedFrom(x), not Owned.
func TestInfer_ProjectFromBorrowedParam(t *testing.T) {
	ty := intern.TypeIdx(50)
	f := arcir.NewFunction(intern.Name(1), []arcir.ArcParam{{Var: 0, Type: ty, Ownership: typedast.Borrowed}})
	b := f.AddBlock()
	b.PushInstr(&arcir.Project{Dst: 1, Type: intern.Int, Value: 0, Field: 0}, nil)
	b.Terminator = &arcir.Return{Value: 1, HasValue: true}
	f.Entry = b.ID

	table := Infer(f)
	derived := table.Get(1)
	require.Equal(t, BorrowedFrom, derived.Kind)
	require.Equal(t, typedast.VarId(0), derived.Src)
}

// A variable with no recorded derivation defaults to Owned.
func TestTable_GetDefaultsToOwned(t *testing.T) {
	var table Table
	require.Equal(t, Owned, table.Get(42).Kind)
}
