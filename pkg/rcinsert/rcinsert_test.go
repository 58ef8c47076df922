package rcinsert

import (
	"testing"

	"github.com/stretchr/testify/require"

	"arccore/pkg/arcir"
	"arccore/pkg/intern"
	"arccore/pkg/liveness"
	"arccore/pkg/typedast"
)

type needsRCAlways struct{}

func (needsRCAlways) NeedsRC(intern.TypeIdx) bool { return true }

// fn f(x: List): apply(x, x); return x -- x is used three times, owned,
// so insertion must add incs to keep every use balanced and a trailing
// dec is never needed since the terminator itself consumes x.
func TestInsert_RepeatedOwnedUseGetsIncs(t *testing.T) {
	listTy := intern.TypeIdx(100)
	f := arcir.NewFunction(intern.Name(1), []arcir.ArcParam{{Var: 0, Type: listTy, Ownership: typedast.Owned}})
	b := f.AddBlock()
	b.PushInstr(&arcir.Apply{Dst: 1, Type: intern.Int, Func: intern.Name(2), Args: []typedast.VarId{0, 0}}, nil)
	b.Terminator = &arcir.Return{Value: 0, HasValue: true}
	f.Entry = b.ID

	live := liveness.Analyze(f)
	stats, err := Insert(f, live, needsRCAlways{}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, arcir.CheckInvariants(f))
	require.GreaterOrEqual(t, stats.IncsInserted, 1)

	var incs, decs int
	for _, instr := range f.Block(b.ID).Body {
		switch i := instr.(type) {
		case *arcir.RcInc:
			if i.Var == 0 {
				incs++
			}
		case *arcir.RcDec:
			if i.Var == 0 {
				decs++
			}
		}
	}
	require.GreaterOrEqual(t, incs, 1, "x is consumed by two Apply args plus the terminator, needs at least one inc to cover the extra owned position")
	require.Equal(t, 0, decs, "x is fully consumed by its last use (the terminator), no trailing dec needed")
}

// A borrowed parameter that is never returned must get neither an inc nor
// a dec: it is never owned by this function.
func TestInsert_BorrowedParamUntouched(t *testing.T) {
	listTy := intern.TypeIdx(100)
	f := arcir.NewFunction(intern.Name(1), []arcir.ArcParam{{Var: 0, Type: listTy, Ownership: typedast.Borrowed}})
	b := f.AddBlock()
	b.PushInstr(&arcir.Apply{Dst: 1, Type: intern.Int, Func: intern.Name(2), Args: []typedast.VarId{0}}, nil)
	b.Terminator = &arcir.Return{Value: 1, HasValue: true}
	f.Entry = b.ID

	live := liveness.Analyze(f)
	_, err := Insert(f, live, needsRCAlways{}, nil, nil)
	require.NoError(t, err)

	for _, instr := range f.Block(b.ID).Body {
		switch i := instr.(type) {
		case *arcir.RcInc:
			require.NotEqual(t, typedast.VarId(0), i.Var)
		case *arcir.RcDec:
			require.NotEqual(t, typedast.VarId(0), i.Var)
		}
	}
}
