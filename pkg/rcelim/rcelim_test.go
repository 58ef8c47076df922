package rcelim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"arccore/pkg/arcir"
	"arccore/pkg/intern"
	"arccore/pkg/typedast"
)

func countRC(b *arcir.ArcBlock) (incs, decs int) {
	for _, instr := range b.Body {
		switch instr.(type) {
		case *arcir.RcInc:
			incs++
		case *arcir.RcDec:
			decs++
		}
	}
	return
}

// RcInc(v,1) immediately followed by RcDec(v) with no intervening use
// cancels out: this is the classic redundant pair the top-down intra-block
// scan removes.
func TestEliminate_IntraBlockIncThenDec(t *testing.T) {
	f := arcir.NewFunction(intern.Name(1), nil)
	b := f.AddBlock()
	b.PushInstr(&arcir.Let{Dst: 0, Type: intern.Int, Value: arcir.ArcValue{Kind: arcir.ValueInt, Int: 1}}, nil)
	b.PushInstr(&arcir.RcInc{Var: 0, Count: 1}, nil)
	b.PushInstr(&arcir.RcDec{Var: 0}, nil)
	b.Terminator = &arcir.Return{Value: 0, HasValue: true}
	f.Entry = b.ID

	Eliminate(f, nil)

	incs, decs := countRC(b)
	require.Equal(t, 0, incs)
	require.Equal(t, 0, decs)
}

// RcDec(v) followed later by RcInc(v,1) is never removable: the value may
// have hit zero in between and the inc now resurrects a distinct object.
func TestEliminate_DecThenIncNeverRemoved(t *testing.T) {
	f := arcir.NewFunction(intern.Name(1), nil)
	b := f.AddBlock()
	b.PushInstr(&arcir.Let{Dst: 0, Type: intern.Int, Value: arcir.ArcValue{Kind: arcir.ValueInt, Int: 1}}, nil)
	b.PushInstr(&arcir.RcDec{Var: 0}, nil)
	b.PushInstr(&arcir.RcInc{Var: 0, Count: 1}, nil)
	b.Terminator = &arcir.Return{Value: 0, HasValue: true}
	f.Entry = b.ID

	Eliminate(f, nil)

	incs, decs := countRC(b)
	require.Equal(t, 1, incs)
	require.Equal(t, 1, decs)
}

// An intervening use of v between its inc and dec blocks the pair from
// being eliminated: removing it would free v while the middle Apply still
// expects it alive and would collapse the owned use.
func TestEliminate_InterveningUseBlocksRemoval(t *testing.T) {
	f := arcir.NewFunction(intern.Name(1), nil)
	b := f.AddBlock()
	b.PushInstr(&arcir.Let{Dst: 0, Type: intern.Int, Value: arcir.ArcValue{Kind: arcir.ValueInt, Int: 1}}, nil)
	b.PushInstr(&arcir.RcInc{Var: 0, Count: 1}, nil)
	b.PushInstr(&arcir.Apply{Dst: 1, Type: intern.Int, Func: intern.Name(2), Args: []typedast.VarId{0}}, nil)
	b.PushInstr(&arcir.RcDec{Var: 0}, nil)
	b.Terminator = &arcir.Return{Value: 1, HasValue: true}
	f.Entry = b.ID

	Eliminate(f, nil)

	incs, decs := countRC(b)
	require.Equal(t, 1, incs)
	require.Equal(t, 1, decs)
}
