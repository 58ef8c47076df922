package rcelim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"arccore/pkg/arcir"
	"arccore/pkg/intern"
)

// S4: P is the sole predecessor of B, ends with a trailing RcInc(v,1) that
// its Jump terminator never reads, and B opens with a leading RcDec(v).
// crossBlockSinglePred must remove both, leaving neither block touching v.
func TestEliminate_CrossBlockSinglePredRemovesPair(t *testing.T) {
	vTy := intern.Int
	f := arcir.NewFunction(intern.Name(1), []arcir.ArcParam{{Var: 0, Type: vTy}})

	p := f.AddBlock()
	b := f.AddBlock()

	p.PushInstr(&arcir.RcInc{Var: 0, Count: 1}, nil)
	p.Terminator = &arcir.Jump{Target: b.ID}

	b.PushInstr(&arcir.RcDec{Var: 0}, nil)
	b.Terminator = &arcir.Return{Value: 0, HasValue: true}

	f.Entry = p.ID

	total := Eliminate(f, nil)

	require.Equal(t, 1, total)
	pIncs, pDecs := countRC(p)
	bIncs, bDecs := countRC(b)
	require.Equal(t, 0, pIncs+pDecs, "predecessor's trailing inc must be gone")
	require.Equal(t, 0, bIncs+bDecs, "join block's leading dec must be gone")
	require.NoError(t, arcir.CheckInvariants(f))
}

// buildDiamond constructs entry -branch-> {then, else} -jump-> join, with
// v (var 0) a function param and cond (var 1) the branch condition. thenInc
// and elseInc control whether each arm emits a trailing RcInc(v,1) before
// jumping to join, which always opens with a leading RcDec(v).
func buildDiamond(thenInc, elseInc bool) (f *arcir.ArcFunction, then, els, join *arcir.ArcBlock) {
	f = arcir.NewFunction(intern.Name(1), []arcir.ArcParam{
		{Var: 0, Type: intern.Int},
		{Var: 1, Type: intern.Bool},
	})

	entry := f.AddBlock()
	then = f.AddBlock()
	els = f.AddBlock()
	join = f.AddBlock()

	entry.Terminator = &arcir.Branch{Cond: 1, Then: then.ID, Else: els.ID}

	if thenInc {
		then.PushInstr(&arcir.RcInc{Var: 0, Count: 1}, nil)
	}
	then.Terminator = &arcir.Jump{Target: join.ID}

	if elseInc {
		els.PushInstr(&arcir.RcInc{Var: 0, Count: 1}, nil)
	}
	els.Terminator = &arcir.Jump{Target: join.ID}

	join.PushInstr(&arcir.RcDec{Var: 0}, nil)
	join.Terminator = &arcir.Return{Value: 0, HasValue: true}

	f.Entry = entry.ID
	return f, then, els, join
}

// S5: only the then-arm carries the matching inc, so v is not available on
// every incoming edge at the join. multiPredJoin must leave the join's dec
// and the then-arm's inc untouched.
func TestEliminate_DiamondPartialCoverageNotEliminated(t *testing.T) {
	f, then, els, join := buildDiamond(true, false)

	total := Eliminate(f, nil)

	require.Equal(t, 0, total)
	thenIncs, _ := countRC(then)
	elsIncs, _ := countRC(els)
	_, joinDecs := countRC(join)
	require.Equal(t, 1, thenIncs, "then-arm's inc has no match on the else path, must survive")
	require.Equal(t, 0, elsIncs)
	require.Equal(t, 1, joinDecs, "join's dec cannot be proven redundant on every path")
	require.NoError(t, arcir.CheckInvariants(f))
}

// S6: both arms carry the matching trailing inc, so v is available at the
// join from every predecessor. multiPredJoin must remove the join's dec and
// each arm's inc.
func TestEliminate_DiamondFullCoverageEliminated(t *testing.T) {
	f, then, els, join := buildDiamond(true, true)

	total := Eliminate(f, nil)

	require.Equal(t, 1, total)
	thenIncs, thenDecs := countRC(then)
	elsIncs, elsDecs := countRC(els)
	joinIncs, joinDecs := countRC(join)
	require.Equal(t, 0, thenIncs+thenDecs)
	require.Equal(t, 0, elsIncs+elsDecs)
	require.Equal(t, 0, joinIncs+joinDecs)
	require.NoError(t, arcir.CheckInvariants(f))
}
