package liveness

import (
	"testing"

	"github.com/stretchr/testify/require"

	"arccore/pkg/arcir"
	"arccore/pkg/intern"
	"arccore/pkg/typedast"
)

// single block: v0 = let 1; v1 = let v0; return v1.
// v0 dies at the second Let; v1 is live out through Return.
func TestAnalyze_SingleBlockLetChain(t *testing.T) {
	f := arcir.NewFunction(intern.Name(1), nil)
	b := f.AddBlock()
	b.PushInstr(&arcir.Let{Dst: 0, Type: intern.Int, Value: arcir.ArcValue{Kind: arcir.ValueInt, Int: 1}}, nil)
	b.PushInstr(&arcir.Let{Dst: 1, Type: intern.Int, Value: arcir.ArcValue{Kind: arcir.ValueVar, Var: 0}}, nil)
	b.Terminator = &arcir.Return{Value: 1, HasValue: true}
	f.Entry = b.ID

	res := Analyze(f)
	entry := res[b.ID]

	require.False(t, entry.LiveIn[0], "v0 is defined before any use, never live-in")
	require.False(t, entry.LiveIn[1])
	require.True(t, entry.LiveOut[1], "v1 is used by the terminator")
	require.False(t, entry.LiveOut[0], "v0 died at the second Let")
}

// two blocks joined by a jump: pred defines v0, uses it in its Apply, then
// jumps to succ which returns a fresh block param. v0 must not leak past
// the jump since succ's param shadows it.
func TestAnalyze_AcrossJump(t *testing.T) {
	f := arcir.NewFunction(intern.Name(1), nil)
	pred := f.AddBlock()
	succ := f.AddBlock()
	succ.Params = []arcir.BlockParam{{Var: 2, Type: intern.Int}}
	succ.Terminator = &arcir.Return{Value: 2, HasValue: true}

	pred.PushInstr(&arcir.Let{Dst: 0, Type: intern.Int, Value: arcir.ArcValue{Kind: arcir.ValueInt, Int: 1}}, nil)
	pred.PushInstr(&arcir.Apply{Dst: 1, Type: intern.Int, Func: intern.Name(2), Args: []typedast.VarId{0}}, nil)
	pred.Terminator = &arcir.Jump{Target: succ.ID, Args: []typedast.VarId{1}}
	f.Entry = pred.ID

	res := Analyze(f)
	require.False(t, res[pred.ID].LiveOut[0], "v0 dies inside pred, never crosses the jump")
	require.True(t, res[pred.ID].LiveOut[1], "v1 is the jump argument")
	require.False(t, res[succ.ID].LiveIn[1], "succ's param shadows the incoming argument name")
}
