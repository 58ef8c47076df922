package rcinsert

import (
	"testing"

	"github.com/stretchr/testify/require"

	"arccore/pkg/arcir"
	"arccore/pkg/intern"
	"arccore/pkg/liveness"
	"arccore/pkg/typedast"
)

// entry branches (borrowed cond, so the branch itself needs no RC) into
// armA and armB, both of which jump to join. armA's gap into join is
// empty, but armB ends with its own Branch on an RC-trackable var that
// dies right there — a gap armA doesn't share. Since the gaps disagree,
// edgeCleanup must fold only their (empty) intersection into join and
// split a trampoline off armB's edge to carry its larger residual.
func TestInsert_NonUniformGapSplitsTrampoline(t *testing.T) {
	condTy := intern.TypeIdx(200)
	rcTy := intern.TypeIdx(201)

	f := arcir.NewFunction(intern.Name(1), []arcir.ArcParam{{Var: 0, Type: condTy, Ownership: typedast.Borrowed}})

	entry := f.AddBlock()
	armA := f.AddBlock()
	armB := f.AddBlock()
	join := f.AddBlock()
	trap := f.AddBlock()

	entry.Terminator = &arcir.Branch{Cond: 0, Then: armA.ID, Else: armB.ID}

	armA.Terminator = &arcir.Jump{Target: join.ID}

	armB.PushInstr(&arcir.Let{Dst: 1, Type: rcTy, Value: arcir.ArcValue{Kind: arcir.ValueInt, Int: 1}}, nil)
	armB.Terminator = &arcir.Branch{Cond: 1, Then: join.ID, Else: trap.ID}

	join.Terminator = &arcir.Return{HasValue: false}
	trap.Terminator = &arcir.Return{HasValue: false}

	f.Entry = entry.ID

	live := liveness.Analyze(f)
	_, err := Insert(f, live, needsRCAlways{}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, arcir.CheckInvariants(f))

	require.Len(t, f.Blocks, 6, "a trampoline block must be appended for armB's residual gap")
	tramp := f.Blocks[5]

	jmp, ok := tramp.Terminator.(*arcir.Jump)
	require.True(t, ok, "the trampoline must jump onward to join")
	require.Equal(t, join.ID, jmp.Target)

	var trampDecs int
	for _, instr := range tramp.Body {
		if dec, ok := instr.(*arcir.RcDec); ok {
			require.Equal(t, typedast.VarId(1), dec.Var)
			trampDecs++
		}
	}
	require.Equal(t, 1, trampDecs, "the trampoline carries the dec for armB's dying var")

	branch, ok := armB.Terminator.(*arcir.Branch)
	require.True(t, ok)
	require.Equal(t, tramp.ID, branch.Then, "armB's edge into join must be redirected through the trampoline")
	require.Equal(t, trap.ID, branch.Else, "armB's other edge is untouched")

	jumpA, ok := armA.Terminator.(*arcir.Jump)
	require.True(t, ok)
	require.Equal(t, join.ID, jumpA.Target, "armA had no residual gap, so it keeps jumping straight to join")

	for _, instr := range join.Body {
		_, isDec := instr.(*arcir.RcDec)
		require.False(t, isDec, "join's own body must stay untouched: the gap was not common to every predecessor")
	}
}
