package arcir_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"arccore/pkg/arcir"
	"arccore/pkg/intern"
)

func TestCheckInvariants_MissingTerminatorRejected(t *testing.T) {
	f := arcir.NewFunction(intern.Name(1), nil)
	f.AddBlock() // never given a Terminator

	err := arcir.CheckInvariants(f)
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing terminator")
}

func TestCheckInvariants_DoubleDefinedVarRejected(t *testing.T) {
	f := arcir.NewFunction(intern.Name(1), nil)
	b := f.AddBlock()
	b.PushInstr(&arcir.Let{Dst: 0, Type: intern.Int, Value: arcir.ArcValue{Kind: arcir.ValueInt, Int: 1}}, nil)
	b.PushInstr(&arcir.Let{Dst: 0, Type: intern.Int, Value: arcir.ArcValue{Kind: arcir.ValueInt, Int: 2}}, nil)
	b.Terminator = &arcir.Return{Value: 0, HasValue: true}
	f.Entry = b.ID

	err := arcir.CheckInvariants(f)
	require.Error(t, err)
	require.Contains(t, err.Error(), "defined more than once")
}

func TestCheckInvariants_JumpArityMismatchRejected(t *testing.T) {
	f := arcir.NewFunction(intern.Name(1), nil)
	entry := f.AddBlock()
	target := f.AddBlock()
	target.Params = []arcir.BlockParam{{Var: 0, Type: intern.Int}}
	target.Terminator = &arcir.Return{Value: 0, HasValue: true}

	entry.Terminator = &arcir.Jump{Target: target.ID, Args: nil} // target wants 1 arg, gets 0
	f.Entry = entry.ID

	err := arcir.CheckInvariants(f)
	require.Error(t, err)
}

func TestCheckInvariants_DanglingSuccessorRejected(t *testing.T) {
	f := arcir.NewFunction(intern.Name(1), nil)
	entry := f.AddBlock()
	entry.Terminator = &arcir.Jump{Target: 99, Args: nil}
	f.Entry = entry.ID

	err := arcir.CheckInvariants(f)
	require.Error(t, err)
	require.Contains(t, err.Error(), "dangling successor")
}

func TestCheckInvariants_WellFormedFunctionAccepted(t *testing.T) {
	f := arcir.NewFunction(intern.Name(1), []arcir.ArcParam{{Var: 0, Type: intern.Int}})
	b := f.AddBlock()
	b.PushInstr(&arcir.Let{Dst: 1, Type: intern.Int, Value: arcir.ArcValue{Kind: arcir.ValueVar, Var: 0}}, nil)
	b.Terminator = &arcir.Return{Value: 1, HasValue: true}
	f.Entry = b.ID

	require.NoError(t, arcir.CheckInvariants(f))
}
