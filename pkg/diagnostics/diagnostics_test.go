package diagnostics

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"arccore/pkg/intern"
)

func TestNewICE_CarriesStackTrace(t *testing.T) {
	ice := NewICE(intern.Name(1), "block %d has no terminator", 3)
	require.Contains(t, ice.Error(), "block 3 has no terminator")

	var tracer interface{ StackTrace() errors.StackTrace }
	require.ErrorAs(t, error(ice), &tracer, "NewICE must wrap the cause with errors.WithStack")
}

func TestPanic_RecoversAsICE(t *testing.T) {
	ice := NewICE(intern.Name(1), "dangling var")

	defer func() {
		r := recover()
		require.NotNil(t, r)
		recovered, ok := r.(*ICE)
		require.True(t, ok)
		require.Equal(t, ice, recovered)
	}()
	Panic(ice)
}

func TestPipelineReport_String(t *testing.T) {
	var report PipelineReport
	report.Add(PassStats{Name: "rcinsert", IncsInserted: 2})
	report.Add(PassStats{Name: "rcelim", PairsEliminated: 1})

	out := report.String()
	require.Contains(t, out, "rcinsert: +2 inc")
	require.Contains(t, out, "rcelim: +0 inc, +0 dec, -1 pairs")
}
