package typedast_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"arccore/pkg/intern"
	"arccore/pkg/typedast"
)

func TestResolutionTable_LookupFindsSortedEntries(t *testing.T) {
	rt := typedast.NewResolutionTable([]typedast.PatternResolution{
		{Key: typedast.PatternKey{ArmIndex: 3}, IsVariantMatch: true, VariantName: "None"},
		{Key: typedast.PatternKey{ArmIndex: 1}, BindName: intern.Name(7)},
		{Key: typedast.PatternKey{ArmIndex: 2}, IsVariantMatch: true, VariantName: "Some"},
	})

	got, ok := rt.Lookup(typedast.PatternKey{ArmIndex: 2})
	require.True(t, ok)
	require.Equal(t, "Some", got.VariantName)

	got, ok = rt.Lookup(typedast.PatternKey{ArmIndex: 1})
	require.True(t, ok)
	require.False(t, got.IsVariantMatch)
	require.Equal(t, intern.Name(7), got.BindName)
}

func TestResolutionTable_LookupMissingKey(t *testing.T) {
	rt := typedast.NewResolutionTable([]typedast.PatternResolution{
		{Key: typedast.PatternKey{ArmIndex: 0}},
	})

	_, ok := rt.Lookup(typedast.PatternKey{ArmIndex: 5})
	require.False(t, ok)
}

func TestResolutionTable_EmptyLookupNeverMatches(t *testing.T) {
	var rt typedast.ResolutionTable
	_, ok := rt.Lookup(typedast.PatternKey{ArmIndex: 0})
	require.False(t, ok)
}

func TestOwnership_String(t *testing.T) {
	require.Equal(t, "owned", typedast.Owned.String())
	require.Equal(t, "borrowed", typedast.Borrowed.String())
}
