package intern_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"arccore/pkg/intern"
)

func TestStringInterner_InternRoundTrips(t *testing.T) {
	si := intern.NewStringInterner()

	a := si.Intern("foo")
	b := si.Intern("bar")
	aAgain := si.Intern("foo")

	require.Equal(t, a, aAgain, "interning the same text twice returns the same handle")
	require.NotEqual(t, a, b)
	require.Equal(t, "foo", si.Text(a))
	require.Equal(t, "bar", si.Text(b))
}

func TestStringInterner_EmptyStringIsInvalidName(t *testing.T) {
	si := intern.NewStringInterner()

	require.Equal(t, intern.InvalidName, si.Intern(""))
	require.Equal(t, "", si.Text(intern.InvalidName))
}

func TestStringInterner_TextPanicsOnDanglingName(t *testing.T) {
	si := intern.NewStringInterner()
	defer func() {
		require.NotNil(t, recover(), "a handle never returned by Intern must panic, not silently misread")
	}()
	si.Text(intern.Name(99))
}
