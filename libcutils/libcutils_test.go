package libcutils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSpecifier(t *testing.T) {
	for _, tc := range []struct {
		input string
		spec  PrintfSpecifier
	}{
		{
			input: "%d",
			spec:  PrintfSpecifier{Original: "%d", Specifier: "d"},
		},
		{
			input: "%-08.3lf rest",
			spec:  PrintfSpecifier{Original: "%-08.3lf", Flags: "-0", Width: "8", Precision: "3", Length: "l", Specifier: "f"},
		},
		{
			input: "%*s",
			spec:  PrintfSpecifier{Original: "%*s", Width: "*", Specifier: "s"},
		},
		{
			input: "%llu",
			spec:  PrintfSpecifier{Original: "%llu", Length: "ll", Specifier: "u"},
		},
	} {
		t.Run(tc.input, func(t *testing.T) {
			spec, ok := ParseSpecifier(tc.input)
			require.True(t, ok)
			require.Equal(t, tc.spec, spec)
		})
	}
}

func TestParseSpecifierInvalid(t *testing.T) {
	for _, input := range []string{"", "d", "%", "%y", "a%d"} {
		_, ok := ParseSpecifier(input)
		require.False(t, ok, input)
	}
}

func TestHint(t *testing.T) {
	require.Equal(t, `width "5" are matched verbatim, register %5d to handle it`, Hint("%5d"))
	require.Equal(t, "register %lx to handle it", Hint("%lx"))
	require.Equal(t, "not a libc conversion", Hint("%y"))
}
