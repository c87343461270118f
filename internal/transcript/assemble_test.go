package transcript

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssembleNormalizesWhitespaceAndTrailingSpace(t *testing.T) {
	t.Parallel()

	got := Assemble([]string{" hello", "world  ", "\nfrom", "vokeytranscribe"}, Options{TrailingSpace: true})
	require.Equal(t, "hello world from vokeytranscribe ", got)
}

func TestAssembleWithoutTrailingSpace(t *testing.T) {
	t.Parallel()

	got := Assemble([]string{"hello", "world"}, Options{})
	require.Equal(t, "hello world", got)
}

func TestAssembleEmptyInput(t *testing.T) {
	t.Parallel()

	require.Empty(t, Assemble(nil, Options{TrailingSpace: true}))
}

func TestAssembleSkipsWhitespaceOnlySegments(t *testing.T) {
	t.Parallel()

	got := Assemble([]string{"  ", "\n\t", "hello"}, Options{})
	require.Equal(t, "hello", got)
}

func TestAssembleIdempotentForNormalizedOutput(t *testing.T) {
	t.Parallel()

	first := Assemble([]string{"hello", "world"}, Options{})
	second := Assemble([]string{first}, Options{})
	require.Equal(t, first, second)
}

func TestAssembleCapitalizesSentenceStarts(t *testing.T) {
	t.Parallel()

	got := Assemble([]string{"hello world. this is a test."}, Options{CapitalizeSentences: true})
	require.Equal(t, "Hello world. This is a test.", got)
}

func TestAssembleCapitalizesStandaloneIAndPreservesAbbreviations(t *testing.T) {
	t.Parallel()

	got := Assemble([]string{"i think dr. smith said etc. was fine"}, Options{CapitalizeSentences: true})
	require.Equal(t, "I think dr. smith said etc. was fine", got)
}
