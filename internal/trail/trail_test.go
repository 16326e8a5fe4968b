package trail

import (
	"testing"

	"github.com/michalmalik/keyfinder/internal/ddt"
	"github.com/michalmalik/keyfinder/internal/spn"
	"github.com/stretchr/testify/require"
)

var referenceSBox = [16]uint8{6, 10, 11, 15, 12, 2, 13, 5, 3, 8, 0, 1, 14, 7, 4, 9}

func newReferenceBuilder(t *testing.T) *Builder {
	t.Helper()
	table := ddt.New(referenceSBox)
	return New(table, spn.Permute)
}

func TestPatternMaskAndActiveCount(t *testing.T) {
	require.Equal(t, uint16(0xf000), Pattern(0b1000).Mask())
	require.Equal(t, uint16(0xf0f0), Pattern(0b1010).Mask())
	require.Equal(t, 1, Pattern(0b1000).ActiveCount())
	require.Equal(t, 2, Pattern(0b1010).ActiveCount())
	require.Equal(t, 4, Pattern(0b1111).ActiveCount())
	require.True(t, Pattern(0b1010).Has(0))
	require.False(t, Pattern(0b1010).Has(1))
}

func TestBuildProducesTrailsWithinBounds(t *testing.T) {
	b := newReferenceBuilder(t)

	trails := b.Build(4, Pattern(0b1000), false)
	require.NotEmpty(t, trails)

	for _, tr := range trails {
		require.Greater(t, tr.Probability, 0.0)
		require.LessOrEqual(t, tr.Probability, 1.0)
		require.Zero(t, tr.OutputDiff&^Pattern(0b1000).Mask())
	}
}

func TestBestTrailsShareMaxProbability(t *testing.T) {
	b := newReferenceBuilder(t)
	trails := b.Build(4, Pattern(0b1010), false)
	best := BestTrails(trails)

	require.NotEmpty(t, best)
	want := best[0].Probability
	for _, tr := range best {
		require.Equal(t, want, tr.Probability)
	}

	for _, tr := range trails {
		require.LessOrEqual(t, tr.Probability, want)
	}
}

func TestBestTrailsEmptyInput(t *testing.T) {
	require.Empty(t, BestTrails(nil))
}
