package embedding

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCosine_Rescaled(t *testing.T) {
	t.Parallel()

	a := []float32{1, 0, 0}
	require.InDelta(t, 1.0, Cosine(a, []float32{2, 0, 0}), 1e-6, "same direction")
	require.InDelta(t, 0.5, Cosine(a, []float32{0, 1, 0}), 1e-6, "orthogonal")
	require.InDelta(t, 0.0, Cosine(a, []float32{-1, 0, 0}), 1e-6, "opposite")
}

func TestCosine_DegenerateInputs(t *testing.T) {
	t.Parallel()

	require.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}), "zero norm")
	require.Zero(t, Cosine([]float32{1}, []float32{1, 2}), "dimension mismatch")
	require.Zero(t, Cosine(nil, nil), "empty")
}

func TestFindMostSimilar(t *testing.T) {
	t.Parallel()

	query := []float32{1, 0}
	candidates := [][]float32{
		{0, 1},   // 0.5
		{1, 0.1}, // ~0.9975
		{-1, 0},  // 0
		{1, 0.5}, // ~0.947
	}

	matches := FindMostSimilar(query, candidates, 0.9, 0)
	require.Len(t, matches, 2)
	require.Equal(t, 1, matches[0].Index, "best match first")
	require.Equal(t, 3, matches[1].Index)
	require.Greater(t, matches[0].Score, matches[1].Score)

	matches = FindMostSimilar(query, candidates, 0.9, 1)
	require.Len(t, matches, 1)
	require.Equal(t, 1, matches[0].Index)

	require.Empty(t, FindMostSimilar(query, candidates, 0.999, 0))
}
