package embedding

import (
	"math"
	"sort"
)

// Cosine returns the cosine similarity of two vectors rescaled from [-1, 1]
// to [0, 1]: 1 means identical direction, 0.5 orthogonal, 0 opposite. A
// zero-norm vector or mismatched dimensions yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return (cos + 1) / 2
}

// Match pairs a candidate index with its similarity score.
type Match struct {
	Index int
	Score float64
}

// FindMostSimilar scores query against every candidate and returns the
// matches at or above threshold, best first, capped at topK (<= 0 means
// unlimited).
func FindMostSimilar(query []float32, candidates [][]float32, threshold float64, topK int) []Match {
	var matches []Match
	for i, c := range candidates {
		score := Cosine(query, c)
		if score >= threshold {
			matches = append(matches, Match{Index: i, Score: score})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}
