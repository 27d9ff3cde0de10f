package domain

import (
	"math"
	"sort"
)

// CosineSimilarity returns the cosine of the angle between a and b.
// Vectors of different length or zero magnitude score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// RankPassages scores every passage against query and returns the k best,
// highest similarity first. Ties keep the input order.
func RankPassages(query []float32, passages []Passage, k int) []ScoredPassage {
	if k <= 0 || len(passages) == 0 {
		return []ScoredPassage{}
	}

	scored := make([]ScoredPassage, len(passages))
	for i, p := range passages {
		scored[i] = ScoredPassage{Passage: p, Similarity: CosineSimilarity(query, p.Embedding)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if k < len(scored) {
		scored = scored[:k]
	}
	return scored
}
