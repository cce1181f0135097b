// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

// Package clustering groups a user's saved items within one category by
// embedding similarity: agglomerative clustering with average linkage over
// pairwise cosine distances, cut at k groups, small groups dropped.
//
// Everything here is deterministic. Ties in merge order and representative
// selection break toward lower input indices, so two runs over identical
// data produce identical groupings.
package clustering

import (
	"math"

	"github.com/keepstack/keepstack/internal/errs"
)

// TargetK returns the number of groups to cut at for n items:
// max(1, min(floor(sqrt(n)), floor(n/2))).
func TargetK(n int) int {
	if n <= 1 {
		return 1
	}
	k := int(math.Sqrt(float64(n)))
	if half := n / 2; k > half {
		k = half
	}
	if k < 1 {
		k = 1
	}
	return k
}

// CosineDistance is 1 - cosine similarity, in [0, 2]. Zero vectors are
// treated as maximally distant from everything.
func CosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

// DistanceMatrix computes the symmetric pairwise cosine-distance matrix.
// All vectors must share one dimensionality.
func DistanceMatrix(vectors [][]float32) ([][]float64, error) {
	n := len(vectors)
	if n == 0 {
		return nil, nil
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, errs.Ef(errs.Validation,
				"vector %d has %d dimensions, expected %d", i, len(v), dim)
		}
	}

	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := CosineDistance(vectors[i], vectors[j])
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return dist, nil
}

// Agglomerate merges the n items down to k groups using average linkage:
// the pair of groups with the smallest mean inter-group distance merges
// first. Returned groups hold input indices in ascending order; groups are
// ordered by their smallest member.
func Agglomerate(dist [][]float64, k int) [][]int {
	n := len(dist)
	if n == 0 {
		return nil
	}
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}

	groups := make([][]int, n)
	for i := range groups {
		groups[i] = []int{i}
	}

	linkage := func(a, b []int) float64 {
		var sum float64
		for _, i := range a {
			for _, j := range b {
				sum += dist[i][j]
			}
		}
		return sum / float64(len(a)*len(b))
	}

	for len(groups) > k {
		bestA, bestB := 0, 1
		best := math.Inf(1)
		for a := 0; a < len(groups); a++ {
			for b := a + 1; b < len(groups); b++ {
				if d := linkage(groups[a], groups[b]); d < best {
					best = d
					bestA, bestB = a, b
				}
			}
		}

		merged := mergeSorted(groups[bestA], groups[bestB])
		groups = append(groups[:bestB], groups[bestB+1:]...)
		groups[bestA] = merged

		// Keep group order canonical (by smallest member) so tie-breaks
		// in later iterations stay deterministic.
		sortGroups(groups)
	}

	return groups
}

// Representative picks the member closest to the group's center: the index
// with the lowest mean distance to the rest of the group. Ties break to the
// lower input index.
func Representative(group []int, dist [][]float64) int {
	if len(group) == 1 {
		return group[0]
	}
	best := group[0]
	bestMean := math.Inf(1)
	for _, i := range group {
		var sum float64
		for _, j := range group {
			if i != j {
				sum += dist[i][j]
			}
		}
		mean := sum / float64(len(group)-1)
		if mean < bestMean {
			bestMean = mean
			best = i
		}
	}
	return best
}

func mergeSorted(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] < b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

func sortGroups(groups [][]int) {
	for i := 1; i < len(groups); i++ {
		for j := i; j > 0 && groups[j][0] < groups[j-1][0]; j-- {
			groups[j], groups[j-1] = groups[j-1], groups[j]
		}
	}
}
