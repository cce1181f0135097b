// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package clustering

import (
	"math"
	"reflect"
	"testing"
)

func TestTargetK(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{0, 1},
		{1, 1},
		{2, 1},
		{3, 1},
		{4, 2},
		{5, 2},
		{8, 2},
		{9, 3},
		{10, 3},
		{16, 4},
		{100, 10},
	}
	for _, tt := range tests {
		if got := TargetK(tt.n); got != tt.want {
			t.Errorf("TargetK(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}

	t.Run("bounds hold for all small n", func(t *testing.T) {
		for n := 1; n <= 200; n++ {
			k := TargetK(n)
			if k < 1 || k > n {
				t.Fatalf("TargetK(%d) = %d, out of [1, n]", n, k)
			}
		}
	})
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 0},
		{"scaled copies", []float32{1, 2}, []float32{3, 6}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineDistance(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineDistance = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDistanceMatrix(t *testing.T) {
	t.Run("rejects mixed dimensions", func(t *testing.T) {
		_, err := DistanceMatrix([][]float32{{1, 0}, {1, 0, 0}})
		if err == nil {
			t.Fatal("expected dimension mismatch error")
		}
	})

	t.Run("symmetric with zero diagonal", func(t *testing.T) {
		dist, err := DistanceMatrix([][]float32{{1, 0}, {0, 1}, {1, 1}})
		if err != nil {
			t.Fatalf("DistanceMatrix: %v", err)
		}
		for i := range dist {
			if dist[i][i] != 0 {
				t.Errorf("dist[%d][%d] = %v, want 0", i, i, dist[i][i])
			}
			for j := range dist {
				if dist[i][j] != dist[j][i] {
					t.Errorf("matrix not symmetric at (%d,%d)", i, j)
				}
			}
		}
	})
}

// twoBlobs is four points in the plane forming two tight pairs: indices
// 0,1 point roughly east, indices 2,3 roughly north.
func twoBlobs(t *testing.T) [][]float64 {
	t.Helper()
	dist, err := DistanceMatrix([][]float32{
		{1, 0.05},
		{1, 0.1},
		{0.05, 1},
		{0.1, 1},
	})
	if err != nil {
		t.Fatalf("DistanceMatrix: %v", err)
	}
	return dist
}

func TestAgglomerate(t *testing.T) {
	t.Run("separates two blobs", func(t *testing.T) {
		groups := Agglomerate(twoBlobs(t), 2)
		want := [][]int{{0, 1}, {2, 3}}
		if !reflect.DeepEqual(groups, want) {
			t.Errorf("groups = %v, want %v", groups, want)
		}
	})

	t.Run("k=1 yields one group of everything", func(t *testing.T) {
		groups := Agglomerate(twoBlobs(t), 1)
		want := [][]int{{0, 1, 2, 3}}
		if !reflect.DeepEqual(groups, want) {
			t.Errorf("groups = %v, want %v", groups, want)
		}
	})

	t.Run("k>=n leaves singletons", func(t *testing.T) {
		groups := Agglomerate(twoBlobs(t), 10)
		if len(groups) != 4 {
			t.Fatalf("got %d groups, want 4", len(groups))
		}
		for i, g := range groups {
			if len(g) != 1 || g[0] != i {
				t.Errorf("group %d = %v, want singleton [%d]", i, g, i)
			}
		}
	})

	t.Run("deterministic across runs", func(t *testing.T) {
		dist := twoBlobs(t)
		first := Agglomerate(dist, 2)
		for run := 0; run < 5; run++ {
			if got := Agglomerate(dist, 2); !reflect.DeepEqual(got, first) {
				t.Fatalf("run %d diverged: %v vs %v", run, got, first)
			}
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if got := Agglomerate(nil, 3); got != nil {
			t.Errorf("got %v, want nil", got)
		}
	})
}

func TestRepresentative(t *testing.T) {
	t.Run("picks the central member", func(t *testing.T) {
		// Index 1 sits between 0 and 2 on a line, so its mean distance to
		// the rest is lowest.
		dist, err := DistanceMatrix([][]float32{
			{1, 0},
			{1, 0.5},
			{1, 1},
		})
		if err != nil {
			t.Fatalf("DistanceMatrix: %v", err)
		}
		if got := Representative([]int{0, 1, 2}, dist); got != 1 {
			t.Errorf("Representative = %d, want 1", got)
		}
	})

	t.Run("ties break to the lower index", func(t *testing.T) {
		// Two identical points are equally central.
		dist, err := DistanceMatrix([][]float32{
			{1, 0},
			{1, 0},
		})
		if err != nil {
			t.Fatalf("DistanceMatrix: %v", err)
		}
		if got := Representative([]int{0, 1}, dist); got != 0 {
			t.Errorf("Representative = %d, want 0", got)
		}
	})

	t.Run("singleton", func(t *testing.T) {
		if got := Representative([]int{7}, nil); got != 7 {
			t.Errorf("Representative = %d, want 7", got)
		}
	})
}
