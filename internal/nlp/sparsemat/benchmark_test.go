package sparsemat

import (
	"math/rand"
	"testing"
)

// BenchmarkAssembleAndFreeze measures one-shot pattern assembly for a
// banded matrix the size of a moderately large constraint Jacobian.
func BenchmarkAssembleAndFreeze(b *testing.B) {
	const n = 1000
	rng := rand.New(rand.NewSource(42))

	triplets := make([]Triplet, 0, 3*n)
	for i := 0; i < n; i++ {
		for d := -1; d <= 1; d++ {
			j := i + d
			if j < 0 || j >= n {
				continue
			}
			triplets = append(triplets, Triplet{Row: i, Col: j, Val: rng.NormFloat64()})
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = FromTriplets(n, n, triplets)
	}
}

// BenchmarkDoNonZero measures a full column-major sweep over a frozen
// banded pattern, the hot path of every Jacobian callback.
func BenchmarkDoNonZero(b *testing.B) {
	const n = 1000
	m := New(n, n)
	for i := 0; i < n; i++ {
		for d := -1; d <= 1; d++ {
			j := i + d
			if j < 0 || j >= n {
				continue
			}
			m.Set(i, j, 1)
		}
	}
	m.Freeze()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sum := 0.0
		m.DoNonZero(func(_, _ int, v float64) { sum += v })
		_ = sum
	}
}
