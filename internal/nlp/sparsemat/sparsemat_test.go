package sparsemat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromTripletsSumsDuplicates(t *testing.T) {
	m := FromTriplets(2, 2, []Triplet{
		{Row: 0, Col: 0, Val: 1},
		{Row: 1, Col: 1, Val: 2},
		{Row: 0, Col: 0, Val: 3},
	})

	assert.Equal(t, 2, m.NonZeros())
	assert.Equal(t, 4.0, m.At(0, 0))
	assert.Equal(t, 2.0, m.At(1, 1))
	assert.Equal(t, 0.0, m.At(0, 1))
}

func TestFreezeOrdersColumnMajor(t *testing.T) {
	m := New(3, 3)
	m.Set(2, 1, 1)
	m.Set(0, 2, 2)
	m.Set(1, 0, 3)
	m.Set(0, 1, 4)
	m.Freeze()

	var got []Triplet
	m.DoNonZero(func(i, j int, v float64) {
		got = append(got, Triplet{Row: i, Col: j, Val: v})
	})

	want := []Triplet{
		{Row: 1, Col: 0, Val: 3},
		{Row: 0, Col: 1, Val: 4},
		{Row: 2, Col: 1, Val: 1},
		{Row: 0, Col: 2, Val: 2},
	}
	assert.Equal(t, want, got)
}

func TestDoColNonZero(t *testing.T) {
	m := New(4, 2)
	m.Set(3, 0, 1)
	m.Set(1, 0, 2)
	m.Set(2, 1, 3)
	m.Freeze()

	var rows []int
	var vals []float64
	m.DoColNonZero(0, func(i int, v float64) {
		rows = append(rows, i)
		vals = append(vals, v)
	})
	assert.Equal(t, []int{1, 3}, rows)
	assert.Equal(t, []float64{2, 1}, vals)

	rows = nil
	m.DoColNonZero(1, func(i int, v float64) {
		rows = append(rows, i)
	})
	assert.Equal(t, []int{2}, rows)
}

func TestZeroKeepsStructure(t *testing.T) {
	m := FromTriplets(2, 2, []Triplet{
		{Row: 0, Col: 0, Val: 1},
		{Row: 1, Col: 1, Val: 2},
	})

	m.Zero()
	require.Equal(t, 2, m.NonZeros())
	assert.Equal(t, 0.0, m.At(0, 0))

	m.Set(0, 0, 5)
	assert.Equal(t, 5.0, m.At(0, 0))
}

func TestFrozenDropsNewPositions(t *testing.T) {
	m := FromTriplets(2, 2, []Triplet{{Row: 0, Col: 0, Val: 1}})

	m.Set(1, 1, 9)
	m.Add(1, 0, 9)

	assert.Equal(t, 1, m.NonZeros())
	assert.Equal(t, 0.0, m.At(1, 1))
	assert.Equal(t, 0.0, m.At(1, 0))
}

func TestAddAccumulatesIntoFrozenEntry(t *testing.T) {
	m := FromTriplets(1, 1, []Triplet{{Row: 0, Col: 0, Val: 1}})
	m.Add(0, 0, 2)
	assert.Equal(t, 3.0, m.At(0, 0))
}

func TestDoNonZeroPanicsUnfrozen(t *testing.T) {
	m := New(1, 1)
	assert.Panics(t, func() {
		m.DoNonZero(func(i, j int, v float64) {})
	})
}

func TestOutOfBoundsPanics(t *testing.T) {
	m := New(2, 2)
	assert.Panics(t, func() { m.Set(2, 0, 1) })
	assert.Panics(t, func() { m.At(0, -1) })
}
