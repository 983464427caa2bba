// Package sparsemat provides the small sparse-matrix representation used
// by the sparse Jacobian protocol: triplet assembly with duplicate
// summing, and a frozen column-compressed form whose iteration order is
// the contract between structural and numeric solver callbacks.
package sparsemat

import (
	"fmt"
	"sort"
)

// Triplet is a (row, column, value) contribution used to assemble a
// sparse matrix from an unordered list. Triplets with duplicate
// coordinates are summed during assembly.
type Triplet struct {
	Row int
	Col int
	Val float64
}

// Matrix is a sparse matrix that starts in an assembly phase, where
// entries may be inserted freely, and is then frozen. Once frozen the
// set of structural non-zero positions is immutable: values can be
// overwritten, accumulated, or zeroed, but positions are never added or
// removed, and iteration sweeps the stored entries in column-major
// order. Writes outside the frozen pattern are dropped.
type Matrix struct {
	rows, cols int
	frozen     bool

	entries  []Triplet
	index    map[[2]int]int
	colStart []int
}

// New returns an empty rows x cols matrix in the assembly phase.
func New(rows, cols int) *Matrix {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("sparsemat: negative dimensions %dx%d", rows, cols))
	}
	return &Matrix{
		rows:  rows,
		cols:  cols,
		index: make(map[[2]int]int),
	}
}

// FromTriplets assembles a frozen matrix from ts, summing duplicate
// coordinates.
func FromTriplets(rows, cols int, ts []Triplet) *Matrix {
	m := New(rows, cols)
	for _, t := range ts {
		m.Add(t.Row, t.Col, t.Val)
	}
	m.Freeze()
	return m
}

// Dims returns the matrix dimensions.
func (m *Matrix) Dims() (rows, cols int) {
	return m.rows, m.cols
}

// NonZeros returns the number of structural non-zero entries.
func (m *Matrix) NonZeros() int {
	return len(m.entries)
}

// Frozen reports whether the structural pattern has been frozen.
func (m *Matrix) Frozen() bool {
	return m.frozen
}

func (m *Matrix) checkBounds(i, j int) {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		panic(fmt.Sprintf("sparsemat: index (%d,%d) out of bounds for %dx%d matrix",
			i, j, m.rows, m.cols))
	}
}

// Set assigns the entry at (i, j). During assembly a missing entry is
// inserted. After freezing, writes outside the pattern are dropped.
func (m *Matrix) Set(i, j int, v float64) {
	m.checkBounds(i, j)
	if pos, ok := m.index[[2]int{i, j}]; ok {
		m.entries[pos].Val = v
		return
	}
	if m.frozen {
		return
	}
	m.index[[2]int{i, j}] = len(m.entries)
	m.entries = append(m.entries, Triplet{Row: i, Col: j, Val: v})
}

// Add accumulates v into the entry at (i, j). During assembly a missing
// entry is inserted. After freezing, writes outside the pattern are
// dropped.
func (m *Matrix) Add(i, j int, v float64) {
	m.checkBounds(i, j)
	if pos, ok := m.index[[2]int{i, j}]; ok {
		m.entries[pos].Val += v
		return
	}
	if m.frozen {
		return
	}
	m.index[[2]int{i, j}] = len(m.entries)
	m.entries = append(m.entries, Triplet{Row: i, Col: j, Val: v})
}

// At returns the value at (i, j); structural zeros read as 0.
func (m *Matrix) At(i, j int) float64 {
	m.checkBounds(i, j)
	if pos, ok := m.index[[2]int{i, j}]; ok {
		return m.entries[pos].Val
	}
	return 0
}

// Zero sets every stored value to zero while keeping the structural
// pattern intact.
func (m *Matrix) Zero() {
	for i := range m.entries {
		m.entries[i].Val = 0
	}
}

// Freeze sorts the stored entries into column-major order, builds the
// per-column offsets, and locks the structural pattern. Freezing an
// already frozen matrix is a no-op.
func (m *Matrix) Freeze() {
	if m.frozen {
		return
	}
	sort.Slice(m.entries, func(a, b int) bool {
		if m.entries[a].Col != m.entries[b].Col {
			return m.entries[a].Col < m.entries[b].Col
		}
		return m.entries[a].Row < m.entries[b].Row
	})

	for pos, t := range m.entries {
		m.index[[2]int{t.Row, t.Col}] = pos
	}

	m.colStart = make([]int, m.cols+1)
	pos := 0
	for j := 0; j <= m.cols; j++ {
		for pos < len(m.entries) && m.entries[pos].Col < j {
			pos++
		}
		m.colStart[j] = pos
	}
	m.colStart[m.cols] = len(m.entries)
	m.frozen = true
}

// DoNonZero calls fn for every stored entry in column-major order. The
// matrix must be frozen: iteration order over a still-mutable pattern is
// meaningless to the caller.
func (m *Matrix) DoNonZero(fn func(i, j int, v float64)) {
	if !m.frozen {
		panic("sparsemat: DoNonZero on unfrozen matrix")
	}
	for _, t := range m.entries {
		fn(t.Row, t.Col, t.Val)
	}
}

// DoColNonZero calls fn for every stored entry of column j in ascending
// row order. The matrix must be frozen.
func (m *Matrix) DoColNonZero(j int, fn func(i int, v float64)) {
	if !m.frozen {
		panic("sparsemat: DoColNonZero on unfrozen matrix")
	}
	if j < 0 || j >= m.cols {
		panic(fmt.Sprintf("sparsemat: column %d out of bounds for %d columns", j, m.cols))
	}
	for pos := m.colStart[j]; pos < m.colStart[j+1]; pos++ {
		fn(m.entries[pos].Row, m.entries[pos].Val)
	}
}

// Triplets returns a copy of the stored entries. For a frozen matrix the
// copy is in column-major order.
func (m *Matrix) Triplets() []Triplet {
	out := make([]Triplet, len(m.entries))
	copy(out, m.entries)
	return out
}
