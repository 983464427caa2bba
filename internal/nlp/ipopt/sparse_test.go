package ipopt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/nlpbridge/internal/nlp"
	"github.com/copyleftdev/nlpbridge/internal/nlp/sparsemat"
)

// probe is an identity-Jacobian constraint that records the point at
// which its sparse Jacobian is requested.
type probe struct {
	n    int
	seen []float64
}

func (p *probe) InputSize() int  { return p.n }
func (p *probe) OutputSize() int { return p.n }

func (p *probe) Evaluate(dst, x []float64) error {
	copy(dst, x)
	return nil
}

func (p *probe) Gradient(dst, x []float64, which int) error {
	for i := range dst {
		dst[i] = 0
	}
	dst[which] = 1
	return nil
}

func (p *probe) Jacobian(dst *mat.Dense, x []float64) error {
	dst.Zero()
	for i := 0; i < p.n; i++ {
		dst.Set(i, i, 1)
	}
	return nil
}

func (p *probe) SparseJacobian(dst *sparsemat.Matrix, x []float64) error {
	p.seen = append([]float64(nil), x...)
	for i := 0; i < p.n; i++ {
		dst.Set(i, i, 1)
	}
	return nil
}

// denseOnly implements Differentiable without a sparse Jacobian.
type denseOnly struct {
	inner *nlp.LinearFunction
}

func (d *denseOnly) InputSize() int  { return d.inner.InputSize() }
func (d *denseOnly) OutputSize() int { return d.inner.OutputSize() }

func (d *denseOnly) Evaluate(dst, x []float64) error {
	return d.inner.Evaluate(dst, x)
}

func (d *denseOnly) Gradient(dst, x []float64, which int) error {
	return d.inner.Gradient(dst, x, which)
}

func (d *denseOnly) Jacobian(dst *mat.Dense, x []float64) error {
	return d.inner.Jacobian(dst, x)
}

func newSparseScenario(t *testing.T, start []float64) *sparseTNLP {
	t.Helper()
	a, err := newSparseTNLP(scenarioProblem(start), &outcomeSink{}, 1.0, zap.NewNop())
	require.NoError(t, err)
	return a
}

func TestSparseRejectsDenseConstraint(t *testing.T) {
	p := scenarioProblem([]float64{1, 1})
	p.Constraints[0].F = &denseOnly{inner: nlp.NewLinearFunction(mat.NewDense(1, 2, []float64{1, 1}), nil)}

	_, err := newSparseTNLP(p, &outcomeSink{}, 1.0, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constraint 0")
}

func TestSparseDiscoveryPattern(t *testing.T) {
	a := newSparseScenario(t, []float64{1, 1})

	info, err := a.Info()
	require.NoError(t, err)
	assert.Equal(t, 2, info.NumVariables)
	assert.Equal(t, 2, info.NumConstraints)
	assert.Equal(t, 4, info.NumJacobianNonZeros)

	rows := make([]int, 4)
	cols := make([]int, 4)
	require.NoError(t, a.JacobianStructure(rows, cols))
	assert.Equal(t, []int{0, 1, 0, 1}, rows, "column-major: rows ascend within each column")
	assert.Equal(t, []int{0, 0, 1, 1}, cols)
}

func TestSparseFillOrderMatchesStructure(t *testing.T) {
	a := newSparseScenario(t, []float64{1, 1})

	rows := make([]int, 4)
	cols := make([]int, 4)
	require.NoError(t, a.JacobianStructure(rows, cols))

	// At (1, 2): line Jacobian is (1, 1), circle gradient is (2, 4).
	values := make([]float64, 4)
	require.NoError(t, a.EvalJacG(values, []float64{1, 2}, true))

	want := map[[2]int]float64{
		{0, 0}: 1, {0, 1}: 1,
		{1, 0}: 2, {1, 1}: 4,
	}
	for k, v := range values {
		assert.InDelta(t, want[[2]int{rows[k], cols[k]}], v, 1e-12)
	}
}

func TestSparseDiscoveryIdempotent(t *testing.T) {
	p := scenarioProblem([]float64{1, 1})
	circle := &counting{SparseDifferentiable: p.Constraints[1].F.(nlp.SparseDifferentiable)}
	p.Constraints[1].F = circle

	a, err := newSparseTNLP(p, &outcomeSink{}, 1.0, zap.NewNop())
	require.NoError(t, err)

	_, err = a.Info()
	require.NoError(t, err)
	_, err = a.Info()
	require.NoError(t, err)
	require.NoError(t, a.JacobianStructure(make([]int, 4), make([]int, 4)))

	assert.Equal(t, 1, circle.sparseJacs, "structure is discovered exactly once")
}

func TestSparseSynthesizedPoint(t *testing.T) {
	pr := &probe{n: 4}
	p := &nlp.Problem{
		Objective:   nlp.NewQuadraticFunction(nil, []float64{1, 0, 0, 0}, 0),
		Constraints: []nlp.Constraint{{F: pr, Kind: nlp.Nonlinear}},
		VariableBounds: []nlp.Interval{
			nlp.Unbounded(), nlp.Unbounded(), nlp.Unbounded(), nlp.Unbounded(),
		},
		ConstraintBounds: [][]nlp.Interval{{
			{Lower: 1, Upper: 3},
			{Lower: 1, Upper: math.Inf(1)},
			{Lower: math.Inf(-1), Upper: 2},
			{Lower: math.Inf(-1), Upper: math.Inf(1)},
		}},
	}
	require.NoError(t, p.Validate())

	a, err := newSparseTNLP(p, &outcomeSink{}, 1.0, zap.NewNop())
	require.NoError(t, err)
	_, err = a.Info()
	require.NoError(t, err)

	// Midpoint for finite intervals, the finite bound for half-open
	// ones, zero when unbounded.
	assert.Equal(t, []float64{2, 1, 2, 0}, pr.seen)
}

func TestSparseSynthesizedPointPrefersStart(t *testing.T) {
	pr := &probe{n: 2}
	p := scenarioProblem([]float64{0.5, -0.5})
	p.Constraints = append(p.Constraints, nlp.Constraint{F: pr, Kind: nlp.Linear})
	p.ConstraintBounds = append(p.ConstraintBounds, []nlp.Interval{
		{Lower: 0, Upper: 10}, {Lower: 0, Upper: 10},
	})

	a, err := newSparseTNLP(p, &outcomeSink{}, 1.0, zap.NewNop())
	require.NoError(t, err)
	_, err = a.Info()
	require.NoError(t, err)

	assert.Equal(t, []float64{0.5, -0.5}, pr.seen)
}

func TestSparseZeroGradientAtDiscoveryPoint(t *testing.T) {
	// At the origin the circle's gradient vanishes, so point-based
	// discovery only sees the linear constraint's entries.
	a := newSparseScenario(t, []float64{0, 0})

	info, err := a.Info()
	require.NoError(t, err)
	assert.Equal(t, 2, info.NumJacobianNonZeros)

	rows := make([]int, 2)
	cols := make([]int, 2)
	require.NoError(t, a.JacobianStructure(rows, cols))
	assert.Equal(t, []int{0, 0}, rows)
	assert.Equal(t, []int{0, 1}, cols)
}

func TestSparseRefreshKeepsPattern(t *testing.T) {
	a := newSparseScenario(t, []float64{1, 1})
	_, err := a.Info()
	require.NoError(t, err)

	// Two numeric evaluations at distinct points reuse the frozen
	// pattern and rewrite values in place.
	v1 := make([]float64, 4)
	require.NoError(t, a.EvalJacG(v1, []float64{1, 1}, true))
	v2 := make([]float64, 4)
	require.NoError(t, a.EvalJacG(v2, []float64{3, -2}, true))

	assert.InDeltaSlice(t, []float64{1, 2, 1, 2}, v1, 1e-12)
	assert.InDeltaSlice(t, []float64{1, 6, 1, -4}, v2, 1e-12)
}
