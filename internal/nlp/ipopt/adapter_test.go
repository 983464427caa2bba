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

// counting wraps a function and counts how often each evaluation entry
// point is invoked.
type counting struct {
	nlp.SparseDifferentiable
	evals      int
	grads      int
	jacs       int
	sparseJacs int
}

func (c *counting) Evaluate(dst, x []float64) error {
	c.evals++
	return c.SparseDifferentiable.Evaluate(dst, x)
}

func (c *counting) Gradient(dst, x []float64, which int) error {
	c.grads++
	return c.SparseDifferentiable.Gradient(dst, x, which)
}

func (c *counting) Jacobian(dst *mat.Dense, x []float64) error {
	c.jacs++
	return c.SparseDifferentiable.Jacobian(dst, x)
}

func (c *counting) SparseJacobian(dst *sparsemat.Matrix, x []float64) error {
	c.sparseJacs++
	return c.SparseDifferentiable.SparseJacobian(dst, x)
}

// scenarioProblem is the n=2 reference problem: minimize (x0-2)^2
// subject to x0 + x1 = 1, x0^2 + x1^2 - 4 <= 0, variables in [-10, 10].
func scenarioProblem(start []float64) *nlp.Problem {
	objective := nlp.NewQuadraticFunction(
		mat.NewSymDense(2, []float64{2, 0, 0, 0}), []float64{-4, 0}, 4)
	line := nlp.NewLinearFunction(mat.NewDense(1, 2, []float64{1, 1}), nil)
	circle := nlp.NewQuadraticFunction(
		mat.NewSymDense(2, []float64{2, 0, 0, 2}), nil, -4)

	return &nlp.Problem{
		Objective: objective,
		Constraints: []nlp.Constraint{
			{F: line, Kind: nlp.Linear},
			{F: circle, Kind: nlp.Nonlinear},
		},
		VariableBounds: []nlp.Interval{
			{Lower: -10, Upper: 10},
			{Lower: -10, Upper: 10},
		},
		ConstraintBounds: [][]nlp.Interval{
			{{Lower: 1, Upper: 1}},
			{{Lower: math.Inf(-1), Upper: 0}},
		},
		StartingPoint: start,
	}
}

func TestDenseInfo(t *testing.T) {
	p := scenarioProblem([]float64{0, 0})
	a := newDenseTNLP(p, &outcomeSink{}, 1.0, zap.NewNop())

	info, err := a.Info()
	require.NoError(t, err)
	assert.Equal(t, 2, info.NumVariables)
	assert.Equal(t, 2, info.NumConstraints)
	assert.Equal(t, 4, info.NumJacobianNonZeros)
}

func TestDenseBoundsInfo(t *testing.T) {
	p := scenarioProblem([]float64{0, 0})
	a := newDenseTNLP(p, &outcomeSink{}, 1.0, zap.NewNop())

	xl := make([]float64, 2)
	xu := make([]float64, 2)
	gl := make([]float64, 2)
	gu := make([]float64, 2)
	require.NoError(t, a.BoundsInfo(xl, xu, gl, gu))

	assert.Equal(t, []float64{-10, -10}, xl)
	assert.Equal(t, []float64{10, 10}, xu)
	assert.Equal(t, []float64{1, math.Inf(-1)}, gl)
	assert.Equal(t, []float64{1, 0}, gu)
}

func TestDenseCacheCorrectness(t *testing.T) {
	p := scenarioProblem([]float64{0, 0})
	obj := &counting{SparseDifferentiable: p.Objective.(nlp.SparseDifferentiable)}
	p.Objective = obj
	a := newDenseTNLP(p, &outcomeSink{}, 1.0, zap.NewNop())

	x := []float64{1, 2}
	v1, err := a.EvalF(x, true)
	require.NoError(t, err)
	v2, err := a.EvalF(x, false)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, obj.evals, "same point must evaluate once")

	// Every cached quantity is served without re-evaluation.
	grad := make([]float64, 2)
	require.NoError(t, a.EvalGradF(grad, x, false))
	g := make([]float64, 2)
	require.NoError(t, a.EvalG(g, x, false))
	assert.Equal(t, 1, obj.evals)

	_, err = a.EvalF([]float64{3, 4}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, obj.evals, "new point must evaluate again")
}

func TestDenseStructureAndFillOrder(t *testing.T) {
	p := scenarioProblem([]float64{0, 0})
	a := newDenseTNLP(p, &outcomeSink{}, 1.0, zap.NewNop())

	rows := make([]int, 4)
	cols := make([]int, 4)
	require.NoError(t, a.JacobianStructure(rows, cols))
	assert.Equal(t, []int{0, 0, 1, 1}, rows)
	assert.Equal(t, []int{0, 1, 0, 1}, cols)

	// Jacobian at (1, 2): line has (1, 1); circle gradient is (2, 4).
	values := make([]float64, 4)
	require.NoError(t, a.EvalJacG(values, []float64{1, 2}, true))
	assert.InDeltaSlice(t, []float64{1, 1, 2, 4}, values, 1e-12)
}

func TestDenseEvalGStacksInDeclarationOrder(t *testing.T) {
	p := scenarioProblem([]float64{0, 0})
	a := newDenseTNLP(p, &outcomeSink{}, 1.0, zap.NewNop())

	g := make([]float64, 2)
	require.NoError(t, a.EvalG(g, []float64{1, 0}, true))
	assert.InDelta(t, 1.0, g[0], 1e-12)  // x0 + x1
	assert.InDelta(t, -3.0, g[1], 1e-12) // x0^2 + x1^2 - 4
}

func TestDenseLinearity(t *testing.T) {
	p := scenarioProblem([]float64{0, 0})
	a := newDenseTNLP(p, &outcomeSink{}, 1.0, zap.NewNop())

	varKinds := make([]nlp.Linearity, 2)
	require.NoError(t, a.VariablesLinearity(varKinds))
	assert.Equal(t, []nlp.Linearity{nlp.Nonlinear, nlp.Nonlinear}, varKinds)

	conKinds := make([]nlp.Linearity, 2)
	require.NoError(t, a.ConstraintsLinearity(conKinds))
	assert.Equal(t, []nlp.Linearity{nlp.Linear, nlp.Nonlinear}, conKinds)
}

func TestDenseScalingParameters(t *testing.T) {
	p := scenarioProblem([]float64{0, 0})
	a := newDenseTNLP(p, &outcomeSink{}, 1.0, zap.NewNop())

	use, err := a.ScalingParameters(make([]float64, 2), make([]float64, 2))
	require.NoError(t, err)
	assert.False(t, use, "no scaling requested")

	p.VariableScales = []float64{0.5, 2}
	p.ConstraintScales = [][]float64{{10}, {0.1}}
	xScale := make([]float64, 2)
	gScale := make([]float64, 2)
	use, err = a.ScalingParameters(xScale, gScale)
	require.NoError(t, err)
	assert.True(t, use)
	assert.Equal(t, []float64{0.5, 2}, xScale)
	assert.Equal(t, []float64{10, 0.1}, gScale)
}

func TestDenseStartingPoint(t *testing.T) {
	p := scenarioProblem([]float64{0.25, 0.75})
	a := newDenseTNLP(p, &outcomeSink{}, 1.0, zap.NewNop())

	x := make([]float64, 2)
	zL := make([]float64, 2)
	zU := make([]float64, 2)
	require.NoError(t, a.StartingPoint(x, true, zL, zU, true, nil, false))
	assert.Equal(t, []float64{0.25, 0.75}, x)
	assert.Equal(t, []float64{1, 1}, zL)
	assert.Equal(t, []float64{1, 1}, zU)
}

func TestDenseStartingPointMissing(t *testing.T) {
	p := scenarioProblem(nil)
	obj := &counting{SparseDifferentiable: p.Objective.(nlp.SparseDifferentiable)}
	p.Objective = obj
	sink := &outcomeSink{}
	a := newDenseTNLP(p, sink, 1.0, zap.NewNop())

	x := make([]float64, 2)
	err := a.StartingPoint(x, true, nil, nil, false, nil, false)
	require.Error(t, err)

	failure, ok := sink.get().(*nlp.SolverError)
	require.True(t, ok, "a failure outcome must be recorded")
	assert.Equal(t, "Ipopt method needs a starting point.", failure.Reason)
	assert.Zero(t, obj.evals, "no evaluation may happen before the abort")
}

func TestStartingPointLambdaInitPanics(t *testing.T) {
	p := scenarioProblem([]float64{0, 0})
	a := newDenseTNLP(p, &outcomeSink{}, 1.0, zap.NewNop())

	assert.Panics(t, func() {
		_ = a.StartingPoint(make([]float64, 2), true, nil, nil, false, make([]float64, 2), true)
	})
}

func TestUnsupportedExtensions(t *testing.T) {
	p := scenarioProblem([]float64{0, 0})
	a := newDenseTNLP(p, &outcomeSink{}, 1.0, zap.NewNop())

	assert.ErrorIs(t, a.WarmStartIterate(), ErrNotSupported)
	assert.Equal(t, -1, a.NumNonlinearVariables())
	assert.ErrorIs(t, a.NonlinearVariables(nil), ErrNotSupported)
	assert.True(t, a.IntermediateCallback(0, 0, 0, 0))
}
