package ipopt

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/nlpbridge/internal/nlp"
)

// denseTNLP adapts an nlp.Problem to the TNLP contract using a dense
// constraint Jacobian: every (row, column) pair is reported as
// structurally non-zero. Correct but wasteful; used when the problem
// gives no sparsity-friendly guarantee.
//
// All evaluation buffers are sized once at construction and reused for
// every callback. They are refreshed together when the engine signals a
// new evaluation point and read back unchanged otherwise.
type denseTNLP struct {
	problem *nlp.Problem
	sink    *outcomeSink
	logger  *zap.Logger

	boundMultInit float64

	n int
	m int

	cost        [1]float64
	costGrad    []float64
	constraints []float64
	jacobian    *mat.Dense
}

func newDenseTNLP(p *nlp.Problem, sink *outcomeSink, boundMultInit float64, logger *zap.Logger) *denseTNLP {
	n := p.NumVariables()
	m := p.NumConstraintOutputs()
	return &denseTNLP{
		problem:       p,
		sink:          sink,
		logger:        logger,
		boundMultInit: boundMultInit,
		n:             n,
		m:             m,
		costGrad:      make([]float64, n),
		constraints:   make([]float64, m),
		jacobian:      mat.NewDense(max(m, 1), n, nil),
	}
}

// assertLen fails fast on a size mismatch between the engine-declared
// and adapter-declared dimensions. Such a mismatch is a contract
// violation, not a runtime condition.
func assertLen(what string, got, want int) {
	if got != want {
		panic(fmt.Sprintf("ipopt: %s has length %d, want %d", what, got, want))
	}
}

// refresh re-evaluates cost, cost gradient, stacked constraint values,
// and the constraint Jacobian at x. Called only on a new-point signal.
func (a *denseTNLP) refresh(x []float64) error {
	const op = "denseTNLP.refresh"

	if err := a.problem.Objective.Evaluate(a.cost[:], x); err != nil {
		return nlp.WrapError(err, "objective evaluation failed").WithOperation(op)
	}
	if err := a.problem.Objective.Gradient(a.costGrad, x, 0); err != nil {
		return nlp.WrapError(err, "objective gradient failed").WithOperation(op)
	}

	offset := 0
	for i, c := range a.problem.Constraints {
		size := c.F.OutputSize()
		if err := c.F.Evaluate(a.constraints[offset:offset+size], x); err != nil {
			return nlp.WrapErrorf(err, "constraint %d evaluation failed", i).WithOperation(op)
		}
		block := a.jacobian.Slice(offset, offset+size, 0, a.n).(*mat.Dense)
		if err := c.F.Jacobian(block, x); err != nil {
			return nlp.WrapErrorf(err, "constraint %d jacobian failed", i).WithOperation(op)
		}
		offset += size
	}
	return nil
}

func (a *denseTNLP) Info() (Info, error) {
	return Info{
		NumVariables:        a.n,
		NumConstraints:      a.m,
		NumJacobianNonZeros: a.n * a.m,
		NumHessianNonZeros:  0,
	}, nil
}

func (a *denseTNLP) BoundsInfo(xl, xu, gl, gu []float64) error {
	assertLen("xl", len(xl), a.n)
	assertLen("xu", len(xu), a.n)
	assertLen("gl", len(gl), a.m)
	assertLen("gu", len(gu), a.m)

	for i, iv := range a.problem.VariableBounds {
		xl[i] = iv.Lower
		xu[i] = iv.Upper
	}
	a.problem.FlattenedConstraintBounds(gl, gu)
	return nil
}

func (a *denseTNLP) ScalingParameters(xScale, gScale []float64) (bool, error) {
	return scalingParameters(a.problem, a.n, a.m, xScale, gScale)
}

func (a *denseTNLP) VariablesLinearity(kinds []nlp.Linearity) error {
	assertLen("kinds", len(kinds), a.n)
	variablesLinearity(kinds)
	return nil
}

func (a *denseTNLP) ConstraintsLinearity(kinds []nlp.Linearity) error {
	assertLen("kinds", len(kinds), a.m)
	constraintsLinearity(a.problem, kinds)
	return nil
}

func (a *denseTNLP) StartingPoint(x []float64, initX bool, zL, zU []float64, initZ bool, lambda []float64, initLambda bool) error {
	return startingPoint(a.problem, a.sink, a.boundMultInit, x, initX, zL, zU, initZ, lambda, initLambda)
}

func (a *denseTNLP) WarmStartIterate() error {
	return ErrNotSupported
}

func (a *denseTNLP) EvalF(x []float64, newX bool) (float64, error) {
	assertLen("x", len(x), a.n)
	if newX {
		if err := a.refresh(x); err != nil {
			return 0, err
		}
	}
	return a.cost[0], nil
}

func (a *denseTNLP) EvalGradF(grad, x []float64, newX bool) error {
	assertLen("x", len(x), a.n)
	assertLen("grad", len(grad), a.n)
	if newX {
		if err := a.refresh(x); err != nil {
			return err
		}
	}
	copy(grad, a.costGrad)
	return nil
}

func (a *denseTNLP) EvalG(g, x []float64, newX bool) error {
	assertLen("x", len(x), a.n)
	assertLen("g", len(g), a.m)
	if newX {
		if err := a.refresh(x); err != nil {
			return err
		}
	}
	copy(g, a.constraints)
	return nil
}

func (a *denseTNLP) JacobianStructure(rows, cols []int) error {
	assertLen("rows", len(rows), a.n*a.m)
	assertLen("cols", len(cols), a.n*a.m)
	idx := 0
	for i := 0; i < a.m; i++ {
		for j := 0; j < a.n; j++ {
			rows[idx] = i
			cols[idx] = j
			idx++
		}
	}
	return nil
}

func (a *denseTNLP) EvalJacG(values, x []float64, newX bool) error {
	assertLen("x", len(x), a.n)
	assertLen("values", len(values), a.n*a.m)
	if newX {
		if err := a.refresh(x); err != nil {
			return err
		}
	}
	idx := 0
	for i := 0; i < a.m; i++ {
		for j := 0; j < a.n; j++ {
			values[idx] = a.jacobian.At(i, j)
			idx++
		}
	}
	return nil
}

func (a *denseTNLP) IntermediateCallback(iter int, objValue, primalInf, dualInf float64) bool {
	a.logger.Debug("iteration",
		zap.Int("iter", iter),
		zap.Float64("objective", objValue),
		zap.Float64("primal_inf", primalInf),
		zap.Float64("dual_inf", dualInf),
	)
	return true
}

func (a *denseTNLP) NumNonlinearVariables() int {
	return -1
}

func (a *denseTNLP) NonlinearVariables(idx []int) error {
	return ErrNotSupported
}

func (a *denseTNLP) FinalizeSolution(status Status, x, g, lambda []float64, objValue float64) {
	assertLen("x", len(x), a.n)
	assertLen("g", len(g), a.m)
	finalize(a.sink, a.logger, status, x, g, lambda, objValue)
}
