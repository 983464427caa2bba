package ipopt

import (
	"math"

	"go.uber.org/zap"

	"github.com/copyleftdev/nlpbridge/internal/nlp"
	"github.com/copyleftdev/nlpbridge/internal/nlp/sparsemat"
)

// sparseTNLP adapts an nlp.Problem whose constraints expose sparse
// Jacobians. The non-zero pattern of the stacked constraint Jacobian is
// discovered once, by evaluating every constraint at a synthesized
// point, and frozen for the remainder of the solve: the structural
// emission order and the numeric fill order are the same column-major
// sweep by construction, never recomputed.
type sparseTNLP struct {
	problem *nlp.Problem
	sink    *outcomeSink
	logger  *zap.Logger

	boundMultInit float64

	n int
	m int

	sparseConstraints []nlp.SparseDifferentiable

	cost        [1]float64
	costGrad    []float64
	constraints []float64

	// Frozen after discovery. constraintJacs are retained and
	// overwritten in place on every numeric evaluation; jacobian holds
	// the assembled global pattern.
	discovered     bool
	constraintJacs []*sparsemat.Matrix
	jacobian       *sparsemat.Matrix
}

func newSparseTNLP(p *nlp.Problem, sink *outcomeSink, boundMultInit float64, logger *zap.Logger) (*sparseTNLP, error) {
	const op = "newSparseTNLP"

	sparse := make([]nlp.SparseDifferentiable, len(p.Constraints))
	for i, c := range p.Constraints {
		sf, ok := c.F.(nlp.SparseDifferentiable)
		if !ok {
			return nil, nlp.NewErrorf("constraint %d does not expose a sparse Jacobian", i).
				WithOperation(op).WithComponent("ipopt")
		}
		sparse[i] = sf
	}

	n := p.NumVariables()
	m := p.NumConstraintOutputs()
	return &sparseTNLP{
		problem:           p,
		sink:              sink,
		logger:            logger,
		boundMultInit:     boundMultInit,
		n:                 n,
		m:                 m,
		sparseConstraints: sparse,
		costGrad:          make([]float64, n),
		constraints:       make([]float64, m),
	}, nil
}

// synthesizePoint builds a finite evaluation point for constraint cid's
// structure discovery. The starting point is reused when present;
// otherwise each component takes the midpoint of the constraint's bound
// interval when both sides are finite, the one finite bound when only
// one side is, and 0 when neither is. The construction is total: no
// bound combination yields an undefined value.
func (a *sparseTNLP) synthesizePoint(cid int) []float64 {
	if a.problem.StartingPoint != nil {
		return a.problem.StartingPoint
	}
	x := make([]float64, a.n)
	intervals := a.problem.ConstraintBounds[cid]
	for i := range x {
		if i >= len(intervals) {
			x[i] = 0
			continue
		}
		lo, hi := intervals[i].Lower, intervals[i].Upper
		switch {
		case !math.IsInf(lo, 0) && !math.IsInf(hi, 0):
			x[i] = (lo + hi) / 2
		case !math.IsInf(lo, 0):
			x[i] = lo
		case !math.IsInf(hi, 0):
			x[i] = hi
		default:
			x[i] = 0
		}
	}
	return x
}

// discover runs the one-shot sparsity detection: evaluate each
// constraint's Jacobian at a synthesized point, collect global (row,
// column, value) triplets with the running output offset, and assemble
// the frozen global pattern. Per-constraint Jacobians are retained for
// in-place refill. Idempotent: only the first call evaluates anything.
//
// A Jacobian entry that is zero at the synthesized point but non-zero
// elsewhere in the feasible region is not detected. This is a known
// limitation of point-based structure discovery, kept as-is.
func (a *sparseTNLP) discover() error {
	const op = "sparseTNLP.discover"

	if a.discovered {
		return nil
	}
	a.logger.Debug("looking for non-zero elements")

	var triplets []sparsemat.Triplet
	a.constraintJacs = make([]*sparsemat.Matrix, len(a.sparseConstraints))

	offset := 0
	for cid, g := range a.sparseConstraints {
		x := a.synthesizePoint(cid)
		jac := sparsemat.New(g.OutputSize(), a.n)
		if err := g.SparseJacobian(jac, x); err != nil {
			return nlp.WrapErrorf(err, "constraint %d jacobian failed during structure discovery", cid).
				WithOperation(op)
		}
		jac.Freeze()
		jac.DoNonZero(func(i, j int, v float64) {
			triplets = append(triplets, sparsemat.Triplet{Row: offset + i, Col: j, Val: v})
		})
		a.constraintJacs[cid] = jac
		offset += g.OutputSize()
	}

	a.jacobian = sparsemat.FromTriplets(a.m, a.n, triplets)
	a.discovered = true

	a.logger.Debug("sparsity pattern frozen",
		zap.Int("nnz", a.jacobian.NonZeros()),
		zap.Int("constraints", len(a.sparseConstraints)),
	)
	return nil
}

// refresh re-evaluates cost, cost gradient, stacked constraint values,
// and (once the pattern is frozen) every constraint's Jacobian values
// in place, preserving each constraint's non-zero layout.
func (a *sparseTNLP) refresh(x []float64) error {
	const op = "sparseTNLP.refresh"

	if err := a.problem.Objective.Evaluate(a.cost[:], x); err != nil {
		return nlp.WrapError(err, "objective evaluation failed").WithOperation(op)
	}
	if err := a.problem.Objective.Gradient(a.costGrad, x, 0); err != nil {
		return nlp.WrapError(err, "objective gradient failed").WithOperation(op)
	}

	offset := 0
	for cid, g := range a.sparseConstraints {
		size := g.OutputSize()
		if err := g.Evaluate(a.constraints[offset:offset+size], x); err != nil {
			return nlp.WrapErrorf(err, "constraint %d evaluation failed", cid).WithOperation(op)
		}
		offset += size

		if a.discovered {
			jac := a.constraintJacs[cid]
			jac.Zero()
			if err := g.SparseJacobian(jac, x); err != nil {
				return nlp.WrapErrorf(err, "constraint %d jacobian failed", cid).WithOperation(op)
			}
		}
	}
	return nil
}

func (a *sparseTNLP) Info() (Info, error) {
	if err := a.discover(); err != nil {
		return Info{}, err
	}
	return Info{
		NumVariables:        a.n,
		NumConstraints:      a.m,
		NumJacobianNonZeros: a.jacobian.NonZeros(),
		NumHessianNonZeros:  0,
	}, nil
}

func (a *sparseTNLP) BoundsInfo(xl, xu, gl, gu []float64) error {
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

func (a *sparseTNLP) ScalingParameters(xScale, gScale []float64) (bool, error) {
	return scalingParameters(a.problem, a.n, a.m, xScale, gScale)
}

func (a *sparseTNLP) VariablesLinearity(kinds []nlp.Linearity) error {
	assertLen("kinds", len(kinds), a.n)
	variablesLinearity(kinds)
	return nil
}

func (a *sparseTNLP) ConstraintsLinearity(kinds []nlp.Linearity) error {
	assertLen("kinds", len(kinds), a.m)
	constraintsLinearity(a.problem, kinds)
	return nil
}

func (a *sparseTNLP) StartingPoint(x []float64, initX bool, zL, zU []float64, initZ bool, lambda []float64, initLambda bool) error {
	return startingPoint(a.problem, a.sink, a.boundMultInit, x, initX, zL, zU, initZ, lambda, initLambda)
}

func (a *sparseTNLP) WarmStartIterate() error {
	return ErrNotSupported
}

func (a *sparseTNLP) EvalF(x []float64, newX bool) (float64, error) {
	assertLen("x", len(x), a.n)
	if newX {
		if err := a.refresh(x); err != nil {
			return 0, err
		}
	}
	return a.cost[0], nil
}

func (a *sparseTNLP) EvalGradF(grad, x []float64, newX bool) error {
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

func (a *sparseTNLP) EvalG(g, x []float64, newX bool) error {
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

// JacobianStructure emits the frozen pattern's coordinates in the
// structure's own canonical column-major order. The first call triggers
// discovery; later calls replay the stored pattern unchanged.
func (a *sparseTNLP) JacobianStructure(rows, cols []int) error {
	if err := a.discover(); err != nil {
		return err
	}
	nnz := a.jacobian.NonZeros()
	assertLen("rows", len(rows), nnz)
	assertLen("cols", len(cols), nnz)

	idx := 0
	a.jacobian.DoNonZero(func(i, j int, v float64) {
		rows[idx] = i
		cols[idx] = j
		idx++
	})
	return nil
}

// EvalJacG writes the numeric Jacobian values in exactly the order
// JacobianStructure emitted the coordinates: a column-major sweep over
// the per-constraint stored matrices, which stack in increasing global
// row within every column.
func (a *sparseTNLP) EvalJacG(values, x []float64, newX bool) error {
	if err := a.discover(); err != nil {
		return err
	}
	assertLen("x", len(x), a.n)
	assertLen("values", len(values), a.jacobian.NonZeros())

	if newX {
		if err := a.refresh(x); err != nil {
			return err
		}
	}

	idx := 0
	for col := 0; col < a.n; col++ {
		for _, jac := range a.constraintJacs {
			jac.DoColNonZero(col, func(row int, v float64) {
				values[idx] = v
				idx++
			})
		}
	}
	assertLen("emitted values", idx, a.jacobian.NonZeros())
	return nil
}

func (a *sparseTNLP) IntermediateCallback(iter int, objValue, primalInf, dualInf float64) bool {
	a.logger.Debug("iteration",
		zap.Int("iter", iter),
		zap.Float64("objective", objValue),
		zap.Float64("primal_inf", primalInf),
		zap.Float64("dual_inf", dualInf),
	)
	return true
}

func (a *sparseTNLP) NumNonlinearVariables() int {
	return -1
}

func (a *sparseTNLP) NonlinearVariables(idx []int) error {
	return ErrNotSupported
}

func (a *sparseTNLP) FinalizeSolution(status Status, x, g, lambda []float64, objValue float64) {
	assertLen("x", len(x), a.n)
	assertLen("g", len(g), a.m)
	finalize(a.sink, a.logger, status, x, g, lambda, objValue)
}
