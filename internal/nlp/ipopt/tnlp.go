package ipopt

import (
	"context"

	"github.com/copyleftdev/nlpbridge/internal/nlp"
)

// Info is the answer to the engine's problem-size query.
type Info struct {
	// NumVariables is n, the dimension of the optimization variable.
	NumVariables int
	// NumConstraints is m, the total number of stacked constraint
	// output components.
	NumConstraints int
	// NumJacobianNonZeros is the number of structural non-zeros of the
	// stacked constraint Jacobian.
	NumJacobianNonZeros int
	// NumHessianNonZeros is the number of structural non-zeros of the
	// Lagrangian Hessian. Always zero here: the adapters rely on the
	// engine's limited-memory approximation.
	NumHessianNonZeros int
}

// ErrNotSupported is returned by optional protocol extensions the
// adapters do not implement. The engine is expected to fall back to its
// default behavior.
var ErrNotSupported = nlp.NewError("not supported")

// TNLP is the fixed callback contract between the adapter and the
// solver engine. The engine calls the structural queries once before
// any numeric evaluation, then the numeric callbacks in a loop, then
// FinalizeSolution exactly once. Callbacks are never re-entered and
// never run concurrently.
//
// Output buffers are engine-provided slices of documented length; a
// callback fills exactly that length. A non-nil error return aborts the
// solve immediately with no further calls.
type TNLP interface {
	// Info returns the problem dimensions and non-zero counts.
	Info() (Info, error)

	// BoundsInfo fills the variable bounds (length n each) and the
	// flattened constraint bounds (length m each), in declaration
	// order, component order within each constraint.
	BoundsInfo(xl, xu, gl, gu []float64) error

	// ScalingParameters fills the variable and constraint scale
	// vectors in the same flattening order as BoundsInfo and reports
	// whether scaling is requested at all.
	ScalingParameters(xScale, gScale []float64) (bool, error)

	// VariablesLinearity fills one tag per variable (length n).
	VariablesLinearity(kinds []nlp.Linearity) error

	// ConstraintsLinearity fills one tag per constraint output
	// component (length m).
	ConstraintsLinearity(kinds []nlp.Linearity) error

	// StartingPoint fills the requested initialization vectors: the
	// iterate x (length n) when initX, the bound multipliers zL/zU
	// (length n each) when initZ, and the constraint multipliers
	// lambda (length m) when initLambda.
	StartingPoint(x []float64, initX bool, zL, zU []float64, initZ bool, lambda []float64, initLambda bool) error

	// WarmStartIterate reports ErrNotSupported: warm-start iterate
	// retrieval is not implemented.
	WarmStartIterate() error

	// EvalF returns the objective value at x. newX signals that x
	// differs from the point of the previous numeric callback.
	EvalF(x []float64, newX bool) (float64, error)

	// EvalGradF fills the objective gradient (length n) at x.
	EvalGradF(grad, x []float64, newX bool) error

	// EvalG fills the stacked constraint values (length m) at x, in
	// the same order as BoundsInfo.
	EvalG(g, x []float64, newX bool) error

	// JacobianStructure fills the (row, column) coordinates of every
	// structural non-zero of the constraint Jacobian (length nnz
	// each). The emission order is frozen: every subsequent EvalJacG
	// call produces values in exactly this order.
	JacobianStructure(rows, cols []int) error

	// EvalJacG fills the numeric Jacobian values (length nnz) at x in
	// the frozen JacobianStructure order.
	EvalJacG(values, x []float64, newX bool) error

	// IntermediateCallback is invoked once per engine iteration.
	// Returning false asks the engine to stop.
	IntermediateCallback(iter int, objValue, primalInf, dualInf float64) bool

	// NumNonlinearVariables returns the number of nonlinear variables,
	// or -1 when the adapter does not implement the query.
	NumNonlinearVariables() int

	// NonlinearVariables fills the nonlinear variable indices, or
	// reports ErrNotSupported.
	NonlinearVariables(idx []int) error

	// FinalizeSolution is called exactly once at termination with the
	// engine's status and final vectors.
	FinalizeSolution(status Status, x, g, lambda []float64, objValue float64)
}

// Engine drives a TNLP through one solve: structural queries, the
// numeric evaluation loop, and one FinalizeSolution call. The engine's
// internal algorithm is outside this package's concern.
type Engine interface {
	Solve(ctx context.Context, tnlp TNLP) error
}
