package nlp

import (
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/nlpbridge/internal/nlp/sparsemat"
)

// Function is an evaluatable vector function from R^n to R^m.
// Implementations may be expensive to evaluate; callers are expected
// to supply their own caching.
type Function interface {
	// InputSize returns n, the dimension of the function's argument.
	InputSize() int

	// OutputSize returns m, the dimension of the function's value.
	OutputSize() int

	// Evaluate computes the function value at x and writes it into dst.
	// dst must have length OutputSize and x length InputSize.
	Evaluate(dst, x []float64) error
}

// Differentiable is a Function with analytic first derivatives.
type Differentiable interface {
	Function

	// Gradient computes the gradient of output component which at x
	// and writes it into dst. dst must have length InputSize.
	Gradient(dst, x []float64, which int) error

	// Jacobian computes the dense OutputSize x InputSize Jacobian at x.
	Jacobian(dst *mat.Dense, x []float64) error
}

// SparseDifferentiable is a Differentiable function whose Jacobian is
// naturally sparse. SparseJacobian writes structural non-zeros into dst
// via Set/Add; entries never written are structural zeros.
type SparseDifferentiable interface {
	Differentiable

	SparseJacobian(dst *sparsemat.Matrix, x []float64) error
}

// Linearity tags a constraint as linear or nonlinear. The set is closed:
// every constraint carries exactly one of the two tags.
type Linearity int

const (
	Linear Linearity = iota
	Nonlinear
)

// String returns the human-readable name of the tag.
func (l Linearity) String() string {
	switch l {
	case Linear:
		return "linear"
	case Nonlinear:
		return "nonlinear"
	default:
		return "unknown"
	}
}

// Constraint pairs a differentiable function with its linearity tag.
type Constraint struct {
	F    Differentiable
	Kind Linearity
}
