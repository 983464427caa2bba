package nlp

import (
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/nlpbridge/internal/nlp/sparsemat"
)

// LinearFunction is g(x) = A*x + b. Its Jacobian is the constant
// matrix A, so the sparse structure never depends on the evaluation
// point.
type LinearFunction struct {
	A *mat.Dense
	B []float64
}

// NewLinearFunction builds a linear function from a dense coefficient
// matrix and an optional offset (nil means zero).
func NewLinearFunction(a *mat.Dense, b []float64) *LinearFunction {
	rows, _ := a.Dims()
	if b == nil {
		b = make([]float64, rows)
	}
	if len(b) != rows {
		panic("nlp: linear function offset length does not match row count")
	}
	return &LinearFunction{A: a, B: b}
}

func (f *LinearFunction) InputSize() int {
	_, c := f.A.Dims()
	return c
}

func (f *LinearFunction) OutputSize() int {
	r, _ := f.A.Dims()
	return r
}

func (f *LinearFunction) Evaluate(dst, x []float64) error {
	r, c := f.A.Dims()
	for i := 0; i < r; i++ {
		v := f.B[i]
		for j := 0; j < c; j++ {
			v += f.A.At(i, j) * x[j]
		}
		dst[i] = v
	}
	return nil
}

func (f *LinearFunction) Gradient(dst, x []float64, which int) error {
	_, c := f.A.Dims()
	for j := 0; j < c; j++ {
		dst[j] = f.A.At(which, j)
	}
	return nil
}

func (f *LinearFunction) Jacobian(dst *mat.Dense, x []float64) error {
	dst.Copy(f.A)
	return nil
}

func (f *LinearFunction) SparseJacobian(dst *sparsemat.Matrix, x []float64) error {
	r, c := f.A.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := f.A.At(i, j); v != 0 {
				dst.Set(i, j, v)
			}
		}
	}
	return nil
}

// QuadraticFunction is the scalar f(x) = 0.5*x'*Q*x + c'*x + d.
type QuadraticFunction struct {
	Q *mat.SymDense
	C []float64
	D float64
}

// NewQuadraticFunction builds a quadratic scalar function. Q may be nil
// for a purely linear objective; c may be nil for a purely quadratic
// one. At least one of the two must be present to fix the input size.
func NewQuadraticFunction(q *mat.SymDense, c []float64, d float64) *QuadraticFunction {
	if q == nil && c == nil {
		panic("nlp: quadratic function needs Q or c to determine its size")
	}
	if q != nil && c != nil && q.SymmetricDim() != len(c) {
		panic("nlp: quadratic function Q and c sizes disagree")
	}
	return &QuadraticFunction{Q: q, C: c, D: d}
}

func (f *QuadraticFunction) InputSize() int {
	if f.Q != nil {
		return f.Q.SymmetricDim()
	}
	return len(f.C)
}

func (f *QuadraticFunction) OutputSize() int { return 1 }

func (f *QuadraticFunction) Evaluate(dst, x []float64) error {
	v := f.D
	n := f.InputSize()
	for i := 0; i < n; i++ {
		if f.C != nil {
			v += f.C[i] * x[i]
		}
		if f.Q != nil {
			for j := 0; j < n; j++ {
				v += 0.5 * x[i] * f.Q.At(i, j) * x[j]
			}
		}
	}
	dst[0] = v
	return nil
}

func (f *QuadraticFunction) Gradient(dst, x []float64, which int) error {
	n := f.InputSize()
	for i := 0; i < n; i++ {
		g := 0.0
		if f.C != nil {
			g = f.C[i]
		}
		if f.Q != nil {
			for j := 0; j < n; j++ {
				g += f.Q.At(i, j) * x[j]
			}
		}
		dst[i] = g
	}
	return nil
}

func (f *QuadraticFunction) Jacobian(dst *mat.Dense, x []float64) error {
	n := f.InputSize()
	grad := make([]float64, n)
	if err := f.Gradient(grad, x, 0); err != nil {
		return err
	}
	for j := 0; j < n; j++ {
		dst.Set(0, j, grad[j])
	}
	return nil
}

func (f *QuadraticFunction) SparseJacobian(dst *sparsemat.Matrix, x []float64) error {
	n := f.InputSize()
	grad := make([]float64, n)
	if err := f.Gradient(grad, x, 0); err != nil {
		return err
	}
	for j := 0; j < n; j++ {
		if grad[j] != 0 {
			dst.Set(0, j, grad[j])
		}
	}
	return nil
}
