// Package nlp defines the problem description consumed by the solver
// adapters: differentiable functions, constraints with linearity tags,
// variable and constraint bounds, optional scaling, and the outcome
// variants produced by a solve.
package nlp

import (
	"fmt"
	"math"
)

// Interval is a closed bound [Lower, Upper]. Use math.Inf sentinels for
// sides that are unbounded.
type Interval struct {
	Lower float64
	Upper float64
}

// Unbounded returns the interval (-inf, +inf).
func Unbounded() Interval {
	return Interval{Lower: math.Inf(-1), Upper: math.Inf(1)}
}

// Problem is a complete differentiable-optimization problem description.
// It is constructed by the caller before any solver is created and is
// read-only for the lifetime of every adapter borrowing it.
type Problem struct {
	// Objective is the scalar cost function (OutputSize must be 1).
	Objective Differentiable

	// Constraints in declaration order. The stacked constraint vector
	// concatenates each constraint's output components in this order.
	Constraints []Constraint

	// VariableBounds holds one interval per variable, in declaration
	// order. Length must equal Objective.InputSize.
	VariableBounds []Interval

	// ConstraintBounds holds one interval group per constraint, one
	// interval per output component of that constraint.
	ConstraintBounds [][]Interval

	// VariableScales and ConstraintScales are optional scaling factors
	// in the same layout as the bounds. Empty means no scaling.
	VariableScales   []float64
	ConstraintScales [][]float64

	// StartingPoint is the optional initial iterate. Nil means the
	// problem supplies none.
	StartingPoint []float64
}

// NumVariables returns n, the dimension of the optimization variable.
func (p *Problem) NumVariables() int {
	return p.Objective.InputSize()
}

// NumConstraintOutputs returns m, the total number of stacked constraint
// output components.
func (p *Problem) NumConstraintOutputs() int {
	m := 0
	for _, c := range p.Constraints {
		m += c.F.OutputSize()
	}
	return m
}

// Validate checks the structural invariants of the problem: bound group
// sizes must match the declared function sizes. A failure here is a
// defect in the caller's problem construction, not a solver condition.
func (p *Problem) Validate() error {
	const op = "Problem.Validate"

	if p.Objective == nil {
		return NewError("objective function is nil").WithOperation(op)
	}
	if p.Objective.OutputSize() != 1 {
		return NewErrorf("objective must be scalar, got output size %d",
			p.Objective.OutputSize()).WithOperation(op)
	}

	n := p.Objective.InputSize()
	if len(p.VariableBounds) != n {
		return NewErrorf("variable bounds length %d does not match input size %d",
			len(p.VariableBounds), n).WithOperation(op)
	}
	if len(p.ConstraintBounds) != len(p.Constraints) {
		return NewErrorf("constraint bound groups %d do not match constraint count %d",
			len(p.ConstraintBounds), len(p.Constraints)).WithOperation(op)
	}
	for i, c := range p.Constraints {
		if c.F.InputSize() != n {
			return NewErrorf("constraint %d input size %d does not match problem size %d",
				i, c.F.InputSize(), n).WithOperation(op)
		}
		if len(p.ConstraintBounds[i]) != c.F.OutputSize() {
			return NewErrorf("constraint %d has %d bound intervals for %d output components",
				i, len(p.ConstraintBounds[i]), c.F.OutputSize()).WithOperation(op)
		}
	}

	if len(p.VariableScales) != 0 && len(p.VariableScales) != n {
		return NewErrorf("variable scales length %d does not match input size %d",
			len(p.VariableScales), n).WithOperation(op)
	}
	if len(p.ConstraintScales) != 0 {
		if len(p.ConstraintScales) != len(p.Constraints) {
			return NewErrorf("constraint scale groups %d do not match constraint count %d",
				len(p.ConstraintScales), len(p.Constraints)).WithOperation(op)
		}
		for i, s := range p.ConstraintScales {
			if len(s) != p.Constraints[i].F.OutputSize() {
				return NewErrorf("constraint %d has %d scale factors for %d output components",
					i, len(s), p.Constraints[i].F.OutputSize()).WithOperation(op)
			}
		}
	}

	if p.StartingPoint != nil && len(p.StartingPoint) != n {
		return NewErrorf("starting point length %d does not match input size %d",
			len(p.StartingPoint), n).WithOperation(op)
	}
	return nil
}

// HasScaling reports whether the problem supplies scale factors.
func (p *Problem) HasScaling() bool {
	return len(p.VariableScales) > 0 || len(p.ConstraintScales) > 0
}

// FlattenedConstraintBounds writes the constraint bounds into gl and gu
// in declaration order, component order within each constraint. Both
// slices must have length NumConstraintOutputs.
func (p *Problem) FlattenedConstraintBounds(gl, gu []float64) {
	m := p.NumConstraintOutputs()
	if len(gl) != m || len(gu) != m {
		panic(fmt.Sprintf("nlp: constraint bound buffers have lengths %d/%d, want %d",
			len(gl), len(gu), m))
	}
	idx := 0
	for _, group := range p.ConstraintBounds {
		for _, iv := range group {
			gl[idx] = iv.Lower
			gu[idx] = iv.Upper
			idx++
		}
	}
}
