package nlp

// Outcome is the terminal result of one solve attempt: a closed set of
// success, success-with-warnings, and failure variants. Exactly one
// Outcome is produced per solve; no partial result is ever returned
// mid-solve.
type Outcome interface {
	isOutcome()
}

// Result is a successful solve: the final iterate, the stacked
// constraint values at that iterate, the constraint multipliers, and
// the objective value.
type Result struct {
	X                []float64
	ConstraintValues []float64
	Multipliers      []float64
	Objective        float64
}

func (*Result) isOutcome() {}

// ResultWithWarnings is a Result the solver accepted under relaxed
// criteria. Warnings describe why the point is not a strict optimum.
type ResultWithWarnings struct {
	Result
	Warnings []string
}

func (*ResultWithWarnings) isOutcome() {}

// SolverError is a recoverable solve failure with a human-readable
// reason. Retry policy, if any, belongs to the caller.
type SolverError struct {
	Reason string
}

func (*SolverError) isOutcome() {}

// Error implements the error interface.
func (e *SolverError) Error() string {
	return e.Reason
}

// NewSolverError creates a failure outcome with the given reason.
func NewSolverError(reason string) *SolverError {
	return &SolverError{Reason: reason}
}
