package ipopt

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/copyleftdev/nlpbridge/internal/nlp"
)

// failureReasons maps every recoverable failure status to its fixed,
// human-readable reason string.
var failureReasons = map[Status]string{
	MaxIterExceeded:        "Max iteration exceeded",
	CPUTimeExceeded:        "Cpu time exceeded",
	StopAtTinyStep:         "Algorithm proceeds with very little progress",
	LocalInfeasibility:     "Algorithm converged to a point of local infeasibility",
	DivergingIterates:      "Iterate diverges",
	RestorationFailure:     "Restoration phase failed",
	ErrorInStepComputation: "Unrecoverable error while Ipopt tried to compute the search direction",
	InvalidNumberDetected:  "Ipopt received an invalid number",
	// "Two" is the upstream solver's wording, carried as-is.
	TooFewDegreesOfFreedom: "Two few degrees of freedom",
	InvalidOption:          "Invalid option",
	OutOfMemory:            "Out of memory",
	InternalError:          "Unknown internal error",
}

// outcomeSink holds the single Outcome produced by one solve. Recording
// a second outcome for the same solve is a contract violation.
type outcomeSink struct {
	outcome nlp.Outcome
}

func (s *outcomeSink) record(o nlp.Outcome) {
	if s.outcome != nil {
		panic("ipopt: outcome recorded twice for one solve")
	}
	s.outcome = o
}

func (s *outcomeSink) get() nlp.Outcome {
	return s.outcome
}

// finalize converts the engine's termination status plus final vectors
// into the problem's outcome representation and records it. Fatal
// statuses have no mapping: they are contract violations and panic.
func finalize(sink *outcomeSink, logger *zap.Logger, status Status, x, g, lambda []float64, objValue float64) {
	logger.Debug("finalizing solution",
		zap.Stringer("status", status),
		zap.Float64("objective", objValue),
	)

	switch {
	case status.Succeeded():
		res := nlp.Result{
			X:                append([]float64(nil), x...),
			ConstraintValues: append([]float64(nil), g...),
			Multipliers:      append([]float64(nil), lambda...),
			Objective:        objValue,
		}
		if status == StopAtAcceptablePoint {
			sink.record(&nlp.ResultWithWarnings{
				Result:   res,
				Warnings: []string{"Acceptable point"},
			})
		} else {
			sink.record(&res)
		}

	case status.Fatal():
		panic(fmt.Sprintf("ipopt: engine reported fatal status %v; this path is unreachable in normal operation", status))

	default:
		reason, ok := failureReasons[status]
		if !ok {
			panic(fmt.Sprintf("ipopt: unmapped termination status %v", status))
		}
		sink.record(nlp.NewSolverError(reason))
	}

	if sink.get() == nil {
		panic("ipopt: no outcome produced at termination")
	}
}
