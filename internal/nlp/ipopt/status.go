// Package ipopt bridges an nlp.Problem to the fixed callback contract of
// an Ipopt-style interior-point solver engine: structural queries before
// any numeric evaluation, cached numeric evaluation callbacks driven by
// the engine's new-point signal, and termination-status mapping back to
// the problem's outcome representation.
package ipopt

// Status enumerates the engine's termination statuses. Zero and positive
// values are terminal successes; negative values are failures. The set
// is fixed by the engine contract and every member has exactly one
// outcome mapping.
type Status int

const (
	Success Status = iota
	StopAtAcceptablePoint
	FeasiblePointFound
)

const (
	MaxIterExceeded Status = -(iota + 1)
	CPUTimeExceeded
	StopAtTinyStep
	LocalInfeasibility
	DivergingIterates
	RestorationFailure
	ErrorInStepComputation
	InvalidNumberDetected
	TooFewDegreesOfFreedom
	InvalidOption
	OutOfMemory
	InternalError
	UserRequestedStop
)

var statusStrings = map[Status]string{
	Success:                "Success",
	StopAtAcceptablePoint:  "StopAtAcceptablePoint",
	FeasiblePointFound:     "FeasiblePointFound",
	MaxIterExceeded:        "MaxIterExceeded",
	CPUTimeExceeded:        "CPUTimeExceeded",
	StopAtTinyStep:         "StopAtTinyStep",
	LocalInfeasibility:     "LocalInfeasibility",
	DivergingIterates:      "DivergingIterates",
	RestorationFailure:     "RestorationFailure",
	ErrorInStepComputation: "ErrorInStepComputation",
	InvalidNumberDetected:  "InvalidNumberDetected",
	TooFewDegreesOfFreedom: "TooFewDegreesOfFreedom",
	InvalidOption:          "InvalidOption",
	OutOfMemory:            "OutOfMemory",
	InternalError:          "InternalError",
	UserRequestedStop:      "UserRequestedStop",
}

// String returns the symbolic name of the status.
func (s Status) String() string {
	if str, ok := statusStrings[s]; ok {
		return str
	}
	return "UnknownStatus"
}

// Succeeded reports whether the status carries a usable final point.
func (s Status) Succeeded() bool {
	switch s {
	case Success, StopAtAcceptablePoint, FeasiblePointFound:
		return true
	}
	return false
}

// Fatal reports whether the status is an unrecoverable engine-level
// abort rather than a mappable failure.
func (s Status) Fatal() bool {
	return s == UserRequestedStop
}
