package ipopt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/copyleftdev/nlpbridge/internal/nlp"
)

func TestFinalizeSuccess(t *testing.T) {
	sink := &outcomeSink{}
	finalize(sink, zap.NewNop(), Success, []float64{1, 2}, []float64{3}, []float64{4}, 5)

	res, ok := sink.get().(*nlp.Result)
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2}, res.X)
	assert.Equal(t, []float64{3}, res.ConstraintValues)
	assert.Equal(t, []float64{4}, res.Multipliers)
	assert.Equal(t, 5.0, res.Objective)
}

func TestFinalizeFeasiblePointFound(t *testing.T) {
	sink := &outcomeSink{}
	finalize(sink, zap.NewNop(), FeasiblePointFound, []float64{1}, nil, nil, 0)

	_, ok := sink.get().(*nlp.Result)
	assert.True(t, ok)
}

func TestFinalizeAcceptablePoint(t *testing.T) {
	sink := &outcomeSink{}
	finalize(sink, zap.NewNop(), StopAtAcceptablePoint, []float64{1}, nil, nil, 2)

	res, ok := sink.get().(*nlp.ResultWithWarnings)
	require.True(t, ok)
	assert.Equal(t, []string{"Acceptable point"}, res.Warnings)
	assert.Equal(t, 2.0, res.Objective)
}

func TestFinalizeFailureReasons(t *testing.T) {
	cases := []struct {
		status Status
		reason string
	}{
		{MaxIterExceeded, "Max iteration exceeded"},
		{CPUTimeExceeded, "Cpu time exceeded"},
		{StopAtTinyStep, "Algorithm proceeds with very little progress"},
		{LocalInfeasibility, "Algorithm converged to a point of local infeasibility"},
		{DivergingIterates, "Iterate diverges"},
		{RestorationFailure, "Restoration phase failed"},
		{ErrorInStepComputation, "Unrecoverable error while Ipopt tried to compute the search direction"},
		{InvalidNumberDetected, "Ipopt received an invalid number"},
		{TooFewDegreesOfFreedom, "Two few degrees of freedom"},
		{InvalidOption, "Invalid option"},
		{OutOfMemory, "Out of memory"},
		{InternalError, "Unknown internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.status.String(), func(t *testing.T) {
			sink := &outcomeSink{}
			finalize(sink, zap.NewNop(), tc.status, nil, nil, nil, 0)

			failure, ok := sink.get().(*nlp.SolverError)
			require.True(t, ok)
			assert.Equal(t, tc.reason, failure.Reason)
			assert.EqualError(t, failure, tc.reason)
		})
	}
}

func TestFinalizeFatalPanics(t *testing.T) {
	assert.Panics(t, func() {
		finalize(&outcomeSink{}, zap.NewNop(), UserRequestedStop, nil, nil, nil, 0)
	})
}

func TestFinalizeUnmappedStatusPanics(t *testing.T) {
	assert.Panics(t, func() {
		finalize(&outcomeSink{}, zap.NewNop(), Status(-99), nil, nil, nil, 0)
	})
}

func TestOutcomeSinkRejectsDoubleRecord(t *testing.T) {
	sink := &outcomeSink{}
	sink.record(nlp.NewSolverError("first"))
	assert.Panics(t, func() {
		sink.record(nlp.NewSolverError("second"))
	})
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, Success.Succeeded())
	assert.True(t, StopAtAcceptablePoint.Succeeded())
	assert.True(t, FeasiblePointFound.Succeeded())
	assert.False(t, MaxIterExceeded.Succeeded())

	assert.True(t, UserRequestedStop.Fatal())
	assert.False(t, MaxIterExceeded.Fatal())
	assert.False(t, Success.Fatal())
}
