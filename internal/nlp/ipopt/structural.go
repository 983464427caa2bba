package ipopt

import (
	"github.com/copyleftdev/nlpbridge/internal/nlp"
)

// missingStartingPointReason is the fixed failure reason reported when
// the engine requires an initial iterate the problem does not supply.
const missingStartingPointReason = "Ipopt method needs a starting point."

// scalingParameters fills the scale vectors in the same flattening
// order as the bounds, or reports that no scaling is requested.
// Missing scale groups default to 1.
func scalingParameters(p *nlp.Problem, n, m int, xScale, gScale []float64) (bool, error) {
	if !p.HasScaling() {
		return false, nil
	}
	assertLen("xScale", len(xScale), n)
	assertLen("gScale", len(gScale), m)

	if len(p.VariableScales) == n {
		copy(xScale, p.VariableScales)
	} else {
		for i := range xScale {
			xScale[i] = 1
		}
	}

	if len(p.ConstraintScales) == len(p.Constraints) {
		idx := 0
		for _, group := range p.ConstraintScales {
			for _, s := range group {
				gScale[idx] = s
				idx++
			}
		}
	} else {
		for i := range gScale {
			gScale[i] = 1
		}
	}
	return true, nil
}

// variablesLinearity conservatively reports every variable nonlinear.
// Linear-variable detection is not attempted; this is a documented
// limitation, not a defect.
func variablesLinearity(kinds []nlp.Linearity) {
	for i := range kinds {
		kinds[i] = nlp.Nonlinear
	}
}

// constraintsLinearity emits each constraint's declared tag once per
// output component, in declaration order.
func constraintsLinearity(p *nlp.Problem, kinds []nlp.Linearity) {
	idx := 0
	for _, c := range p.Constraints {
		for j := 0; j < c.F.OutputSize(); j++ {
			kinds[idx] = c.Kind
			idx++
		}
	}
}

// startingPoint answers the engine's initialization query. Bound
// multipliers, when requested, are initialized to a constant. A missing
// required starting point aborts the solve with a failure outcome
// before any evaluation occurs.
func startingPoint(p *nlp.Problem, sink *outcomeSink, boundMultInit float64, x []float64, initX bool, zL, zU []float64, initZ bool, lambda []float64, initLambda bool) error {
	if initLambda {
		panic("ipopt: constraint multiplier initialization is not supported")
	}

	if initZ {
		n := p.NumVariables()
		assertLen("zL", len(zL), n)
		assertLen("zU", len(zU), n)
		for i := 0; i < n; i++ {
			zL[i] = boundMultInit
			zU[i] = boundMultInit
		}
	}

	if p.StartingPoint == nil {
		if initX {
			failure := nlp.NewSolverError(missingStartingPointReason)
			sink.record(failure)
			return failure
		}
		return nil
	}

	if initX {
		assertLen("x", len(x), p.NumVariables())
		copy(x, p.StartingPoint)
	}
	return nil
}
