// Package engine provides a reference solver engine for the TNLP
// callback contract: a quadratic-penalty outer loop around a
// limited-memory BFGS inner minimization. It stands in for an external
// interior-point binary so solves can run end to end; the adapters in
// the ipopt package depend only on the callback contract, never on
// anything in here.
package engine

import (
	"context"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/nlpbridge/internal/nlp"
	"github.com/copyleftdev/nlpbridge/internal/nlp/ipopt"
)

// Config holds the engine's termination and penalty parameters.
type Config struct {
	// MaxOuterIterations bounds the penalty loop.
	MaxOuterIterations int
	// InnerIterations bounds each unconstrained minimization.
	InnerIterations int
	// Tolerance is the constraint-violation threshold for Success.
	Tolerance float64
	// AcceptableTolerance is the looser threshold under which an
	// exhausted solve still ends at an acceptable point.
	AcceptableTolerance float64
	// PenaltyInitial and PenaltyGrowth control the penalty weight.
	PenaltyInitial float64
	PenaltyGrowth  float64
	// DivergenceThreshold is the iterate norm treated as divergence.
	DivergenceThreshold float64
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxOuterIterations:  30,
		InnerIterations:     500,
		Tolerance:           1e-6,
		AcceptableTolerance: 1e-3,
		PenaltyInitial:      10,
		PenaltyGrowth:       10,
		DivergenceThreshold: 1e10,
	}
}

// Engine drives one TNLP through a solve. A single Engine may be reused
// for sequential solves; it never runs callbacks concurrently.
type Engine struct {
	cfg     Config
	logger  *zap.Logger
	options map[string]string
}

// New creates an engine. A nil logger disables engine logging.
func New(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:     cfg,
		logger:  logger,
		options: make(map[string]string),
	}
}

// SetOption accepts the engine's string options. Unknown keys and
// unsupported values are rejected.
func (e *Engine) SetOption(key, value string) error {
	const op = "Engine.SetOption"

	switch key {
	case "hessian_approximation":
		if value != "limited-memory" {
			return nlp.NewErrorf("unsupported hessian_approximation %q", value).WithOperation(op)
		}
	default:
		return nlp.NewErrorf("unknown option %q", key).WithOperation(op)
	}
	e.options[key] = value
	return nil
}

// solveState carries one solve's buffers and the new-point tracker. The
// tracker decides the newX signal handed to the first callback touching
// a given point; the adapter refreshes its whole cache on that signal.
type solveState struct {
	t ipopt.TNLP

	n, m, nnz int

	xl, xu []float64
	gl, gu []float64

	rows, cols []int
	jacValues  []float64
	g          []float64
	gradF      []float64

	lastX   []float64
	havePt  bool
	evalErr error
}

func (s *solveState) newPoint(x []float64) bool {
	if s.havePt && floats.Equal(s.lastX, x) {
		return false
	}
	copy(s.lastX, x)
	s.havePt = true
	return true
}

func (s *solveState) fail(err error) {
	if s.evalErr == nil {
		s.evalErr = err
	}
}

// violation returns, per stacked constraint row, the signed distance to
// the violated side of [gl, gu]: positive above the upper bound,
// negative below the lower bound, zero inside.
func (s *solveState) violationRow(j int) float64 {
	switch {
	case s.g[j] > s.gu[j]:
		return s.g[j] - s.gu[j]
	case s.g[j] < s.gl[j]:
		return s.g[j] - s.gl[j]
	}
	return 0
}

func (s *solveState) boundViolation(x []float64, i int) float64 {
	switch {
	case x[i] > s.xu[i]:
		return x[i] - s.xu[i]
	case x[i] < s.xl[i]:
		return x[i] - s.xl[i]
	}
	return 0
}

// maxViolation is the infinity norm of all constraint and bound
// violations at the tracker's current point.
func (s *solveState) maxViolation(x []float64) float64 {
	v := 0.0
	for j := 0; j < s.m; j++ {
		v = math.Max(v, math.Abs(s.violationRow(j)))
	}
	for i := 0; i < s.n; i++ {
		v = math.Max(v, math.Abs(s.boundViolation(x, i)))
	}
	return v
}

// merit is the penalized objective f(x) + mu * sum of squared
// violations.
func (s *solveState) merit(x []float64, mu float64) float64 {
	newX := s.newPoint(x)
	f, err := s.t.EvalF(x, newX)
	if err != nil {
		s.fail(err)
		return math.NaN()
	}
	if err := s.t.EvalG(s.g, x, false); err != nil {
		s.fail(err)
		return math.NaN()
	}

	v := f
	for j := 0; j < s.m; j++ {
		d := s.violationRow(j)
		v += mu * d * d
	}
	for i := 0; i < s.n; i++ {
		d := s.boundViolation(x, i)
		v += mu * d * d
	}
	return v
}

// meritGrad fills grad with the gradient of merit at x, assembling the
// constraint term from the frozen Jacobian triplets.
func (s *solveState) meritGrad(grad, x []float64, mu float64) {
	newX := s.newPoint(x)
	if err := s.t.EvalGradF(s.gradF, x, newX); err != nil {
		s.fail(err)
		return
	}
	if err := s.t.EvalG(s.g, x, false); err != nil {
		s.fail(err)
		return
	}
	if err := s.t.EvalJacG(s.jacValues, x, false); err != nil {
		s.fail(err)
		return
	}

	copy(grad, s.gradF)
	for e := 0; e < s.nnz; e++ {
		d := s.violationRow(s.rows[e])
		if d != 0 {
			grad[s.cols[e]] += 2 * mu * d * s.jacValues[e]
		}
	}
	for i := 0; i < s.n; i++ {
		if d := s.boundViolation(x, i); d != 0 {
			grad[i] += 2 * mu * d
		}
	}
}

// multipliers estimates the constraint multipliers from the penalty
// gradient, lambda_j = 2 * mu * violation_j.
func (s *solveState) multipliers(mu float64) []float64 {
	lambda := make([]float64, s.m)
	for j := 0; j < s.m; j++ {
		lambda[j] = 2 * mu * s.violationRow(j)
	}
	return lambda
}

// refreshAt makes the adapter cache current for x and returns the
// objective value there.
func (s *solveState) refreshAt(x []float64) (float64, error) {
	newX := s.newPoint(x)
	f, err := s.t.EvalF(x, newX)
	if err != nil {
		return 0, err
	}
	if err := s.t.EvalG(s.g, x, false); err != nil {
		return 0, err
	}
	return f, nil
}

// Solve runs the full callback sequence: structural queries once, the
// numeric penalty loop, and exactly one FinalizeSolution on every path
// that terminates with an engine status. Context cancellation and
// callback errors abort the solve without a finalization call.
func (e *Engine) Solve(ctx context.Context, t ipopt.TNLP) error {
	const op = "Engine.Solve"

	info, err := t.Info()
	if err != nil {
		return nlp.WrapError(err, "structural info query failed").WithOperation(op)
	}

	s := &solveState{
		t:         t,
		n:         info.NumVariables,
		m:         info.NumConstraints,
		nnz:       info.NumJacobianNonZeros,
		xl:        make([]float64, info.NumVariables),
		xu:        make([]float64, info.NumVariables),
		gl:        make([]float64, info.NumConstraints),
		gu:        make([]float64, info.NumConstraints),
		rows:      make([]int, info.NumJacobianNonZeros),
		cols:      make([]int, info.NumJacobianNonZeros),
		jacValues: make([]float64, info.NumJacobianNonZeros),
		g:         make([]float64, info.NumConstraints),
		gradF:     make([]float64, info.NumVariables),
		lastX:     make([]float64, info.NumVariables),
	}

	if err := t.BoundsInfo(s.xl, s.xu, s.gl, s.gu); err != nil {
		return nlp.WrapError(err, "bounds query failed").WithOperation(op)
	}

	xScale := make([]float64, s.n)
	gScale := make([]float64, s.m)
	useScaling, err := t.ScalingParameters(xScale, gScale)
	if err != nil {
		return nlp.WrapError(err, "scaling query failed").WithOperation(op)
	}
	if useScaling {
		e.logger.Debug("problem supplies scaling; this engine solves unscaled")
	}

	varKinds := make([]nlp.Linearity, s.n)
	conKinds := make([]nlp.Linearity, s.m)
	if err := t.VariablesLinearity(varKinds); err != nil {
		return nlp.WrapError(err, "variable linearity query failed").WithOperation(op)
	}
	if err := t.ConstraintsLinearity(conKinds); err != nil {
		return nlp.WrapError(err, "constraint linearity query failed").WithOperation(op)
	}

	x := make([]float64, s.n)
	zL := make([]float64, s.n)
	zU := make([]float64, s.n)
	if err := t.StartingPoint(x, true, zL, zU, true, nil, false); err != nil {
		return nlp.WrapError(err, "starting point query failed").WithOperation(op)
	}

	if err := t.JacobianStructure(s.rows, s.cols); err != nil {
		return nlp.WrapError(err, "jacobian structure query failed").WithOperation(op)
	}

	e.logger.Debug("structural phase complete",
		zap.Int("n", s.n),
		zap.Int("m", s.m),
		zap.Int("nnz", s.nnz),
	)

	mu := e.cfg.PenaltyInitial
	for outer := 0; outer < e.cfg.MaxOuterIterations; outer++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		prob := optimize.Problem{
			Func: func(p []float64) float64 { return s.merit(p, mu) },
			Grad: func(grad, p []float64) { s.meritGrad(grad, p, mu) },
		}
		settings := &optimize.Settings{
			MajorIterations:   e.cfg.InnerIterations,
			GradientThreshold: e.cfg.Tolerance,
		}

		result, minErr := optimize.Minimize(prob, x, settings, &optimize.LBFGS{})
		if s.evalErr != nil {
			return nlp.WrapError(s.evalErr, "evaluation callback failed").WithOperation(op)
		}
		if result == nil {
			return e.finish(s, ipopt.ErrorInStepComputation, x, mu)
		}
		copy(x, result.X)

		obj, err := s.refreshAt(x)
		if err != nil {
			return nlp.WrapError(err, "evaluation callback failed").WithOperation(op)
		}

		if math.IsNaN(obj) || math.IsInf(obj, 0) || hasNaN(x) {
			return e.finish(s, ipopt.InvalidNumberDetected, x, mu)
		}
		if floats.Norm(x, math.Inf(1)) > e.cfg.DivergenceThreshold {
			return e.finish(s, ipopt.DivergingIterates, x, mu)
		}

		viol := s.maxViolation(x)
		gradNorm := 0.0
		if result.Gradient != nil {
			gradNorm = floats.Norm(result.Gradient, math.Inf(1))
		}

		e.logger.Debug("outer iteration",
			zap.Int("outer", outer),
			zap.Float64("mu", mu),
			zap.Float64("objective", obj),
			zap.Float64("violation", viol),
		)

		if !t.IntermediateCallback(outer, obj, viol, gradNorm) {
			return nlp.NewError("stopped by intermediate callback").WithOperation(op)
		}

		if viol <= e.cfg.Tolerance {
			return e.finish(s, ipopt.Success, x, mu)
		}
		if minErr != nil && viol <= e.cfg.AcceptableTolerance {
			// Inner solve stalled but the point is nearly feasible.
			return e.finish(s, ipopt.StopAtAcceptablePoint, x, mu)
		}

		mu *= e.cfg.PenaltyGrowth
	}

	viol := s.maxViolation(x)
	if viol <= e.cfg.AcceptableTolerance {
		return e.finish(s, ipopt.StopAtAcceptablePoint, x, mu)
	}
	return e.finish(s, ipopt.MaxIterExceeded, x, mu)
}

// finish brings the adapter cache to x and hands the termination status
// to FinalizeSolution.
func (e *Engine) finish(s *solveState, status ipopt.Status, x []float64, mu float64) error {
	obj, err := s.refreshAt(x)
	if err != nil {
		return nlp.WrapError(err, "final evaluation failed").WithOperation("Engine.finish")
	}
	s.t.FinalizeSolution(status, x, s.g, s.multipliers(mu), obj)
	return nil
}

func hasNaN(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
