package ipopt

import (
	"context"

	"go.uber.org/zap"

	"github.com/copyleftdev/nlpbridge/internal/nlp"
)

// Options are the fixed configuration defaults applied once at adapter
// construction. They are not discovered or parsed here.
type Options struct {
	// BoundMultiplierInit is the constant used to initialize bound
	// multipliers when the engine requests them. Whether 1.0 is the
	// right value for every problem scale is unresolved; it is kept
	// configurable rather than decided.
	BoundMultiplierInit float64

	// HessianApproximation is passed to the engine when it accepts
	// string options. The adapters expose no Hessian callbacks, so the
	// default is the limited-memory approximation.
	HessianApproximation string

	// Logger is the observer the adapter calls at defined points. It
	// never participates in control flow.
	Logger *zap.Logger
}

func defaultOptions() Options {
	return Options{
		BoundMultiplierInit:  1.0,
		HessianApproximation: "limited-memory",
		Logger:               zap.NewNop(),
	}
}

// Option customizes a Solver at construction.
type Option func(*Options)

// WithBoundMultiplierInit overrides the bound multiplier constant.
func WithBoundMultiplierInit(v float64) Option {
	return func(o *Options) { o.BoundMultiplierInit = v }
}

// WithHessianApproximation overrides the Hessian approximation option
// handed to the engine.
func WithHessianApproximation(mode string) Option {
	return func(o *Options) { o.HessianApproximation = mode }
}

// WithLogger sets the adapter's observer logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// OptionSetter is implemented by engines that accept string options.
type OptionSetter interface {
	SetOption(key, value string) error
}

// Solver runs one nlp.Problem through a solver engine and returns the
// problem's own outcome representation. The zero value is not usable;
// construct with NewSolver or NewSparseSolver.
type Solver struct {
	problem *nlp.Problem
	engine  Engine
	tnlp    TNLP
	opts    Options
	sink    outcomeSink
}

func newSolver(p *nlp.Problem, eng Engine, sparse bool, opts ...Option) (*Solver, error) {
	const op = "ipopt.NewSolver"

	if eng == nil {
		return nil, nlp.NewError("solver engine is nil").WithOperation(op)
	}
	if err := p.Validate(); err != nil {
		return nil, nlp.WrapError(err, "malformed problem").WithOperation(op)
	}

	o := defaultOptions()
	for _, apply := range opts {
		apply(&o)
	}

	s := &Solver{problem: p, engine: eng, opts: o}
	if sparse {
		t, err := newSparseTNLP(p, &s.sink, o.BoundMultiplierInit, o.Logger)
		if err != nil {
			return nil, err
		}
		s.tnlp = t
	} else {
		s.tnlp = newDenseTNLP(p, &s.sink, o.BoundMultiplierInit, o.Logger)
	}

	if setter, ok := eng.(OptionSetter); ok {
		if err := setter.SetOption("hessian_approximation", o.HessianApproximation); err != nil {
			return nil, nlp.WrapError(err, "rejected option").WithOperation(op)
		}
	}
	return s, nil
}

// NewSolver builds a solver using the dense adapter: the full Jacobian
// block is reported as structurally non-zero.
func NewSolver(p *nlp.Problem, eng Engine, opts ...Option) (*Solver, error) {
	return newSolver(p, eng, false, opts...)
}

// NewSparseSolver builds a solver using the sparse adapter. Every
// constraint function must implement nlp.SparseDifferentiable.
func NewSparseSolver(p *nlp.Problem, eng Engine, opts ...Option) (*Solver, error) {
	return newSolver(p, eng, true, opts...)
}

// Solve runs the engine's main loop to completion and returns exactly
// one outcome. No partial result is ever returned mid-solve.
func (s *Solver) Solve(ctx context.Context) (nlp.Outcome, error) {
	const op = "Solver.Solve"

	s.sink.outcome = nil

	err := s.engine.Solve(ctx, s.tnlp)
	if outcome := s.sink.get(); outcome != nil {
		return outcome, nil
	}
	if err != nil {
		return nil, nlp.WrapError(err, "engine aborted without an outcome").WithOperation(op)
	}
	panic("ipopt: engine terminated without producing an outcome")
}
