package server

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/nlpbridge/internal/config"
	"github.com/copyleftdev/nlpbridge/internal/logging"
	"github.com/copyleftdev/nlpbridge/internal/nlp"
	"github.com/copyleftdev/nlpbridge/internal/nlp/engine"
	"github.com/copyleftdev/nlpbridge/internal/nlp/ipopt"
)

// Logger defines the logging interface used by the server. It allows
// flexibility with the logging implementation.
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

var (
	solvesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nlpbridge_solves_total",
		Help: "Completed solve requests by outcome.",
	}, []string{"outcome"})

	solveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nlpbridge_solve_duration_seconds",
		Help:    "Wall time of one solve request.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})
)

// Server exposes solve requests over HTTP.
type Server struct {
	cfg    *config.Config
	logger Logger
	rawLog *logging.Logger
}

// NewServer creates a server instance with the given config and logger.
func NewServer(cfg *config.Config, logger *logging.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		rawLog: logger,
	}
}

// RegisterRoutes attaches the API routes to the router.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/solve", s.handleSolve)
	})
	r.Get("/healthz", s.handleHealth)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Bound is a JSON bound interval; a missing side means unbounded.
type Bound struct {
	Lower *float64 `json:"lower,omitempty"`
	Upper *float64 `json:"upper,omitempty"`
}

func (b Bound) interval() nlp.Interval {
	iv := nlp.Unbounded()
	if b.Lower != nil {
		iv.Lower = *b.Lower
	}
	if b.Upper != nil {
		iv.Upper = *b.Upper
	}
	return iv
}

// ObjectiveSpec is a quadratic objective 0.5*x'Qx + c'x + d.
type ObjectiveSpec struct {
	Quadratic [][]float64 `json:"quadratic,omitempty"`
	Linear    []float64   `json:"linear,omitempty"`
	Constant  float64     `json:"constant,omitempty"`
}

// ConstraintSpec is one constraint: either a linear block A*x with one
// bound per row, or a scalar quadratic 0.5*x'Qx + c'x + d with one
// bound.
type ConstraintSpec struct {
	Linear    [][]float64 `json:"linear,omitempty"`
	Quadratic [][]float64 `json:"quadratic,omitempty"`
	Constant  float64     `json:"constant,omitempty"`
	Bounds    []Bound     `json:"bounds"`
}

// SolveRequest is the JSON problem description.
type SolveRequest struct {
	Variables      int              `json:"variables"`
	Objective      ObjectiveSpec    `json:"objective"`
	VariableBounds []Bound          `json:"variable_bounds,omitempty"`
	Constraints    []ConstraintSpec `json:"constraints,omitempty"`
	Start          []float64        `json:"start,omitempty"`
}

// SolveResponse is the JSON outcome representation.
type SolveResponse struct {
	Status           string    `json:"status"`
	X                []float64 `json:"x,omitempty"`
	Objective        *float64  `json:"objective,omitempty"`
	ConstraintValues []float64 `json:"constraint_values,omitempty"`
	Warnings         []string  `json:"warnings,omitempty"`
	Reason           string    `json:"reason,omitempty"`
}

func symFromRows(n int, rows [][]float64) (*mat.SymDense, bool) {
	if len(rows) != n {
		return nil, false
	}
	q := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		if len(rows[i]) != n {
			return nil, false
		}
		for j := i; j < n; j++ {
			if math.Abs(rows[i][j]-rows[j][i]) > 1e-12 {
				return nil, false
			}
			q.SetSym(i, j, rows[i][j])
		}
	}
	return q, true
}

// buildProblem converts a SolveRequest into an nlp.Problem.
func buildProblem(req *SolveRequest) (*nlp.Problem, error) {
	n := req.Variables
	if n <= 0 {
		return nil, nlp.NewError("variables must be positive")
	}

	var q *mat.SymDense
	if req.Objective.Quadratic != nil {
		var ok bool
		q, ok = symFromRows(n, req.Objective.Quadratic)
		if !ok {
			return nil, nlp.NewError("objective quadratic term must be a symmetric n x n matrix")
		}
	}
	c := req.Objective.Linear
	if c != nil && len(c) != n {
		return nil, nlp.NewErrorf("objective linear term has length %d, want %d", len(c), n)
	}
	if q == nil && c == nil {
		c = make([]float64, n)
	}
	objective := nlp.NewQuadraticFunction(q, c, req.Objective.Constant)

	varBounds := make([]nlp.Interval, n)
	for i := range varBounds {
		varBounds[i] = nlp.Unbounded()
	}
	if req.VariableBounds != nil {
		if len(req.VariableBounds) != n {
			return nil, nlp.NewErrorf("variable bounds have length %d, want %d", len(req.VariableBounds), n)
		}
		for i, b := range req.VariableBounds {
			varBounds[i] = b.interval()
		}
	}

	var constraints []nlp.Constraint
	var conBounds [][]nlp.Interval
	for i, spec := range req.Constraints {
		switch {
		case spec.Quadratic != nil:
			cq, ok := symFromRows(n, spec.Quadratic)
			if !ok {
				return nil, nlp.NewErrorf("constraint %d quadratic term must be a symmetric n x n matrix", i)
			}
			var lin []float64
			if spec.Linear != nil {
				if len(spec.Linear) != 1 || len(spec.Linear[0]) != n {
					return nil, nlp.NewErrorf("constraint %d linear term must be 1 x n", i)
				}
				lin = spec.Linear[0]
			}
			if len(spec.Bounds) != 1 {
				return nil, nlp.NewErrorf("constraint %d needs exactly one bound", i)
			}
			constraints = append(constraints, nlp.Constraint{
				F:    nlp.NewQuadraticFunction(cq, lin, spec.Constant),
				Kind: nlp.Nonlinear,
			})
			conBounds = append(conBounds, []nlp.Interval{spec.Bounds[0].interval()})

		case spec.Linear != nil:
			rows := len(spec.Linear)
			if len(spec.Bounds) != rows {
				return nil, nlp.NewErrorf("constraint %d has %d bounds for %d rows", i, len(spec.Bounds), rows)
			}
			a := mat.NewDense(rows, n, nil)
			for r, row := range spec.Linear {
				if len(row) != n {
					return nil, nlp.NewErrorf("constraint %d row %d has length %d, want %d", i, r, len(row), n)
				}
				for j, v := range row {
					a.Set(r, j, v)
				}
			}
			ivs := make([]nlp.Interval, rows)
			for r, b := range spec.Bounds {
				ivs[r] = b.interval()
			}
			constraints = append(constraints, nlp.Constraint{
				F:    nlp.NewLinearFunction(a, nil),
				Kind: nlp.Linear,
			})
			conBounds = append(conBounds, ivs)

		default:
			return nil, nlp.NewErrorf("constraint %d has neither linear nor quadratic terms", i)
		}
	}

	return &nlp.Problem{
		Objective:        objective,
		Constraints:      constraints,
		VariableBounds:   varBounds,
		ConstraintBounds: conBounds,
		StartingPoint:    req.Start,
	}, nil
}

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	var req SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	problem, err := buildProblem(&req)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	eng := engine.New(engine.Config{
		MaxOuterIterations:  s.cfg.Solver.MaxOuterIterations,
		InnerIterations:     s.cfg.Solver.InnerIterations,
		Tolerance:           s.cfg.Solver.Tolerance,
		AcceptableTolerance: s.cfg.Solver.AcceptableTolerance,
		PenaltyInitial:      engine.DefaultConfig().PenaltyInitial,
		PenaltyGrowth:       engine.DefaultConfig().PenaltyGrowth,
		DivergenceThreshold: engine.DefaultConfig().DivergenceThreshold,
	}, logging.NewZapLogger(s.rawLog))

	newSolver := ipopt.NewSolver
	if s.cfg.Solver.Sparse {
		newSolver = ipopt.NewSparseSolver
	}
	solver, err := newSolver(problem, eng, ipopt.WithLogger(logging.NewZapLogger(s.rawLog)))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	outcome, err := solver.Solve(r.Context())
	solveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		solvesTotal.WithLabelValues("error").Inc()
		s.logger.Error("solve aborted", map[string]interface{}{"error": err.Error()})
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := outcomeResponse(outcome)
	solvesTotal.WithLabelValues(resp.Status).Inc()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func outcomeResponse(outcome nlp.Outcome) SolveResponse {
	switch o := outcome.(type) {
	case *nlp.Result:
		obj := o.Objective
		return SolveResponse{
			Status:           "success",
			X:                o.X,
			Objective:        &obj,
			ConstraintValues: o.ConstraintValues,
		}
	case *nlp.ResultWithWarnings:
		obj := o.Objective
		return SolveResponse{
			Status:           "success_with_warnings",
			X:                o.X,
			Objective:        &obj,
			ConstraintValues: o.ConstraintValues,
			Warnings:         o.Warnings,
		}
	case *nlp.SolverError:
		return SolveResponse{Status: "failure", Reason: o.Reason}
	default:
		return SolveResponse{Status: "failure", Reason: "unknown outcome"}
	}
}

func (s *Server) respondError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
