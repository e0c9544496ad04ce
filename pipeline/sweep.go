package pipeline

import (
	"time"

	"github.com/YuminosukeSato/heartrisk/dataset"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

// Grid is the hyperparameter space of a sweep.
type Grid struct {
	K           []int    `yaml:"k"`
	Degree      []int    `yaml:"degree"`
	NComponents []int    `yaml:"n_components"`
	Methods     []Method `yaml:"methods"`
	NSplits     int      `yaml:"n_splits"`
}

// DefaultGrid returns the stock sweep: k=6, degree 3, five component counts,
// and the three classical methods under 10-fold cross-validation.
func DefaultGrid() Grid {
	return Grid{
		K:           []int{6},
		Degree:      []int{3},
		NComponents: []int{10, 100, 400, 600, 800},
		Methods:     []Method{RF, LR, SVC},
		NSplits:     10,
	}
}

// Combinations enumerates the grid with method outermost, then degree, then
// k, then the component count.
func (g Grid) Combinations() []Combination {
	out := make([]Combination, 0, len(g.Methods)*len(g.Degree)*len(g.K)*len(g.NComponents))
	for _, m := range g.Methods {
		for _, d := range g.Degree {
			for _, k := range g.K {
				for _, n := range g.NComponents {
					out = append(out, Combination{K: k, Degree: d, NComponents: n, Method: m})
				}
			}
		}
	}
	return out
}

// Validate checks that every axis is non-empty and every method is known.
func (g Grid) Validate() error {
	switch {
	case len(g.K) == 0:
		return errors.NewValidationError("grid.k", "must not be empty", g.K)
	case len(g.Degree) == 0:
		return errors.NewValidationError("grid.degree", "must not be empty", g.Degree)
	case len(g.NComponents) == 0:
		return errors.NewValidationError("grid.n_components", "must not be empty", g.NComponents)
	case len(g.Methods) == 0:
		return errors.NewValidationError("grid.methods", "must not be empty", g.Methods)
	case g.NSplits < 2:
		return errors.NewValidationError("grid.n_splits", "must be >= 2", g.NSplits)
	}
	for _, m := range g.Methods {
		if !m.Valid() {
			return errors.NewUnsupportedMethodError(m.String(), methodNameList())
		}
	}
	return nil
}

// BestResult is the best combination seen so far.
type BestResult struct {
	Combination Combination
	Result      *RunResult
	Accuracy    float64
}

// BestTracker keeps the result with the strictly highest accuracy. The first
// observation is always recorded and ties keep the earlier result.
type BestTracker struct {
	best *BestResult
}

// Observe records r when it beats the current best and reports whether it did.
func (t *BestTracker) Observe(r *RunResult) bool {
	if t.best != nil && r.Artifact.Accuracy <= t.best.Accuracy {
		return false
	}
	t.best = &BestResult{Combination: r.Combination, Result: r, Accuracy: r.Artifact.Accuracy}
	return true
}

// Best returns the current best, or nil before the first observation.
func (t *BestTracker) Best() *BestResult {
	return t.best
}

// SweepStep describes one finished combination.
type SweepStep struct {
	Index    int
	Total    int
	Result   *RunResult
	Best     *BestResult
	Improved bool
	Duration time.Duration
}

// RunFunc executes one combination.
type RunFunc func(Combination) (*RunResult, error)

// GridSearch sweeps a Grid and keeps the most accurate combination.
type GridSearch struct {
	grid        Grid
	categorical []string
	threads     int
	opts        []Option
	settings
}

// NewGridSearch configures a sweep.
func NewGridSearch(grid Grid, categorical []string, threads int, opts ...Option) *GridSearch {
	return &GridSearch{
		grid:        grid,
		categorical: append([]string(nil), categorical...),
		threads:     threads,
		opts:        opts,
		settings:    newSettings("GridSearch", opts),
	}
}

// Run splits ds once and runs every combination on that split.
// Any error aborts the sweep.
func (g *GridSearch) Run(ds *dataset.Dataset) (*BestResult, error) {
	if err := g.grid.Validate(); err != nil {
		return nil, err
	}
	if err := ds.RequireColumns(g.categorical); err != nil {
		return nil, err
	}
	train, test, err := Split(ds, g.opts...)
	if err != nil {
		return nil, err
	}
	return g.Sweep(func(c Combination) (*RunResult, error) {
		return RunCombination(train, test, c, g.categorical, g.grid.NSplits, g.threads, g.opts...)
	})
}

// Sweep runs fn over every combination in order and tracks the best result.
func (g *GridSearch) Sweep(fn RunFunc) (*BestResult, error) {
	combos := g.grid.Combinations()
	var tracker BestTracker
	for i, c := range combos {
		start := time.Now()
		r, err := fn(c)
		if err != nil {
			return nil, errors.Wrapf(err, "combination %d/%d (%s k=%d degree=%d n_components=%d)",
				i+1, len(combos), c.Method, c.K, c.Degree, c.NComponents)
		}
		improved := tracker.Observe(r)

		fields := append(c.logFields(),
			log.PhaseKey, log.PhaseSweep,
			log.AccuracyKey, r.Artifact.Accuracy,
			"sweep.step", i+1,
			"sweep.total", len(combos),
		)
		g.progress("combination finished", fields...)

		if g.observer != nil {
			g.observer(SweepStep{
				Index:    i,
				Total:    len(combos),
				Result:   r,
				Best:     tracker.Best(),
				Improved: improved,
				Duration: time.Since(start),
			})
		}
	}
	best := tracker.Best()
	if best != nil {
		g.logger.Info("best combination",
			append(best.Combination.logFields(), log.AccuracyKey, best.Accuracy)...)
	}
	return best, nil
}
