// Package impute fills missing values (NaN) in feature matrices.
package impute

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

// KNNImputer replaces each missing value with the uniform mean of that column
// over the k nearest rows that have the column present. Distances are
// nan-euclidean: squared differences over the coordinates present in both
// rows, rescaled by total/present coordinates.
// Compatible with scikit-learn's KNNImputer(weights="uniform").
type KNNImputer struct {
	state *model.StateManager

	nNeighbors int
	logger     log.Logger

	// fitted donors
	fitX     *mat.Dense
	colMeans []float64
}

// KNNImputerOption is a functional option for KNNImputer
type KNNImputerOption func(*KNNImputer)

// NewKNNImputer creates a KNNImputer with 5 neighbours by default.
func NewKNNImputer(opts ...KNNImputerOption) *KNNImputer {
	imp := &KNNImputer{
		state:      model.NewStateManager(),
		nNeighbors: 5,
		logger:     log.GetLoggerWithName("KNNImputer"),
	}
	for _, opt := range opts {
		opt(imp)
	}
	return imp
}

// WithNNeighbors sets the number of donors averaged per missing value
func WithNNeighbors(k int) KNNImputerOption {
	return func(imp *KNNImputer) {
		imp.nNeighbors = k
	}
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) KNNImputerOption {
	return func(imp *KNNImputer) {
		if logger != nil {
			imp.logger = logger
		}
	}
}

// Fit stores X as the donor pool.
//
// It fails with a ValueError when k < 1, when a column has no observed value,
// or when a column has fewer than k observed values.
func (imp *KNNImputer) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("KNNImputer.Fit", "empty data", errors.ErrEmptyData)
	}
	if imp.nNeighbors < 1 {
		return errors.NewValueError("KNNImputer.Fit", fmt.Sprintf("n_neighbors must be >= 1, got %d", imp.nNeighbors))
	}

	imp.fitX = mat.DenseCopyOf(X)
	imp.colMeans = make([]float64, c)
	for j := 0; j < c; j++ {
		var sum float64
		present := 0
		for i := 0; i < r; i++ {
			if v := imp.fitX.At(i, j); !math.IsNaN(v) {
				sum += v
				present++
			}
		}
		if present == 0 {
			return errors.NewValueError("KNNImputer.Fit", fmt.Sprintf("column %d has no observed values", j))
		}
		if present < imp.nNeighbors {
			return errors.NewValueError("KNNImputer.Fit",
				fmt.Sprintf("n_neighbors=%d exceeds the %d observed values of column %d", imp.nNeighbors, present, j))
		}
		imp.colMeans[j] = sum / float64(present)
	}

	imp.state.SetDimensions(c, r)
	imp.state.SetFitted()
	return nil
}

// Transform imputes the missing cells of X using the fitted donors.
func (imp *KNNImputer) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := imp.state.RequireFitted("KNNImputer", "Transform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := imp.state.CheckFeatures("KNNImputer.Transform", c); err != nil {
		return nil, err
	}

	out := mat.DenseCopyOf(X)
	nFit, _ := imp.fitX.Dims()
	dist := make([]float64, nFit)
	imputed := 0

	for i := 0; i < r; i++ {
		row := out.RawRowView(i)
		missing := missingCols(row)
		if len(missing) == 0 {
			continue
		}
		// distances use the original row so that earlier imputations do not leak in
		orig := mat.Row(nil, i, X)
		for d := 0; d < nFit; d++ {
			dist[d] = nanEuclidean(orig, imp.fitX.RawRowView(d))
		}
		for _, j := range missing {
			row[j] = imp.imputeCell(j, dist)
			imputed++
		}
	}

	imp.logger.Debug("imputed missing values",
		log.OperationKey, log.OperationTransform,
		log.SamplesKey, r,
		log.NeighborsKey, imp.nNeighbors,
		"imputed_cells", imputed,
	)
	return out, nil
}

// FitTransform fits on X and imputes X.
func (imp *KNNImputer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := imp.Fit(X); err != nil {
		return nil, err
	}
	return imp.Transform(X)
}

// imputeCell averages column j over the nearest donors that observe it.
// Donors at NaN distance (no shared coordinates) rank last and carry no weight;
// if every selected donor is at NaN distance the column mean is used.
func (imp *KNNImputer) imputeCell(j int, dist []float64) float64 {
	nFit, _ := imp.fitX.Dims()
	donors := make([]int, 0, nFit)
	for d := 0; d < nFit; d++ {
		if !math.IsNaN(imp.fitX.At(d, j)) {
			donors = append(donors, d)
		}
	}
	sort.SliceStable(donors, func(a, b int) bool {
		da, db := dist[donors[a]], dist[donors[b]]
		if math.IsNaN(db) {
			return !math.IsNaN(da)
		}
		return da < db
	})

	k := min(imp.nNeighbors, len(donors))
	var sum float64
	n := 0
	for _, d := range donors[:k] {
		if math.IsNaN(dist[d]) {
			continue
		}
		sum += imp.fitX.At(d, j)
		n++
	}
	if n == 0 {
		return imp.colMeans[j]
	}
	return sum / float64(n)
}

func missingCols(row []float64) []int {
	var cols []int
	for j, v := range row {
		if math.IsNaN(v) {
			cols = append(cols, j)
		}
	}
	return cols
}

// nanEuclidean computes the nan-euclidean distance between a and b.
// It returns NaN when the rows share no observed coordinate.
func nanEuclidean(a, b []float64) float64 {
	var sum float64
	present := 0
	for j := range a {
		if math.IsNaN(a[j]) || math.IsNaN(b[j]) {
			continue
		}
		d := a[j] - b[j]
		sum += d * d
		present++
	}
	if present == 0 {
		return math.NaN()
	}
	return math.Sqrt(float64(len(a)) / float64(present) * sum)
}
