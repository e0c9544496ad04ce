// Package decomposition provides matrix decomposition estimators.
package decomposition

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// PCA performs principal component analysis through a thin SVD of the
// centered data (gonum stat.PC). Compatible with scikit-learn's PCA with the
// full solver: each component is sign-flipped so that its largest absolute
// loading is positive.
type PCA struct {
	state *model.StateManager

	nComponents int

	// Components_ is nComponents × nFeatures, one principal axis per row
	Components_ *mat.Dense
	// ExplainedVariance_ holds the variance (ddof=1) of each component
	ExplainedVariance_ []float64
	// ExplainedVarianceRatio_ is ExplainedVariance_ divided by the total variance
	ExplainedVarianceRatio_ []float64
	// Mean_ holds the per-feature mean removed before projection
	Mean_ []float64
}

// NewPCA creates a PCA keeping nComponents components.
func NewPCA(nComponents int) *PCA {
	return &PCA{
		state:       model.NewStateManager(),
		nComponents: nComponents,
	}
}

// Fit computes the principal axes of X.
// nComponents must lie in [1, min(n_samples, n_features)].
func (p *PCA) Fit(X mat.Matrix) (err error) {
	defer errors.Recover(&err, "PCA.Fit")

	n, d := X.Dims()
	if n == 0 || d == 0 {
		return errors.NewModelError("PCA.Fit", "empty data", errors.ErrEmptyData)
	}
	if limit := min(n, d); p.nComponents < 1 || p.nComponents > limit {
		return errors.NewValueError("PCA.Fit",
			fmt.Sprintf("n_components=%d must be between 1 and min(n_samples, n_features)=%d", p.nComponents, limit))
	}
	if n < 2 {
		return errors.NewValueError("PCA.Fit", "at least 2 samples are required")
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(X, nil); !ok {
		return errors.NewModelError("PCA.Fit", "SVD did not converge", errors.ErrSingularMatrix)
	}

	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)
	total := floats.Sum(vars)

	p.Components_ = mat.NewDense(p.nComponents, d, nil)
	p.ExplainedVariance_ = make([]float64, p.nComponents)
	p.ExplainedVarianceRatio_ = make([]float64, p.nComponents)
	axis := make([]float64, d)
	for k := 0; k < p.nComponents; k++ {
		mat.Col(axis, k, &vecs)
		flipSign(axis)
		p.Components_.SetRow(k, axis)
		p.ExplainedVariance_[k] = vars[k]
		if total > 0 {
			p.ExplainedVarianceRatio_[k] = vars[k] / total
		}
	}

	p.Mean_ = make([]float64, d)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, X)
		p.Mean_[j] = stat.Mean(col, nil)
	}

	p.state.SetDimensions(d, n)
	p.state.SetFitted()
	return nil
}

// Transform projects X onto the principal axes: (X - mean) · Componentsᵀ.
func (p *PCA) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := p.state.RequireFitted("PCA", "Transform"); err != nil {
		return nil, err
	}
	n, d := X.Dims()
	if err := p.state.CheckFeatures("PCA.Transform", d); err != nil {
		return nil, err
	}

	centered := mat.NewDense(n, d, nil)
	centered.Apply(func(i, j int, v float64) float64 {
		return v - p.Mean_[j]
	}, X)

	out := mat.NewDense(n, p.nComponents, nil)
	out.Mul(centered, p.Components_.T())
	return out, nil
}

// FitTransform fits on X and projects X.
func (p *PCA) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := p.Fit(X); err != nil {
		return nil, err
	}
	return p.Transform(X)
}

// NComponents returns the number of kept components.
func (p *PCA) NComponents() int {
	return p.nComponents
}

// flipSign makes the entry of largest magnitude positive.
func flipSign(v []float64) {
	best := 0
	for i := range v {
		if math.Abs(v[i]) > math.Abs(v[best]) {
			best = i
		}
	}
	if v[best] < 0 {
		floats.Scale(-1, v)
	}
}
