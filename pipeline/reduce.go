package pipeline

import (
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/dataset"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
	"github.com/YuminosukeSato/heartrisk/sklearn/decomposition"
)

// Reduction is the output of one PCA fit.
type Reduction struct {
	// Projected holds the scores in columns PC1..PCn.
	Projected *dataset.Frame
	// Components is nComponents × nFeatures.
	Components *mat.Dense
	// VarianceRatio is the explained-variance ratio of each component.
	VarianceRatio []float64
}

// Reducer projects a table onto its leading principal components.
type Reducer struct {
	nComponents int
	settings
}

// NewReducer configures a Reducer keeping nComponents components.
func NewReducer(nComponents int, opts ...Option) *Reducer {
	return &Reducer{nComponents: nComponents, settings: newSettings("Reducer", opts)}
}

// Reduce fits a PCA on frame and projects it. An infeasible component count
// is returned as the PCA's ValueError.
func (r *Reducer) Reduce(frame *dataset.Frame) (*Reduction, error) {
	r.progress("performing dimensionality reduction",
		log.PhaseKey, log.PhaseReduction,
		log.ComponentsKey, r.nComponents,
	)
	pca := decomposition.NewPCA(r.nComponents)
	scores, err := pca.FitTransform(frame.X)
	if err != nil {
		return nil, err
	}

	names := make([]string, r.nComponents)
	for i := range names {
		names[i] = "PC" + strconv.Itoa(i+1)
	}
	projected, err := dataset.NewFrame(names, asDense(scores))
	if err != nil {
		return nil, err
	}
	return &Reduction{
		Projected:     projected,
		Components:    mat.DenseCopyOf(pca.Components_),
		VarianceRatio: append([]float64(nil), pca.ExplainedVarianceRatio_...),
	}, nil
}
