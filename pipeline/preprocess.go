package pipeline

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/dataset"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
	"github.com/YuminosukeSato/heartrisk/preprocessing"
	"github.com/YuminosukeSato/heartrisk/sklearn/impute"
)

// Preprocessor turns a raw feature table into a numeric table ready for PCA:
// KNN imputation, categorical truncation, optional one-hot encoding,
// standardization and optional polynomial expansion, in that order.
// Every step is fit on the table passed to Process.
type Preprocessor struct {
	k           int
	degree      int
	categorical []string
	method      Method
	settings
}

// NewPreprocessor configures a Preprocessor. degree 0 disables the
// polynomial expansion.
func NewPreprocessor(k, degree int, categorical []string, method Method, opts ...Option) *Preprocessor {
	return &Preprocessor{
		k:           k,
		degree:      degree,
		categorical: append([]string(nil), categorical...),
		method:      method,
		settings:    newSettings("Preprocessor", opts),
	}
}

// Process runs the preprocessing chain on features.
// Imputation errors are returned unwrapped.
func (p *Preprocessor) Process(features *dataset.Frame) (*dataset.Frame, error) {
	if err := dataset.RequireColumns(features, p.categorical); err != nil {
		return nil, err
	}
	n, d := features.Dims()
	p.progress("preprocessing data",
		log.PhaseKey, log.PhasePreprocessing,
		log.SamplesKey, n,
		log.FeaturesKey, d,
		log.NeighborsKey, p.k,
		log.DegreeKey, p.degree,
	)

	imputer := impute.NewKNNImputer(impute.WithNNeighbors(p.k), impute.WithLogger(p.logger))
	imputed, err := imputer.FitTransform(features.X)
	if err != nil {
		return nil, err
	}
	X := asDense(imputed)
	names := append([]string(nil), features.Names...)

	catIdx := make([]int, len(p.categorical))
	for i, name := range p.categorical {
		catIdx[i] = features.Index(name)
		for r := 0; r < n; r++ {
			X.Set(r, catIdx[i], math.Trunc(X.At(r, catIdx[i])))
		}
	}

	if p.method != RF && len(catIdx) > 0 {
		var encode []int
		for _, j := range catIdx {
			if len(preprocessing.DistinctValues(mat.Col(nil, j, X))) > 2 {
				encode = append(encode, j)
			}
		}
		if len(encode) > 0 {
			enc := preprocessing.NewOneHotEncoder(encode, p.method == NN)
			encoded, err := enc.FitTransform(X)
			if err != nil {
				return nil, err
			}
			if names, err = enc.GetFeatureNamesOut(names); err != nil {
				return nil, err
			}
			X = asDense(encoded)
		}
	}

	scaled, err := preprocessing.NewStandardScaler().FitTransform(X)
	if err != nil {
		return nil, err
	}
	X = asDense(scaled)

	if p.degree > 0 {
		poly := preprocessing.NewPolynomialFeatures(p.degree)
		expanded, err := poly.FitTransform(X)
		if err != nil {
			return nil, err
		}
		if names, err = poly.GetFeatureNamesOut(names); err != nil {
			return nil, err
		}
		X = asDense(expanded)
	}

	if err := errors.CheckMatrix("Preprocessor.Process", X); err != nil {
		return nil, err
	}

	out, err := dataset.NewFrame(names, X)
	if err != nil {
		return nil, errors.Wrap(err, "assemble preprocessed frame")
	}
	return out, nil
}

func asDense(m mat.Matrix) *mat.Dense {
	if d, ok := m.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(m)
}
