package pipeline

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// topAttributions is how many components are kept and how many features are
// returned by BestFeatures.
const topAttributions = 10

// FeatureContribution back-projects component importances onto the original
// features. Absolute loadings are normalized per component, weighted by the
// component's explained-variance ratio, and summed over the ten components
// with the largest importance. The result is non-negative.
func FeatureContribution(importances []float64, components *mat.Dense, varianceRatio []float64) ([]float64, error) {
	nComp, nFeat := components.Dims()
	if len(importances) != nComp {
		return nil, errors.NewDimensionError("FeatureContribution", nComp, len(importances), 0)
	}
	if len(varianceRatio) != nComp {
		return nil, errors.NewDimensionError("FeatureContribution", nComp, len(varianceRatio), 0)
	}

	contribution := make([]float64, nFeat)
	row := make([]float64, nFeat)
	for _, c := range topIndices(importances, topAttributions) {
		for j := range row {
			row[j] = math.Abs(components.At(c, j))
		}
		total := floats.Sum(row)
		if total == 0 {
			continue
		}
		floats.AddScaled(contribution, varianceRatio[c]/total, row)
	}
	return contribution, nil
}

// BestFeatures returns the ten original feature names contributing most to
// the components the random forest found important, in descending order.
// Models without feature importances yield a ValueError.
func BestFeatures(m model.Classifier, components *mat.Dense, varianceRatio []float64, names []string) ([]string, error) {
	fi, ok := m.(model.FeatureImportancer)
	if !ok {
		return nil, errors.NewValueError("BestFeatures", "feature attribution requires a random forest model")
	}
	_, nFeat := components.Dims()
	if len(names) != nFeat {
		return nil, errors.NewDimensionError("BestFeatures", nFeat, len(names), 1)
	}
	contribution, err := FeatureContribution(fi.FeatureImportances(), components, varianceRatio)
	if err != nil {
		return nil, err
	}
	best := make([]string, 0, topAttributions)
	for _, j := range topIndices(contribution, topAttributions) {
		best = append(best, names[j])
	}
	return best, nil
}

// topIndices returns the indices of the k largest values, largest first.
// Ties keep the lower index first.
func topIndices(values []float64, k int) []int {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] > values[idx[b]] })
	return idx[:min(k, len(idx))]
}
