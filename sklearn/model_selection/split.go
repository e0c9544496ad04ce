// Package model_selection provides cross-validation splitters.
package model_selection

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// Fold holds the row indices of one cross-validation split.
type Fold struct {
	TrainIndices []int
	TestIndices  []int
}

// StratifiedKFold implements stratified k-fold cross-validation.
// Each class is shuffled (when requested) and dealt out so that every test fold
// keeps roughly the class proportions of y. Classes are visited in ascending
// order so the folds depend only on the seed.
type StratifiedKFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed uint64
}

// NewStratifiedKFold creates a new stratified k-fold splitter
func NewStratifiedKFold(nSplits int, shuffle bool, randomSeed uint64) *StratifiedKFold {
	return &StratifiedKFold{
		NSplits:    nSplits,
		Shuffle:    shuffle,
		RandomSeed: randomSeed,
	}
}

// GetNSplits returns the number of splits
func (skf *StratifiedKFold) GetNSplits() int {
	return skf.NSplits
}

// Split generates stratified train/test indices for each fold.
// Indices inside each fold are ascending.
func (skf *StratifiedKFold) Split(y mat.Vector) ([]Fold, error) {
	nSamples := y.Len()
	if skf.NSplits < 2 {
		return nil, errors.NewValueError("StratifiedKFold.Split",
			fmt.Sprintf("n_splits=%d must be at least 2", skf.NSplits))
	}
	if skf.NSplits > nSamples {
		return nil, errors.NewValueError("StratifiedKFold.Split",
			fmt.Sprintf("n_splits=%d cannot be greater than the number of samples: n_samples=%d", skf.NSplits, nSamples))
	}

	classIndices := make(map[float64][]int)
	for i := 0; i < nSamples; i++ {
		label := y.AtVec(i)
		classIndices[label] = append(classIndices[label], i)
	}
	classes := make([]float64, 0, len(classIndices))
	largest := 0
	for label, idx := range classIndices {
		classes = append(classes, label)
		largest = max(largest, len(idx))
	}
	sort.Float64s(classes)
	if skf.NSplits > largest {
		return nil, errors.NewValueError("StratifiedKFold.Split",
			fmt.Sprintf("n_splits=%d cannot be greater than the number of members in each class", skf.NSplits))
	}

	if skf.Shuffle {
		r := rand.New(rand.NewPCG(skf.RandomSeed, skf.RandomSeed))
		for _, label := range classes {
			indices := classIndices[label]
			r.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
		}
	}

	folds := make([]Fold, skf.NSplits)
	for _, label := range classes {
		indices := classIndices[label]
		nClass := len(indices)
		foldSize := nClass / skf.NSplits
		remainder := nClass % skf.NSplits

		currentIdx := 0
		for i := 0; i < skf.NSplits; i++ {
			testSize := foldSize
			if i < remainder {
				testSize++
			}
			folds[i].TestIndices = append(folds[i].TestIndices, indices[currentIdx:currentIdx+testSize]...)
			currentIdx += testSize
		}
	}

	for i := range folds {
		sort.Ints(folds[i].TestIndices)
		folds[i].TrainIndices = complement(nSamples, folds[i].TestIndices)
	}
	return folds, nil
}

// TrainTestSplit shuffles 0..n-1 with seed and returns ceil(testSize·n) test
// indices and the remaining train indices, both in shuffled order.
func TrainTestSplit(n int, testSize float64, seed uint64) (train, test []int, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, errors.NewValueError("TrainTestSplit", fmt.Sprintf("test_size=%v must be in (0, 1)", testSize))
	}
	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTest == 0 || nTrain <= 0 {
		return nil, nil, errors.NewValueError("TrainTestSplit",
			fmt.Sprintf("with n_samples=%d and test_size=%v the resulting train set is empty", n, testSize))
	}

	r := rand.New(rand.NewPCG(seed, seed))
	perm := r.Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

// complement returns the ascending indices in [0, n) not present in sorted.
func complement(n int, sorted []int) []int {
	out := make([]int, 0, n-len(sorted))
	k := 0
	for i := 0; i < n; i++ {
		if k < len(sorted) && sorted[k] == i {
			k++
			continue
		}
		out = append(out, i)
	}
	return out
}
