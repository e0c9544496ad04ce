// Package ensemble implements bagged tree ensembles.
package ensemble

import (
	"bytes"
	"encoding/gob"
	"math/rand/v2"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
	"github.com/YuminosukeSato/heartrisk/sklearn/tree"
)

// RandomForestClassifier averages the class probabilities of CART trees grown
// on bootstrap samples with random feature subsets.
// Compatible with scikit-learn's RandomForestClassifier.
type RandomForestClassifier struct {
	state *model.StateManager

	nEstimators     int
	criterion       string
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     string
	bootstrap       bool
	classWeight     string
	randomState     int64
	nJobs           int
	logger          log.Logger

	trees    []*tree.DecisionTreeClassifier
	classes_ []float64
}

// ForestOption is a functional option for RandomForestClassifier
type ForestOption func(*RandomForestClassifier)

// NewRandomForestClassifier creates a forest of 100 gini trees using sqrt
// features per split and bootstrap sampling.
func NewRandomForestClassifier(opts ...ForestOption) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:           model.NewStateManager(),
		nEstimators:     100,
		criterion:       "gini",
		maxDepth:        -1,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     "sqrt",
		bootstrap:       true,
		randomState:     -1,
		nJobs:           1,
		logger:          log.GetLoggerWithName("RandomForestClassifier"),
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// WithNEstimators sets the number of trees
func WithNEstimators(n int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.nEstimators = n }
}

// WithCriterion sets the split criterion of every tree
func WithCriterion(criterion string) ForestOption {
	return func(rf *RandomForestClassifier) { rf.criterion = criterion }
}

// WithMaxDepth limits the depth of every tree. Negative means unlimited.
func WithMaxDepth(depth int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.maxDepth = depth }
}

// WithMinSamplesLeaf sets the minimum number of samples per leaf
func WithMinSamplesLeaf(n int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.minSamplesLeaf = n }
}

// WithMaxFeatures sets the features considered per split ("sqrt", "log2", an integer or "")
func WithMaxFeatures(maxFeatures string) ForestOption {
	return func(rf *RandomForestClassifier) { rf.maxFeatures = maxFeatures }
}

// WithBootstrap toggles bootstrap sampling
func WithBootstrap(bootstrap bool) ForestOption {
	return func(rf *RandomForestClassifier) { rf.bootstrap = bootstrap }
}

// WithClassWeight sets the class weighting ("balanced" or "")
func WithClassWeight(classWeight string) ForestOption {
	return func(rf *RandomForestClassifier) { rf.classWeight = classWeight }
}

// WithRandomState sets the seed. Negative draws a random seed.
func WithRandomState(seed int64) ForestOption {
	return func(rf *RandomForestClassifier) { rf.randomState = seed }
}

// WithNJobs sets the number of trees built concurrently
func WithNJobs(n int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.nJobs = n }
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) ForestOption {
	return func(rf *RandomForestClassifier) {
		if logger != nil {
			rf.logger = logger
		}
	}
}

// Fit grows the trees. Per-tree seeds are drawn up front so the fitted forest
// does not depend on the number of jobs.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	if rf.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be >= 1", rf.nEstimators)
	}
	if rf.classWeight != "" && rf.classWeight != "balanced" {
		return errors.NewValidationError("class_weight", "must be 'balanced' or empty", rf.classWeight)
	}
	nSamples, nFeatures := X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("RandomForestClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows, _ := y.Dims(); yRows != nSamples {
		return errors.NewDimensionError("RandomForestClassifier.Fit", nSamples, yRows, 0)
	}
	start := time.Now()

	Xd, ok := X.(*mat.Dense)
	if !ok {
		Xd = mat.DenseCopyOf(X)
	}
	labels := mat.Col(nil, 0, y)
	rf.classes_ = uniqueSorted(labels)

	// Class weights come from the full training labels, then multiply the
	// bootstrap counts of each tree.
	classW := make([]float64, nSamples)
	for i := range classW {
		classW[i] = 1
	}
	if rf.classWeight == "balanced" {
		yIdx := make([]int, nSamples)
		for i, v := range labels {
			yIdx[i] = sort.SearchFloat64s(rf.classes_, v)
		}
		cw := tree.BalancedClassWeights(yIdx, len(rf.classes_))
		for i := range classW {
			classW[i] = cw[yIdx[i]]
		}
	}

	master := newRand(rf.randomState)
	seeds := make([]uint64, rf.nEstimators)
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	trees := make([]*tree.DecisionTreeClassifier, rf.nEstimators)
	g := new(errgroup.Group)
	g.SetLimit(max(rf.nJobs, 1))
	for i := range trees {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(seeds[i], seeds[i]))
			weights := make([]float64, nSamples)
			if rf.bootstrap {
				for range nSamples {
					weights[rng.IntN(nSamples)]++
				}
			} else {
				for j := range weights {
					weights[j] = 1
				}
			}
			for j := range weights {
				weights[j] *= classW[j]
			}

			t := tree.NewDecisionTreeClassifier(
				tree.WithCriterion(rf.criterion),
				tree.WithMaxDepth(rf.maxDepth),
				tree.WithMinSamplesSplit(rf.minSamplesSplit),
				tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
				tree.WithMaxFeatures(rf.maxFeatures),
				tree.WithRandomState(int64(rng.Uint64()>>1)),
			)
			if err := t.FitWeighted(Xd, y, weights); err != nil {
				return errors.Wrapf(err, "tree %d", i)
			}
			trees[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	rf.trees = trees

	rf.state.SetDimensions(nFeatures, nSamples)
	rf.state.SetFitted()

	rf.logger.Debug("forest fitted",
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.ThreadsKey, rf.nJobs,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// PredictProba returns the mean of the tree class distributions.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.state.RequireFitted("RandomForestClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	nSamples, nFeatures := X.Dims()
	if err := rf.state.CheckFeatures("RandomForestClassifier.PredictProba", nFeatures); err != nil {
		return nil, err
	}

	out := mat.NewDense(nSamples, len(rf.classes_), nil)
	row := make([]float64, nFeatures)
	for i := 0; i < nSamples; i++ {
		mat.Row(row, i, X)
		dst := out.RawRowView(i)
		for _, t := range rf.trees {
			rf.addTreeProba(t, dst, row)
		}
		floats.Scale(1/float64(len(rf.trees)), dst)
	}
	return out, nil
}

// addTreeProba maps the tree's classes onto the forest's classes. They differ
// only when a bootstrap sample misses a class entirely.
func (rf *RandomForestClassifier) addTreeProba(t *tree.DecisionTreeClassifier, dst, row []float64) {
	if t.NClasses() == len(rf.classes_) {
		t.AddProbaTo(dst, row)
		return
	}
	tc := t.Classes()
	tmp := make([]float64, len(tc))
	t.AddProbaTo(tmp, row)
	for c, v := range tmp {
		dst[sort.SearchFloat64s(rf.classes_, tc[c])] += v
	}
}

// Predict returns the class with the highest mean probability.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	p := proba.(*mat.Dense)
	n, _ := p.Dims()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		out.Set(i, 0, rf.classes_[floats.MaxIdx(p.RawRowView(i))])
	}
	return out, nil
}

// FeatureImportances returns the mean of the per-tree impurity importances,
// renormalized to sum to one.
func (rf *RandomForestClassifier) FeatureImportances() []float64 {
	if !rf.state.IsFitted() {
		return nil
	}
	nFeatures, _ := rf.state.GetDimensions()
	out := make([]float64, nFeatures)
	for _, t := range rf.trees {
		floats.Add(out, t.FeatureImportances())
	}
	if total := floats.Sum(out); total > 0 {
		floats.Scale(1/total, out)
	}
	return out
}

// Classes returns the class labels in ascending order.
func (rf *RandomForestClassifier) Classes() []float64 {
	return append([]float64(nil), rf.classes_...)
}

// NEstimators returns the number of fitted trees.
func (rf *RandomForestClassifier) NEstimators() int {
	return len(rf.trees)
}

// GetParams returns the hyperparameters
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"criterion":         rf.criterion,
		"max_depth":         rf.maxDepth,
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures,
		"bootstrap":         rf.bootstrap,
		"class_weight":      rf.classWeight,
		"random_state":      rf.randomState,
		"n_jobs":            rf.nJobs,
	}
}

type forestSnapshot struct {
	Params  map[string]interface{}
	Trees   []*tree.DecisionTreeClassifier
	Classes []float64
	State   model.ModelState
}

// GobEncode implements gob.GobEncoder.
func (rf *RandomForestClassifier) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(forestSnapshot{
		Params:  rf.GetParams(),
		Trees:   rf.trees,
		Classes: rf.classes_,
		State:   rf.state.GetState(),
	})
	return buf.Bytes(), err
}

// GobDecode implements gob.GobDecoder.
func (rf *RandomForestClassifier) GobDecode(data []byte) error {
	var s forestSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return errors.Wrap(err, "decode random forest")
	}
	*rf = *NewRandomForestClassifier()
	if v, ok := s.Params["n_estimators"].(int); ok {
		rf.nEstimators = v
	}
	if v, ok := s.Params["criterion"].(string); ok {
		rf.criterion = v
	}
	if v, ok := s.Params["max_features"].(string); ok {
		rf.maxFeatures = v
	}
	if v, ok := s.Params["class_weight"].(string); ok {
		rf.classWeight = v
	}
	if v, ok := s.Params["random_state"].(int64); ok {
		rf.randomState = v
	}
	rf.trees = s.Trees
	rf.classes_ = s.Classes
	rf.state.SetState(s.State)
	return nil
}

func newRand(seed int64) *rand.Rand {
	if seed < 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
}

func uniqueSorted(values []float64) []float64 {
	seen := make(map[float64]struct{}, 2)
	var out []float64
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}
