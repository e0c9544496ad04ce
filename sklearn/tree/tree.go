// Package tree implements CART decision trees.
package tree

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// featureThreshold is the smallest gap between two feature values that can be split.
const featureThreshold = 1e-7

// Node is one node of a fitted tree. Leaves have Feature == -1.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	// Value holds the weighted class counts of the training samples reaching the node
	Value    []float64
	Impurity float64
	NSamples int
	Depth    int
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return n.Feature < 0
}

// DecisionTreeClassifier implements a CART classification tree.
// Compatible with scikit-learn's DecisionTreeClassifier.
type DecisionTreeClassifier struct {
	state *model.StateManager

	// Hyperparameters
	criterion       string // "gini" or "entropy"
	maxDepth        int    // -1 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     string // "", "sqrt", "log2" or an integer as text
	classWeight     string // "" or "balanced"
	randomState     int64  // -1 draws a random seed

	// Fitted attributes
	nodes        []Node
	classes_     []float64
	nClasses_    int
	nFeatures_   int
	importances_ []float64
}

// DecisionTreeOption is a functional option for DecisionTreeClassifier
type DecisionTreeOption func(*DecisionTreeClassifier)

// NewDecisionTreeClassifier creates a new DecisionTreeClassifier
func NewDecisionTreeClassifier(opts ...DecisionTreeOption) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       "gini",
		maxDepth:        -1,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		randomState:     -1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// WithCriterion sets the split quality measure ("gini" or "entropy")
func WithCriterion(criterion string) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) {
		dt.criterion = criterion
	}
}

// WithMaxDepth sets the maximum depth. Negative means unlimited.
func WithMaxDepth(depth int) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) {
		dt.maxDepth = depth
	}
}

// WithMinSamplesSplit sets the minimum number of samples required to split a node
func WithMinSamplesSplit(n int) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) {
		dt.minSamplesSplit = n
	}
}

// WithMinSamplesLeaf sets the minimum number of samples in a leaf
func WithMinSamplesLeaf(n int) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) {
		dt.minSamplesLeaf = n
	}
}

// WithMaxFeatures sets the number of features considered per split:
// "sqrt", "log2", an integer, or "" for all features.
func WithMaxFeatures(maxFeatures string) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) {
		dt.maxFeatures = maxFeatures
	}
}

// WithClassWeight sets the class weighting ("balanced" or "")
func WithClassWeight(classWeight string) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) {
		dt.classWeight = classWeight
	}
}

// WithRandomState sets the seed used for feature sampling
func WithRandomState(seed int64) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) {
		dt.randomState = seed
	}
}

// Fit builds the tree from X and the class labels in the first column of y.
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	return dt.FitWeighted(X, y, nil)
}

// FitWeighted builds the tree with per-sample weights. Samples with zero weight
// are ignored for splitting but their labels still count as known classes.
// A nil sampleWeight means unit weights.
func (dt *DecisionTreeClassifier) FitWeighted(X, y mat.Matrix, sampleWeight []float64) error {
	if err := dt.validateParams(); err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows, _ := y.Dims(); yRows != nSamples {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", nSamples, yRows, 0)
	}
	if sampleWeight != nil && len(sampleWeight) != nSamples {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", nSamples, len(sampleWeight), 0)
	}

	labels := mat.Col(nil, 0, y)
	dt.classes_ = uniqueSorted(labels)
	dt.nClasses_ = len(dt.classes_)
	dt.nFeatures_ = nFeatures

	yIdx := make([]int, nSamples)
	for i, v := range labels {
		yIdx[i] = sort.SearchFloat64s(dt.classes_, v)
	}

	weights := make([]float64, nSamples)
	for i := range weights {
		weights[i] = 1
		if sampleWeight != nil {
			weights[i] = sampleWeight[i]
		}
	}
	if dt.classWeight == "balanced" {
		cw := BalancedClassWeights(yIdx, dt.nClasses_)
		for i := range weights {
			weights[i] *= cw[yIdx[i]]
		}
	}

	samples := make([]int, 0, nSamples)
	for i, w := range weights {
		if w > 0 {
			samples = append(samples, i)
		}
	}
	if len(samples) == 0 {
		return errors.NewValueError("DecisionTreeClassifier.Fit", "all sample weights are zero")
	}

	b := &builder{
		dt:          dt,
		X:           rowAccessor(X),
		y:           yIdx,
		w:           weights,
		importances: make([]float64, nFeatures),
		rng:         newRand(dt.randomState),
		nTry:        resolveMaxFeatures(dt.maxFeatures, nFeatures),
	}
	for _, s := range samples {
		b.totalWeight += weights[s]
	}

	dt.nodes = dt.nodes[:0]
	b.build(samples, 0)

	var total float64
	for _, v := range b.importances {
		total += v
	}
	if total > 0 {
		for j := range b.importances {
			b.importances[j] /= total
		}
	}
	dt.importances_ = b.importances

	dt.state.SetDimensions(nFeatures, nSamples)
	dt.state.SetFitted()
	return nil
}

func (dt *DecisionTreeClassifier) validateParams() error {
	if dt.criterion != "gini" && dt.criterion != "entropy" {
		return errors.NewValidationError("criterion", "must be 'gini' or 'entropy'", dt.criterion)
	}
	if dt.minSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be >= 2", dt.minSamplesSplit)
	}
	if dt.minSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", dt.minSamplesLeaf)
	}
	if dt.classWeight != "" && dt.classWeight != "balanced" {
		return errors.NewValidationError("class_weight", "must be 'balanced' or empty", dt.classWeight)
	}
	return nil
}

// PredictProba returns the class distribution of the leaf each sample falls in.
// Columns follow the ascending class order.
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	nSamples, nFeatures := X.Dims()
	if err := dt.state.CheckFeatures("DecisionTreeClassifier.PredictProba", nFeatures); err != nil {
		return nil, err
	}

	out := mat.NewDense(nSamples, dt.nClasses_, nil)
	row := make([]float64, nFeatures)
	for i := 0; i < nSamples; i++ {
		mat.Row(row, i, X)
		leaf := dt.apply(row)
		dt.leafProba(leaf, out.RawRowView(i))
	}
	return out, nil
}

// AddProbaTo adds the leaf distribution of row to dst. Used by ensembles to
// average trees without allocating per-tree matrices.
func (dt *DecisionTreeClassifier) AddProbaTo(dst, row []float64) {
	leaf := dt.apply(row)
	var sum float64
	for _, v := range dt.nodes[leaf].Value {
		sum += v
	}
	for c, v := range dt.nodes[leaf].Value {
		dst[c] += v / sum
	}
}

func (dt *DecisionTreeClassifier) leafProba(leaf int, dst []float64) {
	var sum float64
	for _, v := range dt.nodes[leaf].Value {
		sum += v
	}
	for c, v := range dt.nodes[leaf].Value {
		dst[c] = v / sum
	}
}

// apply returns the index of the leaf reached by row.
func (dt *DecisionTreeClassifier) apply(row []float64) int {
	idx := 0
	for !dt.nodes[idx].IsLeaf() {
		n := &dt.nodes[idx]
		if row[n.Feature] <= n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
	return idx
}

// Predict returns the most probable class of each sample.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := dt.PredictProba(X)
	if err != nil {
		return nil, err
	}
	nSamples, _ := proba.Dims()
	out := mat.NewDense(nSamples, 1, nil)
	for i := 0; i < nSamples; i++ {
		out.Set(i, 0, dt.classes_[argmax(proba.(*mat.Dense).RawRowView(i))])
	}
	return out, nil
}

// Score returns the mean accuracy on X and y. It returns 0 when prediction fails.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0
	}
	n, _ := pred.Dims()
	correct := 0
	for i := 0; i < n; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(n)
}

// GetFeatureImportances returns the normalized total impurity decrease per feature.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	return append([]float64(nil), dt.importances_...)
}

// FeatureImportances implements model.FeatureImportancer.
func (dt *DecisionTreeClassifier) FeatureImportances() []float64 {
	return dt.GetFeatureImportances()
}

// Classes returns the class labels in ascending order.
func (dt *DecisionTreeClassifier) Classes() []float64 {
	return append([]float64(nil), dt.classes_...)
}

// NClasses returns the number of classes seen during Fit.
func (dt *DecisionTreeClassifier) NClasses() int {
	return dt.nClasses_
}

// GetDepth returns the depth of the deepest leaf (root has depth 0).
func (dt *DecisionTreeClassifier) GetDepth() int {
	depth := 0
	for i := range dt.nodes {
		depth = max(depth, dt.nodes[i].Depth)
	}
	return depth
}

// GetNLeaves returns the number of leaves.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	n := 0
	for i := range dt.nodes {
		if dt.nodes[i].IsLeaf() {
			n++
		}
	}
	return n
}

// GetParams returns the hyperparameters
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"class_weight":      dt.classWeight,
		"random_state":      dt.randomState,
	}
}

// SetParams sets the hyperparameters
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "criterion":
			dt.criterion, ok = value.(string)
		case "max_depth":
			dt.maxDepth, ok = value.(int)
		case "min_samples_split":
			dt.minSamplesSplit, ok = value.(int)
		case "min_samples_leaf":
			dt.minSamplesLeaf, ok = value.(int)
		case "max_features":
			dt.maxFeatures, ok = value.(string)
		case "class_weight":
			dt.classWeight, ok = value.(string)
		case "random_state":
			switch v := value.(type) {
			case int:
				dt.randomState, ok = int64(v), true
			case int64:
				dt.randomState, ok = v, true
			}
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, fmt.Sprintf("unexpected type %T", value), value)
		}
	}
	return dt.validateParams()
}

// treeSnapshot is the gob form of a fitted tree.
type treeSnapshot struct {
	Params      map[string]interface{}
	Nodes       []Node
	Classes     []float64
	NFeatures   int
	Importances []float64
	State       model.ModelState
}

func init() {
	gob.Register(map[string]interface{}{})
}

// GobEncode implements gob.GobEncoder.
func (dt *DecisionTreeClassifier) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(treeSnapshot{
		Params:      dt.GetParams(),
		Nodes:       dt.nodes,
		Classes:     dt.classes_,
		NFeatures:   dt.nFeatures_,
		Importances: dt.importances_,
		State:       dt.state.GetState(),
	})
	return buf.Bytes(), err
}

// GobDecode implements gob.GobDecoder.
func (dt *DecisionTreeClassifier) GobDecode(data []byte) error {
	var s treeSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	if dt.state == nil {
		dt.state = model.NewStateManager()
	}
	dt.randomState = -1
	if err := dt.SetParams(s.Params); err != nil {
		return err
	}
	dt.nodes = s.Nodes
	dt.classes_ = s.Classes
	dt.nClasses_ = len(s.Classes)
	dt.nFeatures_ = s.NFeatures
	dt.importances_ = s.Importances
	dt.state.SetState(s.State)
	return nil
}

// builder grows a tree depth-first.
type builder struct {
	dt          *DecisionTreeClassifier
	X           func(i int) []float64
	y           []int
	w           []float64
	totalWeight float64
	importances []float64
	rng         *rand.Rand
	nTry        int
}

type split struct {
	feature     int
	threshold   float64
	pos         int // samples[:pos] go left after sorting by feature
	improvement float64
	order       []int
}

func (b *builder) build(samples []int, depth int) int {
	dt := b.dt
	counts := make([]float64, dt.nClasses_)
	for _, s := range samples {
		counts[b.y[s]] += b.w[s]
	}
	impurity := b.impurity(counts)

	idx := len(dt.nodes)
	dt.nodes = append(dt.nodes, Node{
		Feature:  -1,
		Value:    counts,
		Impurity: impurity,
		NSamples: len(samples),
		Depth:    depth,
	})

	n := len(samples)
	if (dt.maxDepth >= 0 && depth >= dt.maxDepth) ||
		n < dt.minSamplesSplit ||
		n < 2*dt.minSamplesLeaf ||
		impurity <= 1e-12 {
		return idx
	}

	best, ok := b.findSplit(samples, counts)
	if !ok {
		return idx
	}

	nodeWeight := sumOf(counts)
	b.importances[best.feature] += nodeWeight / b.totalWeight * best.improvement

	left := append([]int(nil), best.order[:best.pos]...)
	right := append([]int(nil), best.order[best.pos:]...)

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)

	node := &dt.nodes[idx]
	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Left = l
	node.Right = r
	return idx
}

// findSplit scans candidate features in random order until nTry non-constant
// features have been evaluated, and returns the split with the largest
// impurity decrease.
func (b *builder) findSplit(samples []int, counts []float64) (split, bool) {
	dt := b.dt
	nFeatures := dt.nFeatures_
	features := make([]int, nFeatures)
	for j := range features {
		features[j] = j
	}
	if b.nTry < nFeatures {
		b.rng.Shuffle(nFeatures, func(i, j int) { features[i], features[j] = features[j], features[i] })
	}

	parentImpurity := b.impurity(counts)
	parentWeight := sumOf(counts)
	n := len(samples)

	var best split
	found := false
	evaluated := 0
	order := make([]int, n)
	left := make([]float64, dt.nClasses_)
	right := make([]float64, dt.nClasses_)

	for _, f := range features {
		if evaluated >= b.nTry && found {
			break
		}
		copy(order, samples)
		sort.Slice(order, func(a, c int) bool { return b.X(order[a])[f] < b.X(order[c])[f] })
		if b.X(order[n-1])[f] <= b.X(order[0])[f]+featureThreshold {
			continue // constant in this node
		}
		evaluated++

		for c := range left {
			left[c] = 0
		}
		copy(right, counts)
		for i := 0; i < n-1; i++ {
			s := order[i]
			left[b.y[s]] += b.w[s]
			right[b.y[s]] -= b.w[s]

			v, next := b.X(s)[f], b.X(order[i+1])[f]
			if next <= v+featureThreshold {
				continue
			}
			if i+1 < dt.minSamplesLeaf || n-i-1 < dt.minSamplesLeaf {
				continue
			}
			wl, wr := sumOf(left), sumOf(right)
			if wl <= 0 || wr <= 0 {
				continue
			}
			improvement := parentImpurity - wl/parentWeight*b.impurity(left) - wr/parentWeight*b.impurity(right)
			if !found || improvement > best.improvement {
				threshold := v/2 + next/2
				if threshold == next || math.IsInf(threshold, 0) {
					threshold = v
				}
				best = split{feature: f, threshold: threshold, pos: i + 1, improvement: improvement}
				best.order = append(best.order[:0], order...)
				found = true
			}
		}
	}
	return best, found
}

func (b *builder) impurity(counts []float64) float64 {
	total := sumOf(counts)
	if total <= 0 {
		return 0
	}
	var imp float64
	switch b.dt.criterion {
	case "entropy":
		for _, c := range counts {
			if c > 0 {
				p := c / total
				imp -= p * math.Log2(p)
			}
		}
	default:
		imp = 1
		for _, c := range counts {
			p := c / total
			imp -= p * p
		}
	}
	return imp
}

// BalancedClassWeights returns n_samples / (n_classes * count_c) per class index.
func BalancedClassWeights(yIdx []int, nClasses int) []float64 {
	counts := make([]float64, nClasses)
	for _, c := range yIdx {
		counts[c]++
	}
	present := 0
	for _, c := range counts {
		if c > 0 {
			present++
		}
	}
	weights := make([]float64, nClasses)
	for c := range weights {
		if counts[c] > 0 {
			weights[c] = float64(len(yIdx)) / (float64(present) * counts[c])
		}
	}
	return weights
}

func resolveMaxFeatures(spec string, nFeatures int) int {
	var n int
	switch spec {
	case "", "all":
		return nFeatures
	case "sqrt":
		n = int(math.Sqrt(float64(nFeatures)))
	case "log2":
		n = int(math.Log2(float64(nFeatures)))
	default:
		if _, err := fmt.Sscanf(spec, "%d", &n); err != nil {
			return nFeatures
		}
	}
	return min(max(n, 1), nFeatures)
}

func rowAccessor(X mat.Matrix) func(i int) []float64 {
	if d, ok := X.(*mat.Dense); ok {
		return d.RawRowView
	}
	dense := mat.DenseCopyOf(X)
	return dense.RawRowView
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

func sumOf(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}

func argmax(v []float64) int {
	best := 0
	for i := range v {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
