// Package svm implements a kernel support vector classifier.
package svm

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

// defaultMaxIter bounds the solver when max_iter is unlimited.
const defaultMaxIter = 10_000_000

// SVC is a binary C-support vector classifier with an RBF kernel.
// Probabilities come from a Platt sigmoid fit to the training decision values.
// Compatible with scikit-learn's SVC(kernel="rbf").
type SVC struct {
	state *model.StateManager

	C           float64
	gamma       float64 // 0 selects "scale"
	classWeight string
	tol         float64
	maxIter     int // -1 means unlimited
	cacheMB     int
	logger      log.Logger

	// Fitted attributes
	supportVectors *mat.Dense
	svNorms        []float64
	dualCoef       []float64 // alpha_i * y_i
	support        []int
	rho            float64
	gamma_         float64
	probA, probB   float64
	classes_       []float64
	nIter_         int
}

// SVCOption is a functional option for SVC
type SVCOption func(*SVC)

// NewSVC creates an SVC with C=1 and gamma="scale".
func NewSVC(opts ...SVCOption) *SVC {
	s := &SVC{
		state:   model.NewStateManager(),
		C:       1.0,
		tol:     1e-3,
		maxIter: -1,
		cacheMB: 200,
		logger:  log.GetLoggerWithName("SVC"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithC sets the penalty parameter
func WithC(c float64) SVCOption {
	return func(s *SVC) { s.C = c }
}

// WithGamma sets a fixed RBF coefficient. 0 selects "scale".
func WithGamma(gamma float64) SVCOption {
	return func(s *SVC) { s.gamma = gamma }
}

// WithClassWeight sets the class weighting ("balanced" or "")
func WithClassWeight(classWeight string) SVCOption {
	return func(s *SVC) { s.classWeight = classWeight }
}

// WithTol sets the stopping tolerance on the maximal violating pair
func WithTol(tol float64) SVCOption {
	return func(s *SVC) { s.tol = tol }
}

// WithMaxIter limits solver iterations. -1 means unlimited.
func WithMaxIter(n int) SVCOption {
	return func(s *SVC) { s.maxIter = n }
}

// WithCacheSize sets the kernel cache size in megabytes
func WithCacheSize(mb int) SVCOption {
	return func(s *SVC) { s.cacheMB = mb }
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) SVCOption {
	return func(s *SVC) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func (s *SVC) validateParams() error {
	if s.C <= 0 {
		return errors.NewValidationError("C", "must be positive", s.C)
	}
	if s.gamma < 0 {
		return errors.NewValidationError("gamma", "must be non-negative", s.gamma)
	}
	if s.tol <= 0 {
		return errors.NewValidationError("tol", "must be positive", s.tol)
	}
	if s.classWeight != "" && s.classWeight != "balanced" {
		return errors.NewValidationError("class_weight", "must be 'balanced' or empty", s.classWeight)
	}
	return nil
}

// Fit solves the dual problem and calibrates the probability sigmoid.
func (s *SVC) Fit(X, y mat.Matrix) error {
	if err := s.validateParams(); err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("SVC.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows, _ := y.Dims(); yRows != nSamples {
		return errors.NewDimensionError("SVC.Fit", nSamples, yRows, 0)
	}
	start := time.Now()

	labels := mat.Col(nil, 0, y)
	classes := uniqueSorted(labels)
	if len(classes) != 2 {
		return errors.NewValueError("SVC.Fit", fmt.Sprintf("binary targets required, got %d classes", len(classes)))
	}
	s.classes_ = classes

	Xd := mat.DenseCopyOf(X)
	s.gamma_ = s.gamma
	if s.gamma_ == 0 {
		s.gamma_ = scaleGamma(Xd)
	}

	signs := make([]float64, nSamples)
	var nPos float64
	for i, v := range labels {
		signs[i] = -1
		if v == classes[1] {
			signs[i] = 1
			nPos++
		}
	}
	costs := make([]float64, nSamples)
	for i := range costs {
		costs[i] = s.C
		if s.classWeight == "balanced" {
			count := float64(nSamples) - nPos
			if signs[i] > 0 {
				count = nPos
			}
			costs[i] *= float64(nSamples) / (2 * count)
		}
	}

	kernel := newRBFKernel(Xd, s.gamma_)
	solver := &smoSolver{
		cache: newRowCache(kernel, s.cacheMB<<20),
		y:     signs,
		C:     costs,
		eps:   s.tol,
	}
	maxIter := s.maxIter
	if maxIter < 0 {
		maxIter = defaultMaxIter
	}
	iters, converged := solver.solve(maxIter)
	if !converged {
		errors.Warn(errors.NewConvergenceWarning("SVC", iters, "solver terminated early (max_iter reached)"))
	}
	s.nIter_ = iters
	s.rho = solver.rho()

	s.support = s.support[:0]
	s.dualCoef = s.dualCoef[:0]
	for i, a := range solver.alpha {
		if a > 0 {
			s.support = append(s.support, i)
			s.dualCoef = append(s.dualCoef, a*signs[i])
		}
	}
	if len(s.support) == 0 {
		return errors.NewModelError("SVC.Fit", "no support vectors", errors.ErrSingularMatrix)
	}
	s.supportVectors = mat.NewDense(len(s.support), nFeatures, nil)
	for k, i := range s.support {
		s.supportVectors.SetRow(k, Xd.RawRowView(i))
	}
	s.svNorms = make([]float64, len(s.support))
	for k, i := range s.support {
		s.svNorms[k] = kernel.norms[i]
	}

	s.state.SetDimensions(nFeatures, nSamples)
	s.state.SetFitted()

	dec := s.decisionValues(Xd)
	positive := make([]bool, nSamples)
	for i := range positive {
		positive[i] = signs[i] > 0
	}
	s.probA, s.probB = plattFit(dec, positive)

	s.logger.Debug("svc fitted",
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.IterationKey, iters,
		"svm.n_support", len(s.support),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func (s *SVC) decisionValues(X mat.Matrix) []float64 {
	n, _ := X.Dims()
	out := make([]float64, n)
	row := make([]float64, s.supportVectors.RawMatrix().Cols)
	for i := 0; i < n; i++ {
		mat.Row(row, i, X)
		norm := floats.Dot(row, row)
		var f float64
		for k, c := range s.dualCoef {
			f += c * rbf(s.supportVectors.RawRowView(k), s.svNorms[k], row, norm, s.gamma_)
		}
		out[i] = f - s.rho
	}
	return out
}

// DecisionFunction returns signed distances; positive favours classes_[1].
func (s *SVC) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.RequireFitted("SVC", "DecisionFunction"); err != nil {
		return nil, err
	}
	n, nFeatures := X.Dims()
	if err := s.state.CheckFeatures("SVC.DecisionFunction", nFeatures); err != nil {
		return nil, err
	}
	return mat.NewDense(n, 1, s.decisionValues(X)), nil
}

// Predict labels each sample by the sign of its decision value.
func (s *SVC) Predict(X mat.Matrix) (mat.Matrix, error) {
	dec, err := s.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	n, _ := dec.Dims()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		label := s.classes_[0]
		if dec.At(i, 0) > 0 {
			label = s.classes_[1]
		}
		out.Set(i, 0, label)
	}
	return out, nil
}

// PredictProba returns [P(classes_[0]), P(classes_[1])] per sample.
func (s *SVC) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	dec, err := s.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	n, _ := dec.Dims()
	out := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		p := plattProba(dec.At(i, 0), s.probA, s.probB)
		out.Set(i, 0, 1-p)
		out.Set(i, 1, p)
	}
	return out, nil
}

// NSupport returns the number of support vectors.
func (s *SVC) NSupport() int {
	return len(s.dualCoef)
}

// Gamma returns the kernel coefficient used by the last Fit.
func (s *SVC) Gamma() float64 {
	return s.gamma_
}

// GetParams returns the hyperparameters
func (s *SVC) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"C":            s.C,
		"gamma":        s.gamma,
		"class_weight": s.classWeight,
		"tol":          s.tol,
		"max_iter":     s.maxIter,
		"cache_size":   s.cacheMB,
	}
}

type svcSnapshot struct {
	Params         map[string]interface{}
	SupportVectors []float64
	NSupport       int
	NFeatures      int
	DualCoef       []float64
	Rho            float64
	Gamma          float64
	ProbA, ProbB   float64
	Classes        []float64
	State          model.ModelState
}

// GobEncode implements gob.GobEncoder.
func (s *SVC) GobEncode() ([]byte, error) {
	snap := svcSnapshot{
		Params:   s.GetParams(),
		DualCoef: s.dualCoef,
		Rho:      s.rho,
		Gamma:    s.gamma_,
		ProbA:    s.probA,
		ProbB:    s.probB,
		Classes:  s.classes_,
		State:    s.state.GetState(),
	}
	if s.supportVectors != nil {
		snap.NSupport, snap.NFeatures = s.supportVectors.Dims()
		snap.SupportVectors = mat.DenseCopyOf(s.supportVectors).RawMatrix().Data
	}
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(snap)
	return buf.Bytes(), err
}

// GobDecode implements gob.GobDecoder.
func (s *SVC) GobDecode(data []byte) error {
	var snap svcSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return errors.Wrap(err, "decode svc")
	}
	*s = *NewSVC()
	if v, ok := snap.Params["C"].(float64); ok {
		s.C = v
	}
	if v, ok := snap.Params["gamma"].(float64); ok {
		s.gamma = v
	}
	if v, ok := snap.Params["class_weight"].(string); ok {
		s.classWeight = v
	}
	s.dualCoef = snap.DualCoef
	s.rho = snap.Rho
	s.gamma_ = snap.Gamma
	s.probA, s.probB = snap.ProbA, snap.ProbB
	s.classes_ = snap.Classes
	if snap.NSupport > 0 {
		s.supportVectors = mat.NewDense(snap.NSupport, snap.NFeatures, snap.SupportVectors)
		s.svNorms = make([]float64, snap.NSupport)
		for k := range s.svNorms {
			row := s.supportVectors.RawRowView(k)
			s.svNorms[k] = floats.Dot(row, row)
		}
	}
	s.state.SetState(snap.State)
	return nil
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
