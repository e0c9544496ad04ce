// Package linear_model implements linear classifiers.
package linear_model

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/core/parallel"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

// LogisticRegression implements binary logistic regression solved with L-BFGS.
// Compatible with scikit-learn's LogisticRegression(solver="lbfgs").
type LogisticRegression struct {
	state *model.StateManager // State management (composition)

	// Hyperparameters
	penalty      string  // Regularization: "l2" or "none"
	C            float64 // Inverse regularization strength (1/alpha)
	fitIntercept bool    // Whether to fit intercept
	classWeight  string  // Class weight: "balanced" or "none"
	solver       string  // Only "lbfgs"
	maxIter      int     // Maximum iterations
	tol          float64 // Gradient infinity-norm tolerance
	nJobs        int     // Workers for loss/gradient evaluation
	logger       log.Logger

	// Model parameters
	coef_      []float64 // Coefficients (n_features)
	intercept_ float64   // Intercept term
	classes_   []float64 // The two class labels, ascending
	nIter_     int       // Iterations used by the solver
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      "l2",
		C:            1.0,
		fitIntercept: true,
		classWeight:  "none",
		solver:       "lbfgs",
		maxIter:      100,
		tol:          1e-4,
		nJobs:        1,
		logger:       log.GetLoggerWithName("LogisticRegression"),
	}

	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithLRPenalty sets the regularization type
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.penalty = penalty
	}
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.C = c
	}
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.fitIntercept = fit
	}
}

// WithLRSolver sets the optimization solver
func WithLRSolver(solver string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.solver = solver
	}
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithLRTol sets the tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}

// WithLRClassWeight sets the class weighting ("balanced" or "none")
func WithLRClassWeight(classWeight string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.classWeight = classWeight
	}
}

// WithLRNJobs sets the number of workers evaluating the loss and gradient
func WithLRNJobs(n int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.nJobs = n
	}
}

// WithLRLogger sets the logger
func WithLRLogger(logger log.Logger) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		if logger != nil {
			lr.logger = logger
		}
	}
}

func (lr *LogisticRegression) validateParams() error {
	if lr.penalty != "l2" && lr.penalty != "none" {
		return errors.NewValidationError("penalty", "must be 'l2' or 'none'", lr.penalty)
	}
	if lr.C <= 0 {
		return errors.NewValidationError("C", "must be positive", lr.C)
	}
	if lr.solver != "lbfgs" {
		return errors.NewValidationError("solver", "only 'lbfgs' is supported", lr.solver)
	}
	if lr.maxIter < 1 {
		return errors.NewValidationError("max_iter", "must be >= 1", lr.maxIter)
	}
	if lr.tol <= 0 {
		return errors.NewValidationError("tol", "must be positive", lr.tol)
	}
	if lr.classWeight != "none" && lr.classWeight != "balanced" {
		return errors.NewValidationError("class_weight", "must be 'balanced' or 'none'", lr.classWeight)
	}
	return nil
}

// Fit minimizes 0.5*||w||^2 + C * sum_i s_i * logloss_i over the coefficients.
// The intercept is not penalized.
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	if err := lr.validateParams(); err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("LogisticRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows, _ := y.Dims(); yRows != nSamples {
		return errors.NewDimensionError("LogisticRegression.Fit", nSamples, yRows, 0)
	}
	start := time.Now()

	labels := mat.Col(nil, 0, y)
	classes := uniqueSorted(labels)
	if len(classes) != 2 {
		return errors.NewValueError("LogisticRegression.Fit",
			fmt.Sprintf("binary targets required, got %d classes", len(classes)))
	}
	lr.classes_ = classes

	target := make([]float64, nSamples)
	for i, v := range labels {
		if v == classes[1] {
			target[i] = 1
		}
	}
	weights := sampleWeights(target, lr.classWeight)

	Xd, ok := X.(*mat.Dense)
	if !ok {
		Xd = mat.DenseCopyOf(X)
	}
	obj := &logisticObjective{
		X:            Xd,
		y:            target,
		w:            weights,
		C:            lr.C,
		penalize:     lr.penalty == "l2",
		fitIntercept: lr.fitIntercept,
		workers:      lr.nJobs,
	}

	nParams := nFeatures
	if lr.fitIntercept {
		nParams++
	}
	problem := optimize.Problem{
		Func: obj.Func,
		Grad: obj.Grad,
	}
	settings := &optimize.Settings{
		GradientThreshold: lr.tol,
		MajorIterations:   lr.maxIter,
	}

	var result *optimize.Result
	err := errors.SafeExecute("LogisticRegression.Fit", func() error {
		var err error
		result, err = optimize.Minimize(problem, make([]float64, nParams), settings, &optimize.LBFGS{})
		return err
	})
	if err != nil {
		if result == nil {
			return errors.NewModelError("LogisticRegression.Fit", "optimization failed", err)
		}
		// line search stalls near the optimum are reported but not fatal
		errors.Warn(errors.NewConvergenceWarning("lbfgs", result.MajorIterations, err.Error()))
	}
	if err := errors.CheckNumericalStability("LogisticRegression.Fit", result.X, result.MajorIterations); err != nil {
		return err
	}
	if result.Status == optimize.IterationLimit {
		errors.Warn(errors.NewConvergenceWarning("lbfgs", result.MajorIterations,
			"increase the number of iterations (max_iter) or scale the data"))
	}

	lr.coef_ = append([]float64(nil), result.X[:nFeatures]...)
	lr.intercept_ = 0
	if lr.fitIntercept {
		lr.intercept_ = result.X[nFeatures]
	}
	lr.nIter_ = result.MajorIterations

	lr.state.SetDimensions(nFeatures, nSamples)
	lr.state.SetFitted()

	lr.logger.Debug("logistic regression fitted",
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.IterationKey, lr.nIter_,
		log.LossKey, result.F,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// DecisionFunction returns X·w + b as an (n_samples, 1) matrix.
func (lr *LogisticRegression) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.RequireFitted("LogisticRegression", "DecisionFunction"); err != nil {
		return nil, err
	}
	nSamples, nFeatures := X.Dims()
	if err := lr.state.CheckFeatures("LogisticRegression.DecisionFunction", nFeatures); err != nil {
		return nil, err
	}
	out := mat.NewVecDense(nSamples, nil)
	out.MulVec(X, mat.NewVecDense(nFeatures, lr.coef_))
	for i := 0; i < nSamples; i++ {
		out.SetVec(i, out.AtVec(i)+lr.intercept_)
	}
	return mat.NewDense(nSamples, 1, out.RawVector().Data), nil
}

// PredictProba returns [P(classes_[0]), P(classes_[1])] per sample.
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.RequireFitted("LogisticRegression", "PredictProba"); err != nil {
		return nil, err
	}
	scores, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	n, _ := scores.Dims()
	out := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		p := sigmoid(scores.At(i, 0))
		out.Set(i, 0, 1-p)
		out.Set(i, 1, p)
	}
	return out, nil
}

// Predict returns the class with the larger probability. Ties go to the first class.
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.RequireFitted("LogisticRegression", "Predict"); err != nil {
		return nil, err
	}
	scores, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	n, _ := scores.Dims()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		label := lr.classes_[0]
		if scores.At(i, 0) > 0 {
			label = lr.classes_[1]
		}
		out.Set(i, 0, label)
	}
	return out, nil
}

// Score returns the mean accuracy on X and y. It returns 0 when prediction fails.
func (lr *LogisticRegression) Score(X, y mat.Matrix) float64 {
	pred, err := lr.Predict(X)
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

// Coef returns a copy of the fitted coefficients.
func (lr *LogisticRegression) Coef() []float64 {
	return append([]float64(nil), lr.coef_...)
}

// Intercept returns the fitted intercept.
func (lr *LogisticRegression) Intercept() float64 {
	return lr.intercept_
}

// NIter returns the number of solver iterations of the last Fit.
func (lr *LogisticRegression) NIter() int {
	return lr.nIter_
}

// GetParams returns the hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"class_weight":  lr.classWeight,
		"solver":        lr.solver,
		"max_iter":      lr.maxIter,
		"tol":           lr.tol,
		"n_jobs":        lr.nJobs,
	}
}

// SetParams sets the hyperparameters
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "penalty":
			lr.penalty, ok = value.(string)
		case "C":
			lr.C, ok = value.(float64)
		case "fit_intercept":
			lr.fitIntercept, ok = value.(bool)
		case "class_weight":
			lr.classWeight, ok = value.(string)
		case "solver":
			lr.solver, ok = value.(string)
		case "max_iter":
			lr.maxIter, ok = value.(int)
		case "tol":
			lr.tol, ok = value.(float64)
		case "n_jobs":
			lr.nJobs, ok = value.(int)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, fmt.Sprintf("unexpected type %T", value), value)
		}
	}
	return lr.validateParams()
}

type logisticSnapshot struct {
	Params    map[string]interface{}
	Coef      []float64
	Intercept float64
	Classes   []float64
	NIter     int
	State     model.ModelState
}

// GobEncode implements gob.GobEncoder.
func (lr *LogisticRegression) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(logisticSnapshot{
		Params:    lr.GetParams(),
		Coef:      lr.coef_,
		Intercept: lr.intercept_,
		Classes:   lr.classes_,
		NIter:     lr.nIter_,
		State:     lr.state.GetState(),
	})
	return buf.Bytes(), err
}

// GobDecode implements gob.GobDecoder.
func (lr *LogisticRegression) GobDecode(data []byte) error {
	var s logisticSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return errors.Wrap(err, "decode logistic regression")
	}
	*lr = *NewLogisticRegression()
	if err := lr.SetParams(s.Params); err != nil {
		return err
	}
	lr.coef_ = s.Coef
	lr.intercept_ = s.Intercept
	lr.classes_ = s.Classes
	lr.nIter_ = s.NIter
	lr.state.SetState(s.State)
	return nil
}

// logisticObjective evaluates the penalized weighted log-loss and its gradient.
// Both are computed in one pass over the samples and cached per location.
type logisticObjective struct {
	X            *mat.Dense
	y, w         []float64
	C            float64
	penalize     bool
	fitIntercept bool
	workers      int

	lastX    []float64
	lastF    float64
	lastGrad []float64
}

type partialSum struct {
	start int
	loss  float64
	grad  []float64
}

func (o *logisticObjective) evaluate(params []float64) {
	if o.lastX != nil && floats.Equal(o.lastX, params) {
		return
	}
	nSamples, nFeatures := o.X.Dims()
	coef := params[:nFeatures]
	var intercept float64
	if o.fitIntercept {
		intercept = params[nFeatures]
	}

	var (
		mu       sync.Mutex
		partials []partialSum
	)
	parallel.For(nSamples, o.workers, 512, func(start, end int) {
		p := partialSum{start: start, grad: make([]float64, len(params))}
		for i := start; i < end; i++ {
			row := o.X.RawRowView(i)
			z := floats.Dot(row, coef) + intercept
			if o.y[i] == 1 {
				p.loss -= o.w[i] * errors.LogSigmoid(z)
			} else {
				p.loss -= o.w[i] * errors.LogSigmoid(-z)
			}
			residual := o.w[i] * (sigmoid(z) - o.y[i])
			floats.AddScaled(p.grad[:nFeatures], residual, row)
			if o.fitIntercept {
				p.grad[nFeatures] += residual
			}
		}
		mu.Lock()
		partials = append(partials, p)
		mu.Unlock()
	})
	// summation order must not depend on goroutine scheduling
	sort.Slice(partials, func(a, b int) bool { return partials[a].start < partials[b].start })

	loss := 0.0
	grad := make([]float64, len(params))
	for _, p := range partials {
		loss += p.loss
		floats.Add(grad, p.grad)
	}
	floats.Scale(o.C, grad)
	loss *= o.C
	if o.penalize {
		loss += 0.5 * floats.Dot(coef, coef)
		floats.Add(grad[:nFeatures], coef)
	}

	o.lastX = append(o.lastX[:0], params...)
	o.lastF = loss
	o.lastGrad = grad
}

// Func implements optimize.Problem.Func.
func (o *logisticObjective) Func(params []float64) float64 {
	o.evaluate(params)
	return o.lastF
}

// Grad implements optimize.Problem.Grad.
func (o *logisticObjective) Grad(grad, params []float64) {
	o.evaluate(params)
	copy(grad, o.lastGrad)
}

// sampleWeights returns per-sample weights for 0/1 targets.
// "balanced" gives n_samples / (2 * count_c).
func sampleWeights(target []float64, classWeight string) []float64 {
	w := make([]float64, len(target))
	if classWeight != "balanced" {
		for i := range w {
			w[i] = 1
		}
		return w
	}
	var pos float64
	for _, v := range target {
		pos += v
	}
	neg := float64(len(target)) - pos
	n := float64(len(target))
	for i, v := range target {
		if v == 1 {
			w[i] = n / (2 * pos)
		} else {
			w[i] = n / (2 * neg)
		}
	}
	return w
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
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
