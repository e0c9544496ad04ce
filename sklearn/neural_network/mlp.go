// Package neural_network implements a small feed-forward binary classifier
// trained with mini-batch SGD.
package neural_network

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

// lossEpsilon clips predicted probabilities when reporting the loss.
const lossEpsilon = 1e-7

// layer is a dense layer y = act(xW + b) with W of shape (in, out).
type layer struct {
	W          *mat.Dense
	b          []float64
	activation string
}

// MLPClassifier is a dense network with ReLU hidden layers and a single
// sigmoid output, minimizing binary cross-entropy.
// Labels must be 0 and 1.
type MLPClassifier struct {
	state *model.StateManager

	hiddenLayers    []int
	learningRate    float64
	batchSize       int
	epochs          int
	validationSplit float64
	shuffle         bool
	randomState     int64
	logger          log.Logger

	layers  []layer
	history []EpochStats
}

// EpochStats records the mean training loss and, when a validation split is
// used, the validation loss of one epoch.
type EpochStats struct {
	Loss    float64
	ValLoss float64
}

// MLPOption is a functional option for MLPClassifier
type MLPOption func(*MLPClassifier)

// NewMLPClassifier creates a 25-15-1 network trained for 10 epochs with
// learning rate 1e-4, batch size 10 and a 0.33 validation split.
func NewMLPClassifier(opts ...MLPOption) *MLPClassifier {
	m := &MLPClassifier{
		state:           model.NewStateManager(),
		hiddenLayers:    []int{25, 15},
		learningRate:    1e-4,
		batchSize:       10,
		epochs:          10,
		validationSplit: 0.33,
		shuffle:         true,
		randomState:     -1,
		logger:          log.GetLoggerWithName("MLPClassifier"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithHiddenLayers sets the widths of the ReLU hidden layers
func WithHiddenLayers(sizes ...int) MLPOption {
	return func(m *MLPClassifier) { m.hiddenLayers = append([]int(nil), sizes...) }
}

// WithLearningRate sets the SGD step size
func WithLearningRate(lr float64) MLPOption {
	return func(m *MLPClassifier) { m.learningRate = lr }
}

// WithBatchSize sets the mini-batch size
func WithBatchSize(n int) MLPOption {
	return func(m *MLPClassifier) { m.batchSize = n }
}

// WithEpochs sets the number of passes over the training data
func WithEpochs(n int) MLPOption {
	return func(m *MLPClassifier) { m.epochs = n }
}

// WithValidationSplit holds out the trailing fraction of the samples for
// validation loss reporting. 0 disables it.
func WithValidationSplit(f float64) MLPOption {
	return func(m *MLPClassifier) { m.validationSplit = f }
}

// WithShuffle toggles per-epoch shuffling of the training samples
func WithShuffle(shuffle bool) MLPOption {
	return func(m *MLPClassifier) { m.shuffle = shuffle }
}

// WithRandomState sets the seed for weight initialization and shuffling
func WithRandomState(seed int64) MLPOption {
	return func(m *MLPClassifier) { m.randomState = seed }
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) MLPOption {
	return func(m *MLPClassifier) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func (m *MLPClassifier) validateParams() error {
	if m.learningRate <= 0 {
		return errors.NewValidationError("learning_rate", "must be positive", m.learningRate)
	}
	if m.batchSize < 1 {
		return errors.NewValidationError("batch_size", "must be >= 1", m.batchSize)
	}
	if m.epochs < 1 {
		return errors.NewValidationError("epochs", "must be >= 1", m.epochs)
	}
	if m.validationSplit < 0 || m.validationSplit >= 1 {
		return errors.NewValidationError("validation_split", "must be in [0, 1)", m.validationSplit)
	}
	for _, h := range m.hiddenLayers {
		if h < 1 {
			return errors.NewValidationError("hidden_layers", "widths must be >= 1", m.hiddenLayers)
		}
	}
	return nil
}

// Fit initializes the weights (Glorot uniform, zero biases) and runs SGD.
func (m *MLPClassifier) Fit(X, y mat.Matrix) error {
	if err := m.validateParams(); err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("MLPClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows, _ := y.Dims(); yRows != nSamples {
		return errors.NewDimensionError("MLPClassifier.Fit", nSamples, yRows, 0)
	}
	target := mat.Col(nil, 0, y)
	for i, v := range target {
		if v != 0 && v != 1 {
			return errors.NewValueError("MLPClassifier.Fit", fmt.Sprintf("labels must be 0 or 1, got %v at row %d", v, i))
		}
	}
	start := time.Now()

	rng := newRand(m.randomState)
	m.initLayers(nFeatures, rng)

	Xd := mat.DenseCopyOf(X)
	nTrain := int(math.Floor(float64(nSamples) * (1 - m.validationSplit)))
	if nTrain < 1 {
		return errors.NewValueError("MLPClassifier.Fit",
			fmt.Sprintf("validation_split=%v leaves no training samples out of %d", m.validationSplit, nSamples))
	}

	order := make([]int, nTrain)
	for i := range order {
		order[i] = i
	}
	m.history = m.history[:0]
	for epoch := 0; epoch < m.epochs; epoch++ {
		if m.shuffle {
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}
		var total float64
		for b := 0; b < nTrain; b += m.batchSize {
			idx := order[b:min(b+m.batchSize, nTrain)]
			loss := m.step(Xd, target, idx)
			total += loss * float64(len(idx))
		}
		if err := errors.CheckScalar("MLPClassifier.Fit", total, epoch); err != nil {
			return err
		}

		stats := EpochStats{Loss: total / float64(nTrain), ValLoss: math.NaN()}
		if nTrain < nSamples {
			stats.ValLoss = m.loss(Xd.Slice(nTrain, nSamples, 0, nFeatures), target[nTrain:])
		}
		m.history = append(m.history, stats)
		m.logger.Debug("epoch finished",
			log.EpochKey, epoch+1,
			log.LossKey, stats.Loss,
			"metrics.val_loss", stats.ValLoss,
		)
	}

	m.state.SetDimensions(nFeatures, nSamples)
	m.state.SetFitted()
	m.logger.Debug("mlp fitted",
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func (m *MLPClassifier) initLayers(nFeatures int, rng *rand.Rand) {
	sizes := append([]int{nFeatures}, m.hiddenLayers...)
	sizes = append(sizes, 1)
	m.layers = make([]layer, len(sizes)-1)
	for l := range m.layers {
		in, out := sizes[l], sizes[l+1]
		limit := math.Sqrt(6 / float64(in+out))
		data := make([]float64, in*out)
		for k := range data {
			data[k] = (2*rng.Float64() - 1) * limit
		}
		act := "relu"
		if l == len(m.layers)-1 {
			act = "sigmoid"
		}
		m.layers[l] = layer{W: mat.NewDense(in, out, data), b: make([]float64, out), activation: act}
	}
}

// forward returns the pre-activations and activations of every layer.
// acts[0] is the input.
func (m *MLPClassifier) forward(X mat.Matrix) (pre, acts []*mat.Dense) {
	acts = []*mat.Dense{mat.DenseCopyOf(X)}
	for _, ly := range m.layers {
		var z mat.Dense
		z.Mul(acts[len(acts)-1], ly.W)
		r, c := z.Dims()
		a := mat.NewDense(r, c, nil)
		for i := 0; i < r; i++ {
			zr, ar := z.RawRowView(i), a.RawRowView(i)
			for j := 0; j < c; j++ {
				zr[j] += ly.b[j]
				ar[j] = activate(ly.activation, zr[j])
			}
		}
		pre = append(pre, &z)
		acts = append(acts, a)
	}
	return pre, acts
}

// step runs one SGD update on the rows idx and returns the batch loss.
func (m *MLPClassifier) step(X *mat.Dense, target []float64, idx []int) float64 {
	_, nFeatures := X.Dims()
	batch := mat.NewDense(len(idx), nFeatures, nil)
	yb := make([]float64, len(idx))
	for k, i := range idx {
		batch.SetRow(k, X.RawRowView(i))
		yb[k] = target[i]
	}

	pre, acts := m.forward(batch)
	out := acts[len(acts)-1]
	bs := float64(len(idx))

	// sigmoid + cross-entropy: dL/dz = (p - y) / batch
	delta := mat.NewDense(len(idx), 1, nil)
	var loss float64
	for k := range yb {
		p := out.At(k, 0)
		loss += bce(p, yb[k])
		delta.Set(k, 0, (p-yb[k])/bs)
	}

	for l := len(m.layers) - 1; l >= 0; l-- {
		ly := &m.layers[l]
		var gradW mat.Dense
		gradW.Mul(acts[l].T(), delta)
		_, nOut := delta.Dims()
		gradB := make([]float64, nOut)
		for k := 0; k < len(idx); k++ {
			for j, v := range delta.RawRowView(k) {
				gradB[j] += v
			}
		}

		if l > 0 {
			var prev mat.Dense
			prev.Mul(delta, ly.W.T())
			r, c := prev.Dims()
			for i := 0; i < r; i++ {
				zr, pr := pre[l-1].RawRowView(i), prev.RawRowView(i)
				for j := 0; j < c; j++ {
					if zr[j] <= 0 {
						pr[j] = 0
					}
				}
			}
			delta = &prev
		}

		gradW.Scale(m.learningRate, &gradW)
		ly.W.Sub(ly.W, &gradW)
		for j := range ly.b {
			ly.b[j] -= m.learningRate * gradB[j]
		}
	}
	return loss / bs
}

func (m *MLPClassifier) loss(X mat.Matrix, target []float64) float64 {
	_, acts := m.forward(X)
	out := acts[len(acts)-1]
	var total float64
	for i, y := range target {
		total += bce(out.At(i, 0), y)
	}
	return total / float64(len(target))
}

// PredictProba returns [1-p, p] where p is the sigmoid output.
func (m *MLPClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := m.state.RequireFitted("MLPClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	n, nFeatures := X.Dims()
	if err := m.state.CheckFeatures("MLPClassifier.PredictProba", nFeatures); err != nil {
		return nil, err
	}
	_, acts := m.forward(X)
	p := acts[len(acts)-1]
	out := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		out.Set(i, 0, 1-p.At(i, 0))
		out.Set(i, 1, p.At(i, 0))
	}
	return out, nil
}

// Predict returns 1 where the output probability exceeds 0.5, otherwise 0.
func (m *MLPClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	n, _ := proba.Dims()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		if proba.At(i, 1) > 0.5 {
			out.Set(i, 0, 1)
		}
	}
	return out, nil
}

// History returns the per-epoch losses of the last Fit.
func (m *MLPClassifier) History() []EpochStats {
	return append([]EpochStats(nil), m.history...)
}

// GetParams returns the hyperparameters
func (m *MLPClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"hidden_layers":    append([]int(nil), m.hiddenLayers...),
		"learning_rate":    m.learningRate,
		"batch_size":       m.batchSize,
		"epochs":           m.epochs,
		"validation_split": m.validationSplit,
		"shuffle":          m.shuffle,
		"random_state":     m.randomState,
	}
}

// ExportWeights implements model.Checkpointer.
func (m *MLPClassifier) ExportWeights() (*model.ModelWeights, error) {
	if err := m.state.RequireFitted("MLPClassifier", "ExportWeights"); err != nil {
		return nil, err
	}
	w := &model.ModelWeights{
		ModelType:       "MLPClassifier",
		Version:         model.WeightsVersion,
		Hyperparameters: m.GetParams(),
		IsFitted:        true,
	}
	for _, ly := range m.layers {
		r, _ := ly.W.Dims()
		rows := make([][]float64, r)
		for i := range rows {
			rows[i] = append([]float64(nil), ly.W.RawRowView(i)...)
		}
		w.Layers = append(w.Layers, model.LayerWeights{
			Weights:    rows,
			Biases:     append([]float64(nil), ly.b...),
			Activation: ly.activation,
		})
	}
	return w, nil
}

// ImportWeights implements model.Checkpointer.
func (m *MLPClassifier) ImportWeights(w *model.ModelWeights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if w.ModelType != "MLPClassifier" {
		return errors.NewValidationError("model_type", "expected MLPClassifier", w.ModelType)
	}
	if len(w.Layers) == 0 || len(w.Layers[len(w.Layers)-1].Biases) != 1 {
		return errors.NewValidationError("layers", "output layer must have one unit", len(w.Layers))
	}
	m.layers = make([]layer, len(w.Layers))
	hidden := make([]int, 0, len(w.Layers)-1)
	for l, lw := range w.Layers {
		in, out := len(lw.Weights), len(lw.Biases)
		W := mat.NewDense(in, out, nil)
		for i, row := range lw.Weights {
			W.SetRow(i, row)
		}
		m.layers[l] = layer{W: W, b: append([]float64(nil), lw.Biases...), activation: lw.Activation}
		if l < len(w.Layers)-1 {
			hidden = append(hidden, out)
		}
	}
	m.hiddenLayers = hidden
	if v, ok := w.Hyperparameters["learning_rate"].(float64); ok {
		m.learningRate = v
	}

	if w.IsFitted {
		m.state.SetDimensions(len(w.Layers[0].Weights), 0)
		m.state.SetFitted()
	}
	return nil
}

func activate(name string, z float64) float64 {
	if name == "sigmoid" {
		if z >= 0 {
			return 1 / (1 + math.Exp(-z))
		}
		e := math.Exp(z)
		return e / (1 + e)
	}
	return math.Max(0, z)
}

func bce(p, y float64) float64 {
	p = errors.ClipValue(p, lossEpsilon, 1-lossEpsilon)
	return -(y*math.Log(p) + (1-y)*math.Log(1-p))
}

func newRand(seed int64) *rand.Rand {
	if seed < 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
}
