package neural_network

import (
	"math"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

func separable(n int) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(9, 9))
	X := mat.NewDense(n, 3, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		label := float64(i % 2)
		for j := 0; j < 3; j++ {
			X.Set(i, j, (2*label-1)+0.3*rng.NormFloat64())
		}
		y.Set(i, 0, label)
	}
	return X, y
}

func TestMLPLearns(t *testing.T) {
	X, y := separable(200)
	m := NewMLPClassifier(WithLearningRate(0.05), WithEpochs(30), WithRandomState(42))
	if err := m.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	h := m.History()
	if len(h) != 30 {
		t.Fatalf("history length = %d, want 30", len(h))
	}
	if h[len(h)-1].Loss >= h[0].Loss {
		t.Errorf("loss did not decrease: first %v, last %v", h[0].Loss, h[len(h)-1].Loss)
	}
	if math.IsNaN(h[0].ValLoss) {
		t.Error("validation loss should be reported with a validation split")
	}

	pred, err := m.Predict(X)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	correct := 0
	for i := 0; i < 200; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	if correct < 190 {
		t.Errorf("accuracy %d/200 too low", correct)
	}
}

func TestMLPGradientMatchesFiniteDifference(t *testing.T) {
	X, y := separable(8)
	m := NewMLPClassifier(WithHiddenLayers(4, 3), WithRandomState(1))
	m.initLayers(3, newRand(1))
	target := mat.Col(nil, 0, y)
	idx := []int{0, 1, 2, 3, 4, 5, 6, 7}

	const h = 1e-6
	w := m.layers[0].W
	orig := w.At(0, 0)
	w.Set(0, 0, orig+h)
	lp := m.loss(X, target)
	w.Set(0, 0, orig-h)
	lm := m.loss(X, target)
	w.Set(0, 0, orig)
	numeric := (lp - lm) / (2 * h)

	const lr = 1e-3
	m.learningRate = lr
	m.step(X, target, idx)
	analytic := (orig - w.At(0, 0)) / lr

	if math.Abs(numeric-analytic) > 1e-5 {
		t.Errorf("gradient mismatch: numeric %v, analytic %v", numeric, analytic)
	}
}

// handNet computes p = sigmoid(relu(x) - 1).
func handNet() *model.ModelWeights {
	return &model.ModelWeights{
		ModelType: "MLPClassifier",
		Version:   model.WeightsVersion,
		IsFitted:  true,
		Layers: []model.LayerWeights{
			{Weights: [][]float64{{1}}, Biases: []float64{0}, Activation: "relu"},
			{Weights: [][]float64{{1}}, Biases: []float64{-1}, Activation: "sigmoid"},
		},
	}
}

func TestMLPPredictThreshold(t *testing.T) {
	m := NewMLPClassifier()
	if err := m.ImportWeights(handNet()); err != nil {
		t.Fatalf("ImportWeights failed: %v", err)
	}

	// x=1 gives exactly 0.5, which is not above the threshold
	X := mat.NewDense(3, 1, []float64{0, 1, 2})
	pred, err := m.Predict(X)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	want := []float64{0, 0, 1}
	for i, w := range want {
		if pred.At(i, 0) != w {
			t.Errorf("x=%v: got %v, want %v", X.At(i, 0), pred.At(i, 0), w)
		}
	}
}

func TestMLPCheckpointRoundTrip(t *testing.T) {
	X, y := separable(40)
	m := NewMLPClassifier(WithEpochs(2), WithRandomState(3))
	if err := m.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "trained_model.json")
	if err := model.SaveWeights(m, path); err != nil {
		t.Fatalf("SaveWeights failed: %v", err)
	}
	restored := NewMLPClassifier()
	if err := model.LoadWeights(restored, path); err != nil {
		t.Fatalf("LoadWeights failed: %v", err)
	}

	want, _ := m.PredictProba(X)
	got, err := restored.PredictProba(X)
	if err != nil {
		t.Fatalf("restored PredictProba failed: %v", err)
	}
	if !mat.EqualApprox(got, want, 1e-12) {
		t.Error("restored network predicts differently")
	}
}

func TestMLPNoValidationSplit(t *testing.T) {
	X, y := separable(20)
	m := NewMLPClassifier(WithValidationSplit(0), WithEpochs(1), WithRandomState(0))
	if err := m.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if !math.IsNaN(m.History()[0].ValLoss) {
		t.Error("validation loss should be NaN without a validation split")
	}
}

func TestMLPErrors(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{0, 1})

	var ve *errors.ValueError
	if err := NewMLPClassifier().Fit(X, mat.NewDense(2, 1, []float64{0, 2})); !errors.As(err, &ve) {
		t.Errorf("expected ValueError for label 2, got %v", err)
	}

	var vde *errors.ValidationError
	if err := NewMLPClassifier(WithBatchSize(0)).Fit(X, mat.NewDense(2, 1, []float64{0, 1})); !errors.As(err, &vde) {
		t.Errorf("expected ValidationError for batch size 0, got %v", err)
	}

	var nf *errors.NotFittedError
	if _, err := NewMLPClassifier().Predict(X); !errors.As(err, &nf) {
		t.Errorf("expected NotFittedError, got %v", err)
	}
}
