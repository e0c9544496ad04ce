package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

func TestStateManagerRequireFitted(t *testing.T) {
	s := NewStateManager()

	err := s.RequireFitted("PCA", "Transform")
	var nfe *errors.NotFittedError
	if !errors.As(err, &nfe) {
		t.Fatalf("expected NotFittedError, got %v", err)
	}
	if nfe.ModelName != "PCA" || nfe.Method != "Transform" {
		t.Errorf("unexpected error fields: %+v", nfe)
	}

	s.SetDimensions(4, 10)
	s.SetFitted()
	if err := s.RequireFitted("PCA", "Transform"); err != nil {
		t.Errorf("fitted model returned %v", err)
	}
	if err := s.CheckFeatures("PCA.Transform", 3); err == nil {
		t.Error("expected dimension error for 3 features")
	}

	s.Reset()
	if s.IsFitted() {
		t.Error("Reset should clear the fitted flag")
	}
}

type gobbable struct {
	Coef  []float64
	Label string
}

func TestSaveLoadModelRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trained_model.gob")
	in := gobbable{Coef: []float64{1.5, -2}, Label: "LR"}
	if err := SaveModel(&in, path); err != nil {
		t.Fatal(err)
	}
	var out gobbable
	if err := LoadModel(&out, path); err != nil {
		t.Fatal(err)
	}
	if out.Label != "LR" || len(out.Coef) != 2 || out.Coef[1] != -2 {
		t.Errorf("round trip mismatch: %+v", out)
	}

	// 書き込みに失敗しても既存ファイルと一時ファイルが残らないこと
	if err := SaveModel(func() {}, path); err == nil {
		t.Fatal("expected encode error for a func value")
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries after failed save, want 1", len(entries))
	}
	if err := LoadModel(&out, path); err != nil {
		t.Errorf("previous model should still load: %v", err)
	}
}

func TestLoadModelMissingFile(t *testing.T) {
	var out gobbable
	err := LoadModel(&out, filepath.Join(t.TempDir(), "absent.gob"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

type fakeNet struct {
	w *ModelWeights
}

func (f *fakeNet) ExportWeights() (*ModelWeights, error) { return f.w, nil }
func (f *fakeNet) ImportWeights(w *ModelWeights) error {
	f.w = w
	return nil
}

func TestWeightsCheckpoint(t *testing.T) {
	src := &fakeNet{w: &ModelWeights{
		ModelType: "MLPClassifier",
		Version:   WeightsVersion,
		IsFitted:  true,
		Layers: []LayerWeights{
			{Weights: [][]float64{{1, 2}, {3, 4}, {5, 6}}, Biases: []float64{0, 1}, Activation: "relu"},
			{Weights: [][]float64{{1}, {2}}, Biases: []float64{0.5}, Activation: "sigmoid"},
		},
	}}

	path := filepath.Join(t.TempDir(), "trained_model.json")
	if err := SaveWeights(src, path); err != nil {
		t.Fatal(err)
	}

	dst := &fakeNet{}
	if err := LoadWeights(dst, path); err != nil {
		t.Fatal(err)
	}
	if len(dst.w.Layers) != 2 || dst.w.Layers[1].Biases[0] != 0.5 {
		t.Errorf("checkpoint mismatch: %+v", dst.w)
	}
}

func TestWeightsValidateShape(t *testing.T) {
	w := &ModelWeights{
		ModelType: "MLPClassifier",
		Version:   WeightsVersion,
		IsFitted:  true,
		Layers: []LayerWeights{
			{Weights: [][]float64{{1, 2}}, Biases: []float64{0, 1}},
			{Weights: [][]float64{{1}, {2}, {3}}, Biases: []float64{0}},
		},
	}
	if err := w.Validate(); err == nil {
		t.Error("expected error for mismatched layer sizes")
	}
}
