package pipeline

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/dataset"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

var testCategorical = []string{"education", "male"}

// syntheticDataset builds n rows of age, education, male, sysBP, glucose with
// a few missing education codes and a label driven by sysBP.
func syntheticDataset(t *testing.T, n int) *dataset.Dataset {
	t.Helper()
	rng := rand.New(rand.NewPCG(7, 11))
	names := []string{"age", "education", "male", "sysBP", "glucose"}
	X := mat.NewDense(n, len(names), nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		sys := 110 + 40*rng.Float64()
		X.Set(i, 0, 35+30*rng.Float64())
		X.Set(i, 1, float64(1+i%4))
		X.Set(i, 2, float64(i%2))
		X.Set(i, 3, sys)
		X.Set(i, 4, 70+20*rng.NormFloat64())
		if i%17 == 5 {
			X.Set(i, 1, math.NaN())
		}
		if sys+5*rng.NormFloat64() > 130 {
			y.SetVec(i, 1)
		}
	}
	frame, err := dataset.NewFrame(names, X)
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	ds, err := dataset.NewDataset(frame, y, "TenYearCHD")
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}
	return ds
}

func TestParseMethod(t *testing.T) {
	for _, m := range Methods() {
		got, err := ParseMethod(m.String())
		if err != nil || got != m {
			t.Errorf("ParseMethod(%q) = %v, %v", m.String(), got, err)
		}
	}

	_, err := ParseMethod("KNN")
	var ume *errors.UnsupportedMethodError
	if !errors.As(err, &ume) {
		t.Fatalf("expected UnsupportedMethodError, got %v", err)
	}
	if len(ume.Supported) != 4 {
		t.Errorf("supported = %v", ume.Supported)
	}

	ms, err := ParseMethods([]string{"RF", " LR"})
	if err != nil || len(ms) != 2 || ms[0] != RF || ms[1] != LR {
		t.Errorf("ParseMethods = %v, %v", ms, err)
	}
}

func TestMethodText(t *testing.T) {
	var m Method
	if err := m.UnmarshalText([]byte("NN")); err != nil || m != NN {
		t.Fatalf("UnmarshalText = %v, %v", m, err)
	}
	if _, err := Method(0).MarshalText(); err == nil {
		t.Error("expected error for invalid method")
	}
}

func TestPreprocessorOneHotWidth(t *testing.T) {
	ds := syntheticDataset(t, 100)

	tests := []struct {
		method Method
		width  int
	}{
		// education has four codes and is expanded; male is binary and kept.
		{LR, 4 + 4},
		{SVC, 4 + 4},
		{NN, 4 + 3},
		{RF, 5},
	}
	for _, tt := range tests {
		t.Run(tt.method.String(), func(t *testing.T) {
			out, err := NewPreprocessor(2, 0, testCategorical, tt.method).Process(ds.Features)
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			_, c := out.Dims()
			if c != tt.width {
				t.Errorf("width = %d, want %d (%v)", c, tt.width, out.Names)
			}
			if out.Index("male") < 0 {
				t.Error("binary column male should not be encoded")
			}
		})
	}
}

func TestPreprocessorEndToEnd(t *testing.T) {
	ds := syntheticDataset(t, 100)
	out, err := NewPreprocessor(2, 2, testCategorical, RF).Process(ds.Features)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	r, c := out.Dims()
	if r != 100 || c < 5 {
		t.Fatalf("dims = %d×%d", r, c)
	}
	if out.HasMissing() {
		t.Error("output contains NaN")
	}
	if len(out.Names) != c {
		t.Errorf("names = %d, columns = %d", len(out.Names), c)
	}
}

func TestPreprocessorUnknownCategorical(t *testing.T) {
	ds := syntheticDataset(t, 30)
	_, err := NewPreprocessor(2, 0, []string{"smoker"}, LR).Process(ds.Features)
	var ve *errors.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Value != "smoker" {
		t.Errorf("value = %v", ve.Value)
	}
}

func TestReducer(t *testing.T) {
	ds := syntheticDataset(t, 60)
	prep, err := NewPreprocessor(2, 0, testCategorical, RF).Process(ds.Features)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	red, err := NewReducer(3).Reduce(prep)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	want := []string{"PC1", "PC2", "PC3"}
	for i, n := range want {
		if red.Projected.Names[i] != n {
			t.Errorf("name %d = %q, want %q", i, red.Projected.Names[i], n)
		}
	}
	if r, c := red.Components.Dims(); r != 3 || c != 5 {
		t.Errorf("components = %d×%d", r, c)
	}
	if len(red.VarianceRatio) != 3 {
		t.Errorf("variance ratio = %v", red.VarianceRatio)
	}

	_, err = NewReducer(10).Reduce(prep)
	var ve *errors.ValueError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValueError, got %v", err)
	}
}

func TestTrainerCrossValidate(t *testing.T) {
	ds := syntheticDataset(t, 80)
	prep, err := NewPreprocessor(2, 0, testCategorical, RF).Process(ds.Features)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	trainer, err := NewTrainer(prep.X, ds.Labels, RF, 2, 2)
	if err != nil {
		t.Fatalf("NewTrainer: %v", err)
	}
	m, stats, err := trainer.Fit()
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if len(stats.FPR) != rocGridPoints || len(stats.TPR) != rocGridPoints {
		t.Fatalf("curve length = %d/%d", len(stats.FPR), len(stats.TPR))
	}
	if stats.FPR[0] != 0 || stats.FPR[rocGridPoints-1] != 1 || stats.TPR[rocGridPoints-1] != 1 {
		t.Errorf("endpoints fpr=%v..%v tpr_end=%v", stats.FPR[0], stats.FPR[rocGridPoints-1], stats.TPR[rocGridPoints-1])
	}
	if stats.AUC < 0 || stats.AUC > 1 {
		t.Errorf("AUC = %v", stats.AUC)
	}
	if len(stats.FoldAUCs) != 2 {
		t.Errorf("fold AUCs = %v", stats.FoldAUCs)
	}

	acc, err := trainer.Evaluate(prep.X, ds.Labels, m)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if acc < 0.7 {
		t.Errorf("training accuracy = %v", acc)
	}
}

func TestTrainerRejectsUnsupportedMethod(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	y := mat.NewVecDense(4, []float64{0, 0, 1, 1})
	_, err := NewTrainer(X, y, Method(9), 2, 1)
	var ume *errors.UnsupportedMethodError
	if !errors.As(err, &ume) {
		t.Fatalf("expected UnsupportedMethodError, got %v", err)
	}

	_, err = NewTrainer(X, y, RF, 1, 1)
	if err == nil {
		t.Error("expected error for n_splits=1")
	}
}

func TestFeatureContribution(t *testing.T) {
	components := mat.NewDense(2, 3, []float64{
		0.6, -0.8, 0,
		0, 0, -1,
	})
	got, err := FeatureContribution([]float64{0.7, 0.3}, components, []float64{0.5, 0.25})
	if err != nil {
		t.Fatalf("FeatureContribution: %v", err)
	}
	want := []float64{0.5 * 0.6 / 1.4, 0.5 * 0.8 / 1.4, 0.25}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("contribution[%d] = %v, want %v", i, got[i], want[i])
		}
		if got[i] < 0 {
			t.Errorf("contribution[%d] negative", i)
		}
	}

	if _, err := FeatureContribution([]float64{1}, components, []float64{0.5, 0.25}); err == nil {
		t.Error("expected dimension error")
	}
}

type importancesModel struct {
	importances []float64
}

func (importancesModel) Fit(X, y mat.Matrix) error                     { return nil }
func (importancesModel) Predict(X mat.Matrix) (mat.Matrix, error)      { return nil, nil }
func (importancesModel) PredictProba(X mat.Matrix) (mat.Matrix, error) { return nil, nil }
func (m importancesModel) FeatureImportances() []float64               { return m.importances }

type plainModel struct{}

func (plainModel) Fit(X, y mat.Matrix) error                     { return nil }
func (plainModel) Predict(X mat.Matrix) (mat.Matrix, error)      { return nil, nil }
func (plainModel) PredictProba(X mat.Matrix) (mat.Matrix, error) { return nil, nil }

func TestBestFeatures(t *testing.T) {
	// Twelve components each loading purely on one of twelve features.
	const n = 12
	components := mat.NewDense(n, n, nil)
	names := make([]string, n)
	importances := make([]float64, n)
	ratio := make([]float64, n)
	for i := 0; i < n; i++ {
		components.Set(i, i, 1)
		names[i] = string(rune('a' + i))
		importances[i] = float64(i + 1)
		ratio[i] = 1
	}

	best, err := BestFeatures(importancesModel{importances}, components, ratio, names)
	if err != nil {
		t.Fatalf("BestFeatures: %v", err)
	}
	if len(best) != topAttributions {
		t.Fatalf("len = %d", len(best))
	}
	// Components 0 and 1 are least important and drop out; the rest tie at
	// ratio 1 and keep ascending index order.
	for i, name := range best {
		if want := names[i+2]; name != want {
			t.Errorf("best[%d] = %q, want %q", i, name, want)
		}
	}

	_, err = BestFeatures(plainModel{}, components, ratio, names)
	var ve *errors.ValueError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValueError, got %v", err)
	}
}

func TestGridCombinations(t *testing.T) {
	g := Grid{
		K:           []int{2, 6},
		Degree:      []int{3},
		NComponents: []int{10, 100},
		Methods:     []Method{RF, LR},
		NSplits:     10,
	}
	combos := g.Combinations()
	if len(combos) != 8 {
		t.Fatalf("len = %d", len(combos))
	}
	want := []Combination{
		{K: 2, Degree: 3, NComponents: 10, Method: RF},
		{K: 2, Degree: 3, NComponents: 100, Method: RF},
		{K: 6, Degree: 3, NComponents: 10, Method: RF},
		{K: 6, Degree: 3, NComponents: 100, Method: RF},
		{K: 2, Degree: 3, NComponents: 10, Method: LR},
	}
	for i, w := range want {
		if combos[i] != w {
			t.Errorf("combo %d = %+v, want %+v", i, combos[i], w)
		}
	}

	if err := DefaultGrid().Validate(); err != nil {
		t.Errorf("default grid invalid: %v", err)
	}
	if n := len(DefaultGrid().Combinations()); n != 15 {
		t.Errorf("default grid has %d combinations", n)
	}
	if err := (Grid{K: []int{1}, Degree: []int{0}, NComponents: []int{1}, Methods: []Method{RF}, NSplits: 1}).Validate(); err == nil {
		t.Error("expected error for n_splits=1")
	}
}

func TestSweepTracksBest(t *testing.T) {
	g := Grid{
		K:           []int{2},
		Degree:      []int{0},
		NComponents: []int{1, 2, 3, 4},
		Methods:     []Method{LR},
		NSplits:     2,
	}
	accuracies := []float64{0.6, 0.55, 0.9, 0.7}
	wantBest := []float64{0.6, 0.6, 0.9, 0.9}

	var steps []SweepStep
	search := NewGridSearch(g, nil, 1, WithObserver(func(s SweepStep) { steps = append(steps, s) }))
	best, err := search.Sweep(func(c Combination) (*RunResult, error) {
		return &RunResult{Combination: c, Artifact: Artifact{Accuracy: accuracies[c.NComponents-1]}}, nil
	})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(steps) != 4 {
		t.Fatalf("steps = %d", len(steps))
	}
	for i, s := range steps {
		if s.Best.Accuracy != wantBest[i] {
			t.Errorf("step %d best = %v, want %v", i, s.Best.Accuracy, wantBest[i])
		}
	}
	if best.Combination.NComponents != 3 || best.Accuracy != 0.9 {
		t.Errorf("best = %+v", best.Combination)
	}
}

func TestSweepFirstResultAlwaysRecorded(t *testing.T) {
	var tr BestTracker
	if !tr.Observe(&RunResult{Artifact: Artifact{Accuracy: 0}}) {
		t.Error("first result must be recorded")
	}
	if tr.Observe(&RunResult{Artifact: Artifact{Accuracy: 0}}) {
		t.Error("ties keep the earlier result")
	}
}

func TestSweepAbortsOnError(t *testing.T) {
	g := DefaultGrid()
	calls := 0
	_, err := NewGridSearch(g, nil, 1).Sweep(func(c Combination) (*RunResult, error) {
		calls++
		if calls == 2 {
			return nil, errors.NewValueError("PCA", "n_components too large")
		}
		return &RunResult{Combination: c}, nil
	})
	var ve *errors.ValueError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValueError, got %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d", calls)
	}
}

func TestGridSearchRun(t *testing.T) {
	if testing.Short() {
		t.Skip("trains models")
	}
	ds := syntheticDataset(t, 120)
	g := Grid{
		K:           []int{2},
		Degree:      []int{0},
		NComponents: []int{2, 4},
		Methods:     []Method{RF, LR},
		NSplits:     2,
	}
	best, err := NewGridSearch(g, testCategorical, 2).Run(ds)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if best == nil || best.Result == nil || best.Result.Artifact.Model == nil {
		t.Fatal("no best result")
	}
	if best.Accuracy <= 0 || best.Accuracy > 1 {
		t.Errorf("accuracy = %v", best.Accuracy)
	}
	if best.Combination.Method == RF && len(best.Result.BestFeatures) == 0 {
		t.Error("random forest result lacks best features")
	}
}

func TestVerboseRaisesProgressLevel(t *testing.T) {
	ds := syntheticDataset(t, 30)
	for _, verbose := range []bool{false, true} {
		logger, _ := log.NewTestLogger(log.LevelInfo)
		_, err := NewPreprocessor(2, 0, testCategorical, RF, WithLogger(logger), WithVerbose(verbose)).Process(ds.Features)
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if got := logger.ContainsMessage("preprocessing data"); got != verbose {
			t.Errorf("verbose=%v: progress logged at info = %v", verbose, got)
		}
		if verbose && !logger.ContainsField(log.ComponentKey, "Preprocessor") {
			t.Error("component field missing")
		}
	}
}
