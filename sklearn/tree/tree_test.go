package tree

import (
	"bytes"
	"encoding/gob"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// patients returns standardized (age, sysBP) pairs where the upper right
// block is labeled at risk.
func patients() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(8, 2, []float64{
		-1.2, -0.9,
		-1.0, -0.4,
		-0.6, -1.1,
		-0.4, -0.7,
		0.7, 0.9,
		0.9, 1.4,
		1.3, 0.6,
		1.6, 1.2,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 0, 0, 1, 1, 1, 1})
	return X, y
}

// TestDecisionTreeClassifier_SeparatesRiskGroups checks training fit and
// generalization on unseen points of a separable problem.
func TestDecisionTreeClassifier_SeparatesRiskGroups(t *testing.T) {
	X, y := patients()

	for _, criterion := range []string{"gini", "entropy"} {
		t.Run(criterion, func(t *testing.T) {
			dt := NewDecisionTreeClassifier(WithCriterion(criterion), WithMaxDepth(4))
			if err := dt.Fit(X, y); err != nil {
				t.Fatalf("Fit: %v", err)
			}
			if score := dt.Score(X, y); score != 1.0 {
				t.Errorf("training accuracy = %v, want 1", score)
			}

			pred, err := dt.Predict(mat.NewDense(2, 2, []float64{
				-0.8, -0.8,
				1.1, 1.0,
			}))
			if err != nil {
				t.Fatalf("Predict: %v", err)
			}
			if pred.At(0, 0) != 0 || pred.At(1, 0) != 1 {
				t.Errorf("unseen predictions = [%v %v], want [0 1]", pred.At(0, 0), pred.At(1, 0))
			}
		})
	}
}

// TestDecisionTreeClassifier_ProbaRows checks probability shape and row sums.
func TestDecisionTreeClassifier_ProbaRows(t *testing.T) {
	X, y := patients()
	// 重なりを作るためにラベルを1つ反転する
	y.Set(3, 0, 1)

	dt := NewDecisionTreeClassifier(WithMaxDepth(1))
	if err := dt.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	proba, err := dt.PredictProba(X)
	if err != nil {
		t.Fatalf("PredictProba: %v", err)
	}

	rows, cols := proba.Dims()
	if rows != 8 || cols != 2 {
		t.Fatalf("proba shape = (%d, %d), want (8, 2)", rows, cols)
	}
	for i := 0; i < rows; i++ {
		p0, p1 := proba.At(i, 0), proba.At(i, 1)
		if p0 < 0 || p1 < 0 || math.Abs(p0+p1-1) > 1e-9 {
			t.Errorf("row %d: invalid distribution [%v %v]", i, p0, p1)
		}
	}
}

// TestDecisionTreeClassifier_RootOnlyDistribution checks that a depth zero
// tree reports the class frequencies of the training set.
func TestDecisionTreeClassifier_RootOnlyDistribution(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	y := mat.NewDense(4, 1, []float64{0, 0, 0, 1})

	tests := []struct {
		name    string
		opts    []DecisionTreeOption
		weights []float64
		want    [2]float64
	}{
		{name: "unweighted", want: [2]float64{0.75, 0.25}},
		{name: "balanced", opts: []DecisionTreeOption{WithClassWeight("balanced")}, want: [2]float64{0.5, 0.5}},
		{name: "sample weights", weights: []float64{1, 1, 0, 2}, want: [2]float64{0.5, 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dt := NewDecisionTreeClassifier(append([]DecisionTreeOption{WithMaxDepth(0)}, tt.opts...)...)
			if err := dt.FitWeighted(X, y, tt.weights); err != nil {
				t.Fatalf("FitWeighted: %v", err)
			}
			if dt.GetNLeaves() != 1 {
				t.Fatalf("leaves = %d, want 1", dt.GetNLeaves())
			}
			proba, err := dt.PredictProba(mat.NewDense(1, 1, []float64{5}))
			if err != nil {
				t.Fatalf("PredictProba: %v", err)
			}
			for c := 0; c < 2; c++ {
				if math.Abs(proba.At(0, c)-tt.want[c]) > 1e-9 {
					t.Errorf("P(class %d) = %v, want %v", c, proba.At(0, c), tt.want[c])
				}
			}
		})
	}
}

// TestDecisionTreeClassifier_ZeroWeightKeepsClass checks that labels carried
// only by zero-weight samples are still part of the class set.
func TestDecisionTreeClassifier_ZeroWeightKeepsClass(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	y := mat.NewDense(4, 1, []float64{0, 0, 1, 1})

	dt := NewDecisionTreeClassifier()
	if err := dt.FitWeighted(X, y, []float64{1, 1, 0, 0}); err != nil {
		t.Fatalf("FitWeighted: %v", err)
	}
	if dt.NClasses() != 2 {
		t.Errorf("NClasses = %d, want 2", dt.NClasses())
	}
	proba, err := dt.PredictProba(mat.NewDense(1, 1, []float64{3}))
	if err != nil {
		t.Fatalf("PredictProba: %v", err)
	}
	if _, cols := proba.Dims(); cols != 2 || proba.At(0, 1) != 0 {
		t.Errorf("proba = %v, want two columns with zero mass on class 1", mat.Formatted(proba))
	}
}

func TestDecisionTreeClassifier_FitErrors(t *testing.T) {
	X, y := patients()

	tests := []struct {
		name    string
		dt      *DecisionTreeClassifier
		X, y    mat.Matrix
		weights []float64
		check   func(error) bool
	}{
		{
			name:  "unknown criterion",
			dt:    NewDecisionTreeClassifier(WithCriterion("logloss")),
			X:     X,
			y:     y,
			check: func(err error) bool { var v *errors.ValidationError; return errors.As(err, &v) },
		},
		{
			name:  "unknown class weight",
			dt:    NewDecisionTreeClassifier(WithClassWeight("auto")),
			X:     X,
			y:     y,
			check: func(err error) bool { var v *errors.ValidationError; return errors.As(err, &v) },
		},
		{
			name:  "label rows",
			dt:    NewDecisionTreeClassifier(),
			X:     X,
			y:     mat.NewDense(3, 1, []float64{0, 1, 0}),
			check: func(err error) bool { var d *errors.DimensionError; return errors.As(err, &d) },
		},
		{
			name:    "weight length",
			dt:      NewDecisionTreeClassifier(),
			X:       X,
			y:       y,
			weights: []float64{1, 1},
			check:   func(err error) bool { var d *errors.DimensionError; return errors.As(err, &d) },
		},
		{
			name:    "all zero weights",
			dt:      NewDecisionTreeClassifier(),
			X:       X,
			y:       y,
			weights: make([]float64, 8),
			check:   func(err error) bool { var v *errors.ValueError; return errors.As(err, &v) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.dt.FitWeighted(tt.X, tt.y, tt.weights)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !tt.check(err) {
				t.Errorf("unexpected error type: %v", err)
			}
		})
	}
}

// TestDecisionTreeClassifier_ImportanceFollowsSignal checks that the only
// informative column receives all of the importance.
func TestDecisionTreeClassifier_ImportanceFollowsSignal(t *testing.T) {
	// 列1 (sysBP) だけがラベルを決める
	X := mat.NewDense(8, 3, []float64{
		1, 110, 0,
		0, 115, 1,
		1, 120, 1,
		0, 125, 0,
		1, 160, 0,
		0, 165, 1,
		1, 170, 0,
		0, 175, 1,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 0, 0, 1, 1, 1, 1})

	dt := NewDecisionTreeClassifier(WithRandomState(7))
	if err := dt.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	imp := dt.FeatureImportances()
	if len(imp) != 3 {
		t.Fatalf("len(importances) = %d, want 3", len(imp))
	}
	if math.Abs(imp[1]-1) > 1e-9 || imp[0] != 0 || imp[2] != 0 {
		t.Errorf("importances = %v, want [0 1 0]", imp)
	}
}

// TestDecisionTreeClassifier_GrowthLimits checks depth and leaf-size limits
// on alternating labels that an unlimited tree would memorize.
func TestDecisionTreeClassifier_GrowthLimits(t *testing.T) {
	X := mat.NewDense(16, 1, nil)
	y := mat.NewDense(16, 1, nil)
	for i := 0; i < 16; i++ {
		X.Set(i, 0, float64(i))
		y.Set(i, 0, float64(i%2))
	}

	shallow := NewDecisionTreeClassifier(WithMaxDepth(2))
	if err := shallow.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if d := shallow.GetDepth(); d > 2 {
		t.Errorf("depth = %d, want <= 2", d)
	}

	leafy := NewDecisionTreeClassifier(WithMinSamplesSplit(6), WithMinSamplesLeaf(3))
	if err := leafy.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if n := leafy.GetNLeaves(); n > 16/3 {
		t.Errorf("leaves = %d, want <= %d", n, 16/3)
	}

	full := NewDecisionTreeClassifier()
	if err := full.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if full.Score(X, y) != 1 {
		t.Errorf("unlimited tree should memorize alternating labels")
	}
}

func TestResolveMaxFeatures(t *testing.T) {
	tests := []struct {
		spec string
		n    int
		want int
	}{
		{"", 10, 10},
		{"sqrt", 10, 3},
		{"log2", 10, 3},
		{"4", 10, 4},
		{"40", 10, 10},
		{"0", 10, 1},
		{"many", 10, 10},
	}
	for _, tt := range tests {
		if got := resolveMaxFeatures(tt.spec, tt.n); got != tt.want {
			t.Errorf("resolveMaxFeatures(%q, %d) = %d, want %d", tt.spec, tt.n, got, tt.want)
		}
	}
}

func TestBalancedClassWeights(t *testing.T) {
	got := BalancedClassWeights([]int{0, 0, 0, 1}, 3)
	want := []float64{4.0 / 6.0, 2, 0}
	for c := range want {
		if math.Abs(got[c]-want[c]) > 1e-12 {
			t.Errorf("weight[%d] = %v, want %v", c, got[c], want[c])
		}
	}
}

// TestDecisionTreeClassifier_Params checks defaults and SetParams validation.
func TestDecisionTreeClassifier_Params(t *testing.T) {
	dt := NewDecisionTreeClassifier()
	params := dt.GetParams()
	if params["criterion"] != "gini" || params["max_depth"] != -1 || params["min_samples_split"] != 2 {
		t.Errorf("unexpected defaults: %v", params)
	}

	err := dt.SetParams(map[string]interface{}{
		"criterion":    "entropy",
		"max_depth":    5,
		"max_features": "sqrt",
		"class_weight": "balanced",
		"random_state": int64(3),
	})
	if err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	if dt.criterion != "entropy" || dt.maxDepth != 5 || dt.maxFeatures != "sqrt" ||
		dt.classWeight != "balanced" || dt.randomState != 3 {
		t.Errorf("params not applied: %v", dt.GetParams())
	}

	if err := dt.SetParams(map[string]interface{}{"max_depth": "deep"}); err == nil {
		t.Error("expected a type error for max_depth")
	}
	if err := dt.SetParams(map[string]interface{}{"splitter": "best"}); err == nil {
		t.Error("expected an error for an unknown parameter")
	}
}

// TestDecisionTreeClassifier_GobRoundTrip checks that a decoded tree predicts
// like the original.
func TestDecisionTreeClassifier_GobRoundTrip(t *testing.T) {
	X, y := patients()
	dt := NewDecisionTreeClassifier(WithMaxDepth(3), WithRandomState(1))
	if err := dt.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(dt); err != nil {
		t.Fatalf("encode: %v", err)
	}
	restored := new(DecisionTreeClassifier)
	if err := gob.NewDecoder(&buf).Decode(restored); err != nil {
		t.Fatalf("decode: %v", err)
	}

	want, _ := dt.PredictProba(X)
	got, err := restored.PredictProba(X)
	if err != nil {
		t.Fatalf("restored PredictProba: %v", err)
	}
	if !mat.EqualApprox(want, got, 1e-12) {
		t.Errorf("restored probabilities differ:\n%v\n%v", mat.Formatted(want), mat.Formatted(got))
	}
	if restored.GetParams()["max_depth"] != 3 {
		t.Errorf("max_depth lost in round trip: %v", restored.GetParams())
	}
}

func TestDecisionTreeClassifier_NotFitted(t *testing.T) {
	dt := NewDecisionTreeClassifier()
	X := mat.NewDense(1, 2, []float64{0.1, 0.2})

	if _, err := dt.Predict(X); err == nil {
		t.Error("Predict before Fit should fail")
	}
	_, err := dt.PredictProba(X)
	var nf *errors.NotFittedError
	if !errors.As(err, &nf) {
		t.Errorf("PredictProba before Fit: got %v, want NotFittedError", err)
	}
	if dt.Score(X, mat.NewDense(1, 1, []float64{0})) != 0 {
		t.Error("Score before Fit should be 0")
	}
}
