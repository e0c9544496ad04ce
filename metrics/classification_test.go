package metrics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

func vec(v []float64) *mat.VecDense {
	if len(v) == 0 {
		return nil
	}
	return mat.NewVecDense(len(v), v)
}

func isValueError(err error) bool {
	var v *errors.ValueError
	return errors.As(err, &v)
}

func isDimensionError(err error) bool {
	var d *errors.DimensionError
	return errors.As(err, &d)
}

func TestAccuracy(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr func(error) bool
	}{
		{
			name:  "one missed case",
			yTrue: []float64{0, 1, 1, 0, 1},
			yPred: []float64{0, 1, 0, 0, 1},
			want:  0.8,
		},
		{
			name:  "all correct",
			yTrue: []float64{1, 0, 0},
			yPred: []float64{1, 0, 0},
			want:  1,
		},
		{
			name:  "majority baseline on balanced labels",
			yTrue: []float64{0, 0, 1, 1},
			yPred: []float64{0, 0, 0, 0},
			want:  0.5,
		},
		{
			name:    "length mismatch",
			yTrue:   []float64{0, 1, 1},
			yPred:   []float64{0, 1},
			wantErr: isDimensionError,
		},
		{
			name:    "empty",
			wantErr: isValueError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Accuracy(vec(tt.yTrue), vec(tt.yPred))
			if tt.wantErr != nil {
				if !tt.wantErr(err) {
					t.Fatalf("Accuracy() error = %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Accuracy() unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Accuracy() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestAUC compares against the pairwise ranking definition: the share of
// (positive, negative) pairs ordered correctly, ties counting one half.
func TestAUC(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		scores  []float64
		want    float64
		wantErr func(error) bool
	}{
		{
			name:   "one inverted pair",
			yTrue:  []float64{0, 0, 1, 0, 1, 1},
			scores: []float64{0.05, 0.2, 0.3, 0.35, 0.6, 0.9},
			want:   8.0 / 9.0,
		},
		{
			name:   "tied scores",
			yTrue:  []float64{0, 1, 0, 1},
			scores: []float64{0.4, 0.4, 0.1, 0.8},
			want:   0.875,
		},
		{
			name:   "fully inverted",
			yTrue:  []float64{1, 1, 0, 0},
			scores: []float64{0.1, 0.2, 0.7, 0.9},
			want:   0,
		},
		{
			name:   "constant scores",
			yTrue:  []float64{0, 1, 1, 0, 1},
			scores: []float64{0.3, 0.3, 0.3, 0.3, 0.3},
			want:   0.5,
		},
		{
			// 片方のクラスしかない場合は未定義なので 0.5
			name:   "no positives",
			yTrue:  []float64{0, 0, 0},
			scores: []float64{0.2, 0.5, 0.9},
			want:   0.5,
		},
		{
			name:   "no negatives",
			yTrue:  []float64{1, 1},
			scores: []float64{0.2, 0.9},
			want:   0.5,
		},
		{
			name:    "label outside {0,1}",
			yTrue:   []float64{0, 2, 1},
			scores:  []float64{0.1, 0.5, 0.9},
			wantErr: isValueError,
		},
		{
			name:    "length mismatch",
			yTrue:   []float64{0, 1},
			scores:  []float64{0.5},
			wantErr: isDimensionError,
		},
		{
			name:    "empty",
			wantErr: isValueError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AUC(vec(tt.yTrue), vec(tt.scores))
			if tt.wantErr != nil {
				if !tt.wantErr(err) {
					t.Fatalf("AUC() error = %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("AUC() unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("AUC() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBinaryLogLoss(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		proba   []float64
		want    float64
		wantErr func(error) bool
	}{
		{
			name:  "confident and right",
			yTrue: []float64{0, 1},
			proba: []float64{0.1, 0.9},
			want:  -math.Log(0.9),
		},
		{
			name:  "coin flip",
			yTrue: []float64{0, 1, 1},
			proba: []float64{0.5, 0.5, 0.5},
			want:  math.Ln2,
		},
		{
			name:  "mixed",
			yTrue: []float64{1, 0},
			proba: []float64{0.8, 0.4},
			want:  -(math.Log(0.8) + math.Log(0.6)) / 2,
		},
		{
			// 確率 0 は eps にクリップされ有限値になる
			name:  "clipped certainty",
			yTrue: []float64{1},
			proba: []float64{0},
			want:  -math.Log(logLossEpsilon),
		},
		{
			name:    "label outside {0,1}",
			yTrue:   []float64{0, 0.5},
			proba:   []float64{0.1, 0.5},
			wantErr: isValueError,
		},
		{
			name:    "empty",
			wantErr: isValueError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BinaryLogLoss(vec(tt.yTrue), vec(tt.proba))
			if tt.wantErr != nil {
				if !tt.wantErr(err) {
					t.Fatalf("BinaryLogLoss() error = %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("BinaryLogLoss() unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("BinaryLogLoss() = %v, want %v", got, tt.want)
			}
		})
	}
}

// riskScores mimics a held-out split of a few thousand records with roughly
// one positive in seven.
func riskScores(n int) (*mat.VecDense, *mat.VecDense) {
	y := make([]float64, n)
	s := make([]float64, n)
	for i := range y {
		if i%7 == 0 {
			y[i] = 1
		}
		s[i] = math.Mod(float64(i)*0.618034, 1)*0.8 + 0.2*y[i]
	}
	return mat.NewVecDense(n, y), mat.NewVecDense(n, s)
}

func BenchmarkAUC(b *testing.B) {
	y, s := riskScores(4000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = AUC(y, s)
	}
}

func BenchmarkBinaryLogLoss(b *testing.B) {
	y, s := riskScores(4000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = BinaryLogLoss(y, s)
	}
}
