package impute

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

var nan = math.NaN()

func TestKNNImputer(t *testing.T) {
	// Same data as the scikit-learn KNNImputer docstring example.
	X := mat.NewDense(4, 3, []float64{
		1, 2, nan,
		3, 4, 3,
		nan, 6, 5,
		8, 8, 7,
	})

	imp := NewKNNImputer(WithNNeighbors(2))
	out, err := imp.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}

	want := mat.NewDense(4, 3, []float64{
		1, 2, 4,
		3, 4, 3,
		5.5, 6, 5,
		8, 8, 7,
	})
	if !mat.EqualApprox(out, want, 1e-12) {
		t.Errorf("imputed matrix mismatch\ngot:\n%v\nwant:\n%v", mat.Formatted(out), mat.Formatted(want))
	}

	// input must not be modified
	if !math.IsNaN(X.At(0, 2)) {
		t.Error("Transform modified its input")
	}
}

func TestNanEuclidean(t *testing.T) {
	// sqrt(3/2 * ((1-3)^2 + (2-4)^2)) = sqrt(12)
	got := nanEuclidean([]float64{1, 2, nan}, []float64{3, 4, 3})
	if math.Abs(got-math.Sqrt(12)) > 1e-12 {
		t.Errorf("nanEuclidean = %v, want %v", got, math.Sqrt(12))
	}
	if !math.IsNaN(nanEuclidean([]float64{nan, 1}, []float64{2, nan})) {
		t.Error("rows without shared coordinates should be at NaN distance")
	}
}

func TestKNNImputerNoSharedCoordinatesUsesMean(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		nan, 1,
		2, nan,
		4, nan,
	})
	imp := NewKNNImputer(WithNNeighbors(1))
	out, err := imp.FitTransform(X)
	if err != nil {
		t.Fatal(err)
	}
	if got := out.At(0, 0); got != 3 {
		t.Errorf("expected column mean 3, got %v", got)
	}
}

func TestKNNImputerErrors(t *testing.T) {
	tests := []struct {
		name string
		X    *mat.Dense
		k    int
	}{
		{"k below one", mat.NewDense(2, 1, []float64{1, 2}), 0},
		{"k exceeds donors", mat.NewDense(3, 1, []float64{1, nan, 2}), 3},
		{"all missing column", mat.NewDense(2, 2, []float64{1, nan, 2, nan}), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewKNNImputer(WithNNeighbors(tt.k)).FitTransform(tt.X)
			var ve *errors.ValueError
			if !errors.As(err, &ve) {
				t.Errorf("expected ValueError, got %v", err)
			}
		})
	}
}

func TestKNNImputerNotFitted(t *testing.T) {
	_, err := NewKNNImputer().Transform(mat.NewDense(1, 1, []float64{1}))
	var nfe *errors.NotFittedError
	if !errors.As(err, &nfe) {
		t.Errorf("expected NotFittedError, got %v", err)
	}
}
