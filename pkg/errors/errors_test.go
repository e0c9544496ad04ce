package errors

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		kind     string
		err      error
		wantMsg  string
		hasStack bool
	}{
		{
			name:     "with original error",
			op:       "Fit",
			kind:     "invalid input",
			err:      fmt.Errorf("test error"),
			wantMsg:  "heartrisk: Fit: invalid input: test error",
			hasStack: true,
		},
		{
			name:     "without original error",
			op:       "Predict",
			kind:     "not fitted",
			err:      nil,
			wantMsg:  "heartrisk: Predict: not fitted",
			hasStack: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			if tt.hasStack {
				formatted := fmt.Sprintf("%+v", err)
				if !strings.Contains(formatted, "errors_test.go") {
					t.Error("Expected stack trace to contain test file name")
				}
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Predict", 10, 3, 1)

	want := "heartrisk: Predict: expected 10 features, got 3"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var dimErr *DimensionError
	if !As(err, &dimErr) {
		t.Error("Error should be castable to *DimensionError")
	}
}

func TestNewUnsupportedMethodError(t *testing.T) {
	err := NewUnsupportedMethodError("XGB", []string{"SVC", "LR", "RF", "NN"})

	var methodErr *UnsupportedMethodError
	if !As(err, &methodErr) {
		t.Fatalf("Error should be castable to *UnsupportedMethodError, got %T", err)
	}
	if methodErr.Method != "XGB" {
		t.Errorf("Method = %q, want %q", methodErr.Method, "XGB")
	}
	if !strings.Contains(err.Error(), "select one of [SVC LR RF NN]") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestWrapPreservesCause(t *testing.T) {
	base := NewValueError("PCA.Fit", "n_components=5 must be between 1 and 3")
	wrapped := Wrap(base, "reduce train split")

	var valueErr *ValueError
	if !As(wrapped, &valueErr) {
		t.Fatal("wrapped error should still expose *ValueError")
	}
	if valueErr.Op != "PCA.Fit" {
		t.Errorf("Op = %q, want PCA.Fit", valueErr.Op)
	}
	if !Is(Wrap(ErrEmptyData, "load"), ErrEmptyData) {
		t.Error("Is should see through Wrap")
	}
}

func TestWarnRoutesToZerolog(t *testing.T) {
	var buf bytes.Buffer
	SetWarningLogger(zerolog.New(&buf))
	defer SetWarningLogger(zerolog.Nop())

	var captured []error
	SetWarningHandler(func(w error) { captured = append(captured, w) })
	defer SetWarningHandler(nil)

	Warn(NewUndefinedMetricWarning("roc_curve", "no positive samples in y_true", 0))

	if len(captured) != 1 {
		t.Fatalf("expected 1 captured warning, got %d", len(captured))
	}
	out := buf.String()
	if !strings.Contains(out, `"type":"UndefinedMetricWarning"`) {
		t.Errorf("expected structured warning fields, got %s", out)
	}
	if !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("expected warn level, got %s", out)
	}
}

func TestCheckScalar(t *testing.T) {
	if err := CheckScalar("loss", 0.25, 1); err != nil {
		t.Errorf("finite value should pass: %v", err)
	}

	err := CheckScalar("loss", nan(), 7)
	var instErr *NumericalInstabilityError
	if !As(err, &instErr) {
		t.Fatalf("expected NumericalInstabilityError, got %v", err)
	}
	if instErr.Iteration != 7 {
		t.Errorf("Iteration = %d, want 7", instErr.Iteration)
	}
}

func TestCheckMatrix(t *testing.T) {
	finite := mat.NewDense(2, 2, []float64{1, -2, 0.5, 3})
	if err := CheckMatrix("scale", finite); err != nil {
		t.Errorf("finite matrix should pass: %v", err)
	}

	data := make([]float64, 30)
	for i := range data {
		data[i] = math.Inf(1)
	}
	err := CheckMatrix("scale", mat.NewDense(5, 6, data))
	var instErr *NumericalInstabilityError
	if !As(err, &instErr) {
		t.Fatalf("expected NumericalInstabilityError, got %v", err)
	}
	if len(instErr.Values) != maxReportedValues {
		t.Errorf("reported %d values, want %d", len(instErr.Values), maxReportedValues)
	}
}

func TestCheckNumericalStability(t *testing.T) {
	if err := CheckNumericalStability("lbfgs", []float64{0.1, -4}, 3); err != nil {
		t.Errorf("finite weights should pass: %v", err)
	}
	err := CheckNumericalStability("lbfgs", []float64{0.1, nan(), math.Inf(-1)}, 3)
	var instErr *NumericalInstabilityError
	if !As(err, &instErr) {
		t.Fatalf("expected NumericalInstabilityError, got %v", err)
	}
	if len(instErr.Values) != 2 {
		t.Errorf("Values = %v, want only the unstable entries", instErr.Values)
	}
}

func TestClipValue(t *testing.T) {
	for _, tt := range []struct{ in, want float64 }{{-1, 0.1}, {0.5, 0.5}, {2, 0.9}} {
		if got := ClipValue(tt.in, 0.1, 0.9); got != tt.want {
			t.Errorf("ClipValue(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSafeExecute_Panic(t *testing.T) {
	err := SafeExecute("SVC.Fit", func() error {
		panic("kernel cache exhausted")
	})
	if err == nil {
		t.Fatal("expected the panic to be recovered")
	}

	var panicErr *PanicError
	if !As(err, &panicErr) {
		t.Fatalf("expected PanicError, got %T", err)
	}
	if got := panicErr.Error(); got != "heartrisk: SVC.Fit: panic: kernel cache exhausted" {
		t.Errorf("unexpected message: %s", got)
	}
	if panicErr.Stack == "" {
		t.Error("expected a stack trace")
	}
}

func TestRecover_KeepsEarlierError(t *testing.T) {
	earlier := New("partial write")
	fn := func() (err error) {
		defer Recover(&err, "report")
		err = earlier
		panic("closed file")
	}

	err := fn()
	var panicErr *PanicError
	if !As(err, &panicErr) {
		t.Fatalf("expected PanicError, got %v", err)
	}
	if panicErr.Op != "report" {
		t.Errorf("Op = %q, want report", panicErr.Op)
	}
	if err == earlier {
		t.Error("panic should take precedence over the earlier error")
	}
}

func TestSafeExecute_GonumShapePanic(t *testing.T) {
	err := SafeExecute("matmul", func() error {
		var c mat.Dense
		c.Mul(mat.NewDense(2, 3, nil), mat.NewDense(2, 3, nil))
		return nil
	})
	if err == nil {
		t.Fatal("expected shape panic to be recovered")
	}
	if !Is(err, mat.ErrShape) {
		t.Errorf("recovered error should unwrap to mat.ErrShape, got %v", err)
	}
}

func TestSafeExecute_FunctionError(t *testing.T) {
	expected := New("plain failure")
	err := SafeExecute("op", func() error { return expected })
	if err != expected {
		t.Errorf("expected original error to pass through, got %v", err)
	}
}

func nan() float64 {
	zero := 0.0
	return zero / zero
}
