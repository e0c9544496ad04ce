// Package dataset holds the named numeric tables that flow through the pipeline
// and the CSV loader that produces them.
package dataset

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// Frame is a named numeric table. NaN marks a missing cell.
type Frame struct {
	Names []string
	X     *mat.Dense
}

// NewFrame pairs column names with a matrix. The number of names must match the
// number of columns and names must be unique.
func NewFrame(names []string, X *mat.Dense) (*Frame, error) {
	if X == nil {
		return nil, errors.ErrEmptyData
	}
	_, c := X.Dims()
	if len(names) != c {
		return nil, errors.NewDimensionError("NewFrame", c, len(names), 1)
	}
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			return nil, errors.NewValidationError("names", "duplicate column name", n)
		}
		seen[n] = struct{}{}
	}
	return &Frame{Names: append([]string(nil), names...), X: X}, nil
}

// Dims returns the number of rows and columns.
func (f *Frame) Dims() (int, int) {
	return f.X.Dims()
}

// Index returns the column index of name or -1.
func (f *Frame) Index(name string) int {
	for i, n := range f.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of the named column.
func (f *Frame) Column(name string) ([]float64, error) {
	j := f.Index(name)
	if j < 0 {
		return nil, errors.NewValidationError("column", "unknown column", name)
	}
	r, _ := f.X.Dims()
	return mat.Col(make([]float64, r), j, f.X), nil
}

// Rows returns a new Frame holding the given rows in the given order.
func (f *Frame) Rows(idx []int) *Frame {
	_, c := f.X.Dims()
	out := mat.NewDense(max(len(idx), 1), c, nil)
	if len(idx) == 0 {
		return &Frame{Names: append([]string(nil), f.Names...), X: &mat.Dense{}}
	}
	for i, src := range idx {
		out.SetRow(i, f.X.RawRowView(src))
	}
	return &Frame{Names: append([]string(nil), f.Names...), X: out}
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	return &Frame{Names: append([]string(nil), f.Names...), X: mat.DenseCopyOf(f.X)}
}

// HasMissing reports whether any cell is NaN.
func (f *Frame) HasMissing() bool {
	r, c := f.X.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsNaN(f.X.At(i, j)) {
				return true
			}
		}
	}
	return false
}

// Dataset is a feature table plus a binary label vector. The label column is
// never part of Features.
type Dataset struct {
	Features  *Frame
	Labels    *mat.VecDense
	LabelName string
}

// NewDataset validates that features and labels agree in length and that the
// labels are binary codes 0/1.
func NewDataset(features *Frame, labels *mat.VecDense, labelName string) (*Dataset, error) {
	r, _ := features.Dims()
	if labels.Len() != r {
		return nil, errors.NewDimensionError("NewDataset", r, labels.Len(), 0)
	}
	for i := 0; i < labels.Len(); i++ {
		v := labels.AtVec(i)
		if v != 0 && v != 1 {
			return nil, errors.NewValidationError(labelName, "labels must be 0 or 1", v)
		}
	}
	if features.Index(labelName) >= 0 {
		return nil, errors.NewValidationError(labelName, "label column must not be a feature", labelName)
	}
	return &Dataset{Features: features, Labels: labels, LabelName: labelName}, nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return d.Labels.Len()
}

// Subset returns the rows idx of features and labels.
func (d *Dataset) Subset(idx []int) *Dataset {
	y := mat.NewVecDense(max(len(idx), 1), nil)
	for i, src := range idx {
		y.SetVec(i, d.Labels.AtVec(src))
	}
	if len(idx) == 0 {
		y = &mat.VecDense{}
	}
	return &Dataset{Features: d.Features.Rows(idx), Labels: y, LabelName: d.LabelName}
}

// RequireColumns returns a ValidationError naming the first column of names
// that is not a feature.
func (d *Dataset) RequireColumns(names []string) error {
	return RequireColumns(d.Features, names)
}

// RequireColumns returns a ValidationError naming the first column of names
// that is missing from f.
func RequireColumns(f *Frame, names []string) error {
	for _, n := range names {
		if f.Index(n) < 0 {
			return errors.NewValidationError("categorical", "column is not a feature", n)
		}
	}
	return nil
}
