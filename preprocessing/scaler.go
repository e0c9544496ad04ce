// Package preprocessing は特徴量の標準化・多項式展開・one-hot エンコーディングを提供する
package preprocessing

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// zeroScaleTolerance 未満の標準偏差を持つ列（定数列）はスケール1のまま残す
const zeroScaleTolerance = 1e-8

// StandardScaler は各列を平均0・標準偏差1に変換する
//
// 分散は母分散（自由度 n）で計算する。one-hot 列や定数列もそのまま受け付ける。
type StandardScaler struct {
	state *model.StateManager

	// Mean は列ごとの平均
	Mean []float64
	// Scale は列ごとの標準偏差（定数列では1）
	Scale []float64
}

// NewStandardScaler は未学習のスケーラーを返す
//
//	XScaled, err := preprocessing.NewStandardScaler().FitTransform(X)
func NewStandardScaler() *StandardScaler {
	return &StandardScaler{state: model.NewStateManager()}
}

// Fit は列ごとの平均と標準偏差を求める
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)
	col := make([]float64, r)
	for j := range c {
		mat.Col(col, j, X)
		mean, std := stat.PopMeanStdDev(col, nil)
		s.Mean[j] = mean
		s.Scale[j] = 1
		if std >= zeroScaleTolerance {
			s.Scale[j] = std
		}
	}

	s.state.SetDimensions(c, r)
	s.state.SetFitted()
	return nil
}

// Transform は (x - Mean) / Scale を返す
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	return s.apply("Transform", X, func(v, mean, scale float64) float64 {
		return (v - mean) / scale
	})
}

// FitTransform は Fit の後に同じデータを Transform する
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform は標準化前のスケールに戻す
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	return s.apply("InverseTransform", X, func(v, mean, scale float64) float64 {
		return v*scale + mean
	})
}

func (s *StandardScaler) apply(method string, X mat.Matrix, f func(v, mean, scale float64) float64) (mat.Matrix, error) {
	if err := s.state.RequireFitted("StandardScaler", method); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := s.state.CheckFeatures("StandardScaler."+method, c); err != nil {
		return nil, err
	}

	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, j int, v float64) float64 {
		return f(v, s.Mean[j], s.Scale[j])
	}, X)
	return out, nil
}
