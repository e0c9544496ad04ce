package errors

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// maxReportedValues は NumericalInstabilityError に含める値の上限です。
const maxReportedValues = 10

func unstable(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// CheckNumericalStability は values に NaN または Inf が含まれていればエラーを返します。
// 最適化の反復ごとにパラメータを検査する用途を想定しています。
func CheckNumericalStability(op string, values []float64, iteration int) error {
	var bad []float64
	for _, v := range values {
		if unstable(v) {
			bad = append(bad, v)
			if len(bad) == maxReportedValues {
				break
			}
		}
	}
	if bad != nil {
		return NewNumericalInstabilityError(op, bad, iteration)
	}
	return nil
}

// CheckScalar は損失などのスカラー値を検査します。
func CheckScalar(op string, value float64, iteration int) error {
	if unstable(value) {
		return NewNumericalInstabilityError(op, []float64{value}, iteration)
	}
	return nil
}

// CheckMatrix は行列全体を検査します。
// 前処理の出力が後段の SVD や学習に渡る前に使います。
func CheckMatrix(op string, m mat.Matrix) error {
	r, c := m.Dims()
	var bad []float64
	for i := 0; i < r && len(bad) < maxReportedValues; i++ {
		for j := 0; j < c && len(bad) < maxReportedValues; j++ {
			if v := m.At(i, j); unstable(v) {
				bad = append(bad, v)
			}
		}
	}
	if bad != nil {
		return NewNumericalInstabilityError(op, bad, 0)
	}
	return nil
}

// ClipValue は value を [lo, hi] に収めます。
func ClipValue(value, lo, hi float64) float64 {
	return math.Min(math.Max(value, lo), hi)
}

// LogSigmoid は log(1 / (1 + exp(-z))) をオーバーフローなしで計算します。
func LogSigmoid(z float64) float64 {
	if z >= 0 {
		return -math.Log1p(math.Exp(-z))
	}
	return z - math.Log1p(math.Exp(z))
}
