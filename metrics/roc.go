package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// ROCCurve は二値ラベルとスコアから ROC 曲線を計算する
//
// 閾値はスコアの降順に、異なる値ごとに1点を取る。先頭には (0, 0) と閾値 +Inf を置く。
// 直線上に並ぶ中間点は取り除く。陽性（または陰性）が存在しない場合は
// UndefinedMetricWarning を出し、該当する率を 0 で埋める。
func ROCCurve(yTrue, scores []float64) (fpr, tpr, thresholds []float64, err error) {
	n := len(yTrue)
	if n == 0 {
		return nil, nil, nil, errors.NewValueError("ROCCurve", "empty input")
	}
	if len(scores) != n {
		return nil, nil, nil, errors.NewDimensionError("ROCCurve", n, len(scores), 0)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	// 異なるスコアの境界ごとに累積 TP / FP を記録する
	var tps, fps []float64
	var tp, fp float64
	for i, idx := range order {
		switch yTrue[idx] {
		case 1:
			tp++
		case 0:
			fp++
		default:
			return nil, nil, nil, errors.NewValueError("ROCCurve", "labels must be binary (0 or 1)")
		}
		if i == n-1 || scores[order[i+1]] != scores[idx] {
			tps = append(tps, tp)
			fps = append(fps, fp)
			thresholds = append(thresholds, scores[idx])
		}
	}

	tps, fps, thresholds = dropIntermediate(tps, fps, thresholds)

	tps = append([]float64{0}, tps...)
	fps = append([]float64{0}, fps...)
	thresholds = append([]float64{math.Inf(1)}, thresholds...)

	fpr = make([]float64, len(fps))
	tpr = make([]float64, len(tps))
	if fp > 0 {
		floats.ScaleTo(fpr, 1/fp, fps)
	} else {
		errors.Warn(errors.NewUndefinedMetricWarning("roc_curve", "no negative samples in y_true, false positive rate", 0))
	}
	if tp > 0 {
		floats.ScaleTo(tpr, 1/tp, tps)
	} else {
		errors.Warn(errors.NewUndefinedMetricWarning("roc_curve", "no positive samples in y_true, true positive rate", 0))
	}
	return fpr, tpr, thresholds, nil
}

// dropIntermediate は前後の点と同一直線上にある点を除く（端点は残す）
func dropIntermediate(tps, fps, thr []float64) ([]float64, []float64, []float64) {
	if len(tps) <= 2 {
		return tps, fps, thr
	}
	keep := []int{0}
	for i := 1; i < len(tps)-1; i++ {
		d2fps := fps[i+1] - 2*fps[i] + fps[i-1]
		d2tps := tps[i+1] - 2*tps[i] + tps[i-1]
		if d2fps != 0 || d2tps != 0 {
			keep = append(keep, i)
		}
	}
	keep = append(keep, len(tps)-1)

	outT := make([]float64, len(keep))
	outF := make([]float64, len(keep))
	outThr := make([]float64, len(keep))
	for i, k := range keep {
		outT[i], outF[i], outThr[i] = tps[k], fps[k], thr[k]
	}
	return outT, outF, outThr
}

// Interp は区分線形補間を行う
//
// xp は昇順（重複可）。x が範囲外なら端の値を返す。xp に重複がある場合は
// xp[j] <= x を満たす最後の j を起点とする。
func Interp(x, xp, fp []float64) ([]float64, error) {
	if len(xp) == 0 || len(xp) != len(fp) {
		return nil, errors.NewDimensionError("Interp", len(xp), len(fp), 0)
	}
	out := make([]float64, len(x))
	last := len(xp) - 1
	for i, v := range x {
		switch {
		case math.IsNaN(v):
			out[i] = math.NaN()
		case v < xp[0]:
			out[i] = fp[0]
		case v >= xp[last]:
			out[i] = fp[last]
		default:
			// xp[j] <= v < xp[j+1]
			j := sort.Search(len(xp), func(k int) bool { return xp[k] > v }) - 1
			slope := (fp[j+1] - fp[j]) / (xp[j+1] - xp[j])
			out[i] = fp[j] + slope*(v-xp[j])
		}
	}
	return out, nil
}

// AUCTrapezoid は台形則で曲線下面積を計算する
// x は単調（増加または減少）でなければならない
func AUCTrapezoid(x, y []float64) (float64, error) {
	if len(x) < 2 {
		return 0, errors.NewValueError("AUCTrapezoid", "at least 2 points are needed to compute area under curve")
	}
	if len(y) != len(x) {
		return 0, errors.NewDimensionError("AUCTrapezoid", len(x), len(y), 0)
	}

	direction := 1.0
	dx := make([]float64, len(x)-1)
	for i := range dx {
		dx[i] = x[i+1] - x[i]
	}
	if floats.Min(dx) < 0 {
		if floats.Max(dx) > 0 {
			return 0, errors.NewValueError("AUCTrapezoid", "x is neither increasing nor decreasing")
		}
		direction = -1
	}

	var area float64
	for i, d := range dx {
		area += d * (y[i] + y[i+1]) / 2
	}
	return direction * area, nil
}

// Linspace は [start, stop] を等間隔に n 点で分割する
func Linspace(start, stop float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{start}
	}
	return floats.Span(make([]float64, n), start, stop)
}

// ROCAccumulator は交差検証の各 fold の ROC 曲線を固定の FPR グリッド上で平均する
type ROCAccumulator struct {
	grid []float64
	sum  []float64
	aucs []float64
}

// NewROCAccumulator は n 点の等間隔 FPR グリッドを持つアキュムレータを作る
func NewROCAccumulator(n int) *ROCAccumulator {
	return &ROCAccumulator{
		grid: Linspace(0, 1, n),
		sum:  make([]float64, n),
	}
}

// Add は1つの fold の ROC 曲線をグリッド上に補間して加算する
// 加算後、先頭点は 0 に固定される。fold 単体の AUC を返す。
func (a *ROCAccumulator) Add(fpr, tpr []float64) (float64, error) {
	interp, err := Interp(a.grid, fpr, tpr)
	if err != nil {
		return 0, err
	}
	floats.Add(a.sum, interp)
	a.sum[0] = 0

	foldAUC, err := AUCTrapezoid(fpr, tpr)
	if err != nil {
		return 0, err
	}
	a.aucs = append(a.aucs, foldAUC)
	return foldAUC, nil
}

// FoldAUCs は Add で計算した fold ごとの AUC を返す
func (a *ROCAccumulator) FoldAUCs() []float64 {
	return append([]float64(nil), a.aucs...)
}

// Mean は加算結果を nSplits で割った平均曲線と、その AUC を返す
// 末尾の点は 1 に固定される。
func (a *ROCAccumulator) Mean(nSplits int) (fpr, tpr []float64, auc float64, err error) {
	if nSplits < 1 {
		return nil, nil, 0, errors.NewValueError("ROCAccumulator.Mean", "n_splits must be positive")
	}
	tpr = make([]float64, len(a.sum))
	floats.ScaleTo(tpr, 1/float64(nSplits), a.sum)
	tpr[len(tpr)-1] = 1

	fpr = append([]float64(nil), a.grid...)
	auc, err = AUCTrapezoid(fpr, tpr)
	if err != nil {
		return nil, nil, 0, err
	}
	return fpr, tpr, auc, nil
}
