package preprocessing

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// PolynomialFeatures はscikit-learn互換の多項式特徴量生成器
// 次数 degree 以下の全ての単項式を生成する（バイアス項なし）
//
// 出力列の順序は scikit-learn と同じく、次数ごとに重複組合せの辞書順となる。
// 例: [a, b], degree=2 → [a, b, a^2, a b, b^2]
type PolynomialFeatures struct {
	state *model.StateManager

	// Degree は最大次数
	Degree int

	// combos[k] は k 番目の出力列を構成する入力列のインデックス（昇順）
	combos [][]int
	// parent[k] は combos[k] の末尾を除いた組合せの出力列番号（1次なら -1）
	parent []int
}

// NewPolynomialFeatures は新しいPolynomialFeaturesを作成する
func NewPolynomialFeatures(degree int) *PolynomialFeatures {
	return &PolynomialFeatures{
		state:  model.NewStateManager(),
		Degree: degree,
	}
}

// Fit は入力の列数から出力列の組合せを決定する
func (p *PolynomialFeatures) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("PolynomialFeatures.Fit", "empty data", errors.ErrEmptyData)
	}
	if p.Degree < 1 {
		return errors.NewValidationError("degree", "must be >= 1", p.Degree)
	}

	p.combos = p.combos[:0]
	p.parent = p.parent[:0]

	// 1次
	prev := make([]int, 0, c)
	for j := 0; j < c; j++ {
		prev = append(prev, len(p.combos))
		p.combos = append(p.combos, []int{j})
		p.parent = append(p.parent, -1)
	}
	// 2次以上: 前の次数の各組合せに、その末尾以上のインデックスを追加する
	for d := 2; d <= p.Degree; d++ {
		next := make([]int, 0, len(prev))
		for _, idx := range prev {
			base := p.combos[idx]
			for j := base[len(base)-1]; j < c; j++ {
				combo := make([]int, len(base)+1)
				copy(combo, base)
				combo[len(base)] = j
				next = append(next, len(p.combos))
				p.combos = append(p.combos, combo)
				p.parent = append(p.parent, idx)
			}
		}
		prev = next
	}

	p.state.SetDimensions(c, r)
	p.state.SetFitted()
	return nil
}

// NOutputFeatures は出力列数を返す
func (p *PolynomialFeatures) NOutputFeatures() int {
	return len(p.combos)
}

// Transform は多項式特徴量を計算する
func (p *PolynomialFeatures) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := p.state.RequireFitted("PolynomialFeatures", "Transform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := p.state.CheckFeatures("PolynomialFeatures.Transform", c); err != nil {
		return nil, err
	}

	out := mat.NewDense(r, len(p.combos), nil)
	for i := 0; i < r; i++ {
		row := out.RawRowView(i)
		for k, combo := range p.combos {
			last := X.At(i, combo[len(combo)-1])
			if p.parent[k] < 0 {
				row[k] = last
			} else {
				row[k] = row[p.parent[k]] * last
			}
		}
	}
	return out, nil
}

// FitTransform は学習と変換を同時に行う
func (p *PolynomialFeatures) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := p.Fit(X); err != nil {
		return nil, err
	}
	return p.Transform(X)
}

// GetFeatureNamesOut は出力列名を返す
// 冪は "a^2"、積は空白区切り "a b" で表す
func (p *PolynomialFeatures) GetFeatureNamesOut(input []string) ([]string, error) {
	if err := p.state.RequireFitted("PolynomialFeatures", "GetFeatureNamesOut"); err != nil {
		return nil, err
	}
	if err := p.state.CheckFeatures("PolynomialFeatures.GetFeatureNamesOut", len(input)); err != nil {
		return nil, err
	}

	names := make([]string, len(p.combos))
	for k, combo := range p.combos {
		var parts []string
		for s := 0; s < len(combo); {
			e := s
			for e < len(combo) && combo[e] == combo[s] {
				e++
			}
			if power := e - s; power == 1 {
				parts = append(parts, input[combo[s]])
			} else {
				parts = append(parts, fmt.Sprintf("%s^%d", input[combo[s]], power))
			}
			s = e
		}
		names[k] = strings.Join(parts, " ")
	}
	return names, nil
}
