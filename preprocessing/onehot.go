package preprocessing

import (
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// OneHotEncoder は指定列を指示変数列に置き換える（pandas.get_dummies 互換）
//
// エンコード対象外の列は元の順序のまま前に残り、各対象列の指示変数列
// "name_code"（コードは昇順）が Columns の順に末尾へ追加される。
type OneHotEncoder struct {
	state *model.StateManager

	// Columns はエンコードする列のインデックス
	Columns []int

	// DropFirst が true の場合、各グループの先頭の指示変数列を落とす
	DropFirst bool

	// Categories は Columns と同じ順序で、各列の昇順のカテゴリ値
	Categories [][]float64

	kept []int
}

// NewOneHotEncoder は新しいOneHotEncoderを作成する
func NewOneHotEncoder(columns []int, dropFirst bool) *OneHotEncoder {
	return &OneHotEncoder{
		state:     model.NewStateManager(),
		Columns:   append([]int(nil), columns...),
		DropFirst: dropFirst,
	}
}

// Fit は各対象列のカテゴリを学習する
func (o *OneHotEncoder) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("OneHotEncoder.Fit", "empty data", errors.ErrEmptyData)
	}

	encoded := make(map[int]bool, len(o.Columns))
	o.Categories = make([][]float64, len(o.Columns))
	for k, j := range o.Columns {
		if j < 0 || j >= c {
			return errors.NewValidationError("columns", "index out of range", j)
		}
		if encoded[j] {
			return errors.NewValidationError("columns", "duplicate column", j)
		}
		encoded[j] = true
		o.Categories[k] = DistinctValues(mat.Col(nil, j, X))
	}

	o.kept = o.kept[:0]
	for j := 0; j < c; j++ {
		if !encoded[j] {
			o.kept = append(o.kept, j)
		}
	}

	o.state.SetDimensions(c, r)
	o.state.SetFitted()
	return nil
}

// NOutputFeatures は出力列数を返す
func (o *OneHotEncoder) NOutputFeatures() int {
	n := len(o.kept)
	for _, cats := range o.Categories {
		n += o.groupWidth(cats)
	}
	return n
}

func (o *OneHotEncoder) groupWidth(cats []float64) int {
	if o.DropFirst && len(cats) > 0 {
		return len(cats) - 1
	}
	return len(cats)
}

// Transform は指示変数列を含む行列を返す
// 学習時に現れなかった値は全ての指示変数が0になる
func (o *OneHotEncoder) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := o.state.RequireFitted("OneHotEncoder", "Transform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := o.state.CheckFeatures("OneHotEncoder.Transform", c); err != nil {
		return nil, err
	}

	out := mat.NewDense(r, o.NOutputFeatures(), nil)
	for i := 0; i < r; i++ {
		row := out.RawRowView(i)
		for k, j := range o.kept {
			row[k] = X.At(i, j)
		}
		offset := len(o.kept)
		for g, j := range o.Columns {
			cats := o.Categories[g]
			v := X.At(i, j)
			pos := sort.SearchFloat64s(cats, v)
			if pos < len(cats) && cats[pos] == v {
				if o.DropFirst {
					pos--
				}
				if pos >= 0 {
					row[offset+pos] = 1
				}
			}
			offset += o.groupWidth(cats)
		}
	}
	return out, nil
}

// FitTransform は学習と変換を同時に行う
func (o *OneHotEncoder) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := o.Fit(X); err != nil {
		return nil, err
	}
	return o.Transform(X)
}

// GetFeatureNamesOut は出力列名を返す
func (o *OneHotEncoder) GetFeatureNamesOut(input []string) ([]string, error) {
	if err := o.state.RequireFitted("OneHotEncoder", "GetFeatureNamesOut"); err != nil {
		return nil, err
	}
	if err := o.state.CheckFeatures("OneHotEncoder.GetFeatureNamesOut", len(input)); err != nil {
		return nil, err
	}

	names := make([]string, 0, o.NOutputFeatures())
	for _, j := range o.kept {
		names = append(names, input[j])
	}
	for g, j := range o.Columns {
		cats := o.Categories[g]
		if o.DropFirst && len(cats) > 0 {
			cats = cats[1:]
		}
		for _, v := range cats {
			names = append(names, input[j]+"_"+strconv.FormatFloat(v, 'f', -1, 64))
		}
	}
	return names, nil
}

// DistinctValues は NaN を除いた昇順の重複なし値を返す
func DistinctValues(values []float64) []float64 {
	seen := make(map[float64]struct{}, len(values))
	out := make([]float64, 0)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}
