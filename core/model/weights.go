package model

import (
	"encoding/json"
	"os"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// WeightsVersion はチェックポイント形式のバージョン
const WeightsVersion = "1"

// LayerWeights は全結合層1つ分の重み
type LayerWeights struct {
	// Weights は (入力次元, 出力次元) の行優先の重み行列
	Weights [][]float64 `json:"weights"`

	// Biases は出力次元のバイアス
	Biases []float64 `json:"biases"`

	// Activation は活性化関数名（relu, sigmoid）
	Activation string `json:"activation"`
}

// ModelWeights はモデルの重みを表す構造体（JSONチェックポイント用）
type ModelWeights struct {
	// ModelType はモデルの種類（MLPClassifier等）
	ModelType string `json:"model_type"`

	// Version はチェックポイント形式のバージョン（互換性チェック用）
	Version string `json:"version"`

	// Layers は入力側から順に並んだ層の重み
	Layers []LayerWeights `json:"layers"`

	// Features は入力特徴量の名前（オプション）
	Features []string `json:"features,omitempty"`

	// Hyperparameters はモデルのハイパーパラメータ
	Hyperparameters map[string]interface{} `json:"hyperparameters"`

	// IsFitted はモデルが学習済みかどうか
	IsFitted bool `json:"is_fitted"`
}

// Checkpointer は重みをJSONチェックポイントとして書き出せるモデルのインターフェース
type Checkpointer interface {
	ExportWeights() (*ModelWeights, error)
	ImportWeights(w *ModelWeights) error
}

// ToJSON はModelWeightsをJSON形式にシリアライズ
func (mw *ModelWeights) ToJSON() ([]byte, error) {
	return json.MarshalIndent(mw, "", "  ")
}

// FromJSON はJSON形式からModelWeightsをデシリアライズ
func (mw *ModelWeights) FromJSON(data []byte) error {
	return json.Unmarshal(data, mw)
}

// Validate はModelWeightsの妥当性を検証
func (mw *ModelWeights) Validate() error {
	if mw.ModelType == "" {
		return errors.NewValidationError("model_type", "is required", mw.ModelType)
	}
	if mw.Version != WeightsVersion {
		return errors.NewValidationError("version", "unsupported checkpoint version", mw.Version)
	}
	if mw.IsFitted && len(mw.Layers) == 0 {
		return errors.NewValidationError("layers", "fitted model must have layers", len(mw.Layers))
	}
	for i, l := range mw.Layers {
		if len(l.Weights) == 0 {
			return errors.NewValidationError("layers", "empty weight matrix", i)
		}
		for _, row := range l.Weights {
			if len(row) != len(l.Biases) {
				return errors.NewDimensionError("ModelWeights.Validate", len(l.Biases), len(row), 1)
			}
		}
		if i > 0 && len(l.Weights) != len(mw.Layers[i-1].Biases) {
			return errors.NewDimensionError("ModelWeights.Validate", len(mw.Layers[i-1].Biases), len(l.Weights), 0)
		}
	}
	return nil
}

// SaveWeights はチェックポイントをJSONファイルに書き出す
func SaveWeights(c Checkpointer, filename string) error {
	w, err := c.ExportWeights()
	if err != nil {
		return err
	}
	data, err := w.ToJSON()
	if err != nil {
		return errors.Wrap(err, "failed to marshal weights")
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", filename)
	}
	return nil
}

// LoadWeights はJSONファイルからチェックポイントを読み込む
func LoadWeights(c Checkpointer, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", filename)
	}
	var w ModelWeights
	if err := w.FromJSON(data); err != nil {
		return errors.Wrap(err, "failed to unmarshal weights")
	}
	if err := w.Validate(); err != nil {
		return err
	}
	return c.ImportWeights(&w)
}
