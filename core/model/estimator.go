package model

import "gonum.org/v1/gonum/mat"

// Classifier は二値分類器のインターフェース
//
// y と Predict の出力は (n_samples, 1) の列行列で、PredictProba の列はクラスの昇順に並ぶ。
// パイプラインは PredictProba の最終列を陽性クラスのスコアとして使う。
type Classifier interface {
	Fit(X, y mat.Matrix) error
	Predict(X mat.Matrix) (mat.Matrix, error)
	PredictProba(X mat.Matrix) (mat.Matrix, error)
}

// FeatureImportancer は特徴量重要度を持つモデル（ランダムフォレスト）
type FeatureImportancer interface {
	// FeatureImportances は非負で合計1の重要度を返す
	FeatureImportances() []float64
}
