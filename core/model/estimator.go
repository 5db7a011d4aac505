package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Estimator は候補アルゴリズムが満たす最小のインターフェース
type Estimator interface {
	Fitter
	Predictor
}

// Regressor は回帰モデルのインターフェース
type Regressor interface {
	Estimator
}

// Classifier は分類モデルのインターフェース
// PredictProba の列順は Classes() の順序と一致する
type Classifier interface {
	Estimator

	// PredictProba は各クラスの予測確率を返す
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes は学習時に観測されたクラスラベル（昇順）を返す
	Classes() []int
}
