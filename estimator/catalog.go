// Package estimator は候補アルゴリズムの閉じた集合を提供します。
//
// 各アルゴリズムはDescriptorとして登録され、トレーナーはこの一覧を順に
// 走査して学習する。文字列分岐をコードに散らさないための設計。
// 学習済みパラメータは全てエクスポートされたフィールドで、gobで
// そのまま永続化できる。
package estimator

import (
	"encoding/gob"
	"math"

	"github.com/YuminosukeSato/automl/core/model"
	"github.com/YuminosukeSato/automl/dataset"
)

// TrainSpec は候補を構築する際に分かっている学習条件
type TrainSpec struct {
	// Seed は確率的な要素を持つアルゴリズムのシード
	Seed int64

	// NTrain は学習パーティションの行数（k-NNのk導出などに使う）
	NTrain int
}

// Descriptor は一つの候補アルゴリズムの記述子
type Descriptor struct {
	// Name は結果・選定・APIで使われる表示名
	Name string

	// Problem はこのアルゴリズムが適用される問題種別
	Problem dataset.ProblemType

	// New は学習条件からライブラリ既定のハイパーパラメータで推定器を構築する
	New func(spec TrainSpec) model.Estimator
}

// knnNeighbors は学習行数からkを導出する: clamp(round(sqrt(n)), 3, 20)
func knnNeighbors(nTrain int) int {
	k := int(math.Sqrt(float64(nTrain)))
	if k < 3 {
		k = 3
	}
	if k > 20 {
		k = 20
	}
	return k
}

// Catalog は指定された問題種別の候補アルゴリズム一覧を登録順で返す
// 分類は7種、回帰は8種の閉じた集合。
func Catalog(problem dataset.ProblemType) []Descriptor {
	switch problem {
	case dataset.Classification:
		return []Descriptor{
			{Name: "Logistic Regression", Problem: problem, New: func(spec TrainSpec) model.Estimator {
				return NewLogisticRegression(spec.Seed)
			}},
			{Name: "Random Forest", Problem: problem, New: func(spec TrainSpec) model.Estimator {
				return NewRandomForestClassifier(100, spec.Seed)
			}},
			{Name: "Support Vector Machine", Problem: problem, New: func(spec TrainSpec) model.Estimator {
				return NewSVC(spec.Seed)
			}},
			{Name: "K-Nearest Neighbors", Problem: problem, New: func(spec TrainSpec) model.Estimator {
				return NewKNNClassifier(knnNeighbors(spec.NTrain))
			}},
			{Name: "Naive Bayes", Problem: problem, New: func(spec TrainSpec) model.Estimator {
				return NewGaussianNB()
			}},
			{Name: "Decision Tree", Problem: problem, New: func(spec TrainSpec) model.Estimator {
				return NewDecisionTreeClassifier(10, spec.Seed)
			}},
			{Name: "Gradient Boosting", Problem: problem, New: func(spec TrainSpec) model.Estimator {
				return NewGradientBoostingClassifier(100, 5, 0.1, spec.Seed)
			}},
		}
	case dataset.Regression:
		return []Descriptor{
			{Name: "Linear Regression", Problem: problem, New: func(spec TrainSpec) model.Estimator {
				return NewLinearRegression()
			}},
			{Name: "Ridge Regression", Problem: problem, New: func(spec TrainSpec) model.Estimator {
				return NewRidge(1.0)
			}},
			{Name: "Lasso Regression", Problem: problem, New: func(spec TrainSpec) model.Estimator {
				return NewLasso(1.0)
			}},
			{Name: "Random Forest", Problem: problem, New: func(spec TrainSpec) model.Estimator {
				return NewRandomForestRegressor(100, spec.Seed)
			}},
			{Name: "Support Vector Machine", Problem: problem, New: func(spec TrainSpec) model.Estimator {
				return NewSVR(spec.Seed)
			}},
			{Name: "K-Nearest Neighbors", Problem: problem, New: func(spec TrainSpec) model.Estimator {
				return NewKNNRegressor(knnNeighbors(spec.NTrain))
			}},
			{Name: "Decision Tree", Problem: problem, New: func(spec TrainSpec) model.Estimator {
				return NewDecisionTreeRegressor(10, spec.Seed)
			}},
			{Name: "Gradient Boosting", Problem: problem, New: func(spec TrainSpec) model.Estimator {
				return NewGradientBoostingRegressor(100, 5, 0.1, spec.Seed)
			}},
		}
	}
	return nil
}

// モデルバンドルはEstimatorインターフェース越しにgobエンコードされるため、
// 全ての具象型を登録しておく。
func init() {
	gob.Register(&LinearRegression{})
	gob.Register(&Ridge{})
	gob.Register(&Lasso{})
	gob.Register(&LogisticRegression{})
	gob.Register(&DecisionTreeClassifier{})
	gob.Register(&DecisionTreeRegressor{})
	gob.Register(&RandomForestClassifier{})
	gob.Register(&RandomForestRegressor{})
	gob.Register(&GradientBoostingClassifier{})
	gob.Register(&GradientBoostingRegressor{})
	gob.Register(&KNNClassifier{})
	gob.Register(&KNNRegressor{})
	gob.Register(&GaussianNB{})
	gob.Register(&SVC{})
	gob.Register(&SVR{})
}
