package automl

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/automl/core/model"
	"github.com/YuminosukeSato/automl/dataset"
	"github.com/YuminosukeSato/automl/metrics"
)

// 評価結果のメトリクスキー。APIレスポンスにもこの名前のまま現れる。
const (
	MetricAccuracy  = "accuracy"
	MetricPrecision = "precision"
	MetricRecall    = "recall"
	MetricF1        = "f1Score"
	MetricROCAUC    = "rocAuc"

	MetricR2   = "r2Score"
	MetricMSE  = "meanSquaredError"
	MetricMAE  = "meanAbsoluteError"
	MetricRMSE = "rootMeanSquaredError"
)

// Evaluate は学習済み推定器を評価パーティションで採点し、
// 問題種別ごとの統一キーのメトリクスを返す。
//
// 分類: accuracy, precision, recall, f1Score, rocAuc
// 回帰: r2Score, meanSquaredError, meanAbsoluteError, rootMeanSquaredError
//
// rocAucは確率を出せない推定器や定義できない条件では0になる。
func Evaluate(problem dataset.ProblemType, est model.Estimator, XTest *mat.Dense, yTest *mat.VecDense) (map[string]float64, error) {
	pred, err := est.Predict(XTest)
	if err != nil {
		return nil, err
	}
	yPred := predToVec(pred)

	switch problem {
	case dataset.Classification:
		return evaluateClassification(est, XTest, yTest, yPred)
	default:
		return evaluateRegression(yTest, yPred)
	}
}

func evaluateClassification(est model.Estimator, XTest *mat.Dense, yTest, yPred *mat.VecDense) (map[string]float64, error) {
	accuracy, err := metrics.Accuracy(yTest, yPred)
	if err != nil {
		return nil, err
	}
	precision, err := metrics.PrecisionWeighted(yTest, yPred)
	if err != nil {
		return nil, err
	}
	recall, err := metrics.RecallWeighted(yTest, yPred)
	if err != nil {
		return nil, err
	}
	f1, err := metrics.F1Weighted(yTest, yPred)
	if err != nil {
		return nil, err
	}

	return map[string]float64{
		MetricAccuracy:  accuracy,
		MetricPrecision: precision,
		MetricRecall:    recall,
		MetricF1:        f1,
		MetricROCAUC:    rocAUC(est, XTest, yTest),
	}, nil
}

// rocAUC は確率が得られる分類器のROC-AUCを計算する。
// 計算できない条件（確率なし・計算エラー）では未定義として0を返す。
func rocAUC(est model.Estimator, XTest *mat.Dense, yTest *mat.VecDense) float64 {
	clf, ok := est.(model.Classifier)
	if !ok {
		return 0
	}
	proba, err := clf.PredictProba(XTest)
	if err != nil {
		return 0
	}

	nClasses := len(clf.Classes())
	if nClasses == 2 {
		n := yTest.Len()
		scores := mat.NewVecDense(n, nil)
		for i := 0; i < n; i++ {
			scores.SetVec(i, proba.At(i, 1))
		}
		auc, err := metrics.AUC(yTest, scores)
		if err != nil {
			return 0
		}
		return auc
	}

	auc, err := metrics.AUCOVRMacro(yTest, proba)
	if err != nil {
		return 0
	}
	return auc
}

func evaluateRegression(yTest, yPred *mat.VecDense) (map[string]float64, error) {
	r2, err := metrics.R2Score(yTest, yPred)
	if err != nil {
		return nil, err
	}
	mse, err := metrics.MSE(yTest, yPred)
	if err != nil {
		return nil, err
	}
	mae, err := metrics.MAE(yTest, yPred)
	if err != nil {
		return nil, err
	}
	rmse, err := metrics.RMSE(yTest, yPred)
	if err != nil {
		return nil, err
	}

	return map[string]float64{
		MetricR2:   r2,
		MetricMSE:  mse,
		MetricMAE:  mae,
		MetricRMSE: rmse,
	}, nil
}

// predToVec は予測のn×1行列をVecDenseに変換する
func predToVec(pred mat.Matrix) *mat.VecDense {
	r, _ := pred.Dims()
	v := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		v.SetVec(i, pred.At(i, 0))
	}
	return v
}
