package estimator

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/automl/core/model"
	"github.com/YuminosukeSato/automl/pkg/errors"
)

// KNNClassifier はユークリッド距離によるk近傍分類器。
// 学習は訓練データの保持のみで、予測時に距離計算を行う。
type KNNClassifier struct {
	model.BaseEstimator
	K           int
	TrainX      [][]float64 // Public for gob encoding
	TrainY      []int       // クラスインデックス
	ClassLabels []int
	NFeatures   int
}

// NewKNNClassifier はk個の近傍を使う分類器を作成する
func NewKNNClassifier(k int) *KNNClassifier {
	return &KNNClassifier{K: k}
}

// Fit は訓練データを保持する
func (kn *KNNClassifier) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.Wrap(errors.ErrEmptyData, "KNNClassifier.Fit")
	}
	yVec, err := vecFromMatrix(y)
	if err != nil {
		return err
	}

	kn.ClassLabels = classSet(yVec)
	kn.NFeatures = c

	idx := classIndex(kn.ClassLabels)
	kn.TrainX = make([][]float64, r)
	kn.TrainY = make([]int, r)
	for i := 0; i < r; i++ {
		row := make([]float64, c)
		for j := 0; j < c; j++ {
			row[j] = X.At(i, j)
		}
		kn.TrainX[i] = row
		kn.TrainY[i] = idx[int(math.Round(yVec[i]))]
	}

	kn.SetDimensions(c, r)
	kn.SetFitted()
	return nil
}

// Predict は近傍の多数決クラスラベルを返す
func (kn *KNNClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := kn.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return probaToLabels(proba, kn.ClassLabels), nil
}

// PredictProba は近傍のクラス割合を確率として返す
func (kn *KNNClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !kn.IsFitted() {
		return nil, errors.NewNotFittedError("KNNClassifier", "PredictProba")
	}
	if err := checkPredictDims(X, kn.NFeatures); err != nil {
		return nil, err
	}

	r, _ := X.Dims()
	nClasses := len(kn.ClassLabels)
	proba := mat.NewDense(r, nClasses, nil)
	var rowBuf []float64

	for i := 0; i < r; i++ {
		rowBuf = rowOf(X, i, rowBuf)
		neighbors := kn.nearest(rowBuf)
		for _, t := range neighbors {
			proba.Set(i, kn.TrainY[t], proba.At(i, kn.TrainY[t])+1)
		}
		for k := 0; k < nClasses; k++ {
			proba.Set(i, k, proba.At(i, k)/float64(len(neighbors)))
		}
	}
	return proba, nil
}

// Classes は学習時に観測されたクラスラベル（昇順）を返す
func (kn *KNNClassifier) Classes() []int {
	return kn.ClassLabels
}

// nearest はクエリ点に最も近いk個の訓練行インデックスを返す
func (kn *KNNClassifier) nearest(query []float64) []int {
	return nearestIndices(kn.TrainX, query, kn.K)
}

// KNNRegressor はk近傍の平均による回帰器
type KNNRegressor struct {
	model.BaseEstimator
	K         int
	TrainX    [][]float64 // Public for gob encoding
	TrainY    []float64
	NFeatures int
}

// NewKNNRegressor はk個の近傍を使う回帰器を作成する
func NewKNNRegressor(k int) *KNNRegressor {
	return &KNNRegressor{K: k}
}

// Fit は訓練データを保持する
func (kn *KNNRegressor) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.Wrap(errors.ErrEmptyData, "KNNRegressor.Fit")
	}
	yVec, err := vecFromMatrix(y)
	if err != nil {
		return err
	}

	kn.NFeatures = c
	kn.TrainX = make([][]float64, r)
	kn.TrainY = yVec
	for i := 0; i < r; i++ {
		row := make([]float64, c)
		for j := 0; j < c; j++ {
			row[j] = X.At(i, j)
		}
		kn.TrainX[i] = row
	}

	kn.SetDimensions(c, r)
	kn.SetFitted()
	return nil
}

// Predict は近傍のターゲット平均を返す
func (kn *KNNRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !kn.IsFitted() {
		return nil, errors.NewNotFittedError("KNNRegressor", "Predict")
	}
	if err := checkPredictDims(X, kn.NFeatures); err != nil {
		return nil, err
	}

	r, _ := X.Dims()
	predictions := mat.NewDense(r, 1, nil)
	var rowBuf []float64

	for i := 0; i < r; i++ {
		rowBuf = rowOf(X, i, rowBuf)
		neighbors := nearestIndices(kn.TrainX, rowBuf, kn.K)
		sum := 0.0
		for _, t := range neighbors {
			sum += kn.TrainY[t]
		}
		predictions.Set(i, 0, sum/float64(len(neighbors)))
	}
	return predictions, nil
}

// nearestIndices は距離の近い順にk個の訓練行インデックスを返す。
// kが訓練行数を超える場合は全行を返す。同距離は行番号の小さい方を優先する。
func nearestIndices(trainX [][]float64, query []float64, k int) []int {
	n := len(trainX)
	if k > n {
		k = n
	}

	dists := make([]float64, n)
	order := make([]int, n)
	for i, row := range trainX {
		d := 0.0
		for j, v := range row {
			diff := v - query[j]
			d += diff * diff
		}
		dists[i] = d
		order[i] = i
	}

	sort.Slice(order, func(a, b int) bool {
		if dists[order[a]] != dists[order[b]] {
			return dists[order[a]] < dists[order[b]]
		}
		return order[a] < order[b]
	})
	return order[:k]
}
