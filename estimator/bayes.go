package estimator

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/automl/core/model"
	"github.com/YuminosukeSato/automl/pkg/errors"
)

// GaussianNB はガウシアンナイーブベイズ分類器。
// 各クラス・各特徴量の平均と分散、クラス事前確率を学習し、
// 対数結合確率のソフトマックスで確率を計算する。
type GaussianNB struct {
	model.BaseEstimator
	Priors      []float64   // クラス事前確率 - Public for gob encoding
	Means       [][]float64 // [class][feature]
	Variances   [][]float64 // [class][feature]
	ClassLabels []int
	NFeatures   int
}

// varEps は分散がゼロの特徴量で密度が発散しないための下限
const varEps = 1e-9

// NewGaussianNB はガウシアンナイーブベイズ分類器を作成する
func NewGaussianNB() *GaussianNB {
	return &GaussianNB{}
}

// Fit はクラスごとの平均・分散と事前確率を計算する
func (nb *GaussianNB) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.Wrap(errors.ErrEmptyData, "GaussianNB.Fit")
	}
	yVec, err := vecFromMatrix(y)
	if err != nil {
		return err
	}

	nb.ClassLabels = classSet(yVec)
	nb.NFeatures = c
	nClasses := len(nb.ClassLabels)

	idx := classIndex(nb.ClassLabels)
	counts := make([]float64, nClasses)
	nb.Means = make([][]float64, nClasses)
	nb.Variances = make([][]float64, nClasses)
	for k := 0; k < nClasses; k++ {
		nb.Means[k] = make([]float64, c)
		nb.Variances[k] = make([]float64, c)
	}

	for i := 0; i < r; i++ {
		k := idx[int(math.Round(yVec[i]))]
		counts[k]++
		for j := 0; j < c; j++ {
			nb.Means[k][j] += X.At(i, j)
		}
	}
	for k := 0; k < nClasses; k++ {
		for j := 0; j < c; j++ {
			nb.Means[k][j] /= counts[k]
		}
	}

	for i := 0; i < r; i++ {
		k := idx[int(math.Round(yVec[i]))]
		for j := 0; j < c; j++ {
			diff := X.At(i, j) - nb.Means[k][j]
			nb.Variances[k][j] += diff * diff
		}
	}
	for k := 0; k < nClasses; k++ {
		for j := 0; j < c; j++ {
			nb.Variances[k][j] = nb.Variances[k][j]/counts[k] + varEps
		}
	}

	nb.Priors = make([]float64, nClasses)
	for k := 0; k < nClasses; k++ {
		nb.Priors[k] = counts[k] / float64(r)
	}

	nb.SetDimensions(c, r)
	nb.SetFitted()
	return nil
}

// Predict は最も確率の高いクラスラベルを返す
func (nb *GaussianNB) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := nb.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return probaToLabels(proba, nb.ClassLabels), nil
}

// PredictProba は対数結合確率をソフトマックスで正規化した確率を返す
func (nb *GaussianNB) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !nb.IsFitted() {
		return nil, errors.NewNotFittedError("GaussianNB", "PredictProba")
	}
	if err := checkPredictDims(X, nb.NFeatures); err != nil {
		return nil, err
	}

	r, _ := X.Dims()
	nClasses := len(nb.ClassLabels)
	proba := mat.NewDense(r, nClasses, nil)
	logJoint := make([]float64, nClasses)

	for i := 0; i < r; i++ {
		maxLog := math.Inf(-1)
		for k := 0; k < nClasses; k++ {
			lj := math.Log(nb.Priors[k])
			for j := 0; j < nb.NFeatures; j++ {
				diff := X.At(i, j) - nb.Means[k][j]
				v := nb.Variances[k][j]
				lj -= 0.5*math.Log(2*math.Pi*v) + diff*diff/(2*v)
			}
			logJoint[k] = lj
			if lj > maxLog {
				maxLog = lj
			}
		}
		// log-sum-expで数値安定に正規化
		sum := 0.0
		for k := 0; k < nClasses; k++ {
			logJoint[k] = math.Exp(logJoint[k] - maxLog)
			sum += logJoint[k]
		}
		for k := 0; k < nClasses; k++ {
			proba.Set(i, k, logJoint[k]/sum)
		}
	}
	return proba, nil
}

// Classes は学習時に観測されたクラスラベル（昇順）を返す
func (nb *GaussianNB) Classes() []int {
	return nb.ClassLabels
}
