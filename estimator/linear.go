package estimator

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/automl/core/model"
	"github.com/YuminosukeSato/automl/core/parallel"
	"github.com/YuminosukeSato/automl/pkg/errors"
)

// LinearRegression は最小二乗法による線形回帰モデル
type LinearRegression struct {
	model.BaseEstimator
	Weights   []float64 // 重み（係数）- Public for gob encoding
	Intercept float64   // 切片
	NFeatures int       // 特徴量の数
}

// NewLinearRegression は新しい線形回帰モデルを作成する
func NewLinearRegression() *LinearRegression {
	return &LinearRegression{}
}

// Fit はモデルを訓練データで学習させる
// 正規方程式 w = (X^T * X)^(-1) * X^T * y を使用
func (lr *LinearRegression) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	ry, _ := y.Dims()

	if r == 0 || c == 0 {
		return errors.Wrap(errors.ErrEmptyData, "LinearRegression.Fit")
	}
	if ry != r {
		return errors.NewDimensionError("LinearRegression.Fit", r, ry, 0)
	}

	yVec, err := vecFromMatrix(y)
	if err != nil {
		return err
	}

	lr.NFeatures = c

	// 切片項のために X に 1 の列を追加
	XWithIntercept := mat.NewDense(r, c+1, nil)

	const parallelThreshold = 1000
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			XWithIntercept.Set(i, 0, 1.0)
			for j := 0; j < c; j++ {
				XWithIntercept.Set(i, j+1, X.At(i, j))
			}
		}
	})

	weights, err := solveNormalEquations(XWithIntercept, yVec, 0)
	if err != nil {
		return errors.Wrap(err, "LinearRegression.Fit")
	}

	lr.Intercept = weights[0]
	lr.Weights = weights[1:]

	lr.SetDimensions(c, r)
	lr.SetFitted()
	return nil
}

// Predict は入力データに対する予測を行う
func (lr *LinearRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !lr.IsFitted() {
		return nil, errors.NewNotFittedError("LinearRegression", "Predict")
	}
	if err := checkPredictDims(X, lr.NFeatures); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	predictions := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		pred := lr.Intercept
		for j := 0; j < c; j++ {
			pred += X.At(i, j) * lr.Weights[j]
		}
		predictions.Set(i, 0, pred)
	}
	return predictions, nil
}

// Ridge はL2正則化付き線形回帰モデル
// 正則化は係数のみに適用され、切片には適用されない。
type Ridge struct {
	model.BaseEstimator
	Alpha     float64   // 正則化強度
	Weights   []float64 // Public for gob encoding
	Intercept float64
	NFeatures int
}

// NewRidge は正則化強度alphaのリッジ回帰モデルを作成する
func NewRidge(alpha float64) *Ridge {
	return &Ridge{Alpha: alpha}
}

// Fit はモデルを訓練データで学習させる
// 中心化したデータで (X^T X + αI) w = X^T y を解き、切片は平均から復元する
func (rg *Ridge) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	ry, _ := y.Dims()

	if r == 0 || c == 0 {
		return errors.Wrap(errors.ErrEmptyData, "Ridge.Fit")
	}
	if ry != r {
		return errors.NewDimensionError("Ridge.Fit", r, ry, 0)
	}

	yVec, err := vecFromMatrix(y)
	if err != nil {
		return err
	}

	rg.NFeatures = c

	// 列平均とyの平均で中心化（切片を正則化から外すため）
	colMeans := make([]float64, c)
	for j := 0; j < c; j++ {
		sum := 0.0
		for i := 0; i < r; i++ {
			sum += X.At(i, j)
		}
		colMeans[j] = sum / float64(r)
	}
	yMean := 0.0
	for i := 0; i < r; i++ {
		yMean += yVec[i]
	}
	yMean /= float64(r)

	Xc := mat.NewDense(r, c, nil)
	yc := make([]float64, r)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			Xc.Set(i, j, X.At(i, j)-colMeans[j])
		}
		yc[i] = yVec[i] - yMean
	}

	weights, err := solveNormalEquations(Xc, yc, rg.Alpha)
	if err != nil {
		return errors.Wrap(err, "Ridge.Fit")
	}

	rg.Weights = weights
	rg.Intercept = yMean
	for j := 0; j < c; j++ {
		rg.Intercept -= weights[j] * colMeans[j]
	}

	rg.SetDimensions(c, r)
	rg.SetFitted()
	return nil
}

// Predict は入力データに対する予測を行う
func (rg *Ridge) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !rg.IsFitted() {
		return nil, errors.NewNotFittedError("Ridge", "Predict")
	}
	if err := checkPredictDims(X, rg.NFeatures); err != nil {
		return nil, err
	}
	return linearPredict(X, rg.Weights, rg.Intercept), nil
}

// Lasso はL1正則化付き線形回帰モデル（座標降下法）
type Lasso struct {
	model.BaseEstimator
	Alpha     float64   // 正則化強度
	MaxIter   int       // 座標降下の最大反復回数
	Tol       float64   // 収束判定の許容誤差
	Weights   []float64 // Public for gob encoding
	Intercept float64
	NFeatures int
}

// NewLasso は正則化強度alphaのラッソ回帰モデルを作成する
func NewLasso(alpha float64) *Lasso {
	return &Lasso{Alpha: alpha, MaxIter: 1000, Tol: 1e-4}
}

// Fit はモデルを訓練データで学習させる
// 中心化したデータに対する座標降下法。ソフト閾値処理で係数を疎にする。
func (ls *Lasso) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	ry, _ := y.Dims()

	if r == 0 || c == 0 {
		return errors.Wrap(errors.ErrEmptyData, "Lasso.Fit")
	}
	if ry != r {
		return errors.NewDimensionError("Lasso.Fit", r, ry, 0)
	}

	yVec, err := vecFromMatrix(y)
	if err != nil {
		return err
	}

	ls.NFeatures = c

	colMeans := make([]float64, c)
	for j := 0; j < c; j++ {
		sum := 0.0
		for i := 0; i < r; i++ {
			sum += X.At(i, j)
		}
		colMeans[j] = sum / float64(r)
	}
	yMean := 0.0
	for i := 0; i < r; i++ {
		yMean += yVec[i]
	}
	yMean /= float64(r)

	// 中心化した列と列の二乗ノルムを事前計算
	cols := make([][]float64, c)
	colNorms := make([]float64, c)
	for j := 0; j < c; j++ {
		col := make([]float64, r)
		norm := 0.0
		for i := 0; i < r; i++ {
			v := X.At(i, j) - colMeans[j]
			col[i] = v
			norm += v * v
		}
		cols[j] = col
		colNorms[j] = norm
	}

	weights := make([]float64, c)
	residual := make([]float64, r)
	for i := 0; i < r; i++ {
		residual[i] = yVec[i] - yMean
	}

	threshold := ls.Alpha * float64(r)
	for iter := 0; iter < ls.MaxIter; iter++ {
		maxChange := 0.0
		for j := 0; j < c; j++ {
			if colNorms[j] == 0 {
				continue
			}
			// 現在の係数を外した部分残差との内積
			rho := 0.0
			for i := 0; i < r; i++ {
				rho += cols[j][i] * (residual[i] + cols[j][i]*weights[j])
			}
			wNew := softThreshold(rho, threshold) / colNorms[j]
			if delta := wNew - weights[j]; delta != 0 {
				for i := 0; i < r; i++ {
					residual[i] -= cols[j][i] * delta
				}
				if abs := math.Abs(delta); abs > maxChange {
					maxChange = abs
				}
				weights[j] = wNew
			}
		}
		if maxChange < ls.Tol {
			break
		}
	}

	ls.Weights = weights
	ls.Intercept = yMean
	for j := 0; j < c; j++ {
		ls.Intercept -= weights[j] * colMeans[j]
	}

	ls.SetDimensions(c, r)
	ls.SetFitted()
	return nil
}

// Predict は入力データに対する予測を行う
func (ls *Lasso) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !ls.IsFitted() {
		return nil, errors.NewNotFittedError("Lasso", "Predict")
	}
	if err := checkPredictDims(X, ls.NFeatures); err != nil {
		return nil, err
	}
	return linearPredict(X, ls.Weights, ls.Intercept), nil
}

// softThreshold はL1正則化のソフト閾値処理
func softThreshold(z, gamma float64) float64 {
	switch {
	case z > gamma:
		return z - gamma
	case z < -gamma:
		return z + gamma
	default:
		return 0
	}
}

// linearPredict は y = X*w + b を計算する
func linearPredict(X mat.Matrix, weights []float64, intercept float64) *mat.Dense {
	r, c := X.Dims()
	predictions := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		pred := intercept
		for j := 0; j < c; j++ {
			pred += X.At(i, j) * weights[j]
		}
		predictions.Set(i, 0, pred)
	}
	return predictions
}

// solveNormalEquations は (X^T X + αI) w = X^T y を解く
// α=0 のときは通常の正規方程式になる。特異な場合はErrSingularMatrixを返す。
func solveNormalEquations(X *mat.Dense, y []float64, alpha float64) ([]float64, error) {
	r, c := X.Dims()

	var XT mat.Dense
	XT.CloneFrom(X.T())

	var XTX mat.Dense
	XTX.Mul(&XT, X)

	if alpha > 0 {
		for j := 0; j < c; j++ {
			XTX.Set(j, j, XTX.At(j, j)+alpha)
		}
	}

	yVec := mat.NewVecDense(r, y)
	var XTy mat.VecDense
	XTy.MulVec(&XT, yVec)

	weights := mat.NewVecDense(c, nil)
	if err := weights.SolveVec(&XTX, &XTy); err != nil {
		return nil, errors.ErrSingularMatrix
	}

	out := make([]float64, c)
	for j := 0; j < c; j++ {
		out[j] = weights.AtVec(j)
	}
	return out, nil
}
