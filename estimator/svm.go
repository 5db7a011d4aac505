package estimator

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/automl/core/model"
	"github.com/YuminosukeSato/automl/pkg/errors"
)

// SVC は線形サポートベクタ分類器。
// ヒンジ損失を確率的勾配降下で最小化する（Pegasos方式の学習率スケジュール）。
// 多クラスはone-vs-restで、確率は決定関数のシグモイドを正規化して得る。
type SVC struct {
	model.BaseEstimator

	// Hyperparameters
	C       float64 // 正則化の逆数（λ = 1/(C·n)）
	Epochs  int
	Seed    int64

	// Learned parameters - Public for gob encoding
	Coef        [][]float64 // クラスごとの重みベクトル（二値は1本）
	InterceptV  []float64
	ClassLabels []int
	NFeatures   int
}

// NewSVC は既定パラメータの線形SVCを作成する
func NewSVC(seed int64) *SVC {
	return &SVC{C: 1.0, Epochs: 50, Seed: seed}
}

// Fit はモデルを訓練データで学習させる
func (s *SVC) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.Wrap(errors.ErrEmptyData, "SVC.Fit")
	}
	yVec, err := vecFromMatrix(y)
	if err != nil {
		return err
	}

	s.ClassLabels = classSet(yVec)
	s.NFeatures = c
	if len(s.ClassLabels) < 2 {
		return errors.NewValidationError("target", "classification requires at least 2 classes", len(s.ClassLabels))
	}

	nVectors := len(s.ClassLabels)
	if nVectors == 2 {
		nVectors = 1
	}

	s.Coef = make([][]float64, nVectors)
	s.InterceptV = make([]float64, nVectors)

	for v := 0; v < nVectors; v++ {
		positive := s.ClassLabels[v]
		if nVectors == 1 {
			positive = s.ClassLabels[1]
		}
		// ±1ラベルに変換
		signed := make([]float64, r)
		for i := 0; i < r; i++ {
			if int(math.Round(yVec[i])) == positive {
				signed[i] = 1.0
			} else {
				signed[i] = -1.0
			}
		}
		weights, intercept := s.fitHinge(X, signed, s.Seed+int64(v))
		s.Coef[v] = weights
		s.InterceptV[v] = intercept
	}

	s.SetDimensions(c, r)
	s.SetFitted()
	return nil
}

// fitHinge は±1ラベルの二値問題をヒンジ損失のSGDで解く
func (s *SVC) fitHinge(X mat.Matrix, signed []float64, seed int64) ([]float64, float64) {
	r, c := X.Dims()
	weights := make([]float64, c)
	intercept := 0.0
	lambda := 1.0 / (s.C * float64(r))
	rng := rand.New(rand.NewSource(seed))
	order := make([]int, r)
	for i := range order {
		order[i] = i
	}

	t := 0
	for epoch := 0; epoch < s.Epochs; epoch++ {
		rng.Shuffle(r, func(a, b int) { order[a], order[b] = order[b], order[a] })
		for _, i := range order {
			t++
			eta := 1.0 / (lambda * float64(t))
			margin := intercept
			for j := 0; j < c; j++ {
				margin += X.At(i, j) * weights[j]
			}
			margin *= signed[i]

			// 正則化項の縮小は常に適用し、マージン違反時のみ損失勾配を加える
			scale := 1.0 - eta*lambda
			if scale < 0 {
				scale = 0
			}
			for j := 0; j < c; j++ {
				weights[j] *= scale
			}
			if margin < 1 {
				for j := 0; j < c; j++ {
					weights[j] += eta * signed[i] * X.At(i, j)
				}
				intercept += eta * signed[i]
			}
		}
	}
	return weights, intercept
}

// decision はベクトルvの決定関数値を計算する
func (s *SVC) decision(v int, X mat.Matrix, i int) float64 {
	z := s.InterceptV[v]
	for j := 0; j < s.NFeatures; j++ {
		z += X.At(i, j) * s.Coef[v][j]
	}
	return z
}

// Predict は決定関数が最大のクラスラベルを返す
func (s *SVC) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := s.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return probaToLabels(proba, s.ClassLabels), nil
}

// PredictProba は決定関数のシグモイドを正規化した確率を返す
func (s *SVC) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !s.IsFitted() {
		return nil, errors.NewNotFittedError("SVC", "PredictProba")
	}
	if err := checkPredictDims(X, s.NFeatures); err != nil {
		return nil, err
	}

	r, _ := X.Dims()
	nClasses := len(s.ClassLabels)
	proba := mat.NewDense(r, nClasses, nil)

	if len(s.Coef) == 1 {
		for i := 0; i < r; i++ {
			p := sigmoid(s.decision(0, X, i))
			proba.Set(i, 0, 1.0-p)
			proba.Set(i, 1, p)
		}
		return proba, nil
	}

	for i := 0; i < r; i++ {
		for v := 0; v < nClasses; v++ {
			proba.Set(i, v, sigmoid(s.decision(v, X, i)))
		}
	}
	normalizeRows(proba)
	return proba, nil
}

// Classes は学習時に観測されたクラスラベル（昇順）を返す
func (s *SVC) Classes() []int {
	return s.ClassLabels
}

// SVR は線形サポートベクタ回帰器。
// ε許容誤差付き損失を確率的勾配降下で最小化する。
type SVR struct {
	model.BaseEstimator

	// Hyperparameters
	C       float64
	Epsilon float64 // 許容誤差帯の幅
	Epochs  int
	Seed    int64

	// Learned parameters - Public for gob encoding
	Weights   []float64
	Intercept float64
	NFeatures int
}

// NewSVR は既定パラメータの線形SVRを作成する
func NewSVR(seed int64) *SVR {
	return &SVR{C: 1.0, Epsilon: 0.1, Epochs: 50, Seed: seed}
}

// Fit はモデルを訓練データで学習させる
func (s *SVR) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.Wrap(errors.ErrEmptyData, "SVR.Fit")
	}
	yVec, err := vecFromMatrix(y)
	if err != nil {
		return err
	}

	s.NFeatures = c
	s.Weights = make([]float64, c)
	s.Intercept = 0

	lambda := 1.0 / (s.C * float64(r))
	rng := rand.New(rand.NewSource(s.Seed))
	order := make([]int, r)
	for i := range order {
		order[i] = i
	}

	t := 0
	for epoch := 0; epoch < s.Epochs; epoch++ {
		rng.Shuffle(r, func(a, b int) { order[a], order[b] = order[b], order[a] })
		for _, i := range order {
			t++
			eta := 1.0 / (lambda * float64(t))
			pred := s.Intercept
			for j := 0; j < c; j++ {
				pred += X.At(i, j) * s.Weights[j]
			}
			diff := pred - yVec[i]

			scale := 1.0 - eta*lambda
			if scale < 0 {
				scale = 0
			}
			for j := 0; j < c; j++ {
				s.Weights[j] *= scale
			}
			// ε帯の外に出たときだけ誤差方向に更新
			if diff > s.Epsilon {
				for j := 0; j < c; j++ {
					s.Weights[j] -= eta * X.At(i, j)
				}
				s.Intercept -= eta
			} else if diff < -s.Epsilon {
				for j := 0; j < c; j++ {
					s.Weights[j] += eta * X.At(i, j)
				}
				s.Intercept += eta
			}
		}
	}

	s.SetDimensions(c, r)
	s.SetFitted()
	return nil
}

// Predict は入力データに対する予測を行う
func (s *SVR) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !s.IsFitted() {
		return nil, errors.NewNotFittedError("SVR", "Predict")
	}
	if err := checkPredictDims(X, s.NFeatures); err != nil {
		return nil, err
	}
	return linearPredict(X, s.Weights, s.Intercept), nil
}
