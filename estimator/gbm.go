package estimator

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/automl/core/model"
	"github.com/YuminosukeSato/automl/pkg/errors"
)

// GradientBoostingRegressor は浅い回帰木を逐次加算する勾配ブースティング回帰器。
// 各段は現在の残差に木を当てはめ、学習率を掛けて加算する。
type GradientBoostingRegressor struct {
	model.BaseEstimator
	NEstimators  int
	MaxDepth     int
	LearningRate float64
	Seed         int64
	InitValue    float64      // 初期予測（学習データの平均）- Public for gob encoding
	Trees        [][]TreeNode // 各段の木
	NFeatures    int
}

// NewGradientBoostingRegressor は勾配ブースティング回帰器を作成する
func NewGradientBoostingRegressor(nEstimators, maxDepth int, learningRate float64, seed int64) *GradientBoostingRegressor {
	return &GradientBoostingRegressor{
		NEstimators:  nEstimators,
		MaxDepth:     maxDepth,
		LearningRate: learningRate,
		Seed:         seed,
	}
}

// Fit はモデルを訓練データで学習させる
func (gb *GradientBoostingRegressor) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.Wrap(errors.ErrEmptyData, "GradientBoostingRegressor.Fit")
	}
	yVec, err := vecFromMatrix(y)
	if err != nil {
		return err
	}

	gb.NFeatures = c

	sum := 0.0
	for _, v := range yVec {
		sum += v
	}
	gb.InitValue = sum / float64(r)

	scores := make([]float64, r)
	for i := range scores {
		scores[i] = gb.InitValue
	}

	indices := make([]int, r)
	for i := range indices {
		indices[i] = i
	}

	residual := make([]float64, r)
	gb.Trees = make([][]TreeNode, 0, gb.NEstimators)
	rng := rand.New(rand.NewSource(gb.Seed))

	for stage := 0; stage < gb.NEstimators; stage++ {
		for i := 0; i < r; i++ {
			residual[i] = yVec[i] - scores[i]
		}
		nodes := growTree(X, residual, indices, cartParams{
			maxDepth:        gb.MaxDepth,
			minSamplesSplit: 2,
			rng:             rng,
		})
		gb.Trees = append(gb.Trees, nodes)
		for i := 0; i < r; i++ {
			scores[i] += gb.LearningRate * treeLeaf(nodes, X, i).Value
		}
	}

	gb.SetDimensions(c, r)
	gb.SetFitted()
	return nil
}

// Predict は初期予測に全段の寄与を加算した値を返す
func (gb *GradientBoostingRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !gb.IsFitted() {
		return nil, errors.NewNotFittedError("GradientBoostingRegressor", "Predict")
	}
	if err := checkPredictDims(X, gb.NFeatures); err != nil {
		return nil, err
	}

	r, _ := X.Dims()
	predictions := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		score := gb.InitValue
		for _, nodes := range gb.Trees {
			score += gb.LearningRate * treeLeaf(nodes, X, i).Value
		}
		predictions.Set(i, 0, score)
	}
	return predictions, nil
}

// GradientBoostingClassifier はロジスティック損失の勾配ブースティング分類器。
// 二値分類では陽性クラスのスコアを1本のブースターで学習し、
// 多クラスではクラスごとのone-vs-restブースターを持つ。
type GradientBoostingClassifier struct {
	model.BaseEstimator
	NEstimators  int
	MaxDepth     int
	LearningRate float64
	Seed         int64
	InitScores   []float64      // ブースターごとの初期スコア（対数オッズ）
	Boosters     [][][]TreeNode // [booster][stage]nodes - Public for gob encoding
	ClassLabels  []int
	NFeatures    int
}

// NewGradientBoostingClassifier は勾配ブースティング分類器を作成する
func NewGradientBoostingClassifier(nEstimators, maxDepth int, learningRate float64, seed int64) *GradientBoostingClassifier {
	return &GradientBoostingClassifier{
		NEstimators:  nEstimators,
		MaxDepth:     maxDepth,
		LearningRate: learningRate,
		Seed:         seed,
	}
}

// Fit はモデルを訓練データで学習させる
func (gb *GradientBoostingClassifier) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.Wrap(errors.ErrEmptyData, "GradientBoostingClassifier.Fit")
	}
	yVec, err := vecFromMatrix(y)
	if err != nil {
		return err
	}

	gb.ClassLabels = classSet(yVec)
	gb.NFeatures = c
	if len(gb.ClassLabels) < 2 {
		return errors.NewValidationError("target", "classification requires at least 2 classes", len(gb.ClassLabels))
	}

	nBoosters := len(gb.ClassLabels)
	if nBoosters == 2 {
		nBoosters = 1
	}

	gb.InitScores = make([]float64, nBoosters)
	gb.Boosters = make([][][]TreeNode, nBoosters)

	for b := 0; b < nBoosters; b++ {
		// このブースターの陽性クラス
		positive := gb.ClassLabels[b]
		if nBoosters == 1 {
			positive = gb.ClassLabels[1]
		}
		y01 := make([]float64, r)
		nPos := 0.0
		for i := 0; i < r; i++ {
			if int(math.Round(yVec[i])) == positive {
				y01[i] = 1.0
				nPos++
			}
		}
		gb.InitScores[b] = logOdds(nPos, float64(r))
		gb.Boosters[b] = gb.fitBooster(X, y01, gb.InitScores[b], gb.Seed+int64(b))
	}

	gb.SetDimensions(c, r)
	gb.SetFitted()
	return nil
}

// fitBooster は1つの二値問題に対して木の列を学習する
func (gb *GradientBoostingClassifier) fitBooster(X mat.Matrix, y01 []float64, initScore float64, seed int64) [][]TreeNode {
	r, _ := X.Dims()
	scores := make([]float64, r)
	for i := range scores {
		scores[i] = initScore
	}

	indices := make([]int, r)
	for i := range indices {
		indices[i] = i
	}

	residual := make([]float64, r)
	trees := make([][]TreeNode, 0, gb.NEstimators)
	rng := rand.New(rand.NewSource(seed))

	for stage := 0; stage < gb.NEstimators; stage++ {
		// ロジスティック損失の負勾配
		for i := 0; i < r; i++ {
			residual[i] = y01[i] - sigmoid(scores[i])
		}
		nodes := growTree(X, residual, indices, cartParams{
			maxDepth:        gb.MaxDepth,
			minSamplesSplit: 2,
			rng:             rng,
		})
		trees = append(trees, nodes)
		for i := 0; i < r; i++ {
			scores[i] += gb.LearningRate * treeLeaf(nodes, X, i).Value
		}
	}
	return trees
}

// Predict は最も確率の高いクラスラベルを返す
func (gb *GradientBoostingClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := gb.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return probaToLabels(proba, gb.ClassLabels), nil
}

// PredictProba は各クラスの予測確率を返す
func (gb *GradientBoostingClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !gb.IsFitted() {
		return nil, errors.NewNotFittedError("GradientBoostingClassifier", "PredictProba")
	}
	if err := checkPredictDims(X, gb.NFeatures); err != nil {
		return nil, err
	}

	r, _ := X.Dims()
	nClasses := len(gb.ClassLabels)
	proba := mat.NewDense(r, nClasses, nil)

	if len(gb.Boosters) == 1 {
		for i := 0; i < r; i++ {
			p := sigmoid(gb.boosterScore(0, X, i))
			proba.Set(i, 0, 1.0-p)
			proba.Set(i, 1, p)
		}
		return proba, nil
	}

	for i := 0; i < r; i++ {
		for b := 0; b < nClasses; b++ {
			proba.Set(i, b, sigmoid(gb.boosterScore(b, X, i)))
		}
	}
	normalizeRows(proba)
	return proba, nil
}

// boosterScore はブースターbの行iに対する加算スコアを返す
func (gb *GradientBoostingClassifier) boosterScore(b int, X mat.Matrix, i int) float64 {
	score := gb.InitScores[b]
	for _, nodes := range gb.Boosters[b] {
		score += gb.LearningRate * treeLeaf(nodes, X, i).Value
	}
	return score
}

// Classes は学習時に観測されたクラスラベル（昇順）を返す
func (gb *GradientBoostingClassifier) Classes() []int {
	return gb.ClassLabels
}

// logOdds は事前確率の対数オッズを計算する。端の値はクリップする。
func logOdds(nPos, n float64) float64 {
	p := nPos / n
	const eps = 1e-6
	if p < eps {
		p = eps
	}
	if p > 1-eps {
		p = 1 - eps
	}
	return math.Log(p / (1 - p))
}
