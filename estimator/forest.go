package estimator

import (
	"math"
	"math/rand"
	"runtime"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/automl/core/model"
	"github.com/YuminosukeSato/automl/core/parallel"
	"github.com/YuminosukeSato/automl/pkg/errors"
)

// RandomForestClassifier はバギングと特徴量サブサンプリングによる
// 決定木アンサンブル分類器。各木はシードから決定的に構築されるため、
// 並列に学習しても結果は再現可能。
type RandomForestClassifier struct {
	model.BaseEstimator
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	Seed            int64
	Trees           [][]TreeNode // Public for gob encoding
	ClassLabels     []int
	NFeatures       int
}

// NewRandomForestClassifier はnEstimators本の木を持つ分類器を作成する
func NewRandomForestClassifier(nEstimators int, seed int64) *RandomForestClassifier {
	return &RandomForestClassifier{
		NEstimators:     nEstimators,
		MaxDepth:        10,
		MinSamplesSplit: 2,
		Seed:            seed,
	}
}

// Fit はブートストラップ標本ごとに木を学習させる
// 各木の乱数は Seed+木番号 から導出され、並列実行でも決定的。
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.Wrap(errors.ErrEmptyData, "RandomForestClassifier.Fit")
	}
	yVec, err := vecFromMatrix(y)
	if err != nil {
		return err
	}

	rf.ClassLabels = classSet(yVec)
	rf.NFeatures = c

	idx := classIndex(rf.ClassLabels)
	encoded := make([]float64, r)
	for i := 0; i < r; i++ {
		encoded[i] = float64(idx[int(math.Round(yVec[i]))])
	}

	maxFeatures := int(math.Sqrt(float64(c)))
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	rf.Trees = make([][]TreeNode, rf.NEstimators)
	parallel.ForEach(rf.NEstimators, runtime.NumCPU(), func(t int) {
		rng := rand.New(rand.NewSource(rf.Seed + int64(t)))
		indices := bootstrapSample(r, rng)
		rf.Trees[t] = growTree(X, encoded, indices, cartParams{
			maxDepth:        rf.MaxDepth,
			minSamplesSplit: rf.MinSamplesSplit,
			maxFeatures:     maxFeatures,
			nClasses:        len(rf.ClassLabels),
			rng:             rng,
		})
	})

	rf.SetDimensions(c, r)
	rf.SetFitted()
	return nil
}

// Predict は全木の確率平均をargmaxしたクラスラベルを返す
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return probaToLabels(proba, rf.ClassLabels), nil
}

// PredictProba は全木の葉のクラス分布を平均した確率を返す
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !rf.IsFitted() {
		return nil, errors.NewNotFittedError("RandomForestClassifier", "PredictProba")
	}
	if err := checkPredictDims(X, rf.NFeatures); err != nil {
		return nil, err
	}

	r, _ := X.Dims()
	nClasses := len(rf.ClassLabels)
	proba := mat.NewDense(r, nClasses, nil)
	for i := 0; i < r; i++ {
		for _, nodes := range rf.Trees {
			leaf := treeLeaf(nodes, X, i)
			for k, p := range leaf.Counts {
				proba.Set(i, k, proba.At(i, k)+p)
			}
		}
		for k := 0; k < nClasses; k++ {
			proba.Set(i, k, proba.At(i, k)/float64(len(rf.Trees)))
		}
	}
	return proba, nil
}

// Classes は学習時に観測されたクラスラベル（昇順）を返す
func (rf *RandomForestClassifier) Classes() []int {
	return rf.ClassLabels
}

// RandomForestRegressor はバギングによる決定木アンサンブル回帰器
type RandomForestRegressor struct {
	model.BaseEstimator
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	Seed            int64
	Trees           [][]TreeNode // Public for gob encoding
	NFeatures       int
}

// NewRandomForestRegressor はnEstimators本の木を持つ回帰器を作成する
func NewRandomForestRegressor(nEstimators int, seed int64) *RandomForestRegressor {
	return &RandomForestRegressor{
		NEstimators:     nEstimators,
		MaxDepth:        10,
		MinSamplesSplit: 2,
		Seed:            seed,
	}
}

// Fit はブートストラップ標本ごとに木を学習させる
func (rf *RandomForestRegressor) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.Wrap(errors.ErrEmptyData, "RandomForestRegressor.Fit")
	}
	yVec, err := vecFromMatrix(y)
	if err != nil {
		return err
	}

	rf.NFeatures = c

	// 回帰の既定は特徴量の1/3を候補にする
	maxFeatures := c / 3
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	rf.Trees = make([][]TreeNode, rf.NEstimators)
	parallel.ForEach(rf.NEstimators, runtime.NumCPU(), func(t int) {
		rng := rand.New(rand.NewSource(rf.Seed + int64(t)))
		indices := bootstrapSample(r, rng)
		rf.Trees[t] = growTree(X, yVec, indices, cartParams{
			maxDepth:        rf.MaxDepth,
			minSamplesSplit: rf.MinSamplesSplit,
			maxFeatures:     maxFeatures,
			rng:             rng,
		})
	})

	rf.SetDimensions(c, r)
	rf.SetFitted()
	return nil
}

// Predict は全木の予測平均を返す
func (rf *RandomForestRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !rf.IsFitted() {
		return nil, errors.NewNotFittedError("RandomForestRegressor", "Predict")
	}
	if err := checkPredictDims(X, rf.NFeatures); err != nil {
		return nil, err
	}

	r, _ := X.Dims()
	predictions := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		sum := 0.0
		for _, nodes := range rf.Trees {
			sum += treeLeaf(nodes, X, i).Value
		}
		predictions.Set(i, 0, sum/float64(len(rf.Trees)))
	}
	return predictions, nil
}

// bootstrapSample は復元抽出でn個の行インデックスを選ぶ
func bootstrapSample(n int, rng *rand.Rand) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = rng.Intn(n)
	}
	return indices
}
