package estimator

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/automl/core/model"
	"github.com/YuminosukeSato/automl/pkg/errors"
)

// TreeNode は決定木の1ノード。木全体はフラットな配列として保持され、
// LeftとRightは配列インデックスを指す（葉は-1）。
// ポインタの連鎖よりもgob永続化とキャッシュ局所性に向いた表現。
type TreeNode struct {
	Feature   int       // 分割に使う特徴量のインデックス
	Threshold float64   // 分割閾値（<= で左へ）
	Left      int       // 左子ノードのインデックス、葉なら-1
	Right     int       // 右子ノードのインデックス、葉なら-1
	Value     float64   // 葉の予測値（回帰は平均、分類は多数派ラベル）
	Counts    []float64 // 分類の葉のクラス分布（正規化済み）、回帰ではnil
}

// IsLeaf はこのノードが葉かどうかを返す
func (n *TreeNode) IsLeaf() bool {
	return n.Left < 0
}

// cartParams は木の成長を制御するパラメータ
type cartParams struct {
	maxDepth        int
	minSamplesSplit int
	maxFeatures     int // 0なら全特徴量を使う（ランダムフォレスト用のサブサンプリング）
	nClasses        int // 0なら回帰
	rng             *rand.Rand
}

// splitPair は分割点探索で使う(特徴量値, ターゲット)の組
type splitPair struct {
	value  float64
	target float64
}

// cartBuilder は一本の木を成長させる作業領域
type cartBuilder struct {
	params cartParams
	X      mat.Matrix
	y      []float64
	nodes  []TreeNode
}

// growTree は指定された行インデックス集合から木を成長させ、
// フラットなノード配列を返す。yは分類ではクラスインデックス列。
func growTree(X mat.Matrix, y []float64, indices []int, params cartParams) []TreeNode {
	b := &cartBuilder{params: params, X: X, y: y}
	b.grow(indices, 0)
	return b.nodes
}

// grow はノードを1つ追加し、そのインデックスを返す
func (b *cartBuilder) grow(indices []int, depth int) int {
	nodeIdx := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{Left: -1, Right: -1})

	leafValue, leafCounts, pure := b.leafStats(indices)
	node := &b.nodes[nodeIdx]
	node.Value = leafValue
	node.Counts = leafCounts

	if pure || depth >= b.params.maxDepth || len(indices) < b.params.minSamplesSplit {
		return nodeIdx
	}

	feature, threshold, ok := b.bestSplit(indices)
	if !ok {
		return nodeIdx
	}

	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for _, i := range indices {
		if b.X.At(i, feature) <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return nodeIdx
	}

	leftIdx := b.grow(left, depth+1)
	rightIdx := b.grow(right, depth+1)

	// growの再帰でスライスが伸びるため、ポインタは取り直す
	node = &b.nodes[nodeIdx]
	node.Feature = feature
	node.Threshold = threshold
	node.Left = leftIdx
	node.Right = rightIdx
	return nodeIdx
}

// leafStats は葉の予測値を計算する。分類ではクラス分布も返す。
func (b *cartBuilder) leafStats(indices []int) (value float64, counts []float64, pure bool) {
	if b.params.nClasses > 0 {
		counts = make([]float64, b.params.nClasses)
		for _, i := range indices {
			counts[int(b.y[i])]++
		}
		best := 0
		nonZero := 0
		for k, c := range counts {
			if c > counts[best] {
				best = k
			}
			if c > 0 {
				nonZero++
			}
		}
		total := float64(len(indices))
		for k := range counts {
			counts[k] /= total
		}
		return float64(best), counts, nonZero <= 1
	}

	sum := 0.0
	for _, i := range indices {
		sum += b.y[i]
	}
	mean := sum / float64(len(indices))
	allSame := true
	for _, i := range indices {
		if b.y[i] != b.y[indices[0]] {
			allSame = false
			break
		}
	}
	return mean, nil, allSame
}

// bestSplit は不純度の減少が最大の(特徴量, 閾値)を探す
func (b *cartBuilder) bestSplit(indices []int) (feature int, threshold float64, ok bool) {
	_, nFeatures := b.X.Dims()

	candidates := make([]int, nFeatures)
	for j := range candidates {
		candidates[j] = j
	}
	if b.params.maxFeatures > 0 && b.params.maxFeatures < nFeatures {
		b.params.rng.Shuffle(nFeatures, func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
		candidates = candidates[:b.params.maxFeatures]
	}

	pairs := make([]splitPair, len(indices))

	bestGain := math.Inf(-1)
	for _, j := range candidates {
		for k, i := range indices {
			pairs[k] = splitPair{value: b.X.At(i, j), target: b.y[i]}
		}
		sort.Slice(pairs, func(a, c int) bool { return pairs[a].value < pairs[c].value })

		if b.params.nClasses > 0 {
			b.scanGiniSplits(pairs, j, &bestGain, &feature, &threshold, &ok)
		} else {
			b.scanVarianceSplits(pairs, j, &bestGain, &feature, &threshold, &ok)
		}
	}
	return feature, threshold, ok
}

// scanGiniSplits はソート済み列を走査してジニ不純度の重み付き和を最小化する分割を探す
func (b *cartBuilder) scanGiniSplits(pairs []splitPair, featureIdx int, bestGain *float64, feature *int, threshold *float64, ok *bool) {
	n := len(pairs)
	leftCounts := make([]float64, b.params.nClasses)
	rightCounts := make([]float64, b.params.nClasses)
	for _, p := range pairs {
		rightCounts[int(p.target)]++
	}

	for i := 0; i < n-1; i++ {
		cls := int(pairs[i].target)
		leftCounts[cls]++
		rightCounts[cls]--
		if pairs[i].value == pairs[i+1].value {
			continue
		}
		nL := float64(i + 1)
		nR := float64(n - i - 1)
		gain := -(nL*gini(leftCounts, nL) + nR*gini(rightCounts, nR)) / float64(n)
		if gain > *bestGain {
			*bestGain = gain
			*feature = featureIdx
			*threshold = (pairs[i].value + pairs[i+1].value) / 2
			*ok = true
		}
	}
}

// scanVarianceSplits はソート済み列を走査して二乗誤差和を最小化する分割を探す
func (b *cartBuilder) scanVarianceSplits(pairs []splitPair, featureIdx int, bestGain *float64, feature *int, threshold *float64, ok *bool) {
	n := len(pairs)
	sumL, sumSqL := 0.0, 0.0
	sumR, sumSqR := 0.0, 0.0
	for _, p := range pairs {
		sumR += p.target
		sumSqR += p.target * p.target
	}

	for i := 0; i < n-1; i++ {
		t := pairs[i].target
		sumL += t
		sumSqL += t * t
		sumR -= t
		sumSqR -= t * t
		if pairs[i].value == pairs[i+1].value {
			continue
		}
		nL := float64(i + 1)
		nR := float64(n - i - 1)
		sseL := sumSqL - sumL*sumL/nL
		sseR := sumSqR - sumR*sumR/nR
		gain := -(sseL + sseR)
		if gain > *bestGain {
			*bestGain = gain
			*feature = featureIdx
			*threshold = (pairs[i].value + pairs[i+1].value) / 2
			*ok = true
		}
	}
}

// gini はクラスカウントからジニ不純度を計算する
func gini(counts []float64, total float64) float64 {
	impurity := 1.0
	for _, c := range counts {
		p := c / total
		impurity -= p * p
	}
	return impurity
}

// treeLeaf はフラットなノード配列を根から辿って葉を返す
func treeLeaf(nodes []TreeNode, X mat.Matrix, row int) *TreeNode {
	idx := 0
	for !nodes[idx].IsLeaf() {
		n := &nodes[idx]
		if X.At(row, n.Feature) <= n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
	return &nodes[idx]
}

// DecisionTreeClassifier はCARTによる決定木分類器
type DecisionTreeClassifier struct {
	model.BaseEstimator
	MaxDepth        int
	MinSamplesSplit int
	Seed            int64
	Nodes           []TreeNode // Public for gob encoding
	ClassLabels     []int
	NFeatures       int
}

// NewDecisionTreeClassifier は深さ制限maxDepthの決定木分類器を作成する
func NewDecisionTreeClassifier(maxDepth int, seed int64) *DecisionTreeClassifier {
	return &DecisionTreeClassifier{MaxDepth: maxDepth, MinSamplesSplit: 2, Seed: seed}
}

// Fit はモデルを訓練データで学習させる
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.Wrap(errors.ErrEmptyData, "DecisionTreeClassifier.Fit")
	}
	yVec, err := vecFromMatrix(y)
	if err != nil {
		return err
	}
	if len(yVec) != r {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", r, len(yVec), 0)
	}

	dt.ClassLabels = classSet(yVec)
	dt.NFeatures = c

	// ラベルをクラスインデックスに変換してから木を成長させる
	idx := classIndex(dt.ClassLabels)
	encoded := make([]float64, r)
	indices := make([]int, r)
	for i := 0; i < r; i++ {
		encoded[i] = float64(idx[int(math.Round(yVec[i]))])
		indices[i] = i
	}

	dt.Nodes = growTree(X, encoded, indices, cartParams{
		maxDepth:        dt.MaxDepth,
		minSamplesSplit: dt.MinSamplesSplit,
		nClasses:        len(dt.ClassLabels),
		rng:             rand.New(rand.NewSource(dt.Seed)),
	})

	dt.SetDimensions(c, r)
	dt.SetFitted()
	return nil
}

// Predict は各行の多数派クラスラベルを返す
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := dt.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return probaToLabels(proba, dt.ClassLabels), nil
}

// PredictProba は葉のクラス分布を確率として返す
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !dt.IsFitted() {
		return nil, errors.NewNotFittedError("DecisionTreeClassifier", "PredictProba")
	}
	if err := checkPredictDims(X, dt.NFeatures); err != nil {
		return nil, err
	}

	r, _ := X.Dims()
	proba := mat.NewDense(r, len(dt.ClassLabels), nil)
	for i := 0; i < r; i++ {
		leaf := treeLeaf(dt.Nodes, X, i)
		for k, p := range leaf.Counts {
			proba.Set(i, k, p)
		}
	}
	return proba, nil
}

// Classes は学習時に観測されたクラスラベル（昇順）を返す
func (dt *DecisionTreeClassifier) Classes() []int {
	return dt.ClassLabels
}

// DecisionTreeRegressor はCARTによる決定木回帰器
type DecisionTreeRegressor struct {
	model.BaseEstimator
	MaxDepth        int
	MinSamplesSplit int
	Seed            int64
	Nodes           []TreeNode // Public for gob encoding
	NFeatures       int
}

// NewDecisionTreeRegressor は深さ制限maxDepthの決定木回帰器を作成する
func NewDecisionTreeRegressor(maxDepth int, seed int64) *DecisionTreeRegressor {
	return &DecisionTreeRegressor{MaxDepth: maxDepth, MinSamplesSplit: 2, Seed: seed}
}

// Fit はモデルを訓練データで学習させる
func (dt *DecisionTreeRegressor) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.Wrap(errors.ErrEmptyData, "DecisionTreeRegressor.Fit")
	}
	yVec, err := vecFromMatrix(y)
	if err != nil {
		return err
	}

	dt.NFeatures = c
	indices := make([]int, r)
	for i := range indices {
		indices[i] = i
	}

	dt.Nodes = growTree(X, yVec, indices, cartParams{
		maxDepth:        dt.MaxDepth,
		minSamplesSplit: dt.MinSamplesSplit,
		rng:             rand.New(rand.NewSource(dt.Seed)),
	})

	dt.SetDimensions(c, r)
	dt.SetFitted()
	return nil
}

// Predict は各行の葉の平均値を返す
func (dt *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !dt.IsFitted() {
		return nil, errors.NewNotFittedError("DecisionTreeRegressor", "Predict")
	}
	if err := checkPredictDims(X, dt.NFeatures); err != nil {
		return nil, err
	}

	r, _ := X.Dims()
	predictions := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		predictions.Set(i, 0, treeLeaf(dt.Nodes, X, i).Value)
	}
	return predictions, nil
}
