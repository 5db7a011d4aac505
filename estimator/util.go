package estimator

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	automlErrors "github.com/YuminosukeSato/automl/pkg/errors"
)

// vecFromMatrix はn×1行列（またはVecDense）をスライスに変換する
func vecFromMatrix(y mat.Matrix) ([]float64, error) {
	r, c := y.Dims()
	if c != 1 {
		return nil, automlErrors.NewDimensionError("target extraction", 1, c, 1)
	}
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		out[i] = y.At(i, 0)
	}
	return out, nil
}

// rowOf はX行列のi行目をバッファへコピーして返す
func rowOf(X mat.Matrix, i int, buf []float64) []float64 {
	_, c := X.Dims()
	if cap(buf) < c {
		buf = make([]float64, c)
	}
	buf = buf[:c]
	for j := 0; j < c; j++ {
		buf[j] = X.At(i, j)
	}
	return buf
}

// checkPredictDims は予測時の特徴量次元が学習時と一致するか検証する
func checkPredictDims(X mat.Matrix, nFeatures int) error {
	_, c := X.Dims()
	if c != nFeatures {
		return automlErrors.NewDimensionError("predict", nFeatures, c, 1)
	}
	return nil
}

// classSet はターゲット値から昇順のクラスラベル集合を作る
func classSet(y []float64) []int {
	seen := make(map[int]bool)
	for _, v := range y {
		seen[int(math.Round(v))] = true
	}
	classes := make([]int, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	return classes
}

// classIndex はクラスラベルから列インデックスへの逆引きを作る
func classIndex(classes []int) map[int]int {
	idx := make(map[int]int, len(classes))
	for i, c := range classes {
		idx[c] = i
	}
	return idx
}

// argmaxRow は行列のi行目で最大の列インデックスを返す
func argmaxRow(m mat.Matrix, i int) int {
	_, c := m.Dims()
	best := 0
	bestVal := math.Inf(-1)
	for j := 0; j < c; j++ {
		if v := m.At(i, j); v > bestVal {
			bestVal = v
			best = j
		}
	}
	return best
}

// probaToLabels は確率行列をargmaxでクラスラベル列に変換する
func probaToLabels(proba mat.Matrix, classes []int) *mat.Dense {
	r, _ := proba.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, float64(classes[argmaxRow(proba, i)]))
	}
	return out
}

// sigmoid はロジスティック関数。オーバーフローを避けるため入力を制限する。
func sigmoid(z float64) float64 {
	if z > 30 {
		return 1.0
	}
	if z < -30 {
		return 0.0
	}
	return 1.0 / (1.0 + math.Exp(-z))
}

// normalizeRows は各行の和が1になるよう正規化する（和が0の行は一様分布）
func normalizeRows(m *mat.Dense) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		sum := 0.0
		for j := 0; j < c; j++ {
			sum += m.At(i, j)
		}
		if sum <= 0 {
			for j := 0; j < c; j++ {
				m.Set(i, j, 1.0/float64(c))
			}
			continue
		}
		for j := 0; j < c; j++ {
			m.Set(i, j, m.At(i, j)/sum)
		}
	}
}
