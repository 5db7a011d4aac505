package preprocessing

import (
	"math"
	"math/rand"
)

// Split は行インデックスの決定的な train/test 分割を返す
// 同じ (n, seed, testFraction) に対して常に同一の分割を生成するため、
// 同一のanalyze呼び出し内の全候補アルゴリズムが同じ行で学習・評価される。
func Split(n int, seed int64, testFraction float64) (train, test []int) {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(n, func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	nTest := int(math.Round(float64(n) * testFraction))
	if nTest < 1 {
		nTest = 1
	}
	if nTest >= n {
		nTest = n - 1
	}

	test = indices[:nTest]
	train = indices[nTest:]
	return train, test
}
