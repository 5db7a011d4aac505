package metrics

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/automl/pkg/errors"
)

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.Newf("automl: Accuracy: empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("Accuracy", n, yPred.Len(), 0)
	}

	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// PrecisionWeighted はサポート数で重み付けした適合率を計算する
// 予測が一つもないクラスの適合率は0として扱う（ゼロ除算はエラーにしない）
func PrecisionWeighted(yTrue, yPred *mat.VecDense) (float64, error) {
	return weightedOVR(yTrue, yPred, "PrecisionWeighted", func(tp, fp, fn float64) float64 {
		if tp+fp == 0 {
			return 0
		}
		return tp / (tp + fp)
	})
}

// RecallWeighted はサポート数で重み付けした再現率を計算する
func RecallWeighted(yTrue, yPred *mat.VecDense) (float64, error) {
	return weightedOVR(yTrue, yPred, "RecallWeighted", func(tp, fp, fn float64) float64 {
		if tp+fn == 0 {
			return 0
		}
		return tp / (tp + fn)
	})
}

// F1Weighted はサポート数で重み付けしたF1スコアを計算する
func F1Weighted(yTrue, yPred *mat.VecDense) (float64, error) {
	return weightedOVR(yTrue, yPred, "F1Weighted", func(tp, fp, fn float64) float64 {
		denom := 2*tp + fp + fn
		if denom == 0 {
			return 0
		}
		return 2 * tp / denom
	})
}

// weightedOVR はクラスごとにone-vs-restの混同行列を集計し、
// サポート数（真のクラス頻度）で重み付け平均した指標を返す
func weightedOVR(yTrue, yPred *mat.VecDense, op string, metric func(tp, fp, fn float64) float64) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.Newf("automl: %s: empty vector", op)
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}

	support := make(map[float64]int)
	for i := 0; i < n; i++ {
		support[yTrue.AtVec(i)]++
	}

	// クラスを昇順で処理し、浮動小数の加算順序を呼び出しごとに固定する
	classes := make([]float64, 0, len(support))
	for class := range support {
		classes = append(classes, class)
	}
	sort.Float64s(classes)

	var weighted float64
	for _, class := range classes {
		var tp, fp, fn float64
		for i := 0; i < n; i++ {
			trueHit := yTrue.AtVec(i) == class
			predHit := yPred.AtVec(i) == class
			switch {
			case trueHit && predHit:
				tp++
			case !trueHit && predHit:
				fp++
			case trueHit && !predHit:
				fn++
			}
		}
		weighted += metric(tp, fp, fn) * float64(support[class]) / float64(n)
	}

	return weighted, nil
}

// AUC は二値分類のROC曲線下面積を計算する
// yTrue は {0, 1}、yPred は陽性クラスのスコア（確率）。
// 単一クラスしか存在しない場合は未定義のためエラーを返す。
// 同スコアは平均ランクで処理する（Mann-Whitney統計量と等価）。
func AUC(yTrue, yPred *mat.VecDense) (float64, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return 0, errors.Newf("automl: AUC: empty vector")
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("AUC", n, yPred.Len(), 0)
	}

	nPos, nNeg := 0, 0
	for i := 0; i < n; i++ {
		switch yTrue.AtVec(i) {
		case 1:
			nPos++
		case 0:
			nNeg++
		default:
			return 0, errors.Newf("automl: AUC: labels must be binary (0 or 1), got %g", yTrue.AtVec(i))
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0, errors.Newf("automl: AUC: undefined when only one class is present")
	}

	// スコア昇順にソートし、同スコアには平均ランクを割り当てる
	type scored struct {
		score float64
		label float64
	}
	items := make([]scored, n)
	for i := 0; i < n; i++ {
		items[i] = scored{score: yPred.AtVec(i), label: yTrue.AtVec(i)}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].score < items[j].score })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j < n && items[j].score == items[i].score {
			j++
		}
		// [i, j) は同スコア。1始まりの平均ランク。
		avgRank := float64(i+j+1) / 2.0
		for k := i; k < j; k++ {
			ranks[k] = avgRank
		}
		i = j
	}

	var rankSum float64
	for i := 0; i < n; i++ {
		if items[i].label == 1 {
			rankSum += ranks[i]
		}
	}

	auc := (rankSum - float64(nPos)*float64(nPos+1)/2.0) / (float64(nPos) * float64(nNeg))
	return auc, nil
}

// AUCOVRMacro は多クラス分類のone-vs-restマクロ平均ROC-AUCを計算する
// probas は (n_samples × n_classes) の確率行列で、列順はクラスの昇順。
// いずれかのクラスがyTrueに現れない場合、その二値AUCが未定義のため
// マクロ平均全体も未定義としてエラーを返す。
func AUCOVRMacro(yTrue *mat.VecDense, probas mat.Matrix) (float64, error) {
	if yTrue == nil || yTrue.Len() == 0 {
		return 0, errors.Newf("automl: AUCOVRMacro: empty vector")
	}
	n := yTrue.Len()
	rows, nClasses := probas.Dims()
	if rows != n {
		return 0, errors.NewDimensionError("AUCOVRMacro", n, rows, 0)
	}
	if nClasses < 2 {
		return 0, errors.Newf("automl: AUCOVRMacro: need at least 2 classes, got %d", nClasses)
	}

	var sum float64
	for class := 0; class < nClasses; class++ {
		binary := mat.NewVecDense(n, nil)
		scores := mat.NewVecDense(n, nil)
		for i := 0; i < n; i++ {
			if int(yTrue.AtVec(i)) == class {
				binary.SetVec(i, 1)
			}
			scores.SetVec(i, probas.At(i, class))
		}
		auc, err := AUC(binary, scores)
		if err != nil {
			return 0, err
		}
		sum += auc
	}

	return sum / float64(nClasses), nil
}
