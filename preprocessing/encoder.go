package preprocessing

import (
	"sort"

	"github.com/YuminosukeSato/automl/pkg/errors"
)

// LabelEncoder はカテゴリ列の文字列値と連続した整数の全単射
// 語彙は分割前の全データの観測値から一度だけ構築される。
// 予測時に語彙に存在しない値はUnknownCategoryErrorとして拒否する。
type LabelEncoder struct {
	// Column は対象の列名（エラーメッセージ用）
	Column string

	// ClassLabels は観測された値のソート済み一覧。インデックスがエンコード値。
	ClassLabels []string

	// index は逆引き。gobには載らないため、ロード後はrebuildIndexで再構築する。
	index map[string]int
}

// NewLabelEncoder は指定列のLabelEncoderを作成する
func NewLabelEncoder(column string) *LabelEncoder {
	return &LabelEncoder{Column: column}
}

// Fit は観測値のソート済み重複なし集合から語彙を構築する
func (e *LabelEncoder) Fit(values []string) error {
	if len(values) == 0 {
		return errors.NewValidationError(e.Column, "no values to fit label encoder", nil)
	}
	seen := make(map[string]bool, len(values))
	labels := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			labels = append(labels, v)
		}
	}
	sort.Strings(labels)
	e.ClassLabels = labels
	e.rebuildIndex()
	return nil
}

// Transform は値をエンコード済みの整数に変換する
// 語彙に存在しない値はUnknownCategoryError
func (e *LabelEncoder) Transform(value string) (int, error) {
	if e.index == nil {
		e.rebuildIndex()
	}
	code, ok := e.index[value]
	if !ok {
		return 0, errors.NewUnknownCategoryError(e.Column, value, e.ClassLabels)
	}
	return code, nil
}

// InverseTransform はエンコード値を元のラベルに戻す
func (e *LabelEncoder) InverseTransform(code int) (string, error) {
	if code < 0 || code >= len(e.ClassLabels) {
		return "", errors.Newf("automl: label encoder for '%s': code %d out of range [0, %d)",
			e.Column, code, len(e.ClassLabels))
	}
	return e.ClassLabels[code], nil
}

// NumClasses は語彙のサイズを返す
func (e *LabelEncoder) NumClasses() int {
	return len(e.ClassLabels)
}

func (e *LabelEncoder) rebuildIndex() {
	e.index = make(map[string]int, len(e.ClassLabels))
	for i, label := range e.ClassLabels {
		e.index[label] = i
	}
}
