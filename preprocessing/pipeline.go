// Package preprocessing は生の表形式データを学習可能な特徴行列へ変換します。
//
// パイプラインの不変条件:
//   - カテゴリ語彙は分割前の全観測値から構築される（予測時の照合対象を固定する）
//   - スケーラーの統計量は学習パーティションのみからfitされる
//   - 80/20分割は固定シードで決定的に再現され、全候補アルゴリズムが共有する
//
// fit済みのPipelineは勝者モデルと一体で永続化され、予測時に同じ順序で再適用される。
package preprocessing

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/automl/dataset"
	"github.com/YuminosukeSato/automl/pkg/errors"
)

// Options は前処理の調整パラメータ
type Options struct {
	// Seed は分割シャッフルのシード
	Seed int64

	// TestFraction は評価用に取り置く行の割合
	TestFraction float64
}

// DefaultOptions は固定シード42・20%テストの既定値を返す
func DefaultOptions() Options {
	return Options{Seed: 42, TestFraction: 0.2}
}

// Imputation は欠損値補完の定数（学習時にfitされ、予測パスでも適用される）
type Imputation struct {
	// Numeric は数値列の補完値（列平均）
	Numeric float64

	// Label はカテゴリ列の補完値（最頻値）
	Label string
}

// Pipeline はfit済みの前処理状態
// エンコーダ・スケーラー・補完定数を勝者モデルと一体で保持する不変の成果物。
type Pipeline struct {
	ProblemType  dataset.ProblemType
	InputColumns []string
	OutputColumn string

	// NumericColumns は各入力列が数値列かどうか
	NumericColumns map[string]bool

	// Encoders はカテゴリ入力列ごとのfit済みLabelEncoder
	Encoders map[string]*LabelEncoder

	// TargetEncoder は分類問題の出力列エンコーダ（回帰ではnil）
	TargetEncoder *LabelEncoder

	// Impute は入力列ごとの補完定数
	Impute map[string]Imputation

	// Scaler は学習パーティションでfitされた標準化スケーラー
	Scaler *StandardScaler
}

// Preprocessed は一回のanalyze呼び出しで生成される前処理済みデータセット
// 学習完了後は破棄され、fit済みのPipelineだけがModelRecordに残る。
type Preprocessed struct {
	Pipeline *Pipeline

	// Features は標準化済みの特徴行列（全行）
	Features *mat.Dense

	// Target は数値化済みの目的変数（分類ではエンコード済みラベル）
	Target *mat.VecDense

	// TrainIndices / TestIndices は決定的な80/20分割
	TrainIndices []int
	TestIndices  []int
}

// Fit はRawDatasetとProblemConfigから前処理済みデータセットを構築する
func Fit(d *dataset.RawDataset, cfg dataset.ProblemConfig, opts Options) (*Preprocessed, error) {
	resolved, err := cfg.Resolve(d)
	if err != nil {
		return nil, err
	}

	// 目的変数が欠損している行、回帰で数値化できない行を先に落とす
	kept, targets, err := resolveTargets(d, resolved)
	if err != nil {
		return nil, err
	}
	if len(kept) < 2 {
		return nil, errors.NewValidationError("dataset",
			"not enough rows after preprocessing; need at least 2", len(kept))
	}

	p := &Pipeline{
		ProblemType:    resolved.ProblemType,
		InputColumns:   resolved.InputColumns,
		OutputColumn:   resolved.OutputColumn,
		NumericColumns: make(map[string]bool, len(resolved.InputColumns)),
		Encoders:       make(map[string]*LabelEncoder),
		Impute:         make(map[string]Imputation),
	}

	// 列の役割判定と補完定数のfit（残した行の全観測値から）
	for _, col := range resolved.InputColumns {
		values := columnValues(d, kept, col)
		numeric := isNumeric(values)
		p.NumericColumns[col] = numeric
		imp, err := fitImputation(col, values, numeric)
		if err != nil {
			return nil, err
		}
		p.Impute[col] = imp
	}

	// カテゴリ語彙は分割前の全観測値（補完適用後）からfitする
	for _, col := range resolved.InputColumns {
		if p.NumericColumns[col] {
			continue
		}
		enc := NewLabelEncoder(col)
		if err := enc.Fit(imputedValues(d, kept, col, p.Impute[col])); err != nil {
			return nil, err
		}
		p.Encoders[col] = enc
	}

	// 分類では目的変数もエンコードする
	y := mat.NewVecDense(len(kept), nil)
	if resolved.ProblemType == dataset.Classification {
		enc := NewLabelEncoder(resolved.OutputColumn)
		if err := enc.Fit(targets); err != nil {
			return nil, err
		}
		p.TargetEncoder = enc
		for i, label := range targets {
			code, err := enc.Transform(label)
			if err != nil {
				return nil, err
			}
			y.SetVec(i, float64(code))
		}
	} else {
		for i, raw := range targets {
			v, _ := dataset.ParseNumeric(raw)
			y.SetVec(i, v)
		}
	}

	// 数値化済み（未スケール）の特徴行列を組み立てる
	raw := mat.NewDense(len(kept), len(resolved.InputColumns), nil)
	for i, rowIdx := range kept {
		row := d.Rows[rowIdx]
		for j, col := range resolved.InputColumns {
			v, err := p.encodeCell(col, row[col])
			if err != nil {
				return nil, err
			}
			raw.Set(i, j, v)
		}
	}

	trainIdx, testIdx := Split(len(kept), opts.Seed, opts.TestFraction)

	// スケーラーは学習パーティションのみでfitする
	scaler := NewStandardScaler()
	train := mat.NewDense(len(trainIdx), len(resolved.InputColumns), nil)
	for i, idx := range trainIdx {
		for j := 0; j < len(resolved.InputColumns); j++ {
			train.Set(i, j, raw.At(idx, j))
		}
	}
	if err := scaler.Fit(train); err != nil {
		return nil, err
	}
	p.Scaler = scaler

	features, err := scaler.Transform(raw)
	if err != nil {
		return nil, err
	}

	return &Preprocessed{
		Pipeline:     p,
		Features:     features,
		Target:       y,
		TrainIndices: trainIdx,
		TestIndices:  testIdx,
	}, nil
}

// encodeCell は単一セルを未スケールの数値に変換する（補完込み）
func (p *Pipeline) encodeCell(col, value string) (float64, error) {
	imp := p.Impute[col]
	if p.NumericColumns[col] {
		if dataset.IsMissing(value) {
			return imp.Numeric, nil
		}
		v, ok := dataset.ParseNumeric(value)
		if !ok {
			return 0, errors.NewValidationError(col, "expected a numeric value", value)
		}
		return v, nil
	}
	if dataset.IsMissing(value) {
		value = imp.Label
	}
	code, err := p.Encoders[col].Transform(value)
	if err != nil {
		return 0, err
	}
	return float64(code), nil
}

// TransformRow は予測リクエストの1行をfit済みの状態で変換する
// 適用順序は学習時と同一: 補完 → エンコード → 標準化
func (p *Pipeline) TransformRow(features map[string]string) ([]float64, error) {
	raw := make([]float64, len(p.InputColumns))
	for j, col := range p.InputColumns {
		v, err := p.encodeCell(col, features[col])
		if err != nil {
			return nil, err
		}
		raw[j] = v
	}
	return p.Scaler.TransformVec(raw)
}

// DecodeTarget は分類予測のエンコード値を元のラベルに戻す
// 回帰ではそのままの数値を返す
func (p *Pipeline) DecodeTarget(value float64) (interface{}, error) {
	if p.TargetEncoder == nil {
		return value, nil
	}
	return p.TargetEncoder.InverseTransform(int(math.Round(value)))
}

// TrainMatrices は学習パーティションの行列を返す
func (pp *Preprocessed) TrainMatrices() (*mat.Dense, *mat.VecDense) {
	return pp.subset(pp.TrainIndices)
}

// TestMatrices は評価パーティションの行列を返す
func (pp *Preprocessed) TestMatrices() (*mat.Dense, *mat.VecDense) {
	return pp.subset(pp.TestIndices)
}

func (pp *Preprocessed) subset(indices []int) (*mat.Dense, *mat.VecDense) {
	_, cols := pp.Features.Dims()
	X := mat.NewDense(len(indices), cols, nil)
	y := mat.NewVecDense(len(indices), nil)
	for i, idx := range indices {
		for j := 0; j < cols; j++ {
			X.Set(i, j, pp.Features.At(idx, j))
		}
		y.SetVec(i, pp.Target.AtVec(idx))
	}
	return X, y
}

// resolveTargets は使用可能な行のインデックスと目的変数の生値を返す
func resolveTargets(d *dataset.RawDataset, cfg dataset.ProblemConfig) ([]int, []string, error) {
	var kept []int
	var targets []string
	invalid := 0
	for i, row := range d.Rows {
		raw := row[cfg.OutputColumn]
		if dataset.IsMissing(raw) {
			continue
		}
		if cfg.ProblemType == dataset.Regression {
			if _, ok := dataset.ParseNumeric(raw); !ok {
				invalid++
				continue
			}
		}
		kept = append(kept, i)
		targets = append(targets, raw)
	}
	if len(kept) == 0 && invalid > 0 {
		return nil, nil, errors.NewValidationError(cfg.OutputColumn,
			"no value in the output column could be converted to numeric for regression", invalid)
	}
	return kept, targets, nil
}

func columnValues(d *dataset.RawDataset, kept []int, col string) []string {
	values := make([]string, len(kept))
	for i, idx := range kept {
		values[i] = d.Rows[idx][col]
	}
	return values
}

func imputedValues(d *dataset.RawDataset, kept []int, col string, imp Imputation) []string {
	values := make([]string, len(kept))
	for i, idx := range kept {
		v := d.Rows[idx][col]
		if dataset.IsMissing(v) {
			v = imp.Label
		}
		values[i] = v
	}
	return values
}

func isNumeric(values []string) bool {
	observed := 0
	for _, v := range values {
		if dataset.IsMissing(v) {
			continue
		}
		observed++
		if _, ok := dataset.ParseNumeric(v); !ok {
			return false
		}
	}
	return observed > 0
}

// fitImputation は列の補完定数をfitする
// 数値列は平均、カテゴリ列は最頻値（同数の場合は辞書順で最小のものを選ぶ）
func fitImputation(col string, values []string, numeric bool) (Imputation, error) {
	if numeric {
		sum := 0.0
		n := 0
		for _, v := range values {
			if dataset.IsMissing(v) {
				continue
			}
			f, _ := dataset.ParseNumeric(v)
			sum += f
			n++
		}
		if n == 0 {
			return Imputation{}, errors.NewValidationError(col, "column has no observed values", nil)
		}
		return Imputation{Numeric: sum / float64(n)}, nil
	}

	counts := make(map[string]int)
	for _, v := range values {
		if dataset.IsMissing(v) {
			continue
		}
		counts[v]++
	}
	if len(counts) == 0 {
		return Imputation{}, errors.NewValidationError(col, "column has no observed values", nil)
	}
	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	best := labels[0]
	for _, label := range labels {
		if counts[label] > counts[best] {
			best = label
		}
	}
	return Imputation{Label: best}, nil
}
