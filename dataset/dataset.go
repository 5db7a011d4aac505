// Package dataset は生の表形式データの正規化と問題設定の検証を提供します。
// アップロード境界（UI・トランスポート層）はパース済みの行列をこのパッケージの
// RawDataset として渡します。CSVの区切り文字判定などはこの層の外側の責務です。
package dataset

import (
	"strconv"
	"strings"

	"github.com/YuminosukeSato/automl/pkg/errors"
)

// ProblemType は解くべき問題の種類
type ProblemType string

const (
	// Classification は分類問題
	Classification ProblemType = "classification"
	// Regression は回帰問題
	Regression ProblemType = "regression"
)

// Valid は既知の問題種別かどうかを返す
func (p ProblemType) Valid() bool {
	return p == Classification || p == Regression
}

// RawDataset は正規化済みの表形式データセット
// 全ての行は同一の列集合を共有する。値は欠損（空文字列）を許容する。
type RawDataset struct {
	Columns []string
	Rows    []map[string]string
}

// NormalizeName は列名の前後の空白と引用符を取り除く
func NormalizeName(name string) string {
	s := strings.TrimSpace(name)
	s = strings.Trim(s, `"`)
	s = strings.Trim(s, `'`)
	return strings.TrimSpace(s)
}

// New は列名を正規化したRawDatasetを構築する
// 正規化後に列名が重複・空になる場合、また行が未知の列を持つ場合はValidationError
func New(columns []string, rows []map[string]string) (*RawDataset, error) {
	if len(columns) == 0 {
		return nil, errors.NewValidationError("columns", "dataset has no columns", nil)
	}

	normalized := make([]string, 0, len(columns))
	rename := make(map[string]string, len(columns))
	seen := make(map[string]bool, len(columns))
	for _, col := range columns {
		name := NormalizeName(col)
		if name == "" {
			return nil, errors.NewValidationError("columns", "empty column name after normalization", col)
		}
		if seen[name] {
			return nil, errors.NewValidationError("columns", "duplicate column name after normalization", name)
		}
		seen[name] = true
		normalized = append(normalized, name)
		rename[col] = name
	}

	cleanRows := make([]map[string]string, 0, len(rows))
	for i, row := range rows {
		clean := make(map[string]string, len(normalized))
		for key, value := range row {
			name, ok := rename[key]
			if !ok {
				// 行側のキーも正規化してから照合する
				name = NormalizeName(key)
				if !seen[name] {
					return nil, errors.NewValidationError("rows",
						"row references a column not present in the header", key)
				}
			}
			clean[name] = strings.TrimSpace(value)
		}
		// 欠けている列は欠損値として空文字で埋める
		for _, name := range normalized {
			if _, ok := clean[name]; !ok {
				clean[name] = ""
			}
		}
		if len(clean) != len(normalized) {
			return nil, errors.NewValidationError("rows", "row has an inconsistent column set", i)
		}
		cleanRows = append(cleanRows, clean)
	}

	return &RawDataset{Columns: normalized, Rows: cleanRows}, nil
}

// FromRecords はヘッダ行と文字列レコードからRawDatasetを構築する
// アップロード境界がCSVパース後に渡してくる形
func FromRecords(header []string, records [][]string) (*RawDataset, error) {
	rows := make([]map[string]string, 0, len(records))
	for i, rec := range records {
		if len(rec) != len(header) {
			return nil, errors.NewValidationError("rows", "record length does not match header", i)
		}
		row := make(map[string]string, len(header))
		for j, col := range header {
			row[col] = rec[j]
		}
		rows = append(rows, row)
	}
	return New(header, rows)
}

// HasColumn は正規化済みの列名が存在するかを返す
func (d *RawDataset) HasColumn(name string) bool {
	for _, col := range d.Columns {
		if col == name {
			return true
		}
	}
	return false
}

// Column は指定列の観測値（行順）を返す
func (d *RawDataset) Column(name string) []string {
	values := make([]string, len(d.Rows))
	for i, row := range d.Rows {
		values[i] = row[name]
	}
	return values
}

// IsMissing は値が欠損として扱われるかどうかを返す
func IsMissing(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "na", "n/a", "nan", "null", "none":
		return true
	}
	return false
}

// ParseNumeric は値を数値として解釈する
func ParseNumeric(value string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// IsNumericColumn は列の非欠損値が全て数値として解釈できるかを返す
// 非欠損値が一つもない列は数値列とみなさない
func (d *RawDataset) IsNumericColumn(name string) bool {
	observed := 0
	for _, row := range d.Rows {
		value := row[name]
		if IsMissing(value) {
			continue
		}
		observed++
		if _, ok := ParseNumeric(value); !ok {
			return false
		}
	}
	return observed > 0
}
