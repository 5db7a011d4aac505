package dataset

import (
	"github.com/YuminosukeSato/automl/pkg/errors"
)

// ProblemConfig は一回のanalyze呼び出しの問題設定
type ProblemConfig struct {
	ProblemType  ProblemType
	InputColumns []string
	OutputColumn string
}

// Resolve は宣言された列名を正規化してデータセットの列と照合し、
// 解決済みのProblemConfigを返す。
// 存在しない列はColumnNotFoundErrorで利用可能な列一覧とともに報告する。
func (c ProblemConfig) Resolve(d *RawDataset) (ProblemConfig, error) {
	resolved := ProblemConfig{ProblemType: c.ProblemType}

	if !c.ProblemType.Valid() {
		return resolved, errors.NewValidationError("problemType",
			"must be 'classification' or 'regression'", string(c.ProblemType))
	}
	if len(c.InputColumns) == 0 {
		return resolved, errors.NewValidationError("inputColumns", "must not be empty", nil)
	}

	var missing []string
	inputs := make([]string, 0, len(c.InputColumns))
	seen := make(map[string]bool, len(c.InputColumns))
	for _, col := range c.InputColumns {
		name := NormalizeName(col)
		if !d.HasColumn(name) {
			missing = append(missing, name)
			continue
		}
		if seen[name] {
			return resolved, errors.NewValidationError("inputColumns", "duplicate input column", name)
		}
		seen[name] = true
		inputs = append(inputs, name)
	}

	output := NormalizeName(c.OutputColumn)
	if output == "" {
		return resolved, errors.NewValidationError("outputColumn", "must not be empty", c.OutputColumn)
	}
	if !d.HasColumn(output) {
		missing = append(missing, output)
	}
	if len(missing) > 0 {
		return resolved, errors.NewColumnNotFoundError(missing, d.Columns)
	}
	if seen[output] {
		return resolved, errors.NewValidationError("outputColumn",
			"output column cannot be in input columns", output)
	}

	resolved.InputColumns = inputs
	resolved.OutputColumn = output
	return resolved, nil
}
