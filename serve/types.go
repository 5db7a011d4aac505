package serve

import (
	"github.com/YuminosukeSato/automl/automl"
	"github.com/YuminosukeSato/automl/dataset"
	"github.com/YuminosukeSato/automl/registry"
)

// AnalyzeRequest は1回の学習実行の入力。
// データセットは上流のアップロード層でパース済みのものを受け取る。
type AnalyzeRequest struct {
	Dataset      *dataset.RawDataset
	ProblemType  dataset.ProblemType
	InputColumns []string
	OutputColumn string

	// Name / Description はモデルレコードに付与されるメタデータ
	Name        string
	Description string
}

// CandidateResult は1アルゴリズムの結果のレスポンス形
type CandidateResult struct {
	Algorithm     string             `json:"algorithm"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
	TrainingTime  float64            `json:"trainingTime"`
	Failed        bool               `json:"failed,omitempty"`
	FailureReason string             `json:"failureReason,omitempty"`
}

// Recommended は選定された勝者のレスポンス形
type Recommended struct {
	Algorithm     string             `json:"algorithm"`
	Metrics       map[string]float64 `json:"metrics"`
	TrainingTime  float64            `json:"trainingTime"`
	Justification string             `json:"justification"`
	BestMetric    automl.BestMetric  `json:"bestMetric"`
}

// APIUsageBody は予測APIの呼び出し例のボディ
type APIUsageBody struct {
	ModelID  string            `json:"modelId"`
	Features map[string]string `json:"features"`
}

// APIUsage は予測APIの使い方の説明
type APIUsage struct {
	Method  string       `json:"method"`
	URL     string       `json:"url"`
	Body    APIUsageBody `json:"body"`
	Example string       `json:"example"`
}

// AnalyzeResponse はanalyzeの結果
type AnalyzeResponse struct {
	ModelID     string            `json:"modelId"`
	Recommended Recommended       `json:"recommended"`
	Results     []CandidateResult `json:"results"`
	APIEndpoint string            `json:"apiEndpoint"`
	APIUsage    APIUsage          `json:"apiUsage"`
}

// PredictionRequest は1回の予測の入力
// Featuresの値は文字列または数値を受け付ける。
type PredictionRequest struct {
	ModelID  string                 `json:"modelId"`
	Features map[string]interface{} `json:"features"`
	UserID   string                 `json:"userId,omitempty"`
}

// PredictionResponse は1回の予測の結果とそのリソース計測値
type PredictionResponse struct {
	// Prediction は分類では元のラベル文字列、回帰では数値
	Prediction interface{} `json:"prediction"`

	// Probabilities は分類のみ。エンコーダのラベル順に並ぶ。
	Probabilities []float64 `json:"probabilities,omitempty"`

	Algorithm   string              `json:"algorithm"`
	ProblemType dataset.ProblemType `json:"problemType"`
	LatencyMs   float64             `json:"latencyMs"`
	CPUPercent  float64             `json:"cpuPercent"`
	MemoryMB    float64             `json:"memoryMB"`
}

// ModelView はget用のレコードと再計算済みサマリ
type ModelView struct {
	*registry.ModelRecord
	Summary registry.Summary `json:"summary"`
}

// DeleteResponse はdeleteModelの結果
type DeleteResponse struct {
	Status  string `json:"status"`
	ModelID string `json:"modelId"`
}
