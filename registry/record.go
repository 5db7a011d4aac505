// Package registry はモデルの永続化レイヤーです。
//
// 1モデルにつきgobバンドル（推定器＋前処理状態）1ファイルと、
// JSONインデックスのエントリ1件を持つ。インデックスの書き込みは常に
// 一時ファイルへの書き出しとrenameによるアトミック置換で行われ、
// 部分的に書けた状態が読者から見えることはない。
package registry

import (
	"sort"
	"time"

	"github.com/YuminosukeSato/automl/core/model"
	"github.com/YuminosukeSato/automl/dataset"
	"github.com/YuminosukeSato/automl/preprocessing"
)

// Usage はモデルの利用実績
type Usage struct {
	TotalCalls  int       `json:"totalCalls"`
	UniqueUsers []string  `json:"uniqueUsers"`
	LastUsed    time.Time `json:"lastUsed"`
}

// addUser は未登録のユーザIDをソート順を保って追加する
func (u *Usage) addUser(userID string) {
	if userID == "" {
		return
	}
	i := sort.SearchStrings(u.UniqueUsers, userID)
	if i < len(u.UniqueUsers) && u.UniqueUsers[i] == userID {
		return
	}
	u.UniqueUsers = append(u.UniqueUsers, "")
	copy(u.UniqueUsers[i+1:], u.UniqueUsers[i:])
	u.UniqueUsers[i] = userID
}

// ResourceSample は1回の予測呼び出しのリソース計測値
type ResourceSample struct {
	Timestamp  time.Time `json:"timestamp"`
	CPUPercent float64   `json:"cpuPercent"`
	MemoryMB   float64   `json:"memoryMB"`
	LatencyMs  float64   `json:"latencyMs"`
}

// PerformanceEntry は評価メトリクスの履歴1件
type PerformanceEntry struct {
	Timestamp time.Time          `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Summary は利用実績とリソース履歴から読み出し時に再計算される集計
type Summary struct {
	TotalCalls       int       `json:"totalCalls"`
	UniqueUsersCount int       `json:"uniqueUsersCount"`
	LastUsed         time.Time `json:"lastUsed"`
	AvgCPUPercent    float64   `json:"avgCpuPercent"`
	MaxMemoryMB      float64   `json:"maxMemoryMB"`
}

// ModelRecord は永続化の単位。フィールド名はUIとの安定した契約。
type ModelRecord struct {
	ModelID     string    `json:"modelId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`

	// 学習が完了するまでは空のプレースホルダ
	ProblemType   dataset.ProblemType `json:"problemType,omitempty"`
	AlgorithmName string              `json:"algorithmName,omitempty"`
	Metrics       map[string]float64  `json:"metrics,omitempty"`
	InputColumns  []string            `json:"inputColumns,omitempty"`
	OutputColumn  string              `json:"outputColumn,omitempty"`

	Usage              Usage              `json:"usage"`
	ResourceMonitoring []ResourceSample   `json:"resourceMonitoring"`
	PerformanceHistory []PerformanceEntry `json:"performanceHistory"`
}

// Trained はこのレコードが学習済みモデルを持つかどうかを返す
func (r *ModelRecord) Trained() bool {
	return r.AlgorithmName != ""
}

// Summarize は保持している履歴からSummaryを再計算する
// 別個の累積カウンタは持たず、読み出しのたびに列から導出する。
func (r *ModelRecord) Summarize() Summary {
	s := Summary{
		TotalCalls:       r.Usage.TotalCalls,
		UniqueUsersCount: len(r.Usage.UniqueUsers),
		LastUsed:         r.Usage.LastUsed,
	}
	if len(r.ResourceMonitoring) == 0 {
		return s
	}
	cpuSum := 0.0
	for _, sample := range r.ResourceMonitoring {
		cpuSum += sample.CPUPercent
		if sample.MemoryMB > s.MaxMemoryMB {
			s.MaxMemoryMB = sample.MemoryMB
		}
	}
	s.AvgCPUPercent = cpuSum / float64(len(r.ResourceMonitoring))
	return s
}

// clone はインデックスの内部状態と呼び出し側を分離するための深いコピーを返す
func (r *ModelRecord) clone() *ModelRecord {
	out := *r
	out.Metrics = copyMetrics(r.Metrics)
	out.InputColumns = append([]string(nil), r.InputColumns...)
	out.Usage.UniqueUsers = append([]string(nil), r.Usage.UniqueUsers...)
	out.ResourceMonitoring = append([]ResourceSample(nil), r.ResourceMonitoring...)
	out.PerformanceHistory = make([]PerformanceEntry, len(r.PerformanceHistory))
	for i, e := range r.PerformanceHistory {
		out.PerformanceHistory[i] = PerformanceEntry{Timestamp: e.Timestamp, Metrics: copyMetrics(e.Metrics)}
	}
	return &out
}

func copyMetrics(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Bundle は1モデルのgob成果物。学習済み推定器とfit済みの前処理状態を
// 一体で保存し、予測時に再導出せずそのまま再生する。
type Bundle struct {
	Estimator model.Estimator
	Pipeline  *preprocessing.Pipeline
}
