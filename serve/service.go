// Package serve は学習エンジンと予測エンジンの外部境界です。
//
// analyze（前処理→一括学習→選定→永続化）とpredict（前処理の再生→推論→
// 利用実績の記録）を同期的に提供する。REST層やUIはこのパッケージの
// リクエスト/レスポンス型をそのままJSONにして使う。
package serve

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/automl/automl"
	"github.com/YuminosukeSato/automl/core/model"
	"github.com/YuminosukeSato/automl/dataset"
	"github.com/YuminosukeSato/automl/pkg/config"
	"github.com/YuminosukeSato/automl/pkg/errors"
	applog "github.com/YuminosukeSato/automl/pkg/log"
	"github.com/YuminosukeSato/automl/preprocessing"
	"github.com/YuminosukeSato/automl/registry"
)

// predictEndpoint は予測APIの安定したパス
const predictEndpoint = "/api/predict"

// Service は学習と予測の本体
type Service struct {
	store   *registry.Store
	cfg     config.EngineConfig
	monitor *Monitor
}

// NewService はレジストリと設定からサービスを構築する
func NewService(store *registry.Store, cfg config.EngineConfig) *Service {
	return &Service{
		store:   store,
		cfg:     cfg,
		monitor: NewMonitor(),
	}
}

// CreatePlaceholder はデータ投入前のメタデータのみのレコードを作成する
func (s *Service) CreatePlaceholder(name, description string) (*registry.ModelRecord, error) {
	rec := &registry.ModelRecord{
		ModelID:     uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.Create(rec, nil); err != nil {
		return nil, err
	}
	return rec, nil
}

// Analyze は前処理・全候補の学習・選定・永続化を一括で実行する。
// ctxが途中で打ち切られた場合、部分的なモデルレコードは一切残らない。
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	start := time.Now()

	probCfg := dataset.ProblemConfig{
		ProblemType:  req.ProblemType,
		InputColumns: req.InputColumns,
		OutputColumn: req.OutputColumn,
	}

	pp, err := preprocessing.Fit(req.Dataset, probCfg, preprocessing.Options{
		Seed:         s.cfg.Seed,
		TestFraction: s.cfg.TestFraction,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("dataset preprocessed",
		slog.String(applog.OperationKey, "analyze"),
		slog.String(applog.ProblemTypeKey, string(req.ProblemType)),
		slog.String(applog.TargetKey, pp.Pipeline.OutputColumn),
		slog.Int(applog.FeaturesKey, len(pp.Pipeline.InputColumns)),
		slog.Int(applog.TrainRowsKey, len(pp.TrainIndices)),
		slog.Int(applog.TestRowsKey, len(pp.TestIndices)))

	candidates := automl.TrainAll(ctx, pp, automl.TrainOptions{
		Seed:    s.cfg.Seed,
		Workers: s.cfg.Workers,
	})

	selection, err := automl.Select(req.ProblemType, candidates)
	if err != nil {
		return nil, err
	}

	// 全か無かのコミット: タイムアウト後に中途半端なレコードを見せない
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "analyze aborted before commit")
	}

	rec := &registry.ModelRecord{
		ModelID:       uuid.NewString(),
		Name:          req.Name,
		Description:   req.Description,
		CreatedAt:     time.Now().UTC(),
		ProblemType:   req.ProblemType,
		AlgorithmName: selection.Winner.Algorithm,
		Metrics:       selection.Winner.Metrics,
		InputColumns:  pp.Pipeline.InputColumns,
		OutputColumn:  pp.Pipeline.OutputColumn,
		PerformanceHistory: []registry.PerformanceEntry{
			{Timestamp: time.Now().UTC(), Metrics: selection.Winner.Metrics},
		},
	}
	bundle := &registry.Bundle{
		Estimator: selection.Winner.Estimator,
		Pipeline:  pp.Pipeline,
	}
	if err := s.store.Create(rec, bundle); err != nil {
		return nil, err
	}

	slog.Info("analyze completed",
		slog.String(applog.ModelIDKey, rec.ModelID),
		slog.String(applog.AlgorithmKey, rec.AlgorithmName),
		slog.String(applog.OperationKey, "analyze"),
		slog.Int64(applog.DurationMsKey, time.Since(start).Milliseconds()))

	return s.analyzeResponse(rec.ModelID, selection, candidates), nil
}

// analyzeResponse はUI向けのレスポンス形を組み立てる
func (s *Service) analyzeResponse(modelID string, selection *automl.SelectionResult, candidates []automl.Candidate) *AnalyzeResponse {
	results := make([]CandidateResult, len(candidates))
	for i, c := range candidates {
		results[i] = CandidateResult{
			Algorithm:     c.Algorithm,
			Metrics:       c.Metrics,
			TrainingTime:  c.TrainingTime.Seconds(),
			Failed:        c.Failed,
			FailureReason: c.FailureReason,
		}
	}

	rec, err := s.store.Get(modelID)
	inputColumns := []string{}
	if err == nil {
		inputColumns = rec.InputColumns
	}

	return &AnalyzeResponse{
		ModelID: modelID,
		Recommended: Recommended{
			Algorithm:     selection.Winner.Algorithm,
			Metrics:       selection.Winner.Metrics,
			TrainingTime:  selection.Winner.TrainingTime.Seconds(),
			Justification: selection.Justification,
			BestMetric:    selection.BestMetric,
		},
		Results:     results,
		APIEndpoint: predictEndpoint,
		APIUsage:    apiUsage(modelID, inputColumns),
	}
}

// apiUsage は入力列からcurlで試せる呼び出し例を組み立てる
func apiUsage(modelID string, inputColumns []string) APIUsage {
	body := APIUsageBody{ModelID: modelID, Features: make(map[string]string, len(inputColumns))}
	for _, col := range inputColumns {
		body.Features[col] = "value"
	}

	var example strings.Builder
	fmt.Fprintf(&example, "POST %s\n{\n  \"modelId\": %q,\n  \"features\": {", predictEndpoint, modelID)
	for i, col := range inputColumns {
		if i > 0 {
			example.WriteString(",")
		}
		fmt.Fprintf(&example, "\n    %q: \"value%d\"", col, i+1)
	}
	example.WriteString("\n  }\n}")

	return APIUsage{
		Method:  "POST",
		URL:     predictEndpoint,
		Body:    body,
		Example: example.String(),
	}
}

// Predict は保存済みモデルで1行の予測を行い、利用実績を記録する
func (s *Service) Predict(ctx context.Context, req PredictionRequest) (*PredictionResponse, error) {
	rec, err := s.store.Get(req.ModelID)
	if err != nil {
		return nil, err
	}
	if !rec.Trained() {
		return nil, errors.NewValidationError("modelId", "model has not been trained yet", req.ModelID)
	}

	bundle, err := s.store.LoadBundle(req.ModelID)
	if err != nil {
		return nil, err
	}
	pipeline := bundle.Pipeline

	// 宣言された入力列がすべて揃っていることを先に検証する
	features := make(map[string]string, len(req.Features))
	for col, v := range req.Features {
		features[col] = featureString(v)
	}
	for _, col := range pipeline.InputColumns {
		if _, ok := features[col]; !ok {
			return nil, errors.NewMissingFeatureError(col)
		}
	}

	start := time.Now()

	row, err := pipeline.TransformRow(features)
	if err != nil {
		return nil, err
	}
	X := mat.NewDense(1, len(row), row)

	pred, err := bundle.Estimator.Predict(X)
	if err != nil {
		return nil, err
	}

	prediction, err := pipeline.DecodeTarget(pred.At(0, 0))
	if err != nil {
		return nil, err
	}

	var probabilities []float64
	if pipeline.ProblemType == dataset.Classification {
		probabilities = s.classProbabilities(bundle, X)
	}

	sample := s.monitor.Sample(time.Since(start))
	if err := s.store.RecordUsage(req.ModelID, req.UserID, sample); err != nil {
		return nil, err
	}

	slog.Debug("prediction served",
		slog.String(applog.ModelIDKey, req.ModelID),
		slog.String(applog.AlgorithmKey, rec.AlgorithmName),
		slog.String(applog.OperationKey, "predict"),
		slog.Int64(applog.DurationMsKey, int64(sample.LatencyMs)))

	return &PredictionResponse{
		Prediction:    prediction,
		Probabilities: probabilities,
		Algorithm:     rec.AlgorithmName,
		ProblemType:   rec.ProblemType,
		LatencyMs:     sample.LatencyMs,
		CPUPercent:    sample.CPUPercent,
		MemoryMB:      sample.MemoryMB,
	}, nil
}

// classProbabilities はエンコーダのラベル順に整列した確率ベクトルを返す。
// 学習パーティションに現れなかったクラスの位置は0になる。
func (s *Service) classProbabilities(bundle *registry.Bundle, X mat.Matrix) []float64 {
	clf, ok := bundle.Estimator.(model.Classifier)
	if !ok || bundle.Pipeline.TargetEncoder == nil {
		return nil
	}
	proba, err := clf.PredictProba(X)
	if err != nil {
		return nil
	}

	out := make([]float64, bundle.Pipeline.TargetEncoder.NumClasses())
	for col, class := range clf.Classes() {
		if class >= 0 && class < len(out) {
			out[class] = proba.At(0, col)
		}
	}
	return out
}

// GetModel はレコードと再計算済みサマリを返す
func (s *Service) GetModel(modelID string) (*ModelView, error) {
	rec, err := s.store.Get(modelID)
	if err != nil {
		return nil, err
	}
	return &ModelView{ModelRecord: rec, Summary: rec.Summarize()}, nil
}

// ListModels は作成日時の新しい順に全モデルのサマリ付きビューを返す
func (s *Service) ListModels() []*ModelView {
	records := s.store.List()
	out := make([]*ModelView, len(records))
	for i, rec := range records {
		out[i] = &ModelView{ModelRecord: rec, Summary: rec.Summarize()}
	}
	return out
}

// DeleteModel はモデルの成果物とメタデータを削除する
func (s *Service) DeleteModel(modelID string) (*DeleteResponse, error) {
	if err := s.store.Delete(modelID); err != nil {
		return nil, err
	}
	return &DeleteResponse{Status: "deleted", ModelID: modelID}, nil
}

// featureString はJSON由来の特徴量値を学習時と同じ文字列表現に揃える
func featureString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
