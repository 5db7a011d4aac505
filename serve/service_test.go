package serve

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/YuminosukeSato/automl/dataset"
	"github.com/YuminosukeSato/automl/pkg/config"
	"github.com/YuminosukeSato/automl/pkg/errors"
	"github.com/YuminosukeSato/automl/registry"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := registry.Open(t.TempDir())
	if err != nil {
		t.Fatalf("registry.Open() error = %v", err)
	}
	return NewService(store, config.Default().Engine)
}

// bankDataset builds a small synthetic marketing dataset where the outcome
// depends on balance and job, with a sprinkling of missing cells.
func bankDataset(t *testing.T) *dataset.RawDataset {
	t.Helper()
	jobs := []string{"admin", "technician", "services", "management", "blue-collar"}
	rows := make([]map[string]string, 0, 60)
	for i := 0; i < 60; i++ {
		job := jobs[i%len(jobs)]
		age := 25 + (i*7)%40
		balance := 300 + i*150
		outcome := "no"
		if balance > 4500 || job == "management" {
			outcome = "yes"
		}
		row := map[string]string{
			"age":     fmt.Sprintf("%d", age),
			"job":     job,
			"balance": fmt.Sprintf("%d", balance),
			"y":       outcome,
		}
		if i%17 == 0 {
			row["age"] = ""
		}
		rows = append(rows, row)
	}
	d, err := dataset.New([]string{"age", "job", "balance", "y"}, rows)
	if err != nil {
		t.Fatalf("dataset.New() error = %v", err)
	}
	return d
}

func analyzeBank(t *testing.T, svc *Service) *AnalyzeResponse {
	t.Helper()
	resp, err := svc.Analyze(context.Background(), AnalyzeRequest{
		Dataset:      bankDataset(t),
		ProblemType:  dataset.Classification,
		InputColumns: []string{"age", "job", "balance"},
		OutputColumn: "y",
		Name:         "term deposit propensity",
		Description:  "predicts subscription from demographics",
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	return resp
}

func TestAnalyze_Classification(t *testing.T) {
	svc := newTestService(t)
	resp := analyzeBank(t, svc)

	if resp.ModelID == "" {
		t.Fatal("response has no model id")
	}
	if len(resp.Results) != 7 {
		t.Fatalf("got %d candidate results, want 7", len(resp.Results))
	}
	if resp.Recommended.Algorithm == "" {
		t.Fatal("no recommended algorithm")
	}
	if !strings.Contains(resp.Recommended.Justification, resp.Recommended.Algorithm) {
		t.Errorf("justification %q does not mention %q",
			resp.Recommended.Justification, resp.Recommended.Algorithm)
	}
	if resp.Recommended.BestMetric.Name != "accuracy" {
		t.Errorf("bestMetric name = %q, want accuracy", resp.Recommended.BestMetric.Name)
	}
	if resp.APIEndpoint != "/api/predict" {
		t.Errorf("apiEndpoint = %q", resp.APIEndpoint)
	}

	// The recommended algorithm carries the highest weighted score among results.
	recommended := resp.Recommended.Metrics
	wantScore := 0.5*recommended["accuracy"] + 0.3*recommended["f1Score"] + 0.2*recommended["precision"]
	for _, r := range resp.Results {
		if r.Failed {
			continue
		}
		score := 0.5*r.Metrics["accuracy"] + 0.3*r.Metrics["f1Score"] + 0.2*r.Metrics["precision"]
		if score > wantScore+1e-9 {
			t.Errorf("%s scores %v, above recommended %v", r.Algorithm, score, wantScore)
		}
	}

	// The stored record mirrors the response.
	view, err := svc.GetModel(resp.ModelID)
	if err != nil {
		t.Fatalf("GetModel() error = %v", err)
	}
	if view.AlgorithmName != resp.Recommended.Algorithm {
		t.Errorf("stored algorithm = %q, recommended %q", view.AlgorithmName, resp.Recommended.Algorithm)
	}
	if len(view.PerformanceHistory) != 1 {
		t.Errorf("PerformanceHistory has %d entries, want 1", len(view.PerformanceHistory))
	}
}

func TestAnalyze_APIUsage(t *testing.T) {
	svc := newTestService(t)
	resp := analyzeBank(t, svc)

	usage := resp.APIUsage
	if usage.Method != "POST" || usage.URL != "/api/predict" {
		t.Errorf("apiUsage = %+v", usage)
	}
	if usage.Body.ModelID != resp.ModelID {
		t.Errorf("apiUsage body modelId = %q, want %q", usage.Body.ModelID, resp.ModelID)
	}
	for _, col := range []string{"age", "job", "balance"} {
		if _, ok := usage.Body.Features[col]; !ok {
			t.Errorf("apiUsage features missing column %q", col)
		}
		if !strings.Contains(usage.Example, fmt.Sprintf("%q", col)) {
			t.Errorf("example does not mention column %q: %s", col, usage.Example)
		}
	}
	if !strings.HasPrefix(usage.Example, "POST /api/predict") {
		t.Errorf("example does not start with the endpoint: %s", usage.Example)
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	first := analyzeBank(t, newTestService(t))
	second := analyzeBank(t, newTestService(t))

	if first.Recommended.Algorithm != second.Recommended.Algorithm {
		t.Fatalf("recommended algorithm differs between runs: %q vs %q",
			first.Recommended.Algorithm, second.Recommended.Algorithm)
	}
	for i := range first.Results {
		a, b := first.Results[i], second.Results[i]
		if a.Algorithm != b.Algorithm {
			t.Fatalf("result order differs at %d: %q vs %q", i, a.Algorithm, b.Algorithm)
		}
		for key, v := range a.Metrics {
			if math.Abs(v-b.Metrics[key]) > 1e-12 {
				t.Errorf("%s metric %q differs between runs: %v vs %v", a.Algorithm, key, v, b.Metrics[key])
			}
		}
	}
}

func TestAnalyze_CanceledContext(t *testing.T) {
	svc := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Analyze(ctx, AnalyzeRequest{
		Dataset:      bankDataset(t),
		ProblemType:  dataset.Classification,
		InputColumns: []string{"age", "job", "balance"},
		OutputColumn: "y",
		Name:         "doomed",
	})
	if err == nil {
		t.Fatal("Analyze() with canceled context returned no error")
	}
	if models := svc.ListModels(); len(models) != 0 {
		t.Errorf("canceled analyze left %d records behind", len(models))
	}
}

func TestPredict(t *testing.T) {
	svc := newTestService(t)
	resp := analyzeBank(t, svc)

	pred, err := svc.Predict(context.Background(), PredictionRequest{
		ModelID: resp.ModelID,
		Features: map[string]interface{}{
			"age":     30,
			"job":     "admin",
			"balance": 1000.0,
		},
		UserID: "alice",
	})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	label, ok := pred.Prediction.(string)
	if !ok || (label != "yes" && label != "no") {
		t.Errorf("Prediction = %v, want \"yes\" or \"no\"", pred.Prediction)
	}
	if pred.Algorithm != resp.Recommended.Algorithm {
		t.Errorf("Algorithm = %q, want %q", pred.Algorithm, resp.Recommended.Algorithm)
	}
	if pred.ProblemType != dataset.Classification {
		t.Errorf("ProblemType = %q", pred.ProblemType)
	}

	// Binary classification always yields one probability per fitted label.
	if len(pred.Probabilities) != 2 {
		t.Fatalf("Probabilities = %v, want 2 entries", pred.Probabilities)
	}
	sum := pred.Probabilities[0] + pred.Probabilities[1]
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("probabilities sum to %v", sum)
	}
}

func TestPredict_RecordsUsage(t *testing.T) {
	svc := newTestService(t)
	resp := analyzeBank(t, svc)

	features := map[string]interface{}{"age": 40, "job": "technician", "balance": 2500}
	for _, user := range []string{"alice", "bob", "alice"} {
		if _, err := svc.Predict(context.Background(), PredictionRequest{
			ModelID:  resp.ModelID,
			Features: features,
			UserID:   user,
		}); err != nil {
			t.Fatalf("Predict() error = %v", err)
		}
	}

	view, err := svc.GetModel(resp.ModelID)
	if err != nil {
		t.Fatalf("GetModel() error = %v", err)
	}
	if view.Usage.TotalCalls != 3 {
		t.Errorf("totalCalls = %d, want 3", view.Usage.TotalCalls)
	}
	if view.Summary.UniqueUsersCount != 2 {
		t.Errorf("uniqueUsersCount = %d, want 2", view.Summary.UniqueUsersCount)
	}
	if len(view.ResourceMonitoring) != 3 {
		t.Errorf("resourceMonitoring has %d samples, want 3", len(view.ResourceMonitoring))
	}
	if view.Usage.LastUsed.IsZero() {
		t.Error("lastUsed not set")
	}
}

func TestPredict_UnknownCategory(t *testing.T) {
	svc := newTestService(t)
	resp := analyzeBank(t, svc)

	_, err := svc.Predict(context.Background(), PredictionRequest{
		ModelID:  resp.ModelID,
		Features: map[string]interface{}{"age": 30, "job": "astronaut", "balance": 1000},
	})
	var uErr *errors.UnknownCategoryError
	if !errors.As(err, &uErr) {
		t.Fatalf("Predict() error = %v, want *UnknownCategoryError", err)
	}
	if uErr.Column != "job" {
		t.Errorf("error column = %q, want job", uErr.Column)
	}
	if len(uErr.ValidValues) == 0 {
		t.Error("error does not list the valid categories")
	}
}

func TestPredict_MissingFeature(t *testing.T) {
	svc := newTestService(t)
	resp := analyzeBank(t, svc)

	_, err := svc.Predict(context.Background(), PredictionRequest{
		ModelID:  resp.ModelID,
		Features: map[string]interface{}{"age": 30, "job": "admin"},
	})
	var mErr *errors.MissingFeatureError
	if !errors.As(err, &mErr) {
		t.Fatalf("Predict() error = %v, want *MissingFeatureError", err)
	}
	if mErr.Feature != "balance" {
		t.Errorf("missing feature = %q, want balance", mErr.Feature)
	}
}

func TestPredict_UntrainedPlaceholder(t *testing.T) {
	svc := newTestService(t)
	rec, err := svc.CreatePlaceholder("draft", "no data yet")
	if err != nil {
		t.Fatalf("CreatePlaceholder() error = %v", err)
	}

	_, err = svc.Predict(context.Background(), PredictionRequest{
		ModelID:  rec.ModelID,
		Features: map[string]interface{}{"age": 30},
	})
	var vErr *errors.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Predict() on placeholder error = %v, want *ValidationError", err)
	}
}

func TestDeleteModel(t *testing.T) {
	svc := newTestService(t)
	resp := analyzeBank(t, svc)

	del, err := svc.DeleteModel(resp.ModelID)
	if err != nil {
		t.Fatalf("DeleteModel() error = %v", err)
	}
	if del.Status != "deleted" || del.ModelID != resp.ModelID {
		t.Errorf("DeleteModel() = %+v", del)
	}

	var nfErr *errors.NotFoundError
	if _, err := svc.GetModel(resp.ModelID); !errors.As(err, &nfErr) {
		t.Errorf("GetModel() after delete error = %v, want *NotFoundError", err)
	}
	if _, err := svc.Predict(context.Background(), PredictionRequest{
		ModelID:  resp.ModelID,
		Features: map[string]interface{}{"age": 30, "job": "admin", "balance": 1000},
	}); !errors.As(err, &nfErr) {
		t.Errorf("Predict() after delete error = %v, want *NotFoundError", err)
	}
}

func TestListModels(t *testing.T) {
	svc := newTestService(t)
	if got := svc.ListModels(); len(got) != 0 {
		t.Fatalf("fresh registry lists %d models", len(got))
	}

	resp := analyzeBank(t, svc)
	if _, err := svc.CreatePlaceholder("draft", ""); err != nil {
		t.Fatalf("CreatePlaceholder() error = %v", err)
	}

	models := svc.ListModels()
	if len(models) != 2 {
		t.Fatalf("ListModels() returned %d, want 2", len(models))
	}
	found := false
	for _, m := range models {
		if m.ModelID == resp.ModelID {
			found = true
		}
	}
	if !found {
		t.Errorf("trained model %q missing from list", resp.ModelID)
	}
}

func TestFeatureString(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{"admin", "admin"},
		{30.0, "30"},
		{30.5, "30.5"},
		{int(7), "7"},
		{int64(7), "7"},
		{true, "true"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := featureString(tt.in); got != tt.want {
			t.Errorf("featureString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
