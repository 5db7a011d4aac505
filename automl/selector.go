package automl

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/YuminosukeSato/automl/dataset"
	"github.com/YuminosukeSato/automl/pkg/errors"
	applog "github.com/YuminosukeSato/automl/pkg/log"
)

// 重み付きスコアの係数。選定結果の互換性に関わるため変更してはならない。
const (
	clfAccuracyWeight  = 0.5
	clfF1Weight        = 0.3
	clfPrecisionWeight = 0.2

	regR2Weight   = 0.6
	regRMSEWeight = 0.4
)

// BestMetric は勝者の代表メトリクス
type BestMetric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Ranked はスコア付けされた1候補
type Ranked struct {
	Candidate
	Score float64
}

// SelectionResult は選定の結果
type SelectionResult struct {
	// Winner は重み付きスコア最大の候補
	Winner Ranked

	// RankedCandidates はスコア降順の全候補（失敗候補は末尾、スコア0）
	RankedCandidates []Ranked

	// Justification は勝者と根拠メトリクスを説明する生成文
	Justification string

	// BestMetric は勝者の代表メトリクス
	BestMetric BestMetric
}

// Select は学習済み候補から勝者を1つ決める。
//
// 分類スコア: 0.5·accuracy + 0.3·f1Score + 0.2·precision
// 回帰スコア: 0.6·R² + 0.4·(1 − RMSE/maxRMSE)（正規化RMSEは[0,1]にクランプ）
//
// 同点は学習時間の短い方、それも同じならアルゴリズム名の辞書順で決める。
// 全候補が失敗していた場合はNoViableCandidateErrorを返す。
func Select(problem dataset.ProblemType, candidates []Candidate) (*SelectionResult, error) {
	viable := 0
	for _, c := range candidates {
		if !c.Failed {
			viable++
		}
	}
	if viable == 0 {
		return nil, errors.NewNoViableCandidateError(string(problem), len(candidates))
	}

	// 回帰の正規化はこのバッチで観測された最大RMSEを基準にする
	maxRMSE := 0.0
	if problem == dataset.Regression {
		for _, c := range candidates {
			if c.Failed {
				continue
			}
			if rmse := c.Metrics[MetricRMSE]; rmse > maxRMSE {
				maxRMSE = rmse
			}
		}
	}

	ranked := make([]Ranked, len(candidates))
	for i, c := range candidates {
		ranked[i] = Ranked{Candidate: c}
		if c.Failed {
			continue
		}
		ranked[i].Score = score(problem, c.Metrics, maxRMSE)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Failed != b.Failed {
			return !a.Failed
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.TrainingTime != b.TrainingTime {
			return a.TrainingTime < b.TrainingTime
		}
		return a.Algorithm < b.Algorithm
	})

	winner := ranked[0]
	result := &SelectionResult{
		Winner:           winner,
		RankedCandidates: ranked,
		BestMetric:       bestMetric(problem, winner.Metrics),
	}
	result.Justification = justification(problem, ranked)

	slog.Info("model selected",
		slog.String(applog.AlgorithmKey, winner.Algorithm),
		slog.String(applog.ProblemTypeKey, string(problem)),
		slog.String(applog.OperationKey, "select"),
		slog.Float64(applog.ScoreKey, winner.Score),
		slog.Int(applog.CandidatesKey, len(candidates)),
		slog.Int(applog.FailedKey, len(candidates)-viable))
	return result, nil
}

// score は1候補の重み付きスコアを計算する
func score(problem dataset.ProblemType, m map[string]float64, maxRMSE float64) float64 {
	if problem == dataset.Classification {
		return clfAccuracyWeight*m[MetricAccuracy] +
			clfF1Weight*m[MetricF1] +
			clfPrecisionWeight*m[MetricPrecision]
	}

	normalized := 0.0
	if maxRMSE > 0 {
		normalized = m[MetricRMSE] / maxRMSE
	}
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}
	return regR2Weight*m[MetricR2] + regRMSEWeight*(1-normalized)
}

// bestMetric は勝者の代表メトリクスを返す
// 分類はaccuracy、回帰はR²を代表とする。
func bestMetric(problem dataset.ProblemType, m map[string]float64) BestMetric {
	if problem == dataset.Classification {
		return BestMetric{Name: MetricAccuracy, Value: m[MetricAccuracy]}
	}
	return BestMetric{Name: MetricR2, Value: m[MetricR2]}
}

// justification は勝者と根拠メトリクスを説明する一文を生成する
func justification(problem dataset.ProblemType, ranked []Ranked) string {
	winner := ranked[0]

	var driving string
	if problem == dataset.Classification {
		driving = fmt.Sprintf("accuracy (%.3f) and F1 (%.3f)",
			winner.Metrics[MetricAccuracy], winner.Metrics[MetricF1])
	} else {
		driving = fmt.Sprintf("R² (%.3f) and RMSE (%.3f)",
			winner.Metrics[MetricR2], winner.Metrics[MetricRMSE])
	}

	var runnerUp *Ranked
	for i := 1; i < len(ranked); i++ {
		if !ranked[i].Failed {
			runnerUp = &ranked[i]
			break
		}
	}
	if runnerUp == nil {
		return fmt.Sprintf("%s was selected for highest weighted score (%.2f), driven by %s; it was the only candidate to finish training.",
			winner.Algorithm, winner.Score, driving)
	}
	return fmt.Sprintf("%s was selected for highest weighted score (%.2f), driven by %s, ahead of %s (%.2f).",
		winner.Algorithm, winner.Score, driving, runnerUp.Algorithm, runnerUp.Score)
}
