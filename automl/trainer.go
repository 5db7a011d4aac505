// Package automl は候補アルゴリズムの一括学習・評価・選定を行います。
//
// トレーナーはカタログの全アルゴリズムを同一の学習/評価パーティションで
// 学習させ、評価器が統一キーのメトリクスを付与し、セレクターが
// 重み付きスコアで勝者を決める。1候補の失敗は他候補に波及しない。
package automl

import (
	"context"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/automl/core/model"
	"github.com/YuminosukeSato/automl/core/parallel"
	"github.com/YuminosukeSato/automl/dataset"
	"github.com/YuminosukeSato/automl/estimator"
	"github.com/YuminosukeSato/automl/pkg/errors"
	applog "github.com/YuminosukeSato/automl/pkg/log"
	"github.com/YuminosukeSato/automl/preprocessing"
)

// Candidate は1つのアルゴリズムの学習試行の結果
type Candidate struct {
	// Algorithm はカタログ上の表示名
	Algorithm string

	// Estimator は学習済みの推定器（失敗時はnil）
	Estimator model.Estimator

	// Metrics は評価パーティションで計算された統一キーのメトリクス
	Metrics map[string]float64

	// TrainingTime は学習と評価に要した時間
	TrainingTime time.Duration

	// Failed は学習または評価が失敗したかどうか
	Failed bool

	// FailureReason は失敗時の人間可読な理由
	FailureReason string
}

// TrainOptions は一括学習の調整パラメータ
type TrainOptions struct {
	// Seed は確率的アルゴリズムと分割に共有されるシード
	Seed int64

	// Workers は並列に学習する候補数の上限（1以下で逐次）
	Workers int
}

// TrainAll はカタログの全候補を学習・評価し、カタログ順の結果を返す。
// 個々の候補の失敗（エラー・パニックとも）はその候補のFailedに記録され、
// 他の候補の学習は継続する。
func TrainAll(ctx context.Context, pp *preprocessing.Preprocessed, opts TrainOptions) []Candidate {
	problem := pp.Pipeline.ProblemType
	XTrain, yTrain := pp.TrainMatrices()
	XTest, yTest := pp.TestMatrices()

	spec := estimator.TrainSpec{Seed: opts.Seed, NTrain: len(pp.TrainIndices)}
	catalog := estimator.Catalog(problem)
	results := make([]Candidate, len(catalog))

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	parallel.ForEach(len(catalog), workers, func(i int) {
		if ctx.Err() != nil {
			results[i] = Candidate{
				Algorithm:     catalog[i].Name,
				Failed:        true,
				FailureReason: ctx.Err().Error(),
			}
			return
		}
		results[i] = trainOne(catalog[i], spec, problem, XTrain, yTrain, XTest, yTest)
	})

	return results
}

// trainOne は1候補を学習・評価する。パニックはSafeExecuteで失敗として回収する。
func trainOne(desc estimator.Descriptor, spec estimator.TrainSpec, problem dataset.ProblemType, XTrain *mat.Dense, yTrain *mat.VecDense, XTest *mat.Dense, yTest *mat.VecDense) Candidate {
	cand := Candidate{Algorithm: desc.Name}
	start := time.Now()

	est := desc.New(spec)
	err := errors.SafeExecute(desc.Name+" training", func() error {
		if fitErr := est.Fit(XTrain, yTrain); fitErr != nil {
			return fitErr
		}
		m, evalErr := Evaluate(problem, est, XTest, yTest)
		if evalErr != nil {
			return evalErr
		}
		cand.Metrics = m
		return nil
	})

	cand.TrainingTime = time.Since(start)
	if err != nil {
		cand.Failed = true
		cand.FailureReason = err.Error()
		slog.Warn("candidate training failed",
			slog.String(applog.AlgorithmKey, desc.Name),
			slog.String(applog.OperationKey, "fit"),
			applog.ErrAttr(err))
		return cand
	}

	cand.Estimator = est
	slog.Debug("candidate trained",
		slog.String(applog.AlgorithmKey, desc.Name),
		slog.String(applog.OperationKey, "fit"),
		slog.Int64(applog.DurationMsKey, cand.TrainingTime.Milliseconds()))
	return cand
}
