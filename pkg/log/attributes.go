// Package log defines standard attribute keys for the training and serving paths.
//
// Using these keys keeps the analyze and predict logs filterable: every fit,
// selection, persistence, and inference event is tagged with the same names.

package log

// Model and operation context.
const (
	// ModelIDKey is the durable identifier of a persisted model.
	ModelIDKey = "model.id"

	// AlgorithmKey identifies the candidate algorithm.
	// Examples: "Logistic Regression", "Random Forest", "Gradient Boosting"
	AlgorithmKey = "ml.algorithm"

	// ProblemTypeKey is "classification" or "regression".
	ProblemTypeKey = "ml.problem_type"

	// OperationKey specifies the operation being performed.
	// Standard values: "analyze", "fit", "evaluate", "select", "predict", "persist"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is performing the operation.
	// Examples: "preprocessing", "automl", "registry", "serve"
	ComponentKey = "ml.component"
)

// Data shape and characteristics.
const (
	// SamplesKey is the number of rows involved in the operation.
	SamplesKey = "data.samples"

	// FeaturesKey is the number of input columns.
	FeaturesKey = "data.features"

	// TrainRowsKey and TestRowsKey describe the deterministic split.
	TrainRowsKey = "data.train_rows"
	TestRowsKey  = "data.test_rows"

	// TargetKey is the declared output column.
	TargetKey = "data.target"
)

// Performance and outcome.
const (
	// DurationMsKey is the wall-clock duration of the operation in milliseconds.
	DurationMsKey = "duration_ms"

	// ScoreKey is the weighted selection score of a candidate.
	ScoreKey = "ml.score"

	// CandidatesKey is the number of candidate algorithms attempted.
	CandidatesKey = "ml.candidates"

	// FailedKey is the number of candidates that failed to train.
	FailedKey = "ml.failed"
)
