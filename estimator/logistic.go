package estimator

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/automl/core/model"
	"github.com/YuminosukeSato/automl/pkg/errors"
)

// LogisticRegression implements logistic regression for classification.
// Binary problems use plain gradient descent; multiclass problems fall
// back to one-vs-rest with one weight vector per class.
type LogisticRegression struct {
	model.BaseEstimator

	// Hyperparameters
	C       float64 // Inverse regularization strength (1/lambda)
	MaxIter int     // Maximum gradient descent iterations
	Tol     float64 // Convergence tolerance on the gradient
	Seed    int64   // Seed for weight initialization

	// Learned parameters - Public for gob encoding
	Coef        [][]float64 // One weight vector per class (single vector for binary)
	InterceptV  []float64   // Intercept per weight vector
	ClassLabels []int       // Unique class labels, ascending
	NFeatures   int
}

// NewLogisticRegression creates a classifier with library defaults.
func NewLogisticRegression(seed int64) *LogisticRegression {
	return &LogisticRegression{
		C:       1.0,
		MaxIter: 100,
		Tol:     1e-4,
		Seed:    seed,
	}
}

// Fit trains the model with gradient descent.
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	nSamples, nFeatures := X.Dims()
	yRows, _ := y.Dims()

	if nSamples == 0 || nFeatures == 0 {
		return errors.Wrap(errors.ErrEmptyData, "LogisticRegression.Fit")
	}
	if nSamples != yRows {
		return errors.NewDimensionError("LogisticRegression.Fit", nSamples, yRows, 0)
	}

	yVec, err := vecFromMatrix(y)
	if err != nil {
		return err
	}

	lr.ClassLabels = classSet(yVec)
	lr.NFeatures = nFeatures
	if len(lr.ClassLabels) < 2 {
		return errors.NewValidationError("target", "classification requires at least 2 classes", len(lr.ClassLabels))
	}

	nVectors := len(lr.ClassLabels)
	if nVectors == 2 {
		// Binary: a single vector scoring the positive (larger) class
		nVectors = 1
	}

	rng := rand.New(rand.NewSource(lr.Seed))
	lr.Coef = make([][]float64, nVectors)
	lr.InterceptV = make([]float64, nVectors)
	for i := range lr.Coef {
		lr.Coef[i] = make([]float64, nFeatures)
		for j := range lr.Coef[i] {
			lr.Coef[i][j] = rng.NormFloat64() * 0.01
		}
	}

	if len(lr.ClassLabels) == 2 {
		positive := lr.ClassLabels[1]
		lr.fitBinary(X, yVec, 0, func(label float64) float64 {
			if int(math.Round(label)) == positive {
				return 1.0
			}
			return 0.0
		})
	} else {
		// One-vs-rest: each class gets its own binary problem
		for classIdx, class := range lr.ClassLabels {
			target := class
			lr.fitBinary(X, yVec, classIdx, func(label float64) float64 {
				if int(math.Round(label)) == target {
					return 1.0
				}
				return 0.0
			})
		}
	}

	lr.SetDimensions(nFeatures, nSamples)
	lr.SetFitted()
	return nil
}

// fitBinary runs gradient descent for one weight vector.
// encode maps the raw label to the 0/1 target of this binary problem.
func (lr *LogisticRegression) fitBinary(X mat.Matrix, y []float64, vecIdx int, encode func(float64) float64) {
	nSamples, nFeatures := X.Dims()
	weights := lr.Coef[vecIdx]
	intercept := &lr.InterceptV[vecIdx]
	lambda := 1.0 / lr.C

	yBinary := make([]float64, nSamples)
	for i := range y {
		yBinary[i] = encode(y[i])
	}

	const baseLearningRate = 1.0
	gradWeights := make([]float64, nFeatures)

	for iter := 0; iter < lr.MaxIter; iter++ {
		for j := range gradWeights {
			gradWeights[j] = 0
		}
		gradIntercept := 0.0

		for i := 0; i < nSamples; i++ {
			z := *intercept
			for j := 0; j < nFeatures; j++ {
				z += X.At(i, j) * weights[j]
			}
			residual := sigmoid(z) - yBinary[i]
			gradIntercept += residual
			for j := 0; j < nFeatures; j++ {
				gradWeights[j] += residual * X.At(i, j)
			}
		}

		for j := range gradWeights {
			gradWeights[j] = gradWeights[j]/float64(nSamples) + lambda*weights[j]
		}
		gradIntercept /= float64(nSamples)

		// Adaptive learning rate
		learningRate := baseLearningRate / (1.0 + 0.1*float64(iter))
		for j := range weights {
			weights[j] -= learningRate * gradWeights[j]
		}
		*intercept -= learningRate * gradIntercept

		// Convergence check on the infinity norm of the gradient
		maxGrad := math.Abs(gradIntercept)
		for _, g := range gradWeights {
			if math.Abs(g) > maxGrad {
				maxGrad = math.Abs(g)
			}
		}
		if maxGrad < lr.Tol {
			break
		}
	}
}

// Predict returns the most probable class label for each row.
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := lr.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return probaToLabels(proba, lr.ClassLabels), nil
}

// PredictProba returns per-class probabilities, columns ordered by Classes().
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !lr.IsFitted() {
		return nil, errors.NewNotFittedError("LogisticRegression", "PredictProba")
	}
	if err := checkPredictDims(X, lr.NFeatures); err != nil {
		return nil, err
	}

	r, _ := X.Dims()
	nClasses := len(lr.ClassLabels)
	proba := mat.NewDense(r, nClasses, nil)

	if nClasses == 2 {
		for i := 0; i < r; i++ {
			z := lr.InterceptV[0]
			for j := 0; j < lr.NFeatures; j++ {
				z += X.At(i, j) * lr.Coef[0][j]
			}
			p := sigmoid(z)
			proba.Set(i, 0, 1.0-p)
			proba.Set(i, 1, p)
		}
		return proba, nil
	}

	// OVR: normalize the per-class sigmoid scores to sum to one
	for i := 0; i < r; i++ {
		for k := 0; k < nClasses; k++ {
			z := lr.InterceptV[k]
			for j := 0; j < lr.NFeatures; j++ {
				z += X.At(i, j) * lr.Coef[k][j]
			}
			proba.Set(i, k, sigmoid(z))
		}
	}
	normalizeRows(proba)
	return proba, nil
}

// Classes returns the class labels seen during fitting, ascending.
func (lr *LogisticRegression) Classes() []int {
	return lr.ClassLabels
}
