package estimator

import (
	"bytes"
	"encoding/gob"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/automl/core/model"
	"github.com/YuminosukeSato/automl/pkg/errors"
)

// separableBinary returns two well-separated clusters around (-2,-2) and (2,2).
func separableBinary() (*mat.Dense, *mat.Dense) {
	offsets := []float64{-0.5, -0.25, 0.0, 0.25, 0.5}
	n := len(offsets) * 2
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i, d := range offsets {
		X.Set(i, 0, -2+d)
		X.Set(i, 1, -2-d)
		y.Set(i, 0, 0)
		X.Set(len(offsets)+i, 0, 2+d)
		X.Set(len(offsets)+i, 1, 2-d)
		y.Set(len(offsets)+i, 0, 1)
	}
	return X, y
}

func binaryClassifiers() map[string]model.Classifier {
	return map[string]model.Classifier{
		"LogisticRegression": NewLogisticRegression(42),
		"RandomForest":       NewRandomForestClassifier(25, 42),
		"SVC":                NewSVC(42),
		"KNN":                NewKNNClassifier(3),
		"GaussianNB":         NewGaussianNB(),
		"DecisionTree":       NewDecisionTreeClassifier(10, 42),
		"GradientBoosting":   NewGradientBoostingClassifier(50, 3, 0.1, 42),
	}
}

func TestClassifiers_FitPredict_Separable(t *testing.T) {
	X, y := separableBinary()
	rows, _ := X.Dims()

	for name, clf := range binaryClassifiers() {
		if err := clf.Fit(X, y); err != nil {
			t.Fatalf("%s: Fit() error = %v", name, err)
		}

		pred, err := clf.Predict(X)
		if err != nil {
			t.Fatalf("%s: Predict() error = %v", name, err)
		}
		for i := 0; i < rows; i++ {
			if pred.At(i, 0) != y.At(i, 0) {
				t.Errorf("%s: sample %d predicted %v, want %v", name, i, pred.At(i, 0), y.At(i, 0))
			}
		}

		// Cluster centers must land on the right side.
		XTest := mat.NewDense(2, 2, []float64{-2, -2, 2, 2})
		testPred, err := clf.Predict(XTest)
		if err != nil {
			t.Fatalf("%s: Predict() on test data error = %v", name, err)
		}
		if testPred.At(0, 0) != 0 || testPred.At(1, 0) != 1 {
			t.Errorf("%s: center predictions = (%v, %v), want (0, 1)",
				name, testPred.At(0, 0), testPred.At(1, 0))
		}
	}
}

func TestClassifiers_PredictProba(t *testing.T) {
	X, y := separableBinary()
	rows, _ := X.Dims()

	for name, clf := range binaryClassifiers() {
		if err := clf.Fit(X, y); err != nil {
			t.Fatalf("%s: Fit() error = %v", name, err)
		}

		classes := clf.Classes()
		if len(classes) != 2 || classes[0] != 0 || classes[1] != 1 {
			t.Errorf("%s: Classes() = %v, want [0 1]", name, classes)
		}

		probas, err := clf.PredictProba(X)
		if err != nil {
			t.Fatalf("%s: PredictProba() error = %v", name, err)
		}
		pr, pc := probas.Dims()
		if pr != rows || pc != 2 {
			t.Fatalf("%s: probas dims = (%d, %d), want (%d, 2)", name, pr, pc, rows)
		}
		for i := 0; i < pr; i++ {
			sum := 0.0
			for j := 0; j < pc; j++ {
				p := probas.At(i, j)
				if p < 0 || p > 1 || math.IsNaN(p) {
					t.Errorf("%s: invalid probability at (%d, %d): %v", name, i, j, p)
				}
				sum += p
			}
			if math.Abs(sum-1.0) > 1e-6 {
				t.Errorf("%s: probabilities for sample %d sum to %v", name, i, sum)
			}
		}
	}
}

func TestClassifiers_Multiclass(t *testing.T) {
	// Three clusters at triangle corners, each linearly separable from the rest.
	X := mat.NewDense(9, 2, []float64{
		-5, -5, -5.3, -4.8, -4.7, -5.2,
		5, -5, 5.3, -4.8, 4.7, -5.2,
		0, 5, 0.3, 4.8, -0.3, 5.2,
	})
	y := mat.NewDense(9, 1, []float64{0, 0, 0, 1, 1, 1, 2, 2, 2})

	classifiers := map[string]model.Classifier{
		"LogisticRegression": NewLogisticRegression(42),
		"DecisionTree":       NewDecisionTreeClassifier(10, 42),
		"RandomForest":       NewRandomForestClassifier(25, 42),
		"KNN":                NewKNNClassifier(3),
		"GaussianNB":         NewGaussianNB(),
		"GradientBoosting":   NewGradientBoostingClassifier(50, 3, 0.1, 42),
	}

	for name, clf := range classifiers {
		if err := clf.Fit(X, y); err != nil {
			t.Fatalf("%s: Fit() error = %v", name, err)
		}
		classes := clf.Classes()
		if len(classes) != 3 {
			t.Errorf("%s: Classes() = %v, want 3 classes", name, classes)
		}

		pred, err := clf.Predict(X)
		if err != nil {
			t.Fatalf("%s: Predict() error = %v", name, err)
		}
		for i := 0; i < 9; i++ {
			if pred.At(i, 0) != y.At(i, 0) {
				t.Errorf("%s: sample %d predicted %v, want %v", name, i, pred.At(i, 0), y.At(i, 0))
			}
		}
	}
}

func TestClassifier_NotFitted(t *testing.T) {
	X := mat.NewDense(1, 2, []float64{0, 0})

	for name, clf := range binaryClassifiers() {
		_, err := clf.Predict(X)
		var nfErr *errors.NotFittedError
		if !errors.As(err, &nfErr) {
			t.Errorf("%s: Predict() before Fit error = %v, want *NotFittedError", name, err)
		}
	}
}

func TestClassifier_DimensionMismatch(t *testing.T) {
	X, y := separableBinary()
	clf := NewDecisionTreeClassifier(10, 42)
	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	_, err := clf.Predict(mat.NewDense(1, 3, []float64{0, 0, 0}))
	var dimErr *errors.DimensionError
	if !errors.As(err, &dimErr) {
		t.Errorf("Predict() with wrong width error = %v, want *DimensionError", err)
	}
}

func TestRandomForest_SeedDeterminism(t *testing.T) {
	X, y := separableBinary()

	probas := make([]*mat.Dense, 2)
	for run := 0; run < 2; run++ {
		clf := NewRandomForestClassifier(25, 42)
		if err := clf.Fit(X, y); err != nil {
			t.Fatalf("Fit() error = %v", err)
		}
		p, err := clf.PredictProba(X)
		if err != nil {
			t.Fatalf("PredictProba() error = %v", err)
		}
		probas[run] = p.(*mat.Dense)
	}

	rows, cols := probas[0].Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if probas[0].At(i, j) != probas[1].At(i, j) {
				t.Fatalf("same seed produced different probabilities at (%d, %d)", i, j)
			}
		}
	}
}

func TestEstimator_GobRoundTrip(t *testing.T) {
	X, y := separableBinary()
	clf := NewRandomForestClassifier(10, 42)
	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	want, err := clf.Predict(X)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	// Encode through the interface, the way model bundles are persisted.
	var est model.Estimator = clf
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&est); err != nil {
		t.Fatalf("gob encode error = %v", err)
	}

	var decoded model.Estimator
	if err := gob.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("gob decode error = %v", err)
	}

	got, err := decoded.Predict(X)
	if err != nil {
		t.Fatalf("decoded Predict() error = %v", err)
	}
	rows, _ := X.Dims()
	for i := 0; i < rows; i++ {
		if got.At(i, 0) != want.At(i, 0) {
			t.Errorf("sample %d: decoded predicted %v, original %v", i, got.At(i, 0), want.At(i, 0))
		}
	}
}
