package estimator

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/automl/core/model"
	"github.com/YuminosukeSato/automl/dataset"
	"github.com/YuminosukeSato/automl/pkg/errors"
)

// linearData returns samples of y = 2*x + 3 on a regular grid.
func linearData() (*mat.Dense, *mat.Dense) {
	n := 20
	X := mat.NewDense(n, 1, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x := float64(i) * 0.5
		X.Set(i, 0, x)
		y.Set(i, 0, 2*x+3)
	}
	return X, y
}

func TestLinearRegression_ExactRecovery(t *testing.T) {
	X, y := linearData()
	lr := NewLinearRegression()
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	if math.Abs(lr.Weights[0]-2.0) > 1e-8 {
		t.Errorf("weight = %v, want 2.0", lr.Weights[0])
	}
	if math.Abs(lr.Intercept-3.0) > 1e-8 {
		t.Errorf("intercept = %v, want 3.0", lr.Intercept)
	}

	pred, err := lr.Predict(mat.NewDense(1, 1, []float64{4}))
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if math.Abs(pred.At(0, 0)-11.0) > 1e-8 {
		t.Errorf("Predict(4) = %v, want 11", pred.At(0, 0))
	}
}

func TestRidge_ShrinksTowardMean(t *testing.T) {
	X, y := linearData()
	rg := NewRidge(1.0)
	if err := rg.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	// L2 regularization shrinks the slope below the OLS value but keeps it positive.
	if rg.Weights[0] <= 0 || rg.Weights[0] >= 2.0 {
		t.Errorf("ridge weight = %v, want in (0, 2)", rg.Weights[0])
	}

	// Prediction at the sample mean is unaffected by shrinkage.
	pred, err := rg.Predict(mat.NewDense(1, 1, []float64{4.75}))
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if math.Abs(pred.At(0, 0)-12.5) > 1e-8 {
		t.Errorf("Predict(mean) = %v, want 12.5", pred.At(0, 0))
	}
}

func TestLasso_SparseOnIrrelevantFeature(t *testing.T) {
	// Second feature is pure noise with tiny amplitude; L1 should zero it out.
	n := 20
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x := float64(i) * 0.5
		X.Set(i, 0, x)
		X.Set(i, 1, math.Sin(float64(i))*0.01)
		y.Set(i, 0, 2*x+3)
	}

	ls := NewLasso(1.0)
	if err := ls.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if ls.Weights[1] != 0 {
		t.Errorf("lasso weight for noise feature = %v, want 0", ls.Weights[1])
	}
	if ls.Weights[0] <= 0 {
		t.Errorf("lasso weight for signal feature = %v, want > 0", ls.Weights[0])
	}
}

func TestTreeBasedRegressors_FitTrainingData(t *testing.T) {
	X, y := linearData()
	rows, _ := X.Dims()

	regressors := map[string]model.Estimator{
		"DecisionTree":     NewDecisionTreeRegressor(10, 42),
		"RandomForest":     NewRandomForestRegressor(25, 42),
		"GradientBoosting": NewGradientBoostingRegressor(100, 5, 0.1, 42),
	}

	for name, reg := range regressors {
		if err := reg.Fit(X, y); err != nil {
			t.Fatalf("%s: Fit() error = %v", name, err)
		}
		pred, err := reg.Predict(X)
		if err != nil {
			t.Fatalf("%s: Predict() error = %v", name, err)
		}

		// Tree ensembles should reproduce a noiseless target closely.
		for i := 0; i < rows; i++ {
			if math.Abs(pred.At(i, 0)-y.At(i, 0)) > 2.0 {
				t.Errorf("%s: sample %d predicted %v, want near %v",
					name, i, pred.At(i, 0), y.At(i, 0))
			}
		}
	}
}

func TestKNNRegressor_InteriorPoints(t *testing.T) {
	X, y := linearData()
	knn := NewKNNRegressor(3)
	if err := knn.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	// On a regular grid the 3 nearest neighbors of an interior sample are
	// symmetric, so their average reproduces the linear target exactly.
	pred, err := knn.Predict(mat.NewDense(1, 1, []float64{5.0}))
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if math.Abs(pred.At(0, 0)-13.0) > 1e-9 {
		t.Errorf("Predict(5) = %v, want 13", pred.At(0, 0))
	}
}

func TestSVR_TracksTrend(t *testing.T) {
	X, y := linearData()
	svr := NewSVR(42)
	if err := svr.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	pred, err := svr.Predict(X)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	// SGD on the epsilon-insensitive loss is approximate; require finite,
	// monotonically increasing predictions for an increasing target.
	rows, _ := X.Dims()
	for i := 0; i < rows; i++ {
		if math.IsNaN(pred.At(i, 0)) || math.IsInf(pred.At(i, 0), 0) {
			t.Fatalf("prediction %d is not finite: %v", i, pred.At(i, 0))
		}
	}
	if pred.At(rows-1, 0) <= pred.At(0, 0) {
		t.Errorf("predictions do not increase with x: first %v, last %v",
			pred.At(0, 0), pred.At(rows-1, 0))
	}
}

func TestRegressor_NotFitted(t *testing.T) {
	X := mat.NewDense(1, 1, []float64{0})

	regressors := map[string]model.Estimator{
		"LinearRegression": NewLinearRegression(),
		"Ridge":            NewRidge(1.0),
		"Lasso":            NewLasso(1.0),
		"DecisionTree":     NewDecisionTreeRegressor(10, 42),
		"RandomForest":     NewRandomForestRegressor(25, 42),
		"SVR":              NewSVR(42),
		"KNN":              NewKNNRegressor(3),
		"GradientBoosting": NewGradientBoostingRegressor(100, 5, 0.1, 42),
	}

	for name, reg := range regressors {
		_, err := reg.Predict(X)
		var nfErr *errors.NotFittedError
		if !errors.As(err, &nfErr) {
			t.Errorf("%s: Predict() before Fit error = %v, want *NotFittedError", name, err)
		}
	}
}

func TestCatalog_ClosedSets(t *testing.T) {
	spec := TrainSpec{Seed: 42, NTrain: 100}

	clf := Catalog(dataset.Classification)
	wantClf := []string{
		"Logistic Regression", "Random Forest", "Support Vector Machine",
		"K-Nearest Neighbors", "Naive Bayes", "Decision Tree", "Gradient Boosting",
	}
	if len(clf) != len(wantClf) {
		t.Fatalf("classification catalog has %d entries, want %d", len(clf), len(wantClf))
	}
	for i, d := range clf {
		if d.Name != wantClf[i] {
			t.Errorf("classification[%d] = %q, want %q", i, d.Name, wantClf[i])
		}
		if d.New(spec) == nil {
			t.Errorf("classification[%d] constructor returned nil", i)
		}
	}

	reg := Catalog(dataset.Regression)
	wantReg := []string{
		"Linear Regression", "Ridge Regression", "Lasso Regression", "Random Forest",
		"Support Vector Machine", "K-Nearest Neighbors", "Decision Tree", "Gradient Boosting",
	}
	if len(reg) != len(wantReg) {
		t.Fatalf("regression catalog has %d entries, want %d", len(reg), len(wantReg))
	}
	for i, d := range reg {
		if d.Name != wantReg[i] {
			t.Errorf("regression[%d] = %q, want %q", i, d.Name, wantReg[i])
		}
	}
}

func TestKNNNeighbors_Clamp(t *testing.T) {
	tests := []struct {
		nTrain int
		want   int
	}{
		{4, 3},
		{9, 3},
		{100, 10},
		{10000, 20},
	}
	for _, tt := range tests {
		if got := knnNeighbors(tt.nTrain); got != tt.want {
			t.Errorf("knnNeighbors(%d) = %d, want %d", tt.nTrain, got, tt.want)
		}
	}
}
