package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/automl/estimator"
	"github.com/YuminosukeSato/automl/pkg/errors"
)

func testRecord(id string, createdAt time.Time) *ModelRecord {
	return &ModelRecord{
		ModelID:       id,
		Name:          "test model " + id,
		CreatedAt:     createdAt,
		ProblemType:   "classification",
		AlgorithmName: "Random Forest",
		Metrics:       map[string]float64{"accuracy": 0.93},
		InputColumns:  []string{"age", "job"},
		OutputColumn:  "y",
	}
}

func testBundle(t *testing.T) *Bundle {
	t.Helper()
	X := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	y := mat.NewDense(4, 1, []float64{3, 5, 7, 9})
	lr := estimator.NewLinearRegression()
	require.NoError(t, lr.Fit(X, y))
	return &Bundle{Estimator: lr}
}

func TestStoreCreateGet(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	rec := testRecord("m-1", time.Now().UTC())
	require.NoError(t, s.Create(rec, testBundle(t)))

	got, err := s.Get("m-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Name, got.Name)
	assert.Equal(t, "Random Forest", got.AlgorithmName)
	assert.True(t, got.Trained())

	// The returned record is a copy; mutating it must not leak into the store.
	got.Metrics["accuracy"] = 0
	again, err := s.Get("m-1")
	require.NoError(t, err)
	assert.Equal(t, 0.93, again.Metrics["accuracy"])
}

func TestStoreCreateDuplicate(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	rec := testRecord("m-1", time.Now().UTC())
	require.NoError(t, s.Create(rec, nil))

	err = s.Create(rec, nil)
	var vErr *errors.ValidationError
	assert.True(t, errors.As(err, &vErr), "duplicate Create() error = %v", err)
}

func TestStorePlaceholder(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	placeholder := &ModelRecord{
		ModelID:   "draft-1",
		Name:      "draft",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.Create(placeholder, nil))

	got, err := s.Get("draft-1")
	require.NoError(t, err)
	assert.False(t, got.Trained())

	// No bundle exists for a placeholder.
	_, err = s.LoadBundle("draft-1")
	assert.Error(t, err)
}

func TestStoreListOrder(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		rec := testRecord(id, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, s.Create(rec, nil))
	}

	list := s.List()
	require.Len(t, list, 3)
	for i, want := range []string{"new", "mid", "old"} {
		assert.Equal(t, want, list[i].ModelID, "newest first at %d", i)
	}
}

func TestStoreDelete(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Create(testRecord("m-1", time.Now().UTC()), testBundle(t)))
	require.NoError(t, s.Delete("m-1"))

	var nfErr *errors.NotFoundError
	_, err = s.Get("m-1")
	assert.True(t, errors.As(err, &nfErr), "Get() after delete error = %v", err)
	err = s.Delete("m-1")
	assert.True(t, errors.As(err, &nfErr), "second Delete() error = %v", err)
	assert.False(t, s.Exists("m-1"))
}

func TestStoreReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Create(testRecord("m-1", time.Now().UTC()), testBundle(t)))

	// A fresh store on the same directory sees the same records and bundle.
	reopened, err := Open(dir)
	require.NoError(t, err)

	got, err := reopened.Get("m-1")
	require.NoError(t, err)
	assert.Equal(t, "Random Forest", got.AlgorithmName)

	bundle, err := reopened.LoadBundle("m-1")
	require.NoError(t, err)
	pred, err := bundle.Estimator.Predict(mat.NewDense(1, 1, []float64{4}))
	require.NoError(t, err)
	assert.InDelta(t, 11.0, pred.At(0, 0), 1e-8)
}

func TestStoreRecordUsage(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Create(testRecord("m-1", time.Now().UTC()), nil))

	now := time.Now().UTC()
	sample := ResourceSample{Timestamp: now, CPUPercent: 10, MemoryMB: 64, LatencyMs: 1.5}
	for _, user := range []string{"alice", "bob", "alice", ""} {
		require.NoError(t, s.RecordUsage("m-1", user, sample))
	}

	got, err := s.Get("m-1")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Usage.TotalCalls)
	assert.Equal(t, []string{"alice", "bob"}, got.Usage.UniqueUsers)
	assert.True(t, got.Usage.LastUsed.Equal(now))
	assert.Len(t, got.ResourceMonitoring, 4)
}

func TestStoreRecordUsageConcurrent(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Create(testRecord("m-1", time.Now().UTC()), nil))

	const calls = 20
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sample := ResourceSample{Timestamp: time.Now().UTC(), LatencyMs: 1}
			assert.NoError(t, s.RecordUsage("m-1", "user", sample))
		}()
	}
	wg.Wait()

	got, err := s.Get("m-1")
	require.NoError(t, err)
	assert.Equal(t, calls, got.Usage.TotalCalls)
	assert.Len(t, got.ResourceMonitoring, calls)
}

func TestRecordSummarize(t *testing.T) {
	rec := testRecord("m-1", time.Now().UTC())
	rec.Usage = Usage{TotalCalls: 3, UniqueUsers: []string{"a", "b"}, LastUsed: time.Now().UTC()}
	rec.ResourceMonitoring = []ResourceSample{
		{CPUPercent: 10, MemoryMB: 50},
		{CPUPercent: 30, MemoryMB: 120},
		{CPUPercent: 20, MemoryMB: 80},
	}

	s := rec.Summarize()
	assert.Equal(t, 3, s.TotalCalls)
	assert.Equal(t, 2, s.UniqueUsersCount)
	assert.Equal(t, 20.0, s.AvgCPUPercent)
	assert.Equal(t, 120.0, s.MaxMemoryMB)

	// Empty history keeps the zero aggregates.
	empty := (&ModelRecord{Usage: Usage{TotalCalls: 1}}).Summarize()
	assert.Zero(t, empty.AvgCPUPercent)
	assert.Zero(t, empty.MaxMemoryMB)
}
