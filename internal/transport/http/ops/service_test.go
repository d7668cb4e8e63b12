package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"denticheck-server/internal/domain/journal"
)

type stubDetector struct{}

func (stubDetector) BackendName() string       { return "http" }
func (stubDetector) ClassTableVersion() string { return "v2" }

func newEngine(t *testing.T, store journal.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc, err := NewService(stubDetector{}, store, nil)
	require.NoError(t, err)
	engine := gin.New()
	require.NoError(t, svc.Register(context.Background(), engine.Group("/api")))
	return engine
}

func get(engine *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Code    int             `json:"code"`
}

func TestHealth(t *testing.T) {
	engine := newEngine(t, journal.NewMemoryStore(10))
	w := get(engine, "/api/health")
	require.Equal(t, http.StatusOK, w.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.True(t, env.Success)

	var data HealthData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "ok", data.Status)
	assert.Equal(t, "http", data.DetectorBackend)
	assert.Equal(t, "v2", data.ClassTableVersion)
	assert.Positive(t, data.Goroutines)
}

func TestRunsNewestFirstWithLimit(t *testing.T) {
	store := journal.NewMemoryStore(10)
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(context.Background(), journal.Record{
			ID:        fmt.Sprintf("id-%d", i),
			RequestID: fmt.Sprintf("req-%d", i),
			Operation: "detect",
			Status:    "completed",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	engine := newEngine(t, store)

	w := get(engine, "/api/v1/runs?limit=2")
	require.Equal(t, http.StatusOK, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var records []journal.Record
	require.NoError(t, json.Unmarshal(env.Data, &records))
	require.Len(t, records, 2)
	assert.Equal(t, "req-4", records[0].RequestID)
	assert.Equal(t, "req-3", records[1].RequestID)

	w = get(engine, "/api/v1/runs")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, &records))
	assert.Len(t, records, 5)
}

func TestRunsRejectsBadLimit(t *testing.T) {
	engine := newEngine(t, journal.NewMemoryStore(10))
	for _, q := range []string{"-1", "abc", "1.5"} {
		w := get(engine, "/api/v1/runs?limit="+q)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, journal.NewMemoryStore(1), nil)
	assert.Error(t, err)
	_, err = NewService(stubDetector{}, nil, nil)
	assert.Error(t, err)
}
