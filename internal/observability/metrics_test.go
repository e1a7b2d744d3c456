package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureRegisteredIdempotent(t *testing.T) {
	EnsureRegistered()
	EnsureRegistered()

	m := getMetrics()
	require.NotNil(t, m)
	assert.Same(t, m, getMetrics())
}

func TestMetricsHandler(t *testing.T) {
	SetPoolSessions(3)
	RecordSessionCreated()
	RecordSessionEvicted("idle")
	RecordPoolAcquire("reused")
	RecordPoolSweep(50*time.Millisecond, 1)
	SetTasksRunning(2)
	RecordTask("completed", 2*time.Second)
	RecordToolExecution("browser_navigate", 100*time.Millisecond, true)
	RecordToolExecution("browser_click", 20*time.Millisecond, false)
	RecordProviderRequest("openai", 800*time.Millisecond, true)
	RecordHTTPRequest(http.MethodGet, "/pool/status", http.StatusOK, 5*time.Millisecond)

	handler := MetricsHandler()
	require.NotNil(t, handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, body, "pool_sessions")
	assert.Contains(t, body, "pool_sessions_created_total")
	assert.Contains(t, body, `pool_sessions_evicted_total{reason="idle"}`)
	assert.Contains(t, body, `pool_acquire_total{outcome="reused"}`)
	assert.Contains(t, body, "pool_sweep_evicted_total")
	assert.Contains(t, body, "tasks_running")
	assert.Contains(t, body, `tasks_total{status="completed"}`)
	assert.Contains(t, body, "task_duration_seconds")
	assert.Contains(t, body, `tool_execution_total{status="success",tool="browser_navigate"}`)
	assert.Contains(t, body, `tool_execution_total{status="error",tool="browser_click"}`)
	assert.Contains(t, body, `provider_request_total{provider="openai",status="success"}`)
	assert.Contains(t, body, `http_requests_total{method="GET",path="/pool/status",status="200"}`)
}
