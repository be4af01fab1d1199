package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetmanager/internal/core"
	"fleetmanager/internal/logging"
)

func testLogger() core.ILogger {
	return logging.NewLogger(logging.ErrorLevel, nil)
}

func TestServer_WriteState_ServedByHandler(t *testing.T) {
	s := New(":0", 100, 100, testLogger())
	s.WriteState([]core.NodeSnapshot{{NodeTag: "worker_0"}})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()

	s.handleStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got []core.NodeSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "worker_0", got[0].NodeTag)
}

func TestServer_HandleStatus_RateLimitsPerIP(t *testing.T) {
	s := New(":0", 1, 1, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = "10.0.0.2:5555"

	first := httptest.NewRecorder()
	s.handleStatus(first, req)
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	s.handleStatus(second, req)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestServer_Run_StopsOnCancelledContext(t *testing.T) {
	s := New("127.0.0.1:0", 10, 10, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
