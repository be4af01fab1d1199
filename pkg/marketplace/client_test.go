package marketplace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetmanager/internal/core"
	"fleetmanager/internal/logging"
)

// fakeTransport counts calls per endpoint and can be told to fail a number
// of times before succeeding, to exercise Client's per-endpoint retry policy.
type fakeTransport struct {
	orderCreateCalls int
	taskStartCalls   int
	taskStatusCalls  int

	failUntilAttempt int // 0 means never fail
}

func (f *fakeTransport) OrderCreate(ctx context.Context, order WireOrder) (string, bool, error) {
	f.orderCreateCalls++
	if f.failUntilAttempt > 0 && f.orderCreateCalls < f.failUntilAttempt {
		return "", false, nil
	}
	return "order-1", true, nil
}
func (f *fakeTransport) OrderList(ctx context.Context, limit int) ([]WireOrderSummary, bool, error) {
	return []WireOrderSummary{{ID: "o1", TagBase64: EncodeTag("worker_1", tagWireWidth), PriceWeiSec: "100"}}, true, nil
}
func (f *fakeTransport) OrderStatus(ctx context.Context, orderID string) (WireOrderStatus, bool, error) {
	return WireOrderStatus{OrderStatus: 1, TagBase64: EncodeTag("worker_1", tagWireWidth), DealID: "deal-1"}, true, nil
}
func (f *fakeTransport) OrderCancel(ctx context.Context, orderID string) (bool, error) { return true, nil }
func (f *fakeTransport) DealList(ctx context.Context, limit int) ([]string, bool, error) {
	return []string{"deal-1"}, true, nil
}
func (f *fakeTransport) DealStatus(ctx context.Context, dealID string) (WireDealStatus, bool, error) {
	return WireDealStatus{Status: 1, BidID: "order-1", Running: []string{"task-1"}}, true, nil
}
func (f *fakeTransport) DealClose(ctx context.Context, dealID string, blacklist bool) (bool, error) {
	return true, nil
}
func (f *fakeTransport) TaskStart(ctx context.Context, dealID string, manifest []byte, timeout time.Duration) (string, bool, error) {
	f.taskStartCalls++
	if f.failUntilAttempt > 0 && f.taskStartCalls < f.failUntilAttempt {
		return "", false, nil
	}
	return "task-1", true, nil
}
func (f *fakeTransport) TaskStatus(ctx context.Context, dealID, taskID string) (WireTaskStatus, bool, error) {
	f.taskStatusCalls++
	if f.failUntilAttempt > 0 && f.taskStatusCalls < f.failUntilAttempt {
		return WireTaskStatus{}, false, nil
	}
	return WireTaskStatus{Status: int(core.TaskStatusRunning), UptimeNS: 60_000_000_000}, true, nil
}
func (f *fakeTransport) PredictPrice(ctx context.Context, order WireOrder) (string, bool, error) {
	return "277777777777778", true, nil
}
func (f *fakeTransport) TokenBalance(ctx context.Context) (WireBalance, bool, error) {
	return WireBalance{LiveBalance: "1.0000", SideBalance: "2.0000", LiveEthBalance: "0.5000", Available: true}, true, nil
}

func testLogger() core.ILogger {
	return logging.NewLogger(logging.ErrorLevel, nil)
}

func TestClient_OrderCreate_Success(t *testing.T) {
	ft := &fakeTransport{}
	client := NewClient(ft, testLogger())
	id, err := client.OrderCreate(context.Background(), core.Bid{Tag: "worker_1"})
	require.NoError(t, err)
	assert.Equal(t, "order-1", id)
	assert.Equal(t, 1, ft.orderCreateCalls)
}

func TestClient_OrderCreate_RetriesUpToDefaultPolicy(t *testing.T) {
	ft := &fakeTransport{failUntilAttempt: 3}
	client := NewClient(ft, testLogger())
	id, err := client.OrderCreate(context.Background(), core.Bid{Tag: "worker_1"})
	require.NoError(t, err)
	assert.Equal(t, "order-1", id)
	assert.Equal(t, 3, ft.orderCreateCalls)
}

func TestClient_TaskStart_NeverRetries(t *testing.T) {
	ft := &fakeTransport{failUntilAttempt: 2}
	client := NewClient(ft, testLogger())
	_, err := client.TaskStart(context.Background(), "deal-1", []byte(`{}`), time.Second)
	require.Error(t, err)
	assert.Equal(t, 1, ft.taskStartCalls)
}

func TestClient_TaskStatus_RetriesTenTimes(t *testing.T) {
	ft := &fakeTransport{failUntilAttempt: 10}
	client := NewClient(ft, testLogger())
	state, err := client.TaskStatus(context.Background(), "deal-1", "task-1")
	require.NoError(t, err)
	assert.Equal(t, core.TaskStatusRunning, state.Status)
	assert.Equal(t, 10, ft.taskStatusCalls)
}

func TestClient_OrderStatus_DecodesTag(t *testing.T) {
	ft := &fakeTransport{}
	client := NewClient(ft, testLogger())
	status, err := client.OrderStatus(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, "worker_1", status.Tag)
	assert.True(t, status.Active)
	assert.Equal(t, "deal-1", status.DealID)
}

func TestClient_PredictPrice(t *testing.T) {
	ft := &fakeTransport{}
	client := NewClient(ft, testLogger())
	usd, ok := client.PredictPrice(context.Background(), core.ResourceBundle{CPUCores: 4})
	require.True(t, ok)
	assert.True(t, usd.GreaterThan(usd.Sub(usd)))
}

func TestClient_TokenBalance(t *testing.T) {
	ft := &fakeTransport{}
	client := NewClient(ft, testLogger())
	balance := client.TokenBalance(context.Background())
	assert.Equal(t, "1.0000", balance.LiveBalance)
}
