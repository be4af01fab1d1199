package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetmanager/internal/core"
	"fleetmanager/internal/fleet"
	"fleetmanager/internal/logging"
)

type fakeReconcileClient struct {
	deals  []string
	status map[string]core.DealStatus
	orderS map[string]core.OrderStatus
	orders []core.OrderSummary
}

func (f *fakeReconcileClient) OrderCreate(context.Context, core.Bid) (string, error) { return "", nil }
func (f *fakeReconcileClient) OrderList(context.Context, int) ([]core.OrderSummary, error) {
	return f.orders, nil
}
func (f *fakeReconcileClient) OrderStatus(ctx context.Context, orderID string) (core.OrderStatus, error) {
	return f.orderS[orderID], nil
}
func (f *fakeReconcileClient) OrderCancel(context.Context, string) error { return nil }
func (f *fakeReconcileClient) DealList(context.Context, int) ([]string, error) { return f.deals, nil }
func (f *fakeReconcileClient) DealStatus(ctx context.Context, dealID string) (core.DealStatus, error) {
	return f.status[dealID], nil
}
func (f *fakeReconcileClient) DealClose(context.Context, string, bool) error { return nil }
func (f *fakeReconcileClient) TaskStart(context.Context, string, []byte, time.Duration) (string, error) {
	return "", nil
}
func (f *fakeReconcileClient) TaskStatus(context.Context, string, string) (core.TaskState, error) {
	return core.TaskState{}, nil
}
func (f *fakeReconcileClient) PredictPrice(context.Context, core.ResourceBundle) (decimal.Decimal, bool) {
	return decimal.Zero, false
}
func (f *fakeReconcileClient) TokenBalance(context.Context) core.Balance { return core.NABalance }

type fakeFactory struct{}

func (fakeFactory) NewNode(tag string) *fleet.Node {
	return fleet.NewNode(tag, nil, nil, nil, nil, nil, logging.NewLogger(logging.ErrorLevel, nil))
}

func TestReconciler_ResumesRunningTaskFromOpenDeal(t *testing.T) {
	client := &fakeReconcileClient{
		deals: []string{"deal-1"},
		status: map[string]core.DealStatus{
			"deal-1": {OrderID: "order-1", Running: []string{"task-1"}, Price: "1.0000 USD/h"},
		},
		orderS: map[string]core.OrderStatus{
			"order-1": {Tag: "worker_1"},
		},
	}
	r := NewReconciler(client, fakeFactory{}, logging.NewLogger(logging.ErrorLevel, nil))
	reg := fleet.NewRegistry()

	_, err := r.Run(context.Background(), []string{"worker_1", "worker_2"}, reg)
	require.NoError(t, err)

	n, ok := reg.Get("worker_1")
	require.True(t, ok)
	assert.Equal(t, core.StateTaskRunning, n.State())
	assert.Equal(t, "task-1", n.Snapshot().TaskID)

	_, ok = reg.Get("worker_2")
	require.True(t, ok)
}

func TestReconciler_WorkerOfflineSeedsTaskFailed(t *testing.T) {
	client := &fakeReconcileClient{
		deals: []string{"deal-1"},
		status: map[string]core.DealStatus{
			"deal-1": {OrderID: "order-1", WorkerOffline: true},
		},
		orderS: map[string]core.OrderStatus{
			"order-1": {Tag: "worker_1"},
		},
	}
	r := NewReconciler(client, fakeFactory{}, logging.NewLogger(logging.ErrorLevel, nil))
	reg := fleet.NewRegistry()

	_, err := r.Run(context.Background(), []string{"worker_1"}, reg)
	require.NoError(t, err)

	n, _ := reg.Get("worker_1")
	assert.Equal(t, core.StateTaskFailed, n.State())
}

func TestReconciler_IgnoresUnmatchedTag(t *testing.T) {
	client := &fakeReconcileClient{
		deals: []string{"deal-1"},
		status: map[string]core.DealStatus{
			"deal-1": {OrderID: "order-1"},
		},
		orderS: map[string]core.OrderStatus{
			"order-1": {Tag: "some_other_tag"},
		},
	}
	r := NewReconciler(client, fakeFactory{}, logging.NewLogger(logging.ErrorLevel, nil))
	reg := fleet.NewRegistry()

	_, err := r.Run(context.Background(), []string{"worker_1"}, reg)
	require.NoError(t, err)

	assert.Equal(t, 1, reg.Len())
	n, _ := reg.Get("worker_1")
	assert.Equal(t, core.StateStart, n.State())
}

func TestReconciler_SeedsAwaitingDealFromOpenOrder(t *testing.T) {
	client := &fakeReconcileClient{
		orders: []core.OrderSummary{{ID: "order-2", Tag: "worker_1", Price: "2.0000 USD/h"}},
	}
	r := NewReconciler(client, fakeFactory{}, logging.NewLogger(logging.ErrorLevel, nil))
	reg := fleet.NewRegistry()

	_, err := r.Run(context.Background(), []string{"worker_1"}, reg)
	require.NoError(t, err)

	n, _ := reg.Get("worker_1")
	assert.Equal(t, core.StateAwaitingDeal, n.State())
	assert.Equal(t, "order-2", n.Snapshot().BidID)
}

func TestReconciler_AppendsMissingNodesAsFreshStart(t *testing.T) {
	client := &fakeReconcileClient{}
	r := NewReconciler(client, fakeFactory{}, logging.NewLogger(logging.ErrorLevel, nil))
	reg := fleet.NewRegistry()

	_, err := r.Run(context.Background(), []string{"worker_1", "worker_2"}, reg)
	require.NoError(t, err)

	assert.Equal(t, 2, reg.Len())
	for _, tag := range []string{"worker_1", "worker_2"} {
		n, ok := reg.Get(tag)
		require.True(t, ok)
		assert.Equal(t, core.StateStart, n.State())
	}
}
