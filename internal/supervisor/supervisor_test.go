package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetmanager/internal/core"
	"fleetmanager/internal/logging"
	"fleetmanager/internal/pricing"
	"fleetmanager/pkg/concurrency"
)

type fakeClient struct{}

func (fakeClient) OrderCreate(context.Context, core.Bid) (string, error) { return "order-1", nil }
func (fakeClient) OrderList(context.Context, int) ([]core.OrderSummary, error) {
	return nil, nil
}
func (fakeClient) OrderStatus(context.Context, string) (core.OrderStatus, error) {
	return core.OrderStatus{}, nil
}
func (fakeClient) OrderCancel(context.Context, string) error        { return nil }
func (fakeClient) DealList(context.Context, int) ([]string, error)  { return nil, nil }
func (fakeClient) DealStatus(context.Context, string) (core.DealStatus, error) {
	return core.DealStatus{}, nil
}
func (fakeClient) DealClose(context.Context, string, bool) error { return nil }
func (fakeClient) TaskStart(context.Context, string, []byte, time.Duration) (string, error) {
	return "task-1", nil
}
func (fakeClient) TaskStatus(context.Context, string, string) (core.TaskState, error) {
	return core.TaskState{}, nil
}
func (fakeClient) PredictPrice(context.Context, core.ResourceBundle) (decimal.Decimal, bool) {
	return decimal.Zero, false
}
func (fakeClient) TokenBalance(context.Context) core.Balance {
	return core.Balance{LiveBalance: "12.5", SideBalance: "3", LiveEthBalance: "0.1"}
}

// spyClient tracks teardown RPCs so tests can assert finishWork actually
// closes open deals and cancels pending orders rather than abandoning them.
type spyClient struct {
	fakeClient
	dealClosed     []string
	orderCancelled []string
}

func (s *spyClient) DealClose(_ context.Context, dealID string, _ bool) error {
	s.dealClosed = append(s.dealClosed, dealID)
	return nil
}

func (s *spyClient) OrderCancel(_ context.Context, orderID string) error {
	s.orderCancelled = append(s.orderCancelled, orderID)
	return nil
}

type fakeManifests struct{}

func (fakeManifests) BuildManifest(string, core.TaskConfig) ([]byte, error) { return []byte("{}"), nil }

type fakeWriter struct {
	snapshots []core.NodeSnapshot
}

func (w *fakeWriter) WriteState(s []core.NodeSnapshot) { w.snapshots = s }

const oneTaskConfigYAML = `
node_address: "0xabc"
ethereum:
  key_path: "/keys"
  password: "x"
tasks:
  - numberofnodes: 2
    tag: worker
    price_coefficient: 10
    max_price: "5.0000 USD/h"
    ets: "2m"
    task_start_timeout: "5m"
    template_file: "worker.yaml"
    duration: "24h"
    counterparty: ""
    identity: anonymous
    ramsize: 1024
    storagesize: 10
    cpucores: 2
    sysbenchsingle: 1500
    sysbenchmulti: 6000
    netdownload: 100
    netupload: 100
    overlay: false
    incoming: true
    gpucount: 0
    gpumem: 0
    ethhashrate: 0
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newTestSupervisor(t *testing.T, configPath string, writer StateWriter) *Supervisor {
	logger := logging.NewLogger(logging.ErrorLevel, nil)
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{Name: "test", MaxWorkers: 4, MaxCapacity: 16}, logger)
	t.Cleanup(pool.Stop)
	client := fakeClient{}
	oracle := pricing.NewOracle(client, logger)
	return New(configPath, client, oracle, fakeManifests{}, nil, pool, writer, logger)
}

func TestSupervisor_ReloadConfig_PopulatesTaskConfigs(t *testing.T) {
	path := writeTempConfig(t, oneTaskConfigYAML)
	s := newTestSupervisor(t, path, nil)

	require.NoError(t, s.reloadConfig())

	cfg, ok := s.TaskConfig("worker")
	require.True(t, ok)
	assert.Equal(t, 2, cfg.NumberOfNodes)
}

func TestSupervisor_AllNodeTags_ExpandsByNumberOfNodes(t *testing.T) {
	path := writeTempConfig(t, oneTaskConfigYAML)
	s := newTestSupervisor(t, path, nil)
	require.NoError(t, s.reloadConfig())

	tags := s.allNodeTags()
	assert.ElementsMatch(t, []string{"worker_1", "worker_2"}, tags)
}

func TestSupervisor_NewNode_WiresTagAndCollaborators(t *testing.T) {
	path := writeTempConfig(t, oneTaskConfigYAML)
	s := newTestSupervisor(t, path, nil)
	require.NoError(t, s.reloadConfig())

	n := s.NewNode("worker_0")
	assert.Equal(t, "worker_0", n.Tag())
	assert.Equal(t, core.StateStart, n.State())
}

func TestSupervisor_FinishWork_RemovesFromRegistry(t *testing.T) {
	path := writeTempConfig(t, oneTaskConfigYAML)
	s := newTestSupervisor(t, path, nil)
	require.NoError(t, s.reloadConfig())

	n := s.NewNode("worker_0")
	s.registry.Add(n)
	require.Equal(t, 1, s.registry.Len())

	s.finishWork(context.Background(), "worker_0")
	assert.Equal(t, 0, s.registry.Len())
}

func TestSupervisor_FinishWork_ClosesOpenDeal(t *testing.T) {
	path := writeTempConfig(t, oneTaskConfigYAML)
	logger := logging.NewLogger(logging.ErrorLevel, nil)
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{Name: "test", MaxWorkers: 4, MaxCapacity: 16}, logger)
	t.Cleanup(pool.Stop)

	client := &spyClient{}
	oracle := pricing.NewOracle(client, logger)
	s := New(path, client, oracle, fakeManifests{}, nil, pool, nil, logger)
	require.NoError(t, s.reloadConfig())

	n := s.NewNode("worker_0")
	n.Seed(core.StateDealOpened, "deal-1", "", "", "")
	s.registry.Add(n)

	s.finishWork(context.Background(), "worker_0")

	assert.Equal(t, []string{"deal-1"}, client.dealClosed)
	assert.Equal(t, 0, s.registry.Len())
}

func TestSupervisor_DumpState_ReachesWriter(t *testing.T) {
	path := writeTempConfig(t, oneTaskConfigYAML)
	writer := &fakeWriter{}
	s := newTestSupervisor(t, path, writer)
	require.NoError(t, s.reloadConfig())

	s.registry.Add(s.NewNode("worker_0"))
	s.dumpState()

	require.Len(t, writer.snapshots, 1)
	assert.Equal(t, "worker_0", writer.snapshots[0].NodeTag)
}

func TestSupervisor_Run_StopsPromptlyOnCancelledContext(t *testing.T) {
	path := writeTempConfig(t, oneTaskConfigYAML)
	s := newTestSupervisor(t, path, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestParseFloatOrZero(t *testing.T) {
	v, err := parseFloatOrZero("12.5")
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)

	v, err = parseFloatOrZero("n/a")
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}
