package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricNodesByState     = "fleetmanager_nodes_by_state"
	MetricOrdersPlaced     = "fleetmanager_orders_placed_total"
	MetricDealsOpened      = "fleetmanager_deals_opened_total"
	MetricTaskFailures     = "fleetmanager_task_failures_total"
	MetricRPCRetries       = "fleetmanager_rpc_retries_total"
	MetricRPCLatency       = "fleetmanager_rpc_latency_ms"
	MetricBalance          = "fleetmanager_balance"
	MetricReconciledNodes  = "fleetmanager_reconciled_nodes"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	NodesByState    metric.Int64ObservableGauge
	OrdersPlaced    metric.Int64Counter
	DealsOpened     metric.Int64Counter
	TaskFailures    metric.Int64Counter
	RPCRetries      metric.Int64Counter
	RPCLatency      metric.Float64Histogram
	Balance         metric.Float64ObservableGauge
	ReconciledNodes metric.Int64ObservableGauge

	// State for observable gauges
	mu               sync.RWMutex
	nodesByStateMap  map[string]int64
	balanceMap       map[string]float64
	reconciledMap    map[string]int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			nodesByStateMap: make(map[string]int64),
			balanceMap:      make(map[string]float64),
			reconciledMap:   make(map[string]int64),
		}
		// Initialization of instruments happens in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.OrdersPlaced, err = meter.Int64Counter(MetricOrdersPlaced, metric.WithDescription("Total marketplace orders placed"))
	if err != nil {
		return err
	}

	m.DealsOpened, err = meter.Int64Counter(MetricDealsOpened, metric.WithDescription("Total marketplace deals opened"))
	if err != nil {
		return err
	}

	m.TaskFailures, err = meter.Int64Counter(MetricTaskFailures, metric.WithDescription("Total task start/run failures, by reason"))
	if err != nil {
		return err
	}

	m.RPCRetries, err = meter.Int64Counter(MetricRPCRetries, metric.WithDescription("Total per-endpoint RPC retries issued"))
	if err != nil {
		return err
	}

	m.RPCLatency, err = meter.Float64Histogram(MetricRPCLatency, metric.WithDescription("Latency of marketplace RPC calls"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.NodesByState, err = meter.Int64ObservableGauge(MetricNodesByState, metric.WithDescription("Number of nodes currently in each lifecycle state"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for state, val := range m.nodesByStateMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("state", state)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.Balance, err = meter.Float64ObservableGauge(MetricBalance, metric.WithDescription("Latest reported account balance, by kind"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for kind, val := range m.balanceMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("kind", kind)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.ReconciledNodes, err = meter.Int64ObservableGauge(MetricReconciledNodes, metric.WithDescription("Nodes resumed from remote state at the last reconciliation pass, by resumed state"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for state, val := range m.reconciledMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("state", state)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// Helpers to update observable state

// SetNodesByState replaces the entire per-state node count snapshot; called
// once per supervisor tick so stale states are cleared rather than
// accumulating forever.
func (m *MetricsHolder) SetNodesByState(counts map[string]int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodesByStateMap = counts
}

func (m *MetricsHolder) SetBalance(live, side, liveEth float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balanceMap["live"] = live
	m.balanceMap["side"] = side
	m.balanceMap["live_eth"] = liveEth
}

func (m *MetricsHolder) SetReconciledNodes(counts map[string]int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconciledMap = counts
}

func (m *MetricsHolder) GetNodesByState() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]int64, len(m.nodesByStateMap))
	for k, v := range m.nodesByStateMap {
		res[k] = v
	}
	return res
}

func (m *MetricsHolder) GetBalance() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]float64, len(m.balanceMap))
	for k, v := range m.balanceMap {
		res[k] = v
	}
	return res
}
