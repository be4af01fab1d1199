package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestMetricsHolder_InitMetrics(t *testing.T) {
	m := &MetricsHolder{
		nodesByStateMap: make(map[string]int64),
		balanceMap:      make(map[string]float64),
		reconciledMap:   make(map[string]int64),
	}
	err := m.InitMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
}

func TestMetricsHolder_SetAndGetNodesByState(t *testing.T) {
	m := &MetricsHolder{
		nodesByStateMap: make(map[string]int64),
		balanceMap:      make(map[string]float64),
		reconciledMap:   make(map[string]int64),
	}
	m.SetNodesByState(map[string]int64{"task_running": 3, "awaiting_deal": 1})

	got := m.GetNodesByState()
	assert.Equal(t, int64(3), got["task_running"])
	assert.Equal(t, int64(1), got["awaiting_deal"])

	// returned map is a copy
	got["task_running"] = 99
	assert.Equal(t, int64(3), m.GetNodesByState()["task_running"])
}

func TestMetricsHolder_SetAndGetBalance(t *testing.T) {
	m := &MetricsHolder{
		nodesByStateMap: make(map[string]int64),
		balanceMap:      make(map[string]float64),
		reconciledMap:   make(map[string]int64),
	}
	m.SetBalance(10.5, 2.25, 0.01)

	got := m.GetBalance()
	assert.Equal(t, 10.5, got["live"])
	assert.Equal(t, 2.25, got["side"])
	assert.Equal(t, 0.01, got["live_eth"])
}

func TestGetGlobalMetrics_Singleton(t *testing.T) {
	a := GetGlobalMetrics()
	b := GetGlobalMetrics()
	assert.Same(t, a, b)
}
