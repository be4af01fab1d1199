package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	httpclient "fleetmanager/pkg/http"
)

// HTTPTransport is the reference Transport implementation: it speaks to the
// marketplace node's local REST gateway over pkg/http.Client, which already
// carries its own connection-level resilience (failsafe-go retry + circuit
// breaker). The retry differentiation per endpoint lives one layer up, in
// Client, since it is about RPC semantics (poll task.status, never retry
// task.start) rather than network flakiness.
type HTTPTransport struct {
	http *httpclient.Client
}

// NewHTTPTransport builds a Transport backed by the marketplace node's
// local API endpoint.
func NewHTTPTransport(baseURL string, timeout time.Duration, signer httpclient.Signer) *HTTPTransport {
	return &HTTPTransport{http: httpclient.NewClient(baseURL, timeout, signer)}
}

var _ Transport = (*HTTPTransport)(nil)

func (t *HTTPTransport) OrderCreate(ctx context.Context, order WireOrder) (string, bool, error) {
	body, err := t.http.Post(ctx, "/order/create", wireOrderRequest(order))
	if err != nil {
		return "", false, err
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false, err
	}
	return resp.ID, resp.ID != "", nil
}

func (t *HTTPTransport) OrderList(ctx context.Context, limit int) ([]WireOrderSummary, bool, error) {
	body, err := t.http.Get(ctx, "/order/list", map[string]string{"limit": strconv.Itoa(limit)})
	if err != nil {
		return nil, false, err
	}
	var resp struct {
		Orders []struct {
			Order struct {
				ID    string `json:"id"`
				Tag   string `json:"tag"`
				Price string `json:"price"`
			} `json:"order"`
		} `json:"orders"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, false, err
	}
	out := make([]WireOrderSummary, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		out = append(out, WireOrderSummary{ID: o.Order.ID, TagBase64: o.Order.Tag, PriceWeiSec: o.Order.Price})
	}
	return out, true, nil
}

func (t *HTTPTransport) OrderStatus(ctx context.Context, orderID string) (WireOrderStatus, bool, error) {
	body, err := t.http.Get(ctx, "/order/status/"+orderID, nil)
	if err != nil {
		return WireOrderStatus{}, false, err
	}
	var resp struct {
		OrderStatus int    `json:"orderStatus"`
		Tag         string `json:"tag"`
		DealID      string `json:"dealID"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return WireOrderStatus{}, false, err
	}
	return WireOrderStatus{OrderStatus: resp.OrderStatus, TagBase64: resp.Tag, DealID: resp.DealID}, true, nil
}

func (t *HTTPTransport) OrderCancel(ctx context.Context, orderID string) (bool, error) {
	_, err := t.http.Delete(ctx, "/order/"+orderID, nil)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *HTTPTransport) DealList(ctx context.Context, limit int) ([]string, bool, error) {
	body, err := t.http.Get(ctx, "/deal/list", map[string]string{
		"status": "1",
		"limit":  strconv.Itoa(limit),
	})
	if err != nil {
		return nil, false, err
	}
	var resp struct {
		Deals []struct {
			Deal struct {
				ID string `json:"id"`
			} `json:"deal"`
		} `json:"deals"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, false, err
	}
	ids := make([]string, 0, len(resp.Deals))
	for _, d := range resp.Deals {
		ids = append(ids, d.Deal.ID)
	}
	return ids, true, nil
}

func (t *HTTPTransport) DealStatus(ctx context.Context, dealID string) (WireDealStatus, bool, error) {
	body, err := t.http.Get(ctx, "/deal/status/"+dealID, nil)
	if err != nil {
		return WireDealStatus{}, false, err
	}
	var resp struct {
		Deal struct {
			Status int    `json:"status"`
			BidID  string `json:"bidID"`
			Price  string `json:"price"`
		} `json:"deal"`
		Running   []string `json:"running"`
		Resources *struct{} `json:"resources"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return WireDealStatus{}, false, err
	}
	return WireDealStatus{
		Status:        resp.Deal.Status,
		BidID:         resp.Deal.BidID,
		Running:       resp.Running,
		WorkerOffline: resp.Resources == nil,
		PriceWeiSec:   resp.Deal.Price,
	}, true, nil
}

func (t *HTTPTransport) DealClose(ctx context.Context, dealID string, blacklist bool) (bool, error) {
	_, err := t.http.Post(ctx, "/deal/close", map[string]interface{}{"id": dealID, "blacklistWorker": blacklist})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *HTTPTransport) TaskStart(ctx context.Context, dealID string, manifest []byte, timeout time.Duration) (string, bool, error) {
	var spec map[string]interface{}
	if err := json.Unmarshal(manifest, &spec); err != nil {
		return "", false, fmt.Errorf("task manifest is not valid JSON: %w", err)
	}
	body, err := t.http.Post(ctx, "/task/start", map[string]interface{}{"dealID": dealID, "spec": spec})
	if err != nil {
		return "", false, err
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false, err
	}
	return resp.ID, resp.ID != "", nil
}

func (t *HTTPTransport) TaskStatus(ctx context.Context, dealID, taskID string) (WireTaskStatus, bool, error) {
	body, err := t.http.Get(ctx, "/task/status", map[string]string{"dealID": dealID, "taskID": taskID})
	if err != nil {
		return WireTaskStatus{}, false, err
	}
	var resp struct {
		Status int    `json:"status"`
		Uptime string `json:"uptime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return WireTaskStatus{}, false, err
	}
	uptimeNS, _ := strconv.ParseInt(resp.Uptime, 10, 64)
	return WireTaskStatus{Status: resp.Status, UptimeNS: uptimeNS}, true, nil
}

func (t *HTTPTransport) PredictPrice(ctx context.Context, order WireOrder) (string, bool, error) {
	body, err := t.http.Post(ctx, "/predictor/predict", wireOrderRequest(order))
	if err != nil {
		return "", false, err
	}
	var resp struct {
		PerSecond string `json:"perSecond"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false, err
	}
	return resp.PerSecond, resp.PerSecond != "", nil
}

func (t *HTTPTransport) TokenBalance(ctx context.Context) (WireBalance, bool, error) {
	body, err := t.http.Get(ctx, "/token/balance", nil)
	if err != nil {
		return WireBalance{}, false, err
	}
	var resp struct {
		LiveBalance    string `json:"liveBalance"`
		SideBalance    string `json:"sideBalance"`
		LiveEthBalance string `json:"liveEthBalance"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return WireBalance{}, false, err
	}
	return WireBalance{
		LiveBalance:    resp.LiveBalance,
		SideBalance:    resp.SideBalance,
		LiveEthBalance: resp.LiveEthBalance,
		Available:      true,
	}, true, nil
}

func wireOrderRequest(order WireOrder) map[string]interface{} {
	req := map[string]interface{}{
		"tag":      order.Tag,
		"identity": order.Identity,
		"duration": map[string]interface{}{"nanoseconds": order.DurationNS},
		"price":    map[string]interface{}{"perSecond": order.PriceWeiPerSecond},
		"resources": map[string]interface{}{
			"network": map[string]interface{}{
				"overlay":  order.Overlay,
				"outbound": true,
				"incoming": order.Incoming,
			},
			"benchmarks": map[string]interface{}{
				"ram-size":           order.RAMBytes,
				"storage-size":       order.StorageBytes,
				"cpu-cores":          order.CPUCores,
				"cpu-sysbench-single": order.CPUSysbenchSingle,
				"cpu-sysbench-multi":  order.CPUSysbenchMulti,
				"net-download":       order.NetDownloadBytes,
				"net-upload":         order.NetUploadBytes,
				"gpu-count":          order.GPUCount,
				"gpu-mem":            order.GPUMemBytes,
				"gpu-eth-hashrate":   order.EthHashesPerSec,
			},
		},
	}
	if order.Counterparty != "" {
		req["counterparty"] = order.Counterparty
	}
	return req
}
