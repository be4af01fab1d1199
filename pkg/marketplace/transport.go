package marketplace

import (
	"context"
	"time"
)

// WireOrder is the order body sent to order.create, already in wire units
// (nanoseconds, wei/second, bytes, hashes/second).
type WireOrder struct {
	Tag               string
	DurationNS        int64
	PriceWeiPerSecond string
	Identity          int
	Counterparty      string
	RAMBytes          int64
	StorageBytes      int64
	CPUCores          int
	CPUSysbenchSingle int
	CPUSysbenchMulti  int
	NetDownloadBytes  int64
	NetUploadBytes    int64
	Overlay           bool
	Incoming          bool
	GPUCount          int
	GPUMemBytes       int64
	EthHashesPerSec   int64
}

// WireOrderSummary is a single entry from order.list.
type WireOrderSummary struct {
	ID          string
	TagBase64   string
	PriceWeiSec string
}

// WireOrderStatus is the response from order.status.
type WireOrderStatus struct {
	OrderStatus int
	TagBase64   string
	DealID      string
}

// WireDealStatus is the response from deal.status.
type WireDealStatus struct {
	Status        int
	BidID         string
	Running       []string
	WorkerOffline bool
	PriceWeiSec   string
}

// WireTaskStatus is the response from task.status.
type WireTaskStatus struct {
	Status     int
	UptimeNS   int64
	StatusCode int
}

// WireBalance is the response from token.balance.
type WireBalance struct {
	LiveBalance    string
	SideBalance    string
	LiveEthBalance string
	Available      bool
}

// Transport is the raw RPC boundary the fleet manager depends on: one call
// per marketplace endpoint, no retry, no tag decoding, no price conversion.
// A production binary wires an HTTP implementation; tests wire a fake.
type Transport interface {
	OrderCreate(ctx context.Context, order WireOrder) (orderID string, statusOK bool, err error)
	OrderList(ctx context.Context, limit int) ([]WireOrderSummary, bool, error)
	OrderStatus(ctx context.Context, orderID string) (WireOrderStatus, bool, error)
	OrderCancel(ctx context.Context, orderID string) (bool, error)

	DealList(ctx context.Context, limit int) (dealIDs []string, statusOK bool, err error)
	DealStatus(ctx context.Context, dealID string) (WireDealStatus, bool, error)
	DealClose(ctx context.Context, dealID string, blacklist bool) (bool, error)

	TaskStart(ctx context.Context, dealID string, manifest []byte, timeout time.Duration) (taskID string, statusOK bool, err error)
	TaskStatus(ctx context.Context, dealID, taskID string) (WireTaskStatus, bool, error)

	PredictPrice(ctx context.Context, order WireOrder) (priceWeiPerSecond string, statusOK bool, err error)

	TokenBalance(ctx context.Context) (WireBalance, bool, error)
}
