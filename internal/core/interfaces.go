// Package core defines the shared interfaces and domain types for the fleet manager.
package core

import (
	"context"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// ILogger defines the interface for structured logging, implemented by
// internal/logging.Logger.
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

// Identity mirrors the marketplace's counterparty trust tiers.
type Identity int

const (
	IdentityUnknown Identity = iota
	IdentityAnonymous
	IdentityRegistered
	IdentityIdentified
	IdentityProfessional
)

func (i Identity) String() string {
	switch i {
	case IdentityAnonymous:
		return "anonymous"
	case IdentityRegistered:
		return "registered"
	case IdentityIdentified:
		return "identified"
	case IdentityProfessional:
		return "professional"
	default:
		return "unknown"
	}
}

// ParseIdentity parses the config value for "identity".
func ParseIdentity(s string) (Identity, bool) {
	switch s {
	case "unknown":
		return IdentityUnknown, true
	case "anonymous":
		return IdentityAnonymous, true
	case "registered":
		return IdentityRegistered, true
	case "identified":
		return IdentityIdentified, true
	case "professional":
		return IdentityProfessional, true
	default:
		return IdentityUnknown, false
	}
}

// TaskStatus is the remote status of a running container task.
type TaskStatus int

const (
	TaskStatusUnknown TaskStatus = iota
	TaskStatusSpooling
	TaskStatusSpawning
	TaskStatusRunning
	TaskStatusFinished
	TaskStatusBroken
)

// ResourceBundle is the resource profile a node bids for, in config-native
// (human) units; it is converted to wire units when building a Bid.
type ResourceBundle struct {
	RAMMiB            int
	StorageGiB        int
	CPUCores          int
	CPUSysbenchSingle int
	CPUSysbenchMulti  int
	NetDownloadMiB    int
	NetUploadMiB      int
	Overlay           bool
	Incoming          bool
	GPUCount          int
	GPUMemMiB         int
	EthHashrateMHs    int
}

// Normalized returns a copy with GPU-dependent fields zeroed when GPUCount is 0.
func (r ResourceBundle) Normalized() ResourceBundle {
	out := r
	if out.GPUCount == 0 {
		out.GPUMemMiB = 0
		out.EthHashrateMHs = 0
	}
	return out
}

// TaskConfig is the per-task-class configuration, keyed by Tag.
type TaskConfig struct {
	Tag                     string
	NumberOfNodes           int
	MaxPriceUSDPerHour      decimal.Decimal
	PriceCoefficientPercent int
	TaskStartTimeout        time.Duration
	ETS                     time.Duration
	Duration                time.Duration
	Counterparty            *string
	Identity                Identity
	Resources               ResourceBundle
	TemplateFile            string
}

// NodeTag returns the tag for the i-th node of this task class (1-indexed).
func (t TaskConfig) NodeTag(i int) string {
	return tagFor(t.Tag, i)
}

func tagFor(taskTag string, i int) string {
	return taskTag + "_" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// Bid is the wire-ready order derived from a TaskConfig + a chosen price.
type Bid struct {
	Tag               string
	DurationNS        int64
	PriceWeiPerSecond *big.Int
	Identity          int
	Counterparty      *string
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

// Balance is the process-wide account balance snapshot.
type Balance struct {
	LiveBalance    string
	SideBalance    string
	LiveEthBalance string
}

// NABalance is the value reported when the balance endpoint is unavailable.
var NABalance = Balance{LiveBalance: "n/a", SideBalance: "n/a", LiveEthBalance: "n/a"}

// IMarketplaceClient is the normalized, retrying client contract the fleet
// manager's core logic depends on. The wire transport behind it is an
// external collaborator (see pkg/marketplace.Transport).
type IMarketplaceClient interface {
	OrderCreate(ctx context.Context, bid Bid) (orderID string, err error)
	OrderList(ctx context.Context, limit int) (orders []OrderSummary, err error)
	OrderStatus(ctx context.Context, orderID string) (OrderStatus, error)
	OrderCancel(ctx context.Context, orderID string) error

	DealList(ctx context.Context, limit int) (dealIDs []string, err error)
	DealStatus(ctx context.Context, dealID string) (DealStatus, error)
	DealClose(ctx context.Context, dealID string, blacklist bool) error

	TaskStart(ctx context.Context, dealID string, manifest []byte, timeout time.Duration) (taskID string, err error)
	TaskStatus(ctx context.Context, dealID, taskID string) (TaskState, error)

	PredictPrice(ctx context.Context, resources ResourceBundle) (usdPerHour decimal.Decimal, ok bool)

	TokenBalance(ctx context.Context) Balance
}

// OrderSummary is a single entry from IMarketplaceClient.OrderList.
type OrderSummary struct {
	ID    string
	Tag   string
	Price string
}

// OrderStatus is the normalized result of IMarketplaceClient.OrderStatus.
type OrderStatus struct {
	Active bool
	Tag    string
	DealID string
}

// DealStatus is the normalized result of IMarketplaceClient.DealStatus.
type DealStatus struct {
	Closed        bool
	OrderID       string
	Price         string
	Running       []string
	WorkerOffline bool
}

// TaskState is the normalized result of IMarketplaceClient.TaskStatus.
type TaskState struct {
	Status TaskStatus
	Uptime time.Duration
}

// ITaskLogCapturer saves the tail of a task's logs to disk for post-mortem.
type ITaskLogCapturer interface {
	Capture(ctx context.Context, dealID, taskID, destPath string) error
}
