package marketplace

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"fleetmanager/internal/core"
	"fleetmanager/internal/pricing"
	apperrors "fleetmanager/pkg/errors"
	"fleetmanager/pkg/retry"
)

// tagWireWidth is the fixed byte width tags are NUL-padded to before
// base64 encoding on the wire.
const tagWireWidth = 8

// Per-endpoint retry policies. Most calls retry quickly a handful of times;
// task.status polls patiently for an async container to finish booting;
// task.start never retries, since a timed-out start may have already
// spawned the container and retrying would spawn a second one.
var (
	defaultPolicy    = retry.RetryPolicy{MaxAttempts: 3, InitialBackoff: 3 * time.Second, MaxBackoff: 3 * time.Second}
	taskStatusPolicy = retry.RetryPolicy{MaxAttempts: 10, InitialBackoff: 10 * time.Second, MaxBackoff: 10 * time.Second}
	taskStartPolicy  = retry.RetryPolicy{MaxAttempts: 1, InitialBackoff: time.Second, MaxBackoff: time.Second}
)

func isTransient(err error) bool {
	return errors.Is(err, apperrors.ErrTransientRPC)
}

// Client normalizes a Transport's wire shapes into the fleet manager's core
// domain types: it decodes tags, converts the predictor's wei-per-second
// quote to USD/hour, and applies a per-endpoint retry policy around every
// call. Order and deal prices from order.list and deal.status are returned
// as the wire's wei-per-second strings, unconverted. This wrapper is where the
// marketplace's operation semantics live; Transport is just wire plumbing.
type Client struct {
	transport Transport
	logger    core.ILogger
}

// NewClient wraps transport with retry, tag decoding, and price conversion.
func NewClient(transport Transport, logger core.ILogger) *Client {
	return &Client{transport: transport, logger: logger.WithField("component", "marketplace_client")}
}

var _ core.IMarketplaceClient = (*Client)(nil)

func (c *Client) OrderCreate(ctx context.Context, bid core.Bid) (string, error) {
	wire := toWireOrder(bid)
	var orderID string
	err := retry.Do(ctx, defaultPolicy, isTransient, func() error {
		id, ok, callErr := c.transport.OrderCreate(ctx, wire)
		if callErr != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrTransientRPC, callErr)
		}
		if !ok {
			return apperrors.ErrTransientRPC
		}
		orderID = id
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("order.create: %w", err)
	}
	return orderID, nil
}

func (c *Client) OrderList(ctx context.Context, limit int) ([]core.OrderSummary, error) {
	var result []core.OrderSummary
	err := retry.Do(ctx, defaultPolicy, isTransient, func() error {
		wireOrders, ok, callErr := c.transport.OrderList(ctx, limit)
		if callErr != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrTransientRPC, callErr)
		}
		if !ok {
			return apperrors.ErrTransientRPC
		}
		result = make([]core.OrderSummary, 0, len(wireOrders))
		for _, wo := range wireOrders {
			tag, decodeErr := DecodeTag(wo.TagBase64)
			if decodeErr != nil {
				c.logger.Warn("order.list: skipping order with undecodable tag", "order_id", wo.ID, "error", decodeErr.Error())
				continue
			}
			result = append(result, core.OrderSummary{ID: wo.ID, Tag: tag, Price: wo.PriceWeiSec})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("order.list: %w", err)
	}
	return result, nil
}

func (c *Client) OrderStatus(ctx context.Context, orderID string) (core.OrderStatus, error) {
	var result core.OrderStatus
	err := retry.Do(ctx, defaultPolicy, isTransient, func() error {
		wireStatus, ok, callErr := c.transport.OrderStatus(ctx, orderID)
		if callErr != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrTransientRPC, callErr)
		}
		if !ok {
			return apperrors.ErrTransientRPC
		}
		tag, decodeErr := DecodeTag(wireStatus.TagBase64)
		if decodeErr != nil {
			return fmt.Errorf("%w: order.status tag decode: %v", apperrors.ErrPermanentRPC, decodeErr)
		}
		// orderStatus == 1 means active; dealID != "0" means a deal opened.
		result = core.OrderStatus{
			Active: wireStatus.OrderStatus == 1,
			Tag:    tag,
			DealID: wireStatus.DealID,
		}
		return nil
	})
	if err != nil {
		return core.OrderStatus{}, fmt.Errorf("order.status: %w", err)
	}
	return result, nil
}

func (c *Client) OrderCancel(ctx context.Context, orderID string) error {
	err := retry.Do(ctx, defaultPolicy, isTransient, func() error {
		ok, callErr := c.transport.OrderCancel(ctx, orderID)
		if callErr != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrTransientRPC, callErr)
		}
		if !ok {
			return apperrors.ErrTransientRPC
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("order.cancel: %w", err)
	}
	return nil
}

func (c *Client) DealList(ctx context.Context, limit int) ([]string, error) {
	var result []string
	err := retry.Do(ctx, defaultPolicy, isTransient, func() error {
		ids, ok, callErr := c.transport.DealList(ctx, limit)
		if callErr != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrTransientRPC, callErr)
		}
		if !ok {
			return apperrors.ErrTransientRPC
		}
		result = ids
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("deal.list: %w", err)
	}
	return result, nil
}

func (c *Client) DealStatus(ctx context.Context, dealID string) (core.DealStatus, error) {
	var result core.DealStatus
	err := retry.Do(ctx, defaultPolicy, isTransient, func() error {
		wireStatus, ok, callErr := c.transport.DealStatus(ctx, dealID)
		if callErr != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrTransientRPC, callErr)
		}
		if !ok {
			return apperrors.ErrTransientRPC
		}
		// status == 2 means closed.
		result = core.DealStatus{
			Closed:        wireStatus.Status == 2,
			OrderID:       wireStatus.BidID,
			Price:         wireStatus.PriceWeiSec,
			Running:       wireStatus.Running,
			WorkerOffline: wireStatus.WorkerOffline,
		}
		return nil
	})
	if err != nil {
		return core.DealStatus{}, fmt.Errorf("deal.status: %w", err)
	}
	return result, nil
}

func (c *Client) DealClose(ctx context.Context, dealID string, blacklist bool) error {
	err := retry.Do(ctx, defaultPolicy, isTransient, func() error {
		ok, callErr := c.transport.DealClose(ctx, dealID, blacklist)
		if callErr != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrTransientRPC, callErr)
		}
		if !ok {
			return apperrors.ErrTransientRPC
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deal.close: %w", err)
	}
	return nil
}

func (c *Client) TaskStart(ctx context.Context, dealID string, manifest []byte, timeout time.Duration) (string, error) {
	var taskID string
	err := retry.Do(ctx, taskStartPolicy, isTransient, func() error {
		startCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		id, ok, callErr := c.transport.TaskStart(startCtx, dealID, manifest, timeout)
		if callErr != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrTransientRPC, callErr)
		}
		if !ok {
			return apperrors.ErrTaskStartFailed
		}
		taskID = id
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("task.start: %w", err)
	}
	return taskID, nil
}

func (c *Client) TaskStatus(ctx context.Context, dealID, taskID string) (core.TaskState, error) {
	var result core.TaskState
	err := retry.Do(ctx, taskStatusPolicy, isTransient, func() error {
		wireStatus, ok, callErr := c.transport.TaskStatus(ctx, dealID, taskID)
		if callErr != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrTransientRPC, callErr)
		}
		if !ok {
			return apperrors.ErrTransientRPC
		}
		result = core.TaskState{
			Status: core.TaskStatus(wireStatus.Status),
			Uptime: time.Duration(wireStatus.UptimeNS),
		}
		return nil
	})
	if err != nil {
		return core.TaskState{}, fmt.Errorf("task.status: %w", err)
	}
	return result, nil
}

func (c *Client) PredictPrice(ctx context.Context, resources core.ResourceBundle) (decimal.Decimal, bool) {
	wire := toWireOrder(core.Bid{})
	wire = resourceBundleToWireOrder(resources, wire)

	var usdPerHour decimal.Decimal
	err := retry.Do(ctx, defaultPolicy, isTransient, func() error {
		priceWeiPerSecond, ok, callErr := c.transport.PredictPrice(ctx, wire)
		if callErr != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrTransientRPC, callErr)
		}
		if !ok {
			return apperrors.ErrTransientRPC
		}
		wei, parseOK := new(big.Int).SetString(priceWeiPerSecond, 10)
		if !parseOK {
			return fmt.Errorf("%w: predictor returned unparseable price %q", apperrors.ErrPermanentRPC, priceWeiPerSecond)
		}
		usdPerHour = pricing.WeiPerSecondToUSDPerHour(wei)
		return nil
	})
	if err != nil {
		c.logger.Warn("predictor.predict failed after retries", "error", err.Error())
		return decimal.Zero, false
	}
	return usdPerHour, true
}

func (c *Client) TokenBalance(ctx context.Context) core.Balance {
	var result core.Balance
	err := retry.Do(ctx, defaultPolicy, isTransient, func() error {
		wireBalance, ok, callErr := c.transport.TokenBalance(ctx)
		if callErr != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrTransientRPC, callErr)
		}
		if !ok || !wireBalance.Available {
			return apperrors.ErrTransientRPC
		}
		live, errLive := decimal.NewFromString(wireBalance.LiveBalance)
		side, errSide := decimal.NewFromString(wireBalance.SideBalance)
		liveEth, errEth := decimal.NewFromString(wireBalance.LiveEthBalance)
		if errLive != nil || errSide != nil || errEth != nil {
			return fmt.Errorf("%w: token.balance returned a missing or unparseable field", apperrors.ErrPermanentRPC)
		}
		result = core.Balance{
			LiveBalance:    live.StringFixed(4),
			SideBalance:    side.StringFixed(4),
			LiveEthBalance: liveEth.StringFixed(4),
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("token.balance failed after retries", "error", err.Error())
		return core.NABalance
	}
	return result
}

func toWireOrder(bid core.Bid) WireOrder {
	counterparty := ""
	if bid.Counterparty != nil {
		counterparty = *bid.Counterparty
	}
	priceWei := "0"
	if bid.PriceWeiPerSecond != nil {
		priceWei = bid.PriceWeiPerSecond.String()
	}
	return WireOrder{
		Tag:               EncodeTag(bid.Tag, tagWireWidth),
		DurationNS:        bid.DurationNS,
		PriceWeiPerSecond: priceWei,
		Identity:          bid.Identity,
		Counterparty:      counterparty,
		RAMBytes:          bid.RAMBytes,
		StorageBytes:      bid.StorageBytes,
		CPUCores:          bid.CPUCores,
		CPUSysbenchSingle: bid.CPUSysbenchSingle,
		CPUSysbenchMulti:  bid.CPUSysbenchMulti,
		NetDownloadBytes:  bid.NetDownloadBytes,
		NetUploadBytes:    bid.NetUploadBytes,
		Overlay:           bid.Overlay,
		Incoming:          bid.Incoming,
		GPUCount:          bid.GPUCount,
		GPUMemBytes:       bid.GPUMemBytes,
		EthHashesPerSec:   bid.EthHashesPerSec,
	}
}

func resourceBundleToWireOrder(r core.ResourceBundle, base WireOrder) WireOrder {
	normalized := r.Normalized()
	base.RAMBytes = int64(normalized.RAMMiB) * 1024 * 1024
	base.StorageBytes = int64(normalized.StorageGiB) * 1024 * 1024 * 1024
	base.CPUCores = normalized.CPUCores
	base.CPUSysbenchSingle = normalized.CPUSysbenchSingle
	base.CPUSysbenchMulti = normalized.CPUSysbenchMulti
	base.NetDownloadBytes = int64(normalized.NetDownloadMiB) * 1024 * 1024
	base.NetUploadBytes = int64(normalized.NetUploadMiB) * 1024 * 1024
	base.Overlay = normalized.Overlay
	base.Incoming = normalized.Incoming
	base.GPUCount = normalized.GPUCount
	base.GPUMemBytes = int64(normalized.GPUMemMiB) * 1024 * 1024
	base.EthHashesPerSec = int64(normalized.EthHashrateMHs) * 1_000_000
	return base
}
