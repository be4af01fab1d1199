package fleet

import (
	"context"
	"time"

	"fleetmanager/internal/core"
	"fleetmanager/internal/pricing"
)

func (n *Node) taskConfig() (core.TaskConfig, bool) {
	return n.configs.TaskConfig(n.taskTag)
}

// buildBid derives the order a node should place: its task's resource
// bundle priced at the oracle's prediction adjusted by the task's
// coefficient, never exceeding the task's price cap.
func (n *Node) buildBid(cfg core.TaskConfig) core.Bid {
	cached, hasCached := n.oracle.PriceForTag(n.taskTag)
	usdPerHour := pricing.OrderPrice(cfg, cached, hasCached)
	weiPerSecond := pricing.USDPerHourToWeiPerSecond(usdPerHour)

	n.mu.Lock()
	n.price = pricing.FormatPriceUSDPerHour(usdPerHour)
	n.mu.Unlock()

	resources := cfg.Resources.Normalized()
	return core.Bid{
		Tag:               n.nodeTag,
		DurationNS:        cfg.Duration.Nanoseconds(),
		PriceWeiPerSecond: weiPerSecond,
		Identity:          int(cfg.Identity),
		Counterparty:      cfg.Counterparty,
		RAMBytes:          int64(resources.RAMMiB) * 1024 * 1024,
		StorageBytes:      int64(resources.StorageGiB) * 1024 * 1024 * 1024,
		CPUCores:          resources.CPUCores,
		CPUSysbenchSingle: resources.CPUSysbenchSingle,
		CPUSysbenchMulti:  resources.CPUSysbenchMulti,
		NetDownloadBytes:  int64(resources.NetDownloadMiB) * 1024 * 1024,
		NetUploadBytes:    int64(resources.NetUploadMiB) * 1024 * 1024,
		Overlay:           resources.Overlay,
		Incoming:          resources.Incoming,
		GPUCount:          resources.GPUCount,
		GPUMemBytes:       int64(resources.GPUMemMiB) * 1024 * 1024,
		EthHashesPerSec:   int64(resources.EthHashrateMHs) * 1_000_000,
	}
}

// createOrder places a new bid for the node's tag; the marketplace assigns
// an order ID (bidID) once accepted.
func (n *Node) createOrder(ctx context.Context) {
	cfg, ok := n.taskConfig()
	if !ok {
		n.logger.Error("no task configuration for tag, cannot place order")
		return
	}

	bid := n.buildBid(cfg)
	n.setState(core.StatePlacingOrder)
	orderID, err := n.client.OrderCreate(ctx, bid)
	if err != nil {
		n.logger.Error("failed to create order", "error", err.Error())
		n.setState(core.StateCreateOrder)
		return
	}

	n.mu.Lock()
	n.bidID = orderID
	n.mu.Unlock()
	n.setState(core.StateAwaitingDeal)
	n.logger.Info("order created", "order_id", orderID)
}

// checkOrder polls an open order for a newly opened deal; it returns the
// number of seconds the caller should sleep before checking again.
func (n *Node) checkOrder(ctx context.Context) time.Duration {
	n.mu.RLock()
	bidID := n.bidID
	n.mu.RUnlock()

	status, err := n.client.OrderStatus(ctx, bidID)
	if err != nil {
		n.logger.Error("failed to check order status", "error", err.Error())
		return 60 * time.Second
	}

	if status.Active && status.DealID != "" && status.DealID != "0" {
		n.mu.Lock()
		n.dealID = status.DealID
		n.mu.Unlock()
		n.setState(core.StateDealOpened)
		n.logger.Info("deal opened", "deal_id", status.DealID)
		return 15 * time.Second
	}
	if !status.Active {
		n.mu.Lock()
		n.bidID = ""
		n.mu.Unlock()
		n.setState(core.StateCreateOrder)
		n.logger.Info("order was cancelled, recreating")
		return time.Second
	}
	return 60 * time.Second
}

func (n *Node) cancelOrder(ctx context.Context) {
	n.mu.RLock()
	bidID := n.bidID
	n.mu.RUnlock()
	if bidID == "" {
		return
	}
	if err := n.client.OrderCancel(ctx, bidID); err != nil {
		n.logger.Error("failed to cancel order", "order_id", bidID, "error", err.Error())
	}
}

// startTask starts the task's container on the opened deal.
func (n *Node) startTask(ctx context.Context) {
	cfg, ok := n.taskConfig()
	if !ok {
		n.logger.Error("no task configuration for tag, cannot start task")
		return
	}

	n.mu.RLock()
	dealID := n.dealID
	n.mu.RUnlock()

	manifest, err := n.manifests.BuildManifest(n.nodeTag, cfg)
	if err != nil {
		n.logger.Error("failed to render task manifest", "error", err.Error())
		n.setState(core.StateTaskFailedToStart)
		return
	}

	n.setState(core.StateStartingTask)
	taskID, err := n.client.TaskStart(ctx, dealID, manifest, cfg.TaskStartTimeout)
	if err != nil {
		n.logger.Error("failed to start task, closing deal and blacklisting worker", "deal_id", dealID, "error", err.Error())
		n.setState(core.StateTaskFailedToStart)
		return
	}

	n.mu.Lock()
	n.taskID = taskID
	n.mu.Unlock()
	n.setState(core.StateTaskRunning)
	n.logger.Info("task started", "deal_id", dealID, "task_id", taskID)
}

// checkTaskStatus polls the running task; it returns the number of
// seconds the caller should sleep before checking again.
func (n *Node) checkTaskStatus(ctx context.Context) time.Duration {
	n.mu.RLock()
	dealID, taskID := n.dealID, n.taskID
	n.mu.RUnlock()

	deal, err := n.client.DealStatus(ctx, dealID)
	if err != nil {
		n.logger.Error("cannot retrieve deal status", "deal_id", dealID, "error", err.Error())
		return 60 * time.Second
	}
	if deal.Closed {
		n.logger.Info("deal disappeared", "deal_id", dealID)
		n.mu.Lock()
		n.dealID, n.bidID, n.taskID = "", "", ""
		n.taskUptime = 0
		n.mu.Unlock()
		n.setState(core.StateDealDisappeared)
		return time.Second
	}

	state, err := n.client.TaskStatus(ctx, dealID, taskID)
	if err != nil {
		n.logger.Error("cannot retrieve task status, worker may be offline", "deal_id", dealID, "task_id", taskID, "error", err.Error())
		n.setState(core.StateTaskFailed)
		return time.Second
	}

	cfg, _ := n.taskConfig()

	switch state.Status {
	case core.TaskStatusRunning:
		n.mu.Lock()
		n.taskUptime = state.Uptime
		n.mu.Unlock()
		n.logger.Info("task running", "uptime", state.Uptime)
		return 60 * time.Second
	case core.TaskStatusSpooling, core.TaskStatusSpawning:
		n.setState(core.StateStartingTask)
		return 60 * time.Second
	case core.TaskStatusBroken:
		if state.Uptime < cfg.ETS {
			n.logger.Error("task broken before ETS, closing deal and blacklisting worker", "uptime", state.Uptime)
			n.setState(core.StateTaskFailedToStart)
		} else {
			n.logger.Error("task broken after ETS, closing deal and recreating order", "uptime", state.Uptime)
			n.setState(core.StateTaskBroken)
		}
		return time.Second
	case core.TaskStatusFinished:
		n.logger.Info("task finished, fetching logs and shutting down node", "uptime", state.Uptime)
		n.setState(core.StateTaskFinished)
		return time.Second
	default:
		return 60 * time.Second
	}
}

// closeDeal closes the node's open deal (capturing logs first on a
// terminal failure or success) and transitions to stateAfter.
func (n *Node) closeDeal(ctx context.Context, stateAfter core.NodeState, blacklist bool) {
	n.mu.RLock()
	dealID, taskID, prevState := n.dealID, n.taskID, n.state
	n.mu.RUnlock()

	if n.capturer != nil && dealID != "" && taskID != "" {
		prefix := "out/logs_"
		switch prevState {
		case core.StateTaskFailed, core.StateTaskBroken, core.StateTaskFailedToStart:
			prefix = "out/fail_"
		case core.StateTaskFinished:
			prefix = "out/success_"
		}
		destPath := prefix + n.nodeTag + "-deal-" + dealID + ".log"
		if err := n.capturer.Capture(ctx, dealID, taskID, destPath); err != nil {
			n.logger.Warn("failed to capture task logs", "deal_id", dealID, "error", err.Error())
		}
	}

	if dealID != "" {
		if err := n.client.DealClose(ctx, dealID, blacklist); err != nil {
			n.logger.Error("failed to close deal", "deal_id", dealID, "error", err.Error())
		} else {
			n.logger.Info("deal closed", "deal_id", dealID, "blacklist", blacklist)
		}
	}

	n.mu.Lock()
	n.dealID, n.bidID, n.taskID = "", "", ""
	n.taskUptime = 0
	n.mu.Unlock()
	n.setState(stateAfter)
}

// purge tears a node down from whatever state it is in: closes an open
// deal, cancels a pending order, or simply transitions to stateAfter.
func (n *Node) purge(ctx context.Context, stateAfter core.NodeState) {
	switch n.State() {
	case core.StateDealOpened, core.StateStartingTask, core.StateTaskRunning,
		core.StateTaskFailed, core.StateTaskFailedToStart, core.StateTaskBroken, core.StateTaskFinished:
		n.closeDeal(ctx, stateAfter, false)
		return
	case core.StateAwaitingDeal:
		n.cancelOrder(ctx)
	case core.StatePlacingOrder:
		n.waitForOrderPlaced(ctx)
		if n.State() == core.StateAwaitingDeal {
			n.cancelOrder(ctx)
		}
	}
	n.setState(stateAfter)
}

// waitForOrderPlaced blocks until the in-flight OrderCreate RPC resolves the
// node out of StatePlacingOrder, so purge cancels the order it lands on
// instead of racing the RPC.
func (n *Node) waitForOrderPlaced(ctx context.Context) {
	for n.State() == core.StatePlacingOrder {
		if ctx.Err() != nil {
			return
		}
		time.Sleep(time.Second)
	}
}

// FinishWork tears the node down entirely (closing any deal, cancelling
// any order) and stops it for good — used when a tag is removed from
// configuration.
func (n *Node) FinishWork(ctx context.Context) {
	n.logger.Info("destroying node")
	n.keepWorking.Store(false)
	n.purge(ctx, core.StateWorkCompleted)
}
