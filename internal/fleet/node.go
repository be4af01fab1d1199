// Package fleet implements the per-node lifecycle state machine and the
// process-wide registry of live nodes.
package fleet

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"fleetmanager/internal/core"
	"fleetmanager/internal/pricing"
)

// defaultRestartTimeout is the heartbeat watchdog window: a node stuck
// without a state transition for this long is reset to StateStart.
const defaultRestartTimeout = 600 * time.Second

// ConfigProvider hands a Node its task class's current configuration,
// re-read on every reload so a live node picks up edited price caps,
// coefficients, and resource bundles without a restart.
type ConfigProvider interface {
	TaskConfig(taskTag string) (core.TaskConfig, bool)
}

// ManifestBuilder renders the task manifest a node starts on its deal.
type ManifestBuilder interface {
	BuildManifest(nodeTag string, cfg core.TaskConfig) ([]byte, error)
}

// Node drives one marketplace position through its lifecycle: place an
// order, wait for a deal, start a task, watch it run, and close out —
// looping back to a new order unless told to stop.
type Node struct {
	nodeTag string
	taskTag string

	client       core.IMarketplaceClient
	oracle       *pricing.Oracle
	configs      ConfigProvider
	manifests    ManifestBuilder
	capturer     core.ITaskLogCapturer
	logger       core.ILogger
	restartAfter time.Duration

	mu            sync.RWMutex
	state         core.NodeState
	dealID        string
	taskID        string
	bidID         string
	price         string
	taskUptime    time.Duration
	lastHeartbeat time.Time

	keepWorking atomic.Bool
}

// NewNode creates a node in StateStart, the state every configured tag
// starts in unless the reconciler seeds it with remote state first.
func NewNode(nodeTag string, client core.IMarketplaceClient, oracle *pricing.Oracle, configs ConfigProvider, manifests ManifestBuilder, capturer core.ITaskLogCapturer, logger core.ILogger) *Node {
	n := &Node{
		nodeTag:      nodeTag,
		taskTag:      taskTagOf(nodeTag),
		client:       client,
		oracle:       oracle,
		configs:      configs,
		manifests:    manifests,
		capturer:     capturer,
		logger:       logger.WithField("node", nodeTag),
		restartAfter: defaultRestartTimeout,
		state:        core.StateStart,
	}
	n.keepWorking.Store(true)
	n.lastHeartbeat = time.Now()
	return n
}

func taskTagOf(nodeTag string) string {
	if i := strings.IndexByte(nodeTag, '_'); i >= 0 {
		return nodeTag[:i]
	}
	return nodeTag
}

// Seed overrides the node's starting state; used by the reconciler to
// resume a node into whatever state the remote deal/order list implies.
func (n *Node) Seed(state core.NodeState, dealID, taskID, bidID, price string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = state
	n.dealID = dealID
	n.taskID = taskID
	n.bidID = bidID
	n.price = price
}

// Tag returns the node's full tag ("<taskTag>_<index>").
func (n *Node) Tag() string { return n.nodeTag }

// State returns the node's current lifecycle state.
func (n *Node) State() core.NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// Snapshot returns a read-only view of the node's current state, safe to
// call from any goroutine.
func (n *Node) Snapshot() core.NodeSnapshot {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return core.NodeSnapshot{
		NodeTag:        n.nodeTag,
		Status:         n.state,
		DealID:         n.dealID,
		TaskID:         n.taskID,
		BidID:          n.bidID,
		Price:          n.price,
		TaskUptimeSec:  int64(n.taskUptime.Seconds()),
		SinceHeartbeat: int64(time.Since(n.lastHeartbeat).Seconds()),
	}
}

// IsTerminal reports whether the node has finished all its work and its
// goroutine can be retired from the supervisor's pool.
func (n *Node) IsTerminal() bool {
	return n.State() == core.StateWorkCompleted
}

// StopWork signals the node to stop after its current step, without
// closing any open deal — used on process shutdown.
func (n *Node) StopWork() {
	n.keepWorking.Store(false)
}

func (n *Node) setState(s core.NodeState) {
	n.mu.Lock()
	n.state = s
	n.mu.Unlock()
}

func (n *Node) timeSinceHeartbeat() time.Duration {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return time.Since(n.lastHeartbeat)
}

func (n *Node) touchHeartbeat() {
	n.mu.Lock()
	n.lastHeartbeat = time.Now()
	n.mu.Unlock()
}

// Run drives the node's lifecycle until it reaches StateWorkCompleted or
// ctx is cancelled. It is the goroutine body the supervisor schedules one
// of per live node.
func (n *Node) Run(ctx context.Context) error {
	sleep := time.Second
	for n.keepWorking.Load() && n.State() != core.StateWorkCompleted {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if n.timeSinceHeartbeat() > n.restartAfter {
			n.resetToStart(ctx)
		}

		switch n.State() {
		case core.StateStart, core.StateCreateOrder:
			n.createOrder(ctx)
			sleep = 60 * time.Second
		case core.StateAwaitingDeal:
			sleep = n.checkOrder(ctx)
		case core.StateDealOpened:
			n.startTask(ctx)
			sleep = 60 * time.Second
		case core.StateDealDisappeared:
			n.setState(core.StateCreateOrder)
			sleep = time.Second
		case core.StateTaskRunning:
			sleep = n.checkTaskStatus(ctx)
		case core.StateTaskFailedToStart:
			n.closeDeal(ctx, core.StateCreateOrder, true)
			sleep = time.Second
		case core.StateTaskFailed:
			n.closeDeal(ctx, core.StateCreateOrder, false)
			sleep = time.Second
		case core.StateTaskBroken:
			n.closeDeal(ctx, core.StateCreateOrder, false)
			sleep = time.Second
		case core.StateTaskFinished:
			n.closeDeal(ctx, core.StateWorkCompleted, false)
			sleep = time.Second
		default:
			sleep = 60 * time.Second
		}

		n.waitSleep(ctx, sleep)
		n.touchHeartbeat()
	}
	n.logger.Info("node stopped", "reason", stopReason(n.keepWorking.Load()))
	return nil
}

func stopReason(keepWorking bool) string {
	if keepWorking {
		return "work completed"
	}
	return "stop signal"
}

func (n *Node) waitSleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	ticks := int(d / time.Second)
	if ticks == 0 {
		ticks = 1
	}
	for i := 0; i < ticks; i++ {
		if !n.keepWorking.Load() || ctx.Err() != nil {
			return
		}
		time.Sleep(time.Second)
	}
}

func (n *Node) resetToStart(ctx context.Context) {
	n.logger.Info("heartbeat stalled, resetting node to start state")
	n.purge(ctx, core.StateStart)
}
