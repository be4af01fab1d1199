// Package supervisor owns the fleet's steady-state lifecycle: it expands
// configured task classes into node tags, reconciles them against remote
// marketplace state once at start-up, dispatches one goroutine per node
// through a bounded worker pool, and runs the periodic jobs that keep
// configuration, price predictions, balance, and telemetry current.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fleetmanager/internal/config"
	"fleetmanager/internal/core"
	"fleetmanager/internal/fleet"
	"fleetmanager/internal/pricing"
	"fleetmanager/internal/reconcile"
	"fleetmanager/pkg/concurrency"
	"fleetmanager/pkg/telemetry"
)

const (
	submissionStagger = time.Second
	stateDumpInterval = 60 * time.Second
	reloadInterval    = 60 * time.Second
	balanceInterval   = 600 * time.Second
)

// ManifestBuilder renders a node's task manifest; satisfied by
// internal/manifest.TemplateBuilder.
type ManifestBuilder interface {
	BuildManifest(nodeTag string, cfg core.TaskConfig) ([]byte, error)
}

// StateWriter persists a point-in-time dump of every node's status, e.g. to
// disk or to a dashboard's in-memory cache. Satisfied trivially by a no-op
// in tests.
type StateWriter interface {
	WriteState(snapshots []core.NodeSnapshot)
}

// Supervisor drives the fleet: one goroutine per live node, bounded by a
// worker pool, plus the periodic reload/refresh/report jobs a live fleet
// needs between config changes.
type Supervisor struct {
	configPath string
	client     core.IMarketplaceClient
	oracle     *pricing.Oracle
	manifests  ManifestBuilder
	capturer   core.ITaskLogCapturer
	logger     core.ILogger
	writer     StateWriter

	registry *fleet.Registry
	pool     *concurrency.WorkerPool

	mu          sync.RWMutex
	taskConfigs map[string]core.TaskConfig

	cancelMu sync.Mutex
	cancels  map[string]context.CancelFunc
}

// New creates a Supervisor. configPath is re-read on every reload tick so
// edits to the running configuration take effect without a restart.
func New(
	configPath string,
	client core.IMarketplaceClient,
	oracle *pricing.Oracle,
	manifests ManifestBuilder,
	capturer core.ITaskLogCapturer,
	pool *concurrency.WorkerPool,
	writer StateWriter,
	logger core.ILogger,
) *Supervisor {
	return &Supervisor{
		configPath:  configPath,
		client:      client,
		oracle:      oracle,
		manifests:   manifests,
		capturer:    capturer,
		logger:      logger.WithField("component", "supervisor"),
		writer:      writer,
		registry:    fleet.NewRegistry(),
		pool:        pool,
		taskConfigs: make(map[string]core.TaskConfig),
		cancels:     make(map[string]context.CancelFunc),
	}
}

// TaskConfig implements fleet.ConfigProvider, handing a live node whatever
// configuration its task class currently has.
func (s *Supervisor) TaskConfig(taskTag string) (core.TaskConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.taskConfigs[taskTag]
	return cfg, ok
}

// NewNode implements reconcile.NodeFactory, wiring a fresh node to this
// supervisor's collaborators.
func (s *Supervisor) NewNode(nodeTag string) *fleet.Node {
	return fleet.NewNode(nodeTag, s.client, s.oracle, s, s.manifests, s.capturer, s.logger)
}

// Run loads configuration, reconciles against remote state, dispatches
// every node into the pool, and runs the periodic jobs until ctx is
// cancelled. It implements bootstrap.Runner.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.reloadConfig(); err != nil {
		return fmt.Errorf("initial config load: %w", err)
	}

	tags := s.allNodeTags()
	reconciler := reconcile.NewReconciler(s.client, s, s.logger)
	passID, err := reconciler.Run(ctx, tags, s.registry)
	if err != nil {
		return fmt.Errorf("reconciliation: %w", err)
	}
	s.logger.Info("reconciliation complete", "pass_id", passID)
	s.recordReconciledMetrics()

	for i, tag := range tags {
		node, ok := s.registry.Get(tag)
		if !ok {
			continue
		}
		s.dispatch(ctx, node)
		if i < len(tags)-1 {
			select {
			case <-ctx.Done():
				return s.shutdown()
			case <-time.After(submissionStagger):
			}
		}
	}

	stateTicker := time.NewTicker(stateDumpInterval)
	reloadTicker := time.NewTicker(reloadInterval)
	balanceTicker := time.NewTicker(balanceInterval)
	defer stateTicker.Stop()
	defer reloadTicker.Stop()
	defer balanceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.shutdown()
		case <-stateTicker.C:
			s.dumpState()
		case <-reloadTicker.C:
			s.reloadAndReconcile(ctx)
		case <-balanceTicker.C:
			s.refreshBalance(ctx)
		}
	}
}

// dispatch starts node's lifecycle goroutine in the pool under its own
// cancellable context, tracked so shutdown and tag removal can stop it.
func (s *Supervisor) dispatch(ctx context.Context, node *fleet.Node) {
	nodeCtx, cancel := context.WithCancel(ctx)
	s.cancelMu.Lock()
	s.cancels[node.Tag()] = cancel
	s.cancelMu.Unlock()

	tag := node.Tag()
	err := s.pool.Submit(func() {
		if err := node.Run(nodeCtx); err != nil && nodeCtx.Err() == nil {
			s.logger.Error("node loop exited with error", "tag", tag, "error", err.Error())
		}
	})
	if err != nil {
		s.logger.Error("failed to submit node to worker pool", "tag", tag, "error", err.Error())
		cancel()
	}
}

// reloadAndReconcile re-reads configuration and adds any node tag newly
// implied by a larger NumberOfNodes or a new task class, dropping nodes for
// tags no longer configured. It does not re-run start-up reconciliation —
// newly added tags start fresh, in StateStart.
func (s *Supervisor) reloadAndReconcile(ctx context.Context) {
	if err := s.reloadConfig(); err != nil {
		s.logger.Error("config reload failed, keeping previous configuration", "error", err.Error())
		return
	}

	wanted := make(map[string]bool)
	for _, tag := range s.allNodeTags() {
		wanted[tag] = true
		if _, ok := s.registry.Get(tag); ok {
			continue
		}
		node := s.NewNode(tag)
		s.registry.Add(node)
		s.dispatch(ctx, node)
		s.logger.Info("added node from config reload", "tag", tag)
	}

	for _, tag := range s.registry.Keys() {
		if wanted[tag] {
			continue
		}
		s.finishWork(ctx, tag)
		s.logger.Info("removed node no longer in configuration", "tag", tag)
	}

	s.refreshPrices(ctx)
	s.pruneTerminal(ctx)
}

// pruneTerminal removes nodes that finished all their work (reached
// StateWorkCompleted) from the registry and pool bookkeeping.
func (s *Supervisor) pruneTerminal(ctx context.Context) {
	for _, node := range s.registry.Values() {
		if node.IsTerminal() {
			s.finishWork(ctx, node.Tag())
		}
	}
}

// finishWork tears a node down gracefully — closing any open deal or
// cancelling any pending order before it stops — and removes it from the
// registry. Used when a tag disappears from reloaded configuration, unlike
// shutdown's StopWork, which leaves any open deal/order alone for the next
// run's start-up reconciliation to pick back up.
func (s *Supervisor) finishWork(ctx context.Context, tag string) {
	node, ok := s.registry.Get(tag)
	if ok {
		node.FinishWork(ctx)
	}

	s.cancelMu.Lock()
	cancel, ok := s.cancels[tag]
	delete(s.cancels, tag)
	s.cancelMu.Unlock()
	if ok {
		cancel()
	}

	s.registry.Remove(tag)
}

func (s *Supervisor) refreshPrices(ctx context.Context) {
	s.mu.RLock()
	configs := make([]core.TaskConfig, 0, len(s.taskConfigs))
	for _, cfg := range s.taskConfigs {
		configs = append(configs, cfg)
	}
	s.mu.RUnlock()

	for _, cfg := range configs {
		s.oracle.Predict(ctx, cfg.Tag, cfg.Resources)
	}
}

func (s *Supervisor) refreshBalance(ctx context.Context) {
	balance := s.client.TokenBalance(ctx)
	s.logger.Info("balance refreshed", "live", balance.LiveBalance, "side", balance.SideBalance, "live_eth", balance.LiveEthBalance)

	live, err1 := parseFloatOrZero(balance.LiveBalance)
	side, err2 := parseFloatOrZero(balance.SideBalance)
	liveEth, err3 := parseFloatOrZero(balance.LiveEthBalance)
	if err1 == nil && err2 == nil && err3 == nil {
		telemetry.GetGlobalMetrics().SetBalance(live, side, liveEth)
	}
}

func (s *Supervisor) dumpState() {
	snapshots := make([]core.NodeSnapshot, 0, s.registry.Len())
	counts := make(map[string]int64)
	for _, node := range s.registry.Values() {
		snap := node.Snapshot()
		snapshots = append(snapshots, snap)
		counts[snap.Status.String()]++
	}
	telemetry.GetGlobalMetrics().SetNodesByState(counts)
	if s.writer != nil {
		s.writer.WriteState(snapshots)
	}
}

func (s *Supervisor) recordReconciledMetrics() {
	counts := make(map[string]int64)
	for _, node := range s.registry.Values() {
		counts[node.State().String()]++
	}
	telemetry.GetGlobalMetrics().SetReconciledNodes(counts)
}

func (s *Supervisor) reloadConfig() error {
	cfg, err := config.LoadConfig(s.configPath)
	if err != nil {
		return err
	}
	taskConfigs, err := cfg.TaskConfigs(s.logger)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.taskConfigs = taskConfigs
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) allNodeTags() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var tags []string
	for _, cfg := range s.taskConfigs {
		for i := 1; i <= cfg.NumberOfNodes; i++ {
			tags = append(tags, cfg.NodeTag(i))
		}
	}
	return tags
}

func (s *Supervisor) shutdown() error {
	s.logger.Info("shutting down supervisor")
	for _, node := range s.registry.Values() {
		node.StopWork()
	}
	// The pool drains in the background; shutdown does not wait for the
	// node loops to return.
	go s.pool.Stop()
	return nil
}

func parseFloatOrZero(s string) (float64, error) {
	if s == "" || s == "n/a" {
		return 0, nil
	}
	var f float64
	_, err := fmt.Sscanf(s, "%g", &f)
	return f, err
}
