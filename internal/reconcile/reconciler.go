// Package reconcile seeds the fleet registry with remote deal/order state at
// start-up, so a restarted process resumes in-flight work instead of
// abandoning open deals and placing duplicate orders.
package reconcile

import (
	"context"

	"github.com/google/uuid"

	"fleetmanager/internal/core"
	"fleetmanager/internal/fleet"
)

// NodeFactory builds a fresh Node for a tag, wired to whatever client,
// oracle, config provider, manifest builder, and log capturer the process
// constructed at start-up. The reconciler only decides which state to seed
// each node into; it never constructs a Node's collaborators itself.
type NodeFactory interface {
	NewNode(nodeTag string) *fleet.Node
}

// Reconciler performs the one-shot, start-up-only reconciliation pass
// described for this fleet manager: existing nodes are resumed from their
// deal/order history, and any configured tag with no remote trace starts
// fresh. Unlike a steady-state reconciliation loop, it never runs again
// after start-up — a tag added by a later config reload is simply appended
// in StateStart (see internal/supervisor), not reconciled against remote
// state a second time.
type Reconciler struct {
	client  core.IMarketplaceClient
	factory NodeFactory
	logger  core.ILogger
}

// NewReconciler creates a Reconciler.
func NewReconciler(client core.IMarketplaceClient, factory NodeFactory, logger core.ILogger) *Reconciler {
	return &Reconciler{
		client:  client,
		factory: factory,
		logger:  logger.WithField("component", "reconciler"),
	}
}

// Run seeds reg with one Node per tag in tags: resumed from an open deal or
// order where the remote marketplace has one, started fresh otherwise. It
// returns the reconciliation pass ID (for logging/metrics correlation) and
// any hard error encountered talking to the marketplace.
func (r *Reconciler) Run(ctx context.Context, tags []string, reg *fleet.Registry) (string, error) {
	passID := uuid.NewString()
	r.logger.Info("starting reconciliation pass", "pass_id", passID, "tags", len(tags))

	wanted := make(map[string]bool, len(tags))
	for _, tag := range tags {
		wanted[tag] = true
	}
	seen := make(map[string]bool, len(tags))

	dealIDs, err := r.client.DealList(ctx, len(tags))
	if err != nil {
		return passID, err
	}
	for _, dealID := range dealIDs {
		deal, err := r.client.DealStatus(ctx, dealID)
		if err != nil {
			r.logger.Warn("failed to read deal status during reconciliation", "deal_id", dealID, "error", err.Error())
			continue
		}
		order, err := r.client.OrderStatus(ctx, deal.OrderID)
		if err != nil {
			r.logger.Warn("failed to read order status during reconciliation", "order_id", deal.OrderID, "error", err.Error())
			continue
		}
		if !wanted[order.Tag] {
			// Remote tag does not match any configured task class: ignored,
			// not an error.
			continue
		}

		state := core.StateDealOpened
		taskID := ""
		switch {
		case deal.WorkerOffline:
			state = core.StateTaskFailed
		case len(deal.Running) > 0:
			taskID = deal.Running[0]
			state = core.StateTaskRunning
		}

		n := r.factory.NewNode(order.Tag)
		n.Seed(state, dealID, taskID, deal.OrderID, deal.Price)
		reg.Add(n)
		seen[order.Tag] = true
		r.logger.Info("resumed node from open deal", "tag", order.Tag, "deal_id", dealID, "state", state.String())
	}

	orders, err := r.client.OrderList(ctx, len(tags))
	if err != nil {
		return passID, err
	}
	for _, order := range orders {
		if seen[order.Tag] || !wanted[order.Tag] {
			continue
		}
		n := r.factory.NewNode(order.Tag)
		n.Seed(core.StateAwaitingDeal, "", "", order.ID, order.Price)
		reg.Add(n)
		seen[order.Tag] = true
		r.logger.Info("resumed node from open order", "tag", order.Tag, "order_id", order.ID)
	}

	for _, tag := range tags {
		if seen[tag] {
			continue
		}
		reg.Add(r.factory.NewNode(tag))
		r.logger.Info("no remote state for tag, starting fresh", "tag", tag)
	}

	r.logger.Info("reconciliation pass complete", "pass_id", passID, "resumed", len(seen), "total", len(tags))
	return passID, nil
}
