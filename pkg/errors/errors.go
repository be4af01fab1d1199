// Package apperrors defines the sentinel errors the fleet manager's core
// logic branches on, independent of which marketplace transport produced them.
package apperrors

import "errors"

var (
	// ErrTransientRPC wraps a marketplace RPC failure that retrying may fix:
	// timeouts, connection resets, 5xx responses.
	ErrTransientRPC = errors.New("marketplace: transient RPC error")

	// ErrPermanentRPC wraps a marketplace RPC failure retrying cannot fix:
	// malformed request, rejected bid, 4xx responses.
	ErrPermanentRPC = errors.New("marketplace: permanent RPC error")

	// ErrInvalidConfig marks a configuration value that failed validation.
	ErrInvalidConfig = errors.New("config: invalid value")

	// ErrTaskStartFailed marks a task.start call that returned no task ID
	// within its timeout.
	ErrTaskStartFailed = errors.New("node: task failed to start")

	// ErrTaskBrokenBeforeETS marks a task that reported broken status before
	// its configured early-termination-seconds window elapsed.
	ErrTaskBrokenBeforeETS = errors.New("node: task broken before ETS window")

	// ErrTaskBrokenAfterETS marks a task that reported broken status after
	// its ETS window elapsed; the node is not blacklisted for this.
	ErrTaskBrokenAfterETS = errors.New("node: task broken after ETS window")

	// ErrDealVanished marks a deal that existed and then stopped appearing
	// in the marketplace's deal list.
	ErrDealVanished = errors.New("node: deal disappeared")

	// ErrHeartbeatStalled marks a node whose watchdog timer expired without
	// a state transition resetting it.
	ErrHeartbeatStalled = errors.New("node: heartbeat stalled")

	// ErrBlacklisted marks a counterparty or node tag the reconciler refuses
	// to re-engage with after a prior closed-with-blacklist deal.
	ErrBlacklisted = errors.New("node: counterparty blacklisted")
)
