// Package adapter defines NodeAdapter, the coordinator's sole view of a
// node (spec.md §4.1), plus the default timeouts every concrete adapter is
// held to.
package adapter

import (
	"context"
	"time"

	"github.com/rekrevs/xedgesim/internal/event"
)

const (
	// DefaultInitTimeout bounds send_init.
	DefaultInitTimeout = 30 * time.Second
	// DefaultAdvanceTimeout bounds one send_advance/wait_done cycle.
	DefaultAdvanceTimeout = 30 * time.Second
	// DefaultShutdownGrace bounds how long send_shutdown waits before
	// force-terminating any remaining external resource.
	DefaultShutdownGrace = 5 * time.Second
)

// InitConfig is the scenario-specific configuration sent to a node on
// send_init: the scenario seed plus node-specific parameters.
type InitConfig struct {
	Seed   uint64
	Params map[string]any
}

// NodeAdapter is the uniform capability set the Coordinator holds over a
// node, irrespective of whether the node is an external process, a
// container, or an in-process emulator. See spec.md §4.1.
type NodeAdapter interface {
	// Connect prepares external resources. Idempotent. Must not perform
	// protocol I/O.
	Connect(ctx context.Context) error

	// SendInit synchronously sends cfg and blocks until the node
	// acknowledges readiness.
	SendInit(ctx context.Context, cfg InitConfig) error

	// SendAdvance delivers pending to this node and commands it to advance
	// to targetTimeUs. targetTimeUs is monotonically non-decreasing across
	// calls.
	SendAdvance(ctx context.Context, targetTimeUs int64, pending []event.Event) error

	// WaitDone blocks until the node reports completion of the most recent
	// advance and returns any events it emitted during that advance, in
	// time_us order (ties broken by emission order).
	WaitDone(ctx context.Context) ([]event.Event, error)

	// SendShutdown requests orderly termination, force-terminating any
	// remaining external resource after DefaultShutdownGrace. Idempotent.
	SendShutdown(ctx context.Context) error

	// CurrentTimeUs is advisory: the time this adapter's node last reported
	// reaching. Monotonically non-decreasing.
	CurrentTimeUs() int64
}
