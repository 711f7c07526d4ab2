// Package inprocess implements adapter.NodeAdapter for a node object living
// in the coordinator's own address space — no serialization, no I/O
// (spec.md §4.3). Its primary consumer is the emulator-backed node
// (internal/emulator), which needs the full adapter contract without the
// cost of a socket round trip to itself.
package inprocess

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rekrevs/xedgesim/internal/adapter"
	"github.com/rekrevs/xedgesim/internal/event"
	"github.com/rekrevs/xedgesim/internal/simerr"
)

// Node is the lifecycle contract a wrapped in-process object must
// implement. It mirrors NodeAdapter but Advance is a single synchronous
// call rather than a send/wait pair, since there is no I/O to overlap.
type Node interface {
	Connect(ctx context.Context) error
	Init(ctx context.Context, cfg adapter.InitConfig) error
	// Advance delivers pending to the node and advances it to
	// targetTimeUs, returning any events it produced.
	Advance(ctx context.Context, targetTimeUs int64, pending []event.Event) ([]event.Event, error)
	Shutdown(ctx context.Context) error
	CurrentTimeUs() int64
}

// Adapter wraps a Node behind the standard NodeAdapter contract.
//
// Historical versions of this adapter silently dropped pending_events on
// SendAdvance, breaking bidirectional flow for nodes (like the emulator)
// that need to receive commands. Every pending event handed to SendAdvance
// is forwarded to the wrapped node; this is a tested invariant, not a
// convention (see inprocess_test.go).
type Adapter struct {
	nodeID string
	node   Node

	mu       sync.Mutex
	initDone bool
	lastTgt  int64
	produced []event.Event
}

var _ adapter.NodeAdapter = (*Adapter)(nil)

func New(nodeID string, node Node) *Adapter {
	return &Adapter{nodeID: nodeID, node: node}
}

func (a *Adapter) Connect(ctx context.Context) error {
	return a.node.Connect(ctx)
}

func (a *Adapter) SendInit(ctx context.Context, cfg adapter.InitConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.node.Init(ctx, cfg); err != nil {
		return err
	}
	a.initDone = true
	return nil
}

func (a *Adapter) SendAdvance(ctx context.Context, targetTimeUs int64, pending []event.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initDone {
		return &simerr.InvalidStateError{Detail: "inprocess: send_advance before send_init"}
	}
	if targetTimeUs < a.lastTgt {
		return &simerr.InvalidStateError{Detail: fmt.Sprintf("inprocess: target_us %d < previous target %d", targetTimeUs, a.lastTgt)}
	}
	a.lastTgt = targetTimeUs

	produced, err := a.node.Advance(ctx, targetTimeUs, pending)
	if err != nil {
		return err
	}

	events := make([]event.Event, len(produced))
	for i, e := range produced {
		events[i] = e.WithSrc(a.nodeID)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].TimeUs < events[j].TimeUs })
	a.produced = events
	return nil
}

func (a *Adapter) WaitDone(ctx context.Context) ([]event.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	produced := a.produced
	a.produced = nil
	return produced, nil
}

func (a *Adapter) SendShutdown(ctx context.Context) error {
	return a.node.Shutdown(ctx)
}

func (a *Adapter) CurrentTimeUs() int64 {
	return a.node.CurrentTimeUs()
}
