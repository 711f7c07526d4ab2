// Package simtest provides a scripted, deterministic adapter.NodeAdapter
// fake for driving a Coordinator through full runs without a real
// subprocess, container, or emulator. It is exported for scenario authors'
// own tests, not just this repository's.
package simtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rekrevs/xedgesim/internal/adapter"
	"github.com/rekrevs/xedgesim/internal/event"
	"github.com/rekrevs/xedgesim/internal/simerr"
)

// Emission is one scripted production: at or after AtTimeUs is reached by
// an advance, Events is appended to that advance's WaitDone result.
type Emission struct {
	AtTimeUs int64
	Events   []event.Event
}

// ScriptedAdapter implements adapter.NodeAdapter by replaying a fixed
// schedule of emissions, ignoring the wall clock entirely: a run using
// only ScriptedAdapters is reproducible byte-for-byte.
type ScriptedAdapter struct {
	NodeID   string
	Schedule []Emission

	mu          sync.Mutex
	connected   bool
	initDone    bool
	lastTarget  int64
	currentUs   int64
	nextIdx     int
	received    []event.Event
	lastProduce []event.Event
}

var _ adapter.NodeAdapter = (*ScriptedAdapter)(nil)

func NewScriptedAdapter(nodeID string, schedule []Emission) *ScriptedAdapter {
	sorted := append([]Emission(nil), schedule...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].AtTimeUs < sorted[j].AtTimeUs })
	return &ScriptedAdapter{NodeID: nodeID, Schedule: sorted}
}

func (a *ScriptedAdapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = true
	return nil
}

func (a *ScriptedAdapter) SendInit(ctx context.Context, cfg adapter.InitConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return &simerr.InvalidStateError{Detail: "simtest: send_init before connect"}
	}
	a.initDone = true
	return nil
}

// SendAdvance records pending (ReceivedEvents exposes it for assertions)
// and collects every not-yet-emitted scheduled emission whose AtTimeUs is
// <= targetTimeUs (so an emission at AtTimeUs 0 is produced by the first
// advance).
func (a *ScriptedAdapter) SendAdvance(ctx context.Context, targetTimeUs int64, pending []event.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initDone {
		return &simerr.InvalidStateError{Detail: "simtest: send_advance before send_init"}
	}
	if targetTimeUs < a.lastTarget {
		return &simerr.InvalidStateError{Detail: fmt.Sprintf("simtest: target_us %d < previous target %d", targetTimeUs, a.lastTarget)}
	}

	a.received = append(a.received, pending...)

	var produced []event.Event
	for a.nextIdx < len(a.Schedule) && a.Schedule[a.nextIdx].AtTimeUs <= targetTimeUs {
		produced = append(produced, a.Schedule[a.nextIdx].Events...)
		a.nextIdx++
	}
	for i := range produced {
		produced[i] = produced[i].WithSrc(a.NodeID)
	}
	sort.SliceStable(produced, func(i, j int) bool { return produced[i].TimeUs < produced[j].TimeUs })

	a.lastProduce = produced
	a.lastTarget = targetTimeUs
	a.currentUs = targetTimeUs
	return nil
}

func (a *ScriptedAdapter) WaitDone(ctx context.Context) ([]event.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.lastProduce
	a.lastProduce = nil
	return out, nil
}

func (a *ScriptedAdapter) SendShutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	return nil
}

func (a *ScriptedAdapter) CurrentTimeUs() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentUs
}

// ReceivedEvents returns every event this adapter was handed via
// SendAdvance's pending argument, across the whole run, in delivery order.
func (a *ScriptedAdapter) ReceivedEvents() []event.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]event.Event(nil), a.received...)
}
