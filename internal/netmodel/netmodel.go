// Package netmodel implements the two NetworkModel variants of spec.md
// §4.8: DirectNetworkModel (zero-latency, lossless, single-hop) and
// LatencyNetworkModel (per-link deterministic latency and loss).
package netmodel

import "github.com/rekrevs/xedgesim/internal/event"

// NetworkModel is the coordinator's sole view of routed-event behavior.
type NetworkModel interface {
	// RouteMessage is called exactly once per emitted event. It returns
	// events ready for immediate delivery; any delayed event is retained
	// internally and surfaces later from AdvanceTo.
	RouteMessage(e event.Event) []event.Event

	// AdvanceTo returns queued events whose delivery_time_us <= target.
	AdvanceTo(targetTimeUs int64) []event.Event

	// Reset clears all queued state and re-seeds any per-link RNGs.
	Reset()
}
