// Package event defines Event, the sole value type exchanged between every
// xEdgeSim component: nodes, adapters, the network model, and the
// coordinator.
package event

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Well-known network_metadata keys, populated by a NetworkModel on routing.
const (
	MetaSentTimeUs     = "sent_time_us"
	MetaDeliveryTimeUs = "delivery_time_us"
	MetaLatencyUs      = "latency_us"
	MetaLinkID         = "link_id"
)

// Event is immutable once created: every method that would mutate an Event
// returns a new one instead.
type Event struct {
	TimeUs    int64
	Kind      string
	Src       string
	Dst       string // empty means "not network-routed"; see HasDst.
	Payload   any    // JSON-serializable; decoded generically on the wire.
	SizeBytes int64
	NetMeta   map[string]any
}

// wireEvent mirrors the on-the-wire schema of spec.md §6 exactly, including
// its null-vs-absent semantics for dst.
type wireEvent struct {
	TimeUs    int64          `json:"time_us"`
	Kind      string         `json:"kind"`
	Src       string         `json:"src"`
	Dst       *string        `json:"dst"`
	Payload   any            `json:"payload"`
	SizeBytes int64          `json:"size_bytes"`
	NetMeta   map[string]any `json:"net_meta"`
}

// HasDst reports whether this event is destined for a node (network-routed)
// as opposed to a dst=None metrics/log event.
func (e Event) HasDst() bool { return e.Dst != "" }

// Validate enforces the data-model invariants of spec.md §3 that can be
// checked without a NetworkModel in scope.
func (e Event) Validate() error {
	if e.Src == "" {
		return fmt.Errorf("event: src is required")
	}
	if e.SizeBytes < 0 {
		return fmt.Errorf("event: size_bytes must be non-negative, got %d", e.SizeBytes)
	}
	if sent, ok := e.NetMeta[MetaSentTimeUs]; ok {
		if _, ok := e.NetMeta[MetaDeliveryTimeUs]; !ok {
			return fmt.Errorf("event: net_meta has sent_time_us but no delivery_time_us")
		}
		sentUs, sentOK := asInt64(sent)
		deliveryUs, deliveryOK := asInt64(e.NetMeta[MetaDeliveryTimeUs])
		if sentOK && deliveryOK && deliveryUs < sentUs {
			return fmt.Errorf("event: delivery_time_us (%d) < sent_time_us (%d)", deliveryUs, sentUs)
		}
	}
	return nil
}

// WithTimeUs returns a copy of e with TimeUs replaced.
func (e Event) WithTimeUs(timeUs int64) Event {
	out := e
	out.TimeUs = timeUs
	return out
}

// WithNetMeta returns a copy of e with its network_metadata replaced by a
// freshly allocated copy of meta (never aliasing the caller's map).
func (e Event) WithNetMeta(meta map[string]any) Event {
	out := e
	out.NetMeta = cloneMeta(meta)
	return out
}

// WithSrc returns a copy of e with Src replaced.
func (e Event) WithSrc(src string) Event {
	out := e
	out.Src = src
	return out
}

// MarshalJSON implements the wire schema of spec.md §6.
func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		TimeUs:    e.TimeUs,
		Kind:      e.Kind,
		Src:       e.Src,
		Payload:   e.Payload,
		SizeBytes: e.SizeBytes,
		NetMeta:   e.NetMeta,
	}
	if e.HasDst() {
		dst := e.Dst
		w.Dst = &dst
	}
	if w.NetMeta == nil {
		w.NetMeta = map[string]any{}
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements the wire schema of spec.md §6. Absent fields take
// their documented defaults: dst=null, size_bytes=0, net_meta={}.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}
	*e = Event{
		TimeUs:    w.TimeUs,
		Kind:      w.Kind,
		Src:       w.Src,
		Payload:   w.Payload,
		SizeBytes: w.SizeBytes,
		NetMeta:   w.NetMeta,
	}
	if w.Dst != nil {
		e.Dst = *w.Dst
	}
	if e.NetMeta == nil {
		e.NetMeta = map[string]any{}
	}
	return nil
}

// Equal reports whether e and other carry the same fields, comparing
// payload and net_meta by their JSON-decoded shape rather than by
// reference, so events built independently but with equivalent content
// compare equal.
func (e Event) Equal(other Event) bool {
	if e.TimeUs != other.TimeUs || e.Kind != other.Kind || e.Src != other.Src ||
		e.Dst != other.Dst || e.SizeBytes != other.SizeBytes {
		return false
	}
	return deepEqualJSON(e.Payload, other.Payload) && mapEqualJSON(e.NetMeta, other.NetMeta)
}

func cloneMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func deepEqualJSON(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return errA == errB
	}
	return string(ab) == string(bb)
}

func mapEqualJSON(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		bv, ok := b[k]
		if !ok || !deepEqualJSON(a[k], bv) {
			return false
		}
	}
	return true
}
