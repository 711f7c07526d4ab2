// Package syntheticnode provides a periodic in-process event emitter for
// scenario files that name an in_process node without compiling a custom
// Go callback: it satisfies inprocess.Node directly, so cmd/xedgesim can
// wrap it with inprocess.New like any hand-written node object. Scenario
// authors who need custom behavior still write and wire their own
// inprocess.Node; this is the "no code required" path for simple traffic
// sources used in examples and smoke scenarios.
package syntheticnode

import (
	"context"

	"github.com/rekrevs/xedgesim/internal/adapter"
	"github.com/rekrevs/xedgesim/internal/adapter/inprocess"
	"github.com/rekrevs/xedgesim/internal/event"
)

// Config describes one periodic emission: every IntervalUs of virtual
// time, emit one event of Kind destined for Dst.
type Config struct {
	IntervalUs int64
	Dst        string
	Kind       string
}

func (c *Config) setDefaults() {
	if c.IntervalUs <= 0 {
		c.IntervalUs = 1_000_000
	}
	if c.Kind == "" {
		c.Kind = "tick"
	}
}

// Node emits one event per IntervalUs of virtual time, counting emissions
// from zero in its Payload's "seq" field.
type Node struct {
	cfg        Config
	currentUs  int64
	nextEmitUs int64
	seq        int64
}

var _ inprocess.Node = (*Node)(nil)

func New(cfg Config) *Node {
	cfg.setDefaults()
	return &Node{cfg: cfg, nextEmitUs: cfg.IntervalUs}
}

func (n *Node) Connect(ctx context.Context) error { return nil }

// Init applies scenario-level params, overriding the Config passed to New
// for fields the scenario file set explicitly.
func (n *Node) Init(ctx context.Context, cfg adapter.InitConfig) error {
	if v, ok := cfg.Params["interval_us"]; ok {
		if f, ok := asFloat(v); ok && f > 0 {
			n.cfg.IntervalUs = int64(f)
		}
	}
	if v, ok := cfg.Params["dst"].(string); ok && v != "" {
		n.cfg.Dst = v
	}
	if v, ok := cfg.Params["kind"].(string); ok && v != "" {
		n.cfg.Kind = v
	}
	n.nextEmitUs = n.cfg.IntervalUs
	return nil
}

// Advance emits one event at every multiple of IntervalUs in
// (currentUs, targetTimeUs].
func (n *Node) Advance(ctx context.Context, targetTimeUs int64, pending []event.Event) ([]event.Event, error) {
	var out []event.Event
	for n.nextEmitUs <= targetTimeUs {
		out = append(out, event.Event{
			TimeUs:  n.nextEmitUs,
			Kind:    n.cfg.Kind,
			Dst:     n.cfg.Dst,
			Payload: map[string]any{"seq": n.seq},
		})
		n.seq++
		n.nextEmitUs += n.cfg.IntervalUs
	}
	n.currentUs = targetTimeUs
	return out, nil
}

func (n *Node) Shutdown(ctx context.Context) error { return nil }

func (n *Node) CurrentTimeUs() int64 { return n.currentUs }

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
