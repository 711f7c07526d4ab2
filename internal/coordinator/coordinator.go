// Package coordinator implements the conservative synchronous lockstep
// co-simulation loop of spec.md §4.6: it owns virtual time, holds every
// node's adapter and the network model, and advances them all in lockstep
// quanta until duration_us is reached or a fatal error aborts the run.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/rekrevs/xedgesim/internal/adapter"
	"github.com/rekrevs/xedgesim/internal/check"
	"github.com/rekrevs/xedgesim/internal/event"
	"github.com/rekrevs/xedgesim/internal/netmodel"
	"github.com/rekrevs/xedgesim/internal/telemetry"
)

// Phase tracks the Coordinator's own lifecycle, distinct from any node's.
type Phase int

const (
	PhaseCreated Phase = iota
	PhaseConnected
	PhaseRunning
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseConnected:
		return "connected"
	case PhaseRunning:
		return "running"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// NodeSpec names one node and its adapter, plus any node-specific INIT
// parameters.
type NodeSpec struct {
	NodeID  string
	Adapter adapter.NodeAdapter
	Params  map[string]any
}

// Config is the coordinator's configuration record — the exact surface
// named in spec.md §6.
type Config struct {
	DurationUs   int64
	QuantumUs    int64
	ScenarioSeed uint64
	NetworkModel netmodel.NetworkModel
	Nodes        []NodeSpec
}

// NodeSummary is one node's contribution to a run's Summary.
type NodeSummary struct {
	NodeID      string
	EventsSent  int
	EventsRecv  int
	FinalTimeUs int64
}

// Summary is the Coordinator's return value: spec.md §4.6 leaves its shape
// unnamed ("coordinator... returns a summary"); this expansion names it.
type Summary struct {
	RunID         string
	ScenarioSeed  uint64
	VirtualTimeUs int64
	WallClock     time.Duration
	Nodes         []NodeSummary
	Err           error
}

// Coordinator runs one scenario to completion. It is not reusable across
// runs; construct a fresh Coordinator per run.
type Coordinator struct {
	cfg Config
	log *slog.Logger

	runID string
	phase Phase

	virtualTimeUs int64
	pending       map[string][]event.Event
	sent          map[string]int
	recv          map[string]int
}

// New validates cfg and builds a Coordinator ready for Run.
func New(cfg Config) (*Coordinator, error) {
	if cfg.QuantumUs <= 0 {
		return nil, fmt.Errorf("coordinator: quantum_us must be positive, got %d", cfg.QuantumUs)
	}
	if cfg.DurationUs < 0 {
		return nil, fmt.Errorf("coordinator: duration_us must be non-negative, got %d", cfg.DurationUs)
	}
	if cfg.NetworkModel == nil {
		return nil, fmt.Errorf("coordinator: network_model is required")
	}
	if len(cfg.Nodes) == 0 {
		return nil, fmt.Errorf("coordinator: at least one node is required")
	}
	seen := make(map[string]bool, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		if n.NodeID == "" {
			return nil, fmt.Errorf("coordinator: node_id is required")
		}
		if seen[n.NodeID] {
			return nil, fmt.Errorf("coordinator: duplicate node_id %q", n.NodeID)
		}
		seen[n.NodeID] = true
	}

	runID := uuid.NewString()
	return &Coordinator{
		cfg:     cfg,
		log:     slog.With("component", "coordinator", "run_id", runID, "scenario_seed", cfg.ScenarioSeed),
		runID:   runID,
		phase:   PhaseCreated,
		pending: make(map[string][]event.Event, len(cfg.Nodes)),
		sent:    make(map[string]int, len(cfg.Nodes)),
		recv:    make(map[string]int, len(cfg.Nodes)),
	}, nil
}

// Phase reports the coordinator's own lifecycle state.
func (c *Coordinator) Phase() Phase { return c.phase }

// Run connects every adapter, initializes them, drives the lockstep loop
// to completion or fatal error, and unconditionally shuts every adapter
// down before returning.
func (c *Coordinator) Run(ctx context.Context) Summary {
	start := time.Now()
	tracer := telemetry.Tracer()

	if err := c.connectAll(ctx, tracer); err != nil {
		c.shutdownAll(ctx, tracer)
		return c.finish(start, err)
	}
	if err := c.initAll(ctx, tracer); err != nil {
		c.shutdownAll(ctx, tracer)
		return c.finish(start, err)
	}

	c.phase = PhaseRunning
	err := c.loop(ctx, tracer)
	c.shutdownAll(ctx, tracer)
	return c.finish(start, err)
}

func (c *Coordinator) finish(start time.Time, err error) Summary {
	c.phase = PhaseDone
	nodes := make([]NodeSummary, 0, len(c.cfg.Nodes))
	for _, n := range c.cfg.Nodes {
		nodes = append(nodes, NodeSummary{
			NodeID:      n.NodeID,
			EventsSent:  c.sent[n.NodeID],
			EventsRecv:  c.recv[n.NodeID],
			FinalTimeUs: n.Adapter.CurrentTimeUs(),
		})
	}
	if err != nil {
		c.log.Error("run aborted", "err", err, "virtual_time_us", c.virtualTimeUs)
	} else {
		c.log.Info("run complete", "virtual_time_us", c.virtualTimeUs)
	}
	return Summary{
		RunID:         c.runID,
		ScenarioSeed:  c.cfg.ScenarioSeed,
		VirtualTimeUs: c.virtualTimeUs,
		WallClock:     time.Since(start),
		Nodes:         nodes,
		Err:           err,
	}
}

func (c *Coordinator) connectAll(ctx context.Context, tracer trace.Tracer) error {
	for _, n := range c.cfg.Nodes {
		spanCtx, span := telemetry.AdapterSpan(ctx, tracer, n.NodeID, "connect")
		err := n.Adapter.Connect(spanCtx)
		telemetry.End(span, err)
		if err != nil {
			return fmt.Errorf("connect node %q: %w", n.NodeID, err)
		}
	}
	c.phase = PhaseConnected
	return nil
}

func (c *Coordinator) initAll(ctx context.Context, tracer trace.Tracer) error {
	for _, n := range c.cfg.Nodes {
		spanCtx, span := telemetry.AdapterSpan(ctx, tracer, n.NodeID, "send_init")
		cfg := adapter.InitConfig{Seed: c.cfg.ScenarioSeed, Params: n.Params}
		err := n.Adapter.SendInit(spanCtx, cfg)
		telemetry.End(span, err)
		if err != nil {
			return fmt.Errorf("init node %q: %w", n.NodeID, err)
		}
	}
	return nil
}

// loop runs lockstep quanta until virtual_time_us reaches duration_us.
func (c *Coordinator) loop(ctx context.Context, tracer trace.Tracer) error {
	for c.virtualTimeUs < c.cfg.DurationUs {
		target := c.virtualTimeUs + c.cfg.QuantumUs
		if target > c.cfg.DurationUs {
			target = c.cfg.DurationUs
		}
		check.Assert(target > c.virtualTimeUs, "coordinator: step target must advance virtual time")

		spanCtx, span := telemetry.StepSpan(ctx, tracer, c.runID, c.cfg.ScenarioSeed, target)
		err := c.step(spanCtx, tracer, target)
		telemetry.End(span, err)
		if err != nil {
			return err
		}
		c.virtualTimeUs = target
	}
	return nil
}

// step advances every node from virtual_time_us to target in insertion
// order, routes everything they produce through the network model, and
// buffers delivery-ready events for the next step.
func (c *Coordinator) step(ctx context.Context, tracer trace.Tracer, target int64) error {
	produced := make(map[string][]event.Event, len(c.cfg.Nodes))

	for _, n := range c.cfg.Nodes {
		nodePending := c.pending[n.NodeID]
		delete(c.pending, n.NodeID)

		spanCtx, span := telemetry.AdapterSpan(ctx, tracer, n.NodeID, "advance")
		events, err := c.advanceOne(spanCtx, n, target, nodePending)
		telemetry.End(span, err)
		if err != nil {
			return err
		}
		produced[n.NodeID] = events
		c.sent[n.NodeID] += len(events)
	}

	var routedNow []event.Event
	for _, n := range c.cfg.Nodes {
		for _, e := range produced[n.NodeID] {
			routedNow = append(routedNow, c.cfg.NetworkModel.RouteMessage(e)...)
		}
	}
	routedNow = append(routedNow, c.cfg.NetworkModel.AdvanceTo(target)...)

	c.distribute(routedNow)
	return nil
}

func (c *Coordinator) advanceOne(ctx context.Context, n NodeSpec, target int64, pending []event.Event) ([]event.Event, error) {
	if err := n.Adapter.SendAdvance(ctx, target, pending); err != nil {
		return nil, fmt.Errorf("advance node %q to %d: %w", n.NodeID, target, err)
	}
	events, err := n.Adapter.WaitDone(ctx)
	if err != nil {
		return nil, fmt.Errorf("wait_done node %q: %w", n.NodeID, err)
	}
	return events, nil
}

// distribute stable-sorts routed events by (dst, src, time_us) — the
// determinism boundary of spec.md §4.6 — then appends each to its
// destination's pending queue. Events with no destination were already
// counted as sent at production time; the core persists nothing, so they
// have nowhere further to go (spec.md §6).
func (c *Coordinator) distribute(events []event.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Dst != events[j].Dst {
			return events[i].Dst < events[j].Dst
		}
		if events[i].Src != events[j].Src {
			return events[i].Src < events[j].Src
		}
		return events[i].TimeUs < events[j].TimeUs
	})
	for _, e := range events {
		if !e.HasDst() {
			continue
		}
		c.pending[e.Dst] = append(c.pending[e.Dst], e)
		c.recv[e.Dst]++
	}
}

// shutdownAll unconditionally sends SendShutdown to every adapter,
// regardless of connect/init success, logging and swallowing any error
// (spec.md §7): the run's terminal error is never overwritten by a
// shutdown-time failure.
func (c *Coordinator) shutdownAll(ctx context.Context, tracer trace.Tracer) {
	for _, n := range c.cfg.Nodes {
		spanCtx, span := telemetry.AdapterSpan(ctx, tracer, n.NodeID, "send_shutdown")
		err := n.Adapter.SendShutdown(spanCtx)
		telemetry.End(span, err)
		if err != nil {
			c.log.Warn("shutdown error, ignoring", "node", n.NodeID, "err", err)
		}
	}
}
