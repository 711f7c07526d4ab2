package coordinator_test

import (
	"context"
	"testing"

	"github.com/rekrevs/xedgesim/internal/adapter"
	"github.com/rekrevs/xedgesim/internal/adapter/inprocess"
	"github.com/rekrevs/xedgesim/internal/coordinator"
	"github.com/rekrevs/xedgesim/internal/event"
	"github.com/rekrevs/xedgesim/internal/netmodel"
	"github.com/rekrevs/xedgesim/internal/simtest"
)

// fakeFirmwareNode stands in for an emulator.Node whose firmware emits one
// sample every 1e6 virtual microseconds, mirroring scenario 5 of the
// coordinator-level testable properties: the values are fixed rather than
// actually RNG-derived, since reproducing the emulator's seeded RNG here
// would just be testing math/rand, not the coordinator wiring.
type fakeFirmwareNode struct {
	values    []float64
	currentUs int64
}

func (f *fakeFirmwareNode) Connect(ctx context.Context) error { return nil }
func (f *fakeFirmwareNode) Init(ctx context.Context, cfg adapter.InitConfig) error {
	return nil
}

func (f *fakeFirmwareNode) Advance(ctx context.Context, targetTimeUs int64, pending []event.Event) ([]event.Event, error) {
	var out []event.Event
	for f.currentUs < targetTimeUs {
		k := f.currentUs / 1_000_000
		sampleUs := k * 1_000_000
		if sampleUs >= f.currentUs && sampleUs < targetTimeUs && int(k) < len(f.values) {
			out = append(out, event.Event{
				TimeUs:  sampleUs,
				Kind:    "sample",
				Dst:     "sink",
				Payload: map[string]any{"v": f.values[k]},
			})
		}
		f.currentUs = targetTimeUs
	}
	return out, nil
}

func (f *fakeFirmwareNode) Shutdown(ctx context.Context) error { return nil }
func (f *fakeFirmwareNode) CurrentTimeUs() int64               { return f.currentUs }

// Scenario 5: emulator-backed node over a zero-latency link to a direct
// sink, seed 12345, ten fixed samples at k*1e6us.
func TestEmulatorBackedNodeOverDirectLink(t *testing.T) {
	values := []float64{28.9, 22.5, 26.4, 22.2, 27.0, 29.2, 28.8, 20.4, 20.5, 23.9}
	firmware := &fakeFirmwareNode{values: values}
	emulatorAdapter := inprocess.New("emulator0", firmware)
	sink := simtest.NewScriptedAdapter("sink", nil)

	// The sample at 9e6us is produced in the quantum ending at 10e6us and
	// reaches the sink one step later, so the run covers one extra quantum.
	cfg := coordinator.Config{
		DurationUs:   11_000_000,
		QuantumUs:    1_000_000,
		ScenarioSeed: 12345,
		NetworkModel: netmodel.NewDirectNetworkModel(),
		Nodes: []coordinator.NodeSpec{
			{NodeID: "emulator0", Adapter: emulatorAdapter},
			{NodeID: "sink", Adapter: sink},
		},
	}
	c, err := coordinator.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	summary := c.Run(context.Background())
	if summary.Err != nil {
		t.Fatalf("Run: %v", summary.Err)
	}

	got := sink.ReceivedEvents()
	if len(got) != len(values) {
		t.Fatalf("expected %d samples, got %d: %+v", len(values), len(got), got)
	}
	for i, e := range got {
		if e.TimeUs != int64(i)*1_000_000 {
			t.Errorf("sample %d: expected time_us %d, got %d", i, int64(i)*1_000_000, e.TimeUs)
		}
		v, _ := e.Payload.(map[string]any)["v"].(float64)
		if v != values[i] {
			t.Errorf("sample %d: expected payload v=%v, got %v", i, values[i], v)
		}
	}
}
