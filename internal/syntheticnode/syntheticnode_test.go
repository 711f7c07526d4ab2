package syntheticnode

import (
	"context"
	"testing"

	"github.com/rekrevs/xedgesim/internal/adapter"
)

func TestAdvanceEmitsOneEventPerInterval(t *testing.T) {
	n := New(Config{IntervalUs: 1000, Dst: "sink", Kind: "tick"})
	if err := n.Init(context.Background(), adapter.InitConfig{}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	got, err := n.Advance(context.Background(), 3500, nil)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	want := []int64{1000, 2000, 3000}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d: %+v", len(want), len(got), got)
	}
	for i, e := range got {
		if e.TimeUs != want[i] {
			t.Errorf("event %d: expected time_us %d, got %d", i, want[i], e.TimeUs)
		}
		if e.Dst != "sink" || e.Kind != "tick" {
			t.Errorf("event %d: unexpected dst/kind %q/%q", i, e.Dst, e.Kind)
		}
	}
	if n.CurrentTimeUs() != 3500 {
		t.Fatalf("expected current_us 3500, got %d", n.CurrentTimeUs())
	}

	more, err := n.Advance(context.Background(), 4500, nil)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if len(more) != 1 || more[0].TimeUs != 4000 {
		t.Fatalf("expected single event at 4000, got %+v", more)
	}
}

func TestInitOverridesConfigFromParams(t *testing.T) {
	n := New(Config{IntervalUs: 1000, Dst: "a", Kind: "x"})
	err := n.Init(context.Background(), adapter.InitConfig{Params: map[string]any{
		"interval_us": float64(500),
		"dst":         "b",
		"kind":        "y",
	}})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	got, err := n.Advance(context.Background(), 1000, nil)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events at interval 500, got %d: %+v", len(got), got)
	}
	if got[0].Dst != "b" || got[0].Kind != "y" {
		t.Fatalf("expected overridden dst/kind, got %q/%q", got[0].Dst, got[0].Kind)
	}
}
