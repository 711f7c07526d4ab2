package emulator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// newConnectedNode builds a Node wired directly to a fakeMonitor, skipping
// Connect's subprocess launch so Advance/Shutdown can be exercised without a
// real emulator binary.
func newConnectedNode(t *testing.T, fm *fakeMonitor, workingDir string) *Node {
	t.Helper()
	cfg := Config{NodeID: "node0", WorkingDir: workingDir}
	cfg.setDefaults()
	n := New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	mon, err := dialMonitor(ctx, fm.addr(), 5, 10*time.Millisecond, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("dialMonitor: %v", err)
	}
	if _, err := mon.readUntilPrompt(time.Second); err != nil {
		t.Fatalf("initial readUntilPrompt: %v", err)
	}
	n.mon = mon
	return n
}

func TestAdvanceRunsForwardAndParsesSerialOutput(t *testing.T) {
	fm := startFakeMonitor(t, "(node0)")
	defer fm.close()

	dir := t.TempDir()
	n := newConnectedNode(t, fm, dir)

	serialPath := n.cfg.SerialOutputPath()
	content := `{"time_us":1000,"kind":"data","src":"node0","dst":null,"payload":{"v":1},"size_bytes":1}` + "\n"
	if err := os.WriteFile(serialPath, []byte(content), 0o644); err != nil {
		t.Fatalf("seed serial output: %v", err)
	}

	produced, err := n.Advance(context.Background(), 1_000_000, nil)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if len(produced) != 1 || produced[0].TimeUs != 1000 {
		t.Fatalf("expected one parsed serial event, got %+v", produced)
	}
	if n.CurrentTimeUs() != 1_000_000 {
		t.Fatalf("expected current_us to reach target, got %d", n.CurrentTimeUs())
	}
}

func TestAdvanceRejectsTargetBeforeCurrent(t *testing.T) {
	fm := startFakeMonitor(t, "(node0)")
	defer fm.close()
	n := newConnectedNode(t, fm, t.TempDir())
	n.currentUs = 5_000_000

	if _, err := n.Advance(context.Background(), 1_000_000, nil); err == nil {
		t.Fatal("expected an error advancing to a target before current_us")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	n := New(Config{NodeID: "node0", WorkingDir: t.TempDir()})
	if err := n.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown on a never-connected node should be a no-op, got %v", err)
	}
	if err := n.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown should also be a no-op, got %v", err)
	}
}

func TestSerialOutputPathIsPerNode(t *testing.T) {
	cfg := Config{NodeID: "alpha", WorkingDir: "/tmp/xedgesim-run"}
	got := cfg.SerialOutputPath()
	want := filepath.Join("/tmp/xedgesim-run", "alpha.serial.log")
	if got != want {
		t.Fatalf("SerialOutputPath() = %q, want %q", got, want)
	}
}
