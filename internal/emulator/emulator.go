// Package emulator drives an external instruction-level emulator subprocess
// that speaks a text "monitor" protocol over TCP, implementing
// internal/adapter/inprocess.Node so it can be wrapped by an
// InProcessNodeAdapter (spec.md §4.4).
package emulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/rekrevs/xedgesim/internal/adapter"
	"github.com/rekrevs/xedgesim/internal/adapter/inprocess"
	"github.com/rekrevs/xedgesim/internal/event"
	"github.com/rekrevs/xedgesim/internal/simerr"
)

// Node manages one emulator subprocess, its monitor socket, and its serial
// output file.
type Node struct {
	cfg Config
	log *slog.Logger

	mu           sync.Mutex
	cmd          *exec.Cmd
	mon          *monitorSession
	serialOffset int64
	currentUs    int64
}

func New(cfg Config) *Node {
	cfg.setDefaults()
	return &Node{cfg: cfg, log: slog.With("component", "emulator", "node", cfg.NodeID)}
}

var _ inprocess.Node = (*Node)(nil)

// Connect launches the emulator subprocess running the startup script and
// poll-connects its monitor socket, considering the node ready once the
// prompt is observed. Idempotent.
func (n *Node) Connect(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cmd != nil {
		return nil
	}

	if err := os.MkdirAll(n.cfg.WorkingDir, 0o755); err != nil {
		return &simerr.ResourceError{Resource: n.cfg.WorkingDir, Cause: err}
	}
	scriptPath, err := writeStartupScript(n.cfg)
	if err != nil {
		return &simerr.ResourceError{Resource: scriptPath, Cause: err}
	}

	args := append([]string{
		"--port", strconv.Itoa(n.cfg.MonitorPort),
		"--disable-gui",
		"-e", "include @" + scriptPath,
	}, n.cfg.EmulatorArgs...)

	cmd := exec.CommandContext(ctx, n.cfg.EmulatorBinary, args...)
	cmd.Dir = n.cfg.WorkingDir
	cmd.Stdout = newLogWriter(n.log, "stdout")
	cmd.Stderr = newLogWriter(n.log, "stderr")
	if err := cmd.Start(); err != nil {
		return &simerr.ConnectionError{Node: n.cfg.NodeID, Cause: fmt.Errorf("start emulator: %w", err)}
	}
	n.cmd = cmd

	mon, err := dialMonitor(ctx, n.cfg.monitorAddress(), n.cfg.ConnectRetries, n.cfg.ConnectBackoffMin, n.cfg.ConnectBackoffMax)
	if err != nil {
		_ = cmd.Process.Kill()
		n.cmd = nil
		return &simerr.ConnectionError{Node: n.cfg.NodeID, Cause: err}
	}

	if _, err := mon.readUntilPrompt(n.cfg.StartupTimeout); err != nil {
		_ = mon.close()
		_ = cmd.Process.Kill()
		n.cmd = nil
		return &simerr.TimeoutError{Node: n.cfg.NodeID, Op: "connect (prompt)", Budget: n.cfg.StartupTimeout}
	}
	n.mon = mon
	n.log.Info("emulator ready", "monitor_address", n.cfg.monitorAddress())
	return nil
}

// Init has nothing further to negotiate: the startup script already loaded
// the platform and firmware during Connect. Init only validates that the
// node reached a ready monitor session.
func (n *Node) Init(ctx context.Context, cfg adapter.InitConfig) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.mon == nil {
		return &simerr.InvalidStateError{Detail: "emulator: send_init before connect"}
	}
	return nil
}

// Advance injects any pending events, runs the emulator forward by
// targetTimeUs-currentUs, and returns events parsed from new serial output.
func (n *Node) Advance(ctx context.Context, targetTimeUs int64, pending []event.Event) ([]event.Event, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.mon == nil {
		return nil, &simerr.InvalidStateError{Detail: "emulator: advance before connect"}
	}
	deltaUs := targetTimeUs - n.currentUs
	if deltaUs < 0 {
		return nil, &simerr.InvalidStateError{Detail: fmt.Sprintf("emulator: target_us %d precedes current_us %d", targetTimeUs, n.currentUs)}
	}

	for _, e := range pending {
		if err := injectEvent(n.mon, n.cfg.SerialUartName, e, n.cfg.AdvanceTimeout); err != nil {
			return nil, n.classifyMonitorErr(err, "advance (inject)", n.cfg.AdvanceTimeout)
		}
	}

	if deltaUs > 0 {
		if err := n.mon.sendCommand(fmt.Sprintf(`emulation RunFor "%s"`, microsToSeconds(deltaUs))); err != nil {
			return nil, n.classifyMonitorErr(err, "advance (run_for)", n.cfg.AdvanceTimeout)
		}
		if _, err := n.mon.readUntilPrompt(n.cfg.AdvanceTimeout); err != nil {
			return nil, n.classifyMonitorErr(err, "advance (prompt)", n.cfg.AdvanceTimeout)
		}
	}

	events, newOffset, err := readNewSerialEvents(n.log, n.cfg.SerialOutputPath(), n.serialOffset)
	if err != nil {
		return nil, &simerr.ProtocolError{Node: n.cfg.NodeID, Detail: err.Error()}
	}
	n.serialOffset = newOffset
	n.currentUs = targetTimeUs
	return events, nil
}

// Shutdown sends the emulator's quit command, closes the monitor socket,
// and waits up to ShutdownGrace for the process to exit before
// force-terminating it. The serial output file is left on disk for
// post-mortem inspection. Idempotent.
func (n *Node) Shutdown(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cmd == nil {
		return nil
	}

	if n.mon != nil {
		_ = n.mon.sendCommand("quit")
		_ = n.mon.close()
		n.mon = nil
	}

	done := make(chan error, 1)
	go func() { done <- n.cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(n.cfg.ShutdownGrace):
		_ = n.cmd.Process.Kill()
		<-done
	}
	n.cmd = nil
	return nil
}

func (n *Node) CurrentTimeUs() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.currentUs
}

// classifyMonitorErr distinguishes a monitor prompt that never arrived
// (deadline exceeded, emulator still alive but stuck) from a monitor
// connection that is actually gone. A timeout leaves the subprocess
// running and is force-killed here, matching Connect's own prompt-wait
// behavior, so a node that stops responding on Advance cannot linger as a
// zombie process.
func (n *Node) classifyMonitorErr(err error, op string, budget time.Duration) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		if n.cmd != nil {
			_ = n.cmd.Process.Kill()
			n.cmd = nil
		}
		if n.mon != nil {
			_ = n.mon.close()
			n.mon = nil
		}
		return &simerr.TimeoutError{Node: n.cfg.NodeID, Op: op, Budget: budget}
	}
	return &simerr.ConnectionLostError{Node: n.cfg.NodeID, Cause: err}
}

// microsToSeconds converts a virtual-time microsecond delta into the
// fractional-seconds duration string the emulator's RunFor command expects.
func microsToSeconds(deltaUs int64) string {
	return fmt.Sprintf("%d.%06d", deltaUs/1_000_000, deltaUs%1_000_000)
}
