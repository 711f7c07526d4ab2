// Package socketnode implements adapter.NodeAdapter over a line-delimited
// JSON protocol on a single TCP connection to an external node process
// (spec.md §4.2).
package socketnode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/rekrevs/xedgesim/internal/adapter"
	"github.com/rekrevs/xedgesim/internal/event"
	"github.com/rekrevs/xedgesim/internal/simerr"
	"github.com/rekrevs/xedgesim/internal/wireproto"
)

const (
	defaultConnectRetries    = 10
	defaultConnectBackoffMin = 100 * time.Millisecond
	defaultConnectBackoffMax = 2 * time.Second
)

// Config configures an Adapter.
type Config struct {
	NodeID  string
	Address string // host:port of the external node process.

	ConnectRetries    int
	ConnectBackoffMin time.Duration
	ConnectBackoffMax time.Duration
}

// Adapter drives an external node process over TCP, one JSON object per
// line.
type Adapter struct {
	cfg Config
	log *slog.Logger

	mu        sync.Mutex
	conn      net.Conn
	w         *wireproto.Writer
	r         *wireproto.Reader
	initSent  bool
	lastTgt   int64
	currentUs int64
}

var _ adapter.NodeAdapter = (*Adapter)(nil)

func New(cfg Config) *Adapter {
	if cfg.ConnectRetries <= 0 {
		cfg.ConnectRetries = defaultConnectRetries
	}
	if cfg.ConnectBackoffMin <= 0 {
		cfg.ConnectBackoffMin = defaultConnectBackoffMin
	}
	if cfg.ConnectBackoffMax <= 0 {
		cfg.ConnectBackoffMax = defaultConnectBackoffMax
	}
	return &Adapter{cfg: cfg, log: slog.With("component", "socketnode", "node", cfg.NodeID)}
}

// Connect dials the node with exponential backoff (default 10 attempts,
// 100ms to 2s). Idempotent.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		return nil
	}

	backoff := a.cfg.ConnectBackoffMin
	var lastErr error
	for attempt := 0; attempt < a.cfg.ConnectRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return &simerr.ConnectionError{Node: a.cfg.NodeID, Cause: ctx.Err()}
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > a.cfg.ConnectBackoffMax {
				backoff = a.cfg.ConnectBackoffMax
			}
		}

		d := net.Dialer{}
		conn, err := d.DialContext(ctx, "tcp", a.cfg.Address)
		if err == nil {
			a.conn = conn
			a.w = wireproto.NewWriter(conn)
			a.r = wireproto.NewReader(conn)
			a.log.Info("connected", "address", a.cfg.Address, "attempt", attempt+1)
			return nil
		}
		lastErr = err
		a.log.Debug("connect attempt failed", "attempt", attempt+1, "err", err)
	}
	return &simerr.ConnectionError{Node: a.cfg.NodeID, Cause: lastErr}
}

func (a *Adapter) SendInit(ctx context.Context, cfg adapter.InitConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return &simerr.InvalidStateError{Detail: "socketnode: send_init before connect"}
	}

	cmd := wireproto.Command{Cmd: wireproto.CmdInit, Seed: cfg.Seed, Config: cfg.Params}
	if err := a.w.WriteLine(cmd); err != nil {
		return &simerr.ConnectionLostError{Node: a.cfg.NodeID, Cause: err}
	}

	var ack wireproto.Ack
	if err := a.readAck(&ack, adapter.DefaultInitTimeout, "send_init"); err != nil {
		return err
	}
	if ack.Ack != wireproto.AckReady {
		return &simerr.ProtocolError{Node: a.cfg.NodeID, Detail: fmt.Sprintf("expected READY ack, got %q", ack.Ack)}
	}
	a.initSent = true
	return nil
}

func (a *Adapter) SendAdvance(ctx context.Context, targetTimeUs int64, pending []event.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initSent {
		return &simerr.InvalidStateError{Detail: "socketnode: send_advance before send_init"}
	}
	if targetTimeUs < a.lastTgt {
		return &simerr.InvalidStateError{Detail: fmt.Sprintf("socketnode: target_us %d < previous target %d", targetTimeUs, a.lastTgt)}
	}
	a.lastTgt = targetTimeUs

	cmd := wireproto.Command{Cmd: wireproto.CmdAdvance, TargetUs: targetTimeUs, Events: pending}
	if err := a.w.WriteLine(cmd); err != nil {
		return &simerr.ConnectionLostError{Node: a.cfg.NodeID, Cause: err}
	}
	return nil
}

func (a *Adapter) WaitDone(ctx context.Context) ([]event.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var ack wireproto.Ack
	if err := a.readAck(&ack, adapter.DefaultAdvanceTimeout, "wait_done"); err != nil {
		return nil, err
	}
	if ack.Ack != wireproto.AckDone {
		return nil, &simerr.ProtocolError{Node: a.cfg.NodeID, Detail: fmt.Sprintf("expected DONE ack, got %q", ack.Ack)}
	}
	a.currentUs = ack.TimeUs

	events := make([]event.Event, len(ack.Events))
	for i, e := range ack.Events {
		events[i] = e.WithSrc(a.cfg.NodeID)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].TimeUs < events[j].TimeUs })
	return events, nil
}

func (a *Adapter) readAck(ack *wireproto.Ack, timeout time.Duration, op string) error {
	_ = a.conn.SetReadDeadline(time.Now().Add(timeout))
	defer a.conn.SetReadDeadline(time.Time{})

	err := a.r.ReadLine(ack)
	if err == nil {
		return nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &simerr.TimeoutError{Node: a.cfg.NodeID, Op: op, Budget: timeout}
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &simerr.ProtocolError{Node: a.cfg.NodeID, Detail: err.Error()}
	}
	return &simerr.ConnectionLostError{Node: a.cfg.NodeID, Cause: err}
}

func (a *Adapter) SendShutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}

	cmd := wireproto.Command{Cmd: wireproto.CmdShutdown}
	if err := a.w.WriteLine(cmd); err != nil {
		a.log.Debug("shutdown command failed, closing anyway", "err", err)
	}
	_ = a.conn.Close()
	a.conn = nil
	a.w = nil
	a.r = nil
	return nil
}

func (a *Adapter) CurrentTimeUs() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentUs
}
