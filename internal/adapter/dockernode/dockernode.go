// Package dockernode implements adapter.NodeAdapter over a long-running
// exec session inside an already-running Docker container: the exec
// process speaks the same line-delimited JSON wire protocol
// (internal/wireproto) as the socket adapter, just over the container
// exec's attached stdio instead of a TCP socket (spec.md §4.5).
package dockernode

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/containerd/errdefs"
	"github.com/google/uuid"

	"github.com/rekrevs/xedgesim/internal/adapter"
	"github.com/rekrevs/xedgesim/internal/event"
	"github.com/rekrevs/xedgesim/internal/simerr"
	"github.com/rekrevs/xedgesim/internal/wireproto"
)

// ExecClient is the slice of the Docker Engine API client this adapter
// needs. github.com/docker/docker/client.Client satisfies it; tests supply
// a fake.
type ExecClient interface {
	ContainerExecCreate(ctx context.Context, container string, config dockercontainer.ExecOptions) (dockertypes.IDResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config dockercontainer.ExecAttachOptions) (dockertypes.HijackedResponse, error)
}

// Config describes which container to exec into and how.
type Config struct {
	NodeID        string
	ContainerName string
	Cmd           []string

	ConnectTimeout time.Duration
	AdvanceTimeout time.Duration
	ShutdownGrace  time.Duration
}

func (c *Config) setDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.AdvanceTimeout <= 0 {
		c.AdvanceTimeout = 30 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 5 * time.Second
	}
}

// Adapter drives one container-exec session as a node. The exec attach
// response multiplexes stdout and stderr (stdcopy framing); a background
// goroutine demuxes it continuously, feeding parsed acks into a channel and
// raw stderr lines into the log.
type Adapter struct {
	cfg       Config
	docker    ExecClient
	log       *slog.Logger
	sessionID string

	mu      sync.Mutex
	started bool
	conn    io.WriteCloser
	w       *wireproto.Writer

	acks      chan wireproto.Ack
	done      chan struct{}
	currentUs int64
}

var _ adapter.NodeAdapter = (*Adapter)(nil)

func New(cfg Config, docker ExecClient) *Adapter {
	cfg.setDefaults()
	return &Adapter{
		cfg:       cfg,
		docker:    docker,
		log:       slog.With("component", "dockernode", "node", cfg.NodeID),
		sessionID: uuid.NewString(),
		acks:      make(chan wireproto.Ack, 8),
		done:      make(chan struct{}),
	}
}

// Connect execs the node process inside the target container with stdin,
// stdout, and stderr all attached, then starts the background demux loop.
// Idempotent.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, a.cfg.ConnectTimeout)
	defer cancel()

	created, err := a.docker.ContainerExecCreate(connectCtx, a.cfg.ContainerName, dockercontainer.ExecOptions{
		Cmd:          a.cfg.Cmd,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return &simerr.ResourceError{Resource: a.cfg.ContainerName, Cause: err}
		}
		return &simerr.ConnectionError{Node: a.cfg.NodeID, Cause: fmt.Errorf("exec create: %w", err)}
	}

	attach, err := a.docker.ContainerExecAttach(connectCtx, created.ID, dockercontainer.ExecAttachOptions{})
	if err != nil {
		return &simerr.ConnectionError{Node: a.cfg.NodeID, Cause: fmt.Errorf("exec attach: %w", err)}
	}

	a.conn = attach.Conn
	a.w = wireproto.NewWriter(attach.Conn)
	go a.demuxLoop(attach.Reader)

	a.started = true
	a.log.Info("docker node connected", "container", a.cfg.ContainerName, "session_id", a.sessionID)
	return nil
}

// demuxLoop splits the attach's multiplexed stream into a plain stdout
// pipe (fed to a wireproto.Reader for acks) and logged stderr lines,
// running until the exec stream closes.
func (a *Adapter) demuxLoop(muxed io.Reader) {
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()

	go func() {
		_, err := stdcopy.StdCopy(stdoutW, stderrW, muxed)
		_ = stdoutW.CloseWithError(err)
		_ = stderrW.CloseWithError(err)
	}()

	go func() {
		scanner := bufio.NewScanner(stderrR)
		scanner.Buffer(make([]byte, 0, 4096), 1<<20)
		for scanner.Scan() {
			a.log.Debug("node stderr", "line", scanner.Text())
		}
	}()

	reader := wireproto.NewReader(stdoutR)
	defer close(a.done)
	for {
		var ack wireproto.Ack
		if err := reader.ReadLine(&ack); err != nil {
			return
		}
		a.acks <- ack
	}
}

func (a *Adapter) SendInit(ctx context.Context, cfg adapter.InitConfig) error {
	cmd := wireproto.Command{Cmd: wireproto.CmdInit, Seed: cfg.Seed, Config: cfg.Params}
	if err := a.w.WriteLine(cmd); err != nil {
		return &simerr.ConnectionLostError{Node: a.cfg.NodeID, Cause: err}
	}

	ack, err := a.waitAck(ctx, a.cfg.ConnectTimeout, "send_init")
	if err != nil {
		return err
	}
	if ack.Ack != wireproto.AckReady {
		return &simerr.ProtocolError{Node: a.cfg.NodeID, Detail: fmt.Sprintf("expected READY ack, got %q", ack.Ack)}
	}
	return nil
}

func (a *Adapter) SendAdvance(ctx context.Context, targetTimeUs int64, pending []event.Event) error {
	cmd := wireproto.Command{Cmd: wireproto.CmdAdvance, TargetUs: targetTimeUs, Events: pending}
	if err := a.w.WriteLine(cmd); err != nil {
		return &simerr.ConnectionLostError{Node: a.cfg.NodeID, Cause: err}
	}
	return nil
}

func (a *Adapter) WaitDone(ctx context.Context) ([]event.Event, error) {
	ack, err := a.waitAck(ctx, a.cfg.AdvanceTimeout, "wait_done")
	if err != nil {
		return nil, err
	}
	if ack.Ack != wireproto.AckDone {
		return nil, &simerr.ProtocolError{Node: a.cfg.NodeID, Detail: fmt.Sprintf("expected DONE ack, got %q", ack.Ack)}
	}
	a.mu.Lock()
	a.currentUs = ack.TimeUs
	a.mu.Unlock()

	events := ack.Events
	for i, e := range events {
		events[i] = e.WithSrc(a.cfg.NodeID)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].TimeUs < events[j].TimeUs })
	return events, nil
}

func (a *Adapter) waitAck(ctx context.Context, timeout time.Duration, op string) (wireproto.Ack, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case ack := <-a.acks:
		return ack, nil
	case <-a.done:
		return wireproto.Ack{}, &simerr.ConnectionLostError{Node: a.cfg.NodeID, Cause: fmt.Errorf("exec stream closed")}
	case <-waitCtx.Done():
		return wireproto.Ack{}, &simerr.TimeoutError{Node: a.cfg.NodeID, Op: op, Budget: timeout}
	}
}

// SendShutdown sends SHUTDOWN and waits ShutdownGrace for the exec stream
// to close on its own before giving up and closing stdin. Idempotent.
func (a *Adapter) SendShutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}

	_ = a.w.WriteLine(wireproto.Command{Cmd: wireproto.CmdShutdown})

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.ShutdownGrace)
	defer cancel()
	select {
	case <-a.done:
	case <-shutdownCtx.Done():
	}
	_ = a.conn.Close()
	a.started = false
	return nil
}

func (a *Adapter) CurrentTimeUs() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentUs
}
