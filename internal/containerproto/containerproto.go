// Package containerproto is the service-side half of the container
// protocol (spec.md §4.7): it runs inside a container as the node's
// entrypoint, reading commands from stdin and writing acks to stdout while
// delegating the actual node behavior to caller-supplied callbacks. This is
// the only package a container image's author links against directly.
package containerproto

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"

	"github.com/rekrevs/xedgesim/internal/event"
	"github.com/rekrevs/xedgesim/internal/wireproto"
)

// Callbacks is the contract a container's author implements. None of these
// may block on wall-clock time or produce events outside [currentUs,
// targetUs]; the coordinator enforces neither at this layer, so violations
// surface later as determinism or ordering failures at the coordinator.
type Callbacks struct {
	// Init runs once, after the RNG has been seeded, before the first
	// READY is emitted.
	Init func(ctx context.Context, config map[string]any) error
	// Service advances the node from currentUs to targetUs, consuming
	// pending and producing any events this quantum emits.
	Service func(ctx context.Context, currentUs, targetUs int64, pending []event.Event) ([]event.Event, error)
	// Shutdown runs once, before the process exits. May be nil.
	Shutdown func(ctx context.Context)
}

// Server drives Callbacks from a line-delimited command stream. Rand is
// exposed to callbacks that want a deterministic RNG seeded from the INIT
// message's seed: callers reach it through Server.Rand after Run processes
// INIT.
type Server struct {
	cb  Callbacks
	log *slog.Logger

	r    *wireproto.Reader
	w    *wireproto.Writer
	Rand *rand.Rand

	currentUs int64
}

// New builds a Server reading commands from in and writing acks to out.
// Diagnostics go to errOut (stderr in normal container use); out must be
// reserved exclusively for protocol messages (spec.md §6).
func New(cb Callbacks, in io.Reader, out io.Writer, errOut io.Writer) *Server {
	return &Server{
		cb:  cb,
		log: slog.New(slog.NewTextHandler(errOut, nil)),
		r:   wireproto.NewReader(in),
		w:   wireproto.NewWriter(out),
	}
}

// Run processes commands until SHUTDOWN, stdin closes, or a command or
// callback fails, returning the error that ended the loop (nil on a clean
// SHUTDOWN or EOF). ctx is passed to the callbacks; Run itself does not
// watch it, so cancelling ctx does not interrupt a pending read.
func (s *Server) Run(ctx context.Context) error {
	for {
		var cmd wireproto.Command
		if err := s.r.ReadLine(&cmd); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read command: %w", err)
		}

		switch cmd.Cmd {
		case wireproto.CmdInit:
			if err := s.handleInit(ctx, cmd); err != nil {
				return err
			}
		case wireproto.CmdAdvance:
			if err := s.handleAdvance(ctx, cmd); err != nil {
				return err
			}
		case wireproto.CmdShutdown:
			if s.cb.Shutdown != nil {
				s.cb.Shutdown(ctx)
			}
			return nil
		default:
			return fmt.Errorf("unknown command %q", cmd.Cmd)
		}
	}
}

func (s *Server) handleInit(ctx context.Context, cmd wireproto.Command) error {
	s.Rand = rand.New(rand.NewSource(int64(cmd.Seed)))
	if s.cb.Init != nil {
		if err := s.cb.Init(ctx, cmd.Config); err != nil {
			return fmt.Errorf("init callback: %w", err)
		}
	}
	s.log.Info("node initialized", "seed", cmd.Seed)
	return s.w.WriteLine(wireproto.Ack{Ack: wireproto.AckReady})
}

func (s *Server) handleAdvance(ctx context.Context, cmd wireproto.Command) error {
	var produced []event.Event
	if s.cb.Service != nil {
		var err error
		produced, err = s.cb.Service(ctx, s.currentUs, cmd.TargetUs, cmd.Events)
		if err != nil {
			return fmt.Errorf("service callback: %w", err)
		}
	}
	s.currentUs = cmd.TargetUs
	return s.w.WriteLine(wireproto.Ack{Ack: wireproto.AckDone, TimeUs: s.currentUs, Events: produced})
}
