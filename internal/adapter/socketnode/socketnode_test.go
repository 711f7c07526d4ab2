package socketnode

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rekrevs/xedgesim/internal/adapter"
	"github.com/rekrevs/xedgesim/internal/event"
	"github.com/rekrevs/xedgesim/internal/wireproto"
)

// fakeNodeServer accepts one connection and replies READY to INIT, DONE
// (echoing one fixed event) to ADVANCE.
func fakeNodeServer(t *testing.T) (addr string, done chan struct{}) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done = make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := wireproto.NewReader(conn)
		w := wireproto.NewWriter(conn)
		for {
			var cmd wireproto.Command
			if err := r.ReadLine(&cmd); err != nil {
				return
			}
			switch cmd.Cmd {
			case wireproto.CmdInit:
				_ = w.WriteLine(wireproto.Ack{Ack: wireproto.AckReady})
			case wireproto.CmdAdvance:
				_ = w.WriteLine(wireproto.Ack{
					Ack:    wireproto.AckDone,
					TimeUs: cmd.TargetUs,
					Events: []event.Event{{TimeUs: cmd.TargetUs, Kind: "ack", Dst: "other"}},
				})
			case wireproto.CmdShutdown:
				return
			}
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String(), done
}

func TestFullLifecycleOverTCP(t *testing.T) {
	addr, serverDone := fakeNodeServer(t)
	a := New(Config{NodeID: "n", Address: addr})
	ctx := context.Background()

	if err := a.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := a.SendInit(ctx, adapter.InitConfig{Seed: 1}); err != nil {
		t.Fatalf("SendInit: %v", err)
	}
	if err := a.SendAdvance(ctx, 1000, nil); err != nil {
		t.Fatalf("SendAdvance: %v", err)
	}
	events, err := a.WaitDone(ctx)
	if err != nil {
		t.Fatalf("WaitDone: %v", err)
	}
	if len(events) != 1 || events[0].TimeUs != 1000 || events[0].Src != "n" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if a.CurrentTimeUs() != 1000 {
		t.Fatalf("expected current_us 1000, got %d", a.CurrentTimeUs())
	}

	if err := a.SendShutdown(ctx); err != nil {
		t.Fatalf("SendShutdown: %v", err)
	}
	select {
	case <-serverDone:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not observe shutdown")
	}
}

func TestSendInitBeforeConnectFails(t *testing.T) {
	a := New(Config{NodeID: "n", Address: "127.0.0.1:1"})
	if err := a.SendInit(context.Background(), adapter.InitConfig{}); err == nil {
		t.Fatal("expected error sending init before connect")
	}
}

func TestSendAdvanceRejectsRegressingTarget(t *testing.T) {
	addr, _ := fakeNodeServer(t)
	a := New(Config{NodeID: "n", Address: addr})
	ctx := context.Background()
	if err := a.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := a.SendInit(ctx, adapter.InitConfig{}); err != nil {
		t.Fatalf("SendInit: %v", err)
	}
	if err := a.SendAdvance(ctx, 1000, nil); err != nil {
		t.Fatalf("SendAdvance: %v", err)
	}
	if _, err := a.WaitDone(ctx); err != nil {
		t.Fatalf("WaitDone: %v", err)
	}
	if err := a.SendAdvance(ctx, 500, nil); err == nil {
		t.Fatal("expected error for regressing target_us")
	}
}

func TestConnectFailsAfterRetriesExhausted(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close() // nothing listens on addr now

	a := New(Config{
		NodeID:            "n",
		Address:           addr,
		ConnectRetries:    2,
		ConnectBackoffMin: time.Millisecond,
		ConnectBackoffMax: 2 * time.Millisecond,
	})
	if err := a.Connect(context.Background()); err == nil {
		t.Fatal("expected connect to fail against a closed listener")
	}
}
