package dockernode

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	dockercontainer "github.com/docker/docker/api/types/container"

	"github.com/rekrevs/xedgesim/internal/adapter"
)

// fakeExecClient hands back a net.Pipe-backed HijackedResponse so tests can
// drive both ends of the exec stream without a real Docker daemon.
type fakeExecClient struct {
	peer net.Conn // the test's end of the pipe
}

func newFakeExecClient() (*fakeExecClient, net.Conn) {
	serverSide, clientSide := net.Pipe()
	return &fakeExecClient{peer: clientSide}, serverSide
}

func (f *fakeExecClient) ContainerExecCreate(ctx context.Context, container string, config dockercontainer.ExecOptions) (dockertypes.IDResponse, error) {
	return dockertypes.IDResponse{ID: "exec-1"}, nil
}

func (f *fakeExecClient) ContainerExecAttach(ctx context.Context, execID string, config dockercontainer.ExecAttachOptions) (dockertypes.HijackedResponse, error) {
	return dockertypes.HijackedResponse{Conn: f.peer, Reader: bufio.NewReader(f.peer)}, nil
}

// writeStdoutFrame wraps payload in the docker stdcopy stdout frame format
// (1-byte stream type, 3 reserved bytes, 4-byte big-endian length, payload).
func writeStdoutFrame(w io.Writer, payload []byte) error {
	header := make([]byte, 8)
	header[0] = 1 // stdout
	binary.BigEndian.PutUint32(header[4:], uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func TestSendInitWaitsForReadyAck(t *testing.T) {
	client, serverSide := newFakeExecClient()
	defer serverSide.Close()

	a := New(Config{NodeID: "node0", ContainerName: "c1", Cmd: []string{"run"}}, client)
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Drain the INIT command the adapter writes, then answer with READY.
	go func() {
		r := bufio.NewReader(serverSide)
		if _, err := r.ReadString('\n'); err != nil {
			return
		}
		_ = writeStdoutFrame(serverSide, []byte(`{"ack":"READY"}`+"\n"))
	}()

	if err := a.SendInit(context.Background(), adapter.InitConfig{Seed: 1}); err != nil {
		t.Fatalf("SendInit: %v", err)
	}
}

func TestWaitDoneReturnsEventsAndTracksCurrentTime(t *testing.T) {
	client, serverSide := newFakeExecClient()
	defer serverSide.Close()

	a := New(Config{NodeID: "node0", ContainerName: "c1"}, client)
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	go func() {
		r := bufio.NewReader(serverSide)
		if _, err := r.ReadString('\n'); err != nil {
			return
		}
		_ = writeStdoutFrame(serverSide, []byte(`{"ack":"DONE","time_us":5000,"events":[{"time_us":4000,"kind":"data","src":"node0","dst":null,"payload":{},"size_bytes":0}]}`+"\n"))
	}()

	if err := a.SendAdvance(context.Background(), 5000, nil); err != nil {
		t.Fatalf("SendAdvance: %v", err)
	}
	events, err := a.WaitDone(context.Background())
	if err != nil {
		t.Fatalf("WaitDone: %v", err)
	}
	if len(events) != 1 || events[0].TimeUs != 4000 {
		t.Fatalf("unexpected events: %+v", events)
	}
	if a.CurrentTimeUs() != 5000 {
		t.Fatalf("expected current_us 5000, got %d", a.CurrentTimeUs())
	}
}

func TestWaitDoneTimesOutWithoutAck(t *testing.T) {
	client, serverSide := newFakeExecClient()
	defer serverSide.Close()

	a := New(Config{NodeID: "node0", ContainerName: "c1", AdvanceTimeout: 50 * time.Millisecond}, client)
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	// net.Pipe is unbuffered: drain the ADVANCE command so SendAdvance
	// returns, but never answer it.
	go func() { _, _ = io.Copy(io.Discard, serverSide) }()
	if err := a.SendAdvance(context.Background(), 1000, nil); err != nil {
		t.Fatalf("SendAdvance: %v", err)
	}

	if _, err := a.WaitDone(context.Background()); err == nil {
		t.Fatal("expected a timeout error when no DONE ack arrives")
	}
}

func TestSendShutdownIsIdempotent(t *testing.T) {
	a := New(Config{NodeID: "node0", ContainerName: "c1"}, &fakeExecClient{})
	if err := a.SendShutdown(context.Background()); err != nil {
		t.Fatalf("SendShutdown on an unconnected adapter should be a no-op, got %v", err)
	}
	if err := a.SendShutdown(context.Background()); err != nil {
		t.Fatalf("second SendShutdown should also be a no-op, got %v", err)
	}
}
