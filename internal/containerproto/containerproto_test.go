package containerproto

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rekrevs/xedgesim/internal/event"
)

func TestRunEchoesCallbackEventsAndShutsDownCleanly(t *testing.T) {
	var initSeenConfig map[string]any
	var shutdownCalled bool

	cb := Callbacks{
		Init: func(ctx context.Context, config map[string]any) error {
			initSeenConfig = config
			return nil
		},
		Service: func(ctx context.Context, currentUs, targetUs int64, pending []event.Event) ([]event.Event, error) {
			return []event.Event{{TimeUs: targetUs, Kind: "ping", Src: "svc"}}, nil
		},
		Shutdown: func(ctx context.Context) {
			shutdownCalled = true
		},
	}

	in := strings.NewReader(
		`{"cmd":"INIT","seed":42,"config":{"name":"node0"}}` + "\n" +
			`{"cmd":"ADVANCE","target_us":1000}` + "\n" +
			`{"cmd":"SHUTDOWN"}` + "\n",
	)
	var out bytes.Buffer
	var errOut bytes.Buffer

	s := New(cb, in, &out, &errOut)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if initSeenConfig["name"] != "node0" {
		t.Fatalf("expected init callback to see config, got %+v", initSeenConfig)
	}
	if !shutdownCalled {
		t.Fatal("expected shutdown callback to run")
	}
	if s.Rand == nil {
		t.Fatal("expected RNG to be seeded after INIT")
	}

	scanner := bufio.NewScanner(&out)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("expected exactly READY and DONE on stdout, got %v", lines)
	}
	if !strings.Contains(lines[0], `"ack":"READY"`) {
		t.Fatalf("expected first line to be READY, got %q", lines[0])
	}
	if !strings.Contains(lines[1], `"ack":"DONE"`) || !strings.Contains(lines[1], `"ping"`) {
		t.Fatalf("expected DONE with the produced event, got %q", lines[1])
	}
}

func TestRunReturnsNilOnEOFWithoutShutdown(t *testing.T) {
	in := strings.NewReader(`{"cmd":"INIT","seed":1}` + "\n")
	var out, errOut bytes.Buffer

	s := New(Callbacks{}, in, &out, &errOut)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run should treat EOF as a clean end, got %v", err)
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	in := strings.NewReader(`{"cmd":"BOGUS"}` + "\n")
	var out, errOut bytes.Buffer

	s := New(Callbacks{}, in, &out, &errOut)
	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected an error for an unrecognized command")
	}
}
