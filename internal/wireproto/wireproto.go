// Package wireproto implements the line-delimited JSON protocol shared by
// the socket node transport (spec.md §4.2) and both halves of the
// container protocol (spec.md §4.5, §4.7): one JSON object per line,
// UTF-8, LF-terminated.
package wireproto

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rekrevs/xedgesim/internal/event"
)

// Command kinds sent coordinator (or container protocol client) -> node.
const (
	CmdInit     = "INIT"
	CmdAdvance  = "ADVANCE"
	CmdShutdown = "SHUTDOWN"
)

// Ack kinds sent node -> coordinator.
const (
	AckReady = "READY"
	AckDone  = "DONE"
)

// Command is the coordinator->node envelope for INIT/ADVANCE/SHUTDOWN.
type Command struct {
	Cmd      string         `json:"cmd"`
	Seed     uint64         `json:"seed,omitempty"`
	Config   map[string]any `json:"config,omitempty"`
	TargetUs int64          `json:"target_us,omitempty"`
	Events   []event.Event  `json:"events,omitempty"`
}

// Ack is the node->coordinator envelope for READY/DONE.
type Ack struct {
	Ack    string        `json:"ack"`
	TimeUs int64         `json:"time_us,omitempty"`
	Events []event.Event `json:"events,omitempty"`
}

// Writer serializes one JSON value per line and flushes immediately: the
// container protocol and socket transport both require a flush after every
// message (buffered-but-unflushed writes deadlock the peer).
type Writer struct {
	w *bufio.Writer
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: bufio.NewWriter(w)} }

func (w *Writer) WriteLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal wire message: %w", err)
	}
	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("write wire message: %w", err)
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write wire message: %w", err)
	}
	return w.w.Flush()
}

// Reader reads one JSON line at a time from an underlying stream.
type Reader struct {
	s *bufio.Scanner
}

func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Reader{s: s}
}

// ReadLine reads exactly one line and unmarshals it into v. It returns
// io.EOF if the stream ended without another line.
func (r *Reader) ReadLine(v any) error {
	if !r.s.Scan() {
		if err := r.s.Err(); err != nil {
			return fmt.Errorf("read wire message: %w", err)
		}
		return io.EOF
	}
	if err := json.Unmarshal(r.s.Bytes(), v); err != nil {
		return fmt.Errorf("decode wire message %q: %w", r.s.Text(), err)
	}
	return nil
}
