package emulator

import (
	"bytes"
	"log/slog"
	"sync"
)

// lineWriter buffers writes and emits one debug log record per newline.
// The emulator subprocess is chatty on stdout/stderr; none of it is
// protocol-relevant, so it is kept out of the INFO level used for node
// lifecycle events.
type lineWriter struct {
	log    *slog.Logger
	stream string

	mu  sync.Mutex
	buf bytes.Buffer
}

func newLogWriter(log *slog.Logger, stream string) *lineWriter {
	return &lineWriter{log: log, stream: stream}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// incomplete line: put it back for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.log.Debug("emulator output", "stream", w.stream, "line", line[:len(line)-1])
	}
	return len(p), nil
}
