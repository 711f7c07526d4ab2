package emulator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rekrevs/xedgesim/internal/event"
)

// readNewSerialEvents reads bytes appended to the serial-output file since
// offset, parses complete newline-terminated lines that begin with '{' as
// events, and returns the new offset. A trailing line without its newline
// yet is left unread so a later call picks it up once the emulator
// finishes writing it. Lines that fail to parse are logged and skipped;
// they are not fatal (spec.md §4.4, §7).
func readNewSerialEvents(log *slog.Logger, path string, offset int64) ([]event.Event, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, offset, fmt.Errorf("serial output file missing: %w", err)
		}
		return nil, offset, fmt.Errorf("open serial output file: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek serial output file: %w", err)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, offset, fmt.Errorf("read serial output file: %w", err)
	}

	lastNL := bytes.LastIndexByte(data, '\n')
	if lastNL < 0 {
		return nil, offset, nil
	}
	complete := data[:lastNL+1]
	newOffset := offset + int64(len(complete))

	var events []event.Event
	for _, line := range bytes.Split(bytes.TrimRight(complete, "\n"), []byte("\n")) {
		trimmed := strings.TrimSpace(string(line))
		if trimmed == "" || trimmed[0] != '{' {
			continue
		}
		var e event.Event
		if err := json.Unmarshal([]byte(trimmed), &e); err != nil {
			log.Warn("malformed serial output line, ignoring", "err", err, "line", trimmed)
			continue
		}
		events = append(events, e)
	}
	return events, newOffset, nil
}
