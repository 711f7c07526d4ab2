package emulator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rekrevs/xedgesim/internal/event"
)

// injectEvent serializes e as one firmware-schema JSON line and injects it
// byte-by-byte into the emulator's serial receive buffer via monitor
// commands, terminated with a newline. Per-byte injection is acceptable for
// the current throughput regime (spec.md §4.4); bulk injection is a future
// optimization.
func injectEvent(mon *monitorSession, uart string, e event.Event, timeout time.Duration) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal injected event: %w", err)
	}
	line = append(line, '\n')

	for _, b := range line {
		if err := mon.sendCommand(fmt.Sprintf("%s WriteChar %d", uart, b)); err != nil {
			return fmt.Errorf("inject event byte: %w", err)
		}
		if _, err := mon.readUntilPrompt(timeout); err != nil {
			return fmt.Errorf("inject event byte: %w", err)
		}
	}
	return nil
}
