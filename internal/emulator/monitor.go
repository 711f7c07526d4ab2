package emulator

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"
)

// promptPattern matches both prompt forms the emulator monitor emits: the
// generic "(monitor)" prompt before any machine exists, and the
// machine-named prompt ("(machine-name)") afterwards. Accepting only the
// generic form deadlocks the first advance after startup (spec.md §4.4).
var promptPattern = regexp.MustCompile(`^\([^)]*\)\s*$`)

// monitorSession is a thin line-oriented client for the emulator's text
// monitor protocol: one command per line in, read until the next prompt.
type monitorSession struct {
	conn net.Conn
	r    *bufio.Reader
}

// dialMonitor poll-connects the monitor socket with retries, matching the
// connect-retry shape used by the socket node transport.
func dialMonitor(ctx context.Context, address string, retries int, backoffMin, backoffMax time.Duration) (*monitorSession, error) {
	backoff := backoffMin
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > backoffMax {
				backoff = backoffMax
			}
		}
		d := net.Dialer{}
		conn, err := d.DialContext(ctx, "tcp", address)
		if err == nil {
			return &monitorSession{conn: conn, r: bufio.NewReader(conn)}, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("dial emulator monitor at %s: %w", address, lastErr)
}

// sendCommand writes one newline-terminated command line.
func (m *monitorSession) sendCommand(cmd string) error {
	_, err := m.conn.Write([]byte(cmd + "\n"))
	return err
}

// readUntilPrompt reads lines until one matches either prompt form,
// returning every line read (excluding the prompt line itself) so firmware
// log output interleaved with monitor replies can be inspected if needed.
func (m *monitorSession) readUntilPrompt(timeout time.Duration) ([]string, error) {
	_ = m.conn.SetReadDeadline(time.Now().Add(timeout))
	defer m.conn.SetReadDeadline(time.Time{})

	var lines []string
	for {
		line, err := m.r.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed != "" {
			if promptPattern.MatchString(strings.TrimSpace(trimmed)) {
				return lines, nil
			}
			lines = append(lines, trimmed)
		}
		if err != nil {
			return lines, err
		}
	}
}

func (m *monitorSession) close() error {
	return m.conn.Close()
}
