package simerr

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorsIsMatchesSentinelThroughUnwrap(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"connection", &ConnectionError{Node: "n", Cause: fmt.Errorf("dial refused")}, ErrConnection},
		{"protocol", &ProtocolError{Node: "n", Detail: "bad ack"}, ErrProtocol},
		{"timeout", &TimeoutError{Node: "n", Op: "wait_done", Budget: time.Second}, ErrTimeout},
		{"connection lost", &ConnectionLostError{Node: "n", Cause: fmt.Errorf("eof")}, ErrConnectionLost},
		{"invalid state", &InvalidStateError{Detail: "advance before init"}, ErrInvalidState},
		{"resource", &ResourceError{Resource: "container", Cause: fmt.Errorf("not found")}, ErrResource},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if !errors.Is(c.err, c.want) {
				t.Errorf("expected errors.Is(%v, %v) to hold", c.err, c.want)
			}
			if c.err.Error() == "" {
				t.Errorf("expected non-empty Error() message")
			}
		})
	}
}

func TestWrappedErrorsAreDistinguishableFromEachOther(t *testing.T) {
	err := &TimeoutError{Node: "n", Op: "send_init", Budget: time.Second}
	if errors.Is(err, ErrProtocol) {
		t.Fatal("TimeoutError must not match ErrProtocol")
	}
}
