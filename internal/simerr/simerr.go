// Package simerr carries the fatal error taxonomy of spec.md §7. Every kind
// wraps a package-level sentinel so callers can test with errors.Is without
// caring which adapter produced the error.
package simerr

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrConnection     = errors.New("connection error")
	ErrProtocol       = errors.New("protocol error")
	ErrTimeout        = errors.New("timeout")
	ErrConnectionLost = errors.New("connection lost")
	ErrInvalidState   = errors.New("invalid state")
	ErrResource       = errors.New("resource error")
)

// ConnectionError indicates a node could not be reached within the
// connect-timeout budget.
type ConnectionError struct {
	Node  string
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to node %q: %v", e.Node, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return ErrConnection }

// ProtocolError indicates a malformed message, unexpected ack, or schema
// violation.
type ProtocolError struct {
	Node   string
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error from node %q: %s", e.Node, e.Detail)
}

func (e *ProtocolError) Unwrap() error { return ErrProtocol }

// TimeoutError indicates an expected response did not arrive within the
// bounded window.
type TimeoutError struct {
	Node   string
	Op     string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("node %q: %s timed out after %s", e.Node, e.Op, e.Budget)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// ConnectionLostError indicates an established stream ended or was reset
// mid-run.
type ConnectionLostError struct {
	Node  string
	Cause error
}

func (e *ConnectionLostError) Error() string {
	return fmt.Sprintf("connection to node %q lost: %v", e.Node, e.Cause)
}

func (e *ConnectionLostError) Unwrap() error { return ErrConnectionLost }

// InvalidStateError indicates API misuse, e.g. advance before init.
type InvalidStateError struct {
	Detail string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: %s", e.Detail)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// ResourceError indicates an external resource (port, file, container) was
// unavailable.
type ResourceError struct {
	Resource string
	Cause    error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource %q unavailable: %v", e.Resource, e.Cause)
}

func (e *ResourceError) Unwrap() error { return ErrResource }
