package core

import (
	"errors"
	"fmt"

	"github.com/dkeye/meshcall/internal/domain"
)

var (
	// ErrDeviceUnavailable means local capture could not be acquired
	// (permission denied or no device). Fatal to the join attempt.
	ErrDeviceUnavailable = errors.New("media device unavailable")

	// ErrAlreadyJoined is returned by Join when called twice without
	// an intervening Leave.
	ErrAlreadyJoined = errors.New("already joined a room")

	// ErrChannelClosed is returned by sends racing with Leave.
	// Callers treat it as a no-op.
	ErrChannelClosed = errors.New("signal channel closed")

	// ErrBackpressure means the outbound send queue is full.
	ErrBackpressure = errors.New("backpressure")
)

// NegotiationError wraps a malformed or unexpected SDP/candidate failure.
// It closes the offending peer session and never crosses the registry boundary.
type NegotiationError struct {
	Session domain.TransportSessionID
	Err     error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation with %s: %v", e.Session, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }
