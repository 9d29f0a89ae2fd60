package core

import (
	"context"

	"github.com/dkeye/meshcall/internal/domain"
)

// SignalChannel abstracts the room-scoped signaling transport.
// Owned by the adapter; the adapter must Close() it.
type SignalChannel interface {
	// Connect opens the transport and announces local in room. The returned
	// stream is infinite until Close and is not restartable. Events for one
	// sender arrive in send order; no ordering holds across senders.
	Connect(ctx context.Context, room domain.RoomID, local domain.Participant) (<-chan Event, error)

	// Send addresses one transport session. Fire-and-forget: network-level
	// delivery failure comes back as an EventTransportError on the stream,
	// never as an error here. After Close it returns ErrChannelClosed.
	Send(target domain.TransportSessionID, ev Event) error

	// Broadcast sends to every other participant in the room.
	Broadcast(ev Event) error

	// Close releases the channel and terminates the stream. Idempotent.
	Close()
}
