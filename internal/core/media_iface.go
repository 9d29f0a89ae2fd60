package core

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/meshcall/internal/domain"
)

// MediaDevice is the opaque local capture collaborator.
type MediaDevice interface {
	// Open acquires camera and microphone. Errors wrap ErrDeviceUnavailable.
	Open(ctx context.Context) (MediaStreamHandle, error)
}

// MediaStreamHandle is an acquired local capture. Enable/disable never
// reacquires the device; Close stops every track.
type MediaStreamHandle interface {
	Tracks() []webrtc.TrackLocal
	SetEnabled(kind domain.MediaKind, enabled bool)
	Close() error
}

// RemoteHandle groups the inbound tracks of one remote peer.
type RemoteHandle struct {
	StreamID string
	Tracks   []*webrtc.TrackRemote
}

type ConnectionState string

const (
	StateNew          ConnectionState = "new"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateClosed       ConnectionState = "closed"
)

// PeerConnector builds point-to-point connection objects. A session that
// restarts negotiation gets a fresh connection; a closed one is never reused.
type PeerConnector interface {
	NewConnection(sid domain.TransportSessionID) (MediaConnection, error)
}

// MediaConnection abstracts one peer connection for both negotiation roles.
type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	// Callbacks must be registered before Start.
	Start(ctx context.Context) error
	// Close stops all underlying media resources. Idempotent.
	Close()
	IsClosed() bool

	// CreateAndSetOffer produces the local offer (initiator side).
	CreateAndSetOffer() (*webrtc.SessionDescription, error)
	// ApplyOfferAndCreateAnswer applies a remote offer and produces the
	// local answer (responder side).
	ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// ApplyAnswer completes negotiation on the initiator side.
	ApplyAnswer(answer webrtc.SessionDescription) error
	HasRemoteDescription() bool

	// AddICECandidate applies a remote ICE candidate. The caller buffers
	// candidates until the remote description is set.
	AddICECandidate(webrtc.ICECandidateInit) error
	// AddLocalTrack attaches a local capture track.
	AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)

	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback invoked when a remote track arrives.
	OnTrack(func(track *webrtc.TrackRemote))
	// OnStateChange reports connection-state transitions.
	OnStateChange(func(ConnectionState))
}
