package core

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/meshcall/internal/domain"
)

type EventType string

const (
	// Outbound only.
	EventJoinRoom    EventType = "join-room"
	EventToggleAudio EventType = "toggle-audio"
	EventToggleVideo EventType = "toggle-video"

	// Inbound only.
	EventRosterSnapshot    EventType = "room-participants"
	EventParticipantJoined EventType = "user-joined"
	EventParticipantLeft   EventType = "user-left"
	EventAudioToggled      EventType = "participant-audio-toggle"
	EventVideoToggled      EventType = "participant-video-toggle"

	// Both directions.
	EventOffer        EventType = "offer"
	EventAnswer       EventType = "answer"
	EventICECandidate EventType = "ice-candidate"

	// Synthesized locally by the channel when an async send fails.
	EventTransportError EventType = "transport-error"
)

// Event is a tagged signaling variant. Only the fields relevant to Type are
// set; the wire envelope lives in the channel adapter.
type Event struct {
	Type EventType

	// From is the sender's transport session for offer/answer/ice-candidate
	// and the departing session for user-left.
	From domain.TransportSessionID

	Participant  *domain.Participant  // user-joined
	Participants []domain.Participant // room-participants

	SDP       string                   // offer, answer
	Candidate *webrtc.ICECandidateInit // ice-candidate

	ParticipantID domain.ParticipantID // participant-*-toggle
	Enabled       bool                 // toggle events

	Reason string // transport-error
}

// ToggleKind maps a toggle event type to its media kind.
func (e Event) ToggleKind() domain.MediaKind {
	switch e.Type {
	case EventAudioToggled, EventToggleAudio:
		return domain.KindAudio
	default:
		return domain.KindVideo
	}
}
