package domain

// ParticipantID is the stable identity supplied by the auth layer.
// It survives signaling reconnects.
type ParticipantID string

// TransportSessionID is the signaling channel's own connection identity.
// A participant that reconnects comes back under a new transport session.
type TransportSessionID string

type RoomID string

// Participant is the roster entry shape shared with the signaling server.
type Participant struct {
	ID               ParticipantID      `json:"id"`
	TransportSession TransportSessionID `json:"transportSessionId"`
	DisplayName      string             `json:"displayName,omitempty"`
}

type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)
