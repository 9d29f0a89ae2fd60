package ws

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
)

// envelope is the JSON wire shape shared with the signaling server. One
// struct covers every event type; unset fields are omitted.
type envelope struct {
	Type string `json:"type"`

	RoomID        string `json:"roomId,omitempty"`
	ParticipantID string `json:"participantId,omitempty"`
	DisplayName   string `json:"displayName,omitempty"`

	// TransportSessionID carries the self id in join-room and the departing
	// session in user-left.
	TransportSessionID string `json:"transportSessionId,omitempty"`
	Target             string `json:"target,omitempty"`
	From               string `json:"from,omitempty"`

	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
	Enabled   bool                     `json:"enabled"`

	Participant  *domain.Participant  `json:"participant,omitempty"`
	Participants []domain.Participant `json:"participants,omitempty"`
}

func encodeEvent(ev core.Event, target domain.TransportSessionID) ([]byte, error) {
	env := envelope{
		Type:          string(ev.Type),
		Target:        string(target),
		SDP:           ev.SDP,
		Candidate:     ev.Candidate,
		Enabled:       ev.Enabled,
		ParticipantID: string(ev.ParticipantID),
	}
	return json.Marshal(env)
}

func encodeJoin(room domain.RoomID, local domain.Participant) ([]byte, error) {
	env := envelope{
		Type:               string(core.EventJoinRoom),
		RoomID:             string(room),
		ParticipantID:      string(local.ID),
		DisplayName:        local.DisplayName,
		TransportSessionID: string(local.TransportSession),
	}
	return json.Marshal(env)
}

func decodeEvent(data []byte) (core.Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return core.Event{}, fmt.Errorf("bad signal json: %w", err)
	}

	ev := core.Event{
		Type:          core.EventType(env.Type),
		From:          domain.TransportSessionID(env.From),
		SDP:           env.SDP,
		Candidate:     env.Candidate,
		Enabled:       env.Enabled,
		ParticipantID: domain.ParticipantID(env.ParticipantID),
	}

	switch ev.Type {
	case core.EventRosterSnapshot:
		ev.Participants = env.Participants
	case core.EventParticipantJoined:
		if env.Participant != nil {
			ev.Participant = env.Participant
		} else {
			ev.Participant = &domain.Participant{
				ID:               domain.ParticipantID(env.ParticipantID),
				TransportSession: domain.TransportSessionID(env.TransportSessionID),
				DisplayName:      env.DisplayName,
			}
		}
	case core.EventParticipantLeft:
		ev.From = domain.TransportSessionID(env.TransportSessionID)
	case core.EventOffer, core.EventAnswer, core.EventICECandidate,
		core.EventAudioToggled, core.EventVideoToggled:
	default:
		return core.Event{}, fmt.Errorf("unknown signal type %q", env.Type)
	}
	return ev, nil
}
