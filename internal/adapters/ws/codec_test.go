package ws

import (
	"encoding/json"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
)

func TestEncodeOffer(t *testing.T) {
	data, err := encodeEvent(core.Event{Type: core.EventOffer, SDP: "v=0..."}, "s1")
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "offer", env["type"])
	assert.Equal(t, "s1", env["target"])
	assert.Equal(t, "v=0...", env["sdp"])
}

func TestEncodeJoinRoom(t *testing.T) {
	local := domain.Participant{ID: "P0", TransportSession: "sid-0", DisplayName: "alice"}
	data, err := encodeJoin("ABCDEFGH", local)
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "join-room", env["type"])
	assert.Equal(t, "ABCDEFGH", env["roomId"])
	assert.Equal(t, "P0", env["participantId"])
	assert.Equal(t, "alice", env["displayName"])
	assert.Equal(t, "sid-0", env["transportSessionId"])
}

func TestDecodeRosterSnapshot(t *testing.T) {
	raw := `{"type":"room-participants","participants":[
		{"id":"P1","transportSessionId":"s1","displayName":"bob"},
		{"id":"P2","transportSessionId":"s2"}]}`

	ev, err := decodeEvent([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, core.EventRosterSnapshot, ev.Type)
	require.Len(t, ev.Participants, 2)
	assert.Equal(t, domain.ParticipantID("P1"), ev.Participants[0].ID)
	assert.Equal(t, domain.TransportSessionID("s2"), ev.Participants[1].TransportSession)
}

func TestDecodeUserJoined(t *testing.T) {
	raw := `{"type":"user-joined","participant":{"id":"P3","transportSessionId":"s3","displayName":"carol"}}`

	ev, err := decodeEvent([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, core.EventParticipantJoined, ev.Type)
	require.NotNil(t, ev.Participant)
	assert.Equal(t, domain.ParticipantID("P3"), ev.Participant.ID)
}

func TestDecodeUserJoinedFlatShape(t *testing.T) {
	raw := `{"type":"user-joined","participantId":"P3","transportSessionId":"s3"}`

	ev, err := decodeEvent([]byte(raw))
	require.NoError(t, err)
	require.NotNil(t, ev.Participant)
	assert.Equal(t, domain.TransportSessionID("s3"), ev.Participant.TransportSession)
}

func TestDecodeUserLeft(t *testing.T) {
	raw := `{"type":"user-left","transportSessionId":"s1"}`

	ev, err := decodeEvent([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, core.EventParticipantLeft, ev.Type)
	assert.Equal(t, domain.TransportSessionID("s1"), ev.From)
}

func TestDecodeCandidate(t *testing.T) {
	raw := `{"type":"ice-candidate","from":"s1","candidate":{"candidate":"candidate:1 1 udp ..."}}`

	ev, err := decodeEvent([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, domain.TransportSessionID("s1"), ev.From)
	require.NotNil(t, ev.Candidate)
	assert.Equal(t, "candidate:1 1 udp ...", ev.Candidate.Candidate)
}

func TestDecodeToggle(t *testing.T) {
	raw := `{"type":"participant-audio-toggle","participantId":"P1","enabled":false}`

	ev, err := decodeEvent([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, core.EventAudioToggled, ev.Type)
	assert.Equal(t, domain.ParticipantID("P1"), ev.ParticipantID)
	assert.False(t, ev.Enabled)
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := decodeEvent([]byte(`{"type":"mystery"}`))
	require.Error(t, err)
}

func TestCandidateRoundTrip(t *testing.T) {
	mid := "0"
	idx := uint16(0)
	ev := core.Event{
		Type:      core.EventICECandidate,
		Candidate: &webrtc.ICECandidateInit{Candidate: "candidate:...", SDPMid: &mid, SDPMLineIndex: &idx},
	}
	data, err := encodeEvent(ev, "s1")
	require.NoError(t, err)

	decoded, err := decodeEvent(data)
	require.NoError(t, err)
	require.NotNil(t, decoded.Candidate)
	assert.Equal(t, "candidate:...", decoded.Candidate.Candidate)
	require.NotNil(t, decoded.Candidate.SDPMid)
	assert.Equal(t, "0", *decoded.Candidate.SDPMid)
}
