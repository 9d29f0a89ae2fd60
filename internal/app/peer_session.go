package app

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
)

type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

type SessionState string

const (
	SessionNew          SessionState = "new"
	SessionNegotiating  SessionState = "negotiating"
	SessionConnected    SessionState = "connected"
	SessionDisconnected SessionState = "disconnected"
	SessionClosed       SessionState = "closed"
)

type peerMsgKind int

const (
	msgSignal peerMsgKind = iota
	msgConnState
	msgTrack
)

type peerMsg struct {
	kind  peerMsgKind
	ev    core.Event
	state core.ConnectionState
	track *webrtc.TrackRemote
}

// PeerSession is one point-to-point leg of the mesh. It owns a single
// connection object, its negotiation state and the remote media it yields.
// All internal state is mutated from the session's own goroutine, fed by an
// inbox the coordinator's dispatch step routes into; closing the connection
// is the unconditional exit signal.
type PeerSession struct {
	participant domain.Participant
	localID     domain.ParticipantID
	connector   core.PeerConnector
	signals     core.SignalChannel
	local       core.MediaStreamHandle

	inbox    chan peerMsg
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}

	mu            sync.RWMutex
	role          Role
	state         SessionState
	conn          core.MediaConnection
	remote        *core.RemoteHandle
	remoteAudioOn bool
	remoteVideoOn bool
	pending       []webrtc.ICECandidateInit
	remoteDescSet bool
}

func NewPeerSession(
	participant domain.Participant,
	role Role,
	localID domain.ParticipantID,
	connector core.PeerConnector,
	signals core.SignalChannel,
) *PeerSession {
	return &PeerSession{
		participant:   participant,
		localID:       localID,
		connector:     connector,
		signals:       signals,
		role:          role,
		state:         SessionNew,
		remoteAudioOn: true,
		remoteVideoOn: true,
		inbox:         make(chan peerMsg, 32),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start builds the underlying connection and launches the session task.
// The initiator emits its offer from inside the task so a slow peer never
// blocks the caller.
func (s *PeerSession) Start(ctx context.Context, local core.MediaStreamHandle) error {
	s.local = local
	if err := s.openConnection(ctx); err != nil {
		return err
	}
	go s.run(ctx)
	return nil
}

func (s *PeerSession) openConnection(ctx context.Context) error {
	conn, err := s.connector.NewConnection(s.participant.TransportSession)
	if err != nil {
		return err
	}
	if s.local != nil {
		for _, t := range s.local.Tracks() {
			if _, err := conn.AddLocalTrack(t); err != nil {
				conn.Close()
				return err
			}
		}
	}
	conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		s.sendEvent(core.Event{Type: core.EventICECandidate, Candidate: &ci})
	})
	conn.OnStateChange(func(st core.ConnectionState) {
		s.enqueue(peerMsg{kind: msgConnState, state: st})
	})
	conn.OnTrack(func(track *webrtc.TrackRemote) {
		s.enqueue(peerMsg{kind: msgTrack, track: track})
	})
	if err := conn.Start(ctx); err != nil {
		conn.Close()
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

// Deliver routes one signaling event into the session's inbox.
func (s *PeerSession) Deliver(ev core.Event) {
	s.enqueue(peerMsg{kind: msgSignal, ev: ev})
}

func (s *PeerSession) enqueue(m peerMsg) {
	select {
	case s.inbox <- m:
	case <-s.quit:
	}
}

// Close releases the connection and all buffered candidates. Terminal and
// idempotent; the connection is never reused afterwards.
func (s *PeerSession) Close() {
	s.quitOnce.Do(func() {
		s.mu.Lock()
		s.state = SessionClosed
		conn := s.conn
		s.pending = nil
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		close(s.quit)
		log.Info().Str("module", "app.session").
			Str("sid", string(s.participant.TransportSession)).Msg("session closed")
	})
}

// Done is closed when the session task has exited.
func (s *PeerSession) Done() <-chan struct{} { return s.done }

func (s *PeerSession) run(ctx context.Context) {
	defer close(s.done)
	if s.Role() == RoleInitiator {
		if err := s.sendOffer(); err != nil {
			s.abort(err)
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-s.quit:
			return
		case m := <-s.inbox:
			if !s.handleMsg(ctx, m) {
				return
			}
		}
	}
}

func (s *PeerSession) handleMsg(ctx context.Context, m peerMsg) bool {
	switch m.kind {
	case msgSignal:
		return s.handleSignal(ctx, m.ev)
	case msgConnState:
		return s.handleConnState(m.state)
	case msgTrack:
		s.addRemoteTrack(m.track)
	}
	return true
}

func (s *PeerSession) handleSignal(ctx context.Context, ev core.Event) bool {
	switch ev.Type {
	case core.EventOffer:
		return s.handleOffer(ctx, ev)
	case core.EventAnswer:
		return s.handleAnswer(ev)
	case core.EventICECandidate:
		return s.handleCandidate(ev)
	case core.EventAudioToggled, core.EventVideoToggled:
		s.setRemoteToggle(ev.ToggleKind(), ev.Enabled)
	default:
		log.Warn().Str("module", "app.session").Str("type", string(ev.Type)).Msg("unexpected signal")
	}
	return true
}

func (s *PeerSession) handleOffer(ctx context.Context, ev core.Event) bool {
	if s.Role() == RoleInitiator {
		// Simultaneous initiation. The lexicographically smaller participant
		// id stays initiator; the larger side discards its own offer and
		// answers instead. Deterministic on both ends with no extra round-trip.
		if s.localID < s.participant.ID {
			log.Debug().Str("module", "app.session").
				Str("sid", string(s.participant.TransportSession)).
				Msg("glare: keeping initiator role, ignoring inbound offer")
			return true
		}
		log.Info().Str("module", "app.session").
			Str("sid", string(s.participant.TransportSession)).
			Msg("glare: yielding initiator role")
		s.mu.Lock()
		old := s.conn
		s.conn = nil
		s.role = RoleResponder
		s.remoteDescSet = false
		s.mu.Unlock()
		if old != nil {
			old.Close()
		}
		if err := s.openConnection(ctx); err != nil {
			s.abort(err)
			return false
		}
	} else if s.hasRemoteDesc() {
		log.Warn().Str("module", "app.session").
			Str("sid", string(s.participant.TransportSession)).Msg("duplicate offer ignored")
		return true
	}
	return s.applyOffer(ev)
}

func (s *PeerSession) applyOffer(ev core.Event) bool {
	answer, err := s.connection().ApplyOfferAndCreateAnswer(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  ev.SDP,
	})
	if err != nil {
		s.abort(&core.NegotiationError{Session: s.participant.TransportSession, Err: err})
		return false
	}
	s.markRemoteDesc()
	s.setState(SessionNegotiating)
	s.sendEvent(core.Event{Type: core.EventAnswer, SDP: answer.SDP})
	return s.flushPending()
}

func (s *PeerSession) handleAnswer(ev core.Event) bool {
	if s.Role() != RoleInitiator || s.hasRemoteDesc() {
		log.Warn().Str("module", "app.session").
			Str("sid", string(s.participant.TransportSession)).Msg("unexpected answer ignored")
		return true
	}
	if err := s.connection().ApplyAnswer(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  ev.SDP,
	}); err != nil {
		s.abort(&core.NegotiationError{Session: s.participant.TransportSession, Err: err})
		return false
	}
	s.markRemoteDesc()
	return s.flushPending()
}

// handleCandidate applies a remote candidate, buffering it if the remote
// description is not set yet. Candidate and SDP arrival order is not
// guaranteed by the transport, so early candidates are queued, never dropped.
func (s *PeerSession) handleCandidate(ev core.Event) bool {
	if ev.Candidate == nil {
		return true
	}
	s.mu.Lock()
	if !s.remoteDescSet {
		s.pending = append(s.pending, *ev.Candidate)
		s.mu.Unlock()
		log.Debug().Str("module", "app.session").
			Str("sid", string(s.participant.TransportSession)).Msg("candidate buffered before remote description")
		return true
	}
	s.mu.Unlock()
	if err := s.connection().AddICECandidate(*ev.Candidate); err != nil {
		s.abort(&core.NegotiationError{Session: s.participant.TransportSession, Err: err})
		return false
	}
	return true
}

func (s *PeerSession) flushPending() bool {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, ci := range pending {
		if err := s.connection().AddICECandidate(ci); err != nil {
			s.abort(&core.NegotiationError{Session: s.participant.TransportSession, Err: err})
			return false
		}
	}
	if len(pending) > 0 {
		log.Debug().Str("module", "app.session").
			Str("sid", string(s.participant.TransportSession)).
			Int("count", len(pending)).Msg("flushed buffered candidates")
	}
	return true
}

func (s *PeerSession) handleConnState(st core.ConnectionState) bool {
	log.Info().Str("module", "app.session").
		Str("sid", string(s.participant.TransportSession)).
		Str("conn_state", string(st)).Msg("connection state")
	switch st {
	case core.StateConnected:
		s.mu.Lock()
		if s.state == SessionNegotiating || s.state == SessionDisconnected {
			s.state = SessionConnected
		}
		s.mu.Unlock()
	case core.StateDisconnected:
		// Held as-is: no automatic renegotiation. The coordinator's policy
		// is destroy-and-recreate, not in-place repair.
		s.mu.Lock()
		if s.state == SessionConnected || s.state == SessionNegotiating {
			s.state = SessionDisconnected
		}
		s.mu.Unlock()
	case core.StateClosed:
		s.Close()
		return false
	}
	return true
}

func (s *PeerSession) sendOffer() error {
	offer, err := s.connection().CreateAndSetOffer()
	if err != nil {
		return &core.NegotiationError{Session: s.participant.TransportSession, Err: err}
	}
	s.setState(SessionNegotiating)
	s.sendEvent(core.Event{Type: core.EventOffer, SDP: offer.SDP})
	return nil
}

// sendEvent addresses this session's peer. A send racing with Leave hits
// ErrChannelClosed and is dropped silently.
func (s *PeerSession) sendEvent(ev core.Event) {
	err := s.signals.Send(s.participant.TransportSession, ev)
	if err != nil && !errors.Is(err, core.ErrChannelClosed) {
		log.Warn().Err(err).Str("module", "app.session").
			Str("sid", string(s.participant.TransportSession)).Msg("signal send failed")
	}
}

func (s *PeerSession) abort(err error) {
	log.Error().Err(err).Str("module", "app.session").
		Str("sid", string(s.participant.TransportSession)).Msg("session aborted")
	s.Close()
}

func (s *PeerSession) addRemoteTrack(track *webrtc.TrackRemote) {
	s.mu.Lock()
	if s.remote == nil {
		s.remote = &core.RemoteHandle{StreamID: track.StreamID()}
	}
	s.remote.Tracks = append(s.remote.Tracks, track)
	s.mu.Unlock()
	log.Info().Str("module", "app.session").
		Str("sid", string(s.participant.TransportSession)).
		Str("kind", track.Kind().String()).Msg("remote track")
}

func (s *PeerSession) setRemoteToggle(kind domain.MediaKind, enabled bool) {
	s.mu.Lock()
	if kind == domain.KindAudio {
		s.remoteAudioOn = enabled
	} else {
		s.remoteVideoOn = enabled
	}
	s.mu.Unlock()
}

func (s *PeerSession) connection() core.MediaConnection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (s *PeerSession) setState(st SessionState) {
	s.mu.Lock()
	if s.state != SessionClosed {
		s.state = st
	}
	s.mu.Unlock()
}

func (s *PeerSession) hasRemoteDesc() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remoteDescSet
}

func (s *PeerSession) markRemoteDesc() {
	s.mu.Lock()
	s.remoteDescSet = true
	s.mu.Unlock()
}

func (s *PeerSession) Participant() domain.Participant { return s.participant }

func (s *PeerSession) Role() Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

func (s *PeerSession) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Remote returns the inbound media handle, nil until the connection reports
// a remote track.
func (s *PeerSession) Remote() *core.RemoteHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remote
}

func (s *PeerSession) RemoteAudioEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remoteAudioOn
}

func (s *PeerSession) RemoteVideoEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remoteVideoOn
}
