package app

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
)

// ParticipantView is the read model for one remote participant, recomputed
// from the session registry on demand.
type ParticipantView struct {
	ID               domain.ParticipantID
	TransportSession domain.TransportSessionID
	DisplayName      string
	Remote           *core.RemoteHandle
	AudioEnabled     bool
	VideoEnabled     bool
	State            SessionState
}

// RoomCoordinator owns the {transport session -> PeerSession} registry. The
// registry is mutated only from the dispatch goroutine that consumes the
// signal stream one event at a time; per-session events are routed into
// session inboxes so a slow negotiation on one peer never stalls another.
type RoomCoordinator struct {
	media     *MediaSource
	signals   core.SignalChannel
	connector core.PeerConnector

	mu       sync.RWMutex
	roomID   domain.RoomID
	local    domain.Participant
	sessions map[domain.TransportSessionID]*PeerSession
	joined   bool
	cancel   context.CancelFunc
}

func NewRoomCoordinator(media *MediaSource, signals core.SignalChannel, connector core.PeerConnector) *RoomCoordinator {
	c := &RoomCoordinator{
		media:     media,
		signals:   signals,
		connector: connector,
		sessions:  make(map[domain.TransportSessionID]*PeerSession),
	}
	media.OnToggle(c.broadcastToggle)
	return c
}

// Join connects the signal channel and starts consuming its stream. Fails
// with ErrAlreadyJoined when called twice without an intervening Leave.
func (c *RoomCoordinator) Join(ctx context.Context, room domain.RoomID, local domain.Participant) error {
	c.mu.Lock()
	if c.joined {
		c.mu.Unlock()
		return core.ErrAlreadyJoined
	}
	c.joined = true
	c.roomID = room
	c.local = local
	c.mu.Unlock()

	events, err := c.signals.Connect(ctx, room, local)
	if err != nil {
		c.mu.Lock()
		c.joined = false
		c.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	log.Info().Str("module", "app.room").Str("room", string(room)).
		Str("participant", string(local.ID)).Msg("joined room")
	go c.dispatch(ctx, events)
	return nil
}

// dispatch is the single writer of the session registry.
func (c *RoomCoordinator) dispatch(ctx context.Context, events <-chan core.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				log.Info().Str("module", "app.room").Msg("signal stream ended")
				return
			}
			c.handleEvent(ctx, ev)
		}
	}
}

func (c *RoomCoordinator) handleEvent(ctx context.Context, ev core.Event) {
	switch ev.Type {
	case core.EventRosterSnapshot:
		// Existing members: this side initiates toward each of them.
		for _, p := range ev.Participants {
			c.addSession(ctx, p, RoleInitiator)
		}
	case core.EventParticipantJoined:
		// The new joiner initiates toward us; we answer.
		if ev.Participant != nil {
			c.addSession(ctx, *ev.Participant, RoleResponder)
		}
	case core.EventParticipantLeft:
		c.removeSession(ev.From)
	case core.EventOffer, core.EventAnswer, core.EventICECandidate:
		c.deliverTo(ev.From, ev)
	case core.EventAudioToggled, core.EventVideoToggled:
		c.deliverToParticipant(ev.ParticipantID, ev)
	case core.EventTransportError:
		log.Warn().Str("module", "app.room").Str("reason", ev.Reason).Msg("degraded signaling connectivity")
	default:
		log.Warn().Str("module", "app.room").Str("type", string(ev.Type)).Msg("unknown event")
	}
}

func (c *RoomCoordinator) addSession(ctx context.Context, p domain.Participant, role Role) {
	c.mu.RLock()
	_, exists := c.sessions[p.TransportSession]
	local := c.local
	c.mu.RUnlock()
	if exists {
		log.Warn().Str("module", "app.room").
			Str("sid", string(p.TransportSession)).Msg("session already exists")
		return
	}

	s := NewPeerSession(p, role, local.ID, c.connector, c.signals)
	if err := s.Start(ctx, c.media.Handle()); err != nil {
		log.Error().Err(err).Str("module", "app.room").
			Str("sid", string(p.TransportSession)).Msg("start session")
		return
	}

	c.mu.Lock()
	c.sessions[p.TransportSession] = s
	c.mu.Unlock()
	log.Info().Str("module", "app.room").Str("sid", string(p.TransportSession)).
		Str("participant", string(p.ID)).Str("role", string(role)).Msg("session created")
}

// removeSession is a no-op for unknown ids: late or duplicate leave events
// are expected and harmless.
func (c *RoomCoordinator) removeSession(sid domain.TransportSessionID) {
	c.mu.Lock()
	s, ok := c.sessions[sid]
	if ok {
		delete(c.sessions, sid)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	s.Close()
	log.Info().Str("module", "app.room").Str("sid", string(sid)).Msg("session removed")
}

func (c *RoomCoordinator) deliverTo(sid domain.TransportSessionID, ev core.Event) {
	c.mu.RLock()
	s, ok := c.sessions[sid]
	c.mu.RUnlock()
	if !ok {
		log.Warn().Str("module", "app.room").Str("sid", string(sid)).
			Str("type", string(ev.Type)).Msg("event for unknown session")
		return
	}
	s.Deliver(ev)
}

func (c *RoomCoordinator) deliverToParticipant(id domain.ParticipantID, ev core.Event) {
	c.mu.RLock()
	var target *PeerSession
	for _, s := range c.sessions {
		if s.Participant().ID == id {
			target = s
			break
		}
	}
	c.mu.RUnlock()
	if target != nil {
		target.Deliver(ev)
	}
}

// ToggleLocalAudio flips local audio and returns the new state. The flip is
// broadcast so peers can update their view of this participant.
func (c *RoomCoordinator) ToggleLocalAudio() bool { return c.media.ToggleAudio() }

// ToggleLocalVideo flips local video and returns the new state.
func (c *RoomCoordinator) ToggleLocalVideo() bool { return c.media.ToggleVideo() }

func (c *RoomCoordinator) broadcastToggle(kind domain.MediaKind, enabled bool) {
	t := core.EventToggleAudio
	if kind == domain.KindVideo {
		t = core.EventToggleVideo
	}
	err := c.signals.Broadcast(core.Event{Type: t, Enabled: enabled})
	if err != nil && !errors.Is(err, core.ErrChannelClosed) {
		log.Warn().Err(err).Str("module", "app.room").Msg("broadcast toggle failed")
	}
}

// Participants lists every remote participant, sorted by id. The local
// participant is tracked separately and never included.
func (c *RoomCoordinator) Participants() []ParticipantView {
	c.mu.RLock()
	out := make([]ParticipantView, 0, len(c.sessions))
	for _, s := range c.sessions {
		p := s.Participant()
		out = append(out, ParticipantView{
			ID:               p.ID,
			TransportSession: p.TransportSession,
			DisplayName:      p.DisplayName,
			Remote:           s.Remote(),
			AudioEnabled:     s.RemoteAudioEnabled(),
			VideoEnabled:     s.RemoteVideoEnabled(),
			State:            s.State(),
		})
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Local reports the local participant identity and toggle flags.
func (c *RoomCoordinator) Local() (domain.Participant, bool, bool) {
	c.mu.RLock()
	local := c.local
	c.mu.RUnlock()
	return local, c.media.AudioEnabled(), c.media.VideoEnabled()
}

// Leave closes every session, releases local media and closes the signal
// channel. Idempotent; leaving twice is a no-op.
func (c *RoomCoordinator) Leave() {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return
	}
	c.joined = false
	cancel := c.cancel
	c.cancel = nil
	sessions := c.sessions
	c.sessions = make(map[domain.TransportSessionID]*PeerSession)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, s := range sessions {
		s.Close()
	}
	c.media.Release()
	c.signals.Close()
	log.Info().Str("module", "app.room").Str("room", string(c.roomID)).Msg("left room")
}
