package rtc

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
)

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// ConfigWithICEServers builds a configuration from plain STUN/TURN URLs.
func ConfigWithICEServers(urls []string) webrtc.Configuration {
	if len(urls) == 0 {
		return DefaultWebRTCConfig()
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: urls}},
	}
}

// Connector implements core.PeerConnector over pion.
type Connector struct {
	cfg webrtc.Configuration
}

func NewConnector(cfg webrtc.Configuration) *Connector {
	return &Connector{cfg: cfg}
}

func (f *Connector) NewConnection(sid domain.TransportSessionID) (core.MediaConnection, error) {
	pc, err := webrtc.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}
	return &Connection{pc: pc, sid: sid}, nil
}

// Connection wraps one pion PeerConnection for either negotiation role.
type Connection struct {
	pc     *webrtc.PeerConnection
	sid    domain.TransportSessionID
	cancel context.CancelFunc

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(track *webrtc.TrackRemote)
	onState func(core.ConnectionState)

	mu     sync.Mutex
	closed bool
}

func (c *Connection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("sid", string(c.sid)).Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("sid", string(c.sid)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			cancel()
		}
		if c.onState != nil {
			c.onState(mapState(s))
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("sid", string(c.sid)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if c.onTrack != nil {
			c.onTrack(track)
		}
	})

	return nil
}

func mapState(s webrtc.PeerConnectionState) core.ConnectionState {
	switch s {
	case webrtc.PeerConnectionStateNew:
		return core.StateNew
	case webrtc.PeerConnectionStateConnecting:
		return core.StateConnecting
	case webrtc.PeerConnectionStateConnected:
		return core.StateConnected
	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
		return core.StateDisconnected
	default:
		return core.StateClosed
	}
}

// CreateAndSetOffer produces the local offer. Candidates trickle out through
// OnICECandidate as they are gathered; gathering is not awaited here.
func (c *Connection) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	return &offer, nil
}

func (c *Connection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

func (c *Connection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

func (c *Connection) HasRemoteDescription() bool {
	return c.pc.RemoteDescription() != nil
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *Connection) AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	return c.pc.AddTrack(track)
}

func (c *Connection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("sid", string(c.sid)).Msg("close error")
	} else {
		log.Info().Str("module", "rtc").Str("sid", string(c.sid)).Msg("closed")
	}
}

func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.onICE = fn
}

// OnTrack sets the application-level callback for remote tracks.
func (c *Connection) OnTrack(fn func(track *webrtc.TrackRemote)) {
	c.onTrack = fn
}

// OnStateChange sets the application-level connection-state callback.
func (c *Connection) OnStateChange(fn func(core.ConnectionState)) {
	c.onState = fn
}
