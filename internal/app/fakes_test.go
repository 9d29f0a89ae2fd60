package app

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
)

type fakeHandle struct {
	mu      sync.Mutex
	enabled map[domain.MediaKind]bool
	closes  int
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{enabled: map[domain.MediaKind]bool{
		domain.KindAudio: true,
		domain.KindVideo: true,
	}}
}

func (h *fakeHandle) Tracks() []webrtc.TrackLocal { return nil }

func (h *fakeHandle) SetEnabled(kind domain.MediaKind, enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enabled[kind] = enabled
}

func (h *fakeHandle) isEnabled(kind domain.MediaKind) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enabled[kind]
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
	return nil
}

func (h *fakeHandle) closeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closes
}

type fakeDevice struct {
	mu     sync.Mutex
	handle *fakeHandle
	err    error
	opens  int
}

func (d *fakeDevice) Open(_ context.Context) (core.MediaStreamHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	d.opens++
	if d.handle == nil {
		d.handle = newFakeHandle()
	}
	return d.handle, nil
}

func (d *fakeDevice) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

type sentEvent struct {
	target domain.TransportSessionID
	ev     core.Event
}

type fakeChannel struct {
	mu         sync.Mutex
	events     chan core.Event
	sent       []sentEvent
	connectErr error
	connected  bool
	closed     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan core.Event, 64)}
}

func (c *fakeChannel) Connect(_ context.Context, _ domain.RoomID, _ domain.Participant) (<-chan core.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr != nil {
		return nil, c.connectErr
	}
	c.connected = true
	return c.events, nil
}

func (c *fakeChannel) Send(target domain.TransportSessionID, ev core.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrChannelClosed
	}
	c.sent = append(c.sent, sentEvent{target: target, ev: ev})
	return nil
}

func (c *fakeChannel) Broadcast(ev core.Event) error {
	return c.Send("", ev)
}

func (c *fakeChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) sentOfType(t core.EventType) []sentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sentEvent
	for _, s := range c.sent {
		if s.ev.Type == t {
			out = append(out, s)
		}
	}
	return out
}

// feed pushes an inbound event as if the server had sent it.
func (c *fakeChannel) feed(ev core.Event) {
	c.events <- ev
}

type fakeConn struct {
	mu  sync.Mutex
	sid domain.TransportSessionID

	started    bool
	closed     bool
	remoteDesc *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit

	applyAnswerErr  error
	applyOfferErr   error
	addCandidateErr error

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(*webrtc.TrackRemote)
	onState func(core.ConnectionState)
}

func (c *fakeConn) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-" + string(c.sid)}, nil
}

func (c *fakeConn) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.applyOfferErr != nil {
		return nil, c.applyOfferErr
	}
	c.remoteDesc = &offer
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-" + string(c.sid)}, nil
}

func (c *fakeConn) ApplyAnswer(answer webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.applyAnswerErr != nil {
		return c.applyAnswerErr
	}
	c.remoteDesc = &answer
	return nil
}

func (c *fakeConn) HasRemoteDescription() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteDesc != nil
}

func (c *fakeConn) AddICECandidate(ci webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.addCandidateErr != nil {
		return c.addCandidateErr
	}
	c.candidates = append(c.candidates, ci)
	return nil
}

func (c *fakeConn) appliedCandidates() []webrtc.ICECandidateInit {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]webrtc.ICECandidateInit, len(c.candidates))
	copy(out, c.candidates)
	return out
}

func (c *fakeConn) AddLocalTrack(_ webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	return nil, nil
}

func (c *fakeConn) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onICE = fn
}

func (c *fakeConn) OnTrack(fn func(*webrtc.TrackRemote)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrack = fn
}

func (c *fakeConn) OnStateChange(fn func(core.ConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

func (c *fakeConn) fireState(st core.ConnectionState) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

type fakeConnector struct {
	mu    sync.Mutex
	conns []*fakeConn

	applyAnswerErr  error
	addCandidateErr error
}

func (f *fakeConnector) NewConnection(sid domain.TransportSessionID) (core.MediaConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeConn{
		sid:             sid,
		applyAnswerErr:  f.applyAnswerErr,
		addCandidateErr: f.addCandidateErr,
	}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeConnector) conn(i int) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.conns) {
		return nil
	}
	return f.conns[i]
}

func (f *fakeConnector) connCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}
