package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
)

// Options tunes the channel; zero values fall back to defaults.
type Options struct {
	URL          string
	SendQueue    int
	WriteTimeout time.Duration
}

// Channel implements core.SignalChannel over a single client websocket.
// One read pump preserves per-sender FIFO; one write pump drains a buffered
// send queue with a write deadline.
type Channel struct {
	opts Options

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool

	sid    domain.TransportSessionID
	send   chan []byte
	events chan core.Event
	done   chan struct{}
	once   sync.Once
}

func NewChannel(opts Options) *Channel {
	if opts.SendQueue == 0 {
		opts.SendQueue = 32
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &Channel{
		opts: opts,
		done: make(chan struct{}),
	}
}

// SessionID reports the locally generated transport session identity,
// empty before Connect.
func (c *Channel) SessionID() domain.TransportSessionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sid
}

// Connect dials the signaling server and announces local in room. Single
// use: the channel is not restartable after Close.
func (c *Channel) Connect(ctx context.Context, room domain.RoomID, local domain.Participant) (<-chan core.Event, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, core.ErrChannelClosed
	}
	if c.connected {
		c.mu.Unlock()
		return nil, errors.New("signal channel already connected")
	}
	c.connected = true
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		return nil, err
	}

	sid := local.TransportSession
	if sid == "" {
		sid = domain.TransportSessionID(uuid.NewString())
	}
	local.TransportSession = sid

	c.mu.Lock()
	c.conn = conn
	c.sid = sid
	c.send = make(chan []byte, c.opts.SendQueue)
	c.events = make(chan core.Event, c.opts.SendQueue)
	c.mu.Unlock()

	join, err := encodeJoin(room, local)
	if err != nil {
		c.Close()
		return nil, err
	}
	if err := c.trySend(join); err != nil {
		c.Close()
		return nil, err
	}

	log.Info().Str("module", "ws").Str("sid", string(sid)).Str("room", string(room)).Msg("signal channel connected")
	go c.writePump()
	go c.readPump()
	return c.events, nil
}

// Send is fire-and-forget: a full queue or a dead socket surfaces as a
// transport-error event on the stream, not as a caller-visible failure.
func (c *Channel) Send(target domain.TransportSessionID, ev core.Event) error {
	data, err := encodeEvent(ev, target)
	if err != nil {
		return err
	}
	return c.trySend(data)
}

// Broadcast sends without a target; the server fans out to the room.
func (c *Channel) Broadcast(ev core.Event) error {
	data, err := encodeEvent(ev, "")
	if err != nil {
		return err
	}
	return c.trySend(data)
}

func (c *Channel) trySend(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.send == nil {
		return core.ErrChannelClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return core.ErrBackpressure
	}
}

// Close releases the channel and terminates the event stream. Idempotent.
func (c *Channel) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		conn := c.conn
		c.mu.Unlock()
		close(c.done)
		if conn != nil {
			_ = conn.Close()
		}
		log.Info().Str("module", "ws").Str("sid", string(c.sid)).Msg("signal channel closed")
	})
}

func (c *Channel) writePump() {
	for {
		select {
		case <-c.done:
			log.Info().Str("module", "ws").Msg("writePump done")
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump set deadline")
				c.reportTransportError(err)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump write error")
				c.reportTransportError(err)
				return
			}
		}
	}
}

func (c *Channel) readPump() {
	defer func() {
		log.Info().Str("module", "ws").Str("sid", string(c.sid)).Msg("readPump closing")
		close(c.events)
	}()

	for {
		select {
		case <-c.done:
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				c.mu.Lock()
				closed := c.closed
				c.mu.Unlock()
				if !closed {
					log.Error().Err(err).Str("module", "ws").Msg("readPump read error")
					c.reportTransportError(err)
				}
				return
			}
			ev, err := decodeEvent(data)
			if err != nil {
				log.Warn().Err(err).Str("module", "ws").Msg("dropping undecodable signal")
				continue
			}
			c.deliver(ev)
		}
	}
}

func (c *Channel) deliver(ev core.Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// reportTransportError surfaces an async send/receive failure as an inbound
// event so a single failed delivery never aborts the caller's control flow.
func (c *Channel) reportTransportError(err error) {
	c.deliver(core.Event{Type: core.EventTransportError, Reason: err.Error()})
}
