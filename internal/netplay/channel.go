package netplay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"hamster-duel/internal/protocol"
)

// Disconnect reasons reported in EventDisconnected.
const (
	ReasonPeerLeft = "peer left"
	ReasonLost     = "connection lost"
)

// channel owns one peer-side WebSocket. A single goroutine writes; the
// read loop turns frames into events.
type channel struct {
	ws        *websocket.Conn
	gen       uint64
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	failOnce  sync.Once
	events    chan<- Event
	writeWait time.Duration
	logger    zerolog.Logger
}

func newChannel(ws *websocket.Conn, gen uint64, events chan<- Event, cfg Config, logger zerolog.Logger) *channel {
	return &channel{
		ws:        ws,
		gen:       gen,
		send:      make(chan []byte, cfg.SendBuffer),
		done:      make(chan struct{}),
		events:    events,
		writeWait: cfg.WriteWait,
		logger:    logger,
	}
}

func (c *channel) start() {
	go c.readLoop()
	go c.writeLoop()
}

// enqueue queues an encoded frame. A full buffer means the socket is
// stuck; the frame is refused rather than blocking the match loop.
func (c *channel) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close stops both loops. The write loop sends a close frame first.
func (c *channel) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// fail reports a terminal transport condition and stops both loops. Only
// the first failure of a channel produces an EventDisconnected, and none is
// produced after a local close.
func (c *channel) fail(reason string) {
	c.failOnce.Do(func() {
		select {
		case <-c.done:
			return
		default:
		}
		c.emit(Event{Kind: EventDisconnected, Reason: reason})
	})
	c.close()
}

func (c *channel) emit(ev Event) {
	ev.Gen = c.gen
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *channel) readLoop() {
	defer c.close()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Debug().Err(err).Msg("peer channel read ended")
			c.fail(ReasonLost)
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			c.logger.Debug().Err(err).Msg("dropping frame")
			continue
		}

		switch msg.Type {
		case protocol.TypeOpen:
			c.emit(Event{Kind: EventConnected})
		case protocol.TypeClose:
			c.fail(ReasonPeerLeft)
			return
		case protocol.TypeInput:
			c.emit(Event{Kind: EventInput, EventType: msg.EventType, Code: msg.Code})
		case protocol.TypeReset:
			c.emit(Event{Kind: EventReset})
		}
	}
}

func (c *channel) writeLoop() {
	defer c.ws.Close()

	for {
		select {
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug().Err(err).Msg("peer channel write failed")
				c.fail(ReasonLost)
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
