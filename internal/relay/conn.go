package relay

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var (
	errConnClosed = errors.New("connection closed")
	errSlowPeer   = errors.New("peer send buffer full")
)

// peerConn owns one broker-side WebSocket. All writes go through a single
// goroutine; Send never blocks the sender's read loop.
type peerConn struct {
	ws      *websocket.Conn
	ip      string
	send    chan []byte
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	cfg     Config
}

func newPeerConn(ws *websocket.Conn, ip string, cfg Config) *peerConn {
	return &peerConn{
		ws:      ws,
		ip:      ip,
		send:    make(chan []byte, cfg.SendBuffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(cfg.FrameRate), cfg.FrameBurst),
		cfg:     cfg,
	}
}

// Send queues a frame. A peer that cannot keep up is reported as an error
// so the room can be torn down instead of silently losing ordered input.
func (c *peerConn) Send(data []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSlowPeer
	}
}

// Close asks the write loop to flush queued frames, send a close frame and
// drop the socket.
func (c *peerConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *peerConn) writeLoop() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		close(c.stopped)
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			for {
				select {
				case data := <-c.send:
					if c.write(websocket.TextMessage, data) != nil {
						return
					}
				default:
					c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

func (c *peerConn) write(messageType int, data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, data)
}

// readLoop delivers incoming text frames to fn until the socket fails or
// Close is called. A peer exceeding the per-connection frame rate ends the
// loop, which closes its room.
func (c *peerConn) readLoop(fn func([]byte), drop func(reason string)) {
	c.ws.SetReadLimit(c.cfg.ReadLimit)
	c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		if messageType != websocket.TextMessage {
			drop("binary")
			continue
		}
		if !c.limiter.Allow() {
			drop("rate_limit")
			return
		}
		fn(data)
	}
}
