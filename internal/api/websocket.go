package api

import (
	"errors"
	"net/http"
	"sync"

	"hamster-duel/internal/protocol"
	"hamster-duel/internal/relay"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// PeerLimits caps concurrent peer connections.
type PeerLimits struct {
	MaxTotal int // all peers
	MaxPerIP int // peers sharing one source address
}

// Peer limits used when PeerLimits fields are zero.
const (
	DefaultMaxPeersTotal = 2000
	DefaultMaxPeersPerIP = 8
)

var (
	errPeerTotal = errors.New("too many connections")
	errPeerIP    = errors.New("too many connections from your IP")
)

// peerCaps counts open peer sockets, globally and per address.
type peerCaps struct {
	limits PeerLimits

	mu    sync.Mutex
	total int
	perIP map[string]int
}

func newPeerCaps(limits PeerLimits) *peerCaps {
	if limits.MaxTotal <= 0 {
		limits.MaxTotal = DefaultMaxPeersTotal
	}
	if limits.MaxPerIP <= 0 {
		limits.MaxPerIP = DefaultMaxPeersPerIP
	}
	return &peerCaps{limits: limits, perIP: make(map[string]int)}
}

// acquire claims a slot for ip. Every successful acquire needs a release.
func (c *peerCaps) acquire(ip string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.total >= c.limits.MaxTotal {
		return errPeerTotal
	}
	if c.perIP[ip] >= c.limits.MaxPerIP {
		return errPeerIP
	}
	c.total++
	c.perIP[ip]++
	return nil
}

func (c *peerCaps) release(ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total--
	if c.perIP[ip] <= 1 {
		delete(c.perIP, ip)
		return
	}
	c.perIP[ip]--
}

func (c *peerCaps) count(ip string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.perIP[ip]
}

// peerHandler upgrades /peer/{code} requests and hands them to the broker.
type peerHandler struct {
	broker   BrokerInterface
	upgrader websocket.Upgrader
	caps     *peerCaps
	logger   zerolog.Logger
}

func newPeerHandler(broker BrokerInterface, limits PeerLimits, origins []string, logger zerolog.Logger) *peerHandler {
	h := &peerHandler{
		broker: broker,
		caps:   newPeerCaps(limits),
		logger: logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Native peers send no Origin header
			if origin == "" || IsAllowedOrigin(origin, origins) {
				return true
			}
			h.logger.Warn().Str("origin", origin).Msg("⚠️ peer connection rejected")
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// reserveStatus maps a broker reservation error to its HTTP status.
func reserveStatus(err error) int {
	switch {
	case errors.Is(err, relay.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, relay.ErrTooManyRooms):
		return http.StatusServiceUnavailable
	default:
		return http.StatusConflict
	}
}

// ServeHTTP handles GET /peer/{code}?role=host|guest. Every rejection is
// answered before the upgrade so the dialing peer sees a plain status.
func (h *peerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := ClientIP(r)

	code := protocol.NormalizeRoomCode(chi.URLParam(r, "code"))
	if err := protocol.ValidateRoomCode(code); err != nil {
		RecordConnectionRejected("invalid")
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	role, err := relay.ParseRole(r.URL.Query().Get("role"))
	if err != nil {
		RecordConnectionRejected("invalid")
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.caps.acquire(ip); err != nil {
		status := http.StatusTooManyRequests
		reason := "ws_ip_limit"
		if errors.Is(err, errPeerTotal) {
			status = http.StatusServiceUnavailable
			reason = "ws_total_limit"
		}
		h.logger.Warn().Str("ip", ip).Err(err).Msg("⚠️ peer rejected")
		RecordConnectionRejected(reason)
		writeError(w, err.Error(), status)
		return
	}
	defer h.caps.release(ip)

	room, err := h.broker.Reserve(code, role)
	if err != nil {
		RecordConnectionRejected("room")
		writeError(w, err.Error(), reserveStatus(err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Str("room", code).Msg("peer upgrade failed")
		h.broker.Release(room, role)
		return
	}

	h.broker.Serve(conn, room, role, ip)
}
