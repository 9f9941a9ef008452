package relay

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"hamster-duel/internal/protocol"
)

// Config tunes the broker.
type Config struct {
	MaxRooms   int           // 0 = unlimited
	FrameRate  float64       // frames per second per connection
	FrameBurst int           // burst allowance per connection
	SendBuffer int           // queued frames per connection before it counts as stalled
	ReadLimit  int64         // max bytes per frame
	WriteWait  time.Duration // per-write deadline
	PongWait   time.Duration // read deadline, extended by every frame or pong
	PingPeriod time.Duration // must be shorter than PongWait
}

// DefaultConfig returns limits sized for two humans pressing keys.
func DefaultConfig() Config {
	return Config{
		MaxRooms:   1000,
		FrameRate:  120,
		FrameBurst: 60,
		SendBuffer: 256,
		ReadLimit:  1024,
		WriteWait:  10 * time.Second,
		PongWait:   60 * time.Second,
		PingPeriod: 25 * time.Second,
	}
}

// Observer receives broker events for metrics.
type Observer interface {
	RoomsChanged(open int)
	PeersChanged(connected int)
	RoomPaired()
	FrameRelayed()
	FrameDropped(reason string)
}

type nopObserver struct{}

func (nopObserver) RoomsChanged(int)    {}
func (nopObserver) PeersChanged(int)    {}
func (nopObserver) RoomPaired()         {}
func (nopObserver) FrameRelayed()       {}
func (nopObserver) FrameDropped(string) {}

// Stats is a point-in-time view of broker activity.
type Stats struct {
	Rooms   int    `json:"rooms"`
	Waiting int    `json:"waiting"`
	Paired  int    `json:"paired"`
	Peers   int64  `json:"peers"`
	Relayed uint64 `json:"relayed"`
	Dropped uint64 `json:"dropped"`
}

// Broker pairs peers into rooms and pipes frames between them.
type Broker struct {
	cfg    Config
	rooms  *Registry
	obs    Observer
	logger zerolog.Logger

	peers   int64  // atomic
	relayed uint64 // atomic
	dropped uint64 // atomic

	connsMu sync.Mutex
	conns   map[*peerConn]struct{}
}

// Option configures a Broker.
type Option func(*Broker)

// WithObserver reports broker events to obs.
func WithObserver(obs Observer) Option {
	return func(b *Broker) {
		if obs != nil {
			b.obs = obs
		}
	}
}

// WithLogger sets the broker logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Broker) { b.logger = l }
}

// NewBroker creates a broker with no rooms.
func NewBroker(cfg Config, opts ...Option) *Broker {
	b := &Broker{
		cfg:    cfg,
		rooms:  NewRegistry(cfg.MaxRooms),
		obs:    nopObserver{},
		logger: zerolog.Nop(),
		conns:  make(map[*peerConn]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Reserve claims a slot before the HTTP upgrade. The caller must either
// Serve the upgraded connection or Release the slot.
func (b *Broker) Reserve(code string, role Role) (*Room, error) {
	room, err := b.rooms.Reserve(code, role)
	if err != nil {
		return nil, err
	}
	if role == RoleHost {
		b.obs.RoomsChanged(b.rooms.Len())
	}
	return room, nil
}

// Release frees a slot whose upgrade failed.
func (b *Broker) Release(room *Room, role Role) {
	if room.unreserve(role) {
		b.rooms.remove(room)
		b.obs.RoomsChanged(b.rooms.Len())
	}
}

// Lookup returns the public view of a room.
func (b *Broker) Lookup(code string) (RoomInfo, bool) {
	room, ok := b.rooms.Get(code)
	if !ok {
		return RoomInfo{}, false
	}
	return room.Info(), true
}

// Serve runs an upgraded connection until either end of the room leaves.
func (b *Broker) Serve(ws *websocket.Conn, room *Room, role Role, ip string) {
	pc := newPeerConn(ws, ip, b.cfg)
	go pc.writeLoop()
	b.track(pc, true)
	defer b.track(pc, false)

	log := b.logger.With().Str("room", room.Code).Str("role", string(role)).Str("ip", ip).Logger()

	paired, err := room.attach(role, pc)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ attach failed")
		b.Release(room, role)
		pc.Close()
		<-pc.stopped
		return
	}
	if paired {
		b.obs.RoomPaired()
		log.Info().Msg("🤝 room paired")
	} else {
		log.Info().Msg("📡 peer waiting")
	}

	pc.readLoop(func(data []byte) {
		// Peers may not forge broker control frames.
		switch protocol.Peek(data) {
		case protocol.TypeOpen, protocol.TypeClose:
			b.drop("control")
			return
		}
		if err := room.forward(role, data); err != nil {
			if errors.Is(err, errSlowPeer) {
				b.drop("stalled")
				log.Warn().Msg("⚠️ counterpart stalled, closing room")
				pc.Close()
				return
			}
			b.drop("unpaired")
			return
		}
		atomic.AddUint64(&b.relayed, 1)
		b.obs.FrameRelayed()
	}, b.drop)

	if room.leave(role) {
		b.rooms.remove(room)
		b.obs.RoomsChanged(b.rooms.Len())
		log.Info().Msg("👋 peer left, room closed")
	}
	pc.Close()
	<-pc.stopped
}

func (b *Broker) drop(reason string) {
	atomic.AddUint64(&b.dropped, 1)
	b.obs.FrameDropped(reason)
}

func (b *Broker) track(pc *peerConn, add bool) {
	b.connsMu.Lock()
	if add {
		b.conns[pc] = struct{}{}
	} else {
		delete(b.conns, pc)
	}
	b.connsMu.Unlock()

	var n int64
	if add {
		n = atomic.AddInt64(&b.peers, 1)
	} else {
		n = atomic.AddInt64(&b.peers, -1)
	}
	b.obs.PeersChanged(int(n))
}

// Stats returns broker counters.
func (b *Broker) Stats() Stats {
	s := Stats{
		Peers:   atomic.LoadInt64(&b.peers),
		Relayed: atomic.LoadUint64(&b.relayed),
		Dropped: atomic.LoadUint64(&b.dropped),
	}
	for _, r := range b.rooms.Rooms() {
		s.Rooms++
		switch r.State() {
		case StatePaired:
			s.Paired++
		case StateWaiting:
			s.Waiting++
		}
	}
	return s
}

// Shutdown disconnects every peer. Rooms are torn down as their read
// loops exit.
func (b *Broker) Shutdown() {
	b.connsMu.Lock()
	conns := make([]*peerConn, 0, len(b.conns))
	for pc := range b.conns {
		conns = append(conns, pc)
	}
	b.connsMu.Unlock()

	for _, pc := range conns {
		pc.Close()
	}
}
