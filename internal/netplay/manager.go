package netplay

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"hamster-duel/internal/protocol"
)

// Config configures the broker connection.
type Config struct {
	RelayURL    string        // ws:// base of the broker
	DialTimeout time.Duration // handshake timeout
	WriteWait   time.Duration
	SendBuffer  int // queued outbound frames
	EventBuffer int // queued inbound events
	HostRetries int // fresh codes tried when a generated code is taken
}

// DefaultConfig returns defaults for a broker on localhost.
func DefaultConfig() Config {
	return Config{
		RelayURL:    "ws://127.0.0.1:3000",
		DialTimeout: 10 * time.Second,
		WriteWait:   5 * time.Second,
		SendBuffer:  256,
		EventBuffer: 256,
		HostRetries: 3,
	}
}

// Manager holds at most one session. CreateRoom, JoinRoom, Send* and
// Disconnect may be called from any goroutine; Dispatch must be called from
// the goroutine that owns the match so handlers run there.
type Manager struct {
	cfg    Config
	dialer *websocket.Dialer
	logger zerolog.Logger
	events chan Event

	mu       sync.Mutex
	session  Session
	ch       *channel
	gen      uint64
	handlers Handlers
	newCode  func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithCodeGenerator replaces the random room code source.
func WithCodeGenerator(gen func() string) Option {
	return func(m *Manager) { m.newCode = gen }
}

// NewManager creates an idle manager.
func NewManager(cfg Config, opts ...Option) *Manager {
	d := DefaultConfig()
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = d.DialTimeout
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = d.WriteWait
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = d.SendBuffer
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = d.EventBuffer
	}
	if cfg.HostRetries <= 0 {
		cfg.HostRetries = d.HostRetries
	}

	m := &Manager{
		cfg:     cfg,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		logger:  zerolog.Nop(),
		events:  make(chan Event, cfg.EventBuffer),
		newCode: protocol.NewRoomCode,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetHandlers registers the lifecycle callbacks invoked by Dispatch.
func (m *Manager) SetHandlers(h Handlers) {
	m.mu.Lock()
	m.handlers = h
	m.mu.Unlock()
}

// Events delivers channel events. Pass each one to Dispatch.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Session returns the current session.
func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// CreateRoom registers a fresh room code as host and returns once the
// broker accepted it. The match starts when a guest joins (EventConnected).
func (m *Manager) CreateRoom(ctx context.Context) (string, error) {
	if err := m.begin(); err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt < m.cfg.HostRetries; attempt++ {
		code := m.newCode()
		ws, status, err := m.dial(ctx, code, RoleHost)
		if err == nil {
			m.attach(ws, RoleHost, code)
			m.logger.Info().Str("room", code).Msg("📡 room open, waiting for guest")
			return code, nil
		}
		lastErr = err
		// 409 means the generated code is in use; anything else is final
		if status != 409 {
			break
		}
	}

	m.abort()
	return "", lastErr
}

// JoinRoom connects to an existing room as guest. The code is trimmed and
// upper-cased first.
func (m *Manager) JoinRoom(ctx context.Context, code string) error {
	code = protocol.NormalizeRoomCode(code)
	if err := protocol.ValidateRoomCode(code); err != nil {
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}
	if err := m.begin(); err != nil {
		return err
	}

	ws, _, err := m.dial(ctx, code, RoleGuest)
	if err != nil {
		m.abort()
		return err
	}
	m.attach(ws, RoleGuest, code)
	m.logger.Info().Str("room", code).Msg("📡 joined room")
	return nil
}

// SendInput relays a local key edge to the counterpart.
func (m *Manager) SendInput(eventType, code string) error {
	return m.sendMessage(protocol.NewInput(eventType, code, time.Now()))
}

// SendReset asks the counterpart to reinitialize its match.
func (m *Manager) SendReset() error {
	return m.sendMessage(protocol.NewReset(time.Now()))
}

// Disconnect closes the session and returns to idle. No handler runs.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ch != nil {
		m.logger.Info().Str("room", m.session.Code).Msg("📴 leaving room")
	}
	m.teardownLocked()
}

// Dispatch applies one event from Events and runs the matching handler.
// Events from a channel that has since been replaced or closed are ignored.
func (m *Manager) Dispatch(ev Event) {
	m.mu.Lock()
	if m.ch == nil || ev.Gen != m.gen {
		m.mu.Unlock()
		return
	}
	h := m.handlers

	switch ev.Kind {
	case EventConnected:
		m.session.Status = StatusConnected
		m.logger.Info().Str("room", m.session.Code).Str("role", string(m.session.Role)).Msg("🤝 peer connected")
	case EventDisconnected:
		m.logger.Warn().Str("room", m.session.Code).Str("reason", ev.Reason).Msg("📴 peer disconnected")
		m.teardownLocked()
	}
	m.mu.Unlock()

	switch ev.Kind {
	case EventConnected:
		if h.OnConnected != nil {
			h.OnConnected()
		}
	case EventDisconnected:
		if h.OnDisconnected != nil {
			h.OnDisconnected(ev.Reason)
		}
	case EventInput:
		if h.OnInputReceived != nil {
			h.OnInputReceived(ev.EventType, ev.Code)
		}
	case EventReset:
		if h.OnResetReceived != nil {
			h.OnResetReceived()
		}
	}
}

// InviteLink returns base with the room code as the "room" query
// parameter, or "" without a session.
func (m *Manager) InviteLink(base string) string {
	code := m.Session().Code
	if code == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		sep := "?"
		if strings.Contains(base, "?") {
			sep = "&"
		}
		return base + sep + "room=" + code
	}
	q := u.Query()
	q.Set("room", code)
	u.RawQuery = q.Encode()
	return u.String()
}

func (m *Manager) sendMessage(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ch == nil || m.session.Status != StatusConnected {
		return ErrNotConnected
	}
	if !m.ch.enqueue(data) {
		return fmt.Errorf("%w: send queue full", ErrNotConnected)
	}
	return nil
}

// begin claims the manager for a new session.
func (m *Manager) begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.Active() {
		return ErrAlreadyActive
	}
	m.session = Session{Status: StatusWaiting}
	return nil
}

func (m *Manager) abort() {
	m.mu.Lock()
	m.teardownLocked()
	m.mu.Unlock()
}

func (m *Manager) attach(ws *websocket.Conn, role Role, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.ch = newChannel(ws, m.gen, m.events, m.cfg, m.logger.With().Str("room", code).Logger())
	m.session = Session{Role: role, Code: code, Status: StatusWaiting}
	m.ch.start()
}

// teardownLocked closes the channel and resets the session to defaults.
func (m *Manager) teardownLocked() {
	if m.ch != nil {
		m.ch.close()
		m.ch = nil
	}
	m.gen++
	m.session = Session{}
}

func (m *Manager) dial(ctx context.Context, code string, role Role) (*websocket.Conn, int, error) {
	target, err := peerURL(m.cfg.RelayURL, code, role)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	ws, resp, err := m.dialer.DialContext(ctx, target, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		m.logger.Debug().Err(err).Int("status", status).Str("room", code).Str("role", string(role)).Msg("dial failed")
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, status, fmt.Errorf("%w: %w", ErrConnect, err)
		}
		return nil, status, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	return ws, resp.StatusCode, nil
}

func peerURL(base, code string, role Role) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported relay scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/peer/" + code
	u.RawQuery = url.Values{"role": {string(role)}}.Encode()
	return u.String(), nil
}
