package netplay

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hamster-duel/internal/api"
	"hamster-duel/internal/relay"
)

func startBroker(t *testing.T) string {
	t.Helper()
	broker := relay.NewBroker(relay.DefaultConfig())
	ts := httptest.NewServer(api.NewRouter(api.RouterConfig{
		Broker:          broker,
		RateLimitConfig: &api.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
		Logger:          zerolog.Nop(),
		DisableLogging:  true,
	}))
	t.Cleanup(func() {
		ts.Close()
		broker.Shutdown()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func newManager(t *testing.T, relayURL string, opts ...Option) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RelayURL = relayURL
	cfg.DialTimeout = 2 * time.Second
	m := NewManager(cfg, opts...)
	t.Cleanup(m.Disconnect)
	return m
}

// nextEvent waits for one event and dispatches it, like the match loop does.
func nextEvent(t *testing.T, m *Manager) Event {
	t.Helper()
	select {
	case ev := <-m.Events():
		m.Dispatch(ev)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session event")
		return Event{}
	}
}

// pair creates a room on host and joins it from guest.
func pair(t *testing.T, host, guest *Manager) string {
	t.Helper()
	ctx := context.Background()

	code, err := host.CreateRoom(ctx)
	require.NoError(t, err)
	assert.Equal(t, Session{Role: RoleHost, Code: code, Status: StatusWaiting}, host.Session())

	require.NoError(t, guest.JoinRoom(ctx, "  "+strings.ToLower(code)+" "))

	assert.Equal(t, EventConnected, nextEvent(t, host).Kind)
	assert.Equal(t, EventConnected, nextEvent(t, guest).Kind)
	return code
}

func TestCreateAndJoinRoom(t *testing.T) {
	url := startBroker(t)
	host := newManager(t, url)
	guest := newManager(t, url)

	var connected int
	host.SetHandlers(Handlers{OnConnected: func() { connected++ }})

	code := pair(t, host, guest)

	assert.Equal(t, 1, connected)
	assert.Equal(t, Session{Role: RoleHost, Code: code, Status: StatusConnected}, host.Session())
	assert.Equal(t, Session{Role: RoleGuest, Code: code, Status: StatusConnected}, guest.Session())
}

func TestInputAndResetRelay(t *testing.T) {
	url := startBroker(t)
	host := newManager(t, url)
	guest := newManager(t, url)
	pair(t, host, guest)

	type edge struct{ kind, code string }
	var received []edge
	host.SetHandlers(Handlers{
		OnInputReceived: func(kind, code string) { received = append(received, edge{kind, code}) },
	})
	var resets int
	guest.SetHandlers(Handlers{OnResetReceived: func() { resets++ }})

	require.NoError(t, guest.SendInput("keydown", "ShiftLeft"))
	require.NoError(t, guest.SendInput("keyup", "ShiftLeft"))
	nextEvent(t, host)
	nextEvent(t, host)
	assert.Equal(t, []edge{{"keydown", "ShiftLeft"}, {"keyup", "ShiftLeft"}}, received, "order preserved")

	require.NoError(t, host.SendReset())
	assert.Equal(t, EventReset, nextEvent(t, guest).Kind)
	assert.Equal(t, 1, resets)
}

func TestPeerLeaveReturnsToIdle(t *testing.T) {
	url := startBroker(t)
	host := newManager(t, url)
	guest := newManager(t, url)
	pair(t, host, guest)

	var reason string
	host.SetHandlers(Handlers{OnDisconnected: func(r string) { reason = r }})

	guest.Disconnect()
	assert.Equal(t, Session{}, guest.Session())

	ev := nextEvent(t, host)
	assert.Equal(t, EventDisconnected, ev.Kind)
	assert.Equal(t, ReasonPeerLeft, reason)
	assert.Equal(t, Session{}, host.Session())
	assert.ErrorIs(t, host.SendInput("keydown", "KeyW"), ErrNotConnected)

	// A trailing read error from the closed socket is stale.
	select {
	case late := <-host.Events():
		host.Dispatch(late)
		assert.Equal(t, ReasonPeerLeft, reason)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWriteFailureDisconnects(t *testing.T) {
	url := startBroker(t)
	host := newManager(t, url)
	guest := newManager(t, url)
	pair(t, host, guest)

	var reasons []string
	host.SetHandlers(Handlers{OnDisconnected: func(r string) { reasons = append(reasons, r) }})

	// Every write now misses its deadline.
	host.mu.Lock()
	host.ch.writeWait = -time.Second
	host.mu.Unlock()

	require.NoError(t, host.SendInput("keydown", "ShiftLeft"), "queued before the write fails")

	ev := nextEvent(t, host)
	assert.Equal(t, EventDisconnected, ev.Kind)
	assert.Equal(t, []string{ReasonLost}, reasons)
	assert.Equal(t, Session{}, host.Session())
	assert.ErrorIs(t, host.SendInput("keyup", "ShiftLeft"), ErrNotConnected)

	// The read side ends too but reports nothing further.
	select {
	case late := <-host.Events():
		host.Dispatch(late)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Len(t, reasons, 1)
}

func TestJoinFailures(t *testing.T) {
	url := startBroker(t)
	guest := newManager(t, url)

	err := guest.JoinRoom(context.Background(), "NOPE01")
	assert.ErrorIs(t, err, ErrConnect)
	assert.Equal(t, Session{}, guest.Session(), "setup failure returns to idle")

	err = guest.JoinRoom(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrConnect)

	unreachable := newManager(t, "ws://127.0.0.1:1")
	_, err = unreachable.CreateRoom(context.Background())
	assert.ErrorIs(t, err, ErrConnect)
	assert.Equal(t, Session{}, unreachable.Session())
}

func TestCreateRoomRetriesTakenCode(t *testing.T) {
	url := startBroker(t)

	codes := []string{"SAME01", "SAME01", "FRESH1"}
	next := func() string {
		c := codes[0]
		codes = codes[1:]
		return c
	}
	first := newManager(t, url, WithCodeGenerator(next))
	second := newManager(t, url, WithCodeGenerator(next))

	code, err := first.CreateRoom(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SAME01", code)

	code, err = second.CreateRoom(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "FRESH1", code)
}

func TestSessionGuards(t *testing.T) {
	url := startBroker(t)
	host := newManager(t, url)

	assert.ErrorIs(t, host.SendReset(), ErrNotConnected)

	_, err := host.CreateRoom(context.Background())
	require.NoError(t, err)

	_, err = host.CreateRoom(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyActive)
	assert.ErrorIs(t, host.JoinRoom(context.Background(), "ABCDEF"), ErrAlreadyActive)

	assert.ErrorIs(t, host.SendInput("keydown", "KeyW"), ErrNotConnected, "waiting is not connected")
}

func TestInviteLink(t *testing.T) {
	m := NewManager(DefaultConfig(), WithCodeGenerator(func() string { return "ABC123" }))
	assert.Empty(t, m.InviteLink("https://duel.example/"))

	m.session = Session{Role: RoleHost, Code: "ABC123", Status: StatusWaiting}
	assert.Equal(t, "https://duel.example/?room=ABC123", m.InviteLink("https://duel.example/"))
	assert.Equal(t, "https://duel.example/play?lang=en&room=ABC123", m.InviteLink("https://duel.example/play?lang=en"))
}

func TestPeerURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{"ws://relay:3000", "ws://relay:3000/peer/ABC123?role=host", false},
		{"http://relay/base/", "ws://relay/base/peer/ABC123?role=host", false},
		{"https://relay", "wss://relay/peer/ABC123?role=host", false},
		{"ftp://relay", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := peerURL(tt.base, "ABC123", RoleHost)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
