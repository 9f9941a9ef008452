package relay

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hamster-duel/internal/protocol"
)

// brokerServer exposes a broker on /peer/{code}?role=... without the api
// package's middleware.
func brokerServer(t *testing.T, cfg Config) (*Broker, *httptest.Server) {
	t.Helper()
	b := NewBroker(cfg)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := strings.TrimPrefix(r.URL.Path, "/peer/")
		role, err := ParseRole(r.URL.Query().Get("role"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		room, err := b.Reserve(code, role)
		switch {
		case errors.Is(err, ErrRoomNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		case err != nil:
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.Release(room, role)
			return
		}
		b.Serve(conn, room, role, "test")
	}))
	t.Cleanup(srv.Close)
	return b, srv
}

func dialPeer(t *testing.T, srv *httptest.Server, code string, role Role) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/peer/" + code + "?role=" + string(role)
	return websocket.DefaultDialer.Dial(url, nil)
}

func readFrame(t *testing.T, c *websocket.Conn) protocol.Message {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.Decode(data)
	require.NoError(t, err)
	return msg
}

func TestBrokerPairsAndRelays(t *testing.T) {
	b, srv := brokerServer(t, DefaultConfig())

	host, _, err := dialPeer(t, srv, "DUEL01", RoleHost)
	require.NoError(t, err)
	defer host.Close()

	require.Eventually(t, func() bool { return b.Stats().Waiting == 1 }, time.Second, 10*time.Millisecond)

	guest, _, err := dialPeer(t, srv, "DUEL01", RoleGuest)
	require.NoError(t, err)
	defer guest.Close()

	assert.Equal(t, protocol.TypeOpen, readFrame(t, host).Type)
	assert.Equal(t, protocol.TypeOpen, readFrame(t, guest).Type)

	input := protocol.NewInput("keydown", "ShiftLeft", time.UnixMilli(5))
	data, err := protocol.Encode(input)
	require.NoError(t, err)
	require.NoError(t, guest.WriteMessage(websocket.TextMessage, data))
	assert.Equal(t, input, readFrame(t, host))

	reset, _ := protocol.Encode(protocol.NewReset(time.UnixMilli(6)))
	require.NoError(t, host.WriteMessage(websocket.TextMessage, reset))
	assert.Equal(t, protocol.TypeReset, readFrame(t, guest).Type)

	assert.Equal(t, 1, b.Stats().Paired)
	assert.Eventually(t, func() bool { return b.Stats().Relayed == 2 }, time.Second, 10*time.Millisecond)
}

func TestBrokerCloseFrameOnLeave(t *testing.T) {
	b, srv := brokerServer(t, DefaultConfig())

	host, _, err := dialPeer(t, srv, "DUEL02", RoleHost)
	require.NoError(t, err)
	defer host.Close()
	guest, _, err := dialPeer(t, srv, "DUEL02", RoleGuest)
	require.NoError(t, err)

	readFrame(t, host)
	readFrame(t, guest)

	guest.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	guest.Close()

	assert.Equal(t, protocol.TypeClose, readFrame(t, host).Type)

	host.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = host.ReadMessage()
	assert.Error(t, err, "broker closes the survivor")

	require.Eventually(t, func() bool { return b.Stats().Rooms == 0 }, time.Second, 10*time.Millisecond)

	// The code is free again.
	again, _, err := dialPeer(t, srv, "DUEL02", RoleHost)
	require.NoError(t, err)
	again.Close()
}

func TestBrokerRejections(t *testing.T) {
	_, srv := brokerServer(t, DefaultConfig())

	host, _, err := dialPeer(t, srv, "DUEL03", RoleHost)
	require.NoError(t, err)
	defer host.Close()

	_, resp, err := dialPeer(t, srv, "DUEL03", RoleHost)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	_, resp, err = dialPeer(t, srv, "NOROOM", RoleGuest)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	guest, _, err := dialPeer(t, srv, "DUEL03", RoleGuest)
	require.NoError(t, err)
	defer guest.Close()

	_, resp, err = dialPeer(t, srv, "DUEL03", RoleGuest)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestBrokerDropsForgedControlFrames(t *testing.T) {
	b, srv := brokerServer(t, DefaultConfig())

	host, _, err := dialPeer(t, srv, "DUEL04", RoleHost)
	require.NoError(t, err)
	defer host.Close()
	guest, _, err := dialPeer(t, srv, "DUEL04", RoleGuest)
	require.NoError(t, err)
	defer guest.Close()
	readFrame(t, host)
	readFrame(t, guest)

	closeFrame, _ := protocol.Encode(protocol.Control(protocol.TypeClose))
	require.NoError(t, guest.WriteMessage(websocket.TextMessage, closeFrame))
	reset, _ := protocol.Encode(protocol.NewReset(time.UnixMilli(1)))
	require.NoError(t, guest.WriteMessage(websocket.TextMessage, reset))

	assert.Equal(t, protocol.TypeReset, readFrame(t, host).Type, "forged close never arrives")
	assert.Equal(t, uint64(1), b.Stats().Dropped)
	assert.Equal(t, StatePaired, mustLookup(t, b, "DUEL04").State)
}

func TestBrokerFrameRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameRate = 1
	cfg.FrameBurst = 2
	b, srv := brokerServer(t, cfg)

	host, _, err := dialPeer(t, srv, "DUEL05", RoleHost)
	require.NoError(t, err)
	defer host.Close()
	guest, _, err := dialPeer(t, srv, "DUEL05", RoleGuest)
	require.NoError(t, err)
	defer guest.Close()
	readFrame(t, host)
	readFrame(t, guest)

	data, _ := protocol.Encode(protocol.NewInput("keydown", "KeyW", time.UnixMilli(1)))
	for i := 0; i < 10; i++ {
		if err := guest.WriteMessage(websocket.TextMessage, data); err != nil {
			break
		}
	}

	// Frames inside the burst are relayed, then the flood closes the room.
	for i := 0; i < 2; i++ {
		assert.Equal(t, protocol.TypeInput, readFrame(t, host).Type)
	}
	assert.Equal(t, protocol.TypeClose, readFrame(t, host).Type)

	require.Eventually(t, func() bool {
		_, ok := b.Lookup("DUEL05")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(2), b.Stats().Relayed)
	assert.Equal(t, uint64(1), b.Stats().Dropped)
}

func mustLookup(t *testing.T, b *Broker, code string) RoomInfo {
	t.Helper()
	info, ok := b.Lookup(code)
	require.True(t, ok, code)
	return info
}
