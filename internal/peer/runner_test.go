package peer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hamster-duel/internal/game"
	"hamster-duel/internal/input"
	"hamster-duel/internal/netplay"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeSession struct {
	handlers  netplay.Handlers
	events    chan netplay.Event
	createErr error
	joinErr   error
	joined    string
	inputs    []string
	resets    int
	closed    bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{events: make(chan netplay.Event, 8)}
}

func (f *fakeSession) CreateRoom(context.Context) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	return "ROOM42", nil
}

func (f *fakeSession) JoinRoom(_ context.Context, code string) error {
	f.joined = code
	return f.joinErr
}

func (f *fakeSession) SendInput(eventType, code string) error {
	f.inputs = append(f.inputs, eventType+" "+code)
	return nil
}

func (f *fakeSession) SendReset() error               { f.resets++; return nil }
func (f *fakeSession) Disconnect()                    { f.closed = true }
func (f *fakeSession) SetHandlers(h netplay.Handlers) { f.handlers = h }
func (f *fakeSession) Events() <-chan netplay.Event   { return f.events }
func (f *fakeSession) Dispatch(ev netplay.Event) {
	if ev.Kind == netplay.EventConnected {
		f.handlers.OnConnected()
	}
}
func (f *fakeSession) InviteLink(base string) string { return base + "?room=ROOM42" }

type fakeUI struct {
	started  []Mode
	ended    []game.RoundCause
	winners  []game.PlayerID
	statuses []string
	menu     []string
}

func (u *fakeUI) MatchStarted(m Mode) { u.started = append(u.started, m) }
func (u *fakeUI) MatchEnded(w game.PlayerID, c game.RoundCause) {
	u.winners = append(u.winners, w)
	u.ended = append(u.ended, c)
}
func (u *fakeUI) Status(s string)         { u.statuses = append(u.statuses, s) }
func (u *fakeUI) ReturnedToMenu(r string) { u.menu = append(u.menu, r) }

func (u *fakeUI) lastStatus() string {
	if len(u.statuses) == 0 {
		return ""
	}
	return u.statuses[len(u.statuses)-1]
}

type flakyAudio struct {
	failures int
	calls    int
}

func (a *flakyAudio) Start() error {
	a.calls++
	if a.calls <= a.failures {
		return errors.New("no audio device")
	}
	return nil
}

type countingRenderer struct {
	frames int
	last   game.Snapshot
}

func (c *countingRenderer) Render(s game.Snapshot) {
	c.frames++
	c.last = s
}

// ============================================================================
// Helpers
// ============================================================================

func down(code string) input.Edge { return input.Edge{Kind: input.KeyDown, Code: code} }
func up(code string) input.Edge   { return input.Edge{Kind: input.KeyUp, Code: code} }

// advance runs whole ticks through the runner's frame path.
func advance(r *Runner, ticks int) {
	for i := 0; i < ticks; i++ {
		r.frame(game.FixedStep)
	}
}

func startedRunner(t *testing.T, cfg Config, opts ...Option) *Runner {
	t.Helper()
	r := New(cfg, opts...)
	require.NoError(t, r.Start(context.Background()))
	return r
}

// connectedRunner starts a networked runner and delivers the open event.
func connectedRunner(t *testing.T, mode Mode, opts ...Option) (*Runner, *fakeSession, *fakeUI) {
	t.Helper()
	s := newFakeSession()
	ui := &fakeUI{}
	cfg := DefaultConfig()
	cfg.Mode = mode
	cfg.Room = "room42"
	r := startedRunner(t, cfg, append([]Option{WithSession(s), WithUI(ui)}, opts...)...)
	s.handlers.OnConnected()
	require.True(t, r.active)
	return r, s, ui
}

// ============================================================================
// Local play
// ============================================================================

func TestLocalQuarterChargeShot(t *testing.T) {
	ui := &fakeUI{}
	r := startedRunner(t, DefaultConfig(), WithUI(ui))
	assert.Equal(t, []Mode{ModeLocal}, ui.started)
	assert.Equal(t, StatusDuelStart, ui.lastStatus())

	r.handleEdge(down("ShiftLeft"))
	advance(r, 60) // 0.5 s
	r.handleEdge(up("ShiftLeft"))

	shots := r.match.Shots()
	require.Len(t, shots, 1)
	assert.InDelta(t, 602.5, shots[0].Speed, 1e-9)
	assert.InDelta(t, 0.9025, shots[0].Life, 1e-9)
	assert.Equal(t, game.Player1, shots[0].Owner)
	assert.InDelta(t, game.FireCooldown, r.match.Player(game.Player1).Cooldown, 1e-9)
}

func TestLocalOverchargeEndsRound(t *testing.T) {
	ui := &fakeUI{}
	r := startedRunner(t, DefaultConfig(), WithUI(ui))

	r.handleEdge(down("ShiftRight"))
	advance(r, 4*game.TickRate)

	assert.Equal(t, []game.RoundCause{game.CauseOvercharge}, ui.ended)
	assert.Equal(t, []game.PlayerID{game.Player1}, ui.winners)
	assert.Equal(t, "1P wins! 2P overcharge explosion", ui.lastStatus())
	assert.False(t, r.match.Player(game.Player2).Alive)

	r.handleEdge(up("ShiftRight"))
	assert.Empty(t, r.match.Shots(), "release after explosion fires nothing")
}

func TestLocalResetAnyTime(t *testing.T) {
	r := startedRunner(t, DefaultConfig())

	r.handleEdge(down("KeyD"))
	advance(r, 30)
	moved := r.match.Player(game.Player1).Pos
	r.handleEdge(up("KeyD"))

	r.handleEdge(input.Edge{Kind: input.KeyDown, Code: input.ResetKey, Repeat: true})

	fresh := game.NewMatch(game.DefaultArena())
	assert.NotEqual(t, fresh.Player(game.Player1).Pos, moved)
	assert.Equal(t, fresh.Snapshot(), r.match.Snapshot())
	assert.Zero(t, r.clock.Pending())
}

func TestRendererAndMetrics(t *testing.T) {
	rd := &countingRenderer{}
	m := &recordingMetrics{}
	r := startedRunner(t, DefaultConfig(), WithRenderer(rd), WithMetrics(m))

	advance(r, 3)
	assert.Equal(t, 3, rd.frames)
	assert.Equal(t, uint64(3), rd.last.Tick)
	assert.Equal(t, 3, m.frames)
	assert.Equal(t, 3, m.steps)
}

type recordingMetrics struct {
	frames, steps int
	rounds        []string
}

func (m *recordingMetrics) RecordFrame(_ time.Duration, steps, _ int) { m.frames++; m.steps += steps }
func (m *recordingMetrics) RecordRender(time.Duration)                {}
func (m *recordingMetrics) RecordRound(cause string)                  { m.rounds = append(m.rounds, cause) }
func (m *recordingMetrics) UpdateJournal(uint64, uint64)              {}

func TestAudioRetriedUntilStarted(t *testing.T) {
	audio := &flakyAudio{failures: 1}
	r := startedRunner(t, DefaultConfig(), WithAudio(audio))

	r.handleEdge(down("KeyW"))
	r.handleEdge(up("KeyW"))
	assert.Equal(t, 1, audio.calls, "key-up does not count as interaction")
	assert.False(t, r.audioStarted)

	r.handleEdge(down("KeyW"))
	assert.True(t, r.audioStarted)
	r.handleEdge(down("KeyA"))
	assert.Equal(t, 2, audio.calls)
}

// ============================================================================
// Networked play
// ============================================================================

func TestHostWaitsForGuest(t *testing.T) {
	s := newFakeSession()
	ui := &fakeUI{}
	cfg := DefaultConfig()
	cfg.Mode = ModeHost
	cfg.InviteBase = "https://duel.example/"
	r := startedRunner(t, cfg, WithSession(s), WithUI(ui))

	assert.Equal(t, "ROOM42", r.Room())
	assert.Equal(t, "Room ROOM42: waiting for guest (https://duel.example/?room=ROOM42)", ui.lastStatus())
	assert.False(t, r.active)

	r.handleEdge(down("KeyW"))
	assert.Empty(t, s.inputs, "no match, nothing relayed")

	s.handlers.OnConnected()
	assert.True(t, r.active)
	assert.Equal(t, []Mode{ModeHost}, ui.started)
	assert.Equal(t, StatusConnected, ui.lastStatus())
}

func TestRelayedFireStartsChargingAtCurrentTick(t *testing.T) {
	r, _, _ := connectedRunner(t, ModeHost)
	advance(r, 10)

	s := r.session.(*fakeSession)
	s.handlers.OnInputReceived("keydown", "ShiftLeft")

	p2 := r.match.Player(game.Player2)
	assert.Equal(t, game.Charging, p2.Charge.Phase)
	assert.Equal(t, r.match.Tick(), p2.Charge.StartTick)
	assert.Equal(t, game.Idle, r.match.Player(game.Player1).Charge.Phase)
}

func TestLocalEdgesForwarded(t *testing.T) {
	r, s, _ := connectedRunner(t, ModeGuest)
	assert.Equal(t, "room42", s.joined)

	r.handleEdge(down("KeyW"))
	r.handleEdge(input.Edge{Kind: input.KeyDown, Code: "KeyW", Repeat: true})
	r.handleEdge(down("ArrowUp"))
	r.handleEdge(up("KeyW"))

	assert.Equal(t, []string{"keydown KeyW", "keyup KeyW"}, s.inputs)
}

func TestRemoteEdgesFiltered(t *testing.T) {
	r, s, _ := connectedRunner(t, ModeHost)

	s.handlers.OnInputReceived("keydown", "ArrowLeft")
	s.handlers.OnInputReceived("sideways", "KeyA")
	advance(r, 12)

	start, _ := game.DefaultArena().Spawn(game.Player2)
	assert.Equal(t, start, r.match.Player(game.Player2).Pos)
}

func TestNetworkedResetRules(t *testing.T) {
	t.Run("ignored while the round is undecided", func(t *testing.T) {
		r, s, _ := connectedRunner(t, ModeHost)
		r.handleEdge(down("KeyD"))
		advance(r, 10)
		pos := r.match.Player(game.Player1).Pos

		r.handleEdge(down(input.ResetKey))
		assert.Equal(t, pos, r.match.Player(game.Player1).Pos)
		assert.Zero(t, s.resets)
	})

	t.Run("host reset is relayed", func(t *testing.T) {
		r, s, ui := connectedRunner(t, ModeHost)
		r.handleEdge(down("ShiftLeft"))
		advance(r, 4*game.TickRate)
		require.True(t, r.match.Frozen())

		r.handleEdge(down(input.ResetKey))
		assert.Equal(t, 1, s.resets)
		assert.False(t, r.match.Frozen())
		assert.Equal(t, StatusDuelStart, ui.lastStatus())
	})

	t.Run("guest reset stays local", func(t *testing.T) {
		r, s, _ := connectedRunner(t, ModeGuest)
		r.handleEdge(down("ShiftLeft"))
		advance(r, 4*game.TickRate)
		require.True(t, r.match.Frozen())

		r.handleEdge(down(input.ResetKey))
		assert.Zero(t, s.resets)
		assert.False(t, r.match.Frozen())
	})

	t.Run("received reset applies at any time", func(t *testing.T) {
		r, s, _ := connectedRunner(t, ModeGuest)
		r.handleEdge(down("KeyA"))
		advance(r, 10)

		s.handlers.OnResetReceived()
		assert.Equal(t, game.NewMatch(game.DefaultArena()).Snapshot(), r.match.Snapshot())
	})
}

func TestDisconnectReturnsToMenu(t *testing.T) {
	r, s, ui := connectedRunner(t, ModeGuest)
	r.handleEdge(down("KeyW"))

	s.handlers.OnDisconnected(netplay.ReasonPeerLeft)

	assert.False(t, r.active)
	require.Len(t, ui.menu, 1)
	assert.Contains(t, ui.menu[0], netplay.ReasonPeerLeft)
	assert.Equal(t, game.Intent{}, r.router.Intent(game.Player2), "held keys released")

	tick := r.match.Tick()
	advance(r, 5)
	assert.Equal(t, tick, r.match.Tick(), "no simulation after disconnect")
}

func TestStartFailures(t *testing.T) {
	s := newFakeSession()
	s.joinErr = netplay.ErrConnect
	ui := &fakeUI{}
	cfg := DefaultConfig()
	cfg.Mode = ModeGuest
	cfg.Room = "NOPE01"
	r := New(cfg, WithSession(s), WithUI(ui))

	err := r.Start(context.Background())
	assert.ErrorIs(t, err, netplay.ErrConnect)
	assert.Equal(t, []string{StatusConnecting}, ui.statuses)
	require.Len(t, ui.menu, 1)
	assert.True(t, strings.HasPrefix(ui.menu[0], "Failed to join room"))

	cfg.Mode = ModeHost
	assert.Error(t, New(cfg).Start(context.Background()), "networked mode without session")
}

func TestJournalRecordsMatch(t *testing.T) {
	var buf bytes.Buffer
	j := game.NewJournal()
	j.StartWriter(&buf)

	r, s, _ := connectedRunner(t, ModeHost, WithJournal(j))
	r.handleEdge(down("ShiftLeft"))
	advance(r, 60)
	r.handleEdge(up("ShiftLeft"))
	s.handlers.OnInputReceived("keydown", "KeyW")
	j.Stop()

	out := buf.String()
	for _, want := range []string{`"source":"local"`, `"source":"remote"`, `"mode":"host"`, `"speed":602.5`} {
		assert.Contains(t, out, want)
	}
	assert.Equal(t, 5, strings.Count(out, "\n"), "start, press, release, shot, remote edge")
}

// ============================================================================
// Loop
// ============================================================================

func TestRunProcessesKeysAndEvents(t *testing.T) {
	s := newFakeSession()
	cfg := DefaultConfig()
	cfg.Mode = ModeHost
	r := New(cfg, WithSession(s))
	require.NoError(t, r.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()

	s.events <- netplay.Event{Kind: netplay.EventConnected}
	require.Eventually(t, func() bool {
		var active bool
		return r.do(ctx, func() { active = r.active }) == nil && active
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, r.Key(ctx, down("ShiftLeft")))

	require.Eventually(t, func() bool {
		snap, err := r.Snapshot(ctx)
		return err == nil && snap.Player(game.Player1).Phase == game.Charging
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"keydown ShiftLeft"}, s.inputs)

	cancel()
	require.NoError(t, <-errc)
	assert.True(t, s.closed)

	_, err := r.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, r.Key(context.Background(), down("KeyW")), ErrStopped)
}
