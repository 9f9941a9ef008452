package peer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"hamster-duel/internal/game"
	"hamster-duel/internal/input"
	"hamster-duel/internal/netplay"
)

// ErrStopped is returned by requests made after Run returned.
var ErrStopped = errors.New("runner stopped")

// Status lines shown by the UI.
const (
	StatusDuelStart  = "Duel start!"
	StatusConnecting = "Connecting..."
	StatusConnected  = "Connected! Duel start!"
)

// Config configures a Runner.
type Config struct {
	Mode          Mode
	Room          string        // room code to join in ModeGuest
	FrameRate     int           // display frames per second
	MaxFrameDelta time.Duration // clamp for one frame's elapsed time
	InviteBase    string        // base URL for the host's invite link
}

// DefaultConfig returns a local-mode configuration at 60 frames per second.
func DefaultConfig() Config {
	return Config{
		Mode:          ModeLocal,
		FrameRate:     60,
		MaxFrameDelta: 50 * time.Millisecond,
	}
}

// Runner is the cooperative loop of one replica.
type Runner struct {
	cfg Config

	match  *game.Match
	clock  *game.Clock
	router *input.Router

	session Session
	journal *game.Journal

	renderer Renderer
	audio    Audio
	ui       UI
	metrics  Metrics
	logger   zerolog.Logger

	edges    chan input.Edge
	requests chan func()
	done     chan struct{}

	active       bool // a match is running
	audioStarted bool
	room         string
}

// Option configures a Runner.
type Option func(*Runner)

// WithSession sets the network session; required for ModeHost and ModeGuest.
func WithSession(s Session) Option { return func(r *Runner) { r.session = s } }

// WithRenderer sets the rendering collaborator.
func WithRenderer(rd Renderer) Option { return func(r *Runner) { r.renderer = rd } }

// WithAudio sets the audio collaborator.
func WithAudio(a Audio) Option { return func(r *Runner) { r.audio = a } }

// WithUI sets the UI collaborator.
func WithUI(ui UI) Option { return func(r *Runner) { r.ui = ui } }

// WithJournal records the match to j. The caller owns Start/Stop.
func WithJournal(j *game.Journal) Option { return func(r *Runner) { r.journal = j } }

// WithMetrics reports loop timings.
func WithMetrics(m Metrics) Option { return func(r *Runner) { r.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(r *Runner) { r.logger = l } }

// New creates a runner. Call Start, then Run.
func New(cfg Config, opts ...Option) *Runner {
	d := DefaultConfig()
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = d.FrameRate
	}
	if cfg.MaxFrameDelta <= 0 {
		cfg.MaxFrameDelta = d.MaxFrameDelta
	}

	r := &Runner{
		cfg:      cfg,
		match:    game.NewMatch(game.DefaultArena()),
		clock:    game.NewClock(),
		ui:       nopUI{},
		logger:   zerolog.Nop(),
		edges:    make(chan input.Edge, 64),
		requests: make(chan func()),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	switch cfg.Mode {
	case ModeHost:
		r.router = input.NewNetworkedRouter(game.Player1)
	case ModeGuest:
		r.router = input.NewNetworkedRouter(game.Player2)
	default:
		r.router = input.NewLocalRouter()
	}
	return r
}

// Start begins the configured mode. Local play starts immediately; a host
// registers a room and waits for a guest; a guest joins the configured
// room. A setup failure returns the UI to the menu and is returned.
// Start must not run concurrently with Run.
func (r *Runner) Start(ctx context.Context) error {
	if !r.cfg.Mode.Networked() {
		r.startMatch()
		return nil
	}
	if r.session == nil {
		return fmt.Errorf("%s mode requires a session", r.cfg.Mode)
	}

	r.session.SetHandlers(netplay.Handlers{
		OnConnected:     r.onConnected,
		OnDisconnected:  r.onDisconnected,
		OnInputReceived: r.onInputReceived,
		OnResetReceived: r.onResetReceived,
	})

	switch r.cfg.Mode {
	case ModeHost:
		code, err := r.session.CreateRoom(ctx)
		if err != nil {
			r.ui.ReturnedToMenu("Failed to create room: " + err.Error())
			return fmt.Errorf("create room: %w", err)
		}
		r.room = code
		status := fmt.Sprintf("Room %s: waiting for guest", code)
		if r.cfg.InviteBase != "" {
			status += " (" + r.session.InviteLink(r.cfg.InviteBase) + ")"
		}
		r.ui.Status(status)
	case ModeGuest:
		r.ui.Status(StatusConnecting)
		if err := r.session.JoinRoom(ctx, r.cfg.Room); err != nil {
			r.ui.ReturnedToMenu("Failed to join room: " + err.Error())
			return fmt.Errorf("join room: %w", err)
		}
		r.room = r.cfg.Room
	}
	return nil
}

// Room returns the room code of a networked session.
func (r *Runner) Room() string { return r.room }

// Run drives the replica until ctx is cancelled. Key edges, session events
// and requests are interleaved with display frames on this goroutine.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)
	defer r.shutdown()

	ticker := time.NewTicker(time.Second / time.Duration(r.cfg.FrameRate))
	defer ticker.Stop()

	var events <-chan netplay.Event
	if r.session != nil {
		events = r.session.Events()
	}

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			r.frame(now.Sub(last).Seconds())
			last = now
		case e := <-r.edges:
			r.handleEdge(e)
		case ev := <-events:
			r.session.Dispatch(ev)
		case fn := <-r.requests:
			fn()
		}
	}
}

// Key queues a local key edge. Safe to call from any goroutine.
func (r *Runner) Key(ctx context.Context, e input.Edge) error {
	select {
	case <-r.done:
		return ErrStopped
	default:
	}
	select {
	case r.edges <- e:
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current match state from the loop goroutine.
func (r *Runner) Snapshot(ctx context.Context) (game.Snapshot, error) {
	var snap game.Snapshot
	err := r.do(ctx, func() { snap = r.match.Snapshot() })
	return snap, err
}

func (r *Runner) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case r.requests <- func() { fn(); close(finished) }:
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// frame runs the fixed steps covered by elapsed seconds and renders once.
func (r *Runner) frame(elapsed float64) {
	if !r.active {
		return
	}
	elapsed = min(elapsed, r.cfg.MaxFrameDelta.Seconds())

	start := time.Now()
	steps, out := r.clock.Frame(elapsed, r.match, r.router)
	if r.metrics != nil {
		r.metrics.RecordFrame(time.Since(start), steps, len(r.match.Shots()))
	}
	r.applyOutcomes(out)

	if r.renderer != nil {
		start = time.Now()
		r.renderer.Render(r.match.Snapshot())
		if r.metrics != nil {
			r.metrics.RecordRender(time.Since(start))
		}
	}
}

func (r *Runner) applyOutcomes(out []game.Outcome) {
	if r.journal != nil {
		r.journal.RecordOutcomes(out)
	}
	for _, o := range out {
		switch o.Kind {
		case game.OutcomeHit:
			r.roundOver(o.Player, game.CauseHit,
				fmt.Sprintf("%s wins! Press R to restart", o.Player))
		case game.OutcomeExplosion:
			winner := o.Player.Opponent()
			r.roundOver(winner, game.CauseOvercharge,
				fmt.Sprintf("%s wins! %s overcharge explosion", winner, o.Player))
		}
	}
}

func (r *Runner) roundOver(winner game.PlayerID, cause game.RoundCause, status string) {
	r.logger.Info().Stringer("winner", winner).Stringer("cause", cause).Uint64("tick", r.match.Tick()).Msg("🏁 round over")
	r.ui.MatchEnded(winner, cause)
	r.ui.Status(status)
	if r.metrics != nil {
		r.metrics.RecordRound(cause.String())
		if r.journal != nil {
			st := r.journal.Stats()
			r.metrics.UpdateJournal(st.Total, st.Dropped)
		}
	}
}

// handleEdge applies a key edge observed on this machine.
func (r *Runner) handleEdge(e input.Edge) {
	if e.Kind == input.KeyDown {
		r.ensureAudio()
	}

	// Reset is handled ahead of the auto-repeat filter
	if e.Code == input.ResetKey {
		if e.Kind == input.KeyDown {
			r.handleResetKey()
		}
		return
	}
	if !r.active {
		return
	}

	forward, res := r.router.HandleLocal(e, r.match)
	if forward && r.session != nil {
		if err := r.session.SendInput(string(e.Kind), e.Code); err != nil {
			r.logger.Debug().Err(err).Str("code", e.Code).Msg("input not relayed")
		}
	}
	r.recordEdge(game.SourceLocal, e, res)
}

func (r *Runner) onInputReceived(eventType, code string) {
	if !r.active {
		return
	}
	kind, err := input.ParseEdgeKind(eventType)
	if err != nil {
		return
	}
	e := input.Edge{Kind: kind, Code: code}
	res := r.router.HandleRemote(e, r.match)
	r.recordEdge(game.SourceRemote, e, res)
}

func (r *Runner) recordEdge(source string, e input.Edge, res input.Result) {
	if !res.Applied() {
		return
	}
	if res.Err != nil {
		r.logger.Debug().Err(res.Err).Stringer("player", res.Player).Str("code", e.Code).Msg("fire press rejected")
	}
	if r.journal == nil {
		return
	}
	tick := r.match.Tick()
	r.journal.Record(game.EventTypeEdge, tick, source, game.EdgePayload{
		Player: res.Player,
		Kind:   string(e.Kind),
		Code:   e.Code,
	})
	if res.Shot != nil {
		r.journal.Emit(game.ShotEvent(tick, game.SourceSim, res.Shot))
	}
}

// handleResetKey resets at any time in local play. Networked play only
// resets a decided round; the host tells the guest, the guest resets its
// own replica only.
func (r *Runner) handleResetKey() {
	if !r.active {
		return
	}
	switch r.cfg.Mode {
	case ModeLocal:
		r.resetMatch("local")
	case ModeHost:
		if !r.match.Frozen() {
			return
		}
		if err := r.session.SendReset(); err != nil {
			r.logger.Debug().Err(err).Msg("reset not relayed")
		}
		r.resetMatch("local")
	case ModeGuest:
		if !r.match.Frozen() {
			return
		}
		r.resetMatch("local")
	}
}

func (r *Runner) onResetReceived() {
	if !r.active {
		return
	}
	r.resetMatch("remote")
}

func (r *Runner) resetMatch(origin string) {
	r.match.Reset()
	r.clock.Reset()
	if r.journal != nil {
		r.journal.Record(game.EventTypeReset, r.match.Tick(), game.SourceLocal, game.ResetPayload{Origin: origin})
	}
	r.logger.Debug().Str("origin", origin).Msg("match reset")
	r.ui.Status(StatusDuelStart)
}

func (r *Runner) onConnected() {
	r.ui.Status(StatusConnected)
	r.startMatch()
}

func (r *Runner) onDisconnected(reason string) {
	r.stopMatch(reason)
	r.ui.ReturnedToMenu("Connection to the other player was lost: " + reason)
}

// startMatch boots a fresh match for the configured mode.
func (r *Runner) startMatch() {
	r.match.Reset()
	r.clock.Reset()
	r.router.Release()
	r.active = true

	if r.journal != nil {
		payload := game.MatchStartPayload{Mode: r.cfg.Mode.String(), Room: r.room}
		if r.cfg.Mode.Networked() {
			payload.Role = r.cfg.Mode.String()
		}
		r.journal.Record(game.EventTypeMatchStart, r.match.Tick(), game.SourceLocal, payload)
	}
	r.logger.Info().Stringer("mode", r.cfg.Mode).Str("room", r.room).Msg("🎮 match started")
	r.ui.MatchStarted(r.cfg.Mode)
	if !r.cfg.Mode.Networked() {
		r.ui.Status(StatusDuelStart)
	}
}

func (r *Runner) stopMatch(reason string) {
	if !r.active {
		return
	}
	r.active = false
	r.router.Release()
	if r.journal != nil {
		r.journal.Record(game.EventTypeDisconnect, r.match.Tick(), game.SourceLocal, game.DisconnectPayload{Reason: reason})
	}
	r.logger.Info().Str("reason", reason).Msg("🛑 match stopped")
}

func (r *Runner) ensureAudio() {
	if r.audio == nil || r.audioStarted {
		return
	}
	if err := r.audio.Start(); err != nil {
		r.logger.Debug().Err(err).Msg("audio not started, will retry")
		return
	}
	r.audioStarted = true
}

func (r *Runner) shutdown() {
	r.stopMatch("shutdown")
	if r.session != nil {
		r.session.Disconnect()
	}
}
