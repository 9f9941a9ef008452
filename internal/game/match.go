package game

import "fmt"

// RoundCause records how a round was decided.
type RoundCause uint8

const (
	CauseNone       RoundCause = iota
	CauseHit                   // a shot reached the opponent
	CauseOvercharge            // the loser held fire past SelfDestructHold
)

func (c RoundCause) String() string {
	switch c {
	case CauseHit:
		return "hit"
	case CauseOvercharge:
		return "overcharge"
	default:
		return "none"
	}
}

// OutcomeKind classifies something that happened during a step.
type OutcomeKind uint8

const (
	OutcomeShotFired OutcomeKind = iota + 1
	OutcomeBounce
	OutcomeExpired
	OutcomeHit
	OutcomeExplosion
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeShotFired:
		return "shot_fired"
	case OutcomeBounce:
		return "bounce"
	case OutcomeExpired:
		return "expired"
	case OutcomeHit:
		return "hit"
	case OutcomeExplosion:
		return "explosion"
	default:
		return "unknown"
	}
}

// Outcome reports a discrete event so collaborators (effects, audio, the
// journal) can react without reaching into match state.
type Outcome struct {
	Kind   OutcomeKind
	Tick   uint64
	Player PlayerID // shooter, exploding player or hit owner
	ShotID uint32
	Pos    Vec2
	Circle int // hitbox circle index for OutcomeHit
}

// IntentSource supplies per-player movement input for a tick.
type IntentSource interface {
	Intent(id PlayerID) Intent
}

// Match owns the complete mutable state of one duel: both players, the
// shots in flight, the round winner and the simulation tick counter.
type Match struct {
	arena   Arena
	players [2]*Player
	shots   []*Shot

	winner PlayerID
	cause  RoundCause

	tick       uint64
	nextShotID uint32
}

// NewMatch creates a match in its initial state.
func NewMatch(arena Arena) *Match {
	m := &Match{
		arena: arena,
		players: [2]*Player{
			newPlayer(Player1, arena),
			newPlayer(Player2, arena),
		},
		shots: make([]*Shot, 0, 16),
	}
	return m
}

// Reset reinitializes positions, facing, cooldowns, life, charge state,
// shots, winner and the simulation clock.
func (m *Match) Reset() {
	for _, p := range m.players {
		p.reset(m.arena)
	}
	m.shots = m.shots[:0]
	m.winner = NoPlayer
	m.cause = CauseNone
	m.tick = 0
	m.nextShotID = 0
}

// Arena returns the play area.
func (m *Match) Arena() Arena { return m.arena }

// Player returns the player with the given id, or nil.
func (m *Match) Player(id PlayerID) *Player {
	if !id.Valid() {
		return nil
	}
	return m.players[id.index()]
}

// Shots returns the live shots. The slice is owned by the match.
func (m *Match) Shots() []*Shot { return m.shots }

// Winner returns the round winner, or NoPlayer.
func (m *Match) Winner() PlayerID { return m.winner }

// Cause returns how the round was decided.
func (m *Match) Cause() RoundCause { return m.cause }

// Frozen reports whether the round is decided.
func (m *Match) Frozen() bool { return m.winner != NoPlayer }

// Tick returns the simulation tick counter.
func (m *Match) Tick() uint64 { return m.tick }

// SimTime returns the simulation clock in seconds.
func (m *Match) SimTime() float64 { return ticksToSeconds(m.tick) }

// PressFire starts charging. Requires an alive, idle player and no winner.
func (m *Match) PressFire(id PlayerID) error {
	p := m.Player(id)
	if p == nil {
		return fmt.Errorf("press fire: unknown player %d", id)
	}
	if m.Frozen() {
		return ErrRoundOver
	}
	if !p.Alive {
		return ErrPlayerDown
	}
	if err := p.Charge.apply(TriggerPress); err != nil {
		return err
	}
	p.Charge.StartTick = m.tick
	return nil
}

// ReleaseFire ends a charge. If the player is alive, the round undecided,
// the hold shorter than SelfDestructHold and the cooldown elapsed, a shot is
// spawned and returned. A nil shot with a nil error means the charge was
// consumed without firing.
func (m *Match) ReleaseFire(id PlayerID) (*Shot, error) {
	p := m.Player(id)
	if p == nil {
		return nil, fmt.Errorf("release fire: unknown player %d", id)
	}
	held := p.Charge.Held(m.tick)
	wasCharging := p.Charge.Phase == Charging
	if err := p.Charge.apply(TriggerRelease); err != nil {
		return nil, err
	}
	if !wasCharging {
		return nil, nil
	}
	p.Charge.StartTick = 0
	if !p.Alive || m.Frozen() || held >= SelfDestructHold || p.Cooldown > 0 {
		return nil, nil
	}
	return m.fire(p, held), nil
}

func (m *Match) fire(p *Player, held float64) *Shot {
	speed, life := ShotParams(held)
	m.nextShotID++
	s := newShot(m.nextShotID, p.ID, p.Muzzle(), p.Dir, speed, life)
	m.shots = append(m.shots, s)
	p.Cooldown = FireCooldown
	return s
}

// Step advances the simulation by one fixed step: charge timers, then
// movement, then shots. A decided round does not advance at all, and the
// step stops as soon as a winner is determined.
func (m *Match) Step(src IntentSource) []Outcome {
	if m.Frozen() {
		return nil
	}
	m.tick++

	var out []Outcome
	for _, p := range m.players {
		out = m.advanceCharge(p, out)
		if m.Frozen() {
			return out
		}
	}

	for _, p := range m.players {
		var in Intent
		if src != nil {
			in = src.Intent(p.ID)
		}
		p.move(in, FixedStep, m.arena)
	}

	return m.advanceShots(out)
}

func (m *Match) advanceCharge(p *Player, out []Outcome) []Outcome {
	if p.Charge.Phase != Charging || !p.Alive {
		return out
	}
	if p.Charge.Held(m.tick) < SelfDestructHold {
		return out
	}
	if err := p.Charge.apply(TriggerOverheld); err != nil {
		return out
	}
	p.Alive = false
	m.winner = p.ID.Opponent()
	m.cause = CauseOvercharge
	return append(out, Outcome{Kind: OutcomeExplosion, Tick: m.tick, Player: p.ID, Pos: p.Pos})
}

// advanceShots moves every shot, tests it against the opposing player only,
// and filters expired shots in place. The first hit ends the round and
// leaves the remaining shots untouched.
func (m *Match) advanceShots(out []Outcome) []Outcome {
	shape := HamsterShape()
	removed := make([]bool, len(m.shots))

	// Newest shot first: when both players land a hit on the same tick the
	// later shot decides the round.
	for i := len(m.shots) - 1; i >= 0; i-- {
		s := m.shots[i]
		if s.advance(FixedStep, m.arena) {
			out = append(out, Outcome{Kind: OutcomeBounce, Tick: m.tick, Player: s.Owner, ShotID: s.ID, Pos: s.Pos})
		}

		target := m.Player(s.Owner.Opponent())
		if circle := shape.ShotHits(target.Pos, s); circle >= 0 {
			m.winner = s.Owner
			m.cause = CauseHit
			out = append(out, Outcome{Kind: OutcomeHit, Tick: m.tick, Player: s.Owner, ShotID: s.ID, Pos: s.Pos, Circle: circle})
			removed[i] = true
			break
		}

		if s.Expired() {
			out = append(out, Outcome{Kind: OutcomeExpired, Tick: m.tick, Player: s.Owner, ShotID: s.ID, Pos: s.Pos})
			removed[i] = true
		}
	}

	n := 0
	for i, s := range m.shots {
		if removed[i] {
			continue
		}
		m.shots[n] = s
		n++
	}
	clear(m.shots[n:])
	m.shots = m.shots[:n]
	return out
}
