package game

// PlayerSnapshot is an immutable copy of player state for rendering.
// Uses value types so collaborators cannot mutate the match.
type PlayerSnapshot struct {
	ID          PlayerID
	X, Y        float64
	DirX, DirY  float64
	Alive       bool
	Phase       ChargePhase
	Held        float64 // seconds the fire key has been held
	ChargeRatio float64 // Held / MaxChargeTime clamped to [0, 1]
	Overcharged bool    // past MaxChargeTime, heading for self-destruct
	Cooldown    float64
}

// ShotSnapshot is an immutable shot for rendering.
type ShotSnapshot struct {
	ID           uint32
	Owner        PlayerID
	X, Y         float64 // leading point
	TailX, TailY float64
	DirX, DirY   float64
	Speed        float64
	Age, Life    float64
}

// Snapshot is the per-tick view handed to the rendering collaborator.
type Snapshot struct {
	Tick    uint64
	SimTime float64
	Width   float64
	Height  float64
	Players [2]PlayerSnapshot
	Shots   []ShotSnapshot
	Winner  PlayerID
	Cause   RoundCause
}

// Snapshot copies the current match state.
func (m *Match) Snapshot() Snapshot {
	s := Snapshot{
		Tick:    m.tick,
		SimTime: m.SimTime(),
		Width:   m.arena.Width,
		Height:  m.arena.Height,
		Shots:   make([]ShotSnapshot, 0, len(m.shots)),
		Winner:  m.winner,
		Cause:   m.cause,
	}
	for i, p := range m.players {
		held := p.Charge.Held(m.tick)
		s.Players[i] = PlayerSnapshot{
			ID:          p.ID,
			X:           p.Pos.X,
			Y:           p.Pos.Y,
			DirX:        p.Dir.X,
			DirY:        p.Dir.Y,
			Alive:       p.Alive,
			Phase:       p.Charge.Phase,
			Held:        held,
			ChargeRatio: ChargeRatio(held),
			Overcharged: p.Charge.Phase == Charging && held >= MaxChargeTime,
			Cooldown:    p.Cooldown,
		}
	}
	for _, sh := range m.shots {
		seg := sh.Segment()
		s.Shots = append(s.Shots, ShotSnapshot{
			ID:    sh.ID,
			Owner: sh.Owner,
			X:     seg.A.X,
			Y:     seg.A.Y,
			TailX: seg.B.X,
			TailY: seg.B.Y,
			DirX:  sh.Dir.X,
			DirY:  sh.Dir.Y,
			Speed: sh.Speed,
			Age:   sh.Age,
			Life:  sh.Life,
		})
	}
	return s
}

// Player returns the snapshot of the given player.
func (s Snapshot) Player(id PlayerID) PlayerSnapshot {
	if !id.Valid() {
		return PlayerSnapshot{}
	}
	return s.Players[id.index()]
}
