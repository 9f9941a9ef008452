package game

import "fmt"

// PlayerID identifies one of the two duelists. The zero value means "none".
type PlayerID int

const (
	NoPlayer PlayerID = 0
	Player1  PlayerID = 1
	Player2  PlayerID = 2
)

// Valid reports whether id names an actual player.
func (id PlayerID) Valid() bool {
	return id == Player1 || id == Player2
}

// Opponent returns the other player.
func (id PlayerID) Opponent() PlayerID {
	switch id {
	case Player1:
		return Player2
	case Player2:
		return Player1
	}
	return NoPlayer
}

func (id PlayerID) index() int {
	return int(id) - 1
}

// String returns the on-screen label ("1P", "2P").
func (id PlayerID) String() string {
	if !id.Valid() {
		return "none"
	}
	return fmt.Sprintf("%dP", int(id))
}

// Arena is the fixed rectangular play area.
type Arena struct {
	Width, Height float64
}

// DefaultArena returns the standard 1200x700 arena.
func DefaultArena() Arena {
	return Arena{Width: ArenaWidth, Height: ArenaHeight}
}

// ClampPlayer keeps a body center inside the arena minus PlayerMargin.
func (a Arena) ClampPlayer(p Vec2) Vec2 {
	return Vec2{
		X: clamp(p.X, PlayerMargin, a.Width-PlayerMargin),
		Y: clamp(p.Y, PlayerMargin, a.Height-PlayerMargin),
	}
}

// Spawn returns the default position and facing of a player.
func (a Arena) Spawn(id PlayerID) (pos, dir Vec2) {
	if id == Player2 {
		return Vec2{a.Width - SpawnInset, a.Height / 2}, Vec2{-1, 0}
	}
	return Vec2{SpawnInset, a.Height / 2}, Vec2{1, 0}
}

// Intent is the movement input of a player for one tick.
type Intent struct {
	Left, Right, Up, Down bool
}

// Vector returns the normalized movement direction, so diagonals are no
// faster than axis moves. Opposite keys cancel out.
func (in Intent) Vector() Vec2 {
	var v Vec2
	if in.Left {
		v.X--
	}
	if in.Right {
		v.X++
	}
	if in.Up {
		v.Y--
	}
	if in.Down {
		v.Y++
	}
	return v.Normalize()
}

// Player is the mutable state of one duelist.
type Player struct {
	ID       PlayerID
	Pos      Vec2
	Dir      Vec2    // facing: unit vector, held while idle
	Cooldown float64 // seconds until the next shot may fire
	Alive    bool
	Charge   ChargeState
}

func newPlayer(id PlayerID, arena Arena) *Player {
	p := &Player{ID: id}
	p.reset(arena)
	return p
}

func (p *Player) reset(arena Arena) {
	p.Pos, p.Dir = arena.Spawn(p.ID)
	p.Cooldown = 0
	p.Alive = true
	p.Charge = ChargeState{}
}

// move applies one step of movement input. Dead players do not move.
func (p *Player) move(in Intent, dt float64, arena Arena) {
	if !p.Alive {
		return
	}
	if d := in.Vector(); !d.IsZero() {
		p.Pos = p.Pos.Add(d.Scale(PlayerSpeed * dt))
		p.Dir = d
	}
	p.Pos = arena.ClampPlayer(p.Pos)
	p.Cooldown = max(0, p.Cooldown-dt)
}

// Muzzle returns the spawn point of a shot fired now.
func (p *Player) Muzzle() Vec2 {
	return p.Pos.Add(p.Dir.Scale(MuzzleOffset))
}
