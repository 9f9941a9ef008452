package game

import "math"

// Shot is a charged toothpick in flight. Geometrically it is the segment of
// length ShotLength trailing behind Pos, inflated by ShotRadius.
type Shot struct {
	ID    uint32   // sequence number within the round
	Owner PlayerID // never collides with its owner

	Pos     Vec2 // leading point
	PrevPos Vec2 // leading point at the previous tick
	Dir     Vec2 // unit vector
	PrevDir Vec2 // direction at the previous tick

	Speed float64 // pixels per second, in [MinShotSpeed, MaxShotSpeed]
	Life  float64 // seconds remaining
	Age   float64 // seconds since spawn
}

func newShot(id uint32, owner PlayerID, pos, dir Vec2, speed, life float64) *Shot {
	return &Shot{
		ID:      id,
		Owner:   owner,
		Pos:     pos,
		PrevPos: pos,
		Dir:     dir,
		PrevDir: dir,
		Speed:   speed,
		Life:    life,
	}
}

// Segment returns the collision segment at the current tick.
func (s *Shot) Segment() Segment {
	return Segment{A: s.Pos, B: s.Pos.Sub(s.Dir.Scale(ShotLength))}
}

// PrevSegment returns the collision segment at the previous tick.
func (s *Shot) PrevSegment() Segment {
	return Segment{A: s.PrevPos, B: s.PrevPos.Sub(s.PrevDir.Scale(ShotLength))}
}

// Expired reports whether the shot ran out of life.
func (s *Shot) Expired() bool {
	return s.Life <= 0
}

// advance moves the shot one step and reflects it off the inset arena walls.
// Returns true if it bounced.
func (s *Shot) advance(dt float64, arena Arena) bool {
	s.PrevPos = s.Pos
	s.PrevDir = s.Dir
	s.Pos = s.Pos.Add(s.Dir.Scale(s.Speed * dt))
	s.Life -= dt
	s.Age += dt

	lo := WallBounceMargin
	hiX := arena.Width - WallBounceMargin
	hiY := arena.Height - WallBounceMargin

	bounced := false
	if s.Pos.X <= lo {
		s.Pos.X = lo
		s.Dir.X = math.Abs(s.Dir.X)
		bounced = true
	} else if s.Pos.X >= hiX {
		s.Pos.X = hiX
		s.Dir.X = -math.Abs(s.Dir.X)
		bounced = true
	}
	if s.Pos.Y <= lo {
		s.Pos.Y = lo
		s.Dir.Y = math.Abs(s.Dir.Y)
		bounced = true
	} else if s.Pos.Y >= hiY {
		s.Pos.Y = hiY
		s.Dir.Y = -math.Abs(s.Dir.Y)
		bounced = true
	}

	// A corner can flip both axes in one tick.
	if bounced {
		s.Dir = s.Dir.Normalize()
	}
	return bounced
}
