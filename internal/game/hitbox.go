package game

// Circle is one circle of a compound hitbox, positioned relative to the
// body center.
type Circle struct {
	Offset Vec2
	Radius float64
}

// Shape is a compound hitbox made of circles. Shapes are plain data; the
// collision functions below are pure.
type Shape []Circle

// hamsterShape approximates the duelist body: torso, two ears, two feet and
// two cheeks. Offsets are axis aligned (the body does not rotate).
var hamsterShape = [...]Circle{
	{Offset: Vec2{0, 0}, Radius: 18},
	{Offset: Vec2{-14, -16}, Radius: 8.5},
	{Offset: Vec2{14, -16}, Radius: 8.5},
	{Offset: Vec2{-12, 11}, Radius: 6},
	{Offset: Vec2{12, 11}, Radius: 6},
	{Offset: Vec2{-20, -2}, Radius: 5},
	{Offset: Vec2{20, -2}, Radius: 5},
}

// HamsterShape returns a copy of the player hitbox.
func HamsterShape() Shape {
	s := hamsterShape
	return s[:]
}

// Segment is a line segment from A to B.
type Segment struct {
	A, B Vec2
}

// Lerp interpolates both endpoints of s towards to by t.
func (s Segment) Lerp(to Segment, t float64) Segment {
	return Segment{A: s.A.Lerp(to.A, t), B: s.B.Lerp(to.B, t)}
}

// DistSqToSegment returns the squared distance from p to the closest point
// on s. Degenerate segments are treated as the point A.
func DistSqToSegment(p Vec2, s Segment) float64 {
	ab := s.B.Sub(s.A)
	ap := p.Sub(s.A)
	abLenSq := ab.LenSq()
	t := 0.0
	if abLenSq > 1e-8 {
		t = clamp(ap.Dot(ab)/abLenSq, 0, 1)
	}
	closest := s.A.Add(ab.Scale(t))
	return p.Sub(closest).LenSq()
}

// SegmentHitsCircle reports whether s touches the circle at center with the
// given radius (Minkowski sum of segment and circle).
func SegmentHitsCircle(s Segment, center Vec2, radius float64) bool {
	return DistSqToSegment(center, s) <= radius*radius
}

// Intersects tests s against every circle of the shape placed at body, with
// pad added to each radius. It returns the index of the first circle hit,
// or -1.
func (sh Shape) Intersects(body Vec2, s Segment, pad float64) int {
	for i, c := range sh {
		if SegmentHitsCircle(s, body.Add(c.Offset), c.Radius+pad) {
			return i
		}
	}
	return -1
}

// SweptIntersects samples the motion of a segment from one tick to the next
// across SweepSubsteps equal steps (endpoints included) and runs the static
// test at each sample. Fast segments that would otherwise pass through a
// circle between two ticks are caught by the intermediate samples.
func (sh Shape) SweptIntersects(body Vec2, from, to Segment, pad float64) int {
	for i := 0; i <= SweepSubsteps; i++ {
		t := float64(i) / SweepSubsteps
		if idx := sh.Intersects(body, from.Lerp(to, t), pad); idx >= 0 {
			return idx
		}
	}
	return -1
}

// ShotHits runs the static test on the shot's current segment, then the
// swept test from its previous transform. It returns the index of the
// circle hit, or -1.
func (sh Shape) ShotHits(body Vec2, shot *Shot) int {
	cur := shot.Segment()
	if idx := sh.Intersects(body, cur, ShotRadius); idx >= 0 {
		return idx
	}
	return sh.SweptIntersects(body, shot.PrevSegment(), cur, ShotRadius)
}
