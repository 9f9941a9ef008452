package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistSqToSegment(t *testing.T) {
	tests := []struct {
		name string
		p    Vec2
		seg  Segment
		want float64
	}{
		{"perpendicular to middle", Vec2{0, 5}, Segment{Vec2{-10, 0}, Vec2{10, 0}}, 25},
		{"past endpoint B", Vec2{13, 4}, Segment{Vec2{0, 0}, Vec2{10, 0}}, 25},
		{"before endpoint A", Vec2{-3, -4}, Segment{Vec2{0, 0}, Vec2{10, 0}}, 25},
		{"on segment", Vec2{4, 0}, Segment{Vec2{0, 0}, Vec2{10, 0}}, 0},
		{"degenerate segment", Vec2{3, 4}, Segment{Vec2{0, 0}, Vec2{0, 0}}, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DistSqToSegment(tt.p, tt.seg), 1e-9)
		})
	}
}

func TestShapeIntersects(t *testing.T) {
	body := Vec2{100, 100}
	shape := HamsterShape()
	require.Len(t, shape, 7)

	tests := []struct {
		name string
		seg  Segment
		pad  float64
		want int
	}{
		{"through torso", Segment{Vec2{100, 90}, Vec2{100, 110}}, 0, 0},
		{"far away", Segment{Vec2{300, 300}, Vec2{336, 300}}, 0, -1},
		// x=124 clears the torso, ears and feet but grazes the right cheek.
		{"right cheek only", Segment{Vec2{124, 90}, Vec2{124, 106}}, 0, 6},
		{"just outside right cheek", Segment{Vec2{125.5, 90}, Vec2{125.5, 106}}, 0, -1},
		{"pad reaches right cheek", Segment{Vec2{125.5, 90}, Vec2{125.5, 106}}, ShotRadius, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shape.Intersects(body, tt.seg, tt.pad))
		})
	}
}

func TestHamsterShapeIsCopy(t *testing.T) {
	s := HamsterShape()
	s[0].Radius = 1

	assert.Equal(t, 18.0, HamsterShape()[0].Radius)
}

func TestSweptIntersectsCatchesTunneling(t *testing.T) {
	body := Vec2{500, 300}
	shape := HamsterShape()

	// One tick at a very high speed: the segment is fully left of the body
	// before and fully right of it after.
	from := Segment{A: Vec2{400, 300}, B: Vec2{364, 300}}
	to := Segment{A: Vec2{640, 300}, B: Vec2{604, 300}}

	require.Equal(t, -1, shape.Intersects(body, from, ShotRadius))
	require.Equal(t, -1, shape.Intersects(body, to, ShotRadius))

	assert.GreaterOrEqual(t, shape.SweptIntersects(body, from, to, ShotRadius), 0)
}

func TestSweptIntersectsMiss(t *testing.T) {
	body := Vec2{500, 300}
	from := Segment{A: Vec2{400, 200}, B: Vec2{364, 200}}
	to := Segment{A: Vec2{640, 200}, B: Vec2{604, 200}}

	assert.Equal(t, -1, HamsterShape().SweptIntersects(body, from, to, ShotRadius))
}

func TestShotHits(t *testing.T) {
	body := Vec2{500, 300}
	shape := HamsterShape()

	t.Run("static overlap", func(t *testing.T) {
		s := newShot(1, Player1, Vec2{505, 300}, Vec2{1, 0}, MinShotSpeed, MinShotLife)
		assert.Equal(t, 0, shape.ShotHits(body, s))
	})

	t.Run("swept from previous transform", func(t *testing.T) {
		s := newShot(1, Player1, Vec2{400, 300}, Vec2{1, 0}, 240*TickRate, MaxShotLife)
		s.advance(FixedStep, DefaultArena())
		require.InDelta(t, 640, s.Pos.X, 1e-9)
		assert.GreaterOrEqual(t, shape.ShotHits(body, s), 0)
	})

	t.Run("miss", func(t *testing.T) {
		s := newShot(1, Player1, Vec2{100, 100}, Vec2{1, 0}, MinShotSpeed, MinShotLife)
		s.advance(FixedStep, DefaultArena())
		assert.Equal(t, -1, shape.ShotHits(body, s))
	})
}
