// Package render rasterizes match snapshots with fogleman/gg. The duel
// binary keeps the latest snapshot and writes PNG frames on request.
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/fogleman/gg"

	"hamster-duel/internal/game"
)

// Palette
var (
	wallColor   = rgb(0xf7e6cc)
	floorColor  = rgb(0xc79b67)
	floorTrim   = rgb(0xaf7a45)
	shadowColor = color.RGBA{0, 0, 0, 56}
	earColor    = rgb(0xf2d8b8)
	earInner    = rgb(0xf8b4c5)
	bellyColor  = rgb(0xffedcf)
	eyeWhite    = rgb(0xffffff)
	eyePupil    = rgb(0x171717)
	outline     = rgb(0x9a5c6d)

	toothpickCore = rgb(0x7be38f)
	toothpickEdge = rgb(0x2f8d47)
	toothpickTip  = rgb(0xb7ffc6)

	playerColors = [2]color.RGBA{rgb(0xf4b14d), rgb(0x79c4ff)}
	hitColors    = [2]color.RGBA{rgb(0xffd27f), rgb(0xb7e4ff)}
)

func rgb(hex uint32) color.RGBA {
	return color.RGBA{uint8(hex >> 16), uint8(hex >> 8), uint8(hex), 255}
}

// Options controls rasterization.
type Options struct {
	Scale        float64 // output pixels per arena unit
	ShowHitboxes bool    // outline the collision circles
}

// Renderer stores the most recent snapshot and rasterizes it lazily, so the
// per-frame Render call stays cheap. Safe for concurrent use.
type Renderer struct {
	opts Options

	mu     sync.Mutex
	snap   game.Snapshot
	have   bool
	frames uint64
}

// New creates a renderer.
func New(opts Options) *Renderer {
	if opts.Scale <= 0 {
		opts.Scale = 1
	}
	return &Renderer{opts: opts}
}

// Render implements peer.Renderer.
func (r *Renderer) Render(s game.Snapshot) {
	r.mu.Lock()
	r.snap = s
	r.have = true
	r.frames++
	r.mu.Unlock()
}

// Frames returns how many snapshots were received.
func (r *Renderer) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Latest returns the last snapshot received.
func (r *Renderer) Latest() (game.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap, r.have
}

// Image rasterizes the latest snapshot.
func (r *Renderer) Image() (image.Image, error) {
	s, ok := r.Latest()
	if !ok {
		return nil, fmt.Errorf("no frame rendered yet")
	}
	return Draw(s, r.opts), nil
}

// SavePNG writes the latest snapshot to path.
func (r *Renderer) SavePNG(path string) error {
	s, ok := r.Latest()
	if !ok {
		return fmt.Errorf("no frame rendered yet")
	}
	dc := newContext(s, r.opts)
	drawSnapshot(dc, s, r.opts)
	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// Draw rasterizes one snapshot.
func Draw(s game.Snapshot, opts Options) image.Image {
	if opts.Scale <= 0 {
		opts.Scale = 1
	}
	dc := newContext(s, opts)
	drawSnapshot(dc, s, opts)
	return dc.Image()
}

func newContext(s game.Snapshot, opts Options) *gg.Context {
	w := int(math.Round(s.Width * opts.Scale))
	h := int(math.Round(s.Height * opts.Scale))
	return gg.NewContext(max(w, 1), max(h, 1))
}

func drawSnapshot(dc *gg.Context, s game.Snapshot, opts Options) {
	dc.Scale(opts.Scale, opts.Scale)
	drawBackground(dc, s.Width, s.Height)

	for _, p := range s.Players {
		drawPlayer(dc, p, s.Tick, opts.ShowHitboxes)
	}
	for _, sh := range s.Shots {
		drawShot(dc, sh)
	}
	if s.Winner.Valid() {
		drawBanner(dc, s)
	}
}

func drawBackground(dc *gg.Context, w, h float64) {
	dc.SetColor(wallColor)
	dc.DrawRectangle(0, 0, w, h*0.66)
	dc.Fill()

	dc.SetColor(floorColor)
	dc.DrawRectangle(0, h*0.66, w, h*0.34)
	dc.Fill()

	dc.SetColor(floorTrim)
	dc.DrawRoundedRectangle(0, h*0.645, w, 8, 4)
	dc.Fill()
}

// jitter shakes an overcharged player. Derived from the tick so both
// replicas draw the same frame.
func jitter(tick uint64) (float64, float64) {
	t := float64(tick)
	return math.Sin(t*1.7) * 2.2, math.Cos(t*2.3) * 2.2
}

func drawPlayer(dc *gg.Context, p game.PlayerSnapshot, tick uint64, hitboxes bool) {
	if !p.ID.Valid() {
		return
	}
	idx := int(p.ID) - 1
	x, y := p.X, p.Y
	if p.Overcharged && p.Alive {
		jx, jy := jitter(tick)
		x += jx
		y += jy
	}

	if !p.Alive {
		// Burst ring where the player exploded
		dc.SetColor(hitColors[idx])
		dc.SetLineWidth(4)
		dc.DrawCircle(x, y, 30)
		dc.Stroke()
		return
	}

	dc.SetColor(shadowColor)
	dc.DrawEllipse(x, y+24, 24, 8)
	dc.Fill()

	dc.SetColor(playerColors[idx])
	dc.DrawCircle(x, y+2, 20)
	dc.Fill()
	dc.SetColor(outline)
	dc.SetLineWidth(1.4)
	dc.DrawCircle(x, y+2, 20)
	dc.Stroke()

	for _, side := range []float64{-1, 1} {
		dc.SetColor(earColor)
		dc.DrawCircle(x+14*side, y-15, 8.8)
		dc.Fill()
		dc.SetColor(earInner)
		dc.DrawCircle(x+14*side, y-15, 4.2)
		dc.Fill()
	}

	dc.SetColor(bellyColor)
	dc.DrawCircle(x, y+8, 12.8)
	dc.Fill()

	// Eyes look along the facing direction
	lookX, lookY := p.DirX*1.2, p.DirY*1.2
	for _, side := range []float64{-1, 1} {
		dc.SetColor(eyeWhite)
		dc.DrawCircle(x+8.3*side, y-2.5, 4)
		dc.Fill()
		dc.SetColor(eyePupil)
		dc.DrawCircle(x+8*side+lookX, y-2.3+lookY, 1.6)
		dc.Fill()
	}

	if p.Phase == game.Charging {
		drawChargeRing(dc, x, y, p, playerColors[idx])
	}

	if hitboxes {
		dc.SetRGBA(1, 0, 0, 0.6)
		dc.SetLineWidth(1)
		for _, c := range game.HamsterShape() {
			dc.DrawCircle(p.X+c.Offset.X, p.Y+c.Offset.Y, c.Radius)
			dc.Stroke()
		}
	}
}

func drawChargeRing(dc *gg.Context, x, y float64, p game.PlayerSnapshot, c color.RGBA) {
	dc.SetRGBA255(int(c.R), int(c.G), int(c.B), 90)
	dc.SetLineWidth(3)
	dc.DrawCircle(x, y, 26)
	dc.Stroke()

	if p.Overcharged {
		dc.SetRGBA255(235, 64, 52, 230)
	} else {
		dc.SetColor(c)
	}
	start := -math.Pi / 2
	dc.DrawArc(x, y, 26, start, start+2*math.Pi*p.ChargeRatio)
	dc.Stroke()
}

func drawShot(dc *gg.Context, s game.ShotSnapshot) {
	dc.SetLineCap(gg.LineCapRound)

	dc.SetColor(toothpickEdge)
	dc.SetLineWidth(5)
	dc.DrawLine(s.TailX, s.TailY, s.X, s.Y)
	dc.Stroke()

	dc.SetColor(toothpickCore)
	dc.SetLineWidth(3)
	dc.DrawLine(s.TailX, s.TailY, s.X, s.Y)
	dc.Stroke()

	dc.SetColor(toothpickTip)
	dc.DrawCircle(s.X, s.Y, 2)
	dc.Fill()
}

func drawBanner(dc *gg.Context, s game.Snapshot) {
	text := fmt.Sprintf("%s wins! Press R to restart", s.Winner)
	if s.Cause == game.CauseOvercharge {
		text = fmt.Sprintf("%s wins! %s overcharge explosion", s.Winner, s.Winner.Opponent())
	}

	dc.SetRGBA(0, 0, 0, 0.55)
	dc.DrawRoundedRectangle(s.Width/2-180, 24, 360, 40, 12)
	dc.Fill()
	dc.SetColor(color.White)
	dc.DrawStringAnchored(text, s.Width/2, 44, 0.5, 0.5)
}
