package game

// Clock decouples the simulation rate from the display rate. Each rendered
// frame adds its elapsed time to an accumulator which is then drained in
// FixedStep increments.
type Clock struct {
	accumulator float64
}

// NewClock returns a clock with an empty accumulator.
func NewClock() *Clock {
	return &Clock{}
}

// Reset drops any accumulated time.
func (c *Clock) Reset() {
	c.accumulator = 0
}

// Pending returns the time carried over to the next frame.
func (c *Clock) Pending() float64 {
	return c.accumulator
}

// Frame accounts for elapsed seconds of real time and runs as many fixed
// steps as fit. elapsed is clamped to MaxFrameDelta so a stalled frame does
// not trigger an unbounded catch-up. While the round is decided the
// accumulator still drains but the match does not advance. Returns the
// number of increments drained and the outcomes of the steps that ran.
func (c *Clock) Frame(elapsed float64, m *Match, src IntentSource) (int, []Outcome) {
	c.accumulator += clamp(elapsed, 0, MaxFrameDelta)

	var out []Outcome
	steps := 0
	for c.accumulator >= FixedStep {
		if !m.Frozen() {
			out = append(out, m.Step(src)...)
		}
		c.accumulator -= FixedStep
		steps++
	}
	return steps, out
}
