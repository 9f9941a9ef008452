package game

// Gameplay constants. Both replicas of a networked match must run identical
// logic, so none of these are configurable at runtime.
const (
	// Arena
	ArenaWidth  = 1200.0
	ArenaHeight = 700.0

	// Players
	PlayerSpeed  = 260.0 // pixels per second
	PlayerMargin = 30.0  // min distance from any arena edge
	SpawnInset   = 150.0 // horizontal distance of spawn points from the side walls

	// Shots
	MinShotSpeed     = 430.0
	MaxShotSpeed     = 1120.0
	MinShotLife      = 0.62 // seconds
	MaxShotLife      = 1.75 // seconds
	ShotLength       = 36.0 // trailing segment behind the leading point
	ShotRadius       = 1.9  // inflation added to every hitbox circle
	WallBounceMargin = 2.0
	MuzzleOffset     = 34.0

	// Combat timing (seconds)
	FireCooldown     = 0.17
	MaxChargeTime    = 2.0
	SelfDestructHold = 4.0

	// Clock
	TickRate      = 120
	FixedStep     = 1.0 / TickRate
	MaxFrameDelta = 0.05 // clamp for a single rendered frame

	// Swept collision substeps per tick (SweepSubsteps+1 samples).
	SweepSubsteps = 12
)

// ticksToSeconds converts a tick count into seconds without accumulating
// floating point error, so hold thresholds land on exact ticks.
func ticksToSeconds(ticks uint64) float64 {
	return float64(ticks) / TickRate
}
