package game

import (
	"errors"
	"fmt"
)

// ChargePhase is the weapon state of a player.
type ChargePhase uint8

const (
	Idle     ChargePhase = iota
	Charging             // fire key held, StartTick recorded
	Exploded             // held too long; terminal until reset
)

func (p ChargePhase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Charging:
		return "charging"
	case Exploded:
		return "exploded"
	default:
		return "unknown"
	}
}

// ChargeTrigger is an input to the charge state machine.
type ChargeTrigger uint8

const (
	TriggerPress    ChargeTrigger = iota // fire key down
	TriggerRelease                       // fire key up
	TriggerOverheld                      // held duration reached SelfDestructHold
)

func (t ChargeTrigger) String() string {
	switch t {
	case TriggerPress:
		return "press"
	case TriggerRelease:
		return "release"
	case TriggerOverheld:
		return "overheld"
	default:
		return "unknown"
	}
}

// chargeTransitions enumerates every legal transition. Anything missing is
// rejected with ErrInvalidTransition. Release while Exploded is the
// documented no-op: the player already blew up on an earlier tick.
var chargeTransitions = map[ChargePhase]map[ChargeTrigger]ChargePhase{
	Idle: {
		TriggerPress: Charging,
	},
	Charging: {
		TriggerRelease:  Idle,
		TriggerOverheld: Exploded,
	},
	Exploded: {
		TriggerRelease: Exploded,
	},
}

var (
	// ErrInvalidTransition is returned for a trigger the current phase does not accept.
	ErrInvalidTransition = errors.New("invalid charge transition")
	// ErrRoundOver is returned when a round already has a winner.
	ErrRoundOver = errors.New("round is over")
	// ErrPlayerDown is returned when a dead player tries to act.
	ErrPlayerDown = errors.New("player is not alive")
)

// ChargeState is the tagged charge state of one player.
type ChargeState struct {
	Phase     ChargePhase
	StartTick uint64 // valid while Charging
}

// apply runs one trigger through the transition table.
func (c *ChargeState) apply(trig ChargeTrigger) error {
	next, ok := chargeTransitions[c.Phase][trig]
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrInvalidTransition, trig, c.Phase)
	}
	c.Phase = next
	return nil
}

// Held returns how long the fire key has been held at tick now, in seconds.
// Zero unless Charging.
func (c ChargeState) Held(now uint64) float64 {
	if c.Phase != Charging || now < c.StartTick {
		return 0
	}
	return ticksToSeconds(now - c.StartTick)
}

// ChargeRatio maps a held duration onto [0, 1].
func ChargeRatio(held float64) float64 {
	return clamp(held/MaxChargeTime, 0, 1)
}

// ShotParams derives speed and life of a shot from the held duration.
// Both grow linearly with the charge ratio and saturate at MaxChargeTime.
func ShotParams(held float64) (speed, life float64) {
	r := ChargeRatio(held)
	return lerp(MinShotSpeed, MaxShotSpeed, r), lerp(MinShotLife, MaxShotLife, r)
}
