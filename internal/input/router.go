package input

import (
	"errors"
	"fmt"

	"hamster-duel/internal/game"
)

// Mode selects how key edges map onto players.
type Mode uint8

const (
	// ModeLocal shares one key set between two mappings on one keyboard.
	ModeLocal Mode = iota
	// ModeNetworked keeps one key set per player. Local edges drive this
	// machine's player, relayed edges drive the counterpart.
	ModeNetworked
)

func (m Mode) String() string {
	if m == ModeNetworked {
		return "networked"
	}
	return "local"
}

// EdgeKind is the direction of a key edge. The values double as the
// eventType strings of relayed input messages.
type EdgeKind string

const (
	KeyDown EdgeKind = "keydown"
	KeyUp   EdgeKind = "keyup"
)

// ParseEdgeKind validates a relayed eventType.
func ParseEdgeKind(s string) (EdgeKind, error) {
	switch EdgeKind(s) {
	case KeyDown, KeyUp:
		return EdgeKind(s), nil
	}
	return "", fmt.Errorf("unknown edge kind %q", s)
}

// Edge is a single key press or release.
type Edge struct {
	Kind   EdgeKind
	Code   string
	Repeat bool // keyboard auto-repeat; only the first press counts
}

// FireHandler receives the fire transitions produced by routing.
// *game.Match satisfies it.
type FireHandler interface {
	PressFire(id game.PlayerID) error
	ReleaseFire(id game.PlayerID) (*game.Shot, error)
}

// FireAction is what an edge did to a player's weapon.
type FireAction uint8

const (
	FireNone FireAction = iota
	FirePressed
	FireReleased
)

// Result describes how one edge was applied.
type Result struct {
	Player game.PlayerID // NoPlayer when the edge matched no mapping
	Action FireAction
	Shot   *game.Shot // set when a release spawned a shot
	Err    error      // rejected press, for diagnostics only
}

// Applied reports whether the edge reached any player.
func (r Result) Applied() bool { return r.Player != NoPlayer }

// NoPlayer re-exports game.NoPlayer for callers matching on Result.
const NoPlayer = game.NoPlayer

// Router turns key edges into per-player key sets and fire transitions.
// It is not safe for concurrent use: the peer loop owns it.
type Router struct {
	mode     Mode
	local    game.PlayerID
	controls [2]Controls

	shared KeySet    // ModeLocal
	keys   [2]KeySet // ModeNetworked, indexed by player
}

// NewLocalRouter returns a router for two players on one keyboard.
func NewLocalRouter() *Router {
	return &Router{
		mode:     ModeLocal,
		controls: [2]Controls{WASD, Arrows},
		shared:   KeySet{},
	}
}

// NewNetworkedRouter returns a router for one player on this machine and a
// relayed counterpart. Both use the WASD mapping.
func NewNetworkedRouter(local game.PlayerID) *Router {
	if !local.Valid() {
		local = game.Player1
	}
	return &Router{
		mode:     ModeNetworked,
		local:    local,
		controls: [2]Controls{WASD, WASD},
		keys:     [2]KeySet{{}, {}},
	}
}

// Mode returns the routing mode.
func (r *Router) Mode() Mode { return r.mode }

// LocalPlayer returns the player driven by this machine in networked mode,
// NoPlayer in local mode.
func (r *Router) LocalPlayer() game.PlayerID { return r.local }

// Controls returns the mapping of a player.
func (r *Router) Controls(id game.PlayerID) Controls {
	if !id.Valid() {
		return Controls{}
	}
	return r.controls[id-1]
}

// HandleLocal applies an edge observed on this machine. forward reports
// whether the edge must be relayed to the peer: true in networked mode for
// edges matching the local player's mapping.
func (r *Router) HandleLocal(e Edge, m FireHandler) (forward bool, res Result) {
	if e.Kind == KeyDown && e.Repeat {
		return false, Result{}
	}

	if r.mode == ModeLocal {
		r.shared.apply(e)
		for _, id := range []game.PlayerID{game.Player1, game.Player2} {
			if e.Code != r.Controls(id).Fire {
				continue
			}
			return false, r.fire(id, e.Kind, m)
		}
		for _, id := range []game.PlayerID{game.Player1, game.Player2} {
			if r.Controls(id).Has(e.Code) {
				return false, Result{Player: id}
			}
		}
		return false, Result{}
	}

	if !r.Controls(r.local).Has(e.Code) {
		return false, Result{}
	}
	return true, r.applyTo(r.local, e, m)
}

// HandleRemote applies an edge relayed by the peer to the counterpart
// player, exactly as if it had been pressed here. Codes outside the
// counterpart's mapping are ignored.
func (r *Router) HandleRemote(e Edge, m FireHandler) Result {
	if r.mode != ModeNetworked {
		return Result{}
	}
	remote := r.local.Opponent()
	if !r.Controls(remote).Has(e.Code) {
		return Result{}
	}
	return r.applyTo(remote, e, m)
}

func (r *Router) applyTo(id game.PlayerID, e Edge, m FireHandler) Result {
	r.keys[id-1].apply(e)
	if e.Code == r.Controls(id).Fire {
		return r.fire(id, e.Kind, m)
	}
	return Result{Player: id}
}

func (r *Router) fire(id game.PlayerID, kind EdgeKind, m FireHandler) Result {
	res := Result{Player: id}
	switch kind {
	case KeyDown:
		if err := m.PressFire(id); err != nil {
			res.Err = err
			return res
		}
		res.Action = FirePressed
	case KeyUp:
		shot, err := m.ReleaseFire(id)
		if errors.Is(err, game.ErrInvalidTransition) {
			// Release without a press: the key went down before the round
			// started or while the player could not charge.
			return res
		}
		if err != nil {
			res.Err = err
			return res
		}
		res.Action = FireReleased
		res.Shot = shot
	}
	return res
}

func (k KeySet) apply(e Edge) {
	if e.Kind == KeyDown {
		k.Add(e.Code)
	} else {
		k.Remove(e.Code)
	}
}

// Intent implements game.IntentSource.
func (r *Router) Intent(id game.PlayerID) game.Intent {
	if !id.Valid() {
		return game.Intent{}
	}
	if r.mode == ModeLocal {
		return r.Controls(id).Intent(r.shared)
	}
	return r.Controls(id).Intent(r.keys[id-1])
}

// Release drops every held key. Used when a session ends so a key held at
// disconnect does not stay pressed.
func (r *Router) Release() {
	if r.shared != nil {
		r.shared.Clear()
	}
	for _, k := range r.keys {
		if k != nil {
			k.Clear()
		}
	}
}
