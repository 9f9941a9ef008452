package input

import "hamster-duel/internal/game"

// ResetKey restarts the round. It is handled by the peer loop before any
// routing happens.
const ResetKey = "KeyR"

// Controls is a control mapping: four movement keys and one fire key,
// named by their KeyboardEvent.code identifiers.
type Controls struct {
	Up, Down, Left, Right string
	Fire                  string
}

var (
	// WASD is player 1's local mapping and both players' networked mapping.
	WASD = Controls{Up: "KeyW", Down: "KeyS", Left: "KeyA", Right: "KeyD", Fire: "ShiftLeft"}
	// Arrows is player 2's local mapping.
	Arrows = Controls{Up: "ArrowUp", Down: "ArrowDown", Left: "ArrowLeft", Right: "ArrowRight", Fire: "ShiftRight"}
)

// Has reports whether code is one of the mapped keys.
func (c Controls) Has(code string) bool {
	switch code {
	case c.Up, c.Down, c.Left, c.Right, c.Fire:
		return code != ""
	}
	return false
}

// Intent reads the movement keys of this mapping from keys.
func (c Controls) Intent(keys KeySet) game.Intent {
	return game.Intent{
		Left:  keys.Has(c.Left),
		Right: keys.Has(c.Right),
		Up:    keys.Has(c.Up),
		Down:  keys.Has(c.Down),
	}
}

// KeySet is the set of currently pressed key codes.
type KeySet map[string]struct{}

func (k KeySet) Add(code string)    { k[code] = struct{}{} }
func (k KeySet) Remove(code string) { delete(k, code) }

func (k KeySet) Has(code string) bool {
	_, ok := k[code]
	return ok
}

// Clear releases every key.
func (k KeySet) Clear() {
	for code := range k {
		delete(k, code)
	}
}
