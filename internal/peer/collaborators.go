// Package peer runs one replica of a duel: it owns the match, the fixed-step
// clock, the input router and, for networked play, the session with the
// counterpart. Everything that mutates the match happens on the goroutine
// executing Run.
package peer

import (
	"context"
	"fmt"
	"time"

	"hamster-duel/internal/game"
	"hamster-duel/internal/netplay"
)

// Mode selects how the replica is driven.
type Mode uint8

const (
	ModeLocal Mode = iota // two players on one keyboard
	ModeHost              // creates a room, plays 1P
	ModeGuest             // joins a room, plays 2P
)

func (m Mode) String() string {
	switch m {
	case ModeHost:
		return "host"
	case ModeGuest:
		return "guest"
	default:
		return "local"
	}
}

// Networked reports whether the mode relays input to a counterpart.
func (m Mode) Networked() bool { return m != ModeLocal }

// ParseMode parses "local", "host" or "guest".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "local", "":
		return ModeLocal, nil
	case "host":
		return ModeHost, nil
	case "guest", "join":
		return ModeGuest, nil
	}
	return ModeLocal, fmt.Errorf("unknown mode %q", s)
}

// Renderer draws the match. Render is called once per display frame.
type Renderer interface {
	Render(s game.Snapshot)
}

// Audio starts the background track. Start is attempted on the first local
// key press and retried on later presses until it succeeds.
type Audio interface {
	Start() error
}

// UI is the menu/status collaborator.
type UI interface {
	MatchStarted(mode Mode)
	MatchEnded(winner game.PlayerID, cause game.RoundCause)
	Status(text string)
	ReturnedToMenu(reason string)
}

// Metrics receives loop timings. api.PeerMetrics implements it.
type Metrics interface {
	RecordFrame(d time.Duration, steps, shots int)
	RecordRender(d time.Duration)
	RecordRound(cause string)
	UpdateJournal(total, dropped uint64)
}

// Session is the part of *netplay.Manager the runner uses.
type Session interface {
	CreateRoom(ctx context.Context) (string, error)
	JoinRoom(ctx context.Context, code string) error
	SendInput(eventType, code string) error
	SendReset() error
	Disconnect()
	SetHandlers(h netplay.Handlers)
	Events() <-chan netplay.Event
	Dispatch(ev netplay.Event)
	InviteLink(base string) string
}

type nopUI struct{}

func (nopUI) MatchStarted(Mode)                         {}
func (nopUI) MatchEnded(game.PlayerID, game.RoundCause) {}
func (nopUI) Status(string)                             {}
func (nopUI) ReturnedToMenu(string)                     {}
