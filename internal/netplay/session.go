// Package netplay is the peer side of a networked duel: it creates or joins
// a room on the broker, keeps one ordered channel to the counterpart and
// turns received frames into events for the match loop.
package netplay

import (
	"errors"
)

var (
	// ErrNotConnected is returned when sending before the channel is open.
	ErrNotConnected = errors.New("not connected")
	// ErrAlreadyActive is returned when creating or joining while a session exists.
	ErrAlreadyActive = errors.New("session already active")
	// ErrConnect wraps every connection-setup failure. The cause is opaque
	// to callers: a taken code, an unknown room and an unreachable broker
	// look the same.
	ErrConnect = errors.New("connection failed")
)

// Role is the side of the room this peer plays.
type Role string

const (
	RoleNone  Role = ""
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Status is the lifecycle of a session.
type Status int

const (
	StatusIdle      Status = iota // no session
	StatusWaiting                 // channel to the broker is up, counterpart not yet paired
	StatusConnected               // both ends paired; the match runs
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusConnected:
		return "connected"
	default:
		return "idle"
	}
}

// Session is the public view of the current session. The zero value is
// the pre-match idle state.
type Session struct {
	Role   Role
	Code   string
	Status Status
}

// Active reports whether a room is held or being held.
func (s Session) Active() bool {
	return s.Status != StatusIdle
}

// EventKind identifies what a channel reported.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventInput
	EventReset
)

// Event is produced by a channel's read loop and applied to the match on
// the loop goroutine through Manager.Dispatch.
type Event struct {
	Kind      EventKind
	Gen       uint64 // channel generation; stale events are ignored
	EventType string // EventInput: "keydown" or "keyup"
	Code      string // EventInput: key identifier
	Reason    string // EventDisconnected
}

// Handlers are the session lifecycle callbacks. They run on whichever
// goroutine calls Dispatch. Nil handlers are skipped.
type Handlers struct {
	OnConnected     func()
	OnDisconnected  func(reason string)
	OnInputReceived func(eventType, code string)
	OnResetReceived func()
}
