// Package relay pairs a host and a guest under a room code and pipes their
// frames to each other in order. It never interprets game messages and
// holds no game state.
package relay

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"hamster-duel/internal/protocol"
)

// Role is the side of a room a peer connects as.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// ParseRole validates a role query parameter.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleHost, RoleGuest:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) other() Role {
	if r == RoleHost {
		return RoleGuest
	}
	return RoleHost
}

func (r Role) index() int {
	if r == RoleHost {
		return 0
	}
	return 1
}

var (
	ErrRoomTaken    = errors.New("room code already in use")
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomFull     = errors.New("room already has a guest")
	ErrTooManyRooms = errors.New("too many rooms")
	ErrRoomClosed   = errors.New("room closed")
)

// Conn is one attached peer connection.
type Conn interface {
	Send([]byte) error
	Close() error
}

// RoomState is the pairing state of a room.
type RoomState string

const (
	StateWaiting RoomState = "waiting" // host attached, no guest yet
	StatePaired  RoomState = "paired"
	StateClosed  RoomState = "closed"
)

// RoomInfo is the public view of a room.
type RoomInfo struct {
	Code    string    `json:"code"`
	State   RoomState `json:"state"`
	Created time.Time `json:"created"`
}

type slot struct {
	reserved bool
	conn     Conn
}

// Room is one host/guest pair. Slots are reserved before the HTTP upgrade
// so conflicts can be answered with a status code, then attached once the
// WebSocket is up.
type Room struct {
	Code    string
	Created time.Time

	mu     sync.Mutex
	slots  [2]slot
	paired bool
	closed bool
}

func newRoom(code string) *Room {
	return &Room{Code: code, Created: time.Now()}
}

// State returns the current pairing state.
func (r *Room) State() RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.closed:
		return StateClosed
	case r.paired:
		return StatePaired
	default:
		return StateWaiting
	}
}

// Info returns the public view of the room.
func (r *Room) Info() RoomInfo {
	return RoomInfo{Code: r.Code, State: r.State(), Created: r.Created}
}

func (r *Room) reserve(role Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomClosed
	}
	s := &r.slots[role.index()]
	if s.reserved {
		if role == RoleHost {
			return ErrRoomTaken
		}
		return ErrRoomFull
	}
	s.reserved = true
	return nil
}

// unreserve frees a slot whose upgrade failed. Returns true if the room
// has no host left and must be discarded.
func (r *Room) unreserve(role Role) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &r.slots[role.index()]
	if s.conn == nil {
		s.reserved = false
	}
	if !r.slots[RoleHost.index()].reserved {
		r.closed = true
	}
	return r.closed
}

// attach binds a live connection to a reserved slot. When both slots are
// attached, both ends receive the open control frame.
func (r *Room) attach(role Role, c Conn) (paired bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, ErrRoomClosed
	}
	s := &r.slots[role.index()]
	if !s.reserved || s.conn != nil {
		return false, fmt.Errorf("attach %s to room %s: slot not reserved", role, r.Code)
	}
	s.conn = c

	other := r.slots[role.other().index()].conn
	if other == nil {
		return false, nil
	}
	r.paired = true
	open, _ := protocol.Encode(protocol.Control(protocol.TypeOpen))
	other.Send(open)
	c.Send(open)
	return true, nil
}

// forward pipes a frame from one end to the other. Frames sent before
// pairing are dropped.
func (r *Room) forward(from Role, data []byte) error {
	r.mu.Lock()
	to := r.slots[from.other().index()].conn
	paired := r.paired && !r.closed
	r.mu.Unlock()

	if !paired || to == nil {
		return ErrRoomClosed
	}
	return to.Send(data)
}

// leave detaches one end and tears the room down: the surviving end gets
// a close control frame and is disconnected. Returns false if the room was
// already closed.
func (r *Room) leave(role Role) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.closed = true
	other := r.slots[role.other().index()].conn
	r.slots = [2]slot{}
	r.mu.Unlock()

	if other != nil {
		closeFrame, _ := protocol.Encode(protocol.Control(protocol.TypeClose))
		other.Send(closeFrame)
		other.Close()
	}
	return true
}

// Registry indexes open rooms by code.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	maxRooms int
}

// NewRegistry creates an empty registry. maxRooms <= 0 means unlimited.
func NewRegistry(maxRooms int) *Registry {
	return &Registry{rooms: make(map[string]*Room), maxRooms: maxRooms}
}

// Reserve claims the role's slot in the room named by code. A host creates
// the room; a guest needs an existing one.
func (g *Registry) Reserve(code string, role Role) (*Room, error) {
	if err := protocol.ValidateRoomCode(code); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[code]
	if role == RoleHost {
		if ok {
			return nil, ErrRoomTaken
		}
		if g.maxRooms > 0 && len(g.rooms) >= g.maxRooms {
			return nil, ErrTooManyRooms
		}
		room = newRoom(code)
		g.rooms[code] = room
	} else if !ok {
		return nil, ErrRoomNotFound
	}

	if err := room.reserve(role); err != nil {
		return nil, err
	}
	return room, nil
}

// Get returns the room with the given code.
func (g *Registry) Get(code string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[code]
	return r, ok
}

func (g *Registry) remove(room *Room) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rooms[room.Code] == room {
		delete(g.rooms, room.Code)
	}
}

// Len returns the number of open rooms.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// Rooms returns a snapshot of all open rooms.
func (g *Registry) Rooms() []*Room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		out = append(out, r)
	}
	return out
}
