package game

import (
	"encoding/json"
	"time"
)

// EventType enum for journal classification
type EventType uint8

const (
	EventTypeUnknown    EventType = iota
	EventTypeMatchStart           // match (re)created for a mode
	EventTypeEdge                 // key edge applied to a player
	EventTypeReset                // match reinitialized
	EventTypeShot                 // shot spawned on fire release
	EventTypeHit                  // shot confirmed a hit
	EventTypeExplosion            // self-destruct
	EventTypeDisconnect           // session torn down
)

// EventVersion for backwards compatibility when diffing old journals
const EventVersion uint8 = 1

// Event is one line of the match journal
type Event struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"` // Unix nano, wall clock of this replica
	Sequence  uint64          `json:"sequence"`  // Monotonic per journal
	Tick      uint64          `json:"tick"`      // Simulation tick this occurred in
	Source    string          `json:"source"`    // "local", "remote" or "sim"
	Payload   json.RawMessage `json:"payload"`
}

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeMatchStart:
		return "match_start"
	case EventTypeEdge:
		return "edge"
	case EventTypeReset:
		return "reset"
	case EventTypeShot:
		return "shot"
	case EventTypeHit:
		return "hit"
	case EventTypeExplosion:
		return "explosion"
	case EventTypeDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Event sources
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
	SourceSim    = "sim"
)

// MatchStartPayload names the mode a match was started in
type MatchStartPayload struct {
	Mode string `json:"mode"`
	Role string `json:"role,omitempty"`
	Room string `json:"room,omitempty"`
}

// EdgePayload records a key edge as it was applied
type EdgePayload struct {
	Player PlayerID `json:"player"`
	Kind   string   `json:"kind"` // keydown / keyup
	Code   string   `json:"code"`
}

// ResetPayload records who asked for a reset
type ResetPayload struct {
	Origin string `json:"origin"` // local key or relayed message
}

// ShotPayload contains the spawn parameters of a shot
type ShotPayload struct {
	ShotID uint32   `json:"shotId"`
	Owner  PlayerID `json:"owner"`
	X      float64  `json:"x"`
	Y      float64  `json:"y"`
	DirX   float64  `json:"dirX"`
	DirY   float64  `json:"dirY"`
	Speed  float64  `json:"speed"`
	Life   float64  `json:"life"`
}

// RoundPayload contains how a round ended
type RoundPayload struct {
	Winner PlayerID `json:"winner"`
	Loser  PlayerID `json:"loser"`
	ShotID uint32   `json:"shotId,omitempty"`
	Circle int      `json:"circle,omitempty"`
	X      float64  `json:"x"`
	Y      float64  `json:"y"`
}

// DisconnectPayload contains why a session ended
type DisconnectPayload struct {
	Reason string `json:"reason"`
}

// EncodePayload marshals a payload to JSON bytes
func EncodePayload(payload interface{}) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, tick uint64, source string, payload interface{}) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		Tick:      tick,
		Source:    source,
		Payload:   EncodePayload(payload),
	}
}

// OutcomeEvent converts a round-ending outcome into a journal event.
// Returns false for outcomes the journal does not record.
func OutcomeEvent(o Outcome) (Event, bool) {
	switch o.Kind {
	case OutcomeHit:
		return NewEvent(EventTypeHit, o.Tick, SourceSim, RoundPayload{
			Winner: o.Player,
			Loser:  o.Player.Opponent(),
			ShotID: o.ShotID,
			Circle: o.Circle,
			X:      o.Pos.X,
			Y:      o.Pos.Y,
		}), true
	case OutcomeExplosion:
		return NewEvent(EventTypeExplosion, o.Tick, SourceSim, RoundPayload{
			Winner: o.Player.Opponent(),
			Loser:  o.Player,
			X:      o.Pos.X,
			Y:      o.Pos.Y,
		}), true
	}
	return Event{}, false
}

// ShotEvent records a freshly spawned shot.
func ShotEvent(tick uint64, source string, s *Shot) Event {
	return NewEvent(EventTypeShot, tick, source, ShotPayload{
		ShotID: s.ID,
		Owner:  s.Owner,
		X:      s.Pos.X,
		Y:      s.Pos.Y,
		DirX:   s.Dir.X,
		DirY:   s.Dir.Y,
		Speed:  s.Speed,
		Life:   s.Life,
	})
}
