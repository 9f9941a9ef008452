// Package protocol defines the frames exchanged over a peer channel: the
// relayed input and reset messages and the broker's control frames.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Message types
const (
	TypeInput = "input" // key edge relayed to the peer
	TypeReset = "reset" // host asks the guest to reinitialize the match
	TypeOpen  = "open"  // broker: both ends are paired
	TypeClose = "close" // broker: the other end left
)

var (
	// ErrMalformed is returned for frames that are not valid JSON objects.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType is returned for a type this protocol does not define.
	ErrUnknownType = errors.New("unknown message type")
)

// Message is one frame on the channel. Timestamp is epoch milliseconds at
// the sender; receivers do not use it.
type Message struct {
	Type      string `json:"type"`
	EventType string `json:"eventType,omitempty"`
	Code      string `json:"code,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// NewInput builds an input-edge message stamped with now.
func NewInput(eventType, code string, now time.Time) Message {
	return Message{Type: TypeInput, EventType: eventType, Code: code, Timestamp: now.UnixMilli()}
}

// NewReset builds a reset message stamped with now.
func NewReset(now time.Time) Message {
	return Message{Type: TypeReset, Timestamp: now.UnixMilli()}
}

// Control builds a broker control frame.
func Control(typ string) Message {
	return Message{Type: typ}
}

// IsControl reports whether m is a broker control frame.
func (m Message) IsControl() bool {
	return m.Type == TypeOpen || m.Type == TypeClose
}

// Validate checks the fields required by the message type.
func (m Message) Validate() error {
	switch m.Type {
	case TypeInput:
		if m.EventType != "keydown" && m.EventType != "keyup" {
			return fmt.Errorf("%w: input eventType %q", ErrMalformed, m.EventType)
		}
		if m.Code == "" {
			return fmt.Errorf("%w: input without code", ErrMalformed)
		}
	case TypeReset, TypeOpen, TypeClose:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	return nil
}

// Encode marshals a message for the wire.
func Encode(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// Decode parses and validates one frame.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Peek returns only the type of a frame. The broker uses it to spot
// control frames without validating game messages it merely pipes.
func Peek(data []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(data, &head) != nil {
		return ""
	}
	return head.Type
}
