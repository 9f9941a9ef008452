package protocol

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

const (
	roomCodeChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// RoomCodeLength is the number of characters in a room code.
	RoomCodeLength = 6
)

// ErrInvalidRoomCode is returned for codes outside [A-Z0-9]{6}.
var ErrInvalidRoomCode = errors.New("invalid room code")

// NewRoomCode generates a random room code.
func NewRoomCode() string {
	b := make([]byte, RoomCodeLength)
	max := big.NewInt(int64(len(roomCodeChars)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		b[i] = roomCodeChars[idx.Int64()]
	}
	return string(b)
}

// NormalizeRoomCode trims and upper-cases user input.
func NormalizeRoomCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidateRoomCode checks an already normalized code.
func ValidateRoomCode(code string) error {
	if len(code) != RoomCodeLength {
		return ErrInvalidRoomCode
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(roomCodeChars, code[i]) < 0 {
			return ErrInvalidRoomCode
		}
	}
	return nil
}
