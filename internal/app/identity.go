package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"

	"quizlive/internal/domain"
)

const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	roomCodeAttempts      = 100
	participantIDAttempts = 10
)

// IdentityGenerator mints collision-checked room codes and participant ids.
// Collisions are resolved by bounded retry against the caller-supplied
// occupancy check; exhausting the attempts is surfaced as an explicit error
// since it signals entropy exhaustion, not a routine failure.
type IdentityGenerator struct {
	codeLength int
}

func NewIdentityGenerator(codeLength int) *IdentityGenerator {
	return &IdentityGenerator{codeLength: codeLength}
}

// RoomCode draws a fixed-length A-Z0-9 code unique among open rooms.
func (g *IdentityGenerator) RoomCode(taken func(string) bool) (string, error) {
	for attempt := 0; attempt < roomCodeAttempts; attempt++ {
		code, err := randomCode(g.codeLength)
		if err != nil {
			return "", fmt.Errorf("room code: %w", err)
		}
		if !taken(code) {
			return code, nil
		}
	}
	return "", domain.ErrCodeSpaceExhausted
}

// ParticipantID concatenates room code, display name, and a random suffix so
// repeated names stay distinguishable. Ids are never reused.
func (g *IdentityGenerator) ParticipantID(roomCode, displayName string, taken func(string) bool) (string, error) {
	for attempt := 0; attempt < participantIDAttempts; attempt++ {
		suffix, err := randomHex(4)
		if err != nil {
			return "", fmt.Errorf("participant id: %w", err)
		}
		id := roomCode + "_" + displayName + "_" + suffix
		if !taken(id) {
			return id, nil
		}
	}
	return "", domain.ErrIdentityGeneration
}

func randomCode(length int) (string, error) {
	code := make([]byte, length)
	max := big.NewInt(int64(len(roomCodeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = roomCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

func randomHex(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
