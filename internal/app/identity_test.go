package app

import (
	"errors"
	"strings"
	"testing"

	"quizlive/internal/domain"
)

func TestRoomCodeFormat(t *testing.T) {
	gen := NewIdentityGenerator(8)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := gen.RoomCode(func(string) bool { return false })
		if err != nil {
			t.Fatalf("RoomCode: %v", err)
		}
		if len(code) != 8 {
			t.Fatalf("code %q has length %d", code, len(code))
		}
		for _, ch := range code {
			if !strings.ContainsRune(roomCodeAlphabet, ch) {
				t.Fatalf("code %q contains %q", code, ch)
			}
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Fatalf("50 draws produced %d distinct codes", len(seen))
	}
}

func TestRoomCodeRetriesOnCollision(t *testing.T) {
	gen := NewIdentityGenerator(8)
	calls := 0
	code, err := gen.RoomCode(func(string) bool {
		calls++
		return calls <= 3
	})
	if err != nil {
		t.Fatalf("RoomCode: %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 occupancy checks, got %d", calls)
	}
	if code == "" {
		t.Fatalf("empty code after successful retry")
	}
}

func TestRoomCodeExhaustion(t *testing.T) {
	gen := NewIdentityGenerator(8)
	_, err := gen.RoomCode(func(string) bool { return true })
	if !errors.Is(err, domain.ErrCodeSpaceExhausted) {
		t.Fatalf("expected ErrCodeSpaceExhausted, got %v", err)
	}
}

func TestParticipantIDShape(t *testing.T) {
	gen := NewIdentityGenerator(8)
	id, err := gen.ParticipantID("ABCD1234", "alice", func(string) bool { return false })
	if err != nil {
		t.Fatalf("ParticipantID: %v", err)
	}
	parts := strings.Split(id, "_")
	if len(parts) != 3 || parts[0] != "ABCD1234" || parts[1] != "alice" {
		t.Fatalf("unexpected id shape %q", id)
	}
	if len(parts[2]) != 8 {
		t.Fatalf("suffix %q is not 4 random bytes in hex", parts[2])
	}
}

func TestParticipantIDExhaustion(t *testing.T) {
	gen := NewIdentityGenerator(8)
	_, err := gen.ParticipantID("ABCD1234", "alice", func(string) bool { return true })
	if !errors.Is(err, domain.ErrIdentityGeneration) {
		t.Fatalf("expected ErrIdentityGeneration, got %v", err)
	}
}
