package memory

import (
	"testing"
	"time"

	"quizlive/internal/app"
	"quizlive/internal/domain"
)

func TestRoomStoreLifecycle(t *testing.T) {
	store := NewRoomStore()
	room := app.NewRoomWithClock("ABCD1234", "host-1", domain.RoomConfig{}, time.Now)

	if store.Exists("ABCD1234") || store.Count() != 0 {
		t.Fatalf("fresh store is not empty")
	}

	store.Create("ABCD1234", room)
	if !store.Exists("ABCD1234") || store.Count() != 1 {
		t.Fatalf("room not registered")
	}
	got, ok := store.Get("ABCD1234")
	if !ok || got != room {
		t.Fatalf("Get returned %v, %v", got, ok)
	}
	if all := store.All(); len(all) != 1 || all[0] != room {
		t.Fatalf("All returned %v", all)
	}

	store.Delete("ABCD1234")
	if store.Exists("ABCD1234") || store.Count() != 0 {
		t.Fatalf("room survived delete")
	}
	if _, ok := store.Get("ABCD1234"); ok {
		t.Fatalf("Get hit after delete")
	}
}
