package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"quiz-battle-service/internal/app"
)

func TestSessionDirectoryRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	dir := NewSessionDirectory(client, time.Minute)
	ctx := context.Background()

	if err := dir.Put(ctx, "conn-1", app.Session{RoomID: "room-1", UserID: "u1"}); err != nil {
		t.Fatalf("put session: %v", err)
	}
	if !mr.Exists("battle:session:conn-1") {
		t.Fatalf("expected redis key to be set")
	}

	session, ok, err := dir.Get(ctx, "conn-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !ok {
		t.Fatalf("expected session to exist")
	}
	if session.RoomID != "room-1" || session.UserID != "u1" {
		t.Fatalf("unexpected session %+v", session)
	}

	if err := dir.Delete(ctx, "conn-1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if mr.Exists("battle:session:conn-1") {
		t.Fatalf("expected redis key to be removed")
	}
}

func TestSessionDirectoryMissAndTouch(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	dir := NewSessionDirectory(client, time.Minute)
	ctx := context.Background()

	// A miss is (false, nil), never an error.
	if _, ok, err := dir.Get(ctx, "conn-unknown"); err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
	if ok, err := dir.Touch(ctx, "conn-unknown"); err != nil || ok {
		t.Fatalf("expected touch miss, got ok=%v err=%v", ok, err)
	}

	if err := dir.Put(ctx, "conn-1", app.Session{RoomID: "room-1", UserID: "u1"}); err != nil {
		t.Fatalf("put session: %v", err)
	}

	// Expire the key, touch must report a miss afterwards.
	mr.FastForward(2 * time.Minute)
	if ok, err := dir.Touch(ctx, "conn-1"); err != nil || ok {
		t.Fatalf("expected touch miss after expiry, got ok=%v err=%v", ok, err)
	}
}
