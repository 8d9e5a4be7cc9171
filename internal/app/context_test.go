package app

import (
	"context"
	"os"
	"testing"

	"recruitline/internal/config"
	"recruitline/internal/engine/auth"
	"recruitline/internal/messaging"
)

func TestOpenSeedsRolesAndUsesNoopMessenger(t *testing.T) {
	ctx := context.Background()
	ws, err := Open(ctx, t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ws.Close()

	if _, ok := ws.Engine.Messenger.(messaging.Noop); !ok {
		t.Fatalf("expected noop messenger, got %T", ws.Engine.Messenger)
	}
	svc := auth.Service{DB: ws.Engine.DB}
	if err := svc.Grant(ctx, "rec-1", "recruiter"); err != nil {
		t.Fatalf("grant seeded role: %v", err)
	}
	ok, err := svc.ActorHasPermission(ctx, "rec-1", "candidate.create")
	if err != nil || !ok {
		t.Fatalf("expected candidate.create via recruiter, ok=%v err=%v", ok, err)
	}
}

func TestOpenReadsWorkspaceConfig(t *testing.T) {
	dir := t.TempDir()
	yml := "booking:\n  link_ttl_hours: 12\nmessaging:\n  redis_url: redis://127.0.0.1:1/0\n"
	if err := os.WriteFile(config.Path(dir), []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	ws, err := Open(context.Background(), dir, Options{OfflineMessaging: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ws.Close()
	if ws.Config.Booking.LinkTTLHours != 12 {
		t.Fatalf("expected ttl from file, got %d", ws.Config.Booking.LinkTTLHours)
	}
	if _, ok := ws.Engine.Messenger.(messaging.Noop); !ok {
		t.Fatalf("offline mode should not dial redis, got %T", ws.Engine.Messenger)
	}
}

func TestOpenRejectsBadRedisURL(t *testing.T) {
	if _, err := Open(context.Background(), t.TempDir(), Options{RedisURL: "not a url"}); err == nil {
		t.Fatalf("expected redis url error")
	}
}
