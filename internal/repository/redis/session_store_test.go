package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/repository"
)

func TestSessionRepository_Lifecycle(t *testing.T) {
	client, server := newTestRedis(t)
	store := NewSessionRepository(NewCredentialCache(client, ""), SessionConfig{TTL: 72 * time.Hour})
	store.newID = func() (string, error) { return "s-1", nil }
	ctx := context.Background()

	id, err := store.CreateSession(ctx, domain.SessionData{domain.SessionAccessTokenKey: "tok-1"})
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	if id != "s-1" {
		t.Fatalf("expected session id s-1, got %s", id)
	}

	if ttl := server.TTL("session:s-1"); ttl != 72*time.Hour {
		t.Fatalf("expected session ttl 72h, got %v", ttl)
	}
	if got, _ := server.Get("session-index:tok-1"); got != `"s-1"` {
		t.Fatalf("expected token link, got %q", got)
	}
	if ttl := server.TTL("session-index:tok-1"); ttl != 72*time.Hour {
		t.Fatalf("expected token link ttl 72h, got %v", ttl)
	}

	data, err := store.ReadSession(ctx, id)
	if err != nil {
		t.Fatalf("ReadSession returned error: %v", err)
	}
	if data.AccessToken() != "tok-1" {
		t.Fatalf("expected access token tok-1, got %s", data.AccessToken())
	}

	if err := store.UpdateSession(ctx, id, domain.SessionData{domain.SessionAccessTokenKey: "tok-2"}); err != nil {
		t.Fatalf("UpdateSession returned error: %v", err)
	}
	if server.Exists("session-index:tok-1") {
		t.Fatalf("expected stale token link to be removed")
	}

	if err := store.DeleteSession(ctx, id); err != nil {
		t.Fatalf("DeleteSession returned error: %v", err)
	}
	if _, err := store.ReadSession(ctx, id); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if server.Exists("session-index:tok-2") {
		t.Fatalf("expected token link to be removed with the session")
	}
}

func TestSessionRepository_UnlinkToken(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewSessionRepository(NewCredentialCache(client, ""), SessionConfig{})
	ctx := context.Background()

	id, err := store.CreateSession(ctx, domain.SessionData{domain.SessionAccessTokenKey: "tok-1"})
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	if err := store.UnlinkToken(ctx, "tok-1"); err != nil {
		t.Fatalf("UnlinkToken returned error: %v", err)
	}
	if _, err := store.ReadSession(ctx, id); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected session bound to token to be gone, got %v", err)
	}

	if err := store.UnlinkToken(ctx, "unknown"); err != nil {
		t.Fatalf("UnlinkToken on unknown token returned error: %v", err)
	}
}

func TestSessionRepository_TokenLinksExpireWithSessions(t *testing.T) {
	client, server := newTestRedis(t)
	store := NewSessionRepository(NewCredentialCache(client, ""), SessionConfig{TTL: time.Hour})
	ctx := context.Background()

	for _, token := range []string{"tok-1", "tok-2", "tok-3"} {
		if _, err := store.CreateSession(ctx, domain.SessionData{domain.SessionAccessTokenKey: token}); err != nil {
			t.Fatalf("CreateSession returned error: %v", err)
		}
	}
	if keys := server.Keys(); len(keys) != 6 {
		t.Fatalf("expected 3 sessions and 3 token links, got %v", keys)
	}

	server.FastForward(time.Hour + time.Second)

	if keys := server.Keys(); len(keys) != 0 {
		t.Fatalf("expected sessions and token links to expire together, got %v", keys)
	}
	if err := store.UnlinkToken(ctx, "tok-1"); err != nil {
		t.Fatalf("UnlinkToken after expiry returned error: %v", err)
	}
}
