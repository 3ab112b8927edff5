package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/infra/security"
)

type authFixture struct {
	users    *memUsers
	roles    *memRoles
	cache    *memCache
	sessions *memSessions
	auth     *AuthService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	users := newMemUsers(domain.User{
		ID:           "u-1",
		Name:         "Alice",
		Email:        "alice@foo.com",
		PasswordHash: "hashed:s3cret",
	})
	roles := newMemRoles(users, domain.Role{ID: "r-admin", Name: "admin"}, domain.Role{ID: "r-user", Name: "user"})
	if err := roles.Assign(context.Background(), "u-1", "r-admin"); err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}

	cache := newMemCache()
	sessions := newMemSessions()
	auth := NewAuthService(users, roles, cache, sessions, plainHasher{}, sequentialTokens(), AuthConfig{}, zaptest.NewLogger(t))

	return &authFixture{users: users, roles: roles, cache: cache, sessions: sessions, auth: auth}
}

func TestAuthService_LoginCachesAccessData(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	data, err := f.auth.Login(ctx, " alice@foo.com ", "s3cret")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if data.Token != "tok-1" || data.UserID != "u-1" {
		t.Fatalf("unexpected access data %+v", data)
	}
	if names := data.RoleNames(); len(names) != 1 || names[0] != "admin" {
		t.Fatalf("expected admin role, got %v", names)
	}
	if data.UserData.User.Password != "" {
		t.Fatalf("password must be scrubbed")
	}

	ttl, err := f.cache.TimeToLive(ctx, "tok-1")
	if err != nil {
		t.Fatalf("TimeToLive returned error: %v", err)
	}
	if ttl != 259200*time.Second {
		t.Fatalf("expected default token ttl, got %s", ttl)
	}

	user, _ := f.users.GetByID(ctx, "u-1")
	if user.CachedAccessToken == nil || *user.CachedAccessToken != "tok-1" {
		t.Fatalf("expected token stored on user row")
	}

	resolved, err := f.auth.ResolveToken(ctx, "tok-1")
	if err != nil {
		t.Fatalf("ResolveToken returned error: %v", err)
	}
	if resolved.Public().Email != "alice@foo.com" {
		t.Fatalf("unexpected resolved user %+v", resolved.Public())
	}
}

func TestAuthService_LoginRejectsBadCredentials(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	if _, err := f.auth.Login(ctx, "alice@foo.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := f.auth.Login(ctx, "nobody@foo.com", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
	if _, err := f.auth.Login(ctx, "", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty input, got %v", err)
	}
	if f.cache.has("tok-1") {
		t.Fatalf("no token may be issued on failed login")
	}
}

func TestAuthService_LoginRevokesLivePreviousToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	if _, err := f.auth.Login(ctx, "alice@foo.com", "s3cret"); err != nil {
		t.Fatalf("first Login returned error: %v", err)
	}
	if _, err := f.sessions.CreateSession(ctx, domain.SessionData{domain.SessionAccessTokenKey: "tok-1"}); err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	if _, err := f.auth.Login(ctx, "alice@foo.com", "s3cret"); err != nil {
		t.Fatalf("second Login returned error: %v", err)
	}

	if f.cache.has("tok-1") {
		t.Fatalf("previous token should be revoked")
	}
	if !f.cache.has("tok-2") {
		t.Fatalf("new token should be cached")
	}
	if len(f.sessions.unlinked) != 1 || f.sessions.unlinked[0] != "tok-1" {
		t.Fatalf("expected session of tok-1 to be unlinked, got %v", f.sessions.unlinked)
	}
	if _, err := f.auth.ResolveToken(ctx, "tok-1"); !errors.Is(err, ErrAccessDataNotFound) {
		t.Fatalf("expected ErrAccessDataNotFound, got %v", err)
	}
}

func TestAuthService_LoginSkipsExpiredPreviousToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	if _, err := f.auth.Login(ctx, "alice@foo.com", "s3cret"); err != nil {
		t.Fatalf("first Login returned error: %v", err)
	}
	f.cache.advance(259200 * time.Second)

	if _, err := f.auth.Login(ctx, "alice@foo.com", "s3cret"); err != nil {
		t.Fatalf("second Login returned error: %v", err)
	}
	if len(f.sessions.unlinked) != 0 {
		t.Fatalf("expired token needs no revocation, got %v", f.sessions.unlinked)
	}
}

func TestAuthService_Logout(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	if _, err := f.auth.Login(ctx, "alice@foo.com", "s3cret"); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if err := f.auth.Logout(ctx, "tok-1"); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if f.cache.has("tok-1") {
		t.Fatalf("token should be deleted")
	}
	if err := f.auth.Logout(ctx, "unknown"); err != nil {
		t.Fatalf("Logout of unknown token returned error: %v", err)
	}
}

func TestAuthService_LogsTokenFingerprintOnly(t *testing.T) {
	f := newAuthFixture(t)
	core, logs := observer.New(zap.DebugLevel)
	f.auth.logger = zap.New(core)
	f.auth.access.logger = f.auth.logger
	ctx := context.Background()

	if _, err := f.auth.Login(ctx, "alice@foo.com", "s3cret"); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if err := f.auth.Logout(ctx, "tok-1"); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}

	want := security.Fingerprint("tok-1")
	for _, msg := range []string{"user logged in", "access token revoked"} {
		entries := logs.FilterMessage(msg).All()
		if len(entries) != 1 {
			t.Fatalf("expected one %q entry, got %d", msg, len(entries))
		}
		if got := entries[0].ContextMap()["token_fp"]; got != want {
			t.Fatalf("expected token_fp %q on %q, got %v", want, msg, got)
		}
	}
	for _, entry := range logs.All() {
		for key, value := range entry.ContextMap() {
			if value == "tok-1" {
				t.Fatalf("raw token logged under %q in %q", key, entry.Message)
			}
		}
	}
}
