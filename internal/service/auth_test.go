package service

import (
	"context"
	"testing"
	"time"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/store"
)

func seedAdmin(t *testing.T, st *store.Store, username, password string) *model.Admin {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	admin := &model.Admin{Username: username, PasswordHash: hash}
	if err := st.CreateAdmin(context.Background(), admin); err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
	return admin
}

func seedReseller(t *testing.T, st *store.Store, username, password string, credits int64) *model.Reseller {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	res := &model.Reseller{Username: username, PasswordHash: hash, Credits: credits}
	if err := st.CreateReseller(context.Background(), res); err != nil {
		t.Fatalf("CreateReseller: %v", err)
	}
	return res
}

func TestAuthenticateAdmin(t *testing.T) {
	st, _ := newTestDeps(t)
	auth := NewAuthService(st, "test-secret", time.Hour)
	seedAdmin(t, st, "root", "hunter2")

	admin, err := auth.AuthenticateAdmin(context.Background(), "root", "hunter2")
	if err != nil {
		t.Fatalf("AuthenticateAdmin: %v", err)
	}
	if admin.Username != "root" {
		t.Errorf("username = %q", admin.Username)
	}
	if admin.LastLogin == nil {
		t.Error("last login not recorded")
	}

	if _, err := auth.AuthenticateAdmin(context.Background(), "root", "wrong"); err != ErrInvalidCredentials {
		t.Errorf("wrong password: err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := auth.AuthenticateAdmin(context.Background(), "nobody", "hunter2"); err != ErrInvalidCredentials {
		t.Errorf("unknown user: err = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticateReseller(t *testing.T) {
	st, _ := newTestDeps(t)
	auth := NewAuthService(st, "test-secret", time.Hour)
	seedReseller(t, st, "shop", "pass123", 10)

	res, err := auth.AuthenticateReseller(context.Background(), "shop", "pass123")
	if err != nil {
		t.Fatalf("AuthenticateReseller: %v", err)
	}
	if res.Credits != 10 {
		t.Errorf("credits = %d, want 10", res.Credits)
	}

	if _, err := auth.AuthenticateReseller(context.Background(), "shop", "nope"); err != ErrInvalidCredentials {
		t.Errorf("wrong password: err = %v, want ErrInvalidCredentials", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	st, _ := newTestDeps(t)
	auth := NewAuthService(st, "test-secret", time.Hour)

	token, err := auth.IssueToken(RoleReseller, 42, "shop")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	p, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if p.Role != RoleReseller || p.ID != 42 || p.Username != "shop" {
		t.Errorf("principal = %+v", p)
	}
}

func TestValidateTokenRejectsForgery(t *testing.T) {
	st, _ := newTestDeps(t)
	auth := NewAuthService(st, "test-secret", time.Hour)
	other := NewAuthService(st, "other-secret", time.Hour)

	token, err := other.IssueToken(RoleAdmin, 1, "root")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := auth.ValidateToken(token); err != ErrInvalidCredentials {
		t.Errorf("foreign signature: err = %v, want ErrInvalidCredentials", err)
	}

	if _, err := auth.ValidateToken("not.a.token"); err != ErrInvalidCredentials {
		t.Errorf("garbage token: err = %v, want ErrInvalidCredentials", err)
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	st, _ := newTestDeps(t)
	auth := NewAuthService(st, "test-secret", -time.Hour)
	// Negative ttl falls back to the default, so force expiry directly.
	auth.ttl = -time.Hour

	token, err := auth.IssueToken(RoleAdmin, 1, "root")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := auth.ValidateToken(token); err != ErrInvalidCredentials {
		t.Errorf("expired token: err = %v, want ErrInvalidCredentials", err)
	}
}

func TestHashPasswordNotPlaintext(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if hash == "s3cret" || len(hash) < 32 {
		t.Errorf("suspicious hash %q", hash)
	}
	// Same input hashes differently each time (random salt).
	again, _ := HashPassword("s3cret")
	if hash == again {
		t.Error("hash is deterministic")
	}
}
