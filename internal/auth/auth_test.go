package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(exp)}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestStoreSaveLoadClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questlog", "credentials.json")
	store := NewStore(path, "")

	if store.Authenticated() {
		t.Fatal("fresh store should be unauthenticated")
	}
	if _, err := store.Token(); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}

	if err := store.Save(&Credentials{Token: "opaque-token", Email: "a@b.c"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("credentials mode = %v, want 0600", info.Mode().Perm())
	}

	creds, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if creds.Email != "a@b.c" || creds.SavedAt.IsZero() {
		t.Errorf("unexpected credentials: %+v", creds)
	}
	token, err := store.Token()
	if err != nil || token != "opaque-token" {
		t.Errorf("Token() = %q, %v", token, err)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Errorf("second Clear should succeed: %v", err)
	}
	if store.Authenticated() {
		t.Error("store should be unauthenticated after Clear")
	}
}

func TestSaveRejectsEmptyToken(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "credentials.json"), "")
	if err := store.Save(&Credentials{Token: "  "}); err == nil {
		t.Error("expected error for empty token")
	}
}

func TestOverrideTakesPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := NewStore(path, "").Save(&Credentials{Token: "saved"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	token, err := NewStore(path, "from-env").Token()
	if err != nil || token != "from-env" {
		t.Errorf("Token() = %q, %v; want from-env", token, err)
	}
}

func TestExpiredJWTIsUnauthenticated(t *testing.T) {
	now := time.Now()
	expired := signedToken(t, now.Add(-time.Minute))
	valid := signedToken(t, now.Add(time.Hour))

	store := NewStore(filepath.Join(t.TempDir(), "credentials.json"), expired)
	if _, err := store.Token(); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated for expired token, got %v", err)
	}

	store = NewStore(filepath.Join(t.TempDir(), "credentials.json"), valid)
	if !store.Authenticated() {
		t.Error("unexpired JWT should authenticate")
	}

	exp, ok := Expiry(valid)
	if !ok || exp.Before(now) {
		t.Errorf("Expiry = %v, %v", exp, ok)
	}
	if _, ok := Expiry("not-a-jwt"); ok {
		t.Error("opaque tokens have no expiry")
	}
}

func TestStatic(t *testing.T) {
	if _, err := Static("").Token(); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("empty Static should be unauthenticated, got %v", err)
	}
	if !Static("x").Authenticated() {
		t.Error("Static(x) should be authenticated")
	}
}
