// Package auth stores the bearer credential used against the questlog backend.
//
// The identity provider flow happens elsewhere; this package only keeps the
// resulting token. A Store doubles as the api.TokenSource:
//
//	store := auth.NewStore(path, os.Getenv("QL_TOKEN"))
//	client, err := api.New(baseURL, store, api.Options{})
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated means no usable token is available.
var ErrUnauthenticated = errors.New("not authenticated")

// Credentials is the persisted login.
type Credentials struct {
	Token   string    `json:"token"`
	UserID  string    `json:"user_id,omitempty"`
	Email   string    `json:"email,omitempty"`
	SavedAt time.Time `json:"saved_at"`
}

// Store reads and writes credentials.json.
type Store struct {
	path     string
	override string
	now      func() time.Time
}

// NewStore returns a store backed by path. A non-empty override token takes
// precedence over the saved file.
func NewStore(path, override string) *Store {
	return &Store{path: path, override: strings.TrimSpace(override), now: time.Now}
}

// Path returns the credentials file location.
func (s *Store) Path() string { return s.path }

// Load reads the saved credentials. Returns ErrUnauthenticated if none exist.
func (s *Store) Load() (*Credentials, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials %s: %w", s.path, err)
	}
	if creds.Token == "" {
		return nil, ErrUnauthenticated
	}
	return &creds, nil
}

// Save writes creds with owner-only permissions.
func (s *Store) Save(creds *Credentials) error {
	if creds == nil || strings.TrimSpace(creds.Token) == "" {
		return fmt.Errorf("token cannot be empty")
	}
	if creds.SavedAt.IsZero() {
		creds.SavedAt = s.now().UTC()
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// Clear removes saved credentials. Missing files are not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}

// Token returns the current bearer token, or ErrUnauthenticated.
func (s *Store) Token() (string, error) {
	token := s.override
	if token == "" {
		creds, err := s.Load()
		if err != nil {
			return "", err
		}
		token = creds.Token
	}
	if Expired(token, s.now()) {
		return "", fmt.Errorf("token expired: %w", ErrUnauthenticated)
	}
	return token, nil
}

// Authenticated reports whether Token would succeed.
func (s *Store) Authenticated() bool {
	_, err := s.Token()
	return err == nil
}

// Expiry returns the exp claim of a JWT, or false for opaque tokens and
// JWTs without one. The signature is not verified; the backend does that.
func Expiry(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Expired reports whether token is a JWT whose exp has passed at now.
func Expired(token string, now time.Time) bool {
	exp, ok := Expiry(token)
	return ok && !now.Before(exp)
}

// Static is a fixed token source, mainly for tests. An empty Static is
// unauthenticated.
type Static string

// Token implements api.TokenSource.
func (s Static) Token() (string, error) {
	if s == "" {
		return "", ErrUnauthenticated
	}
	return string(s), nil
}

// Authenticated reports whether a token is set.
func (s Static) Authenticated() bool { return s != "" }
