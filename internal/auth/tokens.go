// Package auth issues and verifies the capability tokens that gate the HTTP
// API. A wire token is "<id>.<secret>"; only the sha256 of the secret is
// persisted, so a token is retrievable exactly once, at creation.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codex-agent/codexd/internal/store"
)

var (
	// ErrTokenNotFound is returned when no token record matches the id.
	ErrTokenNotFound = errors.New("token not found")
	// ErrTokenInvalid is returned for malformed, revoked, expired, or
	// mismatched tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrAlreadyRevoked is returned when revoking a revoked token.
	ErrAlreadyRevoked = errors.New("token already revoked")
)

const (
	tokensFile   = "tokens.json"
	secretLength = 24
)

// Permissions form a closed taxonomy. Wildcards cover their prefix.
var knownPermissions = map[string]bool{
	"session:create": true,
	"session:read":   true,
	"session:cancel": true,
	"group:*":        true,
	"queue:*":        true,
	"bookmark:*":     true,
}

// Record is one issued token. TokenHash is hex sha256 of the secret half.
type Record struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	RevokedAt   *time.Time `json:"revokedAt,omitempty"`
	TokenHash   string     `json:"tokenHash"`
}

type tokensDoc struct {
	Tokens []Record `json:"tokens"`
}

// TokenStore is the single writer for tokens.json.
type TokenStore struct {
	path string
	mu   sync.Mutex
}

// NewTokenStore creates a store rooted at the given config directory.
func NewTokenStore(configDir string) *TokenStore {
	return &TokenStore{path: filepath.Join(configDir, tokensFile)}
}

func (s *TokenStore) load() (*tokensDoc, error) {
	doc := &tokensDoc{}
	if _, err := store.LoadJSON(s.path, doc); err != nil {
		return nil, err
	}
	if doc.Tokens == nil {
		doc.Tokens = []Record{}
	}
	return doc, nil
}

// Create issues a token and returns the record plus the wire token. The wire
// token is never retrievable again.
func (s *TokenStore) Create(name string, permissions []string, expiresAt *time.Time) (*Record, string, error) {
	for _, p := range permissions {
		if !knownPermissions[p] {
			return nil, "", fmt.Errorf("%w: unknown permission %q", ErrTokenInvalid, p)
		}
	}

	secret := make([]byte, secretLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, "", fmt.Errorf("generate secret: %w", err)
	}
	secretHex := hex.EncodeToString(secret)

	rec := Record{
		ID:          uuid.NewString(),
		Name:        name,
		Permissions: permissions,
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   expiresAt,
		TokenHash:   hashSecret(secretHex),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, "", err
	}
	doc.Tokens = append(doc.Tokens, rec)
	if err := store.SaveJSON(s.path, doc); err != nil {
		return nil, "", err
	}
	return &rec, rec.ID + "." + secretHex, nil
}

// List returns all token records, hashes included; callers decide what to
// expose.
func (s *TokenStore) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Tokens, nil
}

// Revoke marks a token revoked. Revoking twice is a conflict.
func (s *TokenStore) Revoke(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	for i := range doc.Tokens {
		if doc.Tokens[i].ID != id {
			continue
		}
		if doc.Tokens[i].RevokedAt != nil {
			return ErrAlreadyRevoked
		}
		now := time.Now().UTC()
		doc.Tokens[i].RevokedAt = &now
		return store.SaveJSON(s.path, doc)
	}
	return ErrTokenNotFound
}

// Rotate replaces a token's secret and clears any revocation. The previous
// wire token stops verifying immediately.
func (s *TokenStore) Rotate(id string) (*Record, string, error) {
	secret := make([]byte, secretLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, "", fmt.Errorf("generate secret: %w", err)
	}
	secretHex := hex.EncodeToString(secret)

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, "", err
	}
	for i := range doc.Tokens {
		if doc.Tokens[i].ID != id {
			continue
		}
		doc.Tokens[i].TokenHash = hashSecret(secretHex)
		doc.Tokens[i].RevokedAt = nil
		if err := store.SaveJSON(s.path, doc); err != nil {
			return nil, "", err
		}
		rec := doc.Tokens[i]
		return &rec, rec.ID + "." + secretHex, nil
	}
	return nil, "", ErrTokenNotFound
}

// Verify checks a wire token and returns its record when valid.
func (s *TokenStore) Verify(wire string) (*Record, error) {
	id, secret, ok := strings.Cut(wire, ".")
	if !ok || id == "" || secret == "" {
		return nil, fmt.Errorf("%w: malformed", ErrTokenInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range doc.Tokens {
		rec := &doc.Tokens[i]
		if rec.ID != id {
			continue
		}
		if rec.RevokedAt != nil {
			return nil, fmt.Errorf("%w: revoked", ErrTokenInvalid)
		}
		if rec.ExpiresAt != nil && time.Now().After(*rec.ExpiresAt) {
			return nil, fmt.Errorf("%w: expired", ErrTokenInvalid)
		}
		presented := hashSecret(secret)
		// Length mismatch rejects early; equal lengths go through a
		// constant-time compare.
		if len(presented) != len(rec.TokenHash) {
			return nil, fmt.Errorf("%w: mismatch", ErrTokenInvalid)
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(rec.TokenHash)) != 1 {
			return nil, fmt.Errorf("%w: mismatch", ErrTokenInvalid)
		}
		out := *rec
		return &out, nil
	}
	return nil, fmt.Errorf("%w: unknown id", ErrTokenInvalid)
}

// HasPermission reports whether the record grants a scope, either exactly or
// through its prefix wildcard.
func HasPermission(rec *Record, scope string) bool {
	prefix, _, _ := strings.Cut(scope, ":")
	wildcard := prefix + ":*"
	for _, p := range rec.Permissions {
		if p == scope || p == wildcard {
			return true
		}
	}
	return false
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
