// Package token signs and verifies the opaque state blob a client hands
// back on reconnect, so a stale or forged blob cannot be replayed into a
// live instance (spec §4.9). This is state-blob integrity, not
// WebSocket authentication -- the server still accepts any socket.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config controls token lifetime and replay-window sizing.
type Config struct {
	TTL         time.Duration // Default: 10 minutes -- a dev session reconnect window, not a long-lived credential
	NonceWindow time.Duration // Default: 1 minute
}

// DefaultConfig returns sane defaults for a local dev-reload session.
func DefaultConfig() *Config {
	return &Config{
		TTL:         10 * time.Minute,
		NonceWindow: time.Minute,
	}
}

// InstanceClaims is the JWT payload binding a signed instance token to
// the identity whose state it protects.
type InstanceClaims struct {
	InstanceID string `json:"instance_id"`
	Identity   string `json:"identity"` // identity.Identity.String()
	Nonce      string `json:"nonce"`
	jwt.RegisteredClaims
}

// NonceStore tracks recently issued nonces so a captured token cannot be
// replayed to restore a stale state blob after it has been superseded.
type NonceStore struct {
	mu     sync.RWMutex
	nonces map[string]time.Time
}

func NewNonceStore() *NonceStore {
	return &NonceStore{nonces: make(map[string]time.Time)}
}

func (ns *NonceStore) Add(nonce string) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.nonces[nonce] = time.Now()
}

func (ns *NonceStore) Exists(nonce string, window time.Duration) bool {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	ts, ok := ns.nonces[nonce]
	return ok && time.Since(ts) < window
}

func (ns *NonceStore) Cleanup(maxAge time.Duration) int {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for nonce, ts := range ns.nonces {
		if ts.Before(cutoff) {
			delete(ns.nonces, nonce)
			removed++
		}
	}
	return removed
}

// Service signs and verifies instance tokens. One Service is created per
// server process; the signing key never leaves memory and is never
// persisted, since a token is only ever meant to survive one reconnect
// within the same dev-reload process lifetime.
type Service struct {
	mu         sync.RWMutex
	signingKey []byte
	nonceStore *NonceStore
	config     *Config
}

// New creates a Service with a freshly generated HS256 signing key.
func New(config *Config) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("token: generate signing key: %w", err)
	}
	return &Service{
		signingKey: key,
		nonceStore: NewNonceStore(),
		config:     config,
	}, nil
}

// Issue signs a token binding instanceID to identity, to be returned to
// the client alongside the state blob it opaquely carries.
func (s *Service) Issue(instanceID, identity string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	nonce, err := generateNonce()
	if err != nil {
		return "", fmt.Errorf("token: generate nonce: %w", err)
	}

	claims := &InstanceClaims{
		InstanceID: instanceID,
		Identity:   identity,
		Nonce:      nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "livereload",
			Subject:   instanceID,
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, rejecting expired tokens and
// replayed nonces. On success the nonce is recorded so the same token
// cannot be verified twice.
func (s *Service) Verify(tokenString string) (*InstanceClaims, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parsed, err := jwt.ParseWithClaims(tokenString, &InstanceClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token: parse: %w", err)
	}
	claims, ok := parsed.Claims.(*InstanceClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("token: invalid claims")
	}
	if s.nonceStore.Exists(claims.Nonce, s.config.NonceWindow) {
		return nil, fmt.Errorf("token: replay detected")
	}
	s.nonceStore.Add(claims.Nonce)
	return claims, nil
}

// CleanupExpiredNonces prunes the nonce store and returns how many
// entries were removed. It runs only when called; nothing in this
// module calls it on a schedule.
func (s *Service) CleanupExpiredNonces() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonceStore.Cleanup(s.config.NonceWindow * 2)
}

func generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
