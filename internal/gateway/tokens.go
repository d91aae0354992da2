package gateway

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"sync"
	"time"
)

// TokenStore holds one-time pairing codes and the bearer tokens issued
// for them. Implementations must make code consumption atomic: a code
// redeems at most once no matter how many callers race on it.
type TokenStore interface {
	CreatePairingCode(ctx context.Context, ttl time.Duration) (string, error)
	ConsumePairingCode(ctx context.Context, code string) (bool, error)
	SaveToken(ctx context.Context, token string) error
	ValidToken(ctx context.Context, token string) (bool, error)
	RevokeToken(ctx context.Context, token string) error
}

// generatePairingCode returns a short human-relayable hex code
func generatePairingCode() (string, error) {
	raw := make([]byte, 4)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// generateBearerToken returns a long-lived random bearer token
func generateBearerToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// memoryTokenStore is the default single-process store. Comparisons run
// constant-time over the full set so lookups leak no timing signal about
// which entries exist.
type memoryTokenStore struct {
	mu     sync.Mutex
	codes  map[string]time.Time
	tokens map[string]struct{}
}

// NewMemoryTokenStore creates an in-memory TokenStore
func NewMemoryTokenStore() TokenStore {
	return &memoryTokenStore{
		codes:  make(map[string]time.Time),
		tokens: make(map[string]struct{}),
	}
}

func (s *memoryTokenStore) CreatePairingCode(ctx context.Context, ttl time.Duration) (string, error) {
	code, err := generatePairingCode()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.codes[code] = time.Now().Add(ttl)
	s.mu.Unlock()
	return code, nil
}

func (s *memoryTokenStore) ConsumePairingCode(ctx context.Context, code string) (bool, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	matched := ""
	for candidate, expires := range s.codes {
		if now.After(expires) {
			delete(s.codes, candidate)
			continue
		}
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(code)) == 1 {
			matched = candidate
		}
	}
	if matched == "" {
		return false, nil
	}
	delete(s.codes, matched)
	return true, nil
}

func (s *memoryTokenStore) SaveToken(ctx context.Context, token string) error {
	s.mu.Lock()
	s.tokens[token] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *memoryTokenStore) ValidToken(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	valid := false
	for candidate := range s.tokens {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			valid = true
		}
	}
	return valid, nil
}

func (s *memoryTokenStore) RevokeToken(ctx context.Context, token string) error {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
	return nil
}
