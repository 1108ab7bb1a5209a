package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultSessionTTL = 24 * time.Hour
	sessionIssuer     = "notesd"
)

var (
	// ErrUnauthenticated covers missing, malformed, expired and revoked
	// session tokens alike; callers never learn which case occurred.
	ErrUnauthenticated = errors.New("auth: unauthenticated")

	errMissingSigningSecret = errors.New("auth: signing secret required")
)

// ManagerConfig configures the session token manager.
type ManagerConfig struct {
	SigningSecret []byte
	SessionTTL    time.Duration
	Clock         func() time.Time
}

// Manager issues and resolves signed session tokens. A token is an HS256 JWT
// whose subject is the account id; revoked tokens are tracked in memory until
// they would have expired anyway.
type Manager struct {
	signingSecret []byte
	sessionTTL    time.Duration
	clock         func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time
}

// NewManager constructs a session manager with sane defaults.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingSigningSecret
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		sessionTTL:    ttl,
		clock:         clock,
		revoked:       make(map[string]time.Time),
	}, nil
}

// SessionTTL returns the validity window applied to issued tokens.
func (m *Manager) SessionTTL() time.Duration {
	return m.sessionTTL
}

// Issue produces a fresh token bound to the given account id.
func (m *Manager) Issue(userID uint) (string, error) {
	if userID == 0 {
		return "", fmt.Errorf("auth: issue: account id required")
	}

	now := m.clock().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Issuer:    sessionIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.sessionTTL)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.signingSecret)
	if err != nil {
		return "", fmt.Errorf("auth: issue: %w", err)
	}
	return signed, nil
}

// Resolve validates a token and returns the account id it was issued for.
func (m *Manager) Resolve(tokenString string) (uint, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return 0, ErrUnauthenticated
	}
	if m.isRevoked(tokenString) {
		return 0, ErrUnauthenticated
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
			}
			return m.signingSecret, nil
		},
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(m.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || parsed == nil || !parsed.Valid {
		return 0, ErrUnauthenticated
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || userID == 0 {
		return 0, ErrUnauthenticated
	}
	return uint(userID), nil
}

// Revoke invalidates the token for all future resolutions.
func (m *Manager) Revoke(tokenString string) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return
	}
	now := m.clock()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[tokenString] = now.Add(m.sessionTTL)
	for token, expiry := range m.revoked {
		if now.After(expiry) {
			delete(m.revoked, token)
		}
	}
}

func (m *Manager) isRevoked(tokenString string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiry, ok := m.revoked[tokenString]
	if !ok {
		return false
	}
	if m.clock().After(expiry) {
		delete(m.revoked, tokenString)
		return false
	}
	return true
}
