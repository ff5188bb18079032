package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrTokenInvalid is returned when a session token fails signature or claims validation.
	ErrTokenInvalid = errors.New("session: token invalid")
	// ErrTokenMissing is returned when no session token is present on the request.
	ErrTokenMissing = errors.New("session: token missing")
)

const issuer = "formflow-api"

// Manager issues and validates signed wizard session tokens.
type Manager struct {
	secret     []byte
	ttl        time.Duration
	cookieName string
	now        func() time.Time

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// ManagerOption customises Manager construction.
type ManagerOption func(*Manager)

// WithClock injects a custom time source (primarily for tests).
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager constructs a Manager for the given signing secret, cookie name, and token lifetime.
func NewManager(secret string, cookieName string, ttl time.Duration, opts ...ManagerOption) (*Manager, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, errors.New("session: signing secret is required")
	}
	if strings.TrimSpace(cookieName) == "" {
		return nil, errors.New("session: cookie name is required")
	}
	if ttl <= 0 {
		return nil, errors.New("session: ttl must be positive")
	}

	m := &Manager{
		secret:     []byte(trimmed),
		ttl:        ttl,
		cookieName: strings.TrimSpace(cookieName),
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.entropy = ulid.Monotonic(rand.Reader, 0)
	return m, nil
}

// CookieName returns the configured session cookie name.
func (m *Manager) CookieName() string {
	return m.cookieName
}

// NewSessionID generates a fresh ULID session identifier.
func (m *Manager) NewSessionID() string {
	m.entropyMu.Lock()
	defer m.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(m.now()), m.entropy).String()
}

// Issue signs a token carrying the session identifier.
func (m *Manager) Issue(sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", errors.New("session: session id is required")
	}

	now := m.now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("session: sign token: %w", err)
	}
	return signed, nil
}

// Parse validates the token and returns the session identifier it carries.
func (m *Manager) Parse(tokenStr string) (string, error) {
	if strings.TrimSpace(tokenStr) == "" {
		return "", ErrTokenMissing
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)

	claims := &jwt.RegisteredClaims{}
	_, err := parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if claims.Issuer != issuer {
		return "", fmt.Errorf("%w: issuer mismatch", ErrTokenInvalid)
	}
	sessionID := strings.TrimSpace(claims.Subject)
	if sessionID == "" {
		return "", fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if _, err := ulid.ParseStrict(sessionID); err != nil {
		return "", fmt.Errorf("%w: malformed session id", ErrTokenInvalid)
	}
	return sessionID, nil
}

// FromRequest extracts and validates the session identifier from the request cookie.
func (m *Manager) FromRequest(r *http.Request) (string, error) {
	if r == nil {
		return "", ErrTokenMissing
	}
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie == nil || strings.TrimSpace(cookie.Value) == "" {
		return "", ErrTokenMissing
	}
	return m.Parse(cookie.Value)
}

// WriteCookie issues a token for the session and sets it on the response.
func (m *Manager) WriteCookie(w http.ResponseWriter, sessionID string) error {
	token, err := m.Issue(sessionID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  m.now().Add(m.ttl),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
