package session

import (
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the credential the terminal presents to the backend
type Session struct {
	Token     string
	ExpiresAt time.Time // zero when the token carries no expiry
}

// FromToken builds a session from a bearer token.
// JWTs have their exp claim read without verifying the signature; the backend
// verifies. Opaque tokens produce a session without expiry.
func FromToken(token string) Session {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	s := Session{Token: token}
	if token == "" {
		return s
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return s
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time.UTC()
	}
	return s
}

// Empty reports whether there is no credential at all.
func (s Session) Empty() bool { return s.Token == "" }

// Expired reports whether the session has a known expiry that has passed.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Header returns the Authorization header value.
func (s Session) Header() string {
	if s.Empty() {
		return ""
	}
	return "Bearer " + s.Token
}

// Provider hands out the current session
type Provider interface {
	Current() (Session, bool)
}

// Holder is a thread-safe Provider updated by the login flow
type Holder struct {
	mu      sync.RWMutex
	session Session
}

func NewHolder(s Session) *Holder {
	return &Holder{session: s}
}

func (h *Holder) Set(s Session) {
	h.mu.Lock()
	h.session = s
	h.mu.Unlock()
}

func (h *Holder) Clear() {
	h.Set(Session{})
}

func (h *Holder) Current() (Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.session, !h.session.Empty()
}
