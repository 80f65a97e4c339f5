package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session errors.
var (
	// ErrNoToken is returned by New for a blank token.
	ErrNoToken = errors.New("session: no token")

	// ErrTokenExpired is returned by Token once the JWT exp has passed.
	ErrTokenExpired = errors.New("session: token expired")

	// ErrLoggedOut is returned by Token after HandleAuthError or Logout.
	ErrLoggedOut = errors.New("session: logged out")
)

// TokenSource hands out the bearer credential for backend calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Logger is the logging surface the session needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Session wraps a bearer token issued elsewhere.
//
// If the token is a JWT its exp claim is read (without verifying the
// signature; the backend does that) so an expired token is refused
// locally instead of costing a round trip. Opaque tokens never expire
// locally.
type Session struct {
	mu        sync.Mutex
	token     string
	subject   string
	expiresAt time.Time
	loggedOut bool
	onLogout  []func(error)

	clock  func() time.Time
	logger Logger
}

// Option configures a Session.
type Option func(*Session)

// WithClock overrides time.Now for expiry checks.
func WithClock(clock func() time.Time) Option {
	return func(s *Session) { s.clock = clock }
}

// WithLogger sets the session logger.
func WithLogger(l Logger) Option {
	return func(s *Session) { s.logger = l }
}

// New creates a Session for token.
func New(token string, opts ...Option) (*Session, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, ErrNoToken
	}

	s := &Session{
		token:  token,
		clock:  time.Now,
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		s.subject = claims.Subject
		if claims.ExpiresAt != nil {
			s.expiresAt = claims.ExpiresAt.Time
		}
	}

	return s, nil
}

// Token returns the bearer token, or an error if the session can no
// longer authenticate.
func (s *Session) Token(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loggedOut {
		return "", ErrLoggedOut
	}
	if !s.expiresAt.IsZero() && !s.clock().Before(s.expiresAt) {
		return "", ErrTokenExpired
	}
	return s.token, nil
}

// ExpiresAt returns the JWT expiry, if the token carried one.
func (s *Session) ExpiresAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt, !s.expiresAt.IsZero()
}

// Subject returns the JWT sub claim, or "" for opaque tokens.
func (s *Session) Subject() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subject
}

// LoggedOut reports whether the logout flow has run.
func (s *Session) LoggedOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedOut
}

// OnLogout registers fn to run once when the session ends.
func (s *Session) OnLogout(fn func(cause error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLogout = append(s.onLogout, fn)
}

// HandleAuthError runs the logout flow: later Token calls fail with
// ErrLoggedOut and the OnLogout callbacks run with err. Only the first
// call has any effect. Wire it as the synchronizer's OnAuthError hook.
func (s *Session) HandleAuthError(err error) {
	s.mu.Lock()
	if s.loggedOut {
		s.mu.Unlock()
		return
	}
	s.loggedOut = true
	callbacks := append(([]func(error))(nil), s.onLogout...)
	s.mu.Unlock()

	s.logger.Warn("backend refused credentials, session ended", "error", err)
	for _, fn := range callbacks {
		fn(err)
	}
}

// Logout ends the session deliberately.
func (s *Session) Logout() {
	s.HandleAuthError(ErrLoggedOut)
}
