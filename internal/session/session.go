// Package session is the browser half of the identity store: sessions
// bootstrapped via a one-shot CSRF handshake. Like identity.KeyStore it is a
// mutex-guarded map; unlike it, it also runs a ticker-driven GC loop
// sweeping expired sessions and expired CSRF challenges.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/arnauranchal/epcalc-server/internal/util"
)

var (
	// ErrCSRFMismatch is returned when the presented CSRF token was never
	// issued, was already consumed, or was issued for a different origin.
	ErrCSRFMismatch = errors.New("session: csrf token mismatch")
)

// Session is everything about an authenticated browser session.
type Session struct {
	Token          string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastActivityAt time.Time
	OriginCSRF     string
}

// expired reports whether now is at or past the earlier of the absolute TTL
// from CreatedAt and the idle TTL from LastActivityAt.
func (s Session) expired(now time.Time, idleTTL time.Duration) bool {
	if !now.Before(s.ExpiresAt) {
		return true
	}
	return !now.Before(s.LastActivityAt.Add(idleTTL))
}

type csrfChallenge struct {
	origin    string
	issuedAt  time.Time
	expiresAt time.Time
}

// Store holds live sessions and outstanding CSRF challenges. The zero value
// is not usable; use NewStore.
type Store struct {
	mu sync.Mutex

	sessions map[string]*Session
	csrf     map[string]csrfChallenge

	absoluteTTL time.Duration
	idleTTL     time.Duration
	csrfTTL     time.Duration

	now func() time.Time

	stopOnce sync.Once
	stopC    chan struct{}
}

// Config configures session/CSRF lifetimes. Zero values fall back to
// sensible defaults.
type Config struct {
	AbsoluteTTL time.Duration
	IdleTTL     time.Duration
	CSRFTTL     time.Duration
}

// NewStore creates a Store and starts its background GC loop. Call Close to
// stop it.
func NewStore(cfg Config) *Store {
	absoluteTTL := cfg.AbsoluteTTL
	if absoluteTTL <= 0 {
		absoluteTTL = 24 * time.Hour
	}
	idleTTL := cfg.IdleTTL
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	csrfTTL := cfg.CSRFTTL
	if csrfTTL <= 0 {
		csrfTTL = 10 * time.Minute
	}

	s := &Store{
		sessions:    make(map[string]*Session),
		csrf:        make(map[string]csrfChallenge),
		absoluteTTL: absoluteTTL,
		idleTTL:     idleTTL,
		csrfTTL:     csrfTTL,
		now:         time.Now,
		stopC:       make(chan struct{}),
	}
	go s.gcLoop()
	return s
}

// Close stops the background GC loop.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stopC) })
}

func (s *Store) gcLoop() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Expire()
		case <-s.stopC:
			return
		}
	}
}

// IssueCSRF mints a one-shot CSRF token for origin, to be embedded in the
// root HTML response.
func (s *Store) IssueCSRF(origin string) string {
	token := util.NewToken(16)
	now := s.now()

	s.mu.Lock()
	s.csrf[token] = csrfChallenge{origin: origin, issuedAt: now, expiresAt: now.Add(s.csrfTTL)}
	s.mu.Unlock()

	return token
}

// Create mints a new session token if csrfToken matches a value previously
// issued for origin and not yet consumed. The CSRF token is consumed
// whether or not creation itself succeeds — it is single-use either way.
func (s *Store) Create(csrfToken, origin string) (*Session, error) {
	now := s.now()

	s.mu.Lock()
	challenge, ok := s.csrf[csrfToken]
	if ok {
		delete(s.csrf, csrfToken)
	}
	s.mu.Unlock()

	if !ok || now.After(challenge.expiresAt) || challenge.origin != origin {
		return nil, ErrCSRFMismatch
	}

	sess := &Session{
		Token:          util.NewToken(24),
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.absoluteTTL),
		LastActivityAt: now,
		OriginCSRF:     origin,
	}

	s.mu.Lock()
	s.sessions[sess.Token] = sess
	s.mu.Unlock()

	cp := *sess
	return &cp, nil
}

// Lookup returns the session for token if it exists and has not expired,
// sliding its LastActivityAt forward.
func (s *Store) Lookup(token string) (*Session, bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, false
	}
	if sess.expired(now, s.idleTTL) {
		delete(s.sessions, token)
		return nil, false
	}
	sess.LastActivityAt = now

	cp := *sess
	return &cp, true
}

// Touch slides a session's idle timer without returning its contents.
func (s *Store) Touch(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[token]; ok {
		sess.LastActivityAt = s.now()
	}
}

// Expire sweeps every session and CSRF challenge past its TTL, driven by
// gcLoop or callable directly from tests.
func (s *Store) Expire() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for token, sess := range s.sessions {
		if sess.expired(now, s.idleTTL) {
			delete(s.sessions, token)
		}
	}
	for token, c := range s.csrf {
		if now.After(c.expiresAt) {
			delete(s.csrf, token)
		}
	}
}
