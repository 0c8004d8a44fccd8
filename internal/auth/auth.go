// Package auth is the authentication gate: it classifies every inbound
// request as public, admin, or identified and attaches an Identity.
// It is the one place credentials (an X-API-Key header, an
// epc_session cookie, or an admin Basic-Auth pair) are examined; everything
// downstream only ever sees the resulting Identity value.
package auth

import (
	"crypto/subtle"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/arnauranchal/epcalc-server/internal/identity"
	"github.com/arnauranchal/epcalc-server/internal/session"
)

// Kind tags which modality produced an Identity.
type Kind string

const (
	KindAnonymous  Kind = "anonymous"
	KindAPIKey     Kind = "api_key"
	KindSession    Kind = "session"
	KindAdminBasic Kind = "admin_basic"
)

// Identity is what the gate attaches to a request once credentials have
// been verified. It never carries the raw secret that produced it.
type Identity struct {
	Kind         Kind
	KeyID        string // non-empty only for KindAPIKey
	Owner        string
	IsAdmin      bool
	SessionToken string // non-empty only for KindSession
}

// Anonymous is the identity attached to public-allowlisted requests.
var Anonymous = Identity{Kind: KindAnonymous}

const sessionCookieName = "epc_session"

// Gate is the request classifier. The zero value is not usable; use New.
type Gate struct {
	keys     *identity.KeyStore
	sessions *session.Store

	adminBasicUser string
	adminBasicPass string

	publicPaths map[string]bool

	// delay is overridable by tests; production code leaves it as
	// randomDelay, which sleeps 50-200ms on every auth failure.
	delay func()
}

// Config wires the gate's collaborators and the admin Basic-Auth pair
// configured out-of-band.
type Config struct {
	Keys           *identity.KeyStore
	Sessions       *session.Store
	AdminBasicUser string
	AdminBasicPass string
}

// New builds a Gate with the public allow-list: health, status, metrics,
// root, and the auth handshake endpoint.
func New(cfg Config) *Gate {
	return &Gate{
		keys:           cfg.Keys,
		sessions:       cfg.Sessions,
		adminBasicUser: cfg.AdminBasicUser,
		adminBasicPass: cfg.AdminBasicPass,
		publicPaths: map[string]bool{
			"/":                    true,
			"/api/v1/health":       true,
			"/health":              true,
			"/status":              true,
			"/metrics":             true,
			"/api/v1/auth/session": true,
			"/favicon.ico":         true,
		},
		delay: randomDelay,
	}
}

// IsPublic reports whether path is on the unauthenticated allow-list.
func (g *Gate) IsPublic(path string) bool {
	return g.publicPaths[path]
}

// Authenticate classifies r — public allow-list first, then the admin
// prefix, then the identified modalities — returning the resolved
// Identity or ok=false if no valid credential was presented. It does not
// itself write the response; callers translate a failed result into a 401.
func (g *Gate) Authenticate(r *http.Request) (Identity, bool) {
	if g.IsPublic(r.URL.Path) {
		return Anonymous, true
	}

	if strings.HasPrefix(r.URL.Path, "/api/v1/admin") || strings.HasPrefix(r.URL.Path, "/admin") {
		return g.authenticateAdmin(r)
	}

	return g.authenticateIdentified(r)
}

// authenticateAdmin accepts a valid Basic-Auth pair OR a valid API key
// marked is_admin.
func (g *Gate) authenticateAdmin(r *http.Request) (Identity, bool) {
	if user, pass, ok := r.BasicAuth(); ok {
		if g.validAdminBasic(user, pass) {
			return Identity{Kind: KindAdminBasic, Owner: user, IsAdmin: true}, true
		}
	}

	if raw := apiKeyFromHeader(r); raw != "" {
		if info, ok := g.keys.Validate(raw); ok && info.IsAdmin {
			return Identity{Kind: KindAPIKey, KeyID: info.ID, Owner: info.Owner, IsAdmin: true}, true
		}
	}

	g.delay()
	return Identity{}, false
}

// authenticateIdentified accepts an API key or a session cookie; the key
// wins when both are presented.
func (g *Gate) authenticateIdentified(r *http.Request) (Identity, bool) {
	if raw := apiKeyFromHeader(r); raw != "" {
		if info, ok := g.keys.Validate(raw); ok {
			return Identity{Kind: KindAPIKey, KeyID: info.ID, Owner: info.Owner, IsAdmin: info.IsAdmin}, true
		}
		g.delay()
		return Identity{}, false
	}

	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if sess, ok := g.sessions.Lookup(cookie.Value); ok {
			return Identity{Kind: KindSession, SessionToken: sess.Token}, true
		}
	}

	g.delay()
	return Identity{}, false
}

func (g *Gate) validAdminBasic(user, pass string) bool {
	if g.adminBasicUser == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(g.adminBasicUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(g.adminBasicPass)) == 1
	return userOK && passOK
}

func apiKeyFromHeader(r *http.Request) string {
	return r.Header.Get("X-API-Key")
}

// SessionCookie builds the Set-Cookie header value for a freshly created
// session: HttpOnly, SameSite=Lax, Path=/.
func SessionCookie(token string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
	}
}

// randomDelay blunts timing side-channels on auth failure with a uniform
// 50-200ms delay. math/rand is adequate here: the delay's unpredictability
// only needs to defeat coarse timing measurement, not resist a
// cryptographic adversary.
func randomDelay() {
	const minMs, maxMs = 50, 200
	d := minMs + rand.Intn(maxMs-minMs+1)
	time.Sleep(time.Duration(d) * time.Millisecond)
}
