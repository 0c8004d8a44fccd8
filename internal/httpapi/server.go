package httpapi

import (
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/arnauranchal/epcalc-server/internal/auth"
	"github.com/arnauranchal/epcalc-server/internal/breaker"
	"github.com/arnauranchal/epcalc-server/internal/cache"
	"github.com/arnauranchal/epcalc-server/internal/coordinator"
	"github.com/arnauranchal/epcalc-server/internal/identity"
	"github.com/arnauranchal/epcalc-server/internal/pool"
	"github.com/arnauranchal/epcalc-server/internal/session"
)

// Version is the service's advertised version string for GET /health.
const Version = "1.0.0"

// Config wires every collaborator a Server's handlers need.
type Config struct {
	Coord    *coordinator.Coordinator
	Gate     *auth.Gate
	Keys     *identity.KeyStore
	Sessions *session.Store
	Cache    *cache.Cache
	Pool     *pool.Pool
	Breaker  *breaker.Breaker

	// KeysFile, if set, is persisted via Keys.SaveFile after every admin
	// key mutation (create/revoke) so the CLI's admin-key subcommand and a
	// running server observe the same on-disk state across process
	// restarts. Left empty, mutations live only in memory for the
	// lifetime of the process.
	KeysFile string

	RequestTimeout    time.Duration
	CORSAllowedOrigin string

	// MetricsHandler serves GET /metrics (typically promhttp.Handler()).
	// Left nil to omit the endpoint entirely.
	MetricsHandler http.Handler

	Logger zerolog.Logger
}

// Server holds the net/http mux and every collaborator its handlers call
// into. It is constructed once at boot and carries no package-level state.
type Server struct {
	mux *http.ServeMux

	coord    *coordinator.Coordinator
	gate     *auth.Gate
	keys     *identity.KeyStore
	sessions *session.Store
	cache    *cache.Cache
	pool     *pool.Pool
	breaker  *breaker.Breaker

	keysFile       string
	requestTimeout time.Duration
	logger         zerolog.Logger
	startedAt      time.Time

	metricsHandler http.Handler
	cors           *cors.Cors
}

func NewServer(cfg Config) *Server {
	s := &Server{
		mux:            http.NewServeMux(),
		coord:          cfg.Coord,
		gate:           cfg.Gate,
		keys:           cfg.Keys,
		sessions:       cfg.Sessions,
		cache:          cfg.Cache,
		pool:           cfg.Pool,
		breaker:        cfg.Breaker,
		keysFile:       cfg.KeysFile,
		requestTimeout: cfg.RequestTimeout,
		logger:         cfg.Logger,
		startedAt:      time.Now(),
		metricsHandler: cfg.MetricsHandler,
		cors: cors.New(cors.Options{
			AllowedOrigins:   []string{cfg.CORSAllowedOrigin},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowedHeaders:   []string{"Content-Type", "X-API-Key", "X-Session-Id"},
			AllowCredentials: true,
		}),
	}
	s.routes()
	return s
}

// Handler returns the fully wrapped http.Handler (CORS around the mux),
// ready to pass to http.Server.
func (s *Server) Handler() http.Handler {
	return s.cors.Handler(s.mux)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /", s.handleRoot)
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	if s.metricsHandler != nil {
		s.mux.Handle("GET /metrics", s.metricsHandler)
	}

	s.mux.HandleFunc("POST /api/v1/compute/standard", s.handleCompute(false))
	s.mux.HandleFunc("POST /api/v1/compute/custom", s.handleCompute(true))
	s.mux.HandleFunc("POST /api/v1/session/cancel", s.handleSessionCancel)

	s.mux.HandleFunc("POST /api/v1/auth/session", s.handleAuthSessionCreate)
	s.mux.HandleFunc("GET /api/v1/auth/session/status", s.handleAuthSessionStatus)

	s.mux.HandleFunc("GET /api/v1/admin/keys", s.handleAdminListKeys)
	s.mux.HandleFunc("POST /api/v1/admin/keys", s.handleAdminCreateKey)
	s.mux.HandleFunc("DELETE /api/v1/admin/keys/{id}", s.handleAdminRevokeKey)
}
