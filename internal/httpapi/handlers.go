package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/arnauranchal/epcalc-server/internal/auth"
	"github.com/arnauranchal/epcalc-server/internal/coordinator"
	"github.com/arnauranchal/epcalc-server/internal/identity"
	"github.com/arnauranchal/epcalc-server/internal/resp"
)

func writeResult(w http.ResponseWriter, r resp.Result) {
	for k, v := range r.Headers {
		w.Header().Set(k, v)
	}
	if r.Err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(r.Status)
		_ = json.NewEncoder(w).Encode(r.Err)
		return
	}
	if r.JSON {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(r.Status)
	_, _ = w.Write([]byte(r.Body))
}

// coordinatorErrorResult translates a coordinator.Error into its HTTP
// shape. Any other error is treated as Internal.
func coordinatorErrorResult(err error) resp.Result {
	var ce *coordinator.Error
	if errors.As(err, &ce) {
		switch ce.Kind {
		case coordinator.ErrInvalidParameter:
			return resp.BadReq(string(ce.Kind), ce.Message)
		case coordinator.ErrOverCapacity:
			return resp.OverCapacity(string(ce.Kind), ce.Message, ce.RetryAfterSeconds, ce.CircuitState)
		case coordinator.ErrCancelled:
			return resp.Cancelled(string(ce.Kind), ce.Message)
		default:
			return resp.Internal(string(coordinator.ErrInternal), "internal error")
		}
	}
	return resp.Internal(string(coordinator.ErrInternal), "internal error")
}

// sessionIDFor derives the session id cancellation is scoped to:
// an explicit client header wins, then a browser session token, then the
// presenting API key (so a client can cancel its own sweep by key without
// ever minting a session), falling back to the empty id for unidentifiable
// callers. Jobs under the empty id are never registered for cancellation,
// which is correct: there is nothing stable to target.
func sessionIDFor(r *http.Request, id auth.Identity) string {
	if h := r.Header.Get("X-Session-Id"); h != "" {
		return h
	}
	switch id.Kind {
	case auth.KindSession:
		return "session:" + id.SessionToken
	case auth.KindAPIKey:
		return "key:" + id.KeyID
	default:
		return ""
	}
}

func originOf(r *http.Request) string {
	if o := r.Header.Get("Origin"); o != "" {
		return o
	}
	if ref := r.Referer(); ref != "" {
		if idx := strings.Index(ref, "://"); idx >= 0 {
			if end := strings.Index(ref[idx+3:], "/"); end >= 0 {
				return ref[:idx+3+end]
			}
			return ref
		}
	}
	return r.Host
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	token := s.sessions.IssueCSRF(originOf(r))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, rootHTML, token)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	signal := s.coord.LoadSignal()
	body := map[string]any{
		"status":   "ok",
		"version":  Version,
		"uptime_s": time.Since(s.startedAt).Seconds(),
		"breaker": map[string]any{
			"state": s.breaker.State(),
			"metrics": map[string]any{
				"combined_load":      signal.Combined(),
				"worker_utilisation": signal.WorkerUtilisation,
				"queue_depth_ratio":  signal.QueueDepthRatio,
				"memory_ratio":       signal.MemoryRatio,
			},
		},
		"services": map[string]any{
			"cache_entries": s.cache.Len(),
			"pool":          s.pool.Metrics(),
		},
	}
	b, _ := json.Marshal(body)
	writeResult(w, resp.JSONOK(string(b)))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"pid":           os.Getpid(),
		"uptime_s":      time.Since(s.startedAt).Seconds(),
		"breaker_state": s.breaker.State(),
		"combined_load": s.coord.LoadSignal().Combined(),
		"pool":          s.pool.Metrics(),
	}
	b, _ := json.Marshal(body)
	writeResult(w, resp.JSONOK(string(b)))
}

func (s *Server) handleCompute(custom bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.gate.Authenticate(r)
		if !ok {
			writeResult(w, resp.Unauthorized("Unauthorised", "missing or invalid credentials"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			writeResult(w, resp.BadReq("InvalidParameter", "could not read request body"))
			return
		}

		spec, err := parseComputeRequest(body, custom)
		if err != nil {
			writeResult(w, resp.BadReq("InvalidParameter", err.Error()))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
		defer cancel()

		sessionID := sessionIDFor(r, id)
		result, err := s.coord.Compute(ctx, spec, id, sessionID, r.URL.Path)
		if err != nil {
			writeResult(w, coordinatorErrorResult(err))
			return
		}

		b, err := json.Marshal(result)
		if err != nil {
			writeResult(w, resp.Internal("Internal", "failed to encode result"))
			return
		}
		writeResult(w, resp.JSONOK(string(b)))
	}
}

func (s *Server) handleSessionCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := s.gate.Authenticate(r)
	if !ok {
		writeResult(w, resp.Unauthorized("Unauthorised", "missing or invalid credentials"))
		return
	}
	sessionID := sessionIDFor(r, id)
	n := s.coord.CancelSession(sessionID)
	b, _ := json.Marshal(map[string]any{"cancelled": true, "jobs_signalled": n})
	writeResult(w, resp.JSONOK(string(b)))
}

func (s *Server) handleAuthSessionCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CSRFToken string `json:"csrfToken"`
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil || json.Unmarshal(raw, &body) != nil || body.CSRFToken == "" {
		writeResult(w, resp.BadReq("InvalidParameter", "missing csrfToken"))
		return
	}

	sess, err := s.sessions.Create(body.CSRFToken, originOf(r))
	if err != nil {
		writeResult(w, resp.Unauthorized("Unauthorised", "invalid or expired csrf token"))
		return
	}

	http.SetCookie(w, auth.SessionCookie(sess.Token, sess.ExpiresAt))
	b, _ := json.Marshal(map[string]any{"valid": true, "expiresAt": sess.ExpiresAt})
	writeResult(w, resp.JSONOK(string(b)))
}

func (s *Server) handleAuthSessionStatus(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie("epc_session")
	if err != nil {
		writeResult(w, resp.JSONOK(`{"valid":false}`))
		return
	}
	sess, ok := s.sessions.Lookup(cookie.Value)
	if !ok {
		writeResult(w, resp.JSONOK(`{"valid":false}`))
		return
	}
	b, _ := json.Marshal(map[string]any{"valid": true, "expiresAt": sess.ExpiresAt})
	writeResult(w, resp.JSONOK(string(b)))
}

// persistKeys flushes the key store to disk after an admin mutation so the
// admin-key CLI and a running server observe the same state across process
// restarts. Best-effort: a write failure is logged, not surfaced to
// the caller, since the mutation already succeeded in memory.
func (s *Server) persistKeys() {
	if s.keysFile == "" {
		return
	}
	if err := s.keys.SaveFile(s.keysFile); err != nil {
		s.logger.Warn().Err(err).Msg("httpapi: failed to persist key store")
	}
}

func (s *Server) requireAdmin(r *http.Request) (auth.Identity, bool) {
	id, ok := s.gate.Authenticate(r)
	if !ok || !id.IsAdmin {
		return auth.Identity{}, false
	}
	return id, true
}

func (s *Server) handleAdminListKeys(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(r); !ok {
		writeResult(w, resp.Forbidden("Unauthorised", "admin credentials required"))
		return
	}
	b, _ := json.Marshal(s.keys.List())
	writeResult(w, resp.JSONOK(string(b)))
}

func (s *Server) handleAdminCreateKey(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(r); !ok {
		writeResult(w, resp.Forbidden("Unauthorised", "admin credentials required"))
		return
	}

	var body struct {
		Owner   string `json:"owner"`
		IsAdmin bool   `json:"isAdmin"`
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil || json.Unmarshal(raw, &body) != nil || body.Owner == "" {
		writeResult(w, resp.BadReq("InvalidParameter", "missing owner"))
		return
	}

	id, rawKey, err := s.keys.Create(body.Owner, body.IsAdmin)
	if err != nil {
		writeResult(w, resp.Internal("Internal", "failed to create key"))
		return
	}
	s.persistKeys()

	// The raw key is returned exactly once, here.
	b, _ := json.Marshal(map[string]any{"id": id, "rawKey": rawKey, "owner": body.Owner, "isAdmin": body.IsAdmin})
	writeResult(w, resp.JSONOK(string(b)))
}

func (s *Server) handleAdminRevokeKey(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(r); !ok {
		writeResult(w, resp.Forbidden("Unauthorised", "admin credentials required"))
		return
	}

	id := r.PathValue("id")
	if err := s.keys.Revoke(id); err != nil {
		if errors.Is(err, identity.ErrKeyNotFound) {
			writeResult(w, resp.NotFound("not_found", "no such key"))
			return
		}
		writeResult(w, resp.Internal("Internal", "failed to revoke key"))
		return
	}
	s.persistKeys()
	writeResult(w, resp.JSONOK(`{"revoked":true}`))
}

const rootHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>epcalc-server</title>
<meta name="csrf-token" content="%s">
</head>
<body>
<h1>epcalc-server</h1>
<p>See /api/v1/health for liveness and /status for operational detail.</p>
</body>
</html>
`
