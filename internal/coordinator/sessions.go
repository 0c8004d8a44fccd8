package coordinator

import (
	"context"
	"sync"

	"github.com/arnauranchal/epcalc-server/internal/util"
)

// jobRegistration is one in-flight job's cancellation handle, tagged with
// the fingerprint it is computing so a session cancel can also wake the
// cache's waiters for that fingerprint.
type jobRegistration struct {
	fingerprint string
	cancel      context.CancelFunc
}

// sessionTracker maps a client-declared session id to every job currently
// outstanding for it: one entry per in-flight compute point, grouped by
// session.
type sessionTracker struct {
	mu   sync.Mutex
	jobs map[string]map[string]jobRegistration // sessionID -> regID -> registration
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{jobs: make(map[string]map[string]jobRegistration)}
}

// register records cancel under sessionID and returns a handle to
// unregister it once the job finishes normally.
func (t *sessionTracker) register(sessionID, fingerprint string, cancel context.CancelFunc) (regID string) {
	if sessionID == "" {
		return ""
	}
	regID = util.NewReqID()

	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.jobs[sessionID]
	if !ok {
		m = make(map[string]jobRegistration)
		t.jobs[sessionID] = m
	}
	m[regID] = jobRegistration{fingerprint: fingerprint, cancel: cancel}
	return regID
}

func (t *sessionTracker) unregister(sessionID, regID string) {
	if sessionID == "" || regID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.jobs[sessionID]; ok {
		delete(m, regID)
		if len(m) == 0 {
			delete(t.jobs, sessionID)
		}
	}
}

// cancelAll cancels every job currently registered under sessionID, calling
// both the job's own cancel func (stops the pool job, best-effort) and
// fingerprintCancel (wakes the cache's single-flight waiters). It returns
// how many jobs were signalled.
func (t *sessionTracker) cancelAll(sessionID string, fingerprintCancel func(fingerprint string)) int {
	t.mu.Lock()
	m := t.jobs[sessionID]
	delete(t.jobs, sessionID)
	t.mu.Unlock()

	for _, reg := range m {
		reg.cancel()
		fingerprintCancel(reg.fingerprint)
	}
	return len(m)
}
