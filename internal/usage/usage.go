// Package usage is the per-identity usage meter: an append-only log of
// billed compute events, charged against whichever identity a request
// presented. Persistence is behind the Storage interface; the in-memory
// implementation bounded by the 90-day retention window ships as the
// default, in the same mutex-guarded idiom as identity.KeyStore and
// session.Store.
package usage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event is one billed compute event.
type Event struct {
	KeyID        string
	Endpoint     string
	Cost         int64
	ParamsSummary string
	At           time.Time
}

// Storage is the persistence interface usage events are written through.
// Implementations must be safe for concurrent use.
type Storage interface {
	Append(ctx context.Context, ev Event) error
	ForKey(ctx context.Context, keyID string, since time.Time) ([]Event, error)
	Prune(ctx context.Context, olderThan time.Time) (int, error)
}

// MemoryStorage is an in-memory Storage, sufficient for a single-process
// deployment.
type MemoryStorage struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Append(_ context.Context, ev Event) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) ForKey(_ context.Context, keyID string, since time.Time) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, 0)
	for _, ev := range m.events {
		if ev.KeyID == keyID && !ev.At.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *MemoryStorage) Prune(_ context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[:0]
	pruned := 0
	for _, ev := range m.events {
		if ev.At.Before(olderThan) {
			pruned++
			continue
		}
		kept = append(kept, ev)
	}
	m.events = kept
	return pruned, nil
}

// DefaultRetention bounds how long events are kept.
const DefaultRetention = 90 * 24 * time.Hour

// Meter records usage events. Writes are best-effort: a storage failure
// logs a warning but never fails the HTTP response.
type Meter struct {
	storage   Storage
	retention time.Duration
	logger    *zerolog.Logger

	stopOnce sync.Once
	stopC    chan struct{}

	now func() time.Time
}

// Config configures a Meter. Logger and Retention are optional.
type Config struct {
	Storage   Storage
	Retention time.Duration
	Logger    *zerolog.Logger
}

func NewMeter(cfg Config) *Meter {
	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	m := &Meter{
		storage:   cfg.Storage,
		retention: retention,
		logger:    cfg.Logger,
		stopC:     make(chan struct{}),
		now:       time.Now,
	}
	go m.pruneLoop()
	return m
}

func (m *Meter) Close() {
	m.stopOnce.Do(func() { close(m.stopC) })
}

func (m *Meter) pruneLoop() {
	t := time.NewTicker(24 * time.Hour)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if _, err := m.storage.Prune(context.Background(), m.now().Add(-m.retention)); err != nil && m.logger != nil {
				m.logger.Warn().Err(err).Msg("usage: retention prune failed")
			}
		case <-m.stopC:
			return
		}
	}
}

// Charge records one usage event. keyID is empty for session-authenticated
// browser callers, who are not metered against any key.
func (m *Meter) Charge(ctx context.Context, keyID, endpoint string, cost int64, paramsSummary string) {
	if keyID == "" {
		return
	}
	ev := Event{KeyID: keyID, Endpoint: endpoint, Cost: cost, ParamsSummary: paramsSummary, At: m.now()}
	if err := m.storage.Append(ctx, ev); err != nil && m.logger != nil {
		m.logger.Warn().Err(err).Str("key_id", keyID).Msg("usage: failed to record usage event")
	}
}
