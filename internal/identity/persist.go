package identity

import (
	"encoding/json"
	"fmt"
	"os"
)

// PersistedKey is the on-disk shape of one key record. An admin must be
// able to bootstrap a key from the CLI before any HTTP caller can
// authenticate, which means the store has to survive across the admin-key
// and serve process invocations — salt and hash round-trip as base64 via
// encoding/json's []byte handling, never the raw secret.
type PersistedKey struct {
	KeyInfo
	Salt []byte `json:"salt"`
	Hash []byte `json:"hash"`
}

// Snapshot returns every record, including revoked ones, for persistence.
func (s *KeyStore) Snapshot() []PersistedKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PersistedKey, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, PersistedKey{KeyInfo: rec.KeyInfo, Salt: rec.salt, Hash: rec.hash})
	}
	return out
}

// restore repopulates the store from a snapshot, bypassing Create so no new
// secret is generated and no caches are touched.
func (s *KeyStore) restore(records []PersistedKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.ID] = &apiKeyRecord{KeyInfo: r.KeyInfo, salt: r.Salt, hash: r.Hash}
	}
}

// SaveFile writes every key record to path as JSON.
func (s *KeyStore) SaveFile(path string) error {
	b, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("identity: marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("identity: write %s: %w", path, err)
	}
	return nil
}

// LoadKeyStoreFile builds a KeyStore from a JSON file previously written by
// SaveFile. A missing file yields an empty, usable store rather than an
// error, since the very first admin-key invocation has nothing to load.
func LoadKeyStoreFile(path string) (*KeyStore, error) {
	s := NewKeyStore()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("identity: read %s: %w", path, err)
	}
	var records []PersistedKey
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("identity: parse %s: %w", path, err)
	}
	s.restore(records)
	return s, nil
}
