// Package identity is the API key half of the identity store: hashed keys
// with owner tags, an admin flag, revocation, and a short positive
// validation cache. Key hashing uses golang.org/x/crypto/argon2; raw keys
// exist only at issuance and only their argon2id hash is retained.
package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/arnauranchal/epcalc-server/internal/util"
)

var (
	ErrKeyNotFound  = errors.New("identity: key not found")
	ErrMalformedKey = errors.New("identity: malformed key")
)

// KeyInfo is everything about an API key safe to return to a caller or log
// — never the secret, never the hash.
type KeyInfo struct {
	ID        string
	Owner     string
	IsAdmin   bool
	CreatedAt time.Time
	RevokedAt *time.Time
}

type apiKeyRecord struct {
	KeyInfo
	salt []byte
	hash []byte
}

const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = 32
)

// dummySalt stands in for a real record's salt when no such key id exists,
// so the no-such-key path pays the same argon2id cost as a wrong-secret one
// instead of returning early and leaking key-id existence through latency.
var dummySalt = make([]byte, 16)

type positiveCacheEntry struct {
	info     KeyInfo
	cachedAt time.Time
}

// KeyStore holds API key records. The zero value is not usable; use NewKeyStore.
type KeyStore struct {
	mu      sync.RWMutex
	records map[string]*apiKeyRecord // by id

	cacheMu  sync.Mutex
	cache    map[string]positiveCacheEntry // by sha256(rawKey) hex
	cacheTTL time.Duration
}

func NewKeyStore() *KeyStore {
	return &KeyStore{
		records:  make(map[string]*apiKeyRecord),
		cache:    make(map[string]positiveCacheEntry),
		cacheTTL: 30 * time.Second,
	}
}

// Create mints a new key for owner. The raw key is returned only here — it
// is not retrievable again.
func (s *KeyStore) Create(owner string, isAdmin bool) (id, rawKey string, err error) {
	id = util.NewToken(8)
	secret := util.NewToken(32)

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", "", fmt.Errorf("identity: generate salt: %w", err)
	}
	hash := deriveHash(secret, salt)

	s.mu.Lock()
	s.records[id] = &apiKeyRecord{
		KeyInfo: KeyInfo{ID: id, Owner: owner, IsAdmin: isAdmin, CreatedAt: time.Now()},
		salt:    salt,
		hash:    hash,
	}
	s.mu.Unlock()

	return id, id + "." + secret, nil
}

// Validate checks a raw key presented by a caller, consulting the positive
// cache before paying argon2's cost again. Every path that reaches
// the hash step below it — malformed key, unknown id, revoked key, or wrong
// secret — pays the identical argon2id cost before returning false, so
// validation latency never reveals whether a given key id exists.
func (s *KeyStore) Validate(rawKey string) (*KeyInfo, bool) {
	cacheKey := hashRawKey(rawKey)

	s.cacheMu.Lock()
	if entry, ok := s.cache[cacheKey]; ok && time.Since(entry.cachedAt) < s.cacheTTL {
		s.cacheMu.Unlock()
		info := entry.info
		return &info, true
	}
	s.cacheMu.Unlock()

	id, secret, err := splitRawKey(rawKey)
	if err != nil {
		deriveHash(rawKey, dummySalt)
		return nil, false
	}

	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()

	salt := dummySalt
	valid := ok && rec.RevokedAt == nil
	if valid {
		salt = rec.salt
	}
	candidate := deriveHash(secret, salt)

	if !valid || subtle.ConstantTimeCompare(candidate, rec.hash) != 1 {
		return nil, false
	}

	info := rec.KeyInfo
	s.cacheMu.Lock()
	s.cache[cacheKey] = positiveCacheEntry{info: info, cachedAt: time.Now()}
	s.cacheMu.Unlock()

	return &info, true
}

// Revoke marks a key unusable and invalidates any positive-cache entries
// referencing it; a revoked key never validates again.
func (s *KeyStore) Revoke(id string) error {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return ErrKeyNotFound
	}
	now := time.Now()
	rec.RevokedAt = &now
	s.mu.Unlock()

	s.cacheMu.Lock()
	for k, entry := range s.cache {
		if entry.info.ID == id {
			delete(s.cache, k)
		}
	}
	s.cacheMu.Unlock()
	return nil
}

// List returns every key's public info.
func (s *KeyStore) List() []KeyInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]KeyInfo, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.KeyInfo)
	}
	return out
}

func deriveHash(secret string, salt []byte) []byte {
	return argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

func hashRawKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

func splitRawKey(rawKey string) (id, secret string, err error) {
	parts := strings.SplitN(rawKey, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrMalformedKey
	}
	return parts[0], parts[1], nil
}
