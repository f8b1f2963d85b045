package dark

import (
	"sync"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// StoreEntry is what the Store keeps per key: the flag itself plus a
// bookkeeping timestamp of when it was last written (spec.md §3,
// "Store entry").
type StoreEntry struct {
	Flag       Flag
	InsertedAt time.Time
}

// Store is the versioned key -> flag map abstraction of spec.md §4.4.
// Implementations must be safe for concurrent readers and writers.
//
// Get/GetAll hide tombstones (flags with Deleted == true). Upsert and
// Delete are version-gated: a write that is not strictly newer than the
// existing entry is a no-op that returns ErrNewerVersionFound. Init
// atomically replaces the store's entire contents, for streaming "put"
// events and for polling snapshots.
type Store interface {
	Get(key string) (Flag, bool)
	GetAll() map[string]Flag
	Upsert(key string, flag Flag) error
	Delete(key string, version int) error
	Init(flags map[string]Flag) error
	Initialized() bool
}

// MemoryStore is the in-memory Store variant: an RWMutex-guarded map, the
// way the teacher's inMemoryDataStore (internal/datastore) and its
// predecessor InMemoryFeatureStore (feature_store.go) both are. GetAll
// returns a cloned snapshot so callers never observe mutation of the
// store's internal map.
type MemoryStore struct {
	mu          sync.RWMutex
	entries     map[string]StoreEntry
	initialized bool
	loggers     ldlog.Loggers
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(loggers ldlog.Loggers) *MemoryStore {
	return &MemoryStore{entries: make(map[string]StoreEntry), loggers: loggers}
}

// Get returns the flag for key, or (_, false) if it does not exist or is
// tombstoned.
func (s *MemoryStore) Get(key string) (Flag, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || entry.Flag.Deleted {
		if !ok && s.loggers.IsDebugEnabled() {
			s.loggers.Debugf("Key %s not found in store", key)
		}
		return Flag{}, false
	}
	return entry.Flag, true
}

// GetFlag implements DataProvider for direct use as an Evaluator's data
// source.
func (s *MemoryStore) GetFlag(key string) (Flag, bool) { return s.Get(key) }

// GetAll returns a cloned snapshot of every non-tombstoned flag.
func (s *MemoryStore) GetAll() map[string]Flag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Flag, len(s.entries))
	for k, e := range s.entries {
		if !e.Flag.Deleted {
			out[k] = e.Flag
		}
	}
	return out
}

// Upsert inserts or replaces flag under key, unless an equal-or-newer
// version is already present.
func (s *MemoryStore) Upsert(key string, flag Flag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[key]; ok && existing.Flag.Version >= flag.Version {
		if s.loggers.IsDebugEnabled() {
			s.loggers.Debugf("Attempted to upsert %s at version %d, but store has version %d", key, flag.Version, existing.Flag.Version)
		}
		return ErrNewerVersionFound
	}
	s.entries[key] = StoreEntry{Flag: flag, InsertedAt: time.Now()}
	return nil
}

// Delete tombstones key at the given version, unless an equal-or-newer
// version is already present.
func (s *MemoryStore) Delete(key string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[key]; ok && existing.Flag.Version >= version {
		return ErrNewerVersionFound
	}
	s.entries[key] = StoreEntry{
		Flag:       Flag{Key: key, Version: version, Deleted: true},
		InsertedAt: time.Now(),
	}
	return nil
}

// Init atomically replaces the store's contents with flags.
func (s *MemoryStore) Init(flags map[string]Flag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make(map[string]StoreEntry, len(flags))
	now := time.Now()
	for k, f := range flags {
		entries[k] = StoreEntry{Flag: f, InsertedAt: now}
	}
	s.entries = entries
	s.initialized = true
	return nil
}

// Initialized reports whether Init has been called at least once.
func (s *MemoryStore) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}
