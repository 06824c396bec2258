package idempotency

import (
	"context"
	"slices"
	"sync"
	"time"
)

const defaultMemoryCapacity = 10_000

type memoryEntry struct {
	fingerprint string
	phase       Phase
	replay      Replay
	updatedAt   time.Time
	expiresAt   time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// MemoryStore keeps keys in process memory, bounded by a capacity. It is the store for a
// single register process; keys do not survive a restart.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]*memoryEntry
	capacity int
}

// MemoryOption customises a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithCapacity bounds the number of keys. A full store first drops expired keys, then the
// least recently completed ones. In-flight keys are never evicted.
func WithCapacity(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries:  make(map[string]*memoryEntry),
		capacity: defaultMemoryCapacity,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Len reports the number of keys held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) Claim(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && !e.expired(now) {
		if e.fingerprint != fingerprint {
			return Claim{}, ErrKeyReused
		}
		if e.phase == PhaseDone {
			return Claim{Phase: PhaseDone, Replay: e.replay.clone()}, nil
		}
		return Claim{Phase: PhaseInFlight}, nil
	}

	delete(s.entries, key)
	if len(s.entries) >= s.capacity && !s.makeRoomLocked(now) {
		return Claim{}, ErrStoreFull
	}
	s.entries[key] = &memoryEntry{
		fingerprint: fingerprint,
		phase:       PhaseInFlight,
		updatedAt:   now,
		expiresAt:   now.Add(ttl),
	}
	return Claim{Phase: PhaseNew}, nil
}

func (s *MemoryStore) Complete(_ context.Context, key, fingerprint string, replay Replay, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &memoryEntry{fingerprint: fingerprint}
		s.entries[key] = e
	} else if e.fingerprint != fingerprint {
		return ErrKeyReused
	}
	e.phase = PhaseDone
	e.replay = Replay{Status: replay.Status, Header: storedHeader(replay.Header), Body: replay.clone().Body}
	e.updatedAt = now
	e.expiresAt = now.Add(ttl)
	return nil
}

// Abandon forgets key so the next request with it starts afresh.
func (s *MemoryStore) Abandon(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// CleanupExpired removes up to limit expired keys; limit <= 0 means no bound.
func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if limit > 0 && removed == limit {
			break
		}
		if e.expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// makeRoomLocked frees at least one slot, reporting false when only in-flight keys remain.
func (s *MemoryStore) makeRoomLocked(now time.Time) bool {
	var done []string
	for key, e := range s.entries {
		switch {
		case e.expired(now):
			delete(s.entries, key)
		case e.phase == PhaseDone:
			done = append(done, key)
		}
	}
	if len(s.entries) < s.capacity {
		return true
	}
	if len(done) == 0 {
		return false
	}

	slices.SortFunc(done, func(a, b string) int {
		return s.entries[a].updatedAt.Compare(s.entries[b].updatedAt)
	})
	for _, key := range done {
		if len(s.entries) < s.capacity {
			break
		}
		delete(s.entries, key)
	}
	return true
}
