package platformaudit

import (
	"context"
	"sync"
	"time"
)

// InMemory is a mutex-serialized chain store for unit tests and local
// development. The mutex is the critical section: tail read, hash
// computation, and append happen under one lock so concurrent writers
// cannot fork the chain.
type InMemory struct {
	mu      sync.Mutex
	entries []Entry
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) AppendEntry(ctx context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := GenesisHash
	if n := len(s.entries); n > 0 {
		previous = s.entries[n-1].Hash
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = CanonicalTime(e.CreatedAt)
	e.PreviousHash = previous

	hash, err := ComputeHash(previous, *e)
	if err != nil {
		return err
	}
	e.Hash = hash
	e.Seq = int64(len(s.entries) + 1)

	s.entries = append(s.entries, *e)
	return nil
}

func (s *InMemory) ListInOrder(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *InMemory) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

// Corrupt overwrites the stored details of the entry at seq, bypassing the
// append-only contract. Test hook: it simulates the direct UPDATE a database
// attacker would run, which the verifier must detect.
func (s *InMemory) Corrupt(seq int64, details []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].Seq == seq {
			s.entries[i].Details = details
			return true
		}
	}
	return false
}
