package platformaudit

import "context"

// Store persists chain entries.
//
// AppendEntry owns the chain-critical section: it reads the current tail
// hash, computes the new entry's Hash/PreviousHash via ComputeHash, and
// inserts, all under a serialization guard (mutex in memory, a transaction
// holding the chain advisory lock in Postgres). Implementations that lose a
// tail race return sentinel.ErrStaleTail so the writer can retry with a
// fresh read.
//
// Chain entries are never updated or deleted; there is deliberately no
// method for either.
type Store interface {
	// AppendEntry fills in Seq, Hash, and PreviousHash on e and persists it.
	AppendEntry(ctx context.Context, e *Entry) error
	// ListInOrder returns every entry in chain (Seq) order.
	ListInOrder(ctx context.Context) ([]Entry, error)
	// Count returns the number of chain entries.
	Count(ctx context.Context) (int, error)
}
