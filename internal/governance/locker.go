package governance

import (
	"context"
	"sync"

	id "pagemd/pkg/domain"
	"pagemd/pkg/platform/sentinel"
)

// SyncLocker guards a tenant against concurrent role syncs at the service
// layer. TryLock never waits: it returns sentinel.ErrLockHeld when the
// tenant is taken. The postgres role store holds an advisory lock inside
// the reconciliation transaction as well, so a stale service-layer lock can
// never corrupt data, only produce a spurious 409.
type SyncLocker interface {
	TryLock(ctx context.Context, clinicID id.ClinicID) (func(), error)
}

// MemoryLocker is the single-process locker.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[id.ClinicID]bool
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[id.ClinicID]bool)}
}

func (l *MemoryLocker) TryLock(ctx context.Context, clinicID id.ClinicID) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[clinicID] {
		return nil, sentinel.ErrLockHeld
	}
	l.held[clinicID] = true
	release := func() {
		l.mu.Lock()
		delete(l.held, clinicID)
		l.mu.Unlock()
	}
	return release, nil
}
