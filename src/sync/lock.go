package sync

import (
	"sync"
	"time"
)

// AccountLocks enforces per-account mutual exclusion for sync runs.
// Locks are leases, not mutexes: each acquisition carries a TTL longer
// than the worst-case run, so a crashed holder cannot wedge an account
// forever. Unrelated accounts never contend.
type AccountLocks struct {
	mu     sync.Mutex
	ttl    time.Duration
	leases map[int64]time.Time
}

func NewAccountLocks(ttl time.Duration) *AccountLocks {
	return &AccountLocks{
		ttl:    ttl,
		leases: make(map[int64]time.Time),
	}
}

// TryAcquire takes the lease for an account if it is free or expired.
// Returns false when another run holds a live lease.
func (l *AccountLocks) TryAcquire(accountID int64, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if expiry, held := l.leases[accountID]; held && now.Before(expiry) {
		return false
	}
	l.leases[accountID] = now.Add(l.ttl)
	return true
}

func (l *AccountLocks) Release(accountID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.leases, accountID)
}
