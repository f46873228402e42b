package server

import (
	"sync"
	"time"

	"github.com/aristath/folio/internal/domain"
)

// Snapshot is the last portfolio submitted for drift or rebalancing
// analysis, kept so the background drift monitor has something to watch
// between requests.
type Snapshot struct {
	Holdings  []domain.Holding
	Target    domain.AllocationMap
	UpdatedAt time.Time
}

// SnapshotKeeper stores the latest snapshot behind a mutex.
type SnapshotKeeper struct {
	mu       sync.RWMutex
	snapshot *Snapshot
}

func NewSnapshotKeeper() *SnapshotKeeper {
	return &SnapshotKeeper{}
}

// Update replaces the stored snapshot.
func (k *SnapshotKeeper) Update(holdings []domain.Holding, target domain.AllocationMap) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.snapshot = &Snapshot{
		Holdings:  holdings,
		Target:    target,
		UpdatedAt: time.Now(),
	}
}

// Latest returns the stored snapshot, or nil when nothing has been
// submitted yet.
func (k *SnapshotKeeper) Latest() *Snapshot {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.snapshot
}
