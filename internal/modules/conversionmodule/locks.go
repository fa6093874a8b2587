package conversionmodule

import (
	"sync"
	"time"
)

// DirectoryLock records who holds a directory and since when.
type DirectoryLock struct {
	Directory  string    `json:"directory"`
	HolderID   string    `json:"holder_id"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// LockTable is the advisory mutual-exclusion registry keyed by directory
// path. Locks only exist in process memory: a restart releases everything.
// The scanner consults IsLocked before importing; the conversion worker holds
// the lock while it rewrites files, so the two never race on a directory.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]*DirectoryLock
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[string]*DirectoryLock)}
}

// Acquire takes the lock on directory for holderID. Returns false if any
// other holder already has it. Re-acquiring a directory you already hold
// succeeds.
func (lt *LockTable) Acquire(directory, holderID string) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if existing, ok := lt.locks[directory]; ok {
		return existing.HolderID == holderID
	}
	lt.locks[directory] = &DirectoryLock{
		Directory:  directory,
		HolderID:   holderID,
		AcquiredAt: time.Now(),
	}
	return true
}

// Release drops the lock if holderID owns it. Releasing an unheld directory
// or one held by someone else is a no-op.
func (lt *LockTable) Release(directory, holderID string) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if existing, ok := lt.locks[directory]; ok && existing.HolderID == holderID {
		delete(lt.locks, directory)
	}
}

// IsLocked reports whether any holder has the directory.
func (lt *LockTable) IsLocked(directory string) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	_, ok := lt.locks[directory]
	return ok
}

// Holder returns the current lock record for a directory, or nil.
func (lt *LockTable) Holder(directory string) *DirectoryLock {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if existing, ok := lt.locks[directory]; ok {
		copied := *existing
		return &copied
	}
	return nil
}
