package metrics

import (
	"sync"
	"time"
)

// TxTracker maps transaction hashes to their submission times with bounded
// memory. Entries for completed transactions are deleted on lookup; a ring
// buffer evicts the oldest entries if abandoned hashes ever pile up.
type TxTracker struct {
	mu sync.RWMutex

	times map[string]time.Time

	// insertOrder tracks insertion order for eviction.
	insertOrder []string
	head        int

	maxSize    int
	evictBatch int
}

const (
	// DefaultMaxTrackedTxs bounds the tracker. In normal operation the live
	// entry count stays near the in-flight cap; the bound only guards
	// against leaks.
	DefaultMaxTrackedTxs = 100000

	// DefaultEvictBatch is how many entries to evict when the bound is hit.
	DefaultEvictBatch = 10000
)

// NewTxTracker creates a tracker with default bounds.
func NewTxTracker() *TxTracker {
	return NewTxTrackerWithSize(DefaultMaxTrackedTxs, DefaultEvictBatch)
}

// NewTxTrackerWithSize creates a tracker with custom bounds.
func NewTxTrackerWithSize(maxSize, evictBatch int) *TxTracker {
	return &TxTracker{
		times:       make(map[string]time.Time, maxSize),
		insertOrder: make([]string, maxSize),
		maxSize:     maxSize,
		evictBatch:  evictBatch,
	}
}

// Set records when a transaction was submitted. At capacity, the oldest
// entries are evicted first.
func (t *TxTracker) Set(hash string, sentTime time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.times) >= t.maxSize {
		t.evictOldest()
	}

	t.times[hash] = sentTime

	// Reuse of a ring slot drops whichever entry previously occupied it.
	if oldHash := t.insertOrder[t.head]; oldHash != "" {
		if _, exists := t.times[oldHash]; exists {
			delete(t.times, oldHash)
		}
	}
	t.insertOrder[t.head] = hash
	t.head = (t.head + 1) % t.maxSize
}

// evictOldest removes the oldest entries. Called with the lock held.
func (t *TxTracker) evictOldest() {
	for evicted := 0; evicted < t.evictBatch; evicted++ {
		idx := (t.head + evicted) % t.maxSize
		if oldHash := t.insertOrder[idx]; oldHash != "" {
			delete(t.times, oldHash)
			t.insertOrder[idx] = ""
		}
	}
}

// Get returns the submission time for a transaction.
func (t *TxTracker) Get(hash string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sentTime, ok := t.times[hash]
	return sentTime, ok
}

// GetAndDelete returns the submission time and removes the entry. The ring
// slot is not reclaimed here to keep the call O(1); the slot is cleaned up
// when the ring wraps around to it.
func (t *TxTracker) GetAndDelete(hash string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sentTime, ok := t.times[hash]
	if ok {
		delete(t.times, hash)
	}
	return sentTime, ok
}

// Size returns the current number of tracked transactions.
func (t *TxTracker) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.times)
}
