package metrics

import (
	"strconv"
	"sync"
	"testing"
	"time"
)

func hashN(n int) string {
	return "tx" + strconv.Itoa(n)
}

func TestTxTracker_Basic(t *testing.T) {
	tracker := NewTxTracker()

	sentTime := time.Now()
	tracker.Set("GkTxHash", sentTime)

	got, ok := tracker.Get("GkTxHash")
	if !ok {
		t.Fatal("expected to find tx")
	}
	if !got.Equal(sentTime) {
		t.Errorf("expected time %v, got %v", sentTime, got)
	}

	if tracker.Size() != 1 {
		t.Errorf("expected size 1, got %d", tracker.Size())
	}
}

func TestTxTracker_GetAndDelete(t *testing.T) {
	tracker := NewTxTracker()

	sentTime := time.Now()
	tracker.Set("GkTxHash", sentTime)

	got, ok := tracker.GetAndDelete("GkTxHash")
	if !ok {
		t.Fatal("expected to find tx")
	}
	if !got.Equal(sentTime) {
		t.Errorf("expected time %v, got %v", sentTime, got)
	}

	if _, ok = tracker.GetAndDelete("GkTxHash"); ok {
		t.Error("expected tx to be deleted")
	}

	if tracker.Size() != 0 {
		t.Errorf("expected size 0, got %d", tracker.Size())
	}
}

func TestTxTracker_NotFound(t *testing.T) {
	tracker := NewTxTracker()

	if _, ok := tracker.Get("missing"); ok {
		t.Error("expected tx not found")
	}
	if _, ok := tracker.GetAndDelete("missing"); ok {
		t.Error("expected tx not found")
	}
}

func TestTxTracker_Eviction(t *testing.T) {
	tracker := NewTxTrackerWithSize(100, 10)

	for i := 0; i < 150; i++ {
		tracker.Set(hashN(i), time.Now())
	}

	// Eviction must keep the tracker under its bound.
	if size := tracker.Size(); size >= 100 {
		t.Errorf("expected size < 100 due to eviction, got %d", size)
	}
}

func TestTxTracker_Concurrent(t *testing.T) {
	tracker := NewTxTracker()

	var wg sync.WaitGroup
	numGoroutines := 10
	txsPerGoroutine := 1000

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < txsPerGoroutine; j++ {
				tracker.Set(hashN(id*txsPerGoroutine+j), time.Now())
			}
		}(i)
	}

	wg.Wait()

	// Under the bound, nothing should be evicted.
	expectedSize := numGoroutines * txsPerGoroutine
	if tracker.Size() != expectedSize {
		t.Errorf("expected size %d, got %d", expectedSize, tracker.Size())
	}
}

func TestTxTracker_ConcurrentReadWrite(t *testing.T) {
	tracker := NewTxTracker()

	var wg sync.WaitGroup
	numWriters := 5
	numReaders := 5
	txsPerWriter := 1000

	for i := 0; i < numWriters; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < txsPerWriter; j++ {
				tracker.Set(hashN(id*txsPerWriter+j), time.Now())
			}
		}(i)
	}

	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < txsPerWriter; j++ {
				tracker.Get(hashN(id*txsPerWriter + j))
			}
		}(i)
	}

	wg.Wait()
}

func BenchmarkTxTracker_Set(b *testing.B) {
	tracker := NewTxTracker()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tracker.Set(hashN(i), time.Now())
	}
}

func BenchmarkTxTracker_GetAndDelete(b *testing.B) {
	tracker := NewTxTracker()

	for i := 0; i < b.N; i++ {
		tracker.Set(hashN(i), time.Now())
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tracker.GetAndDelete(hashN(i))
	}
}
