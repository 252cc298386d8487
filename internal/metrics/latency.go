// Package metrics provides in-memory and Prometheus metrics collection.
package metrics

import (
	"math"
	"sort"
	"sync"

	"github.com/gateway-fm/ftbench/pkg/types"
)

// StreamingLatencyStats provides streaming percentile estimation. It keeps
// running aggregates plus a fixed-size reservoir (Algorithm R), so memory
// stays O(reservoirSize) no matter how many samples arrive.
type StreamingLatencyStats struct {
	mu sync.RWMutex

	count int64
	sum   float64
	min   float64
	max   float64

	reservoir     []float64
	reservoirSize int
	seen          int64

	// Completion latency histogram. Finality on the target network is
	// measured in seconds, so the buckets are too.
	buckets      []int64
	bucketBounds []float64

	// Per-instance xorshift64* state for reservoir replacement. Global
	// random state would race between instances.
	randState uint64
}

const (
	// DefaultReservoirSize is the number of samples kept for percentile
	// estimation. 10000 gives under 1% error at p99.
	DefaultReservoirSize = 10000

	// Completion latency bucket bounds in milliseconds.
	bucket0 = 1000.0
	bucket1 = 2000.0
	bucket2 = 5000.0
	bucket3 = 10000.0
)

// NewStreamingLatencyStats creates a streaming latency calculator.
func NewStreamingLatencyStats() *StreamingLatencyStats {
	return &StreamingLatencyStats{
		min:           math.MaxFloat64,
		reservoir:     make([]float64, 0, DefaultReservoirSize),
		reservoirSize: DefaultReservoirSize,
		buckets:       make([]int64, 5),
		bucketBounds:  []float64{bucket0, bucket1, bucket2, bucket3},
		randState:     1,
	}
}

// Add records a latency sample in milliseconds. Safe for concurrent use.
func (s *StreamingLatencyStats) Add(latencyMs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	s.sum += latencyMs
	s.seen++

	if latencyMs < s.min {
		s.min = latencyMs
	}
	if latencyMs > s.max {
		s.max = latencyMs
	}

	s.buckets[s.bucketIndex(latencyMs)]++

	if len(s.reservoir) < s.reservoirSize {
		s.reservoir = append(s.reservoir, latencyMs)
	} else {
		// Replace with probability reservoirSize/seen.
		j := s.fastRand() % uint64(s.seen)
		if j < uint64(s.reservoirSize) {
			s.reservoir[j] = latencyMs
		}
	}
}

func (s *StreamingLatencyStats) bucketIndex(latencyMs float64) int {
	for i, bound := range s.bucketBounds {
		if latencyMs < bound {
			return i
		}
	}
	return len(s.bucketBounds)
}

// fastRand is xorshift64*. Not cryptographic, but plenty for reservoir
// replacement and free of shared state.
func (s *StreamingLatencyStats) fastRand() uint64 {
	s.randState ^= s.randState >> 12
	s.randState ^= s.randState << 25
	s.randState ^= s.randState >> 27
	return s.randState * 0x2545F4914F6CDD1D
}

// GetStats returns the current latency statistics, or nil before the first
// sample.
func (s *StreamingLatencyStats) GetStats() *types.LatencyStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.count == 0 {
		return nil
	}

	sorted := make([]float64, len(s.reservoir))
	copy(sorted, s.reservoir)
	sort.Float64s(sorted)

	return &types.LatencyStats{
		Count: int(s.count),
		Min:   s.min,
		Max:   s.max,
		Avg:   s.sum / float64(s.count),
		P50:   percentile(sorted, 0.50),
		P75:   percentile(sorted, 0.75),
		P90:   percentile(sorted, 0.90),
		P95:   percentile(sorted, 0.95),
		P99:   percentile(sorted, 0.99),
		Buckets: []types.LatencyBucket{
			{Label: "0-1s", Count: int(s.buckets[0])},
			{Label: "1-2s", Count: int(s.buckets[1])},
			{Label: "2-5s", Count: int(s.buckets[2])},
			{Label: "5-10s", Count: int(s.buckets[3])},
			{Label: "10s+", Count: int(s.buckets[4])},
		},
	}
}

// Count returns the number of samples recorded.
func (s *StreamingLatencyStats) Count() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// percentile computes the p-th percentile of a sorted slice with linear
// interpolation between neighbors.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	idx := p * float64(len(sorted)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
