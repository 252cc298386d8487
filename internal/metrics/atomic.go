package metrics

import "sync/atomic"

// AtomicMax atomically raises *addr to val if val is larger and returns the
// resulting value.
func AtomicMax(addr *int64, val int64) int64 {
	for {
		current := atomic.LoadInt64(addr)
		if val <= current {
			return current
		}
		if atomic.CompareAndSwapInt64(addr, current, val) {
			return val
		}
	}
}

// Counter is a simple atomic counter.
type Counter struct {
	value int64
}

// Add adds delta to the counter and returns the new value.
func (c *Counter) Add(delta int64) int64 {
	return atomic.AddInt64(&c.value, delta)
}

// Inc increments the counter by 1.
func (c *Counter) Inc() int64 {
	return atomic.AddInt64(&c.value, 1)
}

// Load returns the current value.
func (c *Counter) Load() int64 {
	return atomic.LoadInt64(&c.value)
}

// Store sets the value.
func (c *Counter) Store(val int64) {
	atomic.StoreInt64(&c.value, val)
}

// Gauge is an atomic up/down counter that remembers its high-water mark.
type Gauge struct {
	value int64
	peak  int64
}

// Inc increments the gauge and returns the new value.
func (g *Gauge) Inc() int64 {
	v := atomic.AddInt64(&g.value, 1)
	AtomicMax(&g.peak, v)
	return v
}

// Dec decrements the gauge and returns the new value. The value can go
// negative when decrements outpace increments; callers treat that as a
// bookkeeping bug and must report it rather than mask it.
func (g *Gauge) Dec() int64 {
	return atomic.AddInt64(&g.value, -1)
}

// Load returns the current value.
func (g *Gauge) Load() int64 {
	return atomic.LoadInt64(&g.value)
}

// Peak returns the highest value the gauge has reached.
func (g *Gauge) Peak() int64 {
	return atomic.LoadInt64(&g.peak)
}
