package resilience

import (
	"io"
	"sync"
	"time"
)

// Throttle is a token bucket over bytes, used to cap read bandwidth when
// carving from a live device so the scan does not starve other consumers
// of the disk. Refill occurs lazily on each take based on elapsed time.
type Throttle struct {
	mu         sync.Mutex
	capacity   float64 // burst size in bytes
	fillRate   float64 // bytes per second
	available  float64
	lastRefill time.Time
}

// NewThrottle creates a bucket allowing bytesPerSec sustained with a burst
// of one second's worth.
func NewThrottle(bytesPerSec int64) *Throttle {
	return &Throttle{
		capacity:   float64(bytesPerSec),
		fillRate:   float64(bytesPerSec),
		available:  float64(bytesPerSec),
		lastRefill: time.Now(),
	}
}

// Take blocks until n bytes of budget are available.
func (t *Throttle) Take(n int) {
	need := float64(n)
	for {
		t.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(t.lastRefill).Seconds()
		if elapsed > 0 {
			t.available += elapsed * t.fillRate
			if t.available > t.capacity {
				t.available = t.capacity
			}
			t.lastRefill = now
		}
		if t.available >= need {
			t.available -= need
			t.mu.Unlock()
			return
		}
		shortfall := need - t.available
		t.mu.Unlock()
		time.Sleep(time.Duration(shortfall / t.fillRate * float64(time.Second)))
	}
}

// ThrottledReader paces reads from r through a Throttle.
type ThrottledReader struct {
	r io.Reader
	t *Throttle
}

// NewThrottledReader wraps r; a nil throttle passes reads through.
func NewThrottledReader(r io.Reader, t *Throttle) *ThrottledReader {
	return &ThrottledReader{r: r, t: t}
}

func (tr *ThrottledReader) Read(p []byte) (int, error) {
	n, err := tr.r.Read(p)
	if n > 0 && tr.t != nil {
		tr.t.Take(n)
	}
	return n, err
}
