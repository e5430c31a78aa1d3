package resilience

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	v, err := Retry(context.Background(), 5, time.Millisecond, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if v != 42 {
		t.Errorf("value: got %d, want 42", v)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	_, err := Retry(context.Background(), 3, time.Millisecond, func() (string, error) {
		calls++
		return "", permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Retry(ctx, 10, time.Hour, func() (int, error) {
		return 0, errors.New("force a backoff wait")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestThrottledReaderPassesDataThrough(t *testing.T) {
	src := bytes.Repeat([]byte("x"), 4096)
	// Budget far above the transfer size: no measurable pacing in the test,
	// just the wiring.
	tr := NewThrottledReader(bytes.NewReader(src), NewThrottle(1<<30))
	got, err := io.ReadAll(tr)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Error("throttled read corrupted data")
	}
}

func TestThrottledReaderNilThrottle(t *testing.T) {
	src := []byte("unpaced")
	tr := NewThrottledReader(bytes.NewReader(src), nil)
	got, err := io.ReadAll(tr)
	if err != nil || !bytes.Equal(got, src) {
		t.Errorf("nil throttle passthrough: %q %v", got, err)
	}
}

func TestThrottlePacesSustainedRate(t *testing.T) {
	if testing.Short() {
		t.Skip("timing-sensitive")
	}
	// 1 MiB/s with a 1 MiB burst: taking 1.5 MiB must block for roughly
	// half a second beyond the burst.
	th := NewThrottle(1 << 20)
	start := time.Now()
	th.Take(1 << 20) // burst, immediate
	th.Take(1 << 19) // half a second of refill
	elapsed := time.Since(start)
	if elapsed < 300*time.Millisecond {
		t.Errorf("throttle too permissive: 1.5 MiB in %v at 1 MiB/s", elapsed)
	}
	if elapsed > 3*time.Second {
		t.Errorf("throttle too strict: took %v", elapsed)
	}
}
