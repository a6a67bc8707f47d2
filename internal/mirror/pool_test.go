package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igtags/pkg/logger"
	"igtags/pkg/metrics"
	"igtags/pkg/ratelimit"
	"igtags/pkg/retry"
)

type fakeMirror struct {
	mu       sync.Mutex
	saved    map[string][]byte
	failures map[string]int
	calls    atomic.Int32
	delay    time.Duration
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{saved: make(map[string][]byte), failures: make(map[string]int)}
}

func (f *fakeMirror) Name() string { return "fake" }

func (f *fakeMirror) Save(ctx context.Context, name string, data []byte) error {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures[name] > 0 {
		f.failures[name]--
		return errors.New("upload interrupted")
	}
	f.saved[name] = data
	return nil
}

func fastPool(m *fakeMirror, workers int) *Pool {
	p := NewPool(context.Background(), workers, m, nil, logger.NewNopLogger(), nil)
	p.backoff = retry.Fixed(time.Millisecond)
	return p
}

func TestPoolUploadsEverything(t *testing.T) {
	m := newFakeMirror()
	m.delay = 5 * time.Millisecond
	pool := fastPool(m, 3)
	pool.Start()

	for i := 0; i < 10; i++ {
		pool.Submit(fmt.Sprintf("img_%d.jpg", i), []byte("data"))
	}
	stats := pool.Stop()

	assert.Equal(t, int64(10), stats.Uploaded)
	assert.Zero(t, stats.Failed)
	assert.Len(t, m.saved, 10)
}

func TestPoolRetriesTransientFailures(t *testing.T) {
	m := newFakeMirror()
	m.failures["img_0.jpg"] = 2
	m.failures["img_1.jpg"] = 5

	reg := prometheus.NewRegistry()
	pool := NewPool(context.Background(), 1, m, nil, logger.NewNopLogger(), metrics.New(reg))
	pool.backoff = retry.Fixed(time.Millisecond)
	pool.Start()

	pool.Submit("img_0.jpg", []byte("a"))
	pool.Submit("img_1.jpg", []byte("b"))
	stats := pool.Stop()

	assert.Equal(t, int64(1), stats.Uploaded)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int32(6), m.calls.Load())
}

func TestPoolDropsAfterStop(t *testing.T) {
	m := newFakeMirror()
	pool := fastPool(m, 1)
	pool.Start()
	pool.Stop()

	require.NotPanics(t, func() { pool.Submit("late.jpg", nil) })
	stats := pool.Stop()
	assert.Equal(t, int64(1), stats.Dropped)
	assert.Empty(t, m.saved)
}

func TestPoolUsesRateLimiter(t *testing.T) {
	m := newFakeMirror()
	pool := NewPool(context.Background(), 2, m, ratelimit.NewBucket(2, 25*time.Millisecond), logger.NewNopLogger(), nil)
	pool.Start()

	start := time.Now()
	for i := 0; i < 4; i++ {
		pool.Submit(fmt.Sprintf("img_%d.jpg", i), nil)
	}
	stats := pool.Stop()

	assert.Equal(t, int64(4), stats.Uploaded)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}
