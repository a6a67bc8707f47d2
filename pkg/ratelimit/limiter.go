package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter paces callers. Wait blocks until the next request may go out or
// ctx ends.
type Limiter interface {
	Wait(ctx context.Context) error
}

// PerMinute returns a window admitting n requests per minute, or nil when
// n is not positive.
func PerMinute(n int) Limiter {
	if n <= 0 {
		return nil
	}
	return NewWindow(n, time.Minute)
}

// Acquire waits on l when it is non-nil.
func Acquire(ctx context.Context, l Limiter) error {
	if l == nil {
		return ctx.Err()
	}
	return l.Wait(ctx)
}

// Window admits at most limit requests in any span-long interval. It keeps
// the time of the last limit requests in a ring.
type Window struct {
	mu    sync.Mutex
	span  time.Duration
	stamp []time.Time
	next  int
	now   func() time.Time
}

func NewWindow(limit int, span time.Duration) *Window {
	if limit < 1 {
		limit = 1
	}
	return &Window{span: span, stamp: make([]time.Time, limit), now: time.Now}
}

// Allow records a request if the window has room.
func (w *Window) Allow() bool {
	_, ok := w.reserve()
	return ok
}

func (w *Window) Wait(ctx context.Context) error {
	for {
		wait, ok := w.reserve()
		if ok {
			return nil
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// reserve takes a slot or reports how long until the oldest one frees.
func (w *Window) reserve() (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	oldest := w.stamp[w.next]
	if !oldest.IsZero() && now.Sub(oldest) < w.span {
		return w.span - now.Sub(oldest), false
	}
	w.stamp[w.next] = now
	w.next = (w.next + 1) % len(w.stamp)
	return 0, true
}

// Bucket holds up to burst tokens and gains one every interval.
type Bucket struct {
	mu       sync.Mutex
	burst    float64
	tokens   float64
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

func NewBucket(burst int, interval time.Duration) *Bucket {
	if burst < 1 {
		burst = 1
	}
	return &Bucket{
		burst:    float64(burst),
		tokens:   float64(burst),
		interval: interval,
		last:     time.Now(),
		now:      time.Now,
	}
}

// Allow takes a token if one is available.
func (b *Bucket) Allow() bool {
	_, ok := b.take()
	return ok
}

func (b *Bucket) Wait(ctx context.Context) error {
	for {
		wait, ok := b.take()
		if ok {
			return nil
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (b *Bucket) take() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.interval > 0 {
		b.tokens += float64(now.Sub(b.last)) / float64(b.interval)
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
	} else {
		b.tokens = b.burst
	}
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return 0, true
	}
	return time.Duration((1 - b.tokens) * float64(b.interval)), false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
