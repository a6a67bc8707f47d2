package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff gives the pause that follows failed attempt n (1-based).
type Backoff interface {
	Delay(n int) time.Duration
}

// Fixed pauses for the same duration after every failure.
type Fixed time.Duration

func (f Fixed) Delay(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(f)
}

// Exponential doubles (by Factor) from Initial up to Max. Jitter spreads
// each pause by up to that fraction in either direction.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	Jitter  float64
}

// UploadBackoff is the policy used for mirror uploads.
func UploadBackoff() Exponential {
	return Exponential{
		Initial: time.Second,
		Max:     30 * time.Second,
		Factor:  2,
		Jitter:  0.1,
	}
}

func (e Exponential) Delay(n int) time.Duration {
	if n <= 0 {
		return 0
	}

	d := float64(e.Initial)
	for i := 1; i < n && d < float64(e.Max); i++ {
		d *= e.Factor
	}
	if e.Max > 0 && d > float64(e.Max) {
		d = float64(e.Max)
	}

	if e.Jitter > 0 {
		d += d * e.Jitter * (2*rand.Float64() - 1)
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

// Sleep pauses for d unless ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
