// Package ratelimit paces outbound requests.
//
// Window admits a fixed number of requests in any interval of a given span
// and backs the per-minute budget shared by page loads and image downloads.
// Bucket refills one token at a time and lets mirror uploads burst. Both
// satisfy Limiter; Wait returns the context error when the context ends.
//
//	limiter := ratelimit.PerMinute(cfg.RateLimit.RequestsPerMinute)
//	if err := ratelimit.Acquire(ctx, limiter); err != nil {
//		return err
//	}
package ratelimit
