// Package retry runs an operation again after transient failures.
//
// Image downloads make a fixed number of tries with a constant pause:
//
//	policy := retry.Constant(3, 5*time.Second)
//	policy.ShouldRetry = errs.IsTyped
//	data, err := retry.Value(ctx, policy, func(int) ([]byte, error) {
//		return src.FetchAsset(ctx, post.ImageURL)
//	})
//
// Mirror uploads use UploadBackoff. Cancellation and permanent typed errors
// (auth, not_found, config) stop the loop at once under the default
// Retryable predicate, and nothing waits after the last attempt. When every
// attempt fails the result is an *ExhaustedError wrapping the last failure.
package retry
