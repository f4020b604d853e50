package authware

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Verifier checks a raw credential against an identity provider. It is the
// only operation in the pipeline allowed to block on I/O. Failures are
// returned as *AuthError values so the middleware can branch on Kind;
// anything else is treated as an internal fault.
//
// Concrete providers (Cognito, Auth0, Okta, Firebase, local JWT validation)
// are adapters implementing this one method.
type Verifier interface {
	Verify(ctx context.Context, credential string) (*Identity, error)
}

// VerifierFunc adapts a plain function to the Verifier interface.
type VerifierFunc func(ctx context.Context, credential string) (*Identity, error)

func (f VerifierFunc) Verify(ctx context.Context, credential string) (*Identity, error) {
	return f(ctx, credential)
}

// RetryConfig bounds re-attempts after transient provider faults. Only
// KindUnavailable outcomes are retried; rejections and malformed credentials
// never are.
type RetryConfig struct {
	// Attempts is the total number of Verify calls, including the first.
	// Values below 1 mean a single attempt.
	Attempts int
	// Backoff is the pause between attempts, doubled each retry.
	Backoff time.Duration
}

// verifyWithRetry runs v.Verify with a per-attempt timeout, retrying
// transient faults per the retry policy. The passed context must already be
// detached from any single waiter's cancellation.
func verifyWithRetry(ctx context.Context, v Verifier, credential string, timeout time.Duration, retry RetryConfig) (*Identity, error) {
	attempts := retry.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := retry.Backoff

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, Unavailable(ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		id, err := v.Verify(attemptCtx, credential)
		cancel()
		if err == nil {
			return id, nil
		}

		// Timeouts surface as deadline errors from the provider client;
		// normalize them so they are never mistaken for rejections.
		if ClassifyError(err) == KindUnavailable {
			var ae *AuthError
			if !errors.As(err, &ae) {
				err = Unavailable(err)
			}
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}
