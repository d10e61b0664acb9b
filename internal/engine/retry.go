package engine

import (
	"context"
	"errors"
	"time"

	"binarybot/internal/api"
)

// RetryPolicy bounds the transparent retry of transient API failures.
// Disconnects retry at a fixed short delay. Other recoverable errors back
// off exponentially for the first ExpAttempts tries, then linearly, until
// MaxAttempts is reached and the last error surfaces.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	DisconnectDelay time.Duration
	ExpAttempts     int
	MaxDelay        time.Duration
}

// DefaultRetryPolicy returns the production retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     10,
		BaseDelay:       500 * time.Millisecond,
		DisconnectDelay: 1 * time.Second,
		ExpAttempts:     4,
		MaxDelay:        30 * time.Second,
	}
}

// Retrier wraps remote calls with the policy. The zero value is not
// usable; use NewRetrier.
type Retrier struct {
	policy RetryPolicy

	// onRetry fires once per retried attempt, before the backoff sleep.
	onRetry func(err error)

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a Retrier with the given policy.
func NewRetrier(policy RetryPolicy) *Retrier {
	return &Retrier{
		policy: policy,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// recoverable reports whether err is in the classified transient set.
// Everything else is fatal for the operation and propagates immediately.
func recoverable(err error) bool {
	if errors.Is(err, api.ErrDisconnected) {
		return true
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case api.CodeDisconnect, api.CodeRateLimit, api.CodeCallError,
			api.CodeWrongResponse, api.CodeGetProposalFailure:
			return true
		}
	}
	return false
}

// isDisconnect reports whether err is a connection-loss failure, which
// retries at the fixed delay rather than backing off.
func isDisconnect(err error) bool {
	if errors.Is(err, api.ErrDisconnected) {
		return true
	}
	var apiErr *api.APIError
	return errors.As(err, &apiErr) && apiErr.Code == api.CodeDisconnect
}

// delay computes the wait before retry attempt (1-based).
func (r *Retrier) delay(attempt int, err error) time.Duration {
	if isDisconnect(err) {
		return r.policy.DisconnectDelay
	}

	var d time.Duration
	if attempt <= r.policy.ExpAttempts {
		d = r.policy.BaseDelay << uint(attempt-1)
	} else {
		// Linear growth past the exponential window.
		ceiling := r.policy.BaseDelay << uint(r.policy.ExpAttempts-1)
		d = ceiling + time.Duration(attempt-r.policy.ExpAttempts)*r.policy.BaseDelay
	}
	if r.policy.MaxDelay > 0 && d > r.policy.MaxDelay {
		d = r.policy.MaxDelay
	}
	return d
}

// Do runs op, transparently retrying classified transient failures.
// Callers never see intermediate errors; only exhaustion or a fatal
// classification surfaces.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !recoverable(err) {
			return err
		}
		lastErr = err

		if attempt == r.policy.MaxAttempts {
			break
		}
		if r.onRetry != nil {
			r.onRetry(err)
		}
		if sleepErr := r.sleep(ctx, r.delay(attempt, err)); sleepErr != nil {
			return sleepErr
		}
	}
	return lastErr
}
