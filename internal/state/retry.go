package state

import (
	"context"
	"time"
)

// retryStore wraps a Store with bounded retry and per-operation timeouts.
// Saves are full-record overwrites, so re-applying one after a transient
// failure is idempotent.
type retryStore struct {
	inner      Store
	attempts   int
	backoff    time.Duration
	opTimeout  time.Duration
	sleep      func(time.Duration)
}

// WithRetry wraps a store so each operation is attempted up to attempts
// times with doubling backoff, each attempt bounded by opTimeout. A zero
// opTimeout leaves the caller's context deadline in place.
func WithRetry(inner Store, attempts int, backoff, opTimeout time.Duration) Store {
	if attempts < 1 {
		attempts = 1
	}
	return &retryStore{
		inner:     inner,
		attempts:  attempts,
		backoff:   backoff,
		opTimeout: opTimeout,
		sleep:     time.Sleep,
	}
}

func (r *retryStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.opTimeout)
}

func (r *retryStore) do(ctx context.Context, op func(ctx context.Context) error) error {
	var err error
	delay := r.backoff
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.sleep(delay)
			delay *= 2
		}
		opCtx, cancel := r.withTimeout(ctx)
		err = op(opCtx)
		cancel()
		if err == nil || !IsStateError(err) {
			return err
		}
	}
	return err
}

func (r *retryStore) Initialize(ctx context.Context) error {
	return r.do(ctx, r.inner.Initialize)
}

func (r *retryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		data  []byte
		found bool
	)
	err := r.do(ctx, func(ctx context.Context) error {
		var opErr error
		data, found, opErr = r.inner.Get(ctx, key)
		return opErr
	})
	return data, found, err
}

func (r *retryStore) Save(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.inner.Save(ctx, key, value, ttl)
	})
}

func (r *retryStore) Delete(ctx context.Context, key string) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.inner.Delete(ctx, key)
	})
}

func (r *retryStore) DeleteAll(ctx context.Context) error {
	return r.do(ctx, r.inner.DeleteAll)
}

func (r *retryStore) Done() error {
	return r.inner.Done()
}
