package target

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"
)

const (
	retryBaseDelay = 100 * time.Millisecond
	retryMaxDelay  = 30 * time.Second
)

// RetryTarget retries failed operations of another Target. ErrNotFound and
// context cancellation are returned immediately.
type RetryTarget struct {
	inner      Target
	maxRetries int
	linear     bool
}

// NewRetryTarget wraps inner. backoff is "linear" or "exponential"; anything
// else means exponential.
func NewRetryTarget(inner Target, maxRetries int, backoff string) *RetryTarget {
	return &RetryTarget{inner: inner, maxRetries: maxRetries, linear: backoff == "linear"}
}

func (r *RetryTarget) Name() string { return r.inner.Name() }

// Put buffers body so that every attempt uploads the full content.
func (r *RetryTarget) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("buffer %q: %w", key, err)
	}
	return r.retry(ctx, func() error {
		return r.inner.Put(ctx, key, bytes.NewReader(data), opts)
	})
}

func (r *RetryTarget) Get(ctx context.Context, key string) (io.ReadCloser, ObjectMeta, error) {
	var (
		rc   io.ReadCloser
		meta ObjectMeta
	)
	err := r.retry(ctx, func() (err error) {
		rc, meta, err = r.inner.Get(ctx, key)
		return err
	})
	return rc, meta, err
}

func (r *RetryTarget) Head(ctx context.Context, key string) (ObjectMeta, error) {
	var meta ObjectMeta
	err := r.retry(ctx, func() (err error) {
		meta, err = r.inner.Head(ctx, key)
		return err
	})
	return meta, err
}

func (r *RetryTarget) Delete(ctx context.Context, key string) error {
	return r.retry(ctx, func() error { return r.inner.Delete(ctx, key) })
}

func (r *RetryTarget) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var items []ObjectInfo
	err := r.retry(ctx, func() (err error) {
		items, err = r.inner.List(ctx, prefix)
		return err
	})
	return items, err
}

func retryable(err error) bool {
	return !errors.Is(err, ErrNotFound) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func (r *RetryTarget) retry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = op(); err == nil || !retryable(err) || attempt >= r.maxRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.delay(attempt)):
		}
	}
}

// delay returns the wait before retry number attempt+1, with +/-25% jitter.
func (r *RetryTarget) delay(attempt int) time.Duration {
	var d time.Duration
	switch {
	case r.linear:
		d = retryBaseDelay * time.Duration(attempt+1)
	case attempt < 16:
		d = retryBaseDelay << attempt
	default:
		d = retryMaxDelay
	}
	if d > retryMaxDelay {
		d = retryMaxDelay
	}
	return d - d/4 + time.Duration(rand.Int63n(int64(d/2)+1))
}
