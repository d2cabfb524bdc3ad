package task

import (
	"context"
	"time"
)

// Retry calls fn up to attempts times, sleeping delay between failures, and
// returns the last failure. It stops early when ctx is done.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn Func) error {
	_, err := RetryValue(ctx, attempts, delay, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryValue is Retry for functions producing a value.
func RetryValue[T any](ctx context.Context, attempts int, delay time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if attempts < 1 {
		attempts = 1
	}
	var (
		zero T
		err  error
	)
	for i := range attempts {
		var v T
		if v, err = fn(ctx); err == nil {
			return v, nil
		}
		if i == attempts-1 {
			break
		}
		if werr := sleep(ctx, delay); werr != nil {
			return zero, err
		}
	}
	return zero, err
}

// WithTimeout bounds fn to d; the task fails with context.DeadlineExceeded
// when fn honours its context.
func WithTimeout(d time.Duration, fn Func) Func {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return fn(ctx)
	}
}

// Delay waits d, then runs fn. Cancellation during the wait skips fn.
func Delay(d time.Duration, fn Func) Func {
	return func(ctx context.Context) error {
		if err := sleep(ctx, d); err != nil {
			return err
		}
		return fn(ctx)
	}
}

// Repeat runs fn n times with the iteration index, stopping at the first
// error or when ctx is done.
func Repeat(n int, fn func(ctx context.Context, i int) error) Func {
	return func(ctx context.Context) error {
		for i := range n {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}
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
