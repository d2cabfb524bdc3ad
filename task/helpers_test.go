package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Retry(t *testing.T) {
	t.Run("succeeds_late", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 5, time.Millisecond, func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("not yet")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})
	t.Run("last_failure", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 3, 0, func(context.Context) error {
			calls++
			return errors.New("fail " + string(rune('0'+calls)))
		})
		assert.EqualError(t, err, "fail 3")
		assert.Equal(t, 3, calls)
	})
	t.Run("at_least_once", func(t *testing.T) {
		calls := 0
		Retry(context.Background(), 0, 0, func(context.Context) error { calls++; return nil })
		assert.Equal(t, 1, calls)
	})
	t.Run("cancelled_during_delay", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := Retry(ctx, 10, time.Hour, func(context.Context) error {
			calls++
			cancel()
			return errors.New("down")
		})
		assert.EqualError(t, err, "down")
		assert.Equal(t, 1, calls)
	})
	t.Run("value", func(t *testing.T) {
		calls := 0
		v, err := RetryValue(context.Background(), 3, 0, func(context.Context) (string, error) {
			calls++
			if calls == 1 {
				return "", errors.New("first")
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
	})
}

func Test_WithTimeout(t *testing.T) {
	fn := WithTimeout(10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, fn(context.Background()), context.DeadlineExceeded)
	assert.NoError(t, WithTimeout(time.Second, nop)(context.Background()))
}

func Test_Delay(t *testing.T) {
	ran := false
	start := time.Now()
	err := Delay(15*time.Millisecond, func(context.Context) error { ran = true; return nil })(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran = false
	err = Delay(time.Hour, func(context.Context) error { ran = true; return nil })(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

func Test_Repeat(t *testing.T) {
	var seen []int
	err := Repeat(5, func(_ context.Context, i int) error {
		seen = append(seen, i)
		if i == 2 {
			return errors.New("stop")
		}
		return nil
	})(context.Background())
	assert.EqualError(t, err, "stop")
	assert.Equal(t, []int{0, 1, 2}, seen)

	seen = nil
	require.NoError(t, Repeat(3, func(_ context.Context, i int) error {
		seen = append(seen, i)
		return nil
	})(context.Background()))
	assert.Equal(t, []int{0, 1, 2}, seen)
}

func Test_Helpers_OnManager(t *testing.T) {
	m, _ := newTestManager(t, DefaultConfig())
	calls := 0
	job, err := m.IO("flaky", func(ctx context.Context) error {
		return Retry(ctx, 3, time.Millisecond, func(context.Context) error {
			calls++
			if calls < 2 {
				return errors.New("flake")
			}
			return nil
		})
	})
	require.NoError(t, err)
	assert.NoError(t, job.Wait(context.Background()))
	assert.Equal(t, 2, calls)
}
