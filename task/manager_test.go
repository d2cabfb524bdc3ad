package task

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func Test_Manager_Initialize(t *testing.T) {
	t.Run("not_initialized", func(t *testing.T) {
		m := NewManager()
		assert.False(t, m.IsInitialized())
		job, err := m.IO("early", nop)
		assert.ErrorIs(t, err, ErrNotInitialized)
		waitDone(t, job)
		assert.ErrorIs(t, job.Err(), ErrNotInitialized)
		assert.ErrorIs(t, m.Post(func() {}), ErrNotInitialized)
		for _, submit := range []func() (*Job, error){
			func() (*Job, error) { return m.Main("early_main", nop) },
			func() (*Job, error) { return m.ExecuteWithScope("x", "early_scoped", DISPATCH_IO, nop) },
			func() (*Job, error) { return m.ExecuteInScope(nil, "early_default", DISPATCH_IO, nop) },
		} {
			var job *Job
			require.NotPanics(t, func() { job, err = submit() })
			assert.ErrorIs(t, err, ErrNotInitialized)
			waitDone(t, job)
			assert.ErrorIs(t, job.Err(), ErrNotInitialized)
		}
		_, err = m.Scope("x")
		assert.ErrorIs(t, err, ErrNotInitialized)
		assert.False(t, m.CancelScope("x"))
		assert.Zero(t, m.Stats().Submitted)
	})
	t.Run("once", func(t *testing.T) {
		m, fl := newTestManager(t, Config{IOPoolSize: 3})
		assert.True(t, m.IsInitialized())
		assert.False(t, m.Initialize(DefaultConfig()))
		cfg := m.Config()
		assert.Equal(t, 3, cfg.IOPoolSize)
		assert.Equal(t, DEFAULT_TASK_POOL_SIZE, cfg.TaskPoolSize, "non-positive sizes take defaults")
		assert.Equal(t, DEFAULT_QUEUE_CAPACITY, cfg.QueueCapacity)
		assert.Empty(t, fl.Messages(LOG_MODULE_INFO), "logging is off in this config")
	})
	t.Run("nil_func", func(t *testing.T) {
		m, _ := newTestManager(t, DefaultConfig())
		_, err := m.IO("nil", nil)
		assert.ErrorIs(t, err, ErrNilFunc)
		assert.ErrorIs(t, m.Post(nil), ErrNilFunc)
	})
}

func Test_Manager_ThreadTasks(t *testing.T) {
	cfg := threadConfig()
	cfg.QueueCapacity = 1000
	m, _ := newTestManager(t, cfg)

	var count atomic.Int64
	jobs := make([]*Job, 0, 1000)
	for i := range 1000 {
		job, err := m.IO("inc"+strconv.Itoa(i), func(context.Context) error {
			count.Add(1)
			return nil
		})
		require.NoError(t, err)
		jobs = append(jobs, job)
	}
	waitDone(t, jobs...)
	assert.Equal(t, int64(1000), count.Load())
	st := m.Stats()
	assert.Equal(t, int64(1000), st.Submitted)
	assert.Equal(t, int64(1000), st.Completed)
	assert.Zero(t, st.Failed)
	assert.Zero(t, st.Pending())

	assert.True(t, jobs[0].Detached())
	assert.Equal(t, MODE_THREAD, jobs[0].Mode())
	assert.ErrorIs(t, jobs[0].Wait(context.Background()), ErrDetached)
}

func Test_Manager_Failures(t *testing.T) {
	m, fl := newTestManager(t, DefaultConfig())

	ok1, err := m.IO("ok1", nop)
	require.NoError(t, err)
	bad, _ := m.IO("bad", func(context.Context) error { return errors.New("boom") })
	crash, _ := m.High("crash", func(context.Context) error { panic("kaboom") })
	ok2, _ := m.Low("ok2", nop)

	assert.NoError(t, ok1.Wait(context.Background()))
	assert.EqualError(t, bad.Wait(context.Background()), "boom")
	err = crash.Wait(context.Background())
	assert.ErrorIs(t, err, ErrPanicked)
	assert.ErrorContains(t, err, "kaboom")
	assert.NoError(t, ok2.Wait(context.Background()))

	st := m.Stats()
	assert.Equal(t, int64(2), st.Completed)
	assert.Equal(t, int64(2), st.Failed)
	assert.True(t, fl.Has(LOG_MODULE_ERROR, "bad failed"))
	assert.True(t, fl.Has(LOG_MODULE_ERROR, "crash failed"))
	assert.True(t, fl.Has(LOG_MODULE_INFO, "ok2 completed"))
	assert.Equal(t, PRIORITY_HIGH, crash.Priority())
	assert.Equal(t, MODE_COROUTINE, crash.Mode())
}

func Test_Manager_Rejection(t *testing.T) {
	cfg := threadConfig()
	cfg.TaskPoolSize = 1
	cfg.QueueCapacity = 1
	m, fl := newTestManager(t, cfg)

	started := make(chan struct{})
	release := make(chan struct{})
	blocker, err := m.ExecuteThread("blocker", PRIORITY_HIGH, func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	require.NoError(t, err)
	<-started
	queued, err := m.ExecuteThread("queued", PRIORITY_HIGH, nop)
	require.NoError(t, err)

	extra, err := m.ExecuteThread("extra", PRIORITY_HIGH, nop)
	assert.ErrorIs(t, err, ErrRejected)
	require.NotNil(t, extra)
	waitDone(t, extra)
	assert.ErrorIs(t, extra.Err(), ErrRejected)

	close(release)
	waitDone(t, blocker, queued)
	st := m.Stats()
	assert.Equal(t, int64(1), st.Rejected)
	assert.Equal(t, int64(2), st.Submitted)
	assert.Equal(t, int64(2), st.Completed)
	assert.True(t, fl.Has(LOG_MODULE_ERROR, "extra rejected"))
}

func Test_Manager_Scopes(t *testing.T) {
	m, _ := newTestManager(t, DefaultConfig())

	s1, err := m.Scope("net")
	require.NoError(t, err)
	s2, _ := m.Scope("net")
	assert.Same(t, s1, s2)

	running := make(chan struct{})
	job, err := m.ExecuteWithScope("net", "poll", DISPATCH_IO, func(ctx context.Context) error {
		close(running)
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)
	<-running
	assert.True(t, m.CancelScope("net"))
	assert.False(t, m.CancelScope("net"))
	assert.ErrorIs(t, job.Wait(context.Background()), context.Canceled)
	assert.False(t, s1.IsActive())

	late, err := m.ExecuteInScope(s1, "late", DISPATCH_IO, nop)
	assert.ErrorIs(t, err, ErrScopeInactive)
	assert.ErrorIs(t, late.Err(), ErrScopeInactive)

	revived, err := m.ExecuteWithScope("net", "revived", DISPATCH_IO, nop)
	require.NoError(t, err)
	require.NoError(t, revived.Wait(context.Background()))

	s3, _ := m.Scope("net")
	assert.NotSame(t, s1, s3)
	assert.True(t, s3.IsActive())
	assert.Equal(t, int64(1), s3.Launched())

	st := m.Stats()
	assert.Equal(t, int64(1), st.Cancelled)
	assert.Equal(t, int64(1), st.Rejected)
	assert.True(t, st.DefaultScopeActive)
	assert.Equal(t, []string{DEFAULT_SCOPE, "net"}, st.Scopes)
}

func Test_Manager_Shutdown(t *testing.T) {
	t.Run("idempotent", func(t *testing.T) {
		m, _ := newTestManager(t, DefaultConfig())
		running := make(chan struct{})
		job, err := m.ExecuteCoroutine("waiter", DISPATCH_UNCONFINED, func(ctx context.Context) error {
			close(running)
			<-ctx.Done()
			return ctx.Err()
		})
		require.NoError(t, err)
		<-running

		require.NoError(t, m.Shutdown(context.Background()))
		require.NoError(t, m.Shutdown(context.Background()))
		assert.ErrorIs(t, job.Err(), context.Canceled)
		assert.True(t, m.IsShutdown())
		assert.False(t, m.IsInitialized())

		_, err = m.IO("after", nop)
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, m.PostDelayed(func() {}, time.Millisecond), ErrClosed)
		st := m.Stats()
		assert.False(t, st.TaskPoolAlive)
		assert.False(t, st.IOPoolAlive)
		assert.False(t, st.ComputePoolAlive)
		assert.False(t, st.DefaultScopeActive)
	})
	t.Run("before_initialize", func(t *testing.T) {
		m := NewManager()
		assert.NoError(t, m.Shutdown(context.Background()))
		assert.False(t, m.Initialize(DefaultConfig()))
	})
	t.Run("timeout", func(t *testing.T) {
		m, _ := newTestManager(t, DefaultConfig())
		release := make(chan struct{})
		defer close(release)
		running := make(chan struct{})
		m.IO("stubborn", func(context.Context) error {
			close(running)
			<-release
			return nil
		})
		<-running
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, m.Shutdown(ctx), context.DeadlineExceeded)
		assert.Equal(t, int64(1), m.Stats().Running)
	})
	t.Run("queued_tasks_run_cancelled", func(t *testing.T) {
		cfg := threadConfig()
		cfg.IOPoolSize = 1
		m, _ := newTestManager(t, cfg)
		release := make(chan struct{})
		running := make(chan struct{})
		first, _ := m.IO("first", func(context.Context) error {
			close(running)
			<-release
			return nil
		})
		<-running
		var seen error
		second, _ := m.IO("second", func(ctx context.Context) error {
			seen = ctx.Err()
			return seen
		})
		go func() {
			time.Sleep(10 * time.Millisecond)
			close(release)
		}()
		require.NoError(t, m.Shutdown(context.Background()))
		waitDone(t, first, second)
		assert.ErrorIs(t, seen, context.Canceled)
		assert.Equal(t, int64(1), m.Stats().Cancelled)
	})
}

func Test_Manager_Lane(t *testing.T) {
	m, _ := newTestManager(t, Config{QueueCapacity: 200})

	var mtx sync.Mutex
	var order []int
	for i := range 100 {
		require.NoError(t, m.Post(func() {
			mtx.Lock()
			order = append(order, i)
			mtx.Unlock()
		}))
	}
	require.NoError(t, m.Post(func() { panic("lane survives") }))
	last, err := m.Main("last", func(context.Context) error {
		mtx.Lock()
		order = append(order, 100)
		mtx.Unlock()
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, last.Wait(context.Background()))

	mtx.Lock()
	require.Len(t, order, 101)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
	mtx.Unlock()

	fired := make(chan time.Time, 1)
	at := time.Now()
	require.NoError(t, m.PostDelayed(func() { fired <- time.Now() }, 20*time.Millisecond))
	select {
	case when := <-fired:
		assert.GreaterOrEqual(t, when.Sub(at), 20*time.Millisecond)
	case <-time.After(5 * time.Second):
		t.Fatal("delayed callback never ran")
	}

	require.NoError(t, m.PostDelayed(func() { t.Error("dropped callback ran") }, time.Hour))
	assert.Equal(t, 1, m.Stats().DelayedPending)
	require.NoError(t, m.Shutdown(context.Background()))
	assert.Zero(t, m.Stats().DelayedPending)
}

func Test_Manager_Monitoring(t *testing.T) {
	m, _ := newTestManager(t, DefaultConfig())
	var mtx sync.Mutex
	var reports []Report
	h := m.OnTaskFinished(func(r Report) {
		mtx.Lock()
		reports = append(reports, r)
		mtx.Unlock()
	})
	assert.NotZero(t, h)

	job, _ := m.IO("watched", func(context.Context) error { panic("oops") })
	job.Wait(context.Background())
	mtx.Lock()
	require.Len(t, reports, 1)
	assert.Equal(t, "watched", reports[0].Name)
	assert.True(t, reports[0].Panicked)
	assert.Equal(t, PRIORITY_NORMAL, reports[0].Priority)
	assert.GreaterOrEqual(t, reports[0].Duration, time.Duration(0))
	mtx.Unlock()

	cfg := m.Config()
	cfg.EnableMonitoring = false
	m.UpdateConfig(cfg)
	job, _ = m.IO("unwatched", nop)
	job.Wait(context.Background())

	cfg.EnableMonitoring = true
	m.UpdateConfig(cfg)
	assert.True(t, m.RemoveListener(h))
	job, _ = m.IO("removed", nop)
	job.Wait(context.Background())

	mtx.Lock()
	assert.Len(t, reports, 1)
	mtx.Unlock()
}

func Test_Manager_UpdateConfig(t *testing.T) {
	m, _ := newTestManager(t, Config{IOPoolSize: 2, QueueCapacity: 8})
	m.UpdateConfig(Config{PreferCoroutines: false, IOPoolSize: 50, QueueCapacity: 1})
	cfg := m.Config()
	assert.False(t, cfg.PreferCoroutines)
	assert.Equal(t, 2, cfg.IOPoolSize)
	assert.Equal(t, 8, cfg.QueueCapacity)

	job, err := m.Compute("crunch", nop)
	require.NoError(t, err)
	assert.Equal(t, MODE_THREAD, job.Mode())
	assert.Equal(t, PRIORITY_LOW, job.Priority())

	m.ResetConfig()
	assert.True(t, m.Config().PreferCoroutines)
	job, _ = m.Compute("crunch2", nop)
	assert.Equal(t, MODE_COROUTINE, job.Mode())
	waitDone(t, job)
}

func Test_Manager_Logging(t *testing.T) {
	m, fl := newTestManager(t, DefaultConfig())
	job, _ := m.IO("logged", nop)
	job.Wait(context.Background())
	assert.True(t, fl.Has(LOG_MODULE_INFO, "TaskManager initialized"))
	assert.True(t, fl.Has(LOG_MODULE_INFO, "logged completed"))

	cfg := m.Config()
	cfg.EnableLogging = false
	m.UpdateConfig(cfg)
	job, _ = m.IO("quiet", nop)
	job.Wait(context.Background())
	assert.False(t, fl.Has(LOG_MODULE_INFO, "quiet"))
}

func Test_Manager_StatsString(t *testing.T) {
	m := NewManager(WithDiagLogger(zap.NewNop()))
	s := m.Stats().String()
	assert.Contains(t, s, "TaskManager Stats:")
	assert.Contains(t, s, "  Initialized: false")
	assert.Contains(t, s, "  Pools (task/io/compute): stopped/stopped/stopped")
}
