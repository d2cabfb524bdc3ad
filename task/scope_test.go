package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"
)

func Test_Scope_Launch(t *testing.T) {
	s := NewScope(context.Background(), "standalone")
	assert.Equal(t, "standalone", s.Name())

	const n = 10
	var barrier sync.WaitGroup
	barrier.Add(n)
	jobs := make([]*Job, 0, n)
	for range n {
		jobs = append(jobs, s.Launch("w", DISPATCH_UNCONFINED, func(context.Context) error {
			barrier.Done()
			barrier.Wait()
			return nil
		}))
	}
	require.NoError(t, s.Wait(context.Background()))
	for _, j := range jobs {
		assert.NoError(t, j.Wait(context.Background()))
	}
	assert.Equal(t, int64(n), s.Launched())

	assert.ErrorIs(t, s.Launch("nil", DISPATCH_IO, nil).Err(), ErrNilFunc)
}

func Test_Scope_Cancel(t *testing.T) {
	s := NewScope(context.Background(), "c")
	running := make(chan struct{})
	job := s.Launch("wait", DISPATCH_IO, func(ctx context.Context) error {
		close(running)
		<-ctx.Done()
		return ctx.Err()
	})
	<-running
	s.Cancel()
	assert.False(t, s.IsActive())
	assert.ErrorIs(t, job.Wait(context.Background()), context.Canceled)

	late := s.Launch("late", DISPATCH_IO, nop)
	assert.ErrorIs(t, late.Wait(context.Background()), ErrScopeInactive)
}

func Test_Scope_SiblingFailure(t *testing.T) {
	s := NewScope(context.Background(), "sup")
	bad := s.Launch("bad", DISPATCH_DEFAULT, func(context.Context) error { panic("down") })
	assert.ErrorIs(t, bad.Wait(context.Background()), ErrPanicked)
	good := s.Launch("good", DISPATCH_DEFAULT, nop)
	assert.NoError(t, good.Wait(context.Background()))
	assert.True(t, s.IsActive())
}

func Test_Job_Cancel(t *testing.T) {
	s := NewScope(context.Background(), "j")
	running := make(chan struct{})
	job := s.Launch("one", DISPATCH_IO, func(ctx context.Context) error {
		close(running)
		<-ctx.Done()
		return ctx.Err()
	})
	<-running
	job.Cancel()
	assert.ErrorIs(t, job.Wait(context.Background()), context.Canceled)
	assert.True(t, s.IsActive(), "cancelling one job leaves the scope alive")
	assert.Greater(t, job.Duration(), time.Duration(0))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	hang := s.Launch("hang", DISPATCH_IO, func(context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, hang.Wait(ctx), context.DeadlineExceeded)
}

func Test_Gates(t *testing.T) {
	g := &gates{io: semaphore.NewWeighted(1), def: semaphore.NewWeighted(1)}
	release, err := g.acquire(context.Background(), DISPATCH_IO)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = g.acquire(ctx, DISPATCH_IO)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = g.acquire(context.Background(), DISPATCH_UNCONFINED)
	assert.NoError(t, err)

	release()
	release2, err := g.acquire(context.Background(), DISPATCH_IO)
	require.NoError(t, err)
	release2()
}

func Test_ScopeRegistry(t *testing.T) {
	r := NewScopeRegistry(context.Background())
	a := r.GetOrCreate("")
	assert.Equal(t, DEFAULT_SCOPE, a.Name())
	assert.Same(t, a, r.GetOrCreate(DEFAULT_SCOPE))

	b := r.GetOrCreate("b")
	b.Cancel()
	b2 := r.GetOrCreate("b")
	assert.NotSame(t, b, b2)
	assert.Equal(t, []string{"b", DEFAULT_SCOPE}, r.Names())

	_, ok := r.Get("missing")
	assert.False(t, ok)
	assert.False(t, r.Cancel("missing"))

	all := r.ShutdownAll()
	assert.Len(t, all, 2)
	for _, s := range all {
		assert.False(t, s.IsActive())
	}
	assert.Zero(t, r.Len())
}

func Test_Enums_String(t *testing.T) {
	assert.Equal(t, "HIGH", PRIORITY_HIGH.String())
	assert.Equal(t, "Priority(9)", Priority(9).String())
	assert.Equal(t, "COROUTINE", MODE_COROUTINE.String())
	assert.Equal(t, "Unconfined", DISPATCH_UNCONFINED.String())
}
