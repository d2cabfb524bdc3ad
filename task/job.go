package task

import (
	"context"
	"sync"
	"time"
)

// Job is the handle of a submitted task.
type Job struct {
	name     string
	priority Priority
	mode     Mode
	detached bool

	done   chan struct{}
	once   sync.Once
	err    error
	cancel context.CancelFunc

	mtx       sync.Mutex
	submitted time.Time
	started   time.Time
	finished  time.Time

	onFinish func(*Job)
}

func newJob(name string, priority Priority, mode Mode) *Job {
	return &Job{
		name:      name,
		priority:  priority,
		mode:      mode,
		detached:  mode == MODE_THREAD,
		done:      make(chan struct{}),
		submitted: time.Now(),
	}
}

func (j *Job) Name() string       { return j.name }
func (j *Job) Priority() Priority { return j.priority }
func (j *Job) Mode() Mode         { return j.mode }

// Detached reports whether the job was started on a pool and cannot be awaited.
func (j *Job) Detached() bool { return j.detached }

// Done is closed when the job has finished, whatever the outcome.
func (j *Job) Done() <-chan struct{} { return j.done }

// Err is the job outcome; nil until Done is closed.
func (j *Job) Err() error {
	select {
	case <-j.done:
		return j.err
	default:
		return nil
	}
}

// Wait blocks until the job finishes or ctx is done. Detached jobs return
// ErrDetached immediately; use Done to observe them.
func (j *Job) Wait(ctx context.Context) error {
	if j.detached {
		return ErrDetached
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel cancels the context the job runs with. No-op once it has finished
// or if it never started.
func (j *Job) Cancel() {
	j.mtx.Lock()
	cancel := j.cancel
	j.mtx.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Duration of the run; zero until finished.
func (j *Job) Duration() time.Duration {
	j.mtx.Lock()
	defer j.mtx.Unlock()
	if j.finished.IsZero() || j.started.IsZero() {
		return 0
	}
	return j.finished.Sub(j.started)
}

func (j *Job) begin(cancel context.CancelFunc) {
	j.mtx.Lock()
	j.cancel = cancel
	j.started = time.Now()
	j.mtx.Unlock()
}

// finish records err, calls onFinish and then closes done, once
func (j *Job) finish(err error) {
	j.once.Do(func() {
		j.mtx.Lock()
		j.err = err
		j.finished = time.Now()
		if j.started.IsZero() {
			j.started = j.finished
		}
		cancel := j.cancel
		j.mtx.Unlock()
		if cancel != nil {
			cancel()
		}
		if j.onFinish != nil {
			callSafe(func() { j.onFinish(j) })
		}
		close(j.done)
	})
}
