package task

import (
	"context"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// gates limit how many cooperative tasks of each Dispatch run at once
type gates struct {
	io  *semaphore.Weighted
	def *semaphore.Weighted
}

func newGates() *gates {
	return &gates{
		io:  semaphore.NewWeighted(DEFAULT_IO_PARALLELISM),
		def: semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}
}

func (g *gates) acquire(ctx context.Context, d Dispatch) (func(), error) {
	var sem *semaphore.Weighted
	switch d {
	case DISPATCH_IO:
		sem = g.io
	case DISPATCH_DEFAULT:
		sem = g.def
	default:
		return func() {}, ctx.Err()
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { sem.Release(1) }, nil
}

// Scope groups cooperative tasks under one cancellable context. A failing
// task does not cancel its siblings; Cancel stops all of them.
type Scope struct {
	name   string
	ctx    context.Context
	cancel context.CancelFunc
	gates  *gates

	mtx      sync.Mutex
	tasks    sync.WaitGroup
	launched atomic.Int64
}

// NewScope creates a standalone scope derived from parent.
func NewScope(parent context.Context, name string) *Scope {
	return newScope(parent, name, newGates())
}

func newScope(parent context.Context, name string, g *gates) *Scope {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Scope{name: name, ctx: ctx, cancel: cancel, gates: g}
}

func (s *Scope) Name() string { return s.name }

// Context is cancelled together with the scope.
func (s *Scope) Context() context.Context { return s.ctx }

func (s *Scope) IsActive() bool { return s.ctx.Err() == nil }

// Launched is the number of tasks ever started in this scope.
func (s *Scope) Launched() int64 { return s.launched.Load() }

// Cancel cancels every running task of the scope and refuses new ones.
func (s *Scope) Cancel() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.cancel()
}

// Wait blocks until every task launched so far has finished or ctx is done.
func (s *Scope) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Launch starts fn as a cooperative task. On an inactive scope the returned
// job is already finished with ErrScopeInactive.
func (s *Scope) Launch(name string, d Dispatch, fn Func) *Job {
	job := newJob(name, PRIORITY_NORMAL, MODE_COROUTINE)
	if fn == nil {
		job.finish(ErrNilFunc)
		return job
	}
	if err := s.launch(job, d, fn); err != nil {
		job.finish(err)
	}
	return job
}

// launch starts the goroutine for job; the caller owns the job on error
func (s *Scope) launch(job *Job, d Dispatch, fn Func) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.ctx.Err() != nil {
		return ErrScopeInactive
	}
	s.launched.Add(1)
	s.tasks.Go(func() {
		ctx, cancel := context.WithCancel(s.ctx)
		job.begin(cancel)
		release, err := s.gates.acquire(ctx, d)
		if err != nil {
			job.finish(err)
			return
		}
		defer release()
		job.finish(runSafe(ctx, fn))
	})
	return nil
}

// ScopeRegistry holds named scopes sharing one parent context.
type ScopeRegistry struct {
	mtx    sync.Mutex
	parent context.Context
	gates  *gates
	scopes map[string]*Scope
}

func NewScopeRegistry(parent context.Context) *ScopeRegistry {
	return newScopeRegistry(parent, newGates())
}

func newScopeRegistry(parent context.Context, g *gates) *ScopeRegistry {
	if parent == nil {
		parent = context.Background()
	}
	return &ScopeRegistry{parent: parent, gates: g, scopes: map[string]*Scope{}}
}

// GetOrCreate returns the active scope called name, replacing a cancelled
// one. An empty name means DEFAULT_SCOPE.
func (r *ScopeRegistry) GetOrCreate(name string) *Scope {
	if name == "" {
		name = DEFAULT_SCOPE
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if s, ok := r.scopes[name]; ok && s.IsActive() {
		return s
	}
	s := newScope(r.parent, name, r.gates)
	r.scopes[name] = s
	return s
}

func (r *ScopeRegistry) Get(name string) (*Scope, bool) {
	if name == "" {
		name = DEFAULT_SCOPE
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	s, ok := r.scopes[name]
	return s, ok
}

// Cancel cancels and forgets the named scope; false if it is unknown.
func (r *ScopeRegistry) Cancel(name string) bool {
	if name == "" {
		name = DEFAULT_SCOPE
	}
	r.mtx.Lock()
	s, ok := r.scopes[name]
	delete(r.scopes, name)
	r.mtx.Unlock()
	if ok {
		s.Cancel()
	}
	return ok
}

// ShutdownAll cancels every scope, empties the registry and returns the
// cancelled scopes so the caller may wait for them.
func (r *ScopeRegistry) ShutdownAll() []*Scope {
	r.mtx.Lock()
	all := make([]*Scope, 0, len(r.scopes))
	for _, s := range r.scopes {
		all = append(all, s)
	}
	clear(r.scopes)
	r.mtx.Unlock()
	for _, s := range all {
		s.Cancel()
	}
	return all
}

// Names of the registered scopes, sorted.
func (r *ScopeRegistry) Names() []string {
	r.mtx.Lock()
	names := make([]string, 0, len(r.scopes))
	for n := range r.scopes {
		names = append(names, n)
	}
	r.mtx.Unlock()
	slices.Sort(names)
	return names
}

func (r *ScopeRegistry) Len() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return len(r.scopes)
}
