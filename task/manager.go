package task

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/abyssdigger/toolbox/internal/diag"
	"github.com/abyssdigger/toolbox/notify"
)

type managerState int32

const (
	_STATE_NEW managerState = iota
	_STATE_STARTING
	_STATE_ACTIVE
	_STATE_CLOSED
)

// Report describes a finished task; passed to OnTaskFinished listeners when
// monitoring is enabled.
type Report struct {
	Name     string
	Priority Priority
	Mode     Mode
	Err      error
	Panicked bool
	Started  time.Time
	Duration time.Duration
}

// Manager dispatches tasks to its pools, lane and scopes. It is created with
// NewManager and must be initialized once before use.
type Manager struct {
	state  atomic.Int32
	gate   sync.RWMutex // submissions hold it shared, Shutdown exclusively
	config atomic.Pointer[Config]

	ctx    context.Context
	cancel context.CancelFunc

	taskPool    *pool
	ioPool      *pool
	computePool *pool
	lane        *lane
	scopes      *ScopeRegistry
	gates       *gates
	inflight    sync.WaitGroup

	listeners *notify.Registry[Report]
	logger    Logger
	diag      *zap.Logger

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
	rejected  atomic.Int64
	running   atomic.Int64
}

type Option func(*Manager)

// WithLogger sets where task lines go (TaskManager_INFO / TaskManager_ERROR).
func WithLogger(l Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithDiagLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.diag = l }
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.diag = diag.Or(m.diag)
	m.listeners = notify.New[Report](m.diag)
	cfg := DefaultConfig()
	m.config.Store(&cfg)
	return m
}

// Initialize creates the pools and the default scope. Only the first call
// succeeds; later calls return false.
func (m *Manager) Initialize(cfg Config) bool {
	if !m.state.CompareAndSwap(int32(_STATE_NEW), int32(_STATE_STARTING)) {
		return false
	}
	cfg = cfg.normalized()
	m.config.Store(&cfg)
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.gates = newGates()
	m.taskPool = newPool(POOL_TASK, cfg.TaskPoolSize, cfg.QueueCapacity)
	m.ioPool = newPool(POOL_IO, cfg.IOPoolSize, cfg.QueueCapacity)
	m.computePool = newPool(POOL_COMPUTE, cfg.ComputePoolSize, cfg.QueueCapacity)
	m.lane = newLane(cfg.QueueCapacity, m.diag)
	m.scopes = newScopeRegistry(m.ctx, m.gates)
	m.scopes.GetOrCreate(DEFAULT_SCOPE)
	m.state.Store(int32(_STATE_ACTIVE))
	m.logInfo("TaskManager initialized: " + cfg.String())
	return true
}

func (m *Manager) IsInitialized() bool {
	return managerState(m.state.Load()) == _STATE_ACTIVE
}

func (m *Manager) IsShutdown() bool {
	return managerState(m.state.Load()) == _STATE_CLOSED
}

// admit takes the shared gate for an accepted submission; release must be
// called when the submission is registered.
func (m *Manager) admit() (release func(), err error) {
	m.gate.RLock()
	switch managerState(m.state.Load()) {
	case _STATE_ACTIVE:
		return m.gate.RUnlock, nil
	case _STATE_CLOSED:
		err = ErrClosed
	default:
		err = ErrNotInitialized
	}
	m.gate.RUnlock()
	return nil, err
}

func (m *Manager) resolveMode(mode Mode) Mode {
	if mode == MODE_THREAD || mode == MODE_COROUTINE {
		return mode
	}
	if m.config.Load().PreferCoroutines {
		return MODE_COROUTINE
	}
	return MODE_THREAD
}

func (m *Manager) poolFor(p Priority) *pool {
	switch p {
	case PRIORITY_HIGH:
		return m.taskPool
	case PRIORITY_LOW:
		return m.computePool
	}
	return m.ioPool
}

// Execute submits fn. THREAD tasks go to the pool matching priority and are
// detached; COROUTINE tasks run in the default scope and can be awaited;
// AUTO picks one by Config.PreferCoroutines. A rejected submission returns
// the finished job together with the error.
func (m *Manager) Execute(name string, priority Priority, mode Mode, fn Func) (*Job, error) {
	if fn == nil {
		return nil, ErrNilFunc
	}
	if priority >= _PRIORITY_MAX_for_checks_only {
		priority = PRIORITY_NORMAL
	}
	mode = m.resolveMode(mode)
	job := newJob(name, priority, mode)
	if mode == MODE_THREAD {
		return job, m.submitPool(func() *pool { return m.poolFor(priority) }, job, fn)
	}
	return job, m.launchScoped(m.namedScope(DEFAULT_SCOPE), job, DISPATCH_IO, fn)
}

// ExecuteThread runs fn on a pool worker regardless of configuration.
func (m *Manager) ExecuteThread(name string, priority Priority, fn Func) (*Job, error) {
	return m.Execute(name, priority, MODE_THREAD, fn)
}

// ExecuteCoroutine runs fn in the default scope under dispatcher d.
func (m *Manager) ExecuteCoroutine(name string, d Dispatch, fn Func) (*Job, error) {
	return m.ExecuteWithScope(DEFAULT_SCOPE, name, d, fn)
}

// ExecuteWithScope runs fn in the scope called scopeName. The scope is
// created when missing and replaced when it was cancelled.
func (m *Manager) ExecuteWithScope(scopeName, name string, d Dispatch, fn Func) (*Job, error) {
	if fn == nil {
		return nil, ErrNilFunc
	}
	job := newJob(name, PRIORITY_NORMAL, MODE_COROUTINE)
	return job, m.launchScoped(m.namedScope(scopeName), job, d, fn)
}

// ExecuteInScope runs fn in scope as it is; a nil scope means the default
// one. A cancelled scope finishes the job with ErrScopeInactive.
func (m *Manager) ExecuteInScope(scope *Scope, name string, d Dispatch, fn Func) (*Job, error) {
	if fn == nil {
		return nil, ErrNilFunc
	}
	resolve := m.namedScope(DEFAULT_SCOPE)
	if scope != nil {
		resolve = func() *Scope { return scope }
	}
	job := newJob(name, PRIORITY_NORMAL, MODE_COROUTINE)
	return job, m.launchScoped(resolve, job, d, fn)
}

func (m *Manager) namedScope(name string) func() *Scope {
	return func() *Scope { return m.scopes.GetOrCreate(name) }
}

func (m *Manager) IO(name string, fn Func) (*Job, error) {
	return m.Execute(name, PRIORITY_NORMAL, MODE_AUTO, fn)
}

// Compute runs CPU-bound work, limited to GOMAXPROCS when run cooperatively.
func (m *Manager) Compute(name string, fn Func) (*Job, error) {
	if m.resolveMode(MODE_AUTO) == MODE_COROUTINE {
		return m.ExecuteCoroutine(name, DISPATCH_DEFAULT, fn)
	}
	return m.Execute(name, PRIORITY_LOW, MODE_THREAD, fn)
}

func (m *Manager) High(name string, fn Func) (*Job, error) {
	return m.Execute(name, PRIORITY_HIGH, MODE_AUTO, fn)
}

func (m *Manager) Low(name string, fn Func) (*Job, error) {
	return m.Execute(name, PRIORITY_LOW, MODE_AUTO, fn)
}

// Main runs fn on the serial lane, after everything posted before it.
func (m *Manager) Main(name string, fn Func) (*Job, error) {
	if fn == nil {
		return nil, ErrNilFunc
	}
	job := newJob(name, PRIORITY_HIGH, MODE_COROUTINE)
	return job, m.submitPool(func() *pool { return m.lane.p }, job, fn)
}

// Post queues fn on the serial lane. A panicking callback is reported and
// does not stop the lane.
func (m *Manager) Post(fn func()) error {
	if fn == nil {
		return ErrNilFunc
	}
	release, err := m.admit()
	if err != nil {
		return err
	}
	defer release()
	return m.lane.post(fn)
}

// PostDelayed queues fn on the serial lane after d. Pending callbacks are
// dropped by Shutdown.
func (m *Manager) PostDelayed(fn func(), d time.Duration) error {
	if fn == nil {
		return ErrNilFunc
	}
	release, err := m.admit()
	if err != nil {
		return err
	}
	defer release()
	return m.lane.postDelayed(fn, d)
}

func (m *Manager) accept(job *Job) {
	m.submitted.Add(1)
	m.inflight.Add(1)
	job.onFinish = func(j *Job) {
		m.record(j)
		m.inflight.Done()
	}
}

func (m *Manager) refuse(job *Job, err error) error {
	job.onFinish = nil
	m.submitted.Add(-1)
	m.inflight.Done()
	m.rejected.Add(1)
	job.finish(err)
	m.logErr(err, job.name+" rejected")
	return err
}

// submitPool and launchScoped resolve their target only after admission,
// the pools and scopes do not exist before Initialize.
func (m *Manager) submitPool(target func() *pool, job *Job, fn Func) error {
	release, err := m.admit()
	if err != nil {
		job.finish(err)
		return err
	}
	defer release()
	m.accept(job)
	err = target().submit(func() {
		ctx, cancel := context.WithCancel(m.ctx)
		job.begin(cancel)
		job.finish(runSafe(ctx, m.track(fn)))
	})
	if err != nil {
		return m.refuse(job, err)
	}
	return nil
}

func (m *Manager) launchScoped(target func() *Scope, job *Job, d Dispatch, fn Func) error {
	release, err := m.admit()
	if err != nil {
		job.finish(err)
		return err
	}
	defer release()
	m.accept(job)
	if err := target().launch(job, d, m.track(fn)); err != nil {
		return m.refuse(job, err)
	}
	return nil
}

func (m *Manager) track(fn Func) Func {
	return func(ctx context.Context) error {
		m.running.Add(1)
		defer m.running.Add(-1)
		return fn(ctx)
	}
}

func (m *Manager) record(j *Job) {
	err := j.err
	switch {
	case err == nil:
		m.completed.Add(1)
		m.logInfo(j.name + " completed")
	case errors.Is(err, context.Canceled):
		m.cancelled.Add(1)
		m.logInfo(j.name + " cancelled")
	default:
		m.failed.Add(1)
		m.logErr(err, j.name+" failed")
	}
	if m.config.Load().EnableMonitoring {
		m.listeners.Notify(Report{
			Name:     j.name,
			Priority: j.priority,
			Mode:     j.mode,
			Err:      err,
			Panicked: errors.Is(err, ErrPanicked),
			Started:  j.started,
			Duration: j.finished.Sub(j.started),
		})
	}
}

func (m *Manager) logInfo(msg string) {
	if m.logger == nil || !m.config.Load().EnableLogging {
		return
	}
	if err := m.logger.Log_with_err(LOG_MODULE_INFO, msg); err != nil {
		m.diag.Debug("task log line dropped", zap.String("message", msg), zap.Error(err))
	}
}

func (m *Manager) logErr(cause error, msg string) {
	if m.logger == nil || !m.config.Load().EnableLogging {
		return
	}
	if err := m.logger.LogErr_with_err(LOG_MODULE_ERROR, cause, msg); err != nil {
		m.diag.Debug("task log line dropped", zap.String("message", msg), zap.Error(err))
	}
}

// Scope returns the active scope called name, creating it if needed.
func (m *Manager) Scope(name string) (*Scope, error) {
	release, err := m.admit()
	if err != nil {
		return nil, err
	}
	defer release()
	return m.scopes.GetOrCreate(name), nil
}

// CancelScope cancels the named scope; false if it does not exist.
func (m *Manager) CancelScope(name string) bool {
	if managerState(m.state.Load()) != _STATE_ACTIVE {
		return false
	}
	return m.scopes.Cancel(name)
}

// Shutdown stops accepting work, cancels every scope and the pool context,
// and waits for running tasks until ctx is done. Tasks already queued on a
// pool still run with a cancelled context. Safe to call more than once.
func (m *Manager) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		switch managerState(m.state.Load()) {
		case _STATE_CLOSED:
			return nil
		case _STATE_NEW:
			if m.state.CompareAndSwap(int32(_STATE_NEW), int32(_STATE_CLOSED)) {
				return nil
			}
			continue
		case _STATE_STARTING:
			runtime.Gosched()
			continue
		}
		if m.state.CompareAndSwap(int32(_STATE_ACTIVE), int32(_STATE_CLOSED)) {
			break
		}
	}
	// wait out submissions admitted before the state switch
	m.gate.Lock()
	m.gate.Unlock() //nolint:staticcheck

	m.logInfo("TaskManager shutting down")
	m.scopes.ShutdownAll()
	m.lane.shutdown()
	m.taskPool.shutdown()
	m.ioPool.shutdown()
	m.computePool.shutdown()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.diag.Warn("task shutdown timed out", zap.Int64("running", m.running.Load()))
		return ctx.Err()
	}
	for _, p := range []*pool{m.lane.p, m.taskPool, m.ioPool, m.computePool} {
		if err := p.wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) Config() Config { return *m.config.Load() }

// UpdateConfig replaces the runtime flags. Pools are never resized after
// Initialize, so size fields keep their initial values.
func (m *Manager) UpdateConfig(cfg Config) {
	cur := m.config.Load()
	if cfg.IOPoolSize != cur.IOPoolSize || cfg.ComputePoolSize != cur.ComputePoolSize ||
		cfg.TaskPoolSize != cur.TaskPoolSize || cfg.QueueCapacity != cur.QueueCapacity {
		m.diag.Info("pool sizes are fixed after initialization, keeping current values",
			zap.Stringer("requested", cfg), zap.Stringer("current", *cur))
	}
	cfg.IOPoolSize = cur.IOPoolSize
	cfg.ComputePoolSize = cur.ComputePoolSize
	cfg.TaskPoolSize = cur.TaskPoolSize
	cfg.QueueCapacity = cur.QueueCapacity
	m.config.Store(&cfg)
}

func (m *Manager) ResetConfig() { m.UpdateConfig(DefaultConfig()) }

// OnTaskFinished registers fn for task reports.
func (m *Manager) OnTaskFinished(fn func(Report)) notify.Handle {
	return m.listeners.Register(fn)
}

func (m *Manager) RemoveListener(h notify.Handle) bool {
	return m.listeners.Unregister(h)
}
