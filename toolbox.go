// Package toolbox bundles the module-gated logger (lgr) and the task manager
// (task) into one handle built from a Config.
//
//	cfg, err := toolbox.LoadConfig("toolbox.hcl")
//	tb, err := toolbox.New(ctx, cfg)
//	defer tb.Close(context.Background())
//	tb.Logger().Log("App", "started")
//	tb.Tasks().IO("fetch", fetch)
package toolbox

import (
	"context"
	"io"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/abyssdigger/toolbox/internal/diag"
	"github.com/abyssdigger/toolbox/lgr"
	"github.com/abyssdigger/toolbox/lgr/remotesink"
	"github.com/abyssdigger/toolbox/lgr/sqlsink"
	"github.com/abyssdigger/toolbox/task"
)

const (
	DEFAULT_REMOTE_RETRIES = 3
	DEFAULT_REMOTE_DELAY   = 100 * time.Millisecond
)

type Toolbox struct {
	cfg     Config
	diag    *zap.Logger
	log     *lgr.Dispatcher
	tasks   *task.Manager
	sql     *sqlsink.Sink
	remote  *lgr.AsyncSink
	closed  atomic.Bool
	console io.Writer
}

type Option func(*Toolbox)

// WithDiagLogger replaces the diagnostic logger built from Config.Diag.
func WithDiagLogger(l *zap.Logger) Option {
	return func(tb *Toolbox) { tb.diag = l }
}

// WithConsole sets the console writer (os.Stdout by default).
func WithConsole(w io.Writer) Option {
	return func(tb *Toolbox) { tb.console = w }
}

// New builds and initializes the logger and the task manager. Optional
// outputs that cannot be reached (remote server) are reported to the
// diagnostic logger and skipped; local ones (SQLite, filter script) fail New.
func New(ctx context.Context, cfg Config, opts ...Option) (*Toolbox, error) {
	cfg = cfg.withDefaults()
	tb := &Toolbox{cfg: cfg, console: os.Stdout}
	for _, opt := range opts {
		if opt != nil {
			opt(tb)
		}
	}
	if tb.diag == nil {
		tb.diag = newDiag(cfg.Diag)
	}

	tb.log = lgr.New(lgr.WithDiagLogger(tb.diag), lgr.WithConsole(tb.console))
	tb.log.Initialize(cfg.Log.lgrConfig())
	if err := tb.addOutputs(ctx); err != nil {
		tb.log.ClearOutputs()
		return nil, err
	}

	modules := append([]string{task.LOG_MODULE_INFO, task.LOG_MODULE_ERROR}, cfg.Log.Modules...)
	if err := tb.log.RegisterModules(modules...); err != nil {
		tb.diag.Warn("some modules are not registered", zap.Error(err))
	}
	tb.log.EnableModules(modules...)

	tb.tasks = task.NewManager(task.WithLogger(tb.log), task.WithDiagLogger(tb.diag))
	tb.tasks.Initialize(*cfg.Task)
	return tb, nil
}

func newDiag(dc *DiagConfig) *zap.Logger {
	level := zapcore.InfoLevel
	if dc.Level != "" {
		if l, err := zapcore.ParseLevel(dc.Level); err == nil {
			level = l
		}
	}
	opts := []diag.Option{diag.WithLevel(level)}
	if dc.File != "" {
		opts = append(opts, diag.WithFile(dc.File, dc.MaxSizeMB, dc.MaxBackups))
	}
	return diag.New(os.Stderr, opts...)
}

func (tb *Toolbox) addOutputs(ctx context.Context) error {
	lc := tb.cfg.Log
	if lc.Console && lc.Filter != "" {
		pred, err := lgr.StarlarkPredicate(lc.Filter, nil, tb.diag)
		if err != nil {
			return err
		}
		if err := tb.log.AddOutput(lgr.NewConditionalSink(lgr.NewConsoleSink(tb.console), pred)); err != nil {
			return err
		}
	}
	if sc := tb.cfg.SQLite; sc != nil {
		s, err := sqlsink.Open(sc.Dir)
		if err != nil {
			return err
		}
		if err := tb.log.AddOutput(s); err != nil {
			s.Cleanup()
			return err
		}
		tb.sql = s
	}
	if rc := tb.cfg.Remote; rc != nil && rc.URL != "" {
		tb.addRemote(ctx, rc)
	}
	return nil
}

func (tb *Toolbox) addRemote(ctx context.Context, rc *RemoteConfig) {
	rs, err := remotesink.Dial(ctx, rc.URL, remotesink.Options{
		Namespace:          rc.Namespace,
		Event:              rc.Event,
		InsecureSkipVerify: rc.Insecure,
		ConnectTimeout:     time.Duration(rc.TimeoutMS) * time.Millisecond,
		Diag:               tb.diag,
	})
	if err != nil {
		tb.diag.Warn("remote output is not connected", zap.String("url", rc.URL), zap.Error(err))
		return
	}
	retries := rc.Retries
	if retries <= 0 {
		retries = DEFAULT_REMOTE_RETRIES
	}
	as := lgr.NewAsyncSink(lgr.NewRetrySink(rs, retries, DEFAULT_REMOTE_DELAY), rc.QueueLength, tb.diag)
	if err := tb.log.AddOutput(as); err != nil {
		tb.diag.Warn("remote output is not added", zap.Error(err))
		as.Cleanup()
		return
	}
	tb.remote = as
}

func (tb *Toolbox) Logger() *lgr.Dispatcher { return tb.log }
func (tb *Toolbox) Tasks() *task.Manager    { return tb.tasks }
func (tb *Toolbox) Diag() *zap.Logger       { return tb.diag }
func (tb *Toolbox) Config() Config          { return tb.cfg }

// SQL is the SQLite output, nil when not configured.
func (tb *Toolbox) SQL() *sqlsink.Sink { return tb.sql }

// Client is a shortcut for Logger().Client(module).
func (tb *Toolbox) Client(module string) *lgr.ModuleClient {
	return tb.log.Client(module)
}

// Close shuts the task manager down (bounded by ctx) and then cleans up every
// output. Only the first call does anything.
func (tb *Toolbox) Close(ctx context.Context) error {
	if !tb.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := tb.tasks.Shutdown(ctx)
	tb.log.ClearOutputs()
	tb.diag.Sync()
	return err
}

// Stats renders the logger and task statistics.
func (tb *Toolbox) Stats() string {
	return tb.log.Stats().String() + "\n" + tb.tasks.Stats().String()
}
