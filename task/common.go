// Package task runs application work on bounded worker pools or as
// cooperative goroutines grouped in cancellable named scopes.
//
// A Manager owns three fixed-size pools ("Task", "IO", "Compute"), a serial
// lane for ordered work, and a registry of scopes. Work is a Func; failures
// and panics are caught, counted and logged, and reach the caller only
// through Job.Wait.
package task

import (
	"context"
	"errors"
	"strconv"
)

// Func is a unit of work. It should return promptly once ctx is done.
type Func func(ctx context.Context) error

type Priority byte

const (
	PRIORITY_HIGH   Priority = iota // "Task" pool
	PRIORITY_NORMAL                 // "IO" pool
	PRIORITY_LOW                    // "Compute" pool
	_PRIORITY_MAX_for_checks_only
)

func (p Priority) String() string {
	switch p {
	case PRIORITY_HIGH:
		return "HIGH"
	case PRIORITY_NORMAL:
		return "NORMAL"
	case PRIORITY_LOW:
		return "LOW"
	}
	return "Priority(" + strconv.Itoa(int(p)) + ")"
}

type Mode byte

const (
	MODE_AUTO      Mode = iota // follows Config.PreferCoroutines
	MODE_THREAD                // pool worker, detached job
	MODE_COROUTINE             // goroutine in the default scope, awaitable job
)

func (m Mode) String() string {
	switch m {
	case MODE_AUTO:
		return "AUTO"
	case MODE_THREAD:
		return "THREAD"
	case MODE_COROUTINE:
		return "COROUTINE"
	}
	return "Mode(" + strconv.Itoa(int(m)) + ")"
}

// Dispatch selects the concurrency limit of a cooperative task.
type Dispatch byte

const (
	DISPATCH_IO         Dispatch = iota // up to DEFAULT_IO_PARALLELISM tasks
	DISPATCH_DEFAULT                    // up to GOMAXPROCS tasks
	DISPATCH_UNCONFINED                 // no limit
)

func (d Dispatch) String() string {
	switch d {
	case DISPATCH_IO:
		return "IO"
	case DISPATCH_DEFAULT:
		return "Default"
	case DISPATCH_UNCONFINED:
		return "Unconfined"
	}
	return "Dispatch(" + strconv.Itoa(int(d)) + ")"
}

const (
	DEFAULT_IO_PARALLELISM = 64
	DEFAULT_SCOPE          = "default"

	POOL_TASK    = "Task"
	POOL_IO      = "IO"
	POOL_COMPUTE = "Compute"

	LOG_MODULE_INFO  = "TaskManager_INFO"
	LOG_MODULE_ERROR = "TaskManager_ERROR"
)

var (
	ErrNotInitialized = errors.New("task: manager is not initialized")
	ErrClosed         = errors.New("task: manager is shut down")
	ErrRejected       = errors.New("task: queue is full, task rejected")
	ErrPanicked       = errors.New("task: run panicked")
	ErrDetached       = errors.New("task: detached job cannot be awaited")
	ErrScopeInactive  = errors.New("task: scope is cancelled")
	ErrNilFunc        = errors.New("task: nil func")
)

// Logger receives the manager's task log lines. *lgr.Dispatcher satisfies it.
type Logger interface {
	Log_with_err(module, message string) error
	LogErr_with_err(module string, err error, message string) error
}
