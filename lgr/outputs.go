package lgr

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/abyssdigger/toolbox/internal/diag"
)

// Sink receives every message of an enabled module. Accept may be called
// concurrently from many goroutines. Cleanup releases resources and is called
// once when the sink leaves the registry.
//
// Sinks are compared with ==, so the dynamic type must be comparable; pointer
// types are the usual choice. Add rejects other types with ErrIncomparableSink.
type Sink interface {
	Accept(module, message string) error
	Cleanup() error
}

// OutputRegistry keeps up to MAX_OUTPUTS sinks in registration order and
// fans messages out to them. A sink that fails or panics is isolated from the
// others; after MAX_EXCEPTIONS failures dispatch is switched off entirely.
type OutputRegistry struct {
	mtx        sync.Mutex
	sinks      atomic.Pointer[[]Sink]
	exceptions atomic.Int64
	diag       *zap.Logger
}

func NewOutputRegistry(diagLogger *zap.Logger) *OutputRegistry {
	r := &OutputRegistry{diag: diag.Or(diagLogger)}
	r.sinks.Store(&[]Sink{})
	return r
}

func (r *OutputRegistry) snapshot() []Sink {
	return *r.sinks.Load()
}

// Add registers a sink. Adding an already registered sink is a no-op.
func (r *OutputRegistry) Add(sink Sink) error {
	if sink == nil {
		r.diag.Error("output rejected", zap.Error(ErrNilSink))
		return ErrNilSink
	}
	if !reflect.TypeOf(sink).Comparable() {
		r.diag.Error("output rejected", zap.String("sink", fmt.Sprintf("%T", sink)), zap.Error(ErrIncomparableSink))
		return ErrIncomparableSink
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	old := r.snapshot()
	for _, s := range old {
		if sameSink(s, sink) {
			return nil
		}
	}
	if len(old) >= MAX_OUTPUTS {
		r.diag.Error("output rejected", zap.String("sink", fmt.Sprintf("%T", sink)), zap.Error(ErrOutputsFull))
		return ErrOutputsFull
	}
	next := make([]Sink, len(old), len(old)+1)
	copy(next, old)
	next = append(next, sink)
	r.sinks.Store(&next)
	return nil
}

// Remove unregisters the sink and calls its Cleanup. Returns false if the
// sink was not registered.
func (r *OutputRegistry) Remove(sink Sink) bool {
	if sink == nil {
		return false
	}
	r.mtx.Lock()
	old := r.snapshot()
	idx := -1
	for i, s := range old {
		if sameSink(s, sink) {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mtx.Unlock()
		return false
	}
	next := make([]Sink, 0, len(old)-1)
	next = append(next, old[:idx]...)
	next = append(next, old[idx+1:]...)
	r.sinks.Store(&next)
	r.mtx.Unlock()
	r.cleanup(sink)
	return true
}

// sameSink is a == that survives comparable types holding incomparable values
// in interface fields.
func sameSink(a, b Sink) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// Clear removes every sink, calling Cleanup on each.
func (r *OutputRegistry) Clear() {
	r.mtx.Lock()
	old := r.snapshot()
	r.sinks.Store(&[]Sink{})
	r.mtx.Unlock()
	for _, s := range old {
		r.cleanup(s)
	}
}

func (r *OutputRegistry) cleanup(sink Sink) {
	defer func() {
		if rec := recover(); rec != nil {
			r.diag.Error("panic cleaning up output"+panicDesc(rec), zap.String("sink", fmt.Sprintf("%T", sink)))
		}
	}()
	if err := sink.Cleanup(); err != nil {
		r.diag.Warn("output cleanup failed", zap.String("sink", fmt.Sprintf("%T", sink)), zap.Error(err))
	}
}

// DispatchToAll hands the message to every sink in registration order.
// No lock is held while sinks run.
func (r *OutputRegistry) DispatchToAll(module, message string) {
	if r.exceptions.Load() >= MAX_EXCEPTIONS {
		return
	}
	for _, sink := range r.snapshot() {
		if r.exceptions.Load() >= MAX_EXCEPTIONS {
			return
		}
		if err := acceptSafe(sink, module, message); err != nil {
			if n := r.exceptions.Add(1); n == MAX_EXCEPTIONS {
				r.diag.Error("too many output failures, dispatch disabled", zap.Int64("exceptions", n))
			}
			r.diag.Warn("output failed", zap.String("sink", fmt.Sprintf("%T", sink)), zap.String("module", module), zap.Error(err))
		}
	}
}

func (r *OutputRegistry) Count() int {
	return len(r.snapshot())
}

// Exceptions is the number of sink failures seen so far.
func (r *OutputRegistry) Exceptions() int64 {
	return r.exceptions.Load()
}

// ResetExceptions re-enables dispatch after the failure limit was hit.
func (r *OutputRegistry) ResetExceptions() {
	r.exceptions.Store(0)
}

// Sinks returns a copy of the registered sinks in registration order.
func (r *OutputRegistry) Sinks() []Sink {
	old := r.snapshot()
	res := make([]Sink, len(old))
	copy(res, old)
	return res
}
