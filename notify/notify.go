// Package notify is a small listener registry with explicit handles.
// Listeners stay registered until Unregister is called with their handle;
// nothing is dropped behind the caller's back.
package notify

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/abyssdigger/toolbox/internal/diag"
)

// Handle identifies a registered listener. The zero Handle is never issued.
type Handle uint64

type entry[T any] struct {
	id Handle
	fn func(T)
}

// Registry keeps listeners in registration order. Notify calls them on a
// snapshot, so listeners may register or unregister from inside a callback.
type Registry[T any] struct {
	mtx       sync.Mutex
	seq       Handle
	listeners []entry[T]
	diag      *zap.Logger
}

func New[T any](diagLogger *zap.Logger) *Registry[T] {
	return &Registry[T]{diag: diag.Or(diagLogger)}
}

// Register adds fn and returns its handle; a nil fn returns the zero handle.
func (r *Registry[T]) Register(fn func(T)) Handle {
	if fn == nil {
		return 0
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.seq++
	r.listeners = append(r.listeners, entry[T]{r.seq, fn})
	return r.seq
}

// Unregister removes the listener; false if the handle is unknown.
func (r *Registry[T]) Unregister(h Handle) bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	idx := slices.IndexFunc(r.listeners, func(e entry[T]) bool { return e.id == h })
	if idx < 0 {
		return false
	}
	r.listeners = slices.Delete(slices.Clone(r.listeners), idx, idx+1)
	return true
}

func (r *Registry[T]) Len() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return len(r.listeners)
}

func (r *Registry[T]) Clear() {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.listeners = nil
}

// Notify passes v to every listener. A panicking listener is reported and
// does not prevent the others from being called. The joined panics are
// returned.
func (r *Registry[T]) Notify(v T) error {
	r.mtx.Lock()
	snapshot := r.listeners
	r.mtx.Unlock()
	var errs []error
	for _, e := range snapshot {
		if err := call(e.fn, v); err != nil {
			r.diag.Error("listener failed", zap.Uint64("handle", uint64(e.id)), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func call[T any](fn func(T), v T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in listener: %v", r)
		}
	}()
	fn(v)
	return nil
}
