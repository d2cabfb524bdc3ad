package task

import (
	"context"
	"fmt"
)

// runSafe calls fn and turns a panic into an ErrPanicked error. A nil ctx is
// treated as context.Background().
func runSafe(ctx context.Context, fn Func) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()
	return fn(ctx)
}

// callSafe runs a plain callback, swallowing its panic into an error
func callSafe(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()
	fn()
	return nil
}
