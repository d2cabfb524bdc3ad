package task

import (
	"context"
	"sync"
	"sync/atomic"
)

// pool is a fixed set of workers ranging over a bounded queue. Submissions
// never block: a full queue rejects.
type pool struct {
	name    string
	queue   chan func()
	mtx     sync.RWMutex
	closed  bool
	workers sync.WaitGroup
	busy    atomic.Int32
	size    int
}

func newPool(name string, workers, capacity int) *pool {
	if workers <= 0 {
		workers = 1
	}
	if capacity < 0 {
		capacity = 0
	}
	p := &pool{
		name:  name,
		queue: make(chan func(), capacity),
		size:  workers,
	}
	for range workers {
		p.workers.Go(p.procced)
	}
	return p
}

func (p *pool) procced() {
	for run := range p.queue {
		p.busy.Add(1)
		callSafe(run)
		p.busy.Add(-1)
	}
}

func (p *pool) submit(run func()) error {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- run:
		return nil
	default:
		return ErrRejected
	}
}

// shutdown stops accepting work; queued items still run
func (p *pool) shutdown() {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
}

// wait blocks until all workers exit or ctx is done
func (p *pool) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pool) alive() bool {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return !p.closed
}

func (p *pool) queued() int { return len(p.queue) }
