package task

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// lane runs posted callbacks one at a time in submission order
type lane struct {
	p      *pool
	diag   *zap.Logger
	mtx    sync.Mutex
	closed bool
	timers map[*time.Timer]struct{}
}

func newLane(capacity int, diag *zap.Logger) *lane {
	return &lane{
		p:      newPool("Main", 1, capacity),
		diag:   diag,
		timers: map[*time.Timer]struct{}{},
	}
}

func (l *lane) post(fn func()) error {
	return l.p.submit(func() {
		if err := callSafe(fn); err != nil {
			l.diag.Error("posted callback failed", zap.Error(err))
		}
	})
}

// postDelayed schedules fn after d; timers still pending at shutdown never fire
func (l *lane) postDelayed(fn func(), d time.Duration) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if l.closed {
		return ErrClosed
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		l.mtx.Lock()
		delete(l.timers, t)
		closed := l.closed
		l.mtx.Unlock()
		if closed {
			return
		}
		if err := l.post(fn); err != nil {
			l.diag.Warn("delayed callback dropped", zap.Duration("delay", d), zap.Error(err))
		}
	})
	l.timers[t] = struct{}{}
	return nil
}

func (l *lane) pending() int {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return len(l.timers)
}

func (l *lane) shutdown() {
	l.mtx.Lock()
	l.closed = true
	for t := range l.timers {
		t.Stop()
	}
	clear(l.timers)
	l.mtx.Unlock()
	l.p.shutdown()
}
