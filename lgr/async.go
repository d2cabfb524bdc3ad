package lgr

/*
AsyncSink moves the work of a slow sink off the logging goroutine. Messages
are queued into a bounded channel and a single background goroutine hands
them to the wrapped sink in order. Errors and panics of the wrapped sink are
reported to the diagnostics logger, the processor goroutine keeps running.

Stop closes the queue; Wait blocks until the queue is drained. Messages
accepted after Stop are rejected with ErrSinkStopped.
*/

import (
	"sync"

	"go.uber.org/zap"

	"github.com/abyssdigger/toolbox/internal/diag"
)

type asyncMessage struct {
	module  string
	message string
}

type AsyncSink struct {
	next    Sink
	diag    *zap.Logger
	channel chan asyncMessage
	statMtx sync.RWMutex // guards stopped and channel close
	stopped bool
	waitEnd sync.WaitGroup
}

// NewAsyncSink starts the processor goroutine. buffsize <= 0 means
// DEFAULT_MSG_BUFF.
func NewAsyncSink(next Sink, buffsize int, diagLogger *zap.Logger) *AsyncSink {
	if buffsize <= 0 {
		buffsize = DEFAULT_MSG_BUFF
	}
	as := &AsyncSink{
		next:    next,
		diag:    diag.Or(diagLogger),
		channel: make(chan asyncMessage, buffsize),
	}
	as.waitEnd.Go(as.procced)
	return as
}

// Accept queues the message, blocking while the queue is full.
func (as *AsyncSink) Accept(module, message string) error {
	as.statMtx.RLock()
	defer as.statMtx.RUnlock()
	if as.stopped {
		return ErrSinkStopped
	}
	as.channel <- asyncMessage{module, message}
	return nil
}

func (as *AsyncSink) procced() {
	for msg := range as.channel {
		if as.next == nil {
			continue
		}
		if err := acceptSafe(as.next, msg.module, msg.message); err != nil {
			as.diag.Warn("async output failed", zap.String("module", msg.module), zap.Error(err))
		}
	}
}

// Stop closes the queue. Queued messages are still delivered.
func (as *AsyncSink) Stop() {
	as.statMtx.Lock()
	defer as.statMtx.Unlock()
	if !as.stopped {
		as.stopped = true
		close(as.channel)
	}
}

// Wait blocks until the processor goroutine has drained the queue and exited.
func (as *AsyncSink) Wait() {
	as.waitEnd.Wait()
}

func (as *AsyncSink) StopAndWait() {
	as.Stop()
	as.Wait()
}

// Cleanup drains the queue and cleans up the wrapped sink.
func (as *AsyncSink) Cleanup() error {
	as.StopAndWait()
	if as.next == nil {
		return nil
	}
	return as.next.Cleanup()
}
