package lgr

import (
	"fmt"
	"time"
)

// RetrySink re-attempts a failed Accept of the wrapped sink with a fixed
// delay between attempts. The last error is returned when every attempt
// fails. Panics are not retried.
type RetrySink struct {
	next     Sink
	attempts int
	delay    time.Duration
	sleep    func(time.Duration)
}

// NewRetrySink makes at most attempts calls (at least one).
func NewRetrySink(next Sink, attempts int, delay time.Duration) *RetrySink {
	if attempts < 1 {
		attempts = 1
	}
	return &RetrySink{next: next, attempts: attempts, delay: delay, sleep: time.Sleep}
}

func (rs *RetrySink) Accept(module, message string) error {
	var err error
	for i := 0; i < rs.attempts; i++ {
		if i > 0 && rs.delay > 0 {
			rs.sleep(rs.delay)
		}
		if err = rs.next.Accept(module, message); err == nil {
			return nil
		}
	}
	return fmt.Errorf("lgr: output failed after %d attempts: %w", rs.attempts, err)
}

func (rs *RetrySink) Cleanup() error {
	return rs.next.Cleanup()
}
