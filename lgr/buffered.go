package lgr

import (
	"io"
	"os"
	"sync"
	"time"
)

// BufferedSink collects "[module] message" entries, dropping exact
// duplicates, and writes them out in arrival order when the buffer is full
// or the flush interval has elapsed. Cleanup flushes what is left.
type BufferedSink struct {
	mtx       sync.Mutex
	out       io.Writer
	maxSize   int
	interval  time.Duration
	now       func() time.Time
	lastFlush time.Time
	entries   []string
	seen      map[string]struct{}
}

// BufferedOption customizes a BufferedSink.
type BufferedOption func(*BufferedSink)

func WithBufferSize(n int) BufferedOption {
	return func(bs *BufferedSink) {
		if n > 0 {
			bs.maxSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) BufferedOption {
	return func(bs *BufferedSink) {
		if d > 0 {
			bs.interval = d
		}
	}
}

// WithBufferClock replaces time.Now for flush interval checks.
func WithBufferClock(now func() time.Time) BufferedOption {
	return func(bs *BufferedSink) {
		if now != nil {
			bs.now = now
		}
	}
}

// NewBufferedSink flushes to out (os.Stdout if nil).
func NewBufferedSink(out io.Writer, opts ...BufferedOption) *BufferedSink {
	if out == nil {
		out = os.Stdout
	}
	bs := &BufferedSink{
		out:      out,
		maxSize:  DEFAULT_BUFFER_SIZE,
		interval: DEFAULT_FLUSH_INTERVAL * time.Millisecond,
		now:      time.Now,
		seen:     map[string]struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(bs)
		}
	}
	bs.lastFlush = bs.now()
	return bs
}

func (bs *BufferedSink) Accept(module, message string) error {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()
	var err error
	if len(bs.entries) >= bs.maxSize {
		err = bs.flush()
	}
	entry := "[" + module + "] " + message
	if _, dup := bs.seen[entry]; !dup {
		bs.seen[entry] = struct{}{}
		bs.entries = append(bs.entries, entry)
	}
	if now := bs.now(); now.Sub(bs.lastFlush) > bs.interval {
		bs.lastFlush = now
		if e := bs.flush(); e != nil {
			err = e
		}
	}
	return err
}

// Flush writes out and clears the buffered entries.
func (bs *BufferedSink) Flush() error {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()
	return bs.flush()
}

// flush empties the buffer even when the writer fails, so a broken writer
// cannot grow it without bound.
func (bs *BufferedSink) flush() error {
	if len(bs.entries) == 0 {
		return nil
	}
	var err error
	for _, entry := range bs.entries {
		if _, e := io.WriteString(bs.out, entry+"\n"); e != nil && err == nil {
			err = e
		}
	}
	bs.entries = bs.entries[:0]
	clear(bs.seen)
	return err
}

// Len is the number of buffered entries.
func (bs *BufferedSink) Len() int {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()
	return len(bs.entries)
}

func (bs *BufferedSink) Cleanup() error {
	return bs.Flush()
}
