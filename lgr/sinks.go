package lgr

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strconv"
	"sync"
)

/////////////////////////////////////////////////////////////////////////////////////
// Console

// ConsoleSink writes "[module] message" lines to a writer, optionally
// colored by the level inferred from the module name.
type ConsoleSink struct {
	mtx      sync.Mutex
	out      io.Writer
	colormap *LevelMap
	msgbuf   bytes.Buffer // reused while building a line
}

// NewConsoleSink writes to out (os.Stdout if nil).
func NewConsoleSink(out io.Writer) *ConsoleSink {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleSink{out: out}
}

// SetColors enables ANSI colors from the map (nil switches them off).
func (cs *ConsoleSink) SetColors(colormap *LevelMap) *ConsoleSink {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	cs.colormap = colormap
	return cs
}

func (cs *ConsoleSink) Accept(module, message string) error {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	buildConsoleLine(&cs.msgbuf, module, message, cs.colormap)
	n, err := cs.msgbuf.WriteTo(cs.out)
	if err != nil {
		return errors.New("error writing log to console (" + strconv.FormatInt(n, 10) + " bytes written): " + err.Error())
	}
	return nil
}

func (cs *ConsoleSink) Cleanup() error {
	return nil
}

// buildConsoleLine resets buf and fills it with one formatted line
func buildConsoleLine(buf *bytes.Buffer, module, message string, colormap *LevelMap) {
	buf.Reset()
	if colormap != nil {
		buf.WriteString(ANSI_COL_PRFX)
		buf.WriteString(colormap[LevelOf(module)])
		buf.WriteString(ANSI_COL_SUFX)
	}
	buf.WriteByte('[')
	buf.WriteString(module)
	buf.WriteString("] ")
	buf.WriteString(message)
	if colormap != nil {
		buf.WriteString(ANSI_COL_RESET)
	}
	buf.WriteByte('\n')
}

/////////////////////////////////////////////////////////////////////////////////////
// Conditional

// Predicate decides whether a message passes a ConditionalSink.
type Predicate func(module, message string) bool

// ConditionalSink forwards to the wrapped sink only what the predicate accepts.
type ConditionalSink struct {
	next Sink
	pred Predicate
}

func NewConditionalSink(next Sink, pred Predicate) *ConditionalSink {
	return &ConditionalSink{next: next, pred: pred}
}

func (c *ConditionalSink) Accept(module, message string) error {
	if c.next == nil || c.pred == nil || !c.pred(module, message) {
		return nil
	}
	return c.next.Accept(module, message)
}

func (c *ConditionalSink) Cleanup() error {
	if c.next == nil {
		return nil
	}
	return c.next.Cleanup()
}

// ModulePrefix accepts modules starting with one of the prefixes.
func ModulePrefix(prefixes ...string) Predicate {
	return func(module, _ string) bool {
		for _, p := range prefixes {
			if len(module) >= len(p) && module[:len(p)] == p {
				return true
			}
		}
		return false
	}
}

// MinLevel accepts modules whose inferred level is at least min.
func MinLevel(min LogLevel) Predicate {
	return func(module, _ string) bool { return LevelOf(module) >= min }
}

/////////////////////////////////////////////////////////////////////////////////////
// Composite

// CompositeSink fans every message out to its children. A failing or
// panicking child does not stop the others; their errors are joined.
type CompositeSink struct {
	children []Sink
}

func NewCompositeSink(children ...Sink) *CompositeSink {
	cs := &CompositeSink{}
	for _, c := range children {
		if c != nil {
			cs.children = append(cs.children, c)
		}
	}
	return cs
}

func (cs *CompositeSink) Accept(module, message string) error {
	var errs []error
	for _, c := range cs.children {
		if err := acceptSafe(c, module, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (cs *CompositeSink) Cleanup() error {
	var errs []error
	for _, c := range cs.children {
		if err := c.Cleanup(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (cs *CompositeSink) Len() int {
	return len(cs.children)
}

// acceptSafe calls a sink converting its panic into an error
func acceptSafe(s Sink, module, message string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicErr("panic writing log to output", r)
		}
	}()
	return s.Accept(module, message)
}
