package lgr

import (
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const testlogstr = "Test log АБВ こんにちは, 世界`'é\"\\\x5A\n\t и други глупости!"
const panicStr = "panic generated in sink"
const errorStr = "error generated in sink"

type record struct {
	module  string
	message string
}

type FakeSink struct {
	mtx      sync.Mutex
	records  []record
	cleanups int
}

func (f *FakeSink) Accept(module, message string) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.records = append(f.records, record{module, message})
	return nil
}

func (f *FakeSink) Cleanup() error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.cleanups++
	return nil
}

func (f *FakeSink) Records() []record {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return append([]record(nil), f.records...)
}

func (f *FakeSink) Len() int {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return len(f.records)
}

func (f *FakeSink) Cleanups() int {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.cleanups
}

type ErrorSink struct{ calls int }

func (e *ErrorSink) Accept(module, message string) error { e.calls++; return errors.New(errorStr) }
func (e *ErrorSink) Cleanup() error                      { return errors.New(errorStr) }

type PanicSink struct{}

func (p *PanicSink) Accept(module, message string) error { panic(panicStr) }
func (p *PanicSink) Cleanup() error                      { panic(panicStr) }

// FlakySink fails the first `fails` calls
type FlakySink struct {
	FakeSink
	fails int
	calls int
}

func (f *FlakySink) Accept(module, message string) error {
	f.calls++
	if f.calls <= f.fails {
		return errors.New(errorStr)
	}
	return f.FakeSink.Accept(module, message)
}

type FakeWriter struct {
	mtx    sync.Mutex
	buffer []byte
}

func (f *FakeWriter) Write(b []byte) (int, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.buffer = append(f.buffer, b...)
	return len(b), nil
}

func (f *FakeWriter) String() string {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return string(f.buffer)
}

func (f *FakeWriter) Lines() []string {
	s := strings.TrimSuffix(f.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

type ErrorWriter struct{}

func (e *ErrorWriter) Write(b []byte) (int, error) { return 0, errors.New(errorStr) }

// newTestDispatcher returns an initialized dispatcher without default sinks
// and with diagnostics written to ferr.
func newTestDispatcher(ferr *FakeWriter) *Dispatcher {
	var d *Dispatcher
	if ferr != nil {
		d = New(WithFallback(ferr))
	} else {
		d = New(WithDiagLogger(zap.NewNop()))
	}
	d.Initialize(Config{})
	return d
}
