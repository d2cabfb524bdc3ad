package task

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type logLine struct {
	module  string
	message string
	err     error
}

type FakeLogger struct {
	mtx   sync.Mutex
	lines []logLine
}

func (f *FakeLogger) Log_with_err(module, message string) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.lines = append(f.lines, logLine{module: module, message: message})
	return nil
}

func (f *FakeLogger) LogErr_with_err(module string, err error, message string) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.lines = append(f.lines, logLine{module, message, err})
	return nil
}

// Messages logged to module, in order
func (f *FakeLogger) Messages(module string) []string {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	var out []string
	for _, l := range f.lines {
		if l.module == module {
			out = append(out, l.message)
		}
	}
	return out
}

func (f *FakeLogger) Has(module, substr string) bool {
	for _, m := range f.Messages(module) {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *FakeLogger) {
	t.Helper()
	fl := &FakeLogger{}
	m := NewManager(WithDiagLogger(zap.NewNop()), WithLogger(fl))
	require.True(t, m.Initialize(cfg))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Shutdown(ctx)
	})
	return m, fl
}

func threadConfig() Config {
	cfg := DefaultConfig()
	cfg.PreferCoroutines = false
	return cfg
}

func waitDone(t *testing.T, jobs ...*Job) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for _, j := range jobs {
		select {
		case <-j.Done():
		case <-timeout:
			t.Fatalf("job %q did not finish", j.Name())
		}
	}
}

func nop(context.Context) error { return nil }
