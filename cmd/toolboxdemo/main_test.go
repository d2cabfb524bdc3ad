package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Run(t *testing.T) {
	t.Setenv("TOOLBOX_DIAG_LEVEL", "error")
	out := &bytes.Buffer{}
	require.NoError(t, run(context.Background(), out, []string{"-tasks", "4"}))
	s := out.String()
	assert.Contains(t, s, "[Demo] running 4 tasks (prefer coroutines: true)\n")
	assert.Contains(t, s, "[TaskManager_INFO] demo#1 completed\n")
	assert.Contains(t, s, "[TaskManager_ERROR] demo#4 failed\ntask 4 gave up")
	assert.Contains(t, s, "[Demo] posted after the batch\n")
	assert.Contains(t, s, "  Completed: 3\n")
	assert.Contains(t, s, "  Failed: 1\n")
}

func Test_Run_Config(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
log {
  console = true
}
task {
  prefer_coroutines = true
  enable_logging    = false
}
`), 0o644))
	out := &bytes.Buffer{}
	require.NoError(t, run(context.Background(), out, []string{"-config", path, "-threads", "-tasks", "2"}))
	s := out.String()
	assert.Contains(t, s, "prefer coroutines: false")
	assert.NotContains(t, s, "TaskManager_INFO")
}

func Test_Run_Errors(t *testing.T) {
	out := &bytes.Buffer{}
	err := run(context.Background(), out, []string{"-help"})
	assert.True(t, errors.Is(err, flag.ErrHelp))
	assert.Contains(t, out.String(), "-config")

	err = run(context.Background(), out, []string{"-config", filepath.Join(t.TempDir(), "none.hcl")})
	assert.Error(t, err)

	assert.NotPanics(t, func() { err = run(context.Background(), out, []string{"-tasks", "-3"}) })
	assert.ErrorContains(t, err, "-tasks must not be negative")
}
