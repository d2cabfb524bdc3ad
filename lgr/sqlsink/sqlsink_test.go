package sqlsink

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abyssdigger/toolbox/lgr"
)

func Test_Sink_AcceptQuery(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	base := time.Unix(1700000000, 0)
	i := 0
	s.now = func() time.Time { i++; return base.Add(time.Duration(i) * time.Second) }

	require.NoError(t, s.Accept("Net", "one"))
	require.NoError(t, s.Accept("Db", "two"))
	require.NoError(t, s.Accept("Net", "three"))

	ctx := context.Background()
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	all, err := s.Query(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "one", all[0].Message)
	assert.True(t, base.Add(time.Second).Equal(all[0].Time))

	net, err := s.Query(ctx, "Net", 1)
	require.NoError(t, err)
	require.Len(t, net, 1)
	assert.Equal(t, "three", net[0].Message, "limit must keep the newest rows")

	require.NoError(t, s.Cleanup())
	assert.FileExists(t, filepath.Join(dir, DEFAULT_DB_FILE))
}

func Test_Sink_Reopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	s.Accept("Net", "persisted")
	s.Cleanup()

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Cleanup()
	entries, err := s.Query(context.Background(), "Net", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "persisted", entries[0].Message)
}

func Test_Sink_AfterCleanup(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	s.Cleanup()
	assert.Error(t, s.Accept("Net", "x"))
}

func Test_Sink_OpenError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	_, err := Open(filepath.Join(blocker, "sub"))
	assert.Error(t, err)
}

func Test_Sink_WithDispatcher(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	d := lgr.New(lgr.WithDiagLogger(zap.NewNop()))
	d.Initialize(lgr.Config{})
	require.NoError(t, d.AddOutput(s))
	d.RegisterModules("Net_ERROR", "Net_DEBUG")
	d.EnableModules("Net_ERROR")
	d.Error("Net", "stored")
	d.Debug("Net", "not stored")

	entries, err := s.Query(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Net_ERROR", entries[0].Module)
	d.ClearOutputs()
}
