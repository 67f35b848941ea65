package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWatcherDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	domain := filepath.Join(dir, "domain.yaml")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(domain, []byte("domain: a\n"), 0644))

	calls := make(chan []string, 4)
	w, err := New([]string{domain}, 50*time.Millisecond, func(_ context.Context, paths []string) {
		calls <- paths
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0644))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(domain, []byte("domain: b\n"), 0644))
	}

	select {
	case paths := <-calls:
		abs, _ := filepath.Abs(domain)
		assert.Equal(t, []string{abs}, paths)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after writing the watched file")
	}

	st := w.Stats()
	assert.GreaterOrEqual(t, st.Events, 1)
	assert.GreaterOrEqual(t, st.Reloads, 1)
	assert.Equal(t, filepath.Clean(st.LastEventPath), st.LastEventPath)
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "p.yaml")
	require.NoError(t, os.WriteFile(f, nil, 0644))

	w, err := New([]string{f}, 0, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}

func TestWatcherContextCancel(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "p.yaml")
	require.NoError(t, os.WriteFile(f, nil, 0644))

	w, err := New([]string{f}, 0, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()
	w.Stop()
}

func TestNewRequiresPaths(t *testing.T) {
	_, err := New(nil, 0, nil)
	assert.Error(t, err)
}
