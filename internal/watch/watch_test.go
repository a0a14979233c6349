package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, dir string) (chan struct{}, *Watcher) {
	t.Helper()

	runs := make(chan struct{}, 8)
	w, err := New(dir, func() error {
		runs <- struct{}{}
		return nil
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Start() }()

	t.Cleanup(func() {
		w.Stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	})

	// The callback runs once before the event loop starts.
	select {
	case <-runs:
	case <-time.After(2 * time.Second):
		t.Fatal("initial run did not fire")
	}

	return runs, w
}

func waitForRun(t *testing.T, runs chan struct{}, msg string) {
	t.Helper()
	select {
	case <-runs:
	case <-time.After(3 * time.Second):
		t.Fatal(msg)
	}
}

func TestEditInExistingMigrationDirTriggersRun(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "001_init")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	file := filepath.Join(sub, "migration.sql")
	require.NoError(t, os.WriteFile(file, []byte("CREATE TABLE a (id INTEGER);"), 0o644))

	runs, _ := startWatcher(t, dir)

	require.NoError(t, os.WriteFile(file, []byte("CREATE TABLE a (id INTEGER, name TEXT);"), 0o644))
	waitForRun(t, runs, "edit to existing migration file did not trigger a run")
}

func TestNewMigrationDirTriggersRun(t *testing.T) {
	dir := t.TempDir()
	runs, _ := startWatcher(t, dir)

	sub := filepath.Join(dir, "002_campaigns")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "migration.sql"),
		[]byte("CREATE TABLE campaigns (id INTEGER);"), 0o644))

	waitForRun(t, runs, "new migration directory did not trigger a run")
}

func TestNewOnMissingDir(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "does-not-exist"), func() error { return nil })
	require.Error(t, err)
}
