package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"
)

// mockFsWatcher implements FsWatcher with injectable channels for testing.
type mockFsWatcher struct {
	events  chan fsnotify.Event
	errs    chan error
	added   []string
	removed []string
	closed  atomic.Bool
}

func newMockFsWatcher() *mockFsWatcher {
	return &mockFsWatcher{
		events: make(chan fsnotify.Event, 8),
		errs:   make(chan error, 8),
	}
}

func (m *mockFsWatcher) Add(name string) error {
	m.added = append(m.added, name)
	return nil
}

func (m *mockFsWatcher) Remove(name string) error {
	m.removed = append(m.removed, name)
	return nil
}

func (m *mockFsWatcher) Events() <-chan fsnotify.Event { return m.events }
func (m *mockFsWatcher) Errors() <-chan error          { return m.errs }

func (m *mockFsWatcher) Close() error {
	m.closed.Store(true)
	close(m.events)
	close(m.errs)

	return nil
}

func newTestWatcher(t *testing.T, root string, cfg Config) (*Watcher, *mockFsWatcher) {
	t.Helper()

	mock := newMockFsWatcher()
	w := New(root, cfg, nil)
	w.watcherFactory = func() (FsWatcher, error) {
		return mock, nil
	}

	return w, mock
}

func TestWatcher_Run_DebouncesBurstIntoOneTrigger(t *testing.T) {
	root := t.TempDir()
	w, mock := newTestWatcher(t, root, Config{Debounce: 20 * time.Millisecond, SafetyInterval: -1})

	var triggers atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- w.Run(ctx, func(context.Context) error {
			triggers.Add(1)
			return nil
		})
	}()

	// Let Run reach the event loop before sending events.
	time.Sleep(10 * time.Millisecond)

	for i := 0; i < 5; i++ {
		mock.events <- fsnotify.Event{Name: filepath.Join(root, "a.txt"), Op: fsnotify.Write}
	}

	time.Sleep(100 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	require.Equal(t, int32(1), triggers.Load())
}

func TestWatcher_Run_SafetyIntervalTriggersWithoutEvents(t *testing.T) {
	root := t.TempDir()
	w, _ := newTestWatcher(t, root, Config{Debounce: 10 * time.Millisecond, SafetyInterval: 15 * time.Millisecond})

	var triggers atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- w.Run(ctx, func(context.Context) error {
			triggers.Add(1)
			return nil
		})
	}()

	time.Sleep(80 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	require.GreaterOrEqual(t, triggers.Load(), int32(2))
}

func TestWatcher_HandleEvent_AddsWatchForNewDirectory(t *testing.T) {
	root := t.TempDir()
	w, mock := newTestWatcher(t, root, Config{})

	sub := filepath.Join(root, "newdir")
	require.NoError(t, os.Mkdir(sub, 0o755))

	w.handleEvent(mock, fsnotify.Event{Name: sub, Op: fsnotify.Create})

	require.Contains(t, mock.added, sub)
}

func TestWatcher_HandleEvent_IgnoresHiddenDirectory(t *testing.T) {
	root := t.TempDir()
	w, mock := newTestWatcher(t, root, Config{})

	sub := filepath.Join(root, ".git")
	require.NoError(t, os.Mkdir(sub, 0o755))

	w.handleEvent(mock, fsnotify.Event{Name: sub, Op: fsnotify.Create})

	require.NotContains(t, mock.added, sub)
}

func TestWatcher_HandleEvent_RemoveReleasesWatch(t *testing.T) {
	root := t.TempDir()
	w, mock := newTestWatcher(t, root, Config{})

	target := filepath.Join(root, "gone")
	w.handleEvent(mock, fsnotify.Event{Name: target, Op: fsnotify.Remove})

	require.Contains(t, mock.removed, target)
}

func TestWatcher_AddWatchesRecursive_SkipsIgnoredSubtree(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git", "objects"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0o755))

	w, mock := newTestWatcher(t, root, Config{})

	require.NoError(t, w.addWatchesRecursive(mock, root))

	require.Contains(t, mock.added, root)
	require.Contains(t, mock.added, filepath.Join(root, "docs"))
	require.NotContains(t, mock.added, filepath.Join(root, ".git"))
	require.NotContains(t, mock.added, filepath.Join(root, ".git", "objects"))
}

func TestWatcher_Run_WatcherFactoryError(t *testing.T) {
	w := New(t.TempDir(), Config{}, nil)
	w.watcherFactory = func() (FsWatcher, error) {
		return nil, os.ErrPermission
	}

	err := w.Run(context.Background(), func(context.Context) error { return nil })
	require.Error(t, err)
}

func TestDefaultIgnore(t *testing.T) {
	cases := map[string]bool{
		"a.txt":      false,
		".git":       true,
		".DS_Store":  true,
		"~lock.file": true,
		"foo.tmp":    true,
		"foo.swp":    true,
		"":           true,
	}

	for name, want := range cases {
		require.Equal(t, want, defaultIgnore(name), "name=%q", name)
	}
}
