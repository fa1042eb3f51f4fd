package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, root string) *Watcher {
	t.Helper()
	w, err := New(Config{
		Extensions: []string{".md"},
		Debounce:   20 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background(), root))
	t.Cleanup(w.Stop)
	return w
}

// waitForPath drains batches until an event for path arrives.
func waitForPath(t *testing.T, w *Watcher, path string) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case batch := <-w.Events():
			for _, ev := range batch {
				if ev.Path == path {
					return ev
				}
			}
		case <-deadline:
			t.Fatalf("no event for %s", path)
		}
	}
}

func TestWatcher_SeesCreatedFile(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	path := filepath.Join(root, "note.md")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	ev := waitForPath(t, w, path)
	assert.Equal(t, OpCreate, ev.Op)
}

func TestWatcher_SeesDeletedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "note.md")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	w := startWatcher(t, root)
	require.NoError(t, os.Remove(path))

	ev := waitForPath(t, w, path)
	assert.Equal(t, OpDelete, ev.Op)
}

func TestWatcher_FiltersExtensions(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	ignored := filepath.Join(root, "image.png")
	wanted := filepath.Join(root, "doc.md")
	require.NoError(t, os.WriteFile(ignored, []byte{1, 2, 3}, 0o644))
	require.NoError(t, os.WriteFile(wanted, []byte("text"), 0o644))

	ev := waitForPath(t, w, wanted)
	assert.Equal(t, OpCreate, ev.Op)
	// The .png never produced an event; if it had, it would share the
	// batch with doc.md and waitForPath would have seen only doc.md
	// anyway, so check the batch channel is quiet now.
	select {
	case batch := <-w.Events():
		for _, e := range batch {
			assert.NotEqual(t, ignored, e.Path)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcher_WatchesNewSubdirectories(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	sub := filepath.Join(root, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))

	// Give the watcher a moment to add the new directory.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(sub, "deep.md")
	require.NoError(t, os.WriteFile(path, []byte("deep"), 0o644))

	ev := waitForPath(t, w, path)
	assert.Equal(t, OpCreate, ev.Op)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w := startWatcher(t, t.TempDir())
	w.Stop()
	w.Stop()

	_, open := <-w.Events()
	assert.False(t, open, "event channel closes on stop")
}
