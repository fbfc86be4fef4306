package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReportsWrites(t *testing.T) {
	root := t.TempDir()

	ww, err := NewWorkspaceWatcher(nil)
	require.NoError(t, err)
	defer ww.Close()

	changes := make(chan []string, 4)
	ww.SetOnChange(func(paths []string) { changes <- paths })

	require.NoError(t, ww.Watch(root))
	require.NoError(t, os.WriteFile(filepath.Join(root, "App.tsx"), []byte("<button/>"), 0644))

	select {
	case paths := <-changes:
		assert.Contains(t, paths, "App.tsx")
	case <-time.After(3 * time.Second):
		t.Fatal("no change notification")
	}
}

func TestWatcherCoalescesBursts(t *testing.T) {
	root := t.TempDir()

	ww, err := NewWorkspaceWatcher(nil)
	require.NoError(t, err)
	defer ww.Close()

	changes := make(chan []string, 4)
	ww.SetOnChange(func(paths []string) { changes <- paths })

	require.NoError(t, ww.Watch(root))
	for _, name := range []string{"a.ts", "b.ts", "c.ts"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0644))
	}

	select {
	case paths := <-changes:
		// One debounced notification carrying the burst (allowing for the
		// occasional split under slow CI).
		assert.NotEmpty(t, paths)
	case <-time.After(3 * time.Second):
		t.Fatal("no change notification")
	}
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	root := t.TempDir()

	ww, err := NewWorkspaceWatcher(nil)
	require.NoError(t, err)
	defer ww.Close()

	changes := make(chan []string, 4)
	ww.SetOnChange(func(paths []string) { changes <- paths })

	require.NoError(t, ww.Watch(root))

	sub := filepath.Join(root, "src")
	require.NoError(t, os.Mkdir(sub, 0755))
	// Give fsnotify a beat to register the new directory watch.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "lib.ts"), []byte("x"), 0644))

	deadline := time.After(3 * time.Second)
	for {
		select {
		case paths := <-changes:
			for _, p := range paths {
				if p == filepath.Join("src", "lib.ts") {
					return
				}
			}
		case <-deadline:
			t.Fatal("nested file change never reported")
		}
	}
}
