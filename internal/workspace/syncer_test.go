package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeflow/internal/types"
)

func TestApplyMaterializesTree(t *testing.T) {
	root := t.TempDir()
	s := NewSyncer(root, nil)

	s.Apply(types.FilesUpdatedEvent{
		SessionID: "s1",
		Files: map[string]string{
			"App.tsx":           "<button/>",
			"src/lib/utils.ts":  "export {}",
			"public/index.html": "<html></html>",
		},
	})
	s.Wait()

	data, err := os.ReadFile(filepath.Join(root, "s1", "App.tsx"))
	require.NoError(t, err)
	assert.Equal(t, "<button/>", string(data))

	data, err = os.ReadFile(filepath.Join(root, "s1", "src", "lib", "utils.ts"))
	require.NoError(t, err)
	assert.Equal(t, "export {}", string(data))
}

func TestApplyRemovesStaleFiles(t *testing.T) {
	root := t.TempDir()
	s := NewSyncer(root, nil)

	s.Apply(types.FilesUpdatedEvent{
		SessionID: "s1",
		Files:     map[string]string{"a.ts": "1", "b.ts": "2"},
	})
	s.Wait()

	s.Apply(types.FilesUpdatedEvent{
		SessionID: "s1",
		Files:     map[string]string{"a.ts": "updated"},
	})
	s.Wait()

	data, err := os.ReadFile(filepath.Join(root, "s1", "a.ts"))
	require.NoError(t, err)
	assert.Equal(t, "updated", string(data))

	_, err = os.Stat(filepath.Join(root, "s1", "b.ts"))
	assert.True(t, os.IsNotExist(err))
}

func TestSessionsAreIsolated(t *testing.T) {
	root := t.TempDir()
	s := NewSyncer(root, nil)

	s.Apply(types.FilesUpdatedEvent{SessionID: "s1", Files: map[string]string{"x.ts": "one"}})
	s.Apply(types.FilesUpdatedEvent{SessionID: "s2", Files: map[string]string{"x.ts": "two"}})
	s.Wait()

	one, err := os.ReadFile(filepath.Join(root, "s1", "x.ts"))
	require.NoError(t, err)
	two, err := os.ReadFile(filepath.Join(root, "s2", "x.ts"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(one))
	assert.Equal(t, "two", string(two))
}

func TestUnsafePathsSkipped(t *testing.T) {
	root := t.TempDir()
	s := NewSyncer(root, nil)

	s.Apply(types.FilesUpdatedEvent{
		SessionID: "s1",
		Files: map[string]string{
			"../escape.ts": "nope",
			"ok.ts":        "fine",
		},
	})
	s.Wait()

	_, err := os.Stat(filepath.Join(root, "escape.ts"))
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(filepath.Join(root, "s1", "ok.ts"))
	assert.NoError(t, err)
}

func TestOverlappingSyncsDoNotCorrupt(t *testing.T) {
	root := t.TempDir()
	s := NewSyncer(root, nil)

	// Burst of trees for the same session; the session mutex serializes the
	// writes so the directory always holds one complete tree.
	for i := 0; i < 10; i++ {
		s.Apply(types.FilesUpdatedEvent{
			SessionID: "s1",
			Files:     map[string]string{"a.ts": "v", "b.ts": "v"},
		})
	}
	s.Wait()

	for _, name := range []string{"a.ts", "b.ts"} {
		data, err := os.ReadFile(filepath.Join(root, "s1", name))
		require.NoError(t, err)
		assert.Equal(t, "v", string(data))
	}
}

func TestMissingSessionIDSkipped(t *testing.T) {
	root := t.TempDir()
	s := NewSyncer(root, nil)

	s.Apply(types.FilesUpdatedEvent{Files: map[string]string{"a.ts": "x"}})
	s.Wait()

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
