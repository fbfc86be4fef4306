package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsWhenNoFile(t *testing.T) {
	m, err := NewManagerAt(t.TempDir())
	require.NoError(t, err)

	s := m.GetSettings()
	assert.Equal(t, "http://localhost:4000", s.ServerURL)
	assert.Equal(t, "info", s.LogLevel)
	assert.NotEmpty(t, s.WorkspaceRoot)
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()

	m, err := NewManagerAt(dir)
	require.NoError(t, err)

	s := m.GetSettings()
	s.ServerURL = "https://agent.example.com"
	s.LogLevel = "debug"
	require.NoError(t, m.SaveSettings(s))

	// A fresh manager picks up the persisted values.
	m2, err := NewManagerAt(dir)
	require.NoError(t, err)
	got := m2.GetSettings()
	assert.Equal(t, "https://agent.example.com", got.ServerURL)
	assert.Equal(t, "debug", got.LogLevel)
}

func TestCorruptFileSurfacesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, SettingsFile), []byte("{not json"), 0600))

	m, err := NewManagerAt(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4000", m.GetSettings().ServerURL)
}

func TestTranscriptDBPath(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManagerAt(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, TranscriptDBFile), m.TranscriptDBPath())
}
