package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

const (
	ConfigDir    = ".codeflow"
	SettingsFile = "settings.json"

	// TranscriptDBFile is the local replay cache, kept alongside settings.
	TranscriptDBFile = "transcripts.db"
)

// Settings holds all application settings
type Settings struct {
	ServerURL     string `json:"serverUrl"`     // agent backend base URL (http/https)
	WorkspaceRoot string `json:"workspaceRoot"` // where generated file trees are materialized
	LogLevel      string `json:"logLevel"`      // "debug", "info", "warn", "error"
}

// Manager handles all settings operations
type Manager struct {
	configPath string
	settings   *Settings
	mu         sync.RWMutex
}

// NewManager creates a new settings manager rooted at ~/.codeflow
func NewManager() (*Manager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return NewManagerAt(filepath.Join(homeDir, ConfigDir))
}

// NewManagerAt creates a settings manager with an explicit config directory.
func NewManagerAt(configPath string) (*Manager, error) {
	// Ensure config directory exists
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return nil, err
	}

	m := &Manager{
		configPath: configPath,
		settings:   defaultSettings(configPath),
	}

	// Load existing settings
	_ = m.loadSettings()

	return m, nil
}

// GetConfigPath returns the path to the config directory
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// TranscriptDBPath returns the path of the local replay cache database.
func (m *Manager) TranscriptDBPath() string {
	return filepath.Join(m.configPath, TranscriptDBFile)
}

// defaultSettings returns default settings
func defaultSettings(configPath string) *Settings {
	return &Settings{
		ServerURL:     "http://localhost:4000",
		WorkspaceRoot: filepath.Join(configPath, "workspaces"),
		LogLevel:      "info",
	}
}

// GetSettings returns current settings
func (m *Manager) GetSettings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.settings
}

// SaveSettings saves settings to disk
func (m *Manager) SaveSettings(s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settings = &s
	return m.writeJSON(SettingsFile, s)
}

// loadSettings loads settings from disk
func (m *Manager) loadSettings() error {
	return m.readJSON(SettingsFile, m.settings)
}

// writeJSON writes data as JSON to a file
func (m *Manager) writeJSON(filename string, data interface{}) error {
	path := filepath.Join(m.configPath, filename)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, jsonData, 0600)
}

// readJSON reads JSON from a file
func (m *Manager) readJSON(filename string, target interface{}) error {
	path := filepath.Join(m.configPath, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, use defaults
		}
		return err
	}

	return json.Unmarshal(data, target)
}
