// Package workspace materializes the generated file trees received on the
// event stream into per-session directories on disk, and watches them for
// changes so the preview layer can reload.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"codeflow/internal/types"
)

// Syncer writes files_updated trees under {root}/{sessionID}/. Syncs are
// dispatched fire-and-forget but serialized per session, so an overlapping
// sync for the same session cannot corrupt the tree.
type Syncer struct {
	root string
	log  *logrus.Entry

	mu       sync.Mutex
	sessions map[string]*sessionSync
	wg       sync.WaitGroup
}

// sessionSync serializes syncs and remembers what the last sync wrote so
// files dropped from the tree can be removed.
type sessionSync struct {
	mu      sync.Mutex
	written map[string]bool
}

// NewSyncer creates a syncer rooted at the given directory.
func NewSyncer(root string, log *logrus.Entry) *Syncer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Syncer{
		root:     root,
		log:      log,
		sessions: make(map[string]*sessionSync),
	}
}

// SessionDir returns the on-disk directory for a session.
func (s *Syncer) SessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

// Apply dispatches one files_updated event. It returns immediately; the
// write happens on a background goroutine, serialized with other syncs for
// the same session.
func (s *Syncer) Apply(ev types.FilesUpdatedEvent) {
	sessionID := ev.SessionID
	if sessionID == "" {
		s.log.Warn("files_updated without session id, skipping sync")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.syncSession(sessionID, ev.Files); err != nil {
			s.log.WithError(err).WithField("session", sessionID).
				Warn("workspace sync failed")
		}
	}()
}

// Wait blocks until all dispatched syncs have finished. Used on shutdown
// and in tests.
func (s *Syncer) Wait() {
	s.wg.Wait()
}

func (s *Syncer) syncSession(sessionID string, files map[string]string) error {
	ss := s.session(sessionID)

	// One sync at a time per session. Later trees win because each sync
	// writes the complete tree it was handed.
	ss.mu.Lock()
	defer ss.mu.Unlock()

	dir := s.SessionDir(sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	written := make(map[string]bool, len(files))
	for relPath, content := range files {
		cleaned, err := safeRelPath(relPath)
		if err != nil {
			s.log.WithField("path", relPath).Warn("skipping unsafe file path")
			continue
		}

		target := filepath.Join(dir, cleaned)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", cleaned, err)
		}
		if err := os.WriteFile(target, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", cleaned, err)
		}
		written[cleaned] = true
	}

	// Remove files the previous sync wrote that the new tree no longer has.
	for old := range ss.written {
		if !written[old] {
			if err := os.Remove(filepath.Join(dir, old)); err != nil && !os.IsNotExist(err) {
				s.log.WithError(err).WithField("path", old).Warn("failed to remove stale file")
			}
		}
	}

	ss.written = written
	s.log.WithFields(logrus.Fields{
		"session": sessionID,
		"files":   len(written),
	}).Debug("workspace synced")
	return nil
}

func (s *Syncer) session(sessionID string) *sessionSync {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.sessions[sessionID]
	if !ok {
		ss = &sessionSync{written: make(map[string]bool)}
		s.sessions[sessionID] = ss
	}
	return ss
}

// safeRelPath normalizes a wire file path and rejects anything that would
// escape the session directory.
func safeRelPath(p string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(p))
	if cleaned == "." || cleaned == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("path escapes session directory: %s", p)
	}
	return cleaned, nil
}
