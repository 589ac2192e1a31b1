// Package file persists commits and pause queues as JSON files on the
// local filesystem. Suited to single-node deployments that want durability
// without running Redis.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
)

// Store implements ports.CommitStore and ports.QueueJournal using the
// local filesystem. Each session gets one commits file and one queue file.
type Store struct {
	BasePath string

	mu sync.Mutex
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".arbiter/sessions".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".arbiter", "sessions")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) commitsPath(sessionID string) string {
	return filepath.Join(s.BasePath, sessionID+".commits.json")
}

func (s *Store) queuePath(sessionID string) string {
	return filepath.Join(s.BasePath, sessionID+".queue.json")
}

// Commit appends one applied outcome and rewrites the commits file
// atomically: temp file, fsync, rename.
func (s *Store) Commit(ctx context.Context, sessionID, actionID string, changes []domain.StateChange) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var records []ports.CommitRecord
	if err := s.readJSON(s.commitsPath(sessionID), &records); err != nil {
		return err
	}

	copied := make([]domain.StateChange, len(changes))
	copy(copied, changes)
	records = append(records, ports.CommitRecord{ActionID: actionID, Changes: copied})

	return s.writeJSON(s.commitsPath(sessionID), sessionID, records)
}

// Commits returns the applied records for a session in commit order.
func (s *Store) Commits(ctx context.Context, sessionID string) ([]ports.CommitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []ports.CommitRecord
	if err := s.readJSON(s.commitsPath(sessionID), &records); err != nil {
		return nil, err
	}
	return records, nil
}

// AppendQueued records a buffered action.
func (s *Store) AppendQueued(ctx context.Context, sessionID string, action domain.QueuedAction) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var queued []domain.QueuedAction
	if err := s.readJSON(s.queuePath(sessionID), &queued); err != nil {
		return err
	}
	queued = append(queued, action)

	return s.writeJSON(s.queuePath(sessionID), sessionID, queued)
}

// LoadQueued returns the journal in append order.
func (s *Store) LoadQueued(ctx context.Context, sessionID string) ([]domain.QueuedAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var queued []domain.QueuedAction
	if err := s.readJSON(s.queuePath(sessionID), &queued); err != nil {
		return nil, err
	}
	return queued, nil
}

// ClearQueued empties the journal after a successful drain.
func (s *Store) ClearQueued(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.queuePath(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear queue file: %w", err)
	}
	return nil
}

// Sessions returns the IDs with at least one commit on disk.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	const suffix = ".commits.json"
	var sessions []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			sessions = append(sessions, name[:len(name)-len(suffix)])
		}
	}
	return sessions, nil
}

func (s *Store) readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}
	return nil
}

// writeJSON writes to a temporary file first, syncs via fsync, and then
// renames it to the destination. Temp and dest share a directory so the
// rename stays on one filesystem.
func (s *Store) writeJSON(destPath, sessionID string, value any) error {
	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure session directory: %w", err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}

	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-"+sessionID+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		_ = tmpFile.Close()    // Ensure closed
		_ = os.Remove(tmpPath) // Remove if still exists (not renamed)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}

	// Cannot rename an open file on Windows.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// On Windows, os.Rename fails if dest exists; remove first. The
	// delete+rename window is acceptable compared to a partial write.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing file for overwrite: %w", err)
		}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
