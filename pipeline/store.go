// ABOUTME: Filesystem-backed execution store with atomic checkpoint writes.
// ABOUTME: Persists one JSON file per execution using temp-file + rename for crash safety.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned when an execution id has no stored checkpoint.
var ErrNotFound = errors.New("execution not found")

// Store persists executions as <baseDir>/<id>.json. All writes go through an
// atomic temp-file + rename, so a crash mid-write never leaves a checkpoint
// readable as a mix of old and new content.
type Store struct {
	baseDir string
	mu      sync.RWMutex
}

// NewStore creates an execution store rooted at baseDir, creating the
// directory if needed.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// Save writes the execution's checkpoint atomically.
func (s *Store) Save(e *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		return fmt.Errorf("save execution: empty id")
	}
	return writeJSONAtomic(s.path(e.ID), e)
}

// Get loads an execution by id. Returns ErrNotFound for unknown ids and a
// parse error for corrupt checkpoints; it never returns a half-read record.
func (s *Store) Get(id string) (*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("execution %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("read execution %q: %w", id, err)
	}

	var e Execution
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("parse execution %q: %w", id, err)
	}
	return &e, nil
}

// List returns all stored executions, newest first.
func (s *Store) List() ([]*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read store dir: %w", err)
	}

	execs := make([]*Execution, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		var e Execution
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		execs = append(execs, &e)
	}

	sort.Slice(execs, func(i, j int) bool {
		return execs[i].CreatedAt.After(execs[j].CreatedAt)
	})
	return execs, nil
}

// ListResumable returns executions with status paused, failed, or running,
// newest first. A "running" status found here implies an ungraceful process
// exit, so it is resumable too.
func (s *Store) ListResumable() ([]*Execution, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}

	resumable := make([]*Execution, 0, len(all))
	for _, e := range all {
		switch e.Status {
		case ExecPaused, ExecFailed, ExecRunning:
			resumable = append(resumable, e)
		}
	}
	return resumable, nil
}

// Delete removes a stored execution. Deleting an unknown id returns ErrNotFound.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("execution %q: %w", id, ErrNotFound)
		}
		return fmt.Errorf("delete execution %q: %w", id, err)
	}
	return nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.baseDir, id+".json")
}

// writeJSONAtomic writes a JSON-encoded value to a file using a temp file +
// rename for atomicity.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
