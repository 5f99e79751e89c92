package pipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store keeps the final state of each run as JSON on disk, one file per run.
type Store struct {
	baseDir string // defaults to ~/.rootcause/runs
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// DefaultStore returns a Store at ~/.rootcause/runs, creating the directory if needed.
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".rootcause", "runs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Store{baseDir: dir}, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// statePath maps a run id to its file, rejecting ids that would leave baseDir.
func (s *Store) statePath(runID string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("empty run id")
	}
	if strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	return filepath.Join(s.baseDir, runID+".json"), nil
}

// Save writes st, replacing any earlier copy of the same run.
func (s *Store) Save(st *State) error {
	path, err := s.statePath(st.RunID)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if err := WriteJSON(path, st); err != nil {
		return fmt.Errorf("write state for run %s: %w", st.RunID, err)
	}
	return nil
}

// Get reads the state of a run.
func (s *Store) Get(runID string) (*State, error) {
	path, err := s.statePath(runID)
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}
	var st State
	if err := ReadJSON(path, &st); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run %s not found", runID)
		}
		return nil, err
	}
	return &st, nil
}

// List returns stored runs, newest first, optionally filtered by repo.
// Pass "" for repo to return every run.
func (s *Store) List(repo string) ([]State, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}

	var states []State
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		st, err := s.Get(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue // skip broken entries
		}
		if repo == "" || st.Repo == repo {
			states = append(states, *st)
		}
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].StartedAt.After(states[j].StartedAt)
	})
	return states, nil
}

// Delete removes a stored run.
func (s *Store) Delete(runID string) error {
	path, err := s.statePath(runID)
	if err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("run %s: %w", runID, fs.ErrNotExist)
	}
	return os.Remove(path)
}
