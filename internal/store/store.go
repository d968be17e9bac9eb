package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parley-cli/parley/internal/fsutil"
)

// Artifact names within a session directory. These are plain text files
// read by external observers (editors, dashboards, tail -f), so the names
// and formats are part of the public contract.
const (
	GoalFile      = "goal.md"
	StateFile     = "state.md"
	ProposerFile  = "proposer.md"
	CriticFile    = "critic.md"
	HistoryFile   = "history.md"
	ConsensusFile = "consensus.md"
	RunFile       = "run.json"
)

// Store manages the named artifacts of a single session directory.
// All writes go through the atomic primitives in fsutil, so a crash at
// any point leaves every artifact either old or new, never partial.
//
// A store has a single owner. There is no locking: the concurrency model
// is one orchestrating process per directory.
type Store struct {
	dir string
}

// New returns a store rooted at dir. The directory is not created;
// call Init (or Reset) before writing.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the session directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the absolute-or-relative path of a named artifact.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Exists reports whether the session directory exists.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.dir)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// Init creates the session directory with 0700 permissions.
// Idempotent - safe to call multiple times.
func (s *Store) Init() error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory %s: %w", s.dir, err)
	}
	return nil
}

// Reset removes the session directory and everything in it, then
// recreates it empty. Used by a fresh start; never by resume.
func (s *Store) Reset() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove session directory %s: %w", s.dir, err)
	}
	return s.Init()
}

// Read returns the content of a named artifact. A missing artifact reads
// as the empty string; any other failure is an error.
func (s *Store) Read(name string) (string, error) {
	data, err := os.ReadFile(s.Path(name))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return string(data), nil
}

// Has reports whether a named artifact exists as a regular file.
func (s *Store) Has(name string) bool {
	info, err := os.Stat(s.Path(name))
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// Write replaces a named artifact atomically.
func (s *Store) Write(name, content string) error {
	if err := fsutil.AtomicWrite(s.Path(name), []byte(content)); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Append extends a named artifact with a single durable append.
func (s *Store) Append(name, content string) error {
	if err := fsutil.AtomicAppend(s.Path(name), []byte(content)); err != nil {
		return fmt.Errorf("failed to append to %s: %w", name, err)
	}
	return nil
}
