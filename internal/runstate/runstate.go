package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parley-cli/parley/internal/fsutil"
	"github.com/parley-cli/parley/internal/store"
)

// Status represents the overall state of a run
type Status string

const (
	StatusRunning         Status = "running"
	StatusConsensus       Status = "consensus"
	StatusBudgetExhausted Status = "budget_exhausted"
	StatusStopped         Status = "stopped"
	StatusFailed          Status = "failed"
)

// RunState is operational metadata about the process driving a debate.
// It lives beside the session artifacts but is not one of them: resume
// semantics and durability guarantees apply to the session files, while
// run.json exists for observers (status) and for signalling (stop).
type RunState struct {
	RunID       string     `json:"run_id"`
	PID         int        `json:"pid"`
	Status      Status     `json:"status"`
	Proposer    string     `json:"proposer"`
	Critic      string     `json:"critic"`
	MaxRounds   int        `json:"max_rounds"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewRunState creates run metadata for the current process.
func NewRunState(runID, proposer, critic string, maxRounds int) *RunState {
	return &RunState{
		RunID:     runID,
		PID:       os.Getpid(),
		Status:    StatusRunning,
		Proposer:  proposer,
		Critic:    critic,
		MaxRounds: maxRounds,
		StartedAt: time.Now().UTC(),
	}
}

// SaveRunState writes run metadata to disk atomically
func SaveRunState(state *RunState, path string) error {
	return fsutil.AtomicWriteJSON(path, state)
}

// LoadRunState reads run metadata from disk
func LoadRunState(path string) (*RunState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run state: %w", err)
	}

	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run state: %w", err)
	}

	return &state, nil
}

// GetRunStatePath returns the standard path for run metadata within a
// session directory.
func GetRunStatePath(debateDir string) string {
	return filepath.Join(debateDir, store.RunFile)
}

// MarkConsensus records that the debate converged.
func (s *RunState) MarkConsensus() {
	s.finish(StatusConsensus)
}

// MarkBudgetExhausted records that the round budget ran out first.
func (s *RunState) MarkBudgetExhausted() {
	s.finish(StatusBudgetExhausted)
}

// MarkStopped records a clean interrupt.
func (s *RunState) MarkStopped() {
	s.finish(StatusStopped)
}

// MarkFailed records an agent or store failure.
func (s *RunState) MarkFailed() {
	s.finish(StatusFailed)
}

func (s *RunState) finish(status Status) {
	s.Status = status
	now := time.Now().UTC()
	s.CompletedAt = &now
}

// IsRunning reports whether the metadata claims a live orchestrator.
// The recorded PID may still be stale after a crash; callers that
// signal it should verify liveness first.
func (s *RunState) IsRunning() bool {
	return s.Status == StatusRunning
}
