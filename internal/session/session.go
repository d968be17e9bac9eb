package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/parley-cli/parley/internal/store"
	"github.com/parley-cli/parley/internal/transcript"
)

// State represents whose turn the debate is waiting on
type State string

const (
	StateProposerTurn State = "PROPOSER_TURN"
	StateCriticTurn   State = "CRITIC_TURN"
	StateConsensus    State = "CONSENSUS"
)

// ErrMissingSession is returned when opening a directory that holds no session
var ErrMissingSession = errors.New("no debate session found")

// InvalidStateError reports a state artifact whose content is not one of
// the defined turn states. It indicates a corrupt or foreign session
// directory; resume cannot recover from it.
type InvalidStateError struct {
	Tag string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid session state %q (want %s, %s or %s)",
		e.Tag, StateProposerTurn, StateCriticTurn, StateConsensus)
}

// ParseState validates a raw state tag. Surrounding whitespace is
// tolerated; any other deviation is an InvalidStateError.
func ParseState(raw string) (State, error) {
	tag := strings.TrimSpace(raw)
	switch State(tag) {
	case StateProposerTurn, StateCriticTurn, StateConsensus:
		return State(tag), nil
	default:
		return "", &InvalidStateError{Tag: tag}
	}
}

// ConsensusMarker is the phrase a critic emits to end the debate.
const ConsensusMarker = "CONSENSUS REACHED"

// ContainsConsensusMarker reports whether agent output declares
// convergence. Matching is a case-insensitive substring test; every
// consensus decision in the engine goes through this single predicate.
func ContainsConsensusMarker(text string) bool {
	return strings.Contains(strings.ToUpper(text), ConsensusMarker)
}

// Initial artifact contents for a fresh session.
const (
	initialProposer = "# Proposal\n\n(Awaiting first proposal)"
	initialCritic   = "# Critique\n\n(No critique yet - this is Round 1)"
	initialHistory  = "# Debate History\n\n---\n"
)

// WrapGoal formats raw goal text as the goal artifact. Goal files
// supplied by the user are stored verbatim instead.
func WrapGoal(text string) string {
	return fmt.Sprintf("# Goal\n\n%s", text)
}

// Session exposes typed access to the artifacts of one debate.
// All durability guarantees come from the underlying store; Session adds
// the vocabulary: states, roles, rounds and the consensus terms.
type Session struct {
	store *store.Store
}

// New wraps a store. The store need not exist yet; Create initializes it
// and Open verifies it.
func New(st *store.Store) *Session {
	return &Session{store: st}
}

// Dir returns the session directory path.
func (s *Session) Dir() string {
	return s.store.Dir()
}

// Create wipes any prior session in the directory and seeds a new one:
// the goal, placeholder latest outputs, an empty history, and the state
// set to the proposer's first turn.
func (s *Session) Create(goalContent string) error {
	if err := s.store.Reset(); err != nil {
		return err
	}
	if err := s.store.Write(store.GoalFile, goalContent); err != nil {
		return err
	}
	if err := s.store.Write(store.ProposerFile, initialProposer); err != nil {
		return err
	}
	if err := s.store.Write(store.CriticFile, initialCritic); err != nil {
		return err
	}
	if err := s.store.Write(store.HistoryFile, initialHistory); err != nil {
		return err
	}
	return s.SetState(StateProposerTurn)
}

// Open verifies that the directory holds a session. It reads nothing and
// mutates nothing, so opening an existing session is always safe.
func (s *Session) Open() error {
	if !s.store.Exists() {
		return fmt.Errorf("%w in %s", ErrMissingSession, s.store.Dir())
	}
	return nil
}

// State reads and validates the current turn state.
func (s *Session) State() (State, error) {
	raw, err := s.store.Read(store.StateFile)
	if err != nil {
		return "", err
	}
	return ParseState(raw)
}

// SetState persists the turn state. Callers write state last within a
// turn so that a crash re-attempts the same turn instead of skipping it.
func (s *Session) SetState(state State) error {
	return s.store.Write(store.StateFile, string(state))
}

// Goal returns the goal artifact content.
func (s *Session) Goal() (string, error) {
	return s.store.Read(store.GoalFile)
}

// History returns the full transcript text.
func (s *Session) History() (string, error) {
	return s.store.Read(store.HistoryFile)
}

// LatestProposal returns the most recent proposer output.
func (s *Session) LatestProposal() (string, error) {
	return s.store.Read(store.ProposerFile)
}

// LatestCritique returns the most recent critic output.
func (s *Session) LatestCritique() (string, error) {
	return s.store.Read(store.CriticFile)
}

// SetLatestOutput overwrites the latest-output artifact for a role.
func (s *Session) SetLatestOutput(role transcript.Role, content string) error {
	name := store.ProposerFile
	if role == transcript.RoleCritic {
		name = store.CriticFile
	}
	return s.store.Write(name, content)
}

// CompletedRounds returns the number of proposer turns recorded in the
// history. The proposer turn in flight is round CompletedRounds()+1; the
// critic answers in round CompletedRounds().
func (s *Session) CompletedRounds() (int, error) {
	history, err := s.History()
	if err != nil {
		return 0, err
	}
	return transcript.CountRole(history, transcript.RoleProposer), nil
}

// AppendTurn extends the history with one completed turn. The history is
// append-only; records are never rewritten.
func (s *Session) AppendTurn(rec transcript.Record) error {
	return s.store.Append(store.HistoryFile, transcript.Format(rec))
}

// WriteConsensus persists the consensus artifact. Written exactly once,
// when the critic declares convergence.
func (s *Session) WriteConsensus(round int, criticOutput string) error {
	content := fmt.Sprintf("# Consensus Reached - Round %d\n\n%s", round, criticOutput)
	return s.store.Write(store.ConsensusFile, content)
}

// Consensus returns the consensus artifact, or "" when the debate has
// not converged.
func (s *Session) Consensus() (string, error) {
	return s.store.Read(store.ConsensusFile)
}

// HasConsensus reports whether the consensus artifact exists.
func (s *Session) HasConsensus() bool {
	return s.store.Has(store.ConsensusFile)
}
