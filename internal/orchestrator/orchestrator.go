package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/parley-cli/parley/internal/agent"
	"github.com/parley-cli/parley/internal/prompt"
	"github.com/parley-cli/parley/internal/session"
	"github.com/parley-cli/parley/internal/transcript"
)

// AgentInvoker runs one agent to completion and returns its output.
// Satisfied by *agent.Gateway.
type AgentInvoker interface {
	Invoke(ctx context.Context, kind agent.Kind, prompt string) (string, error)
}

// Executor runs a single turn to durable completion: gather context,
// invoke the agent, persist the results, advance the state.
type Executor struct {
	session *session.Session
	invoker AgentInvoker
	roles   map[transcript.Role]agent.Kind
	logger  *slog.Logger

	// Optional hooks for console display
	onTurnStarted   func(role transcript.Role, round int, kind agent.Kind)
	onTurnCompleted func(rec transcript.Record)
}

// NewExecutor creates a turn executor. roles maps each debate role to
// the agent kind that plays it.
func NewExecutor(
	sess *session.Session,
	invoker AgentInvoker,
	roles map[transcript.Role]agent.Kind,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		session: sess,
		invoker: invoker,
		roles:   roles,
		logger:  logger,
	}
}

// SetTurnStartedHandler sets the callback fired before an agent is invoked.
func (e *Executor) SetTurnStartedHandler(handler func(role transcript.Role, round int, kind agent.Kind)) {
	e.onTurnStarted = handler
}

// SetTurnCompletedHandler sets the callback fired after a turn is persisted.
func (e *Executor) SetTurnCompletedHandler(handler func(rec transcript.Record)) {
	e.onTurnCompleted = handler
}

// RunTurn executes one turn for the given role and returns the state the
// session advanced to.
//
// Persistence happens only after the agent has answered, in a fixed
// order: latest-output artifact, transcript record, consensus artifact
// (critic declaring convergence), then the state tag. A failed or
// cancelled invocation writes nothing, so the turn never happened as far
// as the store is concerned and a later resume re-attempts it cleanly.
func (e *Executor) RunTurn(ctx context.Context, role transcript.Role) (session.State, error) {
	completed, err := e.session.CompletedRounds()
	if err != nil {
		return "", err
	}

	// The proposer opens round k+1; the critic answers within round k
	round := completed
	if role == transcript.RoleProposer {
		round = completed + 1
	}

	kind, ok := e.roles[role]
	if !ok {
		return "", fmt.Errorf("no agent configured for role %s", role)
	}

	in, err := e.gatherInputs(role)
	if err != nil {
		return "", err
	}

	e.logger.Info("turn started", "role", role, "round", round, "kind", kind)
	if e.onTurnStarted != nil {
		e.onTurnStarted(role, round, kind)
	}

	output, err := e.invoker.Invoke(ctx, kind, prompt.Build(role, round, in))
	if err != nil {
		return "", fmt.Errorf("%s turn: %w", strings.ToLower(string(role)), err)
	}

	if err := e.session.SetLatestOutput(role, output); err != nil {
		return "", err
	}

	rec := transcript.Record{
		Role:      role,
		Round:     round,
		Timestamp: time.Now(),
		Content:   output,
	}
	if err := e.session.AppendTurn(rec); err != nil {
		return "", err
	}

	next := session.StateCriticTurn
	if role == transcript.RoleCritic {
		if session.ContainsConsensusMarker(output) {
			if err := e.session.WriteConsensus(round, output); err != nil {
				return "", err
			}
			next = session.StateConsensus
		} else {
			next = session.StateProposerTurn
		}
	}

	if err := e.session.SetState(next); err != nil {
		return "", err
	}

	e.logger.Info("turn completed", "role", role, "round", round, "next", next)
	if e.onTurnCompleted != nil {
		e.onTurnCompleted(rec)
	}

	return next, nil
}

func (e *Executor) gatherInputs(role transcript.Role) (prompt.Inputs, error) {
	goal, err := e.session.Goal()
	if err != nil {
		return prompt.Inputs{}, err
	}
	history, err := e.session.History()
	if err != nil {
		return prompt.Inputs{}, err
	}

	var latest string
	if role == transcript.RoleProposer {
		latest, err = e.session.LatestCritique()
	} else {
		latest, err = e.session.LatestProposal()
	}
	if err != nil {
		return prompt.Inputs{}, err
	}

	return prompt.Inputs{Goal: goal, History: history, Latest: latest}, nil
}

// Outcome classifies how a debate run ended.
type Outcome string

const (
	// OutcomeConsensus means the critic declared convergence.
	OutcomeConsensus Outcome = "consensus"
	// OutcomeBudgetExhausted means the proposer-round budget ran out with
	// the session state untouched, so a resume continues the debate.
	OutcomeBudgetExhausted Outcome = "budget_exhausted"
	// OutcomeInterrupted means the run was cancelled cleanly; any
	// in-flight agent was terminated and nothing partial was persisted.
	OutcomeInterrupted Outcome = "interrupted"
)

// Loop drives the debate until consensus, budget exhaustion,
// cancellation, or a turn failure.
type Loop struct {
	executor     *Executor
	maxRounds    int
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewLoop creates the orchestration loop. maxRounds budgets the proposer
// turns of this run; pollInterval rate-limits state polling.
func NewLoop(executor *Executor, maxRounds int, pollInterval time.Duration, logger *slog.Logger) *Loop {
	return &Loop{
		executor:     executor,
		maxRounds:    maxRounds,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Run executes the turn loop and returns how it ended. Cancellation is
// an expected termination: the in-flight turn is abandoned without any
// partial write and the outcome is OutcomeInterrupted with a nil error.
//
// The budget counts proposer turns started by this run, so resuming
// always grants a fresh budget. Only a pending proposer turn is gated:
// a critic turn in flight at the budget boundary still runs, completing
// its round. A budget stop never alters the persisted state.
func (l *Loop) Run(ctx context.Context) (Outcome, error) {
	rounds := 0

	for {
		if ctx.Err() != nil {
			l.logger.Info("run interrupted")
			return OutcomeInterrupted, nil
		}

		state, err := l.executor.session.State()
		if err != nil {
			return "", err
		}

		switch state {
		case session.StateConsensus:
			l.logger.Info("consensus reached", "rounds", rounds)
			return OutcomeConsensus, nil

		case session.StateProposerTurn:
			if rounds >= l.maxRounds {
				l.logger.Info("round budget exhausted", "max_rounds", l.maxRounds)
				return OutcomeBudgetExhausted, nil
			}
			if _, err := l.executor.RunTurn(ctx, transcript.RoleProposer); err != nil {
				return l.classifyTurnError(err)
			}
			rounds++

		case session.StateCriticTurn:
			if _, err := l.executor.RunTurn(ctx, transcript.RoleCritic); err != nil {
				return l.classifyTurnError(err)
			}
		}

		select {
		case <-ctx.Done():
			l.logger.Info("run interrupted")
			return OutcomeInterrupted, nil
		case <-time.After(l.pollInterval):
		}
	}
}

func (l *Loop) classifyTurnError(err error) (Outcome, error) {
	if errors.Is(err, context.Canceled) {
		l.logger.Info("run interrupted mid-turn")
		return OutcomeInterrupted, nil
	}
	return "", err
}
