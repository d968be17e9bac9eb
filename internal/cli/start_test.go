package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/parley-cli/parley/internal/agent"
	"github.com/parley-cli/parley/internal/config"
	"github.com/parley-cli/parley/internal/runstate"
	"github.com/parley-cli/parley/internal/session"
	"github.com/parley-cli/parley/internal/store"
	"github.com/parley-cli/parley/internal/transcript"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestResolveGoalWrapsInlineText(t *testing.T) {
	setStartFlags(t, map[string]string{"goal": "Pick a database"})

	goal, err := resolveGoal(startCmd)
	require.NoError(t, err)
	require.Equal(t, "# Goal\n\nPick a database", goal)
}

func TestResolveGoalReadsFileVerbatim(t *testing.T) {
	goalPath := filepath.Join(t.TempDir(), "goal.md")
	content := "# Migration Plan\n\nDecide how to split the monolith.\n"
	require.NoError(t, os.WriteFile(goalPath, []byte(content), 0o644))

	setStartFlags(t, map[string]string{"goal-file": goalPath})

	goal, err := resolveGoal(startCmd)
	require.NoError(t, err)
	require.Equal(t, content, goal)
}

func TestResolveGoalRejectsBothSources(t *testing.T) {
	setStartFlags(t, map[string]string{
		"goal":      "inline",
		"goal-file": "somewhere.md",
	})

	_, err := resolveGoal(startCmd)
	require.Error(t, err)
	require.Contains(t, err.Error(), "mutually exclusive")
}

func TestResolveGoalRequiresASource(t *testing.T) {
	_, err := resolveGoal(startCmd)
	require.Error(t, err)
	require.Contains(t, err.Error(), "a debate goal is required")
}

func TestResolveGoalMissingFile(t *testing.T) {
	setStartFlags(t, map[string]string{"goal-file": filepath.Join(t.TempDir(), "absent.md")})

	_, err := resolveGoal(startCmd)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read goal file")
}

func TestApplyDebateFlagsDefaults(t *testing.T) {
	cfg := config.GenerateDefault()

	require.NoError(t, applyDebateFlags(startCmd, cfg))
	require.Equal(t, "claude", cfg.Roles.Proposer)
	require.Equal(t, "codex", cfg.Roles.Critic)
	require.Equal(t, 10, cfg.MaxRounds)
}

func TestApplyDebateFlagsOverridesSeatsAndBudget(t *testing.T) {
	cfg := config.GenerateDefault()
	setStartFlags(t, map[string]string{
		"proposer":   "codex",
		"critic":     "claude",
		"max-rounds": "7",
	})

	require.NoError(t, applyDebateFlags(startCmd, cfg))
	require.Equal(t, "codex", cfg.Roles.Proposer)
	require.Equal(t, "claude", cfg.Roles.Critic)
	require.Equal(t, 7, cfg.MaxRounds)
}

func TestApplyDebateFlagsSwapExchangesSeats(t *testing.T) {
	cfg := config.GenerateDefault()
	setStartFlags(t, map[string]string{"swap": "true"})

	require.NoError(t, applyDebateFlags(startCmd, cfg))
	require.Equal(t, "codex", cfg.Roles.Proposer)
	require.Equal(t, "claude", cfg.Roles.Critic)
}

func TestApplyDebateFlagsSwapAppliesAfterOverrides(t *testing.T) {
	cfg := config.GenerateDefault()
	setStartFlags(t, map[string]string{
		"proposer": "codex",
		"critic":   "claude",
		"swap":     "true",
	})

	require.NoError(t, applyDebateFlags(startCmd, cfg))
	require.Equal(t, "claude", cfg.Roles.Proposer)
	require.Equal(t, "codex", cfg.Roles.Critic)
}

func TestApplyDebateFlagsRejectsUnknownAgent(t *testing.T) {
	cfg := config.GenerateDefault()
	setStartFlags(t, map[string]string{"proposer": "gemini"})

	err := applyDebateFlags(startCmd, cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "gemini")
}

func TestResolveDebateDirFlagWins(t *testing.T) {
	cfg := config.GenerateDefault()
	setStartFlags(t, map[string]string{"dir": "/tmp/elsewhere"})

	dir, err := resolveDebateDir(startCmd, cfg, "/workspace/parley.json")
	require.NoError(t, err)
	require.Equal(t, "/tmp/elsewhere", dir)
}

func TestResolveDebateDirRelativeToConfig(t *testing.T) {
	cfg := config.GenerateDefault()
	cfg.DebateDir = "./debate"

	dir, err := resolveDebateDir(startCmd, cfg, "/workspace/parley.json")
	require.NoError(t, err)
	require.Equal(t, "/workspace/debate", dir)
}

func TestResolveDebateDirAbsoluteConfigValue(t *testing.T) {
	cfg := config.GenerateDefault()
	cfg.DebateDir = "/var/lib/parley/debate"

	dir, err := resolveDebateDir(startCmd, cfg, "/workspace/parley.json")
	require.NoError(t, err)
	require.Equal(t, "/var/lib/parley/debate", dir)
}

func TestBuildGateway(t *testing.T) {
	cfg := config.GenerateDefault()

	gateway, err := buildGateway(cfg, discardLogger())
	require.NoError(t, err)
	require.NotNil(t, gateway)
}

func TestBuildGatewayRejectsInvalidOutputMode(t *testing.T) {
	cfg := config.GenerateDefault()
	agentCfg := cfg.Agents["codex"]
	agentCfg.Output = "tcp"
	cfg.Agents["codex"] = agentCfg

	_, err := buildGateway(cfg, discardLogger())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid output mode")
}

func TestDriveDebateConsensus(t *testing.T) {
	binary := buildHelperBinary(t, "./cmd/parley-fixture")

	sess := session.New(store.New(filepath.Join(t.TempDir(), "debate")))
	require.NoError(t, sess.Create(session.WrapGoal("Pick a queueing strategy")))

	cfg := fixtureConfig(binary, "-consensus-round", "1")

	var output bytes.Buffer
	command := newBareCommand(&output)

	err := driveDebate(command, cfg, sess, discardLogger())
	require.NoError(t, err, output.String())

	data := output.String()
	require.Contains(t, data, "Debate session: "+sess.Dir())
	require.Contains(t, data, "[proposer] round 1: invoking fixture-proposer")
	require.Contains(t, data, "[critic] round 1: invoking fixture-critic")
	require.Contains(t, data, "Consensus reached after 1 round(s).")

	state, err := sess.State()
	require.NoError(t, err)
	require.Equal(t, session.StateConsensus, state)

	runState, err := runstate.LoadRunState(runstate.GetRunStatePath(sess.Dir()))
	require.NoError(t, err)
	require.Equal(t, runstate.StatusConsensus, runState.Status)
	require.NotNil(t, runState.CompletedAt)
	require.Equal(t, "fixture-proposer", runState.Proposer)
	require.Equal(t, "fixture-critic", runState.Critic)
}

func TestDriveDebateBudgetExhausted(t *testing.T) {
	binary := buildHelperBinary(t, "./cmd/parley-fixture")

	sess := session.New(store.New(filepath.Join(t.TempDir(), "debate")))
	require.NoError(t, sess.Create(session.WrapGoal("Pick a queueing strategy")))

	cfg := fixtureConfig(binary)
	cfg.MaxRounds = 1

	var output bytes.Buffer
	command := newBareCommand(&output)

	err := driveDebate(command, cfg, sess, discardLogger())
	require.NoError(t, err, output.String())

	data := output.String()
	require.Contains(t, data, "Round budget exhausted after 1 completed round(s) without consensus.")
	require.Contains(t, data, "Resume with: parley resume")

	state, err := sess.State()
	require.NoError(t, err)
	require.Equal(t, session.StateProposerTurn, state)

	runState, err := runstate.LoadRunState(runstate.GetRunStatePath(sess.Dir()))
	require.NoError(t, err)
	require.Equal(t, runstate.StatusBudgetExhausted, runState.Status)
}

func TestDriveDebateResumesPendingCriticTurn(t *testing.T) {
	binary := buildHelperBinary(t, "./cmd/parley-fixture")

	sess := session.New(store.New(filepath.Join(t.TempDir(), "debate")))
	require.NoError(t, sess.Create(session.WrapGoal("Pick a queueing strategy")))

	// A prior run completed the proposer turn and stopped before the critic.
	proposal := "# Proposal (Round 1)\n\nShip the simplest thing."
	require.NoError(t, sess.SetLatestOutput(transcript.RoleProposer, proposal))
	require.NoError(t, sess.AppendTurn(transcript.Record{
		Role:      transcript.RoleProposer,
		Round:     1,
		Timestamp: time.Now(),
		Content:   proposal,
	}))
	require.NoError(t, sess.SetState(session.StateCriticTurn))

	cfg := fixtureConfig(binary, "-consensus-round", "1")

	var output bytes.Buffer
	command := newBareCommand(&output)

	err := driveDebate(command, cfg, sess, discardLogger())
	require.NoError(t, err, output.String())

	data := output.String()
	require.NotContains(t, data, "[proposer] round 1", "the completed proposer turn must not re-run")
	require.Contains(t, data, "[critic] round 1: invoking fixture-critic")
	require.Contains(t, data, "Consensus reached after 1 round(s).")

	state, err := sess.State()
	require.NoError(t, err)
	require.Equal(t, session.StateConsensus, state)
}

func TestDriveDebateAgentFailure(t *testing.T) {
	binary := buildHelperBinary(t, "./cmd/parley-fixture")

	sess := session.New(store.New(filepath.Join(t.TempDir(), "debate")))
	require.NoError(t, sess.Create(session.WrapGoal("Pick a queueing strategy")))

	cfg := fixtureConfig(binary)
	proposerCfg := cfg.Agents["fixture-proposer"]
	proposerCfg.Cmd = append(proposerCfg.Cmd, "-fail")
	cfg.Agents["fixture-proposer"] = proposerCfg

	var output bytes.Buffer
	command := newBareCommand(&output)

	err := driveDebate(command, cfg, sess, discardLogger())
	require.Error(t, err)

	var execErr *agent.ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Contains(t, output.String(), "Progress saved. Resume with: parley resume")

	state, err := sess.State()
	require.NoError(t, err)
	require.Equal(t, session.StateProposerTurn, state)

	runState, err := runstate.LoadRunState(runstate.GetRunStatePath(sess.Dir()))
	require.NoError(t, err)
	require.Equal(t, runstate.StatusFailed, runState.Status)
}

func TestStartCommandEndToEnd(t *testing.T) {
	binary := buildHelperBinary(t, "./cmd/parley-fixture")

	workDir := t.TempDir()
	debateDir := filepath.Join(workDir, "debate")

	cfg := fixtureConfig(binary, "-consensus-round", "1")
	cfg.PollIntervalS = 1
	cfgPath := filepath.Join(workDir, "parley.json")
	require.NoError(t, cfg.SaveToFile(cfgPath))

	output, err := executeRoot(t,
		"start",
		"--config", cfgPath,
		"--dir", debateDir,
		"--goal", "Pick a queueing strategy",
	)
	require.NoError(t, err, output)
	require.Contains(t, output, "Consensus reached after 1 round(s).")

	sess := session.New(store.New(debateDir))
	require.NoError(t, sess.Open())

	consensus, err := sess.Consensus()
	require.NoError(t, err)
	require.Contains(t, consensus, "# Consensus Reached - Round 1")
}

func TestStartCommandRequiresGoal(t *testing.T) {
	_, err := executeRoot(t, "start")
	require.Error(t, err)
	require.Contains(t, err.Error(), "a debate goal is required")
}

func TestResumeCommandMissingSession(t *testing.T) {
	workDir := t.TempDir()
	cfgPath := filepath.Join(workDir, "parley.json")
	require.NoError(t, config.GenerateDefault().SaveToFile(cfgPath))

	_, err := executeRoot(t,
		"resume",
		"--config", cfgPath,
		"--dir", filepath.Join(workDir, "debate"),
	)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no debate to resume")
	require.Contains(t, err.Error(), "parley start --goal")
}

func TestResumeCommandAlreadyConsensus(t *testing.T) {
	workDir := t.TempDir()
	debateDir := filepath.Join(workDir, "debate")
	cfgPath := filepath.Join(workDir, "parley.json")
	require.NoError(t, config.GenerateDefault().SaveToFile(cfgPath))

	sess := session.New(store.New(debateDir))
	require.NoError(t, sess.Create(session.WrapGoal("Settled already")))
	require.NoError(t, sess.WriteConsensus(2, "# Critique (Round 2)\n\nCONSENSUS REACHED"))
	require.NoError(t, sess.SetState(session.StateConsensus))

	output, err := executeRoot(t,
		"resume",
		"--config", cfgPath,
		"--dir", debateDir,
	)
	require.NoError(t, err)
	require.Contains(t, output, "Debate already reached consensus.")
	require.Contains(t, output, store.ConsensusFile)
}

// setStartFlags sets flags on the shared start command and restores
// their defaults when the test finishes.
func setStartFlags(t *testing.T, values map[string]string) {
	t.Helper()
	for name, value := range values {
		require.NoError(t, startCmd.Flags().Set(name, value))
	}
	t.Cleanup(func() {
		for name := range values {
			resetFlag(startCmd, name)
		}
	})
}

// fixtureConfig wires both seats to the scripted fixture agent. Extra
// args apply to the critic seat.
func fixtureConfig(binary string, criticArgs ...string) *config.Config {
	critic := append([]string{binary, "-role", "critic"}, criticArgs...)
	return &config.Config{
		Version:       "1",
		DebateDir:     "./debate",
		MaxRounds:     5,
		PollIntervalS: 0,
		AgentTimeoutS: 30,
		Roles: config.Roles{
			Proposer: "fixture-proposer",
			Critic:   "fixture-critic",
		},
		Agents: map[string]config.AgentConfig{
			"fixture-proposer": {Cmd: []string{binary, "-role", "proposer"}, Output: config.OutputStdout},
			"fixture-critic":   {Cmd: critic, Output: config.OutputStdout},
		},
	}
}

func newBareCommand(out io.Writer) *cobra.Command {
	command := &cobra.Command{}
	command.SetContext(context.Background())
	command.SetOut(out)
	command.SetErr(out)
	return command
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func buildHelperBinary(t *testing.T, pkg string) string {
	t.Helper()
	tmpDir := t.TempDir()
	out := filepath.Join(tmpDir, filepath.Base(pkg))

	cmd := exec.Command("go", "build", "-o", out, pkg)
	cmd.Dir = repoRoot(t)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")

	buildOutput, err := cmd.CombinedOutput()
	require.NoError(t, err, "go build failed: %s", string(buildOutput))
	return out
}

func repoRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	return filepath.Join(wd, "..", "..")
}
