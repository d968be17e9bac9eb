package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/parley-cli/parley/internal/agent"
	"github.com/parley-cli/parley/internal/config"
	"github.com/parley-cli/parley/internal/orchestrator"
	"github.com/parley-cli/parley/internal/runstate"
	"github.com/parley-cli/parley/internal/session"
	"github.com/parley-cli/parley/internal/store"
	"github.com/parley-cli/parley/internal/transcript"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new debate",
	Long: `Start a new debate over the given goal. Any existing session in the
debate directory is wiped first. The run continues until the critic
declares consensus, the round budget runs out, or it is interrupted.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringP("goal", "g", "", "Debate goal text")
	startCmd.Flags().StringP("goal-file", "f", "", "Read the debate goal from a file")
	startCmd.Flags().StringP("proposer", "p", "", "Agent kind for the proposer seat (default from config)")
	startCmd.Flags().StringP("critic", "c", "", "Agent kind for the critic seat (default from config)")
	startCmd.Flags().IntP("max-rounds", "m", 0, "Round budget for this run (default from config)")
	startCmd.Flags().BoolP("swap", "s", false, "Swap the two seats")
	startCmd.Flags().String("dir", "", "Debate directory (default from config)")
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	goalContent, err := resolveGoal(cmd)
	if err != nil {
		return err
	}

	// Find or create config
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}

	cfg, cfgPath, err := loadOrCreateConfig(configPath, logger)
	if err != nil {
		return err
	}

	logger.Info("loaded configuration", "path", cfgPath)

	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := applyDebateFlags(cmd, cfg); err != nil {
		return err
	}

	debateDir, err := resolveDebateDir(cmd, cfg, cfgPath)
	if err != nil {
		return err
	}

	// A start wipes whatever session was there before.
	sess := session.New(store.New(debateDir))
	if err := sess.Create(goalContent); err != nil {
		return fmt.Errorf("failed to create debate session: %w", err)
	}

	logger.Info("session created", "dir", debateDir)

	return driveDebate(cmd, cfg, sess, logger)
}

// resolveGoal reads the goal from --goal or --goal-file. Inline goals
// are wrapped in the goal heading; file content is taken verbatim.
func resolveGoal(cmd *cobra.Command) (string, error) {
	goal, err := cmd.Flags().GetString("goal")
	if err != nil {
		return "", err
	}

	goalFile, err := cmd.Flags().GetString("goal-file")
	if err != nil {
		return "", err
	}

	if goal != "" && goalFile != "" {
		return "", fmt.Errorf("--goal and --goal-file are mutually exclusive")
	}

	if goalFile != "" {
		data, err := os.ReadFile(goalFile)
		if err != nil {
			return "", fmt.Errorf("failed to read goal file: %w", err)
		}
		return string(data), nil
	}

	if goal == "" {
		return "", fmt.Errorf("a debate goal is required: pass --goal or --goal-file")
	}

	return session.WrapGoal(goal), nil
}

// applyDebateFlags overlays seat and budget flags onto the loaded
// config. --swap exchanges the seats after any explicit overrides, so
// 'start -p claude -c codex --swap' seats codex as the proposer.
func applyDebateFlags(cmd *cobra.Command, cfg *config.Config) error {
	proposer, err := cmd.Flags().GetString("proposer")
	if err != nil {
		return err
	}
	if proposer != "" {
		cfg.Roles.Proposer = proposer
	}

	critic, err := cmd.Flags().GetString("critic")
	if err != nil {
		return err
	}
	if critic != "" {
		cfg.Roles.Critic = critic
	}

	swap, err := cmd.Flags().GetBool("swap")
	if err != nil {
		return err
	}
	if swap {
		cfg.Roles.Proposer, cfg.Roles.Critic = cfg.Roles.Critic, cfg.Roles.Proposer
	}

	maxRounds, err := cmd.Flags().GetInt("max-rounds")
	if err != nil {
		return err
	}
	if maxRounds > 0 {
		cfg.MaxRounds = maxRounds
	}

	// Overridden seats must still reference defined agents.
	return cfg.Validate()
}

// driveDebate runs the orchestration loop over an existing session and
// reports the outcome. Shared by start and resume.
func driveDebate(cmd *cobra.Command, cfg *config.Config, sess *session.Session, logger *slog.Logger) error {
	outWriter := cmd.OutOrStdout()

	gateway, err := buildGateway(cfg, logger)
	if err != nil {
		return err
	}

	roles := map[transcript.Role]agent.Kind{
		transcript.RoleProposer: agent.Kind(cfg.Roles.Proposer),
		transcript.RoleCritic:   agent.Kind(cfg.Roles.Critic),
	}

	fmt.Fprintf(outWriter, "Debate session: %s\n", sess.Dir())
	fmt.Fprintf(outWriter, "  Proposer: %s\n", cfg.Roles.Proposer)
	fmt.Fprintf(outWriter, "  Critic:   %s\n", cfg.Roles.Critic)
	fmt.Fprintf(outWriter, "  Budget:   %d round(s)\n", cfg.MaxRounds)

	// Generate run ID
	runID := fmt.Sprintf("run-%s-%s", time.Now().UTC().Format("20060102-150405"), uuid.New().String()[:8])

	// Initialize run state
	state := runstate.NewRunState(runID, cfg.Roles.Proposer, cfg.Roles.Critic, cfg.MaxRounds)
	statePath := runstate.GetRunStatePath(sess.Dir())
	if err := runstate.SaveRunState(state, statePath); err != nil {
		return fmt.Errorf("failed to save run state: %w", err)
	}

	logger.Info("run initialized", "run_id", runID)

	executor := orchestrator.NewExecutor(sess, gateway, roles, logger)
	executor.SetTurnStartedHandler(func(role transcript.Role, round int, kind agent.Kind) {
		fmt.Fprintf(outWriter, "[%s] round %d: invoking %s\n", strings.ToLower(string(role)), round, kind)
	})
	executor.SetTurnCompletedHandler(func(rec transcript.Record) {
		fmt.Fprintf(outWriter, "[%s] round %d: captured %d bytes\n", strings.ToLower(string(rec.Role)), rec.Round, len(rec.Content))
	})

	loop := orchestrator.NewLoop(executor, cfg.MaxRounds, cfg.PollInterval(), logger)

	baseCtx := cmd.Context()
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outcome, err := loop.Run(ctx)
	if err != nil {
		state.MarkFailed()
		runstate.SaveRunState(state, statePath)
		fmt.Fprintf(outWriter, "\nProgress saved. Resume with: parley resume\n")
		return fmt.Errorf("debate run failed: %w", err)
	}

	rounds, err := sess.CompletedRounds()
	if err != nil {
		logger.Warn("failed to count completed rounds", "error", err)
	}

	switch outcome {
	case orchestrator.OutcomeConsensus:
		state.MarkConsensus()
		fmt.Fprintf(outWriter, "\nConsensus reached after %d round(s).\n", rounds)
		fmt.Fprintf(outWriter, "  See %s\n", filepath.Join(sess.Dir(), store.ConsensusFile))
	case orchestrator.OutcomeBudgetExhausted:
		state.MarkBudgetExhausted()
		fmt.Fprintf(outWriter, "\nRound budget exhausted after %d completed round(s) without consensus.\n", rounds)
		fmt.Fprintf(outWriter, "  Resume with: parley resume\n")
	case orchestrator.OutcomeInterrupted:
		state.MarkStopped()
		fmt.Fprintf(outWriter, "\nPaused. Resume with: parley resume\n")
	}

	if err := runstate.SaveRunState(state, statePath); err != nil {
		logger.Warn("failed to save final run state", "error", err)
	}

	logger.Info("run finished", "run_id", runID, "outcome", string(outcome))
	return nil
}

// buildGateway turns the configured agent registry into a process gateway
func buildGateway(cfg *config.Config, logger *slog.Logger) (*agent.Gateway, error) {
	specs := make(map[agent.Kind]agent.Spec, len(cfg.Agents))
	for name, agentCfg := range cfg.Agents {
		mode := agent.OutputMode(agentCfg.Output)
		if !mode.Valid() {
			return nil, fmt.Errorf("agent '%s' has invalid output mode %q", name, agentCfg.Output)
		}
		specs[agent.Kind(name)] = agent.Spec{
			Cmd:    agentCfg.Cmd,
			Output: mode,
			Env:    agentCfg.Env,
		}
	}
	return agent.NewGateway(specs, cfg.AgentTimeout(), logger), nil
}

// resolveDebateDir picks the session directory: the --dir flag wins,
// otherwise the configured directory resolved relative to the config
// file, so every invocation finds the same session regardless of the
// caller's working directory.
func resolveDebateDir(cmd *cobra.Command, cfg *config.Config, cfgPath string) (string, error) {
	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		return "", err
	}
	if dir != "" {
		return dir, nil
	}

	if filepath.IsAbs(cfg.DebateDir) {
		return cfg.DebateDir, nil
	}
	return filepath.Join(filepath.Dir(cfgPath), cfg.DebateDir), nil
}

// loadConfig resolves a config without writing anything: explicit path,
// then the directory tree walk. When nothing is found it returns the
// in-memory defaults and the path a created config would live at.
func loadConfig(configPath string) (*config.Config, string, bool, error) {
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		return cfg, configPath, true, nil
	}

	foundPath, err := findConfigInTree()
	if err != nil {
		return nil, "", false, err
	}

	if foundPath != "" {
		cfg, err := config.LoadFromFile(foundPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, foundPath, true, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to get current directory: %w", err)
	}

	return config.GenerateDefault(), filepath.Join(cwd, "parley.json"), false, nil
}

// loadOrCreateConfig finds an existing config or creates a default one
// in the current directory
func loadOrCreateConfig(configPath string, logger *slog.Logger) (*config.Config, string, error) {
	cfg, cfgPath, found, err := loadConfig(configPath)
	if err != nil {
		return nil, "", err
	}

	if found {
		return cfg, cfgPath, nil
	}

	logger.Info("no config found, creating default", "path", cfgPath)

	if err := cfg.SaveToFile(cfgPath); err != nil {
		return nil, "", fmt.Errorf("failed to save default config: %w", err)
	}

	return cfg, cfgPath, nil
}

// findConfigInTree searches up the directory tree for parley.json
func findConfigInTree() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	for {
		configPath := filepath.Join(dir, "parley.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		// Move up one directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			break
		}
		dir = parent
	}

	return "", nil
}
