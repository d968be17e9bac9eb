package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/parley-cli/parley/internal/session"
	"github.com/parley-cli/parley/internal/store"
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume an interrupted or exhausted debate",
	Long: `Resume a debate from its saved session files. The pending turn is
re-run from the top and the loop continues with a fresh round budget.`,
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringP("proposer", "p", "", "Agent kind for the proposer seat (default from config)")
	resumeCmd.Flags().StringP("critic", "c", "", "Agent kind for the critic seat (default from config)")
	resumeCmd.Flags().IntP("max-rounds", "m", 0, "Round budget for this run (default from config)")
	resumeCmd.Flags().BoolP("swap", "s", false, "Swap the two seats")
	resumeCmd.Flags().String("dir", "", "Debate directory (default from config)")
}

func runResume(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

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

	sess := session.New(store.New(debateDir))
	if err := sess.Open(); err != nil {
		if errors.Is(err, session.ErrMissingSession) {
			return fmt.Errorf("no debate to resume in %s: start one with 'parley start --goal'", debateDir)
		}
		return fmt.Errorf("failed to open debate session: %w", err)
	}

	state, err := sess.State()
	if err != nil {
		return err
	}

	if state == session.StateConsensus {
		fmt.Fprintf(cmd.OutOrStdout(), "Debate already reached consensus.\n")
		fmt.Fprintf(cmd.OutOrStdout(), "  See %s\n", filepath.Join(sess.Dir(), store.ConsensusFile))
		return nil
	}

	logger.Info("session opened", "dir", debateDir, "state", string(state))

	return driveDebate(cmd, cfg, sess, logger)
}
