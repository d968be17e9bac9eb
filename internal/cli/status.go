package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/parley-cli/parley/internal/runstate"
	"github.com/parley-cli/parley/internal/session"
	"github.com/parley-cli/parley/internal/store"
	"github.com/parley-cli/parley/internal/transcript"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the debate session",
	Long: `Show the state of the debate session: current turn, completed
rounds, the last recorded turn, and whether a run is active.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().String("dir", "", "Debate directory (default from config)")
	statusCmd.Flags().BoolP("follow", "f", false, "Keep watching the session and re-print on changes")
}

// followDebounce coalesces the burst of file events a single turn
// produces into one refresh.
const followDebounce = 200 * time.Millisecond

func runStatus(cmd *cobra.Command, args []string) error {
	// Observers log to stderr so the report itself owns stdout.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	debateDir, err := observerDebateDir(cmd)
	if err != nil {
		return err
	}

	outWriter := cmd.OutOrStdout()

	sess := session.New(store.New(debateDir))
	if err := sess.Open(); err != nil {
		if errors.Is(err, session.ErrMissingSession) {
			fmt.Fprintf(outWriter, "No debate session in %s.\n", debateDir)
			fmt.Fprintf(outWriter, "  Start one with: parley start --goal \"...\"\n")
			return nil
		}
		return fmt.Errorf("failed to open debate session: %w", err)
	}

	if err := printStatus(outWriter, sess); err != nil {
		return err
	}

	follow, err := cmd.Flags().GetBool("follow")
	if err != nil {
		return err
	}
	if !follow {
		return nil
	}

	return followStatus(cmd, sess, logger)
}

// printStatus renders one status report for the session.
func printStatus(w io.Writer, sess *session.Session) error {
	state, err := sess.State()
	if err != nil {
		return err
	}

	rounds, err := sess.CompletedRounds()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Debate session: %s\n", sess.Dir())
	fmt.Fprintf(w, "  State:     %s\n", state)
	fmt.Fprintf(w, "  Rounds:    %d completed\n", rounds)

	history, err := sess.History()
	if err != nil {
		return err
	}
	if records := transcript.Parse(history); len(records) > 0 {
		last := records[len(records)-1]
		fmt.Fprintf(w, "  Last turn: [%s] round %d (%s)\n",
			last.Role, last.Round, last.Timestamp.Format(transcript.TimestampLayout))
	} else {
		fmt.Fprintf(w, "  Last turn: (none)\n")
	}

	fmt.Fprintf(w, "  Run:       %s\n", describeRun(sess.Dir()))

	if state == session.StateConsensus {
		fmt.Fprintf(w, "  Consensus: %s\n", filepath.Join(sess.Dir(), store.ConsensusFile))
	}

	return nil
}

// describeRun summarizes run.json, distinguishing a live orchestrator
// from metadata a crashed one left behind.
func describeRun(debateDir string) string {
	state, err := runstate.LoadRunState(runstate.GetRunStatePath(debateDir))
	if err != nil {
		return "(none)"
	}

	if state.IsRunning() {
		if processAlive(state.PID) {
			return fmt.Sprintf("%s (running, pid %d)", state.RunID, state.PID)
		}
		return fmt.Sprintf("%s (stale, recorded pid %d is gone)", state.RunID, state.PID)
	}

	return fmt.Sprintf("%s (%s)", state.RunID, state.Status)
}

// followStatus re-prints the report whenever the session directory
// changes, until interrupted.
func followStatus(cmd *cobra.Command, sess *session.Session, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(sess.Dir()); err != nil {
		return fmt.Errorf("failed to watch %s: %w", sess.Dir(), err)
	}

	baseCtx := cmd.Context()
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outWriter := cmd.OutOrStdout()

	timer := time.NewTimer(followDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Atomic writes land as a rename; appends are writes.
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(followDebounce)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", watchErr)

		case <-timer.C:
			fmt.Fprintln(outWriter)
			if err := printStatus(outWriter, sess); err != nil {
				return err
			}
		}
	}
}

// observerDebateDir resolves the session directory for the read-only
// commands. Unlike start and resume they never create a missing config;
// defaults apply when nothing is found.
func observerDebateDir(cmd *cobra.Command) (string, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return "", err
	}

	cfg, cfgPath, _, err := loadConfig(configPath)
	if err != nil {
		return "", err
	}

	return resolveDebateDir(cmd, cfg, cfgPath)
}
