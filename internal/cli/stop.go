package cli

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/parley-cli/parley/internal/runstate"
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Interrupt the active debate run",
	Long: `Interrupt the active debate run by signalling its process. The run
pauses at the next turn boundary and can be picked up with 'parley resume'.`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().String("dir", "", "Debate directory (default from config)")
}

func runStop(cmd *cobra.Command, args []string) error {
	debateDir, err := observerDebateDir(cmd)
	if err != nil {
		return err
	}

	outWriter := cmd.OutOrStdout()

	statePath := runstate.GetRunStatePath(debateDir)
	state, err := runstate.LoadRunState(statePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(outWriter, "No run recorded in %s.\n", debateDir)
			return nil
		}
		return fmt.Errorf("failed to load run state: %w", err)
	}

	if !state.IsRunning() {
		fmt.Fprintf(outWriter, "No active run: %s finished with status %s.\n", state.RunID, state.Status)
		return nil
	}

	if !processAlive(state.PID) {
		// Crash left running metadata behind. Repair it so status
		// stops reporting a live run.
		state.MarkStopped()
		if err := runstate.SaveRunState(state, statePath); err != nil {
			return fmt.Errorf("failed to repair run state: %w", err)
		}
		fmt.Fprintf(outWriter, "Run %s was stale (pid %d is gone); marked stopped.\n", state.RunID, state.PID)
		fmt.Fprintf(outWriter, "  Resume with: parley resume\n")
		return nil
	}

	if err := syscall.Kill(state.PID, syscall.SIGINT); err != nil {
		return fmt.Errorf("failed to signal pid %d: %w", state.PID, err)
	}

	fmt.Fprintf(outWriter, "Sent interrupt to run %s (pid %d).\n", state.RunID, state.PID)
	fmt.Fprintf(outWriter, "  The run pauses at the next turn boundary.\n")
	return nil
}

// processAlive reports whether a pid names a live process we may signal.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}
