package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/parley-cli/parley/internal/session"
	"github.com/parley-cli/parley/internal/store"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the debate as a single markdown document",
	Long: `Export the debate as a single markdown document: the goal, the
outcome so far, and either the consensus or the latest exchange. Pass
--history to append the full turn-by-turn transcript.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("dir", "", "Debate directory (default from config)")
	exportCmd.Flags().Bool("history", false, "Append the full debate history")
	exportCmd.Flags().StringP("out", "o", "", "Write the document to a file instead of stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
	debateDir, err := observerDebateDir(cmd)
	if err != nil {
		return err
	}

	sess := session.New(store.New(debateDir))
	if err := sess.Open(); err != nil {
		if errors.Is(err, session.ErrMissingSession) {
			return fmt.Errorf("no debate to export in %s: start one with 'parley start --goal'", debateDir)
		}
		return fmt.Errorf("failed to open debate session: %w", err)
	}

	includeHistory, err := cmd.Flags().GetBool("history")
	if err != nil {
		return err
	}

	doc, err := renderExport(sess, includeHistory)
	if err != nil {
		return err
	}

	outPath, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}

	if outPath != "" {
		if err := os.WriteFile(outPath, []byte(doc), 0o644); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported debate to %s\n", outPath)
		return nil
	}

	fmt.Fprint(cmd.OutOrStdout(), doc)
	return nil
}

// renderExport assembles the export document from the session artifacts.
func renderExport(sess *session.Session, includeHistory bool) (string, error) {
	goal, err := sess.Goal()
	if err != nil {
		return "", err
	}

	state, err := sess.State()
	if err != nil {
		return "", err
	}

	rounds, err := sess.CompletedRounds()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(goal, "\n"))
	b.WriteString("\n\n---\n\n")
	fmt.Fprintf(&b, "State: %s (%d round(s) completed)\n", state, rounds)

	if state == session.StateConsensus {
		consensus, err := sess.Consensus()
		if err != nil {
			return "", err
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(consensus, "\n"))
		b.WriteString("\n")
	} else {
		proposal, err := sess.LatestProposal()
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(proposal) != "" {
			b.WriteString("\n## Latest Proposal\n\n")
			b.WriteString(strings.TrimRight(proposal, "\n"))
			b.WriteString("\n")
		}

		critique, err := sess.LatestCritique()
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(critique) != "" {
			b.WriteString("\n## Latest Critique\n\n")
			b.WriteString(strings.TrimRight(critique, "\n"))
			b.WriteString("\n")
		}
	}

	// The history artifact carries its own heading, so it appends as a
	// self-contained appendix.
	if includeHistory {
		history, err := sess.History()
		if err != nil {
			return "", err
		}
		b.WriteString("\n---\n\n")
		b.WriteString(strings.TrimRight(history, "\n"))
		b.WriteString("\n")
	}

	return b.String(), nil
}
