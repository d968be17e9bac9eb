package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

func main() {
	// Parse flags
	role := flag.String("role", "proposer", "Debate role (proposer or critic)")
	consensusRound := flag.Int("consensus-round", 0, "Round at which the critic declares consensus (0 = never)")
	sleep := flag.Duration("sleep", 0, "Delay before answering")
	fail := flag.Bool("fail", false, "Exit non-zero without producing an answer")
	outFile := flag.String("o", "", "Write the answer to this file instead of stdout")
	flag.Parse()

	// Diagnostics go to stderr; stdout carries only the answer.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if flag.NArg() < 1 {
		logger.Error("missing prompt argument")
		os.Exit(2)
	}
	prompt := flag.Arg(flag.NArg() - 1)

	logger.Info("fixture agent starting",
		"role", *role,
		"pid", os.Getpid(),
		"prompt_bytes", len(prompt))

	if *sleep > 0 {
		time.Sleep(*sleep)
	}

	if *fail {
		fmt.Fprintln(os.Stderr, "fixture agent instructed to fail")
		os.Exit(1)
	}

	round := extractRound(prompt)

	var answer string
	switch *role {
	case "proposer":
		answer = proposal(round)
	case "critic":
		if *consensusRound > 0 && round >= *consensusRound {
			answer = consensusCritique(round)
		} else {
			answer = revisionCritique(round)
		}
	default:
		logger.Error("invalid role", "role", *role)
		os.Exit(1)
	}

	if *outFile != "" {
		if err := os.WriteFile(*outFile, []byte(answer+"\n"), 0o644); err != nil {
			logger.Error("failed to write output file", "error", err)
			os.Exit(1)
		}
		// Chatty-CLI shape: progress noise on stdout, answer in the file.
		fmt.Printf("thinking...\nwrote %d bytes to %s\n", len(answer)+1, *outFile)
		return
	}

	fmt.Println(answer)
}

// directivePattern matches the closing line of a turn prompt, which
// names the round being played.
var directivePattern = regexp.MustCompile(`for Round (\d+)\.`)

// extractRound reads the round number from the prompt's closing
// directive. The last match wins because earlier prompt sections may
// quote prior rounds. Defaults to 1 when no directive is present.
func extractRound(prompt string) int {
	matches := directivePattern.FindAllStringSubmatch(prompt, -1)
	if len(matches) == 0 {
		return 1
	}
	n, err := strconv.Atoi(matches[len(matches)-1][1])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func proposal(round int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Proposal (Round %d)\n\n", round)
	b.WriteString("## Summary\n\nAdopt the narrowest design that satisfies the goal and defer everything speculative.\n\n")
	b.WriteString("## Detailed Approach\n\n- Change one stage of the existing workflow at a time.\n- Measure each stage before touching the next.\n")
	if round > 1 {
		fmt.Fprintf(&b, "\n## Addressing Previous Critique\n\n- Named the rollback trigger raised in Round %d.\n", round-1)
	}
	b.WriteString("\n## Trade-offs Acknowledged\n\n- Slower delivery in exchange for a reversible rollout.")
	return b.String()
}

func revisionCritique(round int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Critique (Round %d)\n\n", round)
	b.WriteString("## Verdict\nNEEDS_REVISION\n\n")
	b.WriteString("## What Works Well\n- The staged rollout is easy to reason about.\n\n")
	fmt.Fprintf(&b, "## Blocking Issues\n- The Round %d plan has no fallback for partial failures.\n\n", round)
	b.WriteString("## Suggestions\n- Name the rollback trigger explicitly.")
	return b.String()
}

func consensusCritique(round int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Critique (Round %d)\n\n", round)
	b.WriteString("## Verdict\nCONSENSUS REACHED\n\n")
	b.WriteString("## What Works Well\n- Every blocking issue from earlier rounds has been addressed.\n\n")
	b.WriteString("## Blocking Issues\n(none)\n\n")
	b.WriteString("### Debate Summary\n\n")
	b.WriteString("#### Ideas Considered\n- Staged rollout with per-stage measurement.\n- Single cutover, rejected for being irreversible.\n\n")
	b.WriteString("#### Debate Progression\n- Round 1 proposed the staged rollout; later rounds tightened the failure handling.\n\n")
	b.WriteString("#### Final Selected Idea\nStaged rollout.\n\n")
	b.WriteString("#### Key Agreements Made\n- One stage changes at a time.\n- The rollback trigger is named up front.\n\n")
	fmt.Fprintf(&b, "#### Final Idea Details\nStaged rollout with an explicit rollback trigger and per-stage measurement, settled in Round %d.", round)
	return b.String()
}
