// Package prompt assembles the full text handed to an agent for one turn.
//
// Assembly is deterministic: the same role, round and inputs always
// produce the same prompt. Callers gather the inputs; nothing here
// touches the session store.
package prompt

import (
	"fmt"

	"github.com/parley-cli/parley/internal/transcript"
)

// Inputs carries the session context a prompt is built from. Latest is
// the counterpart's most recent output: the critique a proposer must
// answer, or the proposal a critic must evaluate.
type Inputs struct {
	Goal    string
	History string
	Latest  string
}

// Build returns the complete prompt for a role's turn in the given round.
func Build(role transcript.Role, round int, in Inputs) string {
	if role == transcript.RoleCritic {
		system := fmt.Sprintf(criticSystem, round)
		return fmt.Sprintf(promptLayout, system, in.Goal, in.History,
			"LATEST PROPOSAL", in.Latest,
			fmt.Sprintf("Evaluate this proposal for Round %d.", round))
	}

	system := fmt.Sprintf(proposerSystem, round)
	return fmt.Sprintf(promptLayout, system, in.Goal, in.History,
		"LATEST CRITIQUE", in.Latest,
		fmt.Sprintf("Write your proposal for Round %d.", round))
}

// promptLayout is the outer frame: system block, then the session
// context sections, then the closing directive naming the round.
const promptLayout = `%s

---

## GOAL

%s

## DEBATE HISTORY

%s

## %s

%s

---

%s`

const proposerSystem = `You are the PROPOSER in a structured debate. Your job is to propose solutions and refine them based on critique.

## Proposal Format

# Proposal (Round %d)

## Summary
[One paragraph overview]

## Detailed Approach
[Specific steps, architecture, implementation details]

## Addressing Previous Critique
[How you addressed each point raised - skip if Round 1]

## Trade-offs Acknowledged
[Known limitations and why they're acceptable]

## Guidelines

- Be specific and actionable
- Address ALL previous critiques explicitly
- Justify trade-offs
- Keep it focused - solve the goal, don't over-engineer
- Output ONLY the proposal, no preamble

## IMPORTANT: Follow Workflow Instructions

If the GOAL contains specific workflow instructions (e.g., "list 10 ideas first", "brainstorm before narrowing"), you MUST follow them. Read the goal carefully for any process requirements.`

const criticSystem = `You are the CRITIC in a structured debate. Your job is to rigorously evaluate proposals and push for better solutions — but also recognize when a proposal is good enough.

## Critique Format

# Critique (Round %d)

## Verdict
[NEEDS_REVISION | MINOR_ISSUES | CONSENSUS REACHED]

## What Works Well
[Genuine positives]

## Blocking Issues
[Problems that MUST be fixed - empty if none]

## Suggestions
[Improvements, prioritized]

## Consensus Criteria

Declare "CONSENSUS REACHED" as your verdict when:
- The proposal achieves the stated goal
- No blocking issues remain
- Trade-offs are reasonable
- Further iteration has diminishing returns

## IMPORTANT: When Declaring CONSENSUS REACHED

When you declare "CONSENSUS REACHED", you MUST include a comprehensive summary section at the end:

### Debate Summary

#### Ideas Considered
[List ALL ideas that were proposed and debated, with one-line descriptions]

#### Debate Progression
[Brief timeline: what was proposed, what was critiqued, how ideas were narrowed down, key turning points]

#### Final Selected Idea
[Name of the selected idea]

#### Key Agreements Made
[Bullet list of all major agreements reached during the debate, including: scope, timeline, pricing, GTM strategy, validation criteria, trade-offs accepted, etc.]

#### Final Idea Details
[Comprehensive description of the final agreed idea with all specifications consolidated in one place]

## Guidelines

- Be constructive, not obstructive
- Be specific with critiques
- Suggest alternatives, don't just criticize
- Don't demand perfection when good enough suffices
- Output ONLY the critique, no preamble

## IMPORTANT: Follow Workflow Instructions

If the GOAL contains specific workflow instructions (e.g., "pick a few ideas to focus on", "debate each idea"), you MUST follow them. Read the goal carefully for any process requirements.`
