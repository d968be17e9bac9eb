package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parley-cli/parley/internal/config"
	"github.com/parley-cli/parley/internal/session"
	"github.com/parley-cli/parley/internal/store"
	"github.com/parley-cli/parley/internal/transcript"
	"github.com/stretchr/testify/require"
)

func TestRenderExportFreshSession(t *testing.T) {
	sess := newExportSession(t)

	doc, err := renderExport(sess, false)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(doc, "# Goal\n\nChoose an index layout"), doc)
	require.Contains(t, doc, "State: PROPOSER_TURN (0 round(s) completed)")
	require.Contains(t, doc, "(Awaiting first proposal)")
	require.Contains(t, doc, "(No critique yet - this is Round 1)")
}

func TestRenderExportInProgress(t *testing.T) {
	sess := newExportSession(t)

	proposal := "# Proposal (Round 1)\n\nShard by tenant."
	critique := "# Critique (Round 1)\n\nNEEDS_REVISION"
	require.NoError(t, sess.SetLatestOutput(transcript.RoleProposer, proposal))
	require.NoError(t, sess.SetLatestOutput(transcript.RoleCritic, critique))
	require.NoError(t, sess.AppendTurn(transcript.Record{
		Role: transcript.RoleProposer, Round: 1, Timestamp: time.Now(), Content: proposal,
	}))
	require.NoError(t, sess.AppendTurn(transcript.Record{
		Role: transcript.RoleCritic, Round: 1, Timestamp: time.Now(), Content: critique,
	}))

	doc, err := renderExport(sess, false)
	require.NoError(t, err)

	require.Contains(t, doc, "State: PROPOSER_TURN (1 round(s) completed)")
	require.Contains(t, doc, "## Latest Proposal\n\n"+proposal)
	require.Contains(t, doc, "## Latest Critique\n\n"+critique)
	require.NotContains(t, doc, "# Consensus Reached")
}

func TestRenderExportConsensus(t *testing.T) {
	sess := newExportSession(t)
	require.NoError(t, sess.WriteConsensus(2, "# Critique (Round 2)\n\nCONSENSUS REACHED"))
	require.NoError(t, sess.SetState(session.StateConsensus))

	doc, err := renderExport(sess, false)
	require.NoError(t, err)

	require.Contains(t, doc, "State: CONSENSUS (0 round(s) completed)")
	require.Contains(t, doc, "# Consensus Reached - Round 2")
	require.NotContains(t, doc, "## Latest Proposal")
	require.NotContains(t, doc, "## Latest Critique")
}

func TestRenderExportHistoryAppendix(t *testing.T) {
	sess := newExportSession(t)
	require.NoError(t, sess.AppendTurn(transcript.Record{
		Role: transcript.RoleProposer, Round: 1, Timestamp: time.Now(),
		Content: "# Proposal (Round 1)\n\nShard by tenant.",
	}))

	withHistory, err := renderExport(sess, true)
	require.NoError(t, err)
	require.Contains(t, withHistory, "# Debate History")
	require.Contains(t, withHistory, "## [PROPOSER] Round 1")

	withoutHistory, err := renderExport(sess, false)
	require.NoError(t, err)
	require.NotContains(t, withoutHistory, "# Debate History")
}

func TestExportCommandStdout(t *testing.T) {
	workDir := t.TempDir()
	debateDir := filepath.Join(workDir, "debate")
	cfgPath := filepath.Join(workDir, "parley.json")
	require.NoError(t, config.GenerateDefault().SaveToFile(cfgPath))

	sess := session.New(store.New(debateDir))
	require.NoError(t, sess.Create(session.WrapGoal("Choose an index layout")))

	output, err := executeRoot(t, "export", "--config", cfgPath, "--dir", debateDir)
	require.NoError(t, err)
	require.Contains(t, output, "# Goal\n\nChoose an index layout")
	require.Contains(t, output, "State: PROPOSER_TURN")
}

func TestExportCommandWritesFile(t *testing.T) {
	workDir := t.TempDir()
	debateDir := filepath.Join(workDir, "debate")
	cfgPath := filepath.Join(workDir, "parley.json")
	require.NoError(t, config.GenerateDefault().SaveToFile(cfgPath))

	sess := session.New(store.New(debateDir))
	require.NoError(t, sess.Create(session.WrapGoal("Choose an index layout")))

	outPath := filepath.Join(workDir, "debate.md")
	output, err := executeRoot(t,
		"export",
		"--config", cfgPath,
		"--dir", debateDir,
		"--out", outPath,
	)
	require.NoError(t, err)
	require.Contains(t, output, "Exported debate to "+outPath)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "# Goal\n\nChoose an index layout")
}

func TestExportCommandMissingSession(t *testing.T) {
	workDir := t.TempDir()
	cfgPath := filepath.Join(workDir, "parley.json")
	require.NoError(t, config.GenerateDefault().SaveToFile(cfgPath))

	_, err := executeRoot(t,
		"export",
		"--config", cfgPath,
		"--dir", filepath.Join(workDir, "debate"),
	)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no debate to export")
}

func newExportSession(t *testing.T) *session.Session {
	t.Helper()
	sess := session.New(store.New(filepath.Join(t.TempDir(), "debate")))
	require.NoError(t, sess.Create(session.WrapGoal("Choose an index layout")))
	return sess
}
