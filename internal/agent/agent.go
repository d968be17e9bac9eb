package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Kind names a configured agent CLI, e.g. "claude" or "codex".
type Kind string

// OutputMode selects how an agent kind returns its answer.
type OutputMode string

const (
	// OutputStdout reads the answer from the agent's standard output.
	OutputStdout OutputMode = "stdout"
	// OutputFile passes -o <tempfile> and reads the answer from that file,
	// falling back to stdout if the agent never wrote it.
	OutputFile OutputMode = "file"
)

// Valid reports whether m is a defined output mode.
func (m OutputMode) Valid() bool {
	return m == OutputStdout || m == OutputFile
}

// Spec describes how to launch one agent kind. Cmd is the base argv; the
// prompt (and for file mode the -o flag) is appended per invocation.
type Spec struct {
	Cmd    []string
	Output OutputMode
	Env    map[string]string
}

// DefaultTimeout bounds a single agent invocation.
const DefaultTimeout = 600 * time.Second

// waitDelay bounds cleanup after the process group has been signalled.
const waitDelay = 5 * time.Second

// ErrTimeout is returned when an invocation exceeds its wall-clock budget.
// The agent's process group has already been terminated when it surfaces.
var ErrTimeout = errors.New("agent invocation timed out")

// ErrUnknownKind is returned for a kind with no configured spec.
var ErrUnknownKind = errors.New("unknown agent kind")

// ExecutionError reports an agent process that exited non-zero.
type ExecutionError struct {
	Kind     Kind
	ExitCode int
	Stderr   string
}

func (e *ExecutionError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if stderr == "" {
		return fmt.Sprintf("agent %s exited with code %d", e.Kind, e.ExitCode)
	}
	return fmt.Sprintf("agent %s exited with code %d: %s", e.Kind, e.ExitCode, stderr)
}

// Gateway launches agent CLIs, one fresh process per invocation.
//
// Every child runs in its own process group, so a timeout or a cancelled
// context terminates the agent and all of its descendants. The gateway
// never retries: a failed invocation surfaces to the caller as-is.
type Gateway struct {
	specs   map[Kind]Spec
	timeout time.Duration
	logger  *slog.Logger
}

// NewGateway creates a gateway over the given kind registry. A
// non-positive timeout selects DefaultTimeout.
func NewGateway(specs map[Kind]Spec, timeout time.Duration, logger *slog.Logger) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{specs: specs, timeout: timeout, logger: logger}
}

// Timeout returns the per-invocation wall-clock budget.
func (g *Gateway) Timeout() time.Duration {
	return g.timeout
}

// Invoke runs one agent synchronously and returns its trimmed output.
//
// Error classification:
//   - budget exceeded: ErrTimeout (wrapped), group already terminated
//   - parent context cancelled: ctx.Err() unchanged, group already terminated
//   - non-zero exit: *ExecutionError with captured stderr
func (g *Gateway) Invoke(ctx context.Context, kind Kind, prompt string) (string, error) {
	spec, ok := g.specs[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if len(spec.Cmd) == 0 {
		return "", fmt.Errorf("agent %s has an empty command", kind)
	}

	invCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	argv := make([]string, 0, len(spec.Cmd)+3)
	argv = append(argv, spec.Cmd...)

	var outputPath string
	if spec.Output == OutputFile {
		tmp, err := os.CreateTemp("", "parley-agent-*.txt")
		if err != nil {
			return "", fmt.Errorf("failed to create agent output file: %w", err)
		}
		outputPath = tmp.Name()
		tmp.Close()
		defer os.Remove(outputPath)
		argv = append(argv, "-o", outputPath)
	}
	argv = append(argv, prompt)

	cmd := exec.CommandContext(invCtx, argv[0], argv[1:]...)

	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// The child owns a fresh process group; cancellation signals the whole
	// group (negative pid), so agent-spawned descendants die with it.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = waitDelay

	g.logger.Info("invoking agent", "kind", kind, "command", spec.Cmd[0], "timeout", g.timeout)
	started := time.Now()

	runErr := cmd.Run()

	if runErr != nil {
		switch {
		case errors.Is(invCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			g.logger.Warn("agent timed out", "kind", kind, "timeout", g.timeout)
			return "", fmt.Errorf("agent %s after %s: %w", kind, g.timeout, ErrTimeout)

		case ctx.Err() != nil:
			g.logger.Info("agent invocation cancelled", "kind", kind)
			return "", ctx.Err()

		default:
			var exitErr *exec.ExitError
			if errors.As(runErr, &exitErr) {
				execErr := &ExecutionError{
					Kind:     kind,
					ExitCode: exitErr.ExitCode(),
					Stderr:   stderr.String(),
				}
				g.logger.Error("agent failed", "kind", kind, "exit_code", execErr.ExitCode)
				return "", execErr
			}
			return "", fmt.Errorf("failed to run agent %s: %w", kind, runErr)
		}
	}

	output := stdout.String()
	if spec.Output == OutputFile {
		data, err := os.ReadFile(outputPath)
		if err == nil && len(strings.TrimSpace(string(data))) > 0 {
			output = string(data)
		}
		// An empty or missing output file falls back to captured stdout
	}

	g.logger.Info("agent finished", "kind", kind, "duration", time.Since(started).Round(time.Millisecond))
	return strings.TrimSpace(output), nil
}
