// Package phase contains the pipeline phase bodies. Each body is an opaque
// operation from the orchestrator's point of view: it runs, reports
// success or failure, and registers any resource it acquired on the
// session's cleanup registry immediately after acquisition.
package phase

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rbalsleyMSFT/FFU-sub002/internal/session"
)

// var aliases for exec functions that can be mocked for testing
var (
	execCommand        = exec.Command
	execCommandContext = exec.CommandContext
)

// Body is one pipeline stage.
type Body interface {
	// Name returns the phase name used in logs, checkpoints and the
	// session completion record.
	Name() string

	// Run executes the phase. Long-running external invocations are
	// synchronous: the orchestrator blocks here and only evaluates
	// cancellation at the next checkpoint.
	Run(ctx context.Context, sess *session.BuildSession) error
}

// runTool invokes an external tool, capturing stderr for the error message.
// A positive timeout forcibly terminates an unresponsive tool; this is the
// optional hard-escalation path, separate from cooperative cancellation.
func runTool(ctx context.Context, timeout time.Duration, name string, arg ...string) error {
	var cmd *exec.Cmd
	if timeout > 0 {
		toolCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		cmd = execCommandContext(toolCtx, name, arg...)
	} else {
		cmd = execCommand(name, arg...)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return fmt.Errorf("%s: %w: %s", name, err, detail)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// runPowerShell invokes a script through powershell.exe.
func runPowerShell(ctx context.Context, timeout time.Duration, script string) error {
	return runTool(ctx, timeout, "powershell.exe", "-NoProfile", "-NonInteractive", "-Command", script)
}
