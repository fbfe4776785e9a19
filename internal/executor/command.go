package executor

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// CommandSpec describes the shell command behind one task.
type CommandSpec struct {
	Command string   // Run via the shell, so pipes and expansions work
	Dir     string   // Working directory; empty inherits the engine's
	Env     []string // Extra environment entries, KEY=VALUE
}

// CommandExecutor runs task payloads as shell commands, each in its own
// process group. Retry strategies do not change what a command runs; the
// escalation still paces and bounds the attempts.
type CommandExecutor struct {
	procMgr *ProcessManager
	shell   string
}

// NewCommandExecutor creates a command executor. pm may be nil, in which
// case subprocesses are not tracked for shutdown cleanup.
func NewCommandExecutor(pm *ProcessManager) *CommandExecutor {
	return &CommandExecutor{
		procMgr: pm,
		shell:   "/bin/sh",
	}
}

// ExecuteStep runs the step's CommandSpec payload and returns its stdout.
func (e *CommandExecutor) ExecuteStep(ctx context.Context, step Step) (string, error) {
	var spec CommandSpec
	switch p := step.Payload.(type) {
	case CommandSpec:
		spec = p
	case *CommandSpec:
		spec = *p
	default:
		return "", fmt.Errorf("task %q: payload is %T, want CommandSpec", step.TaskID, step.Payload)
	}

	if strings.TrimSpace(spec.Command) == "" {
		return "", fmt.Errorf("task %q: empty command", step.TaskID)
	}

	cmd := newCommand(ctx, e.shell, "-c", spec.Command)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	stdout, _, err := runCommand(cmd, e.procMgr)
	if err != nil {
		return "", fmt.Errorf("task %q: %w", step.TaskID, err)
	}

	return string(stdout), nil
}
