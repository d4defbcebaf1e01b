package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/mammoth-cyber/mammothctl/internal/ctxlog"
)

// Runner abstracts external tool invocation so the procedure can be
// exercised in tests without touching the host.
type Runner interface {
	// LookPath reports whether a binary resolves on the command search path.
	LookPath(name string) (string, error)
	// Run executes a tool to completion, streaming its output.
	Run(ctx context.Context, name string, args ...string) error
}

// ToolError carries the exit status of a failed external tool so the CLI
// can propagate it as the process exit code.
type ToolError struct {
	Command  string
	ExitCode int
	Err      error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// execRunner is the production Runner, backed by os/exec.
type execRunner struct {
	out  io.Writer
	errW io.Writer
}

// NewExecRunner returns a Runner that executes tools on the host, wiring
// their output to the given writers.
func NewExecRunner(out, errW io.Writer) Runner {
	return &execRunner{out: out, errW: errW}
}

func (r *execRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) error {
	logger := ctxlog.FromContext(ctx)
	line := name + " " + strings.Join(args, " ")
	logger.Debug("running external tool", "command", line)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = r.out
	cmd.Stderr = r.errW

	if err := cmd.Run(); err != nil {
		code := 1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return &ToolError{Command: line, ExitCode: code, Err: err}
	}
	return nil
}
