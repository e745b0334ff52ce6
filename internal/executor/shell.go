package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"code-interpreter/internal/capture"
	"code-interpreter/internal/process"
	"code-interpreter/internal/runtime"
)

// CommandError is a shell command that exited with a non-zero status.
type CommandError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("Command '%s' returned non-zero exit status %d.", e.Command, e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Shell runs snippets as a single command line in the service's working
// directory.
type Shell struct {
	rt        runtime.Runtime
	maxOutput int
	workDir   string
}

func NewShell(rt runtime.Runtime, maxOutput int, workDir string) *Shell {
	return &Shell{rt: rt, maxOutput: maxOutput, workDir: workDir}
}

func (s *Shell) Remediable() bool { return s.rt.Remediable() }

func (s *Shell) SilentText() string { return "Command executed successfully." }

func (s *Shell) Run(ctx context.Context, code string) Attempt {
	res := capture.Run(s.maxOutput, func(stdout, stderr io.Writer) (struct{}, error) {
		return struct{}{}, process.Run(ctx, process.Spec{
			Argv:   s.rt.Command(code),
			Dir:    s.workDir,
			Stdout: stdout,
			Stderr: stderr,
		})
	})

	att := Attempt{Stdout: res.Stdout, Stderr: res.Stderr}
	if res.Err == nil {
		return att
	}

	var exitErr *process.ExitError
	if errors.As(res.Err, &exitErr) {
		att.Err = &CommandError{
			Command: code,
			Code:    exitErr.Code,
			Stderr:  tail(res.Stderr, stderrTail),
		}
		return att
	}
	att.Err = &ProcessError{Op: "run", Err: res.Err}
	return att
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
