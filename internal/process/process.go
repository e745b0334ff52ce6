// Package process runs host child processes and classifies how they ended.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// ErrEmptyCommand is returned when argv has no program.
var ErrEmptyCommand = errors.New("empty command")

const waitDelay = 5 * time.Second

// Spec describes one child process.
type Spec struct {
	Argv   []string
	Dir    string
	Env    []string // nil inherits the service environment
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// ExitError means the process started and exited with a non-zero status.
type ExitError struct {
	Argv []string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Argv[0], e.Code)
}

// StartError means the process could not be started or waited on.
type StartError struct {
	Argv []string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("running %s: %s", e.Argv[0], e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// Run starts the process and blocks until it exits. A nil error means
// exit status 0. A cancelled ctx kills the process and surfaces ctx.Err()
// wrapped in a StartError.
func Run(ctx context.Context, spec Spec) error {
	if len(spec.Argv) == 0 || spec.Argv[0] == "" {
		return ErrEmptyCommand
	}

	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...) // #nosec G204 -- executing caller code is the service's purpose
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdin = spec.Stdin
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	// Grandchildren may hold the output pipes open after a kill.
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if err == nil || errors.Is(err, exec.ErrWaitDelay) {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &StartError{Argv: spec.Argv, Err: ctxErr}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Argv: spec.Argv, Code: exitErr.ExitCode()}
	}
	return &StartError{Argv: spec.Argv, Err: err}
}

// ExitCode extracts the status from an ExitError, or -1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}
