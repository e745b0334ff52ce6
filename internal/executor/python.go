package executor

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"code-interpreter/internal/capture"
	"code-interpreter/internal/process"
	"code-interpreter/internal/runtime"
	"code-interpreter/internal/scratch"
)

//go:embed harness.py
var harnessSource string

const stderrTail = 2048

// Attempt is what one run of a snippet produced.
type Attempt struct {
	Stdout string
	Stderr string
	Err    error
}

// Interpreter runs one snippet once.
type Interpreter interface {
	Run(ctx context.Context, code string) Attempt

	// Remediable reports whether an import failure may be repaired by
	// installing a package and running again.
	Remediable() bool

	// SilentText is the result text for a successful run with no output.
	SilentText() string
}

// Python runs snippets through the harness in a host interpreter process.
// Each run gets its own scratch directory and its own capture sinks.
type Python struct {
	rt        runtime.Runtime
	maxOutput int
	workDir   string
}

func NewPython(rt runtime.Runtime, maxOutput int, workDir string) *Python {
	return &Python{rt: rt, maxOutput: maxOutput, workDir: workDir}
}

func (p *Python) Remediable() bool { return p.rt.Remediable() }

func (p *Python) SilentText() string { return "Code executed successfully." }

func (p *Python) Run(ctx context.Context, code string) Attempt {
	dir, cleanup, err := scratch.Make("snippet")
	if err != nil {
		return Attempt{Err: &ProcessError{Op: "prepare", Err: err}}
	}
	defer cleanup()

	codePath := filepath.Join(dir, "snippet.py")
	reportPath := filepath.Join(dir, "report.json")
	if err := os.WriteFile(codePath, []byte(code), 0o600); err != nil {
		return Attempt{Err: &ProcessError{Op: "prepare", Err: err}}
	}

	res := capture.Run(p.maxOutput, func(stdout, stderr io.Writer) (struct{}, error) {
		return struct{}{}, process.Run(ctx, process.Spec{
			Argv:   p.rt.Command(harnessSource, codePath, reportPath),
			Dir:    p.workDir,
			Stdout: stdout,
			Stderr: stderr,
		})
	})

	att := Attempt{Stdout: res.Stdout, Stderr: res.Stderr}
	if res.Err == nil {
		return att
	}

	report, err := readReport(reportPath)
	switch {
	case err == nil:
		att.Err = report
	case errors.Is(err, os.ErrNotExist):
		att.Err = &ProcessError{Op: "run", Stderr: tail(res.Stderr, stderrTail), Err: res.Err}
	default:
		att.Err = &ProcessError{Op: "read report", Err: err}
	}
	return att
}

func readReport(path string) (*SnippetError, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var report SnippetError
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decoding failure report: %w", err)
	}
	return &report, nil
}
