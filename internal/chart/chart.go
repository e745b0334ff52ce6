// Package chart renders plotting snippets to self-contained HTML documents.
//
// A snippet runs with three names bound besides the builtins: go
// (plotly.graph_objects), px (plotly.express) and fig, an empty Figure. After
// the snippet returns, fig is serialized, or the Figure it was rebound to.
package chart

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"code-interpreter/internal/capture"
	"code-interpreter/internal/executor"
	"code-interpreter/internal/monitor"
	"code-interpreter/internal/process"
	"code-interpreter/internal/runtime"
	"code-interpreter/internal/scratch"
)

//go:embed harness.py
var harnessSource string

// Sentinel errors for typed error checking.
var (
	ErrEmptyCode = errors.New("no code provided")
	ErrNoFigure  = errors.New("chart produced no figure")
)

// Options carries the optional settings of a Renderer.
type Options struct {
	MaxOutputBytes int
	WorkDir        string
	Timeout        time.Duration
	Metrics        *monitor.Metrics
	Tracer         *monitor.Tracer
}

// Renderer runs chart snippets in a host Python process.
type Renderer struct {
	rt   runtime.Runtime
	opts Options
}

func NewRenderer(rt runtime.Runtime, opts Options) *Renderer {
	if opts.Tracer == nil {
		opts.Tracer = monitor.NewTracer()
	}
	return &Renderer{rt: rt, opts: opts}
}

// Render runs code and returns the HTML document. Faults raised by the
// snippet come back as *executor.SnippetError, whose message is the text
// shown to the caller.
func (r *Renderer) Render(ctx context.Context, code string) ([]byte, error) {
	if code == "" {
		return nil, ErrEmptyCode
	}

	renderID := uuid.New().String()
	ctx, span := r.opts.Tracer.StartSpan(ctx, "chart", monitor.AttrExecID.String(renderID))

	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	html, err := r.render(ctx, code)

	status := "success"
	if err != nil {
		status = "error"
	}
	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordChart(status)
	}
	monitor.EndSpan(span, err)

	log.Info().
		Str("render_id", renderID).
		Str("request_id", monitor.RequestIDFromContext(ctx)).
		Str("status", status).
		Int("html_bytes", len(html)).
		Dur("duration", time.Since(start)).
		Msg("chart render completed")

	return html, err
}

func (r *Renderer) render(ctx context.Context, code string) ([]byte, error) {
	dir, cleanup, err := scratch.Make("chart")
	if err != nil {
		return nil, &executor.ProcessError{Op: "prepare", Err: err}
	}
	defer cleanup()

	codePath := filepath.Join(dir, "chart.py")
	htmlPath := filepath.Join(dir, "chart.html")
	reportPath := filepath.Join(dir, "report.json")
	if err := os.WriteFile(codePath, []byte(code), 0o600); err != nil {
		return nil, &executor.ProcessError{Op: "prepare", Err: err}
	}

	res := capture.Run(r.opts.MaxOutputBytes, func(stdout, stderr io.Writer) (struct{}, error) {
		return struct{}{}, process.Run(ctx, process.Spec{
			Argv:   r.rt.Command(harnessSource, codePath, htmlPath, reportPath),
			Dir:    r.opts.WorkDir,
			Stdout: stdout,
			Stderr: stderr,
		})
	})

	if res.Err != nil {
		data, err := os.ReadFile(reportPath)
		if err != nil {
			return nil, &executor.ProcessError{Op: "run", Stderr: res.Stderr, Err: res.Err}
		}
		var report executor.SnippetError
		if err := json.Unmarshal(data, &report); err != nil {
			return nil, &executor.ProcessError{Op: "read report", Err: fmt.Errorf("decoding failure report: %w", err)}
		}
		return nil, &report
	}

	html, err := os.ReadFile(htmlPath)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(html) == 0) {
		return nil, ErrNoFigure
	}
	if err != nil {
		return nil, fmt.Errorf("reading chart: %w", err)
	}
	return html, nil
}
