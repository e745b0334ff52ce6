// Package executor runs submitted snippets and repairs missing-dependency
// failures by installing the named package and running exactly once more.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"code-interpreter/internal/installer"
	"code-interpreter/internal/monitor"
)

// DefaultLanguage is used when a request names none.
const DefaultLanguage = "python"

// Installer adds a package to the interpreter environment.
type Installer interface {
	Install(ctx context.Context, name string) installer.Outcome
}

// Request is one snippet to run.
type Request struct {
	Code     string
	Language string
}

// Result is the outcome of a request. Failures inside the snippet are data:
// Text carries the formatted error and Failed is set.
type Result struct {
	ExecID         string
	Language       string
	Text           string
	Failed         bool
	Attempts       int
	Installed      string // package the executor tried to install, if any
	InstallMessage string
	Duration       time.Duration
}

type state int

const (
	stateFirstAttempt state = iota
	stateRetryAfterInstall
)

func (s state) String() string {
	switch s {
	case stateFirstAttempt:
		return "first_attempt"
	case stateRetryAfterInstall:
		return "retry_after_install"
	default:
		return "unknown"
	}
}

// Options carries the optional settings of an Executor.
type Options struct {
	// Timeout bounds a whole request, install and retry included. Zero
	// means unbounded.
	Timeout time.Duration
	Metrics *monitor.Metrics
	Tracer  *monitor.Tracer
}

// Executor dispatches snippets to interpreters by language.
type Executor struct {
	interpreters map[string]Interpreter
	installer    Installer
	opts         Options
}

func New(interpreters map[string]Interpreter, inst Installer, opts Options) *Executor {
	if opts.Tracer == nil {
		opts.Tracer = monitor.NewTracer()
	}
	return &Executor{
		interpreters: interpreters,
		installer:    inst,
		opts:         opts,
	}
}

// Languages returns the accepted language names, sorted.
func (e *Executor) Languages() []string {
	langs := make([]string, 0, len(e.interpreters))
	for name := range e.interpreters {
		langs = append(langs, name)
	}
	sort.Strings(langs)
	return langs
}

// Supports reports whether language has an interpreter.
func (e *Executor) Supports(language string) bool {
	_, ok := e.interpreters[language]
	return ok
}

// Execute runs req. The returned error is non-nil only when the request
// itself is unusable; every failure of the snippet is reported in Result.
func (e *Executor) Execute(ctx context.Context, req Request) (Result, error) {
	if req.Code == "" {
		return Result{}, &ExecutionError{Op: "validate", Err: ErrEmptyCode}
	}
	lang := req.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	interp, ok := e.interpreters[lang]
	if !ok {
		return Result{}, &ExecutionError{Op: "validate", Err: fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)}
	}

	execID := uuid.New().String()
	logger := log.With().
		Str("exec_id", execID).
		Str("language", lang).
		Str("request_id", monitor.RequestIDFromContext(ctx)).
		Logger()

	ctx, span := e.opts.Tracer.StartSpan(ctx, "execute",
		monitor.AttrExecID.String(execID),
		monitor.AttrLanguage.String(lang),
	)
	defer span.End()

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	if m := e.opts.Metrics; m != nil {
		m.ActiveExecutions.Inc()
		defer m.ActiveExecutions.Dec()
		m.CodeSizeBytes.Observe(float64(len(req.Code)))
	}

	start := time.Now()
	res := e.run(ctx, logger, interp, req.Code)
	res.ExecID = execID
	res.Language = lang
	res.Duration = time.Since(start)

	status := "success"
	if res.Failed {
		status = "error"
	}
	if m := e.opts.Metrics; m != nil {
		m.RecordExecution(lang, status, res.Duration.Seconds())
		m.OutputSizeBytes.Observe(float64(len(res.Text)))
	}

	logger.Info().
		Str("status", status).
		Int("attempts", res.Attempts).
		Str("installed", res.Installed).
		Dur("duration", res.Duration).
		Msg("execution completed")

	return res, nil
}

// run drives the two-state machine: a first attempt, then at most one
// install followed by one retry.
func (e *Executor) run(ctx context.Context, logger zerolog.Logger, interp Interpreter, code string) Result {
	var res Result

	first := e.attempt(ctx, interp, code, stateFirstAttempt)
	res.Attempts = 1
	if first.Err == nil {
		res.Text = successText(interp, first.Stdout)
		return res
	}

	if !interp.Remediable() || !IsImportFailure(first.Err) {
		res.Failed = true
		res.Text = "Error: " + e.describe(ctx, first.Err)
		return res
	}

	module := MissingModule(Message(first.Err))
	logger.Info().Str("module", module).Str("cause", Message(first.Err)).Msg("import failure, installing dependency")

	outcome := e.installer.Install(ctx, module)
	res.Installed = module
	res.InstallMessage = outcome.Message

	retry := e.attempt(ctx, interp, code, stateRetryAfterInstall)
	res.Attempts = 2
	if retry.Err == nil {
		res.Text = successText(interp, retry.Stdout)
		return res
	}

	res.Failed = true
	res.Text = fmt.Sprintf("Error: %s. Attempted to install %s: %s", e.describe(ctx, retry.Err), module, outcome.Message)
	return res
}

func (e *Executor) attempt(ctx context.Context, interp Interpreter, code string, st state) Attempt {
	ctx, span := e.opts.Tracer.StartSpan(ctx, "attempt", monitor.AttrState.String(st.String()))
	att := interp.Run(ctx, code)

	var se *SnippetError
	if errors.As(att.Err, &se) {
		// Snippet faults are results, not span failures.
		span.SetAttributes(monitor.AttrExitCode.Int(1))
		monitor.EndSpan(span, nil)
	} else {
		monitor.EndSpan(span, att.Err)
	}

	if m := e.opts.Metrics; m != nil {
		m.RecordAttempt(st.String())
	}
	return att
}

func (e *Executor) describe(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		return fmt.Sprintf("execution timed out after %s", e.opts.Timeout)
	}
	return Message(err)
}

func successText(interp Interpreter, stdout string) string {
	if stdout == "" {
		return interp.SilentText()
	}
	return stdout
}
