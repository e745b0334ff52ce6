// Package installer adds packages to the interpreter environment shared by
// every request. Installs persist for the life of the process.
package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"code-interpreter/internal/capture"
	"code-interpreter/internal/monitor"
	"code-interpreter/internal/process"
	"code-interpreter/internal/storage"
)

// ErrInvalidPackage is returned for names that must never reach pip.
var ErrInvalidPackage = errors.New("invalid package name")

const (
	maxPipOutput = 64 * 1024
	stderrTail   = 2048
)

// Outcome is the result of one install request. Message is always
// human-readable and safe to embed in a result text.
type Outcome struct {
	OK      bool
	Message string
}

// Recorder receives a record of every pip invocation.
// *storage.AuditWriter satisfies it.
type Recorder interface {
	Log(in *storage.Install)
}

// Options carries the optional collaborators of an Installer.
type Options struct {
	Ledger  Recorder
	Metrics *monitor.Metrics
	Tracer  *monitor.Tracer
}

// Installer runs the package manager. All invocations are serialized, and
// callers asking for the same package while it is being installed share the
// in-flight result.
type Installer struct {
	command []string
	opts    Options

	mu    sync.Mutex
	group singleflight.Group
}

// New returns an Installer that runs command with the package name appended
// as its last argument.
func New(command []string, opts Options) *Installer {
	if opts.Tracer == nil {
		opts.Tracer = monitor.NewTracer()
	}
	return &Installer{
		command: append([]string(nil), command...),
		opts:    opts,
	}
}

// Install installs name and reports the outcome. It never returns an error;
// failures are folded into the Outcome message.
func (i *Installer) Install(ctx context.Context, name string) Outcome {
	if err := validate(name); err != nil {
		return failure(name, err.Error())
	}

	v, _, shared := i.group.Do(name, func() (any, error) {
		return i.install(ctx, name), nil
	})
	if shared {
		log.Debug().Str("package", name).Msg("joined in-flight install")
	}
	return v.(Outcome)
}

func (i *Installer) install(ctx context.Context, name string) Outcome {
	i.mu.Lock()
	defer i.mu.Unlock()

	ctx, span := i.opts.Tracer.StartSpan(ctx, "install", monitor.AttrPackage.String(name))
	start := time.Now()

	argv := append(append([]string(nil), i.command...), name)
	res := capture.Run(maxPipOutput, func(stdout, stderr io.Writer) (struct{}, error) {
		return struct{}{}, process.Run(ctx, process.Spec{
			Argv:   argv,
			Stdout: stdout,
			Stderr: stderr,
		})
	})
	elapsed := time.Since(start)

	span.SetAttributes(monitor.AttrExitCode.Int(process.ExitCode(res.Err)))
	monitor.EndSpan(span, res.Err)

	var out Outcome
	if res.Err == nil {
		out = Outcome{OK: true, Message: fmt.Sprintf("Package %s installed successfully.", name)}
		log.Info().Str("package", name).Dur("duration", elapsed).Msg("package installed")
	} else {
		detail := res.Err.Error()
		if t := tail(res.Stderr, stderrTail); t != "" {
			detail += ": " + t
		}
		out = failure(name, detail)
		log.Warn().Err(res.Err).Str("package", name).Dur("duration", elapsed).Msg("package install failed")
	}

	if i.opts.Metrics != nil {
		i.opts.Metrics.RecordInstall(out.OK, elapsed.Seconds())
	}
	if i.opts.Ledger != nil {
		i.opts.Ledger.Log(&storage.Install{
			Package:    name,
			OK:         out.OK,
			Message:    out.Message,
			DurationMS: elapsed.Milliseconds(),
			RequestID:  monitor.RequestIDFromContext(ctx),
			CreatedAt:  start,
		})
	}
	return out
}

func failure(name, detail string) Outcome {
	return Outcome{Message: fmt.Sprintf("Error installing package %s: %s", name, detail)}
}

// A leading dash would be parsed by pip as a flag.
func validate(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidPackage)
	case strings.HasPrefix(name, "-"):
		return fmt.Errorf("%w: %q", ErrInvalidPackage, name)
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
