package runtime

import (
	"fmt"
	"sort"
	"strings"
)

// Runtime defines how a language's source is handed to a host interpreter.
type Runtime interface {
	// Name returns the runtime identifier (e.g., "python", "bash").
	Name() string

	// Command returns the argv that runs source inline, followed by args.
	Command(source string, args ...string) []string

	// Remediable reports whether a missing-dependency failure in this
	// runtime may be repaired by installing a package and retrying.
	Remediable() bool
}

// Registry maps language names to their Runtime implementations.
type Registry struct {
	runtimes map[string]Runtime
}

// NewRegistry creates a registry with the python and bash runtimes.
func NewRegistry(pythonBinary, shell string) *Registry {
	r := &Registry{
		runtimes: make(map[string]Runtime),
	}
	r.Register(&PythonRuntime{Binary: pythonBinary})
	r.Register(&BashRuntime{Shell: shell})
	return r
}

// Register adds a runtime to the registry.
func (r *Registry) Register(rt Runtime) {
	r.runtimes[rt.Name()] = rt
}

// Get returns the runtime for the given language.
func (r *Registry) Get(language string) (Runtime, error) {
	rt, ok := r.runtimes[language]
	if !ok {
		return nil, fmt.Errorf("unsupported language: %q (supported: %s)", language, strings.Join(r.Languages(), ", "))
	}
	return rt, nil
}

// Languages returns all registered language names, sorted.
func (r *Registry) Languages() []string {
	langs := make([]string, 0, len(r.runtimes))
	for name := range r.runtimes {
		langs = append(langs, name)
	}
	sort.Strings(langs)
	return langs
}
