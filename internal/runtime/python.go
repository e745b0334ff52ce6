package runtime

// PythonRuntime runs Python source through the host interpreter.
type PythonRuntime struct {
	Binary string
}

func (p *PythonRuntime) Name() string { return "python" }

func (p *PythonRuntime) Command(source string, args ...string) []string {
	argv := []string{
		p.Binary, "-u", // Unbuffered output
		"-B", // Don't write .pyc files
		"-c", source,
	}
	return append(argv, args...)
}

func (p *PythonRuntime) Remediable() bool { return true }
