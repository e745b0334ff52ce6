package executor

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"code-interpreter/internal/capture"
	"code-interpreter/internal/installer"
	"code-interpreter/internal/runtime"
)

// scriptRuntime ignores the harness and runs script under /bin/sh, so the
// code and report paths arrive as $1 and $2.
type scriptRuntime struct {
	script     string
	remediable bool
}

func (s scriptRuntime) Name() string { return "python" }
func (s scriptRuntime) Command(_ string, args ...string) []string {
	return append([]string{"/bin/sh", "-c", s.script, "sh"}, args...)
}
func (s scriptRuntime) Remediable() bool { return s.remediable }

func TestPython_ReportHandling(t *testing.T) {
	tests := []struct {
		name       string
		script     string
		wantStdout string
		check      func(t *testing.T, err error)
	}{
		{
			name:       "code file is passed to the harness",
			script:     `cat "$1"`,
			wantStdout: "print('hi')",
			check: func(t *testing.T, err error) {
				if err != nil {
					t.Errorf("err = %v, want nil", err)
				}
			},
		},
		{
			name:   "import failure report",
			script: `echo '{"type":"ModuleNotFoundError","message":"No module named requests","import_error":true}' > "$2"; exit 1`,
			check: func(t *testing.T, err error) {
				if !IsImportFailure(err) {
					t.Fatalf("err = %v, want import failure", err)
				}
				if Message(err) != "No module named requests" {
					t.Errorf("Message = %q", Message(err))
				}
			},
		},
		{
			name:   "ordinary failure report",
			script: `echo '{"type":"ValueError","message":"boom","import_error":false}' > "$2"; exit 1`,
			check: func(t *testing.T, err error) {
				var se *SnippetError
				if !errors.As(err, &se) || se.Type != "ValueError" || se.ImportFailure {
					t.Errorf("err = %#v", err)
				}
			},
		},
		{
			name:   "crash without report",
			script: `echo "Segmentation fault" >&2; exit 139`,
			check: func(t *testing.T, err error) {
				var pe *ProcessError
				if !errors.As(err, &pe) {
					t.Fatalf("err = %#v, want ProcessError", err)
				}
				if !strings.Contains(pe.Error(), "Segmentation fault") {
					t.Errorf("ProcessError should carry stderr: %q", pe.Error())
				}
			},
		},
		{
			name:   "corrupt report",
			script: `echo 'not json' > "$2"; exit 1`,
			check: func(t *testing.T, err error) {
				var pe *ProcessError
				if !errors.As(err, &pe) || pe.Op != "read report" {
					t.Errorf("err = %#v, want read report failure", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPython(scriptRuntime{script: tt.script, remediable: true}, 0, "")
			att := p.Run(context.Background(), "print('hi')")
			if att.Stdout != tt.wantStdout {
				t.Errorf("Stdout = %q, want %q", att.Stdout, tt.wantStdout)
			}
			tt.check(t, att.Err)
		})
	}
}

func TestPython_OutputCap(t *testing.T) {
	p := NewPython(scriptRuntime{script: `i=0; while [ $i -lt 100 ]; do printf 0123456789; i=$((i+1)); done`}, 50, "")

	att := p.Run(context.Background(), "")
	if att.Err != nil {
		t.Fatal(att.Err)
	}
	if att.Stdout != strings.Repeat("0123456789", 5)+capture.TruncationMarker {
		t.Errorf("Stdout = %q", att.Stdout)
	}
}

func TestShell(t *testing.T) {
	sh := NewShell(&runtime.BashRuntime{Shell: "/bin/sh"}, 0, "")
	e := New(map[string]Interpreter{"bash": sh}, nil, Options{})

	tests := []struct {
		code       string
		want       string
		wantFailed bool
	}{
		{"echo hello", "hello\n", false},
		{"true", "Command executed successfully.", false},
		{"exit 3", "Error: Command 'exit 3' returned non-zero exit status 3.", true},
		{"echo oops >&2; exit 1", "Error: Command 'echo oops >&2; exit 1' returned non-zero exit status 1.: oops", true},
		// Missing commands are never sent to the installer.
		{"nosuchcommand_xyz", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			res, err := e.Execute(context.Background(), Request{Code: tt.code, Language: "bash"})
			if err != nil {
				t.Fatal(err)
			}
			if res.Failed != tt.wantFailed {
				t.Errorf("Failed = %v, want %v (text %q)", res.Failed, tt.wantFailed, res.Text)
			}
			if tt.want != "" && res.Text != tt.want {
				t.Errorf("Text = %q, want %q", res.Text, tt.want)
			}
			if res.Attempts != 1 {
				t.Errorf("Attempts = %d, want 1", res.Attempts)
			}
		})
	}
}

func TestShell_WorkDir(t *testing.T) {
	dir := t.TempDir()
	sh := NewShell(&runtime.BashRuntime{Shell: "/bin/sh"}, 0, dir)

	att := sh.Run(context.Background(), "pwd")
	if att.Err != nil {
		t.Fatal(att.Err)
	}
	// The temp dir may sit behind a symlink, so compare the base name only.
	if !strings.HasSuffix(strings.TrimSpace(att.Stdout), dir[strings.LastIndex(dir, "/"):]) {
		t.Errorf("pwd = %q, want %q", att.Stdout, dir)
	}
}

func requirePython(t *testing.T) string {
	t.Helper()
	bin, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not available")
	}
	return bin
}

func TestPython_Harness(t *testing.T) {
	bin := requirePython(t)
	p := NewPython(&runtime.PythonRuntime{Binary: bin}, 0, "")

	tests := []struct {
		name       string
		code       string
		wantStdout string
		wantErr    string // empty means success
		wantImport bool
	}{
		{name: "print", code: "print(2 + 2)", wantStdout: "4\n"},
		{name: "silent", code: "x = 1"},
		{name: "exit zero", code: "import sys\nsys.exit(0)"},
		{name: "exit none", code: "raise SystemExit"},
		{name: "exit code", code: "raise SystemExit(3)", wantErr: "3"},
		{name: "runtime error", code: "1/0", wantErr: "division by zero"},
		{name: "output before fault", code: "print('a')\nraise ValueError('boom')", wantStdout: "a\n", wantErr: "boom"},
		{
			name:       "missing module",
			code:       "import nosuchmodule_xyz",
			wantErr:    "No module named 'nosuchmodule_xyz'",
			wantImport: true,
		},
		{name: "argv is clean", code: "import sys\nprint(sys.argv)", wantStdout: "['']\n"},
		{name: "functions see globals", code: "y = 2\ndef f():\n    return y\nprint(f())", wantStdout: "2\n"},
		{
			name:    "exception whose str raises",
			code:    "class E(Exception):\n    def __str__(self):\n        raise RuntimeError('no')\nraise E()",
			wantErr: "<unprintable E object>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			att := p.Run(context.Background(), tt.code)
			if att.Stdout != tt.wantStdout {
				t.Errorf("Stdout = %q, want %q", att.Stdout, tt.wantStdout)
			}
			if tt.wantErr == "" {
				if att.Err != nil {
					t.Fatalf("err = %v (stderr %q)", att.Err, att.Stderr)
				}
				return
			}
			if att.Err == nil {
				t.Fatalf("err = nil, want %q", tt.wantErr)
			}
			if Message(att.Err) != tt.wantErr {
				t.Errorf("Message = %q, want %q", Message(att.Err), tt.wantErr)
			}
			if IsImportFailure(att.Err) != tt.wantImport {
				t.Errorf("IsImportFailure = %v, want %v", IsImportFailure(att.Err), tt.wantImport)
			}
		})
	}
}

func TestPython_RunsAreIsolated(t *testing.T) {
	bin := requirePython(t)
	p := NewPython(&runtime.PythonRuntime{Binary: bin}, 0, "")

	if att := p.Run(context.Background(), "leak = 1"); att.Err != nil {
		t.Fatal(att.Err)
	}
	att := p.Run(context.Background(), "print(leak)")
	if att.Err == nil || !strings.Contains(Message(att.Err), "leak") {
		t.Errorf("second run saw the first run's names: %+v", att)
	}
}

func TestExecute_PythonRetryAfterFailedInstall(t *testing.T) {
	bin := requirePython(t)
	p := NewPython(&runtime.PythonRuntime{Binary: bin}, 0, "")
	inst := &fakeInstaller{outcome: installer.Outcome{Message: "Error installing package nosuchmodule_xyz: not found"}}
	e := New(map[string]Interpreter{"python": p}, inst, Options{})

	res, err := e.Execute(context.Background(), Request{Code: "print('first')\nimport nosuchmodule_xyz"})
	if err != nil {
		t.Fatal(err)
	}

	want := "Error: No module named 'nosuchmodule_xyz'. Attempted to install nosuchmodule_xyz: Error installing package nosuchmodule_xyz: not found"
	if res.Text != want {
		t.Errorf("Text = %q, want %q", res.Text, want)
	}
	if res.Attempts != 2 || len(inst.names) != 1 {
		t.Errorf("Attempts = %d, installs = %v", res.Attempts, inst.names)
	}
}
