package runtime

// BashRuntime runs a command line through the host shell.
type BashRuntime struct {
	Shell string
}

func (b *BashRuntime) Name() string { return "bash" }

// Command passes args after the command line, where the shell binds them to
// $0, $1, ...
func (b *BashRuntime) Command(source string, args ...string) []string {
	return append([]string{b.Shell, "-c", source}, args...)
}

// Shell failures are never dependency errors.
func (b *BashRuntime) Remediable() bool { return false }
