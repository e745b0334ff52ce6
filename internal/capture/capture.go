// Package capture gives one execution a private pair of output sinks.
//
// Every call to Run allocates fresh buffers; nothing is shared between
// scopes, so concurrent executions cannot see each other's text. The sinks
// live only for the duration of the body and are detached on every exit
// path, including a panic inside the body.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
)

// TruncationMarker is appended to a sink that overflowed its cap.
const TruncationMarker = "\n... [output truncated]"

// ErrAborted is reported when the body panics.
var ErrAborted = errors.New("capture scope aborted")

// Result is what a scope observed.
type Result[T any] struct {
	Stdout string
	Stderr string
	Value  T
	Err    error
}

// Run calls body with two fresh sinks capped at maxBytes each (0 means
// uncapped) and returns what was written to them together with body's result.
func Run[T any](maxBytes int, body func(stdout, stderr io.Writer) (T, error)) (res Result[T]) {
	stdout := NewBuffer(maxBytes)
	stderr := NewBuffer(maxBytes)

	defer func() {
		if rec := recover(); rec != nil {
			var zero T
			res.Value = zero
			res.Err = fmt.Errorf("%w: %v", ErrAborted, rec)
		}
		stdout.Close()
		stderr.Close()
		res.Stdout = stdout.String()
		res.Stderr = stderr.String()
	}()

	res.Value, res.Err = body(stdout, stderr)
	return res
}

// Buffer is a goroutine-safe, size-capped sink. Writes past the cap are
// discarded but still reported as fully written, so a child process never
// sees a short write. Writes after Close are discarded.
type Buffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	max       int
	truncated bool
	closed    bool
}

func NewBuffer(maxBytes int) *Buffer {
	return &Buffer{max: maxBytes}
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return len(p), nil
	}
	if b.max <= 0 {
		return b.buf.Write(p)
	}

	room := b.max - b.buf.Len()
	if room <= 0 {
		b.truncated = len(p) > 0 || b.truncated
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

// Close detaches the sink; later writes are dropped.
func (b *Buffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// Truncated reports whether any output was dropped.
func (b *Buffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return b.buf.String() + TruncationMarker
	}
	return b.buf.String()
}
