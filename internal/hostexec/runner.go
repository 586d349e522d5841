// SPDX-License-Identifier: MPL-2.0

package hostexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/syntax"
)

// DefaultWaitDelay bounds how long Run waits for output pipes held open by
// descendants after the process exits or is killed.
const DefaultWaitDelay = 2 * time.Second

// ErrCommandFailed is the sentinel error wrapped by ExitError.
var ErrCommandFailed = errors.New("command failed")

type (
	// ExecCommandFunc is the function signature for creating exec.Cmd.
	// This allows injection of mock implementations for testing.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// LookPathFunc resolves a binary name against PATH.
	LookPathFunc func(file string) (string, error)

	// Command describes a single subprocess invocation.
	Command struct {
		// Name is the binary to execute (resolved via PATH).
		Name string
		// Args are the arguments passed to the binary.
		Args []string
		// Dir is the working directory. Empty means the current directory.
		Dir string
		// Env holds extra KEY=VALUE pairs appended to the inherited environment.
		Env []string
		// Stdin is the standard input. Nil means no input.
		Stdin io.Reader
		// Stream receives live stdout/stderr in addition to the captured output.
		Stream io.Writer
	}

	// Result is the outcome of a command that was started.
	Result struct {
		// ExitCode is the process exit status, or -1 when the process was killed
		// because its context deadline expired.
		ExitCode int
		// Output is the combined stdout/stderr.
		Output []byte
		// TimedOut is true when the context deadline killed the process.
		TimedOut bool
	}

	// Runner is the capability every stage uses to touch the host.
	Runner interface {
		// Run executes cmd and waits for it. A non-zero exit is reported through
		// Result.ExitCode with a nil error.
		Run(ctx context.Context, cmd Command) (Result, error)
		// LookPath reports whether a binary is resolvable on PATH.
		LookPath(name string) (string, error)
	}

	// ExitError is returned by MustSucceed for a command that exited non-zero.
	ExitError struct {
		Command string
		Code    int
		Output  string
	}

	// ExecRunner implements Runner with os/exec.
	ExecRunner struct {
		execCommand ExecCommandFunc
		lookPath    LookPathFunc
		logger      *log.Logger
		waitDelay   time.Duration
	}

	// Option configures an ExecRunner.
	Option func(*ExecRunner)
)

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn ExecCommandFunc) Option {
	return func(r *ExecRunner) {
		r.execCommand = fn
	}
}

// WithLookPath sets a custom PATH resolver for testing.
func WithLookPath(fn LookPathFunc) Option {
	return func(r *ExecRunner) {
		r.lookPath = fn
	}
}

// WithLogger sets the logger used for debug tracing of every command.
func WithLogger(logger *log.Logger) Option {
	return func(r *ExecRunner) {
		r.logger = logger
	}
}

// WithWaitDelay sets how long Run waits for output pipes to close after the
// process is gone.
func WithWaitDelay(d time.Duration) Option {
	return func(r *ExecRunner) {
		r.waitDelay = d
	}
}

// NewExecRunner creates a Runner backed by os/exec.
func NewExecRunner(opts ...Option) *ExecRunner {
	r := &ExecRunner{
		execCommand: exec.CommandContext,
		lookPath:    exec.LookPath,
		logger:      log.New(io.Discard),
		waitDelay:   DefaultWaitDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the command and waits for it to exit.
func (r *ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	cmd := r.execCommand(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		// Keep an environment the command factory already set (test helpers do).
		if cmd.Env == nil {
			cmd.Env = os.Environ()
		}
		cmd.Env = append(cmd.Env, c.Env...)
	}
	cmd.Stdin = c.Stdin
	cmd.WaitDelay = r.waitDelay

	var buf bytes.Buffer
	if c.Stream != nil {
		cmd.Stdout = io.MultiWriter(&buf, c.Stream)
		cmd.Stderr = io.MultiWriter(&buf, c.Stream)
	} else {
		cmd.Stdout = &buf
		cmd.Stderr = &buf
	}

	r.logger.Debug("exec", "cmd", c.String(), "dir", c.Dir)
	err := cmd.Run()
	res := Result{Output: buf.Bytes()}
	if err == nil {
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) && cmd.Process != nil {
			res.ExitCode = -1
			res.TimedOut = true
			r.logger.Debug("exec timed out", "cmd", c.Name)
			return res, nil
		}
		return res, fmt.Errorf("%s: %w", c.Name, ctxErr)
	}

	// The process exited zero but a descendant kept the output pipes open.
	if errors.Is(err, exec.ErrWaitDelay) {
		r.logger.Debug("exec output pipes left open", "cmd", c.Name)
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		r.logger.Debug("exec exited", "cmd", c.Name, "exit", res.ExitCode)
		return res, nil
	}

	return res, fmt.Errorf("failed to start %s: %w", c.Name, err)
}

// LookPath resolves name against PATH.
func (r *ExecRunner) LookPath(name string) (string, error) {
	return r.lookPath(name)
}

// MustSucceed runs cmd and converts a non-zero exit into an *ExitError.
func MustSucceed(ctx context.Context, r Runner, cmd Command) (Result, error) {
	res, err := r.Run(ctx, cmd)
	if err != nil {
		return res, err
	}
	if res.TimedOut || res.ExitCode != 0 {
		return res, &ExitError{
			Command: cmd.String(),
			Code:    res.ExitCode,
			Output:  strings.TrimSpace(string(res.Output)),
		}
	}
	return res, nil
}

// Success reports whether the command exited zero within its deadline.
func (r Result) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// String renders the command as a shell-quoted line.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quoteWord(c.Name))
	for _, a := range c.Args {
		parts = append(parts, quoteWord(a))
	}
	return strings.Join(parts, " ")
}

// Sudo returns a command that runs name with args through sudo.
func Sudo(name string, args ...string) Command {
	return Command{Name: "sudo", Args: append([]string{name}, args...)}
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Command, e.Code)
}

// Unwrap returns ErrCommandFailed for errors.Is() compatibility.
func (e *ExitError) Unwrap() error { return ErrCommandFailed }

func quoteWord(s string) string {
	q, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		return fmt.Sprintf("%q", s)
	}
	return q
}
