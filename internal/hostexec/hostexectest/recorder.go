// SPDX-License-Identifier: MPL-2.0

// Package hostexectest provides a recording fake of hostexec.Runner for
// testing stage logic without touching the host.
package hostexectest

import (
	"context"
	"os/exec"
	"slices"
	"strings"
	"sync"

	"github.com/rosstrap/rosstrap/internal/hostexec"
)

type (
	// Response is the canned outcome for commands matching a rule.
	Response struct {
		ExitCode int
		Output   string
		TimedOut bool
		// Err is returned as the Run error (start failure / cancellation).
		Err error
	}

	rule struct {
		prefix   string
		response Response
	}

	// Recorder records every command and answers with canned responses.
	// Commands that match no rule succeed with empty output.
	Recorder struct {
		mu       sync.Mutex
		commands []hostexec.Command
		rules    []rule
		paths    map[string]string
		// OnRun, when set, is called for every command after it is recorded.
		// Tests use it to simulate side effects such as files created by a command.
		OnRun func(cmd hostexec.Command)
	}
)

// New creates an empty Recorder.
func New() *Recorder {
	return &Recorder{paths: make(map[string]string)}
}

// On registers a response for every command whose shell-quoted line starts
// with prefix. The longest matching prefix wins; among equal prefixes the
// latest registration wins.
func (r *Recorder) On(prefix string, resp Response) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule{prefix: prefix, response: resp})
	return r
}

// Fail is shorthand for On(prefix, Response{ExitCode: 1}).
func (r *Recorder) Fail(prefix string) *Recorder {
	return r.On(prefix, Response{ExitCode: 1})
}

// WithBinary makes LookPath resolve name to path.
func (r *Recorder) WithBinary(name, path string) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths[name] = path
	return r
}

// Run implements hostexec.Runner.
func (r *Recorder) Run(_ context.Context, cmd hostexec.Command) (hostexec.Result, error) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	line := cmd.String()
	var (
		best    Response
		bestLen = -1
	)
	for _, ru := range r.rules {
		if strings.HasPrefix(line, ru.prefix) && len(ru.prefix) >= bestLen {
			best = ru.response
			bestLen = len(ru.prefix)
		}
	}
	onRun := r.OnRun
	r.mu.Unlock()

	if onRun != nil {
		onRun(cmd)
	}
	if cmd.Stream != nil && best.Output != "" {
		_, _ = cmd.Stream.Write([]byte(best.Output))
	}
	return hostexec.Result{
		ExitCode: best.ExitCode,
		Output:   []byte(best.Output),
		TimedOut: best.TimedOut,
	}, best.Err
}

// LookPath implements hostexec.Runner.
func (r *Recorder) LookPath(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.paths[name]; ok {
		return p, nil
	}
	return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
}

// Commands returns a copy of the recorded commands.
func (r *Recorder) Commands() []hostexec.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.commands)
}

// Lines returns the recorded commands as shell-quoted lines.
func (r *Recorder) Lines() []string {
	cmds := r.Commands()
	lines := make([]string, len(cmds))
	for i, c := range cmds {
		lines[i] = c.String()
	}
	return lines
}

// Count returns how many recorded commands start with prefix.
func (r *Recorder) Count(prefix string) int {
	n := 0
	for _, l := range r.Lines() {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}

// Ran reports whether any recorded command starts with prefix.
func (r *Recorder) Ran(prefix string) bool {
	return r.Count(prefix) > 0
}

// Index returns the position of the first command starting with prefix, or -1.
func (r *Recorder) Index(prefix string) int {
	for i, l := range r.Lines() {
		if strings.HasPrefix(l, prefix) {
			return i
		}
	}
	return -1
}

// Reset clears recorded commands but keeps rules and binaries.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = r.commands[:0]
}
