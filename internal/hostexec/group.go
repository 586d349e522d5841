// SPDX-License-Identifier: MPL-2.0

package hostexec

import (
	"context"
	"sync"
)

// GroupRunner wraps a Runner and, once a group is activated, runs every
// command through sg(1) with that group as the primary group. A user added to
// a group keeps the old membership for the rest of the login session; sg lets
// the same session use the new group without a password.
type GroupRunner struct {
	inner Runner

	mu    sync.RWMutex
	group string
}

// NewGroupRunner creates a GroupRunner over inner with no active group.
func NewGroupRunner(inner Runner) *GroupRunner {
	return &GroupRunner{inner: inner}
}

// ActivateGroup routes later commands through `sg group -c`. An empty group
// restores direct execution.
func (r *GroupRunner) ActivateGroup(group string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.group = group
}

// Group returns the active group, or "" when commands run directly.
func (r *GroupRunner) Group() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.group
}

// Run implements Runner.
func (r *GroupRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	return r.inner.Run(ctx, WithGroup(r.Group(), cmd))
}

// LookPath implements Runner. Lookups never go through sg.
func (r *GroupRunner) LookPath(name string) (string, error) {
	return r.inner.LookPath(name)
}

// WithGroup returns cmd wrapped in `sg group -c '<cmd>'`, or cmd unchanged
// when group is empty. Dir, Env, Stdin and Stream carry over.
func WithGroup(group string, cmd Command) Command {
	if group == "" {
		return cmd
	}
	wrapped := cmd
	wrapped.Name = "sg"
	wrapped.Args = []string{group, "-c", cmd.String()}
	return wrapped
}
