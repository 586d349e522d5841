// SPDX-License-Identifier: MPL-2.0

package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// ErrAborted is returned when the operator aborts a prompt (Ctrl+C / Esc).
var ErrAborted = errors.New("prompt aborted")

type (
	// ConfirmOptions configures a yes/no question.
	ConfirmOptions struct {
		// Title is the question.
		Title string
		// Description adds context below the title.
		Description string
		// Affirmative is the yes label (default: "Yes").
		Affirmative string
		// Negative is the no label (default: "No").
		Negative string
		// Default is the answer on empty input or end of input.
		Default bool
	}

	// Prompter asks the operator yes/no questions.
	Prompter interface {
		Confirm(ctx context.Context, opts ConfirmOptions) (bool, error)
	}

	// Option configures a HuhPrompter.
	Option func(*HuhPrompter)

	// HuhPrompter implements Prompter with huh confirm forms.
	HuhPrompter struct {
		input      *lineReader
		output     io.Writer
		accessible bool
		theme      *huh.Theme
	}
)

// WithInput sets where answers are read from (default: stdin).
func WithInput(r io.Reader) Option {
	return func(p *HuhPrompter) {
		p.input = newLineReader(r)
	}
}

// WithOutput sets where prompts are written (default: stdout, or stderr in
// accessible mode).
func WithOutput(w io.Writer) Option {
	return func(p *HuhPrompter) {
		p.output = w
	}
}

// WithAccessible forces accessible (line based) mode on or off.
func WithAccessible(accessible bool) Option {
	return func(p *HuhPrompter) {
		p.accessible = accessible
	}
}

// NewPrompter creates a HuhPrompter. Accessible mode is enabled when stdin is
// not a terminal or the ACCESSIBLE environment variable is set.
func NewPrompter(opts ...Option) *HuhPrompter {
	p := &HuhPrompter{
		accessible: !IsInputTerminal() || os.Getenv("ACCESSIBLE") != "",
		theme:      huh.ThemeCharm(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.input == nil {
		p.input = newLineReader(os.Stdin)
	}
	if p.output == nil {
		// Keep prompts visible when stdout is redirected.
		p.output = os.Stdout
		if p.accessible {
			p.output = os.Stderr
		}
	}
	return p
}

// Accessible reports whether prompts run in accessible mode.
func (p *HuhPrompter) Accessible() bool { return p.accessible }

// Confirm asks a yes/no question.
func (p *HuhPrompter) Confirm(ctx context.Context, opts ConfirmOptions) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	answer := opts.Default
	field := huh.NewConfirm().
		Title(opts.Title).
		Value(&answer)
	if opts.Description != "" {
		field = field.Description(opts.Description)
	}
	if opts.Affirmative != "" {
		field = field.Affirmative(opts.Affirmative)
	}
	if opts.Negative != "" {
		field = field.Negative(opts.Negative)
	}

	form := huh.NewForm(huh.NewGroup(field)).
		WithTheme(p.theme).
		WithAccessible(p.accessible).
		WithInput(p.input).
		WithOutput(p.output).
		WithShowHelp(false)

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, ErrAborted
		}
		return false, fmt.Errorf("failed to prompt: %w", err)
	}
	return answer, nil
}

// IsInputTerminal reports whether stdin is a terminal.
func IsInputTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
