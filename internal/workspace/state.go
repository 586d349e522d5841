// SPDX-License-Identifier: MPL-2.0

package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

type (
	// RepoState is whether the repository directory exists.
	RepoState int

	// Choice is the operator's answer when the repository already exists.
	Choice int

	// Action is what the cloner stage does.
	Action int
)

const (
	// RepoAbsent means nothing exists at the repository path.
	RepoAbsent RepoState = iota
	// RepoPresent means something exists at the repository path.
	RepoPresent
)

const (
	// ChoiceKeep keeps the existing repository.
	ChoiceKeep Choice = iota
	// ChoiceReclone removes the existing repository and clones again.
	ChoiceReclone
)

const (
	// ActionClone clones into an absent directory.
	ActionClone Action = iota
	// ActionReclone removes the directory, then clones.
	ActionReclone
	// ActionKeep leaves the repository untouched.
	ActionKeep
)

// String returns the state name.
func (s RepoState) String() string {
	switch s {
	case RepoAbsent:
		return "absent"
	case RepoPresent:
		return "present"
	default:
		return fmt.Sprintf("RepoState(%d)", int(s))
	}
}

// String returns the choice name.
func (c Choice) String() string {
	switch c {
	case ChoiceKeep:
		return "keep"
	case ChoiceReclone:
		return "reclone"
	default:
		return fmt.Sprintf("Choice(%d)", int(c))
	}
}

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionClone:
		return "clone"
	case ActionReclone:
		return "reclone"
	case ActionKeep:
		return "keep"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Decide maps the repository state and operator choice to an action.
// The choice is ignored when the repository is absent.
func Decide(state RepoState, choice Choice) Action {
	if state == RepoAbsent {
		return ActionClone
	}
	if choice == ChoiceReclone {
		return ActionReclone
	}
	return ActionKeep
}

// Inspect reports the state of path.
func Inspect(path string) (RepoState, error) {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return RepoPresent, nil
	case errors.Is(err, fs.ErrNotExist):
		return RepoAbsent, nil
	default:
		return RepoAbsent, fmt.Errorf("failed to inspect %s: %w", path, err)
	}
}
