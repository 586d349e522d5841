// SPDX-License-Identifier: MPL-2.0

// Package workspace owns the workspace root and the cloned repository.
//
// Whether to clone is a pure decision over an explicit state:
//
//	state := workspace.RepoAbsent
//	action := workspace.Decide(state, workspace.ChoiceKeep) // ActionClone
//
// Manager carries the decision out through a Cloner. GitCloner is the go-git
// implementation; it picks SSH key or token authentication from the
// environment.
package workspace
