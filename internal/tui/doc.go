// SPDX-License-Identifier: MPL-2.0

// Package tui provides the operator prompts. Prompts are charmbracelet/huh
// forms; when stdin is not a terminal they run in accessible mode so answers
// can be piped in, one line per prompt.
package tui
