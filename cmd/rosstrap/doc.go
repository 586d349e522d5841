// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the rosstrap command tree. Running rosstrap with no
// subcommand performs the full workspace bootstrap; the subcommands expose
// single parts of it (host checks, script regeneration, the guide, config).
package cmd
