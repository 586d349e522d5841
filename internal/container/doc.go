// SPDX-License-Identifier: MPL-2.0

// Package container drives the Docker CLI for the bootstrap: image pulls,
// image metadata, and containerized runs of the workspace.
//
// DockerEngine embeds BaseCLIEngine, which builds CLI argument lists and
// executes them through a hostexec.Runner. RunArgs is the single source of
// truth for `docker run` flags, so the in-process workspace build and the
// generated wrapper scripts mount the workspace the same way.
package container
