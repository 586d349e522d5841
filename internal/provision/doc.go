// SPDX-License-Identifier: MPL-2.0

// Package provision prepares the host: system packages, the container
// runtime and X11 display forwarding.
//
// Every host mutation goes through a hostexec.Runner. PackageInstaller and
// RuntimeInstaller fail hard on a non-zero exit (except best-effort removal
// of conflicting legacy packages); DisplayBridge never fails the run and
// reports problems as warnings instead.
package provision
