// SPDX-License-Identifier: MPL-2.0

// Package preflight inspects the host before anything is installed.
//
// Probing and classification are separate: a Prober reads host signals
// (memory, free disk at the workspace location, CPU virtualization flags,
// distribution and kernel release), and Check classifies those signals
// against thresholds. Check is a pure function, so every threshold edge is
// tested without touching the host.
//
// Only a disk shortfall (or an unreadable disk) is fatal. Low memory, a
// missing virtualization flag and an unsupported distribution are warnings;
// running under WSL is reported as information.
package preflight
