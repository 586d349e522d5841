// SPDX-License-Identifier: MPL-2.0

package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

type (
	// Prober reads host signals. Readings that fail are reported inside
	// Signals; Probe itself only fails when ctx is done.
	Prober interface {
		Probe(ctx context.Context, workspaceRoot string) (Signals, error)
	}

	// HostProber reads signals with gopsutil.
	HostProber struct{}
)

// NewHostProber creates a gopsutil-backed Prober.
func NewHostProber() *HostProber {
	return &HostProber{}
}

// Probe reads memory, free disk space at the nearest existing ancestor of
// workspaceRoot, CPU flags and distribution identity.
func (p *HostProber) Probe(ctx context.Context, workspaceRoot string) (Signals, error) {
	var s Signals

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		s.MemoryErr = err
	} else {
		s.MemoryTotal = vm.Total
	}

	if dir, err := ExistingAncestor(workspaceRoot); err != nil {
		s.DiskErr = err
	} else {
		s.DiskPath = dir
		if usage, err := disk.UsageWithContext(ctx, dir); err != nil {
			s.DiskErr = err
		} else {
			s.DiskFree = usage.Free
		}
	}

	if infos, err := cpu.InfoWithContext(ctx); err != nil {
		s.CPUErr = err
	} else {
		s.Virtualization = HasVirtualizationFlag(infos)
	}

	if info, err := host.InfoWithContext(ctx); err != nil {
		s.HostErr = err
	} else {
		s.Platform = info.Platform
		s.PlatformVersion = info.PlatformVersion
		s.KernelVersion = info.KernelVersion
	}

	if err := ctx.Err(); err != nil {
		return Signals{}, fmt.Errorf("preflight probe: %w", err)
	}
	return s, nil
}

// HasVirtualizationFlag reports whether any CPU advertises vmx (Intel) or svm (AMD).
func HasVirtualizationFlag(infos []cpu.InfoStat) bool {
	for _, info := range infos {
		if slices.Contains(info.Flags, "vmx") || slices.Contains(info.Flags, "svm") {
			return true
		}
	}
	return false
}

// ExistingAncestor returns path itself if it exists, else its nearest
// existing parent directory. The workspace root usually does not exist yet
// when preflight runs.
func ExistingAncestor(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for dir := abs; ; dir = filepath.Dir(dir) {
		info, err := os.Stat(dir)
		switch {
		case err == nil && info.IsDir():
			return dir, nil
		case err == nil:
			return "", fmt.Errorf("%s is not a directory", dir)
		case !errors.Is(err, os.ErrNotExist):
			return "", err
		}
		if parent := filepath.Dir(dir); parent == dir {
			return "", fmt.Errorf("no existing ancestor for %s", abs)
		}
	}
}
