// SPDX-License-Identifier: MPL-2.0

package preflight

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/rosstrap/rosstrap/internal/config"
	"github.com/rosstrap/rosstrap/internal/issue"
)

// Level classifies a single finding.
const (
	LevelOK Level = iota
	LevelInfo
	LevelWarning
	LevelFatal
)

// Check names, in report order.
const (
	CheckDisk           CheckName = "disk"
	CheckMemory         CheckName = "memory"
	CheckVirtualization CheckName = "virtualization"
	CheckDistribution   CheckName = "distribution"
	CheckWSL            CheckName = "wsl"
)

const gib = 1 << 30

// ErrInsufficientDisk is returned by Report.Err when the disk check failed.
var ErrInsufficientDisk = errors.New("insufficient disk space")

type (
	// Level is the severity of a finding.
	Level int

	// CheckName identifies a preflight check.
	CheckName string

	// Signals are the raw host readings. A reading that failed carries its
	// error instead of a value.
	Signals struct {
		MemoryTotal uint64
		MemoryErr   error

		// DiskPath is the existing directory the free space was measured at.
		DiskPath string
		DiskFree uint64
		DiskErr  error

		// Virtualization is true when the CPU advertises vmx or svm.
		Virtualization bool
		CPUErr         error

		Platform        string // e.g. "ubuntu"
		PlatformVersion string // e.g. "22.04"
		KernelVersion   string // e.g. "5.15.153.1-microsoft-standard-WSL2"
		HostErr         error
	}

	// Thresholds are the host requirements.
	Thresholds struct {
		MinMemoryBytes    uint64
		MinDiskBytes      uint64
		SupportedReleases []string
	}

	// Finding is the outcome of one check.
	Finding struct {
		Check   CheckName
		Level   Level
		Message string
	}

	// Report is the ordered list of findings.
	Report struct {
		Findings []Finding
	}
)

// ThresholdsFrom converts the configured GiB thresholds to bytes.
func ThresholdsFrom(cfg config.PreflightConfig) Thresholds {
	return Thresholds{
		MinMemoryBytes:    uint64(cfg.MinMemoryGB * gib),
		MinDiskBytes:      uint64(cfg.MinDiskGB * gib),
		SupportedReleases: slices.Clone(cfg.SupportedReleases),
	}
}

// Check classifies host signals against thresholds.
func Check(s Signals, t Thresholds) Report {
	var r Report

	switch {
	case s.DiskErr != nil:
		r.add(CheckDisk, LevelFatal, fmt.Sprintf("could not read free disk space: %v", s.DiskErr))
	case s.DiskFree < t.MinDiskBytes:
		r.add(CheckDisk, LevelFatal, fmt.Sprintf("%s free at %s, at least %s required",
			humanize.IBytes(s.DiskFree), s.DiskPath, humanize.IBytes(t.MinDiskBytes)))
	default:
		r.add(CheckDisk, LevelOK, fmt.Sprintf("%s free at %s", humanize.IBytes(s.DiskFree), s.DiskPath))
	}

	switch {
	case s.MemoryErr != nil:
		r.add(CheckMemory, LevelWarning, fmt.Sprintf("could not read total memory: %v", s.MemoryErr))
	case s.MemoryTotal < t.MinMemoryBytes:
		r.add(CheckMemory, LevelWarning, fmt.Sprintf("%s memory, %s recommended; builds and simulation may be slow",
			humanize.IBytes(s.MemoryTotal), humanize.IBytes(t.MinMemoryBytes)))
	default:
		r.add(CheckMemory, LevelOK, fmt.Sprintf("%s memory", humanize.IBytes(s.MemoryTotal)))
	}

	switch {
	case s.CPUErr != nil:
		r.add(CheckVirtualization, LevelWarning, fmt.Sprintf("could not read CPU flags: %v", s.CPUErr))
	case !s.Virtualization:
		r.add(CheckVirtualization, LevelWarning, "CPU virtualization flag (vmx/svm) not exposed; enable it in firmware or nested virtualization")
	default:
		r.add(CheckVirtualization, LevelOK, "CPU virtualization available")
	}

	distro := strings.TrimSpace(s.Platform + " " + s.PlatformVersion)
	switch {
	case s.HostErr != nil:
		r.add(CheckDistribution, LevelWarning, fmt.Sprintf("could not identify the distribution: %v", s.HostErr))
	case !strings.EqualFold(s.Platform, "ubuntu"):
		r.add(CheckDistribution, LevelWarning, fmt.Sprintf("%s is not Ubuntu; apt steps may fail", orUnknown(distro)))
	case !slices.Contains(t.SupportedReleases, s.PlatformVersion):
		r.add(CheckDistribution, LevelWarning, fmt.Sprintf("%s is not a supported release (%s)",
			distro, strings.Join(t.SupportedReleases, ", ")))
	default:
		r.add(CheckDistribution, LevelOK, distro)
	}

	if IsWSL(s.KernelVersion) {
		r.add(CheckWSL, LevelInfo, "running under WSL ("+s.KernelVersion+")")
	}

	return r
}

// IsWSL reports whether a kernel release string belongs to a WSL kernel.
func IsWSL(kernelVersion string) bool {
	return strings.Contains(strings.ToLower(kernelVersion), "microsoft")
}

func (r *Report) add(check CheckName, level Level, msg string) {
	r.Findings = append(r.Findings, Finding{Check: check, Level: level, Message: msg})
}

// Fatal reports whether any finding aborts the run.
func (r Report) Fatal() bool {
	return slices.ContainsFunc(r.Findings, func(f Finding) bool { return f.Level == LevelFatal })
}

// Warnings returns the warning findings.
func (r Report) Warnings() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Level == LevelWarning {
			out = append(out, f)
		}
	}
	return out
}

// Find returns the finding for a check, if present.
func (r Report) Find(check CheckName) (Finding, bool) {
	i := slices.IndexFunc(r.Findings, func(f Finding) bool { return f.Check == check })
	if i < 0 {
		return Finding{}, false
	}
	return r.Findings[i], true
}

// Err returns an actionable error when the report is fatal, else nil.
func (r Report) Err() error {
	f, ok := r.Find(CheckDisk)
	if !ok || f.Level != LevelFatal {
		return nil
	}
	return issue.NewErrorContext().
		WithOperation("verify host requirements").
		WithIssue(issue.InsufficientDiskId).
		WithSuggestion("Free disk space or move the workspace root to a larger filesystem").
		WithSuggestion("Lower preflight.min_disk_gb in the config if the requirement is too strict").
		Wrap(fmt.Errorf("%w: %s", ErrInsufficientDisk, f.Message)).
		BuildError()
}

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelOK:
		return "ok"
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelFatal:
		return "fatal"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown distribution"
	}
	return s
}
