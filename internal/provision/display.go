// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/rosstrap/rosstrap/internal/config"
	"github.com/rosstrap/rosstrap/internal/hostexec"
)

type (
	// DisplayBridge sets up X11 forwarding so GUI tools inside the container
	// can reach the host display.
	DisplayBridge struct {
		runner   hostexec.Runner
		logger   *log.Logger
		display  config.DisplayConfig
		packages []string
		// Output receives live apt output. Nil discards it.
		Output io.Writer
	}

	// DisplayResult describes what DisplayBridge.Setup did.
	DisplayResult struct {
		// ProfileUpdated is true when the export line was appended in this run.
		ProfileUpdated bool
		// ProbePassed is true when the GUI probe started and stayed up until
		// its timeout, or exited cleanly.
		ProbePassed bool
		// Warnings lists every step that failed.
		Warnings []string
	}
)

// NewDisplayBridge creates a DisplayBridge for cfg.
func NewDisplayBridge(runner hostexec.Runner, cfg *config.Config, logger *log.Logger) *DisplayBridge {
	return &DisplayBridge{
		runner:   runner,
		logger:   orDiscard(logger),
		display:  cfg.Display,
		packages: cfg.Packages.Display,
	}
}

// ExportLine returns the profile line that exports DISPLAY.
func (d *DisplayBridge) ExportLine() string {
	return "export DISPLAY=" + d.display.Value
}

// Setup installs the forwarding packages, exports DISPLAY from the shell
// profile and smoke-tests the display. Step failures become warnings; the
// returned error is only set when ctx is canceled.
func (d *DisplayBridge) Setup(ctx context.Context) (DisplayResult, error) {
	var result DisplayResult
	warn := func(msg string, kv ...any) {
		d.logger.Warn(msg, kv...)
		result.Warnings = append(result.Warnings, msg)
	}

	if len(d.packages) > 0 {
		install := hostexec.Sudo("apt-get", append([]string{"install", "-y"}, d.packages...)...)
		install.Stream = d.Output
		if _, err := hostexec.MustSucceed(ctx, d.runner, install); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			warn("display packages could not be installed", "err", err)
		}
	}

	added, err := AppendLineOnce(d.display.Profile, d.ExportLine())
	switch {
	case err != nil:
		warn(fmt.Sprintf("could not update %s", d.display.Profile), "err", err)
	case added:
		result.ProfileUpdated = true
		d.logger.Info("profile updated", "path", d.display.Profile, "line", d.ExportLine())
	default:
		d.logger.Debug("profile already exports DISPLAY", "path", d.display.Profile)
	}

	passed, err := d.probe(ctx)
	if err != nil {
		return result, err
	}
	result.ProbePassed = passed
	if !passed {
		warn(fmt.Sprintf("display smoke test (%s) failed; GUI tools may not open", d.display.Probe))
	}

	return result, nil
}

// probe runs the GUI probe bounded by the configured timeout. A probe still
// running at the deadline is killed and counts as passed.
func (d *DisplayBridge) probe(ctx context.Context) (bool, error) {
	if _, err := d.runner.LookPath(d.display.Probe); err != nil {
		d.logger.Debug("display probe not found", "probe", d.display.Probe, "err", err)
		return false, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, d.display.ProbeTimeout)
	defer cancel()

	res, err := d.runner.Run(probeCtx, hostexec.Command{
		Name: d.display.Probe,
		Env:  []string{"DISPLAY=" + d.display.Value},
	})
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		d.logger.Debug("display probe failed to start", "err", err)
		return false, nil
	}
	if res.TimedOut {
		return true, nil
	}
	d.logger.Debug("display probe exited", "exit", res.ExitCode)
	return res.ExitCode == 0, nil
}
