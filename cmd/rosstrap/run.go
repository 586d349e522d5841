// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rosstrap/rosstrap/internal/bootstrap"
	"github.com/rosstrap/rosstrap/internal/config"
	"github.com/rosstrap/rosstrap/internal/generate"
)

// runBootstrap runs the full bootstrap and prints the final report.
func (a *App) runBootstrap(cmd *cobra.Command, flags *rootFlags) error {
	mode, err := bootstrap.ParseRecloneMode(flags.reclone)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	s, err := a.newSession(cmd.Context(), flags)
	if err != nil {
		return a.failure(nil, err)
	}
	defer s.close()

	username, err := a.currentUser()
	if err != nil {
		return a.failure(s, err)
	}

	b := a.bootstrapper(s, bootstrap.Options{
		User:      username,
		AssumeYes: flags.yes,
		Reclone:   mode,
	})

	report, err := b.Run(cmd.Context())
	if err != nil {
		writeWarnings(a.stderr, report)
		writeReloginReminder(a.stderr, report)
		if path := s.runLog.Path(); path != "" {
			defer fmt.Fprintln(a.stderr, SubtitleStyle.Render("Log: "+path))
		}
		return a.failure(s, err)
	}
	if report.Declined {
		fmt.Fprintln(a.stdout, SubtitleStyle.Render("Nothing was changed."))
		return nil
	}

	writeReport(a.stdout, s.cfg, report, s.runLog.Path())
	return nil
}

// progressHooks prints one line per stage start and end.
func progressHooks(w io.Writer) bootstrap.Hooks {
	return bootstrap.Hooks{
		StageStarted: func(index, total int, stage bootstrap.Stage) {
			counter := stageCounterStyle.Render(fmt.Sprintf("[%d/%d]", index+1, total))
			fmt.Fprintln(w, counter+TitleStyle.Render(stage.Title))
		},
		StageFinished: func(stage bootstrap.Stage, res bootstrap.StageResult) {
			took := SubtitleStyle.Render(formatDuration(res.Duration))
			indent := stageCounterStyle.Render("")
			switch res.Status {
			case bootstrap.StatusOK:
				fmt.Fprintf(w, "%s%s %s\n", indent, SuccessStyle.Render("✓ done"), took)
			case bootstrap.StatusWarning:
				fmt.Fprintf(w, "%s%s %s\n", indent, WarningStyle.Render("! failed, continuing"), took)
			case bootstrap.StatusFailed:
				fmt.Fprintf(w, "%s%s %s\n", indent, ErrorStyle.Render("✗ failed"), took)
			}
		},
	}
}

// writeWarnings prints the warnings collected so far.
func writeWarnings(w io.Writer, r *bootstrap.Report) {
	if r == nil || len(r.Warnings) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, WarningStyle.Render(fmt.Sprintf("Warnings (%d):", len(r.Warnings))))
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "  %s %s %s\n", WarningStyle.Render("!"), SubtitleStyle.Render("["+string(warn.Stage)+"]"), warn.Message)
	}
}

// writeReloginReminder tells the operator to start a new login session after
// joining the runtime group.
func writeReloginReminder(w io.Writer, r *bootstrap.Report) {
	if r == nil || !r.ReloginRequired() {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s You were added to the %s group. Log out and back in (or run %s) before using the scripts.\n",
		WarningStyle.Render("!"), r.Runtime.Group, CmdStyle.Render("newgrp "+r.Runtime.Group))
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

// writeReport prints the summary shown after the last stage: completed
// stages, collected warnings, the re-login reminder and next steps.
func writeReport(w io.Writer, cfg *config.Config, r *bootstrap.Report, logPath string) {
	fmt.Fprintln(w)
	if r.BuildFailed {
		fmt.Fprintln(w, WarningStyle.Render("Workspace set up, but the build failed"))
	} else {
		fmt.Fprintln(w, TitleStyle.Render("Workspace ready"))
	}
	fmt.Fprintln(w)

	completed := r.Completed()
	names := make([]string, len(completed))
	for i, name := range completed {
		names[i] = string(name)
	}
	fmt.Fprintf(w, "%s Completed %d of %d stages: %s\n",
		SuccessStyle.Render("✓"), len(completed), len(r.Stages), strings.Join(names, ", "))

	if r.Image != nil {
		fmt.Fprintf(w, "%s Image %s (%s, %s)\n",
			SuccessStyle.Render("✓"), r.Image.ShortID(), r.Image.HumanSize(), r.Image.Platform())
	}

	writeWarnings(w, r)
	writeReloginReminder(w, r)

	fmt.Fprintln(w)
	fmt.Fprintln(w, SubtitleStyle.Render("Next steps:"))
	fmt.Fprintf(w, "  %s\n", CmdStyle.Render("cd "+cfg.Workspace.Root))
	if shell := generate.ShellScript(cfg); shell != "" {
		fmt.Fprintf(w, "  %s\n", CmdStyle.Render("./"+shell))
	}
	fmt.Fprintf(w, "  Read %s\n", CmdStyle.Render(filepath.Base(cfg.GuidePath())))

	if r.BuildFailed {
		fmt.Fprintln(w)
		retry := "./" + generate.BuildScript(cfg)
		if generate.BuildScript(cfg) == "" {
			retry = "rosstrap"
		}
		fmt.Fprintf(w, "%s The workspace build failed. Fix the sources, then retry with %s\n",
			ErrorStyle.Render("✗"), CmdStyle.Render(retry))
	}

	if logPath != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, SubtitleStyle.Render("Log: "+logPath))
	}
}
