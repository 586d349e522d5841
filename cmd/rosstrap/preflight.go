// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rosstrap/rosstrap/internal/bootstrap"
	"github.com/rosstrap/rosstrap/internal/preflight"
)

// newPreflightCommand creates the `rosstrap preflight` command.
func newPreflightCommand(app *App, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check host requirements without changing anything",
		Long: `Check host requirements without changing anything.

Reports installed memory, free disk space at the workspace location, CPU
virtualization support and the Ubuntu release. Exits non-zero when the disk
check fails, exactly as the full bootstrap would.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runPreflight(cmd, flags)
		},
	}
}

func (a *App) runPreflight(cmd *cobra.Command, flags *rootFlags) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	s, err := a.newSession(cmd.Context(), flags)
	if err != nil {
		return a.failure(nil, err)
	}
	defer s.close()

	report, err := a.bootstrapper(s, bootstrap.Options{AssumeYes: true}).
		RunStages(cmd.Context(), bootstrap.StagePreflight)
	writeFindings(a.stdout, report.Preflight)
	if err != nil {
		return a.failure(s, err)
	}
	return nil
}

// writeFindings prints one line per preflight finding.
func writeFindings(w io.Writer, r preflight.Report) {
	if len(r.Findings) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, f := range r.Findings {
		fmt.Fprintf(w, "  %s %-15s %s\n", levelMark(f.Level), f.Check, f.Message)
	}
}

func levelMark(l preflight.Level) string {
	switch l {
	case preflight.LevelOK:
		return SuccessStyle.Render("✓")
	case preflight.LevelWarning:
		return WarningStyle.Render("!")
	case preflight.LevelFatal:
		return ErrorStyle.Render("✗")
	default:
		return VerboseStyle.Render("i")
	}
}
