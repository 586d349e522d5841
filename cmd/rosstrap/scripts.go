// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rosstrap/rosstrap/internal/bootstrap"
	"github.com/rosstrap/rosstrap/internal/generate"
)

// newScriptsCommand creates the `rosstrap scripts` command.
func newScriptsCommand(app *App, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "scripts",
		Short: "Regenerate the wrapper scripts and the quick-start guide",
		Long: `Regenerate the wrapper scripts and the quick-start guide.

Creates the workspace directory if needed, then rewrites every configured
wrapper script and the quick-start guide. Nothing is installed, cloned or
pulled. Local edits to the generated files are overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runScripts(cmd, flags)
		},
	}
}

func (a *App) runScripts(cmd *cobra.Command, flags *rootFlags) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	s, err := a.newSession(cmd.Context(), flags)
	if err != nil {
		return a.failure(nil, err)
	}
	defer s.close()

	report, err := a.bootstrapper(s, bootstrap.Options{AssumeYes: true}).
		RunStages(cmd.Context(), bootstrap.StageWorkspace, bootstrap.StageScripts, bootstrap.StageGuide)
	if err != nil {
		return a.failure(s, err)
	}

	fmt.Fprintln(a.stdout)
	writeFiles(a.stdout, report.Scripts)
	writeFiles(a.stdout, []generate.WrittenFile{report.Guide})
	return nil
}

func writeFiles(w io.Writer, files []generate.WrittenFile) {
	for _, f := range files {
		fmt.Fprintf(w, "  %s %s %s %s\n",
			SuccessStyle.Render("✓"), f.Mode, CmdStyle.Render(f.Path), SubtitleStyle.Render(humanize.Bytes(uint64(f.Size))))
	}
}
