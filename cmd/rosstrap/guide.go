// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/rosstrap/rosstrap/internal/generate"
)

// newGuideCommand creates the `rosstrap guide` command.
func newGuideCommand(app *App, flags *rootFlags) *cobra.Command {
	var raw bool

	guideCmd := &cobra.Command{
		Use:   "guide",
		Short: "Show the quick-start guide for the configured workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			cmd.SilenceErrors = true

			s, err := app.newSession(cmd.Context(), flags)
			if err != nil {
				return app.failure(nil, err)
			}
			defer s.close()

			md, err := generate.RenderGuide(s.cfg)
			if err != nil {
				return app.failure(s, err)
			}
			if raw {
				_, err = app.stdout.Write(md)
				return err
			}

			renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
			if err != nil {
				return app.failure(s, err)
			}
			out, err := renderer.RenderBytes(md)
			if err != nil {
				return app.failure(s, err)
			}
			fmt.Fprint(app.stdout, string(out))
			return nil
		},
	}

	guideCmd.Flags().BoolVar(&raw, "raw", false, "print the markdown source instead of rendering it")

	return guideCmd
}
