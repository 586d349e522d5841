// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/rosstrap/rosstrap/internal/bootstrap"
	"github.com/rosstrap/rosstrap/internal/issue"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// rootFlags holds the flags shared by the command tree.
type rootFlags struct {
	// verbose enables debug logging and full error chains
	verbose bool
	// configPath overrides the config file lookup
	configPath string
	// yes answers the initial confirmation
	yes bool
	// reclone pre-answers the reclone prompt (ask, yes, no)
	reclone string
}

// NewRootCommand creates the rosstrap command tree bound to app.
func NewRootCommand(app *App) *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "rosstrap",
		Short: "Bootstrap a containerized ROS 2 robotics workspace on WSL",
		Long: TitleStyle.Render("rosstrap") + SubtitleStyle.Render(" - Bootstrap a containerized ROS 2 robotics workspace") + `

rosstrap prepares an Ubuntu (WSL) host for robotics development: it checks
the host, installs Docker, clones the workspace repository, pulls the
development image, sets up X11 forwarding, generates wrapper scripts, builds
the workspace inside the container and writes a quick-start guide.

Running it again is safe: existing installs are kept, and scripts and the
guide are regenerated.

` + SubtitleStyle.Render("Examples:") + `
  rosstrap                   Run the full bootstrap
  rosstrap -y --reclone no   Run unattended, keeping an existing clone
  rosstrap preflight         Check the host only
  rosstrap scripts           Regenerate wrapper scripts and the guide
  rosstrap guide             Show the quick-start guide
  rosstrap config show       Show the effective configuration`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runBootstrap(cmd, flags)
		},
	}

	rootCmd.SetIn(app.stdin)
	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)

	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default is $HOME/.config/rosstrap/config.cue)")
	rootCmd.Flags().BoolVarP(&flags.yes, "yes", "y", false, "answer yes to the initial confirmation")
	rootCmd.Flags().StringVar(&flags.reclone, "reclone", string(bootstrap.RecloneAsk), "when the repository exists: ask, yes (remove and clone again) or no (keep it)")

	rootCmd.AddCommand(newPreflightCommand(app, flags))
	rootCmd.AddCommand(newScriptsCommand(app, flags))
	rootCmd.AddCommand(newGuideCommand(app, flags))
	rootCmd.AddCommand(newConfigCommand(app, flags))

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the command tree. This is called by main.main().
func Execute() {
	rootCmd := NewRootCommand(NewApp(Dependencies{}))

	// fang overrides rootCmd.Version, so the version goes through WithVersion.
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// renderIssue prints the remediation guide of the catalog issue err refers
// to, if any.
func renderIssue(w io.Writer, err error) {
	iss := issue.FindIssue(err)
	if iss == nil {
		return
	}
	rendered, renderErr := iss.Render("auto")
	if renderErr != nil {
		return
	}
	fmt.Fprint(w, rendered)
}
