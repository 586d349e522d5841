// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"io"

	"github.com/charmbracelet/log"

	"github.com/rosstrap/rosstrap/internal/hostexec"
	"github.com/rosstrap/rosstrap/internal/issue"
)

type (
	// PackageInstaller installs apt packages in one batch.
	PackageInstaller struct {
		runner hostexec.Runner
		logger *log.Logger
		// Output receives live apt output. Nil discards it.
		Output io.Writer
	}
)

// NewPackageInstaller creates a PackageInstaller.
func NewPackageInstaller(runner hostexec.Runner, logger *log.Logger) *PackageInstaller {
	return &PackageInstaller{runner: runner, logger: orDiscard(logger)}
}

// Install refreshes the package index, then installs pkgs in a single
// apt-get invocation. Any non-zero exit is returned as an error.
func (p *PackageInstaller) Install(ctx context.Context, pkgs []string) error {
	update := hostexec.Sudo("apt-get", "update")
	update.Stream = p.Output
	if _, err := hostexec.MustSucceed(ctx, p.runner, update); err != nil {
		return packageError("refresh package index", "apt-get update", err)
	}

	if len(pkgs) == 0 {
		p.logger.Debug("no packages to install")
		return nil
	}

	install := hostexec.Sudo("apt-get", append([]string{"install", "-y"}, pkgs...)...)
	install.Stream = p.Output
	if _, err := hostexec.MustSucceed(ctx, p.runner, install); err != nil {
		return packageError("install packages", install.String(), err)
	}

	p.logger.Info("packages installed", "count", len(pkgs))
	return nil
}

func packageError(op, resource string, cause error) error {
	return issue.NewErrorContext().
		WithOperation(op).
		WithResource(resource).
		WithIssue(issue.PackageInstallFailedId).
		WithSuggestion("Check network access to the Ubuntu package mirrors").
		WithSuggestion("Run 'sudo dpkg --configure -a' if a previous install was interrupted").
		Wrap(cause).
		BuildError()
}

func orDiscard(logger *log.Logger) *log.Logger {
	if logger == nil {
		return log.New(io.Discard)
	}
	return logger
}
