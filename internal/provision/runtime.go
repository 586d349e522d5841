// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/rosstrap/rosstrap/internal/config"
	"github.com/rosstrap/rosstrap/internal/container"
	"github.com/rosstrap/rosstrap/internal/hostexec"
	"github.com/rosstrap/rosstrap/internal/issue"
)

type (
	// RuntimeInstaller installs the container runtime from the vendor
	// install script.
	RuntimeInstaller struct {
		runner   hostexec.Runner
		logger   *log.Logger
		runtime  config.RuntimeConfig
		packages config.PackagesConfig
		// Output receives live installer output. Nil discards it.
		Output io.Writer
		// TempDir is where the install script is downloaded. Empty means os.TempDir.
		TempDir string
		// Daemon, when set, is checked when the binary is already installed.
		// A daemon that does not answer is started and the user's group
		// membership repaired.
		Daemon Daemon
		// Groups, when set, is switched to the runtime group once the user
		// joins it, so later runtime commands work in the current session.
		Groups GroupActivator
	}

	// Daemon is the engine view used to check an installed runtime.
	Daemon interface {
		Available(ctx context.Context) bool
		Version(ctx context.Context) (string, error)
	}

	// GroupActivator runs later commands with a group the login session
	// does not carry yet.
	GroupActivator interface {
		ActivateGroup(group string)
	}

	// RuntimeResult describes what RuntimeInstaller.Install did.
	RuntimeResult struct {
		// AlreadyInstalled is true when the runtime binary was on PATH and
		// nothing was changed.
		AlreadyInstalled bool
		// BinaryPath is the resolved runtime binary when AlreadyInstalled.
		BinaryPath string
		// Version is the daemon version when it answered.
		Version string
		// ServiceStarted is true when an installed daemon had to be started.
		ServiceStarted bool
		// ReloginRequired is true when the user was added to the runtime group
		// in this run. Membership only applies to new login sessions.
		ReloginRequired bool
		// Group is the group the user was added to.
		Group string
	}
)

// NewRuntimeInstaller creates a RuntimeInstaller for cfg.
func NewRuntimeInstaller(runner hostexec.Runner, cfg *config.Config, logger *log.Logger) *RuntimeInstaller {
	return &RuntimeInstaller{
		runner:   runner,
		logger:   orDiscard(logger),
		runtime:  cfg.Runtime,
		packages: cfg.Packages,
	}
}

// Install installs the runtime for user unless its binary is already on PATH.
func (r *RuntimeInstaller) Install(ctx context.Context, user string) (RuntimeResult, error) {
	if path, err := r.runner.LookPath(r.runtime.Binary); err == nil {
		r.logger.Info("container runtime already installed", "path", path)
		return r.ensureRunning(ctx, user, RuntimeResult{AlreadyInstalled: true, BinaryPath: path})
	}

	r.removeLegacy(ctx)

	if err := r.runVendorScript(ctx); err != nil {
		return RuntimeResult{}, err
	}

	if err := r.joinGroup(ctx, user); err != nil {
		return RuntimeResult{}, err
	}

	steps := []hostexec.Command{
		hostexec.Sudo("apt-get", "install", "-y", r.packages.ComposePlugin),
		hostexec.Sudo("systemctl", "start", r.runtime.Service),
		hostexec.Sudo("systemctl", "enable", r.runtime.Service),
	}
	for _, step := range steps {
		if err := r.mustRun(ctx, step); err != nil {
			return RuntimeResult{}, err
		}
	}

	r.logger.Info("container runtime installed", "group", r.runtime.Group, "user", user)
	return RuntimeResult{ReloginRequired: true, Group: r.runtime.Group}, nil
}

// ensureRunning checks that an installed daemon answers. It starts the
// service when it does not, and when the session still cannot reach it adds
// the user to the runtime group.
func (r *RuntimeInstaller) ensureRunning(ctx context.Context, user string, res RuntimeResult) (RuntimeResult, error) {
	if r.Daemon == nil {
		return res, nil
	}
	if r.Daemon.Available(ctx) {
		return r.withVersion(ctx, res), nil
	}

	r.logger.Warn("container runtime not answering, starting the service", "service", r.runtime.Service)
	if err := r.mustRun(ctx, hostexec.Sudo("systemctl", "start", r.runtime.Service)); err != nil {
		return RuntimeResult{}, err
	}
	res.ServiceStarted = true
	if r.Daemon.Available(ctx) {
		return r.withVersion(ctx, res), nil
	}

	r.logger.Warn("container runtime still unreachable, adding user to the runtime group", "group", r.runtime.Group, "user", user)
	if err := r.joinGroup(ctx, user); err != nil {
		return RuntimeResult{}, err
	}
	res.ReloginRequired = true
	res.Group = r.runtime.Group
	if r.Daemon.Available(ctx) {
		return r.withVersion(ctx, res), nil
	}

	return RuntimeResult{}, issue.NewErrorContext().
		WithOperation("start container runtime").
		WithResource(r.runtime.Service).
		WithIssue(issue.PermissionDeniedId).
		WithSuggestion(fmt.Sprintf("Inspect the service state with 'systemctl status %s'", r.runtime.Service)).
		WithSuggestion(fmt.Sprintf("Log out and back in so the %s group applies, then run rosstrap again", r.runtime.Group)).
		Wrap(&container.ErrEngineNotAvailable{
			Engine: r.runtime.Binary,
			Reason: "the daemon does not answer after starting the service",
		}).
		BuildError()
}

func (r *RuntimeInstaller) withVersion(ctx context.Context, res RuntimeResult) RuntimeResult {
	v, err := r.Daemon.Version(ctx)
	if err != nil {
		r.logger.Debug("container runtime version unavailable", "err", err)
		return res
	}
	res.Version = v
	r.logger.Info("container runtime ready", "version", v)
	return res
}

// joinGroup adds user to the runtime group and switches later runtime
// commands onto it.
func (r *RuntimeInstaller) joinGroup(ctx context.Context, user string) error {
	if err := r.mustRun(ctx, hostexec.Sudo("usermod", "-aG", r.runtime.Group, user)); err != nil {
		return err
	}
	if r.Groups != nil {
		r.Groups.ActivateGroup(r.runtime.Group)
	}
	return nil
}

// removeLegacy removes each conflicting package on its own. Packages that are
// not installed make apt-get fail, which is expected.
func (r *RuntimeInstaller) removeLegacy(ctx context.Context) {
	for _, pkg := range r.packages.LegacyRuntime {
		cmd := hostexec.Sudo("apt-get", "remove", "-y", pkg)
		res, err := r.runner.Run(ctx, cmd)
		switch {
		case err != nil:
			r.logger.Debug("legacy package removal failed", "pkg", pkg, "err", err)
		case !res.Success():
			r.logger.Debug("legacy package not removed", "pkg", pkg, "exit", res.ExitCode)
		}
	}
}

func (r *RuntimeInstaller) runVendorScript(ctx context.Context) error {
	f, err := os.CreateTemp(r.TempDir, "rosstrap-runtime-*.sh")
	if err != nil {
		return r.runtimeError("prepare install script", r.runtime.InstallScriptURL, err)
	}
	script := f.Name()
	_ = f.Close()
	defer func() { _ = os.Remove(script) }()

	fetch := hostexec.Command{Name: "curl", Args: []string{"-fsSL", r.runtime.InstallScriptURL, "-o", script}}
	if err := r.mustRun(ctx, fetch); err != nil {
		return err
	}
	return r.mustRun(ctx, hostexec.Sudo("sh", script))
}

func (r *RuntimeInstaller) mustRun(ctx context.Context, cmd hostexec.Command) error {
	cmd.Stream = r.Output
	if _, err := hostexec.MustSucceed(ctx, r.runner, cmd); err != nil {
		return r.runtimeError("install container runtime", cmd.String(), err)
	}
	return nil
}

func (r *RuntimeInstaller) runtimeError(op, resource string, cause error) error {
	return issue.NewErrorContext().
		WithOperation(op).
		WithResource(resource).
		WithIssue(issue.RuntimeInstallFailedId).
		WithSuggestion("Check that the vendor install script URL is reachable").
		WithSuggestion(fmt.Sprintf("Inspect the service state with 'systemctl status %s'", r.runtime.Service)).
		Wrap(cause).
		BuildError()
}
