// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"

	"github.com/charmbracelet/log"

	"github.com/rosstrap/rosstrap/internal/bootstrap"
	"github.com/rosstrap/rosstrap/internal/config"
	"github.com/rosstrap/rosstrap/internal/container"
	"github.com/rosstrap/rosstrap/internal/hostexec"
	"github.com/rosstrap/rosstrap/internal/preflight"
	"github.com/rosstrap/rosstrap/internal/provision"
	"github.com/rosstrap/rosstrap/internal/tui"
	"github.com/rosstrap/rosstrap/internal/workspace"
)

type (
	// Services are the host capabilities one run uses.
	Services struct {
		Runner   hostexec.Runner
		Engine   container.Engine
		Prober   preflight.Prober
		Cloner   workspace.Cloner
		Prompter tui.Prompter
		// Groups switches Engine's commands onto the runtime group after the
		// user joins it. Nil keeps them direct.
		Groups provision.GroupActivator
	}

	// ServiceFactory builds the Services for a loaded configuration.
	ServiceFactory func(cfg *config.Config, logger *log.Logger, stdin io.Reader) Services

	// App wires the command tree to configuration and host services. Every
	// command handler receives an App and writes only to its streams.
	App struct {
		services    ServiceFactory
		currentUser func() (string, error)
		stdin       io.Reader
		stdout      io.Writer
		stderr      io.Writer
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Services    ServiceFactory
		CurrentUser func() (string, error)
		Stdin       io.Reader
		Stdout      io.Writer
		Stderr      io.Writer
	}

	// session is the per-invocation state shared by the handlers.
	session struct {
		cfg     *config.Config
		cfgPath string
		verbose bool
		logger  *log.Logger
		runLog  *bootstrap.RunLog
	}
)

// NewApp creates an App, filling nil dependencies with production defaults.
func NewApp(deps Dependencies) *App {
	app := &App{
		services:    deps.Services,
		currentUser: deps.CurrentUser,
		stdin:       deps.Stdin,
		stdout:      deps.Stdout,
		stderr:      deps.Stderr,
	}
	if app.services == nil {
		app.services = defaultServices
	}
	if app.currentUser == nil {
		app.currentUser = currentUsername
	}
	if app.stdin == nil {
		app.stdin = os.Stdin
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

// defaultServices runs everything on the real host.
func defaultServices(cfg *config.Config, logger *log.Logger, stdin io.Reader) Services {
	runner := hostexec.NewExecRunner(hostexec.WithLogger(logger))
	engineRunner := hostexec.NewGroupRunner(runner)
	return Services{
		Runner: runner,
		Engine: container.NewDockerEngine(engineRunner,
			container.WithBinary(cfg.Runtime.Binary),
			container.WithGroup(cfg.Runtime.Group)),
		Groups:   engineRunner,
		Prober:   preflight.NewHostProber(),
		Cloner:   workspace.NewGitCloner(),
		Prompter: tui.NewPrompter(tui.WithInput(stdin)),
	}
}

func currentUsername() (string, error) {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username, nil
	}
	if name := os.Getenv("USER"); name != "" {
		return name, nil
	}
	return "", errors.New("cannot determine the current user")
}

// newSession loads the configuration and builds the logger. Log output goes
// to stderr and to the run log, which stays in memory until the workspace
// stage attaches it to the log directory.
func (a *App) newSession(ctx context.Context, flags *rootFlags) (*session, error) {
	cfg, cfgPath, err := config.Load(ctx, config.LoadOptions{ConfigFilePath: flags.configPath})
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:     cfg,
		cfgPath: cfgPath,
		verbose: flags.verbose || cfg.UI.Verbose,
		runLog:  bootstrap.NewRunLog(),
	}
	s.logger = log.NewWithOptions(io.MultiWriter(a.stderr, s.runLog), log.Options{
		Prefix:          config.AppName,
		ReportTimestamp: true,
	})
	if s.verbose {
		s.logger.SetLevel(log.DebugLevel)
	}
	return s, nil
}

// bootstrapper builds a Bootstrapper for the session with progress hooks
// printing to stdout.
func (a *App) bootstrapper(s *session, opts bootstrap.Options) *bootstrap.Bootstrapper {
	svc := a.services(s.cfg, s.logger, a.stdin)

	// Subprocess output always lands in the run log; the console sees it
	// only in verbose mode.
	var output io.Writer = s.runLog
	if s.verbose {
		output = io.MultiWriter(s.runLog, a.stdout)
	}

	deps := bootstrap.Deps{
		Runner:   svc.Runner,
		Engine:   svc.Engine,
		Prober:   svc.Prober,
		Cloner:   svc.Cloner,
		Prompter: svc.Prompter,
		Groups:   svc.Groups,
		RunLog:   s.runLog,
		Output:   output,
		Logger:   s.logger,
	}
	return bootstrap.New(s.cfg, deps, opts).WithHooks(progressHooks(a.stdout))
}

// close releases the session's run log.
func (s *session) close() {
	if err := s.runLog.Close(); err != nil {
		s.logger.Debug("closing run log", "err", err)
	}
}

// failure prints err with its remediation and returns the exit error the
// command should return.
func (a *App) failure(s *session, err error) error {
	verbose := s != nil && s.verbose
	msg := formatErrorForDisplay(err, verbose)
	if stage, ok := bootstrap.FailedStage(err); ok {
		msg = fmt.Sprintf("stage %s failed: %s", stage, msg)
	}
	fmt.Fprintln(a.stderr, ErrorStyle.Render("Error: ")+msg)
	renderIssue(a.stderr, err)
	return &ExitError{Code: 1, Err: err}
}
