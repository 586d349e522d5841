// SPDX-License-Identifier: MPL-2.0

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/rosstrap/rosstrap/internal/config"
	"github.com/rosstrap/rosstrap/internal/container"
	"github.com/rosstrap/rosstrap/internal/generate"
	"github.com/rosstrap/rosstrap/internal/hostexec"
	"github.com/rosstrap/rosstrap/internal/preflight"
	"github.com/rosstrap/rosstrap/internal/provision"
	"github.com/rosstrap/rosstrap/internal/tui"
	"github.com/rosstrap/rosstrap/internal/workspace"
)

// Stage names, in run order.
const (
	StagePreflight    StageName = "preflight"
	StageDependencies StageName = "dependencies"
	StageRuntime      StageName = "runtime"
	StageWorkspace    StageName = "workspace"
	StageRepository   StageName = "repository"
	StageImage        StageName = "image"
	StageDisplay      StageName = "display"
	StageScripts      StageName = "scripts"
	StageBuild        StageName = "build"
	StageGuide        StageName = "guide"
)

const (
	// RecloneAsk prompts when the repository exists.
	RecloneAsk RecloneMode = "ask"
	// RecloneYes always removes and clones again.
	RecloneYes RecloneMode = "yes"
	// RecloneNo always keeps the existing repository.
	RecloneNo RecloneMode = "no"
)

var (
	// ErrInvalidRecloneMode is returned by ParseRecloneMode.
	ErrInvalidRecloneMode = errors.New("invalid reclone mode")

	// ErrBuildFailed is the advisory error of a non-zero workspace build.
	ErrBuildFailed = errors.New("workspace build failed")
)

type (
	// StageName identifies a stage.
	StageName string

	// RecloneMode pre-answers the reclone prompt.
	RecloneMode string

	// Deps are the host capabilities the stages use.
	Deps struct {
		Runner   hostexec.Runner
		Engine   container.Engine
		Prober   preflight.Prober
		Cloner   workspace.Cloner
		Prompter tui.Prompter
		// Groups, when set, is the runner behind Engine. It is switched to the
		// runtime group once the user joins it, so the image and build stages
		// work in the same login session.
		Groups provision.GroupActivator
		// RunLog, when set, is attached to the workspace log directory once
		// the workspace exists.
		RunLog *RunLog
		// Output receives live subprocess output. Nil discards it.
		Output io.Writer
		Logger *log.Logger
	}

	// Options are the run choices.
	Options struct {
		// User is added to the runtime group.
		User string
		// AssumeYes answers the initial confirmation.
		AssumeYes bool
		Reclone   RecloneMode
	}

	// Bootstrapper builds the stages for one configuration.
	Bootstrapper struct {
		cfg    *config.Config
		deps   Deps
		opts   Options
		hooks  Hooks
		logger *log.Logger
	}
)

// AllStages lists every stage name in run order.
func AllStages() []StageName {
	return []StageName{
		StagePreflight, StageDependencies, StageRuntime, StageWorkspace, StageRepository,
		StageImage, StageDisplay, StageScripts, StageBuild, StageGuide,
	}
}

// ParseRecloneMode parses a --reclone value.
func ParseRecloneMode(s string) (RecloneMode, error) {
	switch m := RecloneMode(strings.ToLower(strings.TrimSpace(s))); m {
	case RecloneAsk, RecloneYes, RecloneNo:
		return m, nil
	case "":
		return RecloneAsk, nil
	default:
		return "", fmt.Errorf("%w %q (valid: ask, yes, no)", ErrInvalidRecloneMode, s)
	}
}

// New creates a Bootstrapper.
func New(cfg *config.Config, deps Deps, opts Options) *Bootstrapper {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if deps.Output == nil {
		deps.Output = io.Discard
	}
	if opts.Reclone == "" {
		opts.Reclone = RecloneAsk
	}
	return &Bootstrapper{cfg: cfg, deps: deps, opts: opts, logger: logger}
}

// WithHooks sets the progress hooks.
func (b *Bootstrapper) WithHooks(h Hooks) *Bootstrapper {
	b.hooks = h
	return b
}

// Run asks for the initial confirmation, then runs all stages.
func (b *Bootstrapper) Run(ctx context.Context) (*Report, error) {
	report := &Report{}
	if !b.opts.AssumeYes {
		ok, err := b.deps.Prompter.Confirm(ctx, tui.ConfirmOptions{
			Title: "Set up the robot workspace?",
			Description: fmt.Sprintf("This installs system packages and Docker with sudo and prepares %s.",
				b.cfg.Workspace.Root),
		})
		if err != nil {
			return report, err
		}
		if !ok {
			b.logger.Info("bootstrap declined")
			report.Declined = true
			return report, nil
		}
	}
	return report, b.Pipeline().Run(ctx, report)
}

// RunStages runs only the named stages, in run order, without the initial
// confirmation.
func (b *Bootstrapper) RunStages(ctx context.Context, names ...StageName) (*Report, error) {
	report := &Report{}
	return report, b.Pipeline(names...).Run(ctx, report)
}

// Pipeline returns a pipeline over the named stages, or all stages when
// names is empty.
func (b *Bootstrapper) Pipeline(names ...StageName) *Pipeline {
	all := b.Stages()
	if len(names) == 0 {
		return NewPipeline(all, b.hooks, b.logger)
	}
	var stages []Stage
	for _, s := range all {
		if slices.Contains(names, s.Name) {
			stages = append(stages, s)
		}
	}
	return NewPipeline(stages, b.hooks, b.logger)
}

// Stages returns every stage in run order.
func (b *Bootstrapper) Stages() []Stage {
	return []Stage{
		{Name: StagePreflight, Title: "Checking host requirements", Severity: SeverityFatal, Run: b.preflight},
		{Name: StageDependencies, Title: "Installing system packages", Severity: SeverityFatal, Run: b.dependencies},
		{Name: StageRuntime, Title: "Installing the container runtime", Severity: SeverityFatal, Run: b.runtime},
		{Name: StageWorkspace, Title: "Preparing the workspace", Severity: SeverityFatal, Run: b.workspace},
		{Name: StageRepository, Title: "Cloning the repository", Severity: SeverityFatal, Run: b.repository},
		{Name: StageImage, Title: "Pulling the development image", Severity: SeverityFatal, Run: b.image},
		{Name: StageDisplay, Title: "Setting up display forwarding", Severity: SeverityAdvisory, Run: b.display},
		{Name: StageScripts, Title: "Generating wrapper scripts", Severity: SeverityFatal, Run: b.scripts},
		{Name: StageBuild, Title: "Building the workspace", Severity: SeverityAdvisory, Run: b.build},
		{Name: StageGuide, Title: "Writing the quick-start guide", Severity: SeverityFatal, Run: b.guide},
	}
}

func (b *Bootstrapper) preflight(ctx context.Context, r *Report) error {
	signals, err := b.deps.Prober.Probe(ctx, b.cfg.Workspace.Root)
	if err != nil {
		return err
	}
	r.Preflight = preflight.Check(signals, preflight.ThresholdsFrom(b.cfg.Preflight))

	for _, f := range r.Preflight.Findings {
		switch f.Level {
		case preflight.LevelWarning:
			r.warn(StagePreflight, f.Message)
			b.logger.Warn(f.Message, "check", string(f.Check))
		case preflight.LevelInfo, preflight.LevelOK:
			b.logger.Info(f.Message, "check", string(f.Check))
		}
	}
	return r.Preflight.Err()
}

func (b *Bootstrapper) dependencies(ctx context.Context, _ *Report) error {
	p := provision.NewPackageInstaller(b.deps.Runner, b.logger)
	p.Output = b.deps.Output
	return p.Install(ctx, b.cfg.Packages.Base)
}

func (b *Bootstrapper) runtime(ctx context.Context, r *Report) error {
	inst := provision.NewRuntimeInstaller(b.deps.Runner, b.cfg, b.logger)
	inst.Output = b.deps.Output
	inst.Daemon = b.deps.Engine
	inst.Groups = b.deps.Groups
	res, err := inst.Install(ctx, b.opts.User)
	if err != nil {
		return err
	}
	r.Runtime = res
	if res.ReloginRequired {
		msg := fmt.Sprintf("%s was added to the %s group; log out and back in (or run 'newgrp %s') before using docker directly",
			b.opts.User, res.Group, res.Group)
		r.warn(StageRuntime, msg)
		b.logger.Warn("re-login required for runtime group membership", "user", b.opts.User, "group", res.Group)
	}
	return nil
}

func (b *Bootstrapper) manager() *workspace.Manager {
	m := workspace.NewManager(b.cfg, b.deps.Cloner, b.logger)
	m.Progress = b.deps.Output
	return m
}

func (b *Bootstrapper) workspace(_ context.Context, _ *Report) error {
	if err := b.manager().EnsureRoot(); err != nil {
		return err
	}
	if b.deps.RunLog != nil {
		if err := b.deps.RunLog.Attach(b.cfg.LogDir()); err != nil {
			b.logger.Warn("bootstrap log unavailable", "err", err)
		}
	}
	return nil
}

func (b *Bootstrapper) repository(ctx context.Context, r *Report) error {
	m := b.manager()
	state, err := m.State()
	if err != nil {
		return err
	}

	choice := workspace.ChoiceKeep
	if state == workspace.RepoPresent {
		if choice, err = b.recloneChoice(ctx, m.RepoPath()); err != nil {
			return err
		}
	}

	out, err := m.Apply(ctx, workspace.Decide(state, choice))
	if err != nil {
		return err
	}
	r.Clone = out
	return nil
}

func (b *Bootstrapper) recloneChoice(ctx context.Context, path string) (workspace.Choice, error) {
	switch b.opts.Reclone {
	case RecloneYes:
		return workspace.ChoiceReclone, nil
	case RecloneNo:
		return workspace.ChoiceKeep, nil
	}

	reclone, err := b.deps.Prompter.Confirm(ctx, tui.ConfirmOptions{
		Title:       fmt.Sprintf("%s already exists. Remove it and clone again?", path),
		Description: "Answering yes deletes the directory, including local changes.",
		Affirmative: "Reclone",
		Negative:    "Keep",
	})
	if err != nil {
		return workspace.ChoiceKeep, err
	}
	if reclone {
		return workspace.ChoiceReclone, nil
	}
	return workspace.ChoiceKeep, nil
}

func (b *Bootstrapper) image(ctx context.Context, r *Report) error {
	ref := b.cfg.Image.Reference
	if err := b.deps.Engine.Pull(ctx, container.PullOptions{Image: ref, Stdout: b.deps.Output}); err != nil {
		return err
	}

	info, err := b.deps.Engine.InspectImage(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.warn(StageImage, fmt.Sprintf("image metadata unavailable: %v", err))
		b.logger.Warn("image inspect failed", "image", ref, "err", err)
		return nil
	}
	r.Image = info
	b.logger.Info("image ready", "id", info.ShortID(), "size", info.HumanSize(), "platform", info.Platform())
	return nil
}

func (b *Bootstrapper) display(ctx context.Context, r *Report) error {
	d := provision.NewDisplayBridge(b.deps.Runner, b.cfg, b.logger)
	d.Output = b.deps.Output
	res, err := d.Setup(ctx)
	r.Display = res
	for _, w := range res.Warnings {
		r.warn(StageDisplay, w)
	}
	return err
}

func (b *Bootstrapper) scripts(_ context.Context, r *Report) error {
	files, err := generate.NewScriptGenerator(b.cfg, b.deps.Engine).Write()
	if err != nil {
		return err
	}
	r.Scripts = files
	for _, f := range files {
		b.logger.Debug("script written", "path", f.Path, "mode", f.Mode)
	}
	return nil
}

func (b *Bootstrapper) build(ctx context.Context, r *Report) error {
	opts := generate.BuildRunOptions(b.cfg)
	opts.Stdout = b.deps.Output

	res, err := b.deps.Engine.Run(ctx, opts)
	if err != nil {
		r.BuildFailed = true
		return err
	}
	r.BuildExitCode = res.ExitCode
	if res.ExitCode != 0 {
		r.BuildFailed = true
		return fmt.Errorf("%w: exit status %d", ErrBuildFailed, res.ExitCode)
	}
	return nil
}

func (b *Bootstrapper) guide(_ context.Context, r *Report) error {
	f, err := generate.WriteGuide(b.cfg)
	if err != nil {
		return err
	}
	r.Guide = f
	return nil
}
