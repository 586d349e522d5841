// SPDX-License-Identifier: MPL-2.0

package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/rosstrap/rosstrap/internal/config"
	"github.com/rosstrap/rosstrap/internal/container"
	"github.com/rosstrap/rosstrap/internal/hostexec"
	"github.com/rosstrap/rosstrap/internal/hostexec/hostexectest"
	"github.com/rosstrap/rosstrap/internal/issue"
	"github.com/rosstrap/rosstrap/internal/preflight"
	"github.com/rosstrap/rosstrap/internal/tui"
	"github.com/rosstrap/rosstrap/internal/workspace"
)

const (
	gib = 1 << 30

	inspectJSON = `[{"Id":"sha256:4f7a1c2b9d3e8f6a5b4c3d2e1f0a9b8c7d6e5f4a3b2c1d0e9f8a7b6c5d4e3f2a",` +
		`"RepoTags":["ghcr.io/robotics-workspace/ros2-humble-dev:latest"],"Size":3456789012,` +
		`"Created":"2025-05-01T10:00:00.123456789Z","Architecture":"amd64","Os":"linux"}]`
)

type (
	fixedProber struct {
		signals preflight.Signals
		calls   int
	}

	scriptedPrompter struct {
		answers []bool
		asked   []string
	}

	dirCloner struct {
		calls int
	}

	harness struct {
		cfg      *config.Config
		rec      *hostexectest.Recorder
		prober   *fixedProber
		prompter *scriptedPrompter
		cloner   *dirCloner
	}
)

func (p *fixedProber) Probe(_ context.Context, _ string) (preflight.Signals, error) {
	p.calls++
	return p.signals, nil
}

func (p *scriptedPrompter) Confirm(_ context.Context, opts tui.ConfirmOptions) (bool, error) {
	p.asked = append(p.asked, opts.Title)
	if len(p.answers) == 0 {
		return false, errors.New("unexpected prompt: " + opts.Title)
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a, nil
}

func (c *dirCloner) Clone(_ context.Context, opts workspace.CloneOptions) (workspace.CloneResult, error) {
	c.calls++
	if err := os.MkdirAll(opts.Dest, 0o755); err != nil {
		return workspace.CloneResult{}, err
	}
	if err := os.WriteFile(filepath.Join(opts.Dest, "workspace.repos"), []byte("repositories: {}\n"), 0o644); err != nil {
		return workspace.CloneResult{}, err
	}
	return workspace.CloneResult{Head: "0123456789abcdef0123456789abcdef01234567"}, nil
}

func healthySignals() preflight.Signals {
	return preflight.Signals{
		MemoryTotal:     16 * gib,
		DiskPath:        "/home/dev",
		DiskFree:        80 * gib,
		Virtualization:  true,
		Platform:        "ubuntu",
		PlatformVersion: "22.04",
		KernelVersion:   "5.15.153.1-microsoft-standard-WSL2",
	}
}

// newHarness returns a provisioned-looking host: docker and xeyes on PATH,
// image inspect answering, the display probe running until its timeout.
func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Workspace.Root = filepath.Join(t.TempDir(), "robot_ws")
	cfg.Display.Profile = filepath.Join(t.TempDir(), ".bashrc")

	rec := hostexectest.New().
		WithBinary("docker", "/usr/bin/docker").
		WithBinary("xeyes", "/usr/bin/xeyes").
		On("xeyes", hostexectest.Response{ExitCode: -1, TimedOut: true}).
		On("docker image inspect", hostexectest.Response{Output: inspectJSON})

	return &harness{
		cfg:      cfg,
		rec:      rec,
		prober:   &fixedProber{signals: healthySignals()},
		prompter: &scriptedPrompter{},
		cloner:   &dirCloner{},
	}
}

func (h *harness) bootstrapper(opts Options) *Bootstrapper {
	if opts.User == "" {
		opts.User = "dev"
	}
	engineRunner := hostexec.NewGroupRunner(h.rec)
	return New(h.cfg, Deps{
		Runner:   h.rec,
		Engine:   container.NewDockerEngine(engineRunner),
		Groups:   engineRunner,
		Prober:   h.prober,
		Cloner:   h.cloner,
		Prompter: h.prompter,
	}, opts)
}

func (h *harness) run(t *testing.T, opts Options) (*Report, error) {
	t.Helper()
	return h.bootstrapper(opts).Run(t.Context())
}

func (h *harness) artifacts(t *testing.T) map[string][]byte {
	t.Helper()
	out := make(map[string][]byte)
	for _, sc := range h.cfg.Scripts {
		p := filepath.Join(h.cfg.Workspace.Root, sc.Name)
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		out[sc.Name] = data
	}
	data, err := os.ReadFile(h.cfg.GuidePath())
	if err != nil {
		t.Fatalf("read guide: %v", err)
	}
	out[h.cfg.Guide.FileName] = data
	return out
}

func TestRun_HealthyHost(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	report, err := h.run(t, Options{AssumeYes: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := report.Completed(); !slices.Equal(got, AllStages()) {
		t.Errorf("Completed() = %v, want %v", got, AllStages())
	}
	if len(report.Warnings) != 0 {
		t.Errorf("Warnings = %+v, want none", report.Warnings)
	}
	if len(report.Preflight.Warnings()) != 0 {
		t.Errorf("preflight warnings = %+v, want none", report.Preflight.Warnings())
	}
	if report.Image == nil || report.Image.ShortID() != "4f7a1c2b9d3e" {
		t.Errorf("Image = %+v", report.Image)
	}
	if len(report.Scripts) != 5 {
		t.Errorf("Scripts = %d, want 5", len(report.Scripts))
	}
	if report.BuildFailed {
		t.Error("BuildFailed = true")
	}
	if len(h.prompter.asked) != 0 {
		t.Errorf("prompts asked with --yes on a fresh workspace: %q", h.prompter.asked)
	}
	if h.cloner.calls != 1 {
		t.Errorf("clone calls = %d, want 1", h.cloner.calls)
	}
	h.artifacts(t)
}

func TestRun_StageOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if _, err := h.run(t, Options{AssumeYes: true}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	order := []string{
		"sudo apt-get update",
		"sudo apt-get install -y curl",
		"docker pull ",
		"docker image inspect ",
		"sudo apt-get install -y x11-apps mesa-utils",
		"xeyes",
		"docker run ",
	}
	prev := -1
	for _, prefix := range order {
		idx := h.rec.Index(prefix)
		if idx <= prev {
			t.Fatalf("%q at %d, want after %d; commands %q", prefix, idx, prev, h.rec.Lines())
		}
		prev = idx
	}
}

func TestRun_DiskShortfallAbortsBeforeInstall(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.prober.signals.DiskFree = 10 * gib

	report, err := h.run(t, Options{AssumeYes: true})
	if err == nil {
		t.Fatal("Run() error = nil, want fatal preflight error")
	}
	if stage, ok := FailedStage(err); !ok || stage != StagePreflight {
		t.Errorf("FailedStage() = %q, %v; want preflight", stage, ok)
	}
	if !errors.Is(err, preflight.ErrInsufficientDisk) {
		t.Errorf("errors.Is(err, ErrInsufficientDisk) = false for %v", err)
	}
	if iss := issue.FindIssue(err); iss == nil || iss.Id() != issue.InsufficientDiskId {
		t.Errorf("FindIssue() = %v, want InsufficientDiskId", iss)
	}
	if lines := h.rec.Lines(); len(lines) != 0 {
		t.Errorf("commands ran after fatal preflight: %q", lines)
	}
	if report.Ran(StageDependencies) {
		t.Error("dependency stage ran")
	}
	if _, err := os.Stat(h.cfg.Workspace.Root); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("workspace created after fatal preflight (err=%v)", err)
	}
}

func TestRun_LowMemoryContinues(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.prober.signals.DiskFree = 80 * gib
	h.prober.signals.MemoryTotal = 8 * gib

	report, err := h.run(t, Options{AssumeYes: true})
	if err != nil {
		t.Fatalf("Run() error = %v, want no abort", err)
	}
	if len(report.Warnings) != 1 || report.Warnings[0].Stage != StagePreflight {
		t.Fatalf("Warnings = %+v, want one preflight warning", report.Warnings)
	}
	if f, ok := report.Preflight.Find(preflight.CheckMemory); !ok || f.Level != preflight.LevelWarning {
		t.Errorf("memory finding = %+v, want warning", f)
	}
	if !h.rec.Ran("sudo apt-get install -y curl git") {
		t.Errorf("dependency install did not run: %q", h.rec.Lines())
	}
}

func TestRun_RuntimeAlreadyInstalled(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	report, err := h.run(t, Options{AssumeYes: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !report.Runtime.AlreadyInstalled || report.ReloginRequired() {
		t.Errorf("Runtime = %+v, want already installed without relogin", report.Runtime)
	}
	for _, prefix := range []string{"sudo apt-get remove", "curl ", "sudo sh ", "sudo usermod", "sudo systemctl"} {
		if h.rec.Ran(prefix) {
			t.Errorf("%q ran with the runtime already installed", prefix)
		}
	}
	if h.rec.Ran("sudo apt-get install -y docker-compose-plugin") {
		t.Error("compose plugin reinstalled")
	}
}

// freshHostRecorder answers like a host without docker: once installed, the
// current login session is refused by the daemon socket unless a command runs
// through sg with the docker group.
func freshHostRecorder() *hostexectest.Recorder {
	const denied = "permission denied while trying to connect to the Docker daemon socket at unix:///var/run/docker.sock"
	return hostexectest.New().
		WithBinary("xeyes", "/usr/bin/xeyes").
		On("xeyes", hostexectest.Response{ExitCode: -1, TimedOut: true}).
		On("docker", hostexectest.Response{ExitCode: 1, Output: denied}).
		On("sg docker -c 'docker image inspect", hostexectest.Response{Output: inspectJSON})
}

// ranInGroup reports whether a command starting with prefix ran through sg
// with group.
func ranInGroup(rec *hostexectest.Recorder, group, prefix string) bool {
	for _, c := range rec.Commands() {
		if c.Name == "sg" && len(c.Args) == 3 && c.Args[0] == group && strings.HasPrefix(c.Args[2], prefix) {
			return true
		}
	}
	return false
}

func TestRun_FreshRuntimeInstall(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.rec = freshHostRecorder()

	report, err := h.run(t, Options{AssumeYes: true, User: "robotics"})
	if err != nil {
		t.Fatalf("Run() error = %v\ncommands %q", err, h.rec.Lines())
	}
	if !report.ReloginRequired() {
		t.Error("ReloginRequired() = false after a fresh install")
	}
	if !h.rec.Ran("sudo usermod -aG docker robotics") {
		t.Errorf("user not added to the docker group: %q", h.rec.Lines())
	}
	if h.rec.Index("sudo systemctl enable docker") > h.rec.Index("sg docker -c 'docker pull") {
		t.Error("image pulled before the runtime was installed")
	}
	for _, prefix := range []string{"docker pull ", "docker run "} {
		if !ranInGroup(h.rec, "docker", prefix) {
			t.Errorf("%q not run through the docker group: %q", prefix, h.rec.Lines())
		}
	}
	if h.rec.Ran("docker ") {
		t.Errorf("docker called directly in a session without the group: %q", h.rec.Lines())
	}

	var runtimeWarnings []Warning
	for _, w := range report.Warnings {
		if w.Stage == StageRuntime {
			runtimeWarnings = append(runtimeWarnings, w)
		}
	}
	if len(runtimeWarnings) != 1 || !strings.Contains(runtimeWarnings[0].Message, "newgrp docker") {
		t.Errorf("runtime warnings = %+v, want one re-login warning", runtimeWarnings)
	}
	if report.Image == nil {
		t.Error("image metadata missing after a pull through the docker group")
	}
}

func TestRun_FreshRuntimeWithoutGroupSwitch(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.rec = freshHostRecorder()

	b := New(h.cfg, Deps{
		Runner:   h.rec,
		Engine:   container.NewDockerEngine(h.rec),
		Prober:   h.prober,
		Cloner:   h.cloner,
		Prompter: h.prompter,
	}, Options{AssumeYes: true, User: "robotics"})

	report, err := b.Run(t.Context())
	if stage, ok := FailedStage(err); !ok || stage != StageImage {
		t.Fatalf("FailedStage() = %q, %v; want image (err=%v)", stage, ok, err)
	}
	if iss := issue.FindIssue(err); iss == nil || iss.Id() != issue.PermissionDeniedId {
		t.Errorf("FindIssue() = %v, want PermissionDeniedId", iss)
	}
	if len(report.Warnings) == 0 || report.Warnings[0].Stage != StageRuntime {
		t.Errorf("Warnings = %+v, want the re-login warning kept on a fatal run", report.Warnings)
	}
}

func TestRun_InstalledRuntimeNotAnswering(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	down := hostexectest.Response{ExitCode: 1, Output: "Cannot connect to the Docker daemon at unix:///var/run/docker.sock"}
	h.rec.On("docker version", down).On("sg docker -c", down)

	_, err := h.run(t, Options{AssumeYes: true})
	if stage, ok := FailedStage(err); !ok || stage != StageRuntime {
		t.Fatalf("FailedStage() = %q, %v; want runtime (err=%v)", stage, ok, err)
	}
	var unavailable *container.ErrEngineNotAvailable
	if !errors.As(err, &unavailable) {
		t.Errorf("error = %v, want *ErrEngineNotAvailable", err)
	}
	for _, prefix := range []string{"sudo systemctl start docker", "sudo usermod -aG docker dev"} {
		if !h.rec.Ran(prefix) {
			t.Errorf("%q not run: %q", prefix, h.rec.Lines())
		}
	}
	if !ranInGroup(h.rec, "docker", "docker version") {
		t.Errorf("daemon not checked again through the docker group: %q", h.rec.Lines())
	}
	if ranInGroup(h.rec, "docker", "docker pull") || h.rec.Ran("docker pull") {
		t.Error("image pulled after the runtime stage failed")
	}
}

func TestRun_RerunWithKeepIsByteIdentical(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if _, err := h.run(t, Options{AssumeYes: true}); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	first := h.artifacts(t)

	h.prompter.answers = []bool{true, false} // proceed, keep
	report, err := h.run(t, Options{})
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if report.Clone.Action != workspace.ActionKeep {
		t.Errorf("Clone.Action = %v, want keep", report.Clone.Action)
	}
	if h.cloner.calls != 1 {
		t.Errorf("clone calls = %d, want 1", h.cloner.calls)
	}
	if len(h.prompter.asked) != 2 {
		t.Errorf("prompts = %q, want confirmation and reclone", h.prompter.asked)
	}

	second := h.artifacts(t)
	for name, data := range first {
		if !bytes.Equal(data, second[name]) {
			t.Errorf("%s differs between runs", name)
		}
	}

	profile, err := os.ReadFile(h.cfg.Display.Profile)
	if err != nil {
		t.Fatal(err)
	}
	if n := bytes.Count(profile, []byte("export DISPLAY=:0")); n != 1 {
		t.Errorf("profile has %d export lines, want 1", n)
	}
}

func TestRun_RecloneRemovesOldArtifacts(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if _, err := h.run(t, Options{AssumeYes: true}); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	stale := filepath.Join(h.cfg.RepoPath(), "build", "old_artifact")
	if err := os.MkdirAll(filepath.Dir(stale), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	h.prompter.answers = []bool{true} // reclone
	report, err := h.run(t, Options{AssumeYes: true})
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if report.Clone.Action != workspace.ActionReclone {
		t.Errorf("Clone.Action = %v, want reclone", report.Clone.Action)
	}
	if _, err := os.Stat(filepath.Join(h.cfg.RepoPath(), "build")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("old artifacts remain (err=%v)", err)
	}
	if _, err := os.Stat(filepath.Join(h.cfg.RepoPath(), "workspace.repos")); err != nil {
		t.Errorf("fresh clone missing: %v", err)
	}
}

func TestRun_RecloneModeSkipsPrompt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode       RecloneMode
		wantAction workspace.Action
		wantClones int
	}{
		{RecloneYes, workspace.ActionReclone, 2},
		{RecloneNo, workspace.ActionKeep, 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			if _, err := h.run(t, Options{AssumeYes: true}); err != nil {
				t.Fatal(err)
			}
			report, err := h.run(t, Options{AssumeYes: true, Reclone: tt.mode})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if report.Clone.Action != tt.wantAction {
				t.Errorf("Clone.Action = %v, want %v", report.Clone.Action, tt.wantAction)
			}
			if h.cloner.calls != tt.wantClones {
				t.Errorf("clone calls = %d, want %d", h.cloner.calls, tt.wantClones)
			}
			if len(h.prompter.asked) != 0 {
				t.Errorf("prompted: %q", h.prompter.asked)
			}
		})
	}
}

func TestRun_ImagePullFailureHaltsBeforeScripts(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.rec.On("docker pull", hostexectest.Response{ExitCode: 1, Output: "manifest unknown"})

	report, err := h.run(t, Options{AssumeYes: true})
	if stage, ok := FailedStage(err); !ok || stage != StageImage {
		t.Fatalf("Run() error = %v, want image stage failure", err)
	}
	if iss := issue.FindIssue(err); iss == nil || iss.Id() != issue.ImagePullFailedId {
		t.Errorf("FindIssue() = %v, want ImagePullFailedId", iss)
	}
	for _, stage := range []StageName{StageDisplay, StageScripts, StageBuild, StageGuide} {
		if report.Ran(stage) {
			t.Errorf("stage %s ran after the pull failed", stage)
		}
	}
	for _, sc := range h.cfg.Scripts {
		if _, err := os.Stat(filepath.Join(h.cfg.Workspace.Root, sc.Name)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s exists after the pull failed", sc.Name)
		}
	}
	if h.rec.Ran("docker run") {
		t.Error("build ran after the pull failed")
	}
}

func TestRun_BuildFailureStillWritesGuide(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.rec.On("docker run", hostexectest.Response{ExitCode: 2, Output: "colcon: package failed"})

	report, err := h.run(t, Options{AssumeYes: true})
	if err != nil {
		t.Fatalf("Run() error = %v, want build failure tolerated", err)
	}
	if !report.BuildFailed || report.BuildExitCode != 2 {
		t.Errorf("BuildFailed = %v, BuildExitCode = %d", report.BuildFailed, report.BuildExitCode)
	}
	if _, err := os.Stat(h.cfg.GuidePath()); err != nil {
		t.Errorf("guide not written: %v", err)
	}
	last := report.Stages[len(report.Stages)-1]
	if last.Name != StageGuide || last.Status != StatusOK {
		t.Errorf("last stage = %+v, want guide ok", last)
	}
	i := slices.IndexFunc(report.Stages, func(s StageResult) bool { return s.Name == StageBuild })
	if report.Stages[i].Status != StatusWarning || !errors.Is(report.Stages[i].Err, ErrBuildFailed) {
		t.Errorf("build stage = %+v", report.Stages[i])
	}
	if !slices.ContainsFunc(report.Warnings, func(w Warning) bool { return w.Stage == StageBuild }) {
		t.Errorf("Warnings = %+v, want a build warning", report.Warnings)
	}
}

func TestRun_BuildUsesWorkspaceMount(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if _, err := h.run(t, Options{AssumeYes: true}); err != nil {
		t.Fatal(err)
	}
	cmds := h.rec.Commands()
	run := cmds[h.rec.Index("docker run")]
	if !slices.Contains(run.Args, h.cfg.Workspace.Root+":/workspace") {
		t.Errorf("build args = %q, want workspace mount", run.Args)
	}
	if slices.Contains(run.Args, "-t") {
		t.Errorf("build allocates a TTY: %q", run.Args)
	}
}

func TestRun_DisplayFailureIsAdvisory(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.rec.Fail("xeyes").Fail("sudo apt-get install -y x11-apps")

	report, err := h.run(t, Options{AssumeYes: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	var display int
	for _, w := range report.Warnings {
		if w.Stage == StageDisplay {
			display++
		}
	}
	if display != 2 {
		t.Errorf("display warnings = %d, want 2 (%+v)", display, report.Warnings)
	}
	if !slices.Contains(report.Completed(), StageGuide) {
		t.Error("run did not reach the guide")
	}
}

func TestRun_ImageInspectFailureIsWarning(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.rec.On("docker image inspect", hostexectest.Response{ExitCode: 1})

	report, err := h.run(t, Options{AssumeYes: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Image != nil {
		t.Errorf("Image = %+v, want nil", report.Image)
	}
	if !slices.ContainsFunc(report.Warnings, func(w Warning) bool { return w.Stage == StageImage }) {
		t.Errorf("Warnings = %+v, want an image warning", report.Warnings)
	}
}

func TestRun_Declined(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.prompter.answers = []bool{false}

	report, err := h.run(t, Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !report.Declined {
		t.Error("Declined = false")
	}
	if len(report.Stages) != 0 || h.prober.calls != 0 || len(h.rec.Lines()) != 0 {
		t.Errorf("work done after decline: stages=%v commands=%q", report.Stages, h.rec.Lines())
	}
}

func TestRun_PromptError(t *testing.T) {
	t.Parallel()

	h := newHarness(t) // no scripted answers: the prompter fails
	if _, err := h.run(t, Options{}); err == nil {
		t.Fatal("Run() error = nil, want prompt error")
	}
	if h.prober.calls != 0 {
		t.Error("preflight ran after the prompt failed")
	}
}

func TestRun_CloneFailureIsFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	b := New(h.cfg, Deps{
		Runner:   h.rec,
		Engine:   container.NewDockerEngine(h.rec),
		Prober:   h.prober,
		Cloner:   failingCloner{},
		Prompter: h.prompter,
	}, Options{AssumeYes: true, User: "dev"})

	report, err := b.Run(t.Context())
	if stage, ok := FailedStage(err); !ok || stage != StageRepository {
		t.Fatalf("Run() error = %v, want repository failure", err)
	}
	if iss := issue.FindIssue(err); iss == nil || iss.Id() != issue.CloneFailedId {
		t.Errorf("FindIssue() = %v, want CloneFailedId", iss)
	}
	if report.Ran(StageImage) || h.rec.Ran("docker pull") {
		t.Error("image stage ran after the clone failed")
	}
}

type failingCloner struct{}

func (failingCloner) Clone(context.Context, workspace.CloneOptions) (workspace.CloneResult, error) {
	return workspace.CloneResult{}, errors.New("repository not found")
}

func TestRunStages_Scripts(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	report, err := h.bootstrapper(Options{}).RunStages(t.Context(), StageWorkspace, StageScripts, StageGuide)
	if err != nil {
		t.Fatalf("RunStages() error = %v", err)
	}
	want := []StageName{StageWorkspace, StageScripts, StageGuide}
	if got := report.Completed(); !slices.Equal(got, want) {
		t.Errorf("Completed() = %v, want %v", got, want)
	}
	if lines := h.rec.Lines(); len(lines) != 0 {
		t.Errorf("commands ran: %q", lines)
	}
	if len(h.prompter.asked) != 0 {
		t.Errorf("prompted: %q", h.prompter.asked)
	}
	h.artifacts(t)
}

func TestRun_AttachesRunLog(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	runLog := NewRunLog()
	t.Cleanup(func() { _ = runLog.Close() })
	_, _ = runLog.Write([]byte("before workspace\n"))

	b := New(h.cfg, Deps{
		Runner:   h.rec,
		Engine:   container.NewDockerEngine(h.rec),
		Prober:   h.prober,
		Cloner:   h.cloner,
		Prompter: h.prompter,
		RunLog:   runLog,
	}, Options{AssumeYes: true, User: "dev"})
	if _, err := b.Run(t.Context()); err != nil {
		t.Fatal(err)
	}

	want := filepath.Join(h.cfg.LogDir(), LogFileName)
	if runLog.Path() != want {
		t.Errorf("Path() = %q, want %q", runLog.Path(), want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("before workspace\n")) {
		t.Errorf("log = %q, want buffered output flushed", data)
	}
}

func TestParseRecloneMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    RecloneMode
		wantErr bool
	}{
		{"", RecloneAsk, false},
		{"ask", RecloneAsk, false},
		{"YES", RecloneYes, false},
		{" no ", RecloneNo, false},
		{"always", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseRecloneMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRecloneMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidRecloneMode) {
				t.Errorf("error = %v, want ErrInvalidRecloneMode", err)
			}
			if got != tt.want {
				t.Errorf("ParseRecloneMode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
