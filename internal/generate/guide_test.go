// SPDX-License-Identifier: MPL-2.0

package generate

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rosstrap/rosstrap/internal/config"
	"github.com/rosstrap/rosstrap/internal/issue"
)

func TestRenderGuide(t *testing.T) {
	t.Parallel()

	cfg := testConfig("/home/dev/robot_ws")
	got, err := RenderGuide(cfg)
	if err != nil {
		t.Fatalf("RenderGuide() error = %v", err)
	}
	s := string(got)

	for _, want := range []string{
		"# Robot workspace quick start",
		"`ghcr.io/robotics-workspace/ros2-humble-dev:latest`",
		"cd /home/dev/robot_ws\n./run_shell.sh\n",
		"`./run_build.sh` imports",
		"### run_robot.sh",
		"Has access to host devices under `/dev`.",
		"newgrp docker",
		"`/home/dev/robot_ws/robot_repo`",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("guide missing %q", want)
		}
	}
	for _, sc := range cfg.Scripts {
		if !strings.Contains(s, "| `"+sc.Name+"` |") {
			t.Errorf("layout table missing %s", sc.Name)
		}
	}
}

func TestRenderGuide_Deterministic(t *testing.T) {
	t.Parallel()

	cfg := testConfig("/home/dev/robot_ws")
	a, err := RenderGuide(cfg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := RenderGuide(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("RenderGuide() output differs between calls")
	}
}

func TestRenderGuide_FollowsConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig("/srv/ws")
	cfg.Build.Target = "arm_bringup"
	cfg.Runtime.Group = "containers"
	cfg.Scripts = cfg.Scripts[2:3]

	got, err := RenderGuide(cfg)
	if err != nil {
		t.Fatal(err)
	}
	s := string(got)
	if strings.Contains(s, "## Building") {
		t.Error("guide documents a build script that is not configured")
	}
	if strings.Contains(s, "run_robot.sh") {
		t.Error("guide lists an unconfigured script")
	}
	if !strings.Contains(s, "./run_sim.sh") || !strings.Contains(s, "newgrp containers") {
		t.Errorf("guide does not follow config:\n%s", s)
	}
}

func TestWriteGuide(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	cfg := testConfig(root)
	if err := os.WriteFile(cfg.GuidePath(), []byte(strings.Repeat("stale\n", 1000)), 0o600); err != nil {
		t.Fatal(err)
	}

	f, err := WriteGuide(cfg)
	if err != nil {
		t.Fatalf("WriteGuide() error = %v", err)
	}
	if f.Path != filepath.Join(root, "QUICKSTART.md") || f.Mode != 0o644 {
		t.Errorf("WriteGuide() = %+v", f)
	}
	got, err := os.ReadFile(f.Path)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := RenderGuide(cfg)
	if !bytes.Equal(got, want) {
		t.Error("guide on disk does not match the rendered guide")
	}
}

func TestWriteGuide_Fails(t *testing.T) {
	t.Parallel()

	cfg := testConfig(filepath.Join(t.TempDir(), "missing"))
	_, err := WriteGuide(cfg)
	if err == nil {
		t.Fatal("WriteGuide() error = nil, want error")
	}
	if iss := issue.FindIssue(err); iss == nil || iss.Id() != issue.GuideWriteFailedId {
		t.Errorf("FindIssue() = %v, want GuideWriteFailedId", iss)
	}
}

func TestShellAndBuildScript(t *testing.T) {
	t.Parallel()

	cfg := testConfig("/ws")
	if got := ShellScript(cfg); got != "run_shell.sh" {
		t.Errorf("ShellScript() = %q, want run_shell.sh", got)
	}
	if got := BuildScript(cfg); got != "run_build.sh" {
		t.Errorf("BuildScript() = %q, want run_build.sh", got)
	}

	cfg.Scripts = []config.ScriptConfig{
		{Name: "run_build.sh", Build: true},
		{Name: "run_sim.sh", Command: "ros2 launch sim sim.launch.py"},
	}
	if got := ShellScript(cfg); got != "run_build.sh" {
		t.Errorf("ShellScript() without interactive script = %q, want first script", got)
	}

	cfg.Scripts = nil
	if got := ShellScript(cfg); got != "" {
		t.Errorf("ShellScript() with no scripts = %q, want empty", got)
	}
	if got := BuildScript(cfg); got != "" {
		t.Errorf("BuildScript() with no scripts = %q, want empty", got)
	}
}
