// SPDX-License-Identifier: MPL-2.0

package generate

import (
	"path"
	"strings"

	"github.com/rosstrap/rosstrap/internal/config"
	"github.com/rosstrap/rosstrap/internal/container"
)

const (
	x11Socket = "/tmp/.X11-unix"
	devDir    = "/dev"
)

// RunArgsBuilder turns run options into container CLI arguments.
type RunArgsBuilder interface {
	Binary() string
	RunArgs(opts container.RunOptions) []string
}

// RunOptions returns the container run options for a wrapper script. The
// workspace root is always mounted at the fixed in-container path, which is
// also the working directory.
func RunOptions(cfg *config.Config, sc config.ScriptConfig) container.RunOptions {
	opts := container.RunOptions{
		Image:       cfg.Image.Reference,
		Command:     ScriptCommand(cfg, sc),
		WorkDir:     cfg.Workspace.MountPath,
		Remove:      true,
		Interactive: sc.Interactive,
		TTY:         sc.Interactive,
		Volumes: []container.VolumeMount{{
			HostPath:      container.HostFilesystemPath(cfg.Workspace.Root),
			ContainerPath: container.MountTargetPath(cfg.Workspace.MountPath),
		}},
	}

	if sc.HostNetwork {
		opts.Network = container.NetworkHost
	}
	if sc.GUI {
		opts.PassEnv = []string{"DISPLAY"}
		opts.Env = map[string]string{"QT_X11_NO_MITSHM": "1"}
		opts.Volumes = append(opts.Volumes, container.VolumeMount{
			HostPath:      x11Socket,
			ContainerPath: x11Socket,
		})
	}
	if sc.Devices {
		opts.Privileged = true
		opts.Volumes = append(opts.Volumes, container.VolumeMount{
			HostPath:      devDir,
			ContainerPath: devDir,
		})
	}
	return opts
}

// BuildRunOptions returns the options for the unattended workspace build.
func BuildRunOptions(cfg *config.Config) container.RunOptions {
	sc := config.ScriptConfig{Build: true}
	for _, s := range cfg.Scripts {
		if s.Build {
			sc = s
			break
		}
	}
	opts := RunOptions(cfg, sc)
	opts.Interactive = false
	opts.TTY = false
	return opts
}

// ScriptCommand returns the in-container command for sc. Every command runs
// in a login bash with the ROS environment sourced.
func ScriptCommand(cfg *config.Config, sc config.ScriptConfig) []string {
	line := sc.Command
	if sc.Build {
		line = BuildChain(cfg)
	}
	return []string{"bash", "-lc", sourceROS(cfg) + " && " + line}
}

// BuildChain returns the shell chain that imports the declared
// sub-repositories, installs their dependencies and builds up to the target.
func BuildChain(cfg *config.Config) string {
	steps := []string{
		"cd " + quote(cfg.ContainerRepoPath()),
		"mkdir -p src",
		"vcs import src < " + quote(cfg.Build.ReposFile),
		"rosdep install --from-paths src --ignore-src -r -y",
		"colcon build --symlink-install --packages-up-to " + quote(cfg.Build.Target),
	}
	return strings.Join(steps, " && ")
}

func sourceROS(cfg *config.Config) string {
	return "source " + quote(path.Join("/opt/ros", cfg.Build.RosDistro, "setup.bash"))
}
