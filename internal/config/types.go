// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
var ErrInvalidConfig = errors.New("invalid config")

type (
	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sections.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// WorkspaceConfig locates the workspace on the host and inside containers.
	WorkspaceConfig struct {
		// Root is the host workspace directory. A leading ~ is expanded.
		Root string `json:"root" mapstructure:"root"`
		// MountPath is the fixed in-container path the root is mounted at.
		MountPath string `json:"mount_path" mapstructure:"mount_path"`
	}

	// RepositoryConfig describes the workspace repository to clone.
	RepositoryConfig struct {
		URL string `json:"url" mapstructure:"url"`
		// Dir is the clone directory name inside the workspace root.
		Dir string `json:"dir" mapstructure:"dir"`
		// Branch selects a branch; empty means the remote HEAD.
		Branch     string `json:"branch" mapstructure:"branch"`
		Submodules bool   `json:"submodules" mapstructure:"submodules"`
	}

	// ImageConfig names the pre-built development image.
	ImageConfig struct {
		Reference string `json:"reference" mapstructure:"reference"`
	}

	// PreflightConfig holds host requirement thresholds.
	PreflightConfig struct {
		MinMemoryGB       float64  `json:"min_memory_gb" mapstructure:"min_memory_gb"`
		MinDiskGB         float64  `json:"min_disk_gb" mapstructure:"min_disk_gb"`
		SupportedReleases []string `json:"supported_releases" mapstructure:"supported_releases"`
	}

	// PackagesConfig lists apt packages per provisioning step.
	PackagesConfig struct {
		Base []string `json:"base" mapstructure:"base"`
		// LegacyRuntime packages conflict with the vendor runtime and are removed first.
		LegacyRuntime []string `json:"legacy_runtime" mapstructure:"legacy_runtime"`
		ComposePlugin string   `json:"compose_plugin" mapstructure:"compose_plugin"`
		Display       []string `json:"display" mapstructure:"display"`
	}

	// RuntimeConfig describes the container runtime and how to install it.
	RuntimeConfig struct {
		Binary           string `json:"binary" mapstructure:"binary"`
		InstallScriptURL string `json:"install_script_url" mapstructure:"install_script_url"`
		Group            string `json:"group" mapstructure:"group"`
		Service          string `json:"service" mapstructure:"service"`
	}

	// DisplayConfig configures X11 forwarding for GUI tools.
	DisplayConfig struct {
		// Value is exported as DISPLAY.
		Value string `json:"value" mapstructure:"value"`
		// Profile is the shell profile the export line is appended to.
		Profile string `json:"profile" mapstructure:"profile"`
		// Probe is the GUI program used for the smoke test.
		Probe        string        `json:"probe" mapstructure:"probe"`
		ProbeTimeout time.Duration `json:"probe_timeout" mapstructure:"probe_timeout"`
	}

	// BuildConfig configures the containerized workspace build.
	BuildConfig struct {
		// ReposFile is the vcs repos file, relative to the repository directory.
		ReposFile string `json:"repos_file" mapstructure:"repos_file"`
		// Target is the package passed to colcon --packages-up-to.
		Target    string `json:"target" mapstructure:"target"`
		RosDistro string `json:"ros_distro" mapstructure:"ros_distro"`
	}

	// ScriptConfig declares one generated wrapper script.
	ScriptConfig struct {
		Name        string `json:"name" mapstructure:"name"`
		Description string `json:"description" mapstructure:"description"`
		// Command is the in-container command line. Ignored when Build is set.
		Command string `json:"command" mapstructure:"command"`
		// Build runs the workspace build chain instead of Command.
		Build       bool `json:"build" mapstructure:"build"`
		GUI         bool `json:"gui" mapstructure:"gui"`
		HostNetwork bool `json:"host_network" mapstructure:"host_network"`
		// Devices grants --privileged and mounts /dev.
		Devices     bool `json:"devices" mapstructure:"devices"`
		Interactive bool `json:"interactive" mapstructure:"interactive"`
	}

	// GuideConfig configures the quick-start document.
	GuideConfig struct {
		FileName string `json:"file_name" mapstructure:"file_name"`
	}

	// UIConfig configures console output.
	UIConfig struct {
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}

	// Config holds the complete bootstrap configuration.
	Config struct {
		Workspace  WorkspaceConfig  `json:"workspace" mapstructure:"workspace"`
		Repository RepositoryConfig `json:"repository" mapstructure:"repository"`
		Image      ImageConfig      `json:"image" mapstructure:"image"`
		Preflight  PreflightConfig  `json:"preflight" mapstructure:"preflight"`
		Packages   PackagesConfig   `json:"packages" mapstructure:"packages"`
		Runtime    RuntimeConfig    `json:"runtime" mapstructure:"runtime"`
		Display    DisplayConfig    `json:"display" mapstructure:"display"`
		Build      BuildConfig      `json:"build" mapstructure:"build"`
		Scripts    []ScriptConfig   `json:"scripts" mapstructure:"scripts"`
		Guide      GuideConfig      `json:"guide" mapstructure:"guide"`
		UI         UIConfig         `json:"ui" mapstructure:"ui"`
	}
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Root:      "~/robot_ws",
			MountPath: "/workspace",
		},
		Repository: RepositoryConfig{
			URL: "https://github.com/ros2/examples.git",
			Dir: "robot_repo",
		},
		Image: ImageConfig{
			Reference: "ghcr.io/robotics-workspace/ros2-humble-dev:latest",
		},
		Preflight: PreflightConfig{
			MinMemoryGB:       12,
			MinDiskGB:         50,
			SupportedReleases: []string{"22.04", "24.04"},
		},
		Packages: PackagesConfig{
			Base: []string{
				"curl", "git", "wget", "ca-certificates", "gnupg",
				"lsb-release", "build-essential", "python3-pip",
			},
			LegacyRuntime: []string{
				"docker.io", "docker-doc", "docker-compose", "docker-compose-v2",
				"podman-docker", "containerd", "runc",
			},
			ComposePlugin: "docker-compose-plugin",
			Display:       []string{"x11-apps", "mesa-utils"},
		},
		Runtime: RuntimeConfig{
			Binary:           "docker",
			InstallScriptURL: "https://get.docker.com",
			Group:            "docker",
			Service:          "docker",
		},
		Display: DisplayConfig{
			Value:        ":0",
			Profile:      "~/.bashrc",
			Probe:        "xeyes",
			ProbeTimeout: 3 * time.Second,
		},
		Build: BuildConfig{
			ReposFile: "workspace.repos",
			Target:    "robot_bringup",
			RosDistro: "humble",
		},
		Scripts: DefaultScripts(),
		Guide: GuideConfig{
			FileName: "QUICKSTART.md",
		},
	}
}

// DefaultScripts returns the fixed wrapper script set.
func DefaultScripts() []ScriptConfig {
	return []ScriptConfig{
		{
			Name:        "run_shell.sh",
			Description: "Interactive shell in the development container",
			Command:     "bash",
			GUI:         true,
			HostNetwork: true,
			Interactive: true,
		},
		{
			Name:        "run_build.sh",
			Description: "Import sub-repositories, install dependencies and build the workspace",
			Build:       true,
			Interactive: true,
		},
		{
			Name:        "run_sim.sh",
			Description: "Gazebo simulation",
			Command:     "ros2 launch robot_gazebo simulation.launch.py",
			GUI:         true,
			HostNetwork: true,
			Interactive: true,
		},
		{
			Name:        "run_sim_nav.sh",
			Description: "Gazebo simulation with the navigation stack",
			Command:     "ros2 launch robot_navigation navigation_sim.launch.py",
			GUI:         true,
			HostNetwork: true,
			Interactive: true,
		},
		{
			Name:        "run_robot.sh",
			Description: "Robot bringup on real hardware",
			Command:     "ros2 launch robot_bringup robot.launch.py",
			GUI:         true,
			HostNetwork: true,
			Devices:     true,
			Interactive: true,
		},
	}
}

// RepoPath returns the absolute repository clone directory.
func (c *Config) RepoPath() string {
	return filepath.Join(c.Workspace.Root, c.Repository.Dir)
}

// LogDir returns the directory holding the bootstrap log.
func (c *Config) LogDir() string {
	return filepath.Join(c.Workspace.Root, ".rosstrap")
}

// GuidePath returns the absolute quick-start document path.
func (c *Config) GuidePath() string {
	return filepath.Join(c.Workspace.Root, c.Guide.FileName)
}

// ContainerRepoPath returns the repository path as seen inside the container.
func (c *Config) ContainerRepoPath() string {
	return path.Join(c.Workspace.MountPath, c.Repository.Dir)
}

// Resolve expands ~ in host paths and makes the workspace root absolute.
func (c *Config) Resolve() error {
	root, err := ExpandHome(c.Workspace.Root)
	if err != nil {
		return err
	}
	if root, err = filepath.Abs(root); err != nil {
		return fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	c.Workspace.Root = root

	profile, err := ExpandHome(c.Display.Profile)
	if err != nil {
		return err
	}
	c.Display.Profile = profile
	return nil
}

// ExpandHome replaces a leading ~ with the current user's home directory.
func ExpandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// Validate checks cross-field constraints the CUE schema cannot express.
// It returns an *InvalidConfigError listing every problem found.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Workspace.Root) == "" {
		errs = append(errs, errors.New("workspace.root must not be empty"))
	}
	if !path.IsAbs(c.Workspace.MountPath) {
		errs = append(errs, fmt.Errorf("workspace.mount_path %q must be an absolute path", c.Workspace.MountPath))
	}
	if c.Repository.URL == "" {
		errs = append(errs, errors.New("repository.url must not be empty"))
	}
	if !isPlainName(c.Repository.Dir) {
		errs = append(errs, fmt.Errorf("repository.dir %q must be a single directory name", c.Repository.Dir))
	}
	if c.Image.Reference == "" {
		errs = append(errs, errors.New("image.reference must not be empty"))
	}
	if c.Preflight.MinDiskGB <= 0 {
		errs = append(errs, fmt.Errorf("preflight.min_disk_gb must be positive, got %v", c.Preflight.MinDiskGB))
	}
	if c.Preflight.MinMemoryGB <= 0 {
		errs = append(errs, fmt.Errorf("preflight.min_memory_gb must be positive, got %v", c.Preflight.MinMemoryGB))
	}
	if c.Runtime.Binary == "" {
		errs = append(errs, errors.New("runtime.binary must not be empty"))
	}
	if c.Display.ProbeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("display.probe_timeout must be positive, got %s", c.Display.ProbeTimeout))
	}
	if !isPlainName(c.Guide.FileName) {
		errs = append(errs, fmt.Errorf("guide.file_name %q must be a single file name", c.Guide.FileName))
	}

	if len(c.Scripts) == 0 {
		errs = append(errs, errors.New("scripts must declare at least one wrapper script"))
	}
	seen := make(map[string]int, len(c.Scripts))
	for i, s := range c.Scripts {
		if !isPlainName(s.Name) {
			errs = append(errs, fmt.Errorf("scripts[%d].name %q must be a single file name", i, s.Name))
		}
		if first, dup := seen[s.Name]; dup {
			errs = append(errs, fmt.Errorf("scripts[%d]: duplicate name %q (same as scripts[%d])", i, s.Name, first))
		} else {
			seen[s.Name] = i
		}
		if !s.Build && strings.TrimSpace(s.Command) == "" {
			errs = append(errs, fmt.Errorf("scripts[%d] (%s): command is required unless build is set", i, s.Name))
		}
		if s.Name == c.Guide.FileName || s.Name == c.Repository.Dir {
			errs = append(errs, fmt.Errorf("scripts[%d].name %q collides with another workspace entry", i, s.Name))
		}
	}

	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %d field error(s): %s", len(e.FieldErrors), strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

func isPlainName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}
