// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rosstrap/rosstrap/internal/issue"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "rosstrap"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"

	maxConfigFileSize = 1 << 20
)

// ErrConfigExists is returned by WriteDefault when the target file exists.
var ErrConfigExists = errors.New("config file already exists")

//go:embed config_schema.cue
var configSchema string

// LoadOptions defines explicit configuration loading inputs.
type LoadOptions struct {
	// ConfigFilePath forces loading from a specific config file when set.
	ConfigFilePath string
	// ConfigDirPath overrides the config directory lookup when set.
	ConfigDirPath string
}

// ConfigDir returns the rosstrap configuration directory,
// $XDG_CONFIG_HOME/rosstrap (defaulting to ~/.config/rosstrap).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, AppName), nil
}

// DefaultConfigPath returns the per-user config file path.
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), nil
}

// Load builds the effective configuration: defaults, overlaid with the first
// config file found, then resolved and validated. It returns the path of the
// file that was loaded, or "" when only defaults apply.
func Load(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	resolvedPath, err := findConfigFile(opts)
	if err != nil {
		return nil, "", err
	}

	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithIssue(issue.ConfigLoadFailedId).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("Use 'rosstrap config show' to see the effective configuration").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Resolve(); err != nil {
		return nil, "", err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithIssue(issue.ConfigLoadFailedId).
			WithSuggestion("Script names, repository.dir and guide.file_name must be plain file names").
			WithSuggestion("Every script needs a command unless it sets build: true").
			Wrap(err).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

// findConfigFile resolves which config file to load, in order: the explicit
// path, the config directory, the current directory.
func findConfigFile(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithIssue(issue.ConfigLoadFailedId).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'rosstrap config init' to write the default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	cfgDir := opts.ConfigDirPath
	if cfgDir == "" {
		var err error
		if cfgDir, err = ConfigDir(); err != nil {
			return "", err
		}
	}

	candidates := []string{
		filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt),
		ConfigFileName + "." + ConfigFileExt,
	}
	for _, p := range candidates {
		if fileExists(p) {
			return p, nil
		}
	}
	return "", nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("workspace.root", d.Workspace.Root)
	v.SetDefault("workspace.mount_path", d.Workspace.MountPath)
	v.SetDefault("repository.url", d.Repository.URL)
	v.SetDefault("repository.dir", d.Repository.Dir)
	v.SetDefault("repository.branch", d.Repository.Branch)
	v.SetDefault("repository.submodules", d.Repository.Submodules)
	v.SetDefault("image.reference", d.Image.Reference)
	v.SetDefault("preflight.min_memory_gb", d.Preflight.MinMemoryGB)
	v.SetDefault("preflight.min_disk_gb", d.Preflight.MinDiskGB)
	v.SetDefault("preflight.supported_releases", d.Preflight.SupportedReleases)
	v.SetDefault("packages.base", d.Packages.Base)
	v.SetDefault("packages.legacy_runtime", d.Packages.LegacyRuntime)
	v.SetDefault("packages.compose_plugin", d.Packages.ComposePlugin)
	v.SetDefault("packages.display", d.Packages.Display)
	v.SetDefault("runtime.binary", d.Runtime.Binary)
	v.SetDefault("runtime.install_script_url", d.Runtime.InstallScriptURL)
	v.SetDefault("runtime.group", d.Runtime.Group)
	v.SetDefault("runtime.service", d.Runtime.Service)
	v.SetDefault("display.value", d.Display.Value)
	v.SetDefault("display.profile", d.Display.Profile)
	v.SetDefault("display.probe", d.Display.Probe)
	v.SetDefault("display.probe_timeout", d.Display.ProbeTimeout)
	v.SetDefault("build.repos_file", d.Build.ReposFile)
	v.SetDefault("build.target", d.Build.Target)
	v.SetDefault("build.ros_distro", d.Build.RosDistro)
	v.SetDefault("scripts", scriptMaps(d.Scripts))
	v.SetDefault("guide.file_name", d.Guide.FileName)
	v.SetDefault("ui.verbose", d.UI.Verbose)
}

// scriptMaps converts scripts to the map form a decoded CUE list has, so the
// default and a file-provided list go through the same decode path.
func scriptMaps(scripts []ScriptConfig) []any {
	out := make([]any, len(scripts))
	for i, s := range scripts {
		out[i] = map[string]any{
			"name":         s.Name,
			"description":  s.Description,
			"command":      s.Command,
			"build":        s.Build,
			"gui":          s.GUI,
			"host_network": s.HostNetwork,
			"devices":      s.Devices,
			"interactive":  s.Interactive,
		}
	}
	return out
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper.
//
// Concrete(false) is used because every config field is optional.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxConfigFileSize {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", path, len(data), maxConfigFileSize)
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return formatCUEError(userValue.Err(), path)
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return formatCUEError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return formatCUEError(err, path)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

// formatCUEError flattens CUE errors into "<file>: <path>: <message>" lines.
func formatCUEError(err error, filePath string) error {
	cueErrs := cueerrors.Errors(err)
	if len(cueErrs) == 0 {
		return fmt.Errorf("%s: %w", filePath, err)
	}

	lines := make([]string, 0, len(cueErrs))
	for _, e := range cueErrs {
		msg := e.Error()
		if p := strings.Join(cueerrors.Path(e), "."); p != "" && !strings.HasPrefix(msg, p) {
			msg = p + ": " + msg
		}
		lines = append(lines, msg)
	}

	if len(lines) == 1 {
		return fmt.Errorf("%s: %s", filePath, lines[0])
	}
	return fmt.Errorf("%s: validation failed:\n  %s", filePath, strings.Join(lines, "\n  "))
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// WriteDefault writes the default configuration as CUE to path, creating
// parent directories. An existing file is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force && fileExists(path) {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateCUE generates a CUE representation of the configuration
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// rosstrap configuration file\n")
	sb.WriteString("// Omitted fields keep their built-in defaults.\n")

	sb.WriteString("\nworkspace: {\n")
	fmt.Fprintf(&sb, "\troot:       %q\n", cfg.Workspace.Root)
	fmt.Fprintf(&sb, "\tmount_path: %q\n", cfg.Workspace.MountPath)
	sb.WriteString("}\n")

	sb.WriteString("\nrepository: {\n")
	fmt.Fprintf(&sb, "\turl:        %q\n", cfg.Repository.URL)
	fmt.Fprintf(&sb, "\tdir:        %q\n", cfg.Repository.Dir)
	fmt.Fprintf(&sb, "\tbranch:     %q\n", cfg.Repository.Branch)
	fmt.Fprintf(&sb, "\tsubmodules: %v\n", cfg.Repository.Submodules)
	sb.WriteString("}\n")

	sb.WriteString("\nimage: {\n")
	fmt.Fprintf(&sb, "\treference: %q\n", cfg.Image.Reference)
	sb.WriteString("}\n")

	sb.WriteString("\npreflight: {\n")
	fmt.Fprintf(&sb, "\tmin_memory_gb:      %s\n", formatNumber(cfg.Preflight.MinMemoryGB))
	fmt.Fprintf(&sb, "\tmin_disk_gb:        %s\n", formatNumber(cfg.Preflight.MinDiskGB))
	fmt.Fprintf(&sb, "\tsupported_releases: %s\n", formatList(cfg.Preflight.SupportedReleases))
	sb.WriteString("}\n")

	sb.WriteString("\npackages: {\n")
	fmt.Fprintf(&sb, "\tbase:           %s\n", formatList(cfg.Packages.Base))
	fmt.Fprintf(&sb, "\tlegacy_runtime: %s\n", formatList(cfg.Packages.LegacyRuntime))
	fmt.Fprintf(&sb, "\tcompose_plugin: %q\n", cfg.Packages.ComposePlugin)
	fmt.Fprintf(&sb, "\tdisplay:        %s\n", formatList(cfg.Packages.Display))
	sb.WriteString("}\n")

	sb.WriteString("\nruntime: {\n")
	fmt.Fprintf(&sb, "\tbinary:             %q\n", cfg.Runtime.Binary)
	fmt.Fprintf(&sb, "\tinstall_script_url: %q\n", cfg.Runtime.InstallScriptURL)
	fmt.Fprintf(&sb, "\tgroup:              %q\n", cfg.Runtime.Group)
	fmt.Fprintf(&sb, "\tservice:            %q\n", cfg.Runtime.Service)
	sb.WriteString("}\n")

	sb.WriteString("\ndisplay: {\n")
	fmt.Fprintf(&sb, "\tvalue:         %q\n", cfg.Display.Value)
	fmt.Fprintf(&sb, "\tprofile:       %q\n", cfg.Display.Profile)
	fmt.Fprintf(&sb, "\tprobe:         %q\n", cfg.Display.Probe)
	fmt.Fprintf(&sb, "\tprobe_timeout: %q\n", cfg.Display.ProbeTimeout.String())
	sb.WriteString("}\n")

	sb.WriteString("\nbuild: {\n")
	fmt.Fprintf(&sb, "\trepos_file: %q\n", cfg.Build.ReposFile)
	fmt.Fprintf(&sb, "\ttarget:     %q\n", cfg.Build.Target)
	fmt.Fprintf(&sb, "\tros_distro: %q\n", cfg.Build.RosDistro)
	sb.WriteString("}\n")

	sb.WriteString("\nscripts: [\n")
	for _, s := range cfg.Scripts {
		sb.WriteString("\t{\n")
		fmt.Fprintf(&sb, "\t\tname:         %q\n", s.Name)
		if s.Description != "" {
			fmt.Fprintf(&sb, "\t\tdescription:  %q\n", s.Description)
		}
		if s.Command != "" {
			fmt.Fprintf(&sb, "\t\tcommand:      %q\n", s.Command)
		}
		fmt.Fprintf(&sb, "\t\tbuild:        %v\n", s.Build)
		fmt.Fprintf(&sb, "\t\tgui:          %v\n", s.GUI)
		fmt.Fprintf(&sb, "\t\thost_network: %v\n", s.HostNetwork)
		fmt.Fprintf(&sb, "\t\tdevices:      %v\n", s.Devices)
		fmt.Fprintf(&sb, "\t\tinteractive:  %v\n", s.Interactive)
		sb.WriteString("\t},\n")
	}
	sb.WriteString("]\n")

	sb.WriteString("\nguide: {\n")
	fmt.Fprintf(&sb, "\tfile_name: %q\n", cfg.Guide.FileName)
	sb.WriteString("}\n")

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tverbose: %v\n", cfg.UI.Verbose)
	sb.WriteString("}\n")

	return sb.String()
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatList(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = strconv.Quote(it)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
