// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/rosstrap/rosstrap/internal/hostexec"
	"github.com/rosstrap/rosstrap/internal/issue"
)

var (
	// ErrInvalidHostFilesystemPath is the sentinel error wrapped by InvalidHostFilesystemPathError.
	ErrInvalidHostFilesystemPath = errors.New("invalid host filesystem path")

	// ErrInvalidMountTargetPath is the sentinel error wrapped by InvalidMountTargetPathError.
	ErrInvalidMountTargetPath = errors.New("invalid container filesystem path")

	// ErrInvalidVolumeMount is the sentinel error wrapped by InvalidVolumeMountError.
	ErrInvalidVolumeMount = errors.New("invalid volume mount")

	// ErrInvalidRunOptions is returned when RunOptions cannot produce a valid command.
	ErrInvalidRunOptions = errors.New("invalid run options")
)

type (
	// BaseCLIEngineOption configures a BaseCLIEngine.
	BaseCLIEngineOption func(*BaseCLIEngine)

	// BaseCLIEngine provides the CLI argument builders and command execution
	// shared by CLI-based engines. Every command runs through a hostexec.Runner.
	BaseCLIEngine struct {
		name   string // Engine name for error messages (e.g., "docker")
		binary string // Binary resolved through PATH by the runner
		group  string // Group whose members reach the daemon socket
		runner hostexec.Runner
	}

	// HostFilesystemPath represents a filesystem path on the host for volume mounts.
	// A valid path must be non-empty and not whitespace-only.
	HostFilesystemPath string

	// InvalidHostFilesystemPathError is returned when a HostFilesystemPath is empty or whitespace-only.
	InvalidHostFilesystemPathError struct {
		Value HostFilesystemPath
	}

	// MountTargetPath represents a filesystem path inside a container for volume mounts.
	// A valid path must be absolute.
	MountTargetPath string

	// InvalidMountTargetPathError is returned when a MountTargetPath is not absolute.
	InvalidMountTargetPathError struct {
		Value MountTargetPath
	}

	// VolumeMount represents a bind mount specification.
	VolumeMount struct {
		HostPath      HostFilesystemPath
		ContainerPath MountTargetPath
		ReadOnly      bool
	}

	// InvalidVolumeMountError is returned when a VolumeMount has one or more invalid fields.
	// It wraps the individual field validation errors for inspection.
	InvalidVolumeMountError struct {
		Value     VolumeMount
		FieldErrs []error
	}
)

// String returns the string representation of the HostFilesystemPath.
func (p HostFilesystemPath) String() string { return string(p) }

// Validate returns an error if the HostFilesystemPath is invalid.
func (p HostFilesystemPath) Validate() error {
	if strings.TrimSpace(string(p)) == "" {
		return &InvalidHostFilesystemPathError{Value: p}
	}
	return nil
}

// Error implements the error interface for InvalidHostFilesystemPathError.
func (e *InvalidHostFilesystemPathError) Error() string {
	return fmt.Sprintf("invalid host filesystem path %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidHostFilesystemPath for errors.Is() compatibility.
func (e *InvalidHostFilesystemPathError) Unwrap() error { return ErrInvalidHostFilesystemPath }

// String returns the string representation of the MountTargetPath.
func (p MountTargetPath) String() string { return string(p) }

// Validate returns an error if the MountTargetPath is not an absolute path.
func (p MountTargetPath) Validate() error {
	if !strings.HasPrefix(string(p), "/") {
		return &InvalidMountTargetPathError{Value: p}
	}
	return nil
}

// Error implements the error interface for InvalidMountTargetPathError.
func (e *InvalidMountTargetPathError) Error() string {
	return fmt.Sprintf("invalid container filesystem path %q: must be absolute", e.Value)
}

// Unwrap returns ErrInvalidMountTargetPath for errors.Is() compatibility.
func (e *InvalidMountTargetPathError) Unwrap() error {
	return ErrInvalidMountTargetPath
}

// Error implements the error interface for InvalidVolumeMountError.
func (e *InvalidVolumeMountError) Error() string {
	return fmt.Sprintf("invalid volume mount %s:%s: %d field error(s)",
		e.Value.HostPath, e.Value.ContainerPath, len(e.FieldErrs))
}

// Unwrap returns ErrInvalidVolumeMount for errors.Is() compatibility.
func (e *InvalidVolumeMountError) Unwrap() error { return ErrInvalidVolumeMount }

// Validate returns an error if any field of the VolumeMount is invalid.
func (v VolumeMount) Validate() error {
	var errs []error
	if err := v.HostPath.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := v.ContainerPath.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return &InvalidVolumeMountError{Value: v, FieldErrs: errs}
	}
	return nil
}

// String returns the volume mount in "host:container[:ro]" format.
func (v VolumeMount) String() string {
	s := string(v.HostPath) + ":" + string(v.ContainerPath)
	if v.ReadOnly {
		s += ":ro"
	}
	return s
}

// Validate checks the options before a run.
func (o RunOptions) Validate() error {
	var errs []error
	if strings.TrimSpace(o.Image) == "" {
		errs = append(errs, fmt.Errorf("%w: image is required", ErrInvalidRunOptions))
	}
	for _, v := range o.Volumes {
		if err := v.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// --- Option Functions ---

// WithName sets the engine name used in error messages.
func WithName(name string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.name = name
	}
}

// WithBinary sets the engine binary (default: the engine name).
func WithBinary(binary string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.binary = binary
	}
}

// WithGroup sets the group that grants access to the engine daemon
// (default: the engine name). It is named in permission remediation.
func WithGroup(group string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.group = group
	}
}

// --- Constructor ---

// NewBaseCLIEngine creates a base engine that executes through runner.
func NewBaseCLIEngine(runner hostexec.Runner, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		name:   string(EngineTypeDocker),
		runner: runner,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.binary == "" {
		e.binary = e.name
	}
	if e.group == "" {
		e.group = e.name
	}
	return e
}

// --- Accessor Methods ---

// Name returns the engine name used in error messages.
func (e *BaseCLIEngine) Name() string {
	return e.name
}

// Binary returns the container engine binary.
func (e *BaseCLIEngine) Binary() string {
	return e.binary
}

// Group returns the group that grants access to the engine daemon.
func (e *BaseCLIEngine) Group() string {
	return e.group
}

// --- Argument Builders ---

// RunArgs constructs arguments for a container run command.
// Returns arguments in the order expected by docker run. Environment
// variables are emitted in sorted order so the output is deterministic.
//
// Generated command: <binary> run [options] <image> [command...]
func (e *BaseCLIEngine) RunArgs(opts RunOptions) []string {
	args := []string{"run"}

	if opts.Remove {
		args = append(args, "--rm")
	}

	if opts.Interactive {
		args = append(args, "-i")
	}

	if opts.TTY {
		args = append(args, "-t")
	}

	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}

	if opts.Network != "" {
		args = append(args, "--network", opts.Network)
	}

	if opts.Privileged {
		args = append(args, "--privileged")
	}

	for _, name := range opts.PassEnv {
		args = append(args, "-e", name)
	}

	for _, k := range slices.Sorted(maps.Keys(opts.Env)) {
		args = append(args, "-e", k+"="+opts.Env[k])
	}

	for _, v := range opts.Volumes {
		args = append(args, "-v", v.String())
	}

	if opts.WorkDir != "" {
		args = append(args, "-w", opts.WorkDir)
	}

	args = append(args, opts.Image)
	args = append(args, opts.Command...)

	return args
}

// PullArgs constructs arguments for an image pull.
func (e *BaseCLIEngine) PullArgs(image string) []string {
	return []string{"pull", image}
}

// InspectImageArgs constructs arguments for an image inspect.
func (e *BaseCLIEngine) InspectImageArgs(image string) []string {
	return []string{"image", "inspect", image}
}

// --- Command Execution ---

// Command returns the hostexec command for the given engine arguments.
func (e *BaseCLIEngine) Command(args ...string) hostexec.Command {
	return hostexec.Command{Name: e.binary, Args: args}
}

// RunCommand executes an engine command and returns the runner result.
// A non-zero exit is reported through the result, not the error.
func (e *BaseCLIEngine) RunCommand(ctx context.Context, args ...string) (hostexec.Result, error) {
	return e.runner.Run(ctx, e.Command(args...))
}

// RunCommandWithOutput executes a command and returns its trimmed output,
// failing on a non-zero exit.
func (e *BaseCLIEngine) RunCommandWithOutput(ctx context.Context, args ...string) (string, error) {
	res, err := hostexec.MustSucceed(ctx, e.runner, e.Command(args...))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(res.Output)), nil
}

// Run runs a command in a container and returns the result.
// A non-zero exit code is captured in RunResult.ExitCode (not returned as error).
// It validates RunOptions before executing to catch invalid fields early.
func (e *BaseCLIEngine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	cmd := e.Command(e.RunArgs(opts)...)
	cmd.Stdin = opts.Stdin
	cmd.Stream = opts.Stdout

	res, err := e.runner.Run(ctx, cmd)
	if err != nil {
		return nil, runContainerError(e.name, opts, err)
	}

	return &RunResult{ExitCode: res.ExitCode, Output: res.Output}, nil
}

// Pull pulls an image with a single attempt.
func (e *BaseCLIEngine) Pull(ctx context.Context, opts PullOptions) error {
	cmd := e.Command(e.PullArgs(opts.Image)...)
	cmd.Stream = opts.Stdout

	if _, err := hostexec.MustSucceed(ctx, e.runner, cmd); err != nil {
		return pullImageError(e.name, e.group, opts.Image, err)
	}
	return nil
}

// pullImageError creates an actionable error for image pull failures. A
// daemon socket refusal links the permission issue instead of the pull issue.
func pullImageError(engine, group, image string, cause error) error {
	ctx := issue.NewErrorContext().
		WithOperation("pull image").
		WithResource(image).
		WithIssue(issue.ImagePullFailedId)

	if isPermissionDenied(cause) {
		ctx.WithIssue(issue.PermissionDeniedId)
		ctx.WithSuggestion(fmt.Sprintf("Your user is not yet in the %s group for this session; log in again or run 'newgrp %s'", group, group))
	}
	ctx.WithSuggestion("Check the image reference and your network connection")
	ctx.WithSuggestion("Log in to the registry if the image is private (try: " + engine + " login)")

	return ctx.Wrap(cause).BuildError()
}

// isPermissionDenied reports whether cause is a command refused access to the
// daemon socket.
func isPermissionDenied(cause error) bool {
	var exitErr *hostexec.ExitError
	return errors.As(cause, &exitErr) && strings.Contains(strings.ToLower(exitErr.Output), "permission denied")
}

// runContainerError creates an actionable error for container run failures.
func runContainerError(engine string, opts RunOptions, cause error) error {
	ctx := issue.NewErrorContext().
		WithOperation("run container").
		WithResource(opts.Image)

	ctx.WithSuggestion("Verify the image exists (try: " + engine + " images)")
	ctx.WithSuggestion("Check that volume mount paths exist on the host")
	ctx.WithSuggestion("Run with --verbose to see full container output")

	return ctx.Wrap(cause).BuildError()
}
