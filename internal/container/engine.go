// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// NetworkHost shares the host network namespace with the container.
const NetworkHost = "host"

type (
	// Engine defines the container operations the bootstrap needs.
	Engine interface {
		// Name returns the engine name.
		Name() string
		// Binary returns the CLI binary the engine invokes.
		Binary() string
		// Available checks if the engine binary is installed and its daemon answers.
		Available(ctx context.Context) bool
		// Version returns the server version.
		Version(ctx context.Context) (string, error)
		// Pull pulls an image. A failed pull is returned as an error.
		Pull(ctx context.Context, opts PullOptions) error
		// InspectImage returns metadata for a local image.
		InspectImage(ctx context.Context, image string) (*ImageInfo, error)
		// Run runs a command in a new container.
		Run(ctx context.Context, opts RunOptions) (*RunResult, error)
		// RunArgs returns the arguments of the run command without executing it.
		RunArgs(opts RunOptions) []string
	}

	// PullOptions contains options for pulling an image.
	PullOptions struct {
		Image string
		// Stdout receives live pull progress.
		Stdout io.Writer
	}

	// RunOptions contains options for running a container.
	RunOptions struct {
		// Image is the image to run
		Image string
		// Command is the command to run
		Command []string
		// WorkDir is the working directory inside the container
		WorkDir string
		// Env contains environment variables set to fixed values
		Env map[string]string
		// PassEnv names host environment variables forwarded as-is (-e NAME)
		PassEnv []string
		// Volumes are bind mounts
		Volumes []VolumeMount
		// Network selects the network mode (e.g. NetworkHost). Empty means the default bridge.
		Network string
		// Privileged grants extended privileges (device access)
		Privileged bool
		// Remove automatically removes the container after exit
		Remove bool
		// Name is the container name
		Name string
		// Interactive keeps stdin open
		Interactive bool
		// TTY allocates a pseudo-TTY
		TTY bool
		// Stdin is the standard input
		Stdin io.Reader
		// Stdout receives live container output
		Stdout io.Writer
	}

	// RunResult contains the result of running a container.
	RunResult struct {
		// ExitCode is the container command's exit status
		ExitCode int
		// Output is the captured combined output
		Output []byte
	}

	// ImageInfo is the subset of image metadata shown after a pull.
	ImageInfo struct {
		ID           string
		RepoTags     []string
		Size         int64
		Created      time.Time
		Architecture string
		OS           string
	}

	// ErrEngineNotAvailable is returned when the container engine cannot be used.
	ErrEngineNotAvailable struct {
		Engine string
		Reason string
	}
)

func (e *ErrEngineNotAvailable) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// ShortID returns the 12-character image ID without the digest algorithm.
func (i *ImageInfo) ShortID() string {
	id := strings.TrimPrefix(i.ID, "sha256:")
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// HumanSize returns the image size in SI units (e.g. "3.2 GB").
func (i *ImageInfo) HumanSize() string {
	return humanize.Bytes(uint64(max(i.Size, 0)))
}

// Platform returns "os/architecture".
func (i *ImageInfo) Platform() string {
	return i.OS + "/" + i.Architecture
}
