// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rosstrap/rosstrap/internal/hostexec"
)

// EngineType identifies the container engine type.
type EngineType string

// EngineTypeDocker is the Docker CLI.
const EngineTypeDocker EngineType = "docker"

type (
	// DockerEngine implements the Engine interface using the Docker CLI.
	// It embeds BaseCLIEngine for common CLI operations.
	DockerEngine struct {
		*BaseCLIEngine
	}

	// dockerImageInspect mirrors the fields of `docker image inspect` output we use.
	dockerImageInspect struct {
		ID           string   `json:"Id"`
		RepoTags     []string `json:"RepoTags"`
		Size         int64    `json:"Size"`
		Created      string   `json:"Created"`
		Architecture string   `json:"Architecture"`
		Os           string   `json:"Os"`
	}
)

// NewDockerEngine creates a new Docker engine executing through runner.
func NewDockerEngine(runner hostexec.Runner, opts ...BaseCLIEngineOption) *DockerEngine {
	opts = append([]BaseCLIEngineOption{WithName(string(EngineTypeDocker))}, opts...)
	return &DockerEngine{
		BaseCLIEngine: NewBaseCLIEngine(runner, opts...),
	}
}

// Available checks that the docker binary is on PATH and the daemon answers.
func (e *DockerEngine) Available(ctx context.Context) bool {
	if _, err := e.runner.LookPath(e.Binary()); err != nil {
		return false
	}
	res, err := e.RunCommand(ctx, "version", "--format", "{{.Server.Version}}")
	return err == nil && res.Success()
}

// Version returns the Docker server version.
func (e *DockerEngine) Version(ctx context.Context) (string, error) {
	out, err := e.RunCommandWithOutput(ctx, "version", "--format", "{{.Server.Version}}")
	if err != nil {
		return "", fmt.Errorf("failed to get docker version: %w", err)
	}
	return out, nil
}

// InspectImage returns metadata for a local image.
func (e *DockerEngine) InspectImage(ctx context.Context, image string) (*ImageInfo, error) {
	out, err := e.RunCommandWithOutput(ctx, e.InspectImageArgs(image)...)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect image %s: %w", image, err)
	}
	return parseImageInspect(image, []byte(out))
}

func parseImageInspect(image string, data []byte) (*ImageInfo, error) {
	var entries []dockerImageInspect
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse inspect output for %s: %w", image, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no inspect data for image %s", image)
	}

	raw := entries[0]
	info := &ImageInfo{
		ID:           raw.ID,
		RepoTags:     raw.RepoTags,
		Size:         raw.Size,
		Architecture: raw.Architecture,
		OS:           raw.Os,
	}
	if raw.Created != "" {
		created, err := time.Parse(time.RFC3339Nano, raw.Created)
		if err != nil {
			return nil, fmt.Errorf("invalid creation time %q for image %s: %w", raw.Created, image, err)
		}
		info.Created = created
	}
	return info, nil
}
