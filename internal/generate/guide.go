// SPDX-License-Identifier: MPL-2.0

package generate

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"github.com/rosstrap/rosstrap/internal/config"
	"github.com/rosstrap/rosstrap/internal/issue"
)

//go:embed templates/quickstart.md.tmpl
var templatesFS embed.FS

var guideTemplate = template.Must(template.ParseFS(templatesFS, "templates/quickstart.md.tmpl"))

type (
	guideData struct {
		Image       string
		MountPath   string
		Root        string
		RepoPath    string
		RepoURL     string
		LogDir      string
		ShellScript string
		BuildScript string
		ReposFile   string
		Target      string
		RosDistro   string
		Group       string
		Display     string
		Scripts     []guideScript
	}

	guideScript struct {
		Name        string
		Description string
		Command     string
		GUI         bool
		HostNetwork bool
		Devices     bool
	}
)

// RenderGuide returns the quick-start markdown for cfg.
func RenderGuide(cfg *config.Config) ([]byte, error) {
	data := guideData{
		Image:     cfg.Image.Reference,
		MountPath: cfg.Workspace.MountPath,
		Root:      cfg.Workspace.Root,
		RepoPath:  cfg.RepoPath(),
		RepoURL:   cfg.Repository.URL,
		LogDir:    cfg.LogDir(),
		ReposFile: cfg.Build.ReposFile,
		Target:    cfg.Build.Target,
		RosDistro: cfg.Build.RosDistro,
		Group:     cfg.Runtime.Group,
		Display:   cfg.Display.Value,
	}

	data.ShellScript = ShellScript(cfg)
	data.BuildScript = BuildScript(cfg)

	for _, sc := range cfg.Scripts {
		cmd := sc.Command
		if sc.Build {
			cmd = BuildChain(cfg)
		}
		data.Scripts = append(data.Scripts, guideScript{
			Name:        sc.Name,
			Description: sc.Description,
			Command:     cmd,
			GUI:         sc.GUI,
			HostNetwork: sc.HostNetwork,
			Devices:     sc.Devices,
		})
	}
	var buf bytes.Buffer
	if err := guideTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render guide: %w", err)
	}
	return buf.Bytes(), nil
}

// ShellScript names the script an operator starts with: the first
// interactive non-build script, else the first script.
func ShellScript(cfg *config.Config) string {
	for _, sc := range cfg.Scripts {
		if sc.Interactive && !sc.Build {
			return sc.Name
		}
	}
	if len(cfg.Scripts) > 0 {
		return cfg.Scripts[0].Name
	}
	return ""
}

// BuildScript names the first build script, or "" when there is none.
func BuildScript(cfg *config.Config) string {
	for _, sc := range cfg.Scripts {
		if sc.Build {
			return sc.Name
		}
	}
	return ""
}

// WriteGuide renders the guide and writes it to cfg.GuidePath(), replacing
// any existing file.
func WriteGuide(cfg *config.Config) (WrittenFile, error) {
	body, err := RenderGuide(cfg)
	if err != nil {
		return WrittenFile{}, writeError("render guide", cfg.GuidePath(), issue.GuideWriteFailedId, err)
	}
	p := cfg.GuidePath()
	if err := writeFile(p, body, 0o644); err != nil {
		return WrittenFile{}, writeError("write guide", p, issue.GuideWriteFailedId, err)
	}
	files, err := List([]string{p})
	if err != nil {
		return WrittenFile{}, writeError("write guide", p, issue.GuideWriteFailedId, err)
	}
	return files[0], nil
}
