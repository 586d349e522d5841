// SPDX-License-Identifier: MPL-2.0

package generate

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/rosstrap/rosstrap/internal/config"
	"github.com/rosstrap/rosstrap/internal/issue"
)

const (
	// ScriptMode is the permission every wrapper script is written with.
	ScriptMode fs.FileMode = 0o755

	scriptHeader = "# Generated by rosstrap. Changes are overwritten on the next run."
)

type (
	// Script is a rendered wrapper script.
	Script struct {
		Name string
		Body []byte
	}

	// WrittenFile describes a file on disk after generation.
	WrittenFile struct {
		Path string
		Mode fs.FileMode
		Size int64
	}

	// ScriptGenerator renders and writes the wrapper scripts.
	ScriptGenerator struct {
		cfg     *config.Config
		builder RunArgsBuilder
	}
)

// NewScriptGenerator creates a ScriptGenerator. builder supplies the
// container CLI arguments.
func NewScriptGenerator(cfg *config.Config, builder RunArgsBuilder) *ScriptGenerator {
	return &ScriptGenerator{cfg: cfg, builder: builder}
}

// Render returns the body of one wrapper script. The body is parsed as bash
// before it is returned.
func (g *ScriptGenerator) Render(sc config.ScriptConfig) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString("#!/usr/bin/env bash\n")
	b.WriteString(scriptHeader + "\n")
	if sc.Description != "" {
		b.WriteString("# " + sc.Description + "\n")
	}
	b.WriteString("set -e\n\n")

	if sc.GUI {
		b.WriteString("xhost +local:docker >/dev/null 2>&1 || true\n\n")
	}

	args := g.builder.RunArgs(RunOptions(g.cfg, sc))
	b.WriteString("exec " + quote(g.builder.Binary()))
	imageIdx := slices.Index(args, g.cfg.Image.Reference)
	for i, a := range args {
		// One flag per line up to the image; the command stays on the image line.
		if i > 0 && i <= imageIdx && (i == imageIdx || strings.HasPrefix(a, "-")) {
			b.WriteString(" \\\n    ")
		} else {
			b.WriteString(" ")
		}
		b.WriteString(quote(a))
	}
	b.WriteString("\n")

	if _, err := syntax.NewParser().Parse(bytes.NewReader(b.Bytes()), sc.Name); err != nil {
		return nil, fmt.Errorf("generated script %s is not valid bash: %w", sc.Name, err)
	}
	return b.Bytes(), nil
}

// RenderAll renders every configured script in config order.
func (g *ScriptGenerator) RenderAll() ([]Script, error) {
	scripts := make([]Script, 0, len(g.cfg.Scripts))
	for _, sc := range g.cfg.Scripts {
		body, err := g.Render(sc)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, Script{Name: sc.Name, Body: body})
	}
	return scripts, nil
}

// Write renders every script and writes it into the workspace root,
// replacing any existing file, then lists the result.
func (g *ScriptGenerator) Write() ([]WrittenFile, error) {
	scripts, err := g.RenderAll()
	if err != nil {
		return nil, writeError("render scripts", g.cfg.Workspace.Root, issue.ScriptWriteFailedId, err)
	}

	paths := make([]string, 0, len(scripts))
	for _, s := range scripts {
		p := filepath.Join(g.cfg.Workspace.Root, s.Name)
		if err := writeFile(p, s.Body, ScriptMode); err != nil {
			return nil, writeError("write script", p, issue.ScriptWriteFailedId, err)
		}
		paths = append(paths, p)
	}

	files, err := List(paths)
	if err != nil {
		return nil, writeError("list scripts", g.cfg.Workspace.Root, issue.ScriptWriteFailedId, err)
	}
	return files, nil
}

// List stats each path.
func List(paths []string) ([]WrittenFile, error) {
	files := make([]WrittenFile, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		files = append(files, WrittenFile{Path: p, Mode: info.Mode().Perm(), Size: info.Size()})
	}
	return files, nil
}

// writeFile truncates and writes path, then forces mode. os.WriteFile only
// applies the mode when it creates the file.
func writeFile(path string, data []byte, mode fs.FileMode) error {
	if err := os.WriteFile(path, data, mode); err != nil {
		return err
	}
	return os.Chmod(path, mode)
}

func writeError(op, resource string, id issue.Id, cause error) error {
	return issue.NewErrorContext().
		WithOperation(op).
		WithResource(resource).
		WithIssue(id).
		WithSuggestion("Check that the workspace directory is writable").
		WithSuggestion("Free some disk space if the filesystem is full").
		Wrap(cause).
		BuildError()
}

func quote(s string) string {
	q, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		return fmt.Sprintf("%q", s)
	}
	return q
}
