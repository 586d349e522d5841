// SPDX-License-Identifier: MPL-2.0

package workspace

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
)

type (
	// CloneOptions describes a single clone.
	CloneOptions struct {
		URL  string
		Dest string
		// Branch selects a branch. Empty means the remote HEAD.
		Branch     string
		Submodules bool
		// Progress receives the remote's progress messages. Nil discards them.
		Progress io.Writer
	}

	// CloneResult describes a finished clone.
	CloneResult struct {
		// Head is the checked-out commit hash.
		Head string
	}

	// Cloner clones a repository into a directory that does not exist yet.
	Cloner interface {
		Clone(ctx context.Context, opts CloneOptions) (CloneResult, error)
	}

	// GitClonerOption configures a GitCloner.
	GitClonerOption func(*GitCloner)

	// GitCloner implements Cloner with go-git.
	GitCloner struct {
		homeDir func() (string, error)
		getenv  func(string) string
	}
)

// WithHomeDir overrides where SSH keys are looked up.
func WithHomeDir(fn func() (string, error)) GitClonerOption {
	return func(c *GitCloner) {
		c.homeDir = fn
	}
}

// WithGetenv overrides environment lookups for tokens.
func WithGetenv(fn func(string) string) GitClonerOption {
	return func(c *GitCloner) {
		c.getenv = fn
	}
}

// NewGitCloner creates a GitCloner.
func NewGitCloner(opts ...GitClonerOption) *GitCloner {
	c := &GitCloner{
		homeDir: os.UserHomeDir,
		getenv:  os.Getenv,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Clone clones opts.URL into opts.Dest.
func (c *GitCloner) Clone(ctx context.Context, opts CloneOptions) (CloneResult, error) {
	if err := os.MkdirAll(filepath.Dir(opts.Dest), 0o755); err != nil {
		return CloneResult{}, fmt.Errorf("failed to create parent directory: %w", err)
	}

	co := &git.CloneOptions{
		URL:      opts.URL,
		Auth:     c.Auth(opts.URL),
		Progress: opts.Progress,
	}
	if opts.Branch != "" {
		co.ReferenceName = plumbing.NewBranchReferenceName(opts.Branch)
		co.SingleBranch = true
	}
	if opts.Submodules {
		co.RecurseSubmodules = git.DefaultSubmoduleRecursionDepth
	}

	repo, err := git.PlainCloneContext(ctx, opts.Dest, false, co)
	if err != nil {
		return CloneResult{}, err
	}

	head, err := repo.Head()
	if err != nil {
		return CloneResult{}, fmt.Errorf("failed to get HEAD: %w", err)
	}
	return CloneResult{Head: head.Hash().String()}, nil
}

// Auth picks an authentication method for url. SSH URLs use the first
// default key found in ~/.ssh; other URLs use a token from the environment.
// A nil result means anonymous access.
func (c *GitCloner) Auth(url string) transport.AuthMethod {
	if IsSSHURL(url) {
		return c.trySSHAuth()
	}
	return c.tryHTTPAuth()
}

// IsSSHURL reports whether url uses the SSH transport.
func IsSSHURL(url string) bool {
	if strings.HasPrefix(url, "ssh://") {
		return true
	}
	// scp-like syntax: user@host:path
	if strings.Contains(url, "://") {
		return false
	}
	at := strings.Index(url, "@")
	colon := strings.Index(url, ":")
	return at > 0 && colon > at
}

func (c *GitCloner) trySSHAuth() transport.AuthMethod {
	homeDir, err := c.homeDir()
	if err != nil {
		return nil
	}

	keyPaths := []string{
		filepath.Join(homeDir, ".ssh", "id_ed25519"),
		filepath.Join(homeDir, ".ssh", "id_rsa"),
		filepath.Join(homeDir, ".ssh", "id_ecdsa"),
	}

	for _, keyPath := range keyPaths {
		if _, err := os.Stat(keyPath); err == nil {
			auth, err := ssh.NewPublicKeysFromFile("git", keyPath, "")
			if err == nil {
				return auth
			}
		}
	}

	return nil
}

func (c *GitCloner) tryHTTPAuth() transport.AuthMethod {
	tokens := []struct {
		env  string
		user string
	}{
		{env: "GITHUB_TOKEN", user: "x-access-token"},
		{env: "GITLAB_TOKEN", user: "gitlab-ci-token"},
		{env: "GIT_TOKEN", user: "git"},
	}
	for _, tok := range tokens {
		if v := c.getenv(tok.env); v != "" {
			return &http.BasicAuth{Username: tok.user, Password: v}
		}
	}
	return nil
}
