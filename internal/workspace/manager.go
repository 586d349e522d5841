// SPDX-License-Identifier: MPL-2.0

package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/rosstrap/rosstrap/internal/config"
	"github.com/rosstrap/rosstrap/internal/issue"
)

// ErrRepoMissing is returned when a clone reported success but the
// repository directory does not exist.
var ErrRepoMissing = errors.New("repository directory missing after clone")

type (
	// Manager creates the workspace root and carries out clone actions.
	Manager struct {
		root       string
		logDir     string
		repoPath   string
		repository config.RepositoryConfig
		cloner     Cloner
		logger     *log.Logger
		// Progress receives clone progress. Nil discards it.
		Progress io.Writer
	}

	// Outcome describes what Apply did.
	Outcome struct {
		Action Action
		// Head is the cloned commit; empty for ActionKeep.
		Head string
	}
)

// NewManager creates a Manager for cfg.
func NewManager(cfg *config.Config, cloner Cloner, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Manager{
		root:       cfg.Workspace.Root,
		logDir:     cfg.LogDir(),
		repoPath:   cfg.RepoPath(),
		repository: cfg.Repository,
		cloner:     cloner,
		logger:     logger,
	}
}

// Root returns the workspace root.
func (m *Manager) Root() string { return m.root }

// RepoPath returns the repository directory.
func (m *Manager) RepoPath() string { return m.repoPath }

// EnsureRoot creates the workspace root and its log directory.
func (m *Manager) EnsureRoot() error {
	for _, dir := range []string{m.root, m.logDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return issue.NewErrorContext().
				WithOperation("create workspace").
				WithResource(dir).
				WithIssue(issue.WorkspaceCreateFailedId).
				WithSuggestion("Check that you own the parent directory").
				WithSuggestion("Set workspace.root in the config file to a writable location").
				Wrap(err).
				BuildError()
		}
	}
	return nil
}

// State reports whether the repository directory exists.
func (m *Manager) State() (RepoState, error) {
	return Inspect(m.repoPath)
}

// Apply carries out action. After a clone or reclone the repository
// directory must exist.
func (m *Manager) Apply(ctx context.Context, action Action) (Outcome, error) {
	out := Outcome{Action: action}

	switch action {
	case ActionKeep:
		m.logger.Info("keeping existing repository", "path", m.repoPath)
		return out, nil
	case ActionReclone:
		m.logger.Info("removing existing repository", "path", m.repoPath)
		if err := os.RemoveAll(m.repoPath); err != nil {
			return out, m.cloneError("remove repository", m.repoPath, err)
		}
	case ActionClone:
	default:
		return out, fmt.Errorf("unknown action %v", action)
	}

	m.logger.Info("cloning repository", "url", m.repository.URL, "dest", m.repoPath)
	res, err := m.cloner.Clone(ctx, CloneOptions{
		URL:        m.repository.URL,
		Dest:       m.repoPath,
		Branch:     m.repository.Branch,
		Submodules: m.repository.Submodules,
		Progress:   m.Progress,
	})
	if err != nil {
		return out, m.cloneError("clone repository", m.repository.URL, err)
	}

	info, err := os.Stat(m.repoPath)
	if err != nil || !info.IsDir() {
		return out, m.cloneError("clone repository", m.repoPath, ErrRepoMissing)
	}

	out.Head = res.Head
	m.logger.Debug("clone complete", "head", res.Head)
	return out, nil
}

func (m *Manager) cloneError(op, resource string, cause error) error {
	ctx := issue.NewErrorContext().
		WithOperation(op).
		WithResource(resource).
		WithIssue(issue.CloneFailedId)
	if IsSSHURL(m.repository.URL) {
		ctx.WithSuggestion("Add an SSH key for the Git host to ~/.ssh (id_ed25519, id_rsa or id_ecdsa)")
	} else {
		ctx.WithSuggestion("Set GITHUB_TOKEN, GITLAB_TOKEN or GIT_TOKEN if the repository is private")
	}
	ctx.WithSuggestion("Run again and choose to reclone if the previous clone was interrupted")
	return ctx.Wrap(cause).BuildError()
}
