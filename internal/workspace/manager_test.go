// SPDX-License-Identifier: MPL-2.0

package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rosstrap/rosstrap/internal/config"
	"github.com/rosstrap/rosstrap/internal/issue"
)

// fakeCloner writes a marker file instead of cloning.
type fakeCloner struct {
	calls  []CloneOptions
	err    error
	noDir  bool
	marker string
}

func (f *fakeCloner) Clone(_ context.Context, opts CloneOptions) (CloneResult, error) {
	f.calls = append(f.calls, opts)
	if f.err != nil {
		return CloneResult{}, f.err
	}
	if f.noDir {
		return CloneResult{Head: "deadbeef"}, nil
	}
	if err := os.MkdirAll(opts.Dest, 0o755); err != nil {
		return CloneResult{}, err
	}
	name := f.marker
	if name == "" {
		name = "README.md"
	}
	if err := os.WriteFile(filepath.Join(opts.Dest, name), []byte("fresh\n"), 0o644); err != nil {
		return CloneResult{}, err
	}
	return CloneResult{Head: "deadbeef"}, nil
}

func newTestManager(t *testing.T, cloner Cloner) (*Manager, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Workspace.Root = filepath.Join(t.TempDir(), "robot_ws")
	cfg.Repository.Branch = "main"
	return NewManager(cfg, cloner, nil), cfg
}

func TestManager_EnsureRoot(t *testing.T) {
	t.Parallel()

	m, cfg := newTestManager(t, &fakeCloner{})
	if err := m.EnsureRoot(); err != nil {
		t.Fatalf("EnsureRoot() error = %v", err)
	}
	for _, dir := range []string{cfg.Workspace.Root, cfg.LogDir()} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s not created (err=%v)", dir, err)
		}
	}
	// Second call is a no-op.
	if err := m.EnsureRoot(); err != nil {
		t.Fatalf("second EnsureRoot() error = %v", err)
	}
}

func TestManager_EnsureRoot_Fails(t *testing.T) {
	t.Parallel()

	parent := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(parent, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.DefaultConfig()
	cfg.Workspace.Root = filepath.Join(parent, "robot_ws")
	m := NewManager(cfg, &fakeCloner{}, nil)

	err := m.EnsureRoot()
	if err == nil {
		t.Fatal("EnsureRoot() error = nil, want error")
	}
	if iss := issue.FindIssue(err); iss == nil || iss.Id() != issue.WorkspaceCreateFailedId {
		t.Errorf("FindIssue() = %v, want WorkspaceCreateFailedId", iss)
	}
}

func TestManager_Apply_Clone(t *testing.T) {
	t.Parallel()

	fc := &fakeCloner{}
	m, cfg := newTestManager(t, fc)

	state, err := m.State()
	if err != nil || state != RepoAbsent {
		t.Fatalf("State() = %v, %v; want absent", state, err)
	}

	out, err := m.Apply(t.Context(), Decide(state, ChoiceKeep))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if out.Action != ActionClone || out.Head != "deadbeef" {
		t.Errorf("outcome = %+v", out)
	}
	if len(fc.calls) != 1 {
		t.Fatalf("clone calls = %d, want 1", len(fc.calls))
	}
	got := fc.calls[0]
	if got.URL != cfg.Repository.URL || got.Dest != cfg.RepoPath() || got.Branch != "main" {
		t.Errorf("clone options = %+v", got)
	}
	if state, _ := m.State(); state != RepoPresent {
		t.Errorf("State() after clone = %v, want present", state)
	}
}

func TestManager_Apply_Keep(t *testing.T) {
	t.Parallel()

	fc := &fakeCloner{}
	m, cfg := newTestManager(t, fc)
	old := filepath.Join(cfg.RepoPath(), "local_change.txt")
	if err := os.MkdirAll(cfg.RepoPath(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(old, []byte("mine\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := m.Apply(t.Context(), Decide(RepoPresent, ChoiceKeep))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if out.Action != ActionKeep || out.Head != "" {
		t.Errorf("outcome = %+v", out)
	}
	if len(fc.calls) != 0 {
		t.Errorf("clone ran for keep")
	}
	if _, err := os.Stat(old); err != nil {
		t.Errorf("existing file removed: %v", err)
	}
}

func TestManager_Apply_RecloneRemovesOldArtifacts(t *testing.T) {
	t.Parallel()

	fc := &fakeCloner{marker: "FRESH"}
	m, cfg := newTestManager(t, fc)

	stale := filepath.Join(cfg.RepoPath(), "build", "stale.o")
	if err := os.MkdirAll(filepath.Dir(stale), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Apply(t.Context(), Decide(RepoPresent, ChoiceReclone)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(cfg.RepoPath(), "build")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("old artifacts remain (err=%v)", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.RepoPath(), "FRESH")); err != nil {
		t.Errorf("fresh clone missing: %v", err)
	}
	entries, err := os.ReadDir(cfg.RepoPath())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("repository entries = %d, want only the fresh clone", len(entries))
	}
}

func TestManager_Apply_Failures(t *testing.T) {
	t.Parallel()

	cloneErr := errors.New("authentication required")
	tests := []struct {
		name    string
		cloner  *fakeCloner
		wantErr error
	}{
		{name: "clone fails", cloner: &fakeCloner{err: cloneErr}, wantErr: cloneErr},
		{name: "directory missing after clone", cloner: &fakeCloner{noDir: true}, wantErr: ErrRepoMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, _ := newTestManager(t, tt.cloner)
			_, err := m.Apply(t.Context(), ActionClone)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Apply() error = %v, want %v", err, tt.wantErr)
			}
			if iss := issue.FindIssue(err); iss == nil || iss.Id() != issue.CloneFailedId {
				t.Errorf("FindIssue() = %v, want CloneFailedId", iss)
			}
		})
	}
}
