// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"
	"testing"
)

func allIds() []Id {
	return []Id{
		InsufficientDiskId,
		PackageInstallFailedId,
		RuntimeInstallFailedId,
		WorkspaceCreateFailedId,
		CloneFailedId,
		ImagePullFailedId,
		ScriptWriteFailedId,
		GuideWriteFailedId,
		PermissionDeniedId,
		ConfigLoadFailedId,
	}
}

func TestId_Constants(t *testing.T) {
	seen := make(map[Id]bool)
	for _, id := range allIds() {
		if seen[id] {
			t.Errorf("duplicate ID: %d", id)
		}
		seen[id] = true
	}

	// IDs start at 1 so the zero value means "no issue".
	if InsufficientDiskId != 1 {
		t.Errorf("InsufficientDiskId = %d, want 1", InsufficientDiskId)
	}
}

func TestGet(t *testing.T) {
	tests := []struct {
		id       Id
		wantNil  bool
		contains string
	}{
		{InsufficientDiskId, false, "Not enough free disk space"},
		{PackageInstallFailedId, false, "System package installation failed"},
		{RuntimeInstallFailedId, false, "Container runtime installation failed"},
		{WorkspaceCreateFailedId, false, "Workspace directory could not be created"},
		{CloneFailedId, false, "Repository clone failed"},
		{ImagePullFailedId, false, "Image pull failed"},
		{ScriptWriteFailedId, false, "Wrapper scripts could not be written"},
		{GuideWriteFailedId, false, "Quick-start guide could not be written"},
		{PermissionDeniedId, false, "Permission denied"},
		{ConfigLoadFailedId, false, "Failed to load configuration"},
		{Id(9999), true, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.contains, func(t *testing.T) {
			iss := Get(tt.id)

			if tt.wantNil {
				if iss != nil {
					t.Errorf("Get(%d) should return nil", tt.id)
				}
				return
			}

			if iss == nil {
				t.Fatalf("Get(%d) returned nil", tt.id)
			}
			if iss.Id() != tt.id {
				t.Errorf("Get(%d).Id() = %d", tt.id, iss.Id())
			}
			if !strings.Contains(string(iss.MarkdownMsg()), tt.contains) {
				t.Errorf("Get(%d).MarkdownMsg() should contain %q", tt.id, tt.contains)
			}
		})
	}
}

func TestValues(t *testing.T) {
	values := Values()

	if len(values) != len(allIds()) {
		t.Fatalf("Values() returned %d issues, want %d", len(values), len(allIds()))
	}

	for i, iss := range values {
		if iss.Id() == 0 {
			t.Error("found issue with ID 0")
		}
		if i > 0 && values[i-1].Id() >= iss.Id() {
			t.Errorf("Values() not ordered by Id at index %d", i)
		}
		if iss.MarkdownMsg() == "" {
			t.Errorf("Issue %d has empty MarkdownMsg", iss.Id())
		}
	}
}

func TestIssue_LinksAreCloned(t *testing.T) {
	iss := Get(RuntimeInstallFailedId)
	links := iss.DocLinks()
	if len(links) == 0 {
		t.Fatal("expected doc links on the runtime install issue")
	}

	original := links[0]
	links[0] = "modified"
	if iss.DocLinks()[0] != original {
		t.Error("DocLinks() should return a clone")
	}

	ext := Get(InsufficientDiskId).ExtLinks()
	ext[0] = "modified"
	if Get(InsufficientDiskId).ExtLinks()[0] == "modified" {
		t.Error("ExtLinks() should return a clone")
	}
}

func TestIssue_Render(t *testing.T) {
	originalRender := render
	defer func() { render = originalRender }()

	render = func(in string, stylePath string) (string, error) {
		return in, nil
	}

	tests := []struct {
		name      string
		issue     *Issue
		wantLinks bool
	}{
		{
			name:      "with links",
			issue:     &Issue{id: Id(9999), mdMsg: "# Test", docLinks: []HttpLink{"https://docs.example.com"}, extLinks: []HttpLink{"https://external.example.com"}},
			wantLinks: true,
		},
		{
			name:  "no links",
			issue: &Issue{id: Id(9998), mdMsg: "# Test"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rendered, err := tt.issue.Render("")
			if err != nil {
				t.Fatalf("Render() returned error: %v", err)
			}
			if got := strings.Contains(rendered, "See also"); got != tt.wantLinks {
				t.Errorf("Render() contains 'See also' = %v, want %v\n%s", got, tt.wantLinks, rendered)
			}
			if tt.wantLinks && !strings.Contains(rendered, "- https://external.example.com") {
				t.Errorf("Render() should list links as bullets\n%s", rendered)
			}
		})
	}
}

func TestAllIssuesAreRenderable(t *testing.T) {
	for _, iss := range Values() {
		if _, err := iss.Render("notty"); err != nil {
			t.Errorf("Issue %d failed to render: %v", iss.Id(), err)
		}
	}
}
