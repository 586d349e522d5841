// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAppendLineOnce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		existing  *string
		wantAdded bool
		want      string
	}{
		{
			name:      "missing file",
			wantAdded: true,
			want:      "# added by rosstrap\nexport DISPLAY=:0\n",
		},
		{
			name:      "empty file",
			existing:  strPtr(""),
			wantAdded: true,
			want:      "# added by rosstrap\nexport DISPLAY=:0\n",
		},
		{
			name:      "no trailing newline",
			existing:  strPtr("alias ll='ls -l'"),
			wantAdded: true,
			want:      "alias ll='ls -l'\n# added by rosstrap\nexport DISPLAY=:0\n",
		},
		{
			name:     "already present",
			existing: strPtr("export PATH=$PATH:~/bin\n  export DISPLAY=:0  \n"),
			want:     "export PATH=$PATH:~/bin\n  export DISPLAY=:0  \n",
		},
		{
			name:      "different display value",
			existing:  strPtr("export DISPLAY=:1\n"),
			wantAdded: true,
			want:      "export DISPLAY=:1\n# added by rosstrap\nexport DISPLAY=:0\n",
		},
		{
			name:     "present after a long line",
			existing: strPtr("export LONG=" + strings.Repeat("x", 100*1024) + "\nexport DISPLAY=:0\n"),
			want:     "export LONG=" + strings.Repeat("x", 100*1024) + "\nexport DISPLAY=:0\n",
		},
		{
			name:      "commented out",
			existing:  strPtr("# export DISPLAY=:0\n"),
			wantAdded: true,
			want:      "# export DISPLAY=:0\n# added by rosstrap\nexport DISPLAY=:0\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), ".bashrc")
			if tt.existing != nil {
				if err := os.WriteFile(path, []byte(*tt.existing), 0o644); err != nil {
					t.Fatal(err)
				}
			}

			added, err := AppendLineOnce(path, "export DISPLAY=:0")
			if err != nil {
				t.Fatalf("AppendLineOnce() error = %v", err)
			}
			if added != tt.wantAdded {
				t.Errorf("added = %v, want %v", added, tt.wantAdded)
			}
			got, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.want {
				t.Errorf("content = %q, want %q", got, tt.want)
			}
		})
	}
}

func strPtr(s string) *string { return &s }
