// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

const profileMarker = "# added by rosstrap"

// AppendLineOnce appends line to the file at path unless a line with the same
// content (ignoring surrounding whitespace) is already present. A missing
// file is created. It reports whether the file was changed.
func AppendLineOnce(path, line string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	want := strings.TrimSpace(line)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), max(len(data)+1, bufio.MaxScanTokenSize))
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == want {
			return false, nil
		}
	}
	if err := sc.Err(); err != nil {
		return false, fmt.Errorf("failed to scan %s: %w", path, err)
	}

	var b strings.Builder
	if len(data) > 0 && !bytes.HasSuffix(data, []byte("\n")) {
		b.WriteString("\n")
	}
	b.WriteString(profileMarker + "\n")
	b.WriteString(want + "\n")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		_ = f.Close()
		return false, fmt.Errorf("failed to append to %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("failed to close %s: %w", path, err)
	}
	return true, nil
}
