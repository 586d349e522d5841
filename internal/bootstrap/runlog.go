// SPDX-License-Identifier: MPL-2.0

package bootstrap

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// LogFileName is the bootstrap log inside the workspace log directory.
const LogFileName = "bootstrap.log"

// RunLog is an io.Writer for the bootstrap log. The workspace does not exist
// when logging starts, so output is buffered until Attach opens the log file.
type RunLog struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	file *os.File
}

// NewRunLog creates a detached RunLog.
func NewRunLog() *RunLog {
	return &RunLog{}
}

// Write implements io.Writer.
func (l *RunLog) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return l.file.Write(p)
	}
	return l.buf.Write(p)
}

// Attach opens dir/bootstrap.log for appending and flushes buffered output
// into it. Attaching twice is a no-op.
func (l *RunLog) Attach(dir string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return nil
	}

	path := filepath.Join(dir, LogFileName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log %s: %w", path, err)
	}
	if _, err := l.buf.WriteTo(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write log %s: %w", path, err)
	}
	l.file = f
	return nil
}

// Path returns the attached log file path, or "" when detached.
func (l *RunLog) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Close closes the log file.
func (l *RunLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
