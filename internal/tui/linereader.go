// SPDX-License-Identifier: MPL-2.0

package tui

import (
	"bufio"
	"io"
)

// lineReader hands out at most one line per Read. huh reads accessible
// answers through a fresh bufio.Scanner per prompt, which would otherwise
// buffer the answers meant for later prompts.
type lineReader struct {
	r       *bufio.Reader
	pending []byte
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReader(r)}
}

func (l *lineReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(l.pending) == 0 {
		line, err := l.r.ReadSlice('\n')
		if len(line) == 0 {
			if err == bufio.ErrBufferFull {
				err = nil
			}
			return 0, err
		}
		l.pending = append(l.pending[:0], line...)
	}
	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}
