// Package results reads simulation output while it is still being written.
//
// Log files are followed incrementally: each read parses only the complete
// lines appended since the previous read. Missing or partially written files
// mean "nothing yet", never an error.
package results

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/picogrid/biosim/pkg/simerr"
)

// Tail follows an append-only text file.
type Tail struct {
	path   string
	offset int64
}

// NewTail returns a Tail positioned at the start of path.
func NewTail(path string) *Tail {
	return &Tail{path: path}
}

// Path returns the followed file.
func (t *Tail) Path() string { return t.path }

// Lines returns the complete lines appended since the last call, without
// their newlines. reset is true when the file shrank since the last call, in
// which case reading restarted from the beginning and any state built from
// earlier lines is stale.
func (t *Tail) Lines() (lines []string, reset bool, err error) {
	f, err := os.Open(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", simerr.ErrIO, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", simerr.ErrIO, err)
	}
	if st.Size() < t.offset {
		t.offset = 0
		reset = true
	}
	if st.Size() == t.offset {
		return nil, reset, nil
	}

	buf := make([]byte, st.Size()-t.offset)
	n, err := f.ReadAt(buf, t.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, reset, fmt.Errorf("%w: %v", simerr.ErrIO, err)
	}
	buf = buf[:n]

	end := bytes.LastIndexByte(buf, '\n')
	if end < 0 {
		return nil, reset, nil
	}
	t.offset += int64(end + 1)
	for _, line := range bytes.Split(buf[:end], []byte{'\n'}) {
		lines = append(lines, string(bytes.TrimRight(line, "\r")))
	}
	return lines, reset, nil
}
