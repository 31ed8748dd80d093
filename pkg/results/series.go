package results

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/picogrid/biosim/pkg/simerr"
)

// LineParser extracts a value from one log line. ok is false for lines that
// carry no value, such as comments.
type LineParser func(line string) (value float64, ok bool, err error)

// Series is a cached time series of values parsed from an append-only log.
type Series struct {
	mu     sync.Mutex
	tail   *Tail
	parse  LineParser
	values []float64
}

// NewSeries follows path, parsing each new line with parse.
func NewSeries(path string, parse LineParser) *Series {
	return &Series{tail: NewTail(path), parse: parse}
}

// NewGradientSeries follows a free-energy gradient file: lines starting with
// '#' are comments and the gradient is the last column.
func NewGradientSeries(path string) *Series {
	return NewSeries(path, LastColumn)
}

// LastColumn parses the last whitespace-separated field of non-comment lines.
func LastColumn(line string) (float64, bool, error) {
	if strings.HasPrefix(line, "#") {
		return 0, false, nil
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(fields[len(fields)-1], 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: invalid value in line %q", simerr.ErrIO, line)
	}
	return v, true, nil
}

// update parses the new lines as one batch. On a parse error neither the
// values nor the tail offset move, so the batch is retried on the next read.
func (s *Series) update() error {
	mark := s.tail.offset
	lines, reset, err := s.tail.Lines()
	if err != nil {
		return err
	}
	var batch []float64
	for _, line := range lines {
		v, ok, err := s.parse(line)
		if err != nil {
			s.tail.offset = mark
			return err
		}
		if ok {
			batch = append(batch, v)
		}
	}
	if reset {
		s.values = nil
	}
	s.values = append(s.values, batch...)
	return nil
}

// Values returns every value recorded so far.
func (s *Series) Values() ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.update(); err != nil {
		return nil, err
	}
	return append([]float64(nil), s.values...), nil
}

// Last returns the most recent value. ok is false when nothing has been
// recorded yet.
func (s *Series) Last() (value float64, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.update(); err != nil {
		return 0, false, err
	}
	if len(s.values) == 0 {
		return 0, false, nil
	}
	return s.values[len(s.values)-1], true, nil
}
