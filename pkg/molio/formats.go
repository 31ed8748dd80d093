// Package molio reads and writes molecular structure files.
//
// The set of supported formats is read once from a parser listing by Init
// (or InitDefault) before any other function is used.
package molio

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/picogrid/biosim/pkg/simerr"
)

//go:embed formats.txt
var defaultListing string

// ErrNotInitialized is returned when the format table is used before Init.
var ErrNotInitialized = errors.New("molio: format table not initialized, call molio.Init first")

// Format describes a supported file format.
type Format struct {
	Name        string
	Extensions  []string
	Description string
}

type formatTable struct {
	order  []Format
	byKey  map[string]Format
	byExtn map[string]Format
}

var (
	initOnce sync.Once
	table    *formatTable
	initErr  error
)

// Init parses the parser listing and installs the process-wide format table.
// Only the first call has any effect; later calls return the first result.
func Init(listing io.Reader) error {
	initOnce.Do(func() {
		table, initErr = parseListing(listing)
	})
	return initErr
}

// InitDefault initializes the format table from the bundled listing.
func InitDefault() error {
	return Init(strings.NewReader(defaultListing))
}

func formatKey(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), ""))
}

// parseListing reads blocks of the form
//
//	## Parser <name> ##
//	Supports files: <ext> <ext> ...
//	<description>
func parseListing(r io.Reader) (*formatTable, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read format listing: %w", err)
	}

	t := &formatTable{
		byKey:  make(map[string]Format),
		byExtn: make(map[string]Format),
	}
	for i, line := range lines {
		if !strings.Contains(line, "Parser") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 || i+2 >= len(lines) {
			return nil, fmt.Errorf("malformed format listing at line %d: %q", i+1, line)
		}
		name := fields[2]
		if name == "SUPPLEMENTARY" {
			continue
		}
		exts := strings.Fields(strings.ReplaceAll(strings.TrimPrefix(lines[i+1], "Supports files:"), ",", " "))
		f := Format{Name: name, Extensions: exts, Description: strings.TrimSpace(lines[i+2])}
		t.order = append(t.order, f)
		t.byKey[formatKey(name)] = f
		for _, ext := range exts {
			t.byExtn[strings.ToLower(ext)] = f
		}
	}
	if len(t.order) == 0 {
		return nil, fmt.Errorf("format listing contains no parsers")
	}
	return t, nil
}

// Formats returns the supported formats in listing order.
func Formats() ([]Format, error) {
	if table == nil {
		return nil, ErrNotInitialized
	}
	return append([]Format(nil), table.order...), nil
}

// FormatInfo looks up a format by name. Matching ignores case and spaces.
func FormatInfo(name string) (Format, error) {
	if table == nil {
		return Format{}, ErrNotInitialized
	}
	f, ok := table.byKey[formatKey(name)]
	if !ok {
		return Format{}, fmt.Errorf("%w: unsupported file format %q, supported formats are: %s",
			simerr.ErrValidation, name, strings.Join(formatNames(), ", "))
	}
	return f, nil
}

// FormatForExtension looks up a format by file extension, with or without
// the leading dot.
func FormatForExtension(ext string) (Format, error) {
	if table == nil {
		return Format{}, ErrNotInitialized
	}
	f, ok := table.byExtn[strings.ToLower(strings.TrimPrefix(ext, "."))]
	if !ok {
		return Format{}, fmt.Errorf("%w: unrecognised file extension %q", simerr.ErrValidation, ext)
	}
	return f, nil
}

func formatForPath(path string) (Format, error) {
	f, err := FormatForExtension(filepath.Ext(path))
	if err != nil {
		return Format{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func formatNames() []string {
	names := make([]string, 0, len(table.order))
	for _, f := range table.order {
		names = append(names, f.Name)
	}
	return names
}
