package logger

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// Icons and symbols for different log types
const (
	IconSuccess = "✅"
	IconError   = "❌"
	IconWarning = "⚠️"
	IconRocket  = "🚀"
	IconConfig  = "⚙️"
	IconTime    = "⏱️"
	IconFolder  = "📁"
	IconFile    = "📄"
	IconRefresh = "🔄"
	IconCheck   = "✓"
	IconCross   = "✗"
	IconDot     = "•"
	IconArrow   = "→"
)

var (
	sectionColor    = color.New(color.FgCyan)
	sectionBold     = color.New(color.FgCyan, color.Bold)
	subsectionColor = color.New(color.FgHiBlack)
	keyColor        = color.New(color.FgCyan)
)

// Success logs a success message with a green checkmark
func Success(args ...interface{}) {
	defaultLogger.Info(IconSuccess + " " + fmt.Sprint(args...))
}

// Successf logs a formatted success message
func Successf(format string, args ...interface{}) {
	Success(fmt.Sprintf(format, args...))
}

// Progress logs a progress message with a refresh icon
func Progress(args ...interface{}) {
	defaultLogger.Info(IconRefresh + " " + fmt.Sprint(args...))
}

// Progressf logs a formatted progress message
func Progressf(format string, args ...interface{}) {
	Progress(fmt.Sprintf(format, args...))
}

// Launch logs an engine launch with a rocket
func Launch(args ...interface{}) {
	defaultLogger.Info(IconRocket + " " + fmt.Sprint(args...))
}

// Launchf logs a formatted launch message
func Launchf(format string, args ...interface{}) {
	Launch(fmt.Sprintf(format, args...))
}

// LogSection creates a visual section separator
func LogSection(title string) {
	line := strings.Repeat("=", 50)
	noColor := !colorEnabled()
	w := Writer()
	fmt.Fprintln(w, paint(sectionColor, noColor, line))
	fmt.Fprintln(w, paint(sectionBold, noColor, title))
	fmt.Fprintln(w, paint(sectionColor, noColor, line))
}

// LogSubSection creates a visual subsection separator
func LogSubSection(title string) {
	line := strings.Repeat("-", 40)
	noColor := !colorEnabled()
	w := Writer()
	fmt.Fprintln(w, paint(subsectionColor, noColor, line))
	fmt.Fprintln(w, paint(subsectionColor, noColor, title))
	fmt.Fprintln(w, paint(subsectionColor, noColor, line))
}

// LogList logs a list of items with bullets
func LogList(title string, items []string) {
	Info(title)
	w := Writer()
	for _, item := range items {
		fmt.Fprintf(w, "  %s %s\n", IconDot, item)
	}
}

// LogKeyValue logs a key-value pair with nice formatting
func LogKeyValue(key string, value interface{}) {
	fmt.Fprintf(Writer(), "%s %v\n", paint(keyColor, !colorEnabled(), key+":"), value)
}

// LogKeyValues logs multiple key-value pairs, sorted by key
func LogKeyValues(pairs map[string]interface{}) {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		LogKeyValue(k, pairs[k])
	}
}

// Table represents a simple table for logging
type Table struct {
	headers []string
	rows    [][]string
}

// NewTable creates a new table
func NewTable(headers ...string) *Table {
	return &Table{
		headers: headers,
		rows:    [][]string{},
	}
}

// AddRow adds a row to the table
func (t *Table) AddRow(values ...string) {
	t.rows = append(t.rows, values)
}

// Len returns the number of rows
func (t *Table) Len() int { return len(t.rows) }

// Print prints the table to the default logger's writer
func (t *Table) Print() {
	t.Render(Writer())
}

// Render writes the table to w
func (t *Table) Render(w io.Writer) {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	line := func(cells []string) {
		var b strings.Builder
		for i, cell := range cells {
			if i < len(widths) {
				fmt.Fprintf(&b, "%-*s  ", widths[i], cell)
			}
		}
		fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
	}

	line(t.headers)
	sep := make([]string, len(widths))
	for i, n := range widths {
		sep[i] = strings.Repeat("-", n)
	}
	line(sep)
	for _, row := range t.rows {
		line(row)
	}
}
