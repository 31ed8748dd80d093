// Package units provides the unit-typed quantities used when translating
// protocols into engine configuration: time, temperature, pressure and length.
//
// Each dimension has an enumeration of supported units, a table keyed by that
// enumeration, and an abbreviation table. All textual unit names go through
// the same normalize function before lookup.
package units

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/picogrid/biosim/pkg/simerr"
)

// unitInfo describes a unit relative to the base unit of its dimension.
type unitInfo struct {
	name   string
	symbol string
	factor float64
}

var quantityPattern = regexp.MustCompile(`^\s*([-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?)\s*(.*?)\s*$`)

// normalize canonicalizes a unit string: whitespace is removed, the result is
// upper-cased and any DEGREES/DEGREE/DEGS/DEG qualifier is stripped.
func normalize(unit string) string {
	unit = strings.ToUpper(strings.Join(strings.Fields(unit), ""))
	for _, deg := range []string{"DEGREES", "DEGREE", "DEGS", "DEG"} {
		unit = strings.ReplaceAll(unit, deg, "")
	}
	return unit
}

// lookup resolves a unit string against an abbreviation table, accepting a
// trailing plural "S" on full unit names.
func lookup[U comparable](unit string, names map[string]U) (U, bool) {
	key := normalize(unit)
	if u, ok := names[key]; ok {
		return u, true
	}
	if len(key) > 1 && strings.HasSuffix(key, "S") {
		if u, ok := names[strings.TrimSuffix(key, "S")]; ok {
			return u, true
		}
	}
	var zero U
	return zero, false
}

// splitQuantity splits "<magnitude> <unit>" into its parts.
func splitQuantity(s string) (float64, string, error) {
	m := quantityPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, "", fmt.Errorf("%w: could not parse quantity %q", simerr.ErrValidation, s)
	}
	mag, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: invalid magnitude in %q", simerr.ErrValidation, s)
	}
	if m[2] == "" {
		return 0, "", fmt.Errorf("%w: missing unit in %q", simerr.ErrValidation, s)
	}
	return mag, m[2], nil
}

func formatMagnitude(m float64) string {
	return strconv.FormatFloat(m, 'g', -1, 64)
}

func supported[U comparable](table map[U]unitInfo, order []U) string {
	names := make([]string, 0, len(order))
	for _, u := range order {
		names = append(names, table[u].name)
	}
	return strings.Join(names, ", ")
}
