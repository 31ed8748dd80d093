package units

import (
	"fmt"

	"github.com/picogrid/biosim/pkg/simerr"
)

// TimeUnit enumerates the supported time units.
type TimeUnit int

const (
	Femtosecond TimeUnit = iota
	Picosecond
	Nanosecond
	Microsecond
	Millisecond
	Second
	Minute
	Hour
	Day
)

var timeOrder = []TimeUnit{Femtosecond, Picosecond, Nanosecond, Microsecond, Millisecond, Second, Minute, Hour, Day}

// Factors are relative to one nanosecond.
var timeUnits = map[TimeUnit]unitInfo{
	Femtosecond: {"FEMTOSECOND", "fs", 1e-6},
	Picosecond:  {"PICOSECOND", "ps", 1e-3},
	Nanosecond:  {"NANOSECOND", "ns", 1},
	Microsecond: {"MICROSECOND", "us", 1e3},
	Millisecond: {"MILLISECOND", "ms", 1e6},
	Second:      {"SECOND", "s", 1e9},
	Minute:      {"MINUTE", "min", 60e9},
	Hour:        {"HOUR", "h", 3600e9},
	Day:         {"DAY", "d", 86400e9},
}

var timeNames = map[string]TimeUnit{
	"FEMTOSECOND": Femtosecond, "FS": Femtosecond,
	"PICOSECOND": Picosecond, "PS": Picosecond,
	"NANOSECOND": Nanosecond, "NS": Nanosecond,
	"MICROSECOND": Microsecond, "US": Microsecond,
	"MILLISECOND": Millisecond, "MS": Millisecond,
	"SECOND": Second, "S": Second, "SEC": Second,
	"MINUTE": Minute, "MIN": Minute,
	"HOUR": Hour, "H": Hour, "HR": Hour,
	"DAY": Day, "D": Day,
}

// ParseTimeUnit resolves a unit name or abbreviation.
func ParseTimeUnit(unit string) (TimeUnit, error) {
	u, ok := lookup(unit, timeNames)
	if !ok {
		return 0, fmt.Errorf("%w: unsupported time unit %q, supported units are: %s",
			simerr.ErrValidation, unit, supported(timeUnits, timeOrder))
	}
	return u, nil
}

func (u TimeUnit) String() string {
	return timeUnits[u].symbol
}

// Time is a duration in simulation time.
type Time struct {
	Magnitude float64
	Unit      TimeUnit
}

// NewTime creates a time quantity.
func NewTime(magnitude float64, unit TimeUnit) Time {
	return Time{Magnitude: magnitude, Unit: unit}
}

// ParseTime parses strings such as "2 fs" or "0.2 nanoseconds".
func ParseTime(s string) (Time, error) {
	mag, unit, err := splitQuantity(s)
	if err != nil {
		return Time{}, err
	}
	u, err := ParseTimeUnit(unit)
	if err != nil {
		return Time{}, err
	}
	return NewTime(mag, u), nil
}

// In returns the magnitude expressed in unit u.
func (t Time) In(u TimeUnit) float64 {
	return t.Magnitude * timeUnits[t.Unit].factor / timeUnits[u].factor
}

// To returns the same time expressed in unit u.
func (t Time) To(u TimeUnit) Time {
	return NewTime(t.In(u), u)
}

func (t Time) Femtoseconds() float64 { return t.In(Femtosecond) }
func (t Time) Picoseconds() float64  { return t.In(Picosecond) }
func (t Time) Nanoseconds() float64  { return t.In(Nanosecond) }

// IsZero reports whether the time is unset.
func (t Time) IsZero() bool {
	return t.Magnitude == 0
}

func (t Time) String() string {
	return formatMagnitude(t.Magnitude) + " " + t.Unit.String()
}

// MarshalText implements encoding.TextMarshaler.
func (t Time) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Time) UnmarshalText(text []byte) error {
	parsed, err := ParseTime(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
