package units

import (
	"fmt"

	"github.com/picogrid/biosim/pkg/simerr"
)

// LengthUnit enumerates the supported length units.
type LengthUnit int

const (
	Angstrom LengthUnit = iota
	Picometer
	Nanometer
)

var lengthOrder = []LengthUnit{Angstrom, Picometer, Nanometer}

// Factors are relative to one angstrom.
var lengthUnits = map[LengthUnit]unitInfo{
	Angstrom:  {"ANGSTROM", "A", 1},
	Picometer: {"PICOMETER", "pm", 0.01},
	Nanometer: {"NANOMETER", "nm", 10},
}

var lengthNames = map[string]LengthUnit{
	"ANGSTROM": Angstrom, "A": Angstrom,
	"PICOMETER": Picometer, "PM": Picometer,
	"NANOMETER": Nanometer, "NM": Nanometer,
}

// ParseLengthUnit resolves a unit name or abbreviation.
func ParseLengthUnit(unit string) (LengthUnit, error) {
	u, ok := lookup(unit, lengthNames)
	if !ok {
		return 0, fmt.Errorf("%w: unsupported length unit %q, supported units are: %s",
			simerr.ErrValidation, unit, supported(lengthUnits, lengthOrder))
	}
	return u, nil
}

func (u LengthUnit) String() string {
	return lengthUnits[u].symbol
}

// Length is a distance.
type Length struct {
	Magnitude float64
	Unit      LengthUnit
}

// NewLength creates a length quantity.
func NewLength(magnitude float64, unit LengthUnit) Length {
	return Length{Magnitude: magnitude, Unit: unit}
}

// ParseLength parses strings such as "10 angstrom".
func ParseLength(s string) (Length, error) {
	mag, unit, err := splitQuantity(s)
	if err != nil {
		return Length{}, err
	}
	u, err := ParseLengthUnit(unit)
	if err != nil {
		return Length{}, err
	}
	return NewLength(mag, u), nil
}

// In returns the magnitude expressed in unit u.
func (l Length) In(u LengthUnit) float64 {
	return l.Magnitude * lengthUnits[l.Unit].factor / lengthUnits[u].factor
}

func (l Length) Angstroms() float64  { return l.In(Angstrom) }
func (l Length) Nanometers() float64 { return l.In(Nanometer) }

func (l Length) String() string {
	return formatMagnitude(l.Magnitude) + " " + l.Unit.String()
}

// MarshalText implements encoding.TextMarshaler.
func (l Length) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Length) UnmarshalText(text []byte) error {
	parsed, err := ParseLength(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
