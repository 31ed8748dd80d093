package units

import (
	"fmt"

	"github.com/picogrid/biosim/pkg/simerr"
)

// PressureUnit enumerates the supported pressure units.
type PressureUnit int

const (
	Atmosphere PressureUnit = iota
	Bar
)

var pressureOrder = []PressureUnit{Atmosphere, Bar}

// Factors are relative to one atmosphere.
var pressureUnits = map[PressureUnit]unitInfo{
	Atmosphere: {"ATMOSPHERE", "atm", 1},
	Bar:        {"BAR", "bar", 1 / 1.01325},
}

var pressureNames = map[string]PressureUnit{
	"ATMOSPHERE": Atmosphere, "ATM": Atmosphere,
	"BAR": Bar,
}

// ParsePressureUnit resolves a unit name or abbreviation.
func ParsePressureUnit(unit string) (PressureUnit, error) {
	u, ok := lookup(unit, pressureNames)
	if !ok {
		return 0, fmt.Errorf("%w: unsupported pressure unit %q, supported units are: %s",
			simerr.ErrValidation, unit, supported(pressureUnits, pressureOrder))
	}
	return u, nil
}

func (u PressureUnit) String() string {
	return pressureUnits[u].symbol
}

// Pressure is an isotropic pressure.
type Pressure struct {
	Magnitude float64
	Unit      PressureUnit
}

// NewPressure creates a pressure quantity.
func NewPressure(magnitude float64, unit PressureUnit) Pressure {
	return Pressure{Magnitude: magnitude, Unit: unit}
}

// ParsePressure parses strings such as "1 atm".
func ParsePressure(s string) (Pressure, error) {
	mag, unit, err := splitQuantity(s)
	if err != nil {
		return Pressure{}, err
	}
	u, err := ParsePressureUnit(unit)
	if err != nil {
		return Pressure{}, err
	}
	return NewPressure(mag, u), nil
}

// In returns the magnitude expressed in unit u.
func (p Pressure) In(u PressureUnit) float64 {
	return p.Magnitude * pressureUnits[p.Unit].factor / pressureUnits[u].factor
}

// To returns the same pressure expressed in unit u.
func (p Pressure) To(u PressureUnit) Pressure {
	return NewPressure(p.In(u), u)
}

func (p Pressure) Atm() float64 { return p.In(Atmosphere) }
func (p Pressure) Bar() float64 { return p.In(Bar) }

func (p Pressure) String() string {
	return formatMagnitude(p.Magnitude) + " " + p.Unit.String()
}

// MarshalText implements encoding.TextMarshaler.
func (p Pressure) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pressure) UnmarshalText(text []byte) error {
	parsed, err := ParsePressure(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
