package units

import (
	"fmt"

	"github.com/picogrid/biosim/pkg/simerr"
)

// TemperatureUnit enumerates the supported temperature scales.
type TemperatureUnit int

const (
	Kelvin TemperatureUnit = iota
	Celsius
	Fahrenheit
)

var temperatureOrder = []TemperatureUnit{Kelvin, Celsius, Fahrenheit}

// Temperature scales are affine, so factor is unused here; see toKelvin.
var temperatureUnits = map[TemperatureUnit]unitInfo{
	Kelvin:     {"KELVIN", "K", 1},
	Celsius:    {"CELSIUS", "C", 1},
	Fahrenheit: {"FAHRENHEIT", "F", 5.0 / 9.0},
}

var temperatureNames = map[string]TemperatureUnit{
	"KELVIN": Kelvin, "K": Kelvin,
	"CELSIUS": Celsius, "C": Celsius, "CENTIGRADE": Celsius,
	"FAHRENHEIT": Fahrenheit, "F": Fahrenheit,
}

// ParseTemperatureUnit resolves a unit name or abbreviation.
func ParseTemperatureUnit(unit string) (TemperatureUnit, error) {
	u, ok := lookup(unit, temperatureNames)
	if !ok {
		return 0, fmt.Errorf("%w: unsupported temperature unit %q, supported units are: %s",
			simerr.ErrValidation, unit, supported(temperatureUnits, temperatureOrder))
	}
	return u, nil
}

func (u TemperatureUnit) String() string {
	return temperatureUnits[u].symbol
}

// Temperature is an absolute temperature. It can never be below absolute zero.
type Temperature struct {
	Magnitude float64
	Unit      TemperatureUnit
}

// NewTemperature creates a temperature, rejecting values below 0 K.
func NewTemperature(magnitude float64, unit TemperatureUnit) (Temperature, error) {
	t := Temperature{Magnitude: magnitude, Unit: unit}
	if t.Kelvin() < 0 {
		return Temperature{}, fmt.Errorf("%w: the temperature cannot be less than absolute zero (0 Kelvin), got %s",
			simerr.ErrValidation, t)
	}
	return t, nil
}

// MustTemperature is NewTemperature for values known to be valid.
func MustTemperature(magnitude float64, unit TemperatureUnit) Temperature {
	t, err := NewTemperature(magnitude, unit)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseTemperature parses strings such as "300 K" or "25 degrees celsius".
func ParseTemperature(s string) (Temperature, error) {
	mag, unit, err := splitQuantity(s)
	if err != nil {
		return Temperature{}, err
	}
	u, err := ParseTemperatureUnit(unit)
	if err != nil {
		return Temperature{}, err
	}
	return NewTemperature(mag, u)
}

func toKelvin(m float64, u TemperatureUnit) float64 {
	switch u {
	case Celsius:
		return m + 273.15
	case Fahrenheit:
		return (m-32)*temperatureUnits[Fahrenheit].factor + 273.15
	default:
		return m
	}
}

func fromKelvin(k float64, u TemperatureUnit) float64 {
	switch u {
	case Celsius:
		return k - 273.15
	case Fahrenheit:
		return (k-273.15)/temperatureUnits[Fahrenheit].factor + 32
	default:
		return k
	}
}

// In returns the magnitude expressed in unit u.
func (t Temperature) In(u TemperatureUnit) float64 {
	return fromKelvin(toKelvin(t.Magnitude, t.Unit), u)
}

// To returns the same temperature expressed in unit u.
func (t Temperature) To(u TemperatureUnit) Temperature {
	return Temperature{Magnitude: t.In(u), Unit: u}
}

func (t Temperature) Kelvin() float64     { return t.In(Kelvin) }
func (t Temperature) Celsius() float64    { return t.In(Celsius) }
func (t Temperature) Fahrenheit() float64 { return t.In(Fahrenheit) }

func (t Temperature) String() string {
	return formatMagnitude(t.Magnitude) + " " + t.Unit.String()
}

// absolute rejects arithmetic on offset scales, where adding or scaling a
// magnitude has no single meaning.
func (t Temperature) absolute(op string) error {
	if t.Unit != Kelvin {
		return fmt.Errorf("%w: ambiguous %s with offset unit %s, convert to kelvin first",
			simerr.ErrValidation, op, t.Unit)
	}
	return nil
}

// Add returns t + other. The receiver must be in kelvin; other may be in
// any unit and is converted first.
func (t Temperature) Add(other Temperature) (Temperature, error) {
	if err := t.absolute("addition"); err != nil {
		return Temperature{}, err
	}
	return NewTemperature(t.Magnitude+other.Kelvin(), Kelvin)
}

// Sub returns t - other under the same rules as Add.
func (t Temperature) Sub(other Temperature) (Temperature, error) {
	if err := t.absolute("subtraction"); err != nil {
		return Temperature{}, err
	}
	return NewTemperature(t.Magnitude-other.Kelvin(), Kelvin)
}

// Scale multiplies a kelvin temperature by f.
func (t Temperature) Scale(f float64) (Temperature, error) {
	if err := t.absolute("scaling"); err != nil {
		return Temperature{}, err
	}
	return NewTemperature(t.Magnitude*f, Kelvin)
}

// MarshalText implements encoding.TextMarshaler.
func (t Temperature) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Temperature) UnmarshalText(text []byte) error {
	parsed, err := ParseTemperature(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
