// Package protocol describes what a simulation should do, independently of
// the engine that runs it.
package protocol

import (
	"fmt"
	"math"
	"strings"

	"github.com/picogrid/biosim/pkg/simerr"
	"github.com/picogrid/biosim/pkg/units"
)

// Kind names a protocol variant.
type Kind string

const (
	KindMinimisation  Kind = "minimisation"
	KindEquilibration Kind = "equilibration"
	KindProduction    Kind = "production"
	KindFreeEnergy    Kind = "free_energy"
	KindCustom        Kind = "custom"
)

// Kinds lists every protocol variant.
var Kinds = []Kind{KindMinimisation, KindEquilibration, KindProduction, KindFreeEnergy, KindCustom}

// ParseKind accepts kind names regardless of case, separators and the
// American spelling of minimisation.
func ParseKind(s string) (Kind, error) {
	key := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(s))
	switch key {
	case "minimisation", "minimization", "min":
		return KindMinimisation, nil
	case "equilibration", "equil":
		return KindEquilibration, nil
	case "production", "prod":
		return KindProduction, nil
	case "freeenergy", "fep":
		return KindFreeEnergy, nil
	case "custom":
		return KindCustom, nil
	}
	return "", fmt.Errorf("%w: unknown protocol %q", simerr.ErrUnsupportedProtocol, s)
}

// Protocol is implemented by *Minimisation, *Equilibration, *Production,
// *FreeEnergy and *Custom. Engines type-switch over these.
type Protocol interface {
	Kind() Kind
	Validate() error
	// IsCustomised reports whether the generated engine config was replaced
	// by hand.
	IsCustomised() bool
	SetCustomised(bool)

	sealed()
}

type base struct {
	customised bool
}

func (b *base) IsCustomised() bool   { return b.customised }
func (b *base) SetCustomised(c bool) { b.customised = c }
func (b *base) sealed()              {}

// Restraint selects which atoms are held during equilibration.
type Restraint string

const (
	RestraintNone     Restraint = "none"
	RestraintBackbone Restraint = "backbone"
	RestraintHeavy    Restraint = "heavy"
	RestraintAll      Restraint = "all"
)

func (r Restraint) valid() bool {
	switch r {
	case "", RestraintNone, RestraintBackbone, RestraintHeavy, RestraintAll:
		return true
	}
	return false
}

// Minimisation is an energy minimisation.
type Minimisation struct {
	base  `yaml:"-" mapstructure:"-"`
	Steps int `yaml:"steps" mapstructure:"steps"`
}

// NewMinimisation returns a minimisation protocol with default settings.
func NewMinimisation() *Minimisation {
	return &Minimisation{Steps: 10000}
}

func (p *Minimisation) Kind() Kind { return KindMinimisation }

func (p *Minimisation) Validate() error {
	if p.Steps <= 0 {
		return invalid("steps must be positive, got %d", p.Steps)
	}
	return nil
}

// Equilibration heats or equilibrates a system, optionally with restraints.
type Equilibration struct {
	base             `yaml:"-" mapstructure:"-"`
	Timestep         units.Time        `yaml:"timestep" mapstructure:"timestep"`
	Runtime          units.Time        `yaml:"runtime" mapstructure:"runtime"`
	TemperatureStart units.Temperature `yaml:"temperature_start" mapstructure:"temperature_start"`
	TemperatureEnd   units.Temperature `yaml:"temperature_end" mapstructure:"temperature_end"`
	// Pressure is nil for constant volume.
	Pressure  *units.Pressure `yaml:"pressure" mapstructure:"pressure"`
	Frames    int             `yaml:"frames" mapstructure:"frames"`
	Restraint Restraint       `yaml:"restraint" mapstructure:"restraint"`
}

// NewEquilibration returns an equilibration protocol with default settings.
func NewEquilibration() *Equilibration {
	return &Equilibration{
		Timestep:         units.NewTime(2, units.Femtosecond),
		Runtime:          units.NewTime(0.2, units.Nanosecond),
		TemperatureStart: units.MustTemperature(300, units.Kelvin),
		TemperatureEnd:   units.MustTemperature(300, units.Kelvin),
		Frames:           20,
		Restraint:        RestraintNone,
	}
}

func (p *Equilibration) Kind() Kind { return KindEquilibration }

func (p *Equilibration) Validate() error {
	if err := validateDynamics(p.Timestep, p.Runtime, p.Frames); err != nil {
		return err
	}
	if err := validateTemperatures(p.TemperatureStart, p.TemperatureEnd); err != nil {
		return err
	}
	if !p.Restraint.valid() {
		return invalid("unknown restraint %q, expected one of none, backbone, heavy, all", p.Restraint)
	}
	return nil
}

// IsConstantTemp reports whether the start and end temperatures match.
func (p *Equilibration) IsConstantTemp() bool {
	return math.Abs(p.TemperatureStart.Kelvin()-p.TemperatureEnd.Kelvin()) < 1e-9
}

// IsRestrained reports whether any atoms are restrained.
func (p *Equilibration) IsRestrained() bool {
	return p.Restraint != "" && p.Restraint != RestraintNone
}

// Production is a production molecular dynamics run.
type Production struct {
	base        `yaml:"-" mapstructure:"-"`
	Timestep    units.Time        `yaml:"timestep" mapstructure:"timestep"`
	Runtime     units.Time        `yaml:"runtime" mapstructure:"runtime"`
	Temperature units.Temperature `yaml:"temperature" mapstructure:"temperature"`
	Pressure    *units.Pressure   `yaml:"pressure" mapstructure:"pressure"`
	Frames      int               `yaml:"frames" mapstructure:"frames"`
	// Restart continues from the velocities of the previous run.
	Restart bool `yaml:"restart" mapstructure:"restart"`
}

// NewProduction returns a production protocol with default settings.
func NewProduction() *Production {
	atm := units.NewPressure(1, units.Atmosphere)
	return &Production{
		Timestep:    units.NewTime(2, units.Femtosecond),
		Runtime:     units.NewTime(1, units.Nanosecond),
		Temperature: units.MustTemperature(300, units.Kelvin),
		Pressure:    &atm,
		Frames:      20,
	}
}

func (p *Production) Kind() Kind { return KindProduction }

func (p *Production) Validate() error {
	if err := validateDynamics(p.Timestep, p.Runtime, p.Frames); err != nil {
		return err
	}
	return validateTemperatures(p.Temperature)
}

// FreeEnergy is a single lambda window of an alchemical free-energy
// perturbation.
type FreeEnergy struct {
	base         `yaml:"-" mapstructure:"-"`
	Timestep     units.Time        `yaml:"timestep" mapstructure:"timestep"`
	Runtime      units.Time        `yaml:"runtime" mapstructure:"runtime"`
	Temperature  units.Temperature `yaml:"temperature" mapstructure:"temperature"`
	Pressure     *units.Pressure   `yaml:"pressure" mapstructure:"pressure"`
	Frames       int               `yaml:"frames" mapstructure:"frames"`
	LambdaValues []float64         `yaml:"lambda_values,flow" mapstructure:"lambda_values"`
	Lambda       float64           `yaml:"lambda" mapstructure:"lambda"`
}

// NewFreeEnergy returns a free-energy protocol with eleven evenly spaced
// lambda windows, set to the first window.
func NewFreeEnergy() *FreeEnergy {
	atm := units.NewPressure(1, units.Atmosphere)
	lambdas := make([]float64, 11)
	for i := range lambdas {
		lambdas[i] = float64(i) / 10
	}
	return &FreeEnergy{
		Timestep:     units.NewTime(2, units.Femtosecond),
		Runtime:      units.NewTime(4, units.Nanosecond),
		Temperature:  units.MustTemperature(300, units.Kelvin),
		Pressure:     &atm,
		Frames:       20,
		LambdaValues: lambdas,
		Lambda:       0,
	}
}

func (p *FreeEnergy) Kind() Kind { return KindFreeEnergy }

func (p *FreeEnergy) Validate() error {
	if err := validateDynamics(p.Timestep, p.Runtime, p.Frames); err != nil {
		return err
	}
	if err := validateTemperatures(p.Temperature); err != nil {
		return err
	}
	if len(p.LambdaValues) == 0 {
		return invalid("lambda_values must not be empty")
	}
	found := false
	for i, l := range p.LambdaValues {
		if l < 0 || l > 1 {
			return invalid("lambda value %g is outside [0, 1]", l)
		}
		if i > 0 && l <= p.LambdaValues[i-1] {
			return invalid("lambda values must be strictly increasing")
		}
		if math.Abs(l-p.Lambda) < 1e-9 {
			found = true
		}
	}
	if !found {
		return invalid("lambda %g is not one of the lambda values", p.Lambda)
	}
	return nil
}

// Custom carries engine config lines written by hand. They are passed to the
// engine verbatim.
type Custom struct {
	base   `yaml:"-" mapstructure:"-"`
	Config []string `yaml:"config" mapstructure:"config"`
}

// NewCustom returns a custom protocol holding lines.
func NewCustom(lines []string) *Custom {
	return &Custom{Config: append([]string(nil), lines...)}
}

func (p *Custom) Kind() Kind { return KindCustom }

func (p *Custom) Validate() error {
	for _, l := range p.Config {
		if strings.TrimSpace(l) != "" {
			return nil
		}
	}
	return invalid("custom protocol has no config lines")
}

// New returns the default protocol of the given kind.
func New(kind Kind) (Protocol, error) {
	switch kind {
	case KindMinimisation:
		return NewMinimisation(), nil
	case KindEquilibration:
		return NewEquilibration(), nil
	case KindProduction:
		return NewProduction(), nil
	case KindFreeEnergy:
		return NewFreeEnergy(), nil
	case KindCustom:
		return &Custom{}, nil
	}
	return nil, fmt.Errorf("%w: unknown protocol %q", simerr.ErrUnsupportedProtocol, kind)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", simerr.ErrValidation, fmt.Sprintf(format, args...))
}

func validateDynamics(timestep, runtime units.Time, frames int) error {
	if timestep.Femtoseconds() <= 0 {
		return invalid("timestep must be positive, got %s", timestep)
	}
	if runtime.Femtoseconds() <= 0 {
		return invalid("runtime must be positive, got %s", runtime)
	}
	if runtime.Femtoseconds() < timestep.Femtoseconds() {
		return invalid("runtime %s is shorter than the timestep %s", runtime, timestep)
	}
	if frames <= 0 {
		return invalid("frames must be positive, got %d", frames)
	}
	return nil
}

func validateTemperatures(temps ...units.Temperature) error {
	for _, t := range temps {
		if t.Kelvin() < 0 {
			return invalid("temperature %s is below absolute zero", t)
		}
	}
	return nil
}
