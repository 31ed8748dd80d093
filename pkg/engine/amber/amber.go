// Package amber drives the AMBER sander engine.
//
// Configs are written as a single &cntrl namelist. Heating uses an &wt
// TEMP0 ramp, and positional restraints reference the input coordinates.
package amber

import (
	"fmt"
	"path/filepath"

	"github.com/picogrid/biosim/pkg/engine"
	"github.com/picogrid/biosim/pkg/protocol"
	"github.com/picogrid/biosim/pkg/results"
	"github.com/picogrid/biosim/pkg/simerr"
	"github.com/picogrid/biosim/pkg/system"
	"github.com/picogrid/biosim/pkg/units"
)

// Name is the registry name of the engine.
const Name = "amber"

const (
	printFrequency = 100
	cutoff         = 8.0
	// noCutoff disables the non-bonded cutoff for non-periodic systems.
	noCutoff = 999.0

	restraintWeight = 10.0
)

var restraintMasks = map[protocol.Restraint]string{
	protocol.RestraintBackbone: "@CA,C,O,N",
	protocol.RestraintHeavy:    "!:WAT & !@H=",
	protocol.RestraintAll:      "!:WAT",
}

func init() {
	if err := engine.DefaultRegistry.Register(Name, func() engine.Engine { return New() }); err != nil {
		panic(err)
	}
}

// Engine generates sander inputs.
type Engine struct{}

// New creates an AMBER engine.
func New() *Engine { return &Engine{} }

func (e *Engine) Name() string { return Name }

func (e *Engine) Description() string {
	return "AMBER sander molecular dynamics"
}

func (e *Engine) Executable(protocol.Protocol) string { return "sander" }

func (e *Engine) Inputs(_ protocol.Protocol, name string) engine.Inputs {
	return engine.Inputs{
		Coordinates:       name + ".rst7",
		CoordinatesFormat: "RST7",
		Topology:          name + ".prm7",
		TopologyFormat:    "PRM7",
		Config:            name + ".cfg",
	}
}

type namelist struct {
	cfg *engine.Config
}

func (n namelist) set(key string, format string, args ...any) {
	n.cfg.Add(fmt.Sprintf("  %s=%s,", key, fmt.Sprintf(format, args...)))
}

// periodic reports whether the system is simulated with periodic boundaries.
func periodic(flags engine.Flags) bool {
	return flags.HasBox && flags.HasWater
}

func (n namelist) cutoff(flags engine.Flags, pressure *units.Pressure) {
	switch {
	case !periodic(flags):
		n.set("cut", "%.1f", noCutoff)
		n.set("ntb", "0")
	case pressure != nil:
		n.set("cut", "%.1f", cutoff)
		n.set("ntb", "2")
		n.set("ntp", "1")
		n.set("pres0", "%.5f", pressure.Bar())
	default:
		n.set("cut", "%.1f", cutoff)
		n.set("ntb", "1")
	}
}

func (n namelist) seed(flags engine.Flags) {
	if flags.Seed != nil {
		n.set("ig", "%d", *flags.Seed)
	} else {
		n.set("ig", "-1")
	}
}

// dynamics adds the integration and output settings. Restart files are
// written together with trajectory frames so the latest frame can be read
// back during the run.
func (n namelist) dynamics(flags engine.Flags, timestep, runtime units.Time, frames int, restart bool) {
	steps := engine.Steps(runtime, timestep)
	interval := max(1, steps/max(1, frames))
	n.seed(flags)
	if restart {
		n.set("ntx", "5")
		n.set("irest", "1")
	} else {
		n.set("ntx", "1")
		n.set("irest", "0")
	}
	n.set("ntxo", "1")
	n.set("ntpr", "%d", printFrequency)
	n.set("ntwr", "%d", interval)
	n.set("ntwx", "%d", interval)
	n.set("dt", "%.3f", timestep.Picoseconds())
	n.set("nstlim", "%d", steps)
	n.set("ntc", "2")
	n.set("ntf", "2")
	n.set("ntt", "3")
	n.set("gamma_ln", "2.0")
}

// Generate translates p into an sander input file.
func (e *Engine) Generate(p protocol.Protocol, flags engine.Flags) (engine.Config, error) {
	var cfg engine.Config
	n := namelist{cfg: &cfg}

	switch v := p.(type) {
	case *protocol.Minimisation:
		cfg.Add("Minimisation", " &cntrl")
		n.set("imin", "1")
		n.set("ntx", "1")
		n.set("ntxo", "1")
		n.set("ntpr", "%d", printFrequency)
		n.set("maxcyc", "%d", v.Steps)
		n.set("ncyc", "%d", min(1000, max(1, v.Steps/10)))
		n.cutoff(flags, nil)
		cfg.Add(" /")

	case *protocol.Equilibration:
		cfg.Add("Equilibration", " &cntrl")
		n.dynamics(flags, v.Timestep, v.Runtime, v.Frames, false)
		n.cutoff(flags, v.Pressure)
		if v.IsRestrained() {
			n.set("ntr", "1")
			n.set("restraint_wt", "%.1f", restraintWeight)
			n.set("restraintmask", "%q", restraintMasks[v.Restraint])
		}
		heating := !v.IsConstantTemp()
		if heating {
			n.set("tempi", "%.2f", v.TemperatureStart.Kelvin())
			n.set("temp0", "%.2f", v.TemperatureEnd.Kelvin())
			n.set("nmropt", "1")
		} else {
			n.set("temp0", "%.2f", v.TemperatureStart.Kelvin())
		}
		cfg.Add(" /")
		if heating {
			cfg.Add(
				fmt.Sprintf(" &wt TYPE='TEMP0', istep1=0, istep2=%d, value1=%.2f, value2=%.2f /",
					engine.Steps(v.Runtime, v.Timestep), v.TemperatureStart.Kelvin(), v.TemperatureEnd.Kelvin()),
				" &wt TYPE='END' /",
			)
		}

	case *protocol.Production:
		if v.Restart && !flags.HasVelocities {
			return nil, fmt.Errorf("%w: restart needs a system with velocities",
				simerr.ErrIncompatibleProtocol)
		}
		cfg.Add("Production", " &cntrl")
		n.dynamics(flags, v.Timestep, v.Runtime, v.Frames, v.Restart)
		n.cutoff(flags, v.Pressure)
		n.set("temp0", "%.2f", v.Temperature.Kelvin())
		cfg.Add(" /")

	case *protocol.FreeEnergy:
		return nil, fmt.Errorf("%w: AMBER free-energy perturbation is not supported, use SOMD",
			simerr.ErrIncompatibleProtocol)

	case *protocol.Custom:
		cfg.Add(v.Config...)

	default:
		return nil, fmt.Errorf("%w: AMBER cannot run %T", simerr.ErrUnsupportedProtocol, p)
	}
	return cfg, nil
}

func (e *Engine) Args(p protocol.Protocol, name string, _ engine.Flags) (*engine.Args, error) {
	in := e.Inputs(p, name)
	args := engine.NewArgs()
	args.Set("-O", "")
	args.Set("-i", in.Config)
	args.Set("-p", in.Topology)
	args.Set("-c", in.Coordinates)
	args.Set("-r", name+".crd")
	args.Set("-inf", name+".nrg")
	args.Set("-o", "stdout")
	if eq, ok := p.(*protocol.Equilibration); ok && eq.IsRestrained() {
		args.Set("-ref", in.Coordinates)
	}
	return args, nil
}

func (e *Engine) Artifacts(_ protocol.Protocol, name string) []string {
	return []string{name + ".crd", name + ".nrg", "mdcrd", "mdinfo"}
}

func (e *Engine) ErrorMarkers() []string {
	return []string{"SANDER BOMB", "ERROR:"}
}

func (e *Engine) Extractor(_ protocol.Protocol, workDir, name string) results.Extractor {
	return &extractor{
		restart: filepath.Join(workDir, name+".crd"),
		energy:  results.NewAmberEnergy(filepath.Join(workDir, name+".out")),
	}
}

type extractor struct {
	restart string
	energy  *results.AmberEnergy
}

func (x *extractor) Frame() (system.Frame, bool, error) {
	return results.RestartFrame(x.restart)
}

func (x *extractor) Times() ([]units.Time, error) {
	ps, err := x.energy.Series("TIME(PS)")
	if err != nil {
		return nil, err
	}
	times := make([]units.Time, len(ps))
	for i, t := range ps {
		times[i] = units.NewTime(t, units.Picosecond)
	}
	return times, nil
}

// Energies returns a record series by its mdout key, e.g. "Etot".
func (x *extractor) Energies(key string) ([]float64, error) {
	return x.energy.Series(key)
}
