// Package gromacs drives the GROMACS mdrun engine. Inputs are compiled into
// a run input file by grompp before mdrun starts.
package gromacs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/picogrid/biosim/pkg/engine"
	"github.com/picogrid/biosim/pkg/protocol"
	"github.com/picogrid/biosim/pkg/results"
	"github.com/picogrid/biosim/pkg/simerr"
	"github.com/picogrid/biosim/pkg/system"
	"github.com/picogrid/biosim/pkg/units"
)

// Name is the registry name of the engine.
const Name = "gromacs"

const (
	logFrequency = 100
	// cutoff is in nanometers.
	cutoff = 1.0
	// compressibility of water, in 1/bar.
	compressibility = "4.5e-5"
)

func init() {
	if err := engine.DefaultRegistry.Register(Name, func() engine.Engine { return New() }); err != nil {
		panic(err)
	}
}

// Engine generates GROMACS inputs.
type Engine struct{}

// New creates a GROMACS engine.
func New() *Engine { return &Engine{} }

func (e *Engine) Name() string { return Name }

func (e *Engine) Description() string {
	return "GROMACS molecular dynamics"
}

func (e *Engine) Executable(protocol.Protocol) string { return "gmx" }

func (e *Engine) Inputs(_ protocol.Protocol, name string) engine.Inputs {
	return engine.Inputs{
		Coordinates:       name + ".gro",
		CoordinatesFormat: "GRO87",
		Topology:          name + ".top",
		TopologyFormat:    "GROTOP",
		Config:            name + ".mdp",
	}
}

type mdp struct {
	cfg *engine.Config
}

func (m mdp) set(key, format string, args ...any) {
	m.cfg.Add(fmt.Sprintf("%-24s= %s", key, fmt.Sprintf(format, args...)))
}

// nonbonded sets up Verlet cut-offs. The Verlet scheme only supports full
// periodic boundaries, so a box is required.
func (m mdp) nonbonded(flags engine.Flags) error {
	if !flags.HasBox {
		return fmt.Errorf("%w: GROMACS needs a periodic box, the Verlet cut-off scheme does not support pbc = no",
			simerr.ErrIncompatibleProtocol)
	}
	m.set("cutoff-scheme", "Verlet")
	m.set("nstlist", "10")
	m.set("pbc", "xyz")
	if flags.HasWater {
		m.set("coulombtype", "PME")
	} else {
		m.set("coulombtype", "Reaction-Field")
		m.set("epsilon-rf", "1")
	}
	m.set("rcoulomb", "%.1f", cutoff)
	m.set("rvdw", "%.1f", cutoff)
	return nil
}

func (m mdp) dynamics(flags engine.Flags, timestep, runtime units.Time, frames int) {
	steps := engine.Steps(runtime, timestep)
	interval := max(1, steps/max(1, frames))
	m.set("integrator", "md")
	m.set("tinit", "0")
	m.set("dt", "%.3f", timestep.Picoseconds())
	m.set("nsteps", "%d", steps)
	m.set("nstxout", "%d", interval)
	m.set("nstlog", "%d", logFrequency)
	m.set("nstenergy", "%d", logFrequency)
	m.set("constraints", "h-bonds")
}

func (m mdp) thermostat(temperature units.Temperature) {
	m.set("tcoupl", "v-rescale")
	m.set("tc-grps", "system")
	m.set("tau-t", "1.0")
	m.set("ref-t", "%.2f", temperature.Kelvin())
}

func (m mdp) velocities(flags engine.Flags, temperature units.Temperature, generate bool) {
	if !generate {
		m.set("gen-vel", "no")
		m.set("continuation", "yes")
		return
	}
	m.set("gen-vel", "yes")
	m.set("gen-temp", "%.2f", temperature.Kelvin())
	if flags.Seed != nil {
		m.set("gen-seed", "%d", *flags.Seed)
	} else {
		m.set("gen-seed", "-1")
	}
}

func (m mdp) barostat(flags engine.Flags, pressure *units.Pressure) {
	if pressure == nil || !flags.HasBox || !flags.HasWater {
		m.set("pcoupl", "no")
		return
	}
	m.set("pcoupl", "parrinello-rahman")
	m.set("pcoupltype", "isotropic")
	m.set("tau-p", "2.0")
	m.set("ref-p", "%.5f", pressure.Bar())
	m.set("compressibility", compressibility)
}

// Generate translates p into .mdp directives.
func (e *Engine) Generate(p protocol.Protocol, flags engine.Flags) (engine.Config, error) {
	var cfg engine.Config
	m := mdp{cfg: &cfg}

	switch v := p.(type) {
	case *protocol.Minimisation:
		m.set("integrator", "steep")
		m.set("nsteps", "%d", v.Steps)
		m.set("nstlog", "%d", logFrequency)
		m.set("nstenergy", "%d", logFrequency)
		if err := m.nonbonded(flags); err != nil {
			return nil, err
		}

	case *protocol.Equilibration:
		if v.IsRestrained() {
			return nil, fmt.Errorf("%w: GROMACS position restraints need a restrained topology, which is not generated",
				simerr.ErrIncompatibleProtocol)
		}
		m.dynamics(flags, v.Timestep, v.Runtime, v.Frames)
		if err := m.nonbonded(flags); err != nil {
			return nil, err
		}
		m.thermostat(v.TemperatureEnd)
		if !v.IsConstantTemp() {
			m.set("annealing", "single")
			m.set("annealing-npoints", "2")
			m.set("annealing-time", "0.00 %.2f", v.Runtime.Picoseconds())
			m.set("annealing-temp", "%.2f %.2f", v.TemperatureStart.Kelvin(), v.TemperatureEnd.Kelvin())
		}
		m.velocities(flags, v.TemperatureStart, true)
		m.barostat(flags, v.Pressure)

	case *protocol.Production:
		if v.Restart && !flags.HasVelocities {
			return nil, fmt.Errorf("%w: restart needs a system with velocities",
				simerr.ErrIncompatibleProtocol)
		}
		m.dynamics(flags, v.Timestep, v.Runtime, v.Frames)
		if err := m.nonbonded(flags); err != nil {
			return nil, err
		}
		m.thermostat(v.Temperature)
		m.velocities(flags, v.Temperature, !v.Restart)
		m.barostat(flags, v.Pressure)

	case *protocol.FreeEnergy:
		return nil, fmt.Errorf("%w: GROMACS free-energy perturbation is not supported, use SOMD",
			simerr.ErrIncompatibleProtocol)

	case *protocol.Custom:
		cfg.Add(v.Config...)

	default:
		return nil, fmt.Errorf("%w: GROMACS cannot run %T", simerr.ErrUnsupportedProtocol, p)
	}
	return cfg, nil
}

func (e *Engine) Args(_ protocol.Protocol, name string, _ engine.Flags) (*engine.Args, error) {
	args := engine.NewArgs()
	args.Set("mdrun", "")
	args.Set("-v", "")
	args.Set("-deffnm", name)
	args.Set("-c", name+"_out.gro")
	return args, nil
}

// Artifacts lists mdrun outputs. The run input file and mdout.mdp are
// written by grompp during Prepare and must survive until mdrun starts.
func (e *Engine) Artifacts(_ protocol.Protocol, name string) []string {
	return []string{
		name + ".log", name + ".edr", name + ".trr",
		name + ".cpt", name + "_out.gro",
	}
}

func (e *Engine) ErrorMarkers() []string {
	return []string{"Fatal error:"}
}

// Prepare runs grompp to compile the run input file.
func (e *Engine) Prepare(ctx context.Context, job engine.Job) error {
	in := e.Inputs(job.Protocol, job.Name)
	cmd := exec.CommandContext(ctx, job.Executable, "grompp",
		"-f", in.Config,
		"-c", in.Coordinates,
		"-p", in.Topology,
		"-o", job.Name+".tpr",
	)
	cmd.Dir = job.WorkDir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: grompp failed: %v\n%s", simerr.ErrLaunchFailure, err, lastLines(out.String(), 20))
	}
	return nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func (e *Engine) Extractor(_ protocol.Protocol, workDir, name string) results.Extractor {
	return &extractor{
		final: filepath.Join(workDir, name+"_out.gro"),
		log:   results.NewGromacsLog(filepath.Join(workDir, name+".log")),
	}
}

// extractor reads the final structure, so frames are only available once
// mdrun has finished.
type extractor struct {
	final string
	log   *results.GromacsLog
}

func (x *extractor) Frame() (system.Frame, bool, error) {
	return results.GROFrame(x.final)
}

func (x *extractor) Times() ([]units.Time, error) {
	ps, err := x.log.Series("Time")
	if err != nil {
		return nil, err
	}
	times := make([]units.Time, len(ps))
	for i, t := range ps {
		times[i] = units.NewTime(t, units.Picosecond)
	}
	return times, nil
}

// Energies returns an energy term by its log name, e.g. "Potential".
func (x *extractor) Energies(key string) ([]float64, error) {
	return x.log.Series(key)
}
