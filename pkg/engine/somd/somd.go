// Package somd drives the SOMD molecular dynamics and free-energy engine.
package somd

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/picogrid/biosim/pkg/engine"
	"github.com/picogrid/biosim/pkg/protocol"
	"github.com/picogrid/biosim/pkg/results"
	"github.com/picogrid/biosim/pkg/simerr"
	"github.com/picogrid/biosim/pkg/system"
	"github.com/picogrid/biosim/pkg/units"
)

// Name is the registry name of the engine.
const Name = "somd"

const (
	movesPerCycle = 10000
	// SOMD buffers a trajectory frame every bufferedFrequency moves.
	bufferedFrequency = 500

	trajectoryFile = "traj000000001.dcd"
	gradientFile   = "gradients.dat"

	gpuVariable = "CUDA_VISIBLE_DEVICES"
)

var platforms = map[string]string{
	"CPU":    "CPU",
	"CUDA":   "CUDA",
	"OPENCL": "OpenCL",
}

func init() {
	if err := engine.DefaultRegistry.Register(Name, func() engine.Engine { return New() }); err != nil {
		panic(err)
	}
}

// Engine generates SOMD inputs.
type Engine struct{}

// New creates a SOMD engine.
func New() *Engine { return &Engine{} }

func (e *Engine) Name() string { return Name }

func (e *Engine) Description() string {
	return "SOMD (Sire/OpenMM) molecular dynamics and alchemical free energies"
}

// Executable returns somd-freenrg for free-energy protocols and somd otherwise.
func (e *Engine) Executable(p protocol.Protocol) string {
	if _, ok := p.(*protocol.FreeEnergy); ok {
		return "somd-freenrg"
	}
	return "somd"
}

func (e *Engine) Inputs(p protocol.Protocol, name string) engine.Inputs {
	in := engine.Inputs{
		Coordinates:       name + ".rst7",
		CoordinatesFormat: "RST7",
		Topology:          name + ".prm7",
		TopologyFormat:    "PRM7",
		Config:            name + ".cfg",
	}
	if _, ok := p.(*protocol.FreeEnergy); ok {
		in.Perturbation = name + ".pert"
	}
	return in
}

// Platform resolves a platform name. CUDA needs a visible device list.
func (e *Engine) Platform(name string, lookupEnv func(string) (string, bool)) (string, error) {
	if name == "" {
		name = "CPU"
	}
	platform, ok := platforms[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		keys := make([]string, 0, len(platforms))
		for _, v := range platforms {
			keys = append(keys, v)
		}
		sort.Strings(keys)
		return "", fmt.Errorf("%w: unsupported platform %q, supported platforms are: %s",
			simerr.ErrValidation, name, strings.Join(keys, ", "))
	}
	if platform == "CUDA" {
		if _, set := lookupEnv(gpuVariable); !set {
			return "", fmt.Errorf("%w: 'CUDA' platform selected but %s environment variable is unset",
				simerr.ErrEnvironment, gpuVariable)
		}
	}
	return platform, nil
}

func cutoffType(flags engine.Flags) string {
	if flags.HasBox && flags.HasWater {
		return "cutoff type = cutoffperiodic"
	}
	return "cutoff type = cutoffnonperiodic"
}

// dynamics adds the directives shared by every molecular dynamics protocol.
func dynamics(cfg *engine.Config, flags engine.Flags, timestep, runtime units.Time,
	temperature units.Temperature, pressure *units.Pressure, freeEnergy bool) {
	ncycles := engine.Cycles(engine.Steps(runtime, timestep), movesPerCycle)
	cfg.Add(
		fmt.Sprintf("ncycles = %d", ncycles),
		fmt.Sprintf("nmoves = %d", movesPerCycle),
	)
	if freeEnergy {
		cfg.Add("energy frequency = 100")
	}
	cfg.Add(
		"save coordinates = True",
		fmt.Sprintf("buffered coordinates frequency = %d", bufferedFrequency),
		fmt.Sprintf("timestep = %.2f femtosecond", timestep.Femtoseconds()),
		"thermostat = True",
		fmt.Sprintf("temperature = %.2f kelvin", temperature.Kelvin()),
	)
	if pressure != nil && flags.HasWater && flags.HasBox {
		cfg.Add("barostat = True", fmt.Sprintf("pressure = %.5f atm", pressure.Atm()))
	} else {
		cfg.Add("barostat = False")
	}
	if flags.HasWater {
		cfg.Add("reaction field dielectric = 78.3")
	} else {
		cfg.Add("reaction field dielectric = 82.0")
	}
	cfg.Add(cutoffType(flags), "cutoff distance = 10 angstrom")
	if flags.Seed != nil {
		cfg.Add(fmt.Sprintf("random seed = %d", *flags.Seed))
	}
}

// Generate translates p into SOMD config directives.
func (e *Engine) Generate(p protocol.Protocol, flags engine.Flags) (engine.Config, error) {
	var cfg engine.Config
	gpu := func() {
		if flags.Platform == "CUDA" {
			cfg.Add("gpu = 0")
		}
	}

	switch v := p.(type) {
	case *protocol.Minimisation:
		gpu()
		cfg.Add(
			"minimise = True",
			fmt.Sprintf("minimise maximum iterations = %d", v.Steps),
			"minimise tolerance = 1",
			"ncycles = 1",
			"nmoves = 1",
			"save coordinates = True",
			cutoffType(flags),
			"cutoff distance = 10 angstrom",
		)

	case *protocol.Equilibration:
		if !v.IsConstantTemp() {
			return nil, fmt.Errorf("%w: SOMD only supports constant temperature equilibration",
				simerr.ErrIncompatibleProtocol)
		}
		if v.IsRestrained() {
			return nil, fmt.Errorf("%w: SOMD doesn't support %s atom restraints",
				simerr.ErrIncompatibleProtocol, v.Restraint)
		}
		gpu()
		dynamics(&cfg, flags, v.Timestep, v.Runtime, v.TemperatureStart, v.Pressure, false)

	case *protocol.Production:
		gpu()
		dynamics(&cfg, flags, v.Timestep, v.Runtime, v.Temperature, v.Pressure, false)

	case *protocol.FreeEnergy:
		gpu()
		dynamics(&cfg, flags, v.Timestep, v.Runtime, v.Temperature, v.Pressure, true)
		cfg.Add(
			"constraint = hbonds-notperturbed",
			"minimise = True",
			"equilibrate = False",
			"lambda array = "+engine.JoinFloats(v.LambdaValues, ", "),
			"lambda_val = "+engine.FormatFloat(v.Lambda),
		)

	case *protocol.Custom:
		cfg.Add(v.Config...)

	default:
		return nil, fmt.Errorf("%w: SOMD cannot run %T", simerr.ErrUnsupportedProtocol, p)
	}
	return cfg, nil
}

func (e *Engine) Args(p protocol.Protocol, name string, flags engine.Flags) (*engine.Args, error) {
	in := e.Inputs(p, name)
	platform := flags.Platform
	if platform == "" {
		platform = "CPU"
	}
	args := engine.NewArgs()
	args.Set("-c", in.Coordinates)
	args.Set("-t", in.Topology)
	if in.Perturbation != "" {
		args.Set("-m", in.Perturbation)
	}
	args.Set("-C", in.Config)
	args.Set("-p", platform)
	return args, nil
}

func (e *Engine) Artifacts(p protocol.Protocol, name string) []string {
	files := []string{"sim_restart.s3", "SYSTEM.s3", trajectoryFile}
	if _, ok := p.(*protocol.FreeEnergy); ok {
		files = append(files, gradientFile, "simfile.dat")
	}
	return files
}

func (e *Engine) ErrorMarkers() []string {
	return []string{"Traceback (most recent call last)"}
}

// MergedOutputNote is written to the stderr file; SOMD reports everything
// on stdout.
func (e *Engine) MergedOutputNote() string {
	return "All output has been redirected to the stdout stream!"
}

func (e *Engine) Extractor(p protocol.Protocol, workDir, name string) results.Extractor {
	x := &extractor{
		trajectory: filepath.Join(workDir, trajectoryFile),
		gradients:  results.NewGradientSeries(filepath.Join(workDir, gradientFile)),
	}
	switch v := p.(type) {
	case *protocol.Equilibration:
		x.timestep = v.Timestep
	case *protocol.Production:
		x.timestep = v.Timestep
	case *protocol.FreeEnergy:
		x.timestep = v.Timestep
	}
	return x
}

type extractor struct {
	trajectory string
	gradients  *results.Series
	// timestep is zero for runs without time records.
	timestep units.Time
}

func (x *extractor) Frame() (system.Frame, bool, error) {
	return results.DCDFrame(x.trajectory)
}

// Times returns the time of each trajectory frame.
func (x *extractor) Times() ([]units.Time, error) {
	if x.timestep.IsZero() {
		return nil, nil
	}
	n, err := results.DCDFrames(x.trajectory)
	if err != nil || n == 0 {
		return nil, err
	}
	perFrame := bufferedFrequency * x.timestep.Nanoseconds()
	times := make([]units.Time, n)
	for i := range times {
		times[i] = units.NewTime(perFrame*float64(i+1), units.Nanosecond)
	}
	return times, nil
}

func (x *extractor) Gradients() ([]float64, error) {
	return x.gradients.Values()
}
