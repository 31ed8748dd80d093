// Package engine translates protocols into configuration files and command
// lines for external molecular dynamics engines.
//
// Engine implementations live in sub-packages and register themselves with
// DefaultRegistry from init, so a binary selects engines by importing them.
package engine

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/picogrid/biosim/pkg/protocol"
	"github.com/picogrid/biosim/pkg/results"
	"github.com/picogrid/biosim/pkg/system"
	"github.com/picogrid/biosim/pkg/units"
)

// Flags are the system-derived inputs to config generation.
type Flags struct {
	HasBox   bool
	HasWater bool
	// HasVelocities is set when every atom carries a velocity, which a
	// restarted run continues from.
	HasVelocities bool
	// Seed is nil for an unseeded run.
	Seed *int64
	// Platform is the resolved compute platform, for engines that have one.
	Platform string
}

// FlagsFor derives generation flags from a system.
func FlagsFor(sys *system.System, seed *int64) Flags {
	return Flags{
		HasBox:        sys.HasBox(),
		HasWater:      sys.HasWater(),
		HasVelocities: sys.HasVelocities(),
		Seed:          seed,
	}
}

// Inputs names the files a run reads from its working directory, together
// with the molio formats they are written in.
type Inputs struct {
	Coordinates       string
	CoordinatesFormat string
	Topology          string
	TopologyFormat    string
	Config            string
	// Perturbation is empty unless the run needs a perturbation file.
	Perturbation string
}

// Files returns the non-empty input file names.
func (in Inputs) Files() []string {
	var out []string
	for _, f := range []string{in.Coordinates, in.Topology, in.Perturbation, in.Config} {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Engine defines the interface that all engines must implement
type Engine interface {
	// Name returns the registry name of the engine
	Name() string

	// Description returns a brief description of the engine
	Description() string

	// Executable returns the default binary used to run p
	Executable(p protocol.Protocol) string

	// Inputs returns the input files for a run called name
	Inputs(p protocol.Protocol, name string) Inputs

	// Generate translates p into config directives. It has no side effects.
	Generate(p protocol.Protocol, flags Flags) (Config, error)

	// Args returns the command-line arguments for a run called name
	Args(p protocol.Protocol, name string, flags Flags) (*Args, error)

	// Artifacts lists output files that must be removed before a run starts
	Artifacts(p protocol.Protocol, name string) []string

	// ErrorMarkers are strings whose presence in captured output means the
	// run failed even if the exit code is zero
	ErrorMarkers() []string

	// Extractor reads results written by a run called name in workDir
	Extractor(p protocol.Protocol, workDir, name string) results.Extractor
}

// PlatformSelector is implemented by engines that run on a choice of
// compute platforms.
type PlatformSelector interface {
	// Platform resolves a platform name, checking any environment it needs.
	Platform(name string, lookupEnv func(string) (string, bool)) (string, error)
}

// Job describes a prepared run for engines that need a synchronous
// preprocessing step.
type Job struct {
	WorkDir    string
	Name       string
	Executable string
	Protocol   protocol.Protocol
}

// Preparer is implemented by engines that preprocess their inputs before
// the main executable starts.
type Preparer interface {
	Prepare(ctx context.Context, job Job) error
}

// OutputMerger is implemented by engines that write everything to stdout.
// The run's stderr file then only holds Note.
type OutputMerger interface {
	MergedOutputNote() string
}

// Steps returns the number of integration steps needed to cover runtime.
// Ratios within rounding error of an integer are not rounded up.
func Steps(runtime, timestep units.Time) int {
	r := runtime.Femtoseconds() / timestep.Femtoseconds()
	n := math.Round(r)
	if math.Abs(r-n) <= 1e-6*math.Max(1, r) {
		return int(n)
	}
	return int(math.Ceil(r))
}

// Cycles returns how many cycles of perCycle steps cover steps.
func Cycles(steps, perCycle int) int {
	return (steps + perCycle - 1) / perCycle
}

// FormatFloat renders f the way engine configs expect floats: shortest
// representation, always with a decimal point.
func FormatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// JoinFloats formats values with FormatFloat, separated by sep.
func JoinFloats(values []float64, sep string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = FormatFloat(v)
	}
	return strings.Join(parts, sep)
}
