package somd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/biosim/pkg/engine"
	"github.com/picogrid/biosim/pkg/molio"
	"github.com/picogrid/biosim/pkg/protocol"
	"github.com/picogrid/biosim/pkg/results"
	"github.com/picogrid/biosim/pkg/simerr"
	"github.com/picogrid/biosim/pkg/system"
	"github.com/picogrid/biosim/pkg/units"
)

func solvated() engine.Flags {
	return engine.Flags{HasBox: true, HasWater: true}
}

func TestRegistered(t *testing.T) {
	e, err := engine.DefaultRegistry.Get(Name)
	require.NoError(t, err)
	assert.Equal(t, Name, e.Name())
}

func TestMinimisationWithoutBox(t *testing.T) {
	p := protocol.NewMinimisation()
	p.Steps = 1000

	cfg, err := New().Generate(p, engine.Flags{})
	require.NoError(t, err)

	assert.Equal(t, engine.Config{
		"minimise = True",
		"minimise maximum iterations = 1000",
		"minimise tolerance = 1",
		"ncycles = 1",
		"nmoves = 1",
		"save coordinates = True",
		"cutoff type = cutoffnonperiodic",
		"cutoff distance = 10 angstrom",
	}, cfg)
	_, ok := cfg.Value("barostat")
	assert.False(t, ok)
	_, ok = cfg.Value("thermostat")
	assert.False(t, ok)
}

func TestGenerateIsDeterministic(t *testing.T) {
	seed := int64(42)
	flags := solvated()
	flags.Seed = &seed
	p := protocol.NewProduction()

	a, err := New().Generate(p, flags)
	require.NoError(t, err)
	b, err := New().Generate(p, flags)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "random seed = 42", a[len(a)-1])
}

func TestProduction(t *testing.T) {
	cfg, err := New().Generate(protocol.NewProduction(), solvated())
	require.NoError(t, err)

	assert.Equal(t, engine.Config{
		"ncycles = 50",
		"nmoves = 10000",
		"save coordinates = True",
		"buffered coordinates frequency = 500",
		"timestep = 2.00 femtosecond",
		"thermostat = True",
		"temperature = 300.00 kelvin",
		"barostat = True",
		"pressure = 1.00000 atm",
		"reaction field dielectric = 78.3",
		"cutoff type = cutoffperiodic",
		"cutoff distance = 10 angstrom",
	}, cfg)
}

func TestBarostatNeedsWaterAndBox(t *testing.T) {
	cfg, err := New().Generate(protocol.NewProduction(), engine.Flags{HasBox: true})
	require.NoError(t, err)
	v, _ := cfg.Value("barostat")
	assert.Equal(t, "False", v)
	v, _ = cfg.Value("reaction field dielectric")
	assert.Equal(t, "82.0", v)

	p := protocol.NewProduction()
	p.Pressure = nil
	cfg, err = New().Generate(p, solvated())
	require.NoError(t, err)
	v, _ = cfg.Value("barostat")
	assert.Equal(t, "False", v)
	_, ok := cfg.Value("pressure")
	assert.False(t, ok)
}

func TestEquilibrationLimits(t *testing.T) {
	tests := []struct {
		name   string
		modify func(p *protocol.Equilibration)
	}{
		{
			name:   "backbone restraint",
			modify: func(p *protocol.Equilibration) { p.Restraint = protocol.RestraintBackbone },
		},
		{
			name:   "heavy restraint",
			modify: func(p *protocol.Equilibration) { p.Restraint = protocol.RestraintHeavy },
		},
		{
			name: "heating",
			modify: func(p *protocol.Equilibration) {
				p.TemperatureStart = units.MustTemperature(0, units.Kelvin)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := protocol.NewEquilibration()
			tt.modify(p)
			_, err := New().Generate(p, solvated())
			assert.ErrorIs(t, err, simerr.ErrIncompatibleProtocol)
		})
	}

	cfg, err := New().Generate(protocol.NewEquilibration(), solvated())
	require.NoError(t, err)
	v, _ := cfg.Value("ncycles")
	assert.Equal(t, "10", v)
}

func TestFreeEnergy(t *testing.T) {
	p := protocol.NewFreeEnergy()
	p.Lambda = 0.5
	flags := solvated()
	flags.Platform = "CUDA"

	cfg, err := New().Generate(p, flags)
	require.NoError(t, err)
	assert.Equal(t, "gpu = 0", cfg[0])
	assert.Equal(t, "energy frequency = 100", cfg[3])

	v, _ := cfg.Value("lambda array")
	assert.Equal(t, "0.0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0", v)
	v, _ = cfg.Value("lambda_val")
	assert.Equal(t, "0.5", v)
	v, _ = cfg.Value("constraint")
	assert.Equal(t, "hbonds-notperturbed", v)

	assert.Equal(t, "somd-freenrg", New().Executable(p))
	assert.Contains(t, New().Artifacts(p, "somd"), "gradients.dat")
}

func TestCustomIsVerbatim(t *testing.T) {
	lines := []string{"ncycles = 3", "nmoves = 7", "# comment"}
	cfg, err := New().Generate(protocol.NewCustom(lines), solvated())
	require.NoError(t, err)
	assert.Equal(t, engine.Config(lines), cfg)
}

func TestArgs(t *testing.T) {
	args, err := New().Args(protocol.NewProduction(), "somd", engine.Flags{})
	require.NoError(t, err)
	assert.Equal(t, "-c somd.rst7 -t somd.prm7 -C somd.cfg -p CPU", args.String())

	args, err = New().Args(protocol.NewFreeEnergy(), "somd", engine.Flags{Platform: "OpenCL"})
	require.NoError(t, err)
	assert.Equal(t, []string{"-c", "somd.rst7", "-t", "somd.prm7", "-m", "somd.pert", "-C", "somd.cfg", "-p", "OpenCL"},
		args.List())
}

func TestPlatform(t *testing.T) {
	unset := func(string) (string, bool) { return "", false }
	set := func(string) (string, bool) { return "0", true }

	p, err := New().Platform("", unset)
	require.NoError(t, err)
	assert.Equal(t, "CPU", p)

	p, err = New().Platform("opencl", unset)
	require.NoError(t, err)
	assert.Equal(t, "OpenCL", p)

	_, err = New().Platform("cuda", unset)
	assert.ErrorIs(t, err, simerr.ErrEnvironment)

	p, err = New().Platform("cuda", set)
	require.NoError(t, err)
	assert.Equal(t, "CUDA", p)

	_, err = New().Platform("tpu", set)
	assert.ErrorIs(t, err, simerr.ErrValidation)
}

func TestExtractor(t *testing.T) {
	dir := t.TempDir()
	p := protocol.NewFreeEnergy()
	x := New().Extractor(p, dir, "somd")

	_, ok, err := x.Frame()
	require.NoError(t, err)
	assert.False(t, ok)
	times, err := x.Times()
	require.NoError(t, err)
	assert.Empty(t, times)

	frames := []system.Frame{
		{Positions: []system.Vec3{{0, 0, 0}}},
		{Positions: []system.Vec3{{1, 2, 3}}},
	}
	var buf bytes.Buffer
	require.NoError(t, molio.WriteDCD(&buf, frames, bufferedFrequency, 0.002))
	require.NoError(t, os.WriteFile(filepath.Join(dir, trajectoryFile), buf.Bytes(), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, gradientFile), []byte("0 1.0 -3.5\n500 1.2 -2.5\n"), 0o644))

	frame, ok, err := x.Frame()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []system.Vec3{{1, 2, 3}}, frame.Positions)

	times, err = x.Times()
	require.NoError(t, err)
	require.Len(t, times, 2)
	assert.InDelta(t, 1.0, times[0].Picoseconds(), 1e-9)
	assert.InDelta(t, 2.0, times[1].Picoseconds(), 1e-9)

	gr, ok := x.(results.GradientReader)
	require.True(t, ok)
	grads, err := gr.Gradients()
	require.NoError(t, err)
	assert.Equal(t, []float64{-3.5, -2.5}, grads)

	none, err := New().Extractor(protocol.NewMinimisation(), dir, "somd").Times()
	require.NoError(t, err)
	assert.Nil(t, none)
}
