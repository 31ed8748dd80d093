package amber

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/biosim/pkg/engine"
	"github.com/picogrid/biosim/pkg/protocol"
	"github.com/picogrid/biosim/pkg/results"
	"github.com/picogrid/biosim/pkg/simerr"
	"github.com/picogrid/biosim/pkg/units"
)

func solvated() engine.Flags {
	return engine.Flags{HasBox: true, HasWater: true}
}

func TestRegistered(t *testing.T) {
	e, err := engine.DefaultRegistry.Get(Name)
	require.NoError(t, err)
	assert.Equal(t, "sander", e.Executable(protocol.NewProduction()))
}

func TestMinimisationWithoutBox(t *testing.T) {
	p := protocol.NewMinimisation()
	p.Steps = 1000

	cfg, err := New().Generate(p, engine.Flags{})
	require.NoError(t, err)
	assert.Equal(t, engine.Config{
		"Minimisation",
		" &cntrl",
		"  imin=1,",
		"  ntx=1,",
		"  ntxo=1,",
		"  ntpr=100,",
		"  maxcyc=1000,",
		"  ncyc=100,",
		"  cut=999.0,",
		"  ntb=0,",
		" /",
	}, cfg)
	assert.NotContains(t, cfg.Text(), "  ntt=")
	assert.NotContains(t, cfg.Text(), "  ntp=")
}

func TestNamelistKeysMatchExactly(t *testing.T) {
	p := protocol.NewProduction()
	p.Pressure = nil
	cfg, err := New().Generate(p, solvated())
	require.NoError(t, err)
	assert.Contains(t, cfg.Text(), "  ntpr=")
	assert.NotContains(t, cfg.Text(), "  ntp=")

	atm := units.NewPressure(1, units.Atmosphere)
	p.Pressure = &atm
	cfg, err = New().Generate(p, solvated())
	require.NoError(t, err)
	assert.Contains(t, cfg.Text(), "  ntp=1,\n")
}

func TestEquilibrationHeatingWithRestraint(t *testing.T) {
	p := protocol.NewEquilibration()
	p.TemperatureStart = units.MustTemperature(0, units.Kelvin)
	p.Restraint = protocol.RestraintBackbone
	seed := int64(7)
	flags := solvated()
	flags.Seed = &seed

	cfg, err := New().Generate(p, flags)
	require.NoError(t, err)
	text := cfg.Text()
	assert.Contains(t, text, "  ig=7,\n")
	assert.Contains(t, text, "  nstlim=100000,\n")
	assert.Contains(t, text, "  dt=0.002,\n")
	assert.Contains(t, text, "  ntwx=5000,\n")
	assert.Contains(t, text, "  ntr=1,\n")
	assert.Contains(t, text, "  restraintmask=\"@CA,C,O,N\",\n")
	assert.Contains(t, text, "  tempi=0.00,\n  temp0=300.00,\n  nmropt=1,\n")
	assert.True(t, strings.HasSuffix(text,
		" /\n &wt TYPE='TEMP0', istep1=0, istep2=100000, value1=0.00, value2=300.00 /\n &wt TYPE='END' /\n"))

	args, err := New().Args(p, "amber", flags)
	require.NoError(t, err)
	v, ok := args.Get("-ref")
	require.True(t, ok)
	assert.Equal(t, "amber.rst7", v)
}

func TestProductionPressureInBar(t *testing.T) {
	p := protocol.NewProduction()
	p.Restart = true
	flags := solvated()
	flags.HasVelocities = true

	cfg, err := New().Generate(p, flags)
	require.NoError(t, err)
	text := cfg.Text()
	assert.Contains(t, text, "  ig=-1,\n")
	assert.Contains(t, text, "  ntx=5,\n  irest=1,\n")
	assert.Contains(t, text, "  ntb=2,\n  ntp=1,\n  pres0=1.01325,\n")
	assert.Contains(t, text, "  temp0=300.00,\n")

	p.Pressure = nil
	cfg, err = New().Generate(p, flags)
	require.NoError(t, err)
	assert.Contains(t, cfg.Text(), "  ntb=1,\n")
	assert.NotContains(t, cfg.Text(), "pres0")
}

func TestRestartWithoutVelocitiesIsIncompatible(t *testing.T) {
	p := protocol.NewProduction()
	p.Restart = true
	_, err := New().Generate(p, solvated())
	assert.ErrorIs(t, err, simerr.ErrIncompatibleProtocol)
}

func TestFreeEnergyIsIncompatible(t *testing.T) {
	_, err := New().Generate(protocol.NewFreeEnergy(), solvated())
	assert.ErrorIs(t, err, simerr.ErrIncompatibleProtocol)
}

func TestArgs(t *testing.T) {
	args, err := New().Args(protocol.NewProduction(), "amber", solvated())
	require.NoError(t, err)
	assert.Equal(t, "-O -i amber.cfg -p amber.prm7 -c amber.rst7 -r amber.crd -inf amber.nrg -o stdout", args.String())
}

const mdout = ` NSTEP =      500   TIME(PS) =       1.000  TEMP(K) =   299.12  PRESS =     0.0
 Etot   =     -1234.5678  EKtot   =       567.8901  EPtot      =     -1802.4579
 ------------------------------------------------------------------------------

 NSTEP =     1000   TIME(PS) =       2.000  TEMP(K) =   301.50  PRESS =     0.0
 Etot   =     -1230.0000  EKtot   =       570.0000  EPtot      =     -1800.0000
 ------------------------------------------------------------------------------
`

func TestExtractor(t *testing.T) {
	dir := t.TempDir()
	x := New().Extractor(protocol.NewProduction(), dir, "amber")

	_, ok, err := x.Frame()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "amber.out"), []byte(mdout), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "amber.crd"),
		[]byte("amber\n    2\n   1.0000000   2.0000000   3.0000000   4.0000000   5.0000000   6.0000000\n"), 0o644))

	frame, ok, err := x.Frame()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, frame.Positions, 2)

	times, err := x.Times()
	require.NoError(t, err)
	require.Len(t, times, 2)
	assert.InDelta(t, 2.0, times[1].Picoseconds(), 1e-9)

	er, ok := x.(results.EnergyReader)
	require.True(t, ok)
	etot, err := er.Energies("Etot")
	require.NoError(t, err)
	assert.Equal(t, []float64{-1234.5678, -1230}, etot)
}
