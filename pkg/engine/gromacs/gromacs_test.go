package gromacs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/biosim/pkg/engine"
	"github.com/picogrid/biosim/pkg/protocol"
	"github.com/picogrid/biosim/pkg/simerr"
	"github.com/picogrid/biosim/pkg/units"
)

func solvated() engine.Flags {
	return engine.Flags{HasBox: true, HasWater: true}
}

func value(t *testing.T, cfg engine.Config, key string) string {
	t.Helper()
	v, ok := cfg.Value(key)
	require.True(t, ok, "missing %s", key)
	return v
}

func TestMinimisationInVacuumBox(t *testing.T) {
	p := protocol.NewMinimisation()
	p.Steps = 1000

	cfg, err := New().Generate(p, engine.Flags{HasBox: true})
	require.NoError(t, err)
	assert.Equal(t, "steep", value(t, cfg, "integrator"))
	assert.Equal(t, "1000", value(t, cfg, "nsteps"))
	assert.Equal(t, "Verlet", value(t, cfg, "cutoff-scheme"))
	assert.Equal(t, "xyz", value(t, cfg, "pbc"))
	assert.Equal(t, "Reaction-Field", value(t, cfg, "coulombtype"))
	assert.Equal(t, "1", value(t, cfg, "epsilon-rf"))
	_, ok := cfg.Value("tcoupl")
	assert.False(t, ok)
	_, ok = cfg.Value("pcoupl")
	assert.False(t, ok)
}

func TestNoBoxIsIncompatible(t *testing.T) {
	for _, p := range []protocol.Protocol{protocol.NewMinimisation(), protocol.NewEquilibration(), protocol.NewProduction()} {
		_, err := New().Generate(p, engine.Flags{})
		assert.ErrorIs(t, err, simerr.ErrIncompatibleProtocol, "%s", p.Kind())
	}

	cfg, err := New().Generate(protocol.NewCustom([]string{"pbc = no"}), engine.Flags{})
	require.NoError(t, err)
	assert.Equal(t, "no", value(t, cfg, "pbc"))
}

func TestProduction(t *testing.T) {
	seed := int64(3)
	flags := solvated()
	flags.Seed = &seed

	cfg, err := New().Generate(protocol.NewProduction(), flags)
	require.NoError(t, err)
	assert.Equal(t, "md", value(t, cfg, "integrator"))
	assert.Equal(t, "0.002", value(t, cfg, "dt"))
	assert.Equal(t, "500000", value(t, cfg, "nsteps"))
	assert.Equal(t, "25000", value(t, cfg, "nstxout"))
	assert.Equal(t, "xyz", value(t, cfg, "pbc"))
	assert.Equal(t, "v-rescale", value(t, cfg, "tcoupl"))
	assert.Equal(t, "300.00", value(t, cfg, "ref-t"))
	assert.Equal(t, "3", value(t, cfg, "gen-seed"))
	assert.Equal(t, "parrinello-rahman", value(t, cfg, "pcoupl"))
	assert.Equal(t, "1.01325", value(t, cfg, "ref-p"))

	p := protocol.NewProduction()
	p.Restart = true
	_, err = New().Generate(p, engine.Flags{HasBox: true})
	assert.ErrorIs(t, err, simerr.ErrIncompatibleProtocol)

	cfg, err = New().Generate(p, engine.Flags{HasBox: true, HasVelocities: true})
	require.NoError(t, err)
	assert.Equal(t, "no", value(t, cfg, "gen-vel"))
	assert.Equal(t, "no", value(t, cfg, "pcoupl"))
}

func TestEquilibrationHeating(t *testing.T) {
	p := protocol.NewEquilibration()
	p.TemperatureStart = units.MustTemperature(100, units.Kelvin)

	cfg, err := New().Generate(p, solvated())
	require.NoError(t, err)
	assert.Equal(t, "single", value(t, cfg, "annealing"))
	assert.Equal(t, "0.00 200.00", value(t, cfg, "annealing-time"))
	assert.Equal(t, "100.00 300.00", value(t, cfg, "annealing-temp"))
	assert.Equal(t, "100.00", value(t, cfg, "gen-temp"))
}

func TestIncompatible(t *testing.T) {
	eq := protocol.NewEquilibration()
	eq.Restraint = protocol.RestraintAll
	_, err := New().Generate(eq, solvated())
	assert.ErrorIs(t, err, simerr.ErrIncompatibleProtocol)

	_, err = New().Generate(protocol.NewFreeEnergy(), solvated())
	assert.ErrorIs(t, err, simerr.ErrIncompatibleProtocol)
}

func TestArtifactsKeepGromppOutput(t *testing.T) {
	artifacts := New().Artifacts(protocol.NewProduction(), "gromacs")
	assert.Contains(t, artifacts, "gromacs_out.gro")
	assert.NotContains(t, artifacts, "gromacs.tpr")
	assert.NotContains(t, artifacts, "mdout.mdp")
}

func TestArgs(t *testing.T) {
	args, err := New().Args(protocol.NewProduction(), "gromacs", engine.Flags{})
	require.NoError(t, err)
	assert.Equal(t, "mdrun -v -deffnm gromacs -c gromacs_out.gro", args.String())
}

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "gmx")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestPrepare(t *testing.T) {
	dir := t.TempDir()
	exe := writeScript(t, t.TempDir(), "echo \"$@\" > grompp.args\n")

	err := New().Prepare(context.Background(), engine.Job{
		WorkDir: dir, Name: "gromacs", Executable: exe, Protocol: protocol.NewProduction(),
	})
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, "grompp.args"))
	require.NoError(t, err)
	assert.Equal(t, "grompp -f gromacs.mdp -c gromacs.gro -p gromacs.top -o gromacs.tpr\n", string(got))
}

func TestPrepareFailure(t *testing.T) {
	exe := writeScript(t, t.TempDir(), "echo 'Fatal error: no atoms'\nexit 1\n")

	err := New().Prepare(context.Background(), engine.Job{
		WorkDir: t.TempDir(), Name: "gromacs", Executable: exe, Protocol: protocol.NewProduction(),
	})
	require.ErrorIs(t, err, simerr.ErrLaunchFailure)
	assert.Contains(t, err.Error(), "Fatal error: no atoms")
}

func TestExtractorWaitsForFinalStructure(t *testing.T) {
	dir := t.TempDir()
	x := New().Extractor(protocol.NewProduction(), dir, "gromacs")

	_, ok, err := x.Frame()
	require.NoError(t, err)
	assert.False(t, ok)

	times, err := x.Times()
	require.NoError(t, err)
	assert.Empty(t, times)
}
