package simulation

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/biosim/pkg/engine/gromacs"
	"github.com/picogrid/biosim/pkg/engine/somd"
	"github.com/picogrid/biosim/pkg/ledger"
	"github.com/picogrid/biosim/pkg/molio"
	"github.com/picogrid/biosim/pkg/process"
	"github.com/picogrid/biosim/pkg/protocol"
	"github.com/picogrid/biosim/pkg/simerr"
	"github.com/picogrid/biosim/pkg/system"
)

func TestMain(m *testing.M) {
	if err := molio.InitDefault(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func testSystem() *system.System {
	sys := system.New("complex")
	sys.Box = &system.Box{Lengths: system.Vec3{30, 30, 30}, Angles: system.Vec3{90, 90, 90}}
	sys.Molecules = []*system.Molecule{
		{Number: 1, Residues: []system.Residue{{Name: "LIG", Number: 1, Atoms: []system.Atom{
			{Name: "C1", Position: system.Vec3{1, 1, 1}},
			{Name: "C2", Position: system.Vec3{2, 2, 2}},
		}}}},
		{Number: 2, Residues: []system.Residue{{Name: "WAT", Number: 2, Atoms: []system.Atom{
			{Name: "O", Position: system.Vec3{5, 5, 5}},
			{Name: "H1", Position: system.Vec3{5.9, 5, 5}},
			{Name: "H2", Position: system.Vec3{5, 5.9, 5}},
		}}}},
	}
	sys.Topologies["PRM7"] = "%VERSION  VERSION_STAMP = V0001.000\n%FLAG TITLE\n%FORMAT(20a4)\ncomplex\n"
	return sys
}

func perturbable() *system.System {
	sys := testSystem()
	sys.Molecules[0].Perturbation = "version 1\nmolecule LIG\nendmolecule\n"
	return sys
}

// fakeEngine writes a shell script standing in for an engine binary.
func fakeEngine(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "somd")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// trajectory writes a two-frame DCD for the test system and returns its path.
func trajectory(t *testing.T) string {
	t.Helper()
	frames := []system.Frame{
		{Positions: []system.Vec3{{0, 0, 0}, {1, 0, 0}, {4, 4, 4}, {5, 4, 4}, {4, 5, 4}}},
		{Positions: []system.Vec3{{1, 1, 0}, {2, 1, 0}, {6, 6, 6}, {7, 6, 6}, {6, 7, 6}}},
	}
	var buf bytes.Buffer
	require.NoError(t, molio.WriteDCD(&buf, frames, 500, 0.002))
	path := filepath.Join(t.TempDir(), "fixture.dcd")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestProductionRun(t *testing.T) {
	ctx := waitCtx(t)
	dir := filepath.Join(t.TempDir(), "production")
	exe := fakeEngine(t, "echo \"$@\" > args.txt\ncp "+trajectory(t)+" traj000000001.dcd\n")
	store := ledger.NewMemoryStore()

	run, err := New(ctx, testSystem(), protocol.NewProduction(), somd.Name,
		WithWorkDir(dir), WithExecutable(exe), WithSeed(11), WithLedger(store))
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "somd.rst7"),
		filepath.Join(dir, "somd.prm7"),
		filepath.Join(dir, "somd.cfg"),
	}, run.InputFiles())
	for _, f := range run.InputFiles() {
		assert.FileExists(t, f)
	}
	cfg, err := os.ReadFile(filepath.Join(dir, "somd.cfg"))
	require.NoError(t, err)
	assert.Equal(t, run.Config().Text(), string(cfg))
	assert.Contains(t, string(cfg), "random seed = 11\n")
	assert.Contains(t, string(cfg), "cutoff type = cutoffperiodic\n")

	_, ok, err := run.System(ctx, false)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, run.Start(ctx))
	sys, ok, err := run.System(ctx, true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, process.Finished, run.Poll())
	assert.False(t, run.IsError())

	args, err := os.ReadFile(filepath.Join(dir, "args.txt"))
	require.NoError(t, err)
	assert.Equal(t, "-c somd.rst7 -t somd.prm7 -C somd.cfg -p CPU\n", string(args))

	assert.Equal(t, "WAT", sys.Molecules[1].Residues[0].Name)
	assert.Equal(t, "H2", sys.Molecules[1].Residues[0].Atoms[2].Name)
	assert.Equal(t, system.Vec3{6, 7, 6}, sys.Molecules[1].Residues[0].Atoms[2].Position)

	times, err := run.Times(ctx, false)
	require.NoError(t, err)
	require.Len(t, times, 2)
	assert.InDelta(t, 2.0, times[1].Picoseconds(), 1e-9)
	last, ok, err := run.Time(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 2.0, last.Picoseconds(), 1e-9)

	rec, err := store.Get(ctx, run.Record().ID)
	require.NoError(t, err)
	assert.Equal(t, "finished", rec.State)
	assert.Equal(t, "production", rec.Protocol)
	assert.Equal(t, dir, rec.WorkDir)
}

func TestFreeEnergyRun(t *testing.T) {
	ctx := waitCtx(t)
	body := "printf '# lambda 0.0\\n0 1.0 -2.0\\n500 1.0 -1.5\\n' > gradients.dat\n"
	run, err := New(ctx, perturbable(), protocol.NewFreeEnergy(), somd.Name,
		WithWorkDir(t.TempDir()), WithExecutable(fakeEngine(t, body)))
	require.NoError(t, err)

	pert := filepath.Join(run.WorkDir(), "somd.pert")
	assert.Contains(t, run.InputFiles(), pert)
	data, err := os.ReadFile(pert)
	require.NoError(t, err)
	assert.Contains(t, string(data), "molecule LIG")
	assert.Contains(t, run.Command(), "-m somd.pert")

	require.NoError(t, run.Start(ctx))
	grads, err := run.Gradients(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []float64{-2.0, -1.5}, grads)
	g, ok, err := run.Gradient(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, -1.5, g)

	_, err = run.Energies(ctx, "Etot", false)
	assert.ErrorIs(t, err, simerr.ErrUnsupportedProtocol)
}

func TestRestartDropsCachedResults(t *testing.T) {
	ctx := waitCtx(t)
	marker := filepath.Join(t.TempDir(), "ran-once")
	body := "if [ -f " + marker + " ]; then\n" +
		"  printf '10\\n20\\n30\\n40\\n' > gradients.dat\n" +
		"else\n" +
		"  touch " + marker + "\n" +
		"  printf '1.0\\n2.0\\n3.0\\n' > gradients.dat\n" +
		"fi\n"
	run, err := New(ctx, perturbable(), protocol.NewFreeEnergy(), somd.Name,
		WithWorkDir(t.TempDir()), WithExecutable(fakeEngine(t, body)))
	require.NoError(t, err)

	require.NoError(t, run.Start(ctx))
	grads, err := run.Gradients(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, grads)

	require.NoError(t, run.Start(ctx))
	grads, err = run.Gradients(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20, 30, 40}, grads)
}

func TestGromacsRunKeepsCompiledInput(t *testing.T) {
	ctx := waitCtx(t)
	sys := testSystem()
	sys.Topologies["TOP"] = "[ system ]\ncomplex\n"
	body := "case \"$1\" in\n" +
		"grompp) touch gromacs.tpr mdout.mdp ;;\n" +
		"mdrun)\n" +
		"  if [ ! -f gromacs.tpr ]; then echo 'Fatal error: gromacs.tpr missing'; exit 1; fi\n" +
		"  cp gromacs.gro gromacs_out.gro ;;\n" +
		"esac\n"
	exe := filepath.Join(t.TempDir(), "gmx")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"+body), 0o755))

	run, err := New(ctx, sys, protocol.NewMinimisation(), gromacs.Name,
		WithWorkDir(t.TempDir()), WithExecutable(exe))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(run.WorkDir(), "gromacs.tpr"))

	require.NoError(t, run.Start(ctx))
	out, ok, err := run.System(ctx, true)
	require.NoError(t, err)
	require.False(t, run.IsError())
	require.True(t, ok)
	assert.Equal(t, "H2", out.Molecules[1].Residues[0].Atoms[2].Name)
	assert.InDelta(t, 5.9, out.Molecules[1].Residues[0].Atoms[1].Position[0], 1e-6)
}

func TestFreeEnergyNeedsOnePerturbableMolecule(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fe")
	_, err := New(context.Background(), testSystem(), protocol.NewFreeEnergy(), somd.Name,
		WithWorkDir(dir), WithExecutable(fakeEngine(t, "true\n")))
	assert.ErrorIs(t, err, simerr.ErrValidation)
	assert.NoDirExists(t, dir)
}

func TestIncompatibleProtocolWritesNothing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "eq")
	p := protocol.NewEquilibration()
	p.Restraint = protocol.RestraintBackbone

	_, err := New(context.Background(), testSystem(), p, somd.Name,
		WithWorkDir(dir), WithExecutable(fakeEngine(t, "true\n")))
	assert.ErrorIs(t, err, simerr.ErrIncompatibleProtocol)
	assert.NoDirExists(t, dir)
}

func TestSetupErrors(t *testing.T) {
	ctx := context.Background()
	exe := fakeEngine(t, "true\n")

	_, err := New(ctx, testSystem(), protocol.NewProduction(), "no-such-engine", WithExecutable(exe))
	assert.ErrorIs(t, err, simerr.ErrValidation)

	_, err = New(ctx, testSystem(), protocol.NewProduction(), somd.Name,
		WithWorkDir(t.TempDir()), WithExecutable("biosim-missing-somd"))
	assert.ErrorIs(t, err, simerr.ErrMissingExecutable)

	bad := protocol.NewMinimisation()
	bad.Steps = 0
	_, err = New(ctx, testSystem(), bad, somd.Name, WithWorkDir(t.TempDir()), WithExecutable(exe))
	assert.ErrorIs(t, err, simerr.ErrValidation)

	_, err = New(ctx, testSystem(), protocol.NewProduction(), somd.Name,
		WithWorkDir(t.TempDir()), WithExecutable(exe), WithPlatform("CUDA"),
		WithLookupEnv(func(string) (string, bool) { return "", false }))
	assert.ErrorIs(t, err, simerr.ErrEnvironment)
}

func TestCUDAPlatform(t *testing.T) {
	run, err := New(context.Background(), testSystem(), protocol.NewProduction(), somd.Name,
		WithWorkDir(t.TempDir()), WithExecutable(fakeEngine(t, "true\n")), WithPlatform("cuda"),
		WithLookupEnv(func(string) (string, bool) { return "0", true }))
	require.NoError(t, err)
	assert.Equal(t, "gpu = 0", run.Config()[0])
	assert.Equal(t, "CUDA", run.Flags().Platform)
	assert.True(t, strings.HasSuffix(strings.Join(run.Args(), " "), "-p CUDA"))
}

func TestSetConfig(t *testing.T) {
	ctx := waitCtx(t)
	run, err := New(ctx, testSystem(), protocol.NewMinimisation(), somd.Name,
		WithWorkDir(t.TempDir()), WithExecutable(fakeEngine(t, "true\n")))
	require.NoError(t, err)
	assert.False(t, run.Protocol().IsCustomised())

	require.NoError(t, run.SetConfig([]string{"minimise = True", "ncycles = 1"}))
	assert.True(t, run.Protocol().IsCustomised())
	data, err := os.ReadFile(filepath.Join(run.WorkDir(), "somd.cfg"))
	require.NoError(t, err)
	assert.Equal(t, "minimise = True\nncycles = 1\n", string(data))
}

func TestCustomProtocolIsMarkedCustomised(t *testing.T) {
	p := protocol.NewCustom([]string{"ncycles = 2", "nmoves = 5"})
	run, err := New(context.Background(), testSystem(), p, somd.Name,
		WithWorkDir(t.TempDir()), WithExecutable(fakeEngine(t, "true\n")))
	require.NoError(t, err)
	assert.True(t, run.Protocol().IsCustomised())
	assert.Equal(t, []string{"ncycles = 2", "nmoves = 5"}, run.Config().Lines())
}

func TestErroredRunHasNoSystem(t *testing.T) {
	ctx := waitCtx(t)
	body := "cp " + trajectory(t) + " traj000000001.dcd\necho 'Traceback (most recent call last):'\n"
	run, err := New(ctx, testSystem(), protocol.NewProduction(), somd.Name,
		WithWorkDir(t.TempDir()), WithExecutable(fakeEngine(t, body)))
	require.NoError(t, err)

	require.NoError(t, run.Start(ctx))
	require.NoError(t, run.Wait(ctx))
	assert.True(t, run.IsError())
	assert.Equal(t, process.Errored, run.Poll())

	_, ok, err := run.System(ctx, false)
	require.NoError(t, err)
	assert.False(t, ok)

	stderr, err := run.Stderr(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"All output has been redirected to the stdout stream!"}, stderr)
}

func TestStartTwice(t *testing.T) {
	ctx := waitCtx(t)
	dir := t.TempDir()
	release := filepath.Join(dir, "release")
	run, err := New(ctx, testSystem(), protocol.NewProduction(), somd.Name,
		WithWorkDir(dir), WithExecutable(fakeEngine(t, "while [ ! -f "+release+" ]; do sleep 0.01; done\n")))
	require.NoError(t, err)

	require.NoError(t, run.Start(ctx))
	assert.ErrorIs(t, run.Start(ctx), simerr.ErrAlreadyRunning)
	assert.ErrorIs(t, run.SetConfig([]string{"x = 1"}), simerr.ErrAlreadyRunning)

	require.NoError(t, os.WriteFile(release, nil, 0o644))
	require.NoError(t, run.Wait(ctx))
	assert.Equal(t, process.Finished, run.Poll())
	assert.Positive(t, run.ElapsedTime())
}
