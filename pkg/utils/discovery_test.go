package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/biosim/pkg/molio"
)

func TestMain(m *testing.M) {
	if err := molio.InitDefault(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestDiscoverSystems(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"complex.prm7", "complex.rst7", "complex.pert",
		"ligand.gro", "ligand.top",
		"orphan.rst7",
		"notes.txt", "README",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "runs.prm7"), 0o755))

	systems, err := DiscoverSystems(dir)
	require.NoError(t, err)
	require.Len(t, systems, 2)

	assert.Equal(t, "complex", systems[0].Name)
	assert.ElementsMatch(t, []string{"PRM7", "RST7", "PERT"}, systems[0].Formats)
	assert.Contains(t, systems[0].Files, filepath.Join(dir, "complex.rst7"))

	assert.Equal(t, "ligand", systems[1].Name)
	assert.ElementsMatch(t, []string{"Gro87", "GroTop"}, systems[1].Formats)
}

func TestDiscoverSystemsMissingDir(t *testing.T) {
	_, err := DiscoverSystems(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
