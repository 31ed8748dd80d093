package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/biosim/pkg/simerr"
)

func solvated() *System {
	s := New("ala")
	s.Molecules = []*Molecule{
		{Number: 1, Residues: []Residue{
			{Name: "ACE", Number: 1, Atoms: []Atom{{Name: "C", Position: Vec3{0, 0, 0}}}},
			{Name: "ALA", Number: 2, Atoms: []Atom{{Name: "CA", Position: Vec3{1, 2, 3}}}},
		}},
		{Number: 2, Residues: []Residue{
			{Name: "WAT", Number: 3, Atoms: []Atom{
				{Name: "O", Position: Vec3{-1, 5, 2}},
				{Name: "H1", Position: Vec3{-1.5, 5, 2}},
				{Name: "H2", Position: Vec3{-0.5, 5, 2}},
			}},
		}},
	}
	s.Box = &Box{Lengths: Vec3{30, 30, 30}, Angles: Vec3{90, 90, 90}}
	return s
}

func TestQueries(t *testing.T) {
	s := solvated()
	assert.Equal(t, 2, s.NMolecules())
	assert.Equal(t, 5, s.NAtoms())
	assert.True(t, s.HasBox())
	assert.True(t, s.HasWater())
	assert.Equal(t, 1, s.NWaterMolecules())
	assert.Empty(t, s.PerturbableMolecules())

	s.Molecules[0].Perturbation = "version 1\n"
	require.Len(t, s.PerturbableMolecules(), 1)
	assert.Equal(t, "ACE", s.PerturbableMolecules()[0].Name())
}

func TestAABox(t *testing.T) {
	box := solvated().AABox()
	assert.Equal(t, Vec3{-1.5, 0, 0}, box.Min)
	assert.Equal(t, Vec3{1, 5, 3}, box.Max)
	assert.Equal(t, Vec3{2.5, 5, 3}, box.Size())

	assert.Equal(t, AABox{}, New("empty").AABox())
}

func TestCloneIsDeep(t *testing.T) {
	s := solvated()
	c := s.Clone()
	c.Molecules[0].Residues[0].Atoms[0].Position = Vec3{9, 9, 9}
	c.Box.Lengths[0] = 1
	c.Properties["k"] = "v"

	assert.Equal(t, Vec3{0, 0, 0}, s.Molecules[0].Residues[0].Atoms[0].Position)
	assert.Equal(t, 30.0, s.Box.Lengths[0])
	assert.NotContains(t, s.Properties, "k")
}

func TestUpdateCoordinates(t *testing.T) {
	s := solvated()
	frame := Frame{
		Positions: []Vec3{{1, 1, 1}, {2, 2, 2}, {3, 3, 3}, {4, 4, 4}, {5, 5, 5}},
		Box:       &Box{Lengths: Vec3{31, 31, 31}, Angles: Vec3{90, 90, 90}},
	}
	require.NoError(t, s.UpdateCoordinates(frame))
	assert.Equal(t, Vec3{5, 5, 5}, s.Molecules[1].Residues[0].Atoms[2].Position)
	assert.Equal(t, "H2", s.Molecules[1].Residues[0].Atoms[2].Name)
	assert.Equal(t, 31.0, s.Box.Lengths[0])

	err := s.UpdateCoordinates(Frame{Positions: []Vec3{{0, 0, 0}}})
	assert.ErrorIs(t, err, simerr.ErrValidation)
}

func TestUpdateCoordinatesVelocities(t *testing.T) {
	s := solvated()
	positions := s.Positions()
	vels := []Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, 1, 0}, {0, 1, 1}}
	require.NoError(t, s.UpdateCoordinates(Frame{Positions: positions, Velocities: vels}))
	assert.True(t, s.HasVelocities())
	assert.Equal(t, vels, s.Clone().Velocities)

	err := s.UpdateCoordinates(Frame{Positions: positions, Velocities: vels[:2]})
	assert.ErrorIs(t, err, simerr.ErrValidation)

	require.NoError(t, s.UpdateCoordinates(Frame{Positions: positions}))
	assert.False(t, s.HasVelocities())
}
