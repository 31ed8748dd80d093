// Package system holds the in-memory molecular system that simulations read
// from and write back to.
//
// The system is owned by the caller. Simulation code only reads its property
// bag (box, molecule counts, water and perturbation markers) and updates
// coordinates from engine output.
package system

import (
	"fmt"
	"math"
	"strings"

	"github.com/picogrid/biosim/pkg/simerr"
)

// Vec3 is a point or vector in angstrom.
type Vec3 [3]float64

// Atom is a single atom.
type Atom struct {
	Name     string
	Position Vec3
}

// Residue is a named group of atoms.
type Residue struct {
	Name   string
	Number int
	Atoms  []Atom
}

// Molecule is a bonded group of residues.
type Molecule struct {
	Number   int
	Residues []Residue
	// Perturbation holds the engine perturbation file text for a perturbable
	// molecule. It is empty for ordinary molecules.
	Perturbation string
}

// Box is a periodic simulation cell.
type Box struct {
	Lengths Vec3
	Angles  Vec3
}

// AABox is an axis-aligned bounding box.
type AABox struct {
	Min Vec3
	Max Vec3
}

// Center returns the center of the bounding box.
func (b AABox) Center() Vec3 {
	return Vec3{(b.Min[0] + b.Max[0]) / 2, (b.Min[1] + b.Max[1]) / 2, (b.Min[2] + b.Max[2]) / 2}
}

// Size returns the edge lengths of the bounding box.
func (b AABox) Size() Vec3 {
	return Vec3{b.Max[0] - b.Min[0], b.Max[1] - b.Min[1], b.Max[2] - b.Min[2]}
}

// System is a collection of molecules plus the properties engines need.
type System struct {
	Name       string
	Molecules  []*Molecule
	Box        *Box
	// Velocities holds one velocity per atom in angstrom/ps, or nil when the
	// system has none.
	Velocities []Vec3
	Properties map[string]string
	// Topologies keeps engine-format topology text, keyed by format name
	// (e.g. "PRM7", "TOP"). The text is carried through unchanged.
	Topologies map[string]string
}

// New creates an empty system.
func New(name string) *System {
	return &System{
		Name:       name,
		Properties: make(map[string]string),
		Topologies: make(map[string]string),
	}
}

var waterNames = map[string]bool{
	"WAT": true, "HOH": true, "SOL": true, "TIP3": true, "TP3": true,
	"SPC": true, "T3P": true, "T4P": true, "TIP4": true, "TIP5": true,
}

// IsWater reports whether the molecule is a single water residue.
func (m *Molecule) IsWater() bool {
	return len(m.Residues) == 1 && waterNames[strings.ToUpper(m.Residues[0].Name)]
}

// IsPerturbable reports whether the molecule carries perturbation data.
func (m *Molecule) IsPerturbable() bool {
	return m.Perturbation != ""
}

// NAtoms returns the number of atoms in the molecule.
func (m *Molecule) NAtoms() int {
	n := 0
	for _, r := range m.Residues {
		n += len(r.Atoms)
	}
	return n
}

// Name returns the name of the first residue, which is how single-residue
// ligands are referred to in perturbation files.
func (m *Molecule) Name() string {
	if len(m.Residues) == 0 {
		return ""
	}
	return m.Residues[0].Name
}

func (s *System) NMolecules() int { return len(s.Molecules) }

// NAtoms returns the total number of atoms.
func (s *System) NAtoms() int {
	n := 0
	for _, m := range s.Molecules {
		n += m.NAtoms()
	}
	return n
}

// HasBox reports whether the system has periodic space.
func (s *System) HasBox() bool {
	return s.Box != nil
}

// HasVelocities reports whether every atom carries a velocity.
func (s *System) HasVelocities() bool {
	return len(s.Velocities) > 0 && len(s.Velocities) == s.NAtoms()
}

// HasWater reports whether the system contains any water molecules.
func (s *System) HasWater() bool {
	return s.NWaterMolecules() > 0
}

// NWaterMolecules returns the number of water molecules.
func (s *System) NWaterMolecules() int {
	n := 0
	for _, m := range s.Molecules {
		if m.IsWater() {
			n++
		}
	}
	return n
}

// PerturbableMolecules returns the molecules that carry perturbation data.
func (s *System) PerturbableMolecules() []*Molecule {
	var out []*Molecule
	for _, m := range s.Molecules {
		if m.IsPerturbable() {
			out = append(out, m)
		}
	}
	return out
}

// Positions returns all atom positions in order.
func (s *System) Positions() []Vec3 {
	out := make([]Vec3, 0, s.NAtoms())
	for _, m := range s.Molecules {
		for _, r := range m.Residues {
			for _, a := range r.Atoms {
				out = append(out, a.Position)
			}
		}
	}
	return out
}

// AABox returns the axis-aligned bounding box of all atoms.
func (s *System) AABox() AABox {
	box := AABox{
		Min: Vec3{math.Inf(1), math.Inf(1), math.Inf(1)},
		Max: Vec3{math.Inf(-1), math.Inf(-1), math.Inf(-1)},
	}
	positions := s.Positions()
	if len(positions) == 0 {
		return AABox{}
	}
	for _, p := range positions {
		for i := 0; i < 3; i++ {
			box.Min[i] = math.Min(box.Min[i], p[i])
			box.Max[i] = math.Max(box.Max[i], p[i])
		}
	}
	return box
}

// Clone returns a deep copy of the system.
func (s *System) Clone() *System {
	out := &System{
		Name:       s.Name,
		Molecules:  make([]*Molecule, len(s.Molecules)),
		Properties: make(map[string]string, len(s.Properties)),
		Topologies: make(map[string]string, len(s.Topologies)),
	}
	for i, m := range s.Molecules {
		mol := &Molecule{
			Number:       m.Number,
			Perturbation: m.Perturbation,
			Residues:     make([]Residue, len(m.Residues)),
		}
		for j, r := range m.Residues {
			mol.Residues[j] = Residue{
				Name:   r.Name,
				Number: r.Number,
				Atoms:  append([]Atom(nil), r.Atoms...),
			}
		}
		out.Molecules[i] = mol
	}
	if s.Box != nil {
		box := *s.Box
		out.Box = &box
	}
	out.Velocities = append([]Vec3(nil), s.Velocities...)
	for k, v := range s.Properties {
		out.Properties[k] = v
	}
	for k, v := range s.Topologies {
		out.Topologies[k] = v
	}
	return out
}

// Frame is a set of coordinates, and optionally a box and velocities, read
// from engine output.
type Frame struct {
	Positions  []Vec3
	Velocities []Vec3
	Box        *Box
}

// UpdateCoordinates copies positions from frame into the system, keeping the
// system's own molecule, residue and atom naming.
func (s *System) UpdateCoordinates(frame Frame) error {
	if len(frame.Positions) != s.NAtoms() {
		return fmt.Errorf("%w: frame has %d atoms, system has %d",
			simerr.ErrValidation, len(frame.Positions), s.NAtoms())
	}
	if frame.Velocities != nil && len(frame.Velocities) != len(frame.Positions) {
		return fmt.Errorf("%w: frame has %d velocities for %d atoms",
			simerr.ErrValidation, len(frame.Velocities), len(frame.Positions))
	}
	i := 0
	for _, m := range s.Molecules {
		for r := range m.Residues {
			for a := range m.Residues[r].Atoms {
				m.Residues[r].Atoms[a].Position = frame.Positions[i]
				i++
			}
		}
	}
	// Positions without velocities leave the old velocities stale.
	s.Velocities = append([]Vec3(nil), frame.Velocities...)
	if frame.Box != nil {
		box := *frame.Box
		s.Box = &box
	}
	return nil
}

func (s *System) String() string {
	return fmt.Sprintf("System(name=%q, molecules=%d, atoms=%d, box=%t)",
		s.Name, s.NMolecules(), s.NAtoms(), s.HasBox())
}
