package molio

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/picogrid/biosim/pkg/simerr"
	"github.com/picogrid/biosim/pkg/system"
)

// POINTERS indices used here.
const (
	pointerNAtoms = 0
	pointerIFBox  = 27
)

var formatPattern = regexp.MustCompile(`%FORMAT\((\d*)([aAiIeEfF])(\d+)`)

type prmSection struct {
	width int
	lines []string
}

func (s prmSection) strings() []string {
	var out []string
	for _, line := range s.lines {
		for i := 0; i < len(line); i += s.width {
			end := min(i+s.width, len(line))
			out = append(out, strings.TrimSpace(line[i:end]))
		}
	}
	// Padding at the end of the last line is not a field.
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

func (s prmSection) ints() ([]int, error) {
	var out []int
	for _, line := range s.lines {
		for _, f := range splitFixed(line, s.width) {
			v, err := strconv.Atoi(f)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	return out, nil
}

func (s prmSection) floats() ([]float64, error) {
	var out []float64
	for _, line := range s.lines {
		v, err := parseFloats(splitFixed(line, s.width))
		if err != nil {
			return nil, err
		}
		out = append(out, v...)
	}
	return out, nil
}

func readPRM7Sections(text string) (map[string]prmSection, error) {
	sections := make(map[string]prmSection)
	var flag string
	var cur prmSection
	flush := func() {
		if flag != "" {
			sections[flag] = cur
		}
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "%VERSION"), strings.HasPrefix(line, "%COMMENT"):
		case strings.HasPrefix(line, "%FLAG"):
			flush()
			flag = strings.TrimSpace(strings.TrimPrefix(line, "%FLAG"))
			cur = prmSection{}
		case strings.HasPrefix(line, "%FORMAT"):
			m := formatPattern.FindStringSubmatch(line)
			if m == nil {
				return nil, fmt.Errorf("%w: unsupported topology format line %q", simerr.ErrIO, line)
			}
			cur.width, _ = strconv.Atoi(m[3])
		default:
			if flag != "" && cur.width > 0 {
				cur.lines = append(cur.lines, line)
			}
		}
	}
	flush()
	return sections, nil
}

// ReadPRM7 reads the naming and molecule layout from an AMBER topology. The
// raw text is kept on the returned system under the "PRM7" topology key.
// Atom positions are left at the origin.
func ReadPRM7(r io.Reader) (*system.System, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read topology: %v", simerr.ErrIO, err)
	}
	sections, err := readPRM7Sections(string(raw))
	if err != nil {
		return nil, err
	}

	need := func(flag string) (prmSection, error) {
		s, ok := sections[flag]
		if !ok {
			return prmSection{}, fmt.Errorf("%w: topology is missing the %s section", simerr.ErrIO, flag)
		}
		return s, nil
	}

	ptrSection, err := need("POINTERS")
	if err != nil {
		return nil, err
	}
	pointers, err := ptrSection.ints()
	if err != nil || len(pointers) <= pointerNAtoms {
		return nil, fmt.Errorf("%w: invalid POINTERS section", simerr.ErrIO)
	}
	natoms := pointers[pointerNAtoms]

	nameSection, err := need("ATOM_NAME")
	if err != nil {
		return nil, err
	}
	atomNames := nameSection.strings()
	labelSection, err := need("RESIDUE_LABEL")
	if err != nil {
		return nil, err
	}
	resLabels := labelSection.strings()
	ptrs, err := need("RESIDUE_POINTER")
	if err != nil {
		return nil, err
	}
	resPointers, err := ptrs.ints()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid RESIDUE_POINTER section: %v", simerr.ErrIO, err)
	}
	if len(atomNames) < natoms || len(resPointers) != len(resLabels) {
		return nil, fmt.Errorf("%w: topology sections disagree: %d atoms, %d names, %d residues, %d pointers",
			simerr.ErrIO, natoms, len(atomNames), len(resLabels), len(resPointers))
	}

	residues := make([]system.Residue, len(resLabels))
	for i, label := range resLabels {
		start := resPointers[i] - 1
		end := natoms
		if i+1 < len(resPointers) {
			end = resPointers[i+1] - 1
		}
		if start < 0 || end > natoms || start > end {
			return nil, fmt.Errorf("%w: invalid residue pointer %d", simerr.ErrIO, resPointers[i])
		}
		res := system.Residue{Name: label, Number: i + 1, Atoms: make([]system.Atom, 0, end-start)}
		for _, name := range atomNames[start:end] {
			res.Atoms = append(res.Atoms, system.Atom{Name: name})
		}
		residues[i] = res
	}

	var sizes []int
	if s, ok := sections["ATOMS_PER_MOLECULE"]; ok && len(pointers) > pointerIFBox && pointers[pointerIFBox] > 0 {
		if sizes, err = s.ints(); err != nil {
			return nil, fmt.Errorf("%w: invalid ATOMS_PER_MOLECULE section: %v", simerr.ErrIO, err)
		}
	}

	sys := system.New(prmTitle(sections))
	if sizes != nil {
		sys.Molecules, err = groupBySize(residues, sizes)
		if err != nil {
			return nil, err
		}
	} else {
		sys.Molecules = groupByResidue(residues)
	}

	if s, ok := sections["BOX_DIMENSIONS"]; ok {
		vals, err := s.floats()
		if err == nil && len(vals) >= 4 {
			sys.Box = &system.Box{
				Lengths: system.Vec3{vals[1], vals[2], vals[3]},
				Angles:  system.Vec3{90, vals[0], 90},
			}
		}
	}
	sys.Topologies["PRM7"] = string(raw)
	return sys, nil
}

func prmTitle(sections map[string]prmSection) string {
	if s, ok := sections["TITLE"]; ok && len(s.lines) > 0 {
		return strings.TrimSpace(s.lines[0])
	}
	return ""
}

func groupBySize(residues []system.Residue, sizes []int) ([]*system.Molecule, error) {
	var mols []*system.Molecule
	r := 0
	for i, size := range sizes {
		mol := &system.Molecule{Number: i + 1}
		n := 0
		for n < size && r < len(residues) {
			mol.Residues = append(mol.Residues, residues[r])
			n += len(residues[r].Atoms)
			r++
		}
		if n != size {
			return nil, fmt.Errorf("%w: molecule %d splits a residue", simerr.ErrIO, i+1)
		}
		mols = append(mols, mol)
	}
	if r != len(residues) {
		return nil, fmt.Errorf("%w: ATOMS_PER_MOLECULE does not cover all residues", simerr.ErrIO)
	}
	return mols, nil
}

var ionNames = map[string]bool{
	"NA": true, "NA+": true, "CL": true, "CL-": true, "K": true, "K+": true,
	"MG": true, "MG2": true, "ZN": true, "ZN2": true,
}

// groupByResidue is used when the file has no molecule layout. Water and
// ion residues become single-residue molecules; runs of other residues are
// joined into one molecule.
func groupByResidue(residues []system.Residue) []*system.Molecule {
	var mols []*system.Molecule
	var cur *system.Molecule
	for _, res := range residues {
		single := &system.Molecule{Residues: []system.Residue{res}}
		if single.IsWater() || ionNames[strings.ToUpper(res.Name)] {
			mols = append(mols, single)
			cur = nil
			continue
		}
		if cur == nil {
			cur = &system.Molecule{}
			mols = append(mols, cur)
		}
		cur.Residues = append(cur.Residues, res)
	}
	for i, m := range mols {
		m.Number = i + 1
	}
	return mols
}
