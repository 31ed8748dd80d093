package molio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/picogrid/biosim/pkg/simerr"
	"github.com/picogrid/biosim/pkg/system"
)

// ReadGRO parses a GROMACS Gro87 structure. Coordinates are converted from
// nanometer to angstrom. Velocities are kept only when every atom line has
// them.
func ReadGRO(r io.Reader) (*system.System, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read gro file: %v", simerr.ErrIO, err)
	}
	if len(lines) < 3 {
		return nil, fmt.Errorf("%w: gro file is truncated", simerr.ErrIO)
	}
	natoms, err := strconv.Atoi(strings.TrimSpace(lines[1]))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid atom count %q in gro file", simerr.ErrIO, lines[1])
	}
	if len(lines) < natoms+3 {
		return nil, fmt.Errorf("%w: gro file lists %d atoms but has %d lines", simerr.ErrIO, natoms, len(lines))
	}

	var residues []system.Residue
	velocities := make([]system.Vec3, 0, natoms)
	lastKey := ""
	for i, line := range lines[2 : natoms+2] {
		if len(line) < 44 {
			return nil, fmt.Errorf("%w: gro atom line %d is too short", simerr.ErrIO, i+1)
		}
		resNum := strings.TrimSpace(line[0:5])
		resName := strings.TrimSpace(line[5:10])
		atomName := strings.TrimSpace(line[10:15])
		var pos system.Vec3
		for k := 0; k < 3; k++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(line[20+8*k:28+8*k]), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid coordinate on gro atom line %d", simerr.ErrIO, i+1)
			}
			pos[k] = v * 10
		}
		if vel, ok := groVelocity(line); ok && len(velocities) == i {
			velocities = append(velocities, vel)
		}
		if key := resNum + ":" + resName; key != lastKey {
			num, _ := strconv.Atoi(resNum)
			residues = append(residues, system.Residue{Name: resName, Number: num})
			lastKey = key
		}
		res := &residues[len(residues)-1]
		res.Atoms = append(res.Atoms, system.Atom{Name: atomName, Position: pos})
	}

	sys := system.New(strings.TrimSpace(lines[0]))
	sys.Molecules = groupByResidue(residues)
	if natoms > 0 && len(velocities) == natoms {
		sys.Velocities = velocities
	}

	boxVals, err := parseFloats(strings.Fields(lines[natoms+2]))
	if err != nil || len(boxVals) < 3 {
		return nil, fmt.Errorf("%w: invalid gro box line %q", simerr.ErrIO, lines[natoms+2])
	}
	if boxVals[0] > 0 || boxVals[1] > 0 || boxVals[2] > 0 {
		sys.Box = &system.Box{
			Lengths: system.Vec3{boxVals[0] * 10, boxVals[1] * 10, boxVals[2] * 10},
			Angles:  system.Vec3{90, 90, 90},
		}
	}
	return sys, nil
}

// groVelocity reads the optional velocity columns of a gro atom line,
// converting nm/ps to angstrom/ps.
func groVelocity(line string) (system.Vec3, bool) {
	if len(line) < 68 {
		return system.Vec3{}, false
	}
	var vel system.Vec3
	for k := 0; k < 3; k++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(line[44+8*k:52+8*k]), 64)
		if err != nil {
			return system.Vec3{}, false
		}
		vel[k] = v * 10
	}
	return vel, true
}

// WriteGRO writes the system as a Gro87 structure. Systems without a box get
// a zero box line.
func WriteGRO(w io.Writer, sys *system.System) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s\n%5d\n", sys.Name, sys.NAtoms())
	withVel := sys.HasVelocities()
	atom := 0
	for _, m := range sys.Molecules {
		for _, res := range m.Residues {
			for _, a := range res.Atoms {
				atom++
				fmt.Fprintf(bw, "%5d%-5s%5s%5d%8.3f%8.3f%8.3f",
					res.Number%100000, truncate(res.Name, 5), truncate(a.Name, 5), atom%100000,
					a.Position[0]/10, a.Position[1]/10, a.Position[2]/10)
				if withVel {
					v := sys.Velocities[atom-1]
					fmt.Fprintf(bw, "%8.4f%8.4f%8.4f", v[0]/10, v[1]/10, v[2]/10)
				}
				bw.WriteByte('\n')
			}
		}
	}
	var box system.Vec3
	if sys.Box != nil {
		box = sys.Box.Lengths
	}
	fmt.Fprintf(bw, "%10.5f%10.5f%10.5f\n", box[0]/10, box[1]/10, box[2]/10)
	return bw.Flush()
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
